// Package common provides error kinds shared by the disc views and the patch modules.
package common

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure independently of where it was raised.
type Kind string

const (
	KindConfiguration         Kind = "ConfigurationError"
	KindBoundsViolation       Kind = "BoundsViolation"
	KindOutOfFile             Kind = "OutOfFile"
	KindAddressOutOfRange     Kind = "AddressOutOfRange"
	KindLayoutMismatch        Kind = "ExecutableLayoutMismatch"
	KindExpectedCount         Kind = "ExpectedCountViolation"
	KindFormationAreaOverflow Kind = "FormationAreaOverflow"
	KindAsciiTooLong          Kind = "AsciiTooLong"
	KindVerificationFailed    Kind = "VerificationFailed"
	KindUnsupported           Kind = "UnsupportedConfiguration"
	KindIO                    Kind = "IOError"
	KindSiteNotFound          Kind = "SiteNotFound"
)

// Severity decides whether the driver keeps going after an error.
type Severity int

const (
	SeverityFatal Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "fatal"
}

// Exit codes of the patch command.
const (
	ExitOK           = 0
	ExitConfig       = 1
	ExitPatchFailure = 2
	ExitVerifyFailed = 3
)

// PatchError carries the module id, the offsets involved and the invariant that failed.
type PatchError struct {
	Kind      Kind
	Severity  Severity
	Module    string
	Offsets   []uint32
	Invariant string
	Err       error
}

func (e *PatchError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.Module != "" {
		sb.WriteString(" [")
		sb.WriteString(e.Module)
		sb.WriteString("]")
	}
	if len(e.Offsets) > 0 {
		sb.WriteString(" at")
		for i, off := range e.Offsets {
			if i > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, " 0x%X", off)
		}
	}
	if e.Invariant != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Invariant)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *PatchError) Unwrap() error {
	return e.Err
}

// NewError creates a fatal error of the given kind.
func NewError(kind Kind, invariant string, args ...interface{}) *PatchError {
	if len(args) > 0 {
		invariant = fmt.Sprintf(invariant, args...)
	}
	return &PatchError{Kind: kind, Severity: SeverityFatal, Invariant: invariant}
}

// NewWarning creates a non-fatal error of the given kind.
func NewWarning(kind Kind, invariant string, args ...interface{}) *PatchError {
	e := NewError(kind, invariant, args...)
	e.Severity = SeverityWarning
	return e
}

// At attaches offsets to the error and returns it.
func (e *PatchError) At(offsets ...uint32) *PatchError {
	e.Offsets = append(e.Offsets, offsets...)
	return e
}

// In sets the module id unless one is already recorded.
func (e *PatchError) In(module string) *PatchError {
	if e.Module == "" {
		e.Module = module
	}
	return e
}

// Wrap records the underlying cause.
func (e *PatchError) Wrap(err error) *PatchError {
	e.Err = err
	return e
}

// ConfigError is a shorthand for a ConfigurationError.
func ConfigError(format string, args ...interface{}) *PatchError {
	return NewError(KindConfiguration, format, args...)
}

// AsPatchError extracts the first *PatchError in err's chain.
func AsPatchError(err error) (*PatchError, bool) {
	var pe *PatchError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	if pe, ok := AsPatchError(err); ok {
		return pe.Kind
	}
	return ""
}

// IsWarning reports whether err is a non-fatal PatchError.
func IsWarning(err error) bool {
	pe, ok := AsPatchError(err)
	return ok && pe.Severity == SeverityWarning
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindConfiguration:
		return ExitConfig
	case KindVerificationFailed:
		return ExitVerifyFailed
	case "":
		// flag parsing and I/O problems before any patching
		return ExitConfig
	default:
		return ExitPatchFailure
	}
}
