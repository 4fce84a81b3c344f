// Package patch provides the patch plan, the module registry, the driver that
// runs modules against a CD image, and the verifier that re-checks the result.
package patch

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hansbonini/blazetools/pkg/common"
	"gopkg.in/yaml.v3"
)

// Run status values
const (
	StatusOK                 = "ok"
	StatusWarnings           = "ok_with_warnings"
	StatusAborted            = "aborted"
	StatusVerificationFailed = "verification_failed"
)

// Report output formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ModuleReport is the per-module result of a run
type ModuleReport struct {
	Module       string   `json:"module" yaml:"module"`
	Enabled      bool     `json:"enabled" yaml:"enabled"`
	SitesFound   int      `json:"sites_found" yaml:"sites_found"`
	SitesPatched int      `json:"sites_patched" yaml:"sites_patched"`
	SitesSkipped int      `json:"sites_skipped_already_patched" yaml:"sites_skipped_already_patched"`
	Warnings     []string `json:"warnings" yaml:"warnings"`
	Errors       []string `json:"errors" yaml:"errors"`
}

func newModuleReport(module string, enabled bool) *ModuleReport {
	return &ModuleReport{
		Module:   module,
		Enabled:  enabled,
		Warnings: []string{},
		Errors:   []string{},
	}
}

// Warn records a non-fatal problem and logs it
func (r *ModuleReport) Warn(err *common.PatchError) {
	err.In(r.Module)
	err.Severity = common.SeverityWarning
	r.Warnings = append(r.Warnings, err.Error())
	common.LogWarn("%s", err.Error())
}

// Fail records the error that aborted the module
func (r *ModuleReport) Fail(err error) {
	r.Errors = append(r.Errors, err.Error())
}

func (r *ModuleReport) found(n int) {
	r.SitesFound += n
}

func (r *ModuleReport) patched() {
	r.SitesPatched++
}

func (r *ModuleReport) skipped() {
	r.SitesSkipped++
}

func (r *ModuleReport) hasWarnings() bool {
	return len(r.Warnings) > 0
}

// VerifyResult is one post-condition checked by the verifier
type VerifyResult struct {
	Module string `json:"module" yaml:"module"`
	Check  string `json:"check" yaml:"check"`
	Passed bool   `json:"passed" yaml:"passed"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

func pass(module, check string) VerifyResult {
	return VerifyResult{Module: module, Check: check, Passed: true}
}

func fail(module, check, format string, args ...interface{}) VerifyResult {
	return VerifyResult{Module: module, Check: check, Detail: fmt.Sprintf(format, args...)}
}

// Report is the machine-readable summary written to stdout
type Report struct {
	Input        string          `json:"input" yaml:"input"`
	Output       string          `json:"output,omitempty" yaml:"output,omitempty"`
	Status       string          `json:"status" yaml:"status"`
	Modules      []*ModuleReport `json:"modules" yaml:"modules"`
	Verification []VerifyResult  `json:"verification,omitempty" yaml:"verification,omitempty"`
	Error        string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// NewReport starts an empty report for one input image
func NewReport(input string) *Report {
	return &Report{Input: input, Status: StatusOK, Modules: []*ModuleReport{}}
}

func (r *Report) add(module string, enabled bool) *ModuleReport {
	mr := newModuleReport(module, enabled)
	r.Modules = append(r.Modules, mr)
	return mr
}

// Module returns the report of the first module with the given name
func (r *Report) Module(name string) *ModuleReport {
	for _, m := range r.Modules {
		if m.Module == name {
			return m
		}
	}
	return nil
}

// Finish sets the final status from err and the collected warnings
func (r *Report) Finish(err error) {
	if err != nil {
		r.Error = err.Error()
		if common.KindOf(err) == common.KindVerificationFailed {
			r.Status = StatusVerificationFailed
		} else {
			r.Status = StatusAborted
		}
		return
	}
	for _, m := range r.Modules {
		if m.hasWarnings() {
			r.Status = StatusWarnings
			return
		}
	}
	r.Status = StatusOK
}

// Encode writes the report as JSON or YAML
func (r *Report) Encode(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return common.ConfigError("unknown report format %q (want %s or %s)", format, FormatJSON, FormatYAML)
	}
}
