package common

import (
	"log"
)

// Global variable to control debug output
var VerboseMode bool = false

// SetVerboseMode enables or disables verbose/debug output
func SetVerboseMode(verbose bool) {
	VerboseMode = verbose
}

// Error messages
const (
	ErrFailedToReadImage       = "failed to read CD image"
	ErrFailedToWriteImage      = "failed to write CD image"
	ErrFailedToReadPlan        = "failed to read patch plan"
	ErrFailedToParsePlan       = "failed to parse patch plan"
	ErrFailedToReadDescriptor  = "failed to read descriptor"
	ErrFailedToParseDescriptor = "failed to parse descriptor"
	ErrFailedToLocateFile      = "failed to locate file in CD image"
	ErrFailedToOpenExecutable  = "failed to open executable"
	ErrFailedToOpenArchive     = "failed to open archive"
	ErrUnknownModule           = "unknown patch module"
	ErrModuleFailed            = "patch module failed"
)

// Info messages
const (
	InfoImageLoaded       = "Loaded CD image %s: %d bytes (%d sectors)"
	InfoExecutableFound   = "Executable at LBA %d (%s): %d bytes, load base 0x%08X"
	InfoArchiveFound      = "Archive at LBA %d (%s): %d bytes"
	InfoModuleStarted     = "Running module %s"
	InfoModuleDisabled    = "Module %s disabled, skipping"
	InfoModuleResult      = "%s: %d found, %d patched, %d already patched"
	InfoImageWritten      = "Patched image written to %s"
	InfoNoOutputWritten   = "No output written: run aborted"
	InfoVerifyStarted     = "Verifying %s"
	InfoVerifyPassed      = "%s: verification passed"
	InfoMonsterPatched    = "%s: %d occurrence(s)"
	InfoItemPatched       = "%s: %d of %d offset(s) patched"
	InfoAreaWritten       = "Area %s: %d formation(s), %d of %d bytes used"
	InfoThresholdChanged  = "[%s] %v -> %v"
	InfoCountdownSites    = "Countdown sites in [0x%08X, 0x%08X): %d original, %d already patched"
	InfoMultiplierShift   = "sra at 0x%08X: shift %d -> %d"
	InfoPricesPatched     = "%s: %d occurrence(s), price %d"
	InfoArchiveImported   = "Imported %s: %d of %d sector(s) changed"
	InfoClassTableWritten = "%s: %d byte(s) written at file offset 0x%08X"
	InfoSpellPatched      = "%s %q patched at 0x%08X"
)

// Debug messages
const (
	DebugWordPatched    = "0x%08X: 0x%08X -> 0x%08X"
	DebugSpanWrite      = "file offset 0x%X -> image offset 0x%X (%d bytes)"
	DebugNameCandidate  = "%s: candidate at 0x%08X rejected (%s)"
	DebugItemFormat     = "%s at 0x%08X: %s"
	DebugAlreadyPatched = "0x%08X already patched"
	DebugDirectoryEntry = "%s LBA %d size %d"
	DebugPriceExcluded  = "%s: occurrence at 0x%08X inside excluded range"
	DebugTextReplaced   = "0x%08X: %q -> %q"
	DebugSpellField     = "%s %s: %d -> %d"
)

// Warning messages
const (
	WarnRecordNotFound    = "%s: no record found in archive"
	WarnItemOffsetSkip    = "%s: offset 0x%08X holds neither an item entry nor its text"
	WarnThresholdTotal    = "%s: highest threshold %d exceeds total spells %d"
	WarnThresholdUnknown  = "%s: current thresholds %v match neither vanilla nor modded"
	WarnCountBelowMin     = "%d site(s) found, expected at least %d"
	WarnNameTruncated     = "%s: description truncated to %d characters"
	WarnCharCountStale    = "%s: current_chars is %d but new_description has %d characters"
	WarnSpellNameMismatch = "%s: expected spell %q, found %q"
)

// LogInfo logs an informational message
func LogInfo(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[INFO] "+message, args...)
	} else {
		log.Printf("[INFO] %s", message)
	}
}

// LogWarn logs a warning message
func LogWarn(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[WARN] "+message, args...)
	} else {
		log.Printf("[WARN] %s", message)
	}
}

// LogError logs an error message
func LogError(message string, args ...interface{}) {
	if len(args) > 0 {
		log.Printf("[ERROR] "+message, args...)
	} else {
		log.Printf("[ERROR] %s", message)
	}
}

// LogDebug logs a debug message (only if VerboseMode is enabled)
func LogDebug(message string, args ...interface{}) {
	if !VerboseMode {
		return
	}
	if len(args) > 0 {
		log.Printf("[DEBUG] "+message, args...)
	} else {
		log.Printf("[DEBUG] %s", message)
	}
}
