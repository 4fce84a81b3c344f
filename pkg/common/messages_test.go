package common

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"
)

// captureLog redirects the standard logger for the duration of fn
func captureLog(t *testing.T, verbose bool, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	original := VerboseMode
	SetVerboseMode(verbose)
	defer func() {
		log.SetOutput(os.Stderr)
		SetVerboseMode(original)
	}()
	fn()
	return buf.String()
}

func TestLogLevels(t *testing.T) {
	tests := []struct {
		name    string
		log     func(string, ...interface{})
		verbose bool
		want    string
	}{
		{"info", LogInfo, false, "[INFO] Running module countdown"},
		{"warn", LogWarn, false, "[WARN] Running module countdown"},
		{"error", LogError, false, "[ERROR] Running module countdown"},
		{"debug verbose", LogDebug, true, "[DEBUG] Running module countdown"},
		{"debug quiet", LogDebug, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureLog(t, tt.verbose, func() {
				tt.log(InfoModuleStarted, "countdown")
			})
			if tt.want == "" {
				if out != "" {
					t.Errorf("expected no output, got %q", out)
				}
				return
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output %q does not contain %q", out, tt.want)
			}
		})
	}
}

// A message without arguments is printed verbatim, even with a % in it.
func TestLogInfo_NoArgs(t *testing.T) {
	out := captureLog(t, false, func() {
		LogInfo("100% of sectors unchanged")
	})
	if !strings.Contains(out, "[INFO] 100% of sectors unchanged") {
		t.Errorf("got %q", out)
	}
}

func TestSetVerboseMode(t *testing.T) {
	original := VerboseMode
	defer SetVerboseMode(original)

	for _, v := range []bool{true, false} {
		SetVerboseMode(v)
		if VerboseMode != v {
			t.Errorf("SetVerboseMode(%v) left VerboseMode = %v", v, VerboseMode)
		}
	}
}

// Every format constant must accept the arguments its callers pass.
func TestMessageFormats(t *testing.T) {
	tests := []struct {
		format string
		args   []interface{}
		want   string
	}{
		{InfoImageLoaded, []interface{}{"in.bin", 70560, 30}, "Loaded CD image in.bin: 70560 bytes (30 sectors)"},
		{InfoModuleResult, []interface{}{"formations", 1, 1, 0}, "formations: 1 found, 1 patched, 0 already patched"},
		{InfoMultiplierShift, []interface{}{uint32(0x80025004), 5, 4}, "sra at 0x80025004: shift 5 -> 4"},
		{InfoArchiveImported, []interface{}{"BLAZE.ALL", 3, 22562}, "Imported BLAZE.ALL: 3 of 22562 sector(s) changed"},
		{DebugTextReplaced, []interface{}{uint32(0x400), "Antidote", "Antidote/Cures"}, `0x00000400: "Antidote" -> "Antidote/Cures"`},
		{WarnRecordNotFound, []interface{}{"Excalibur"}, "Excalibur: no record found in archive"},
		{WarnCountBelowMin, []interface{}{6, 25}, "6 site(s) found, expected at least 25"},
		{WarnThresholdTotal, []interface{}{"1_support", 30, 20}, "1_support: highest threshold 30 exceeds total spells 20"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := fmt.Sprintf(tt.format, tt.args...)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if strings.Contains(got, "%!") {
				t.Errorf("format %q does not match its arguments: %q", tt.format, got)
			}
		})
	}
}

func TestErrorConstants(t *testing.T) {
	for _, msg := range []string{
		ErrFailedToReadImage, ErrFailedToWriteImage, ErrFailedToReadPlan, ErrFailedToParsePlan,
		ErrFailedToReadDescriptor, ErrFailedToParseDescriptor, ErrFailedToLocateFile,
		ErrFailedToOpenExecutable, ErrFailedToOpenArchive, ErrUnknownModule, ErrModuleFailed,
	} {
		if strings.Contains(msg, "%") {
			t.Errorf("error constant %q is used as a prefix and must not hold verbs", msg)
		}
		if msg != strings.ToLower(msg[:1])+msg[1:] {
			t.Errorf("error constant %q should start lower case", msg)
		}
	}
}
