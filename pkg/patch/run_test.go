package patch

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
	"gopkg.in/yaml.v3"
)

func TestExecute_SecondRunIsNoOp(t *testing.T) {
	input := writeFixtureFile(t, newFixture(t))
	dir := t.TempDir()
	plan := mustPlan(t, step(ModuleMonsterStats, goblinStats))

	first := filepath.Join(dir, "first.bin")
	rep, err := Execute(plan, Options{Input: input, Output: first, Verify: true})
	if err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}
	if rep.Status != StatusOK || rep.Output != first {
		t.Errorf("report status %q output %q", rep.Status, rep.Output)
	}
	assertCounts(t, rep.Modules[0], 2, 2, 0)
	if len(rep.Verification) == 0 || rep.Verification[0].Check != "sector framing unchanged" {
		t.Errorf("verification = %+v, want the framing check first", rep.Verification)
	}

	second := filepath.Join(dir, "second.bin")
	rep, err = Execute(plan, Options{Input: first, Output: second})
	if err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	assertCounts(t, rep.Modules[0], 2, 0, 2)

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if !bytes.Equal(a, b) {
		t.Error("second run changed the image")
	}
}

func TestExecute_Deterministic(t *testing.T) {
	input := writeFixtureFile(t, newFixture(t))
	dir := t.TempDir()
	plan := mustPlan(t,
		step(ModuleMonsterStats, goblinStats),
		step(ModuleFormations, formationDescriptor),
		step(ModuleTierThresholds, tierDescriptor),
		step(ModuleCountdown, freezeDescriptor("")),
	)

	var outputs [][]byte
	for _, name := range []string{"a.bin", "b.bin"} {
		out := filepath.Join(dir, name)
		if _, err := Execute(plan, Options{Input: input, Output: out, Verify: true}); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, data)
	}
	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Error("two runs of the same plan produced different images")
	}
}

func TestExecute_FatalWritesNothing(t *testing.T) {
	input := writeFixtureFile(t, newFixture(t))
	output := filepath.Join(t.TempDir(), "out.bin")
	plan := mustPlan(t,
		step(ModuleMonsterStats, goblinStats),
		step(ModuleCountdown, freezeDescriptor(`, "expected_max": 3`)),
	)

	rep, err := Execute(plan, Options{Input: input, Output: output})
	if common.ExitCode(err) != common.ExitPatchFailure {
		t.Fatalf("Execute error = %v, want exit code %d", err, common.ExitPatchFailure)
	}
	if rep.Status != StatusAborted || rep.Error == "" {
		t.Errorf("report status %q error %q", rep.Status, rep.Error)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("output file exists after an aborted run (stat err %v)", err)
	}
}

func TestExecute_MissingPaths(t *testing.T) {
	plan := mustPlan(t, step(ModuleMonsterStats, goblinStats))
	_, err := Execute(plan, Options{Input: "in.bin"})
	if common.ExitCode(err) != common.ExitConfig {
		t.Errorf("Execute error = %v, want exit code %d", err, common.ExitConfig)
	}
}

func TestVerifyFile_DetectsTampering(t *testing.T) {
	input := writeFixtureFile(t, newFixture(t))
	output := filepath.Join(t.TempDir(), "out.bin")
	plan := mustPlan(t, step(ModuleMonsterStats, goblinStats), step(ModuleAuctionPrices, `{"enabled": true, "items": ["Long Sword"]}`))
	if _, err := Execute(plan, Options{Input: input, Output: output}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	buf, err := psx.LoadBuffer(output)
	if err != nil {
		t.Fatal(err)
	}
	writeArchive(t, buf, arcGoblin2+0x14, []byte{0x01, 0x00})
	if err := buf.Flush(output); err != nil {
		t.Fatal(err)
	}

	results, err := NewVerifier(plan).VerifyFile(output)
	if common.ExitCode(err) != common.ExitVerifyFailed {
		t.Fatalf("VerifyFile error = %v, want exit code %d", err, common.ExitVerifyFailed)
	}
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r.Module)
		}
	}
	if len(failed) != 1 || failed[0] != ModuleMonsterStats {
		t.Errorf("failed checks in %v, want only %s", failed, ModuleMonsterStats)
	}
}

func TestVerifier_SkipsOptedOutModules(t *testing.T) {
	buf := newFixture(t)
	plan := mustPlan(t, step(ModuleAuctionPrices, `{"enabled": true, "verify": false, "items": ["Long Sword"]}`))
	results, err := NewVerifier(plan).Verify(buf)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %+v, want none", results)
	}
}

func TestVerifier_FramingReference(t *testing.T) {
	buf := newFixture(t)
	ref := cloneImage(buf)
	// the ECC area of sector 20
	if err := buf.WriteU8(20*psx.CD_SECTOR_SIZE+psx.CD_SECTOR_SIZE-1, 0); err != nil {
		t.Fatal(err)
	}
	v := NewVerifier(mustPlan(t, step(ModuleMonsterStats, goblinStats)))
	v.Reference = ref

	results, err := v.Verify(buf)
	if common.KindOf(err) != common.KindVerificationFailed {
		t.Fatalf("Verify error = %v, want VerificationFailed", err)
	}
	if results[0].Passed || !strings.Contains(results[0].Detail, "sector 20") {
		t.Errorf("framing result = %+v", results[0])
	}
}

func TestReport_Encode(t *testing.T) {
	rep := NewReport("in.bin")
	mr := rep.add(ModuleAuctionPrices, true)
	mr.found(2)
	mr.patched()
	mr.skipped()
	mr.Warn(common.NewWarning(common.KindSiteNotFound, "Excalibur not found"))
	rep.Finish(nil)
	if rep.Status != StatusWarnings {
		t.Errorf("Status = %q, want %q", rep.Status, StatusWarnings)
	}

	var jsonOut bytes.Buffer
	if err := rep.Encode(&jsonOut, FormatJSON); err != nil {
		t.Fatalf("Encode json failed: %v", err)
	}
	var decoded struct {
		Status  string `json:"status"`
		Modules []struct {
			Module       string   `json:"module"`
			SitesSkipped int      `json:"sites_skipped_already_patched"`
			Warnings     []string `json:"warnings"`
		} `json:"modules"`
	}
	if err := json.Unmarshal(jsonOut.Bytes(), &decoded); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if decoded.Status != StatusWarnings || len(decoded.Modules) != 1 || decoded.Modules[0].SitesSkipped != 1 {
		t.Errorf("decoded report = %+v", decoded)
	}
	if w := decoded.Modules[0].Warnings; len(w) != 1 || !strings.Contains(w[0], "[auction_prices]") {
		t.Errorf("warnings = %v", w)
	}

	var yamlOut bytes.Buffer
	if err := rep.Encode(&yamlOut, FormatYAML); err != nil {
		t.Fatalf("Encode yaml failed: %v", err)
	}
	var generic map[string]interface{}
	if err := yaml.Unmarshal(yamlOut.Bytes(), &generic); err != nil {
		t.Fatalf("report is not YAML: %v", err)
	}
	if generic["input"] != "in.bin" {
		t.Errorf("input = %v", generic["input"])
	}

	if err := rep.Encode(&bytes.Buffer{}, "xml"); common.KindOf(err) != common.KindConfiguration {
		t.Errorf("Encode xml error = %v, want a ConfigurationError", err)
	}
}

func TestReport_FinishWithError(t *testing.T) {
	rep := NewReport("in.bin")
	rep.Finish(common.NewError(common.KindFormationAreaOverflow, "too big"))
	if rep.Status != StatusAborted || !strings.Contains(rep.Error, "too big") {
		t.Errorf("report = %+v", rep)
	}
}
