package patch

import (
	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
)

// Verifier re-reads an image and checks the post-conditions of every
// enabled module that supports verification.
type Verifier struct {
	plan *Plan
	// Reference, when set, must share every sector header and EDC/ECC byte
	// with the verified image.
	Reference *psx.Buffer
}

// NewVerifier creates a verifier for plan
func NewVerifier(plan *Plan) *Verifier {
	return &Verifier{plan: plan}
}

// VerifyFile loads path and verifies it
func (v *Verifier) VerifyFile(path string) ([]VerifyResult, error) {
	common.LogInfo(common.InfoVerifyStarted, path)
	buf, err := psx.LoadBuffer(path)
	if err != nil {
		return nil, err
	}
	return v.Verify(buf)
}

// Verify checks buf. A failed post-condition yields a VerificationFailed error
// alongside the full result list.
func (v *Verifier) Verify(buf *psx.Buffer) ([]VerifyResult, error) {
	ctx, err := OpenViews(buf, v.plan.Image)
	if err != nil {
		return nil, err
	}

	results := []VerifyResult{}
	if v.Reference != nil {
		if s, ok := psx.SectorFramingEqual(v.Reference, buf); ok {
			results = append(results, pass("image", "sector framing unchanged"))
		} else {
			results = append(results, fail("image", "sector framing unchanged", "sector %d header or EDC/ECC differs", s))
		}
	}

	for _, m := range v.plan.Modules {
		vm, ok := m.(Verifiable)
		if !ok || !m.Enabled() || !vm.VerifyEnabled() {
			continue
		}
		got, err := vm.Verify(ctx)
		if err != nil {
			return results, asFatal(err).In(m.Name())
		}
		for _, r := range got {
			if r.Passed {
				common.LogDebug("%s: %s passed", r.Module, r.Check)
			} else {
				common.LogError("%s: %s failed: %s", r.Module, r.Check, r.Detail)
			}
		}
		results = append(results, got...)
	}

	failed := 0
	for _, r := range results {
		if !r.Passed {
			failed++
		}
	}
	if failed > 0 {
		return results, common.NewError(common.KindVerificationFailed, "%d of %d check(s) failed", failed, len(results))
	}
	common.LogInfo(common.InfoVerifyPassed, "image")
	return results, nil
}
