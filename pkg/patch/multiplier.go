package patch

import (
	"fmt"

	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
)

// ModuleGlobalMultiplier changes the shift of the sra that ends the
// executable's divide-by-100, scaling every percentage based result
const ModuleGlobalMultiplier = "global_multiplier"

const (
	sraMask       = 0xFFE0003F // opcode, rs and funct
	sraFunct      = 0x00000003
	sraShiftBits  = 0x1F
	sraShiftShift = 6
)

func init() {
	Register(ModuleGlobalMultiplier, newGlobalMultiplier)
}

// GlobalMultiplier is the descriptor of the global multiplier module.
// Signature lists the words immediately before the sra, lowest address first.
type GlobalMultiplier struct {
	Toggle    `yaml:",inline"`
	Address   common.Hex   `yaml:"address"`
	Shift     int          `yaml:"shift"`
	Signature []common.Hex `yaml:"signature"`
}

func newGlobalMultiplier(doc *Document) (Module, error) {
	m := &GlobalMultiplier{}
	if err := decodeDescriptor(doc, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the module id
func (m *GlobalMultiplier) Name() string {
	return ModuleGlobalMultiplier
}

func (m *GlobalMultiplier) validate() error {
	if err := m.Toggle.validate(); err != nil {
		return err
	}
	if m.Address == 0 || m.Address%4 != 0 {
		return common.ConfigError("address %v must be a non-zero word address", m.Address)
	}
	switch m.Shift {
	case 3, 4, 5:
	default:
		return common.ConfigError("shift %d is not one of 3, 4, 5", m.Shift)
	}
	if len(m.Signature) == 0 {
		return common.ConfigError("signature lists no words")
	}
	return nil
}

// Multiplier returns the factor the configured shift applies relative to shift 5
func (m *GlobalMultiplier) Multiplier() int {
	return 1 << uint(5-m.Shift)
}

// SraWithShift replaces the shift amount of an sra word
func SraWithShift(word uint32, shift int) uint32 {
	return word&^(sraShiftBits<<sraShiftShift) | uint32(shift)<<sraShiftShift
}

func isSra(word uint32) bool {
	return word&sraMask == sraFunct
}

// checkSignature compares the words preceding the sra
func (m *GlobalMultiplier) checkSignature(exe *psx.ExecutableView) error {
	base := uint32(m.Address) - 4*uint32(len(m.Signature))
	for i, want := range m.Signature {
		addr := base + 4*uint32(i)
		got, err := exe.ReadWordAt(addr)
		if err != nil {
			return err
		}
		if got != uint32(want) {
			return common.NewError(common.KindLayoutMismatch,
				"signature word %d at 0x%08X is 0x%08X, expected 0x%08X", i, addr, got, uint32(want)).At(addr)
		}
	}
	return nil
}

func (m *GlobalMultiplier) readSra(exe *psx.ExecutableView) (uint32, error) {
	addr := uint32(m.Address)
	word, err := exe.ReadWordAt(addr)
	if err != nil {
		return 0, err
	}
	if !isSra(word) {
		return 0, common.NewError(common.KindLayoutMismatch, "0x%08X holds 0x%08X, not an sra", addr, word).At(addr)
	}
	return word, nil
}

// Apply checks the signature and rewrites the shift amount
func (m *GlobalMultiplier) Apply(ctx *Context, rep *ModuleReport) error {
	exe, err := ctx.executable(m.Name())
	if err != nil {
		return err
	}
	if err := m.checkSignature(exe); err != nil {
		return err
	}
	addr := uint32(m.Address)
	word, err := m.readSra(exe)
	if err != nil {
		return err
	}
	rep.found(1)

	current := int(word>>sraShiftShift) & sraShiftBits
	if current == m.Shift {
		common.LogDebug(common.DebugAlreadyPatched, addr)
		rep.skipped()
		return nil
	}

	next := SraWithShift(word, m.Shift)
	if err := exe.WriteWordAt(addr, next); err != nil {
		return err
	}
	back, err := exe.ReadWordAt(addr)
	if err != nil {
		return err
	}
	if back != next {
		return common.NewError(common.KindVerificationFailed,
			"read back 0x%08X after writing 0x%08X", back, next).At(addr)
	}
	common.LogInfo(common.InfoMultiplierShift, addr, current, m.Shift)
	rep.patched()
	return nil
}

// Verify checks the signature and the shift amount of the sra
func (m *GlobalMultiplier) Verify(ctx *Context) ([]VerifyResult, error) {
	exe, err := ctx.executable(m.Name())
	if err != nil {
		return nil, err
	}
	check := fmt.Sprintf("sra shift %d (x%d)", m.Shift, m.Multiplier())
	if err := m.checkSignature(exe); err != nil {
		if common.KindOf(err) != common.KindLayoutMismatch {
			return nil, err
		}
		return []VerifyResult{fail(m.Name(), check, "%v", err)}, nil
	}
	word, err := m.readSra(exe)
	if err != nil {
		if common.KindOf(err) != common.KindLayoutMismatch {
			return nil, err
		}
		return []VerifyResult{fail(m.Name(), check, "%v", err)}, nil
	}
	if got := int(word>>sraShiftShift) & sraShiftBits; got != m.Shift {
		return []VerifyResult{fail(m.Name(), check, "shift is %d", got)}, nil
	}
	return []VerifyResult{pass(m.Name(), check)}, nil
}
