package patch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
)

// ModuleSpellTable overrides fields of the spell definition table in the archive
const ModuleSpellTable = "spell_table"

const (
	defaultSpellTableOffset = 0x00908E68
	spellEntrySize          = 48
	spellNameSize           = 16
)

// spells per list, lists stored back to back
var defaultSpellCounts = []int{29, 24, 20, 7, 1, 1, 1, 30}

// spellFields maps a field name to its byte offset in an entry
var spellFields = map[string]uint32{
	"spell_id":         0x10,
	"cast_time":        0x13,
	"mp_cost":          0x14,
	"element":          0x16,
	"damage":           0x18,
	"target_type":      0x1C,
	"cast_prob":        0x1D,
	"param_1E":         0x1E,
	"ingredient_count": 0x1F,
}

func init() {
	Register(ModuleSpellTable, newSpellTable)
}

// SpellOverride changes some fields of one spell entry
type SpellOverride struct {
	EnabledFlag *bool          `yaml:"enabled"`
	List        int            `yaml:"list"`
	Index       int            `yaml:"index"`
	Name        string         `yaml:"name"`
	Fields      map[string]int `yaml:"fields"`
}

// SpellTable is the descriptor of the spell table module
type SpellTable struct {
	Toggle     `yaml:",inline"`
	Offset     *common.Hex     `yaml:"table_offset"`
	ListCounts []int           `yaml:"list_counts"`
	Overrides  []SpellOverride `yaml:"overrides"`

	entries []spellEntry
}

// spellEntry is a validated override with its field writes in offset order
type spellEntry struct {
	label  string
	name   string
	offset uint32
	fields []spellField
}

type spellField struct {
	name  string
	at    uint32
	value byte
}

func newSpellTable(doc *Document) (Module, error) {
	m := &SpellTable{}
	if err := decodeDescriptor(doc, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the module id
func (m *SpellTable) Name() string {
	return ModuleSpellTable
}

func spellFieldNames() []string {
	names := make([]string, 0, len(spellFields))
	for name := range spellFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *SpellTable) validate() error {
	if err := m.Toggle.validate(); err != nil {
		return err
	}
	counts := m.ListCounts
	if len(counts) == 0 {
		counts = defaultSpellCounts
	}
	base := uint32(defaultSpellTableOffset)
	if m.Offset != nil {
		base = uint32(*m.Offset)
	}

	// first entry of every list
	starts := make([]uint32, len(counts))
	next := base
	for i, n := range counts {
		if n <= 0 {
			return common.ConfigError("list_counts[%d] must be positive", i)
		}
		starts[i] = next
		next += uint32(n * spellEntrySize)
	}

	m.entries = nil
	seen := map[[2]int]bool{}
	for i, o := range m.Overrides {
		if o.EnabledFlag == nil {
			return common.ConfigError("overrides[%d] is missing the required \"enabled\" field", i)
		}
		if !*o.EnabledFlag {
			continue
		}
		if o.List < 0 || o.List >= len(counts) {
			return common.ConfigError("overrides[%d]: list %d outside the %d list(s) of the table", i, o.List, len(counts))
		}
		if o.Index < 0 || o.Index >= counts[o.List] {
			return common.ConfigError("overrides[%d]: index %d outside the %d spell(s) of list %d", i, o.Index, counts[o.List], o.List)
		}
		key := [2]int{o.List, o.Index}
		if seen[key] {
			return common.ConfigError("overrides[%d]: list %d index %d declared twice", i, o.List, o.Index)
		}
		seen[key] = true
		if len(o.Fields) == 0 {
			return common.ConfigError("overrides[%d]: no fields declared", i)
		}

		e := spellEntry{
			label:  fmt.Sprintf("list[%d][%d]", o.List, o.Index),
			name:   o.Name,
			offset: starts[o.List] + uint32(o.Index*spellEntrySize),
		}
		for field, v := range o.Fields {
			at, ok := spellFields[field]
			if !ok {
				return common.ConfigError("overrides[%d]: unknown field %q (known: %v)", i, field, spellFieldNames())
			}
			b, err := common.SafeIntToUint8(v)
			if err != nil {
				return common.ConfigError("overrides[%d]: %s: %v", i, field, err)
			}
			e.fields = append(e.fields, spellField{name: field, at: at, value: b})
		}
		sort.Slice(e.fields, func(a, b int) bool { return e.fields[a].at < e.fields[b].at })
		m.entries = append(m.entries, e)
	}
	if len(m.entries) == 0 && m.Enabled() {
		return common.ConfigError("no enabled overrides")
	}
	return nil
}

// spellName reads the printable part of an entry's name field
func spellName(entry []byte) string {
	var sb strings.Builder
	for _, b := range entry[:spellNameSize] {
		if b >= 32 && b < 127 {
			sb.WriteByte(b)
		}
	}
	return strings.TrimSpace(sb.String())
}

// expected returns the entry with every override applied
func (e spellEntry) expected(current []byte) []byte {
	out := append([]byte(nil), current...)
	for _, f := range e.fields {
		out[f.at] = f.value
	}
	return out
}

func readEntries(arc *psx.ArchiveView, entries []spellEntry) ([][]byte, error) {
	out := make([][]byte, len(entries))
	for i, e := range entries {
		b, err := arc.ReadBytes(e.offset, spellEntrySize)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// Apply rewrites the overridden fields of every entry that differs
func (m *SpellTable) Apply(ctx *Context, rep *ModuleReport) error {
	arc, err := ctx.archive(m.Name())
	if err != nil {
		return err
	}
	current, err := readEntries(arc, m.entries)
	if err != nil {
		return err
	}

	rep.found(len(m.entries))
	var written []int
	for i, e := range m.entries {
		actual := spellName(current[i])
		if e.name != "" && actual != e.name {
			rep.Warn(common.NewWarning(common.KindLayoutMismatch, common.WarnSpellNameMismatch,
				e.label, e.name, actual).At(e.offset))
		}
		want := e.expected(current[i])
		if firstDifference(current[i], want) < 0 {
			common.LogDebug(common.DebugAlreadyPatched, e.offset)
			rep.skipped()
			continue
		}
		for _, f := range e.fields {
			if current[i][f.at] != f.value {
				common.LogDebug(common.DebugSpellField, e.label, f.name, current[i][f.at], f.value)
			}
		}
		if err := arc.WriteBytes(e.offset, want); err != nil {
			return err
		}
		common.LogInfo(common.InfoSpellPatched, e.label, actual, e.offset)
		written = append(written, i)
		rep.patched()
	}

	for _, i := range written {
		e := m.entries[i]
		back, err := arc.ReadBytes(e.offset, spellEntrySize)
		if err != nil {
			return err
		}
		if j := firstDifference(back, e.expected(current[i])); j >= 0 {
			return common.NewError(common.KindVerificationFailed,
				"%s read back differs at byte %d", e.label, j).At(e.offset + uint32(j))
		}
	}
	return nil
}

// Verify checks the overridden fields of every entry
func (m *SpellTable) Verify(ctx *Context) ([]VerifyResult, error) {
	arc, err := ctx.archive(m.Name())
	if err != nil {
		return nil, err
	}
	entries, err := readEntries(arc, m.entries)
	if err != nil {
		return nil, err
	}
	var results []VerifyResult
	for i, e := range m.entries {
		check := e.label + " fields"
		bad := ""
		for _, f := range e.fields {
			if entries[i][f.at] != f.value {
				bad = f.name
				break
			}
		}
		if bad != "" {
			results = append(results, fail(m.Name(), check, "%s at 0x%08X differs", bad, e.offset))
		} else {
			results = append(results, pass(m.Name(), check))
		}
	}
	return results, nil
}
