package patch

import (
	"bytes"
	"encoding/binary"

	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
)

// ModuleFormations replaces the encounter formations of whole areas
const ModuleFormations = "formations"

// formation record layout
const (
	formationRecordSize = 32
	formationSuffixSize = 4
	formationOfsLeader  = 4
	formationOfsSlot    = 8
	formationOfsMarker  = 9
	formationOfsAreaID  = 24
	formationOfsTail    = 26
)

func init() {
	Register(ModuleFormations, newFormations)
}

// Formation is one group of monsters, by slot in the area's monster list
type Formation struct {
	Slots  []int  `yaml:"slots"`
	Suffix string `yaml:"suffix"`
}

// OffsetTable points the area script at each formation.
// The first entry keeps its current value; the others follow the new layout.
// Entries beyond the last formation repeat the last offset.
type OffsetTable struct {
	Start   common.Hex `yaml:"start"`
	Entries int        `yaml:"entries"`
}

// FormationArea is one area whose formation block is rewritten wholesale
type FormationArea struct {
	Name        string       `yaml:"name"`
	Start       common.Hex   `yaml:"formation_area_start"`
	Bytes       common.Hex   `yaml:"formation_area_bytes"`
	AreaID      common.Hex   `yaml:"area_id"`
	Monsters    []string     `yaml:"monsters"`
	Formations  []Formation  `yaml:"formations"`
	OffsetTable *OffsetTable `yaml:"offset_table"`

	block []byte   // encoded formations, without the padding
	sizes []uint32 // encoded size of each formation
}

// Formations is the descriptor of the formations module
type Formations struct {
	Toggle `yaml:",inline"`
	Areas  []*FormationArea `yaml:"areas"`
}

func newFormations(doc *Document) (Module, error) {
	m := &Formations{}
	if err := decodeDescriptor(doc, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the module id
func (m *Formations) Name() string {
	return ModuleFormations
}

func (m *Formations) validate() error {
	if err := m.Toggle.validate(); err != nil {
		return err
	}
	if len(m.Areas) == 0 {
		return common.ConfigError("no areas declared")
	}
	for i, area := range m.Areas {
		if area.Name == "" {
			return common.ConfigError("areas[%d] has no name", i)
		}
		if err := area.build(); err != nil {
			return err
		}
	}
	return nil
}

// BuildFormationBlock lays out formations as the game stores them:
// per formation, one 32-byte record per monster then a 4-byte suffix
func BuildFormationBlock(areaID uint16, formations [][]uint8, suffixes [][]byte) []byte {
	var out []byte
	for f, slots := range formations {
		for i, slot := range slots {
			rec := make([]byte, formationRecordSize)
			if i == 0 {
				binary.LittleEndian.PutUint32(rec[formationOfsLeader:], 0xFFFFFFFF)
			}
			rec[formationOfsSlot] = slot
			rec[formationOfsMarker] = 0xFF
			binary.LittleEndian.PutUint16(rec[formationOfsAreaID:], areaID)
			for j := formationOfsTail; j < formationRecordSize; j++ {
				rec[j] = 0xFF
			}
			out = append(out, rec...)
		}
		out = append(out, suffixes[f]...)
	}
	return out
}

func (a *FormationArea) build() error {
	if a.Bytes == 0 {
		return common.ConfigError("area %s: formation_area_bytes must be positive", a.Name)
	}
	if a.AreaID > 0xFFFF {
		return common.ConfigError("area %s: area_id %v does not fit 16 bits", a.Name, a.AreaID)
	}
	if len(a.Monsters) == 0 {
		return common.ConfigError("area %s: no monsters declared", a.Name)
	}
	if len(a.Formations) == 0 {
		return common.ConfigError("area %s: no formations declared", a.Name)
	}

	slots := make([][]uint8, len(a.Formations))
	suffixes := make([][]byte, len(a.Formations))
	a.sizes = make([]uint32, len(a.Formations))
	for i, f := range a.Formations {
		if len(f.Slots) == 0 {
			return common.ConfigError("area %s: formation %d is empty", a.Name, i)
		}
		suffix, err := common.ParseHexBytes(f.Suffix)
		if err != nil {
			return common.ConfigError("area %s: formation %d: %v", a.Name, i, err)
		}
		if len(suffix) != formationSuffixSize {
			return common.ConfigError("area %s: formation %d: suffix is %d bytes, want %d",
				a.Name, i, len(suffix), formationSuffixSize)
		}
		slots[i] = make([]uint8, len(f.Slots))
		for j, s := range f.Slots {
			if s < 0 || s >= len(a.Monsters) {
				return common.ConfigError("area %s: formation %d: slot %d outside the %d monster(s) of the area",
					a.Name, i, s, len(a.Monsters))
			}
			slots[i][j] = uint8(s)
		}
		suffixes[i] = suffix
		a.sizes[i] = uint32(len(f.Slots)*formationRecordSize + formationSuffixSize)
	}

	block := BuildFormationBlock(uint16(a.AreaID), slots, suffixes)
	if len(block) > int(a.Bytes) {
		return common.NewError(common.KindFormationAreaOverflow,
			"area %s: formations need %d bytes, area holds %d", a.Name, len(block), uint32(a.Bytes)).At(uint32(a.Start))
	}
	a.block = block

	if t := a.OffsetTable; t != nil {
		if t.Entries == 0 {
			t.Entries = len(a.Formations)
		}
		if t.Entries < len(a.Formations) {
			return common.ConfigError("area %s: offset table holds %d entries for %d formations",
				a.Name, t.Entries, len(a.Formations))
		}
	}
	return nil
}

// area returns the block zero padded to the declared area size.
// Callers bounds-check the area against the archive first.
func (a *FormationArea) area() []byte {
	out := make([]byte, a.Bytes)
	copy(out, a.block)
	return out
}

// offsets computes the script table entries from the table's current first entry
func (a *FormationArea) offsets(first uint32) []byte {
	t := a.OffsetTable
	words := make([]uint32, t.Entries)
	off := first
	for i := range words {
		if i < len(a.sizes) {
			words[i] = off
			off += a.sizes[i]
		} else {
			words[i] = words[len(a.sizes)-1]
		}
	}
	return common.PutWordsLE(words...)
}

func (a *FormationArea) table(arc *psx.ArchiveView) ([]byte, error) {
	first, err := arc.ReadU32(uint32(a.OffsetTable.Start))
	if err != nil {
		return nil, err
	}
	return a.offsets(first), nil
}

// Apply rewrites every declared area that does not already hold its formations
func (m *Formations) Apply(ctx *Context, rep *ModuleReport) error {
	arc, err := ctx.archive(m.Name())
	if err != nil {
		return err
	}
	for _, a := range m.Areas {
		if _, err := arc.File().Spans(uint32(a.Start), int(a.Bytes)); err != nil {
			return err
		}
		if a.OffsetTable != nil {
			if _, err := arc.File().Spans(uint32(a.OffsetTable.Start), 4*a.OffsetTable.Entries); err != nil {
				return err
			}
		}
	}

	rep.found(len(m.Areas))
	for _, a := range m.Areas {
		var table []byte
		if a.OffsetTable != nil {
			if table, err = a.table(arc); err != nil {
				return err
			}
		}
		want := a.area()
		current, err := arc.ReadBytes(uint32(a.Start), len(want))
		if err != nil {
			return err
		}
		if bytes.Equal(current, want) && (table == nil || hasPrefix(arc, uint32(a.OffsetTable.Start), table)) {
			common.LogDebug(common.DebugAlreadyPatched, uint32(a.Start))
			rep.skipped()
			continue
		}
		if err := arc.WriteBytes(uint32(a.Start), want); err != nil {
			return err
		}
		if table != nil {
			if err := arc.WriteBytes(uint32(a.OffsetTable.Start), table); err != nil {
				return err
			}
		}
		common.LogInfo(common.InfoAreaWritten, a.Name, len(a.Formations), len(a.block), len(want))
		rep.patched()
	}
	return nil
}

// Verify checks every area byte for byte, padding included
func (m *Formations) Verify(ctx *Context) ([]VerifyResult, error) {
	arc, err := ctx.archive(m.Name())
	if err != nil {
		return nil, err
	}
	var results []VerifyResult
	for _, a := range m.Areas {
		check := a.Name + " formation area"
		got, err := arc.ReadBytes(uint32(a.Start), int(a.Bytes))
		if err != nil {
			return nil, err
		}
		if i := firstDifference(got, a.area()); i >= 0 {
			results = append(results, fail(m.Name(), check, "byte 0x%08X differs", uint32(a.Start)+uint32(i)))
		} else {
			results = append(results, pass(m.Name(), check))
		}
		if a.OffsetTable == nil {
			continue
		}
		// the first entry is never rewritten, so it anchors the expected table
		table, err := a.table(arc)
		if err != nil {
			return nil, err
		}
		if hasPrefix(arc, uint32(a.OffsetTable.Start), table) {
			results = append(results, pass(m.Name(), a.Name+" offset table"))
		} else {
			results = append(results, fail(m.Name(), a.Name+" offset table", "table at 0x%08X differs", uint32(a.OffsetTable.Start)))
		}
	}
	return results, nil
}

// firstDifference returns the index of the first differing byte, or -1
func firstDifference(a, b []byte) int {
	for i := range a {
		if i >= len(b) || a[i] != b[i] {
			return i
		}
	}
	if len(b) > len(a) {
		return len(a)
	}
	return -1
}
