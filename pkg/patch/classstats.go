package patch

import (
	"encoding/binary"
	"sort"
	"strconv"

	"github.com/hansbonini/blazetools/pkg/common"
)

// ModuleClassStats rewrites the class growth and level curve tables of the executable
const ModuleClassStats = "class_stats"

const (
	classCount         = 8
	maxSecondaryRows   = 13
	maxLevelCurveSteps = 100
)

// default executable file offsets of the class tables
const (
	defaultGrowthOffset    = 0x0002BBA8
	defaultSecondaryOffset = 0x0002BBF8
	defaultStatCurveOffset = 0x00033600
	defaultHPCurveOffset   = 0x00033664
	defaultLinearOffset    = 0x0002EAB6
)

// growthRows is the row order of the growth modifier table
var growthRows = []string{
	"POW", "INT", "WIL", "STR", "row4_unknown",
	"CON", "AGL", "LUK", "row8_unknown", "row9_unknown",
}

// level curves in table order, with their default offsets
var levelCurves = []struct {
	name   string
	offset uint32
}{
	{"stat_curve", defaultStatCurveOffset},
	{"hp_curve", defaultHPCurveOffset},
	{"linear_curve", defaultLinearOffset},
}

func init() {
	Register(ModuleClassStats, newClassStats)
}

// SecondaryGrowth holds the rows of the secondary growth table, one value per class
type SecondaryGrowth struct {
	Rows        [][]int `yaml:"rows"`
	Description string  `yaml:"description"`
}

// LevelCurve is a 16-bit value per level
type LevelCurve struct {
	Values      []int  `yaml:"values"`
	Description string `yaml:"description"`
}

// ClassTableOffsets overrides where the tables live in the executable file
type ClassTableOffsets struct {
	GrowthModifiers *common.Hex `yaml:"growth_modifiers"`
	SecondaryGrowth *common.Hex `yaml:"secondary_growth"`
	StatCurve       *common.Hex `yaml:"stat_curve"`
	HPCurve         *common.Hex `yaml:"hp_curve"`
	LinearCurve     *common.Hex `yaml:"linear_curve"`
}

// ClassStats is the descriptor of the class stats module.
// Offsets are executable file offsets, header included.
type ClassStats struct {
	Toggle          `yaml:",inline"`
	GrowthModifiers map[string][]int       `yaml:"growth_modifiers"`
	SecondaryGrowth *SecondaryGrowth       `yaml:"secondary_growth"`
	LevelCurves     map[string]*LevelCurve `yaml:"level_curves"`
	Offsets         ClassTableOffsets      `yaml:"offsets"`

	regions []classRegion
}

// classRegion is one contiguous run of table bytes the module owns
type classRegion struct {
	name   string
	offset uint32
	data   []byte
}

func newClassStats(doc *Document) (Module, error) {
	m := &ClassStats{}
	if err := decodeDescriptor(doc, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the module id
func (m *ClassStats) Name() string {
	return ModuleClassStats
}

func offsetOr(h *common.Hex, def uint32) uint32 {
	if h == nil {
		return def
	}
	return uint32(*h)
}

func classRow(name string, values []int) ([]byte, error) {
	if len(values) != classCount {
		return nil, common.ConfigError("%s has %d values, want one per class (%d)", name, len(values), classCount)
	}
	row := make([]byte, classCount)
	for i, v := range values {
		b, err := common.SafeIntToUint8(v)
		if err != nil {
			return nil, common.ConfigError("%s[%d]: %v", name, i, err)
		}
		row[i] = b
	}
	return row, nil
}

func (m *ClassStats) validate() error {
	if err := m.Toggle.validate(); err != nil {
		return err
	}

	m.regions = nil
	growth := offsetOr(m.Offsets.GrowthModifiers, defaultGrowthOffset)
	known := map[string]bool{}
	for i, name := range growthRows {
		known[name] = true
		values, ok := m.GrowthModifiers[name]
		if !ok {
			continue
		}
		row, err := classRow("growth_modifiers."+name, values)
		if err != nil {
			return err
		}
		m.regions = append(m.regions, classRegion{name: "growth " + name, offset: growth + uint32(i*classCount), data: row})
	}
	for name := range m.GrowthModifiers {
		if !known[name] {
			return common.ConfigError("unknown growth_modifiers row %q (known: %v)", name, growthRows)
		}
	}

	if s := m.SecondaryGrowth; s != nil {
		if len(s.Rows) > maxSecondaryRows {
			return common.ConfigError("secondary_growth has %d rows, the table holds %d", len(s.Rows), maxSecondaryRows)
		}
		base := offsetOr(m.Offsets.SecondaryGrowth, defaultSecondaryOffset)
		for i, values := range s.Rows {
			row, err := classRow("secondary_growth.rows["+strconv.Itoa(i)+"]", values)
			if err != nil {
				return err
			}
			m.regions = append(m.regions, classRegion{name: "secondary row " + strconv.Itoa(i), offset: base + uint32(i*classCount), data: row})
		}
	}

	curveOffsets := map[string]*common.Hex{
		"stat_curve":   m.Offsets.StatCurve,
		"hp_curve":     m.Offsets.HPCurve,
		"linear_curve": m.Offsets.LinearCurve,
	}
	for name := range m.LevelCurves {
		if _, ok := curveOffsets[name]; !ok {
			return common.ConfigError("unknown level curve %q", name)
		}
	}
	for _, c := range levelCurves {
		curve, ok := m.LevelCurves[c.name]
		if !ok {
			continue
		}
		if curve == nil || len(curve.Values) == 0 || len(curve.Values) > maxLevelCurveSteps {
			return common.ConfigError("level curve %s needs 1 to %d values", c.name, maxLevelCurveSteps)
		}
		data := make([]byte, 2*len(curve.Values))
		for i, v := range curve.Values {
			w, err := common.SafeIntToUint16(v)
			if err != nil {
				return common.ConfigError("level curve %s[%d]: %v", c.name, i, err)
			}
			binary.LittleEndian.PutUint16(data[2*i:], w)
		}
		m.regions = append(m.regions, classRegion{name: c.name, offset: offsetOr(curveOffsets[c.name], c.offset), data: data})
	}

	if len(m.regions) == 0 {
		return common.ConfigError("no class tables declared")
	}
	return m.checkOverlaps()
}

func (m *ClassStats) checkOverlaps() error {
	sorted := append([]classRegion(nil), m.regions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].offset < sorted[j].offset })
	for i := 1; i < len(sorted); i++ {
		prev := sorted[i-1]
		if uint64(prev.offset)+uint64(len(prev.data)) > uint64(sorted[i].offset) {
			return common.ConfigError("%s at 0x%08X overlaps %s at 0x%08X",
				prev.name, prev.offset, sorted[i].name, sorted[i].offset)
		}
	}
	return nil
}

// Apply writes every table region that differs, then reads them back
func (m *ClassStats) Apply(ctx *Context, rep *ModuleReport) error {
	exe, err := ctx.executable(m.Name())
	if err != nil {
		return err
	}

	current := make([][]byte, len(m.regions))
	for i, r := range m.regions {
		if current[i], err = exe.ReadFileBytes(r.offset, len(r.data)); err != nil {
			return err
		}
	}

	rep.found(len(m.regions))
	var written []int
	for i, r := range m.regions {
		if firstDifference(current[i], r.data) < 0 {
			common.LogDebug(common.DebugAlreadyPatched, r.offset)
			rep.skipped()
			continue
		}
		if err := exe.WriteFileBytes(r.offset, r.data); err != nil {
			return err
		}
		common.LogInfo(common.InfoClassTableWritten, r.name, len(r.data), r.offset)
		written = append(written, i)
		rep.patched()
	}

	for _, i := range written {
		r := m.regions[i]
		back, err := exe.ReadFileBytes(r.offset, len(r.data))
		if err != nil {
			return err
		}
		if j := firstDifference(back, r.data); j >= 0 {
			return common.NewError(common.KindVerificationFailed,
				"%s read back differs at byte %d", r.name, j).At(r.offset + uint32(j))
		}
	}
	return nil
}

// Verify checks every declared region byte for byte
func (m *ClassStats) Verify(ctx *Context) ([]VerifyResult, error) {
	exe, err := ctx.executable(m.Name())
	if err != nil {
		return nil, err
	}
	var results []VerifyResult
	for _, r := range m.regions {
		got, err := exe.ReadFileBytes(r.offset, len(r.data))
		if err != nil {
			return nil, err
		}
		if i := firstDifference(got, r.data); i >= 0 {
			results = append(results, fail(m.Name(), r.name, "file offset 0x%08X differs", r.offset+uint32(i)))
		} else {
			results = append(results, pass(m.Name(), r.name))
		}
	}
	return results, nil
}
