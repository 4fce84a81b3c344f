package patch

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/hansbonini/blazetools/pkg/common"
)

// ModuleTierThresholds rewrites the cumulative spell tier table of the executable
const ModuleTierThresholds = "tier_thresholds"

const (
	tiersPerList     = 5
	defaultListCount = 8
)

func init() {
	Register(ModuleTierThresholds, newTierThresholds)
}

// TierList is one spell list: five cumulative unlock counts
type TierList struct {
	Index       *int   `yaml:"index"`
	Name        string `yaml:"name"`
	Vanilla     []int  `yaml:"vanilla_thresholds"`
	Modded      []int  `yaml:"modded_thresholds"`
	TotalSpells int    `yaml:"total_spells"`
}

// TierThresholds is the descriptor of the tier thresholds module
type TierThresholds struct {
	Toggle    `yaml:",inline"`
	Address   common.Hex           `yaml:"address"`
	ListCount int                  `yaml:"list_count"`
	Lists     map[string]*TierList `yaml:"lists"`

	keys  []string // list keys ordered by index
	index map[string]int
}

func newTierThresholds(doc *Document) (Module, error) {
	m := &TierThresholds{}
	if err := decodeDescriptor(doc, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the module id
func (m *TierThresholds) Name() string {
	return ModuleTierThresholds
}

// TableSize is the size in bytes of the whole table
func (m *TierThresholds) TableSize() int {
	return m.ListCount * tiersPerList
}

// listIndex reads the index from the descriptor or from a "3_herbs" style key
func listIndex(key string, l *TierList) (int, error) {
	if l.Index != nil {
		return *l.Index, nil
	}
	prefix := key
	if i := strings.IndexByte(key, '_'); i >= 0 {
		prefix = key[:i]
	}
	n, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, common.ConfigError("list %q has no index and its name does not start with one", key)
	}
	return n, nil
}

func checkThresholds(key, which string, values []int) error {
	if len(values) != tiersPerList {
		return common.ConfigError("list %q: %s has %d values, want %d", key, which, len(values), tiersPerList)
	}
	for i, v := range values {
		if _, err := common.SafeIntToUint8(v); err != nil {
			return common.ConfigError("list %q: %s[%d]: %v", key, which, i, err)
		}
	}
	return nil
}

func (m *TierThresholds) validate() error {
	if err := m.Toggle.validate(); err != nil {
		return err
	}
	if m.Address == 0 {
		return common.ConfigError("address is required")
	}
	if m.ListCount == 0 {
		m.ListCount = defaultListCount
	}
	if m.ListCount < 0 {
		return common.ConfigError("list_count must be positive")
	}
	if len(m.Lists) == 0 {
		return common.ConfigError("no lists declared")
	}

	m.index = make(map[string]int, len(m.Lists))
	used := map[int]string{}
	for key, l := range m.Lists {
		idx, err := listIndex(key, l)
		if err != nil {
			return err
		}
		if idx < 0 || idx >= m.ListCount {
			return common.ConfigError("list %q: index %d outside the %d list(s) of the table", key, idx, m.ListCount)
		}
		if other, dup := used[idx]; dup {
			return common.ConfigError("lists %q and %q share index %d", other, key, idx)
		}
		used[idx] = key
		m.index[key] = idx

		if err := checkThresholds(key, "modded_thresholds", l.Modded); err != nil {
			return err
		}
		if len(l.Vanilla) > 0 {
			if err := checkThresholds(key, "vanilla_thresholds", l.Vanilla); err != nil {
				return err
			}
		}
		for i := 1; i < len(l.Modded); i++ {
			if l.Modded[i] < l.Modded[i-1] {
				return common.ConfigError("list %q: thresholds must be cumulative (tier %d < tier %d)", key, i+1, i)
			}
		}
	}

	m.keys = make([]string, 0, len(m.Lists))
	for key := range m.Lists {
		m.keys = append(m.keys, key)
	}
	sort.Slice(m.keys, func(i, j int) bool { return m.index[m.keys[i]] < m.index[m.keys[j]] })
	return nil
}

func thresholdBytes(values []int) []byte {
	out := make([]byte, len(values))
	for i, v := range values {
		out[i] = byte(v)
	}
	return out
}

// expected returns the table as it must read after the patch
func (m *TierThresholds) expected(current []byte) []byte {
	table := append([]byte(nil), current...)
	for _, key := range m.keys {
		copy(table[m.index[key]*tiersPerList:], thresholdBytes(m.Lists[key].Modded))
	}
	return table
}

// Apply substitutes every declared list, writes the table back and re-reads it
func (m *TierThresholds) Apply(ctx *Context, rep *ModuleReport) error {
	exe, err := ctx.executable(m.Name())
	if err != nil {
		return err
	}
	addr := uint32(m.Address)
	current, err := exe.ReadAt(addr, m.TableSize())
	if err != nil {
		return err
	}

	rep.found(len(m.keys))
	changed := 0
	for _, key := range m.keys {
		l := m.Lists[key]
		start := m.index[key] * tiersPerList
		have := current[start : start+tiersPerList]
		want := thresholdBytes(l.Modded)

		if l.TotalSpells > 0 && l.Modded[tiersPerList-1] > l.TotalSpells {
			rep.Warn(common.NewWarning(common.KindConfiguration, common.WarnThresholdTotal,
				key, l.Modded[tiersPerList-1], l.TotalSpells))
		}
		if bytes.Equal(have, want) {
			rep.skipped()
			continue
		}
		if len(l.Vanilla) > 0 && !bytes.Equal(have, thresholdBytes(l.Vanilla)) {
			rep.Warn(common.NewWarning(common.KindLayoutMismatch, common.WarnThresholdUnknown,
				key, have).At(addr + uint32(start)))
		}
		common.LogInfo(common.InfoThresholdChanged, key, have, want)
		changed++
		rep.patched()
	}
	if changed == 0 {
		return nil
	}

	table := m.expected(current)
	if err := exe.WriteAt(addr, table); err != nil {
		return err
	}
	back, err := exe.ReadAt(addr, len(table))
	if err != nil {
		return err
	}
	if i := firstDifference(back, table); i >= 0 {
		return common.NewError(common.KindVerificationFailed,
			"tier table read back differs at byte %d", i).At(addr + uint32(i))
	}
	return nil
}

// Verify checks every declared list against its modded thresholds
func (m *TierThresholds) Verify(ctx *Context) ([]VerifyResult, error) {
	exe, err := ctx.executable(m.Name())
	if err != nil {
		return nil, err
	}
	addr := uint32(m.Address)
	table, err := exe.ReadAt(addr, m.TableSize())
	if err != nil {
		return nil, err
	}
	var results []VerifyResult
	for _, key := range m.keys {
		start := m.index[key] * tiersPerList
		have := table[start : start+tiersPerList]
		check := key + " thresholds"
		if bytes.Equal(have, thresholdBytes(m.Lists[key].Modded)) {
			results = append(results, pass(m.Name(), check))
		} else {
			results = append(results, fail(m.Name(), check, "0x%08X holds %v, want %v", addr+uint32(start), have, m.Lists[key].Modded))
		}
	}
	return results, nil
}
