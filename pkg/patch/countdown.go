package patch

import (
	"encoding/binary"
	"sort"

	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
)

// ModuleCountdown freezes or retimes the countdown kept at entity+0x14 by the
// dungeon overlays stored in the archive
const ModuleCountdown = "countdown"

// countdown modes
const (
	CountdownFreeze    = "freeze"
	CountdownConfigure = "configure"
)

const (
	nopWord = 0x00000000

	defaultOverlayStart  = 0x00900000
	defaultOverlayEnd    = 0x02D00000
	defaultFPS           = 50
	defaultInitialValue  = 1000
	defaultReloadOffset  = 0x12
	countdownInfinite    = 0xFFFF
	opcodeAddiuZeroMask  = 0xFFE0FFFF // opcode, rs and immediate of addiu
	opcodeAddiuZero      = 0x24000000 // addiu rt, $zero, imm
	opcodeStoreHalfMask  = 0xFC1FFFFF // opcode, rt and offset of sh
	opcodeStoreHalf      = 0xA4000000
	instructionRtShift   = 16
	instructionRtBits    = 0x1F
	instructionImmediate = 0xFFFF
)

func init() {
	Register(ModuleCountdown, newCountdown)
}

// PatternWord matches one instruction: word&Mask == Value, searched up to
// Window instructions away from its anchor
type PatternWord struct {
	Mask   common.Hex `yaml:"mask"`
	Value  common.Hex `yaml:"value"`
	Window int        `yaml:"window"`
}

func (p *PatternWord) match(w uint32) bool {
	return w&uint32(p.Mask) == uint32(p.Value)
}

// CountdownPattern is the instruction context of one decrement site
type CountdownPattern struct {
	Load      *PatternWord `yaml:"load"`      // lh/lhu 0x14(base), above the decrement
	Decrement *PatternWord `yaml:"decrement"` // addiu rt, rs, -1
	Store     *PatternWord `yaml:"store"`     // sh rt, 0x14(base), after the decrement
	Extend    *PatternWord `yaml:"extend"`    // sll by 16, after the store
}

// DefaultCountdownPattern returns the context of the vanilla decrement sites
func DefaultCountdownPattern() CountdownPattern {
	return CountdownPattern{
		Load:      &PatternWord{Mask: 0xEC00FFFF, Value: 0x84000014, Window: 4},
		Decrement: &PatternWord{Mask: 0xFC00FFFF, Value: 0x2400FFFF},
		Store:     &PatternWord{Mask: 0xFC00FFFF, Value: 0xA4000014, Window: 2},
		Extend:    &PatternWord{Mask: 0xFC0007FF, Value: 0x00000400, Window: 4},
	}
}

// Countdown is the descriptor of the countdown module
type Countdown struct {
	Toggle          `yaml:",inline"`
	Mode            string            `yaml:"mode"`
	RegionStart     *common.Hex       `yaml:"region_start"`
	RegionEnd       *common.Hex       `yaml:"region_end"`
	ExpectedMin     *int              `yaml:"expected_min"`
	ExpectedMax     *int              `yaml:"expected_max"`
	ExpectedFinal   *int              `yaml:"expected_final"`
	Pattern         *CountdownPattern `yaml:"pattern"`
	DurationSeconds *float64          `yaml:"duration_seconds"`
	FPS             int               `yaml:"frames_per_second"`
	InitialValue    *common.Hex       `yaml:"initial_value"`
	ReloadOffset    *common.Hex       `yaml:"reload_offset"`

	start, end uint32
	pattern    CountdownPattern
	newValue   uint16
}

// countdownSite is one decrement, or one countdown initialisation in configure mode
type countdownSite struct {
	offset  uint32 // the rewritten instruction
	anchor  uint32 // the store that follows it
	patched bool
}

func newCountdown(doc *Document) (Module, error) {
	m := &Countdown{}
	if err := decodeDescriptor(doc, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the module id
func (m *Countdown) Name() string {
	return ModuleCountdown
}

func (m *Countdown) validate() error {
	if err := m.Toggle.validate(); err != nil {
		return err
	}
	m.start, m.end = defaultOverlayStart, defaultOverlayEnd
	if m.RegionStart != nil {
		m.start = uint32(*m.RegionStart)
	}
	if m.RegionEnd != nil {
		m.end = uint32(*m.RegionEnd)
	}
	if m.start >= m.end {
		return common.ConfigError("region [0x%08X, 0x%08X) is empty", m.start, m.end)
	}
	if m.start%4 != 0 {
		return common.ConfigError("region_start 0x%08X is not word aligned", m.start)
	}
	if m.ExpectedMin != nil && m.ExpectedMax != nil && *m.ExpectedMin > *m.ExpectedMax {
		return common.ConfigError("expected_min %d is above expected_max %d", *m.ExpectedMin, *m.ExpectedMax)
	}

	m.pattern = DefaultCountdownPattern()
	if p := m.Pattern; p != nil {
		for _, o := range []struct {
			set *PatternWord
			dst **PatternWord
		}{{p.Load, &m.pattern.Load}, {p.Decrement, &m.pattern.Decrement}, {p.Store, &m.pattern.Store}, {p.Extend, &m.pattern.Extend}} {
			if o.set != nil {
				*o.dst = o.set
			}
		}
	}
	for _, w := range []*PatternWord{m.pattern.Load, m.pattern.Store, m.pattern.Extend} {
		if w.Window <= 0 {
			return common.ConfigError("pattern windows must be positive")
		}
	}

	switch m.Mode {
	case CountdownFreeze:
		if m.pattern.Decrement.match(nopWord) {
			return common.ConfigError("decrement pattern also matches a nop")
		}
	case CountdownConfigure:
		if m.DurationSeconds == nil {
			return common.ConfigError("configure mode needs duration_seconds")
		}
		if *m.DurationSeconds < 0 {
			return common.ConfigError("duration_seconds must not be negative")
		}
		if m.FPS == 0 {
			m.FPS = defaultFPS
		}
		if m.FPS < 0 {
			return common.ConfigError("frames_per_second must be positive")
		}
		if m.InitialValue == nil {
			v := common.Hex(defaultInitialValue)
			m.InitialValue = &v
		}
		if *m.InitialValue > instructionImmediate {
			return common.ConfigError("initial_value %v does not fit 16 bits", *m.InitialValue)
		}
		if m.ReloadOffset == nil {
			v := common.Hex(defaultReloadOffset)
			m.ReloadOffset = &v
		}
		m.newValue = CountdownValue(*m.DurationSeconds, m.FPS)
	default:
		return common.ConfigError("unknown mode %q (want %s or %s)", m.Mode, CountdownFreeze, CountdownConfigure)
	}
	return nil
}

// CountdownValue converts a duration into countdown ticks; zero means infinite
func CountdownValue(seconds float64, fps int) uint16 {
	if seconds == 0 {
		return countdownInfinite
	}
	return common.ClampToUint16(int64(seconds * float64(fps)))
}

func wordAt(data []byte, i int) (uint32, bool) {
	if i < 0 || i+4 > len(data) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data[i:]), true
}

// seek returns the index of the first word within window instructions of
// from, stepping by dir, that matches p
func seek(data []byte, from, dir int, p *PatternWord) int {
	for j := 1; j <= p.Window; j++ {
		i := from + dir*4*j
		w, ok := wordAt(data, i)
		if !ok {
			return -1
		}
		if p.match(w) {
			return i
		}
	}
	return -1
}

// scanDecrements finds decrement sites in data, whose first byte is at base.
// A nop with the full context is a site that was already frozen; a frozen
// candidate sharing its store with an unfrozen one is the load delay slot and
// is dropped, and of several frozen candidates only the one nearest the store
// is kept.
func scanDecrements(data []byte, base uint32, p CountdownPattern) []countdownSite {
	var found []countdownSite
	for i := 0; i+4 <= len(data); i += 4 {
		w, _ := wordAt(data, i)
		patched := false
		switch {
		case p.Decrement.match(w):
		case w == nopWord:
			patched = true
		default:
			continue
		}
		store := seek(data, i, 1, p.Store)
		if store < 0 {
			continue
		}
		if seek(data, i, -1, p.Load) < 0 || seek(data, store, 1, p.Extend) < 0 {
			continue
		}
		found = append(found, countdownSite{offset: base + uint32(i), anchor: base + uint32(store), patched: patched})
	}

	byStore := map[uint32][]countdownSite{}
	for _, s := range found {
		byStore[s.anchor] = append(byStore[s.anchor], s)
	}
	var sites []countdownSite
	for _, group := range byStore {
		var originals []countdownSite
		var nearest *countdownSite
		for i := range group {
			s := group[i]
			if !s.patched {
				originals = append(originals, s)
			} else if nearest == nil || s.offset > nearest.offset {
				nearest = &group[i]
			}
		}
		if len(originals) > 0 {
			sites = append(sites, originals...)
		} else if nearest != nil {
			sites = append(sites, *nearest)
		}
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].offset < sites[j].offset })
	return sites
}

// scanInits finds "addiu rt, $zero, imm; sh rt, reload(base)" pairs whose
// immediate is one of values; sites already holding patchedValue are marked
func scanInits(data []byte, base uint32, reload uint32, values []uint16, patchedValue uint16) []countdownSite {
	var sites []countdownSite
	for i := 0; i+8 <= len(data); i += 4 {
		w, _ := wordAt(data, i)
		if w&opcodeAddiuZeroMask&^instructionImmediate != opcodeAddiuZero {
			continue
		}
		imm := uint16(w & instructionImmediate)
		wanted := false
		for _, v := range values {
			if imm == v {
				wanted = true
			}
		}
		if !wanted {
			continue
		}
		rt := (w >> instructionRtShift) & instructionRtBits
		next, _ := wordAt(data, i+4)
		if next&opcodeStoreHalfMask != opcodeStoreHalf|rt<<instructionRtShift|reload {
			continue
		}
		sites = append(sites, countdownSite{offset: base + uint32(i), anchor: base + uint32(i) + 4, patched: imm == patchedValue})
	}
	return sites
}

func (m *Countdown) region(arc *psx.ArchiveView) ([]byte, error) {
	end := m.end
	if end > arc.Len() {
		end = arc.Len()
	}
	if m.start >= end {
		return nil, common.NewError(common.KindOutOfFile,
			"region [0x%08X, 0x%08X) starts past the archive end 0x%X", m.start, m.end, arc.Len()).At(m.start)
	}
	return arc.Snapshot(m.start, end)
}

func (m *Countdown) scan(data []byte) []countdownSite {
	if m.Mode == CountdownConfigure {
		initial := uint16(*m.InitialValue)
		return scanInits(data, m.start, uint32(*m.ReloadOffset), []uint16{initial, m.newValue}, m.newValue)
	}
	return scanDecrements(data, m.start, m.pattern)
}

func countSites(sites []countdownSite) (original, patched int) {
	for _, s := range sites {
		if s.patched {
			patched++
		} else {
			original++
		}
	}
	return original, patched
}

// checkCount applies the count guards; only the upper bound is fatal
func (m *Countdown) checkCount(found int, rep *ModuleReport) error {
	if m.ExpectedMax != nil && found > *m.ExpectedMax {
		return common.NewError(common.KindExpectedCount,
			"%d site(s) found, expected at most %d", found, *m.ExpectedMax).At(m.start, m.end)
	}
	if m.ExpectedMin != nil && found < *m.ExpectedMin {
		rep.Warn(common.NewWarning(common.KindExpectedCount, common.WarnCountBelowMin, found, *m.ExpectedMin).At(m.start, m.end))
	}
	return nil
}

// Apply scans the overlay region and rewrites every site that still needs it
func (m *Countdown) Apply(ctx *Context, rep *ModuleReport) error {
	arc, err := ctx.archive(m.Name())
	if err != nil {
		return err
	}
	data, err := m.region(arc)
	if err != nil {
		return err
	}

	sites := m.scan(data)
	original, patched := countSites(sites)
	common.LogInfo(common.InfoCountdownSites, m.start, m.end, original, patched)
	rep.found(len(sites))
	if err := m.checkCount(len(sites), rep); err != nil {
		return err
	}
	if len(sites) == 0 {
		if m.Mode == CountdownConfigure {
			return common.NewError(common.KindUnsupported,
				"no countdown initialisation (addiu rt, $zero, %d; sh rt, 0x%X(base)) in region", uint32(*m.InitialValue), uint32(*m.ReloadOffset)).At(m.start, m.end)
		}
		if m.ExpectedMin == nil {
			rep.Warn(common.NewWarning(common.KindSiteNotFound, "no decrement site in region").At(m.start, m.end))
		}
		return nil
	}

	for _, s := range sites {
		if s.patched {
			common.LogDebug(common.DebugAlreadyPatched, s.offset)
			rep.skipped()
			continue
		}
		old := binary.LittleEndian.Uint32(data[s.offset-m.start:])
		word := uint32(nopWord)
		if m.Mode == CountdownConfigure {
			word = old&^instructionImmediate | uint32(m.newValue)
		}
		if err := arc.WriteU32(s.offset, word); err != nil {
			return err
		}
		common.LogDebug(common.DebugWordPatched, s.offset, old, word)
		rep.patched()
	}
	return nil
}

// Verify checks that no unpatched site is left and, when expected_final is
// given, that exactly that many patched sites exist
func (m *Countdown) Verify(ctx *Context) ([]VerifyResult, error) {
	arc, err := ctx.archive(m.Name())
	if err != nil {
		return nil, err
	}
	data, err := m.region(arc)
	if err != nil {
		return nil, err
	}
	original, patched := countSites(m.scan(data))

	var results []VerifyResult
	if original == 0 {
		results = append(results, pass(m.Name(), "no original pattern left"))
	} else {
		results = append(results, fail(m.Name(), "no original pattern left", "%d original site(s) remain", original))
	}
	if m.ExpectedFinal != nil {
		check := "patched pattern count"
		if patched == *m.ExpectedFinal {
			results = append(results, pass(m.Name(), check))
		} else {
			results = append(results, fail(m.Name(), check, "%d patched site(s), expected %d", patched, *m.ExpectedFinal))
		}
	}
	return results, nil
}
