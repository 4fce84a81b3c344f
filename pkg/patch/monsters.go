package patch

import (
	"bytes"
	"sort"

	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
)

// ModuleMonsterStats rewrites the stat block that follows every copy of a monster's name
const ModuleMonsterStats = "monster_stats"

// monster records open with a NUL-padded name
const monsterNameSize = 16

func init() {
	Register(ModuleMonsterStats, newMonsterStats)
}

// MonsterStats is the descriptor of the monster stats module.
// Each stat is a 16-bit little-endian field; Schema fixes their order.
type MonsterStats struct {
	Toggle   `yaml:",inline"`
	Schema   []string                  `yaml:"schema"`
	Monsters map[string]map[string]int `yaml:"monsters"`
	Encoding string                    `yaml:"encoding"`

	records []monsterRecord
}

type monsterRecord struct {
	name   string
	anchor []byte // name followed by NUL
	window []byte // the full name field
	stats  []byte // packed fields
}

// monsterSite is one validated copy of a record in the archive
type monsterSite struct {
	offset uint32
	record *monsterRecord
}

func newMonsterStats(doc *Document) (Module, error) {
	m := &MonsterStats{}
	if err := decodeDescriptor(doc, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the module id
func (m *MonsterStats) Name() string {
	return ModuleMonsterStats
}

// RecordSize is the size of one record: the name field plus the stats
func (m *MonsterStats) RecordSize() int {
	return monsterNameSize + 2*len(m.Schema)
}

func (m *MonsterStats) validate() error {
	if err := m.Toggle.validate(); err != nil {
		return err
	}
	if len(m.Schema) == 0 {
		return common.ConfigError("schema lists no fields")
	}
	if !common.ValidEncoding(m.Encoding) {
		return common.ConfigError("unknown encoding %q", m.Encoding)
	}
	index := make(map[string]int, len(m.Schema))
	for i, field := range m.Schema {
		if _, dup := index[field]; dup {
			return common.ConfigError("schema field %q listed twice", field)
		}
		index[field] = i
	}
	if len(m.Monsters) == 0 {
		return common.ConfigError("no monsters declared")
	}

	names := make([]string, 0, len(m.Monsters))
	for name := range m.Monsters {
		names = append(names, name)
	}
	sort.Strings(names)

	m.records = make([]monsterRecord, 0, len(names))
	for _, name := range names {
		fields := m.Monsters[name]
		encoded, err := common.EncodeText(name, m.Encoding)
		if err != nil {
			return common.ConfigError("monster %q: %v", name, err)
		}
		if len(encoded) == 0 || len(encoded) >= monsterNameSize {
			return common.ConfigError("monster %q: name must be 1 to %d bytes", name, monsterNameSize-1)
		}
		if len(fields) != len(m.Schema) {
			return common.ConfigError("monster %q gives %d fields, schema has %d", name, len(fields), len(m.Schema))
		}

		stats := make([]byte, 2*len(m.Schema))
		for field, value := range fields {
			i, ok := index[field]
			if !ok {
				return common.ConfigError("monster %q: field %q is not in the schema", name, field)
			}
			v, err := common.StatToUint16(value)
			if err != nil {
				return common.ConfigError("monster %q field %q: %v", name, field, err)
			}
			stats[2*i] = byte(v)
			stats[2*i+1] = byte(v >> 8)
		}

		window := make([]byte, monsterNameSize)
		copy(window, encoded)
		m.records = append(m.records, monsterRecord{
			name:   name,
			anchor: append(append([]byte(nil), encoded...), 0),
			window: window,
			stats:  stats,
		})
	}
	return nil
}

// isNameByte reports whether b can continue a longer monster name
func isNameByte(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '-'
}

// locate finds every valid copy of rec in an archive snapshot
func (m *MonsterStats) locate(data []byte, rec *monsterRecord) ([]uint32, error) {
	hits, err := psx.FindPattern(data, rec.anchor, nil, 1, 0)
	if err != nil {
		return nil, err
	}
	size := m.RecordSize()
	var out []uint32
	for _, h := range hits {
		switch {
		case h > 0 && isNameByte(data[h-1]):
			common.LogDebug(common.DebugNameCandidate, rec.name, h, "part of a longer name")
		case h+size > len(data):
			common.LogDebug(common.DebugNameCandidate, rec.name, h, "record runs past the archive end")
		case !bytes.Equal(data[h:h+monsterNameSize], rec.window):
			common.LogDebug(common.DebugNameCandidate, rec.name, h, "name field is not NUL padded")
		default:
			out = append(out, uint32(h))
		}
	}
	return out, nil
}

// Apply writes the stats of every copy of every declared monster
func (m *MonsterStats) Apply(ctx *Context, rep *ModuleReport) error {
	arc, err := ctx.archive(m.Name())
	if err != nil {
		return err
	}
	data, err := arc.Snapshot(0, arc.Len())
	if err != nil {
		return err
	}

	var sites []monsterSite
	for i := range m.records {
		rec := &m.records[i]
		offsets, err := m.locate(data, rec)
		if err != nil {
			return err
		}
		if len(offsets) == 0 {
			rep.Warn(common.NewWarning(common.KindSiteNotFound, common.WarnRecordNotFound, rec.name))
			continue
		}
		common.LogInfo(common.InfoMonsterPatched, rec.name, len(offsets))
		for _, off := range offsets {
			sites = append(sites, monsterSite{offset: off, record: rec})
		}
	}

	rep.found(len(sites))
	for _, s := range sites {
		statsOff := s.offset + monsterNameSize
		current := data[statsOff : int(statsOff)+len(s.record.stats)]
		if bytes.Equal(current, s.record.stats) {
			common.LogDebug(common.DebugAlreadyPatched, s.offset)
			rep.skipped()
			continue
		}
		if err := arc.WriteBytes(statsOff, s.record.stats); err != nil {
			return err
		}
		rep.patched()
	}
	return nil
}

// Verify checks that every copy of every monster carries the declared stats
func (m *MonsterStats) Verify(ctx *Context) ([]VerifyResult, error) {
	arc, err := ctx.archive(m.Name())
	if err != nil {
		return nil, err
	}
	data, err := arc.Snapshot(0, arc.Len())
	if err != nil {
		return nil, err
	}

	var results []VerifyResult
	for i := range m.records {
		rec := &m.records[i]
		check := rec.name + " stats"
		offsets, err := m.locate(data, rec)
		if err != nil {
			return nil, err
		}
		if len(offsets) == 0 {
			continue
		}
		ok := true
		for _, off := range offsets {
			start := int(off) + monsterNameSize
			if !bytes.Equal(data[start:start+len(rec.stats)], rec.stats) {
				results = append(results, fail(m.Name(), check, "record at 0x%08X differs", off))
				ok = false
				break
			}
		}
		if ok {
			results = append(results, pass(m.Name(), check))
		}
	}
	return results, nil
}
