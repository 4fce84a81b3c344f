package patch

import (
	"bytes"
	"sort"

	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
)

// ModuleItemDescriptions rewrites item description strings at declared offsets
const ModuleItemDescriptions = "item_descriptions"

// item entries keep their description this far after the name
const defaultItemDescriptionOffset = 0x41

// storage shapes found at an item offset
const (
	itemFormatDirect = "direct_text" // "<name>/<description>" at the offset
	itemFormatEntry  = "item_entry"  // name at the offset, description further on
)

func init() {
	Register(ModuleItemDescriptions, newItemDescriptions)
}

// ItemText describes one item's new description and where its copies live
type ItemText struct {
	Offsets        []common.Hex `yaml:"offsets"`
	NewDescription string       `yaml:"new_description"`
	CurrentChars   int          `yaml:"current_chars"`
	MaxChars       int          `yaml:"max_chars"`
}

// ItemDescriptions is the descriptor of the item descriptions module
type ItemDescriptions struct {
	Toggle            `yaml:",inline"`
	Items             map[string]ItemText `yaml:"items"`
	Encoding          string              `yaml:"encoding"`
	DescriptionOffset *common.Hex         `yaml:"description_offset"`

	names []string
	text  map[string]encodedItem
}

type encodedItem struct {
	name         []byte
	description  []byte
	currentChars int
	maxChars     int
	offsets      []uint32
}

// itemWrite is one resolved site with the bytes it must hold
type itemWrite struct {
	item   string
	offset uint32
	dest   uint32
	format string
	field  []byte
}

func newItemDescriptions(doc *Document) (Module, error) {
	m := &ItemDescriptions{}
	if err := decodeDescriptor(doc, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the module id
func (m *ItemDescriptions) Name() string {
	return ModuleItemDescriptions
}

func (m *ItemDescriptions) descriptionOffset() uint32 {
	if m.DescriptionOffset == nil {
		return defaultItemDescriptionOffset
	}
	return uint32(*m.DescriptionOffset)
}

func (m *ItemDescriptions) validate() error {
	if err := m.Toggle.validate(); err != nil {
		return err
	}
	if !common.ValidEncoding(m.Encoding) {
		return common.ConfigError("unknown encoding %q", m.Encoding)
	}
	if len(m.Items) == 0 {
		return common.ConfigError("no items declared")
	}

	m.names = make([]string, 0, len(m.Items))
	for name := range m.Items {
		m.names = append(m.names, name)
	}
	sort.Strings(m.names)

	m.text = make(map[string]encodedItem, len(m.Items))
	for _, name := range m.names {
		it := m.Items[name]
		if len(it.Offsets) == 0 {
			return common.ConfigError("item %q has no offsets", name)
		}
		if it.MaxChars <= 0 {
			return common.ConfigError("item %q: max_chars must be positive", name)
		}
		if it.CurrentChars < 0 || it.CurrentChars > it.MaxChars {
			return common.ConfigError("item %q: current_chars %d outside 0..%d", name, it.CurrentChars, it.MaxChars)
		}
		encName, err := common.EncodeText(name, m.Encoding)
		if err != nil || len(encName) == 0 {
			return common.ConfigError("item %q: invalid name: %v", name, err)
		}
		desc, err := common.EncodeText(it.NewDescription, m.Encoding)
		if err != nil {
			return common.ConfigError("item %q: %v", name, err)
		}
		if len(desc) > it.MaxChars {
			return common.NewError(common.KindAsciiTooLong,
				"item %q: new_description is %d characters, max_chars is %d", name, len(desc), it.MaxChars)
		}
		offsets := make([]uint32, len(it.Offsets))
		for i, off := range it.Offsets {
			offsets[i] = uint32(off)
		}
		m.text[name] = encodedItem{
			name:         encName,
			description:  desc,
			currentChars: it.CurrentChars,
			maxChars:     it.MaxChars,
			offsets:      offsets,
		}
	}
	return nil
}

// hasPrefix reports whether the archive holds want at off
func hasPrefix(arc *psx.ArchiveView, off uint32, want []byte) bool {
	if uint64(off)+uint64(len(want)) > uint64(arc.Len()) {
		return false
	}
	got, err := arc.ReadBytes(off, len(want))
	return err == nil && bytes.Equal(got, want)
}

// resolve detects the storage shape at every offset and builds the field to write
func (m *ItemDescriptions) resolve(arc *psx.ArchiveView, rep *ModuleReport) []itemWrite {
	var writes []itemWrite
	for _, name := range m.names {
		it := m.text[name]
		prefix := append(append([]byte(nil), it.name...), '/')
		entryAnchor := append(append([]byte(nil), it.name...), 0)

		for _, off := range it.offsets {
			w := itemWrite{item: name, offset: off}
			var full []byte
			switch {
			case hasPrefix(arc, off, prefix):
				w.format = itemFormatDirect
				w.dest = off
				full = append(append([]byte(nil), prefix...), it.description...)
			case hasPrefix(arc, off, entryAnchor):
				w.format = itemFormatEntry
				w.dest = off + m.descriptionOffset()
				if hasPrefix(arc, w.dest, prefix) {
					full = append(append([]byte(nil), prefix...), it.description...)
				} else {
					full = append([]byte(nil), it.description...)
				}
			default:
				if rep != nil {
					rep.Warn(common.NewWarning(common.KindSiteNotFound, common.WarnItemOffsetSkip, name, off).At(off))
				}
				continue
			}
			common.LogDebug(common.DebugItemFormat, name, off, w.format)

			if len(full) > it.maxChars {
				if rep != nil {
					rep.Warn(common.NewWarning(common.KindAsciiTooLong, common.WarnNameTruncated, name, it.maxChars).At(off))
				}
				full = full[:it.maxChars]
			}
			size := it.maxChars
			if len(full) == it.maxChars {
				size++
			}
			w.field = make([]byte, size)
			copy(w.field, full)
			writes = append(writes, w)
		}
	}
	return writes
}

// Apply writes every description copy that is not already up to date
func (m *ItemDescriptions) Apply(ctx *Context, rep *ModuleReport) error {
	arc, err := ctx.archive(m.Name())
	if err != nil {
		return err
	}

	// current_chars is optional bookkeeping; zero means not recorded
	for _, name := range m.names {
		it := m.text[name]
		if it.currentChars != 0 && it.currentChars != len(it.description) {
			rep.Warn(common.NewWarning(common.KindConfiguration, common.WarnCharCountStale,
				name, it.currentChars, len(it.description)))
		}
	}

	writes := m.resolve(arc, rep)
	rep.found(len(writes))
	for _, w := range writes {
		if _, err := arc.File().Spans(w.dest, len(w.field)); err != nil {
			return err
		}
	}

	perItem := map[string]int{}
	for _, w := range writes {
		if hasPrefix(arc, w.dest, w.field) {
			common.LogDebug(common.DebugAlreadyPatched, w.dest)
			rep.skipped()
			continue
		}
		if common.VerboseMode {
			if have, err := arc.ReadBytes(w.dest, len(w.field)); err == nil {
				common.LogDebug(common.DebugTextReplaced, w.dest,
					common.DecodeText(have, m.Encoding), common.DecodeText(w.field, m.Encoding))
			}
		}
		if err := arc.WriteBytes(w.dest, w.field); err != nil {
			return err
		}
		perItem[w.item]++
		rep.patched()
	}
	for _, name := range m.names {
		if n := perItem[name]; n > 0 {
			common.LogInfo(common.InfoItemPatched, name, n, len(m.text[name].offsets))
		}
	}
	return nil
}

// Verify checks the description field at every resolvable offset
func (m *ItemDescriptions) Verify(ctx *Context) ([]VerifyResult, error) {
	arc, err := ctx.archive(m.Name())
	if err != nil {
		return nil, err
	}
	failed := map[string]uint32{}
	seen := map[string]bool{}
	for _, w := range m.resolve(arc, nil) {
		seen[w.item] = true
		if _, bad := failed[w.item]; !bad && !hasPrefix(arc, w.dest, w.field) {
			failed[w.item] = w.offset
		}
	}

	var results []VerifyResult
	for _, name := range m.names {
		if !seen[name] {
			continue
		}
		check := name + " description"
		if off, bad := failed[name]; bad {
			results = append(results, fail(m.Name(), check, "copy at 0x%08X differs", off))
		} else {
			results = append(results, pass(m.Name(), check))
		}
	}
	return results, nil
}
