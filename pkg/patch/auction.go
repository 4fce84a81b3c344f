package patch

import (
	"encoding/binary"
	"sort"

	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
)

// ModuleAuctionPrices rewrites the base auction price of item records
const ModuleAuctionPrices = "auction_prices"

const (
	itemNameSize       = 16
	defaultPriceOffset = 0x88
)

// regions holding spell and UI name lists rather than item records
var defaultExcludedRanges = [][2]common.Hex{
	{0x00908000, 0x00910000},
	{0x0090A000, 0x0090C000},
}

func init() {
	Register(ModuleAuctionPrices, newAuctionPrices)
}

// AuctionPrices is the descriptor of the auction prices module
type AuctionPrices struct {
	Toggle         `yaml:",inline"`
	Items          []string        `yaml:"items"`
	PriceOffset    *common.Hex     `yaml:"price_offset"`
	Price          int             `yaml:"price"`
	ExcludedRanges [][2]common.Hex `yaml:"excluded_ranges"`
	Encoding       string          `yaml:"encoding"`

	names    []string
	patterns map[string][]byte
	price    uint16
}

func newAuctionPrices(doc *Document) (Module, error) {
	m := &AuctionPrices{}
	if err := decodeDescriptor(doc, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Name returns the module id
func (m *AuctionPrices) Name() string {
	return ModuleAuctionPrices
}

func (m *AuctionPrices) priceOffset() uint32 {
	if m.PriceOffset == nil {
		return defaultPriceOffset
	}
	return uint32(*m.PriceOffset)
}

func (m *AuctionPrices) validate() error {
	if err := m.Toggle.validate(); err != nil {
		return err
	}
	if !common.ValidEncoding(m.Encoding) {
		return common.ConfigError("unknown encoding %q", m.Encoding)
	}
	if len(m.Items) == 0 {
		return common.ConfigError("no items declared")
	}
	price, err := common.SafeIntToUint16(m.Price)
	if err != nil {
		return common.ConfigError("price: %v", err)
	}
	m.price = price
	if m.ExcludedRanges == nil {
		m.ExcludedRanges = defaultExcludedRanges
	}
	for i, r := range m.ExcludedRanges {
		if r[0] >= r[1] {
			return common.ConfigError("excluded_ranges[%d] [%v, %v) is empty", i, r[0], r[1])
		}
	}

	m.patterns = map[string][]byte{}
	for _, name := range m.Items {
		if _, dup := m.patterns[name]; dup {
			continue
		}
		encoded, err := common.EncodeText(name, m.Encoding)
		if err != nil || len(encoded) == 0 {
			return common.ConfigError("item %q: invalid name: %v", name, err)
		}
		// names of 16 bytes or more fill the field without a terminator
		pattern := make([]byte, itemNameSize)
		copy(pattern, encoded)
		m.patterns[name] = pattern
		m.names = append(m.names, name)
	}
	sort.Strings(m.names)
	return nil
}

func (m *AuctionPrices) excluded(off uint32) bool {
	for _, r := range m.ExcludedRanges {
		if off >= uint32(r[0]) && off < uint32(r[1]) {
			return true
		}
	}
	return false
}

// locate returns the price offsets of every usable copy of name
func (m *AuctionPrices) locate(data []byte, name string) ([]uint32, error) {
	hits, err := psx.FindPattern(data, m.patterns[name], nil, 1, 0)
	if err != nil {
		return nil, err
	}
	var out []uint32
	for _, h := range hits {
		off := uint32(h)
		price := off + m.priceOffset()
		switch {
		case m.excluded(off):
			common.LogDebug(common.DebugPriceExcluded, name, off)
		case int(price)+2 > len(data):
			common.LogDebug(common.DebugNameCandidate, name, off, "price field runs past the archive end")
		default:
			out = append(out, price)
		}
	}
	return out, nil
}

// Apply writes the configured price into every copy of every item record
func (m *AuctionPrices) Apply(ctx *Context, rep *ModuleReport) error {
	arc, err := ctx.archive(m.Name())
	if err != nil {
		return err
	}
	data, err := arc.Snapshot(0, arc.Len())
	if err != nil {
		return err
	}

	for _, name := range m.names {
		prices, err := m.locate(data, name)
		if err != nil {
			return err
		}
		if len(prices) == 0 {
			rep.Warn(common.NewWarning(common.KindSiteNotFound, common.WarnRecordNotFound, name))
			continue
		}
		rep.found(len(prices))
		common.LogInfo(common.InfoPricesPatched, name, len(prices), m.price)
		for _, off := range prices {
			if binary.LittleEndian.Uint16(data[off:]) == m.price {
				rep.skipped()
				continue
			}
			if err := arc.WriteU16(off, m.price); err != nil {
				return err
			}
			rep.patched()
		}
	}
	return nil
}

// Verify checks the price field of every copy of every item
func (m *AuctionPrices) Verify(ctx *Context) ([]VerifyResult, error) {
	arc, err := ctx.archive(m.Name())
	if err != nil {
		return nil, err
	}
	data, err := arc.Snapshot(0, arc.Len())
	if err != nil {
		return nil, err
	}
	var results []VerifyResult
	for _, name := range m.names {
		prices, err := m.locate(data, name)
		if err != nil {
			return nil, err
		}
		if len(prices) == 0 {
			continue
		}
		check := name + " base price"
		result := pass(m.Name(), check)
		for _, off := range prices {
			if got := binary.LittleEndian.Uint16(data[off:]); got != m.price {
				result = fail(m.Name(), check, "0x%08X holds %d", off, got)
				break
			}
		}
		results = append(results, result)
	}
	return results, nil
}
