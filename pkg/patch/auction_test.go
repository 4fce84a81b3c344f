package patch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/hansbonini/blazetools/pkg/common"
)

func TestAuctionPrices_ZeroesBasePrice(t *testing.T) {
	buf := newFixture(t)
	// a second copy of the record
	writeArchive(t, buf, 0x7000, readArchive(t, buf, arcAuctionItem, 0x8A))
	before := cloneImage(buf)
	plan := mustPlan(t, step(ModuleAuctionPrices, `{"enabled": true, "items": ["Long Sword", "Excalibur"], "excluded_ranges": []}`))

	mr, err := runModule(t, plan, buf)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	assertCounts(t, mr, 2, 2, 0)
	if len(mr.Warnings) != 1 {
		t.Errorf("warnings = %v, want one for Excalibur", mr.Warnings)
	}
	for _, off := range []uint32{arcAuctionItem, 0x7000} {
		if got := binary.LittleEndian.Uint16(readArchive(t, buf, off+0x88, 2)); got != 0 {
			t.Errorf("price at 0x%X = %d, want 0", off+0x88, got)
		}
		if name := readArchive(t, buf, off, 10); string(name) != "Long Sword" {
			t.Errorf("name at 0x%X changed to %q", off, name)
		}
	}
	assertFraming(t, before, buf)

	if _, err := verifyModule(t, plan, buf); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	mr, err = runModule(t, plan, buf)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	assertCounts(t, mr, 2, 0, 2)
}

func TestAuctionPrices_ExcludedRange(t *testing.T) {
	buf := newFixture(t)
	plan := mustPlan(t, step(ModuleAuctionPrices, fmt.Sprintf(
		`{"enabled": true, "items": ["Long Sword"], "price": 500, "price_offset": "0x88", "excluded_ranges": [["0x%X", "0x%X"]]}`,
		arcAuctionItem, arcAuctionItem+0x10)))

	mr, err := runModule(t, plan, buf)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	assertCounts(t, mr, 0, 0, 0)
	if got := binary.LittleEndian.Uint16(readArchive(t, buf, arcAuctionItem+0x88, 2)); got != 1200 {
		t.Errorf("excluded price changed to %d", got)
	}
}

func TestAuctionPrices_ExactNameField(t *testing.T) {
	buf := newFixture(t)
	before := cloneImage(buf)
	// "Long Swor" is a prefix of the record name, not a NUL padded match
	plan := mustPlan(t, step(ModuleAuctionPrices, `{"enabled": true, "items": ["Long Swor"]}`))

	if _, err := runModule(t, plan, buf); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !bytes.Equal(before.Bytes(), buf.Bytes()) {
		t.Error("a partial name matched")
	}
}

func TestAuctionPrices_InvalidDescriptors(t *testing.T) {
	tests := []struct {
		name       string
		descriptor string
	}{
		{"no items", `{"enabled": true, "items": []}`},
		{"negative price", `{"enabled": true, "items": ["Long Sword"], "price": -1}`},
		{"price too large", `{"enabled": true, "items": ["Long Sword"], "price": 65536}`},
		{"empty range", `{"enabled": true, "items": ["Long Sword"], "excluded_ranges": [[16, 16]]}`},
		{"range of three", `{"enabled": true, "items": ["Long Sword"], "excluded_ranges": [[1, 2, 3]]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(planJSON(step(ModuleAuctionPrices, tt.descriptor))), t.TempDir())
			if common.KindOf(err) != common.KindConfiguration {
				t.Errorf("ParsePlan error = %v, want a ConfigurationError", err)
			}
		})
	}
}
