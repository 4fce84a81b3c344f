package patch

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hansbonini/blazetools/pkg/common"
	"github.com/hansbonini/blazetools/pkg/psx"
)

// fixture layout: an executable and an archive inside a small raw image
const (
	fixtureSectors   = 30
	fixtureExeLBA    = 2
	fixtureExeLength = 8 * psx.CD_DATA_SIZE
	fixtureArcLBA    = 12
	fixtureArcLength = 16 * psx.CD_DATA_SIZE
	fixtureLoadBase  = 0x80010000

	headerFill = 0xA5
	eccFill    = 0xEE
)

// archive offsets used by the module tests
const (
	arcItemEntry    = 0x0100
	arcItemDirect   = 0x0400
	arcCountdown    = 0x1000
	arcCountdownEnd = 0x1C00
	arcTimerInit    = 0x1800
	arcGoblin1      = 0x2000
	arcBlackGoblin  = 0x2800
	arcScriptTable  = 0x2F00
	arcFormations   = 0x3000
	arcGoblin2      = 0x5100
	arcAuctionItem  = 0x6000
)

// executable load addresses used by the module tests
const (
	exeTierTable = 0x800107EC // the 40 byte table straddles a sector boundary
	exeSra       = 0x80011004
)

var (
	vanillaTiers = [8][5]byte{
		{5, 10, 15, 20, 25},
		{4, 8, 12, 16, 20},
		{3, 6, 9, 12, 15},
		{2, 4, 6, 8, 10},
		{1, 2, 3, 4, 5},
		{6, 7, 8, 9, 10},
		{2, 3, 5, 7, 11},
		{1, 1, 2, 3, 5},
	}
	sraSignature = []uint32{0x3C0251EB, 0x3442851F, 0x00A20018, 0x00004010}
)

const sraOriginal = 0x00081943

// countdown decrement context: lhu v0,0x14(s0); nop; addiu v0,v0,-1; sh v0,0x14(s0); sll v0,v0,16
var decrementSite = []uint32{0x96020014, 0x00000000, 0x2442FFFF, 0xA6020014, 0x00021400}

const (
	timerInitWord  = 0x240203E8 // addiu v0, $zero, 1000
	timerStoreWord = 0xA6020012 // sh v0, 0x12(s0)
)

// writeFile places data at a file offset of the file starting at lba
func writeFile(t *testing.T, buf *psx.Buffer, lba, off uint32, data []byte) {
	t.Helper()
	for i, b := range data {
		if err := buf.WriteU8(psx.ImageOffsetOf(lba, off+uint32(i)), b); err != nil {
			t.Fatalf("fixture write at 0x%X: %v", off+uint32(i), err)
		}
	}
}

func readFile(t *testing.T, buf *psx.Buffer, lba, off uint32, n int) []byte {
	t.Helper()
	out := make([]byte, n)
	for i := range out {
		b, err := buf.ReadU8(psx.ImageOffsetOf(lba, off+uint32(i)))
		if err != nil {
			t.Fatalf("fixture read at 0x%X: %v", off+uint32(i), err)
		}
		out[i] = b
	}
	return out
}

func writeArchive(t *testing.T, buf *psx.Buffer, off uint32, data []byte) {
	t.Helper()
	writeFile(t, buf, fixtureArcLBA, off, data)
}

func readArchive(t *testing.T, buf *psx.Buffer, off uint32, n int) []byte {
	t.Helper()
	return readFile(t, buf, fixtureArcLBA, off, n)
}

func exeOffset(addr uint32) uint32 {
	return addr - fixtureLoadBase + psx.EXE_HEADER_SIZE
}

func readExe(t *testing.T, buf *psx.Buffer, addr uint32, n int) []byte {
	t.Helper()
	return readFile(t, buf, fixtureExeLBA, exeOffset(addr), n)
}

func monsterRecordBytes(name string, stats ...uint16) []byte {
	rec := make([]byte, 16+2*len(stats))
	copy(rec, name)
	for i, v := range stats {
		binary.LittleEndian.PutUint16(rec[16+2*i:], v)
	}
	return rec
}

// newFixture builds the vanilla image every module test starts from
func newFixture(t *testing.T) *psx.Buffer {
	t.Helper()
	data := make([]byte, fixtureSectors*psx.CD_SECTOR_SIZE)
	for s := 0; s < fixtureSectors; s++ {
		base := s * psx.CD_SECTOR_SIZE
		for i := 0; i < psx.CD_USER_DATA_START; i++ {
			data[base+i] = headerFill
		}
		for i := psx.CD_USER_DATA_START + psx.CD_DATA_SIZE; i < psx.CD_SECTOR_SIZE; i++ {
			data[base+i] = eccFill
		}
	}
	buf := psx.NewBuffer(data)

	header := make([]byte, psx.EXE_HEADER_SIZE)
	copy(header, psx.EXE_SIGNATURE)
	binary.LittleEndian.PutUint32(header[psx.EXE_OFS_LOAD_ADDRESS:], fixtureLoadBase)
	writeFile(t, buf, fixtureExeLBA, 0, header)

	var tiers []byte
	for _, l := range vanillaTiers {
		tiers = append(tiers, l[:]...)
	}
	writeFile(t, buf, fixtureExeLBA, exeOffset(exeTierTable), tiers)
	writeFile(t, buf, fixtureExeLBA, exeOffset(exeSra)-16, common.PutWordsLE(append(append([]uint32(nil), sraSignature...), sraOriginal)...))

	entry := make([]byte, 0x41)
	copy(entry, "Healing Potion")
	entry = append(entry, "Healing Potion/Restores HP\x00"...)
	writeArchive(t, buf, arcItemEntry, entry)
	writeArchive(t, buf, arcItemDirect, []byte("Antidote/Cures poison\x00"))

	for i := 0; i < 6; i++ {
		writeArchive(t, buf, arcCountdown+uint32(i)*0x40, common.PutWordsLE(decrementSite...))
	}
	writeArchive(t, buf, arcTimerInit, common.PutWordsLE(timerInitWord, timerStoreWord))

	writeArchive(t, buf, arcGoblin1, monsterRecordBytes("Goblin", 12, 7, 50, 3))
	writeArchive(t, buf, arcGoblin2, monsterRecordBytes("Goblin", 12, 7, 50, 3))
	writeArchive(t, buf, arcBlackGoblin, monsterRecordBytes("Black-Goblin", 40, 9, 180, 11))

	writeArchive(t, buf, arcScriptTable, common.PutWordsLE(0x1234, 0x1300, 0x1400, 0x1500))
	area := make([]byte, 896)
	for i := range area {
		area[i] = 0x77
	}
	writeArchive(t, buf, arcFormations, area)

	auction := make([]byte, 0x8A)
	copy(auction, "Long Sword")
	binary.LittleEndian.PutUint16(auction[0x88:], 1200)
	writeArchive(t, buf, arcAuctionItem, auction)
	return buf
}

func cloneImage(buf *psx.Buffer) *psx.Buffer {
	return psx.NewBuffer(append([]byte(nil), buf.Bytes()...))
}

const fixtureImage = `"image": {
    "executable": {"lba": 2, "length": 16384, "load_base": "0x80010000", "header_size": "0x800"},
    "archive": {"lba": 12, "length": 32768}
  }`

// planJSON wraps module steps into a plan over the fixture layout
func planJSON(steps ...string) string {
	return fmt.Sprintf("{\n  %s,\n  \"modules\": [\n    %s\n  ]\n}", fixtureImage, strings.Join(steps, ",\n    "))
}

// step builds an inline plan step
func step(module, descriptor string) string {
	return fmt.Sprintf(`{"module": %q, "descriptor": %s}`, module, descriptor)
}

func mustPlan(t *testing.T, steps ...string) *Plan {
	t.Helper()
	plan, err := ParsePlan([]byte(planJSON(steps...)), t.TempDir())
	if err != nil {
		t.Fatalf("ParsePlan failed: %v", err)
	}
	return plan
}

// runModule applies the only module of plan to buf and returns its report
func runModule(t *testing.T, plan *Plan, buf *psx.Buffer) (*ModuleReport, error) {
	t.Helper()
	rep := NewReport("fixture")
	err := NewDriver(plan).Run(buf, rep)
	if len(rep.Modules) == 0 {
		t.Fatalf("no module report recorded (err %v)", err)
	}
	return rep.Modules[0], err
}

func verifyModule(t *testing.T, plan *Plan, buf *psx.Buffer) ([]VerifyResult, error) {
	t.Helper()
	return NewVerifier(plan).Verify(buf)
}

func assertFraming(t *testing.T, before, after *psx.Buffer) {
	t.Helper()
	if s, ok := psx.SectorFramingEqual(before, after); !ok {
		t.Fatalf("sector %d framing changed", s)
	}
}

func assertCounts(t *testing.T, mr *ModuleReport, found, patched, skipped int) {
	t.Helper()
	if mr.SitesFound != found || mr.SitesPatched != patched || mr.SitesSkipped != skipped {
		t.Errorf("%s: found/patched/skipped = %d/%d/%d, want %d/%d/%d",
			mr.Module, mr.SitesFound, mr.SitesPatched, mr.SitesSkipped, found, patched, skipped)
	}
}

func writeFixtureFile(t *testing.T, buf *psx.Buffer) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.bin")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write fixture image: %v", err)
	}
	return path
}
