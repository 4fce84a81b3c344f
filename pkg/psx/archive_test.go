package psx

import (
	"bytes"
	"testing"

	"github.com/hansbonini/blazetools/pkg/common"
)

func newTestArchive(t *testing.T) (*Buffer, *ArchiveView) {
	t.Helper()
	buf := newTestImage(6)
	a, err := NewArchiveView(buf, ContainedFile{Name: "BLAZE.ALL", LBA: 1, Length: 4 * CD_DATA_SIZE})
	if err != nil {
		t.Fatalf("NewArchiveView failed: %v", err)
	}
	return buf, a
}

func TestArchiveView_Integers(t *testing.T) {
	buf, a := newTestArchive(t)
	before := cloneBuffer(buf)

	// straddles the first sector boundary
	if err := a.WriteU32(CD_DATA_SIZE-1, 0x04030201); err != nil {
		t.Fatalf("WriteU32 failed: %v", err)
	}
	if err := a.WriteU16(10, 0xFFFF); err != nil {
		t.Fatalf("WriteU16 failed: %v", err)
	}
	if err := a.WriteU8(11+CD_DATA_SIZE, 7); err != nil {
		t.Fatalf("WriteU8 failed: %v", err)
	}
	assertFramingIntact(t, before, buf)

	if v, _ := a.ReadU32(CD_DATA_SIZE - 1); v != 0x04030201 {
		t.Errorf("ReadU32 = 0x%08X", v)
	}
	if v, _ := a.ReadU16(10); v != 0xFFFF {
		t.Errorf("ReadU16 = 0x%04X", v)
	}
	if v, _ := a.ReadU8(11 + CD_DATA_SIZE); v != 7 {
		t.Errorf("ReadU8 = %d", v)
	}
}

func TestArchiveView_OutOfFile(t *testing.T) {
	_, a := newTestArchive(t)
	if err := a.WriteU32(a.Len()-2, 1); common.KindOf(err) != common.KindOutOfFile {
		t.Errorf("WriteU32 past end = %v, want OutOfFile", err)
	}
	if _, err := a.ReadASCII(a.Len(), 4); common.KindOf(err) != common.KindOutOfFile {
		t.Errorf("ReadASCII at end = %v, want OutOfFile", err)
	}
}

func TestArchiveView_ASCII(t *testing.T) {
	_, a := newTestArchive(t)

	if err := a.WriteASCIIZeroPadded(CD_DATA_SIZE-3, []byte("Goblin"), 16); err != nil {
		t.Fatalf("WriteASCIIZeroPadded failed: %v", err)
	}
	s, err := a.ReadASCII(CD_DATA_SIZE-3, 16)
	if err != nil || s != "Goblin" {
		t.Errorf("ReadASCII = %q, %v", s, err)
	}
	if err := a.WriteASCIIZeroPadded(0, []byte("Goblin-Shaman-Lord"), 16); common.KindOf(err) != common.KindAsciiTooLong {
		t.Errorf("long name = %v, want AsciiTooLong", err)
	}

	// stops at archive end without a terminator
	_ = a.WriteBytes(a.Len()-3, []byte("END"))
	if s, _ := a.ReadASCII(a.Len()-3, 16); s != "END" {
		t.Errorf("ReadASCII at tail = %q", s)
	}
}

func TestArchiveView_FindAll(t *testing.T) {
	_, a := newTestArchive(t)

	name := []byte("Goblin\x00")
	for _, off := range []uint32{0x10, CD_DATA_SIZE - 3, 3*CD_DATA_SIZE + 0x40} {
		if err := a.WriteBytes(off, name); err != nil {
			t.Fatalf("WriteBytes failed: %v", err)
		}
	}

	hits, err := a.FindAll(name, nil, 1, 0, a.Len())
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	want := []uint32{0x10, CD_DATA_SIZE - 3, 3*CD_DATA_SIZE + 0x40}
	if len(hits) != len(want) {
		t.Fatalf("FindAll = %v, want %v", hits, want)
	}
	for i := range want {
		if hits[i] != want[i] {
			t.Errorf("hit %d = 0x%X, want 0x%X", i, hits[i], want[i])
		}
	}

	hits, _ = a.FindAll(name, nil, 1, 0x11, 3*CD_DATA_SIZE)
	if len(hits) != 1 || hits[0] != CD_DATA_SIZE-3 {
		t.Errorf("ranged FindAll = %v", hits)
	}

	hits, _ = a.FindAll(name, nil, 4, 0, a.Len())
	if len(hits) != 2 {
		t.Errorf("aligned FindAll = %v, want the two aligned hits", hits)
	}
}

func TestArchiveView_FindAllMasked(t *testing.T) {
	_, a := newTestArchive(t)

	// lhu v0,0x14(a0) and lh v1,0x14(s0) differ outside the mask
	_ = a.WriteBytes(0x100, common.PutWordsLE(0x94820014))
	_ = a.WriteBytes(0x200, common.PutWordsLE(0x86030014))
	_ = a.WriteBytes(0x300, common.PutWordsLE(0x94820018))

	hits, err := a.FindAll(common.PutWordsLE(0x84000014), common.PutWordsLE(0xEC00FFFF), 4, 0, a.Len())
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(hits) != 2 || hits[0] != 0x100 || hits[1] != 0x200 {
		t.Errorf("masked FindAll = %X, want [100 200]", hits)
	}

	if _, err := a.FindAll([]byte{1, 2}, []byte{1}, 1, 0, 16); common.KindOf(err) != common.KindConfiguration {
		t.Errorf("mismatched mask = %v, want ConfigurationError", err)
	}
}

func TestArchiveView_Snapshot(t *testing.T) {
	_, a := newTestArchive(t)
	_ = a.WriteBytes(CD_DATA_SIZE-2, []byte{1, 2, 3, 4})

	snap, err := a.Snapshot(CD_DATA_SIZE-2, CD_DATA_SIZE+2)
	if err != nil || !bytes.Equal(snap, []byte{1, 2, 3, 4}) {
		t.Errorf("Snapshot = %v, %v", snap, err)
	}
}

func TestFindPattern_AlignmentBase(t *testing.T) {
	data := []byte{0, 0xAB, 0, 0, 0, 0xAB, 0, 0}
	// data[0] sits at logical offset 1, so index 3 is the first aligned position
	hits, err := FindPattern(data, []byte{0xAB}, nil, 4, 1)
	if err != nil {
		t.Fatalf("FindPattern failed: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("hits = %v, want none", hits)
	}
	hits, _ = FindPattern(data, []byte{0xAB}, nil, 4, 3)
	if len(hits) != 2 || hits[0] != 1 || hits[1] != 5 {
		t.Errorf("hits = %v, want [1 5]", hits)
	}
}
