package psx

import (
	"encoding/binary"
	"testing"
)

const (
	testHeaderFill = 0xA5
	testECCFill    = 0xEE
)

// newTestImage returns an image of n raw sectors whose framing bytes carry
// marker values, so any stray write outside user data is detectable.
func newTestImage(n int) *Buffer {
	data := make([]byte, n*CD_SECTOR_SIZE)
	for s := 0; s < n; s++ {
		base := s * CD_SECTOR_SIZE
		for i := 0; i < CD_USER_DATA_START; i++ {
			data[base+i] = testHeaderFill
		}
		for i := CD_USER_DATA_START + CD_DATA_SIZE; i < CD_SECTOR_SIZE; i++ {
			data[base+i] = testECCFill
		}
	}
	return NewBuffer(data)
}

func cloneBuffer(b *Buffer) *Buffer {
	data := make([]byte, b.Len())
	copy(data, b.Bytes())
	return NewBuffer(data)
}

// putUserData writes data into the user area of consecutive sectors starting at lba
func putUserData(t *testing.T, buf *Buffer, lba uint32, fileOffset uint32, data []byte) {
	t.Helper()
	f := ContainedFile{Name: "fixture", LBA: lba, Length: fileOffset + uint32(len(data))}
	if err := writeSpans(buf, f, fileOffset, data); err != nil {
		t.Fatalf("fixture write failed: %v", err)
	}
}

// assertFramingIntact fails when any sector header or EDC/ECC byte changed
func assertFramingIntact(t *testing.T, before, after *Buffer) {
	t.Helper()
	if s, ok := SectorFramingEqual(before, after); !ok {
		t.Fatalf("sector %d framing changed", s)
	}
}

// newTestExecutable places a minimal PS-X EXE of length bytes at lba
func newTestExecutable(t *testing.T, buf *Buffer, lba uint32, length uint32, loadBase uint32) ContainedFile {
	t.Helper()
	header := make([]byte, EXE_HEADER_SIZE)
	copy(header, EXE_SIGNATURE)
	binary.LittleEndian.PutUint32(header[EXE_OFS_INITIAL_PC:], loadBase)
	binary.LittleEndian.PutUint32(header[EXE_OFS_LOAD_ADDRESS:], loadBase)
	binary.LittleEndian.PutUint32(header[EXE_OFS_TEXT_SIZE:], length-EXE_HEADER_SIZE)
	putUserData(t, buf, lba, 0, header)
	return ContainedFile{Name: "SLES_008.45", LBA: lba, Length: length}
}

// dirRecord encodes one ISO9660 directory record
func dirRecord(name string, lba, size uint32, dir bool) []byte {
	n := ISO_DIR_RECORD_MIN + len(name)
	if n%2 != 0 {
		n++
	}
	rec := make([]byte, n)
	rec[0] = byte(n)
	binary.LittleEndian.PutUint32(rec[2:], lba)
	binary.BigEndian.PutUint32(rec[6:], lba)
	binary.LittleEndian.PutUint32(rec[10:], size)
	binary.BigEndian.PutUint32(rec[14:], size)
	if dir {
		rec[25] = ISO_FLAG_DIRECTORY
	}
	rec[32] = byte(len(name))
	copy(rec[33:], name)
	return rec
}

func dirSector(self, parent uint32, records ...[]byte) []byte {
	out := append(dirRecord("\x00", self, CD_DATA_SIZE, true), dirRecord("\x01", parent, CD_DATA_SIZE, true)...)
	for _, r := range records {
		out = append(out, r...)
	}
	return out
}

// newTestISO builds a 24 sector image:
//
//	/SLES_008.45   LBA 20, 4096 bytes
//	/DATA/BLAZE.ALL LBA 22, 2048 bytes
func newTestISO(t *testing.T) *Buffer {
	t.Helper()
	buf := newTestImage(24)

	pvd := make([]byte, CD_DATA_SIZE)
	pvd[0] = 0x01
	copy(pvd[1:], "CD001")
	pvd[6] = 0x01
	copy(pvd[40:], "BLAZE_AND_BLADE")
	binary.LittleEndian.PutUint32(pvd[80:], 24)
	binary.LittleEndian.PutUint16(pvd[128:], CD_DATA_SIZE)
	copy(pvd[ISO_ROOT_RECORD_OFS:], dirRecord("\x00", 18, CD_DATA_SIZE, true))
	putUserData(t, buf, ISO_PVD_SECTOR, 0, pvd)

	putUserData(t, buf, 18, 0, dirSector(18, 18,
		dirRecord("DATA", 19, CD_DATA_SIZE, true),
		dirRecord("SLES_008.45;1", 20, 4096, false),
	))
	putUserData(t, buf, 19, 0, dirSector(19, 18,
		dirRecord("BLAZE.ALL;1", 22, 2048, false),
	))
	return buf
}
