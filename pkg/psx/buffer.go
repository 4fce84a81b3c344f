// Package psx provides the in-memory CD image buffer.
// All integer accessors are little-endian and every access is bounds-checked;
// a failing write never modifies the buffer.
package psx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hansbonini/blazetools/pkg/common"
)

// Buffer is a mutable byte region backing a whole CD image
type Buffer struct {
	data    []byte
	journal []undoRecord
	logging bool
}

// undoRecord keeps the bytes a journaled write replaced
type undoRecord struct {
	offset int
	old    []byte
}

// NewBuffer wraps data without copying it
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// LoadBuffer reads a whole file into memory
func LoadBuffer(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", common.ErrFailedToReadImage, err)
	}
	return NewBuffer(data), nil
}

// Len returns the buffer size in bytes
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes exposes the underlying slice; callers must not keep it across writes
func (b *Buffer) Bytes() []byte {
	return b.data
}

// SectorCount returns the number of complete raw sectors in the buffer
func (b *Buffer) SectorCount() int {
	return len(b.data) / CD_SECTOR_SIZE
}

func (b *Buffer) check(off, n int) error {
	if off < 0 || n < 0 || off > len(b.data) || n > len(b.data)-off {
		e := common.NewError(common.KindBoundsViolation,
			"range [0x%X, 0x%X) outside buffer of %d bytes", off, off+n, len(b.data))
		if off >= 0 {
			e.At(uint32(off))
		}
		return e
	}
	return nil
}

// ReadU8 reads one byte
func (b *Buffer) ReadU8(off int) (uint8, error) {
	if err := b.check(off, 1); err != nil {
		return 0, err
	}
	return b.data[off], nil
}

// ReadU16 reads a little-endian uint16
func (b *Buffer) ReadU16(off int) (uint16, error) {
	if err := b.check(off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b.data[off:]), nil
}

// ReadU32 reads a little-endian uint32
func (b *Buffer) ReadU32(off int) (uint32, error) {
	if err := b.check(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.data[off:]), nil
}

// ReadBytes returns a copy of n bytes at off
func (b *Buffer) ReadBytes(off, n int) ([]byte, error) {
	if err := b.check(off, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.data[off:off+n])
	return out, nil
}

// ReadASCII reads up to max bytes, stopping at the first NUL
func (b *Buffer) ReadASCII(off, max int) (string, error) {
	if max > len(b.data)-off {
		max = len(b.data) - off
	}
	if err := b.check(off, max); err != nil {
		return "", err
	}
	raw := b.data[off : off+max]
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw), nil
}

// WriteU8 writes one byte
func (b *Buffer) WriteU8(off int, v uint8) error {
	return b.WriteBytes(off, []byte{v})
}

// WriteU16 writes a little-endian uint16
func (b *Buffer) WriteU16(off int, v uint16) error {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return b.WriteBytes(off, tmp[:])
}

// WriteU32 writes a little-endian uint32
func (b *Buffer) WriteU32(off int, v uint32) error {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return b.WriteBytes(off, tmp[:])
}

// WriteBytes copies data into the buffer at off
func (b *Buffer) WriteBytes(off int, data []byte) error {
	if err := b.check(off, len(data)); err != nil {
		return err
	}
	if b.logging {
		old := make([]byte, len(data))
		copy(old, b.data[off:off+len(data)])
		b.journal = append(b.journal, undoRecord{offset: off, old: old})
	}
	copy(b.data[off:], data)
	return nil
}

// WriteASCIIZeroPadded writes s followed by zeros up to max bytes
func (b *Buffer) WriteASCIIZeroPadded(off int, s string, max int) error {
	if len(s) > max {
		return common.NewError(common.KindAsciiTooLong,
			"%q is %d bytes, limit is %d", s, len(s), max).At(uint32(off))
	}
	field := make([]byte, max)
	copy(field, s)
	return b.WriteBytes(off, field)
}

// Begin starts recording writes so they can be rolled back
func (b *Buffer) Begin() {
	b.journal = b.journal[:0]
	b.logging = true
}

// Commit keeps every write since Begin
func (b *Buffer) Commit() {
	b.journal = nil
	b.logging = false
}

// Rollback undoes every write since Begin, newest first
func (b *Buffer) Rollback() {
	for i := len(b.journal) - 1; i >= 0; i-- {
		rec := b.journal[i]
		copy(b.data[rec.offset:], rec.old)
	}
	b.journal = nil
	b.logging = false
}

// Flush writes the buffer to path atomically: temp file in the same
// directory, fsync, rename. An existing file keeps its permissions; a new
// one is created 0644.
func (b *Buffer) Flush(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%s: %w", common.ErrFailedToWriteImage, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(b.data); err != nil {
		cleanup()
		return fmt.Errorf("%s: %w", common.ErrFailedToWriteImage, err)
	}
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return fmt.Errorf("%s: %w", common.ErrFailedToWriteImage, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("%s: %w", common.ErrFailedToWriteImage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%s: %w", common.ErrFailedToWriteImage, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%s: %w", common.ErrFailedToWriteImage, err)
	}
	return nil
}

// SectorFramingEqual reports the first sector whose header or EDC/ECC bytes
// differ between a and b, or -1 when every sector matches.
func SectorFramingEqual(a, b *Buffer) (int, bool) {
	if a.Len() != b.Len() {
		return 0, false
	}
	for s := 0; s < a.SectorCount(); s++ {
		base := s * CD_SECTOR_SIZE
		if !bytes.Equal(a.data[base:base+CD_USER_DATA_START], b.data[base:base+CD_USER_DATA_START]) {
			return s, false
		}
		tail := base + CD_USER_DATA_START + CD_DATA_SIZE
		if !bytes.Equal(a.data[tail:base+CD_SECTOR_SIZE], b.data[tail:base+CD_SECTOR_SIZE]) {
			return s, false
		}
	}
	return -1, true
}
