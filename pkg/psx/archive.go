// Package psx provides the archive view: the bulk asset file addressed as a
// logically contiguous stream whose sector framing is hidden from callers.
package psx

import (
	"bytes"
	"encoding/binary"

	"github.com/hansbonini/blazetools/pkg/common"
)

// ArchiveView exposes the user data of a contained file as one stream
type ArchiveView struct {
	buf  *Buffer
	file ContainedFile
}

// NewArchiveView checks that the archive lies inside the image
func NewArchiveView(buf *Buffer, file ContainedFile) (*ArchiveView, error) {
	if file.Name == "" {
		file.Name = "archive"
	}
	if err := file.Validate(buf.Len()); err != nil {
		return nil, err
	}
	return &ArchiveView{buf: buf, file: file}, nil
}

// File returns the contained file backing the view
func (a *ArchiveView) File() ContainedFile {
	return a.file
}

// Len returns the archive length in bytes
func (a *ArchiveView) Len() uint32 {
	return a.file.Length
}

// ReadBytes reads n bytes at an archive offset
func (a *ArchiveView) ReadBytes(off uint32, n int) ([]byte, error) {
	return readSpans(a.buf, a.file, off, n)
}

// WriteBytes writes data at an archive offset across as many sectors as needed
func (a *ArchiveView) WriteBytes(off uint32, data []byte) error {
	return writeSpans(a.buf, a.file, off, data)
}

// ReadU8 reads one byte
func (a *ArchiveView) ReadU8(off uint32) (uint8, error) {
	b, err := a.ReadBytes(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16
func (a *ArchiveView) ReadU16(off uint32) (uint16, error) {
	b, err := a.ReadBytes(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32
func (a *ArchiveView) ReadU32(off uint32) (uint32, error) {
	b, err := a.ReadBytes(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// WriteU8 writes one byte
func (a *ArchiveView) WriteU8(off uint32, v uint8) error {
	return a.WriteBytes(off, []byte{v})
}

// WriteU16 writes a little-endian uint16
func (a *ArchiveView) WriteU16(off uint32, v uint16) error {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return a.WriteBytes(off, tmp[:])
}

// WriteU32 writes a little-endian uint32
func (a *ArchiveView) WriteU32(off uint32, v uint32) error {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return a.WriteBytes(off, tmp[:])
}

// ReadASCII reads up to max bytes, stopping at the first NUL or the archive end
func (a *ArchiveView) ReadASCII(off uint32, max int) (string, error) {
	if off >= a.file.Length {
		return "", common.NewError(common.KindOutOfFile, "offset 0x%X outside archive", off).At(off)
	}
	if rest := int(a.file.Length - off); max > rest {
		max = rest
	}
	raw, err := a.ReadBytes(off, max)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return string(raw), nil
}

// WriteASCIIZeroPadded writes s followed by zeros up to max bytes
func (a *ArchiveView) WriteASCIIZeroPadded(off uint32, s []byte, max int) error {
	if len(s) > max {
		return common.NewError(common.KindAsciiTooLong,
			"%q is %d bytes, limit is %d", s, len(s), max).At(off)
	}
	field := make([]byte, max)
	copy(field, s)
	return a.WriteBytes(off, field)
}

// Snapshot returns a contiguous copy of [start, end)
func (a *ArchiveView) Snapshot(start, end uint32) ([]byte, error) {
	if end < start {
		return nil, common.NewError(common.KindOutOfFile, "empty range [0x%X, 0x%X)", start, end).At(start)
	}
	return a.ReadBytes(start, int(end-start))
}

// FindAll returns the archive offsets in [start, end) where pattern matches
// under mask. A nil mask compares every byte; alignment 0 or 1 means any offset.
func (a *ArchiveView) FindAll(pattern, mask []byte, alignment int, start, end uint32) ([]uint32, error) {
	if end > a.file.Length {
		end = a.file.Length
	}
	if start >= end {
		return nil, nil
	}
	data, err := a.Snapshot(start, end)
	if err != nil {
		return nil, err
	}
	hits, err := FindPattern(data, pattern, mask, alignment, start)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(hits))
	for i, h := range hits {
		out[i] = start + uint32(h)
	}
	return out, nil
}

// FindPattern scans data for pattern. base is the logical offset of data[0]
// and is used only to honour alignment.
func FindPattern(data, pattern, mask []byte, alignment int, base uint32) ([]int, error) {
	if len(pattern) == 0 {
		return nil, common.ConfigError("empty search pattern")
	}
	if mask != nil && len(mask) != len(pattern) {
		return nil, common.ConfigError("mask is %d bytes, pattern is %d", len(mask), len(pattern))
	}
	if alignment < 1 {
		alignment = 1
	}

	var hits []int
	if mask == nil && alignment == 1 {
		pos := 0
		for {
			i := bytes.Index(data[pos:], pattern)
			if i < 0 {
				return hits, nil
			}
			hits = append(hits, pos+i)
			pos += i + 1
		}
	}

	first := 0
	if r := int(base) % alignment; r != 0 {
		first = alignment - r
	}
	for i := first; i+len(pattern) <= len(data); i += alignment {
		if matchMasked(data[i:i+len(pattern)], pattern, mask) {
			hits = append(hits, i)
		}
	}
	return hits, nil
}

func matchMasked(window, pattern, mask []byte) bool {
	for j := range pattern {
		m := byte(0xFF)
		if mask != nil {
			m = mask[j]
		}
		if window[j]&m != pattern[j]&m {
			return false
		}
	}
	return true
}
