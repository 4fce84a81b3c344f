// Package psx provides address translation between the image, contained
// files stored as raw Mode 2 sectors and the executable load address space.
package psx

import (
	"github.com/hansbonini/blazetools/pkg/common"
)

// ImageOffsetOf returns the absolute image offset of byte fileOffset of a
// file whose first sector is lba.
func ImageOffsetOf(lba uint32, fileOffset uint32) int {
	sector := int(lba) + int(fileOffset/CD_DATA_SIZE)
	return sector*CD_SECTOR_SIZE + CD_USER_DATA_START + int(fileOffset%CD_DATA_SIZE)
}

// Span is a run of user-data bytes that lies inside one sector
type Span struct {
	ImageOffset int    // absolute offset in the image
	FileOffset  uint32 // offset of the first byte inside the contained file
	Length      int    // bytes in this sector
}

// ContainedFile is a logical file stored as consecutive raw sectors
type ContainedFile struct {
	Name   string
	LBA    uint32
	Length uint32 // user-data bytes
}

// SectorCount returns the number of sectors occupied by the file
func (f ContainedFile) SectorCount() uint32 {
	return common.GetSizeInSectors(f.Length)
}

// EndImageOffset returns the image offset one past the file's last sector
func (f ContainedFile) EndImageOffset() int {
	return int(f.LBA+f.SectorCount()) * CD_SECTOR_SIZE
}

// ImageOffsetOf translates a file offset, rejecting offsets past the file end
func (f ContainedFile) ImageOffsetOf(fileOffset uint32) (int, error) {
	if fileOffset >= f.Length {
		return 0, common.NewError(common.KindOutOfFile,
			"offset 0x%X outside %s (%d bytes)", fileOffset, f.describe(), f.Length).At(fileOffset)
	}
	return ImageOffsetOf(f.LBA, fileOffset), nil
}

// Spans splits [fileOffset, fileOffset+n) at sector boundaries
func (f ContainedFile) Spans(fileOffset uint32, n int) ([]Span, error) {
	if n < 0 || uint64(fileOffset)+uint64(n) > uint64(f.Length) {
		return nil, common.NewError(common.KindOutOfFile,
			"range [0x%X, 0x%X) outside %s (%d bytes)", fileOffset, uint64(fileOffset)+uint64(n), f.describe(), f.Length).At(fileOffset)
	}

	spans := make([]Span, 0, n/CD_DATA_SIZE+2)
	for n > 0 {
		inSector := int(fileOffset % CD_DATA_SIZE)
		chunk := CD_DATA_SIZE - inSector
		if chunk > n {
			chunk = n
		}
		spans = append(spans, Span{
			ImageOffset: ImageOffsetOf(f.LBA, fileOffset),
			FileOffset:  fileOffset,
			Length:      chunk,
		})
		fileOffset += uint32(chunk)
		n -= chunk
	}
	return spans, nil
}

// Validate checks that every sector of the file lies inside an image of imageSize bytes
func (f ContainedFile) Validate(imageSize int) error {
	if f.Length == 0 {
		return common.ConfigError("%s has zero length", f.describe())
	}
	if f.EndImageOffset() > imageSize {
		return common.NewError(common.KindBoundsViolation,
			"%s at LBA %d needs %d sectors, image has %d", f.describe(), f.LBA, f.SectorCount(), imageSize/CD_SECTOR_SIZE).
			At(uint32(int(f.LBA) * CD_SECTOR_SIZE))
	}
	return nil
}

func (f ContainedFile) describe() string {
	if f.Name != "" {
		return f.Name
	}
	return "file"
}

// readSpans gathers user data from the image for a file range
func readSpans(buf *Buffer, f ContainedFile, fileOffset uint32, n int) ([]byte, error) {
	spans, err := f.Spans(fileOffset, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, n)
	for _, s := range spans {
		chunk, err := buf.ReadBytes(s.ImageOffset, s.Length)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// writeSpans scatters data into the user-data windows of a file range.
// Every span is bounds-checked before the first byte is written.
func writeSpans(buf *Buffer, f ContainedFile, fileOffset uint32, data []byte) error {
	spans, err := f.Spans(fileOffset, len(data))
	if err != nil {
		return err
	}
	for _, s := range spans {
		if err := buf.check(s.ImageOffset, s.Length); err != nil {
			return err
		}
	}
	pos := 0
	for _, s := range spans {
		common.LogDebug(common.DebugSpanWrite, s.FileOffset, s.ImageOffset, s.Length)
		if err := buf.WriteBytes(s.ImageOffset, data[pos:pos+s.Length]); err != nil {
			return err
		}
		pos += s.Length
	}
	return nil
}
