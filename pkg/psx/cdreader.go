// Package psx provides ISO9660 directory parsing over an in-memory raw image.
// Directory walking follows mkpsxiso's dumpsxiso.
package psx

import (
	"encoding/binary"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hansbonini/blazetools/pkg/common"
)

// CDReader resolves files stored in a raw 2352-byte sector image
type CDReader struct {
	buf          *Buffer
	totalSectors uint32
}

// NewCDReader wraps a loaded image
func NewCDReader(buf *Buffer) *CDReader {
	return &CDReader{buf: buf, totalSectors: uint32(buf.SectorCount())}
}

// readSector returns the user data of one sector
func (r *CDReader) readSector(lba uint32) ([]byte, error) {
	if lba >= r.totalSectors {
		return nil, fmt.Errorf("LBA %d out of bounds (total: %d)", lba, r.totalSectors)
	}
	return r.buf.ReadBytes(int(lba)*CD_SECTOR_SIZE+CD_USER_DATA_START, CD_DATA_SIZE)
}

// ValidateISO9660 checks for the primary volume descriptor signature
func (r *CDReader) ValidateISO9660() error {
	data, err := r.readSector(ISO_PVD_SECTOR)
	if err != nil {
		return err
	}

	// 0x01 + "CD001" + 0x01
	expected := []byte{0x01, 0x43, 0x44, 0x30, 0x30, 0x31, 0x01}
	for i, b := range expected {
		if data[i] != b {
			return fmt.Errorf("invalid ISO9660 signature at byte %d: got 0x%02X, expected 0x%02X", i, data[i], b)
		}
	}
	return nil
}

// ReadISODescriptor reads the primary volume descriptor
func (r *CDReader) ReadISODescriptor() (*ISODescriptor, error) {
	if err := r.ValidateISO9660(); err != nil {
		return nil, err
	}
	data, err := r.readSector(ISO_PVD_SECTOR)
	if err != nil {
		return nil, err
	}

	descriptor := &ISODescriptor{}
	descriptor.Type = data[0]
	copy(descriptor.ID[:], data[1:6])
	descriptor.Version = data[6]
	copy(descriptor.SystemID[:], data[8:40])
	copy(descriptor.VolumeID[:], data[40:72])
	descriptor.VolumeSpaceSize = binary.LittleEndian.Uint32(data[80:84])
	descriptor.LogicalBlock = binary.LittleEndian.Uint16(data[128:130])
	copy(descriptor.RootDirRecord[:], data[ISO_ROOT_RECORD_OFS:ISO_ROOT_RECORD_OFS+34])

	return descriptor, nil
}

// ListFiles walks the whole directory tree depth first
func (r *CDReader) ListFiles() ([]CDFileEntry, error) {
	descriptor, err := r.ReadISODescriptor()
	if err != nil {
		return nil, err
	}
	rootLBA := common.ExtractLBAFromDirRecord(descriptor.RootDirRecord[:])
	rootSize := common.ExtractSizeFromDirRecord(descriptor.RootDirRecord[:])

	var out []CDFileEntry
	visited := map[uint32]bool{}
	var walk func(lba, size uint32, prefix string) error
	walk = func(lba, size uint32, prefix string) error {
		if visited[lba] {
			return nil
		}
		visited[lba] = true

		entries, err := r.ParseDirectoryEntries(lba, size)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			entry.Path = path.Join(prefix, entry.Name)
			out = append(out, entry)
			if entry.IsDir {
				if err := walk(entry.LBA, entry.Size, entry.Path); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(rootLBA, rootSize, ""); err != nil {
		return nil, err
	}
	return out, nil
}

// Locate finds a file by name or by path, case-insensitively.
// A bare name matches the first file with that name in any directory.
func (r *CDReader) Locate(name string) (ContainedFile, error) {
	files, err := r.ListFiles()
	if err != nil {
		return ContainedFile{}, fmt.Errorf("%s: %w", common.ErrFailedToLocateFile, err)
	}
	want := strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "/")
	want = common.CleanFileName(want)
	byPath := strings.Contains(want, "/")

	for _, f := range files {
		if f.IsDir {
			continue
		}
		candidate := f.Name
		if byPath {
			candidate = f.Path
		}
		if strings.EqualFold(candidate, want) {
			common.LogDebug(common.DebugDirectoryEntry, f.Path, f.LBA, f.Size)
			return ContainedFile{Name: f.Name, LBA: f.LBA, Length: f.Size}, nil
		}
	}
	return ContainedFile{}, common.ConfigError("%s: %q not found in image", common.ErrFailedToLocateFile, name)
}

// ParseDirectoryEntries parses the records of one directory extent,
// skipping the "." and ".." entries.
func (r *CDReader) ParseDirectoryEntries(lba uint32, sizeInBytes uint32) ([]CDFileEntry, error) {
	var entries []CDFileEntry
	sizeInSectors := common.GetSizeInSectors(sizeInBytes)

	for sector := uint32(0); sector < sizeInSectors; sector++ {
		data, err := r.readSector(lba + sector)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory sector %d: %w", lba+sector, err)
		}

		offset := 0
		for offset < CD_DATA_SIZE {
			entry, entrySize, err := readDirectoryEntry(data[offset:])
			if err != nil {
				// records never cross a sector boundary
				break
			}
			offset += entrySize

			if entry.Name == "." || entry.Name == ".." {
				continue
			}
			if r.isValidEntry(entry) {
				entries = append(entries, entry)
			} else {
				common.LogDebug("Skipping invalid entry: %s (LBA: %d, Size: %d)", entry.Name, entry.LBA, entry.Size)
			}
		}
	}

	return entries, nil
}

// readDirectoryEntry parses one record at the start of data
func readDirectoryEntry(data []byte) (CDFileEntry, int, error) {
	if len(data) == 0 {
		return CDFileEntry{}, 0, fmt.Errorf("end of sector")
	}
	entryLength := int(data[0])
	if entryLength == 0 {
		return CDFileEntry{}, 0, fmt.Errorf("end of directory entries")
	}
	if entryLength < ISO_DIR_RECORD_MIN {
		return CDFileEntry{}, 0, fmt.Errorf("entry too short")
	}
	if entryLength > len(data) {
		return CDFileEntry{}, 0, fmt.Errorf("entry exceeds sector bounds")
	}

	record := data[:entryLength]
	filenameLength := int(record[32])
	if ISO_DIR_RECORD_MIN+filenameLength > entryLength {
		return CDFileEntry{}, entryLength, fmt.Errorf("filename exceeds entry bounds")
	}

	size := common.ExtractSizeFromDirRecord(record)
	entry := CDFileEntry{
		Name:       cleanIdentifier(string(record[33 : 33+filenameLength])),
		LBA:        common.ExtractLBAFromDirRecord(record),
		Size:       size,
		IsDir:      record[25]&ISO_FLAG_DIRECTORY != 0,
		ExtentSize: common.GetSizeInSectors(size),
	}
	entry.MSF = common.LBAToMSF(entry.LBA)
	return entry, entryLength, nil
}

func cleanIdentifier(name string) string {
	switch name {
	case "\x00":
		return "."
	case "\x01":
		return ".."
	}
	return common.CleanFileName(name)
}

func (r *CDReader) isValidEntry(entry CDFileEntry) bool {
	if entry.LBA == 0 || entry.LBA >= r.totalSectors {
		return false
	}
	// 700MB is the largest CD
	if entry.Size > 700*1024*1024 {
		return false
	}
	return isValidFilename(entry.Name)
}

func isValidFilename(name string) bool {
	if len(name) == 0 || strings.Contains(name, "\x00") {
		return false
	}
	nonPrintable := 0
	for _, c := range name {
		if !unicode.IsPrint(c) && c != '\t' {
			nonPrintable++
		}
	}
	if nonPrintable > len(name)/2 {
		return false
	}
	return utf8.ValidString(name)
}

// ExtractFile writes the user data of a contained file to outputPath
func (r *CDReader) ExtractFile(file ContainedFile, outputPath string) error {
	if err := file.Validate(r.buf.Len()); err != nil {
		return err
	}
	data, err := readSpans(r.buf, file, 0, int(file.Length))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputPath, err)
	}
	return nil
}
