// Package common provides common utilities for CD-ROM operations.
// This file contains functions for MSF conversion and ISO9660 record helpers.
package common

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// LBAToMSF converts LBA (Logical Block Address) to MSF (Minutes:Seconds:Frames) format
// LBA to MSF conversion: LBA + 150 (pregap)
func LBAToMSF(lba uint32) string {
	totalFrames := lba + 150

	minutes := totalFrames / (60 * 75)
	seconds := (totalFrames % (60 * 75)) / 75
	frames := totalFrames % 75

	return fmt.Sprintf("%02d:%02d:%02d", minutes, seconds, frames)
}

// GetSizeInSectors calculates the number of sectors needed for a given size in bytes
func GetSizeInSectors(sizeBytes uint32) uint32 {
	const sectorSize = 2048
	return (sizeBytes + sectorSize - 1) / sectorSize
}

// CleanFileName removes version numbers from ISO9660 file names
func CleanFileName(fileName string) string {
	// "FILE.EXT;1" -> "FILE.EXT"
	if idx := strings.IndexByte(fileName, ';'); idx != -1 {
		return fileName[:idx]
	}
	return fileName
}

// ExtractLBAFromDirRecord extracts LBA from ISO9660 directory record
func ExtractLBAFromDirRecord(dirRecord []byte) uint32 {
	if len(dirRecord) < 6 {
		return 0
	}
	// LBA is at offset 2 (little-endian)
	return binary.LittleEndian.Uint32(dirRecord[2:6])
}

// ExtractSizeFromDirRecord extracts size from ISO9660 directory record
func ExtractSizeFromDirRecord(dirRecord []byte) uint32 {
	if len(dirRecord) < 14 {
		return 0
	}
	// Size is at offset 10 (little-endian)
	return binary.LittleEndian.Uint32(dirRecord[10:14])
}
