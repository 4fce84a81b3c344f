// Package psx provides PlayStation-specific structures and functionality.
// This file contains CD-ROM related structures for PlayStation disc images.
package psx

// Sector size constants for PlayStation CD-ROM
const (
	CD_SECTOR_SIZE     = 2352 // Full CD sector size
	CD_DATA_SIZE       = 2048 // Data portion of Mode 2 Form 1 sector
	CD_SYNC_SIZE       = 12   // Sync pattern size
	CD_HEADER_SIZE     = 4    // Header size (3 address bytes + 1 mode byte)
	CD_SUBHEADER_SIZE  = 8    // XA subheader (stored twice)
	CD_USER_DATA_START = CD_SYNC_SIZE + CD_HEADER_SIZE + CD_SUBHEADER_SIZE // 24
	CD_EDC_ECC_SIZE    = CD_SECTOR_SIZE - CD_USER_DATA_START - CD_DATA_SIZE // 280
)

// ISO9660 layout
const (
	ISO_PVD_SECTOR      = 16
	ISO_DIR_RECORD_MIN  = 33
	ISO_FLAG_DIRECTORY  = 0x02
	ISO_ROOT_RECORD_OFS = 156
)

// PS-X EXE header layout
const (
	EXE_SIGNATURE        = "PS-X EXE"
	EXE_HEADER_SIZE      = 0x800
	EXE_OFS_INITIAL_PC   = 0x10
	EXE_OFS_LOAD_ADDRESS = 0x18
	EXE_OFS_TEXT_SIZE    = 0x1C
)

// ISODescriptor holds the fields of the primary volume descriptor this tool needs
type ISODescriptor struct {
	Type            byte     // Volume descriptor type
	ID              [5]byte  // Standard identifier "CD001"
	Version         byte     // Volume descriptor version
	SystemID        [32]byte // System identifier
	VolumeID        [32]byte // Volume identifier
	VolumeSpaceSize uint32   // Volume space size in sectors
	LogicalBlock    uint16   // Logical block size
	RootDirRecord   [34]byte // Directory entry for root directory
}

// CDFileEntry represents a file found in the CD image directory tree
type CDFileEntry struct {
	Name       string // File name without version suffix
	Path       string // Full path within CD
	LBA        uint32 // Logical Block Address
	MSF        string // Minutes:Seconds:Frames format
	Size       uint32 // File size in bytes
	IsDir      bool   // Whether this is a directory
	ExtentSize uint32 // Size in sectors
}
