// Package psx provides the executable view: the PS-X EXE stored in raw
// sectors, addressed by file offset or by load address.
package psx

import (
	"encoding/binary"

	"github.com/hansbonini/blazetools/pkg/common"
)

// ExecutableView presents an executable as a contiguous byte stream
type ExecutableView struct {
	buf        *Buffer
	file       ContainedFile
	loadBase   uint32
	headerSize uint32
}

// NewExecutableView validates the layout and the PS-X EXE signature.
// A zero loadBase is replaced by the t_addr field of the header.
func NewExecutableView(buf *Buffer, file ContainedFile, loadBase, headerSize uint32) (*ExecutableView, error) {
	if file.Name == "" {
		file.Name = "executable"
	}
	if err := file.Validate(buf.Len()); err != nil {
		return nil, err
	}
	if headerSize == 0 {
		headerSize = EXE_HEADER_SIZE
	}
	if file.Length <= headerSize {
		return nil, common.ConfigError("%s is %d bytes, smaller than its 0x%X byte header", file.Name, file.Length, headerSize)
	}

	v := &ExecutableView{buf: buf, file: file, loadBase: loadBase, headerSize: headerSize}

	sig, err := readSpans(buf, file, 0, len(EXE_SIGNATURE))
	if err != nil {
		return nil, err
	}
	if string(sig) != EXE_SIGNATURE {
		return nil, common.NewError(common.KindLayoutMismatch,
			"%s does not start with %q (got %q)", file.Name, EXE_SIGNATURE, string(sig)).At(0)
	}

	if v.loadBase == 0 {
		tAddr, err := v.ReadFileWord(EXE_OFS_LOAD_ADDRESS)
		if err != nil {
			return nil, err
		}
		v.loadBase = tAddr
	}
	return v, nil
}

// File returns the contained file backing the view
func (v *ExecutableView) File() ContainedFile {
	return v.file
}

// LoadBase returns the load address of the first byte after the header
func (v *ExecutableView) LoadBase() uint32 {
	return v.loadBase
}

// HeaderSize returns the size of the EXE header inside the file
func (v *ExecutableView) HeaderSize() uint32 {
	return v.headerSize
}

// FileOffsetOf translates a load address into an executable file offset.
// The range [addr, addr+n) must lie inside the loaded image.
func (v *ExecutableView) FileOffsetOf(addr uint32, n int) (uint32, error) {
	low := uint64(v.loadBase)
	high := low + uint64(v.file.Length-v.headerSize)
	if uint64(addr) < low || uint64(addr)+uint64(n) > high {
		return 0, common.NewError(common.KindAddressOutOfRange,
			"load address 0x%08X (+%d) outside [0x%08X, 0x%08X)", addr, n, low, high).At(addr)
	}
	return addr - v.loadBase + v.headerSize, nil
}

// LoadAddressOf translates an executable file offset back into a load address
func (v *ExecutableView) LoadAddressOf(fileOffset uint32) uint32 {
	return v.loadBase + fileOffset - v.headerSize
}

// ReadFileBytes reads n bytes at an executable file offset
func (v *ExecutableView) ReadFileBytes(off uint32, n int) ([]byte, error) {
	return readSpans(v.buf, v.file, off, n)
}

// WriteFileBytes writes data at an executable file offset, splitting at sector boundaries
func (v *ExecutableView) WriteFileBytes(off uint32, data []byte) error {
	return writeSpans(v.buf, v.file, off, data)
}

// ReadFileWord reads a little-endian word at an executable file offset
func (v *ExecutableView) ReadFileWord(off uint32) (uint32, error) {
	b, err := v.ReadFileBytes(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// WriteFileWord writes a little-endian word at an executable file offset.
// A word straddling two sectors is written as two user-data spans.
func (v *ExecutableView) WriteFileWord(off uint32, word uint32) error {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], word)
	return v.WriteFileBytes(off, tmp[:])
}

// ReadAt reads n bytes at a load address
func (v *ExecutableView) ReadAt(addr uint32, n int) ([]byte, error) {
	off, err := v.FileOffsetOf(addr, n)
	if err != nil {
		return nil, err
	}
	return v.ReadFileBytes(off, n)
}

// WriteAt writes data at a load address
func (v *ExecutableView) WriteAt(addr uint32, data []byte) error {
	off, err := v.FileOffsetOf(addr, len(data))
	if err != nil {
		return err
	}
	return v.WriteFileBytes(off, data)
}

// ReadWordAt reads the word at a load address
func (v *ExecutableView) ReadWordAt(addr uint32) (uint32, error) {
	off, err := v.FileOffsetOf(addr, 4)
	if err != nil {
		return 0, err
	}
	return v.ReadFileWord(off)
}

// WriteWordAt writes the word at a load address
func (v *ExecutableView) WriteWordAt(addr uint32, word uint32) error {
	off, err := v.FileOffsetOf(addr, 4)
	if err != nil {
		return err
	}
	return v.WriteFileWord(off, word)
}
