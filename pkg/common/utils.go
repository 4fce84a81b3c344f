package common

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseHexBytes decodes a byte string written in a descriptor.
// Spaces, commas and an optional "0x" prefix are ignored: "FF FF 00 00",
// "0xFFFF0000" and "ffff0000" are the same four bytes.
func ParseHexBytes(s string) ([]byte, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	clean = strings.NewReplacer(" ", "", ",", "", "\t", "", "_", "").Replace(clean)
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("hex string %q has an odd number of digits", s)
	}
	out, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string %q: %w", s, err)
	}
	return out, nil
}

// WordsLE splits data into little-endian 32-bit words, dropping a trailing partial word
func WordsLE(data []byte) []uint32 {
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return words
}

// PutWordsLE encodes words as little-endian bytes
func PutWordsLE(words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}
