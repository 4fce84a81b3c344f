package common

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Text encodings accepted by descriptors
const (
	EncodingASCII       = "ascii"
	EncodingWindows1252 = "windows-1252"
)

// EncodeText converts a descriptor string into the single-byte charset stored on disc.
// The default "ascii" encoding rejects anything outside 0x00-0x7F; "windows-1252"
// allows the accented letters used by the European releases.
func EncodeText(s, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "", EncodingASCII:
		for i, r := range s {
			if r >= utf8.RuneSelf {
				return nil, fmt.Errorf("character %q at byte %d is not ASCII", r, i)
			}
		}
		return []byte(s), nil
	case EncodingWindows1252, "cp1252":
		out, err := charmap.Windows1252.NewEncoder().String(s)
		if err != nil {
			return nil, fmt.Errorf("cannot encode %q as %s: %w", s, EncodingWindows1252, err)
		}
		return []byte(out), nil
	default:
		return nil, fmt.Errorf("unknown text encoding %q", encoding)
	}
}

// DecodeText converts bytes read from disc back into a Go string.
func DecodeText(b []byte, encoding string) string {
	switch strings.ToLower(encoding) {
	case EncodingWindows1252, "cp1252":
		out, err := charmap.Windows1252.NewDecoder().Bytes(b)
		if err == nil {
			return string(out)
		}
	}
	return string(b)
}

// ValidEncoding reports whether EncodeText understands the encoding name.
func ValidEncoding(encoding string) bool {
	switch strings.ToLower(encoding) {
	case "", EncodingASCII, EncodingWindows1252, "cp1252":
		return true
	}
	return false
}
