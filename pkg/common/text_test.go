package common

import (
	"bytes"
	"testing"
)

func TestEncodeText(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		encoding string
		expected []byte
		hasError bool
	}{
		{"ascii default", "Longsword", "", []byte("Longsword"), false},
		{"ascii explicit", "Bow", EncodingASCII, []byte("Bow"), false},
		{"ascii rejects accents", "Épée", EncodingASCII, nil, true},
		{"windows-1252 accents", "Épée", EncodingWindows1252, []byte{0xC9, 'p', 0xE9, 'e'}, false},
		{"cp1252 alias", "é", "CP1252", []byte{0xE9}, false},
		{"windows-1252 unmappable", "日本", EncodingWindows1252, nil, true},
		{"unknown encoding", "x", "shift-jis", nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := EncodeText(tc.input, tc.encoding)
			if tc.hasError {
				if err == nil {
					t.Errorf("EncodeText(%q, %q) should fail", tc.input, tc.encoding)
				}
				return
			}
			if err != nil {
				t.Fatalf("EncodeText failed: %v", err)
			}
			if !bytes.Equal(result, tc.expected) {
				t.Errorf("EncodeText(%q) = %X, want %X", tc.input, result, tc.expected)
			}
		})
	}
}

func TestDecodeText(t *testing.T) {
	if got := DecodeText([]byte{0xC9, 'p', 0xE9, 'e'}, EncodingWindows1252); got != "Épée" {
		t.Errorf("DecodeText() = %q, want %q", got, "Épée")
	}
	if got := DecodeText([]byte("Bow"), EncodingASCII); got != "Bow" {
		t.Errorf("DecodeText() = %q, want %q", got, "Bow")
	}
}

func TestValidEncoding(t *testing.T) {
	for _, enc := range []string{"", "ascii", "ASCII", "windows-1252", "cp1252"} {
		if !ValidEncoding(enc) {
			t.Errorf("ValidEncoding(%q) = false", enc)
		}
	}
	if ValidEncoding("utf-16") {
		t.Error("ValidEncoding(utf-16) = true")
	}
}
