package common

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Hex is a 32-bit offset or word read from a descriptor. It accepts plain
// integers, decimal strings and "0x" prefixed hexadecimal strings.
type Hex uint32

// ParseHex parses a decimal or "0x" prefixed hexadecimal string.
func ParseHex(s string) (Hex, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err = strconv.ParseUint(s[2:], 16, 32)
	} else {
		v, err = strconv.ParseUint(s, 10, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Hex(v), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (h *Hex) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number, got a %s", n.Line, nodeKindName(n.Kind))
	}

	var i int64
	if n.Tag == "!!int" {
		if err := n.Decode(&i); err == nil {
			if i < 0 || i > 0xFFFFFFFF {
				return fmt.Errorf("line %d: number %d out of range for a 32-bit word", n.Line, i)
			}
			*h = Hex(i)
			return nil
		}
	}

	v, err := ParseHex(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*h = v
	return nil
}

// MarshalYAML renders the value as a hexadecimal string.
func (h Hex) MarshalYAML() (interface{}, error) {
	return h.String(), nil
}

// MarshalJSON renders the value as a hexadecimal string.
func (h Hex) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(h.String())), nil
}

func (h Hex) String() string {
	return fmt.Sprintf("0x%X", uint32(h))
}

// Set implements pflag.Value so a Hex can be bound to a command-line flag.
func (h *Hex) Set(s string) error {
	v, err := ParseHex(s)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Type implements pflag.Value.
func (h *Hex) Type() string {
	return "hex"
}

func nodeKindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.AliasNode:
		return "alias"
	case yaml.DocumentNode:
		return "document"
	default:
		return "scalar"
	}
}
