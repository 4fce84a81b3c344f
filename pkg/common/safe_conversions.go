package common

import (
	"fmt"
	"math"
)

// SafeIntToUint16 safely converts int to uint16 with bounds checking
func SafeIntToUint16(value int) (uint16, error) {
	if value < 0 || value > math.MaxUint16 {
		return 0, fmt.Errorf("value %d out of range for uint16 (0-%d)", value, math.MaxUint16)
	}
	return uint16(value), nil
}

// SafeIntToUint8 safely converts int to uint8 with bounds checking
func SafeIntToUint8(value int) (uint8, error) {
	if value < 0 || value > math.MaxUint8 {
		return 0, fmt.Errorf("value %d out of range for uint8 (0-%d)", value, math.MaxUint8)
	}
	return uint8(value), nil
}

// SafeInt64ToUint32 safely converts int64 to uint32 with bounds checking
func SafeInt64ToUint32(value int64) (uint32, error) {
	if value < 0 {
		return 0, fmt.Errorf("value %d is negative, cannot convert to uint32", value)
	}
	if value > math.MaxUint32 {
		return 0, fmt.Errorf("value %d out of range for uint32 (0-%d)", value, math.MaxUint32)
	}
	return uint32(value), nil
}

// StatToUint16 packs a record field that may be written either as a signed
// int16 or as an unsigned uint16.
func StatToUint16(value int) (uint16, error) {
	if value < math.MinInt16 || value > math.MaxUint16 {
		return 0, fmt.Errorf("value %d out of range for a 16-bit field (%d-%d)", value, math.MinInt16, math.MaxUint16)
	}
	if value < 0 {
		return uint16(int16(value)), nil
	}
	return uint16(value), nil
}

// ClampToUint16 saturates value into the uint16 range
func ClampToUint16(value int64) uint16 {
	if value < 0 {
		return 0
	}
	if value > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(value)
}
