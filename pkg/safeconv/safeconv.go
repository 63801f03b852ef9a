// Package safeconv provides overflow-checked numeric conversions for
// values that cross a wire-format boundary, such as a byte-slice length
// going into a fixed-width length prefix.
package safeconv

import (
	"fmt"
	"math"
	"time"
)

// UnixToUint32 converts t's Unix timestamp to uint32, the width several
// wire formats use for timestamps. It errors on a negative time or one
// past 2106 rather than silently wrapping.
func UnixToUint32(t time.Time) (uint32, error) {
	unix := t.Unix()
	if unix < 0 {
		return 0, fmt.Errorf("safeconv: negative timestamp: %d", unix)
	}
	if unix > math.MaxUint32 {
		return 0, fmt.Errorf("safeconv: timestamp exceeds uint32 range: %d", unix)
	}
	return uint32(unix), nil
}

// IntToUint16 converts val to uint16, erroring instead of truncating if
// it falls outside the representable range.
func IntToUint16(val int) (uint16, error) {
	if val < 0 {
		return 0, fmt.Errorf("safeconv: negative value: %d", val)
	}
	if val > math.MaxUint16 {
		return 0, fmt.Errorf("safeconv: value exceeds uint16 range: %d", val)
	}
	return uint16(val), nil
}

// LenToUint16 converts len(data) to uint16, the width of the length field
// that frames an onion-return cookie trailer.
func LenToUint16(data []byte) (uint16, error) {
	return IntToUint16(len(data))
}
