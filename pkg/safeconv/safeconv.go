// Package safeconv converts between integer types at libgit2 and output
// boundaries where the value range is known but not provable to the compiler.
package safeconv

import "math"

// MustUintToInt converts a count reported by libgit2. It panics on overflow.
func MustUintToInt(v uint) int {
	if v > math.MaxInt {
		panic("safeconv: uint to int overflow")
	}

	return int(v)
}

// MustIntToUint converts an index passed to libgit2. It panics on negative values.
func MustIntToUint(v int) uint {
	if v < 0 {
		panic("safeconv: negative int to uint conversion")
	}

	return uint(v)
}

// MustFileMode narrows a libgit2 file mode. Git modes fit in 16 bits.
func MustFileMode(v int) uint16 {
	if v < 0 || v > math.MaxUint16 {
		panic("safeconv: file mode out of range")
	}

	return uint16(v)
}

// Size converts a byte count for display, treating negative values as zero.
func Size(v int64) uint64 {
	if v < 0 {
		return 0
	}

	return uint64(v)
}
