// SPDX-License-Identifier: MIT
// Package bitint provides power-of-two helpers used for FFT and buffer
// sizing. All operations are O(1), allocation-free and real-time safe.
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size.
// Exact powers of 2 are preserved; non-positive input yields 1.
//
// The size-1 subtraction keeps exact powers from doubling:
// bits.Len(7) = 3 so 8 stays 8, whereas bits.Len(8) = 4 would give 16.
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2.
// Powers of 2 have a single bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
