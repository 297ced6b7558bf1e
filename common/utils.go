package common

import "cmp"

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// Clamp limits v to [lo, hi].
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// DivCeil returns ceil(a / b) for positive b.
func DivCeil(a, b uint32) uint32 {
	return (a + b - 1) / b
}
