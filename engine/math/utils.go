package math

import "golang.org/x/exp/constraints"

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// AlignUp rounds size up to the next multiple of alignment. An alignment of
// zero leaves size unchanged.
func AlignUp[T constraints.Unsigned](size, alignment T) T {
	if alignment == 0 {
		return size
	}
	return (size + alignment - 1) / alignment * alignment
}

// UnitToByte maps a normalized [0, 1] channel value to [0, 255], clamping
// out-of-range input.
func UnitToByte[T constraints.Float](v T) uint8 {
	return uint8(Clamp(v, 0, 1)*255 + 0.5)
}
