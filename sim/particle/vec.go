package particle

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// ValidDimension reports whether d is a supported spatial dimension.
func ValidDimension(d int) bool {
	return d >= 1 && d <= 3
}

// VecFromSlice builds a vector from exactly d components. Components beyond
// d are zero.
func VecFromSlice(d int, v []float64) (r3.Vec, error) {
	if !ValidDimension(d) {
		return r3.Vec{}, fmt.Errorf("%w: %d", ErrUnsupportedDimension, d)
	}
	if len(v) != d {
		return r3.Vec{}, fmt.Errorf("%w: vector has %d components, want %d", ErrInvalidParticle, len(v), d)
	}
	return VecOf(v), nil
}

// VecOf builds a vector from up to three components; missing ones are zero
// and extra ones are ignored.
func VecOf(v []float64) r3.Vec {
	var out r3.Vec
	if len(v) > 0 {
		out.X = v[0]
	}
	if len(v) > 1 {
		out.Y = v[1]
	}
	if len(v) > 2 {
		out.Z = v[2]
	}
	return out
}

// Components returns the first d components of v as a fresh slice.
func Components(v r3.Vec, d int) []float64 {
	all := [3]float64{v.X, v.Y, v.Z}
	out := make([]float64, d)
	copy(out, all[:d])
	return out
}

// Extrapolate returns p + v·dt.
func Extrapolate(p, v r3.Vec, dt float64) r3.Vec {
	return r3.Add(p, r3.Scale(dt, v))
}
