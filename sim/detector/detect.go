package detector

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// DefaultCutoff rejects predicted collisions further away than this.
	// Guards against numerical blow-up when |Δv|² is close to zero.
	DefaultCutoff = 1e9

	// DefaultContactTolerance is the gap below which an approaching pair
	// counts as touching and collides immediately.
	DefaultContactTolerance = 1e-9
)

// Body is one particle's kinematic state at a common instant.
type Body struct {
	Position r3.Vec
	Velocity r3.Vec
	Radius   float64
}

// Limits bounds the roots Detect accepts.
type Limits struct {
	Cutoff           float64
	ContactTolerance float64
}

// DefaultLimits returns the default root bounds.
func DefaultLimits() Limits {
	return Limits{Cutoff: DefaultCutoff, ContactTolerance: DefaultContactTolerance}
}

// Detect returns the delay until spheres a and b first touch.
//
// With Δu = pos(b) − pos(a), Δv = vel(b) − vel(a) and R = r(a) + r(b), it
// solves |Δu + Δv·t|² = R² for the earlier root. There is no collision when
// R = 0, when the pair is separating or moving in parallel (2Δu·Δv ≥ 0), when
// the discriminant is negative, or when the root exceeds Cutoff. An
// approaching pair whose gap is within ContactTolerance, or which already
// overlaps, collides at delay 0.
func Detect(a, b Body, lim Limits) (float64, bool) {
	radius := a.Radius + b.Radius
	if radius == 0 {
		return 0, false
	}
	du := r3.Sub(b.Position, a.Position)
	dv := r3.Sub(b.Velocity, a.Velocity)

	qb := 2 * r3.Dot(du, dv)
	if qb >= 0 {
		return 0, false
	}
	if r3.Norm(du) <= radius+lim.ContactTolerance {
		return 0, true
	}
	qa := r3.Dot(dv, dv)
	qc := r3.Dot(du, du) - radius*radius
	disc := qb*qb - 4*qa*qc
	if disc < 0 {
		return 0, false
	}
	// (−b − √d)/2a rewritten to avoid cancellation when c is small.
	root := 2 * qc / (-qb + math.Sqrt(disc))
	if math.IsNaN(root) || root > lim.Cutoff {
		return 0, false
	}
	return math.Max(root, 0), true
}
