package impulse

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inference-sim/particle-sim/sim"
)

// SampleDirection draws a unit vector uniformly distributed over the
// directions of a dim-dimensional space:
//   - 1-D: ±1 with equal probability
//   - 2-D: angle uniform in [0, 2π)
//   - 3-D: z uniform in [-1, 1], azimuth uniform in [0, 2π), xy scaled by √(1−z²)
//
// Any other dimension is an invariant violation.
func SampleDirection(dim int, rng *rand.Rand) r3.Vec {
	angle := distuv.Uniform{Min: 0, Max: 2 * math.Pi, Src: rng}
	switch dim {
	case 1:
		if rng.IntN(2) == 0 {
			return r3.Vec{X: -1}
		}
		return r3.Vec{X: 1}
	case 2:
		theta := angle.Rand()
		return r3.Vec{X: math.Cos(theta), Y: math.Sin(theta)}
	case 3:
		z := distuv.Uniform{Min: -1, Max: 1, Src: rng}.Rand()
		phi := angle.Rand()
		xy := math.Sqrt(1 - z*z)
		return r3.Vec{X: xy * math.Cos(phi), Y: xy * math.Sin(phi), Z: z}
	default:
		sim.Violation("impulse", "unsupported number of dimensions: %d", dim)
		return r3.Vec{}
	}
}
