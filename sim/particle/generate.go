package particle

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"
)

// GenerateConfig controls random particle placement.
type GenerateConfig struct {
	Dim         int
	Count       int     // particles to attempt to place
	PosMin      float64 // each position component lies in [PosMin, PosMax)
	PosMax      float64
	VelMin      float64 // each velocity component lies in [VelMin, VelMax)
	VelMax      float64
	MaxAttempts int // placement attempts per particle before giving up
	Species     map[string]SpeciesSpec
}

// Generate places up to cfg.Count particles with uniformly random positions,
// velocities and species such that no two spheres overlap. Placement stops at
// the first particle that cannot be placed within MaxAttempts; the particles
// placed so far are returned.
func Generate(cfg GenerateConfig, rng *rand.Rand) (*File, error) {
	if !ValidDimension(cfg.Dim) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDimension, cfg.Dim)
	}
	if len(cfg.Species) == 0 {
		return nil, fmt.Errorf("generate: at least one species is required")
	}
	if cfg.PosMax <= cfg.PosMin || cfg.VelMax < cfg.VelMin {
		return nil, fmt.Errorf("generate: invalid ranges pos=[%v,%v) vel=[%v,%v)", cfg.PosMin, cfg.PosMax, cfg.VelMin, cfg.VelMax)
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 10
	}

	names := make([]string, 0, len(cfg.Species))
	for name := range cfg.Species {
		names = append(names, name)
	}
	slices.Sort(names)

	pos := distuv.Uniform{Min: cfg.PosMin, Max: cfg.PosMax, Src: rng}
	vel := distuv.Uniform{Min: cfg.VelMin, Max: cfg.VelMax, Src: rng}

	var existing []placement
	out := &File{
		Species:   cfg.Species,
		Particles: make(map[string]ParticleSpec, cfg.Count),
	}

	for id := 1; id <= cfg.Count; id++ {
		ok := false
		for try := 0; try < attempts; try++ {
			candidate := sampleComponents(pos, cfg.Dim)
			species := names[rng.IntN(len(names))]
			radius := cfg.Species[species].Radius
			at := VecOf(candidate)
			if overlaps(at, radius, existing) {
				logrus.Debugf("generate: overlapping position for particle %d (attempt %d)", id, try+1)
				continue
			}
			existing = append(existing, placement{at: at, radius: radius})
			out.Particles[strconv.Itoa(id)] = ParticleSpec{
				Position: candidate,
				Velocity: sampleComponents(vel, cfg.Dim),
				Species:  species,
			}
			ok = true
			break
		}
		if !ok {
			logrus.Warnf("generate: unable to place particle %d after %d attempts; stopping at %d particles", id, attempts, id-1)
			break
		}
	}

	return out, nil
}

func sampleComponents(d distuv.Uniform, dim int) []float64 {
	out := make([]float64, dim)
	for i := range out {
		if d.Max == d.Min {
			out[i] = d.Min
			continue
		}
		out[i] = d.Rand()
	}
	return out
}

type placement struct {
	at     r3.Vec
	radius float64
}

func overlaps(at r3.Vec, radius float64, existing []placement) bool {
	for _, e := range existing {
		if r3.Norm(r3.Sub(at, e.at)) < radius+e.radius {
			return true
		}
	}
	return false
}
