// Package particle defines the typed particle records shared, by copy, between
// the simulation components, plus configuration parsing and random table
// generation.
package particle

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrUnsupportedDimension indicates a dimension outside {1, 2, 3}.
	ErrUnsupportedDimension = errors.New("particle: unsupported dimension")

	// ErrInvalidParticle indicates a particle record with invalid fields.
	ErrInvalidParticle = errors.New("particle: invalid particle")
)

// Species holds the per-species physical and stochastic parameters.
type Species struct {
	Mass   float64
	Radius float64
	Tau    float64 // mean time between random impulses
	Shape  float64 // Gamma shape of the impulse magnitude
	Mean   float64 // Gamma mean of the impulse magnitude
}

// Particle is one moving sphere.
type Particle struct {
	ID       int
	Species  string
	Position r3.Vec
	Velocity r3.Vec
	Mass     float64
	Radius   float64
	Tau      float64
	Shape    float64
	Mean     float64
}

// Table is the initial particle table handed to the simulation components.
// Particles are sorted by ID.
type Table struct {
	Dim       int
	Particles []Particle
}

// NewTable validates and sorts a particle table.
func NewTable(dim int, particles []Particle) (*Table, error) {
	if !ValidDimension(dim) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDimension, dim)
	}
	sorted := slices.Clone(particles)
	slices.SortFunc(sorted, func(a, b Particle) int { return a.ID - b.ID })
	for i, p := range sorted {
		if i > 0 && sorted[i-1].ID == p.ID {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidParticle, p.ID)
		}
		if !(p.Mass > 0) || math.IsInf(p.Mass, 0) {
			return nil, fmt.Errorf("%w: particle %d has mass %v", ErrInvalidParticle, p.ID, p.Mass)
		}
		if p.Radius < 0 || math.IsNaN(p.Radius) {
			return nil, fmt.Errorf("%w: particle %d has radius %v", ErrInvalidParticle, p.ID, p.Radius)
		}
		if !beyondDimZero(p.Position, dim) || !beyondDimZero(p.Velocity, dim) {
			return nil, fmt.Errorf("%w: particle %d has components beyond dimension %d", ErrInvalidParticle, p.ID, dim)
		}
	}
	return &Table{Dim: dim, Particles: sorted}, nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	return &Table{Dim: t.Dim, Particles: slices.Clone(t.Particles)}
}

// Get returns the particle with the given ID.
func (t *Table) Get(id int) (Particle, bool) {
	i, found := slices.BinarySearchFunc(t.Particles, id, func(p Particle, id int) int { return p.ID - id })
	if !found {
		return Particle{}, false
	}
	return t.Particles[i], true
}

// IDs returns all particle IDs in ascending order.
func (t *Table) IDs() []int {
	ids := make([]int, len(t.Particles))
	for i, p := range t.Particles {
		ids[i] = p.ID
	}
	return ids
}

// Len returns the number of particles.
func (t *Table) Len() int { return len(t.Particles) }

func beyondDimZero(v r3.Vec, dim int) bool {
	switch dim {
	case 1:
		return v.Y == 0 && v.Z == 0
	case 2:
		return v.Z == 0
	}
	return true
}
