package particle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/inference-sim/particle-sim/sim"
)

func generatorRNG(seed int64) *sim.PartitionedRNG {
	return sim.NewPartitionedRNG(sim.NewSimulationKey(seed))
}

func testSpecies() map[string]SpeciesSpec {
	return map[string]SpeciesSpec{
		"small": {Mass: 1, Radius: 0.2, Tau: 1, Shape: 2, Mean: 1},
		"large": {Mass: 5, Radius: 0.6},
	}
}

func TestGenerate_PlacesNonOverlappingParticles(t *testing.T) {
	cfg := GenerateConfig{
		Dim: 2, Count: 40,
		PosMin: 0, PosMax: 20, VelMin: -1, VelMax: 1,
		MaxAttempts: 50, Species: testSpecies(),
	}

	f, err := Generate(cfg, generatorRNG(5).ForSubsystem(sim.SubsystemGenerator))
	require.NoError(t, err)
	table, err := f.Resolve()
	require.NoError(t, err)

	require.Equal(t, 40, table.Len())
	for i, a := range table.Particles {
		for _, b := range table.Particles[i+1:] {
			d := r3.Sub(a.Position, b.Position)
			assert.GreaterOrEqual(t, r3.Dot(d, d), (a.Radius+b.Radius)*(a.Radius+b.Radius),
				"particles %d and %d overlap", a.ID, b.ID)
		}
		for _, c := range []float64{a.Position.X, a.Position.Y} {
			assert.GreaterOrEqual(t, c, 0.0)
			assert.Less(t, c, 20.0)
		}
		assert.Zero(t, a.Position.Z)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	cfg := GenerateConfig{Dim: 3, Count: 10, PosMin: -5, PosMax: 5, VelMin: 0, VelMax: 0, Species: testSpecies()}

	a, err := Generate(cfg, generatorRNG(1).ForSubsystem(sim.SubsystemGenerator))
	require.NoError(t, err)
	b, err := Generate(cfg, generatorRNG(1).ForSubsystem(sim.SubsystemGenerator))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	for _, p := range a.Particles {
		assert.Equal(t, []float64{0, 0, 0}, p.Velocity, "a degenerate range yields its bound")
	}
}

func TestGenerate_StopsWhenSpaceRunsOut(t *testing.T) {
	// Only one 0.6-radius sphere fits in a unit interval.
	cfg := GenerateConfig{
		Dim: 1, Count: 5, PosMin: 0, PosMax: 1,
		MaxAttempts: 20, Species: map[string]SpeciesSpec{"large": {Mass: 1, Radius: 0.6}},
	}

	f, err := Generate(cfg, generatorRNG(2).ForSubsystem(sim.SubsystemGenerator))

	require.NoError(t, err)
	assert.Len(t, f.Particles, 1)
	assert.Contains(t, f.Particles, "1")
}

func TestGenerate_InvalidConfig(t *testing.T) {
	rng := generatorRNG(1).ForSubsystem(sim.SubsystemGenerator)
	tests := []struct {
		name string
		cfg  GenerateConfig
	}{
		{"dimension", GenerateConfig{Dim: 4, Species: testSpecies(), PosMax: 1}},
		{"no species", GenerateConfig{Dim: 2, PosMax: 1}},
		{"empty position range", GenerateConfig{Dim: 2, Species: testSpecies(), PosMin: 1, PosMax: 1}},
		{"inverted velocity range", GenerateConfig{Dim: 2, Species: testSpecies(), PosMax: 1, VelMin: 1, VelMax: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Generate(tt.cfg, rng)
			assert.Error(t, err)
		})
	}
}
