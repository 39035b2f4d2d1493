package particle

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestNewTable_Validation(t *testing.T) {
	ok := Particle{ID: 1, Mass: 1, Radius: 0.5}
	tests := []struct {
		name      string
		dim       int
		particles []Particle
		wantErr   error
	}{
		{"dimension zero", 0, []Particle{ok}, ErrUnsupportedDimension},
		{"dimension four", 4, []Particle{ok}, ErrUnsupportedDimension},
		{"duplicate id", 1, []Particle{ok, ok}, ErrInvalidParticle},
		{"zero mass", 1, []Particle{{ID: 1, Radius: 1}}, ErrInvalidParticle},
		{"infinite mass", 1, []Particle{{ID: 1, Mass: math.Inf(1)}}, ErrInvalidParticle},
		{"negative radius", 1, []Particle{{ID: 1, Mass: 1, Radius: -1}}, ErrInvalidParticle},
		{"y beyond 1-D", 1, []Particle{{ID: 1, Mass: 1, Position: r3.Vec{Y: 1}}}, ErrInvalidParticle},
		{"z beyond 2-D", 2, []Particle{{ID: 1, Mass: 1, Velocity: r3.Vec{Z: 1}}}, ErrInvalidParticle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.dim, tt.particles)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTable_SortedGetAndClone(t *testing.T) {
	table, err := NewTable(3, []Particle{
		{ID: 7, Mass: 1, Position: r3.Vec{Z: 1}},
		{ID: 3, Mass: 2},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{3, 7}, table.IDs())
	assert.Equal(t, 2, table.Len())
	p, ok := table.Get(7)
	require.True(t, ok)
	assert.Equal(t, r3.Vec{Z: 1}, p.Position)
	_, ok = table.Get(5)
	assert.False(t, ok)

	clone := table.Clone()
	clone.Particles[0].Mass = 99
	assert.Equal(t, 2.0, table.Particles[0].Mass)
}

func TestVectors(t *testing.T) {
	v, err := VecFromSlice(2, []float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, r3.Vec{X: 1, Y: 2}, v)

	_, err = VecFromSlice(2, []float64{1})
	assert.ErrorIs(t, err, ErrInvalidParticle)
	_, err = VecFromSlice(5, []float64{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, ErrUnsupportedDimension)

	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, VecOf([]float64{1, 2, 3, 4}))
	assert.Equal(t, []float64{1, 2}, Components(r3.Vec{X: 1, Y: 2, Z: 3}, 2))
	assert.Equal(t, r3.Vec{X: 3, Y: -1}, Extrapolate(r3.Vec{X: 1, Y: 1}, r3.Vec{X: 1, Y: -1}, 2))
}
