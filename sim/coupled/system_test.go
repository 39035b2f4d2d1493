package coupled

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/inference-sim/particle-sim/sim"
	"github.com/inference-sim/particle-sim/sim/internal/testutil"
	"github.com/inference-sim/particle-sim/sim/message"
	"github.com/inference-sim/particle-sim/sim/particle"
)

type delivery struct {
	t    float64
	port sim.Port
	msgs []any
}

func collect(out *[]delivery) sim.Option {
	return sim.WithOutputSink(func(t float64, port sim.Port, msgs []any) {
		*out = append(*out, delivery{t: t, port: port, msgs: msgs})
	})
}

func quiet() Config {
	cfg := DefaultConfig()
	cfg.Impulse.Disabled = true
	return cfg
}

func headOn(t *testing.T) *particle.Table {
	t.Helper()
	table, err := particle.NewTable(1, []particle.Particle{
		{ID: 1, Position: r3.Vec{X: -5}, Velocity: r3.Vec{X: 1}, Mass: 1, Radius: 0.5},
		{ID: 2, Position: r3.Vec{X: 5}, Velocity: r3.Vec{X: -1}, Mass: 1, Radius: 0.5},
	})
	require.NoError(t, err)
	return table
}

func TestSystem_NoImpulsesNoCollisions_VelocitiesUnchanged(t *testing.T) {
	// GIVEN three particles drifting apart and impulses disabled
	table, err := particle.NewTable(2, []particle.Particle{
		{ID: 1, Position: r3.Vec{X: -3}, Velocity: r3.Vec{X: -1}, Mass: 1, Radius: 0.5},
		{ID: 2, Position: r3.Vec{X: 3}, Velocity: r3.Vec{X: 1}, Mass: 2, Radius: 0.5},
		{ID: 3, Position: r3.Vec{Y: 3}, Velocity: r3.Vec{Y: 0.5}, Mass: 3, Radius: 0.5},
	})
	require.NoError(t, err)
	var out []delivery
	sys, err := New(table, quiet(), collect(&out))
	require.NoError(t, err)

	// WHEN the run covers a long horizon
	require.NoError(t, sys.Run(context.Background(), 50))

	// THEN nothing but the initial log records leaves the model
	for _, d := range out {
		assert.Equal(t, PortLogs, d.port)
		assert.Equal(t, 0.0, d.t)
		for _, m := range d.msgs {
			assert.Equal(t, message.PurposeInit, m.(message.LogRecord).Purpose)
		}
	}
	// AND every velocity is the initial one in both views
	for _, p := range table.Particles {
		v, _ := sys.Responder.Velocity(p.ID)
		assert.Equal(t, p.Velocity, v)
		v, _ = sys.Detector.Velocity(p.ID)
		assert.Equal(t, p.Velocity, v)
	}
	assert.Equal(t, 50.0, sys.Clock())
}

func TestSystem_HeadOnCollision_LoadsThenRestitutes(t *testing.T) {
	var out []delivery
	sys, err := New(headOn(t), quiet(), collect(&out))
	require.NoError(t, err)

	require.NoError(t, sys.Run(context.Background(), 10))

	// One collision at t=4.5, one load at t=4.5, two restitutions at t=4.6.
	var collisions []float64
	purposes := map[message.Purpose][]float64{}
	for _, d := range out {
		switch d.port {
		case PortCollisions:
			collisions = append(collisions, d.t)
		case PortResponses:
			for _, m := range d.msgs {
				resp := m.(message.Response)
				purposes[resp.Purpose] = append(purposes[resp.Purpose], d.t)
			}
		}
	}
	require.Len(t, collisions, 1)
	testutil.AssertFloat64Equal(t, "collision time", 4.5, collisions[0], 1e-9)
	require.Len(t, purposes[message.PurposeLoad], 1)
	testutil.AssertFloat64Equal(t, "load time", 4.5, purposes[message.PurposeLoad][0], 1e-9)
	require.Len(t, purposes[message.PurposeRestitution], 2)
	for _, at := range purposes[message.PurposeRestitution] {
		testutil.AssertFloat64Equal(t, "rest time", 4.6, at, 1e-9)
	}

	// Elastic equal masses swap velocities and conserve momentum.
	v1, _ := sys.Responder.Velocity(1)
	v2, _ := sys.Responder.Velocity(2)
	testutil.AssertVecNear(t, "v1", r3.Vec{X: -1}, v1, 1e-9)
	testutil.AssertVecNear(t, "v2", r3.Vec{X: 1}, v2, 1e-9)
	assert.InDelta(t, 0, v1.X+v2.X, 1e-12)

	// The detector agrees: contact at ±0.5, held until 4.6, then apart.
	p1, _ := sys.Detector.Position(1, 10)
	p2, _ := sys.Detector.Position(2, 10)
	testutil.AssertVecNear(t, "p1", r3.Vec{X: -5.9}, p1, 1e-9)
	testutil.AssertVecNear(t, "p2", r3.Vec{X: 5.9}, p2, 1e-9)
	assert.Equal(t, 0, sys.Detector.CacheLen())
	assert.Equal(t, 0, sys.Responder.Forest().Live())
}

func TestSystem_SameSeedSameTrace(t *testing.T) {
	table, err := particle.NewTable(2, []particle.Particle{
		{ID: 1, Position: r3.Vec{X: -2}, Mass: 1, Radius: 0.5, Tau: 1, Shape: 2, Mean: 1},
		{ID: 2, Position: r3.Vec{X: 2}, Mass: 1, Radius: 0.5, Tau: 1, Shape: 2, Mean: 1},
		{ID: 3, Position: r3.Vec{Y: 2}, Mass: 2, Radius: 0.5, Tau: 2, Shape: 3, Mean: 0.5},
	})
	require.NoError(t, err)

	run := func(seed int64) []delivery {
		var out []delivery
		cfg := DefaultConfig()
		cfg.Seed = seed
		sys, err := New(table, cfg, collect(&out))
		require.NoError(t, err)
		require.NoError(t, sys.Run(context.Background(), 20))
		return out
	}

	a, b := run(11), run(11)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, run(12))
}

func TestSystem_MaxSteps(t *testing.T) {
	cfg := quiet()
	cfg.MaxSteps = 2
	sys, err := New(headOn(t), cfg)
	require.NoError(t, err)

	err = sys.Run(context.Background(), 10)

	assert.ErrorIs(t, err, sim.ErrStepLimit)
	assert.Equal(t, 2, sys.Kernel().Steps())
}

func TestNew_Errors(t *testing.T) {
	_, err := New(&particle.Table{Dim: 1}, DefaultConfig())
	assert.ErrorIs(t, err, particle.ErrInvalidParticle)

	bad := &particle.Table{Dim: 4, Particles: []particle.Particle{{ID: 1, Mass: 1}}}
	_, err = New(bad, DefaultConfig())
	var ie *sim.InvariantError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, NameImpulse, ie.Component)
}

func TestNew_WiresComponents(t *testing.T) {
	sys, err := New(headOn(t), DefaultConfig())
	require.NoError(t, err)

	names := make([]string, 0, 4)
	for _, m := range sys.Coupled().Models() {
		names = append(names, m.Name())
	}
	assert.Equal(t, []string{NameImpulse, NameResponder, NameRouter, NameDetector}, names)
	assert.Len(t, sys.Coupled().Couplings(), 8)
	assert.Equal(t, DetectorID, sys.Detector.ID())
	assert.Equal(t, sim.SimulationKey(0), sys.RNG().Key())
}
