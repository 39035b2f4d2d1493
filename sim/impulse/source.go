// Package impulse implements the stochastic impulse source: a per-particle
// self-renewing process that emits random momentum kicks.
package impulse

import (
	"container/heap"
	"math"
	"math/rand/v2"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inference-sim/particle-sim/sim"
	"github.com/inference-sim/particle-sim/sim/message"
	"github.com/inference-sim/particle-sim/sim/particle"
)

// PortOut carries message.Impulse values.
const PortOut sim.Port = "impulse_out"

// Config controls the impulse source.
type Config struct {
	// Disabled permanently passivates the source (impulse-free control runs).
	Disabled bool
}

type params struct {
	tau   float64
	shape float64
	mean  float64
	rng   *rand.Rand
}

// Source is the random impulse atomic model. Each particle with a positive,
// finite τ receives impulses at exponentially distributed intervals (mean τ)
// with Gamma(shape, mean) magnitudes and uniformly random directions.
type Source struct {
	name     string
	dim      int
	params   map[int]params
	queue    ArrivalQueue
	now      float64
	sigma    float64
	pending  *message.Impulse
	disabled bool
}

// New creates an impulse source over the particles of table. Each particle
// draws from its own stream of rngs, so its impulse sequence does not depend
// on the other particles. Panics with an invariant violation if the table's
// dimension is unsupported or a particle that receives impulses has a
// non-positive shape or mean.
func New(name string, table *particle.Table, cfg Config, rngs *sim.PartitionedRNG) *Source {
	if !particle.ValidDimension(table.Dim) {
		sim.Violation(name, "unsupported number of dimensions: %d", table.Dim)
	}
	s := &Source{
		name:     name,
		dim:      table.Dim,
		params:   make(map[int]params, table.Len()),
		queue:    make(ArrivalQueue, 0, table.Len()),
		sigma:    0,
		disabled: cfg.Disabled,
	}
	for _, p := range table.Particles {
		if !(p.Tau > 0) || math.IsInf(p.Tau, 1) {
			logrus.Debugf("%s: particle %d has tau=%v and receives no impulses", name, p.ID, p.Tau)
			continue
		}
		if !(p.Shape > 0) || !(p.Mean > 0) {
			sim.Violation(name, "particle %d: gamma shape %v and mean %v must be positive", p.ID, p.Shape, p.Mean)
		}
		s.params[p.ID] = params{tau: p.Tau, shape: p.Shape, mean: p.Mean, rng: rngs.ForSubsystem(sim.SubsystemParticle(p.ID))}
		heap.Push(&s.queue, arrival{id: p.ID, time: s.sampleGap(p.ID)})
	}
	if s.disabled || s.queue.Len() == 0 {
		s.sigma = sim.Infinity
	}
	return s
}

// Deactivate permanently passivates the source. It must be called before the
// source is handed to a kernel.
func (s *Source) Deactivate() {
	s.disabled = true
	s.sigma = sim.Infinity
	s.pending = nil
}

// Name implements sim.Atomic.
func (s *Source) Name() string { return s.name }

// TimeAdvance implements sim.Atomic.
func (s *Source) TimeAdvance() float64 { return s.sigma }

// Pending returns the impulse that will be emitted at the next internal event.
func (s *Source) Pending() (message.Impulse, bool) {
	if s.pending == nil {
		return message.Impulse{}, false
	}
	return *s.pending, true
}

// Output implements sim.Atomic.
func (s *Source) Output() sim.Bag {
	out := make(sim.Bag)
	if s.pending != nil {
		out.Add(PortOut, *s.pending)
	}
	return out
}

// InternalTransition implements sim.Atomic. It prepares the impulse for the
// earliest scheduled arrival and reschedules that particle.
func (s *Source) InternalTransition() {
	s.now += s.sigma
	s.pending = nil
	if s.disabled || s.queue.Len() == 0 {
		s.sigma = sim.Infinity
		return
	}

	next := heap.Pop(&s.queue).(arrival)
	s.sigma = math.Max(0, next.time-s.now)

	p := s.params[next.id]
	magnitude := distuv.Gamma{Alpha: p.shape, Beta: p.shape / p.mean, Src: p.rng}.Rand()
	kick := r3.Scale(magnitude, SampleDirection(s.dim, p.rng))
	imp := message.NewImpulse(particle.Components(kick, s.dim), []int{next.id}, message.PurposeImpulse)
	s.pending = &imp

	heap.Push(&s.queue, arrival{id: next.id, time: next.time + s.sampleGap(next.id)})
	logrus.Debugf("[t=%g] %s: particle %d impulse %v due in %g", s.now, s.name, next.id, imp.Data, s.sigma)
}

// ExternalTransition implements sim.Atomic. The source has no input port, so
// any input is an invariant violation.
func (s *Source) ExternalTransition(elapsed float64, in sim.Bag) {
	sim.Violation(s.name, "external transition on a source with no input port (elapsed=%g)", elapsed)
}

// ConfluenceTransition implements sim.Atomic.
func (s *Source) ConfluenceTransition(elapsed float64, in sim.Bag) {
	if !in.Empty() {
		sim.Violation(s.name, "confluence transition with input on a source with no input port")
	}
	s.InternalTransition()
}

// sampleGap draws the time until the particle's next impulse.
func (s *Source) sampleGap(id int) float64 {
	p := s.params[id]
	return distuv.Exponential{Rate: 1 / p.tau, Src: p.rng}.Rand()
}
