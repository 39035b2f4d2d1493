// Package responder implements the collision responder. It resolves random
// impulses and predicted collisions, merging colliding groups into loading
// nodes that share a common velocity until their deferred restitution.
package responder

import (
	"fmt"
	"math"
	"slices"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/inference-sim/particle-sim/sim"
	"github.com/inference-sim/particle-sim/sim/message"
	"github.com/inference-sim/particle-sim/sim/particle"
)

const (
	// PortImpulse receives message.Impulse values.
	PortImpulse sim.Port = "impulse_in"
	// PortCollision receives message.Collision values.
	PortCollision sim.Port = "collision_in"
	// PortResponse carries message.Response values.
	PortResponse sim.Port = "response_out"
)

const (
	// DefaultRestitutionCoefficient makes collisions perfectly elastic.
	DefaultRestitutionCoefficient = 1.0
	// DefaultRestitutionDelay is how long a loaded pair stays merged.
	DefaultRestitutionDelay = 0.1
)

// DelayPolicy decides how long two freshly loaded groups stay merged before
// restitution.
type DelayPolicy interface {
	RestitutionDelay(a, b Group) float64
}

// ConstantDelay restitutes every loading after the same fixed delay.
type ConstantDelay float64

// RestitutionDelay implements DelayPolicy.
func (c ConstantDelay) RestitutionDelay(_, _ Group) float64 { return float64(c) }

// Config controls a responder.
type Config struct {
	// RestitutionCoefficient is e in the full impulse (1+e)·μ·Δv. Negative
	// values select DefaultRestitutionCoefficient.
	RestitutionCoefficient float64
	// Delay picks the restitution delay. nil selects ConstantDelay(DefaultRestitutionDelay).
	Delay DelayPolicy
}

// DefaultConfig returns an elastic responder with the default delay.
func DefaultConfig() Config {
	return Config{
		RestitutionCoefficient: DefaultRestitutionCoefficient,
		Delay:                  ConstantDelay(DefaultRestitutionDelay),
	}
}

type body struct {
	mass float64
	vel  r3.Vec
}

type restSide struct {
	ids []int
	vel r3.Vec
}

// Responder is the collision responder atomic model.
type Responder struct {
	name   string
	dim    int
	e      float64
	delay  DelayPolicy
	bodies map[int]*body

	loaded Adjacency
	forest *Forest
	buffer Handle

	now   float64
	sigma float64

	sendingRI bool
	riOut     []message.Response
	loadOut   []message.Response
	restOut   []message.Response
	restPlan  []restSide
}

// New creates a responder owning the kinematic bookkeeping of every particle
// in table.
func New(name string, table *particle.Table, cfg Config) *Responder {
	if !particle.ValidDimension(table.Dim) {
		sim.Violation(name, "unsupported number of dimensions: %d", table.Dim)
	}
	e := cfg.RestitutionCoefficient
	if e < 0 || math.IsNaN(e) {
		e = DefaultRestitutionCoefficient
	}
	delay := cfg.Delay
	if delay == nil {
		delay = ConstantDelay(DefaultRestitutionDelay)
	}
	r := &Responder{
		name:   name,
		dim:    table.Dim,
		e:      e,
		delay:  delay,
		bodies: make(map[int]*body, table.Len()),
		loaded: make(Adjacency),
		forest: NewForest(),
		buffer: NoHandle,
		sigma:  sim.Infinity,
	}
	for _, p := range table.Particles {
		r.bodies[p.ID] = &body{mass: p.Mass, vel: p.Velocity}
	}
	return r
}

// Name implements sim.Atomic.
func (r *Responder) Name() string { return r.name }

// TimeAdvance implements sim.Atomic.
func (r *Responder) TimeAdvance() float64 { return r.sigma }

// Velocity returns the responder's view of particle id's velocity.
func (r *Responder) Velocity(id int) (r3.Vec, bool) {
	b, ok := r.bodies[id]
	if !ok {
		return r3.Vec{}, false
	}
	return b.vel, true
}

// Loaded returns the particles directly loaded onto id.
func (r *Responder) Loaded(id int) []int { return r.loaded.Neighbors(id) }

// LoadingEdges returns the number of direct loading relations.
func (r *Responder) LoadingEdges() int { return r.loaded.Edges() }

// Forest exposes the loading forest for inspection.
func (r *Responder) Forest() *Forest { return r.forest }

// Buffer returns the node whose restitution is announced for the next internal event.
func (r *Responder) Buffer() Handle { return r.buffer }

// SendingImpulse reports whether the next output is an impulse response.
func (r *Responder) SendingImpulse() bool { return r.sendingRI }

// ScanBranch returns the group loaded with id, not crossing into exclude.
func (r *Responder) ScanBranch(id, exclude int) Group {
	return ScanBranch(r.loaded, r.mass, id, exclude)
}

// Group returns id's whole loaded group.
func (r *Responder) Group(id int) Group {
	return r.ScanBranch(id, noExclusion)
}

func (r *Responder) mass(id int) float64 {
	if b, ok := r.bodies[id]; ok {
		return b.mass
	}
	return 0
}

// Output implements sim.Atomic.
func (r *Responder) Output() sim.Bag {
	out := make(sim.Bag)
	switch {
	case r.sendingRI:
		for _, resp := range r.riOut {
			out.Add(PortResponse, resp)
		}
	case len(r.loadOut) > 0:
		for _, resp := range r.loadOut {
			out.Add(PortResponse, resp)
		}
	case r.buffer != NoHandle:
		for _, resp := range r.restOut {
			out.Add(PortResponse, resp)
		}
	}
	return out
}

// InternalTransition implements sim.Atomic. Exactly one class of output was
// emitted for this instant; only that class is retired before rescheduling.
func (r *Responder) InternalTransition() {
	r.now += r.sigma
	switch {
	case r.sendingRI:
		r.sendingRI = false
		r.riOut = nil
	case len(r.loadOut) > 0:
		r.loadOut = nil
	case r.buffer != NoHandle:
		r.commit()
	}
	r.reschedule()
}

// ExternalTransition implements sim.Atomic. At most one impulse may arrive
// per instant; it is applied before any collisions.
func (r *Responder) ExternalTransition(elapsed float64, in sim.Bag) {
	r.now += elapsed
	impulses := in.Messages(PortImpulse)
	if len(impulses) > 1 {
		sim.Violation(r.name, "%d impulses received in one instant", len(impulses))
	}
	for _, m := range impulses {
		imp, ok := m.(message.Impulse)
		if !ok {
			logrus.Warnf("[t=%g] %s: dropping unexpected %T on %s", r.now, r.name, m, PortImpulse)
			continue
		}
		r.applyImpulse(imp)
	}
	for _, m := range in.Messages(PortCollision) {
		c, ok := m.(message.Collision)
		if !ok {
			logrus.Warnf("[t=%g] %s: dropping unexpected %T on %s", r.now, r.name, m, PortCollision)
			continue
		}
		r.applyCollision(c)
	}
	r.reschedule()
}

// ConfluenceTransition implements sim.Atomic.
func (r *Responder) ConfluenceTransition(elapsed float64, in sim.Bag) {
	r.InternalTransition()
	r.ExternalTransition(0, in)
}

// applyImpulse spreads the impulse over the struck particle's whole group.
func (r *Responder) applyImpulse(imp message.Impulse) {
	if len(imp.ParticleIDs) == 0 {
		logrus.Warnf("[t=%g] %s: ignoring impulse with no particle ids", r.now, r.name)
		return
	}
	if len(imp.Data) != r.dim {
		logrus.Warnf("[t=%g] %s: ignoring impulse with %d components in %d dimensions", r.now, r.name, len(imp.Data), r.dim)
		return
	}
	j := particle.VecOf(imp.Data)
	for _, id := range imp.ParticleIDs {
		if _, ok := r.bodies[id]; !ok {
			logrus.Warnf("[t=%g] %s: ignoring impulse for unknown particle %d", r.now, r.name, id)
			continue
		}
		g := r.Group(id)
		dv := r3.Scale(1/g.Mass, j)
		for _, m := range g.IDs {
			r.bodies[m].vel = r3.Add(r.bodies[m].vel, dv)
		}
		vel := particle.Components(r.bodies[id].vel, r.dim)
		r.riOut = append(r.riOut, message.NewResponse(vel, g.IDs, message.PurposeImpulse, nil))
		r.refreshQueuedLoads(g, vel)
		r.sendingRI = true
		logrus.Debugf("[t=%g] %s: impulse on %d spread over %v (mass %g)", r.now, r.name, id, g.IDs, g.Mass)
	}
}

// refreshQueuedLoads rewrites not yet emitted load responses of group g so
// they carry its post-impulse velocity. Members of one load response stay in
// one group until a restitution, which cannot happen while loads are queued.
func (r *Responder) refreshQueuedLoads(g Group, vel []float64) {
	for i, resp := range r.loadOut {
		if len(resp.ParticleIDs) > 0 && g.Contains(resp.ParticleIDs[0]) {
			r.loadOut[i].Data = slices.Clone(vel)
		}
	}
}

// applyCollision loads the two colliding groups onto each other.
func (r *Responder) applyCollision(c message.Collision) {
	a, b, ok := c.Pair()
	if !ok {
		logrus.Warnf("[t=%g] %s: dropping collision with %d participants", r.now, r.name, len(c.Positions))
		return
	}
	if r.bodies[a] == nil || r.bodies[b] == nil {
		logrus.Warnf("[t=%g] %s: dropping collision between unknown particles %d and %d", r.now, r.name, a, b)
		return
	}
	if len(c.Positions[a]) != r.dim || len(c.Positions[b]) != r.dim {
		logrus.Warnf("[t=%g] %s: dropping collision %d-%d with malformed positions", r.now, r.name, a, b)
		return
	}

	if g := r.Group(a); g.Contains(b) {
		// Already moving together: re-assert the common velocity so the
		// detector forgets the spurious prediction.
		vel := particle.Components(r.bodies[a].vel, r.dim)
		r.loadOut = append(r.loadOut, message.NewResponse(vel, g.IDs, message.PurposeLoad, nil))
		logrus.Debugf("[t=%g] %s: collision %d-%d inside one loaded group", r.now, r.name, a, b)
		return
	}

	ga := r.ScanBranch(a, b)
	gb := r.ScanBranch(b, a)
	pa := particle.VecOf(c.Positions[a])
	pb := particle.VecOf(c.Positions[b])
	x := Resolve(pa, pb, r.bodies[a].vel, r.bodies[b].vel, ga.Mass, gb.Mass, r.e)

	rest := r.now + r.delay.RestitutionDelay(ga, gb)
	if _, err := r.forest.Load(a, b, ga.Mass+gb.Mass, rest, x.Restitution); err != nil {
		sim.Violation(r.name, "%v", err)
	}
	r.loaded.Link(a, b)

	ids := append(slices.Clone(ga.IDs), gb.IDs...)
	slices.Sort(ids)
	for _, id := range ids {
		r.bodies[id].vel = x.LoadVelocity
	}
	positions := map[int][]float64{a: c.Positions[a], b: c.Positions[b]}
	r.loadOut = append(r.loadOut, message.NewResponse(particle.Components(x.LoadVelocity, r.dim), ids, message.PurposeLoad, positions))
	logrus.Debugf("[t=%g] %s: loaded %v onto %v, restitution at t=%g", r.now, r.name, ga.IDs, gb.IDs, rest)
}

// commit releases the buffered node's restitution.
func (r *Responder) commit() {
	for _, side := range r.restPlan {
		for _, id := range side.ids {
			r.bodies[id].vel = side.vel
		}
	}
	n, err := r.forest.Commit(r.buffer)
	if err != nil {
		sim.Violation(r.name, "%v", err)
	}
	r.loaded.Unlink(n.Colliders[0], n.Colliders[1])
	logrus.Debugf("[t=%g] %s: restituted %d-%d, %d children released", r.now, r.name, n.Colliders[0], n.Colliders[1], len(n.Children))
	r.buffer = NoHandle
	r.restOut = nil
	r.restPlan = nil
}

// reschedule sets σ: zero while responses are queued, otherwise the delay to
// the earliest restitution, whose result is prepared now for the next output.
func (r *Responder) reschedule() {
	r.buffer = NoHandle
	r.restOut = nil
	r.restPlan = nil
	if r.sendingRI || len(r.loadOut) > 0 {
		r.sigma = 0
		return
	}
	h, ok := r.forest.Earliest()
	if !ok {
		r.sigma = sim.Infinity
		return
	}
	n, _ := r.forest.Node(h)
	a, b := n.Colliders[0], n.Colliders[1]
	ga := r.ScanBranch(a, b)
	gb := r.ScanBranch(b, a)
	va := r3.Add(r.bodies[a].vel, r3.Scale(1/ga.Mass, n.Impulse))
	vb := r3.Sub(r.bodies[b].vel, r3.Scale(1/gb.Mass, n.Impulse))

	r.buffer = h
	r.restPlan = []restSide{{ids: ga.IDs, vel: va}, {ids: gb.IDs, vel: vb}}
	r.restOut = []message.Response{
		message.NewResponse(particle.Components(va, r.dim), ga.IDs, message.PurposeRestitution, nil),
		message.NewResponse(particle.Components(vb, r.dim), gb.IDs, message.PurposeRestitution, nil),
	}
	r.sigma = math.Max(0, n.Rest-r.now)
}

// String summarizes the responder state for debugging.
func (r *Responder) String() string {
	return fmt.Sprintf("%s{t=%g σ=%g nodes=%d edges=%d}", r.name, r.now, r.sigma, r.forest.Live(), r.loaded.Edges())
}
