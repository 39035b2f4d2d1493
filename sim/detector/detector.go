// Package detector implements the per-partition collision detector ("SubV").
// It keeps a private kinematic snapshot of its particles and predicts the
// next pairwise collision, maintaining its collision cache incrementally.
package detector

import (
	"math"
	"slices"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/inference-sim/particle-sim/sim"
	"github.com/inference-sim/particle-sim/sim/message"
	"github.com/inference-sim/particle-sim/sim/particle"
)

const (
	// PortIn receives message.RoutedResponse values.
	PortIn sim.Port = "response_in"
	// PortCollision carries message.Collision values.
	PortCollision sim.Port = "collision_out"
	// PortLog carries message.LogRecord values.
	PortLog sim.Port = "log_out"
)

// Config controls a detector.
type Config struct {
	ID               int     // detector id used for routing and log records
	Cutoff           float64 // 0 selects DefaultCutoff
	ContactTolerance float64 // 0 selects DefaultContactTolerance
	LogCacheSize     bool    // log the cache size after every recomputation
}

type body struct {
	pos     r3.Vec // position as of updated
	vel     r3.Vec
	radius  float64
	updated float64
}

// Detector is the collision detector atomic model.
type Detector struct {
	name   string
	cfg    Config
	limits Limits
	dim    int
	bodies map[int]*body
	ids    []int
	cache  *Cache

	now   float64
	sigma float64

	awaitingResponse bool
	sendingCollision bool
	announced        Pair
	collision        message.Collision
	logs             []message.LogRecord
}

// New creates a detector owning every particle in table. The cache is
// populated pairwise and the initial state is logged at time 0.
func New(name string, table *particle.Table, cfg Config) *Detector {
	if !particle.ValidDimension(table.Dim) {
		sim.Violation(name, "unsupported number of dimensions: %d", table.Dim)
	}
	lim := DefaultLimits()
	if cfg.Cutoff > 0 {
		lim.Cutoff = cfg.Cutoff
	}
	if cfg.ContactTolerance > 0 {
		lim.ContactTolerance = cfg.ContactTolerance
	}
	d := &Detector{
		name:   name,
		cfg:    cfg,
		limits: lim,
		dim:    table.Dim,
		bodies: make(map[int]*body, table.Len()),
		ids:    table.IDs(),
		cache:  NewCache(),
	}
	for _, p := range table.Particles {
		d.bodies[p.ID] = &body{pos: p.Position, vel: p.Velocity, radius: p.Radius}
		d.logs = append(d.logs, d.record(p.ID, message.PurposeInit))
	}
	for i, a := range d.ids {
		for _, b := range d.ids[i+1:] {
			d.refresh(a, b)
		}
	}
	d.logCache()
	return d
}

// Name implements sim.Atomic.
func (d *Detector) Name() string { return d.name }

// ID returns the detector id.
func (d *Detector) ID() int { return d.cfg.ID }

// TimeAdvance implements sim.Atomic.
func (d *Detector) TimeAdvance() float64 { return d.sigma }

// Position extrapolates particle id's position to time t.
func (d *Detector) Position(id int, t float64) (r3.Vec, bool) {
	b, ok := d.bodies[id]
	if !ok {
		return r3.Vec{}, false
	}
	return particle.Extrapolate(b.pos, b.vel, t-b.updated), true
}

// Velocity returns particle id's current velocity.
func (d *Detector) Velocity(id int) (r3.Vec, bool) {
	b, ok := d.bodies[id]
	if !ok {
		return r3.Vec{}, false
	}
	return b.vel, true
}

// CollisionTime returns the cached absolute collision time of a pair.
func (d *Detector) CollisionTime(a, b int) (float64, bool) {
	return d.cache.Get(MakePair(a, b))
}

// CacheLen returns the number of cached collisions.
func (d *Detector) CacheLen() int { return d.cache.Len() }

// AwaitingResponse reports whether an announced collision is still unconfirmed.
func (d *Detector) AwaitingResponse() bool { return d.awaitingResponse }

// Output implements sim.Atomic.
func (d *Detector) Output() sim.Bag {
	out := make(sim.Bag)
	if d.sendingCollision {
		out.Add(PortCollision, d.collision)
	}
	for _, rec := range d.logs {
		out.Add(PortLog, rec)
	}
	return out
}

// InternalTransition implements sim.Atomic.
//
// While a collision is awaiting its response the detector passivates and
// never reconsiders the cache. Otherwise it announces the earliest cached
// collision, to be emitted when σ elapses.
func (d *Detector) InternalTransition() {
	d.now += d.sigma
	d.logs = nil

	if d.awaitingResponse {
		// The announced collision went out with this step's output.
		d.cache.Delete(d.announced)
		d.sendingCollision = false
		d.sigma = sim.Infinity
		return
	}

	pair, at, ok := d.cache.Min()
	if !ok {
		d.sendingCollision = false
		d.sigma = sim.Infinity
		return
	}
	pa, _ := d.Position(pair.Lo, at)
	pb, _ := d.Position(pair.Hi, at)
	d.collision = message.NewCollision(
		pair.Lo, particle.Components(pa, d.dim),
		pair.Hi, particle.Components(pb, d.dim),
	)
	d.announced = pair
	d.sigma = math.Max(0, at-d.now)
	d.awaitingResponse = true
	d.sendingCollision = true
	logrus.Debugf("[t=%g] %s: next collision %d-%d at t=%g", d.now, d.name, pair.Lo, pair.Hi, at)
}

// ExternalTransition implements sim.Atomic. Velocity updates addressed to
// this detector finalize the touched particles' positions, recompute only
// the pairs touching them, and force an immediate reschedule.
func (d *Detector) ExternalTransition(elapsed float64, in sim.Bag) {
	d.now += elapsed

	var touched []int
	for _, m := range in.Messages(PortIn) {
		rr, ok := m.(message.RoutedResponse)
		if !ok {
			logrus.Warnf("[t=%g] %s: dropping unexpected %T on %s", d.now, d.name, m, PortIn)
			continue
		}
		if !rr.AddressedTo(d.cfg.ID) {
			continue
		}
		if len(rr.ParticleIDs) == 0 || len(rr.Data) != d.dim {
			logrus.Warnf("[t=%g] %s: dropping malformed %s response (ids=%v, data=%v)", d.now, d.name, rr.Purpose, rr.ParticleIDs, rr.Data)
			continue
		}
		vel := particle.VecOf(rr.Data)
		for _, id := range rr.ParticleIDs {
			b, ok := d.bodies[id]
			if !ok {
				continue
			}
			if p, ok := rr.Positions[id]; ok && len(p) == d.dim {
				b.pos = particle.VecOf(p)
			} else {
				b.pos = particle.Extrapolate(b.pos, b.vel, d.now-b.updated)
			}
			b.updated = d.now
			b.vel = vel
			if !slices.Contains(touched, id) {
				touched = append(touched, id)
			}
			d.logs = append(d.logs, d.record(id, rr.Purpose))
		}
	}

	if len(touched) == 0 {
		if !math.IsInf(d.sigma, 1) {
			d.sigma = math.Max(0, d.sigma-elapsed)
		}
		return
	}

	d.recompute(touched)
	d.awaitingResponse = false
	d.sendingCollision = false
	d.sigma = 0
}

// ConfluenceTransition implements sim.Atomic.
func (d *Detector) ConfluenceTransition(elapsed float64, in sim.Bag) {
	d.InternalTransition()
	d.ExternalTransition(0, in)
}

// recompute refreshes every cached pair that involves a touched particle.
func (d *Detector) recompute(touched []int) {
	for _, a := range touched {
		for _, b := range d.ids {
			if a == b {
				continue
			}
			// Pairs of two touched particles are refreshed once.
			if b < a && slices.Contains(touched, b) {
				continue
			}
			d.refresh(a, b)
		}
	}
	d.logCache()
}

// refresh recomputes one pair at the current time.
func (d *Detector) refresh(a, b int) {
	pair := MakePair(a, b)
	pa, _ := d.Position(a, d.now)
	pb, _ := d.Position(b, d.now)
	root, ok := Detect(
		Body{Position: pa, Velocity: d.bodies[a].vel, Radius: d.bodies[a].radius},
		Body{Position: pb, Velocity: d.bodies[b].vel, Radius: d.bodies[b].radius},
		d.limits,
	)
	if !ok {
		d.cache.Delete(pair)
		return
	}
	d.cache.Set(pair, d.now+root)
}

func (d *Detector) record(id int, purpose message.Purpose) message.LogRecord {
	b := d.bodies[id]
	return message.LogRecord{
		DetectorID: d.cfg.ID,
		ParticleID: id,
		Velocity:   particle.Components(b.vel, d.dim),
		Position:   particle.Components(particle.Extrapolate(b.pos, b.vel, d.now-b.updated), d.dim),
		Purpose:    purpose,
	}
}

func (d *Detector) logCache() {
	if d.cfg.LogCacheSize {
		logrus.Infof("[t=%g] %s: cache size %d", d.now, d.name, d.cache.Len())
	}
}
