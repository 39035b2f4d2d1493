// Package coupled assembles the particle simulator's atomic models into a
// single coupled model and drives it with a kernel.
package coupled

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/particle-sim/sim"
	"github.com/inference-sim/particle-sim/sim/detector"
	"github.com/inference-sim/particle-sim/sim/impulse"
	"github.com/inference-sim/particle-sim/sim/particle"
	"github.com/inference-sim/particle-sim/sim/responder"
	"github.com/inference-sim/particle-sim/sim/router"
)

// Model names inside the coupled model.
const (
	NameImpulse   = "impulse"
	NameResponder = "responder"
	NameRouter    = "router"
	NameDetector  = "detector"
)

// Top-level output ports.
const (
	PortLogs       sim.Port = "logs"
	PortResponses  sim.Port = "responses"
	PortImpulses   sim.Port = "impulses"
	PortCollisions sim.Port = "collisions"
)

// DetectorID is the id of the only detector; every particle is routed to it.
const DetectorID = 0

// Config collects the per-component configuration of one run.
type Config struct {
	Seed      int64
	MaxSteps  int
	Impulse   impulse.Config
	Responder responder.Config
	Detector  detector.Config
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Responder: responder.DefaultConfig(),
		Detector: detector.Config{
			ID:               DetectorID,
			Cutoff:           detector.DefaultCutoff,
			ContactTolerance: detector.DefaultContactTolerance,
		},
	}
}

// System is the assembled simulator.
type System struct {
	Table     *particle.Table
	Impulse   *impulse.Source
	Responder *responder.Responder
	Router    *router.Router
	Detector  *detector.Detector

	top    *sim.Coupled
	kernel *sim.Kernel
	rng    *sim.PartitionedRNG
}

// New builds the coupled model over table. Every component receives its own
// copy of the table. Invariant violations raised while constructing the
// components are returned as *sim.InvariantError.
func New(table *particle.Table, cfg Config, opts ...sim.Option) (sys *System, err error) {
	if table == nil || table.Len() == 0 {
		return nil, fmt.Errorf("%w: empty particle table", particle.ErrInvalidParticle)
	}
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*sim.InvariantError)
			if !ok {
				panic(r)
			}
			sys, err = nil, ie
		}
	}()

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(cfg.Seed))
	cfg.Detector.ID = DetectorID

	s := &System{
		Table:     table.Clone(),
		Impulse:   impulse.New(NameImpulse, table.Clone(), cfg.Impulse, rng),
		Responder: responder.New(NameResponder, table.Clone(), cfg.Responder),
		Router:    router.New(NameRouter, router.SingleDetector(table, DetectorID)),
		Detector:  detector.New(NameDetector, table.Clone(), cfg.Detector),
		rng:       rng,
	}

	top := sim.NewCoupled("particle-sim")
	top.AddModel(s.Impulse)
	top.AddModel(s.Responder)
	top.AddModel(s.Router)
	top.AddModel(s.Detector)

	top.Couple(NameImpulse, impulse.PortOut, NameResponder, responder.PortImpulse)
	top.Couple(NameResponder, responder.PortResponse, NameRouter, router.PortIn)
	top.Couple(NameRouter, router.PortOut, NameDetector, detector.PortIn)
	top.Couple(NameDetector, detector.PortCollision, NameResponder, responder.PortCollision)

	top.CoupleOutput(NameDetector, detector.PortLog, PortLogs)
	top.CoupleOutput(NameResponder, responder.PortResponse, PortResponses)
	top.CoupleOutput(NameImpulse, impulse.PortOut, PortImpulses)
	top.CoupleOutput(NameDetector, detector.PortCollision, PortCollisions)

	if cfg.MaxSteps > 0 {
		opts = append(opts, sim.WithMaxSteps(cfg.MaxSteps))
	}
	s.top = top
	s.kernel = sim.NewKernel(top, opts...)
	logrus.Debugf("coupled: %d particles in %d dimensions, seed %d", table.Len(), table.Dim, cfg.Seed)
	return s, nil
}

// Run advances the simulation up to simulated time until.
func (s *System) Run(ctx context.Context, until float64) error {
	return s.kernel.Run(ctx, until)
}

// Kernel returns the kernel driving the system.
func (s *System) Kernel() *sim.Kernel { return s.kernel }

// Coupled returns the top coupled model.
func (s *System) Coupled() *sim.Coupled { return s.top }

// Clock returns the current simulated time.
func (s *System) Clock() float64 { return s.kernel.Clock() }

// RNG returns the partitioned random source of the run.
func (s *System) RNG() *sim.PartitionedRNG { return s.rng }
