package cmd

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/inference-sim/particle-sim/sim/coupled"
	"github.com/inference-sim/particle-sim/sim/detector"
	"github.com/inference-sim/particle-sim/sim/responder"
)

// envPrefix scopes every run-config environment override.
const envPrefix = "PARTICLE_SIM_"

// RunConfig is the run configuration file (--config). Every field may also be
// set through a PARTICLE_SIM_* environment variable; flags override both.
type RunConfig struct {
	Horizon                float64 `yaml:"horizon" env:"HORIZON"`
	Seed                   int64   `yaml:"seed" env:"SEED"`
	RestitutionCoefficient float64 `yaml:"restitution_coefficient" env:"RESTITUTION_COEFFICIENT"`
	RestitutionDelay       float64 `yaml:"restitution_delay" env:"RESTITUTION_DELAY"`
	CollisionCutoff        float64 `yaml:"collision_cutoff" env:"COLLISION_CUTOFF"`
	ContactTolerance       float64 `yaml:"contact_tolerance" env:"CONTACT_TOLERANCE"`
	ImpulsesEnabled        bool    `yaml:"impulses_enabled" env:"IMPULSES_ENABLED"`
	MaxSteps               int     `yaml:"max_steps" env:"MAX_STEPS"`
}

// DefaultRunConfig returns the configuration used when nothing is overridden.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Horizon:                100,
		Seed:                   42,
		RestitutionCoefficient: responder.DefaultRestitutionCoefficient,
		RestitutionDelay:       responder.DefaultRestitutionDelay,
		CollisionCutoff:        detector.DefaultCutoff,
		ContactTolerance:       detector.DefaultContactTolerance,
		ImpulsesEnabled:        true,
	}
}

// LoadRunConfig overlays the YAML file at path onto base.
// Uses strict field checking: unknown keys are errors.
func LoadRunConfig(path string, base RunConfig) (RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read run config: %w", err)
	}
	cfg := base
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return base, fmt.Errorf("parse run config YAML: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays PARTICLE_SIM_* environment variables onto cfg. Unset
// variables leave fields unchanged.
func ApplyEnv(cfg *RunConfig) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parse run config env: %w", err)
	}
	return nil
}

// Validate rejects values no run can use.
func (c RunConfig) Validate() error {
	switch {
	case math.IsNaN(c.Horizon) || c.Horizon < 0:
		return fmt.Errorf("horizon must be non-negative, got %v", c.Horizon)
	case math.IsNaN(c.RestitutionCoefficient) || c.RestitutionCoefficient < 0:
		return fmt.Errorf("restitution_coefficient must be non-negative, got %v", c.RestitutionCoefficient)
	case math.IsNaN(c.RestitutionDelay) || c.RestitutionDelay < 0:
		return fmt.Errorf("restitution_delay must be non-negative, got %v", c.RestitutionDelay)
	case !(c.CollisionCutoff > 0):
		return fmt.Errorf("collision_cutoff must be positive, got %v", c.CollisionCutoff)
	case !(c.ContactTolerance > 0):
		return fmt.Errorf("contact_tolerance must be positive, got %v", c.ContactTolerance)
	case c.MaxSteps < 0:
		return fmt.Errorf("max_steps must be non-negative, got %d", c.MaxSteps)
	}
	return nil
}

// SystemConfig converts the run configuration to the simulator's.
func (c RunConfig) SystemConfig() coupled.Config {
	cfg := coupled.DefaultConfig()
	cfg.Seed = c.Seed
	cfg.MaxSteps = c.MaxSteps
	cfg.Impulse.Disabled = !c.ImpulsesEnabled
	cfg.Responder.RestitutionCoefficient = c.RestitutionCoefficient
	cfg.Responder.Delay = responder.ConstantDelay(c.RestitutionDelay)
	cfg.Detector.Cutoff = c.CollisionCutoff
	cfg.Detector.ContactTolerance = c.ContactTolerance
	return cfg
}
