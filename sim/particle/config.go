package particle

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/sugawarayuuta/sonnet"
	"gopkg.in/yaml.v3"
)

// Format selects the encoding of a particle configuration file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// SpeciesSpec is the on-disk shape of one species entry.
type SpeciesSpec struct {
	Mass   float64 `json:"mass" yaml:"mass"`
	Radius float64 `json:"radius" yaml:"radius"`
	Tau    float64 `json:"tau,omitempty" yaml:"tau,omitempty"`
	Shape  float64 `json:"shape,omitempty" yaml:"shape,omitempty"`
	Mean   float64 `json:"mean,omitempty" yaml:"mean,omitempty"`
}

// ParticleSpec is the on-disk shape of one particle entry.
type ParticleSpec struct {
	Position []float64 `json:"position" yaml:"position"`
	Velocity []float64 `json:"velocity" yaml:"velocity"`
	Species  string    `json:"species" yaml:"species"`
}

// File is a particle configuration: a species catalog and particles keyed by
// their (string) id.
type File struct {
	Species   map[string]SpeciesSpec  `json:"species" yaml:"species"`
	Particles map[string]ParticleSpec `json:"particles" yaml:"particles"`
}

// FormatFromPath infers the configuration format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unrecognized particle config extension %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}
}

// Load reads and resolves a particle configuration file.
func Load(path string) (*Table, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read particle config: %w", err)
	}
	f, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	return f.Resolve()
}

// Decode parses a configuration document. YAML is decoded with strict field
// checking so typos surface as errors.
func Decode(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatJSON:
		if err := sonnet.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse particle config JSON: %w", err)
		}
	case FormatYAML:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&f); err != nil {
			return nil, fmt.Errorf("parse particle config YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown particle config format %q", format)
	}
	return &f, nil
}

// Encode serializes a configuration document.
func (f *File) Encode(format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return sonnet.Marshal(f)
	case FormatYAML:
		return yaml.Marshal(f)
	default:
		return nil, fmt.Errorf("unknown particle config format %q", format)
	}
}

// Resolve joins every particle with its species and builds a Table.
// The dimension is taken from the particle with the lowest id; every other
// particle must agree.
func (f *File) Resolve() (*Table, error) {
	if len(f.Particles) == 0 {
		return nil, fmt.Errorf("%w: configuration has no particles", ErrInvalidParticle)
	}
	keys := make([]string, 0, len(f.Particles))
	ids := make(map[string]int, len(f.Particles))
	for k := range f.Particles {
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("%w: particle key %q is not an integer", ErrInvalidParticle, k)
		}
		keys = append(keys, k)
		ids[k] = id
	}
	slices.SortFunc(keys, func(a, b string) int { return ids[a] - ids[b] })

	dim := len(f.Particles[keys[0]].Position)
	if !ValidDimension(dim) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedDimension, dim)
	}

	particles := make([]Particle, 0, len(keys))
	for _, k := range keys {
		ps := f.Particles[k]
		sp, ok := f.Species[ps.Species]
		if !ok {
			return nil, fmt.Errorf("%w: particle %s references unknown species %q", ErrInvalidParticle, k, ps.Species)
		}
		pos, err := VecFromSlice(dim, ps.Position)
		if err != nil {
			return nil, fmt.Errorf("particle %s position: %w", k, err)
		}
		vel, err := VecFromSlice(dim, ps.Velocity)
		if err != nil {
			return nil, fmt.Errorf("particle %s velocity: %w", k, err)
		}
		particles = append(particles, Particle{
			ID:       ids[k],
			Species:  ps.Species,
			Position: pos,
			Velocity: vel,
			Mass:     sp.Mass,
			Radius:   sp.Radius,
			Tau:      sp.Tau,
			Shape:    sp.Shape,
			Mean:     sp.Mean,
		})
	}
	return NewTable(dim, particles)
}
