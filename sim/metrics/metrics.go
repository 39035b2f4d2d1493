// Package metrics exposes simulation activity as Prometheus collectors on a
// private registry, exported as a node-exporter textfile at the end of a run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/inference-sim/particle-sim/sim"
	"github.com/inference-sim/particle-sim/sim/trace"
)

const namespace = "particle_sim"

// Collectors holds every simulation metric. It implements trace.Writer so it
// can sit beside the trace writers on a trace.Recorder.
type Collectors struct {
	Registry *prometheus.Registry

	steps        prometheus.Counter
	imminent     prometheus.Histogram
	messages     *prometheus.CounterVec
	clock        prometheus.Gauge
	cacheEntries prometheus.Gauge
	loadingNodes prometheus.Gauge
	loadingEdges prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Collectors {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collectors{
		Registry: reg,
		steps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of simulated instants executed",
		}),
		imminent: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_imminent_models",
			Help:      "Number of models with an internal event per step",
			Buckets:   []float64{0, 1, 2, 3, 4},
		}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages leaving the simulator, by kind and purpose",
		}, []string{"kind", "purpose"}),
		clock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "simulated_time",
			Help:      "Simulated time of the last executed step",
		}),
		cacheEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collision_cache_entries",
			Help:      "Predicted collisions held by the detector",
		}),
		loadingNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loading_nodes",
			Help:      "Live loading nodes awaiting restitution",
		}),
		loadingEdges: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loading_edges",
			Help:      "Direct loading relations between particles",
		}),
	}
}

// ObserveStep records one kernel step.
func (c *Collectors) ObserveStep(info sim.StepInfo) {
	c.steps.Inc()
	c.imminent.Observe(float64(len(info.Imminent)))
	c.clock.Set(info.Time)
}

// SetCacheEntries sets the detector cache size.
func (c *Collectors) SetCacheEntries(n int) { c.cacheEntries.Set(float64(n)) }

// SetLoading sets the loading forest size and the number of loading edges.
func (c *Collectors) SetLoading(nodes, edges int) {
	c.loadingNodes.Set(float64(nodes))
	c.loadingEdges.Set(float64(edges))
}

// Write implements trace.Writer.
func (c *Collectors) Write(rec trace.Record) error {
	c.messages.WithLabelValues(string(rec.Kind), string(rec.Purpose)).Inc()
	return nil
}

// Close implements trace.Writer.
func (c *Collectors) Close() error { return nil }

// WriteTextfile exports the registry in the Prometheus text format.
func (c *Collectors) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
