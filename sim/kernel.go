// sim/kernel.go
package sim

import (
	"container/heap"
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/inference-sim/particle-sim/sim"

// injection is an external input scheduled on a top-level port.
type injection struct {
	time  float64
	port  Port
	msgs  []any
	seqID int64
}

// InjectionQueue is a min-heap ordered by (time, seqID).
// Implements heap.Interface.
type InjectionQueue []injection

func (q InjectionQueue) Len() int { return len(q) }

func (q InjectionQueue) Less(i, j int) bool {
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	return q[i].seqID < q[j].seqID
}

func (q InjectionQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *InjectionQueue) Push(x any) {
	*q = append(*q, x.(injection))
}

func (q *InjectionQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// OutputSink receives every message leaving the top model through an
// external output coupling.
type OutputSink func(t float64, port Port, msgs []any)

// StepInfo describes one completed kernel step.
type StepInfo struct {
	Step     int
	Time     float64
	Imminent []string
	Touched  int
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithOutputSink registers the receiver of external output messages.
func WithOutputSink(sink OutputSink) Option {
	return func(k *Kernel) { k.sink = sink }
}

// WithStepHook registers a callback invoked after every step.
func WithStepHook(hook func(StepInfo)) Option {
	return func(k *Kernel) { k.stepHook = hook }
}

// WithMaxSteps bounds the number of steps a Kernel will execute (0 = unlimited).
func WithMaxSteps(n int) Option {
	return func(k *Kernel) { k.maxSteps = n }
}

// Kernel executes a coupled model. It holds the global clock and, for every
// atomic model, the time of its last event and its next scheduled internal event.
type Kernel struct {
	top       *Coupled
	order     []int
	routes    map[Endpoint][]Endpoint
	clock     float64
	lastEvent []float64
	nextEvent []float64
	steps     int

	injections InjectionQueue
	seq        int64

	sink     OutputSink
	stepHook func(StepInfo)
	maxSteps int
}

// NewKernel prepares a coupled model for execution at time 0.
// Panics if the coupled model has no atomic models.
func NewKernel(top *Coupled, opts ...Option) *Kernel {
	if len(top.models) == 0 {
		panic("NewKernel: coupled model has no atomic models")
	}
	k := &Kernel{
		top:       top,
		order:     top.order(),
		routes:    make(map[Endpoint][]Endpoint),
		lastEvent: make([]float64, len(top.models)),
		nextEvent: make([]float64, len(top.models)),
	}
	for _, cp := range top.couplings {
		k.routes[cp.From] = append(k.routes[cp.From], cp.To)
	}
	for i, m := range top.models {
		k.nextEvent[i] = checkedAdvance(m, 0)
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Clock returns the current simulated time.
func (k *Kernel) Clock() float64 { return k.clock }

// Steps returns the number of steps executed so far.
func (k *Kernel) Steps() int { return k.steps }

// Inject schedules messages on a top-level input port at absolute time t.
// Panics if t lies in the past.
func (k *Kernel) Inject(t float64, port Port, msgs ...any) {
	if t < k.clock {
		panic(fmt.Sprintf("Kernel.Inject: time %g is before the clock %g", t, k.clock))
	}
	heap.Push(&k.injections, injection{time: t, port: port, msgs: msgs, seqID: k.seq})
	k.seq++
}

// NextEventTime returns the time of the earliest scheduled event
// (Infinity if every model is passive and nothing is injected).
func (k *Kernel) NextEventTime() float64 {
	next := Infinity
	for _, t := range k.nextEvent {
		if t < next {
			next = t
		}
	}
	if k.injections.Len() > 0 && k.injections[0].time < next {
		next = k.injections[0].time
	}
	return next
}

// Run executes steps until the next event lies beyond until, every model is
// passive, or ctx is done. An invariant violation raised by a model stops the
// run and is returned as *InvariantError.
func (k *Kernel) Run(ctx context.Context, until float64) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "sim.Kernel.Run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("sim.model", k.top.name),
			attribute.Float64("sim.until", until),
		),
	)
	startSteps := k.steps
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*InvariantError)
			if !ok {
				panic(r)
			}
			ie.Step = k.steps
			ie.Time = k.clock
			err = ie
		}
		span.SetAttributes(
			attribute.Int("sim.steps", k.steps-startSteps),
			attribute.Float64("sim.clock", k.clock),
		)
		if err != nil {
			logrus.Errorf("[t=%g] simulation aborted: %v", k.clock, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := k.NextEventTime()
		if math.IsInf(next, 1) || next > until {
			break
		}
		if k.maxSteps > 0 && k.steps >= k.maxSteps {
			return ErrStepLimit
		}
		k.step(next)
	}
	if !math.IsInf(until, 1) && until > k.clock {
		k.clock = until
	}
	logrus.Infof("[t=%g] %s: run ended after %d steps", k.clock, k.top.name, k.steps-startSteps)
	return nil
}

// step executes one simulated instant at time t.
func (k *Kernel) step(t float64) {
	k.steps++
	k.clock = t
	n := len(k.top.models)
	imminent := make([]bool, n)
	inputs := make([]Bag, n)
	var names []string

	// Snapshot every imminent output before any transition runs.
	for _, i := range k.order {
		if k.nextEvent[i] != t {
			continue
		}
		imminent[i] = true
		m := k.top.models[i]
		names = append(names, m.Name())
		k.route(t, m.Name(), m.Output(), inputs)
	}
	for k.injections.Len() > 0 && k.injections[0].time == t {
		inj := heap.Pop(&k.injections).(injection)
		k.route(t, "", Bag{inj.port: inj.msgs}, inputs)
	}

	touched := 0
	for _, i := range k.order {
		m := k.top.models[i]
		in := inputs[i]
		hasInput := in != nil && !in.Empty()
		switch {
		case imminent[i] && hasInput:
			logrus.Debugf("[t=%g] %s: confluence transition", t, m.Name())
			m.ConfluenceTransition(0, in)
		case imminent[i]:
			logrus.Debugf("[t=%g] %s: internal transition", t, m.Name())
			m.InternalTransition()
		case hasInput:
			logrus.Debugf("[t=%g] %s: external transition (elapsed=%g)", t, m.Name(), t-k.lastEvent[i])
			m.ExternalTransition(t-k.lastEvent[i], in)
		default:
			continue
		}
		touched++
		k.lastEvent[i] = t
		k.nextEvent[i] = checkedAdvance(m, t)
	}

	if k.stepHook != nil {
		k.stepHook(StepInfo{Step: k.steps, Time: t, Imminent: names, Touched: touched})
	}
}

// route delivers an output bag along the couplings leaving model src
// ("" for the top-level inputs).
func (k *Kernel) route(t float64, src string, out Bag, inputs []Bag) {
	for _, port := range out.Ports() {
		msgs := out[port]
		for _, dst := range k.routes[Endpoint{Model: src, Port: port}] {
			if dst.Model == "" {
				if k.sink != nil {
					k.sink(t, dst.Port, msgs)
				}
				continue
			}
			j := k.top.index[dst.Model]
			if inputs[j] == nil {
				inputs[j] = make(Bag)
			}
			inputs[j].Add(dst.Port, msgs...)
		}
	}
}

// checkedAdvance returns the absolute time of m's next internal event.
func checkedAdvance(m Atomic, now float64) float64 {
	sigma := m.TimeAdvance()
	if math.IsNaN(sigma) || sigma < 0 {
		Violation(m.Name(), "time advance %v is not a non-negative duration", sigma)
	}
	return now + sigma
}
