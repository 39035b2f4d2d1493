package sim

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// probe is a scripted atomic model that records every call in a shared log.
type probe struct {
	name   string
	sigmas []float64 // successive time advances; Infinity once exhausted
	emit   Bag
	log    *[]string
	got    []Bag
	fail   bool // raise an invariant violation on the first internal event
}

func newProbe(name string, log *[]string, sigmas ...float64) *probe {
	return &probe{name: name, sigmas: sigmas, log: log}
}

func (p *probe) Name() string { return p.name }

func (p *probe) TimeAdvance() float64 {
	if len(p.sigmas) == 0 {
		return Infinity
	}
	return p.sigmas[0]
}

func (p *probe) Output() Bag {
	*p.log = append(*p.log, p.name+".output")
	return p.emit
}

func (p *probe) InternalTransition() {
	*p.log = append(*p.log, p.name+".internal")
	if p.fail {
		Violation(p.name, "scripted failure")
	}
	if len(p.sigmas) > 0 {
		p.sigmas = p.sigmas[1:]
	}
}

func (p *probe) ExternalTransition(elapsed float64, in Bag) {
	*p.log = append(*p.log, fmt.Sprintf("%s.external(%g)", p.name, elapsed))
	p.got = append(p.got, in)
	p.sigmas = nil
}

func (p *probe) ConfluenceTransition(elapsed float64, in Bag) {
	*p.log = append(*p.log, p.name+".confluence")
	p.InternalTransition()
	p.got = append(p.got, in)
}

func TestKernel_OutputBeforeTransitionsAndElapsedSinceLastEvent(t *testing.T) {
	// GIVEN A imminent at t=5 coupled to B, whose last event was at t=2
	var log []string
	a := newProbe("A", &log, 5)
	a.emit = Bag{"out": {"x"}}
	b := newProbe("B", &log, 2)
	c := NewCoupled("top")
	c.AddModel(a)
	c.AddModel(b)
	c.Couple("A", "out", "B", "in")
	k := NewKernel(c)

	// WHEN the kernel runs past t=5
	require.NoError(t, k.Run(context.Background(), 10))

	// THEN A's output is taken before A transitions, and B sees elapsed=3
	assert.Equal(t, []string{
		"B.output", "B.internal",
		"A.output", "A.internal", "B.external(3)",
	}, log)
	require.Len(t, b.got, 1)
	assert.Equal(t, []any{"x"}, b.got[0].Messages("in"))
	assert.Equal(t, 10.0, k.Clock())
	assert.Equal(t, 2, k.Steps())
}

func TestKernel_ImminentWithInput_RunsConfluence(t *testing.T) {
	var log []string
	a := newProbe("A", &log, 5)
	a.emit = Bag{"out": {1}}
	b := newProbe("B", &log, 5)
	c := NewCoupled("top")
	c.AddModel(b)
	c.AddModel(a)
	c.Couple("A", "out", "B", "in")

	require.NoError(t, NewKernel(c).Run(context.Background(), 5))

	// A is the producer, so it is evaluated first despite registration order.
	assert.Equal(t, []string{"A.output", "B.output", "A.internal", "B.confluence", "B.internal"}, log)
	require.Len(t, b.got, 1)
	assert.Equal(t, []any{1}, b.got[0].Messages("in"))
}

func TestCoupled_Order(t *testing.T) {
	var log []string
	tests := []struct {
		name   string
		models []string
		edges  [][2]string
		want   []int
	}{
		{"chain against registration", []string{"C", "A", "B"}, [][2]string{{"A", "B"}, {"B", "C"}}, []int{1, 2, 0}},
		{"cycle broken by registration", []string{"B", "A"}, [][2]string{{"A", "B"}, {"B", "A"}}, []int{0, 1}},
		{"cycle fed by source", []string{"X", "Y", "S"}, [][2]string{{"S", "X"}, {"X", "Y"}, {"Y", "X"}}, []int{2, 0, 1}},
		{"self loop ignored", []string{"A"}, [][2]string{{"A", "A"}}, []int{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoupled("top")
			for _, n := range tt.models {
				c.AddModel(newProbe(n, &log))
			}
			for _, e := range tt.edges {
				c.Couple(e[0], "out", e[1], "in")
			}
			assert.Equal(t, tt.want, c.order())
		})
	}
}

func TestCoupled_RegistrationErrors(t *testing.T) {
	var log []string
	c := NewCoupled("top")
	c.AddModel(newProbe("A", &log))

	assert.Panics(t, func() { c.AddModel(newProbe("A", &log)) })
	assert.Panics(t, func() { c.AddModel(newProbe("", &log)) })
	assert.Panics(t, func() { c.Couple("A", "out", "missing", "in") })
	assert.Panics(t, func() { c.CoupleOutput("missing", "out", "top") })
	assert.Panics(t, func() { NewKernel(NewCoupled("empty")) })
}

func TestKernel_ExternalOutputReachesSink(t *testing.T) {
	var log []string
	a := newProbe("A", &log, 1.5)
	a.emit = Bag{"log_out": {"r1", "r2"}}
	c := NewCoupled("top")
	c.AddModel(a)
	c.CoupleOutput("A", "log_out", "logs")

	type delivery struct {
		t    float64
		port Port
		msgs []any
	}
	var got []delivery
	k := NewKernel(c, WithOutputSink(func(t float64, port Port, msgs []any) {
		got = append(got, delivery{t, port, msgs})
	}))
	require.NoError(t, k.Run(context.Background(), Infinity))

	assert.Equal(t, []delivery{{1.5, "logs", []any{"r1", "r2"}}}, got)
	assert.Equal(t, 1.5, k.Clock(), "an infinite horizon leaves the clock at the last event")
}

func TestKernel_InjectDeliversExternalInput(t *testing.T) {
	var log []string
	b := newProbe("B", &log)
	c := NewCoupled("top")
	c.AddModel(b)
	c.CoupleInput("in", "B", "in")
	k := NewKernel(c)

	k.Inject(2, "in", "hello")
	require.NoError(t, k.Run(context.Background(), 3))

	assert.Equal(t, []string{"B.external(2)"}, log)
	assert.Equal(t, []any{"hello"}, b.got[0].Messages("in"))
	assert.Panics(t, func() { k.Inject(1, "in", "late") })
}

func TestKernel_EventsBeyondHorizonAreNotExecuted(t *testing.T) {
	var log []string
	c := NewCoupled("top")
	c.AddModel(newProbe("A", &log, 4))
	k := NewKernel(c)

	require.NoError(t, k.Run(context.Background(), 3))

	assert.Empty(t, log)
	assert.Equal(t, 3.0, k.Clock())
	assert.Equal(t, 4.0, k.NextEventTime())
}

func TestKernel_ViolationReturnedAsInvariantError(t *testing.T) {
	var log []string
	a := newProbe("A", &log, 1, 2)
	a.fail = true
	c := NewCoupled("top")
	c.AddModel(a)

	err := NewKernel(c).Run(context.Background(), 10)

	var ie *InvariantError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, &InvariantError{Component: "A", Time: 1, Step: 1, Msg: "scripted failure"}, ie)
	assert.Contains(t, err.Error(), "invariant violation in A at t=1 (step 1)")
}

func TestKernel_StepLimit(t *testing.T) {
	var log []string
	c := NewCoupled("top")
	c.AddModel(newProbe("A", &log, 1, 1, 1, 1, 1, 1))
	k := NewKernel(c, WithMaxSteps(3))

	err := k.Run(context.Background(), 100)

	assert.ErrorIs(t, err, ErrStepLimit)
	assert.Equal(t, 3, k.Steps())
	assert.Equal(t, 3.0, k.Clock())
}

func TestKernel_ContextCancelled(t *testing.T) {
	var log []string
	c := NewCoupled("top")
	c.AddModel(newProbe("A", &log, 1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewKernel(c).Run(ctx, 10)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, log)
}

func TestKernel_StepHook(t *testing.T) {
	var log []string
	a := newProbe("A", &log, 2)
	a.emit = Bag{"out": {true}}
	c := NewCoupled("top")
	c.AddModel(a)
	c.AddModel(newProbe("B", &log))
	c.Couple("A", "out", "B", "in")

	var infos []StepInfo
	k := NewKernel(c, WithStepHook(func(info StepInfo) { infos = append(infos, info) }))
	require.NoError(t, k.Run(context.Background(), 10))

	assert.Equal(t, []StepInfo{{Step: 1, Time: 2, Imminent: []string{"A"}, Touched: 2}}, infos)
}

func TestKernel_NegativeTimeAdvance_Panics(t *testing.T) {
	var log []string
	c := NewCoupled("top")
	c.AddModel(newProbe("A", &log, -1))

	assert.PanicsWithError(t,
		"invariant violation in A at t=0 (step 0): time advance -1 is not a non-negative duration",
		func() { NewKernel(c) })
}

func TestBag(t *testing.T) {
	b := make(Bag)
	assert.True(t, b.Empty())

	b.Add("z", 1)
	b.Add("a", 2, 3)
	b.Add("empty")

	assert.False(t, b.Empty())
	assert.Equal(t, []Port{"a", "z"}, b.Ports())
	assert.Equal(t, []any{2, 3}, b.Messages("a"))
	assert.Nil(t, Bag(nil).Messages("a"))
}
