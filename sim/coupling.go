package sim

import "fmt"

// Endpoint addresses a port on a model. An empty Model names the coupled
// model's own (top-level) port.
type Endpoint struct {
	Model string
	Port  Port
}

// Coupling connects an output endpoint to an input endpoint.
//   - internal coupling (IC): model → model
//   - external input coupling (EIC): top → model
//   - external output coupling (EOC): model → top
type Coupling struct {
	From Endpoint
	To   Endpoint
}

// Coupled is a static DEVS coupled model: a set of atomic models and the
// couplings between their ports.
type Coupled struct {
	name      string
	models    []Atomic
	index     map[string]int
	couplings []Coupling
}

// NewCoupled creates an empty coupled model.
func NewCoupled(name string) *Coupled {
	return &Coupled{
		name:  name,
		index: make(map[string]int),
	}
}

// Name returns the coupled model's name.
func (c *Coupled) Name() string { return c.name }

// Models returns the atomic models in registration order.
func (c *Coupled) Models() []Atomic { return c.models }

// Couplings returns every registered coupling.
func (c *Coupled) Couplings() []Coupling { return c.couplings }

// AddModel registers an atomic model. Panics on an empty or duplicate name.
func (c *Coupled) AddModel(m Atomic) {
	name := m.Name()
	if name == "" {
		panic("Coupled.AddModel: model name must not be empty")
	}
	if _, exists := c.index[name]; exists {
		panic(fmt.Sprintf("Coupled.AddModel: duplicate model %q", name))
	}
	c.index[name] = len(c.models)
	c.models = append(c.models, m)
}

// Couple adds an internal coupling from one model's output port to another
// model's input port.
func (c *Coupled) Couple(from string, fromPort Port, to string, toPort Port) {
	c.mustHave(from)
	c.mustHave(to)
	c.couplings = append(c.couplings, Coupling{
		From: Endpoint{Model: from, Port: fromPort},
		To:   Endpoint{Model: to, Port: toPort},
	})
}

// CoupleInput adds an external input coupling from a top-level port.
func (c *Coupled) CoupleInput(topPort Port, to string, toPort Port) {
	c.mustHave(to)
	c.couplings = append(c.couplings, Coupling{
		From: Endpoint{Port: topPort},
		To:   Endpoint{Model: to, Port: toPort},
	})
}

// CoupleOutput adds an external output coupling to a top-level port.
func (c *Coupled) CoupleOutput(from string, fromPort Port, topPort Port) {
	c.mustHave(from)
	c.couplings = append(c.couplings, Coupling{
		From: Endpoint{Model: from, Port: fromPort},
		To:   Endpoint{Port: topPort},
	})
}

func (c *Coupled) mustHave(name string) {
	if _, ok := c.index[name]; !ok {
		panic(fmt.Sprintf("Coupled %q: unknown model %q", c.name, name))
	}
}

// order returns model indices in evaluation order: a topological sort of the
// internal couplings, producers before consumers. When a feedback cycle
// leaves no model without pending producers, the earliest-registered
// remaining model is taken next.
func (c *Coupled) order() []int {
	n := len(c.models)
	indeg := make([]int, n)
	adj := make([][]int, n)
	seen := make(map[[2]int]bool)
	for _, cp := range c.couplings {
		if cp.From.Model == "" || cp.To.Model == "" {
			continue
		}
		from, to := c.index[cp.From.Model], c.index[cp.To.Model]
		if from == to || seen[[2]int{from, to}] {
			continue
		}
		seen[[2]int{from, to}] = true
		adj[from] = append(adj[from], to)
		indeg[to]++
	}

	done := make([]bool, n)
	order := make([]int, 0, n)
	for len(order) < n {
		picked := -1
		for i := 0; i < n; i++ {
			if !done[i] && indeg[i] == 0 {
				picked = i
				break
			}
		}
		if picked < 0 {
			for i := 0; i < n; i++ {
				if !done[i] {
					picked = i
					break
				}
			}
		}
		done[picked] = true
		order = append(order, picked)
		for _, j := range adj[picked] {
			if !done[j] {
				indeg[j]--
			}
		}
	}
	return order
}
