// Package sim provides the discrete-event (DEVS) kernel for the particle simulator.
//
// # Reading Guide
//
// Start with these three files to understand the simulation kernel:
//   - model.go: the Atomic state-machine contract, ports and message bags
//   - coupling.go: the static coupling graph and its evaluation order
//   - kernel.go: the step loop (select imminent, snapshot outputs, route, transition)
//
// # Architecture
//
// The sim package only knows about atomic models and couplings. The domain
// models live in sub-packages:
//   - sim/impulse/: stochastic impulse source ("RandomImpulse")
//   - sim/detector/: per-partition collision detector ("SubV")
//   - sim/responder/: collision responder with the loading forest
//   - sim/router/: particle → detector address resolution ("Tracker")
//   - sim/coupled/: assembles the top model from a particle table
//   - sim/particle/, sim/message/: typed records and message payloads
//   - sim/trace/, sim/metrics/: output recording and instrumentation
//
// # Step Contract
//
// Within one simulated instant every imminent model's Output is taken before
// any transition runs. Models that are both imminent and receive input get a
// ConfluenceTransition (internal semantics first, then external). Transitions
// run in the coupling graph's topological order, producers first.
package sim
