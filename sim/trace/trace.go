package trace

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/particle-sim/sim"
)

// Writer persists records as they are produced.
type Writer interface {
	Write(Record) error
	Close() error
}

// Recorder collects the simulator's external output. It optionally keeps
// every record in memory and forwards each one to its writers.
type Recorder struct {
	keep    bool
	records []Record
	writers []Writer
	err     error
}

// NewRecorder creates a Recorder. keep retains records for Records and Summarize.
func NewRecorder(keep bool, writers ...Writer) *Recorder {
	return &Recorder{keep: keep, writers: writers}
}

// Sink returns the kernel output sink feeding this recorder.
func (r *Recorder) Sink() sim.OutputSink {
	return func(t float64, port sim.Port, msgs []any) {
		for _, m := range msgs {
			rec, ok := FromMessage(t, m)
			if !ok {
				logrus.Debugf("trace: not recording %T from %s", m, port)
				continue
			}
			r.Record(rec)
		}
	}
}

// Record adds one record. The first writer error is kept and reported by
// Err; later records are still offered to the other writers.
func (r *Recorder) Record(rec Record) {
	if r.keep {
		r.records = append(r.records, rec)
	}
	for _, w := range r.writers {
		if err := w.Write(rec); err != nil && r.err == nil {
			r.err = err
			logrus.Errorf("trace: write failed: %v", err)
		}
	}
}

// Records returns the retained records in emission order.
func (r *Recorder) Records() []Record { return r.records }

// Err returns the first write error.
func (r *Recorder) Err() error { return r.err }

// Close closes every writer.
func (r *Recorder) Close() error {
	var errs []error
	for _, w := range r.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(append([]error{r.err}, errs...)...)
}
