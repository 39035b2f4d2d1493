// Package testutil provides assertion helpers shared by the simulator's
// test packages.
package testutil

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertVecNear compares two vectors component-wise with absolute tolerance.
func AssertVecNear(t *testing.T, name string, want, got r3.Vec, absTol float64) {
	t.Helper()
	if d := r3.Norm(r3.Sub(want, got)); d > absTol || math.IsNaN(d) {
		t.Errorf("%s: got %v, want %v (|diff|=%v)", name, got, want, d)
	}
}

// AssertSliceNear compares two float slices component-wise with absolute tolerance.
func AssertSliceNear(t *testing.T, name string, want, got []float64, absTol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Errorf("%s: got %d components %v, want %d components %v", name, len(got), got, len(want), want)
		return
	}
	for i := range want {
		if math.Abs(want[i]-got[i]) > absTol || math.IsNaN(got[i]) {
			t.Errorf("%s[%d]: got %v, want %v", name, i, got[i], want[i])
		}
	}
}
