// Package testutil provides assertion helpers shared by the sim test
// packages.
package testutil

import (
	"math"
	"testing"
)

// AssertFloat64Equal fails t if want and got differ by more than relTol
// relative to the larger magnitude. Two NaNs compare equal.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == got || (math.IsNaN(want) && math.IsNaN(got)) {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
