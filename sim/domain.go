package sim

import (
	"fmt"
	"math"
)

// Domain is an axis-aligned box; Lower[i] < Upper[i] for every dimension.
type Domain struct {
	Lower []float64 `json:"lower" yaml:"lower"`
	Upper []float64 `json:"upper" yaml:"upper"`
}

// NewUnitDomain returns [0,1]^dim.
func NewUnitDomain(dim int) Domain {
	d := Domain{Lower: make([]float64, dim), Upper: make([]float64, dim)}
	for i := range d.Upper {
		d.Upper[i] = 1
	}
	return d
}

// Dim returns the number of dimensions.
func (d Domain) Dim() int { return len(d.Lower) }

// Validate checks bounds are finite, paired and strictly ordered.
func (d Domain) Validate() error {
	if len(d.Lower) == 0 {
		return fmt.Errorf("domain must have at least one dimension")
	}
	if len(d.Lower) != len(d.Upper) {
		return fmt.Errorf("domain lower/upper length mismatch: %d vs %d", len(d.Lower), len(d.Upper))
	}
	for i := range d.Lower {
		lo, hi := d.Lower[i], d.Upper[i]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) {
			return fmt.Errorf("domain dimension %d has non-finite bounds [%v, %v]", i, lo, hi)
		}
		if lo >= hi {
			return fmt.Errorf("domain dimension %d: lower %v must be < upper %v", i, lo, hi)
		}
	}
	return nil
}

// Normalize maps x into the unit cube.
func (d Domain) Normalize(x []float64) []float64 {
	u := make([]float64, len(x))
	for i := range x {
		u[i] = (x[i] - d.Lower[i]) / (d.Upper[i] - d.Lower[i])
	}
	return u
}

// Denormalize maps u from the unit cube back into the domain.
func (d Domain) Denormalize(u []float64) []float64 {
	x := make([]float64, len(u))
	for i := range u {
		x[i] = d.Lower[i] + u[i]*(d.Upper[i]-d.Lower[i])
	}
	return x
}

// Contains reports whether x lies inside the closed box.
func (d Domain) Contains(x []float64) bool {
	if len(x) != d.Dim() {
		return false
	}
	for i := range x {
		if x[i] < d.Lower[i] || x[i] > d.Upper[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (d Domain) Clone() Domain {
	return Domain{
		Lower: append([]float64(nil), d.Lower...),
		Upper: append([]float64(nil), d.Upper...),
	}
}
