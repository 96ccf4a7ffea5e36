package experiment

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/campaign-sim/campaign-sim/sim"
)

// Objective is a known ground-truth function to be maximized over Domain.
type Objective struct {
	Domain sim.Domain
	Func   func(x []float64) float64
}

var objectives = map[string]Objective{
	// Two bumps on [0,1]; global max near x=0.3.
	"bimodal1d": {
		Domain: sim.NewUnitDomain(1),
		Func: func(x []float64) float64 {
			return math.Exp(-sq(x[0]-0.3)/0.02) + 0.6*math.Exp(-sq(x[0]-0.75)/0.01) + 0.1
		},
	},
	// Two Gaussian peaks on the unit square; global max near (0.25, 0.7).
	"peaks2d": {
		Domain: sim.NewUnitDomain(2),
		Func: func(x []float64) float64 {
			a := math.Exp(-(sq(x[0]-0.25) + sq(x[1]-0.7)) / 0.03)
			b := 0.7 * math.Exp(-(sq(x[0]-0.7)+sq(x[1]-0.3))/0.02)
			return a + b + 0.05
		},
	},
	// Negated Branin-Hoo; global max -0.397887 at three points.
	"branin": {
		Domain: sim.Domain{Lower: []float64{-5, 0}, Upper: []float64{10, 15}},
		Func: func(x []float64) float64 {
			const (
				a = 1.0
				r = 6.0
				s = 10.0
			)
			b := 5.1 / (4 * math.Pi * math.Pi)
			c := 5 / math.Pi
			tt := 1 / (8 * math.Pi)
			return -(a*sq(x[1]-b*x[0]*x[0]+c*x[0]-r) + s*(1-tt)*math.Cos(x[0]) + s)
		},
	},
	// 1 - ||x - 0.5||^2 on the unit cube in three dimensions.
	"offset-sphere": {
		Domain: sim.NewUnitDomain(3),
		Func: func(x []float64) float64 {
			v := 1.0
			for _, xi := range x {
				v -= sq(xi - 0.5)
			}
			return v
		},
	},
}

func sq(v float64) float64 { return v * v }

// LookupObjective returns the named objective.
func LookupObjective(name string) (Objective, error) {
	obj, ok := objectives[name]
	if !ok {
		return Objective{}, fmt.Errorf("unknown objective %q; valid: %s", name, strings.Join(ObjectiveNames(), ", "))
	}
	return obj, nil
}

// ObjectiveNames returns the registered objective names, sorted.
func ObjectiveNames() []string {
	names := make([]string, 0, len(objectives))
	for name := range objectives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
