package evaluation

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/campaign-sim/campaign-sim/sim"
)

// CostFloor replaces zero opportunity costs before taking the logarithm.
const CostFloor = 1e-12

// PolicyResult is the aggregated performance of one policy key.
type PolicyResult struct {
	Key string
	// Costs is the opportunity-cost matrix indexed [replicate][step].
	Costs [][]float64
	// Median is the per-step median of Costs across replicates.
	Median []float64
	// LearningRate is the slope of log10(Median) against step index.
	LearningRate float64
	Intercept    float64
	Replicates   int
	// Skipped counts replicates dropped for a zero optimum.
	Skipped int
	// Floored counts costs raised to CostFloor.
	Floored int
}

// Ranked reports whether the result has replicates to rank.
func (r *PolicyResult) Ranked() bool { return r.Replicates > 0 }

// Aggregate groups history by each experiment's policy key and fits a
// learning rate per key.
func Aggregate(history []Completed) (map[string]*PolicyResult, error) {
	results := make(map[string]*PolicyResult)
	for _, c := range history {
		snapper, ok := c.Experiment.(sim.Snapshotter)
		if !ok {
			return nil, fmt.Errorf("aggregate %s: experiment %T cannot be snapshotted", c.Name, c.Experiment)
		}
		snap, err := snapper.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("aggregate %s: %w", c.Name, err)
		}
		key := snap.PolicyKey()
		if key == "" {
			return nil, fmt.Errorf("aggregate %s: experiment never ran", c.Name)
		}
		res, ok := results[key]
		if !ok {
			res = &PolicyResult{Key: key}
			results[key] = res
		}

		costs, floored, err := OpportunityCosts(c.Experiment, snap)
		if errors.Is(err, ErrZeroOptimum) {
			res.Skipped++
			logrus.Warnf("aggregate: skipping replicate %s of %s: %v", c.Name, key, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("aggregate %s: %w", c.Name, err)
		}
		if len(res.Costs) > 0 && len(costs) != len(res.Costs[0]) {
			return nil, fmt.Errorf("aggregate %s: %d steps, other replicates of %s have %d", c.Name, len(costs), key, len(res.Costs[0]))
		}
		res.Costs = append(res.Costs, costs)
		res.Floored += floored
	}

	for _, res := range results {
		res.Replicates = len(res.Costs)
		if !res.Ranked() {
			continue
		}
		res.fit()
	}
	return results, nil
}

// OpportunityCosts returns |y* - y_step| / |y*| for each step of the last
// run recorded in snap, where both values are recomputed with
// exp.Evaluate. The second result counts costs raised to CostFloor.
func OpportunityCosts(exp sim.Experiment, snap *sim.Snapshot) ([]float64, int, error) {
	if snap.Metadata.Optima == nil {
		return nil, 0, fmt.Errorf("no optimum recorded")
	}
	yStar, err := exp.Evaluate(snap.Metadata.Optima.NextPoints)
	if err != nil {
		return nil, 0, fmt.Errorf("evaluating optimum: %w", err)
	}
	if !finite(yStar) {
		return nil, 0, fmt.Errorf("optimum value is %v", yStar)
	}
	if yStar == 0 {
		return nil, 0, ErrZeroOptimum
	}

	steps := lastRun(snap)
	if len(steps) < MinLookAhead {
		return nil, 0, fmt.Errorf("%d step(s): %w", len(steps), ErrTooFewSteps)
	}
	costs := make([]float64, len(steps))
	floored := 0
	for i, st := range steps {
		y, err := exp.Evaluate(st.OptimizeGP.NextPoints)
		if err != nil {
			return nil, 0, fmt.Errorf("evaluating step %d: %w", st.Iteration, err)
		}
		cost := math.Abs(yStar-y) / math.Abs(yStar)
		if !finite(cost) {
			return nil, 0, fmt.Errorf("step %d cost is %v", st.Iteration, cost)
		}
		if cost < CostFloor {
			cost = CostFloor
			floored++
		}
		costs[i] = cost
	}
	return costs, floored, nil
}

// lastRun returns the steps appended by the most recent Run call.
func lastRun(snap *sim.Snapshot) []sim.Step {
	props := snap.Metadata.RuntimeProperties
	if len(props) == 0 {
		return snap.History
	}
	start := props[len(props)-1].Iteration
	if start < 0 || start > len(snap.History) {
		return nil
	}
	return snap.History[start:]
}

func (r *PolicyResult) fit() {
	steps := len(r.Costs[0])
	r.Median = make([]float64, steps)
	xs := make([]float64, steps)
	logs := make([]float64, steps)
	column := make([]float64, len(r.Costs))
	for s := 0; s < steps; s++ {
		for i, row := range r.Costs {
			column[i] = row[s]
		}
		r.Median[s] = Median(column)
		xs[s] = float64(s)
		logs[s] = math.Log10(r.Median[s])
	}
	r.Intercept, r.LearningRate = stat.LinearRegression(xs, logs, nil, false)
}

// Median returns the median of values, averaging the middle pair for even
// counts. values is not modified. Median of an empty slice is NaN.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
