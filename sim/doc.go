// Package sim defines the shared types for simulated Bayesian-optimization
// campaigns with dynamic policy selection.
//
// # Reading Guide
//
// Start with these files:
//   - parameters.go: acquisition policies, their keys and content hashes
//   - experiment.go: the Experiment interface, snapshots and run options
//   - rng.go: seed partitioning so every consumer draws from its own stream
//
// # Architecture
//
// The sim package holds interfaces and value types; implementations live in
// sub-packages:
//   - sim/surrogate/: Gaussian-process surrogate (gonum)
//   - sim/acquisition/: EI and UCB and their multi-start maximization
//   - sim/experiment/: objectives, real and dreamed experiments, checkpoints
//   - sim/evaluation/: look-ahead simulation of candidate policies and
//     learning-rate ranking
//   - sim/campaign/: config loading and the dynamic and single-policy drivers
//   - sim/store/: campaign and decision persistence (memory, sqlite)
//   - sim/trace/: decision trace recording and summaries
//
// # Key Interfaces
//
//   - Experiment: run steps under a policy, evaluate the truth, save
//   - Snapshotter: expose serializable state for dreaming and costing
//   - store.Store: persist campaigns and per-step decisions
package sim
