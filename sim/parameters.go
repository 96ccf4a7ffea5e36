package sim

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// MethodEI is expected improvement, the baseline policy with no hyperparameters.
	MethodEI = "EI"
	// MethodUCB is upper confidence bound, parameterized by HyperparameterBeta.
	MethodUCB = "UCB"

	// HyperparameterBeta is the only hyperparameter a policy key can carry.
	HyperparameterBeta = "beta"
)

// ValidAcquisitionMethods is the set of recognized acquisition methods.
// Shared by Parameters.Validate and acquisition.New.
var ValidAcquisitionMethods = map[string]bool{MethodEI: true, MethodUCB: true}

// AcquisitionSpec names an acquisition method and its keyword arguments.
type AcquisitionSpec struct {
	Method string             `json:"method" yaml:"method"`
	Kwargs map[string]float64 `json:"kwargs,omitempty" yaml:"kwargs,omitempty"`
}

// OptimizerSpec configures acquisition maximization.
type OptimizerSpec struct {
	NumRestarts    int `json:"num_restarts" yaml:"num_restarts"`
	RawSamples     int `json:"raw_samples" yaml:"raw_samples"`
	MaxEvaluations int `json:"max_evaluations" yaml:"max_evaluations"`
}

// DefaultOptimizerSpec returns the optimizer attached to parameters that
// omit one.
func DefaultOptimizerSpec() OptimizerSpec {
	return OptimizerSpec{NumRestarts: 5, RawSamples: 128, MaxEvaluations: 100}
}

// Validate checks the optimizer budget is usable.
func (o OptimizerSpec) Validate() error {
	if o.RawSamples < 1 {
		return fmt.Errorf("optimize_gp.raw_samples must be >= 1, got %d", o.RawSamples)
	}
	if o.NumRestarts < 1 || o.NumRestarts > o.RawSamples {
		return fmt.Errorf("optimize_gp.num_restarts must be in [1, raw_samples=%d], got %d", o.RawSamples, o.NumRestarts)
	}
	if o.MaxEvaluations < 0 {
		return fmt.Errorf("optimize_gp.max_evaluations must be non-negative, got %d", o.MaxEvaluations)
	}
	return nil
}

// Parameters identifies an acquisition policy and its settings.
// Treat values as immutable: every builder method returns a copy.
type Parameters struct {
	Name        string          `json:"name,omitempty" yaml:"name,omitempty"`
	Acquisition AcquisitionSpec `json:"acquisition" yaml:"acquisition"`
	OptimizeGP  *OptimizerSpec  `json:"optimize_gp,omitempty" yaml:"optimize_gp,omitempty"`
}

// NewParameters builds parameters for method with optional kwargs.
func NewParameters(method string, kwargs map[string]float64) Parameters {
	return Parameters{Acquisition: AcquisitionSpec{Method: method, Kwargs: copyKwargs(kwargs)}}
}

// Validate checks the acquisition method and its hyperparameters.
func (p Parameters) Validate() error {
	if !ValidAcquisitionMethods[p.Acquisition.Method] {
		return fmt.Errorf("unknown acquisition method %q; valid: EI, UCB", p.Acquisition.Method)
	}
	switch p.Acquisition.Method {
	case MethodEI:
		if len(p.Acquisition.Kwargs) != 0 {
			return fmt.Errorf("acquisition EI takes no kwargs, got %v", p.Acquisition.Kwargs)
		}
	case MethodUCB:
		beta, ok := p.Acquisition.Kwargs[HyperparameterBeta]
		if !ok {
			return fmt.Errorf("acquisition UCB requires kwargs.%s", HyperparameterBeta)
		}
		if len(p.Acquisition.Kwargs) != 1 {
			return fmt.Errorf("acquisition UCB takes only kwargs.%s, got %v", HyperparameterBeta, p.Acquisition.Kwargs)
		}
		if math.IsNaN(beta) || math.IsInf(beta, 0) || beta < 0 {
			return fmt.Errorf("acquisition UCB beta must be finite and non-negative, got %v", beta)
		}
	}
	if p.OptimizeGP != nil {
		if err := p.OptimizeGP.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Hash returns a stable hex SHA-256 of the acquisition and optimizer
// settings. Name does not contribute.
func (p Parameters) Hash() string {
	payload, err := json.Marshal(struct {
		Acquisition AcquisitionSpec `json:"acquisition"`
		OptimizeGP  *OptimizerSpec  `json:"optimize_gp"`
	}{p.Acquisition, p.OptimizeGP})
	if err != nil {
		// Only NaN/Inf kwargs can fail to encode; Validate rejects those.
		payload = []byte(fmt.Sprintf("%v|%v", p.Acquisition, p.OptimizeGP))
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// AcqfKey returns the policy key used to group simulation results:
// "EI" for the baseline, "<method>-<beta>" otherwise.
func (p Parameters) AcqfKey() string {
	if p.Acquisition.Method == MethodEI {
		return MethodEI
	}
	beta, ok := p.Acquisition.Kwargs[HyperparameterBeta]
	if !ok {
		return p.Acquisition.Method
	}
	return p.Acquisition.Method + "-" + FormatHyperparameter(beta)
}

// DisplayName returns Name, falling back to AcqfKey.
func (p Parameters) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.AcqfKey()
}

// Optimizer returns the attached optimizer or the default.
func (p Parameters) Optimizer() OptimizerSpec {
	if p.OptimizeGP == nil {
		return DefaultOptimizerSpec()
	}
	return *p.OptimizeGP
}

// WithDefaultOptimizer returns a copy with the default optimizer attached
// if none was set.
func (p Parameters) WithDefaultOptimizer() Parameters {
	out := p.clone()
	if out.OptimizeGP == nil {
		def := DefaultOptimizerSpec()
		out.OptimizeGP = &def
	}
	return out
}

// ForPolicy returns a copy with the acquisition replaced by method and
// kwargs. Name is cleared so DisplayName follows the new policy.
func (p Parameters) ForPolicy(method string, kwargs map[string]float64) Parameters {
	out := p.clone()
	out.Name = ""
	out.Acquisition = AcquisitionSpec{Method: method, Kwargs: copyKwargs(kwargs)}
	return out
}

func (p Parameters) clone() Parameters {
	out := p
	out.Acquisition.Kwargs = copyKwargs(p.Acquisition.Kwargs)
	if p.OptimizeGP != nil {
		opt := *p.OptimizeGP
		out.OptimizeGP = &opt
	}
	return out
}

func copyKwargs(kwargs map[string]float64) map[string]float64 {
	if kwargs == nil {
		return nil
	}
	cp := make(map[string]float64, len(kwargs))
	for k, v := range kwargs {
		cp[k] = v
	}
	return cp
}

// FormatHyperparameter renders v the way policy keys encode it: shortest
// round-trip form, with ".0" appended to integral values.
func FormatHyperparameter(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
