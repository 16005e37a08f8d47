// Package simulation runs Monte Carlo schedule simulations over a
// dependency graph and derives completion-time statistics, risk levels and
// recommendations from the sampled distribution.
package simulation

import (
	"github.com/nitroplanner/nitroplanner/internal/config"
	"github.com/nitroplanner/nitroplanner/internal/errs"
)

// Default and allowed confidence levels.
const (
	DefaultConfidenceLevel = 0.95
	MinConfidenceLevel     = 0.8
	MaxConfidenceLevel     = 0.99
)

// Params are the caller-supplied knobs for one simulation. Zero values mean
// "use the default".
type Params struct {
	Iterations      int      `json:"iterations,omitempty"`
	Variability     float64  `json:"variability,omitempty"`
	ConfidenceLevel float64  `json:"confidenceLevel,omitempty"`
	TargetDuration  *float64 `json:"targetDuration,omitempty"`
	Seed            *int64   `json:"seed,omitempty"`
}

// Limits bound what a caller may request.
type Limits struct {
	MinIterations      int
	MaxIterations      int
	DefaultIterations  int
	DefaultVariability float64
	Workers            int
}

// LimitsFromConfig converts the simulation section of the config file.
func LimitsFromConfig(c config.SimulationConfig) Limits {
	return Limits{
		MinIterations:      c.MinIterations,
		MaxIterations:      c.MaxIterations,
		DefaultIterations:  c.DefaultIterations,
		DefaultVariability: c.DefaultVariability,
		Workers:            c.Workers,
	}
}

// DefaultLimits matches the config defaults.
func DefaultLimits() Limits {
	return Limits{
		MinIterations:      1000,
		MaxIterations:      50000,
		DefaultIterations:  10000,
		DefaultVariability: 0.2,
		Workers:            4,
	}
}

// Normalize fills defaults into p and rejects values outside the limits.
// Iteration counts out of range are a ComputationLimitError and are never
// clamped; other bad values are a ValidationError.
func (l Limits) Normalize(p Params) (Params, error) {
	if p.Iterations == 0 {
		p.Iterations = l.DefaultIterations
	}
	if p.Iterations < l.MinIterations || p.Iterations > l.MaxIterations {
		return p, errs.Limitf("iterations %d outside allowed range [%d, %d]", p.Iterations, l.MinIterations, l.MaxIterations)
	}
	if p.Variability == 0 {
		p.Variability = l.DefaultVariability
	}
	if p.Variability <= 0 || p.Variability >= 1 {
		return p, errs.Validationf("variability %v must be in (0, 1)", p.Variability)
	}
	if p.ConfidenceLevel == 0 {
		p.ConfidenceLevel = DefaultConfidenceLevel
	}
	if p.ConfidenceLevel < MinConfidenceLevel || p.ConfidenceLevel > MaxConfidenceLevel {
		return p, errs.Validationf("confidenceLevel %v must be in [%v, %v]", p.ConfidenceLevel, MinConfidenceLevel, MaxConfidenceLevel)
	}
	if p.TargetDuration != nil && *p.TargetDuration < 0 {
		return p, errs.Validationf("targetDuration must not be negative")
	}
	return p, nil
}
