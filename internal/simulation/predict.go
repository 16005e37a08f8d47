package simulation

import (
	"math"
	"math/rand"
)

// typeMultiplier scales the base delay by work unit type. Unknown types use 1.
var typeMultiplier = map[string]float64{
	"design":        1.2,
	"simulation":    1.5,
	"validation":    1.0,
	"manufacturing": 1.3,
	"assembly":      0.8,
	"testing":       1.1,
	"documentation": 0.7,
}

// Prediction is a heuristic delay forecast for one work unit.
type Prediction struct {
	PredictedDelay float64 `json:"predictedDelay"` // days
	RiskScore      float64 `json:"riskScore"`      // 0..1
	Confidence     float64 `json:"confidence"`     // 0.75..0.9
}

// PredictDelay draws a base delay of 0-3 days, scales it by the work unit
// type and normalizes it to a risk score against a one-week horizon. All
// values are rounded to two decimals.
func PredictDelay(rng *rand.Rand, workUnitType string) Prediction {
	mult, ok := typeMultiplier[workUnitType]
	if !ok {
		mult = 1.0
	}
	delay := rng.Float64() * 3 * mult
	return Prediction{
		PredictedDelay: round2(delay),
		RiskScore:      round2(math.Min(delay/7, 1.0)),
		Confidence:     round2(0.75 + rng.Float64()*0.15),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
