package simulation

import "fmt"

// Risk levels.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Spread ratios (p95 - median) / median used when no target is given.
const (
	highSpread   = 0.25
	mediumSpread = 0.10
)

// Thresholds are the distribution points the risk level was judged on.
type Thresholds struct {
	High   float64 `json:"highRiskThreshold"`
	Medium float64 `json:"mediumRiskThreshold"`
	Low    float64 `json:"lowRiskThreshold"`
}

// RiskAnalysis is a classified simulation outcome.
type RiskAnalysis struct {
	RiskLevel      string     `json:"riskLevel"`
	Basis          string     `json:"basis"` // "target" or "spread"
	TargetDuration *float64   `json:"targetDuration,omitempty"`
	Spread         float64    `json:"spread"`
	Thresholds     Thresholds `json:"thresholds"`
}

// ClassifyRisk grades the distribution. With a positive target, the level
// is high when p90 overshoots it (more than one trial in ten misses) and
// medium when only p95 does. Without one, the relative spread between p95
// and the median decides.
func ClassifyRisk(st Statistics, target *float64) RiskAnalysis {
	ra := RiskAnalysis{
		RiskLevel: RiskLow,
		Thresholds: Thresholds{
			High:   st.Percentiles.P90,
			Medium: st.Percentiles.P95,
			Low:    st.Median,
		},
	}
	if st.Median > 0 {
		ra.Spread = (st.Percentiles.P95 - st.Median) / st.Median
	}

	if target != nil && *target > 0 {
		ra.Basis = "target"
		ra.TargetDuration = target
		switch {
		case st.Percentiles.P90 > *target:
			ra.RiskLevel = RiskHigh
		case st.Percentiles.P95 > *target:
			ra.RiskLevel = RiskMedium
		}
		return ra
	}

	ra.Basis = "spread"
	switch {
	case ra.Spread > highSpread:
		ra.RiskLevel = RiskHigh
	case ra.Spread > mediumSpread:
		ra.RiskLevel = RiskMedium
	}
	return ra
}

// Recommendations returns planner guidance for a risk level. unestimated is
// the number of open work units without an hour estimate.
func Recommendations(level string, unestimated int) []string {
	recs := make([]string, 0, 4)
	switch level {
	case RiskHigh:
		recs = append(recs,
			"Consider adding more resources to critical path work units",
			"Review and optimize dependencies to reduce bottlenecks",
			"Implement parallel work streams where possible",
		)
	case RiskMedium:
		recs = append(recs, "Monitor critical path work units closely for slippage")
	}
	if unestimated > 0 {
		recs = append(recs, fmt.Sprintf("Add hour estimates to %d work unit(s); they are simulated as zero duration", unestimated))
	}
	return recs
}
