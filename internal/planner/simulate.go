package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nitroplanner/nitroplanner/internal/alert"
	"github.com/nitroplanner/nitroplanner/internal/errs"
	"github.com/nitroplanner/nitroplanner/internal/models"
	"github.com/nitroplanner/nitroplanner/internal/simulation"
)

// Default and maximum page sizes for simulation history.
const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

// ConfidenceIntervals are the persisted percentile cut points of a run.
type ConfidenceIntervals struct {
	P50 float64 `json:"p50"`
	P80 float64 `json:"p80"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
}

// Run is a decoded simulation run.
type Run struct {
	ID                  string                `json:"id"`
	ProjectID           string                `json:"projectId"`
	Iterations          int                   `json:"iterations"`
	Results             simulation.Statistics `json:"results"`
	ConfidenceIntervals ConfidenceIntervals   `json:"confidenceIntervals"`
	RiskLevel           string                `json:"riskLevel"`
	SimulationDate      time.Time             `json:"simulationDate"`
}

// simulate loads the project and runs the simulator under the service
// timeout.
func (s *Service) simulate(ctx context.Context, companyID, projectID string, p simulation.Params) (*ProjectWorkflow, *simulation.Result, error) {
	w, err := s.load(ctx, companyID, projectID)
	if err != nil {
		return nil, nil, err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	res, err := s.sim.Run(ctx, w.plan, p)
	if err != nil {
		return nil, nil, err
	}
	return w, res, nil
}

// SimulateWorkflow runs a simulation without persisting it.
func (s *Service) SimulateWorkflow(ctx context.Context, companyID, projectID string, p simulation.Params) (*simulation.Result, error) {
	_, res, err := s.simulate(ctx, companyID, projectID, p)
	return res, err
}

// RunMonteCarlo runs a simulation and stores it as a SimulationRun. A high
// risk outcome raises an alert; alert delivery failures are only logged.
func (s *Service) RunMonteCarlo(ctx context.Context, companyID, projectID string, p simulation.Params) (*Run, error) {
	w, res, err := s.simulate(ctx, companyID, projectID, p)
	if err != nil {
		return nil, err
	}

	st := res.Statistics
	ci := ConfidenceIntervals{
		P50: st.Percentiles.P50,
		P80: st.Percentiles.P80,
		P90: st.Percentiles.P90,
		P95: st.Percentiles.P95,
	}
	results, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("planner: marshal results: %w", err)
	}
	intervals, err := json.Marshal(ci)
	if err != nil {
		return nil, fmt.Errorf("planner: marshal confidence intervals: %w", err)
	}

	rec := models.SimulationRun{
		ProjectID:           projectID,
		Iterations:          st.Iterations,
		Results:             string(results),
		ConfidenceIntervals: string(intervals),
		RiskLevel:           res.Risk.RiskLevel,
	}
	if err := s.runs.SaveRun(ctx, &rec); err != nil {
		return nil, err
	}
	s.log.Info("simulation run stored",
		zap.String("project", projectID),
		zap.String("run", rec.ID),
		zap.Int("iterations", st.Iterations),
		zap.String("risk", res.Risk.RiskLevel))

	if res.Risk.RiskLevel == simulation.RiskHigh {
		if err := s.notifier.Notify(ctx, riskAlert(w.Project, res)); err != nil {
			s.log.Warn("risk alert failed", zap.String("project", projectID), zap.Error(err))
		}
	}

	return &Run{
		ID:                  rec.ID,
		ProjectID:           rec.ProjectID,
		Iterations:          rec.Iterations,
		Results:             st,
		ConfidenceIntervals: ci,
		RiskLevel:           rec.RiskLevel,
		SimulationDate:      rec.SimulationDate,
	}, nil
}

func riskAlert(project *models.Project, res *simulation.Result) alert.Alert {
	st := res.Statistics
	a := alert.Alert{
		Title:    fmt.Sprintf("High schedule risk: %s", project.Name),
		Body:     fmt.Sprintf("Monte Carlo simulation of %d iterations predicts a likely overrun.", st.Iterations),
		Severity: alert.SeverityError,
		Fields: []alert.Field{
			{Name: "Median", Value: fmt.Sprintf("%.1fh", st.Median), Short: true},
			{Name: "P90", Value: fmt.Sprintf("%.1fh", st.Percentiles.P90), Short: true},
			{Name: "P95", Value: fmt.Sprintf("%.1fh", st.Percentiles.P95), Short: true},
		},
	}
	if t := res.Risk.TargetDuration; t != nil {
		a.Fields = append(a.Fields, alert.Field{Name: "Target", Value: fmt.Sprintf("%.1fh", *t), Short: true})
	}
	for _, r := range res.Recommendations {
		a.Body += "\n• " + r
	}
	return a
}

// History returns a project's most recent simulation runs, newest first.
func (s *Service) History(ctx context.Context, companyID, projectID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if _, err := s.units.GetProject(ctx, companyID, projectID); err != nil {
		return nil, err
	}
	recs, err := s.runs.ListRuns(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Run, 0, len(recs))
	for _, rec := range recs {
		r := Run{
			ID:             rec.ID,
			ProjectID:      rec.ProjectID,
			Iterations:     rec.Iterations,
			RiskLevel:      rec.RiskLevel,
			SimulationDate: rec.SimulationDate,
		}
		if err := json.Unmarshal([]byte(rec.Results), &r.Results); err != nil {
			return nil, fmt.Errorf("planner: decode results of run %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(rec.ConfidenceIntervals), &r.ConfidenceIntervals); err != nil {
			return nil, fmt.Errorf("planner: decode confidence intervals of run %s: %w", rec.ID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// WorkUnitPrediction pairs a work unit with its delay forecast.
type WorkUnitPrediction struct {
	WorkUnitID   string                `json:"workUnitId"`
	WorkUnitName string                `json:"workUnitName"`
	Prediction   simulation.Prediction `json:"prediction"`
}

// PredictWorkUnits forecasts delays for the given work units and writes
// each forecast back to its row. Every ID must belong to companyID.
func (s *Service) PredictWorkUnits(ctx context.Context, companyID string, ids []string) ([]WorkUnitPrediction, error) {
	if len(ids) == 0 {
		return nil, errs.Validationf("workUnitIds must be a non-empty array")
	}
	units, err := s.units.ListByIDs(ctx, companyID, ids)
	if err != nil {
		return nil, err
	}
	rng := s.newRand()
	out := make([]WorkUnitPrediction, 0, len(units))
	for _, wu := range units {
		p := simulation.PredictDelay(rng, wu.WorkUnitType)
		if err := s.units.SetPrediction(ctx, wu.ID, p.PredictedDelay, p.RiskScore, p.Confidence); err != nil {
			return nil, err
		}
		out = append(out, WorkUnitPrediction{WorkUnitID: wu.ID, WorkUnitName: wu.Name, Prediction: p})
	}
	return out, nil
}
