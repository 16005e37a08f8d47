package simulation

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nitroplanner/nitroplanner/internal/workflow"
)

// ctxCheckEvery is how many trials a worker runs between context checks.
const ctxCheckEvery = 256

// Result is the full outcome of one simulation.
type Result struct {
	Params          Params       `json:"params"`
	Statistics      Statistics   `json:"statistics"`
	Risk            RiskAnalysis `json:"riskAnalysis"`
	Recommendations []string     `json:"recommendations"`
	Unestimated     int          `json:"unestimatedWorkUnits"`
}

// Simulator samples per-unit durations and propagates them through the
// dependency graph's forward pass. It holds no per-run state and is safe
// for concurrent use.
type Simulator struct {
	limits Limits
	log    *zap.Logger
	now    func() time.Time
}

// New returns a Simulator bounded by limits. A nil logger disables logging.
func New(limits Limits, logger *zap.Logger) *Simulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.Workers < 1 {
		limits.Workers = 1
	}
	return &Simulator{limits: limits, log: logger, now: time.Now}
}

// Limits returns the bounds the simulator enforces.
func (s *Simulator) Limits() Limits { return s.limits }

// Run simulates p.Iterations trials over plan. Each trial draws
// dur*U(1-v, 1+v) for every unit that is not completed (completed units take
// no time) and records the makespan of the forward pass. Trials are split
// across workers, each with its own random source derived from the seed,
// so seeded runs are reproducible. Cancellation of ctx aborts the run.
func (s *Simulator) Run(ctx context.Context, plan *workflow.Plan, p Params) (*Result, error) {
	p, err := s.limits.Normalize(p)
	if err != nil {
		runsCounter.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if p.Seed == nil {
		seed := s.now().UnixNano()
		p.Seed = &seed
	}

	start := s.now()
	base, open, unestimated := trialInputs(plan)
	samples := make([]float64, p.Iterations)

	workers := s.limits.Workers
	if workers > p.Iterations {
		workers = p.Iterations
	}
	chunk := (p.Iterations + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > p.Iterations {
			hi = p.Iterations
		}
		if lo >= hi {
			break
		}
		rng := rand.New(rand.NewSource(*p.Seed + int64(w)*7919))
		g.Go(func() error {
			return runTrials(gctx, plan, base, open, p.Variability, rng, samples[lo:hi])
		})
	}
	if err := g.Wait(); err != nil {
		runsCounter.WithLabelValues("canceled").Inc()
		s.log.Warn("simulation aborted",
			zap.Int("iterations", p.Iterations),
			zap.Duration("elapsed", s.now().Sub(start)),
			zap.Error(err))
		return nil, err
	}

	st := Summarize(samples, p.ConfidenceLevel)
	risk := ClassifyRisk(st, p.TargetDuration)
	elapsed := s.now().Sub(start)

	runsCounter.WithLabelValues("ok").Inc()
	runDurationHistogram.Observe(elapsed.Seconds())
	riskLevelCounter.WithLabelValues(risk.RiskLevel).Inc()
	s.log.Debug("simulation finished",
		zap.Int("units", plan.Len()),
		zap.Int("iterations", p.Iterations),
		zap.Int("workers", workers),
		zap.Float64("p95", st.Percentiles.P95),
		zap.String("risk", risk.RiskLevel),
		zap.Duration("elapsed", elapsed))

	return &Result{
		Params:          p,
		Statistics:      st,
		Risk:            risk,
		Recommendations: Recommendations(risk.RiskLevel, unestimated),
		Unestimated:     unestimated,
	}, nil
}

// trialInputs returns base durations, which units are still open, and how
// many open units lack an estimate.
func trialInputs(plan *workflow.Plan) (base []float64, open []bool, unestimated int) {
	nodes := plan.Graph().Nodes
	base = plan.Durations()
	open = make([]bool, len(nodes))
	for i, n := range nodes {
		if n.Status == workflow.StatusCompleted {
			continue
		}
		open[i] = true
		if n.EstimatedHours == nil {
			unestimated++
		}
	}
	return base, open, unestimated
}

func runTrials(ctx context.Context, plan *workflow.Plan, base []float64, open []bool, v float64, rng *rand.Rand, out []float64) error {
	dur := make([]float64, len(base))
	ef := make([]float64, len(base))
	for t := range out {
		if t%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for i := range base {
			if !open[i] {
				dur[i] = 0
				continue
			}
			dur[i] = base[i] * (1 - v + rng.Float64()*2*v)
		}
		out[t] = plan.Forward(dur, ef)
	}
	return nil
}
