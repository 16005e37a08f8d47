// Package jobs runs every Monte Carlo simulation on a bounded worker pool.
// Queued jobs are tracked in the database; callers that need the answer
// inline wait for their task on the same pool.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nitroplanner/nitroplanner/internal/config"
	"github.com/nitroplanner/nitroplanner/internal/errs"
	"github.com/nitroplanner/nitroplanner/internal/models"
	"github.com/nitroplanner/nitroplanner/internal/planner"
	"github.com/nitroplanner/nitroplanner/internal/simulation"
)

// Job statuses.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Executor runs simulations. RunMonteCarlo stores its result;
// SimulateWorkflow does not.
type Executor interface {
	RunMonteCarlo(ctx context.Context, companyID, projectID string, p simulation.Params) (*planner.Run, error)
	SimulateWorkflow(ctx context.Context, companyID, projectID string, p simulation.Params) (*simulation.Result, error)
}

// ErrStopped is returned to callers waiting on a runner that shut down.
var ErrStopped = errors.New("jobs: runner stopped")

// Opts configure a Runner.
type Opts struct {
	Workers       int
	QueueSize     int
	Timeout       time.Duration // per job; zero means none
	Retention     time.Duration
	PruneSchedule string
	Logger        *zap.Logger
}

// OptsFromConfig builds runner options from the jobs and simulation config
// sections.
func OptsFromConfig(j config.JobsConfig, s config.SimulationConfig, logger *zap.Logger) Opts {
	return Opts{
		Workers:       j.Workers,
		QueueSize:     j.QueueSize,
		Timeout:       s.Timeout,
		Retention:     j.Retention,
		PruneSchedule: j.PruneSchedule,
		Logger:        logger,
	}
}

type task struct {
	jobID     string // empty for previews, which have no job row
	companyID string
	projectID string
	params    simulation.Params
	preview   bool

	// Set for inline callers: the request context bounds the run and the
	// outcome is sent on reply (buffered, never blocks the worker).
	ctx   context.Context
	reply chan outcome
}

type outcome struct {
	run    *planner.Run
	result *simulation.Result
	err    error
}

// Runner is a fixed pool of workers reading a buffered queue. Job rows are
// the source of truth for status; the queue itself is not persisted, so
// jobs left queued or running by a previous process are failed on Start.
type Runner struct {
	db   *gorm.DB
	exec Executor
	opts Opts
	log  *zap.Logger

	queue chan task
	quit  chan struct{}
	sched cron.Schedule
	now   func() time.Time

	mu      sync.Mutex
	done    map[string]chan struct{}
	started bool
	wg      sync.WaitGroup
}

// New creates a Runner. The prune schedule is parsed here so a bad
// expression fails at startup.
func New(db *gorm.DB, exec Executor, opts Opts) (*Runner, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	var sched cron.Schedule
	if opts.PruneSchedule != "" {
		s, err := cronParser.Parse(opts.PruneSchedule)
		if err != nil {
			return nil, fmt.Errorf("jobs: parse prune schedule %q: %w", opts.PruneSchedule, err)
		}
		sched = s
	}
	return &Runner{
		db:    db,
		exec:  exec,
		opts:  opts,
		log:   opts.Logger,
		queue: make(chan task, opts.QueueSize),
		quit:  make(chan struct{}),
		sched: sched,
		now:   time.Now,
		done:  make(map[string]chan struct{}),
	}, nil
}

// Start fails orphaned jobs, then launches the workers and the prune
// schedule. Everything stops when ctx is cancelled; Wait for the workers
// with Stop.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("jobs: runner already started")
	}
	r.started = true
	r.mu.Unlock()

	if err := r.failOrphans(ctx); err != nil {
		return err
	}

	for i := 0; i < r.opts.Workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx)
	}
	go func() {
		<-ctx.Done()
		close(r.quit)
	}()

	if r.sched != nil && r.opts.Retention > 0 {
		c := cron.New(cron.WithParser(cronParser))
		c.Schedule(r.sched, cron.FuncJob(func() {
			n, err := r.Prune(ctx)
			if err != nil {
				r.log.Warn("job prune failed", zap.Error(err))
				return
			}
			if n > 0 {
				r.log.Info("pruned finished jobs", zap.Int64("count", n))
			}
		}))
		c.Start()
		go func() {
			<-ctx.Done()
			<-c.Stop().Done()
		}()
	}

	r.log.Info("job runner started",
		zap.Int("workers", r.opts.Workers),
		zap.Int("queue_size", r.opts.QueueSize))
	return nil
}

// Stop blocks until every worker has exited. Cancel the Start context
// first.
func (r *Runner) Stop() {
	r.wg.Wait()
}

func (r *Runner) failOrphans(ctx context.Context) error {
	now := r.now()
	result := r.db.WithContext(ctx).Model(&models.SimulationJob{}).
		Where("status IN ?", []string{StatusQueued, StatusRunning}).
		Updates(map[string]interface{}{
			"status":      StatusFailed,
			"error":       "interrupted by restart",
			"finished_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("jobs: fail orphaned jobs: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		r.log.Warn("failed orphaned jobs", zap.Int64("count", result.RowsAffected))
	}
	return nil
}

// Submit records a queued job and hands it to the pool. A full queue is
// rejected with an overload ComputationLimitError and the job is marked
// failed.
func (r *Runner) Submit(ctx context.Context, companyID, projectID string, p simulation.Params) (*models.SimulationJob, error) {
	return r.submit(ctx, task{companyID: companyID, projectID: projectID, params: p})
}

// Run queues a stored simulation like Submit, then waits for it. The run
// and the simulator's error come back unchanged; the job row records the
// outcome as well. When ctx ends first the run is cancelled.
func (r *Runner) Run(ctx context.Context, companyID, projectID string, p simulation.Params) (*planner.Run, error) {
	reply := make(chan outcome, 1)
	t := task{companyID: companyID, projectID: projectID, params: p, ctx: ctx, reply: reply}
	if _, err := r.submit(ctx, t); err != nil {
		return nil, err
	}
	o, err := r.await(ctx, reply)
	if err != nil {
		return nil, err
	}
	return o.run, o.err
}

// Simulate runs a simulation that is not stored. It takes a slot on the
// same pool as stored runs, so a full queue rejects it the same way.
func (r *Runner) Simulate(ctx context.Context, companyID, projectID string, p simulation.Params) (*simulation.Result, error) {
	reply := make(chan outcome, 1)
	t := task{companyID: companyID, projectID: projectID, params: p, preview: true, ctx: ctx, reply: reply}
	if !r.enqueue(t) {
		return nil, r.overloaded()
	}
	o, err := r.await(ctx, reply)
	if err != nil {
		return nil, err
	}
	return o.result, o.err
}

func (r *Runner) submit(ctx context.Context, t task) (*models.SimulationJob, error) {
	params, err := json.Marshal(t.params)
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal params: %w", err)
	}
	job := models.SimulationJob{
		ProjectID: t.projectID,
		Status:    StatusQueued,
		Params:    string(params),
	}
	if err := r.db.WithContext(ctx).Create(&job).Error; err != nil {
		return nil, fmt.Errorf("jobs: create job: %w", err)
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.done[job.ID] = done
	r.mu.Unlock()

	t.jobID = job.ID
	if !r.enqueue(t) {
		r.finish(context.WithoutCancel(ctx), job.ID, nil, errors.New("queue full"))
		return nil, r.overloaded()
	}
	jobsCounter.WithLabelValues(StatusQueued).Inc()
	return &job, nil
}

func (r *Runner) enqueue(t task) bool {
	select {
	case r.queue <- t:
		queueDepth.Inc()
		return true
	default:
		jobsCounter.WithLabelValues("rejected").Inc()
		return false
	}
}

func (r *Runner) overloaded() error {
	return &errs.ComputationLimitError{
		Message:  fmt.Sprintf("simulation queue is full (%d jobs)", r.opts.QueueSize),
		Overload: true,
	}
}

func (r *Runner) await(ctx context.Context, reply <-chan outcome) (outcome, error) {
	select {
	case o := <-reply:
		return o, nil
	case <-ctx.Done():
		return outcome{}, ctx.Err()
	case <-r.quit:
		return outcome{}, ErrStopped
	}
}

// Get returns a job by ID.
func (r *Runner) Get(ctx context.Context, id string) (*models.SimulationJob, error) {
	var job models.SimulationJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("simulation job", id)
		}
		return nil, fmt.Errorf("jobs: get %s: %w", id, err)
	}
	return &job, nil
}

// Wait blocks until the job has finished or ctx is done, then returns the
// job.
func (r *Runner) Wait(ctx context.Context, id string) (*models.SimulationJob, error) {
	r.mu.Lock()
	done, ok := r.done[id]
	r.mu.Unlock()
	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.Get(ctx, id)
}

// Prune deletes finished jobs older than the retention period.
func (r *Runner) Prune(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.opts.Retention)
	result := r.db.WithContext(ctx).
		Where("status IN ? AND finished_at < ?", []string{StatusSucceeded, StatusFailed}, cutoff).
		Delete(&models.SimulationJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("jobs: prune: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *Runner) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.queue:
			queueDepth.Dec()
			r.run(ctx, t)
		}
	}
}

func (r *Runner) run(ctx context.Context, t task) {
	jctx, cancel := r.taskContext(ctx, t)
	defer cancel()

	if t.preview {
		res, err := r.exec.SimulateWorkflow(jctx, t.companyID, t.projectID, t.params)
		t.reply <- outcome{result: res, err: err}
		return
	}

	if err := r.db.WithContext(ctx).Model(&models.SimulationJob{}).Where("id = ?", t.jobID).
		Updates(map[string]interface{}{"status": StatusRunning, "started_at": r.now()}).Error; err != nil {
		r.log.Warn("mark job running", zap.String("job", t.jobID), zap.Error(err))
	}
	run, err := r.exec.RunMonteCarlo(jctx, t.companyID, t.projectID, t.params)
	// Record the outcome even when shutdown cancelled the run.
	r.finish(context.WithoutCancel(ctx), t.jobID, run, err)
	if t.reply != nil {
		t.reply <- outcome{run: run, err: err}
	}
}

// taskContext ends when the runner stops, the job timeout passes or, for
// inline callers, the caller's context ends.
func (r *Runner) taskContext(ctx context.Context, t task) (context.Context, context.CancelFunc) {
	parent := ctx
	if t.ctx != nil {
		parent = t.ctx
	}
	jctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(ctx, cancel)
	if r.opts.Timeout <= 0 {
		return jctx, func() { stop(); cancel() }
	}
	jctx, tcancel := context.WithTimeout(jctx, r.opts.Timeout)
	return jctx, func() { tcancel(); stop(); cancel() }
}

func (r *Runner) finish(ctx context.Context, jobID string, run *planner.Run, runErr error) {
	updates := map[string]interface{}{"finished_at": r.now()}
	if runErr != nil {
		updates["status"] = StatusFailed
		updates["error"] = runErr.Error()
		r.log.Warn("simulation job failed", zap.String("job", jobID), zap.Error(runErr))
	} else {
		updates["status"] = StatusSucceeded
		updates["run_id"] = run.ID
	}
	jobsCounter.WithLabelValues(updates["status"].(string)).Inc()

	if err := r.db.WithContext(ctx).Model(&models.SimulationJob{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		r.log.Error("record job outcome", zap.String("job", jobID), zap.Error(err))
	}

	r.mu.Lock()
	if done, ok := r.done[jobID]; ok {
		close(done)
		delete(r.done, jobID)
	}
	r.mu.Unlock()
}
