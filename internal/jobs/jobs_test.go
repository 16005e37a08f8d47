package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/nitroplanner/nitroplanner/internal/config"
	"github.com/nitroplanner/nitroplanner/internal/db"
	"github.com/nitroplanner/nitroplanner/internal/errs"
	"github.com/nitroplanner/nitroplanner/internal/models"
	"github.com/nitroplanner/nitroplanner/internal/planner"
	"github.com/nitroplanner/nitroplanner/internal/simulation"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.ConnectSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

// fakeExecutor returns a run or error per project and can block until
// released.
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	release chan struct{}
}

func (f *fakeExecutor) call(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeExecutor) RunMonteCarlo(ctx context.Context, companyID, projectID string, p simulation.Params) (*planner.Run, error) {
	if err := f.call(ctx, projectID); err != nil {
		return nil, err
	}
	if err := f.fail[projectID]; err != nil {
		return nil, err
	}
	return &planner.Run{ID: "run-" + projectID, ProjectID: projectID, Iterations: p.Iterations}, nil
}

func (f *fakeExecutor) SimulateWorkflow(ctx context.Context, companyID, projectID string, p simulation.Params) (*simulation.Result, error) {
	if err := f.call(ctx, "preview:"+projectID); err != nil {
		return nil, err
	}
	if err := f.fail[projectID]; err != nil {
		return nil, err
	}
	return &simulation.Result{Params: p}, nil
}

func startRunner(t *testing.T, gdb *gorm.DB, exec Executor, opts Opts) *Runner {
	t.Helper()
	r, err := New(gdb, exec, opts)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cancel()
		r.Stop()
	})
	return r
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSubmit_Succeeds(t *testing.T) {
	gdb := testDB(t)
	r := startRunner(t, gdb, &fakeExecutor{}, Opts{Workers: 2, QueueSize: 4})

	job, err := r.Submit(context.Background(), "c1", "p1", simulation.Params{Iterations: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != StatusQueued || job.ID == "" {
		t.Errorf("submitted job = %+v", job)
	}

	got, err := r.Wait(waitCtx(t), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusSucceeded {
		t.Fatalf("Status = %q, want succeeded (error %q)", got.Status, got.Error)
	}
	if got.RunID == nil || *got.RunID != "run-p1" {
		t.Errorf("RunID = %v, want run-p1", got.RunID)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Errorf("timestamps not set: %+v", got)
	}
	if got.Params == "" {
		t.Error("params not stored")
	}
}

func TestSubmit_RecordsFailure(t *testing.T) {
	gdb := testDB(t)
	exec := &fakeExecutor{fail: map[string]error{"p1": errs.NotFound("project", "p1")}}
	r := startRunner(t, gdb, exec, Opts{Workers: 1, QueueSize: 4})

	job, err := r.Submit(context.Background(), "c1", "p1", simulation.Params{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Wait(waitCtx(t), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed || got.Error == "" {
		t.Errorf("job = %+v, want failed with error", got)
	}
	if got.RunID != nil {
		t.Errorf("RunID = %v, want nil", *got.RunID)
	}
}

func TestSubmit_QueueFull(t *testing.T) {
	gdb := testDB(t)
	exec := &fakeExecutor{release: make(chan struct{})}
	r, err := New(gdb, exec, Opts{Workers: 1, QueueSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	// Not started: nothing drains the queue.
	if _, err := r.Submit(context.Background(), "c1", "p1", simulation.Params{}); err != nil {
		t.Fatal(err)
	}
	_, err = r.Submit(context.Background(), "c1", "p2", simulation.Params{})
	var le *errs.ComputationLimitError
	if !errors.As(err, &le) || !le.Overload {
		t.Fatalf("err = %v, want overload ComputationLimitError", err)
	}

	var failed int64
	gdb.Model(&models.SimulationJob{}).Where("status = ?", StatusFailed).Count(&failed)
	if failed != 1 {
		t.Errorf("failed jobs = %d, want 1", failed)
	}
}

func TestWait_ContextDone(t *testing.T) {
	gdb := testDB(t)
	exec := &fakeExecutor{release: make(chan struct{})}
	r := startRunner(t, gdb, exec, Opts{Workers: 1, QueueSize: 1})
	defer close(exec.release)

	job, err := r.Submit(context.Background(), "c1", "p1", simulation.Params{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Wait(ctx, job.ID); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestRun_Timeout(t *testing.T) {
	gdb := testDB(t)
	exec := &fakeExecutor{release: make(chan struct{})}
	defer close(exec.release)
	r := startRunner(t, gdb, exec, Opts{Workers: 1, QueueSize: 1, Timeout: 10 * time.Millisecond})

	job, err := r.Submit(context.Background(), "c1", "p1", simulation.Params{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Wait(waitCtx(t), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed || got.Error != context.DeadlineExceeded.Error() {
		t.Errorf("job = %+v, want failed with deadline exceeded", got)
	}
}

func TestRunInline_ReturnsRunAndRecordsJob(t *testing.T) {
	gdb := testDB(t)
	r := startRunner(t, gdb, &fakeExecutor{}, Opts{Workers: 1, QueueSize: 2})

	run, err := r.Run(waitCtx(t), "c1", "p1", simulation.Params{Iterations: 1500})
	if err != nil {
		t.Fatal(err)
	}
	if run.ID != "run-p1" || run.Iterations != 1500 {
		t.Errorf("run = %+v", run)
	}

	var jobs []models.SimulationJob
	gdb.Find(&jobs)
	if len(jobs) != 1 || jobs[0].Status != StatusSucceeded || jobs[0].RunID == nil {
		t.Errorf("jobs = %+v, want one succeeded job", jobs)
	}
}

func TestRunInline_KeepsErrorKind(t *testing.T) {
	gdb := testDB(t)
	exec := &fakeExecutor{fail: map[string]error{"p1": errs.NotFound("project", "p1")}}
	r := startRunner(t, gdb, exec, Opts{Workers: 1, QueueSize: 2})

	if _, err := r.Run(waitCtx(t), "c1", "p1", simulation.Params{}); !errs.IsNotFound(err) {
		t.Fatalf("err = %v, want NotFound", err)
	}
	var failed int64
	gdb.Model(&models.SimulationJob{}).Where("status = ?", StatusFailed).Count(&failed)
	if failed != 1 {
		t.Errorf("failed jobs = %d, want 1", failed)
	}
}

func TestRunInline_CallerGivesUp(t *testing.T) {
	exec := &fakeExecutor{release: make(chan struct{})}
	defer close(exec.release)
	r := startRunner(t, testDB(t), exec, Opts{Workers: 1, QueueSize: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Run(ctx, "c1", "p1", simulation.Params{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestSimulate_NotStored(t *testing.T) {
	gdb := testDB(t)
	exec := &fakeExecutor{}
	r := startRunner(t, gdb, exec, Opts{Workers: 1, QueueSize: 2})

	res, err := r.Simulate(waitCtx(t), "c1", "p1", simulation.Params{Iterations: 1200})
	if err != nil {
		t.Fatal(err)
	}
	if res.Params.Iterations != 1200 {
		t.Errorf("result params = %+v", res.Params)
	}
	if len(exec.calls) != 1 || exec.calls[0] != "preview:p1" {
		t.Errorf("calls = %v, want [preview:p1]", exec.calls)
	}
	var count int64
	gdb.Model(&models.SimulationJob{}).Count(&count)
	if count != 0 {
		t.Errorf("jobs = %d, want 0", count)
	}
}

func TestInline_QueueFull(t *testing.T) {
	gdb := testDB(t)
	r, err := New(gdb, &fakeExecutor{}, Opts{Workers: 1, QueueSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	// Not started: the first job fills the queue for good.
	if _, err := r.Submit(context.Background(), "c1", "p1", simulation.Params{}); err != nil {
		t.Fatal(err)
	}

	var le *errs.ComputationLimitError
	if _, err := r.Simulate(context.Background(), "c1", "p1", simulation.Params{}); !errors.As(err, &le) || !le.Overload {
		t.Errorf("Simulate err = %v, want overload", err)
	}
	if _, err := r.Run(context.Background(), "c1", "p1", simulation.Params{}); !errors.As(err, &le) || !le.Overload {
		t.Errorf("Run err = %v, want overload", err)
	}

	var count int64
	gdb.Model(&models.SimulationJob{}).Count(&count)
	if count != 2 {
		t.Errorf("jobs = %d, want 2 (queued + rejected run)", count)
	}
}

func TestInline_RunnerStopped(t *testing.T) {
	r, err := New(testDB(t), &fakeExecutor{}, Opts{Workers: 1, QueueSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	r.Stop()

	if _, err := r.Simulate(waitCtx(t), "c1", "p1", simulation.Params{}); !errors.Is(err, ErrStopped) {
		t.Errorf("err = %v, want ErrStopped", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	r, err := New(testDB(t), &fakeExecutor{}, Opts{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get(context.Background(), "missing"); !errs.IsNotFound(err) {
		t.Errorf("err = %v, want NotFound", err)
	}
	if _, err := r.Wait(context.Background(), "missing"); !errs.IsNotFound(err) {
		t.Errorf("Wait err = %v, want NotFound", err)
	}
}

func TestStart_FailsOrphans(t *testing.T) {
	gdb := testDB(t)
	orphan := models.SimulationJob{ProjectID: "p1", Status: StatusRunning, Params: "{}"}
	if err := gdb.Create(&orphan).Error; err != nil {
		t.Fatal(err)
	}
	r := startRunner(t, gdb, &fakeExecutor{}, Opts{})
	got, err := r.Get(context.Background(), orphan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusFailed || got.FinishedAt == nil {
		t.Errorf("orphan = %+v, want failed", got)
	}
}

func TestStart_Twice(t *testing.T) {
	r := startRunner(t, testDB(t), &fakeExecutor{}, Opts{})
	if err := r.Start(context.Background()); err == nil {
		t.Error("expected error on second Start")
	}
}

func TestPrune(t *testing.T) {
	gdb := testDB(t)
	r, err := New(gdb, &fakeExecutor{}, Opts{Retention: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	old := now.Add(-2 * time.Hour)
	recent := now.Add(-10 * time.Minute)
	rows := []models.SimulationJob{
		{ProjectID: "p", Status: StatusSucceeded, Params: "{}", FinishedAt: &old},
		{ProjectID: "p", Status: StatusFailed, Params: "{}", FinishedAt: &old},
		{ProjectID: "p", Status: StatusSucceeded, Params: "{}", FinishedAt: &recent},
		{ProjectID: "p", Status: StatusQueued, Params: "{}"},
	}
	for i := range rows {
		if err := gdb.Create(&rows[i]).Error; err != nil {
			t.Fatal(err)
		}
	}

	n, err := r.Prune(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("pruned %d, want 2", n)
	}
	var left int64
	gdb.Model(&models.SimulationJob{}).Count(&left)
	if left != 2 {
		t.Errorf("remaining = %d, want 2", left)
	}
}

func TestNew_BadSchedule(t *testing.T) {
	if _, err := New(testDB(t), &fakeExecutor{}, Opts{PruneSchedule: "every tuesday"}); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestOptsFromConfig(t *testing.T) {
	o := OptsFromConfig(
		config.JobsConfig{Workers: 3, QueueSize: 9, Retention: time.Hour, PruneSchedule: "*/5 * * * *"},
		config.SimulationConfig{Timeout: time.Minute},
		nil,
	)
	if o.Workers != 3 || o.QueueSize != 9 || o.Timeout != time.Minute || o.PruneSchedule != "*/5 * * * *" {
		t.Errorf("Opts = %+v", o)
	}
	if _, err := New(testDB(t), &fakeExecutor{}, o); err != nil {
		t.Errorf("New with config opts: %v", err)
	}
}
