package workunit

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/nitroplanner/nitroplanner/internal/db"
	"github.com/nitroplanner/nitroplanner/internal/errs"
	"github.com/nitroplanner/nitroplanner/internal/models"
	"github.com/nitroplanner/nitroplanner/internal/workflow"
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

func hours(h float64) *float64 { return &h }

// fixture creates a company with one project and returns the store.
func fixture(t *testing.T) (*Store, *models.Company, *models.Project) {
	t.Helper()
	gdb := testDB(t)
	company, err := db.SeedCompany(gdb, "acme")
	if err != nil {
		t.Fatalf("seed company: %v", err)
	}
	s := NewStore(gdb)
	p, err := s.CreateProject(context.Background(), CreateProjectOpts{CompanyID: company.ID, Name: "Cell 7"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return s, company, p
}

func mustCreate(t *testing.T, s *Store, projectID, name string, est float64, deps ...string) *models.WorkUnit {
	t.Helper()
	wu, err := s.Create(context.Background(), CreateOpts{
		ProjectID:      projectID,
		Name:           name,
		EstimatedHours: hours(est),
		Dependencies:   deps,
	})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return wu
}

func TestCreateProject_UnknownCompany(t *testing.T) {
	s := NewStore(testDB(t))
	_, err := s.CreateProject(context.Background(), CreateProjectOpts{CompanyID: "nope", Name: "x"})
	if !errs.IsNotFound(err) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestGetProject_CompanyScope(t *testing.T) {
	s, company, p := fixture(t)
	ctx := context.Background()

	if _, err := s.GetProject(ctx, company.ID, p.ID); err != nil {
		t.Errorf("in-scope lookup: %v", err)
	}
	if _, err := s.GetProject(ctx, "other-company", p.ID); !errs.IsNotFound(err) {
		t.Errorf("out-of-scope lookup err = %v, want NotFound", err)
	}
}

func TestCreate_Defaults(t *testing.T) {
	s, _, p := fixture(t)
	wu := mustCreate(t, s, p.ID, "Design", 10)

	if wu.Status != workflow.StatusPending {
		t.Errorf("Status = %q, want pending", wu.Status)
	}
	if wu.Priority != "medium" {
		t.Errorf("Priority = %q, want medium", wu.Priority)
	}
	if wu.ID == "" {
		t.Error("ID should be assigned")
	}
}

func TestCreate_Validation(t *testing.T) {
	s, _, p := fixture(t)
	ctx := context.Background()
	tests := []struct {
		name string
		opts CreateOpts
	}{
		{"missing name", CreateOpts{ProjectID: p.ID}},
		{"bad priority", CreateOpts{ProjectID: p.ID, Name: "x", Priority: "urgent"}},
		{"negative estimate", CreateOpts{ProjectID: p.ID, Name: "x", EstimatedHours: hours(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.opts)
			var ve *errs.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}

	if _, err := s.Create(ctx, CreateOpts{ProjectID: "missing", Name: "x"}); !errs.IsNotFound(err) {
		t.Errorf("unknown project err = %v, want NotFound", err)
	}
}

func TestCreate_WithDependencies(t *testing.T) {
	s, _, p := fixture(t)
	a := mustCreate(t, s, p.ID, "A", 1)
	b := mustCreate(t, s, p.ID, "B", 1)
	c := mustCreate(t, s, p.ID, "C", 1, b.ID, a.ID, b.ID)

	got := c.DependencyIDs()
	if len(got) != 2 || got[0] != b.ID || got[1] != a.ID {
		t.Errorf("DependencyIDs() = %v, want [B A] with duplicate collapsed", got)
	}
}

func TestSetDependencies_InvalidIDs(t *testing.T) {
	s, company, p := fixture(t)
	a := mustCreate(t, s, p.ID, "A", 1)
	b := mustCreate(t, s, p.ID, "B", 1)

	_, err := s.SetDependencies(context.Background(), company.ID, b.ID, []string{a.ID, "ghost-1", "ghost-2"})
	var ve *errs.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(ve.InvalidIDs) != 2 || ve.InvalidIDs[0] != "ghost-1" || ve.InvalidIDs[1] != "ghost-2" {
		t.Errorf("InvalidIDs = %v, want [ghost-1 ghost-2]", ve.InvalidIDs)
	}

	// Nothing was written.
	got, _ := s.Get(context.Background(), "", b.ID)
	if len(got.Deps) != 0 {
		t.Errorf("Deps = %v, want none after rejected update", got.Deps)
	}
}

func TestSetDependencies_OtherCompanyIsInvalid(t *testing.T) {
	s, company, p := fixture(t)
	ctx := context.Background()
	other, err := db.SeedCompany(s.DB(), "globex")
	if err != nil {
		t.Fatal(err)
	}
	op, err := s.CreateProject(ctx, CreateProjectOpts{CompanyID: other.ID, Name: "Theirs"})
	if err != nil {
		t.Fatal(err)
	}
	foreign := mustCreate(t, s, op.ID, "Foreign", 1)
	mine := mustCreate(t, s, p.ID, "Mine", 1)

	_, err = s.SetDependencies(ctx, company.ID, mine.ID, []string{foreign.ID})
	var ve *errs.ValidationError
	if !errors.As(err, &ve) || len(ve.InvalidIDs) != 1 || ve.InvalidIDs[0] != foreign.ID {
		t.Errorf("err = %v, want ValidationError naming the foreign unit", err)
	}
}

func TestSetDependencies_OtherProjectIsInvalid(t *testing.T) {
	s, company, p := fixture(t)
	ctx := context.Background()
	op, err := s.CreateProject(ctx, CreateProjectOpts{CompanyID: company.ID, Name: "Cell 8"})
	if err != nil {
		t.Fatal(err)
	}
	neighbour := mustCreate(t, s, op.ID, "Neighbour", 1)
	mine := mustCreate(t, s, p.ID, "Mine", 1)

	_, err = s.SetDependencies(ctx, company.ID, mine.ID, []string{neighbour.ID})
	var ve *errs.ValidationError
	if !errors.As(err, &ve) || len(ve.InvalidIDs) != 1 || ve.InvalidIDs[0] != neighbour.ID {
		t.Errorf("err = %v, want ValidationError naming the other project's unit", err)
	}

	_, err = s.Create(ctx, CreateOpts{ProjectID: p.ID, Name: "Late", Dependencies: []string{neighbour.ID}})
	if !errors.As(err, &ve) {
		t.Errorf("create err = %v, want ValidationError", err)
	}
}

func TestSetDependencies_RejectsSelfAndCycle(t *testing.T) {
	s, company, p := fixture(t)
	ctx := context.Background()
	a := mustCreate(t, s, p.ID, "A", 1)
	b := mustCreate(t, s, p.ID, "B", 1, a.ID)
	c := mustCreate(t, s, p.ID, "C", 1, b.ID)

	var ve *errs.ValidationError
	if _, err := s.SetDependencies(ctx, company.ID, a.ID, []string{a.ID}); !errors.As(err, &ve) {
		t.Errorf("self dependency err = %v, want ValidationError", err)
	}

	_, err := s.SetDependencies(ctx, company.ID, a.ID, []string{c.ID})
	var gi *errs.GraphIntegrityError
	if !errors.As(err, &gi) || gi.Kind != errs.GraphCycle {
		t.Fatalf("err = %v, want cycle GraphIntegrityError", err)
	}
	if gi.NodeIDs[0] != a.ID || gi.NodeIDs[len(gi.NodeIDs)-1] != a.ID {
		t.Errorf("cycle path = %v, want to start and end at A", gi.NodeIDs)
	}
}

func TestSetDependencies_ReplacesInOrder(t *testing.T) {
	s, company, p := fixture(t)
	ctx := context.Background()
	a := mustCreate(t, s, p.ID, "A", 1)
	b := mustCreate(t, s, p.ID, "B", 1)
	c := mustCreate(t, s, p.ID, "C", 1, a.ID)

	got, err := s.SetDependencies(ctx, company.ID, c.ID, []string{b.ID, a.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := got.DependencyIDs()
	if len(ids) != 2 || ids[0] != b.ID || ids[1] != a.ID {
		t.Errorf("DependencyIDs() = %v, want [B A]", ids)
	}

	got, err = s.SetDependencies(ctx, company.ID, c.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Deps) != 0 {
		t.Errorf("Deps = %v, want cleared", got.Deps)
	}
}

func TestUpdate_StatusTransitions(t *testing.T) {
	s, _, p := fixture(t)
	ctx := context.Background()
	wu := mustCreate(t, s, p.ID, "A", 1)

	got, err := s.Update(ctx, wu.ID, map[string]interface{}{"status": workflow.StatusInProgress})
	if err != nil {
		t.Fatalf("pending -> in_progress: %v", err)
	}
	if got.StartDate == nil {
		t.Error("StartDate should be set when work starts")
	}

	got, err = s.Update(ctx, wu.ID, map[string]interface{}{"status": workflow.StatusCompleted})
	if err != nil {
		t.Fatalf("in_progress -> completed: %v", err)
	}
	if got.Progress != 100 || got.EndDate == nil {
		t.Errorf("completed unit: progress %v end %v", got.Progress, got.EndDate)
	}

	_, err = s.Update(ctx, wu.ID, map[string]interface{}{"status": workflow.StatusPending})
	var it *errs.InvalidTransitionError
	if !errors.As(err, &it) {
		t.Fatalf("completed -> pending err = %v, want InvalidTransitionError", err)
	}
	if it.From != workflow.StatusCompleted || len(it.Valid) != 0 {
		t.Errorf("InvalidTransitionError = %+v", it)
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{"pending", "in_progress", true},
		{"pending", "blocked", true},
		{"pending", "completed", false},
		{"in_progress", "completed", true},
		{"in_progress", "pending", false},
		{"blocked", "pending", true},
		{"blocked", "in_progress", true},
		{"blocked", "completed", false},
		{"completed", "in_progress", false},
	}
	for _, tt := range tests {
		if got := isValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("isValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestUpdate_RejectsBadValues(t *testing.T) {
	s, _, p := fixture(t)
	ctx := context.Background()
	wu := mustCreate(t, s, p.ID, "A", 1)

	for _, u := range []map[string]interface{}{
		{"progress": 101.0},
		{"progress": -1.0},
		{"priority": "whenever"},
		{"actual_hours": -2.0},
	} {
		_, err := s.Update(ctx, wu.ID, u)
		var ve *errs.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Update(%v) err = %v, want ValidationError", u, err)
		}
	}

	if _, err := s.Update(ctx, "missing", map[string]interface{}{"name": "x"}); !errs.IsNotFound(err) {
		t.Errorf("missing unit err = %v, want NotFound", err)
	}
}

func TestListByIDs(t *testing.T) {
	s, company, p := fixture(t)
	ctx := context.Background()
	a := mustCreate(t, s, p.ID, "A", 1)
	b := mustCreate(t, s, p.ID, "B", 1)

	units, err := s.ListByIDs(ctx, company.ID, []string{a.ID, b.ID})
	if err != nil || len(units) != 2 {
		t.Fatalf("ListByIDs = %d units, err %v", len(units), err)
	}
	if _, err := s.ListByIDs(ctx, company.ID, []string{a.ID, "missing"}); !errs.IsNotFound(err) {
		t.Errorf("err = %v, want NotFound", err)
	}
	if _, err := s.ListByIDs(ctx, "other", []string{a.ID}); !errs.IsNotFound(err) {
		t.Errorf("cross-company err = %v, want NotFound", err)
	}
}

func TestSetPrediction(t *testing.T) {
	s, _, p := fixture(t)
	ctx := context.Background()
	wu := mustCreate(t, s, p.ID, "A", 1)

	if err := s.SetPrediction(ctx, wu.ID, 1.25, 0.18, 0.8); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Get(ctx, "", wu.ID)
	if got.PredictedDelay == nil || *got.PredictedDelay != 1.25 || *got.RiskScore != 0.18 || *got.Confidence != 0.8 {
		t.Errorf("prediction = %v %v %v", got.PredictedDelay, got.RiskScore, got.Confidence)
	}
	if err := s.SetPrediction(ctx, "missing", 1, 1, 1); !errs.IsNotFound(err) {
		t.Errorf("err = %v, want NotFound", err)
	}
}

func TestCheckpointStateMachine(t *testing.T) {
	s, _, p := fixture(t)
	ctx := context.Background()
	wu := mustCreate(t, s, p.ID, "A", 1)

	cp, err := s.CreateCheckpoint(ctx, wu.ID, CheckpointOpts{Name: "Design review", RequiredRole: "lead"})
	if err != nil {
		t.Fatal(err)
	}
	if cp.Status != workflow.CheckpointPending || cp.CheckpointType != DefaultCheckpointType {
		t.Errorf("new checkpoint = %+v", cp)
	}

	var it *errs.InvalidTransitionError
	if _, err := s.SetCheckpointStatus(ctx, cp.ID, workflow.CheckpointPassed); !errors.As(err, &it) {
		t.Errorf("pending -> passed err = %v, want InvalidTransitionError", err)
	}

	for _, step := range []string{
		workflow.CheckpointInProgress,
		workflow.CheckpointFailed,
		workflow.CheckpointInProgress,
		workflow.CheckpointPassed,
	} {
		if _, err := s.SetCheckpointStatus(ctx, cp.ID, step); err != nil {
			t.Fatalf("-> %s: %v", step, err)
		}
	}
	if _, err := s.SetCheckpointStatus(ctx, cp.ID, workflow.CheckpointInProgress); !errors.As(err, &it) {
		t.Errorf("passed -> in_progress err = %v, want InvalidTransitionError", err)
	}

	got, _ := s.Get(ctx, "", wu.ID)
	if len(got.Checkpoints) != 1 || got.Checkpoints[0].Status != workflow.CheckpointPassed {
		t.Errorf("Checkpoints = %+v", got.Checkpoints)
	}
}

func TestCreateCheckpoint_Errors(t *testing.T) {
	s, _, p := fixture(t)
	ctx := context.Background()
	wu := mustCreate(t, s, p.ID, "A", 1)

	var ve *errs.ValidationError
	if _, err := s.CreateCheckpoint(ctx, wu.ID, CheckpointOpts{}); !errors.As(err, &ve) {
		t.Errorf("nameless checkpoint err = %v", err)
	}
	if _, err := s.CreateCheckpoint(ctx, "missing", CheckpointOpts{Name: "x"}); !errs.IsNotFound(err) {
		t.Errorf("missing unit err = %v", err)
	}
	if _, err := s.SetCheckpointStatus(ctx, "missing", "in_progress"); !errs.IsNotFound(err) {
		t.Errorf("missing checkpoint err = %v", err)
	}
}

func TestToNodes(t *testing.T) {
	s, _, p := fixture(t)
	ctx := context.Background()
	a := mustCreate(t, s, p.ID, "A", 5)
	mustCreate(t, s, p.ID, "B", 3, a.ID)
	if _, err := s.CreateCheckpoint(ctx, a.ID, CheckpointOpts{Name: "gate"}); err != nil {
		t.Fatal(err)
	}

	units, err := s.ListByProject(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	nodes := ToNodes(units)
	g, err := workflow.BuildValidated(nodes)
	if err != nil {
		t.Fatalf("graph from stored units: %v", err)
	}
	if len(g.Edges) != 1 || g.Edges[0].From != a.ID {
		t.Errorf("Edges = %+v", g.Edges)
	}
	if cps := CheckpointStatuses(units); len(cps) != 1 || cps[0].WorkUnitID != a.ID {
		t.Errorf("CheckpointStatuses = %+v", cps)
	}
}
