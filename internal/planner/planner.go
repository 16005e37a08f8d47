// Package planner composes the work unit store, template store and the
// pure scheduling core into the operations exposed by the API and CLI.
package planner

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/nitroplanner/nitroplanner/internal/alert"
	"github.com/nitroplanner/nitroplanner/internal/models"
	"github.com/nitroplanner/nitroplanner/internal/simulation"
	"github.com/nitroplanner/nitroplanner/internal/template"
	"github.com/nitroplanner/nitroplanner/internal/workflow"
)

// WorkUnitRepository is the subset of the work unit store the planner
// reads and writes.
type WorkUnitRepository interface {
	GetProject(ctx context.Context, companyID, id string) (*models.Project, error)
	ListByProject(ctx context.Context, projectID string) ([]models.WorkUnit, error)
	ListByIDs(ctx context.Context, companyID string, ids []string) ([]models.WorkUnit, error)
	SetDependencies(ctx context.Context, companyID, id string, deps []string) (*models.WorkUnit, error)
	SetPrediction(ctx context.Context, id string, delay, risk, confidence float64) error
}

// TemplateRepository instantiates process templates.
type TemplateRepository interface {
	Instantiate(ctx context.Context, projectID, templateID string, c template.Customizations, actorID string) (*template.Instantiation, error)
}

// RunRepository persists simulation runs.
type RunRepository interface {
	SaveRun(ctx context.Context, run *models.SimulationRun) error
	ListRuns(ctx context.Context, projectID string, limit int) ([]models.SimulationRun, error)
}

// Simulator runs Monte Carlo simulations over a compiled plan.
type Simulator interface {
	Run(ctx context.Context, plan *workflow.Plan, p simulation.Params) (*simulation.Result, error)
}

// Deps are the collaborators of a Service. Units, Runs and Simulator are
// required.
type Deps struct {
	Units     WorkUnitRepository
	Templates TemplateRepository
	Runs      RunRepository
	Simulator Simulator
	Notifier  alert.Notifier
	Logger    *zap.Logger
	// Timeout bounds each simulation. Zero means no limit beyond ctx.
	Timeout   time.Duration
	// Rand returns the random source for delay predictions.
	Rand      func() *rand.Rand
}

// Service implements the workflow engine operations.
type Service struct {
	units     WorkUnitRepository
	templates TemplateRepository
	runs      RunRepository
	sim       Simulator
	notifier  alert.Notifier
	log       *zap.Logger
	timeout   time.Duration
	newRand   func() *rand.Rand
}

// New builds a Service from d.
func New(d Deps) *Service {
	s := &Service{
		units:     d.Units,
		templates: d.Templates,
		runs:      d.Runs,
		sim:       d.Simulator,
		notifier:  d.Notifier,
		log:       d.Logger,
		timeout:   d.Timeout,
		newRand:   d.Rand,
	}
	if s.notifier == nil {
		s.notifier = alert.Nop{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.newRand == nil {
		s.newRand = func() *rand.Rand { return rand.New(rand.NewSource(time.Now().UnixNano())) }
	}
	return s
}
