package planner

import (
	"context"

	"go.uber.org/zap"

	"github.com/nitroplanner/nitroplanner/internal/errs"
	"github.com/nitroplanner/nitroplanner/internal/models"
	"github.com/nitroplanner/nitroplanner/internal/template"
	"github.com/nitroplanner/nitroplanner/internal/workflow"
	"github.com/nitroplanner/nitroplanner/internal/workunit"
)

// CriticalPathView is the serialized critical path of a project.
type CriticalPathView struct {
	Path          []workflow.NodeSchedule `json:"path"`
	TotalDuration float64                 `json:"totalDuration"`
	CriticalNodes []string                `json:"criticalNodes"`
}

// ProjectWorkflow is the full workflow view of one project.
type ProjectWorkflow struct {
	Project         *models.Project   `json:"project"`
	WorkUnits       []models.WorkUnit `json:"workUnits"`
	DependencyGraph *workflow.Graph   `json:"dependencyGraph"`
	CriticalPath    CriticalPathView  `json:"criticalPath"`
	Metrics         workflow.Metrics  `json:"metrics"`

	plan *workflow.Plan
}

// Plan returns the compiled scheduling plan of the workflow.
func (w *ProjectWorkflow) Plan() *workflow.Plan { return w.plan }

// load reads a project's work units and compiles their graph. Any
// integrity failure aborts before analysis.
func (s *Service) load(ctx context.Context, companyID, projectID string) (*ProjectWorkflow, error) {
	project, err := s.units.GetProject(ctx, companyID, projectID)
	if err != nil {
		return nil, err
	}
	units, err := s.units.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if units == nil {
		units = []models.WorkUnit{}
	}
	g, err := workflow.BuildValidated(workunit.ToNodes(units))
	if err != nil {
		return nil, err
	}
	plan, err := workflow.Compile(g)
	if err != nil {
		return nil, err
	}
	return &ProjectWorkflow{Project: project, WorkUnits: units, DependencyGraph: g, plan: plan}, nil
}

// Project returns a project visible to companyID.
func (s *Service) Project(ctx context.Context, companyID, projectID string) (*models.Project, error) {
	return s.units.GetProject(ctx, companyID, projectID)
}

// GetProjectWorkflow returns the project's work units, dependency graph,
// critical path and metrics.
func (s *Service) GetProjectWorkflow(ctx context.Context, companyID, projectID string) (*ProjectWorkflow, error) {
	w, err := s.load(ctx, companyID, projectID)
	if err != nil {
		return nil, err
	}
	cp := w.plan.CriticalPath()
	w.CriticalPath = CriticalPathView{
		Path:          cp.Path,
		TotalDuration: cp.TotalDuration,
		CriticalNodes: cp.CriticalNodes,
	}
	w.Metrics = workflow.ComputeMetrics(w.DependencyGraph.Nodes, w.DependencyGraph)
	return w, nil
}

// Analytics returns timeline, quality, efficiency and team analytics for a
// project.
func (s *Service) Analytics(ctx context.Context, companyID, projectID string) (*workflow.Analytics, error) {
	if _, err := s.units.GetProject(ctx, companyID, projectID); err != nil {
		return nil, err
	}
	units, err := s.units.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	a := workflow.ComputeAnalytics(workunit.ToNodes(units), workunit.CheckpointStatuses(units))
	return &a, nil
}

// UpdateDependencies replaces a work unit's ordered dependency list.
func (s *Service) UpdateDependencies(ctx context.Context, companyID, workUnitID string, deps []string) (*models.WorkUnit, error) {
	if deps == nil {
		return nil, errs.Validationf("dependencies must be an array")
	}
	wu, err := s.units.SetDependencies(ctx, companyID, workUnitID, deps)
	if err != nil {
		return nil, err
	}
	s.log.Info("dependencies updated",
		zap.String("work_unit", workUnitID),
		zap.Int("count", len(wu.Deps)))
	return wu, nil
}

// CreateFromTemplate instantiates a template into a project of companyID.
func (s *Service) CreateFromTemplate(ctx context.Context, companyID, projectID, templateID string, c template.Customizations, actorID string) (*template.Instantiation, error) {
	if templateID == "" {
		return nil, errs.Validationf("templateId is required")
	}
	if s.templates == nil {
		return nil, errs.NotFound("template", templateID)
	}
	if _, err := s.units.GetProject(ctx, companyID, projectID); err != nil {
		return nil, err
	}
	inst, err := s.templates.Instantiate(ctx, projectID, templateID, c, actorID)
	if err != nil {
		return nil, err
	}
	s.log.Info("workflow created from template",
		zap.String("project", projectID),
		zap.String("template", templateID),
		zap.Int("work_units", len(inst.WorkUnits)))
	return inst, nil
}
