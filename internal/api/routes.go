package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nitroplanner/nitroplanner/internal/errs"
	"github.com/nitroplanner/nitroplanner/internal/models"
	"github.com/nitroplanner/nitroplanner/internal/simulation"
	"github.com/nitroplanner/nitroplanner/internal/template"
	"github.com/nitroplanner/nitroplanner/internal/workunit"
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, s *server, registry *prometheus.Registry) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	wf := router.Group("/workflow")
	{
		wf.GET("/project/:projectId", s.handleProjectWorkflow)
		wf.PUT("/dependencies/:workUnitId", s.handleUpdateDependencies)
		wf.POST("/simulate/:projectId", s.handleSimulate)
		wf.POST("/create-from-template/:projectId", s.handleCreateFromTemplate)
		wf.GET("/analytics/:projectId", s.handleAnalytics)
	}

	sim := router.Group("/simulation")
	{
		sim.POST("/monte-carlo/:projectId", s.handleMonteCarlo)
		sim.GET("/history/:projectId", s.handleHistory)
		sim.GET("/jobs/:jobId", s.handleJob)
		sim.POST("/predict/work-units", s.handlePredict)
	}

	router.POST("/projects", s.handleCreateProject)
	router.GET("/projects/:projectId", s.handleGetProject)
	router.POST("/projects/:projectId/work-units", s.handleCreateWorkUnit)
	router.GET("/work-units/:id", s.handleGetWorkUnit)
	router.PATCH("/work-units/:id", s.handleUpdateWorkUnit)
	router.POST("/work-units/:id/checkpoints", s.handleCreateCheckpoint)
	router.PUT("/checkpoints/:id/status", s.handleCheckpointStatus)

	router.POST("/templates", s.handleSaveTemplate)
	router.GET("/templates", s.handleListTemplates)
	router.GET("/templates/:id", s.handleGetTemplate)
}

// workUnitView adds the ordered dependency list to a work unit.
type workUnitView struct {
	models.WorkUnit
	Dependencies []string `json:"dependencies"`
}

func viewOf(wu *models.WorkUnit) workUnitView {
	return workUnitView{WorkUnit: *wu, Dependencies: wu.DependencyIDs()}
}

// jobView is the wire form of a simulation job.
type jobView struct {
	ID         string     `json:"jobId"`
	ProjectID  string     `json:"projectId"`
	Status     string     `json:"status"`
	RunID      *string    `json:"runId,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

func jobViewOf(j *models.SimulationJob) jobView {
	return jobView{
		ID:         j.ID,
		ProjectID:  j.ProjectID,
		Status:     j.Status,
		RunID:      j.RunID,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
	}
}

// --- workflow ---

func (s *server) handleProjectWorkflow(c *gin.Context) {
	w, err := s.planner.GetProjectWorkflow(c.Request.Context(), s.company(c), c.Param("projectId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, w)
}

type dependenciesRequest struct {
	Dependencies []string `json:"dependencies"`
}

func (s *server) handleUpdateDependencies(c *gin.Context) {
	var req dependenciesRequest
	if !bindJSON(c, &req) {
		return
	}
	wu, err := s.planner.UpdateDependencies(c.Request.Context(), s.company(c), c.Param("workUnitId"), req.Dependencies)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, viewOf(wu))
}

type simulateRequest struct {
	SimulationParams simulation.Params `json:"simulationParams"`
}

// statisticsView surfaces p90 and p95 next to the summary statistics.
type statisticsView struct {
	simulation.Statistics
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
}

type simulateResponse struct {
	Statistics      statisticsView          `json:"statistics"`
	RiskAnalysis    simulation.RiskAnalysis `json:"riskAnalysis"`
	Recommendations []string                `json:"recommendations"`
	Params          simulation.Params       `json:"params"`
	Unestimated     int                     `json:"unestimatedWorkUnits"`
}

func (s *server) handleSimulate(c *gin.Context) {
	var req simulateRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	res, err := s.jobs.Simulate(c.Request.Context(), s.company(c), c.Param("projectId"), req.SimulationParams)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, simulateResponse{
		Statistics: statisticsView{
			Statistics: res.Statistics,
			P90:        res.Statistics.Percentiles.P90,
			P95:        res.Statistics.Percentiles.P95,
		},
		RiskAnalysis:    res.Risk,
		Recommendations: res.Recommendations,
		Params:          res.Params,
		Unestimated:     res.Unestimated,
	})
}

type createFromTemplateRequest struct {
	TemplateID     string                  `json:"templateId"`
	Customizations template.Customizations `json:"customizations"`
	ActorID        string                  `json:"actorId"`
}

func (s *server) handleCreateFromTemplate(c *gin.Context) {
	var req createFromTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	inst, err := s.planner.CreateFromTemplate(c.Request.Context(), s.company(c), c.Param("projectId"), req.TemplateID, req.Customizations, req.ActorID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, inst)
}

func (s *server) handleAnalytics(c *gin.Context) {
	a, err := s.planner.Analytics(c.Request.Context(), s.company(c), c.Param("projectId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// --- simulation ---

// handleMonteCarlo runs and stores a simulation on the job runner and
// waits for it. With ?async=true the job is returned at once instead.
func (s *server) handleMonteCarlo(c *gin.Context) {
	var p simulation.Params
	if c.Request.ContentLength != 0 && !bindJSON(c, &p) {
		return
	}
	ctx := c.Request.Context()
	companyID, projectID := s.company(c), c.Param("projectId")

	// Reject what the worker would reject before a job row is written.
	if _, err := s.planner.Project(ctx, companyID, projectID); err != nil {
		_ = c.Error(err)
		return
	}
	if _, err := s.limits.Normalize(p); err != nil {
		_ = c.Error(err)
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		job, err := s.jobs.Submit(ctx, companyID, projectID, p)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusAccepted, jobViewOf(job))
		return
	}

	run, err := s.jobs.Run(ctx, companyID, projectID, p)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *server) handleHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			_ = c.Error(errs.Validationf("limit must be a positive integer"))
			return
		}
		limit = n
	}
	runs, err := s.planner.History(c.Request.Context(), s.company(c), c.Param("projectId"), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *server) handleJob(c *gin.Context) {
	id := c.Param("jobId")
	ctx := c.Request.Context()
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if _, err := s.planner.Project(ctx, s.company(c), job.ProjectID); err != nil {
		if errs.IsNotFound(err) {
			err = errs.NotFound("simulation job", id)
		}
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, jobViewOf(job))
}

type predictRequest struct {
	WorkUnitIDs []string `json:"workUnitIds"`
}

func (s *server) handlePredict(c *gin.Context) {
	var req predictRequest
	if !bindJSON(c, &req) {
		return
	}
	preds, err := s.planner.PredictWorkUnits(c.Request.Context(), s.company(c), req.WorkUnitIDs)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"predictions": preds})
}

// --- projects and work units ---

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *server) handleCreateProject(c *gin.Context) {
	var req createProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := s.units.CreateProject(c.Request.Context(), workunit.CreateProjectOpts{
		CompanyID:   s.company(c),
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *server) handleGetProject(c *gin.Context) {
	p, err := s.planner.Project(c.Request.Context(), s.company(c), c.Param("projectId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type createWorkUnitRequest struct {
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	WorkUnitType   string     `json:"workUnitType"`
	RoleType       string     `json:"roleType"`
	Priority       string     `json:"priority"`
	EstimatedHours *float64   `json:"estimatedHours"`
	StartDate      *time.Time `json:"startDate"`
	EndDate        *time.Time `json:"endDate"`
	AssigneeID     string     `json:"assigneeId"`
	CreatedByID    string     `json:"createdById"`
	Dependencies   []string   `json:"dependencies"`
}

func (s *server) handleCreateWorkUnit(c *gin.Context) {
	var req createWorkUnitRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	projectID := c.Param("projectId")
	if _, err := s.planner.Project(ctx, s.company(c), projectID); err != nil {
		_ = c.Error(err)
		return
	}
	wu, err := s.units.Create(ctx, workunit.CreateOpts{
		ProjectID:      projectID,
		Name:           req.Name,
		Description:    req.Description,
		WorkUnitType:   req.WorkUnitType,
		RoleType:       req.RoleType,
		Priority:       req.Priority,
		EstimatedHours: req.EstimatedHours,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		AssigneeID:     req.AssigneeID,
		CreatedByID:    req.CreatedByID,
		Dependencies:   req.Dependencies,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(wu))
}

func (s *server) handleGetWorkUnit(c *gin.Context) {
	wu, err := s.units.Get(c.Request.Context(), s.company(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, viewOf(wu))
}

type updateWorkUnitRequest struct {
	Name           *string  `json:"name"`
	Description    *string  `json:"description"`
	Status         *string  `json:"status"`
	Priority       *string  `json:"priority"`
	Progress       *float64 `json:"progress"`
	EstimatedHours *float64 `json:"estimatedHours"`
	ActualHours    *float64 `json:"actualHours"`
	AssigneeID     *string  `json:"assigneeId"`
}

// updates maps the fields present in the request to column names.
func (r updateWorkUnitRequest) updates() map[string]interface{} {
	u := make(map[string]interface{})
	if r.Name != nil {
		u["name"] = *r.Name
	}
	if r.Description != nil {
		u["description"] = *r.Description
	}
	if r.Status != nil {
		u["status"] = *r.Status
	}
	if r.Priority != nil {
		u["priority"] = *r.Priority
	}
	if r.Progress != nil {
		u["progress"] = *r.Progress
	}
	if r.EstimatedHours != nil {
		u["estimated_hours"] = *r.EstimatedHours
	}
	if r.ActualHours != nil {
		u["actual_hours"] = *r.ActualHours
	}
	if r.AssigneeID != nil {
		u["assignee_id"] = *r.AssigneeID
	}
	return u
}

func (s *server) handleUpdateWorkUnit(c *gin.Context) {
	var req updateWorkUnitRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.units.Get(ctx, s.company(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	wu, err := s.units.Update(ctx, id, req.updates())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, viewOf(wu))
}

type createCheckpointRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	CheckpointType string `json:"checkpointType"`
	RequiredRole   string `json:"requiredRole"`
}

func (s *server) handleCreateCheckpoint(c *gin.Context) {
	var req createCheckpointRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := s.units.Get(ctx, s.company(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	cp, err := s.units.CreateCheckpoint(ctx, id, workunit.CheckpointOpts{
		Name:           req.Name,
		Description:    req.Description,
		CheckpointType: req.CheckpointType,
		RequiredRole:   req.RequiredRole,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, cp)
}

type checkpointStatusRequest struct {
	Status string `json:"status"`
}

func (s *server) handleCheckpointStatus(c *gin.Context) {
	var req checkpointStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	cp, err := s.units.GetCheckpoint(ctx, id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if _, err := s.units.Get(ctx, s.company(c), cp.WorkUnitID); err != nil {
		if errs.IsNotFound(err) {
			err = errs.NotFound("checkpoint", id)
		}
		_ = c.Error(err)
		return
	}
	cp, err = s.units.SetCheckpointStatus(ctx, id, req.Status)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

// --- templates ---

// saveTemplateRequest lets an omitted isActive default to true.
type saveTemplateRequest struct {
	template.Template
	IsActive *bool `json:"isActive"`
}

func (s *server) handleSaveTemplate(c *gin.Context) {
	var req saveTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	t := req.Template
	t.CompanyID = s.company(c)
	t.IsActive = req.IsActive == nil || *req.IsActive
	saved, err := s.templates.Save(c.Request.Context(), t)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (s *server) handleListTemplates(c *gin.Context) {
	ts, err := s.templates.List(c.Request.Context(), s.company(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": ts})
}

func (s *server) handleGetTemplate(c *gin.Context) {
	t, err := s.templates.Get(c.Request.Context(), s.company(c), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, t)
}
