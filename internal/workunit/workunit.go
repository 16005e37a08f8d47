// Package workunit provides persistence and lifecycle operations for
// projects, work units, their dependencies and checkpoints.
package workunit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/nitroplanner/nitroplanner/internal/errs"
	"github.com/nitroplanner/nitroplanner/internal/models"
	"github.com/nitroplanner/nitroplanner/internal/workflow"
)

// ValidTransitions maps each work unit status to its valid next statuses.
// Completed is terminal.
var ValidTransitions = map[string][]string{
	workflow.StatusPending:    {workflow.StatusInProgress, workflow.StatusBlocked},
	workflow.StatusInProgress: {workflow.StatusCompleted, workflow.StatusBlocked},
	workflow.StatusBlocked:    {workflow.StatusPending, workflow.StatusInProgress},
}

// ValidPriorities lists the accepted priority values.
var ValidPriorities = []string{"low", "medium", "high", "critical"}

// Store is the GORM-backed work unit repository.
type Store struct {
	db *gorm.DB
}

// NewStore returns a Store over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle.
func (s *Store) DB() *gorm.DB { return s.db }

// CreateProjectOpts holds parameters for creating a project.
type CreateProjectOpts struct {
	CompanyID   string
	Name        string
	Description string
}

// CreateProject creates a project under an existing company.
func (s *Store) CreateProject(ctx context.Context, opts CreateProjectOpts) (*models.Project, error) {
	if opts.Name == "" {
		return nil, errs.Validationf("project name is required")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Company{}).Where("id = ?", opts.CompanyID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("workunit: check company %s: %w", opts.CompanyID, err)
	}
	if count == 0 {
		return nil, errs.NotFound("company", opts.CompanyID)
	}

	p := models.Project{
		CompanyID:   opts.CompanyID,
		Name:        opts.Name,
		Description: opts.Description,
		Status:      "active",
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("workunit: create project: %w", err)
	}
	return &p, nil
}

// GetProject retrieves a project. A non-empty companyID restricts the
// lookup to that company.
func (s *Store) GetProject(ctx context.Context, companyID, id string) (*models.Project, error) {
	q := s.db.WithContext(ctx).Where("id = ?", id)
	if companyID != "" {
		q = q.Where("company_id = ?", companyID)
	}
	var p models.Project
	if err := q.First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("project", id)
		}
		return nil, fmt.Errorf("workunit: get project %s: %w", id, err)
	}
	return &p, nil
}

// CreateOpts holds parameters for creating a work unit.
type CreateOpts struct {
	ProjectID      string
	Name           string
	Description    string
	WorkUnitType   string
	RoleType       string
	Priority       string
	EstimatedHours *float64
	StartDate      *time.Time
	EndDate        *time.Time
	AssigneeID     string
	CreatedByID    string
	Dependencies   []string
}

// Create creates a pending work unit and, when given, its dependencies.
// Both happen in one transaction.
func (s *Store) Create(ctx context.Context, opts CreateOpts) (*models.WorkUnit, error) {
	if opts.Name == "" {
		return nil, errs.Validationf("work unit name is required")
	}
	if opts.Priority == "" {
		opts.Priority = "medium"
	}
	if !validPriority(opts.Priority) {
		return nil, errs.Validationf("priority %q is not one of %v", opts.Priority, ValidPriorities)
	}
	if opts.EstimatedHours != nil && *opts.EstimatedHours < 0 {
		return nil, errs.Validationf("estimatedHours must not be negative")
	}

	if _, err := s.GetProject(ctx, "", opts.ProjectID); err != nil {
		return nil, err
	}

	wu := models.WorkUnit{
		ProjectID:      opts.ProjectID,
		Name:           opts.Name,
		Description:    opts.Description,
		WorkUnitType:   opts.WorkUnitType,
		RoleType:       opts.RoleType,
		Priority:       opts.Priority,
		Status:         workflow.StatusPending,
		EstimatedHours: opts.EstimatedHours,
		StartDate:      opts.StartDate,
		EndDate:        opts.EndDate,
		AssigneeID:     opts.AssigneeID,
		CreatedByID:    opts.CreatedByID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&wu).Error; err != nil {
			return fmt.Errorf("workunit: create: %w", err)
		}
		if len(opts.Dependencies) == 0 {
			return nil
		}
		return setDependencies(tx, opts.ProjectID, wu.ID, opts.Dependencies)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, "", wu.ID)
}

// preloadOrdered loads dependencies in declared order and checkpoints in
// creation order.
func preloadOrdered(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Deps", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Checkpoints", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") })
}

// Get retrieves a work unit with its dependencies and checkpoints. A
// non-empty companyID restricts the lookup to that company's projects.
func (s *Store) Get(ctx context.Context, companyID, id string) (*models.WorkUnit, error) {
	q := preloadOrdered(s.db.WithContext(ctx)).Where("work_units.id = ?", id)
	if companyID != "" {
		q = q.Joins("JOIN projects ON projects.id = work_units.project_id").
			Where("projects.company_id = ?", companyID)
	}
	var wu models.WorkUnit
	if err := q.First(&wu).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("work unit", id)
		}
		return nil, fmt.Errorf("workunit: get %s: %w", id, err)
	}
	return &wu, nil
}

// ListByProject returns a project's work units in creation order.
func (s *Store) ListByProject(ctx context.Context, projectID string) ([]models.WorkUnit, error) {
	var units []models.WorkUnit
	if err := preloadOrdered(s.db.WithContext(ctx)).
		Where("project_id = ?", projectID).
		Order("created_at ASC, id ASC").
		Find(&units).Error; err != nil {
		return nil, fmt.Errorf("workunit: list project %s: %w", projectID, err)
	}
	return units, nil
}

// ListByIDs returns the given work units, all of which must belong to
// companyID. Missing IDs fail with NotFound naming the first one.
func (s *Store) ListByIDs(ctx context.Context, companyID string, ids []string) ([]models.WorkUnit, error) {
	var units []models.WorkUnit
	if len(ids) == 0 {
		return units, nil
	}
	if err := s.db.WithContext(ctx).
		Joins("JOIN projects ON projects.id = work_units.project_id").
		Where("work_units.id IN ? AND projects.company_id = ?", ids, companyID).
		Find(&units).Error; err != nil {
		return nil, fmt.Errorf("workunit: list by ids: %w", err)
	}
	found := make(map[string]bool, len(units))
	for _, u := range units {
		found[u.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, errs.NotFound("work unit", id)
		}
	}
	return units, nil
}

// Update modifies work unit fields. Status transitions are validated
// against ValidTransitions; progress must lie in [0, 100].
func (s *Store) Update(ctx context.Context, id string, updates map[string]interface{}) (*models.WorkUnit, error) {
	var wu models.WorkUnit
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&wu).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("work unit", id)
		}
		return nil, fmt.Errorf("workunit: get %s for update: %w", id, err)
	}

	if p, ok := updates["progress"].(float64); ok && (p < 0 || p > 100) {
		return nil, errs.Validationf("progress %v must be within [0, 100]", p)
	}
	if pr, ok := updates["priority"].(string); ok && !validPriority(pr) {
		return nil, errs.Validationf("priority %q is not one of %v", pr, ValidPriorities)
	}
	for _, field := range []string{"estimated_hours", "actual_hours"} {
		if h, ok := updates[field].(float64); ok && h < 0 {
			return nil, errs.Validationf("%s must not be negative", field)
		}
	}

	if newStatus, ok := updates["status"].(string); ok && newStatus != wu.Status {
		if !isValidTransition(wu.Status, newStatus) {
			return nil, &errs.InvalidTransitionError{
				Entity: "work unit",
				From:   wu.Status,
				To:     newStatus,
				Valid:  ValidTransitions[wu.Status],
			}
		}
		now := time.Now()
		if newStatus == workflow.StatusInProgress && wu.StartDate == nil {
			updates["start_date"] = now
		}
		if newStatus == workflow.StatusCompleted {
			updates["progress"] = 100.0
			if wu.EndDate == nil {
				updates["end_date"] = now
			}
		}
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.WorkUnit{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("workunit: update %s: %w", id, err)
		}
	}
	return s.Get(ctx, "", id)
}

// SetPrediction writes a delay prediction onto a single row. Concurrent
// writers are last-write-wins.
func (s *Store) SetPrediction(ctx context.Context, id string, delay, risk, confidence float64) error {
	result := s.db.WithContext(ctx).Model(&models.WorkUnit{}).Where("id = ?", id).Updates(map[string]interface{}{
		"predicted_delay": delay,
		"risk_score":      risk,
		"confidence":      confidence,
	})
	if result.Error != nil {
		return fmt.Errorf("workunit: set prediction %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("work unit", id)
	}
	return nil
}

// isValidTransition checks whether a status transition is allowed.
func isValidTransition(from, to string) bool {
	for _, v := range ValidTransitions[from] {
		if v == to {
			return true
		}
	}
	return false
}

func validPriority(p string) bool {
	for _, v := range ValidPriorities {
		if v == p {
			return true
		}
	}
	return false
}
