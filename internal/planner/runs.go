package planner

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/nitroplanner/nitroplanner/internal/models"
)

// RunStore is the GORM-backed RunRepository.
type RunStore struct {
	db *gorm.DB
}

// NewRunStore returns a RunStore over db.
func NewRunStore(db *gorm.DB) *RunStore {
	return &RunStore{db: db}
}

// SaveRun inserts run. Runs are never updated.
func (r *RunStore) SaveRun(ctx context.Context, run *models.SimulationRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("planner: save run for project %s: %w", run.ProjectID, err)
	}
	return nil
}

// ListRuns returns up to limit runs of a project, newest first.
func (r *RunStore) ListRuns(ctx context.Context, projectID string, limit int) ([]models.SimulationRun, error) {
	var runs []models.SimulationRun
	if err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("simulation_date DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("planner: list runs of project %s: %w", projectID, err)
	}
	return runs, nil
}
