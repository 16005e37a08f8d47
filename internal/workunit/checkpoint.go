package workunit

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/nitroplanner/nitroplanner/internal/errs"
	"github.com/nitroplanner/nitroplanner/internal/models"
	"github.com/nitroplanner/nitroplanner/internal/workflow"
)

// CheckpointTransitions maps each checkpoint status to its valid next
// statuses. Passed is terminal; a failed gate can be reworked.
var CheckpointTransitions = map[string][]string{
	workflow.CheckpointPending:    {workflow.CheckpointInProgress},
	workflow.CheckpointInProgress: {workflow.CheckpointPassed, workflow.CheckpointFailed},
	workflow.CheckpointFailed:     {workflow.CheckpointInProgress},
}

// DefaultCheckpointType is used when a checkpoint is created without a type.
const DefaultCheckpointType = "quality_gate"

// CheckpointOpts holds parameters for creating a checkpoint.
type CheckpointOpts struct {
	Name           string
	Description    string
	CheckpointType string
	RequiredRole   string
}

// CreateCheckpoint attaches a pending checkpoint to a work unit.
func (s *Store) CreateCheckpoint(ctx context.Context, workUnitID string, opts CheckpointOpts) (*models.Checkpoint, error) {
	if opts.Name == "" {
		return nil, errs.Validationf("checkpoint name is required")
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.WorkUnit{}).Where("id = ?", workUnitID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("workunit: check work unit %s: %w", workUnitID, err)
	}
	if count == 0 {
		return nil, errs.NotFound("work unit", workUnitID)
	}
	cp := newCheckpoint(workUnitID, opts)
	if err := s.db.WithContext(ctx).Create(&cp).Error; err != nil {
		return nil, fmt.Errorf("workunit: create checkpoint: %w", err)
	}
	return &cp, nil
}

func newCheckpoint(workUnitID string, opts CheckpointOpts) models.Checkpoint {
	if opts.CheckpointType == "" {
		opts.CheckpointType = DefaultCheckpointType
	}
	return models.Checkpoint{
		WorkUnitID:     workUnitID,
		Name:           opts.Name,
		Description:    opts.Description,
		CheckpointType: opts.CheckpointType,
		RequiredRole:   opts.RequiredRole,
		Status:         workflow.CheckpointPending,
	}
}

// GetCheckpoint retrieves a checkpoint by ID.
func (s *Store) GetCheckpoint(ctx context.Context, id string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&cp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("checkpoint", id)
		}
		return nil, fmt.Errorf("workunit: get checkpoint %s: %w", id, err)
	}
	return &cp, nil
}

// SetCheckpointStatus advances a checkpoint through its state machine.
func (s *Store) SetCheckpointStatus(ctx context.Context, id, status string) (*models.Checkpoint, error) {
	cp, err := s.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	valid := CheckpointTransitions[cp.Status]
	allowed := false
	for _, v := range valid {
		if v == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, &errs.InvalidTransitionError{Entity: "checkpoint", From: cp.Status, To: status, Valid: valid}
	}
	if err := s.db.WithContext(ctx).Model(cp).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("workunit: update checkpoint %s: %w", id, err)
	}
	cp.Status = status
	return cp, nil
}
