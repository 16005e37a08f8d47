package template

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/nitroplanner/nitroplanner/internal/errs"
	"github.com/nitroplanner/nitroplanner/internal/models"
	"github.com/nitroplanner/nitroplanner/internal/workflow"
)

// BlueprintOverride replaces selected fields of one blueprint for a single
// instantiation. Zero values leave the blueprint untouched.
type BlueprintOverride struct {
	Name           string   `json:"name,omitempty"`
	Description    string   `json:"description,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	EstimatedHours *float64 `json:"estimatedHours,omitempty"`
	AssigneeID     string   `json:"assigneeId,omitempty"`
}

// Customizations adjust an instantiation without changing the template.
// DefaultPriority, when set, replaces every blueprint priority. Overrides
// are keyed by blueprint index and win over both.
type Customizations struct {
	Overrides       map[int]BlueprintOverride `json:"overrides,omitempty"`
	DefaultPriority string                    `json:"defaultPriority,omitempty"`
}

func (c Customizations) validate(n int) error {
	if c.DefaultPriority != "" && !validPriority(c.DefaultPriority) {
		return errs.Validationf("defaultPriority %q is not a valid priority", c.DefaultPriority)
	}
	for i, o := range c.Overrides {
		if i < 0 || i >= n {
			return errs.Validationf("override index %d out of range", i)
		}
		if o.Priority != "" && !validPriority(o.Priority) {
			return errs.Validationf("override %d: priority %q is not a valid priority", i, o.Priority)
		}
		if o.EstimatedHours != nil && *o.EstimatedHours < 0 {
			return errs.Validationf("override %d: estimatedHours must not be negative", i)
		}
	}
	return nil
}

// Instantiation is the outcome of creating a workflow from a template.
type Instantiation struct {
	Template  *Template         `json:"template"`
	WorkUnits []models.WorkUnit `json:"workUnits"`
}

// Instantiate creates one work unit per blueprint in projectID, with their
// checkpoints, and links blueprint dependencies to the new IDs. The
// template must be active and belong to the project's company. All rows are
// written in a single transaction; any failure leaves nothing behind.
func (s *Store) Instantiate(ctx context.Context, projectID, templateID string, c Customizations, actorID string) (*Instantiation, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).Where("id = ?", projectID).First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("project", projectID)
		}
		return nil, fmt.Errorf("template: get project %s: %w", projectID, err)
	}

	t, err := s.Get(ctx, project.CompanyID, templateID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, errs.NotFound("template", templateID)
	}
	if err := c.validate(len(t.WorkUnits)); err != nil {
		return nil, err
	}

	units := make([]models.WorkUnit, len(t.WorkUnits))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, b := range t.WorkUnits {
			units[i] = buildWorkUnit(projectID, actorID, t, b, c, i)
			if err := tx.Create(&units[i]).Error; err != nil {
				return fmt.Errorf("template: create work unit %q: %w", units[i].Name, err)
			}
		}
		for i, b := range t.WorkUnits {
			for pos, d := range b.DependsOn {
				dep := models.WorkUnitDep{
					WorkUnitID: units[i].ID,
					DependsOn:  units[d].ID,
					Position:   pos,
					DepType:    workflow.EdgeFinishToStart,
				}
				if err := tx.Create(&dep).Error; err != nil {
					return fmt.Errorf("template: link %q -> %q: %w", units[d].Name, units[i].Name, err)
				}
				units[i].Deps = append(units[i].Deps, dep)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Instantiation{Template: t, WorkUnits: units}, nil
}

func buildWorkUnit(projectID, actorID string, t *Template, b Blueprint, c Customizations, i int) models.WorkUnit {
	wu := models.WorkUnit{
		ProjectID:      projectID,
		Name:           b.Name,
		Description:    b.Description,
		WorkUnitType:   b.WorkUnitType,
		RoleType:       b.RoleType,
		Priority:       b.Priority,
		Status:         workflow.StatusPending,
		EstimatedHours: b.EstimatedHours,
		CreatedByID:    actorID,
	}
	if wu.WorkUnitType == "" {
		wu.WorkUnitType = t.WorkUnitType
	}
	if wu.RoleType == "" {
		wu.RoleType = t.RoleType
	}
	if c.DefaultPriority != "" {
		wu.Priority = c.DefaultPriority
	}
	if wu.Priority == "" {
		wu.Priority = "medium"
	}

	if o, ok := c.Overrides[i]; ok {
		if o.Name != "" {
			wu.Name = o.Name
		}
		if o.Description != "" {
			wu.Description = o.Description
		}
		if o.Priority != "" {
			wu.Priority = o.Priority
		}
		if o.EstimatedHours != nil {
			h := *o.EstimatedHours
			wu.EstimatedHours = &h
		}
		wu.AssigneeID = o.AssigneeID
	}

	for _, cp := range b.Checkpoints {
		wu.Checkpoints = append(wu.Checkpoints, models.Checkpoint{
			Name:           cp.Name,
			Description:    cp.Description,
			CheckpointType: cp.CheckpointType,
			RequiredRole:   cp.RequiredRole,
			Status:         workflow.CheckpointPending,
		})
	}
	return wu
}
