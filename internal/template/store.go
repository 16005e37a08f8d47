package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/nitroplanner/nitroplanner/internal/errs"
	"github.com/nitroplanner/nitroplanner/internal/models"
)

// Store persists process templates.
type Store struct {
	db *gorm.DB
}

// NewStore returns a Store over db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Save validates t and writes it. A template with the same company and name
// is replaced along with all of its blueprints. The stored template is
// returned with its ID set.
func (s *Store) Save(ctx context.Context, t Template) (*Template, error) {
	t.applyDefaults()
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var saved models.ProcessTemplate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("company_id = ? AND name = ?", t.CompanyID, t.Name).First(&saved).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			saved = models.ProcessTemplate{CompanyID: t.CompanyID, Name: t.Name}
		case err != nil:
			return fmt.Errorf("template: find %q: %w", t.Name, err)
		default:
			if err := clearBlueprints(tx, saved.ID); err != nil {
				return err
			}
		}

		saved.Description = t.Description
		saved.WorkUnitType = t.WorkUnitType
		saved.RoleType = t.RoleType
		saved.IsActive = t.IsActive
		if err := tx.Save(&saved).Error; err != nil {
			return fmt.Errorf("template: save %q: %w", t.Name, err)
		}
		// gorm skips zero-value bools on insert, leaving the column default.
		if err := tx.Model(&saved).Update("is_active", t.IsActive).Error; err != nil {
			return fmt.Errorf("template: set active %q: %w", t.Name, err)
		}

		for i, b := range t.WorkUnits {
			dependsOn, err := marshalJSON(b.DependsOn)
			if err != nil {
				return fmt.Errorf("template: marshal depends_on for %q: %w", b.Name, err)
			}
			twu := models.TemplateWorkUnit{
				TemplateID:     saved.ID,
				Sequence:       i,
				Name:           b.Name,
				Description:    b.Description,
				WorkUnitType:   b.WorkUnitType,
				RoleType:       b.RoleType,
				Priority:       b.Priority,
				EstimatedHours: b.EstimatedHours,
				DependsOn:      dependsOn,
			}
			for k, cp := range b.Checkpoints {
				twu.Checkpoints = append(twu.Checkpoints, models.TemplateCheckpoint{
					Sequence:       k,
					Name:           cp.Name,
					Description:    cp.Description,
					CheckpointType: cp.CheckpointType,
					RequiredRole:   cp.RequiredRole,
				})
			}
			if err := tx.Create(&twu).Error; err != nil {
				return fmt.Errorf("template: create blueprint %q: %w", b.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, t.CompanyID, saved.ID)
}

func clearBlueprints(tx *gorm.DB, templateID string) error {
	sub := tx.Model(&models.TemplateWorkUnit{}).Select("id").Where("template_id = ?", templateID)
	if err := tx.Where("template_work_unit_id IN (?)", sub).Delete(&models.TemplateCheckpoint{}).Error; err != nil {
		return fmt.Errorf("template: clear checkpoints of %s: %w", templateID, err)
	}
	if err := tx.Where("template_id = ?", templateID).Delete(&models.TemplateWorkUnit{}).Error; err != nil {
		return fmt.Errorf("template: clear work units of %s: %w", templateID, err)
	}
	return nil
}

func preloadBlueprints(q *gorm.DB) *gorm.DB {
	return q.
		Preload("WorkUnits", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") }).
		Preload("WorkUnits.Checkpoints", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") })
}

// Get loads a template with its blueprints. A non-empty companyID restricts
// the lookup to that company.
func (s *Store) Get(ctx context.Context, companyID, id string) (*Template, error) {
	q := preloadBlueprints(s.db.WithContext(ctx)).Where("id = ?", id)
	if companyID != "" {
		q = q.Where("company_id = ?", companyID)
	}
	var pt models.ProcessTemplate
	if err := q.First(&pt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("template", id)
		}
		return nil, fmt.Errorf("template: get %s: %w", id, err)
	}
	return fromModel(pt)
}

// List returns a company's templates ordered by name.
func (s *Store) List(ctx context.Context, companyID string) ([]Template, error) {
	var pts []models.ProcessTemplate
	if err := preloadBlueprints(s.db.WithContext(ctx)).
		Where("company_id = ?", companyID).
		Order("name ASC").
		Find(&pts).Error; err != nil {
		return nil, fmt.Errorf("template: list company %s: %w", companyID, err)
	}
	out := make([]Template, 0, len(pts))
	for _, pt := range pts {
		t, err := fromModel(pt)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

// SetActive enables or disables a template for instantiation.
func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	result := s.db.WithContext(ctx).Model(&models.ProcessTemplate{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("template: set active %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("template", id)
	}
	return nil
}

func fromModel(pt models.ProcessTemplate) (*Template, error) {
	t := &Template{
		ID:           pt.ID,
		CompanyID:    pt.CompanyID,
		Name:         pt.Name,
		Description:  pt.Description,
		WorkUnitType: pt.WorkUnitType,
		RoleType:     pt.RoleType,
		IsActive:     pt.IsActive,
		WorkUnits:    make([]Blueprint, len(pt.WorkUnits)),
	}
	for i, twu := range pt.WorkUnits {
		var dependsOn []int
		if twu.DependsOn != "" {
			if err := json.Unmarshal([]byte(twu.DependsOn), &dependsOn); err != nil {
				return nil, fmt.Errorf("template: decode depends_on of %q: %w", twu.Name, err)
			}
		}
		b := Blueprint{
			Name:           twu.Name,
			Description:    twu.Description,
			WorkUnitType:   twu.WorkUnitType,
			RoleType:       twu.RoleType,
			Priority:       twu.Priority,
			EstimatedHours: twu.EstimatedHours,
			DependsOn:      dependsOn,
		}
		for _, cp := range twu.Checkpoints {
			b.Checkpoints = append(b.Checkpoints, CheckpointBlueprint{
				Name:           cp.Name,
				Description:    cp.Description,
				CheckpointType: cp.CheckpointType,
				RequiredRole:   cp.RequiredRole,
			})
		}
		t.WorkUnits[i] = b
	}
	return t, nil
}

// marshalJSON marshals indices to a JSON array; nil becomes "[]" so the
// json column always holds a valid document.
func marshalJSON(v []int) (string, error) {
	if v == nil {
		return "[]", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
