package models

import (
	"time"

	"gorm.io/gorm"
)

// ProcessTemplate is a reusable blueprint for a standard set of work units
// and checkpoints. Instantiation never mutates it.
type ProcessTemplate struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	CompanyID    string    `gorm:"size:36;not null;uniqueIndex:idx_template_company_name" json:"companyId"`
	Name         string    `gorm:"size:255;not null;uniqueIndex:idx_template_company_name" json:"name"`
	Description  string    `gorm:"type:text" json:"description"`
	WorkUnitType string    `gorm:"size:32" json:"workUnitType"`
	RoleType     string    `gorm:"size:32" json:"roleType"`
	IsActive     bool      `gorm:"default:true" json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	WorkUnits []TemplateWorkUnit `gorm:"foreignKey:TemplateID" json:"workUnits"`
}

func (t *ProcessTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	return nil
}

// TemplateWorkUnit is one work unit blueprint of a template. DependsOn is a
// JSON array of Sequence values of other blueprints in the same template.
type TemplateWorkUnit struct {
	ID             string   `gorm:"primaryKey;size:36" json:"id"`
	TemplateID     string   `gorm:"size:36;not null;index" json:"templateId"`
	Sequence       int      `gorm:"not null" json:"sequence"`
	Name           string   `gorm:"size:255;not null" json:"name"`
	Description    string   `gorm:"type:text" json:"description"`
	WorkUnitType   string   `gorm:"size:32" json:"workUnitType"`
	RoleType       string   `gorm:"size:32" json:"roleType"`
	Priority       string   `gorm:"size:16;default:medium" json:"priority"`
	EstimatedHours *float64 `json:"estimatedHours"`
	DependsOn      string   `gorm:"type:json" json:"dependsOn"`

	Checkpoints []TemplateCheckpoint `gorm:"foreignKey:TemplateWorkUnitID" json:"checkpoints"`
}

func (t *TemplateWorkUnit) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	return nil
}

// TemplateCheckpoint is a checkpoint blueprint nested under a work unit
// blueprint.
type TemplateCheckpoint struct {
	ID                 string `gorm:"primaryKey;size:36" json:"id"`
	TemplateWorkUnitID string `gorm:"size:36;not null;index" json:"templateWorkUnitId"`
	Sequence           int    `gorm:"not null" json:"sequence"`
	Name               string `gorm:"size:255;not null" json:"name"`
	Description        string `gorm:"type:text" json:"description"`
	CheckpointType     string `gorm:"size:32;default:quality_gate" json:"checkpointType"`
	RequiredRole       string `gorm:"size:32" json:"requiredRole"`
}

func (t *TemplateCheckpoint) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	return nil
}
