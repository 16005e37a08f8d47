package models

import (
	"time"

	"gorm.io/gorm"
)

// WorkUnit is the schedulable unit of project work.
type WorkUnit struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	ProjectID      string     `gorm:"size:36;not null;index" json:"projectId"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	Description    string     `gorm:"type:text" json:"description"`
	WorkUnitType   string     `gorm:"size:32" json:"workUnitType"`
	RoleType       string     `gorm:"size:32" json:"roleType"`
	Priority       string     `gorm:"size:16;default:medium" json:"priority"`
	Status         string     `gorm:"size:16;default:pending;index" json:"status"`
	Progress       float64    `gorm:"default:0" json:"progress"`
	EstimatedHours *float64   `json:"estimatedHours"`
	ActualHours    *float64   `json:"actualHours"`
	StartDate      *time.Time `json:"startDate"`
	EndDate        *time.Time `json:"endDate"`
	AssigneeID     string     `gorm:"size:36" json:"assigneeId,omitempty"`
	CreatedByID    string     `gorm:"size:36" json:"createdById,omitempty"`
	PredictedDelay *float64   `json:"predictedDelay"`
	RiskScore      *float64   `json:"riskScore"`
	Confidence     *float64   `json:"confidence"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`

	Deps        []WorkUnitDep `gorm:"foreignKey:WorkUnitID" json:"-"`
	Checkpoints []Checkpoint  `gorm:"foreignKey:WorkUnitID" json:"checkpoints,omitempty"`
}

func (w *WorkUnit) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = NewID()
	}
	return nil
}

// DependencyIDs returns the predecessor IDs in declared order. Deps must be
// loaded ordered by Position.
func (w *WorkUnit) DependencyIDs() []string {
	ids := make([]string, 0, len(w.Deps))
	for _, d := range w.Deps {
		ids = append(ids, d.DependsOn)
	}
	return ids
}

// WorkUnitDep is one finish-to-start dependency: WorkUnitID cannot start
// before DependsOn finishes. Position preserves the declared order.
type WorkUnitDep struct {
	WorkUnitID string `gorm:"primaryKey;size:36"`
	DependsOn  string `gorm:"primaryKey;size:36;index"`
	Position   int    `gorm:"not null;default:0"`
	DepType    string `gorm:"size:32;default:finish_to_start"`

	WorkUnit    WorkUnit `gorm:"foreignKey:WorkUnitID"`
	Predecessor WorkUnit `gorm:"foreignKey:DependsOn"`
}

// Checkpoint is a quality gate or review attached to a work unit.
type Checkpoint struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	WorkUnitID     string    `gorm:"size:36;not null;index" json:"workUnitId"`
	Name           string    `gorm:"size:255;not null" json:"name"`
	Description    string    `gorm:"type:text" json:"description"`
	CheckpointType string    `gorm:"size:32;default:quality_gate" json:"checkpointType"`
	RequiredRole   string    `gorm:"size:32" json:"requiredRole"`
	Status         string    `gorm:"size:16;default:pending;index" json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (c *Checkpoint) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	return nil
}
