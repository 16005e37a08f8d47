package models

import (
	"time"

	"gorm.io/gorm"
)

// SimulationRun is an immutable record of one Monte Carlo simulation.
// Results and ConfidenceIntervals hold JSON documents.
type SimulationRun struct {
	ID                  string    `gorm:"primaryKey;size:36"`
	ProjectID           string    `gorm:"size:36;not null;index"`
	Iterations          int       `gorm:"not null"`
	Results             string    `gorm:"type:json"`
	ConfidenceIntervals string    `gorm:"type:json"`
	RiskLevel           string    `gorm:"size:16"`
	SimulationDate      time.Time `gorm:"index"`
}

func (r *SimulationRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.SimulationDate.IsZero() {
		r.SimulationDate = time.Now()
	}
	return nil
}

// SimulationJob tracks a simulation queued on the background runner.
type SimulationJob struct {
	ID         string  `gorm:"primaryKey;size:36"`
	ProjectID  string  `gorm:"size:36;not null;index"`
	Status     string  `gorm:"size:16;default:queued;index"`
	Params     string  `gorm:"type:json"`
	RunID      *string `gorm:"size:36"`
	Error      string  `gorm:"type:text"`
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

func (j *SimulationJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = NewID()
	}
	return nil
}
