package db

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nitroplanner/nitroplanner/internal/models"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Company{},
		&models.Project{},
		&models.WorkUnit{},
		&models.WorkUnitDep{},
		&models.Checkpoint{},
		&models.ProcessTemplate{},
		&models.TemplateWorkUnit{},
		&models.TemplateCheckpoint{},
		&models.SimulationRun{},
		&models.SimulationJob{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedCompany inserts the named company if it does not exist and returns
// the stored row.
func SeedCompany(db *gorm.DB, name string) (*models.Company, error) {
	if name == "" {
		return nil, errors.New("db: seed company: name is required")
	}
	c := models.Company{Name: name}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&c)
	if result.Error != nil {
		return nil, fmt.Errorf("db: seed company %q: %w", name, result.Error)
	}

	var stored models.Company
	if err := db.Where("name = ?", name).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("db: load company %q: %w", name, err)
	}
	return &stored, nil
}
