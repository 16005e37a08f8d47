package workunit

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/nitroplanner/nitroplanner/internal/errs"
	"github.com/nitroplanner/nitroplanner/internal/models"
	"github.com/nitroplanner/nitroplanner/internal/workflow"
)

// SetDependencies replaces the predecessors of work unit id with deps, in
// the given order. Duplicates are collapsed. Every ID must name a work unit
// of the same project; other IDs are reported together in a
// ValidationError. Self-dependencies and changes that would close a cycle
// are rejected. The replacement is atomic.
func (s *Store) SetDependencies(ctx context.Context, companyID, id string, deps []string) (*models.WorkUnit, error) {
	wu, err := s.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return setDependencies(tx, wu.ProjectID, id, deps)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, "", id)
}

func setDependencies(tx *gorm.DB, projectID, id string, deps []string) error {
	deps = dedupe(deps)
	for _, d := range deps {
		if d == id {
			return errs.Validationf("work unit %s cannot depend on itself", id)
		}
	}

	if len(deps) > 0 {
		var existing []string
		if err := tx.Model(&models.WorkUnit{}).
			Where("id IN ? AND project_id = ?", deps, projectID).
			Pluck("id", &existing).Error; err != nil {
			return fmt.Errorf("workunit: validate dependencies of %s: %w", id, err)
		}
		found := make(map[string]bool, len(existing))
		for _, e := range existing {
			found[e] = true
		}
		var invalid []string
		for _, d := range deps {
			if !found[d] {
				invalid = append(invalid, d)
			}
		}
		if len(invalid) > 0 {
			return &errs.ValidationError{Message: "invalid dependencies", InvalidIDs: invalid}
		}

		for _, d := range deps {
			path, err := pathTo(tx, d, id)
			if err != nil {
				return err
			}
			if path != nil {
				return &errs.GraphIntegrityError{Kind: errs.GraphCycle, NodeIDs: append([]string{id}, path...)}
			}
		}
	}

	if err := tx.Where("work_unit_id = ?", id).Delete(&models.WorkUnitDep{}).Error; err != nil {
		return fmt.Errorf("workunit: clear dependencies of %s: %w", id, err)
	}
	for i, d := range deps {
		dep := models.WorkUnitDep{
			WorkUnitID: id,
			DependsOn:  d,
			Position:   i,
			DepType:    workflow.EdgeFinishToStart,
		}
		if err := tx.Create(&dep).Error; err != nil {
			return fmt.Errorf("workunit: create dependency %s -> %s: %w", d, id, err)
		}
	}
	return nil
}

// pathTo walks predecessor edges from start and returns the path to target
// if target is reachable, or nil.
func pathTo(tx *gorm.DB, start, target string) ([]string, error) {
	visited := make(map[string]bool)
	var walk func(cur string) ([]string, error)
	walk = func(cur string) ([]string, error) {
		if cur == target {
			return []string{cur}, nil
		}
		if visited[cur] {
			return nil, nil
		}
		visited[cur] = true

		var preds []string
		if err := tx.Model(&models.WorkUnitDep{}).Where("work_unit_id = ?", cur).Pluck("depends_on", &preds).Error; err != nil {
			return nil, fmt.Errorf("workunit: walk dependencies of %s: %w", cur, err)
		}
		for _, p := range preds {
			rest, err := walk(p)
			if err != nil {
				return nil, err
			}
			if rest != nil {
				return append([]string{cur}, rest...), nil
			}
		}
		return nil, nil
	}
	return walk(start)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
