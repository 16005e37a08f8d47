// Package template defines process templates, validates their blueprint
// schema and instantiates them into a project's workflow.
package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nitroplanner/nitroplanner/internal/config"
	"github.com/nitroplanner/nitroplanner/internal/errs"
	"github.com/nitroplanner/nitroplanner/internal/workflow"
	"github.com/nitroplanner/nitroplanner/internal/workunit"
)

// Template is a reusable blueprint for a standard set of work units.
type Template struct {
	ID           string      `json:"id,omitempty"`
	CompanyID    string      `json:"companyId"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	WorkUnitType string      `json:"workUnitType,omitempty"`
	RoleType     string      `json:"roleType,omitempty"`
	IsActive     bool        `json:"isActive"`
	WorkUnits    []Blueprint `json:"workUnits"`
}

// Blueprint describes one work unit of a template. DependsOn holds indices
// into the template's WorkUnits.
type Blueprint struct {
	Name           string                `json:"name"`
	Description    string                `json:"description,omitempty"`
	WorkUnitType   string                `json:"workUnitType,omitempty"`
	RoleType       string                `json:"roleType,omitempty"`
	Priority       string                `json:"priority,omitempty"`
	EstimatedHours *float64              `json:"estimatedHours,omitempty"`
	DependsOn      []int                 `json:"dependsOn,omitempty"`
	Checkpoints    []CheckpointBlueprint `json:"checkpoints,omitempty"`
}

// CheckpointBlueprint describes one checkpoint of a work unit blueprint.
type CheckpointBlueprint struct {
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	CheckpointType string `json:"checkpointType,omitempty"`
	RequiredRole   string `json:"requiredRole,omitempty"`
}

// FromConfig converts a template declared in the config file.
func FromConfig(companyID string, tc config.TemplateConfig) Template {
	t := Template{
		CompanyID:    companyID,
		Name:         tc.Name,
		Description:  tc.Description,
		WorkUnitType: tc.WorkUnitType,
		RoleType:     tc.RoleType,
		IsActive:     true,
		WorkUnits:    make([]Blueprint, len(tc.WorkUnits)),
	}
	for i, bc := range tc.WorkUnits {
		b := Blueprint{
			Name:           bc.Name,
			Description:    bc.Description,
			WorkUnitType:   bc.WorkUnitType,
			RoleType:       bc.RoleType,
			Priority:       bc.Priority,
			EstimatedHours: bc.EstimatedHours,
			DependsOn:      bc.DependsOn,
		}
		for _, cc := range bc.Checkpoints {
			b.Checkpoints = append(b.Checkpoints, CheckpointBlueprint{
				Name:           cc.Name,
				Description:    cc.Description,
				CheckpointType: cc.CheckpointType,
				RequiredRole:   cc.RequiredRole,
			})
		}
		t.WorkUnits[i] = b
	}
	return t
}

// applyDefaults fills blueprint fields the schema defaults.
func (t *Template) applyDefaults() {
	for i := range t.WorkUnits {
		b := &t.WorkUnits[i]
		if b.Priority == "" {
			b.Priority = "medium"
		}
		for k := range b.Checkpoints {
			if b.Checkpoints[k].CheckpointType == "" {
				b.Checkpoints[k].CheckpointType = workunit.DefaultCheckpointType
			}
		}
	}
}

// Validate checks the template schema. All problems are reported in a
// single ValidationError.
func (t *Template) Validate() error {
	var problems []string
	if t.Name == "" {
		problems = append(problems, "name is required")
	}
	if t.CompanyID == "" {
		problems = append(problems, "companyId is required")
	}

	n := len(t.WorkUnits)
	for i, b := range t.WorkUnits {
		if b.Name == "" {
			problems = append(problems, fmt.Sprintf("workUnits[%d]: name is required", i))
		}
		if b.Priority != "" && !validPriority(b.Priority) {
			problems = append(problems, fmt.Sprintf("workUnits[%d]: priority %q is not one of %v", i, b.Priority, workunit.ValidPriorities))
		}
		if b.EstimatedHours != nil && *b.EstimatedHours < 0 {
			problems = append(problems, fmt.Sprintf("workUnits[%d]: estimatedHours must not be negative", i))
		}
		seen := make(map[int]bool, len(b.DependsOn))
		for _, d := range b.DependsOn {
			switch {
			case d < 0 || d >= n:
				problems = append(problems, fmt.Sprintf("workUnits[%d]: dependsOn index %d out of range", i, d))
			case d == i:
				problems = append(problems, fmt.Sprintf("workUnits[%d]: cannot depend on itself", i))
			case seen[d]:
				problems = append(problems, fmt.Sprintf("workUnits[%d]: duplicate dependsOn index %d", i, d))
			}
			seen[d] = true
		}
		for k, cp := range b.Checkpoints {
			if cp.Name == "" {
				problems = append(problems, fmt.Sprintf("workUnits[%d].checkpoints[%d]: name is required", i, k))
			}
		}
	}

	if len(problems) == 0 {
		if cycle := t.dependencyCycle(); cycle != nil {
			problems = append(problems, fmt.Sprintf("dependsOn forms a cycle: %s", strings.Join(cycle, " -> ")))
		}
	}

	if len(problems) > 0 {
		return errs.Validationf("template: %s", strings.Join(problems, "; "))
	}
	return nil
}

// dependencyCycle returns the blueprint indices of a dependency cycle, or
// nil. Indices must already be in range.
func (t *Template) dependencyCycle() []string {
	nodes := make([]workflow.Node, len(t.WorkUnits))
	for i, b := range t.WorkUnits {
		deps := make([]string, len(b.DependsOn))
		for k, d := range b.DependsOn {
			deps[k] = strconv.Itoa(d)
		}
		nodes[i] = workflow.Node{ID: strconv.Itoa(i), Name: b.Name, Dependencies: deps}
	}
	return workflow.Build(nodes).DetectCycle()
}

func validPriority(p string) bool {
	for _, v := range workunit.ValidPriorities {
		if v == p {
			return true
		}
	}
	return false
}
