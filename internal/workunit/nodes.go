package workunit

import (
	"github.com/nitroplanner/nitroplanner/internal/models"
	"github.com/nitroplanner/nitroplanner/internal/workflow"
)

// ToNode converts a stored work unit into a scheduling node. Deps must be
// loaded in declared order.
func ToNode(wu models.WorkUnit) workflow.Node {
	return workflow.Node{
		ID:             wu.ID,
		Name:           wu.Name,
		Status:         wu.Status,
		Progress:       wu.Progress,
		EstimatedHours: wu.EstimatedHours,
		ActualHours:    wu.ActualHours,
		StartDate:      wu.StartDate,
		EndDate:        wu.EndDate,
		AssigneeID:     wu.AssigneeID,
		Dependencies:   wu.DependencyIDs(),
	}
}

// ToNodes converts a slice of stored work units.
func ToNodes(units []models.WorkUnit) []workflow.Node {
	nodes := make([]workflow.Node, len(units))
	for i, wu := range units {
		nodes[i] = ToNode(wu)
	}
	return nodes
}

// CheckpointStatuses flattens the loaded checkpoints of units.
func CheckpointStatuses(units []models.WorkUnit) []workflow.CheckpointStatus {
	var out []workflow.CheckpointStatus
	for _, wu := range units {
		for _, cp := range wu.Checkpoints {
			out = append(out, workflow.CheckpointStatus{WorkUnitID: wu.ID, Status: cp.Status})
		}
	}
	return out
}
