// Package workflow builds dependency graphs over work units and derives
// schedules, critical paths and workflow metrics from them. Everything in
// this package is a pure function of its input.
package workflow

import "time"

// Work unit statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusBlocked    = "blocked"
)

// EdgeFinishToStart is the only dependency type: the predecessor must finish
// before the successor starts.
const EdgeFinishToStart = "finish_to_start"

// Node is one work unit participating in scheduling.
type Node struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Status         string     `json:"status"`
	Progress       float64    `json:"progress"`
	EstimatedHours *float64   `json:"estimatedHours"`
	ActualHours    *float64   `json:"actualHours"`
	StartDate      *time.Time `json:"startDate,omitempty"`
	EndDate        *time.Time `json:"endDate,omitempty"`
	AssigneeID     string     `json:"assigneeId,omitempty"`
	Dependencies   []string   `json:"dependencies"`
}

// Duration is the scheduling duration of the node in hours. A missing
// estimate counts as zero.
func (n Node) Duration() float64 {
	if n.EstimatedHours == nil || *n.EstimatedHours < 0 {
		return 0
	}
	return *n.EstimatedHours
}

// Edge is a finish-to-start dependency from a predecessor to a successor.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

// NodeSchedule holds the scheduling info for a single work unit.
type NodeSchedule struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Duration       float64 `json:"duration"`
	EarliestStart  float64 `json:"earliestStart"`
	EarliestFinish float64 `json:"earliestFinish"`
	LatestStart    float64 `json:"latestStart"`
	LatestFinish   float64 `json:"latestFinish"`
	Slack          float64 `json:"slack"`
	Critical       bool    `json:"critical"`
}

// CriticalPathResult holds the complete critical path analysis.
type CriticalPathResult struct {
	Path          []NodeSchedule           `json:"path"` // critical nodes in topological order
	TotalDuration float64                  `json:"totalDuration"`
	CriticalNodes []string                 `json:"criticalNodes"`
	Schedule      map[string]*NodeSchedule `json:"-"`
	TopoOrder     []string                 `json:"-"`
}

// Metrics is the aggregate workflow health of a project.
type Metrics struct {
	TotalWorkUnits             int     `json:"totalWorkUnits"`
	CompletedWorkUnits         int     `json:"completedWorkUnits"`
	InProgressWorkUnits        int     `json:"inProgressWorkUnits"`
	PendingWorkUnits           int     `json:"pendingWorkUnits"`
	BlockedWorkUnits           int     `json:"blockedWorkUnits"`
	CompletionRate             float64 `json:"completionRate"`
	TotalEstimatedHours        float64 `json:"totalEstimatedHours"`
	TotalActualHours           float64 `json:"totalActualHours"`
	Efficiency                 float64 `json:"efficiency"`
	AvgProgress                float64 `json:"avgProgress"`
	DependencyCount            int     `json:"dependencyCount"`
	AvgDependenciesPerWorkUnit float64 `json:"avgDependenciesPerWorkUnit"`
}
