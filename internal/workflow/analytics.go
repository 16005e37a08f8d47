package workflow

// Checkpoint statuses.
const (
	CheckpointPending    = "pending"
	CheckpointInProgress = "in_progress"
	CheckpointPassed     = "passed"
	CheckpointFailed     = "failed"
)

// CheckpointStatus is the status of one checkpoint attached to a work unit.
type CheckpointStatus struct {
	WorkUnitID string `json:"workUnitId"`
	Status     string `json:"status"`
}

// UnitRef identifies a work unit in analytics output.
type UnitRef struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	EstimatedHours float64 `json:"estimatedHours"`
}

// Analytics summarizes a project's timeline, quality, efficiency and team
// workload.
type Analytics struct {
	Timeline   TimelineAnalytics   `json:"timeline"`
	Quality    QualityAnalytics    `json:"quality"`
	Efficiency EfficiencyAnalytics `json:"efficiency"`
	Team       TeamAnalytics       `json:"team"`
}

type TimelineAnalytics struct {
	TotalDuration    float64  `json:"totalDuration"`
	AvgDuration      float64  `json:"avgDuration"`
	LongestWorkUnit  *UnitRef `json:"longestWorkUnit"`
	ShortestWorkUnit *UnitRef `json:"shortestWorkUnit"`
}

type QualityAnalytics struct {
	TotalCheckpoints  int     `json:"totalCheckpoints"`
	PassedCheckpoints int     `json:"passedCheckpoints"`
	FailedCheckpoints int     `json:"failedCheckpoints"`
	QualityScore      float64 `json:"qualityScore"`
}

type EfficiencyAnalytics struct {
	TotalEstimatedHours float64 `json:"totalEstimatedHours"`
	TotalActualHours    float64 `json:"totalActualHours"`
	EfficiencyScore     float64 `json:"efficiencyScore"`
	Overruns            int     `json:"overruns"`
	Underruns           int     `json:"underruns"`
}

type TeamAnalytics struct {
	TotalAssignments int     `json:"totalAssignments"`
	AvgWorkload      float64 `json:"avgWorkload"`
	BusiestMember    string  `json:"busiestMember,omitempty"`
	LeastBusyMember  string  `json:"leastBusyMember,omitempty"`
}

// ComputeAnalytics derives project analytics from work units and their
// checkpoints. Units without a positive estimate are left out of the
// timeline; ties for longest/shortest unit and busiest/least busy assignee
// go to the first in input order.
func ComputeAnalytics(units []Node, checkpoints []CheckpointStatus) Analytics {
	var a Analytics

	// Timeline.
	var estimated int
	for _, u := range units {
		if u.EstimatedHours == nil || *u.EstimatedHours <= 0 {
			continue
		}
		h := *u.EstimatedHours
		estimated++
		a.Timeline.TotalDuration += h
		if a.Timeline.LongestWorkUnit == nil || h > a.Timeline.LongestWorkUnit.EstimatedHours {
			a.Timeline.LongestWorkUnit = &UnitRef{ID: u.ID, Name: u.Name, EstimatedHours: h}
		}
		if a.Timeline.ShortestWorkUnit == nil || h < a.Timeline.ShortestWorkUnit.EstimatedHours {
			a.Timeline.ShortestWorkUnit = &UnitRef{ID: u.ID, Name: u.Name, EstimatedHours: h}
		}
	}
	if estimated > 0 {
		a.Timeline.AvgDuration = a.Timeline.TotalDuration / float64(estimated)
	}

	// Quality.
	a.Quality.TotalCheckpoints = len(checkpoints)
	for _, cp := range checkpoints {
		switch cp.Status {
		case CheckpointPassed:
			a.Quality.PassedCheckpoints++
		case CheckpointFailed:
			a.Quality.FailedCheckpoints++
		}
	}
	if a.Quality.TotalCheckpoints > 0 {
		a.Quality.QualityScore = float64(a.Quality.PassedCheckpoints) * 100 / float64(a.Quality.TotalCheckpoints)
	}

	// Efficiency.
	for _, u := range units {
		var est, act float64
		if u.EstimatedHours != nil {
			est = *u.EstimatedHours
		}
		if u.ActualHours != nil {
			act = *u.ActualHours
		}
		a.Efficiency.TotalEstimatedHours += est
		a.Efficiency.TotalActualHours += act
		if u.EstimatedHours == nil || u.ActualHours == nil || act == 0 {
			continue
		}
		if act > est {
			a.Efficiency.Overruns++
		} else if act < est {
			a.Efficiency.Underruns++
		}
	}
	if a.Efficiency.TotalActualHours > 0 {
		a.Efficiency.EfficiencyScore = a.Efficiency.TotalEstimatedHours * 100 / a.Efficiency.TotalActualHours
	}

	// Team.
	workload := make(map[string]float64)
	var members []string
	for _, u := range units {
		if u.AssigneeID == "" {
			continue
		}
		a.Team.TotalAssignments++
		if _, ok := workload[u.AssigneeID]; !ok {
			members = append(members, u.AssigneeID)
		}
		workload[u.AssigneeID] += u.Duration()
	}
	if len(members) > 0 {
		var sum float64
		busiest, least := members[0], members[0]
		for _, m := range members {
			w := workload[m]
			sum += w
			if w > workload[busiest] {
				busiest = m
			}
			if w < workload[least] {
				least = m
			}
		}
		a.Team.AvgWorkload = sum / float64(len(members))
		a.Team.BusiestMember = busiest
		a.Team.LeastBusyMember = least
	}
	return a
}
