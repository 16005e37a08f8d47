package workflow

// ComputeMetrics aggregates status counts, hours and dependency density for
// a project's work units. Ratios over empty denominators are 0.
func ComputeMetrics(units []Node, g *Graph) Metrics {
	m := Metrics{TotalWorkUnits: len(units)}
	var progress float64
	for _, u := range units {
		switch u.Status {
		case StatusCompleted:
			m.CompletedWorkUnits++
		case StatusInProgress:
			m.InProgressWorkUnits++
		case StatusPending:
			m.PendingWorkUnits++
		case StatusBlocked:
			m.BlockedWorkUnits++
		}
		if u.EstimatedHours != nil {
			m.TotalEstimatedHours += *u.EstimatedHours
		}
		if u.ActualHours != nil {
			m.TotalActualHours += *u.ActualHours
		}
		progress += u.Progress
	}
	if g != nil {
		m.DependencyCount = len(g.Edges)
	}

	if m.TotalWorkUnits > 0 {
		total := float64(m.TotalWorkUnits)
		m.CompletionRate = float64(m.CompletedWorkUnits) * 100 / total
		m.AvgProgress = progress / total
		m.AvgDependenciesPerWorkUnit = float64(m.DependencyCount) / total
	}
	if m.TotalActualHours > 0 {
		m.Efficiency = m.TotalEstimatedHours * 100 / m.TotalActualHours
	}
	return m
}
