package workflow

import "math"

// slackEpsilon absorbs float rounding when comparing start times.
const slackEpsilon = 1e-9

// Plan is a validated graph compiled to index form for repeated forward
// passes. Node i of the plan is Graph.Nodes[i]. A Plan is read-only and safe
// for concurrent use.
type Plan struct {
	graph *Graph
	order []int   // node indices in topological order
	preds [][]int // predecessors per node index
	succs [][]int // successors per node index
}

// Compile validates g and precomputes its topological order and adjacency
// by index.
func Compile(g *Graph) (*Plan, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	ids, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}
	p := &Plan{
		graph: g,
		order: make([]int, len(ids)),
		preds: make([][]int, len(g.Nodes)),
		succs: make([][]int, len(g.Nodes)),
	}
	for i, id := range ids {
		p.order[i] = g.index[id]
	}
	for _, e := range g.Edges {
		from, to := g.index[e.From], g.index[e.To]
		p.preds[to] = append(p.preds[to], from)
		p.succs[from] = append(p.succs[from], to)
	}
	return p, nil
}

// Len returns the number of nodes in the plan.
func (p *Plan) Len() int { return len(p.graph.Nodes) }

// Graph returns the graph the plan was compiled from.
func (p *Plan) Graph() *Graph { return p.graph }

// Durations returns the scheduling duration of every node, by index.
func (p *Plan) Durations() []float64 {
	d := make([]float64, len(p.graph.Nodes))
	for i, n := range p.graph.Nodes {
		d[i] = n.Duration()
	}
	return d
}

// Forward runs the forward pass with the given per-node durations, writing
// earliest finish times into ef, and returns the makespan (max EF). ef must
// have length Len(); it is overwritten.
func (p *Plan) Forward(durations, ef []float64) float64 {
	var makespan float64
	for _, i := range p.order {
		var es float64
		for _, pr := range p.preds[i] {
			if ef[pr] > es {
				es = ef[pr]
			}
		}
		ef[i] = es + durations[i]
		if ef[i] > makespan {
			makespan = ef[i]
		}
	}
	return makespan
}

// AnalyzeCriticalPath performs critical path analysis on a dependency
// graph. The graph is validated first; cycles and dangling references fail
// with a GraphIntegrityError.
func AnalyzeCriticalPath(g *Graph) (*CriticalPathResult, error) {
	p, err := Compile(g)
	if err != nil {
		return nil, err
	}
	return p.CriticalPath(), nil
}

// CriticalPath computes earliest and latest start/finish times for every
// node and derives the zero-slack path.
func (p *Plan) CriticalPath() *CriticalPathResult {
	n := p.Len()
	dur := p.Durations()
	ef := make([]float64, n)
	total := p.Forward(dur, ef)

	// Backward pass: sinks finish at the makespan, everything else as late
	// as its earliest-starting successor allows.
	lf := make([]float64, n)
	ls := make([]float64, n)
	for k := len(p.order) - 1; k >= 0; k-- {
		i := p.order[k]
		finish := total
		for _, s := range p.succs[i] {
			finish = math.Min(finish, ls[s])
		}
		lf[i] = finish
		ls[i] = finish - dur[i]
	}

	result := &CriticalPathResult{
		Path:          make([]NodeSchedule, 0),
		TotalDuration: total,
		CriticalNodes: make([]string, 0),
		Schedule:      make(map[string]*NodeSchedule, n),
		TopoOrder:     make([]string, 0, n),
	}
	for _, i := range p.order {
		node := p.graph.Nodes[i]
		es := ef[i] - dur[i]
		slack := ls[i] - es
		critical := math.Abs(slack) < slackEpsilon
		if critical {
			slack = 0
		}
		ns := &NodeSchedule{
			ID:             node.ID,
			Name:           node.Name,
			Duration:       dur[i],
			EarliestStart:  es,
			EarliestFinish: ef[i],
			LatestStart:    ls[i],
			LatestFinish:   lf[i],
			Slack:          slack,
			Critical:       critical,
		}
		result.Schedule[node.ID] = ns
		result.TopoOrder = append(result.TopoOrder, node.ID)
		if critical {
			result.Path = append(result.Path, *ns)
			result.CriticalNodes = append(result.CriticalNodes, node.ID)
		}
	}
	return result
}
