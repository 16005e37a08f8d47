package workflow

import (
	"github.com/nitroplanner/nitroplanner/internal/errs"
)

// Graph is a directed dependency graph over the work units of one project.
// It is built fresh per request and never persisted.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	index  map[string]int      // node ID -> position in Nodes (first wins)
	adj    map[string][]string // predecessor -> successors
	revAdj map[string][]string // successor -> predecessors
}

// Build converts a flat list of work units into a dependency graph. One
// finish-to-start edge is emitted per declared dependency, in declaration
// order. Dangling references are recorded as-is; call Validate (or use
// BuildValidated) before traversing.
func Build(units []Node) *Graph {
	g := &Graph{
		Nodes:  units,
		Edges:  make([]Edge, 0),
		index:  make(map[string]int, len(units)),
		adj:    make(map[string][]string),
		revAdj: make(map[string][]string),
	}
	if g.Nodes == nil {
		g.Nodes = make([]Node, 0)
	}
	for i, n := range units {
		if _, dup := g.index[n.ID]; !dup {
			g.index[n.ID] = i
		}
	}
	for _, n := range units {
		for _, dep := range n.Dependencies {
			g.Edges = append(g.Edges, Edge{From: dep, To: n.ID, Type: EdgeFinishToStart})
			g.adj[dep] = append(g.adj[dep], n.ID)
			g.revAdj[n.ID] = append(g.revAdj[n.ID], dep)
		}
	}
	return g
}

// BuildValidated builds the graph and rejects it with a GraphIntegrityError
// when it holds a dangling reference, a duplicate node or a cycle.
func BuildValidated(units []Node) (*Graph, error) {
	g := Build(units)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate checks that every edge endpoint is a node of the graph, that
// node IDs are unique and that the graph is acyclic.
func (g *Graph) Validate() error {
	var dupes []string
	seen := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if seen[n.ID] {
			dupes = append(dupes, n.ID)
		}
		seen[n.ID] = true
	}
	if len(dupes) > 0 {
		return &errs.GraphIntegrityError{Kind: errs.GraphDuplicate, NodeIDs: dupes}
	}

	var dangling []string
	reported := make(map[string]bool)
	for _, e := range g.Edges {
		for _, id := range []string{e.From, e.To} {
			if !g.Has(id) && !reported[id] {
				reported[id] = true
				dangling = append(dangling, id)
			}
		}
	}
	if len(dangling) > 0 {
		return &errs.GraphIntegrityError{Kind: errs.GraphDangling, NodeIDs: dangling}
	}

	if cycle := g.DetectCycle(); cycle != nil {
		return &errs.GraphIntegrityError{Kind: errs.GraphCycle, NodeIDs: cycle}
	}
	return nil
}

// DetectCycle returns the cycle path if one exists, or nil if the graph is
// acyclic. The returned path starts and ends at the same node. Uses DFS with
// coloring: white (unvisited), gray (in progress), black (done). Edges to
// unknown nodes are ignored.
func (g *Graph) DetectCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(g.Nodes))
	parent := make(map[string]string)

	var dfs func(node string) []string
	dfs = func(node string) []string {
		color[node] = gray
		for _, next := range g.adj[node] {
			if !g.Has(next) {
				continue
			}
			if color[next] == gray {
				cycle := []string{next, node}
				cur := node
				for cur != next {
					cur = parent[cur]
					cycle = append(cycle, cur)
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
			if color[next] == white {
				parent[next] = node
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		color[node] = black
		return nil
	}

	// Input order keeps detection deterministic.
	for _, n := range g.Nodes {
		if color[n.ID] == white {
			if cycle := dfs(n.ID); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// Successors returns the IDs that depend on id, in edge order.
func (g *Graph) Successors(id string) []string { return g.adj[id] }

// Predecessors returns the IDs id depends on, in declaration order.
func (g *Graph) Predecessors(id string) []string { return g.revAdj[id] }

// TopoOrder returns the node IDs in Kahn topological order. Roots are seeded
// in input order and newly freed successors are appended in edge order. A
// graph whose order does not cover every node fails with a
// GraphIntegrityError instead of being silently truncated.
func (g *Graph) TopoOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		for _, p := range g.revAdj[n.ID] {
			if g.Has(p) {
				inDegree[n.ID]++
			}
		}
	}

	queue := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		for _, succ := range g.adj[node] {
			if !g.Has(succ) {
				continue
			}
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if len(order) != len(g.index) {
		placed := make(map[string]bool, len(order))
		for _, id := range order {
			placed[id] = true
		}
		var stuck []string
		for _, n := range g.Nodes {
			if !placed[n.ID] {
				stuck = append(stuck, n.ID)
			}
		}
		return nil, &errs.GraphIntegrityError{Kind: errs.GraphCycle, NodeIDs: stuck}
	}
	return order, nil
}
