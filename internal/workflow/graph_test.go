package workflow

import (
	"errors"
	"testing"

	"github.com/nitroplanner/nitroplanner/internal/errs"
)

func hours(h float64) *float64 { return &h }

func node(id string, est float64, deps ...string) Node {
	return Node{ID: id, Name: id, Status: StatusPending, EstimatedHours: hours(est), Dependencies: deps}
}

func TestBuild_OneEdgePerDependency(t *testing.T) {
	units := []Node{
		node("a", 1),
		node("b", 1, "a"),
		node("c", 1, "a", "b"),
		node("d", 1, "c", "a", "b"),
	}
	g := Build(units)

	if len(g.Edges) != 6 {
		t.Fatalf("len(Edges) = %d, want 6", len(g.Edges))
	}
	want := []Edge{
		{"a", "b", EdgeFinishToStart},
		{"a", "c", EdgeFinishToStart},
		{"b", "c", EdgeFinishToStart},
		{"c", "d", EdgeFinishToStart},
		{"a", "d", EdgeFinishToStart},
		{"b", "d", EdgeFinishToStart},
	}
	for i, e := range want {
		if g.Edges[i] != e {
			t.Errorf("Edges[%d] = %+v, want %+v", i, g.Edges[i], e)
		}
	}
	if got := g.Predecessors("d"); len(got) != 3 || got[0] != "c" {
		t.Errorf("Predecessors(d) = %v, want [c a b]", got)
	}
	if got := g.Successors("a"); len(got) != 3 {
		t.Errorf("Successors(a) = %v, want 3 entries", got)
	}
}

func TestBuild_Empty(t *testing.T) {
	g := Build(nil)
	if g.Nodes == nil || g.Edges == nil {
		t.Fatal("Nodes and Edges should be non-nil for JSON output")
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate() on empty graph: %v", err)
	}
}

func TestBuild_KeepsDanglingEdges(t *testing.T) {
	g := Build([]Node{node("a", 1, "ghost")})
	if len(g.Edges) != 1 || g.Edges[0].From != "ghost" {
		t.Fatalf("Edges = %+v, want the dangling edge recorded", g.Edges)
	}
}

func TestBuildValidated_Dangling(t *testing.T) {
	_, err := BuildValidated([]Node{node("a", 1), node("b", 1, "a", "ghost")})
	var gi *errs.GraphIntegrityError
	if !errors.As(err, &gi) {
		t.Fatalf("err = %v, want GraphIntegrityError", err)
	}
	if gi.Kind != errs.GraphDangling {
		t.Errorf("Kind = %q, want %q", gi.Kind, errs.GraphDangling)
	}
	if len(gi.NodeIDs) != 1 || gi.NodeIDs[0] != "ghost" {
		t.Errorf("NodeIDs = %v, want [ghost]", gi.NodeIDs)
	}
}

func TestBuildValidated_Cycle(t *testing.T) {
	// A -> B -> C -> A
	_, err := BuildValidated([]Node{
		node("a", 1, "c"),
		node("b", 1, "a"),
		node("c", 1, "b"),
	})
	var gi *errs.GraphIntegrityError
	if !errors.As(err, &gi) {
		t.Fatalf("err = %v, want GraphIntegrityError", err)
	}
	if gi.Kind != errs.GraphCycle {
		t.Errorf("Kind = %q, want %q", gi.Kind, errs.GraphCycle)
	}
	if len(gi.NodeIDs) != 4 || gi.NodeIDs[0] != gi.NodeIDs[len(gi.NodeIDs)-1] {
		t.Errorf("cycle path = %v, want closed path over 3 nodes", gi.NodeIDs)
	}
}

func TestBuildValidated_SelfDependency(t *testing.T) {
	_, err := BuildValidated([]Node{node("a", 1, "a")})
	var gi *errs.GraphIntegrityError
	if !errors.As(err, &gi) || gi.Kind != errs.GraphCycle {
		t.Fatalf("err = %v, want cycle error", err)
	}
}

func TestBuildValidated_DuplicateNode(t *testing.T) {
	_, err := BuildValidated([]Node{node("a", 1), node("a", 2)})
	var gi *errs.GraphIntegrityError
	if !errors.As(err, &gi) || gi.Kind != errs.GraphDuplicate {
		t.Fatalf("err = %v, want duplicate node error", err)
	}
}

func TestDetectCycle_Acyclic(t *testing.T) {
	g := Build([]Node{
		node("a", 1),
		node("b", 1, "a"),
		node("c", 1, "a"),
		node("d", 1, "b", "c"),
	})
	if cycle := g.DetectCycle(); cycle != nil {
		t.Errorf("DetectCycle() = %v, want nil for a diamond", cycle)
	}
}

func TestTopoOrder_RootsInInputOrder(t *testing.T) {
	g := Build([]Node{
		node("c", 1, "b"),
		node("b", 1),
		node("a", 1),
	})
	order, err := g.TopoOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"b", "a", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("TopoOrder() = %v, want %v", order, want)
		}
	}
}

func TestTopoOrder_CycleDoesNotLoop(t *testing.T) {
	g := Build([]Node{
		node("root", 1),
		node("x", 1, "root", "y"),
		node("y", 1, "x"),
	})
	_, err := g.TopoOrder()
	var gi *errs.GraphIntegrityError
	if !errors.As(err, &gi) {
		t.Fatalf("err = %v, want GraphIntegrityError", err)
	}
	if len(gi.NodeIDs) != 2 {
		t.Errorf("stuck nodes = %v, want [x y]", gi.NodeIDs)
	}
}

func TestGraph_Node(t *testing.T) {
	g := Build([]Node{node("a", 4)})
	n, ok := g.Node("a")
	if !ok || n.Duration() != 4 {
		t.Errorf("Node(a) = %+v, %v", n, ok)
	}
	if _, ok := g.Node("zzz"); ok {
		t.Error("Node(zzz) should not be found")
	}
}

func TestNode_Duration(t *testing.T) {
	if d := (Node{}).Duration(); d != 0 {
		t.Errorf("Duration() without estimate = %v, want 0", d)
	}
	if d := (Node{EstimatedHours: hours(-3)}).Duration(); d != 0 {
		t.Errorf("Duration() with negative estimate = %v, want 0", d)
	}
}
