package workflow

import (
	"errors"
	"testing"

	"github.com/nitroplanner/nitroplanner/internal/errs"
)

func analyze(t *testing.T, units []Node) *CriticalPathResult {
	t.Helper()
	g, err := BuildValidated(units)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	result, err := AnalyzeCriticalPath(g)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	return result
}

func assertSchedule(t *testing.T, ns *NodeSchedule, es, ef, ls, lf, slack float64, critical bool) {
	t.Helper()
	if ns == nil {
		t.Fatal("schedule is nil")
	}
	if ns.EarliestStart != es {
		t.Errorf("%s: ES = %v, want %v", ns.ID, ns.EarliestStart, es)
	}
	if ns.EarliestFinish != ef {
		t.Errorf("%s: EF = %v, want %v", ns.ID, ns.EarliestFinish, ef)
	}
	if ns.LatestStart != ls {
		t.Errorf("%s: LS = %v, want %v", ns.ID, ns.LatestStart, ls)
	}
	if ns.LatestFinish != lf {
		t.Errorf("%s: LF = %v, want %v", ns.ID, ns.LatestFinish, lf)
	}
	if ns.Slack != slack {
		t.Errorf("%s: Slack = %v, want %v", ns.ID, ns.Slack, slack)
	}
	if ns.Critical != critical {
		t.Errorf("%s: Critical = %v, want %v", ns.ID, ns.Critical, critical)
	}
}

func TestAnalyzeCriticalPath_LinearChain(t *testing.T) {
	// A(5) -> B(3) -> C(2)
	result := analyze(t, []Node{
		node("a", 5),
		node("b", 3, "a"),
		node("c", 2, "b"),
	})

	if result.TotalDuration != 10 {
		t.Errorf("TotalDuration = %v, want 10", result.TotalDuration)
	}
	if len(result.CriticalNodes) != 3 {
		t.Errorf("CriticalNodes = %v, want all three", result.CriticalNodes)
	}
	assertSchedule(t, result.Schedule["a"], 0, 5, 0, 5, 0, true)
	assertSchedule(t, result.Schedule["b"], 5, 8, 5, 8, 0, true)
	assertSchedule(t, result.Schedule["c"], 8, 10, 8, 10, 0, true)

	for i, id := range []string{"a", "b", "c"} {
		if result.Path[i].ID != id {
			t.Errorf("Path[%d] = %s, want %s", i, result.Path[i].ID, id)
		}
	}
}

func TestAnalyzeCriticalPath_ParallelBranches(t *testing.T) {
	// A(5) -> C, B(3) -> C
	result := analyze(t, []Node{
		node("a", 5),
		node("b", 3),
		node("c", 4, "a", "b"),
	})

	if got := result.Schedule["c"].EarliestStart; got != 5 {
		t.Errorf("ES(c) = %v, want 5 (max of branches, not sum)", got)
	}
	if result.TotalDuration != 9 {
		t.Errorf("TotalDuration = %v, want 9", result.TotalDuration)
	}
	assertSchedule(t, result.Schedule["b"], 0, 3, 2, 5, 2, false)
	if len(result.CriticalNodes) != 2 || result.CriticalNodes[0] != "a" || result.CriticalNodes[1] != "c" {
		t.Errorf("CriticalNodes = %v, want [a c]", result.CriticalNodes)
	}
}

func TestAnalyzeCriticalPath_BranchCriticalToOwnSink(t *testing.T) {
	// Two independent chains of different length: only the longer is critical.
	// a(2) -> b(2); x(1) -> y(1)
	result := analyze(t, []Node{
		node("a", 2),
		node("b", 2, "a"),
		node("x", 1),
		node("y", 1, "x"),
	})
	assertSchedule(t, result.Schedule["x"], 0, 1, 2, 3, 2, false)
	assertSchedule(t, result.Schedule["y"], 1, 2, 3, 4, 2, false)
	assertSchedule(t, result.Schedule["b"], 2, 4, 2, 4, 0, true)
}

func TestAnalyzeCriticalPath_Diamond(t *testing.T) {
	// A -> B -> D, A -> C -> D
	result := analyze(t, []Node{
		node("a", 1),
		node("b", 4, "a"),
		node("c", 2, "a"),
		node("d", 1, "b", "c"),
	})
	if result.TotalDuration != 6 {
		t.Errorf("TotalDuration = %v, want 6", result.TotalDuration)
	}
	assertSchedule(t, result.Schedule["c"], 1, 3, 3, 5, 2, false)
	want := []string{"a", "b", "d"}
	if len(result.CriticalNodes) != len(want) {
		t.Fatalf("CriticalNodes = %v, want %v", result.CriticalNodes, want)
	}
	for i := range want {
		if result.CriticalNodes[i] != want[i] {
			t.Errorf("CriticalNodes[%d] = %s, want %s", i, result.CriticalNodes[i], want[i])
		}
	}
}

func TestAnalyzeCriticalPath_MissingEstimateIsZero(t *testing.T) {
	result := analyze(t, []Node{
		{ID: "a", Name: "A"},
		node("b", 3, "a"),
	})
	if result.TotalDuration != 3 {
		t.Errorf("TotalDuration = %v, want 3", result.TotalDuration)
	}
	assertSchedule(t, result.Schedule["a"], 0, 0, 0, 0, 0, true)
}

func TestAnalyzeCriticalPath_Empty(t *testing.T) {
	result := analyze(t, nil)
	if result.TotalDuration != 0 {
		t.Errorf("TotalDuration = %v, want 0", result.TotalDuration)
	}
	if result.Path == nil || result.CriticalNodes == nil {
		t.Error("Path and CriticalNodes should be non-nil")
	}
}

func TestAnalyzeCriticalPath_RejectsCycle(t *testing.T) {
	g := Build([]Node{
		node("a", 1, "c"),
		node("b", 1, "a"),
		node("c", 1, "b"),
	})
	_, err := AnalyzeCriticalPath(g)
	var gi *errs.GraphIntegrityError
	if !errors.As(err, &gi) || gi.Kind != errs.GraphCycle {
		t.Fatalf("err = %v, want cycle GraphIntegrityError", err)
	}
}

func TestAnalyzeCriticalPath_RejectsDangling(t *testing.T) {
	g := Build([]Node{node("a", 1, "ghost")})
	_, err := AnalyzeCriticalPath(g)
	var gi *errs.GraphIntegrityError
	if !errors.As(err, &gi) || gi.Kind != errs.GraphDangling {
		t.Fatalf("err = %v, want dangling GraphIntegrityError", err)
	}
}

func TestAnalyzeCriticalPath_EndToEndScenario(t *testing.T) {
	units := []Node{
		node("design", 10),
		node("simulate", 8, "design"),
		node("build", 20, "simulate"),
	}
	g, err := BuildValidated(units)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	result, err := AnalyzeCriticalPath(g)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.TotalDuration != 38 {
		t.Errorf("TotalDuration = %v, want 38", result.TotalDuration)
	}
	if len(result.CriticalNodes) != 3 {
		t.Errorf("CriticalNodes = %v, want all three", result.CriticalNodes)
	}

	m := ComputeMetrics(units, g)
	if m.CompletionRate != 0 {
		t.Errorf("CompletionRate = %v, want 0", m.CompletionRate)
	}
	if m.Efficiency != 0 {
		t.Errorf("Efficiency = %v, want 0", m.Efficiency)
	}
}

func TestPlan_ForwardWithCustomDurations(t *testing.T) {
	g := Build([]Node{
		node("a", 5),
		node("b", 3),
		node("c", 4, "a", "b"),
	})
	p, err := Compile(g)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ef := make([]float64, p.Len())
	// b becomes the longer branch.
	if got := p.Forward([]float64{1, 6, 1}, ef); got != 7 {
		t.Errorf("Forward() = %v, want 7", got)
	}
	if ef[2] != 7 {
		t.Errorf("EF(c) = %v, want 7", ef[2])
	}
}
