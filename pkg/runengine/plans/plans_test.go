package plans_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/runengine"
	. "sophys.sh/cli/pkg/runengine/plans"
	"sophys.sh/cli/pkg/runengine/sim"
)

func run(t *testing.T, item plan.Item) *runengine.RunEngine {
	t.Helper()
	re := runengine.New(sim.NewRegistry())
	env := &Env{Registry: re.Registry, LastRun: re.LastRun}
	p, err := Standard().Build(item, env)
	if err != nil {
		t.Fatalf("Build(%v): %v", item, err)
	}
	if _, err := re.Run(context.Background(), p); err != nil {
		t.Fatalf("Run(%v): %v", item, err)
	}
	return re
}

func position(t *testing.T, re *runengine.RunEngine, motor string) float64 {
	t.Helper()
	d, err := re.Registry.Device(motor)
	if err != nil {
		t.Fatal(err)
	}
	return d.(runengine.Movable).Position()
}

func TestCount(t *testing.T) {
	re := run(t, plan.Item{Name: "count", Args: []any{[]string{"det", "rand"}},
		Kwargs: map[string]any{"num": 3, "md": map[string]any{"SAMPLE": "Si"}}})
	last := re.LastRun()
	if n := len(last.Events["primary"]); n != 3 {
		t.Errorf("got %d events, want 3", n)
	}
	if last.Start["SAMPLE"] != "Si" || last.Start["plan_name"] != "count" {
		t.Errorf("start document %v", last.Start)
	}
}

func TestScan(t *testing.T) {
	re := run(t, plan.Item{Name: "scan",
		Args:   []any{[]any{"det"}, "motor", -1.0, 1.0, "motor2", 0, 2},
		Kwargs: map[string]any{"num": 3.0}})
	last := re.LastRun()
	if diff := cmp.Diff([]float64{-1, 0, 1}, last.Column("primary", "motor")); diff != "" {
		t.Errorf("motor (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 1, 2}, last.Column("primary", "motor2")); diff != "" {
		t.Errorf("motor2 (-want +got):\n%s", diff)
	}
	if got := position(t, re, "motor"); got != 1 {
		t.Errorf("motor left at %v, want 1", got)
	}
}

func TestRelScan_ReturnsMotors(t *testing.T) {
	re := runengine.New(sim.NewRegistry())
	m, _ := re.Registry.Device("motor")
	m.(runengine.Movable).Set(5)
	p, err := Standard().Build(plan.Item{Name: "rel_scan",
		Args: []any{[]string{"det"}, "motor", -1.0, 1.0}, Kwargs: map[string]any{"num": 3}},
		&Env{Registry: re.Registry})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := re.Run(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{4, 5, 6}, re.LastRun().Column("primary", "motor")); diff != "" {
		t.Errorf("motor (-want +got):\n%s", diff)
	}
	if got := position(t, re, "motor"); got != 5 {
		t.Errorf("motor left at %v, want 5", got)
	}
}

func TestGridPoints(t *testing.T) {
	axes := []Axis{{Motor: "a", Start: 0, Stop: 1, Num: 2}, {Motor: "b", Start: 0, Stop: 2, Num: 3}}
	want := [][]float64{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}
	if diff := cmp.Diff(want, GridPoints(axes, false)); diff != "" {
		t.Errorf("GridPoints (-want +got):\n%s", diff)
	}
	want = [][]float64{{0, 0}, {0, 1}, {0, 2}, {1, 2}, {1, 1}, {1, 0}}
	if diff := cmp.Diff(want, GridPoints(axes, true)); diff != "" {
		t.Errorf("GridPoints with snake (-want +got):\n%s", diff)
	}
}

func TestGridScan(t *testing.T) {
	re := run(t, plan.Item{Name: "grid_scan",
		Args:   []any{[]string{"det"}, "motor1", 0.0, 1.0, 2, "motor2", 0.0, 2.0, 3},
		Kwargs: map[string]any{"snake_axes": true}})
	if diff := cmp.Diff([]float64{0, 1, 2, 2, 1, 0}, re.LastRun().Column("primary", "motor2")); diff != "" {
		t.Errorf("motor2 (-want +got):\n%s", diff)
	}
}

func TestListScan(t *testing.T) {
	re := run(t, plan.Item{Name: "list_scan",
		Args: []any{[]string{"det"}, "motor", []any{1.0, 3.0, 2.0}}})
	if diff := cmp.Diff([]float64{1, 3, 2}, re.LastRun().Column("primary", "motor")); diff != "" {
		t.Errorf("motor (-want +got):\n%s", diff)
	}
}

func TestAdaptiveScan(t *testing.T) {
	re := run(t, plan.Item{Name: "adaptive_scan",
		Args:   []any{[]string{"det"}, "det", "motor", -3.0, 3.0, 0.1, 1.0, 0.1, true},
		Kwargs: map[string]any{"threshold": 0.8}})
	col := re.LastRun().Column("primary", "motor")
	if len(col) < 7 {
		t.Errorf("got %d points, want more than with the largest step", len(col))
	}
	for i := 1; i < len(col); i++ {
		if col[i] <= col[i-1] {
			t.Errorf("positions not increasing: %v", col)
			break
		}
	}
}

func TestMV(t *testing.T) {
	re := run(t, plan.Item{Name: "mv", Args: []any{"motor1", 1.5, "motor2", -2}})
	if got := position(t, re, "motor1"); got != 1.5 {
		t.Errorf("motor1 at %v, want 1.5", got)
	}
	if got := position(t, re, "motor2"); got != -2 {
		t.Errorf("motor2 at %v, want -2", got)
	}
}

func TestBuild_Errors(t *testing.T) {
	reg := Standard()
	for _, item := range []plan.Item{
		{Name: "teleport"},
		{Name: "mv", Args: []any{"motor1"}},
		{Name: "count"},
		{Name: "scan", Args: []any{[]string{"det"}, "motor", 0.0}, Kwargs: map[string]any{"num": 2}},
		{Name: "scan", Args: []any{[]string{"det"}, "motor", 0.0, 1.0}, Kwargs: map[string]any{"num": 2.5}},
		{Name: "list_scan", Args: []any{[]string{"det"}, "a", []any{1.0}, "b", []any{1.0, 2.0}}},
	} {
		if _, err := reg.Build(item, &Env{}); err == nil {
			t.Errorf("Build(%v) returned nil error", item)
		}
	}
}
