package ema

import (
	"context"
	"math"
	"strings"
	"testing"

	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/runengine"
	"sophys.sh/cli/pkg/runengine/plans"
	"sophys.sh/cli/pkg/runengine/sim"
)

type localEnv struct {
	re       *runengine.RunEngine
	registry plans.Registry
}

func newLocalEnv() *localEnv {
	return &localEnv{runengine.New(sim.NewRegistry()), plans.Standard().With(LocalPlans)}
}

func (e *localEnv) run(t *testing.T, name, line string) error {
	t.Helper()
	item, err := plan.Build(Whitelist.ByUserName(name), strings.Fields(line), nil)
	if err != nil {
		return err
	}
	p, err := e.registry.Build(item, &plans.Env{Registry: e.re.Registry, LastRun: e.re.LastRun})
	if err != nil {
		return err
	}
	_, err = e.re.Run(context.Background(), p)
	return err
}

func (e *localEnv) position(motor string) float64 {
	d, _ := e.re.Registry.Device(motor)
	return d.(runengine.Movable).Position()
}

func TestLocalScan_Return(t *testing.T) {
	setup(t)
	e := newLocalEnv()
	if err := e.run(t, "ascan", "motor -2 2 5 -d det"); err != nil {
		t.Fatal(err)
	}
	if n := len(e.re.LastRun().Events["primary"]); n != 5 {
		t.Errorf("got %d events, want 5", n)
	}
	if got := e.position("motor"); got != 0 {
		t.Errorf("motor at %v after the scan, want back at 0", got)
	}
	start := e.re.LastRun().Start
	if start["hdf_file_name"] != "ascan_09_08_07" || start["plan_name"] != "ema_scan" {
		t.Errorf("start document %v", start)
	}
}

func TestLocalScan_Max(t *testing.T) {
	setup(t)
	e := newLocalEnv()
	if err := e.run(t, "ascan", "motor -2 2 5 -d det --max"); err != nil {
		t.Fatal(err)
	}
	if got := e.position("motor"); got != 0 {
		t.Errorf("motor at %v, want at the peak of det, 0", got)
	}
	if err := e.run(t, "ascan", "motor 1 3 3 -d det --max"); err != nil {
		t.Fatal(err)
	}
	if got := e.position("motor"); got != 1 {
		t.Errorf("motor at %v, want at the highest point, 1", got)
	}
}

func TestLocalRelScan(t *testing.T) {
	setup(t)
	e := newLocalEnv()
	if err := e.run(t, "motor_origin", "motor -3"); err != nil {
		t.Fatal(err)
	}
	if err := e.run(t, "rscan", "motor -1 1 3 -d det"); err != nil {
		t.Fatal(err)
	}
	col := e.re.LastRun().Column("primary", "motor")
	if len(col) != 3 || col[0] != 2 || col[2] != 4 {
		t.Errorf("motor went through %v, want [2 3 4]", col)
	}
	if got := e.position("motor"); got != 3 {
		t.Errorf("motor at %v, want back at 3", got)
	}
}

func TestLocalGridAndJittermap(t *testing.T) {
	setup(t)
	e := newLocalEnv()
	if err := e.run(t, "grid_scan", "motor1 0 1 2 motor2 0 2 3 -d det1 -s"); err != nil {
		t.Fatal(err)
	}
	if n := len(e.re.LastRun().Events["primary"]); n != 6 {
		t.Errorf("grid_scan: got %d events, want 6", n)
	}
	if err := e.run(t, "jittermap", "motor1 0 1 2 motor2 0 2 3 -d det1"); err != nil {
		t.Fatal(err)
	}
	grid := []float64{0, 1, 2, 0, 1, 2}
	for i, x := range e.re.LastRun().Column("primary", "motor2") {
		if math.Abs(x-grid[i]) > 0.5 {
			t.Errorf("jittermap point %d at %v, more than half a step from %v", i, x, grid[i])
		}
	}
}

func TestLocalMov(t *testing.T) {
	setup(t)
	e := newLocalEnv()
	if err := e.run(t, "mov", "motor 1 --before_plan_target det --max"); err == nil {
		t.Errorf("mov with a number and --max: got nil error")
	}
	if err := e.run(t, "mov", "motor --max --before_plan_target det"); err == nil {
		t.Errorf("mov --max before any run: got nil error")
	}
	if err := e.run(t, "ascan", "motor -1 1 3 -d det"); err != nil {
		t.Fatal(err)
	}
	if err := e.run(t, "mov", "motor --min --before_plan_target det"); err != nil {
		t.Fatal(err)
	}
	if got := e.position("motor"); got != -1 {
		t.Errorf("mov --min: motor at %v, want -1", got)
	}
	if err := e.run(t, "mov", "motor --cen --before_plan_target det"); err != nil {
		t.Fatal(err)
	}
	if got := e.position("motor"); math.Abs(got) > 1e-9 {
		t.Errorf("mov --cen: motor at %v, want 0", got)
	}
	if err := e.run(t, "mov", "motor 0.5 motor1 2"); err != nil {
		t.Fatal(err)
	}
	if e.position("motor") != 0.5 || e.position("motor1") != 2 {
		t.Errorf("mov: motors at %v and %v", e.position("motor"), e.position("motor1"))
	}
}

func TestLocalMotorOrigin(t *testing.T) {
	setup(t)
	e := newLocalEnv()
	if err := e.run(t, "mov", "motor 2"); err != nil {
		t.Fatal(err)
	}
	if err := e.run(t, "motor_origin", "motor"); err != nil {
		t.Fatal(err)
	}
	if got := e.position("motor"); got != 0 {
		t.Errorf("motor at %v after setting its origin, want 0", got)
	}
}
