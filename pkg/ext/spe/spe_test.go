package spe

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/runengine"
	"sophys.sh/cli/pkg/runengine/plans"
	"sophys.sh/cli/pkg/runengine/sim"
	. "sophys.sh/cli/pkg/tt"
)

func build(line string) (plan.Item, error) {
	return plan.Build(Whitelist.ByUserName("map_m1_m2_feasibility"), strings.Fields(line), nil)
}

func TestMapM1M2Feasibility_Item(t *testing.T) {
	Test(t, Fn("build", build), Table{
		Args("-d det").Rets(plan.Item{
			Name: "map_m1_m2_feasibility",
			Args: []any{[]string{"det"}},
			Kwargs: map[string]any{
				"m1_start": 0.0, "m1_stop": 0.0, "m1_num": 11,
				"m2_start": 0.0, "m2_stop": 0.0, "m2_num": 11,
				"step": nil,
			},
		}, nil),
		Args("-d det1 det2 --m1_start -1 --m1_stop 1 --m2_num 3 --step 0.5").Rets(plan.Item{
			Name: "map_m1_m2_feasibility",
			Args: []any{[]string{"det1", "det2"}},
			Kwargs: map[string]any{
				"m1_start": -1.0, "m1_stop": 1.0, "m1_num": 11,
				"m2_start": 0.0, "m2_stop": 0.0, "m2_num": 3,
				"step": 0.5,
			},
		}, nil),
		Args("--m1_num 3").Rets(plan.Item{}, ErrorMatching("required: -d/--detectors")),
		Args("-d det --m1_num x").Rets(plan.Item{}, ErrorMatching("invalid int value")),
	})
}

func TestMapM1M2Feasibility_Local(t *testing.T) {
	item, err := build("-d det1 --m1_start -1 --m1_stop 1 --m1_num 3 --m2_num 2 --m2_stop 1")
	if err != nil {
		t.Fatal(err)
	}
	re := runengine.New(sim.NewRegistry())
	p, err := Extension.LocalPlans.Build(item, &plans.Env{Registry: re.Registry})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := re.Run(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	want := []float64{-1, -1, 0, 0, 1, 1}
	if diff := cmp.Diff(want, re.LastRun().Column("primary", LocalM1)); diff != "" {
		t.Errorf("m1 positions (-want +got):\n%s", diff)
	}

	item.Kwargs["step"] = 0.5
	p, err = Extension.LocalPlans.Build(item, &plans.Env{Registry: re.Registry})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := re.Run(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if n := len(re.LastRun().Events["primary"]); n != 5*3 {
		t.Errorf("with step 0.5: got %d points, want 15", n)
	}
}
