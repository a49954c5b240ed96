// Package spe is the extension of the SPE beamline.
package spe

import (
	"errors"
	"fmt"
	"math"

	"sophys.sh/cli/pkg/argparse"
	"sophys.sh/cli/pkg/ext"
	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/runengine"
	"sophys.sh/cli/pkg/runengine/plans"
)

// Whitelist is the list of SPE plans.
var Whitelist = plan.Whitelist{
	{UserName: "map_m1_m2_feasibility", PlanName: "map_m1_m2_feasibility", New: NewMapM1M2Feasibility},
}

// Extension is the SPE extension.
var Extension = &ext.Extension{
	Name:       "spe",
	Whitelist:  Whitelist,
	LocalPlans: plans.Registry{"map_m1_m2_feasibility": buildMapM1M2Feasibility},
}

// Motors standing for the pitches of the M1 and M2 mirrors in local runs.
var (
	LocalM1 = "motor1"
	LocalM2 = "motor2"
)

// NewMapM1M2Feasibility creates the CLI of map_m1_m2_feasibility, which maps
// the detectors over the pitches of the M1 and M2 mirrors.
func NewMapM1M2Feasibility(info *plan.Information) plan.CLI {
	return mapCLI{plan.Base{Info: info}}
}

type mapCLI struct{ plan.Base }

func (c mapCLI) Parser() *argparse.Parser {
	p := c.NewParser(
		"%(prog)s -d DETECTOR [--m1_start FLOAT] [--m1_stop FLOAT] [--m1_num INT] [--m2_start FLOAT] [--m2_stop FLOAT] [--m2_num INT] [--step FLOAT]",
		"Map the detectors over the pitches of the M1 and M2 mirrors.")
	for _, m := range []string{"m1", "m2"} {
		upper := map[string]string{"m1": "M1", "m2": "M2"}[m]
		p.AddOption(&argparse.Option{Long: m + "_start", Kind: argparse.Float, Default: 0.0,
			Help: upper + " pitch start position."})
		p.AddOption(&argparse.Option{Long: m + "_stop", Kind: argparse.Float, Default: 0.0,
			Help: upper + " pitch stop position."})
		p.AddOption(&argparse.Option{Long: m + "_num", Kind: argparse.Int, Default: 11,
			Help: upper + " pitch scan points."})
	}
	p.AddOption(&argparse.Option{Long: "step", Kind: argparse.Float,
		Help: "Step size to configure the scan points."})
	return p
}

var errNoDetectors = errors.New("the following arguments are required: -d/--detectors")

func (c mapCLI) Item(ns *argparse.Namespace) (plan.Item, error) {
	dets := c.Detectors(ns)
	if len(dets) == 0 {
		return plan.Item{}, errNoDetectors
	}
	kwargs := map[string]any{"step": ns.Value("step")}
	for _, k := range []string{"m1_start", "m1_stop", "m2_start", "m2_stop"} {
		kwargs[k], _ = ns.Float(k)
	}
	for _, k := range []string{"m1_num", "m2_num"} {
		kwargs[k], _ = ns.Int(k)
	}
	return plan.Item{Name: c.Info.PlanName, Args: []any{dets}, Kwargs: kwargs}, nil
}

func buildMapM1M2Feasibility(item plan.Item, env *plans.Env) (runengine.Plan, error) {
	dets, _, err := plans.Detectors(item.Args)
	if err != nil {
		return nil, err
	}
	step, err := plans.FloatOr(item.Kwarg("step"), 0)
	if err != nil {
		return nil, fmt.Errorf("step: %w", err)
	}
	var axes []plans.Axis
	for _, m := range []struct{ prefix, motor string }{{"m1", LocalM1}, {"m2", LocalM2}} {
		a := plans.Axis{Motor: m.motor}
		if a.Start, err = plans.Float(item.Kwarg(m.prefix + "_start")); err != nil {
			return nil, fmt.Errorf("%s_start: %w", m.prefix, err)
		}
		if a.Stop, err = plans.Float(item.Kwarg(m.prefix + "_stop")); err != nil {
			return nil, fmt.Errorf("%s_stop: %w", m.prefix, err)
		}
		if step > 0 {
			a.Num = int(math.Round(math.Abs(a.Stop-a.Start)/step)) + 1
		} else if a.Num, err = plans.Int(item.Kwarg(m.prefix + "_num")); err != nil {
			return nil, fmt.Errorf("%s_num: %w", m.prefix, err)
		}
		if a.Num < 1 {
			return nil, fmt.Errorf("%s: number of points must be positive", m.prefix)
		}
		axes = append(axes, a)
	}
	md := map[string]any{"plan_name": item.Name}
	return plans.Steps(dets, plans.Motors(axes), plans.GridPoints(axes, false), md), nil
}
