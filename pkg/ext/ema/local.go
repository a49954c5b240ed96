package ema

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/runengine"
	"sophys.sh/cli/pkg/runengine/plans"
)

// LocalPlans are the local implementations of the EMA plans.
var LocalPlans = plans.Registry{
	"ema_scan":         buildScan,
	"ema_grid_scan":    buildGridScan(false),
	"ema_jittermap":    buildGridScan(true),
	"ema_mov":          buildMov,
	"ema_motor_origin": buildMotorOrigin,
}

var errNoRun = errors.New("no previous run to take statistics from")

// Options common to scans.
type scanOptions struct {
	dets     []string
	absolute bool
	behavior string
	target   string
	md       map[string]any
}

func parseScanOptions(item plan.Item, dets []string) (*scanOptions, error) {
	opts := &scanOptions{dets: dets, absolute: true, behavior: AfterReturn, md: plans.MD(item.Kwargs)}
	if v, ok := item.Kwarg("absolute").(bool); ok {
		opts.absolute = v
	}
	if v, ok := item.Kwarg("after_plan_behavior").(string); ok && v != "" {
		opts.behavior = v
	}
	if v, ok := item.Kwarg("after_plan_target").(string); ok {
		opts.target = v
	}
	if opts.behavior != AfterReturn && opts.behavior != AfterMax {
		return nil, fmt.Errorf("invalid after plan behavior %q", opts.behavior)
	}
	if opts.behavior == AfterMax && opts.target == "" {
		return nil, fmt.Errorf("after plan behavior %q needs a target", opts.behavior)
	}
	opts.md["plan_name"] = item.Name
	for _, k := range []string{"hdf_file_name", "hdf_file_path", "exposure_time"} {
		if v := item.Kwarg(k); v != nil {
			opts.md[k] = v
		}
	}
	return opts, nil
}

// Runs the scan through points, then moves the motors back to where they
// were or to the maximum of the target.
func (opts *scanOptions) plan(motors []string, points [][]float64, env *plans.Env) runengine.Plan {
	scan := func(points [][]float64) runengine.Plan {
		return plans.Steps(opts.dets, motors, points, opts.md)
	}
	return func(yield runengine.Yield) error {
		origin := make([]float64, len(motors))
		for i, m := range motors {
			pos, err := runengine.Position(yield, m)
			if err != nil {
				return err
			}
			origin[i] = pos
		}
		var p runengine.Plan
		if opts.absolute {
			p = scan(points)
		} else {
			p = plans.Relative(motors, points, scan)
		}
		if err := p(yield); err != nil {
			return err
		}
		if opts.behavior == AfterMax {
			pos, err := statPositions(env, motors, opts.target, MovMax)
			if err != nil {
				return err
			}
			return runengine.MoveTo(yield, motors, pos)
		}
		return runengine.MoveTo(yield, motors, origin)
	}
}

func buildScan(item plan.Item, env *plans.Env) (runengine.Plan, error) {
	dets, rest, err := plans.Detectors(item.Args)
	if err != nil {
		return nil, err
	}
	axes, err := plans.Axes(rest, false)
	if err != nil {
		return nil, err
	}
	num, err := plans.Int(item.Kwarg("number_of_points"))
	if err != nil {
		return nil, fmt.Errorf("number_of_points: %w", err)
	}
	opts, err := parseScanOptions(item, dets)
	if err != nil {
		return nil, err
	}
	return opts.plan(plans.Motors(axes), plans.LinePoints(axes, num), env), nil
}

func buildGridScan(jitter bool) plans.Builder {
	return func(item plan.Item, env *plans.Env) (runengine.Plan, error) {
		dets, rest, err := plans.Detectors(item.Args)
		if err != nil {
			return nil, err
		}
		axes, err := plans.Axes(rest, true)
		if err != nil {
			return nil, err
		}
		snake, _ := item.Kwarg("snake_axes").(bool)
		opts, err := parseScanOptions(item, dets)
		if err != nil {
			return nil, err
		}
		points := plans.GridPoints(axes, snake)
		if jitter {
			points = Jitter(axes, points)
		}
		return opts.plan(plans.Motors(axes), points, env), nil
	}
}

// Jitter displaces each point randomly by up to half a step of each axis.
func Jitter(axes []plans.Axis, points [][]float64) [][]float64 {
	out := make([][]float64, len(points))
	for i, pt := range points {
		out[i] = slices.Clone(pt)
		for j, a := range axes {
			if a.Num < 2 {
				continue
			}
			step := (a.Stop - a.Start) / float64(a.Num-1)
			out[i][j] += step * (rand.Float64() - 0.5)
		}
	}
	return out
}

func buildMov(item plan.Item, env *plans.Env) (runengine.Plan, error) {
	behavior, _ := item.Kwarg("behavior").(string)
	if behavior == "" || behavior == MovPosition {
		return plans.Standard().Build(plan.Item{Name: "mv", Args: item.Args}, env)
	}
	motors, err := plans.Strings(item.Args)
	if err != nil {
		return nil, err
	}
	target, _ := item.Kwarg("before_plan_target").(string)
	return func(yield runengine.Yield) error {
		pos, err := statPositions(env, motors, target, behavior)
		if err != nil {
			return err
		}
		return runengine.MoveTo(yield, motors, pos)
	}, nil
}

// Returns the positions of motors at a statistic of the target field in the
// primary stream of the last run.
func statPositions(env *plans.Env, motors []string, target, stat string) ([]float64, error) {
	if env.LastRun == nil {
		return nil, errNoRun
	}
	run := env.LastRun()
	if run == nil {
		return nil, errNoRun
	}
	values := run.Column("primary", target)
	if len(values) == 0 {
		return nil, fmt.Errorf("field %q not in the last run", target)
	}
	columns := make([][]float64, len(motors))
	for i, m := range motors {
		columns[i] = run.Column("primary", m)
		if len(columns[i]) != len(values) {
			return nil, fmt.Errorf("motor %q not in the last run", m)
		}
	}
	pos := make([]float64, len(motors))
	switch stat {
	case MovMax, MovMin:
		best := 0
		for i, v := range values {
			if (stat == MovMax && v > values[best]) || (stat == MovMin && v < values[best]) {
				best = i
			}
		}
		for i := range motors {
			pos[i] = columns[i][best]
		}
	case MovCen:
		var total float64
		for _, v := range values {
			total += v
		}
		if total == 0 {
			return nil, fmt.Errorf("field %q sums to zero, no center of mass", target)
		}
		for i := range motors {
			for k, v := range values {
				pos[i] += columns[i][k] * v / total
			}
		}
	default:
		return nil, fmt.Errorf("unknown statistic %q", stat)
	}
	return pos, nil
}

func buildMotorOrigin(item plan.Item, env *plans.Env) (runengine.Plan, error) {
	if len(item.Args) != 2 {
		return nil, fmt.Errorf("expected motor and position, got %d arguments", len(item.Args))
	}
	motor, ok := item.Args[0].(string)
	if !ok {
		return nil, fmt.Errorf("expected a motor name, got %v", item.Args[0])
	}
	var position *float64
	if item.Args[1] != nil {
		v, err := plans.Float(item.Args[1])
		if err != nil {
			return nil, fmt.Errorf("position: %w", err)
		}
		position = &v
	}
	return runengine.Msgs(runengine.SetOrigin(motor, position)), nil
}
