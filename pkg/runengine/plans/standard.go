package plans

import (
	"fmt"
	"math"
	"slices"
	"time"

	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/runengine"
)

// Steps is a run that moves the motors to each point in turn and reads the
// detectors and motors there, into the primary stream.
func Steps(dets, motors []string, points [][]float64, md map[string]any) runengine.Plan {
	md["detectors"] = dets
	md["motors"] = motors
	md["num_points"] = len(points)
	readables := append(slices.Clone(dets), motors...)
	return runengine.RunWrapper(func(yield runengine.Yield) error {
		for _, pt := range points {
			if _, err := yield(runengine.Checkpoint()); err != nil {
				return err
			}
			if err := runengine.MoveTo(yield, motors, pt); err != nil {
				return err
			}
			if _, err := runengine.TriggerAndRead(yield, "primary", readables...); err != nil {
				return err
			}
		}
		return nil
	}, md)
}

// Relative runs the plan made by body with the points shifted by the
// current motor positions, and moves the motors back afterwards, even when
// the plan fails.
func Relative(motors []string, points [][]float64, body func(points [][]float64) runengine.Plan) runengine.Plan {
	return func(yield runengine.Yield) error {
		origin := make([]float64, len(motors))
		for i, m := range motors {
			pos, err := runengine.Position(yield, m)
			if err != nil {
				return err
			}
			origin[i] = pos
		}
		shifted := make([][]float64, len(points))
		for i, pt := range points {
			shifted[i] = make([]float64, len(pt))
			for j, x := range pt {
				shifted[i][j] = x + origin[j]
			}
		}
		restore := func(yield runengine.Yield) error { return runengine.MoveTo(yield, motors, origin) }
		return runengine.Finalize(body(shifted), restore)(yield)
	}
}

// LinePoints returns num points moving all axes together from their start
// to their stop.
func LinePoints(axes []Axis, num int) [][]float64 {
	points := make([][]float64, num)
	for i := range points {
		points[i] = make([]float64, len(axes))
	}
	for j, a := range axes {
		a.Num = num
		for i, x := range a.Positions() {
			points[i][j] = x
		}
	}
	return points
}

// GridPoints returns the points of a mesh, with the first axis the slowest.
// With snake, the faster axes go back and forth instead of restarting.
func GridPoints(axes []Axis, snake bool) [][]float64 {
	points := [][]float64{{}}
	for k, a := range axes {
		pos := a.Positions()
		rev := slices.Clone(pos)
		slices.Reverse(rev)
		var next [][]float64
		for i, pt := range points {
			line := pos
			if snake && k > 0 && i%2 == 1 {
				line = rev
			}
			for _, x := range line {
				next = append(next, append(slices.Clone(pt), x))
			}
		}
		points = next
	}
	return points
}

func buildMV(item plan.Item, env *Env) (runengine.Plan, error) {
	if len(item.Args) == 0 || len(item.Args)%2 != 0 {
		return nil, fmt.Errorf("expected pairs of motor and position, got %d arguments", len(item.Args))
	}
	var motors []string
	var positions []float64
	for i := 0; i < len(item.Args); i += 2 {
		m, ok := item.Args[i].(string)
		if !ok {
			return nil, fmt.Errorf("expected a motor name, got %v", item.Args[i])
		}
		pos, err := Float(item.Args[i+1])
		if err != nil {
			return nil, fmt.Errorf("position of %s: %w", m, err)
		}
		motors = append(motors, m)
		positions = append(positions, pos)
	}
	return func(yield runengine.Yield) error {
		return runengine.MoveTo(yield, motors, positions)
	}, nil
}

func buildCount(item plan.Item, env *Env) (runengine.Plan, error) {
	dets, _, err := Detectors(item.Args)
	if err != nil {
		return nil, err
	}
	num := 1
	if v := item.Kwarg("num"); v != nil {
		if num, err = Int(v); err != nil {
			return nil, fmt.Errorf("num: %w", err)
		}
	}
	delay, err := FloatOr(item.Kwarg("delay"), 0)
	if err != nil {
		return nil, fmt.Errorf("delay: %w", err)
	}
	md := MD(item.Kwargs)
	md["plan_name"] = "count"
	md["detectors"] = dets
	md["num_points"] = num
	return runengine.RunWrapper(func(yield runengine.Yield) error {
		for i := range num {
			if i > 0 && delay > 0 {
				if _, err := yield(runengine.Sleep(time.Duration(delay * float64(time.Second)))); err != nil {
					return err
				}
			}
			if _, err := yield(runengine.Checkpoint()); err != nil {
				return err
			}
			if _, err := runengine.TriggerAndRead(yield, "primary", dets...); err != nil {
				return err
			}
		}
		return nil
	}, md), nil
}

func buildScan(absolute bool) Builder {
	return func(item plan.Item, env *Env) (runengine.Plan, error) {
		dets, rest, err := Detectors(item.Args)
		if err != nil {
			return nil, err
		}
		axes, err := Axes(rest, false)
		if err != nil {
			return nil, err
		}
		num, err := Int(item.Kwarg("num"))
		if err != nil {
			return nil, fmt.Errorf("num: %w", err)
		}
		md := MD(item.Kwargs)
		md["plan_name"] = item.Name
		motors := Motors(axes)
		points := LinePoints(axes, num)
		if absolute {
			return Steps(dets, motors, points, md), nil
		}
		return Relative(motors, points, func(points [][]float64) runengine.Plan {
			return Steps(dets, motors, points, md)
		}), nil
	}
}

func buildGridScan(absolute bool) Builder {
	return func(item plan.Item, env *Env) (runengine.Plan, error) {
		dets, rest, err := Detectors(item.Args)
		if err != nil {
			return nil, err
		}
		axes, err := Axes(rest, true)
		if err != nil {
			return nil, err
		}
		snake, _ := item.Kwarg("snake_axes").(bool)
		md := MD(item.Kwargs)
		md["plan_name"] = item.Name
		md["snake_axes"] = snake
		motors := Motors(axes)
		points := GridPoints(axes, snake)
		if absolute {
			return Steps(dets, motors, points, md), nil
		}
		return Relative(motors, points, func(points [][]float64) runengine.Plan {
			return Steps(dets, motors, points, md)
		}), nil
	}
}

func buildListScan(item plan.Item, env *Env) (runengine.Plan, error) {
	dets, rest, err := Detectors(item.Args)
	if err != nil {
		return nil, err
	}
	if len(rest) == 0 || len(rest)%2 != 0 {
		return nil, fmt.Errorf("expected pairs of motor and list of positions")
	}
	var motors []string
	var points [][]float64
	for i := 0; i < len(rest); i += 2 {
		m, ok := rest[i].(string)
		if !ok {
			return nil, fmt.Errorf("expected a motor name, got %v", rest[i])
		}
		list, ok := rest[i+1].([]any)
		if !ok {
			return nil, fmt.Errorf("expected a list of positions for %s, got %v", m, rest[i+1])
		}
		if i == 0 {
			points = make([][]float64, len(list))
		} else if len(list) != len(points) {
			return nil, fmt.Errorf("position lists have different lengths")
		}
		for j, v := range list {
			x, err := Float(v)
			if err != nil {
				return nil, fmt.Errorf("position of %s: %w", m, err)
			}
			points[j] = append(points[j], x)
		}
		motors = append(motors, m)
	}
	md := MD(item.Kwargs)
	md["plan_name"] = "list_scan"
	return Steps(dets, motors, points, md), nil
}

// Steps through one motor with a step size chosen to keep the change of a
// detector field close to a target.
func buildAdaptiveScan(item plan.Item, env *Env) (runengine.Plan, error) {
	dets, rest, err := Detectors(item.Args)
	if err != nil {
		return nil, err
	}
	if len(rest) != 8 {
		return nil, fmt.Errorf("expected target field, motor, start, stop, min step, max step, target delta and backstep, got %d arguments", len(rest))
	}
	field, ok1 := rest[0].(string)
	motor, ok2 := rest[1].(string)
	backstep, ok3 := rest[7].(bool)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("invalid arguments %v", rest)
	}
	var nums [5]float64
	for i := range nums {
		if nums[i], err = Float(rest[2+i]); err != nil {
			return nil, err
		}
	}
	start, stop, minStep, maxStep, delta := nums[0], nums[1], nums[2], nums[3], nums[4]
	if minStep <= 0 || maxStep < minStep {
		return nil, fmt.Errorf("invalid step range [%v, %v]", minStep, maxStep)
	}
	threshold, err := FloatOr(item.Kwarg("threshold"), 0.8)
	if err != nil {
		return nil, fmt.Errorf("threshold: %w", err)
	}
	md := MD(item.Kwargs)
	md["plan_name"] = "adaptive_scan"
	md["detectors"] = dets
	md["motors"] = []string{motor}
	readables := append(slices.Clone(dets), motor)
	direction := 1.0
	if stop < start {
		direction = -1
	}

	return runengine.RunWrapper(func(yield runengine.Yield) error {
		pos := start
		step := (maxStep - minStep) / 2
		if step < minStep {
			step = minStep
		}
		var last float64
		first := true
		for (pos-stop)*direction <= 0 {
			if err := runengine.MoveTo(yield, []string{motor}, []float64{pos}); err != nil {
				return err
			}
			for _, d := range dets {
				if _, err := yield(runengine.Trigger(d)); err != nil {
					return err
				}
			}
			if _, err := yield(runengine.Create("primary")); err != nil {
				return err
			}
			var cur float64
			for _, d := range readables {
				ret, err := yield(runengine.Read(d))
				if err != nil {
					return err
				}
				if r, ok := ret.(map[string]runengine.Reading); ok {
					if v, ok := r[field]; ok {
						cur, _ = Float(v.Value)
					}
				}
			}
			if !first {
				slope := math.Abs(cur-last) / step
				newStep := maxStep
				if slope > 0 {
					newStep = math.Min(maxStep, math.Max(minStep, delta/slope))
				}
				if backstep && newStep < step*threshold {
					if _, err := yield(runengine.Drop()); err != nil {
						return err
					}
					pos -= step * direction
					step = newStep
					pos += step * direction
					continue
				}
				step = newStep
			}
			if _, err := yield(runengine.Save()); err != nil {
				return err
			}
			first = false
			last = cur
			pos += step * direction
		}
		return nil
	}, md), nil
}
