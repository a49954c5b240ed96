package plans

import (
	"fmt"
	"maps"
)

// Helpers to take the loosely typed arguments of plan items apart. Items
// built by the CLIs have precise types, but items decoded from JSON have
// []any and float64 everywhere.

// Strings converts a list of names.
func Strings(v any) ([]string, error) {
	switch v := v.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, len(v))
		for i, x := range v {
			s, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("expected a name, got %v", x)
			}
			out[i] = s
		}
		return out, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("expected a list of names, got %v", v)
}

// Float converts a number.
func Float(v any) (float64, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("expected a number, got %v", v)
}

// Int converts an integer; floats with no fractional part are accepted.
func Int(v any) (int, error) {
	switch v := v.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == float64(int(v)) {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("expected an integer, got %v", v)
}

// FloatOr converts an optional number; nil gives def.
func FloatOr(v any, def float64) (float64, error) {
	if v == nil {
		return def, nil
	}
	return Float(v)
}

// MD returns a copy of the md keyword argument, never nil.
func MD(kwargs map[string]any) map[string]any {
	md, _ := kwargs["md"].(map[string]any)
	if md == nil {
		return map[string]any{}
	}
	return maps.Clone(md)
}

// Axis is a motor with the positions it goes through.
type Axis struct {
	Motor       string
	Start, Stop float64
	Num         int
}

// Positions returns Num positions evenly spaced from Start to Stop.
func (a Axis) Positions() []float64 {
	if a.Num == 1 {
		return []float64{a.Start}
	}
	pos := make([]float64, a.Num)
	for i := range pos {
		pos[i] = a.Start + (a.Stop-a.Start)*float64(i)/float64(a.Num-1)
	}
	return pos
}

// Axes parses "motor start stop" groups, or "motor start stop num" groups
// when withNum is true.
func Axes(args []any, withNum bool) ([]Axis, error) {
	width := 3
	if withNum {
		width = 4
	}
	if len(args) == 0 || len(args)%width != 0 {
		return nil, fmt.Errorf("expected groups of %d arguments, got %d arguments", width, len(args))
	}
	var axes []Axis
	for i := 0; i < len(args); i += width {
		motor, ok := args[i].(string)
		if !ok {
			return nil, fmt.Errorf("expected a motor name, got %v", args[i])
		}
		start, err := Float(args[i+1])
		if err != nil {
			return nil, fmt.Errorf("start of %s: %w", motor, err)
		}
		stop, err := Float(args[i+2])
		if err != nil {
			return nil, fmt.Errorf("stop of %s: %w", motor, err)
		}
		a := Axis{Motor: motor, Start: start, Stop: stop}
		if withNum {
			if a.Num, err = Int(args[i+3]); err != nil {
				return nil, fmt.Errorf("number of points of %s: %w", motor, err)
			}
			if a.Num < 1 {
				return nil, fmt.Errorf("number of points of %s must be positive", motor)
			}
		}
		axes = append(axes, a)
	}
	return axes, nil
}

// Motors returns the motor names of axes.
func Motors(axes []Axis) []string {
	names := make([]string, len(axes))
	for i, a := range axes {
		names[i] = a.Motor
	}
	return names
}

// Detectors takes the list of detectors from the first positional argument.
func Detectors(args []any) ([]string, []any, error) {
	if len(args) == 0 {
		return nil, nil, fmt.Errorf("missing detectors")
	}
	dets, err := Strings(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("detectors: %w", err)
	}
	return dets, args[1:], nil
}
