package plan

import (
	"fmt"

	"sophys.sh/cli/pkg/argparse"
)

// Sample CLIs for the standard plans every beamline has.

// NewMV creates the CLI of mv: move motors to absolute positions.
func NewMV(info *Information) CLI { return mvCLI{Base{info}} }

type mvCLI struct{ Base }

func (c mvCLI) Parser() *argparse.Parser {
	p := c.NewParser("%(prog)s motor position [motor position ...]",
		"Move one or more motors to absolute positions, at the same time.")
	p.AddPositional(&argparse.Positional{Name: "args", Nargs: argparse.OneOrMore,
		Help: "Motor mnemonics and positions, in pairs."})
	return p
}

func (c mvCLI) Item(ns *argparse.Namespace) (Item, error) {
	args, _, err := ParseMotorPositions(ns.Strings("args"))
	if err != nil {
		return Item{}, err
	}
	return Item{Name: c.Info.PlanName, Args: args, Kwargs: map[string]any{}}, nil
}

// NewCount creates the CLI of count: read detectors a number of times.
func NewCount(info *Information) CLI { return countCLI{Base{info}} }

type countCLI struct{ Base }

func (c countCLI) Parser() *argparse.Parser {
	p := c.NewParser("%(prog)s [-n NUM] [--delay SECONDS] [--md key=value ...]",
		"Take one or more readings from the detectors.")
	p.AddOption(&argparse.Option{Short: 'n', Long: "num", Kind: argparse.Int, Default: 1,
		Help: "Number of readings to take. Defaults to 1."})
	p.AddOption(&argparse.Option{Long: "delay", Kind: argparse.Float,
		Help: "Time between readings, in seconds."})
	return p
}

func (c countCLI) Item(ns *argparse.Namespace) (Item, error) {
	dets := c.Detectors(ns)
	md, err := ParseMD(ns, dets...)
	if err != nil {
		return Item{}, err
	}
	num, _ := ns.Int("num")
	return Item{
		Name:   c.Info.PlanName,
		Args:   []any{dets},
		Kwargs: map[string]any{"num": num, "delay": ns.Value("delay"), "md": md},
	}, nil
}

// NewScan creates the CLI of scan: move motors together over a line.
func NewScan(info *Information) CLI { return scanCLI{Base{info}} }

type scanCLI struct{ Base }

func (c scanCLI) Parser() *argparse.Parser {
	p := c.NewParser("%(prog)s -m motor start stop [motor start stop ...] -n NUM [--md key=value ...]",
		"Scan over one or more motors moving together, reading the detectors at each point.")
	p.AddOption(&argparse.Option{Short: 'm', Long: "motors", Nargs: argparse.OneOrMore, Required: true,
		Metavar: "MOTOR START STOP", Help: "Motor mnemonics with start and stop positions."})
	p.AddOption(&argparse.Option{Short: 'n', Long: "num", Kind: argparse.Int, Required: true,
		Help: "Number of points."})
	return p
}

func (c scanCLI) Item(ns *argparse.Namespace) (Item, error) {
	dets := c.Detectors(ns)
	motorArgs, _, motors, err := ParseMotorRanges(ns.Strings("motors"), false)
	if err != nil {
		return Item{}, err
	}
	md, err := ParseMD(ns, append(dets, motors...)...)
	if err != nil {
		return Item{}, err
	}
	num, _ := ns.Int("num")
	return Item{
		Name:   c.Info.PlanName,
		Args:   append([]any{dets}, motorArgs...),
		Kwargs: map[string]any{"num": num, "md": md},
	}, nil
}

// NewGridScan creates the CLI of grid_scan: scan a mesh over motors.
func NewGridScan(info *Information) CLI { return gridScanCLI{Base{info}} }

type gridScanCLI struct{ Base }

func (c gridScanCLI) Parser() *argparse.Parser {
	p := c.NewParser("%(prog)s -m motor start stop num [motor start stop num ...] [-s] [--md key=value ...]",
		"Scan over a mesh; the first motor is on the slowest axis.")
	p.AddOption(&argparse.Option{Short: 'm', Long: "motors", Nargs: argparse.OneOrMore, Required: true,
		Metavar: "MOTOR START STOP NUM", Help: "Motor mnemonics with start and stop positions and number of points."})
	p.AddOption(&argparse.Option{Short: 's', Long: "snake", Kind: argparse.Bool,
		Help: "Snake the axes instead of returning to the start of each row."})
	return p
}

func (c gridScanCLI) Item(ns *argparse.Namespace) (Item, error) {
	dets := c.Detectors(ns)
	motorArgs, motors, err := ParseMotorGrid(ns.Strings("motors"))
	if err != nil {
		return Item{}, err
	}
	md, err := ParseMD(ns, append(dets, motors...)...)
	if err != nil {
		return Item{}, err
	}
	return Item{
		Name:   c.Info.PlanName,
		Args:   append([]any{dets}, motorArgs...),
		Kwargs: map[string]any{"snake_axes": ns.Bool("snake"), "md": md},
	}, nil
}

// NewAdaptiveScan creates the CLI of adaptive_scan: scan one motor with a
// step size that adapts to how fast a detector field changes.
func NewAdaptiveScan(info *Information) CLI { return adaptiveScanCLI{Base{info}} }

type adaptiveScanCLI struct{ Base }

func (c adaptiveScanCLI) Parser() *argparse.Parser {
	p := c.NewParser("%(prog)s -m motor start stop -t FIELD --min_step STEP --max_step STEP --target_delta DELTA [--backstep] [--threshold T]",
		"Scan one motor, adjusting the step size to the change of a detector field.")
	p.AddOption(&argparse.Option{Short: 'm', Long: "motor", Nargs: argparse.OneOrMore, Required: true,
		Metavar: "MOTOR START STOP", Help: "Motor mnemonic with start and stop positions."})
	p.AddOption(&argparse.Option{Short: 't', Long: "target_field", Required: true,
		Help: "Detector field whose change is tracked."})
	for _, name := range []string{"min_step", "max_step", "target_delta"} {
		p.AddOption(&argparse.Option{Long: name, Kind: argparse.Float, Required: true})
	}
	p.AddOption(&argparse.Option{Long: "backstep", Kind: argparse.Bool,
		Help: "Allow stepping back when the change is larger than the target."})
	p.AddOption(&argparse.Option{Long: "threshold", Kind: argparse.Float, Default: 0.8,
		Help: "Fraction of the target delta above which a step is redone. Defaults to 0.8."})
	return p
}

func (c adaptiveScanCLI) Item(ns *argparse.Namespace) (Item, error) {
	dets := c.Detectors(ns)
	motorArgs, _, motors, err := ParseMotorRanges(ns.Strings("motor"), false)
	if err != nil {
		return Item{}, err
	}
	if len(motors) != 1 {
		return Item{}, fmt.Errorf("adaptive scans take exactly one motor, got %d", len(motors))
	}
	md, err := ParseMD(ns, append(dets, motors...)...)
	if err != nil {
		return Item{}, err
	}
	minStep, _ := ns.Float("min_step")
	maxStep, _ := ns.Float("max_step")
	delta, _ := ns.Float("target_delta")
	threshold, _ := ns.Float("threshold")
	return Item{
		Name: c.Info.PlanName,
		Args: []any{dets, ns.String("target_field"), motorArgs[0], motorArgs[1], motorArgs[2],
			minStep, maxStep, delta, ns.Bool("backstep")},
		Kwargs: map[string]any{"threshold": threshold, "md": md},
	}, nil
}

// NewListScan creates the CLI of list_scan: visit explicit positions.
func NewListScan(info *Information) CLI { return listScanCLI{Base{info}} }

type listScanCLI struct{ Base }

func (c listScanCLI) Parser() *argparse.Parser {
	p := c.NewParser("%(prog)s motor [pos, pos, ...] [motor [pos, pos, ...] ...] [--md key=value ...]",
		"Scan over explicit lists of positions; all lists must have the same length.")
	p.AddPositional(&argparse.Positional{Name: "args", Kind: argparse.Literal, Nargs: argparse.OneOrMore,
		Help: "Motor mnemonics, each followed by a bracketed list of positions."})
	return p
}

func (c listScanCLI) Item(ns *argparse.Namespace) (Item, error) {
	dets := c.Detectors(ns)
	args, motors, err := ParseMotorLists(ns.Values("args"))
	if err != nil {
		return Item{}, err
	}
	md, err := ParseMD(ns, append(dets, motors...)...)
	if err != nil {
		return Item{}, err
	}
	return Item{
		Name:   c.Info.PlanName,
		Args:   append([]any{dets}, args...),
		Kwargs: map[string]any{"md": md},
	}, nil
}

// ParseMotorLists checks literal values of the form
// "motor [pos, ...] [motor [pos, ...] ...]". Positions are converted to
// float64. All lists must have the same length.
func ParseMotorLists(values []any) (args []any, motors []string, err error) {
	if len(values) == 0 || len(values)%2 != 0 {
		return nil, nil, fmt.Errorf("expected pairs of motor and list of positions, got %d values", len(values))
	}
	length := -1
	for i := 0; i < len(values); i += 2 {
		motor, ok := values[i].(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected a motor name, got %v", values[i])
		}
		list, ok := values[i+1].([]any)
		if !ok {
			return nil, nil, fmt.Errorf("expected a list of positions after %s, got %v", motor, values[i+1])
		}
		if length != -1 && len(list) != length {
			return nil, nil, fmt.Errorf("position lists have different lengths: %d and %d", length, len(list))
		}
		length = len(list)
		positions := make([]any, len(list))
		for j, v := range list {
			switch v := v.(type) {
			case int:
				positions[j] = float64(v)
			case float64:
				positions[j] = v
			default:
				return nil, nil, fmt.Errorf("invalid position %v for motor %s", v, motor)
			}
		}
		motors = append(motors, motor)
		args = append(args, motor, positions)
	}
	return args, motors, nil
}
