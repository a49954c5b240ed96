package ema

import (
	"errors"
	"fmt"
	"os"

	"sophys.sh/cli/pkg/argparse"
	"sophys.sh/cli/pkg/plan"
)

// Default templates of HDF file names, formatted with strftime.
const (
	ScanTemplate      = "ascan_%H_%M_%S"
	RelScanTemplate   = "rscan_%H_%M_%S"
	GridScanTemplate  = "gridscan_%H_%M_%S"
	JittermapTemplate = "jittermap_%H_%M_%S"
)

// Behaviors after a scan.
const (
	AfterReturn = "return"
	AfterMax    = "max"
)

// AddHDFOptions adds the options naming the HDF file of area detectors.
func AddHDFOptions(p *argparse.Parser, defaultName string) {
	p.AddOption(&argparse.Option{Long: "hdf_file_name", Metavar: "TEMPLATE",
		Help: "Save file name for the data HDF5 file generated (if using an AreaDetector), as a strftime template. Defaults to '" + defaultName + "'."})
	p.AddOption(&argparse.Option{Long: "hdf_file_path", Metavar: "PATH",
		Help: "Save path for the data HDF5 file generated (if using an AreaDetector). Defaults to the current directory."})
}

// ParseHDFArgs returns the HDF file name, with the template formatted at the
// current time, and path. The template defaults to template and the path to
// the working directory.
func ParseHDFArgs(ns *argparse.Namespace, template string) (name, path string) {
	if t := ns.String("hdf_file_name"); t != "" {
		template = t
	}
	path = ns.String("hdf_file_path")
	if path == "" {
		var err error
		if path, err = os.Getwd(); err != nil {
			path = "."
		}
	}
	return plan.Strftime(template), path
}

// AddAfterOptions adds the options choosing what happens after a scan.
func AddAfterOptions(p *argparse.Parser) {
	p.AddOption(&argparse.Option{Long: "max", Kind: argparse.Bool,
		Help: "Go to the point of the scan with maximum value at the end."})
	p.AddOption(&argparse.Option{Long: "after_plan_target", Hidden: true})
}

// AfterPlanBehavior returns "max" when --max was given, "return" otherwise.
func AfterPlanBehavior(ns *argparse.Namespace) string {
	if ns.Bool("max") {
		return AfterMax
	}
	return AfterReturn
}

// AfterPlanTarget returns the field whose statistics drive the after-plan
// behavior: --after_plan_target, else --plan_target, else the detector when
// there is only one. It returns nil when there is none.
func AfterPlanTarget(ns *argparse.Namespace) any {
	for _, name := range []string{"after_plan_target", "plan_target"} {
		if t := ns.String(name); t != "" {
			return t
		}
	}
	if dets := ns.Strings("detectors"); len(dets) == 1 {
		return dets[0]
	}
	return nil
}

// Builds the keyword arguments shared by all scans.
func scanKwargs(ns *argparse.Namespace, md map[string]any, template string) map[string]any {
	name, path := ParseHDFArgs(ns, template)
	if _, ok := md["metadata_save_file_location"]; !ok {
		md["metadata_save_file_location"] = path
	}
	return map[string]any{
		"md":                  md,
		"hdf_file_name":       name,
		"hdf_file_path":       path,
		"after_plan_behavior": AfterPlanBehavior(ns),
		"after_plan_target":   AfterPlanTarget(ns),
	}
}

// NewScan creates the CLI of ascan, an absolute scan of motors moving
// together.
func NewScan(info *plan.Information) plan.CLI {
	return ndScanCLI{plan.Base{Info: info}, true, ScanTemplate}
}

// NewRelScan creates the CLI of rscan, like ascan with positions relative to
// the current ones.
func NewRelScan(info *plan.Information) plan.CLI {
	return ndScanCLI{plan.Base{Info: info}, false, RelScanTemplate}
}

type ndScanCLI struct {
	plan.Base
	absolute bool
	template string
}

const ndScanExamples = `
Example usages:

%[1]s ms2r 0.488 0.49 6
    Make a 1D scan over 6 points on the 'ms2r' motor, from point 0.488 to point 0.49,
    %[2]s. The exposure time used is the one set before the scan on the IOC.

%[1]s wst 0.0 0.4 5 0.1
    Make a 1D scan over 5 points on the 'wst' motor, from point 0.0 to point 0.4,
    %[2]s, with exposure time per-point equal to 0.1 seconds.

%[1]s ms2r 0.488 0.49 wst 0.0 0.4 5 0.1
    Make a 2D scan over 5 points on the 'ms2r' and 'wst' motors moving at the same
    time, %[2]s, with exposure time per-point equal to 0.1 seconds.`

func (c ndScanCLI) Parser() *argparse.Parser {
	coords := "in absolute coordinates"
	if !c.absolute {
		coords = "relative to the current position"
	}
	p := c.NewParser(
		"%(prog)s motor start stop [motor start stop ...] num [exposure_time] [--hdf_file_path PATH] [--hdf_file_name TEMPLATE] [--md key=value key=value ...]",
		"Scan one or more motors moving together, reading the detectors at each point.\n"+
			fmt.Sprintf(ndScanExamples, c.Info.UserName, coords))
	AddHDFOptions(p, c.template)
	AddAfterOptions(p)
	p.AddPositional(&argparse.Positional{Name: "args", Nargs: argparse.OneOrMore,
		Help: "Motor informations, in order (mnemonic start_position end_position)."})
	// Only for the help; their values are taken from the end of args.
	p.AddPositional(&argparse.Positional{Name: "num", Kind: argparse.Int, Nargs: argparse.Optional,
		Help: "Number of points between the start and end positions."})
	p.AddPositional(&argparse.Positional{Name: "exposure_time", Kind: argparse.Float, Nargs: argparse.Optional,
		Help: "Per-point exposure time of the detector. Defaults to the exposure time set on the IOC."})
	return p
}

var errNotEnoughArgs = errors.New("not enough arguments: expected motor start stop [motor start stop ...] num [exposure_time]")

func (c ndScanCLI) Item(ns *argparse.Namespace) (plan.Item, error) {
	words := ns.Strings("args")
	if len(words) < 4 {
		return plan.Item{}, errNotEnoughArgs
	}
	var exposure any
	if len(words)%3 != 1 {
		last := words[len(words)-1]
		v, err := argparse.Convert(argparse.Float, last)
		if err != nil {
			return plan.Item{}, fmt.Errorf("exposure time: %w", err)
		}
		exposure = v
		words = words[:len(words)-1]
	}
	args, num, motors, err := plan.ParseMotorRanges(words, true)
	if err != nil {
		return plan.Item{}, err
	}
	dets := c.Detectors(ns)
	md, err := plan.ParseMD(ns, append(dets, motors...)...)
	if err != nil {
		return plan.Item{}, err
	}
	kwargs := scanKwargs(ns, md, c.template)
	kwargs["number_of_points"] = num
	kwargs["exposure_time"] = exposure
	kwargs["absolute"] = c.absolute
	return plan.Item{Name: c.Info.PlanName, Args: append([]any{dets}, args...), Kwargs: kwargs}, nil
}

// NewGridScan creates the CLI of grid_scan, an absolute mesh scan.
func NewGridScan(info *plan.Information) plan.CLI {
	return gridCLI{plan.Base{Info: info}, true, false, GridScanTemplate}
}

// NewRelGridScan creates the CLI of rel_grid_scan, like grid_scan with
// positions relative to the current ones.
func NewRelGridScan(info *plan.Information) plan.CLI {
	return gridCLI{plan.Base{Info: info}, false, false, GridScanTemplate}
}

// NewJittermap creates the CLI of jittermap, a mesh scan where each point is
// moved randomly inside its cell.
func NewJittermap(info *plan.Information) plan.CLI {
	return gridCLI{plan.Base{Info: info}, true, true, JittermapTemplate}
}

type gridCLI struct {
	plan.Base
	absolute bool
	jitter   bool
	template string
}

func (c gridCLI) Parser() *argparse.Parser {
	desc := "Scan over a mesh of two motors, reading the detectors at each point."
	switch {
	case c.jitter:
		desc = "Scan over a mesh of two motors, with each point displaced randomly inside its cell, reading the detectors at each point."
	case !c.absolute:
		desc += " Positions are relative to the current ones."
	}
	p := c.NewParser(
		"%(prog)s motor start stop num motor start stop num [motor start stop num ...] [exposure_time] [-s/--snake] [--hdf_file_path PATH] [--hdf_file_name TEMPLATE] [--md key=value key=value ...]",
		desc+fmt.Sprintf(`

Example usages:

%[1]s ms2l 0.49 0.494 3 ms2r 0.488 0.49 3
    Make a 2D scan over 3 points on the 'ms2l' motor, from point 0.49 to point 0.494,
    and 3 points on the 'ms2r' motor, from point 0.488 to point 0.49, without snaking,
    with the 'ms2l' axis changing the slowest.

%[1]s ms2r 0.488 0.49 3 ms2l 0.49 0.494 3 0.1 -s
    The same with the axes swapped, snaking, and a per-point exposure time of 0.1 seconds.`,
			c.Info.UserName))
	AddHDFOptions(p, c.template)
	AddAfterOptions(p)
	for _, axis := range []string{"first", "second"} {
		p.AddPositional(&argparse.Positional{Name: axis + "_motor", Nargs: argparse.ListOfOne,
			Help: "Mnemonic of the motor on the " + axis + " slowest axis."})
		p.AddPositional(&argparse.Positional{Name: axis + "_start", Kind: argparse.Float,
			Help: "Start position of the " + axis + " motor."})
		p.AddPositional(&argparse.Positional{Name: axis + "_stop", Kind: argparse.Float,
			Help: "End position of the " + axis + " motor."})
		p.AddPositional(&argparse.Positional{Name: axis + "_num", Kind: argparse.Int,
			Help: "Number of points of the " + axis + " motor."})
	}
	p.AddPositional(&argparse.Positional{Name: "exposure_time", Kind: argparse.Float, Nargs: argparse.Optional,
		Help: "Per-point exposure time of the detector. Defaults to the exposure time set on the IOC."})
	p.AddOption(&argparse.Option{Short: 's', Long: "snake", Kind: argparse.Bool,
		Help: "Whether to snake axes or not. The default behavior is to not snake."})
	return p
}

func (c gridCLI) Item(ns *argparse.Namespace) (plan.Item, error) {
	var args []any
	var motors []string
	for _, axis := range []string{"first", "second"} {
		motor := ns.String(axis + "_motor")
		start, _ := ns.Float(axis + "_start")
		stop, _ := ns.Float(axis + "_stop")
		num, _ := ns.Int(axis + "_num")
		args = append(args, motor, start, stop, num)
		motors = append(motors, motor)
	}
	dets := c.Detectors(ns)
	md, err := plan.ParseMD(ns, append(dets, motors...)...)
	if err != nil {
		return plan.Item{}, err
	}
	kwargs := scanKwargs(ns, md, c.template)
	kwargs["exposure_time"] = ns.Value("exposure_time")
	kwargs["snake_axes"] = ns.Bool("snake")
	if !c.jitter {
		kwargs["absolute"] = c.absolute
	}
	return plan.Item{Name: c.Info.PlanName, Args: append([]any{dets}, args...), Kwargs: kwargs}, nil
}

// Behaviors of mov.
const (
	MovPosition = "position"
	MovMax      = "max"
	MovMin      = "min"
	MovCen      = "cen"
)

// NewMov creates the CLI of mov, which moves motors to given positions or
// to a statistic of the last scan.
func NewMov(info *plan.Information) plan.CLI { return movCLI{plan.Base{Info: info}} }

type movCLI struct{ plan.Base }

func (c movCLI) Parser() *argparse.Parser {
	p := c.NewParser(
		"%(prog)s motor position [motor position ...] | %(prog)s motor [motor ...] (--max | --min | --cen) [--before_plan_target NAME]",
		`A simple 'mov' plan: move motors to absolute positions, all at the same time.

With --max, --min or --cen, move the motors instead to where the last scan
found the maximum, the minimum or the center of mass of a field.

Example usages:

mov ms2r 0.488
    Move the 'ms2r' motor to position 0.488.

mov ms2r wst --max --before_plan_target det
    Move 'ms2r' and 'wst' to the point of the last scan where 'det' read the most.`)
	p.AddPositional(&argparse.Positional{Name: "args", Nargs: argparse.OneOrMore,
		Help: "Motor mnemonics with positions, or only motor mnemonics with --max, --min or --cen."})
	p.AddOption(&argparse.Option{Long: "max", Kind: argparse.Bool, Help: "Move to the maximum of the last scan."})
	p.AddOption(&argparse.Option{Long: "min", Kind: argparse.Bool, Help: "Move to the minimum of the last scan."})
	p.AddOption(&argparse.Option{Long: "cen", Kind: argparse.Bool, Help: "Move to the center of mass of the last scan."})
	p.AddOption(&argparse.Option{Long: "before_plan_target", Metavar: "NAME",
		Help: "Field of the last scan to take the statistic of. Defaults to --plan_target."})
	return p
}

func (c movCLI) Item(ns *argparse.Namespace) (plan.Item, error) {
	var behavior string
	for _, b := range []string{MovMax, MovMin, MovCen} {
		if ns.Bool(b) {
			if behavior != "" {
				return plan.Item{}, fmt.Errorf("--%s and --%s cannot be used together", behavior, b)
			}
			behavior = b
		}
	}
	words := ns.Strings("args")
	if behavior == "" {
		args, motors, err := plan.ParseMotorPositions(words)
		if err != nil {
			return plan.Item{}, err
		}
		md, err := plan.ParseMD(ns, motors...)
		if err != nil {
			return plan.Item{}, err
		}
		return plan.Item{Name: c.Info.PlanName, Args: args, Kwargs: map[string]any{
			"before_plan_target": nil, "behavior": MovPosition, "run_index": 0, "md": md}}, nil
	}

	target := ns.String("before_plan_target")
	if target == "" {
		target = ns.String("plan_target")
	}
	if target == "" {
		return plan.Item{}, fmt.Errorf("--%s needs a field: use --before_plan_target", behavior)
	}
	args := make([]any, len(words))
	for i, w := range words {
		if _, err := argparse.Convert(argparse.Float, w); err == nil {
			return plan.Item{}, fmt.Errorf("expected a motor name, got %q", w)
		}
		args[i] = w
	}
	md, err := plan.ParseMD(ns, words...)
	if err != nil {
		return plan.Item{}, err
	}
	return plan.Item{Name: c.Info.PlanName, Args: args, Kwargs: map[string]any{
		"before_plan_target": target, "behavior": behavior, "run_index": -1, "md": md}}, nil
}

// NewMotorOrigin creates the CLI of motor_origin, which redefines the zero
// of a motor.
func NewMotorOrigin(info *plan.Information) plan.CLI { return motorOriginCLI{plan.Base{Info: info}} }

type motorOriginCLI struct{ plan.Base }

func (c motorOriginCLI) Parser() *argparse.Parser {
	p := c.NewParser("%(prog)s motor [position] [--md key=value key=value ...]",
		"Set the origin of a motor, so that the given position becomes zero.")
	p.AddPositional(&argparse.Positional{Name: "motor", Nargs: argparse.ListOfOne,
		Help: "Mnemonic of a motor to set the origin of."})
	p.AddPositional(&argparse.Positional{Name: "position", Kind: argparse.Float, Nargs: argparse.Optional,
		Help: "Position of the motor to set as origin. Default: current position."})
	return p
}

func (c motorOriginCLI) Item(ns *argparse.Namespace) (plan.Item, error) {
	motor := ns.String("motor")
	md, err := plan.ParseMD(ns, motor)
	if err != nil {
		return plan.Item{}, err
	}
	return plan.Item{Name: c.Info.PlanName, Args: []any{motor, ns.Value("position")},
		Kwargs: map[string]any{"md": md}}, nil
}
