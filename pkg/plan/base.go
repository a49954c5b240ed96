package plan

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"sophys.sh/cli/pkg/argparse"
)

// Now returns the current time. Tests replace it to get stable file names.
var Now = time.Now

// Strftime formats the current time with a strftime template, like
// "ascan_%H_%M_%S".
func Strftime(template string) string {
	return strftime.Format(template, Now())
}

// Base holds what all plan CLIs share. Concrete CLIs embed it.
type Base struct {
	Info *Information
}

// NewParser returns a parser named after the command, with the options
// every plan takes: the detectors (for plans that take them), metadata and
// the main counter.
func (b Base) NewParser(usage, description string) *argparse.Parser {
	p := argparse.New(b.Info.UserName, usage, description)
	if b.Info.HasDetectors() {
		p.AddOption(&argparse.Option{
			Short: 'd', Long: "detectors", Nargs: argparse.OneOrMore, Metavar: "DETECTOR",
			Help: "Detectors to read at each point of the plan."})
	}
	p.AddOption(&argparse.Option{
		Long: "md", Nargs: argparse.OneOrMore, Append: true, Metavar: "KEY=VALUE",
		Help: "Metadata to attach to the run. May be given more than once."})
	p.AddOption(&argparse.Option{
		Long: "plan_target", Metavar: "NAME",
		Help: "Main counter of the plan, used for statistics and post-plan moves."})
	return p
}

// Detectors returns the detectors given with -d. It never returns nil, so
// that the item has an empty list rather than a null.
func (b Base) Detectors(ns *argparse.Namespace) []string {
	dets := ns.Strings("detectors")
	if dets == nil {
		return []string{}
	}
	return dets
}

// ParseMD builds the metadata of a run from the --md words. The mnemonics
// of the devices involved are recorded under MNEMONICS, comma-separated.
func ParseMD(ns *argparse.Namespace, mnemonics ...string) (map[string]any, error) {
	md := map[string]any{}
	for _, kv := range ns.Strings("md") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q: expected KEY=VALUE", kv)
		}
		md[k] = v
	}
	if len(mnemonics) > 0 {
		var seen []string
		for _, m := range mnemonics {
			if !slices.Contains(seen, m) {
				seen = append(seen, m)
			}
		}
		md["MNEMONICS"] = strings.Join(seen, ",")
	}
	return md, nil
}

// ParseMotorRanges parses "motor start stop [motor start stop ...]",
// optionally followed by the number of points. It returns the motor groups
// with the positions converted to numbers, the number of points, and the
// motor names.
func ParseMotorRanges(words []string, withNum bool) (args []any, num int, motors []string, err error) {
	if withNum {
		if len(words) == 0 {
			return nil, 0, nil, fmt.Errorf("missing number of points")
		}
		last := words[len(words)-1]
		num, err = strconv.Atoi(last)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("invalid number of points %q", last)
		}
		words = words[:len(words)-1]
	}
	args, motors, err = parseGroups(words, "motor start stop")
	return args, num, motors, err
}

// ParseMotorPositions parses "motor position [motor position ...]".
func ParseMotorPositions(words []string) (args []any, motors []string, err error) {
	return parseGroups(words, "motor position")
}

// ParseMotorGrid parses "motor start stop num [motor start stop num ...]".
func ParseMotorGrid(words []string) (args []any, motors []string, err error) {
	return parseGroups(words, "motor start stop num")
}

// Parses groups of words following a layout like "motor start stop num".
// The word "motor" marks a name, "num" an integer, and anything else a
// number.
func parseGroups(words []string, layout string) ([]any, []string, error) {
	fields := strings.Fields(layout)
	if len(words) == 0 || len(words)%len(fields) != 0 {
		return nil, nil, fmt.Errorf("expected groups of %q, got %d words", layout, len(words))
	}
	args := make([]any, 0, len(words))
	var motors []string
	for i, w := range words {
		switch field := fields[i%len(fields)]; field {
		case "motor":
			if _, err := strconv.ParseFloat(w, 64); err == nil {
				return nil, nil, fmt.Errorf("expected a motor name, got %q", w)
			}
			motors = append(motors, w)
			args = append(args, w)
		case "num":
			n, err := strconv.Atoi(w)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid %s %q for motor %s", field, w, motors[len(motors)-1])
			}
			args = append(args, n)
		default:
			f, err := strconv.ParseFloat(w, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("invalid %s %q for motor %s", field, w, motors[len(motors)-1])
			}
			args = append(args, f)
		}
	}
	return args, motors, nil
}
