// Package getopt implements a command-line argument tokenizer.
//
// It separates options from non-option arguments the way beamline users are
// used to from the plan command lines of the queue server. Short options start
// with "-" and long options with "--". An option may consume one or many of
// the following arguments, and arguments that look like negative numbers are
// never mistaken for options.
//
// It also provides context information when given a partial input, which the
// line editor uses for completion.
package getopt

import (
	"fmt"
	"strconv"
	"strings"

	"sophys.sh/cli/pkg/errutil"
)

// Config configures the parsing behavior.
type Config uint

const (
	// Stop parsing options after "--".
	StopAfterDoubleDash Config = 1 << iota
	// Stop parsing options before the first non-option argument.
	StopBeforeFirstNonOption

	// Config to replicate the behavior of argparse.
	ArgParse = StopAfterDoubleDash
)

// Tests whether a configuration has all specified flags set.
func (c Config) has(bits Config) bool { return c&bits == bits }

// OptionSpec is a command-line option.
type OptionSpec struct {
	// Short option. Set to 0 for long-only.
	Short rune
	// Long option. Set to "" for short-only.
	Long string
	// How many arguments the option takes.
	Arity Arity
}

// Arity indicates how many arguments an option takes.
type Arity uint

const (
	// The option takes no argument.
	NoArgument Arity = iota
	// The option requires an argument. The argument can come either directly
	// after a short option (-oarg), after a long option followed by an equal
	// sign (--long=arg), or as a separate argument after the option (-o arg,
	// --long arg).
	RequiredArgument
	// The option takes an optional argument. The argument can come either
	// directly after a short option (-oarg) or after a long option followed by
	// an equal sign (--long=arg).
	OptionalArgument
	// The option takes one or more arguments. It consumes all following
	// arguments up to the next option, "--" or the end of input.
	ManyArguments
)

func (a Arity) String() string {
	switch a {
	case NoArgument:
		return "NoArgument"
	case RequiredArgument:
		return "RequiredArgument"
	case OptionalArgument:
		return "OptionalArgument"
	case ManyArguments:
		return "ManyArguments"
	default:
		return "Arity(" + strconv.Itoa(int(a)) + ")"
	}
}

// Option represents a parsed option.
type Option struct {
	Spec    *OptionSpec
	Unknown bool
	Long    bool
	// The argument of the option. For options with ManyArguments, the first
	// argument.
	Argument string
	// All arguments of an option with ManyArguments.
	Arguments []string
}

// Context describes the context of the last argument.
type Context struct {
	// The nature of the context.
	Type ContextType
	// Current option, with a likely incomplete Argument. Non-nil when Type is
	// OptionArgument.
	Option *Option
	// Current partial long option name or argument. Non-empty when Type is
	// LongOption or Argument.
	Text string
}

// ContextType encodes how the last argument can be completed.
type ContextType uint

const (
	// OptionOrArgument indicates that the last element may be either a new
	// option or a new argument. Returned when it is an empty string.
	OptionOrArgument ContextType = iota
	// AnyOption indicates that the last element must be new option, short or
	// long. Returned when it is "-".
	AnyOption
	// LongOption indicates that the last element is a long option (but not its
	// argument). The partial name of the long option is stored in Context.Text.
	LongOption
	// ChainShortOption indicates that a new short option may be chained.
	// Returned when the last element consists of a chain of options that take
	// no arguments.
	ChainShortOption
	// OptionArgument indicates that the last element list must be an argument
	// to an option. The option in question is stored in Context.Option.
	OptionArgument
	// Argument indicates that the last element is a non-option argument. The
	// partial argument is stored in Context.Text.
	Argument
)

// Parse parses an argument list. It returns the parsed options, the non-option
// arguments, and any error.
func Parse(args []string, specs []*OptionSpec, cfg Config) ([]*Option, []string, error) {
	p := parse(args, specs, cfg)
	var err error
	if p.pending != nil {
		err = fmt.Errorf("missing argument for %s", optionPart(p.pending))
	}
	for _, opt := range p.opts {
		if opt.Unknown {
			err = errutil.Multi(err, fmt.Errorf("unknown option %s", optionPart(opt)))
		} else if opt.Spec.Arity == ManyArguments && len(opt.Arguments) == 0 {
			err = errutil.Multi(err, fmt.Errorf("expected at least one argument for %s", optionPart(opt)))
		}
	}
	return p.opts, p.nonOptArgs, err
}

func optionPart(opt *Option) string {
	if opt.Long {
		return "--" + opt.Spec.Long
	}
	return "-" + string(opt.Spec.Short)
}

// Complete parses an argument list for completion. It returns the parsed
// options, the non-option arguments, and the context of the last argument. It
// tolerates unknown options, assuming that they take optional arguments.
func Complete(args []string, specs []*OptionSpec, cfg Config) ([]*Option, []string, Context) {
	p := parse(args[:len(args)-1], specs, cfg)
	opts, nonOptArgs := p.opts, p.nonOptArgs

	arg := args[len(args)-1]
	var ctx Context
	switch {
	case p.pending != nil:
		p.pending.Argument = arg
		ctx = Context{Type: OptionArgument, Option: p.pending}
	case p.stopOpt:
		ctx = Context{Type: Argument, Text: arg}
	case arg == "":
		if p.many != nil {
			ctx = Context{Type: OptionArgument, Option: p.many}
		} else {
			ctx = Context{Type: OptionOrArgument}
		}
	case arg == "-":
		ctx = Context{Type: AnyOption}
	case isNumber(arg):
		ctx = Context{Type: Argument, Text: arg}
	case strings.HasPrefix(arg, "--"):
		if !strings.ContainsRune(arg, '=') {
			ctx = Context{Type: LongOption, Text: arg[2:]}
		} else {
			newopt, _ := parseLong(arg[2:], specs)
			ctx = Context{Type: OptionArgument, Option: newopt}
		}
	case strings.HasPrefix(arg, "-"):
		newopts, _ := parseShort(arg[1:], specs)
		if newopts[len(newopts)-1].Spec.Arity == NoArgument {
			opts = append(opts, newopts...)
			ctx = Context{Type: ChainShortOption}
		} else {
			opts = append(opts, newopts[:len(newopts)-1]...)
			ctx = Context{Type: OptionArgument, Option: newopts[len(newopts)-1]}
		}
	case p.many != nil:
		ctx = Context{Type: OptionArgument, Option: p.many}
		ctx.Option.Argument = arg
	default:
		ctx = Context{Type: Argument, Text: arg}
	}
	return opts, nonOptArgs, ctx
}

type parseResult struct {
	opts       []*Option
	nonOptArgs []string
	// Non-nil only when the last argument was an option with required
	// argument, but the argument has not been seen.
	pending *Option
	// Non-nil while an option with ManyArguments is collecting arguments.
	many *Option
	// Whether option parsing has been stopped. The condition is controlled
	// by the StopAfterDoubleDash and StopBeforeFirstNonOption bits in cfg.
	stopOpt bool
}

func parse(args []string, spec []*OptionSpec, cfg Config) *parseResult {
	p := &parseResult{}
	add := func(opt *Option, needArg bool) {
		if needArg {
			p.pending = opt
			return
		}
		p.opts = append(p.opts, opt)
		if opt.Spec.Arity == ManyArguments {
			if opt.Argument != "" {
				opt.Arguments = []string{opt.Argument}
			}
			p.many = opt
		}
	}
	for _, arg := range args {
		switch {
		case p.pending != nil:
			p.pending.Argument = arg
			p.opts = append(p.opts, p.pending)
			p.pending = nil
		case p.stopOpt:
			p.nonOptArgs = append(p.nonOptArgs, arg)
		case cfg.has(StopAfterDoubleDash) && arg == "--":
			p.many = nil
			p.stopOpt = true
		case strings.HasPrefix(arg, "--") && arg != "--":
			p.many = nil
			add(parseLong(arg[2:], spec))
		case strings.HasPrefix(arg, "-") && arg != "--" && arg != "-" && !isNumber(arg):
			p.many = nil
			newopts, needArg := parseShort(arg[1:], spec)
			p.opts = append(p.opts, newopts[:len(newopts)-1]...)
			add(newopts[len(newopts)-1], needArg)
		case p.many != nil:
			if len(p.many.Arguments) == 0 {
				p.many.Argument = arg
			}
			p.many.Arguments = append(p.many.Arguments, arg)
		default:
			p.nonOptArgs = append(p.nonOptArgs, arg)
			if cfg.has(StopBeforeFirstNonOption) {
				p.stopOpt = true
			}
		}
	}
	return p
}

// Parses short options, without the leading dash. Returns the parsed options
// and whether an argument is still to be seen.
func parseShort(s string, specs []*OptionSpec) ([]*Option, bool) {
	var opts []*Option
	var needArg bool
	for i, r := range s {
		opt := findShort(r, specs)
		if opt != nil {
			if opt.Arity == NoArgument {
				opts = append(opts, &Option{Spec: opt})
				continue
			} else {
				parsed := &Option{Spec: opt, Argument: s[i+len(string(r)):]}
				opts = append(opts, parsed)
				needArg = parsed.Argument == "" && opt.Arity == RequiredArgument
				break
			}
		}
		// Unknown option, treat as taking an optional argument
		parsed := &Option{
			Spec: &OptionSpec{r, "", OptionalArgument}, Unknown: true,
			Argument: s[i+len(string(r)):]}
		opts = append(opts, parsed)
		break
	}
	return opts, needArg
}

func findShort(r rune, specs []*OptionSpec) *OptionSpec {
	for _, opt := range specs {
		if r == opt.Short {
			return opt
		}
	}
	return nil
}

// Parses a long option, without the leading dashes. Returns the parsed option
// and whether an argument is still to be seen.
func parseLong(s string, specs []*OptionSpec) (*Option, bool) {
	eq := strings.IndexRune(s, '=')
	for _, opt := range specs {
		if s == opt.Long {
			return &Option{Spec: opt, Long: true}, opt.Arity == RequiredArgument
		} else if eq != -1 && s[:eq] == opt.Long {
			return &Option{Spec: opt, Long: true, Argument: s[eq+1:]}, false
		}
	}
	// Unknown option, treat as taking an optional argument
	if eq == -1 {
		return &Option{
			Spec: &OptionSpec{0, s, OptionalArgument}, Unknown: true, Long: true}, false
	}
	return &Option{
		Spec: &OptionSpec{0, s[:eq], OptionalArgument}, Unknown: true,
		Long: true, Argument: s[eq+1:]}, false
}

// Reports whether s parses as a number, like "-1", "-0.5" or "-1e-3".
func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
