// Package argparse turns the words of a command into typed values.
//
// A Parser has options, tokenized by the getopt package, and positional
// arguments that are matched greedily from left to right. Words enclosed in
// brackets, like "[1, 2," "3]", are regrouped into a single list literal
// before anything else happens.
package argparse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sophys.sh/cli/pkg/errutil"
	"sophys.sh/cli/pkg/getopt"
)

// ErrHelp is returned by Parse when -h or --help was given.
var ErrHelp = errors.New("help requested")

// Kind is the type a word is converted to.
type Kind int

const (
	String Kind = iota
	Float
	Int
	Bool
	// A literal: number, quoted string, bracketed list or bare word.
	Literal
)

func (k Kind) String() string {
	switch k {
	case String:
		return "str"
	case Float:
		return "float"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Literal:
		return "literal"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Nargs says how many words an argument consumes.
type Nargs int

const (
	// Exactly one word; the value is a scalar.
	One Nargs = iota
	// Zero or one word; the value is a scalar or the default.
	Optional
	// One or more words; the value is a slice.
	OneOrMore
	// Zero or more words; the value is a slice.
	ZeroOrMore
	// Exactly one word, stored as a one-element slice.
	ListOfOne
)

// Option describes an option argument.
type Option struct {
	Short rune
	Long  string
	// Name of the value in the Namespace. Defaults to Long.
	Dest string
	Kind Kind
	// One and OneOrMore are supported. Bool options take no words.
	Nargs Nargs
	// When set, repeated occurrences accumulate instead of overriding.
	Append   bool
	Default  any
	Required bool
	Metavar  string
	Help     string
	// Hidden options are accepted but left out of the help.
	Hidden bool
}

func (o *Option) dest() string {
	if o.Dest != "" {
		return o.Dest
	}
	if o.Long != "" {
		return o.Long
	}
	return string(o.Short)
}

func (o *Option) display() string {
	var parts []string
	if o.Short != 0 {
		parts = append(parts, "-"+string(o.Short))
	}
	if o.Long != "" {
		parts = append(parts, "--"+o.Long)
	}
	return strings.Join(parts, "/")
}

// Positional describes a positional argument.
type Positional struct {
	Name    string
	Kind    Kind
	Nargs   Nargs
	Default any
	Help    string
}

func (p *Positional) min() int {
	switch p.Nargs {
	case Optional, ZeroOrMore:
		return 0
	}
	return 1
}

// Parser parses the words of one command.
type Parser struct {
	Prog        string
	Usage       string
	Description string

	options     []*Option
	positionals []*Positional
}

// New creates a Parser with the -h/--help option.
func New(prog, usage, description string) *Parser {
	p := &Parser{Prog: prog, Usage: usage, Description: description}
	p.AddOption(&Option{Short: 'h', Long: "help", Kind: Bool,
		Help: "show this help message and exit"})
	return p
}

// AddOption adds an option. It panics if the option collides with an
// existing one, since that is a programming error.
func (p *Parser) AddOption(o *Option) {
	for _, existing := range p.options {
		if (o.Short != 0 && o.Short == existing.Short) || (o.Long != "" && o.Long == existing.Long) {
			panic(fmt.Sprintf("argparse: conflicting option %s", o.display()))
		}
	}
	p.options = append(p.options, o)
}

// AddPositional adds a positional argument.
func (p *Parser) AddPositional(a *Positional) {
	p.positionals = append(p.positionals, a)
}

// Parse parses the words of a command, excluding the command name itself.
func (p *Parser) Parse(args []string) (*Namespace, error) {
	args, err := GroupBrackets(args)
	if err != nil {
		return nil, err
	}

	specs := make([]*getopt.OptionSpec, len(p.options))
	bySpec := make(map[*getopt.OptionSpec]*Option, len(p.options))
	for i, o := range p.options {
		arity := getopt.RequiredArgument
		switch {
		case o.Kind == Bool:
			arity = getopt.NoArgument
		case o.Nargs == OneOrMore || o.Nargs == ZeroOrMore:
			arity = getopt.ManyArguments
		}
		specs[i] = &getopt.OptionSpec{Short: o.Short, Long: o.Long, Arity: arity}
		bySpec[specs[i]] = o
	}
	opts, words, err := getopt.Parse(args, specs, getopt.ArgParse)
	for _, opt := range opts {
		if o := bySpec[opt.Spec]; o != nil && o.Long == "help" {
			return nil, ErrHelp
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Prog, err)
	}

	ns := &Namespace{values: make(map[string]any)}
	for _, o := range p.options {
		ns.values[o.dest()] = defaultFor(o.Kind, o.Default)
	}
	seen := make(map[*Option]bool)
	var errs error
	for _, opt := range opts {
		o := bySpec[opt.Spec]
		again := seen[o]
		seen[o] = true
		if o.Kind == Bool {
			ns.values[o.dest()] = true
			continue
		}
		words := opt.Arguments
		if o.Nargs != OneOrMore && o.Nargs != ZeroOrMore {
			words = []string{opt.Argument}
		}
		vals, err := convertAll(o.Kind, words)
		if err != nil {
			errs = errutil.Multi(errs, fmt.Errorf("argument %s: %w", o.display(), err))
			continue
		}
		switch {
		case o.Nargs == OneOrMore || o.Nargs == ZeroOrMore:
			if prev, ok := ns.values[o.dest()].([]any); ok && o.Append && again {
				vals = append(prev, vals...)
			}
			ns.values[o.dest()] = vals
		default:
			ns.values[o.dest()] = vals[0]
		}
	}
	for _, o := range p.options {
		if o.Required && !seen[o] {
			errs = errutil.Multi(errs, fmt.Errorf("the following arguments are required: %s", o.display()))
		}
	}

	if err := p.assignPositionals(ns, words); err != nil {
		errs = errutil.Multi(errs, err)
	}
	if errs != nil {
		return nil, fmt.Errorf("%s: %w", p.Prog, errs)
	}
	return ns, nil
}

// Assigns words to positional arguments from left to right. Each positional
// takes as many words as it can while leaving enough for the minimum needs of
// the ones after it.
func (p *Parser) assignPositionals(ns *Namespace, words []string) error {
	minAfter := make([]int, len(p.positionals)+1)
	for i := len(p.positionals) - 1; i >= 0; i-- {
		minAfter[i] = minAfter[i+1] + p.positionals[i].min()
	}
	var missing []string
	var errs error
	for i, pos := range p.positionals {
		avail := max(len(words)-minAfter[i+1], 0)
		take := 0
		switch pos.Nargs {
		case One, ListOfOne:
			take = 1
		case Optional:
			take = min(1, avail)
		case OneOrMore:
			take = max(avail, 1)
		case ZeroOrMore:
			take = avail
		}
		if take > len(words) {
			missing = append(missing, pos.Name)
			ns.values[pos.Name] = defaultFor(pos.Kind, pos.Default)
			continue
		}
		taken := words[:take]
		words = words[take:]
		if len(taken) == 0 {
			ns.values[pos.Name] = defaultFor(pos.Kind, pos.Default)
			continue
		}
		vals, err := convertAll(pos.Kind, taken)
		if err != nil {
			errs = errutil.Multi(errs, fmt.Errorf("argument %s: %w", pos.Name, err))
			continue
		}
		switch pos.Nargs {
		case One, Optional:
			ns.values[pos.Name] = vals[0]
		default:
			ns.values[pos.Name] = vals
		}
	}
	if len(missing) > 0 {
		errs = errutil.Multi(errs, fmt.Errorf("the following arguments are required: %s", strings.Join(missing, ", ")))
	}
	if len(words) > 0 {
		errs = errutil.Multi(errs, fmt.Errorf("unrecognized arguments: %s", strings.Join(words, " ")))
	}
	return errs
}

func defaultFor(k Kind, def any) any {
	if def != nil {
		return def
	}
	if k == Bool {
		return false
	}
	return nil
}

func convertAll(k Kind, words []string) ([]any, error) {
	vals := make([]any, len(words))
	for i, w := range words {
		v, err := Convert(k, w)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// Convert converts a single word to the given kind.
func Convert(k Kind, word string) (any, error) {
	switch k {
	case Float:
		f, err := strconv.ParseFloat(word, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float value: '%s'", word)
		}
		return f, nil
	case Int:
		i, err := strconv.Atoi(word)
		if err != nil {
			return nil, fmt.Errorf("invalid int value: '%s'", word)
		}
		return i, nil
	case Literal:
		return ParseLiteral(word)
	case Bool:
		b, err := strconv.ParseBool(word)
		if err != nil {
			return nil, fmt.Errorf("invalid bool value: '%s'", word)
		}
		return b, nil
	default:
		return word, nil
	}
}

// Namespace holds the values produced by Parse.
type Namespace struct {
	values map[string]any
}

// NewNamespace builds a Namespace from a map, mostly for tests.
func NewNamespace(values map[string]any) *Namespace {
	return &Namespace{values: values}
}

// Value returns the raw value of name, or nil.
func (ns *Namespace) Value(name string) any { return ns.values[name] }

// Set overrides the value of name.
func (ns *Namespace) Set(name string, v any) { ns.values[name] = v }

// Bool returns a boolean value; unset is false.
func (ns *Namespace) Bool(name string) bool {
	b, _ := ns.values[name].(bool)
	return b
}

// String returns a string value; unset is "".
func (ns *Namespace) String(name string) string {
	switch v := ns.values[name].(type) {
	case string:
		return v
	case []any:
		if len(v) > 0 {
			s, _ := v[0].(string)
			return s
		}
	}
	return ""
}

// Strings returns a list of words; a scalar is wrapped in a one-element
// slice and unset is nil.
func (ns *Namespace) Strings(name string) []string {
	switch v := ns.values[name].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			out = append(out, fmt.Sprint(x))
		}
		return out
	case []string:
		return v
	}
	return nil
}

// Values returns a list value; unset is nil.
func (ns *Namespace) Values(name string) []any {
	switch v := ns.values[name].(type) {
	case []any:
		return v
	case nil:
		return nil
	default:
		return []any{v}
	}
}

// Float returns an optional float value.
func (ns *Namespace) Float(name string) (float64, bool) {
	switch v := ns.values[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Int returns an optional int value.
func (ns *Namespace) Int(name string) (int, bool) {
	v, ok := ns.values[name].(int)
	return v, ok
}
