package getopt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var (
	detectors  = &OptionSpec{'d', "detectors", ManyArguments}
	md         = &OptionSpec{0, "md", ManyArguments}
	planTarget = &OptionSpec{0, "plan_target", RequiredArgument}
	snake      = &OptionSpec{'s', "snake", NoArgument}
	help       = &OptionSpec{'h', "help", NoArgument}
	verbose    = &OptionSpec{'v', "", OptionalArgument}
	specs      = []*OptionSpec{detectors, md, planTarget, snake, help, verbose}
)

var parseTests = []struct {
	name        string
	args        []string
	wantOpts    []*Option
	wantNonOpts []string
	wantErr     string
}{
	{
		name:        "negative numbers are arguments",
		args:        []string{"sim", "-1", "1", "-0.5", "10"},
		wantNonOpts: []string{"sim", "-1", "1", "-0.5", "10"},
	},
	{
		name: "many-argument option stops at next option",
		args: []string{"sim", "-1", "1", "10", "-d", "abc1", "abc2", "--plan_target", "abc2"},
		wantOpts: []*Option{
			{Spec: detectors, Argument: "abc1", Arguments: []string{"abc1", "abc2"}},
			{Spec: planTarget, Long: true, Argument: "abc2"},
		},
		wantNonOpts: []string{"sim", "-1", "1", "10"},
	},
	{
		name: "many-argument option takes negative numbers",
		args: []string{"--md", "A=1", "-2", "-s"},
		wantOpts: []*Option{
			{Spec: md, Long: true, Argument: "A=1", Arguments: []string{"A=1", "-2"}},
			{Spec: snake},
		},
	},
	{
		name: "repeated many-argument option",
		args: []string{"--md", "A=1", "--md", "B=2"},
		wantOpts: []*Option{
			{Spec: md, Long: true, Argument: "A=1", Arguments: []string{"A=1"}},
			{Spec: md, Long: true, Argument: "B=2", Arguments: []string{"B=2"}},
		},
	},
	{
		name: "attached arguments",
		args: []string{"-dabc1", "abc2", "--plan_target=abc3", "-vx"},
		wantOpts: []*Option{
			{Spec: detectors, Argument: "abc1", Arguments: []string{"abc1", "abc2"}},
			{Spec: planTarget, Long: true, Argument: "abc3"},
			{Spec: verbose, Argument: "x"},
		},
	},
	{
		name: "chained short options",
		args: []string{"-sh"},
		wantOpts: []*Option{
			{Spec: snake},
			{Spec: help},
		},
	},
	{
		name:        "double dash stops option parsing",
		args:        []string{"-s", "--", "-d", "--md"},
		wantOpts:    []*Option{{Spec: snake}},
		wantNonOpts: []string{"-d", "--md"},
	},
	{
		name:     "missing argument",
		args:     []string{"--plan_target"},
		wantOpts: nil,
		wantErr:  "missing argument for --plan_target",
	},
	{
		name: "many-argument option without arguments",
		args: []string{"-d", "-s"},
		wantOpts: []*Option{
			{Spec: detectors},
			{Spec: snake},
		},
		wantErr: "expected at least one argument for -d",
	},
	{
		name: "unknown options",
		args: []string{"--bogus", "-x"},
		wantOpts: []*Option{
			{Spec: &OptionSpec{0, "bogus", OptionalArgument}, Unknown: true, Long: true},
			{Spec: &OptionSpec{'x', "", OptionalArgument}, Unknown: true},
		},
		wantErr: "multiple errors: unknown option --bogus; unknown option -x",
	},
}

func TestParse(t *testing.T) {
	for _, test := range parseTests {
		t.Run(test.name, func(t *testing.T) {
			opts, nonOpts, err := Parse(test.args, specs, ArgParse)
			if diff := cmp.Diff(test.wantOpts, opts); diff != "" {
				t.Errorf("opts (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(test.wantNonOpts, nonOpts); diff != "" {
				t.Errorf("non-option args (-want +got):\n%s", diff)
			}
			errString := ""
			if err != nil {
				errString = err.Error()
			}
			if errString != test.wantErr {
				t.Errorf("got error %q, want %q", errString, test.wantErr)
			}
		})
	}
}

func TestComplete(t *testing.T) {
	_, _, ctx := Complete([]string{"sim", "--plan"}, specs, ArgParse)
	if ctx.Type != LongOption || ctx.Text != "plan" {
		t.Errorf("got %v, want long option 'plan'", ctx)
	}

	_, _, ctx = Complete([]string{"-d", "abc1", "ab"}, specs, ArgParse)
	if ctx.Type != OptionArgument || ctx.Option.Spec != detectors || ctx.Option.Argument != "ab" {
		t.Errorf("got %+v, want argument of -d", ctx)
	}

	_, _, ctx = Complete([]string{"sim", "-1"}, specs, ArgParse)
	if ctx.Type != Argument || ctx.Text != "-1" {
		t.Errorf("got %+v, want argument -1", ctx)
	}

	opts, _, ctx := Complete([]string{"-s"}, specs, ArgParse)
	if ctx.Type != ChainShortOption || len(opts) != 1 {
		t.Errorf("got %+v (opts %v), want chain", ctx, opts)
	}

	_, _, ctx = Complete([]string{""}, specs, ArgParse)
	if ctx.Type != OptionOrArgument {
		t.Errorf("got %+v, want option or argument", ctx)
	}
}
