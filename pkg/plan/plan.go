// Package plan turns command lines into plan items.
//
// A plan is a scan or motion procedure that lives elsewhere: in the queue
// server's environment for remote execution, or in the runengine/plans
// registry for local execution. This package knows only how to build the
// arguments of a plan call from what a user typed, through a CLI per plan.
package plan

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"sophys.sh/cli/pkg/argparse"
)

// Mode is the mode of operation of plan commands.
type Mode int

const (
	// Run plans in-process against simulated devices.
	Local Mode = iota
	// Send plans to the queue server.
	Remote
	// Only record the item that would be run, for tests.
	Test
)

func (m Mode) String() string {
	switch m {
	case Local:
		return "local"
	case Remote:
		return "remote"
	case Test:
		return "test"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Item is a plan call: the name of a plan with its positional and keyword
// arguments. Its JSON form is the one the queue server accepts.
type Item struct {
	Name   string         `json:"name"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}

// Kwarg returns a keyword argument, or nil.
func (it Item) Kwarg(name string) any { return it.Kwargs[name] }

// CLI builds items for one plan.
type CLI interface {
	// Parser returns a fresh parser for the arguments of the plan.
	Parser() *argparse.Parser
	// Item builds the plan call from parsed arguments.
	Item(ns *argparse.Namespace) (Item, error)
}

// Factory creates the CLI of a plan.
type Factory func(info *Information) CLI

// Information describes a plan available as a command.
type Information struct {
	// Name of the command users type.
	UserName string
	// Name of the plan called.
	PlanName string
	New      Factory
	// Set for plans that take no detectors, like motions. The input
	// processor does not inject detectors into their command lines.
	NoDetectors bool
}

// HasDetectors reports whether the plan takes detectors.
func (info *Information) HasDetectors() bool { return !info.NoDetectors }

// Whitelist is an ordered set of plans available as commands.
type Whitelist []*Information

// ByUserName finds a plan by the name of its command.
func (wl Whitelist) ByUserName(name string) *Information {
	i := slices.IndexFunc(wl, func(info *Information) bool { return info.UserName == name })
	if i == -1 {
		return nil
	}
	return wl[i]
}

// ByPlanName finds all plans calling the named plan.
func (wl Whitelist) ByPlanName(name string) []*Information {
	var infos []*Information
	for _, info := range wl {
		if info.PlanName == name {
			infos = append(infos, info)
		}
	}
	return infos
}

// UserNames returns the names of all commands, in order.
func (wl Whitelist) UserNames() []string {
	names := make([]string, len(wl))
	for i, info := range wl {
		names[i] = info.UserName
	}
	return names
}

// Filter returns the plans for which keep returns true.
func (wl Whitelist) Filter(keep func(*Information) bool) Whitelist {
	var out Whitelist
	for _, info := range wl {
		if keep(info) {
			out = append(out, info)
		}
	}
	return out
}

// UsageError is returned by Build when the words of a command do not parse.
type UsageError struct {
	Usage string
	Err   error
}

func (e *UsageError) Error() string {
	return "usage: " + e.Usage + "\n" + e.Err.Error()
}

func (e *UsageError) Unwrap() error { return e.Err }

// Build parses the words of a command, without the command name, and builds
// the item of the plan. When help is requested, it is written to help and
// argparse.ErrHelp is returned.
func Build(info *Information, words []string, help io.Writer) (Item, error) {
	cli := info.New(info)
	p := cli.Parser()
	ns, err := p.Parse(words)
	if errors.Is(err, argparse.ErrHelp) {
		p.WriteHelp(help)
		return Item{}, err
	} else if err != nil {
		return Item{}, &UsageError{p.UsageLine(), err}
	}
	return cli.Item(ns)
}
