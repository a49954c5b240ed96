// Package magic implements the commands of the sophys-cli prompt.
//
// Every command is a magic: one per available plan, plus the tool magics
// that inspect and configure the session. Magics share state through a
// Namespace, which also holds what tests need to observe.
package magic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"sophys.sh/cli/pkg/datasource"
	"sophys.sh/cli/pkg/ext"
	"sophys.sh/cli/pkg/logutil"
	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/qserver"
	"sophys.sh/cli/pkg/runengine"
	"sophys.sh/cli/pkg/runengine/plans"
	"sophys.sh/cli/pkg/store/storedefs"
	"sophys.sh/cli/pkg/strutil"
)

var logger = logutil.GetLogger("magic")

// Keys of the Namespace.
const (
	// Whether plans run locally. A bool.
	LocalMode = "LOCAL_MODE"
	// The last item built in Test mode. A plan.Item.
	TestData = "TEST_DATA"
	// Names of the plans available. A []string.
	Plans = "PLANS"
	// Names of the devices available. A []string.
	Devices = "DEVICES"
)

// ErrExit is returned by the exit magic.
var ErrExit = errors.New("exit requested")

// ErrUnknownCommand is wrapped by Call when no magic has the name of the
// command.
var ErrUnknownCommand = errors.New("unknown command")

// Namespace holds the variables of a session. It is safe for concurrent
// use.
type Namespace struct {
	mu   sync.RWMutex
	vars map[string]any
}

// NewNamespace creates an empty Namespace.
func NewNamespace() *Namespace { return &Namespace{vars: map[string]any{}} }

// Get returns the value of a variable.
func (ns *Namespace) Get(key string) (any, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	v, ok := ns.vars[key]
	return v, ok
}

// Set sets the value of a variable.
func (ns *Namespace) Set(key string, v any) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.vars[key] = v
}

// Strings returns a variable holding a list of names, or nil.
func (ns *Namespace) Strings(key string) []string {
	v, _ := ns.Get(key)
	names, _ := v.([]string)
	return names
}

// Env is the session that magics act on.
type Env struct {
	Out, Err io.Writer
	NS       *Namespace
	Mode     plan.Mode
	Ext      *ext.Extension
	Source   datasource.Source

	// Used in Remote mode.
	Queue *qserver.Client

	// Used in Local mode.
	Engine     *runengine.RunEngine
	LocalPlans plans.Registry

	// Command history. May be nil.
	History storedefs.Store

	// Set by Setup.
	Magics *Registry
}

// Magic is a command.
type Magic struct {
	Name string
	// One-line description shown by lsmagic.
	Help string
	Run  func(ctx context.Context, env *Env, args []string) error
}

// Registry holds the magics of a session.
type Registry struct {
	magics map[string]*Magic
}

// NewRegistry creates a registry with the given magics.
func NewRegistry(magics ...*Magic) *Registry {
	r := &Registry{magics: map[string]*Magic{}}
	for _, m := range magics {
		r.Add(m)
	}
	return r
}

// Add adds a magic, replacing any magic with the same name.
func (r *Registry) Add(m *Magic) { r.magics[m.Name] = m }

// Lookup finds a magic by name. A leading % is ignored.
func (r *Registry) Lookup(name string) (*Magic, bool) {
	m, ok := r.magics[strings.TrimPrefix(name, "%")]
	return m, ok
}

// Names returns the names of all magics, sorted.
func (r *Registry) Names() []string { return slices.Sorted(maps.Keys(r.magics)) }

// Call runs a command line. Blank lines and comments do nothing.
func (r *Registry) Call(ctx context.Context, env *Env, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	words, err := strutil.SplitWords(line)
	if err != nil {
		return err
	}
	m, ok := r.Lookup(words[0])
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, strings.TrimPrefix(words[0], "%"))
	}
	logger.Debug().Str("magic", m.Name).Strs("args", words[1:]).Msg("calling")
	return m.Run(ctx, env, words[1:])
}
