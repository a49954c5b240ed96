// Package plans builds runnable plans from plan items, for running them in
// the local run engine instead of the queue server.
package plans

import (
	"fmt"
	"maps"
	"slices"

	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/runengine"
)

// Env is what plan builders can use besides the item.
type Env struct {
	Registry *runengine.Registry
	// Returns the last finished run, or nil.
	LastRun func() *runengine.RunRecord
}

// Builder builds a runnable plan from an item.
type Builder func(item plan.Item, env *Env) (runengine.Plan, error)

// Registry maps plan names to builders.
type Registry map[string]Builder

// Standard returns a registry with the standard plans.
func Standard() Registry {
	return Registry{
		"mv":            buildMV,
		"count":         buildCount,
		"scan":          buildScan(true),
		"rel_scan":      buildScan(false),
		"grid_scan":     buildGridScan(true),
		"rel_grid_scan": buildGridScan(false),
		"list_scan":     buildListScan,
		"adaptive_scan": buildAdaptiveScan,
	}
}

// With returns a new registry with the builders of r and other. Builders of
// other win.
func (r Registry) With(other Registry) Registry {
	merged := maps.Clone(r)
	maps.Copy(merged, other)
	return merged
}

// Names returns the plan names, sorted.
func (r Registry) Names() []string { return slices.Sorted(maps.Keys(r)) }

// Build builds the plan of an item.
func (r Registry) Build(item plan.Item, env *Env) (runengine.Plan, error) {
	b, ok := r[item.Name]
	if !ok {
		return nil, fmt.Errorf("no local plan named %q", item.Name)
	}
	p, err := b(item, env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", item.Name, err)
	}
	return p, nil
}
