// Package ext defines beamline extensions. An extension chooses the plans
// available as commands, and can add local plans, run engine preprocessors
// and input line processing.
package ext

import (
	"fmt"
	"strings"

	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/runengine"
	"sophys.sh/cli/pkg/runengine/plans"
)

// Extension is the profile of a beamline.
type Extension struct {
	Name      string
	Whitelist plan.Whitelist
	// Local implementations of plans beyond the standard ones.
	LocalPlans plans.Registry
	// Returns the preprocessors of the local run engine. May be nil.
	Preprocessors func(reg *runengine.Registry) []func(runengine.Plan) runengine.Plan
	// Whether command lines go through the input processor, which adds the
	// selected detectors and metadata.
	InputProcessing bool
}

// Find returns the extension with the given name.
func Find(exts []*Extension, name string) (*Extension, error) {
	names := make([]string, len(exts))
	for i, e := range exts {
		if e.Name == name {
			return e, nil
		}
		names[i] = e.Name
	}
	return nil, fmt.Errorf("unknown extension %q, available: %s", name, strings.Join(names, ", "))
}

// SampleWhitelist is the whitelist of the sample plans, shared by the
// extensions of beamlines without plans of their own.
func SampleWhitelist() plan.Whitelist {
	return plan.Whitelist{
		{UserName: "mov", PlanName: "mv", New: plan.NewMV, NoDetectors: true},
		{UserName: "count", PlanName: "count", New: plan.NewCount},
		{UserName: "scan", PlanName: "scan", New: plan.NewScan},
		{UserName: "grid_scan", PlanName: "grid_scan", New: plan.NewGridScan},
		{UserName: "adaptive_scan", PlanName: "adaptive_scan", New: plan.NewAdaptiveScan},
	}
}
