// Package ema is the extension of the EMA beamline.
//
// Its scans take the HDF file options of area detectors and can move the
// motors to the maximum of a detector afterwards. Command lines go through
// the input processor, and local runs read the baseline devices named in
// their metadata.
package ema

import (
	"sophys.sh/cli/pkg/ext"
	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/runengine"
)

// Whitelist is the list of EMA plans.
var Whitelist = plan.Whitelist{
	{UserName: "ascan", PlanName: "ema_scan", New: NewScan},
	{UserName: "rscan", PlanName: "ema_scan", New: NewRelScan},
	{UserName: "grid_scan", PlanName: "ema_grid_scan", New: NewGridScan},
	{UserName: "rel_grid_scan", PlanName: "ema_grid_scan", New: NewRelGridScan},
	{UserName: "jittermap", PlanName: "ema_jittermap", New: NewJittermap},
	{UserName: "mov", PlanName: "ema_mov", New: NewMov, NoDetectors: true},
	{UserName: "motor_origin", PlanName: "ema_motor_origin", New: NewMotorOrigin, NoDetectors: true},
	{UserName: "count", PlanName: "count", New: plan.NewCount},
}

// Extension is the EMA extension.
var Extension = &ext.Extension{
	Name:       "ema",
	Whitelist:  Whitelist,
	LocalPlans: LocalPlans,
	Preprocessors: func(reg *runengine.Registry) []func(runengine.Plan) runengine.Plan {
		return []func(runengine.Plan) runengine.Plan{
			NewMetadataInserter(reg, BaselineBefore, BaselineAfter),
		}
	},
	InputProcessing: true,
}
