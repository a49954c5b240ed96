// Package common is the extension with the sample plans only.
package common

import (
	"sophys.sh/cli/pkg/ext"
	"sophys.sh/cli/pkg/plan"
)

// Extension is the common extension.
var Extension = &ext.Extension{
	Name:      "common",
	Whitelist: append(ext.SampleWhitelist(), &plan.Information{UserName: "list_scan", PlanName: "list_scan", New: plan.NewListScan}),
}
