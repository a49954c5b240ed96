// Package ipe is the extension of the IPE beamline.
package ipe

import "sophys.sh/cli/pkg/ext"

// Extension is the IPE extension.
var Extension = &ext.Extension{
	Name:      "ipe",
	Whitelist: ext.SampleWhitelist(),
}
