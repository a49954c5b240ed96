// Sophys-cli is the command shell of the beamlines. Plan commands are parsed
// into queue server items, and either submitted to the queue server or run
// in-process against simulated devices.
package main

import (
	"os"

	"sophys.sh/cli/pkg/buildinfo"
	"sophys.sh/cli/pkg/ext"
	"sophys.sh/cli/pkg/ext/common"
	"sophys.sh/cli/pkg/ext/ema"
	"sophys.sh/cli/pkg/ext/ipe"
	"sophys.sh/cli/pkg/ext/spe"
	"sophys.sh/cli/pkg/prog"
	"sophys.sh/cli/pkg/shell"
)

func main() {
	os.Exit(prog.Run(
		[3]*os.File{os.Stdin, os.Stdout, os.Stderr}, os.Args,
		prog.Composite(
			&buildinfo.Program{},
			&shell.Program{Extensions: []*ext.Extension{
				common.Extension, ema.Extension, ipe.Extension, spe.Extension}})))
}
