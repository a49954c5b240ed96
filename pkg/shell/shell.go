// Package shell is the entry point for the command prompt of sophys-cli.
package shell

import (
	"context"
	"fmt"
	"os"
	"strings"

	"sophys.sh/cli/pkg/config"
	"sophys.sh/cli/pkg/ext"
	"sophys.sh/cli/pkg/logutil"
	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/prog"
)

var logger = logutil.GetLogger("shell")

// Program is the shell subprogram.
type Program struct {
	// Extensions that can be chosen with -extension or the configuration.
	Extensions []*ext.Extension

	configPath string
	extension  string
	local      bool
	dryRun     bool
	codeInArg  bool
	log        *prog.LogFlags
}

func (p *Program) RegisterFlags(fs *prog.FlagSet) {
	names := make([]string, len(p.Extensions))
	for i, e := range p.Extensions {
		names[i] = e.Name
	}
	fs.StringVar(&p.configPath, "config", "",
		"Path to the YAML configuration file; defaults to $SOPHYS_CLI_CONFIG")
	fs.StringVar(&p.extension, "extension", "",
		"Beamline extension to load: "+strings.Join(names, ", "))
	fs.BoolVar(&p.local, "local", false,
		"Run plans in-process against simulated devices")
	fs.BoolVar(&p.dryRun, "dry-run", false,
		"Print the plan items instead of running them")
	fs.BoolVar(&p.codeInArg, "c", false,
		"Take the first argument as commands to run")
	p.log = fs.Log()
}

func (p *Program) Run(fds [3]*os.File, args []string) error {
	if p.codeInArg && len(args) == 0 {
		return prog.BadUsage("-c requires an argument")
	}
	cfg, err := config.Load(p.configPath)
	if err != nil {
		return err
	}
	if p.extension != "" {
		cfg.Extension = p.extension
	}
	if p.local {
		cfg.Local = true
	}
	if err := setupLog(p.log, cfg.Log); err != nil {
		fmt.Fprintln(fds[2], "Warning:", err)
	}

	mode := plan.Remote
	switch {
	case p.dryRun:
		mode = plan.Test
	case cfg.Local:
		mode = plan.Local
	}
	interactive := len(args) == 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := newSession(ctx, fds, cfg, p.Extensions, mode, interactive)
	if err != nil {
		return err
	}
	defer s.close()

	if !interactive {
		return prog.Exit(script(ctx, fds, s, args, p.codeInArg))
	}
	defer handleSignals(fds[2])()
	Interact(ctx, fds, s)
	return nil
}

// Flags win over the configuration file.
func setupLog(flags *prog.LogFlags, cfg config.Log) error {
	file, level := cfg.File, cfg.Level
	if flags != nil && flags.File != "" {
		file = flags.File
	}
	if flags != nil && flags.Level != "" {
		level = flags.Level
	}
	if level != "" {
		if err := logutil.SetLevel(level); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
	}
	if file != "" {
		return logutil.SetOutputFile(file)
	}
	return nil
}
