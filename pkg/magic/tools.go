package magic

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"sophys.sh/cli/pkg/datasource"
	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/store/storedefs"
)

// ToolMagics returns the magics that are not plans. The queue magic is
// only available in Remote mode.
func ToolMagics(mode plan.Mode) []*Magic {
	magics := []*Magic{
		{Name: "lsmagic", Help: "List the available commands.", Run: lsmagic},
		{Name: "plans", Help: "List the available plans.", Run: listPlans},
		{Name: "devices", Help: "Show the available devices and, locally, their readings.", Run: devices},
		{Name: "wa", Help: "Alias of devices.", Run: devices},
		{Name: "ds", Help: "Show or change the selected instruments: ds [show | add TYPE NAME... | remove TYPE NAME...].", Run: ds},
		{Name: "history", Help: "Show, search or delete recorded commands: history [N | -s PREFIX | -d SEQ].", Run: history},
		{Name: "reload_plans", Help: "Fetch the available plans again.", Run: func(ctx context.Context, env *Env, args []string) error {
			return Reload(ctx, env, true, false)
		}},
		{Name: "reload_devices", Help: "Fetch the available devices again.", Run: func(ctx context.Context, env *Env, args []string) error {
			return Reload(ctx, env, false, true)
		}},
		{Name: "exit", Help: "Leave the prompt.", Run: func(context.Context, *Env, []string) error {
			return ErrExit
		}},
	}
	if mode == plan.Remote {
		magics = append(magics, &Magic{
			Name: "queue", Help: "Inspect or start the queue: queue [status | list | start].", Run: queue})
	}
	return magics
}

func lsmagic(_ context.Context, env *Env, _ []string) error {
	if env.Magics == nil {
		return nil
	}
	names := env.Magics.Names()
	width := 0
	for _, name := range names {
		width = max(width, len(name))
	}
	fmt.Fprintln(env.Out, "Available commands (the % prefix is optional):")
	for _, name := range names {
		m, _ := env.Magics.Lookup(name)
		fmt.Fprintf(env.Out, "  %%%-*s  %s\n", width, name, m.Help)
	}
	return nil
}

func listPlans(_ context.Context, env *Env, _ []string) error {
	for _, info := range env.Ext.Whitelist {
		if env.Magics != nil {
			if _, ok := env.Magics.Lookup(info.UserName); !ok {
				continue
			}
		}
		if info.UserName == info.PlanName {
			fmt.Fprintln(env.Out, info.UserName)
		} else {
			fmt.Fprintf(env.Out, "%s (%s)\n", info.UserName, info.PlanName)
		}
	}
	return nil
}

func devices(ctx context.Context, env *Env, _ []string) error {
	if env.Mode != plan.Local {
		names := env.NS.Strings(Devices)
		if names == nil {
			if err := Reload(ctx, env, false, true); err != nil {
				return err
			}
			names = env.NS.Strings(Devices)
		}
		for _, name := range names {
			fmt.Fprintln(env.Out, name)
		}
		return nil
	}
	reg := env.Engine.Registry
	for _, name := range reg.Names() {
		d, err := reg.Device(name)
		if err != nil {
			continue
		}
		readings, err := d.Read()
		if err != nil {
			fmt.Fprintf(env.Out, "%s: %v\n", name, err)
			continue
		}
		for _, field := range slices.Sorted(maps.Keys(readings)) {
			fmt.Fprintf(env.Out, "%s = %v\n", field, readings[field].Value)
		}
	}
	return nil
}

var errDSUsage = errors.New("usage: ds [show | add TYPE NAME... | remove TYPE NAME...]")

func ds(ctx context.Context, env *Env, args []string) error {
	if env.Source == nil {
		return errors.New("no data source configured")
	}
	if len(args) == 0 || args[0] == "show" {
		if len(args) > 1 {
			return errDSUsage
		}
		snap, err := datasource.Snapshot(ctx, env.Source)
		if err != nil {
			return err
		}
		for _, t := range datasource.DataTypes {
			fmt.Fprintf(env.Out, "%-8s %s\n", string(t)+":", strings.Join(snap[t], " "))
		}
		return nil
	}
	if len(args) < 3 || (args[0] != "add" && args[0] != "remove") {
		return errDSUsage
	}
	t, err := datasource.ParseDataType(args[1])
	if err != nil {
		return err
	}
	op := env.Source.Add
	if args[0] == "remove" {
		op = env.Source.Remove
	}
	for _, name := range args[2:] {
		if err := op(ctx, t, name); err != nil {
			return err
		}
	}
	return nil
}

const defaultHistoryLen = 20

var errHistoryUsage = errors.New("usage: history [N | -s PREFIX | -d SEQ]")

func history(_ context.Context, env *Env, args []string) error {
	if env.History == nil {
		return errors.New("command history is disabled")
	}
	switch {
	case len(args) == 2 && args[0] == "-s":
		return searchHistory(env, args[1])
	case len(args) == 2 && args[0] == "-d":
		return deleteHistory(env, args[1])
	case len(args) > 1:
		return errHistoryUsage
	}
	n := defaultHistoryLen
	if len(args) == 1 {
		var err error
		n, err = strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid number of commands %q", args[0])
		}
	}
	next, err := env.History.NextCmdSeq()
	if err != nil {
		return err
	}
	return env.History.IterateCmds(max(next-n, 1), next, func(cmd storedefs.Cmd) bool {
		printCmd(env, cmd)
		return true
	})
}

// Lists the commands starting with prefix, oldest first.
func searchHistory(env *Env, prefix string) error {
	for from := 1; ; {
		cmd, err := env.History.NextCmd(from, prefix)
		if errors.Is(err, storedefs.ErrNoMatchingCmd) {
			return nil
		} else if err != nil {
			return err
		}
		printCmd(env, cmd)
		from = cmd.Seq + 1
	}
}

func deleteHistory(env *Env, arg string) error {
	seq, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid sequence number %q", arg)
	}
	text, err := env.History.Cmd(seq)
	if errors.Is(err, storedefs.ErrNoMatchingCmd) {
		return fmt.Errorf("no command numbered %d in the history", seq)
	} else if err != nil {
		return err
	}
	if err := env.History.DelCmd(seq); err != nil {
		return err
	}
	fmt.Fprintf(env.Out, "Deleted %d: %s\n", seq, text)
	return nil
}

func printCmd(env *Env, cmd storedefs.Cmd) {
	fmt.Fprintf(env.Out, "%5d  %s\n", cmd.Seq, cmd.Text)
}

func queue(ctx context.Context, env *Env, args []string) error {
	sub := "status"
	if len(args) > 0 {
		sub = args[0]
	}
	if len(args) > 1 {
		return errors.New("usage: queue [status | list | start]")
	}
	switch sub {
	case "status":
		s, err := env.Queue.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Out, "Manager state:", s.ManagerState)
		fmt.Fprintln(env.Out, "Worker environment:", s.WorkerEnvironmentState)
		fmt.Fprintln(env.Out, "Items in queue:", s.ItemsInQueue)
		fmt.Fprintln(env.Out, "Items in history:", s.ItemsInHistory)
		if s.RunningItemUID != "" {
			fmt.Fprintln(env.Out, "Running item:", s.RunningItemUID)
		}
		return nil
	case "list":
		items, running, err := env.Queue.Queue(ctx)
		if err != nil {
			return err
		}
		if running != nil {
			fmt.Fprintf(env.Out, "running  %s %v %v\n", running.Name, running.Args, running.Kwargs)
		}
		for i, item := range items {
			fmt.Fprintf(env.Out, "%7d  %s %v %v\n", i, item.Name, item.Args, item.Kwargs)
		}
		return nil
	case "start":
		if err := env.Queue.StartQueue(ctx); err != nil {
			return err
		}
		fmt.Fprintln(env.Out, "Queue started.")
		return nil
	}
	return fmt.Errorf("unknown queue command %q", sub)
}

// Reload fetches the names of the available plans and devices concurrently
// and stores them in the namespace. Locally, they come from the local plans
// and the device registry; remotely, from the queue server.
func Reload(ctx context.Context, env *Env, wantPlans, wantDevices bool) error {
	var planNames, deviceNames []string
	g, ctx := errgroup.WithContext(ctx)
	if wantPlans {
		g.Go(func() error {
			var err error
			if env.Mode == plan.Remote {
				planNames, err = env.Queue.AllowedPlans(ctx)
			} else {
				planNames = AvailablePlans(ctx, env, env.Ext.Whitelist).UserNames()
			}
			return err
		})
	}
	if wantDevices {
		g.Go(func() error {
			var err error
			switch {
			case env.Mode == plan.Remote:
				deviceNames, err = env.Queue.AllowedDevices(ctx)
			case env.Engine != nil:
				deviceNames = env.Engine.Registry.Names()
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if wantPlans {
		env.NS.Set(Plans, planNames)
	}
	if wantDevices {
		env.NS.Set(Devices, deviceNames)
	}
	return nil
}
