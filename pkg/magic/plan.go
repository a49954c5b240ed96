package magic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"sophys.sh/cli/pkg/argparse"
	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/runengine/plans"
)

// PlanMagic returns the magic of a plan. It builds the item of the plan from
// the arguments, then runs it according to the mode of the session.
func PlanMagic(info *plan.Information) *Magic {
	return &Magic{
		Name: info.UserName,
		Help: "Run the " + info.PlanName + " plan.",
		Run: func(ctx context.Context, env *Env, args []string) error {
			item, err := plan.Build(info, args, env.Out)
			if errors.Is(err, argparse.ErrHelp) {
				return nil
			} else if err != nil {
				return err
			}
			return runItem(ctx, env, item)
		},
	}
}

func runItem(ctx context.Context, env *Env, item plan.Item) error {
	switch env.Mode {
	case plan.Local:
		if env.Engine == nil {
			return errors.New("no run engine in local mode")
		}
		p, err := env.LocalPlans.Build(item, &plans.Env{
			Registry: env.Engine.Registry, LastRun: env.Engine.LastRun})
		if err != nil {
			return err
		}
		uids, err := env.Engine.Run(ctx, p)
		for _, uid := range uids {
			fmt.Fprintln(env.Out, "Run:", uid)
		}
		return err
	case plan.Remote:
		if env.Queue == nil {
			return errors.New("no queue server in remote mode")
		}
		queued, err := env.Queue.AddItem(ctx, item)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "Added %s to the queue (uid %s).\n", queued.Name, queued.UID)
		return nil
	case plan.Test:
		env.NS.Set(TestData, item)
		b, err := json.Marshal(item)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "%s\n", b)
		return nil
	}
	return fmt.Errorf("unsupported mode %v", env.Mode)
}

// AvailablePlans returns the plans of the whitelist that can run in the
// session: in Local mode those with a local implementation, in Remote mode
// those the queue server allows, and all of them in Test mode. When the
// allowed plans cannot be fetched, the whole whitelist is kept.
func AvailablePlans(ctx context.Context, env *Env, wl plan.Whitelist) plan.Whitelist {
	switch env.Mode {
	case plan.Local:
		return wl.Filter(func(info *plan.Information) bool {
			_, ok := env.LocalPlans[info.PlanName]
			return ok
		})
	case plan.Remote:
		allowed, err := env.Queue.AllowedPlans(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("cannot fetch the allowed plans, registering all plans")
			fmt.Fprintln(env.Err, "Warning: cannot fetch the allowed plans:", err)
			return wl
		}
		return wl.Filter(func(info *plan.Information) bool {
			return slices.Contains(allowed, info.PlanName)
		})
	}
	return wl
}

// Setup creates the registry of a session: the magics of the available
// plans of the extension and the tool magics. In Local mode, the names of
// the plans are put in the namespace.
func Setup(ctx context.Context, env *Env) *Registry {
	r := NewRegistry(ToolMagics(env.Mode)...)
	env.Magics = r
	wl := AvailablePlans(ctx, env, env.Ext.Whitelist)
	for _, info := range wl {
		r.Add(PlanMagic(info))
	}
	env.NS.Set(LocalMode, env.Mode == plan.Local)
	if env.Mode == plan.Local {
		env.NS.Set(Plans, wl.UserNames())
		env.NS.Set(Devices, env.Engine.Registry.Names())
	}
	logger.Info().Str("extension", env.Ext.Name).Str("mode", env.Mode.String()).
		Str("plans", strings.Join(wl.UserNames(), ",")).Msg("magics registered")
	return r
}
