package ema

import (
	"strings"

	"sophys.sh/cli/pkg/logutil"
	"sophys.sh/cli/pkg/runengine"
)

var logger = logutil.GetLogger("ema")

// Default names of the streams with the readings taken at the start and at
// the end of a run.
const (
	BaselineBefore = "baseline_before"
	BaselineAfter  = "baseline_after"
)

// NewMetadataInserter returns a run engine preprocessor that reads the
// devices named in the READ_BEFORE metadata of a run right after it opens,
// and those in READ_AFTER right before it closes. Names are comma-separated.
// Devices missing from reg are logged and skipped.
//
// Nested runs are supported as long as each run closes before the run that
// contains it. If both stream names are the same, READ_BEFORE and READ_AFTER
// must name the same devices, since a stream has a single descriptor.
func NewMetadataInserter(reg *runengine.Registry, beforeStream, afterStream string) func(runengine.Plan) runengine.Plan {
	readPlan := func(names []string, stream string) runengine.Plan {
		return func(yield runengine.Yield) error {
			if _, err := yield(runengine.Create(stream)); err != nil {
				return err
			}
			readAny := false
			for _, name := range names {
				if _, err := reg.Device(name); err != nil {
					logger.Error().Str("device", name).Msg("device not found, not reading it")
					continue
				}
				readAny = true
				if _, err := yield(runengine.Read(name)); err != nil {
					return err
				}
			}
			end := runengine.Drop()
			if readAny {
				end = runengine.Save()
			}
			_, err := yield(end)
			return err
		}
	}
	devicesIn := func(md map[string]any, key string) []string {
		s, _ := md[key].(string)
		if s == "" {
			return nil
		}
		return strings.Split(s, ",")
	}

	return func(p runengine.Plan) runengine.Plan {
		return func(yield runengine.Yield) error {
			// Metadata of the open runs, innermost last.
			var runs []map[string]any
			proc := func(msg *runengine.Msg) (head, tail runengine.Plan) {
				switch msg.Command {
				case "open_run":
					logger.Debug().Interface("md", msg.Kwargs).Msg("open_run")
					runs = append(runs, msg.Kwargs)
					if names := devicesIn(msg.Kwargs, "READ_BEFORE"); names != nil {
						return nil, readPlan(names, beforeStream)
					}
				case "close_run":
					if len(runs) == 0 {
						return nil, nil
					}
					md := runs[len(runs)-1]
					runs = runs[:len(runs)-1]
					logger.Debug().Interface("md", md).Msg("close_run")
					if names := devicesIn(md, "READ_AFTER"); names != nil {
						return runengine.Chain(readPlan(names, afterStream), runengine.Msgs(msg)), nil
					}
				}
				return nil, nil
			}
			return runengine.Mutate(p, proc)(yield)
		}
	}
}
