// Package inputproc rewrites command lines before they are parsed, adding the
// detectors, metadata and main counter the user selected beforehand.
//
// All processors only append to a line, and skip what the line already
// carries, so running them twice gives the same line as running them once.
package inputproc

import (
	"context"
	"fmt"
	"strings"

	"sophys.sh/cli/pkg/datasource"
	"sophys.sh/cli/pkg/logutil"
	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/strutil"
)

var logger = logutil.GetLogger("inputproc")

// Metadata keys, in the order they are appended.
var metadataKeys = []struct {
	Key  string
	Type datasource.DataType
}{
	{"READ_BEFORE", datasource.Before},
	{"READ_DURING", datasource.During},
	{"READ_AFTER", datasource.After},
}

// MainCounterKey is the metadata key recording the main counter.
const MainCounterKey = "MAIN_COUNTER"

// AddDetectors appends the selected detectors as a -d option. Lines of plans
// without detectors, and lines that already have -d (also in its attached
// form -dDET) or --detectors, are returned as is.
func AddDetectors(ctx context.Context, line string, src datasource.Source, info *plan.Information) (string, error) {
	if info != nil && !info.HasDetectors() {
		return line, nil
	}
	if hasWord(line, func(w string) bool {
		return w == "--detectors" || strings.HasPrefix(w, "--detectors=") ||
			(strings.HasPrefix(w, "-d") && !strings.HasPrefix(w, "--"))
	}) {
		return line, nil
	}
	dets, err := src.Get(ctx, datasource.Detectors)
	if err != nil {
		return line, err
	}
	if len(dets) == 0 {
		return line, nil
	}
	return line + " -d " + strings.Join(dets, " "), nil
}

// AddMetadata appends the selected READ_BEFORE, READ_DURING and READ_AFTER
// devices as --md entries, comma-separated. Empty selections and keys the
// line already has are left out.
func AddMetadata(ctx context.Context, line string, src datasource.Source) (string, error) {
	var entries []string
	for _, mk := range metadataKeys {
		if hasWord(line, prefixed(mk.Key+"=")) {
			continue
		}
		names, err := src.Get(ctx, mk.Type)
		if err != nil {
			return line, err
		}
		if len(names) > 0 {
			entries = append(entries, mk.Key+"="+strings.Join(names, ","))
		}
	}
	if len(entries) == 0 {
		return line, nil
	}
	return line + " --md " + strings.Join(entries, " "), nil
}

// AddPlanTarget appends the main counter as --plan_target, and records it in
// the metadata. The main counter is the first "main" selection or, failing
// that, the detector when exactly one is selected.
func AddPlanTarget(ctx context.Context, line string, src datasource.Source) (string, error) {
	if hasWord(line, func(w string) bool {
		return w == "--plan_target" || strings.HasPrefix(w, "--plan_target=") ||
			strings.HasPrefix(w, MainCounterKey+"=")
	}) {
		return line, nil
	}
	target, err := MainCounter(ctx, src)
	if err != nil || target == "" {
		return line, err
	}
	return fmt.Sprintf("%s --plan_target %s --md %s=%s", line, target, MainCounterKey, target), nil
}

// MainCounter returns the main counter of the current selection, or "".
func MainCounter(ctx context.Context, src datasource.Source) (string, error) {
	main, err := src.Get(ctx, datasource.Main)
	if err != nil {
		return "", err
	}
	if len(main) > 0 {
		return main[0], nil
	}
	dets, err := src.Get(ctx, datasource.Detectors)
	if err != nil {
		return "", err
	}
	if len(dets) == 1 {
		return dets[0], nil
	}
	return "", nil
}

// ProcessLine applies all processors to a line that calls a plan of the
// whitelist, with or without a leading %. Other lines are returned as is.
func ProcessLine(ctx context.Context, line string, wl plan.Whitelist, src datasource.Source) (string, error) {
	body := strutil.ChopLineEnding(line)
	ending := line[len(body):]
	cmd, _ := strutil.CutCommand(body)
	info := wl.ByUserName(strings.TrimPrefix(cmd, "%"))
	if info == nil {
		return line, nil
	}
	body = strings.TrimRight(body, " \t")
	var err error
	if body, err = AddDetectors(ctx, body, src, info); err != nil {
		return line, fmt.Errorf("add detectors: %w", err)
	}
	if body, err = AddMetadata(ctx, body, src); err != nil {
		return line, fmt.Errorf("add metadata: %w", err)
	}
	if body, err = AddPlanTarget(ctx, body, src); err != nil {
		return line, fmt.Errorf("add plan target: %w", err)
	}
	logger.Debug().Str("line", body).Msg("processed")
	return body + ending, nil
}

// Process applies ProcessLine to each line of a cell. On error, the lines
// are returned unchanged along with the error.
func Process(ctx context.Context, lines []string, wl plan.Whitelist, src datasource.Source) ([]string, error) {
	out := make([]string, len(lines))
	for i, line := range lines {
		processed, err := ProcessLine(ctx, line, wl, src)
		if err != nil {
			return lines, err
		}
		out[i] = processed
	}
	return out, nil
}

func prefixed(prefix string) func(string) bool {
	return func(w string) bool { return strings.HasPrefix(w, prefix) }
}

func hasWord(line string, pred func(string) bool) bool {
	for _, w := range strings.Fields(line) {
		if pred(w) {
			return true
		}
	}
	return false
}
