// Package datasource keeps the instruments a user has selected for the next
// scans: which detectors to count with, which devices to read before, during
// and after a run, and which detector is the main counter.
//
// The selection lives in a Source, which may be in memory, in a CSV file
// shared with other tools, or in a Redis server shared with the rest of the
// beamline.
package datasource

import (
	"context"
	"fmt"

	"sophys.sh/cli/pkg/logutil"
)

var logger = logutil.GetLogger("datasource")

// DataType is a category of selected instruments.
type DataType string

const (
	Detectors DataType = "detector"
	Before    DataType = "before"
	During    DataType = "during"
	After     DataType = "after"
	Main      DataType = "main"
)

// DataTypes lists all data types in display order.
var DataTypes = []DataType{Detectors, Before, During, After, Main}

// ParseDataType converts a name to a DataType. Besides the canonical names,
// the plural "detectors" is accepted.
func ParseDataType(s string) (DataType, error) {
	if s == "detectors" {
		return Detectors, nil
	}
	for _, t := range DataTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown data type %q", s)
}

// Source is a store of instrument selections.
type Source interface {
	// Get returns the names selected for a data type. A type with nothing
	// selected yields an empty result, not an error.
	Get(ctx context.Context, t DataType) ([]string, error)
	// Add selects a name for a data type. Adding a name twice has no effect.
	Add(ctx context.Context, t DataType, name string) error
	// Remove deselects a name. Removing a name that is not selected has no
	// effect.
	Remove(ctx context.Context, t DataType, name string) error
}

// Snapshot returns the selections of all data types.
func Snapshot(ctx context.Context, src Source) (map[DataType][]string, error) {
	m := make(map[DataType][]string, len(DataTypes))
	for _, t := range DataTypes {
		names, err := src.Get(ctx, t)
		if err != nil {
			return nil, err
		}
		m[t] = names
	}
	return m, nil
}
