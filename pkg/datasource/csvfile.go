package datasource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
)

// ErrNotCSV is returned by OpenCSVFile for paths that do not end in ".csv".
var ErrNotCSV = errors.New("only CSV files are accepted")

// CSVFile is a Source backed by a CSV file with a header containing the
// columns "name" and "type". Other columns are preserved but ignored. Changes
// are written back atomically, so other readers never see a partial file.
type CSVFile struct {
	path string
	// How long the file must stay quiet after a change before Watch reloads
	// it.
	Debounce time.Duration

	mu     sync.Mutex
	header []string
	rows   [][]string
	iName  int
	iType  int
	// Called after Watch has reloaded the file.
	onReload func()
}

var _ Source = (*CSVFile)(nil)

// OpenCSVFile loads a CSV file. A file that does not exist is treated as
// empty and is created on the first change.
func OpenCSVFile(path string) (*CSVFile, error) {
	if !strings.HasSuffix(path, ".csv") {
		return nil, fmt.Errorf("%s: %w", path, ErrNotCSV)
	}
	f := &CSVFile{path: path, Debounce: 200 * time.Millisecond}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the path of the file.
func (f *CSVFile) Path() string { return f.path }

// Rows returns the number of data rows, for diagnostics.
func (f *CSVFile) Rows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *CSVFile) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.mu.Lock()
		f.header, f.rows, f.iName, f.iType = []string{"name", "type"}, nil, 0, 1
		f.mu.Unlock()
		return nil
	} else if err != nil {
		return err
	}
	defer file.Close()
	header, rows, iName, iType, err := readCSV(file)
	if err != nil {
		return fmt.Errorf("%s: %w", f.path, err)
	}
	f.mu.Lock()
	f.header, f.rows, f.iName, f.iType = header, rows, iName, iType
	f.mu.Unlock()
	return nil
}

func readCSV(r io.Reader) (header []string, rows [][]string, iName, iType int, err error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err = cr.Read()
	if err == io.EOF {
		return []string{"name", "type"}, nil, 0, 1, nil
	} else if err != nil {
		return nil, nil, 0, 0, err
	}
	iName, iType = slices.Index(header, "name"), slices.Index(header, "type")
	if iName == -1 || iType == -1 {
		return nil, nil, 0, 0, fmt.Errorf("header %q lacks a name or type column", strings.Join(header, ","))
	}
	rows, err = cr.ReadAll()
	if err != nil {
		return nil, nil, 0, 0, err
	}
	return header, rows, iName, iType, nil
}

func (f *CSVFile) Get(_ context.Context, t DataType) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, row := range f.rows {
		if row[f.iType] == string(t) {
			names = append(names, row[f.iName])
		}
	}
	return names, nil
}

func (f *CSVFile) Add(_ context.Context, t DataType, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.find(t, name) != -1 {
		return nil
	}
	row := make([]string, len(f.header))
	row[f.iName], row[f.iType] = name, string(t)
	f.rows = append(f.rows, row)
	return f.save()
}

func (f *CSVFile) Remove(_ context.Context, t DataType, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.find(t, name)
	if i == -1 {
		return nil
	}
	f.rows = slices.Delete(f.rows, i, i+1)
	return f.save()
}

func (f *CSVFile) find(t DataType, name string) int {
	return slices.IndexFunc(f.rows, func(row []string) bool {
		return row[f.iName] == name && row[f.iType] == string(t)
	})
}

// Writes the file atomically. Must be called with f.mu held.
func (f *CSVFile) save() error {
	pending, err := renameio.NewPendingFile(f.path, renameio.WithPermissions(0644))
	if err != nil {
		return fmt.Errorf("save %s: %w", f.path, err)
	}
	defer pending.Cleanup()

	w := csv.NewWriter(pending)
	w.Write(f.header)
	w.WriteAll(f.rows)
	if err := w.Error(); err != nil {
		return fmt.Errorf("save %s: %w", f.path, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("save %s: %w", f.path, err)
	}
	logger.Debug().Str("path", f.path).Int("rows", len(f.rows)).Msg("selection saved")
	return nil
}

// OnReload sets a function to call after Watch has reloaded the file.
func (f *CSVFile) OnReload(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onReload = fn
}

// Watch reloads the file whenever it changes on disk, until ctx is done. It
// watches the containing directory, so that atomic replacements by other
// programs are seen too.
func (f *CSVFile) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	logger.Info().Str("path", f.path).Msg("watching selection file")

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	target := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Str("path", f.path).Msg("selection watcher stopped")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target ||
				event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			logger.Debug().Str("op", event.Op.String()).Msg("selection file changed")
			if debounce == nil {
				debounce = time.NewTimer(f.Debounce)
			} else {
				debounce.Reset(f.Debounce)
			}
			fire = debounce.C
		case <-fire:
			fire = nil
			if err := f.load(); err != nil {
				logger.Error().Err(err).Msg("reloading selection file failed")
				continue
			}
			f.mu.Lock()
			onReload := f.onReload
			f.mu.Unlock()
			logger.Info().Str("path", f.path).Int("rows", f.Rows()).Msg("selection file reloaded")
			if onReload != nil {
				onReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("selection watcher error")
		}
	}
}
