package shell

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"sophys.sh/cli/pkg/config"
	"sophys.sh/cli/pkg/datasource"
	"sophys.sh/cli/pkg/docstream"
	"sophys.sh/cli/pkg/ext"
	"sophys.sh/cli/pkg/fsutil"
	"sophys.sh/cli/pkg/inputproc"
	"sophys.sh/cli/pkg/magic"
	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/qserver"
	"sophys.sh/cli/pkg/runengine"
	"sophys.sh/cli/pkg/runengine/plans"
	"sophys.sh/cli/pkg/runengine/sim"
	"sophys.sh/cli/pkg/store"
)

// A session is everything a command line may act on.
type session struct {
	env     *magic.Env
	magics  *magic.Registry
	ext     *ext.Extension
	closers []func() error
	// Path of the history database, when one is open.
	historyPath string
}

func newSession(ctx context.Context, fds [3]*os.File, cfg *config.Config, exts []*ext.Extension, mode plan.Mode, withHistory bool) (*session, error) {
	e, err := ext.Find(exts, cfg.Extension)
	if err != nil {
		return nil, err
	}
	s := &session{ext: e}
	env := &magic.Env{
		Out: fds[1], Err: fds[2],
		NS:   magic.NewNamespace(),
		Mode: mode,
		Ext:  e,
	}
	s.env = env

	src, closeSrc, err := openDataSource(ctx, cfg.DataSource)
	if err != nil {
		return nil, err
	}
	env.Source = src
	s.onClose(closeSrc)

	if withHistory && !cfg.History.Disabled {
		if st, path, err := openHistory(cfg.History); err != nil {
			fmt.Fprintln(fds[2], "Warning: command history disabled:", err)
		} else {
			env.History = st
			s.historyPath = path
			s.onClose(st.Close)
		}
	}

	switch mode {
	case plan.Local:
		re := runengine.New(sim.NewRegistry())
		if e.Preprocessors != nil {
			re.Preprocessors = e.Preprocessors(re.Registry)
		}
		sinks, err := docstream.Open(cfg.Documents)
		if err != nil {
			s.close()
			return nil, err
		}
		for _, sink := range sinks {
			detach := docstream.Attach(re, sink)
			s.onClose(func() error {
				detach()
				return sink.Close()
			})
		}
		env.Engine = re
		env.LocalPlans = plans.Standard().With(e.LocalPlans)
	case plan.Remote:
		env.Queue = qserver.FromConfig(cfg.QueueServer)
	}

	s.magics = magic.Setup(ctx, env)
	if mode == plan.Remote {
		if err := magic.Reload(ctx, env, true, true); err != nil {
			fmt.Fprintln(fds[2], "Warning: cannot reach the queue server:", err)
		}
	}
	return s, nil
}

func (s *session) onClose(f func() error) { s.closers = append(s.closers, f) }

// Closes what the session opened, in reverse order.
func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn().Err(err).Msg("closing session")
		}
	}
	s.closers = nil
}

// Evaluates one command line. Plan command lines of extensions with input
// processing first get the selected instruments added.
func (s *session) eval(ctx context.Context, line string) error {
	if s.ext.InputProcessing && s.env.Source != nil {
		processed, err := inputproc.ProcessLine(ctx, line, s.ext.Whitelist, s.env.Source)
		if err != nil {
			logger.Warn().Err(err).Msg("input processing failed, using the line as typed")
		} else {
			if processed != line {
				logger.Debug().Str("line", processed).Msg("line processed")
			}
			line = processed
		}
	}
	return s.magics.Call(ctx, s.env, line)
}

func openDataSource(ctx context.Context, cfg config.DataSource) (datasource.Source, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Kind {
	case config.DataSourceCSV:
		f, err := datasource.OpenCSVFile(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		if !cfg.Watch {
			return f, noop, nil
		}
		ctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := f.Watch(ctx); err != nil {
				logger.Error().Err(err).Msg("selection watcher failed")
			}
		}()
		return f, func() error {
			cancel()
			<-done
			return nil
		}, nil
	case config.DataSourceRedis:
		r, err := datasource.DialRedis(ctx, cfg.Redis.Addr(), cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	}
	return datasource.NewMemory(nil), noop, nil
}

func openHistory(cfg config.History) (store.DBStore, string, error) {
	path := cfg.Path
	if path == "" {
		dir, err := fsutil.StateDir()
		if err != nil {
			return nil, "", err
		}
		path = filepath.Join(dir, "history.db")
	}
	st, err := store.NewStore(path)
	return st, path, err
}
