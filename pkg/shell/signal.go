package shell

import (
	"io"
	"os/signal"

	"sophys.sh/cli/pkg/sys"
)

// Logs the signals the process receives and acts on some of them until the
// returned function is called.
func handleSignals(stderr io.Writer) func() {
	sigCh := sys.NotifySignals()
	go func() {
		for sig := range sigCh {
			if ignoreSignal(sig) {
				continue
			}
			logger.Debug().Str("signal", signalName(sig)).Msg("signal received")
			handleSignal(sig, stderr)
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(sigCh)
	}
}
