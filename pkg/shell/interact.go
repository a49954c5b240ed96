package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"sophys.sh/cli/pkg/fsutil"
	"sophys.sh/cli/pkg/magic"
	"sophys.sh/cli/pkg/sys"
)

// Whether a panic in the interactive loop dumps the stack before crashing.
// Unit tests turn it off.
var dumpStackOnPanic = true

func handlePanic(stderr io.Writer) {
	if r := recover(); r != nil {
		fmt.Fprintln(stderr)
		fmt.Fprint(stderr, sys.DumpStack())
		panic(r)
	}
}

// Interact reads command lines from fds[0] and evaluates them until the end
// of input or the exit command.
func Interact(ctx context.Context, fds [3]*os.File, s *session) {
	if dumpStackOnPanic {
		defer handlePanic(fds[2])
	}

	var ed editor
	if sys.IsATTY(fds[0]) {
		ed = newTermEditor(fds[0], s)
	} else {
		ed = newMinEditor(fds[0], fds[2])
	}
	fmt.Fprintf(fds[2], "sophys-cli %s extension, %s mode. Type lsmagic to list commands.\n",
		s.ext.Name, s.env.Mode)
	if s.historyPath != "" {
		fmt.Fprintln(fds[2], "Command history:", fsutil.TildeAbbr(s.historyPath))
	}

	cooldown := time.Second
	for {
		line, err := ed.ReadLine(prompt(s))
		if err == io.EOF {
			break
		} else if err != nil {
			fmt.Fprintln(fds[2], "Editor error:", err)
			if _, isMinEditor := ed.(*minEditor); !isMinEditor {
				fmt.Fprintln(fds[2], "Falling back to basic line editor")
				ed = newMinEditor(fds[0], fds[2])
			} else {
				fmt.Fprintln(fds[2], "Restarting editor in", cooldown)
				time.Sleep(cooldown)
				if cooldown < time.Minute {
					cooldown *= 2
				}
			}
			continue
		}
		cooldown = time.Second

		if strings.TrimSpace(line) == "" {
			continue
		}
		record(s, line)
		err = evalInterruptible(ctx, s, line)
		if errors.Is(err, magic.ErrExit) {
			break
		}
		if err != nil {
			showError(fds[2], err)
		}
	}
}

// Evaluates a line with a context that Ctrl-C cancels, so that a running
// plan can be aborted without leaving the prompt.
func evalInterruptible(ctx context.Context, s *session, line string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	err := s.eval(ctx, line)
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return errors.New("interrupted")
	}
	return err
}

func record(s *session, line string) {
	if s.env.History == nil {
		return
	}
	if _, err := s.env.History.AddCmd(line); err != nil {
		logger.Warn().Err(err).Msg("failed to record command")
	}
}

func prompt(s *session) string {
	return fmt.Sprintf("[%s] %s> ", s.ext.Name, s.env.Mode)
}

func showError(w io.Writer, err error) {
	if errors.Is(err, magic.ErrUnknownCommand) {
		fmt.Fprintln(w, err)
		return
	}
	fmt.Fprintln(w, "Error:", err)
}
