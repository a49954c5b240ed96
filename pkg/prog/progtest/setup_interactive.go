//go:build unix

package progtest

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/creack/pty"

	"sophys.sh/cli/pkg/testutil"
)

// Interactive is a test fixture for a program that reads commands from a
// terminal. The program gets the terminal side of a pseudo-terminal, and
// the test plays the user on the controlling side.
type Interactive struct {
	// The terminal side, to be used as the stdin, stdout and stderr of the
	// program.
	TTY *os.File

	ptmx *os.File
	mu   sync.Mutex
	buf  bytes.Buffer
	done chan struct{}
}

// SetupInteractive creates an Interactive fixture. It is closed when the
// test ends.
func SetupInteractive(t *testing.T) *Interactive {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("cannot open a pty: %v", err)
	}
	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: 24, Cols: 80}); err != nil {
		t.Fatalf("cannot set the pty size: %v", err)
	}
	f := &Interactive{TTY: tty, ptmx: ptmx, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		chunk := make([]byte, 4096)
		for {
			n, err := ptmx.Read(chunk)
			f.mu.Lock()
			f.buf.Write(chunk[:n])
			f.mu.Unlock()
			if err != nil {
				return
			}
		}
	}()
	// A program still blocked reading the terminal keeps its fd alive, so
	// the reader may never see EOF; it is abandoned after a grace period.
	t.Cleanup(func() {
		tty.Close()
		ptmx.Close()
		select {
		case <-f.done:
		case <-time.After(testutil.Scaled(time.Second)):
		}
	})
	return f
}

// Fds returns the files to pass to the program.
func (f *Interactive) Fds() [3]*os.File { return [3]*os.File{f.TTY, f.TTY, f.TTY} }

// Type writes keystrokes to the terminal.
func (f *Interactive) Type(s string) {
	if _, err := f.ptmx.WriteString(s); err != nil {
		panic(err)
	}
}

// Output returns everything the program has written to the terminal so far.
func (f *Interactive) Output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.String()
}

// WaitForOutput waits until the output of the program contains want, and
// fails the test if it doesn't within a few seconds.
func (f *Interactive) WaitForOutput(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(testutil.Scaled(3 * time.Second))
	for time.Now().Before(deadline) {
		if strings.Contains(f.Output(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q in output; got %q", want, f.Output())
}
