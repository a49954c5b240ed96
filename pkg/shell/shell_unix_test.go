//go:build unix

package shell

import (
	"strings"
	"testing"
	"time"

	"sophys.sh/cli/pkg/prog"
	"sophys.sh/cli/pkg/prog/progtest"
	"sophys.sh/cli/pkg/testutil"
)

const localPrompt = "[common] local> "

func TestInteract_TTY(t *testing.T) {
	setupHome(t)
	f := progtest.SetupInteractive(t)

	exit := make(chan int, 1)
	go func() {
		exit <- prog.Run(f.Fds(), []string{"sophys-cli", "-local"}, newProgram())
	}()

	// Each line is typed once the editor has put the terminal in raw mode,
	// which it does right before showing the prompt.
	waitForPrompts(t, f, 1)
	f.Type("mov motor1 1.5\r")
	waitForPrompts(t, f, 2)
	f.Type("wa\r")
	f.WaitForOutput(t, "motor1 = 1.5")
	waitForPrompts(t, f, 3)
	f.Type("exit\r")

	select {
	case code := <-exit:
		if code != 0 {
			t.Errorf("exit code %d, want 0", code)
		}
	case <-time.After(testutil.Scaled(3 * time.Second)):
		t.Fatalf("shell did not exit; output %q", f.Output())
	}
}

func waitForPrompts(t *testing.T, f *progtest.Interactive, n int) {
	t.Helper()
	deadline := time.Now().Add(testutil.Scaled(3 * time.Second))
	for strings.Count(f.Output(), localPrompt) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for prompt %d; output %q", n, f.Output())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
