//go:build unix

package progtest

import (
	"testing"

	"github.com/creack/pty"
)

func TestSetupInteractive_HasSize(t *testing.T) {
	f := SetupInteractive(t)
	rows, cols, err := pty.Getsize(f.TTY)
	if err != nil {
		t.Fatal(err)
	}
	if rows != 24 || cols != 80 {
		t.Errorf("pty size %dx%d, want 24x80", rows, cols)
	}
}

// A program that never returns from reading the terminal must not keep the
// test from finishing.
func TestSetupInteractive_CleanupWithBlockedReader(t *testing.T) {
	f := SetupInteractive(t)
	go func() {
		buf := make([]byte, 16)
		f.TTY.Read(buf)
	}()
	f.Type("x")
}
