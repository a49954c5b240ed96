package sys

import (
	"os"
	"strings"
	"testing"
)

func TestIsATTY_Pipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	if IsATTY(r) {
		t.Errorf("IsATTY(pipe) = true, want false")
	}
	if row, col := WinSize(r); row != -1 || col != -1 {
		t.Errorf("WinSize(pipe) = (%d, %d), want (-1, -1)", row, col)
	}
}

func TestDumpStack(t *testing.T) {
	if s := DumpStack(); !strings.Contains(s, "TestDumpStack") {
		t.Errorf("DumpStack() does not contain the current function:\n%s", s)
	}
}
