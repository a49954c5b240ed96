// Package storetest keeps test suites against storedefs.Store.
package storetest

import (
	"slices"
	"testing"

	. "sophys.sh/cli/pkg/store/storedefs"
)

var (
	cmds     = []string{"count -d det", "mov motor 1", "count -d det1 det2", "%ds show"}
	searches = []struct {
		next      bool
		seq       int
		prefix    string
		wantedCmd Cmd
		wantedErr error
	}{
		{false, 5, "count", Cmd{"count -d det1 det2", 3}, nil},
		{false, 3, "count", Cmd{"count -d det", 1}, nil},
		{true, 1, "count", Cmd{"count -d det", 1}, nil},
		{true, 2, "count", Cmd{"count -d det1 det2", 3}, nil},
		{false, 1, "count", Cmd{}, ErrNoMatchingCmd},
		{true, 1, "scan", Cmd{}, ErrNoMatchingCmd},
	}
)

// TestCmd tests the command history functionality of a Store.
func TestCmd(t *testing.T, store Store) {
	t.Helper()

	startSeq, err := store.NextCmdSeq()
	if startSeq != 1 || err != nil {
		t.Errorf("store.NextCmdSeq() => (%v, %v), want (1, nil)",
			startSeq, err)
	}

	// AddCmd
	for i, cmd := range cmds {
		wantSeq := startSeq + i
		seq, err := store.AddCmd(cmd)
		if seq != wantSeq || err != nil {
			t.Errorf("store.AddCmd(%v) => (%v, %v), want (%v, nil)",
				cmd, seq, err, wantSeq)
		}
	}

	endSeq, err := store.NextCmdSeq()
	wantedEndSeq := startSeq + len(cmds)
	if endSeq != wantedEndSeq || err != nil {
		t.Errorf("store.NextCmdSeq() => (%v, %v), want (%v, nil)",
			endSeq, err, wantedEndSeq)
	}

	// Blank lines and repeats of the last line are not recorded.
	for _, cmd := range []string{"", "  ", cmds[len(cmds)-1]} {
		seq, err := store.AddCmd(cmd)
		if seq != endSeq-1 || err != nil {
			t.Errorf("store.AddCmd(%q) => (%v, %v), want (%v, nil)",
				cmd, seq, err, endSeq-1)
		}
	}
	if seq, _ := store.NextCmdSeq(); seq != endSeq {
		t.Errorf("store.NextCmdSeq() after ignored lines => %v, want %v", seq, endSeq)
	}

	// CmdsWithSeq
	wantCmdWithSeqs := make([]Cmd, len(cmds))
	for i, cmd := range cmds {
		wantCmdWithSeqs[i] = Cmd{cmd, i + 1}
	}
	for i := 0; i < len(cmds); i++ {
		for j := i; j <= len(cmds); j++ {
			cmdWithSeqs, err := store.CmdsWithSeq(i+1, j+1)
			if !slices.Equal(cmdWithSeqs, wantCmdWithSeqs[i:j]) || err != nil {
				t.Errorf("store.CmdsWithSeq(%v, %v) -> (%v, %v), want (%v, nil)",
					i+1, j+1, cmdWithSeqs, err, wantCmdWithSeqs[i:j])
			}
		}
	}

	// IterateCmds stops when the callback returns false.
	var seen []Cmd
	err = store.IterateCmds(1, endSeq, func(cmd Cmd) bool {
		seen = append(seen, cmd)
		return len(seen) < 2
	})
	if !slices.Equal(seen, wantCmdWithSeqs[:2]) || err != nil {
		t.Errorf("store.IterateCmds stopping after 2 => (%v, %v), want (%v, nil)",
			seen, err, wantCmdWithSeqs[:2])
	}

	// Cmd
	for i, wantedCmd := range cmds {
		cmd, err := store.Cmd(i + 1)
		if cmd != wantedCmd || err != nil {
			t.Errorf("store.Cmd(%v) => (%v, %v), want (%v, nil)",
				i+1, cmd, err, wantedCmd)
		}
	}

	// PrevCmd and NextCmd
	for _, tt := range searches {
		f := store.PrevCmd
		funcname := "store.PrevCmd"
		if tt.next {
			f = store.NextCmd
			funcname = "store.NextCmd"
		}
		cmd, err := f(tt.seq, tt.prefix)
		if cmd != tt.wantedCmd || !matchErr(err, tt.wantedErr) {
			t.Errorf("%s(%v, %v) => (%v, %v), want (%v, %v)",
				funcname, tt.seq, tt.prefix, cmd, err, tt.wantedCmd, tt.wantedErr)
		}
	}

	// DelCmd
	if err := store.DelCmd(1); err != nil {
		t.Errorf("store.DelCmd(1) => %v, want nil", err)
	}
	if cmd, err := store.Cmd(1); !matchErr(err, ErrNoMatchingCmd) {
		t.Errorf("store.Cmd(1) => (%v, %v), want (%v, %v)",
			cmd, err, "", ErrNoMatchingCmd)
	}
	if err := store.DelCmd(1); !matchErr(err, ErrNoMatchingCmd) {
		t.Errorf("store.DelCmd(1) again => %v, want %v", err, ErrNoMatchingCmd)
	}
	// Searches skip the hole, and numbering goes on after it.
	if cmd, err := store.NextCmd(1, "count"); cmd != (Cmd{"count -d det1 det2", 3}) || err != nil {
		t.Errorf("store.NextCmd(1, count) after DelCmd => (%v, %v)", cmd, err)
	}
	if cmd, err := store.PrevCmd(2, ""); !matchErr(err, ErrNoMatchingCmd) {
		t.Errorf("store.PrevCmd(2, \"\") after DelCmd => (%v, %v), want %v",
			cmd, err, ErrNoMatchingCmd)
	}
	if seq, err := store.NextCmdSeq(); seq != endSeq || err != nil {
		t.Errorf("store.NextCmdSeq() after DelCmd => (%v, %v), want (%v, nil)", seq, err, endSeq)
	}
}

func matchErr(e1, e2 error) bool {
	return (e1 == nil && e2 == nil) || (e1 != nil && e2 != nil && e1.Error() == e2.Error())
}
