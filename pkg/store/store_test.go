package store_test

import (
	"errors"
	"path/filepath"
	"testing"

	"sophys.sh/cli/pkg/store"
	"sophys.sh/cli/pkg/store/storetest"
	"sophys.sh/cli/pkg/testutil"
)

func TestCmd(t *testing.T) {
	storetest.TestCmd(t, store.MustTempStore(t))
}

func TestReopen(t *testing.T) {
	path := filepath.Join(testutil.TempDir(t), "history.db")
	st, err := store.NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	st.AddCmd("count -d det")
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("second Close => %v, want nil", err)
	}
	if _, err := st.AddCmd("mov motor 1"); !errors.Is(err, store.ErrClosed) {
		t.Errorf("AddCmd after Close => %v, want %v", err, store.ErrClosed)
	}

	st, err = store.NewStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	cmd, err := st.Cmd(1)
	if cmd != "count -d det" || err != nil {
		t.Errorf("Cmd(1) after reopening => (%q, %v), want (%q, nil)", cmd, err, "count -d det")
	}
}
