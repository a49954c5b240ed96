package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"sophys.sh/cli/pkg/must"
)

type cleanuper struct{ fns []func() }

func (c *cleanuper) Cleanup(fn func()) { c.fns = append(c.fns, fn) }

func (c *cleanuper) runCleanups() {
	for i := len(c.fns) - 1; i >= 0; i-- {
		c.fns[i]()
	}
}

func TestTempDir_CleanupRemovesDirRecursively(t *testing.T) {
	c := &cleanuper{}
	dir := TempDir(c)
	must.WriteFile(filepath.Join(dir, "a"), "test")

	c.runCleanups()
	if _, err := os.Stat(dir); err == nil {
		t.Errorf("Dir %q still exists after cleanup", dir)
	}
}

func TestChdir(t *testing.T) {
	dir := TempDir(t)
	original := must.OK1(os.Getwd())

	c := &cleanuper{}
	Chdir(c, dir)
	if after := must.OK1(os.Getwd()); after != dir {
		t.Errorf("pwd is now %q, want %q", after, dir)
	}

	c.runCleanups()
	if restored := must.OK1(os.Getwd()); restored != original {
		t.Errorf("pwd restored to %q, want %q", restored, original)
	}
}

func TestApplyDir(t *testing.T) {
	InTempDir(t)
	ApplyDir(Dir{
		"a.csv": "name,type\n",
		"d":     Dir{"b": "b content"},
	})
	if got := must.ReadFileString("a.csv"); got != "name,type\n" {
		t.Errorf("a.csv = %q", got)
	}
	if got := must.ReadFileString("d/b"); got != "b content" {
		t.Errorf("d/b = %q", got)
	}
}

func TestSetenv(t *testing.T) {
	const name = "SOPHYS_CLI_TESTUTIL_VAR"
	os.Unsetenv(name)
	c := &cleanuper{}
	Setenv(c, name, "x")
	if os.Getenv(name) != "x" {
		t.Errorf("Setenv did not set")
	}
	c.runCleanups()
	if _, ok := os.LookupEnv(name); ok {
		t.Errorf("Setenv did not restore unset state")
	}
}

func TestSet(t *testing.T) {
	v := 1
	c := &cleanuper{}
	Set(c, &v, 2)
	if v != 2 {
		t.Errorf("Set did not set")
	}
	c.runCleanups()
	if v != 1 {
		t.Errorf("Set did not restore")
	}
}

func TestScaled(t *testing.T) {
	Setenv(t, TestTimeScaleEnv, "2")
	if got := Scaled(time.Second); got != 2*time.Second {
		t.Errorf("Scaled(1s) = %v", got)
	}
	Setenv(t, TestTimeScaleEnv, "bad")
	if got := Scaled(time.Second); got != time.Second {
		t.Errorf("Scaled(1s) with invalid scale = %v", got)
	}
}
