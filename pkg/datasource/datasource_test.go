package datasource

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sophys.sh/cli/pkg/must"
	"sophys.sh/cli/pkg/testutil"
)

var ctx = context.Background()

func copyTestCSV(t *testing.T) string {
	t.Helper()
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "selection.csv")
	must.WriteFile(path, must.ReadFileString("testdata/selection.csv"))
	return path
}

func TestParseDataType(t *testing.T) {
	for _, dt := range DataTypes {
		got, err := ParseDataType(string(dt))
		require.NoError(t, err)
		assert.Equal(t, dt, got)
	}
	got, err := ParseDataType("detectors")
	require.NoError(t, err)
	assert.Equal(t, Detectors, got)
	_, err = ParseDataType("monitor")
	assert.ErrorContains(t, err, `unknown data type "monitor"`)
}

func TestMemory(t *testing.T) {
	var m Memory
	names, err := m.Get(ctx, Detectors)
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, m.Add(ctx, Detectors, "det2"))
	require.NoError(t, m.Add(ctx, Detectors, "det1"))
	require.NoError(t, m.Add(ctx, Detectors, "det2"))
	names, _ = m.Get(ctx, Detectors)
	assert.Equal(t, []string{"det2", "det1"}, names)

	require.NoError(t, m.Remove(ctx, Detectors, "det2"))
	require.NoError(t, m.Remove(ctx, Detectors, "nope"))
	require.NoError(t, m.Remove(ctx, After, "nope"))
	names, _ = m.Get(ctx, Detectors)
	assert.Equal(t, []string{"det1"}, names)

	// Returned slices are copies.
	names[0] = "changed"
	again, _ := m.Get(ctx, Detectors)
	assert.Equal(t, []string{"det1"}, again)
}

func TestMemory_RemoveBeforeAdd(t *testing.T) {
	var zero Memory
	assert.NoError(t, zero.Remove(ctx, Detectors, "det1"))
	assert.NoError(t, NewMemory(nil).Remove(ctx, Detectors, "det1"))
	names, _ := zero.Get(ctx, Detectors)
	assert.Empty(t, names)
}

func TestCSVFile_Get(t *testing.T) {
	f, err := OpenCSVFile("testdata/selection.csv")
	require.NoError(t, err)
	assert.Equal(t, 9, f.Rows())

	snap, err := Snapshot(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, map[DataType][]string{
		Detectors: {"abc1", "abc2", "abc3"},
		Before:    {"xyz1"},
		During:    {"mno1", "mno2"},
		After:     {"rst1", "rst2"},
		Main:      {"abc2"},
	}, snap)
}

func TestCSVFile_RejectsOtherExtensions(t *testing.T) {
	_, err := OpenCSVFile("testdata/selection.txt")
	assert.ErrorIs(t, err, ErrNotCSV)
}

func TestCSVFile_BadHeader(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "bad.csv")
	must.WriteFile(path, "mnemonic,kind\nabc,detector\n")
	_, err := OpenCSVFile(path)
	assert.ErrorContains(t, err, "lacks a name or type column")
}

func TestCSVFile_AddRemovePersist(t *testing.T) {
	path := copyTestCSV(t)
	f, err := OpenCSVFile(path)
	require.NoError(t, err)

	require.NoError(t, f.Add(ctx, Before, "xyz2"))
	require.NoError(t, f.Add(ctx, Before, "xyz2"))
	require.NoError(t, f.Remove(ctx, Detectors, "abc1"))

	reopened, err := OpenCSVFile(path)
	require.NoError(t, err)
	before, _ := reopened.Get(ctx, Before)
	assert.Equal(t, []string{"xyz1", "xyz2"}, before)
	dets, _ := reopened.Get(ctx, Detectors)
	assert.Equal(t, []string{"abc2", "abc3"}, dets)
	assert.Equal(t, 9, reopened.Rows())
}

func TestCSVFile_MissingFileIsCreatedOnAdd(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "new.csv")
	f, err := OpenCSVFile(path)
	require.NoError(t, err)
	names, _ := f.Get(ctx, Detectors)
	assert.Empty(t, names)

	require.NoError(t, f.Add(ctx, Detectors, "det1"))
	assert.Equal(t, "name,type\ndet1,detector\n", must.ReadFileString(path))
}

func TestCSVFile_WatchReloads(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := copyTestCSV(t)
	f, err := OpenCSVFile(path)
	require.NoError(t, err)
	f.Debounce = 10 * time.Millisecond
	reloaded := make(chan struct{}, 1)
	f.OnReload(func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- f.Watch(watchCtx) }()

	// Another writer changes the file; keep writing until the watcher, which
	// may not have started yet, notices.
	other, err := OpenCSVFile(path)
	require.NoError(t, err)
	timeout := time.After(testutil.Scaled(5 * time.Second))
	tick := time.NewTicker(testutil.Scaled(50 * time.Millisecond))
	defer tick.Stop()
	n := 0
wait:
	for {
		select {
		case <-reloaded:
			break wait
		case <-tick.C:
			n++
			require.NoError(t, other.Add(ctx, During, "mno"+string(rune('3'+n%5))))
		case <-timeout:
			t.Fatal("watcher did not reload the file")
		}
	}
	during, _ := f.Get(ctx, During)
	assert.Greater(t, len(during), 2)

	cancel()
	require.NoError(t, <-done)
}

func TestCSVFile_WatchIgnoresOtherFiles(t *testing.T) {
	path := copyTestCSV(t)
	f, err := OpenCSVFile(path)
	require.NoError(t, err)
	f.Debounce = time.Millisecond
	reloaded := make(chan struct{}, 1)
	f.OnReload(func() { reloaded <- struct{}{} })

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go f.Watch(watchCtx)

	must.WriteFile(filepath.Join(filepath.Dir(path), "other.csv"), "name,type\n")
	select {
	case <-reloaded:
		t.Error("watcher reloaded on a change to another file")
	case <-time.After(testutil.Scaled(100 * time.Millisecond)):
	}
}

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedis(client)
}

func TestRedis(t *testing.T) {
	mr, r := setupMiniRedis(t)

	names, err := r.Get(ctx, Detectors)
	require.NoError(t, err)
	assert.Empty(t, names)

	mr.SAdd("sophys_detectors", "abc3", "abc1")
	mr.SAdd("sophys_metadata_read_during", "mno1")
	names, err = r.Get(ctx, Detectors)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc1", "abc3"}, names)

	require.NoError(t, r.Add(ctx, During, "mno2"))
	require.NoError(t, r.Add(ctx, Main, "abc1"))
	require.NoError(t, r.Remove(ctx, Detectors, "abc3"))

	members, err := mr.SMembers("sophys_metadata_read_during")
	require.NoError(t, err)
	assert.Equal(t, []string{"mno1", "mno2"}, members)
	assert.True(t, mr.Exists("sophys_main_counter"))
	names, _ = r.Get(ctx, Detectors)
	assert.Equal(t, []string{"abc1"}, names)
}

func TestRedis_UnknownType(t *testing.T) {
	_, r := setupMiniRedis(t)
	_, err := r.Get(ctx, DataType("monitor"))
	assert.ErrorContains(t, err, "no redis key")
	assert.Error(t, r.Add(ctx, DataType("monitor"), "x"))
	assert.Error(t, r.Remove(ctx, DataType("monitor"), "x"))
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := DialRedis(ctx, mr.Addr(), 0)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Add(ctx, Before, "xyz1"))
	assert.True(t, mr.Exists("sophys_metadata_read_before"))

	addr := mr.Addr()
	mr.Close()
	_, err = DialRedis(ctx, addr, 0)
	assert.ErrorContains(t, err, "redis connection")
}
