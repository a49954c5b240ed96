package qserver_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sophys.sh/cli/pkg/config"
	"sophys.sh/cli/pkg/env"
	"sophys.sh/cli/pkg/plan"
	"sophys.sh/cli/pkg/qserver"
	"sophys.sh/cli/pkg/qserver/qservertest"
	"sophys.sh/cli/pkg/testutil"
)

func setup(t *testing.T, cfg qservertest.Config) (*qservertest.Server, *qserver.Client) {
	t.Helper()
	srv := qservertest.New(cfg)
	t.Cleanup(srv.Close)
	return srv, qserver.New(srv.URL, cfg.APIKey, 5*time.Second)
}

func TestAllowed(t *testing.T) {
	_, c := setup(t, qservertest.Config{
		Plans:   []string{"scan", "count", "mv"},
		Devices: []string{"motor", "det"},
	})
	ctx := context.Background()

	plans, err := c.AllowedPlans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"count", "mv", "scan"}, plans)

	devices, err := c.AllowedDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"det", "motor"}, devices)
}

func TestStatus(t *testing.T) {
	_, c := setup(t, qservertest.Config{EnvironmentOpen: true})
	s, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "idle", s.ManagerState)
	assert.True(t, s.WorkerEnvironmentExists)
	assert.Equal(t, 0, s.ItemsInQueue)
}

func TestAPIKey(t *testing.T) {
	srv, _ := setup(t, qservertest.Config{APIKey: "secret"})

	bad := qserver.New(srv.URL, "wrong", time.Second)
	_, err := bad.Status(context.Background())
	var qerr *qserver.Error
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, http.StatusUnauthorized, qerr.StatusCode)
	assert.Equal(t, "Invalid API key", qerr.Msg)

	good := qserver.New(srv.URL, "secret", time.Second)
	_, err = good.Status(context.Background())
	assert.NoError(t, err)
}

func TestAddItem(t *testing.T) {
	srv, c := setup(t, qservertest.Config{EnvironmentOpen: true})
	c.User = "sirius"
	item := plan.Item{
		Name:   "count",
		Args:   []any{[]string{"det"}},
		Kwargs: map[string]any{"num": 3, "md": map[string]any{"MNEMONICS": "det"}},
	}
	queued, err := c.AddItem(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, "count", queued.Name)
	assert.Equal(t, "plan", queued.ItemType)
	assert.NotEmpty(t, queued.UID)

	got := srv.Queue()
	require.Len(t, got, 1)
	assert.Equal(t, queued.UID, got[0].UID)
	assert.Equal(t, "sirius", got[0].User)
	assert.Equal(t, []any{[]any{"det"}}, got[0].Args)
	assert.Equal(t, map[string]any{"num": 3.0, "md": map[string]any{"MNEMONICS": "det"}}, got[0].Kwargs)

	items, running, err := c.Queue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, running)
	require.Len(t, items, 1)
	assert.Equal(t, queued.UID, items[0].UID)
}

func TestAddItem_OpensEnvironmentOnce(t *testing.T) {
	srv, c := setup(t, qservertest.Config{})
	_, err := c.AddItem(context.Background(), plan.Item{Name: "mv", Args: []any{"motor", 1.0}})
	require.NoError(t, err)
	assert.True(t, srv.EnvironmentOpen())
	assert.Equal(t, []string{
		"POST /api/queue/item/add",
		"POST /api/environment/open",
		"POST /api/queue/item/add",
	}, srv.Requests())
}

func TestAddItem_RejectedItemIsNotRetried(t *testing.T) {
	srv, c := setup(t, qservertest.Config{EnvironmentOpen: true, Plans: []string{"count"}})
	_, err := c.AddItem(context.Background(), plan.Item{Name: "scan"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, qserver.ErrNoEnvironment))
	assert.Contains(t, err.Error(), "not in the list of allowed plans")
	assert.Len(t, srv.Requests(), 1)
}

func TestStartQueue(t *testing.T) {
	srv, c := setup(t, qservertest.Config{})
	ctx := context.Background()

	err := c.StartQueue(ctx)
	assert.ErrorIs(t, err, qserver.ErrNoEnvironment)

	require.NoError(t, c.OpenEnvironment(ctx))
	require.NoError(t, c.StartQueue(ctx))
	assert.True(t, srv.Running())

	err = c.OpenEnvironment(ctx)
	assert.ErrorContains(t, err, "already exists")
}

func TestFromConfig(t *testing.T) {
	testutil.Setenv(t, env.USER, "sirius")
	c := qserver.FromConfig(config.QueueServer{Host: "beamline", Port: 60610})
	assert.Equal(t, "http://beamline:60610", c.Base())
	assert.Equal(t, "sirius", c.User)
}

func TestUnreachable(t *testing.T) {
	srv, c := setup(t, qservertest.Config{})
	srv.Close()
	_, err := c.Status(context.Background())
	assert.Error(t, err)
}
