package config

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"sophys.sh/cli/pkg/env"
	"sophys.sh/cli/pkg/must"
	"sophys.sh/cli/pkg/testutil"
)

func clearEnv(t *testing.T) {
	for _, name := range []string{
		env.SOPHYS_CLI_CONFIG, env.SOPHYS_CLI_HTTPSERVER_HOST, env.SOPHYS_CLI_HTTPSERVER_PORT,
		env.SOPHYS_CLI_API_KEY, env.SOPHYS_CLI_REDIS_HOST, env.SOPHYS_CLI_REDIS_PORT,
		env.SOPHYS_CLI_MQTT_BROKER,
	} {
		testutil.Unsetenv(t, name)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
	if got := cfg.QueueServer.URL(); got != "http://localhost:60610" {
		t.Errorf("URL() = %q", got)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	testutil.InTempDir(t)
	must.WriteFile("sophys.yaml", `
extension: ema
local: true
queueserver:
  host: qserver.lnls
  port: 8080
  timeout: 3s
datasource:
  kind: csv
  path: selection.csv
  watch: true
history:
  disabled: true
`)
	testutil.Setenv(t, env.SOPHYS_CLI_CONFIG, "sophys.yaml")
	testutil.Setenv(t, env.SOPHYS_CLI_HTTPSERVER_PORT, "9090")
	testutil.Setenv(t, env.SOPHYS_CLI_REDIS_HOST, "redis.lnls")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	want.Extension = "ema"
	want.Local = true
	want.QueueServer = QueueServer{Host: "qserver.lnls", Port: 9090, Timeout: 3 * time.Second}
	want.DataSource.Kind = DataSourceCSV
	want.DataSource.Path = "selection.csv"
	want.DataSource.Watch = true
	want.DataSource.Redis.Host = "redis.lnls"
	want.History.Disabled = true
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config (-want +got):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)
	testutil.InTempDir(t)
	testutil.ApplyDir(testutil.Dir{
		"unknown.yaml": "bogus: 1\n",
		"two.yaml":     "local: true\n---\nlocal: false\n",
		"kind.yaml":    "datasource:\n  kind: sqlite\n",
		"csv.yaml":     "datasource:\n  kind: csv\n  path: selection.txt\n",
		"conf.toml":    "",
	})
	for _, tc := range []struct{ file, want string }{
		{"unknown.yaml", "field bogus not found"},
		{"two.yaml", "multiple documents"},
		{"kind.yaml", `unknown kind "sqlite"`},
		{"csv.yaml", "path ending in .csv"},
		{"conf.toml", "only YAML supported"},
		{"missing.yaml", "no such file"},
	} {
		_, err := Load(tc.file)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("Load(%q) error = %v, want containing %q", tc.file, err, tc.want)
		}
	}

	testutil.Setenv(t, env.SOPHYS_CLI_REDIS_PORT, "redis")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "invalid port") {
		t.Errorf("Load with bad port env = %v", err)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	clearEnv(t)
	testutil.InTempDir(t)
	must.WriteFile("empty.yml", "")
	cfg, err := Load("empty.yml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Extension != "common" {
		t.Errorf("Extension = %q, want default", cfg.Extension)
	}
}
