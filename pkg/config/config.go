// Package config loads the sophys-cli configuration.
//
// Settings are resolved in increasing order of precedence: built-in
// defaults, the YAML configuration file, SOPHYS_CLI_* environment variables,
// and finally command-line flags, which callers apply on the returned
// Config.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sophys.sh/cli/pkg/env"
)

// Config is the complete configuration.
type Config struct {
	// Name of the beamline extension to load: common, ema, ipe or spe.
	Extension string `yaml:"extension"`
	// Run plans in-process against simulated hardware instead of sending
	// them to the queue server.
	Local bool `yaml:"local"`

	QueueServer QueueServer `yaml:"queueserver"`
	DataSource  DataSource  `yaml:"datasource"`
	History     History     `yaml:"history"`
	Documents   Documents   `yaml:"documents"`
	Log         Log         `yaml:"log"`
}

// QueueServer configures the HTTP client of the queue server.
type QueueServer struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// URL returns the base URL of the queue server.
func (q QueueServer) URL() string {
	return "http://" + q.Host + ":" + strconv.Itoa(q.Port)
}

// DataSource kinds.
const (
	DataSourceMemory = "memory"
	DataSourceCSV    = "csv"
	DataSourceRedis  = "redis"
)

// DataSource configures where instrument selections are kept.
type DataSource struct {
	Kind  string `yaml:"kind"`
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
	Redis Redis  `yaml:"redis"`
}

// Redis configures a Redis connection.
type Redis struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	DB   int    `yaml:"db"`
}

// Addr returns host:port.
func (r Redis) Addr() string { return r.Host + ":" + strconv.Itoa(r.Port) }

// History configures the command history database.
type History struct {
	// Path of the database. Empty means the default location in the state
	// directory.
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

// Documents configures where documents of local runs go.
type Documents struct {
	// JSON lines file to append documents to.
	File string `yaml:"file"`
	MQTT MQTT   `yaml:"mqtt"`
}

// MQTT configures the MQTT document publisher. An empty Broker disables it.
type MQTT struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// Log configures logging.
type Log struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Extension: "common",
		QueueServer: QueueServer{
			Host:    "localhost",
			Port:    60610,
			Timeout: 10 * time.Second,
		},
		DataSource: DataSource{
			Kind:  DataSourceMemory,
			Redis: Redis{Host: "localhost", Port: 6379},
		},
		Documents: Documents{
			MQTT: MQTT{Topic: "sophys/documents", ClientID: "sophys-cli"},
		},
		Log: Log{Level: "info"},
	}
}

// Load returns the configuration from the defaults, the file at path and the
// environment. When path is empty, $SOPHYS_CLI_CONFIG is used; when that is
// empty too, no file is read.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(env.SOPHYS_CLI_CONFIG)
	}
	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := mergeEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Parses a YAML file strictly over cfg. Unknown fields are errors.
func loadFile(path string, cfg *Config) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format %q (only YAML supported)", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("multiple documents or trailing content")
	}
	return nil
}

func mergeEnv(cfg *Config) error {
	cfg.QueueServer.Host = envString(env.SOPHYS_CLI_HTTPSERVER_HOST, cfg.QueueServer.Host)
	cfg.QueueServer.APIKey = envString(env.SOPHYS_CLI_API_KEY, cfg.QueueServer.APIKey)
	cfg.DataSource.Redis.Host = envString(env.SOPHYS_CLI_REDIS_HOST, cfg.DataSource.Redis.Host)
	cfg.Documents.MQTT.Broker = envString(env.SOPHYS_CLI_MQTT_BROKER, cfg.Documents.MQTT.Broker)

	var err error
	if cfg.QueueServer.Port, err = envInt(env.SOPHYS_CLI_HTTPSERVER_PORT, cfg.QueueServer.Port); err != nil {
		return err
	}
	if cfg.DataSource.Redis.Port, err = envInt(env.SOPHYS_CLI_REDIS_PORT, cfg.DataSource.Redis.Port); err != nil {
		return err
	}
	return nil
}

func envString(name, def string) string {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v
	}
	return def
}

func envInt(name string, def int) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("$%s: invalid port %q", name, v)
	}
	return i, nil
}

// Validate checks the consistency of the configuration.
func (cfg *Config) Validate() error {
	switch cfg.DataSource.Kind {
	case DataSourceMemory, DataSourceRedis:
	case DataSourceCSV:
		if !strings.HasSuffix(cfg.DataSource.Path, ".csv") {
			return fmt.Errorf("datasource: csv data source needs a path ending in .csv, got %q", cfg.DataSource.Path)
		}
	default:
		return fmt.Errorf("datasource: unknown kind %q", cfg.DataSource.Kind)
	}
	if cfg.QueueServer.Port <= 0 || cfg.QueueServer.Port > 65535 {
		return fmt.Errorf("queueserver: invalid port %d", cfg.QueueServer.Port)
	}
	return nil
}
