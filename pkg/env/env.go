// Package env keeps names of environment variables with special significance to
// sophys-cli.
package env

// Environment variables with special significance to sophys-cli.
//
// The SOPHYS_CLI_ ones override the corresponding settings of the
// configuration file; the rest are read for the prompt and data paths.
const (
	SOPHYS_CLI_CONFIG          = "SOPHYS_CLI_CONFIG"
	SOPHYS_CLI_HTTPSERVER_HOST = "SOPHYS_CLI_HTTPSERVER_HOST"
	SOPHYS_CLI_HTTPSERVER_PORT = "SOPHYS_CLI_HTTPSERVER_PORT"
	SOPHYS_CLI_API_KEY         = "SOPHYS_CLI_API_KEY"
	SOPHYS_CLI_REDIS_HOST      = "SOPHYS_CLI_REDIS_HOST"
	SOPHYS_CLI_REDIS_PORT      = "SOPHYS_CLI_REDIS_PORT"
	SOPHYS_CLI_MQTT_BROKER     = "SOPHYS_CLI_MQTT_BROKER"

	HOME           = "HOME"
	USER           = "USER"
	XDG_STATE_HOME = "XDG_STATE_HOME"
)
