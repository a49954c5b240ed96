package logutil

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetLogger_FollowsSetOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := GetLogger("test/output")

	logger.Info().Msg("dropped")
	SetOutput(&buf)
	defer SetOutput(io.Discard)
	logger.Info().Str("plan", "scan").Msg("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("message logged before SetOutput leaked: %q", out)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(out), &entry); err != nil {
		t.Fatalf("output is not a JSON line: %v (%q)", err, out)
	}
	if entry["component"] != "test/output" || entry["plan"] != "scan" || entry["message"] != "kept" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestGetLogger_SameComponentSameLogger(t *testing.T) {
	if GetLogger("a") != GetLogger("a") {
		t.Errorf("GetLogger returned distinct loggers for the same component")
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(io.Discard)
	logger := GetLogger("test/level")

	if err := SetLevel("warn"); err != nil {
		t.Fatal(err)
	}
	defer SetLevel("info")
	logger.Info().Msg("quiet")
	logger.Warn().Msg("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Errorf("level not applied: %q", buf.String())
	}

	if err := SetLevel("bogus"); err == nil {
		t.Errorf("SetLevel(bogus) -> nil error")
	}
}

func TestSetOutputFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "log")
	if err := SetOutputFile(fname); err != nil {
		t.Fatal(err)
	}
	defer SetOutput(io.Discard)
	GetLogger("test/file").Info().Msg("to file")

	data, err := os.ReadFile(fname)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file content %q", data)
	}
}
