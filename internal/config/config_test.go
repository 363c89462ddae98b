package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, time.Second, cfg.GetReadTimeout())
	assert.Equal(t, 1, cfg.Store.MaxOpenConns)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Partial(t *testing.T) {
	path := writeConfig(t, "receiver.yaml", `
serial:
  port: /dev/ttyAMA0
  read_timeout: 250ms
store:
  path: /var/lib/receiver/readings.db
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Serial.Port = "/dev/ttyAMA0"
	want.Serial.ReadTimeout = "250ms"
	want.Store.Path = "/var/lib/receiver/readings.db"
	want.Log.Level = "debug"
	want.Log.Format = "json"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 250*time.Millisecond, cfg.GetReadTimeout())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"wrong extension", "receiver.json", `{}`, "extension"},
		{"bad yaml", "bad.yaml", "serial: [", "parse"},
		{"bad timeout", "timeout.yaml", "serial:\n  read_timeout: soon\n", "read_timeout"},
		{"negative timeout", "neg.yaml", "serial:\n  read_timeout: -1s\n", "non-negative"},
		{"zero baud", "baud.yaml", "serial:\n  baud_rate: -5\n", "baud_rate"},
		{"empty store", "store.yml", "store:\n  path: ' '\n", "store.path"},
		{"bad format", "fmt.yaml", "log:\n  format: xml\n", "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_TooLarge(t *testing.T) {
	body := "# " + strings.Repeat("x", 1024*1024+1) + "\n"
	path := writeConfig(t, "huge.yaml", body)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := writeConfig(t, "present.yaml", "serial:\n  baud_rate: 9600\n")
	cfg, err = LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
}

func TestGetReadTimeout_Zero(t *testing.T) {
	cfg := Default()
	cfg.Serial.ReadTimeout = "0s"
	assert.Equal(t, time.Duration(0), cfg.GetReadTimeout())

	cfg.Serial.ReadTimeout = ""
	assert.Equal(t, time.Second, cfg.GetReadTimeout())
}

// The shipped example must stay in step with Default.
func TestExampleConfigMatchesDefault(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", DefaultConfigPath))
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("example config differs from Default (-want +got):\n%s", diff)
	}
}
