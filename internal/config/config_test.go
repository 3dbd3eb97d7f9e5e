package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerSettingString(t *testing.T) {
	tests := []struct {
		name string
		ws   WorkerSetting
		want string
	}{
		{"auto mode", WorkerSetting{Mode: WorkersAuto}, "auto"},
		{"fixed mode 4", WorkerSetting{Mode: WorkersFixed, Value: 4}, "4"},
		{"fixed mode 0", WorkerSetting{Mode: WorkersFixed, Value: 0}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ws.String()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HYDRANET_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, WorkersAuto, cfg.TCP.AcceptThreads.Mode)
	assert.Equal(t, "pool.ntp.org", cfg.NTP.Server)
	assert.Equal(t, "2s", cfg.DNS.Timeout)
	assert.Equal(t, 2, cfg.DNS.MaxRetries)
	assert.False(t, cfg.TLS.InsecureSkipVerify)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	content := `
dns:
  servers:
    - "1.1.1.1"
    - "9.9.9.9"
  timeout: "1s"
  max_retries: 1

tcp:
  accept_threads: "2"
  direct_writes: true

logging:
  level: "DEBUG"
  structured: true
  structured_format: "keyvalue"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"1.1.1.1", "9.9.9.9"}, cfg.DNS.Servers)
	assert.Equal(t, "1s", cfg.DNS.Timeout)
	assert.Equal(t, 1, cfg.DNS.MaxRetries)
	assert.Equal(t, WorkersFixed, cfg.TCP.AcceptThreads.Mode)
	assert.Equal(t, 2, cfg.TCP.AcceptThreads.Value)
	assert.True(t, cfg.TCP.DirectWrites)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Structured)
	assert.Equal(t, "keyvalue", cfg.Logging.StructuredFormat)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dns:\n  max_retries: [invalid"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeInvalidMaxRetries(t *testing.T) {
	content := `
dns:
  max_retries: -1
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeInvalidAcceptThreads(t *testing.T) {
	content := `
tcp:
  accept_threads: "bogus"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	// With Viper, an unparsable accept_threads value gracefully defaults to "auto".
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, WorkersAuto, cfg.TCP.AcceptThreads.Mode)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HYDRANET_DNS_SERVERS", "1.1.1.1,8.8.8.8")
	t.Setenv("HYDRANET_DNS_TIMEOUT", "500ms")
	t.Setenv("HYDRANET_TCP_ACCEPT_THREADS", "8")
	t.Setenv("HYDRANET_TLS_INSECURE_SKIP_VERIFY", "true")
	t.Setenv("HYDRANET_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Len(t, cfg.DNS.Servers, 2)
	assert.Equal(t, "500ms", cfg.DNS.Timeout)
	assert.Equal(t, WorkersFixed, cfg.TCP.AcceptThreads.Mode)
	assert.Equal(t, 8, cfg.TCP.AcceptThreads.Value)
	assert.True(t, cfg.TLS.InsecureSkipVerify)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}
