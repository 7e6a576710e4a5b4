package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.LockExpiry)
	assert.Equal(t, 10*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5, cfg.JoinAttempts)
	assert.Equal(t, time.Second, cfg.JoinRetryDelay)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "throttled.toml")
	content := `
host = "0.0.0.0"
ports = [5001, 5002]
lock_path = "/var/run/throttled.lock"
lock_expiry = "2s"
poll_interval = "25ms"
join_attempts = 7
data_dir = "/var/lib/throttled"
log_json = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := Default()
	require.NoError(t, cfg.applyFile(path))

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, []int{5001, 5002}, cfg.Ports)
	assert.Equal(t, "/var/run/throttled.lock", cfg.LockPath)
	assert.Equal(t, 2*time.Second, cfg.LockExpiry)
	assert.Equal(t, 25*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 7, cfg.JoinAttempts)
	assert.Equal(t, "/var/lib/throttled", cfg.DataDir)
	assert.True(t, cfg.LogJSON)
	// untouched fields keep defaults
	assert.Equal(t, time.Second, cfg.JoinRetryDelay)
}

func TestLoadFileBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "throttled.toml")
	require.NoError(t, os.WriteFile(path, []byte(`lock_expiry = "soon"`), 0644))

	cfg := Default()
	assert.Error(t, cfg.applyFile(path))
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"THROTTLE_PORTS":            "6001, 6002,6003",
		"THROTTLE_LOCK_PATH":        "/tmp/other.lock",
		"THROTTLE_JOIN_RETRY_DELAY": "250ms",
		"THROTTLE_JOIN_ATTEMPTS":    "3",
		"THROTTLE_LOG_JSON":         "true",
		"THROTTLE_HTTP_ADDR":        ":9090",
		"THROTTLE_LOG_LEVEL":        "  ",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))

	assert.Equal(t, []int{6001, 6002, 6003}, cfg.Ports)
	assert.Equal(t, "/tmp/other.lock", cfg.LockPath)
	assert.Equal(t, 250*time.Millisecond, cfg.JoinRetryDelay)
	assert.Equal(t, 3, cfg.JoinAttempts)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel, "blank values are ignored")
}

func TestApplyEnvErrors(t *testing.T) {
	for key, value := range map[string]string{
		"THROTTLE_PORTS":         "6001,abc",
		"THROTTLE_LOCK_EXPIRY":   "5 seconds",
		"THROTTLE_JOIN_ATTEMPTS": "many",
		"THROTTLE_LOG_JSON":      "perhaps",
	} {
		cfg := Default()
		err := cfg.applyEnv(func(k string) (string, bool) {
			if k == key {
				return value, true
			}
			return "", false
		})
		assert.Error(t, err, key)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "throttled.toml")
	require.NoError(t, os.WriteFile(path, []byte("ports = [5001]\njoin_attempts = 9\n"), 0644))
	t.Setenv("THROTTLE_PORTS", "7001")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{7001}, cfg.Ports, "environment overrides the file")
	assert.Equal(t, 9, cfg.JoinAttempts)
}

func TestValidate(t *testing.T) {
	mutate := map[string]func(*Config){
		"no ports":       func(c *Config) { c.Ports = nil },
		"bad port":       func(c *Config) { c.Ports = []int{70000} },
		"no lock path":   func(c *Config) { c.LockPath = "" },
		"zero attempts":  func(c *Config) { c.JoinAttempts = 0 },
		"zero expiry":    func(c *Config) { c.LockExpiry = 0 },
		"negative poll":  func(c *Config) { c.PollInterval = -time.Millisecond },
		"zero ping wait": func(c *Config) { c.PingTimeout = 0 },
	}

	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			fn(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParsePorts(t *testing.T) {
	ports, err := ParsePorts("1, 2,,3 ")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ports)

	_, err = ParsePorts("1,x")
	assert.Error(t, err)
}
