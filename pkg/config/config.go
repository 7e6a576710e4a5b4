package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Host           string
	Ports          []int
	LockPath       string
	LockExpiry     time.Duration
	PollInterval   time.Duration
	JoinAttempts   int
	JoinRetryDelay time.Duration
	PingTimeout    time.Duration
	DataDir        string
	HTTPAddr       string
	LogLevel       string
	LogJSON        bool
}

// on-disk form, durations are strings like "5s"
type fileConfig struct {
	Host           *string `toml:"host"`
	Ports          []int   `toml:"ports"`
	LockPath       *string `toml:"lock_path"`
	LockExpiry     *string `toml:"lock_expiry"`
	PollInterval   *string `toml:"poll_interval"`
	JoinAttempts   *int    `toml:"join_attempts"`
	JoinRetryDelay *string `toml:"join_retry_delay"`
	PingTimeout    *string `toml:"ping_timeout"`
	DataDir        *string `toml:"data_dir"`
	HTTPAddr       *string `toml:"http_addr"`
	LogLevel       *string `toml:"log_level"`
	LogJSON        *bool   `toml:"log_json"`
}

func Default() Config {
	return Config{
		Host:           "127.0.0.1",
		Ports:          []int{47001, 47002, 47003},
		LockPath:       filepath.Join(os.TempDir(), "throttled.lock"),
		LockExpiry:     5 * time.Second,
		PollInterval:   10 * time.Millisecond,
		JoinAttempts:   5,
		JoinRetryDelay: time.Second,
		PingTimeout:    500 * time.Millisecond,
		LogLevel:       "info",
	}
}

// defaults, then the TOML file at path if any, then THROTTLE_* variables
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	setString(&c.Host, fc.Host)
	setString(&c.LockPath, fc.LockPath)
	setString(&c.DataDir, fc.DataDir)
	setString(&c.HTTPAddr, fc.HTTPAddr)
	setString(&c.LogLevel, fc.LogLevel)
	if fc.Ports != nil {
		c.Ports = fc.Ports
	}
	if fc.JoinAttempts != nil {
		c.JoinAttempts = *fc.JoinAttempts
	}
	if fc.LogJSON != nil {
		c.LogJSON = *fc.LogJSON
	}

	durations := []struct {
		name string
		raw  *string
		dst  *time.Duration
	}{
		{"lock_expiry", fc.LockExpiry, &c.LockExpiry},
		{"poll_interval", fc.PollInterval, &c.PollInterval},
		{"join_retry_delay", fc.JoinRetryDelay, &c.JoinRetryDelay},
		{"ping_timeout", fc.PingTimeout, &c.PingTimeout},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}

	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("THROTTLE_HOST"); ok {
		c.Host = v
	}
	if v, ok := get("THROTTLE_PORTS"); ok {
		ports, err := ParsePorts(v)
		if err != nil {
			return fmt.Errorf("THROTTLE_PORTS: %w", err)
		}
		c.Ports = ports
	}
	if v, ok := get("THROTTLE_LOCK_PATH"); ok {
		c.LockPath = v
	}
	if v, ok := get("THROTTLE_DATA_DIR"); ok {
		c.DataDir = v
	}
	if v, ok := get("THROTTLE_HTTP_ADDR"); ok {
		c.HTTPAddr = v
	}
	if v, ok := get("THROTTLE_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
	if v, ok := get("THROTTLE_LOG_JSON"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("THROTTLE_LOG_JSON: %w", err)
		}
		c.LogJSON = b
	}
	if v, ok := get("THROTTLE_JOIN_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("THROTTLE_JOIN_ATTEMPTS: %w", err)
		}
		c.JoinAttempts = n
	}

	durations := map[string]*time.Duration{
		"THROTTLE_LOCK_EXPIRY":      &c.LockExpiry,
		"THROTTLE_POLL_INTERVAL":    &c.PollInterval,
		"THROTTLE_JOIN_RETRY_DELAY": &c.JoinRetryDelay,
		"THROTTLE_PING_TIMEOUT":     &c.PingTimeout,
	}
	for key, dst := range durations {
		v, ok := get(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	return nil
}

func (c Config) Validate() error {
	if len(c.Ports) == 0 {
		return errors.New("at least one candidate port is required")
	}
	for _, p := range c.Ports {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid port %d", p)
		}
	}
	if c.LockPath == "" {
		return errors.New("lock path is required")
	}
	if c.JoinAttempts < 1 {
		return fmt.Errorf("join attempts must be at least 1, got %d", c.JoinAttempts)
	}

	positive := map[string]time.Duration{
		"lock expiry":      c.LockExpiry,
		"poll interval":    c.PollInterval,
		"join retry delay": c.JoinRetryDelay,
		"ping timeout":     c.PingTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	return nil
}

// parses a comma separated port list like "47001, 47002"
func ParsePorts(raw string) ([]int, error) {
	var ports []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", part)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
