// Package config loads gateway configuration from the environment and
// mock-service definitions from an optional YAML seed file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvPort          = "MOCKGATE_PORT"
	EnvServicesFile  = "MOCKGATE_SERVICES"
	EnvLogDir        = "LOG_DIR"
	EnvLogMaxSize    = "LOG_MAX_SIZE"
	EnvLogBackups    = "LOG_BACKUP_COUNT"
	EnvLogRotation   = "LOG_ROTATION_TIME"
	EnvLogLevel      = "LOG_LEVEL"
)

// Config is the gateway's startup configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int

	// ServicesFile optionally seeds the service set from YAML.
	ServicesFile string

	// LogDir holds the request log and its archives.
	LogDir string

	// LogMaxBytes is the size-rotation threshold.
	LogMaxBytes int64

	// LogBackupCount caps archived request-log files.
	LogBackupCount int

	// LogRotationTime enables time rotation (Nd, Nh, Nw) when set.
	LogRotationTime string

	// LogLevel is the application log level. It does not affect
	// request-log records.
	LogLevel string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:           8080,
		LogDir:         "logs",
		LogMaxBytes:    50 << 20,
		LogBackupCount: 10,
		LogLevel:       "info",
	}
}

// LoadEnv overlays environment variables onto the config. Only
// variables present in the environment overwrite fields; parse
// failures are returned, not ignored, since a half-applied
// configuration is worse than a refused start.
func LoadEnv(cfg *Config) error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid %s %q", EnvPort, v)
		}
		cfg.Port = port
	}
	if v := os.Getenv(EnvServicesFile); v != "" {
		cfg.ServicesFile = v
	}
	if v := os.Getenv(EnvLogDir); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv(EnvLogMaxSize); v != "" {
		size, err := ParseSize(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvLogMaxSize, err)
		}
		cfg.LogMaxBytes = size
	}
	if v := os.Getenv(EnvLogBackups); v != "" {
		count, err := strconv.Atoi(v)
		if err != nil || count < 1 {
			return fmt.Errorf("invalid %s %q", EnvLogBackups, v)
		}
		cfg.LogBackupCount = count
	}
	if v := os.Getenv(EnvLogRotation); v != "" {
		cfg.LogRotationTime = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

// ParseSize parses "<n>[KB|MB|GB]" (case-insensitive); a bare number
// is bytes.
func ParseSize(s string) (int64, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(raw, "KB"):
		multiplier = 1 << 10
		raw = strings.TrimSuffix(raw, "KB")
	case strings.HasSuffix(raw, "MB"):
		multiplier = 1 << 20
		raw = strings.TrimSuffix(raw, "MB")
	case strings.HasSuffix(raw, "GB"):
		multiplier = 1 << 30
		raw = strings.TrimSuffix(raw, "GB")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * multiplier, nil
}
