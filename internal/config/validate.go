package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}

	validAuthModes := []string{"jwt", "token"}
	switch {
	case cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode):
		add("gateway.auth.mode", "must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode)
	case cfg.Gateway.Auth.Mode == "jwt" && cfg.Gateway.Auth.JWTSecret == "":
		add("gateway.auth.jwtSecret", "required when auth mode is jwt")
	case cfg.Gateway.Auth.Mode == "token" && cfg.Gateway.Auth.Token == "":
		add("gateway.auth.token", "required when auth mode is token")
	}

	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		add("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}
	if cfg.Gateway.RateLimit.PerMinute < 0 {
		add("gateway.rateLimit.perMinute", "must not be negative, got %d", cfg.Gateway.RateLimit.PerMinute)
	}

	// Models
	if cfg.Models.TextMaxTokens < 0 {
		add("models.textMaxTokens", "must not be negative, got %d", cfg.Models.TextMaxTokens)
	}
	if cfg.Models.VisionMaxTokens < 0 {
		add("models.visionMaxTokens", "must not be negative, got %d", cfg.Models.VisionMaxTokens)
	}

	// Agents
	d := cfg.Agents.Defaults
	validVariants := []string{"boss", "master", "session"}
	if d.Variant != "" && !slices.Contains(validVariants, d.Variant) {
		add("agents.defaults.variant", "must be one of %v, got %q", validVariants, d.Variant)
	}
	validPopulate := []string{"turns", "pairs"}
	if d.Populate != "" && !slices.Contains(validPopulate, d.Populate) {
		add("agents.defaults.populate", "must be one of %v, got %q", validPopulate, d.Populate)
	}
	if d.HistoryBudget < 0 {
		add("agents.defaults.historyBudget", "must not be negative, got %d", d.HistoryBudget)
	}
	if d.MemoryCapacity < 0 {
		add("agents.defaults.memoryCapacity", "must not be negative, got %d", d.MemoryCapacity)
	}

	// Keys
	if cfg.Keys.Secret == "" {
		add("keys.secret", "required to decrypt stored provider keys")
	}

	// Storage
	validBackends := []string{"local", "gcs"}
	if cfg.Storage.Backend != "" && !slices.Contains(validBackends, cfg.Storage.Backend) {
		add("storage.backend", "must be one of %v, got %q", validBackends, cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "gcs" && cfg.Storage.Bucket == "" {
		add("storage.bucket", "required when backend is gcs")
	}

	// Logging
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	return issues
}
