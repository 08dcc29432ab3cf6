package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields lets secrets be written as ${ENV_VAR} in the file.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.JWTSecret = expandEnvVars(cfg.Gateway.Auth.JWTSecret)
	cfg.Keys.Secret = expandEnvVars(cfg.Keys.Secret)
	cfg.Models.BaseURL = expandEnvVars(cfg.Models.BaseURL)
	cfg.Storage.CredentialsFile = expandEnvVars(cfg.Storage.CredentialsFile)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18789
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "jwt"
	}
	if cfg.Gateway.RateLimit.PerMinute == 0 {
		cfg.Gateway.RateLimit.PerMinute = 30
	}
	if cfg.Gateway.RateLimit.Burst == 0 {
		cfg.Gateway.RateLimit.Burst = 5
	}
	if cfg.Gateway.StreamTimeoutSeconds == 0 {
		cfg.Gateway.StreamTimeoutSeconds = 300
	}

	if cfg.Models.Default == "" {
		cfg.Models.Default = "gpt-3.5-turbo-0125"
	}
	if cfg.Models.Vision == "" {
		cfg.Models.Vision = "gpt-4-vision-preview"
	}
	if cfg.Models.Aliases == nil {
		cfg.Models.Aliases = map[string]string{"GPT-4": "gpt-4-0125-preview"}
	}
	if cfg.Models.TextMaxTokens == 0 {
		cfg.Models.TextMaxTokens = 300
	}
	if cfg.Models.VisionMaxTokens == 0 {
		cfg.Models.VisionMaxTokens = 1000
	}
	if cfg.Models.ImageModel == "" {
		cfg.Models.ImageModel = "dall-e-3"
	}

	d := &cfg.Agents.Defaults
	if d.Variant == "" {
		d.Variant = "boss"
	}
	if d.SystemPrompt == "" {
		d.SystemPrompt = DefaultSystemPrompt
	}
	if d.HistoryBudget == 0 {
		d.HistoryBudget = 500
	}
	if d.MemoryCapacity == 0 {
		d.MemoryCapacity = 3
	}
	if d.Populate == "" {
		d.Populate = "pairs"
	}
	if d.IdleMinutes == 0 {
		d.IdleMinutes = 30
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}

	if cfg.Search.Endpoint == "" {
		cfg.Search.Endpoint = "https://serpapi.com/search.json"
	}
	if cfg.Search.Engine == "" {
		cfg.Search.Engine = "google"
	}
	if cfg.Search.Results == 0 {
		cfg.Search.Results = 5
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads PAXXIUM_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PAXXIUM_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("PAXXIUM_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("PAXXIUM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PAXXIUM_KEYS_SECRET"); v != "" {
		cfg.Keys.Secret = v
	}
	if v := os.Getenv("PAXXIUM_AUTH_SECRET"); v != "" {
		cfg.Gateway.Auth.JWTSecret = v
	}
}
