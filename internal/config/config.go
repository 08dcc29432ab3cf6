package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// DefaultSystemPrompt is used when neither config nor client supply one.
const DefaultSystemPrompt = "You are a friendly but genuine AI Agent. Don't be annoyingly nice, but don't be rude either."

// Defaults returns a Config with defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// VisionEnabledOrDefault reports whether image turns take the vision path.
func (d AgentDefaults) VisionEnabledOrDefault() bool {
	if d.VisionEnabled == nil {
		return true
	}
	return *d.VisionEnabled
}
