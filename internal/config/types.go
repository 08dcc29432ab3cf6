package config

// Config is the root configuration for the Paxxium server.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
	Models  ModelsConfig  `yaml:"models,omitempty"`
	Agents  AgentsConfig  `yaml:"agents,omitempty"`
	Keys    KeysConfig    `yaml:"keys,omitempty"`
	Storage StorageConfig `yaml:"storage,omitempty"`
	Search  SearchConfig  `yaml:"search,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Hooks   HooksConfig   `yaml:"hooks,omitempty"`
}

// GatewayConfig controls the HTTP + websocket server.
type GatewayConfig struct {
	Port           int              `yaml:"port,omitempty"`
	Bind           string           `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string           `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth      `yaml:"auth,omitempty"`
	TLS            GatewayTLS       `yaml:"tls,omitempty"`
	ControlUI      GatewayControlUI `yaml:"controlUi,omitempty"`
	RateLimit      RateLimitConfig  `yaml:"rateLimit,omitempty"`
	// StreamTimeoutSeconds bounds one stream-and-emit cycle.
	StreamTimeoutSeconds int `yaml:"streamTimeoutSeconds,omitempty"`
}

// GatewayAuth configures identity token verification.
type GatewayAuth struct {
	Mode      string `yaml:"mode,omitempty"` // "jwt" | "token"
	Token     string `yaml:"token,omitempty"`
	UserID    string `yaml:"userId,omitempty"` // identity bound to the static token
	JWTSecret string `yaml:"jwtSecret,omitempty"`
	Issuer    string `yaml:"issuer,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// GatewayControlUI lists browser origins allowed to call the API.
type GatewayControlUI struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// RateLimitConfig bounds how often one user may post messages.
type RateLimitConfig struct {
	PerMinute int `yaml:"perMinute,omitempty"`
	Burst     int `yaml:"burst,omitempty"`
}

// ModelsConfig maps client model labels onto provider model ids.
type ModelsConfig struct {
	BaseURL         string            `yaml:"baseUrl,omitempty"`
	Default         string            `yaml:"default,omitempty"`
	Vision          string            `yaml:"vision,omitempty"`
	Aliases         map[string]string `yaml:"aliases,omitempty"`
	Fallbacks       []string          `yaml:"fallbacks,omitempty"`
	TextMaxTokens   int               `yaml:"textMaxTokens,omitempty"`
	VisionMaxTokens int               `yaml:"visionMaxTokens,omitempty"`
	ImageModel      string            `yaml:"imageModel,omitempty"`
}

// AgentsConfig holds agent defaults.
type AgentsConfig struct {
	Defaults AgentDefaults `yaml:"defaults,omitempty"`
}

// AgentDefaults are applied to every agent unless the client overrides them.
type AgentDefaults struct {
	Variant        string   `yaml:"variant,omitempty"` // "boss" | "master" | "session"
	SystemPrompt   string   `yaml:"systemPrompt,omitempty"`
	HistoryBudget  int      `yaml:"historyBudget,omitempty"`
	MemoryCapacity int      `yaml:"memoryCapacity,omitempty"`
	Populate       string   `yaml:"populate,omitempty"` // "turns" | "pairs"
	VisionEnabled  *bool    `yaml:"visionEnabled,omitempty"`
	Temperature    *float64 `yaml:"temperature,omitempty"`
	IdleMinutes    int      `yaml:"idleMinutes,omitempty"`
}

// KeysConfig configures the credential service.
type KeysConfig struct {
	Secret string `yaml:"secret,omitempty"`
}

// StorageConfig selects where uploaded files go.
type StorageConfig struct {
	Backend         string `yaml:"backend,omitempty"` // "local" | "gcs"
	Dir             string `yaml:"dir,omitempty"`
	PublicURL       string `yaml:"publicUrl,omitempty"`
	Bucket          string `yaml:"bucket,omitempty"`
	CredentialsFile string `yaml:"credentialsFile,omitempty"`
	Database        string `yaml:"database,omitempty"`
}

// SearchConfig configures the search capability.
type SearchConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Engine   string `yaml:"engine,omitempty"`
	Results  int    `yaml:"results,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// HooksConfig lists shell commands run on lifecycle events.
type HooksConfig struct {
	MessageReceived  []HookEntry `yaml:"messageReceived,omitempty"`
	MessagePersisted []HookEntry `yaml:"messagePersisted,omitempty"`
	GatewayStart     []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop      []HookEntry `yaml:"gatewayStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}
