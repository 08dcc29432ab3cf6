package cli

import (
	"fmt"
	"time"

	"github.com/soyeahso/paxxium/internal/agent"
	"github.com/soyeahso/paxxium/internal/config"
	"github.com/soyeahso/paxxium/internal/hooks"
	"github.com/soyeahso/paxxium/internal/keys"
	"github.com/soyeahso/paxxium/internal/llm"
	"github.com/soyeahso/paxxium/internal/logging"
	"github.com/soyeahso/paxxium/internal/routing"
	"github.com/soyeahso/paxxium/internal/store"
)

// app is the wired core shared by serve and the local message commands.
type app struct {
	cfg      config.Config
	db       *store.DB
	keys     *keys.Service
	profiles *store.ProfileStore
	models   *llm.Registry
	hooks    *hooks.Manager
	pool     *agent.Pool
	router   *routing.Router
	analyst  *agent.Analyst
}

// buildApp opens the database and wires keys, models, agents and routing.
// transport may be nil when nobody listens for fragments.
func buildApp(cfg config.Config, p config.Paths, transport agent.Transport, log *logging.Logger) (*app, error) {
	cipher, err := keys.NewCipher(cfg.Keys.Secret)
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	variant, err := agent.VariantFromConfig(cfg.Agents.Defaults)
	if err != nil {
		return nil, err
	}

	dbPath := p.Database(cfg.Storage)
	db, err := store.Open(dbPath, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Debug().Str("path", dbPath).Msg("database opened")

	a := &app{
		cfg:      cfg,
		db:       db,
		keys:     keys.NewService(store.NewKeyStore(db), cipher, log),
		profiles: store.NewProfileStore(db),
		models:   llm.NewRegistryFromConfig(cfg.Models, log),
		hooks:    hooks.NewManager(log),
	}
	if n := a.hooks.RegisterConfig(cfg.Hooks); n > 0 {
		log.Info().Int("hooks", n).Msg("registered config hooks")
	}

	messages := store.NewMessageStore(db)
	d := cfg.Agents.Defaults
	a.pool = agent.NewPool(agent.PoolConfig{
		Variant: variant,
		Defaults: agent.Settings{
			SystemPrompt: d.SystemPrompt,
			Temperature:  d.Temperature,
		},
		Search:      cfg.Search,
		IdleTimeout: time.Duration(d.IdleMinutes) * time.Minute,
	}, agent.PoolDeps{
		Keys:      a.keys,
		Factory:   llm.OpenAIFactory(cfg.Models.BaseURL, log),
		Models:    a.models,
		Messages:  messages,
		Notes:     store.NewNoteStore(db),
		Profiles:  a.profiles,
		Transport: transport,
		Log:       log,
	})
	a.router = routing.NewRouter(a.pool, messages, a.hooks, routing.Config{
		StreamTimeout: time.Duration(cfg.Gateway.StreamTimeoutSeconds) * time.Second,
	}, log)
	a.analyst = agent.NewAnalyst(a.pool, a.models, a.profiles, cfg.Models.Fallbacks, cfg.Models.ImageModel, log)
	return a, nil
}

func (a *app) Close() error { return a.db.Close() }

// loadConfig loads and validates the config file.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

// openApp builds the app for the one-shot commands. Gateway settings are
// not validated since nothing listens.
func openApp() (*app, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirs(); err != nil {
		return nil, err
	}
	return buildApp(cfg, paths, nil, log)
}
