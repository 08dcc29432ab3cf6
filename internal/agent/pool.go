package agent

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/soyeahso/paxxium/internal/config"
	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/keys"
	"github.com/soyeahso/paxxium/internal/llm"
	"github.com/soyeahso/paxxium/internal/logging"
)

// KeyResolver returns a user's decrypted keys. keys.Service implements it.
type KeyResolver interface {
	Resolve(ctx context.Context, userID string) (keys.Plain, error)
}

// PoolConfig configures the agents a Pool builds.
type PoolConfig struct {
	Variant  Variant
	Defaults Settings
	Search   config.SearchConfig
	Retry    RetryPolicy
	// IdleTimeout drops agents unused for this long. Zero keeps them.
	IdleTimeout time.Duration
	// HTTPClient is used by the search capability.
	HTTPClient *http.Client
}

// PoolDeps are the shared collaborators handed to every agent.
type PoolDeps struct {
	Keys      KeyResolver
	Factory   llm.ClientFactory
	Models    *llm.Registry
	Estimator Estimator
	Messages  MessageWriter
	Notes     NoteStore
	Profiles  ProfileReader
	Transport Transport
	Log       *logging.Logger
}

type poolKey struct {
	userID         string
	conversationID string
}

type pooled struct {
	agent    *Agent
	lastUsed time.Time
}

// Pool owns one agent per conversation.
type Pool struct {
	cfg  PoolConfig
	deps PoolDeps
	log  *logging.Logger

	mu     sync.Mutex
	agents map[poolKey]*pooled
}

// NewPool creates an empty pool.
func NewPool(cfg PoolConfig, deps PoolDeps) *Pool {
	if deps.Estimator == nil {
		deps.Estimator = llm.NewEstimator()
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	return &Pool{
		cfg:    cfg,
		deps:   deps,
		log:    deps.Log.Sub("agent.pool"),
		agents: make(map[poolKey]*pooled),
	}
}

// Defaults returns the settings agents start from.
func (p *Pool) Defaults() Settings { return p.cfg.Defaults }

// Get returns the conversation's agent, building it on first use. When s
// differs from the agent's settings the agent is updated first, after any
// in-flight stream.
func (p *Pool) Get(ctx context.Context, userID, conversationID string, s Settings) (*Agent, error) {
	key := poolKey{userID, conversationID}

	p.mu.Lock()
	entry, ok := p.agents[key]
	if ok {
		entry.lastUsed = time.Now()
	}
	p.mu.Unlock()

	if ok {
		return apply(ctx, entry.agent, s)
	}

	a, err := p.build(ctx, userID, conversationID, s)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if existing, ok := p.agents[key]; ok {
		// Lost a race with another builder; keep the first agent but give
		// it this caller's settings.
		existing.lastUsed = time.Now()
		p.mu.Unlock()
		return apply(ctx, existing.agent, s)
	}
	p.agents[key] = &pooled{agent: a, lastUsed: time.Now()}
	p.mu.Unlock()
	p.log.Debug().Str("userId", userID).Str("conversationId", conversationID).Msg("agent created")
	return a, nil
}

// apply updates a to s unless it already runs with those settings.
func apply(ctx context.Context, a *Agent, s Settings) (*Agent, error) {
	if a.Settings().equal(s.withDefaults()) {
		return a, nil
	}
	if err := a.Update(ctx, s); err != nil {
		return nil, err
	}
	return a, nil
}

// Lookup returns an existing agent without building one.
func (p *Pool) Lookup(userID, conversationID string) (*Agent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.agents[poolKey{userID, conversationID}]
	if !ok {
		return nil, false
	}
	return entry.agent, true
}

// Remove drops a conversation's agent.
func (p *Pool) Remove(userID, conversationID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.agents, poolKey{userID, conversationID})
}

// Len returns the number of live agents.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.agents)
}

// Sweep drops agents idle since before now minus the idle timeout and
// reports how many went.
func (p *Pool) Sweep(now time.Time) int {
	if p.cfg.IdleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-p.cfg.IdleTimeout)

	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k, e := range p.agents {
		if e.lastUsed.Before(cutoff) && e.agent.State() != StateStreaming {
			delete(p.agents, k)
			n++
		}
	}
	if n > 0 {
		p.log.Debug().Int("dropped", n).Msg("swept idle agents")
	}
	return n
}

// RunSweeper sweeps every interval until ctx is done.
func (p *Pool) RunSweeper(ctx context.Context, interval time.Duration) {
	if p.cfg.IdleTimeout <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.Sweep(now)
		}
	}
}

// Client resolves the user's keys and returns a provider client for them.
func (p *Pool) Client(ctx context.Context, userID string) (llm.Client, error) {
	plain, err := p.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.deps.Factory(plain.Provider), nil
}

func (p *Pool) resolve(ctx context.Context, userID string) (keys.Plain, error) {
	if p.deps.Keys == nil || p.deps.Factory == nil {
		return keys.Plain{}, &domain.ConfigurationError{Reason: "no credential service"}
	}
	plain, err := p.deps.Keys.Resolve(ctx, userID)
	if err != nil {
		return keys.Plain{}, &domain.ConfigurationError{Reason: "resolve keys", Err: err}
	}
	return plain, nil
}

func (p *Pool) build(ctx context.Context, userID, conversationID string, s Settings) (*Agent, error) {
	plain, err := p.resolve(ctx, userID)
	if err != nil {
		return nil, err
	}

	var search Capability
	if plain.Search != "" {
		search = NewSearch(p.cfg.Search.Endpoint, p.cfg.Search.Engine, plain.Search, p.cfg.Search.Results, p.cfg.HTTPClient)
	}
	var remember Capability
	if p.deps.Notes != nil {
		remember = NewRemember(p.deps.Notes, userID, conversationID)
	}
	caps := NewCapabilities(search, NewComputation(), remember)

	return New(ctx, userID, conversationID, p.cfg.Variant, s, Deps{
		Client:       p.deps.Factory(plain.Provider),
		Models:       p.deps.Models,
		Estimator:    p.deps.Estimator,
		Messages:     p.deps.Messages,
		Notes:        p.deps.Notes,
		Profiles:     p.deps.Profiles,
		Transport:    p.deps.Transport,
		Capabilities: caps,
		Retry:        p.cfg.Retry,
		Log:          p.deps.Log,
	})
}
