package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/soyeahso/paxxium/internal/config"
	"github.com/soyeahso/paxxium/internal/logging"
)

// ClientFactory builds a provider client for one decrypted API key.
type ClientFactory func(apiKey string) Client

// Route is the resolved model and output ceiling for one request.
type Route struct {
	Model     string
	MaxTokens int
	Vision    bool
}

// knownModels are chat model ids accepted as-is from clients.
var knownModels = []string{
	"gpt-3.5-turbo-0125",
	"gpt-4-0125-preview",
	"gpt-4-turbo",
	"gpt-4-vision-preview",
	"gpt-4o",
	"gpt-4o-mini",
}

// Registry maps client model labels onto provider model ids and picks the
// vision or text path for a request.
type Registry struct {
	mu              sync.RWMutex
	models          map[string]bool   // known model ids
	aliases         map[string]string // client label → model id
	fallback        string            // default model id
	vision          string
	textMaxTokens   int
	visionMaxTokens int
	log             *logging.Logger
}

// NewRegistry creates a registry that only knows the built-in model ids.
func NewRegistry(log *logging.Logger) *Registry {
	r := &Registry{
		models:          make(map[string]bool),
		aliases:         make(map[string]string),
		textMaxTokens:   300,
		visionMaxTokens: 1000,
		log:             log.Sub("llm.registry"),
	}
	for _, m := range knownModels {
		r.models[m] = true
	}
	return r
}

// NewRegistryFromConfig builds a Registry from the models section.
func NewRegistryFromConfig(cfg config.ModelsConfig, log *logging.Logger) *Registry {
	r := NewRegistry(log)
	for label, model := range cfg.Aliases {
		r.Alias(label, model)
	}
	for _, m := range cfg.Fallbacks {
		r.Register(m)
	}
	if cfg.Default != "" {
		r.Register(cfg.Default)
		r.SetFallback(cfg.Default)
	}
	if cfg.Vision != "" {
		r.Register(cfg.Vision)
		r.SetVision(cfg.Vision)
	}
	r.SetMaxTokens(cfg.TextMaxTokens, cfg.VisionMaxTokens)
	return r
}

// Register marks a model id as directly selectable.
func (r *Registry) Register(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[model] = true
}

// Alias maps a client label to a model id.
// e.g., Alias("GPT-4", "gpt-4-0125-preview").
func (r *Registry) Alias(label, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[label] = model
	r.models[model] = true
	r.log.Debug().Str("label", label).Str("model", model).Msg("registered model alias")
}

// SetFallback sets the model used when a label matches nothing.
func (r *Registry) SetFallback(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = model
}

// SetVision sets the model used for requests carrying an image.
func (r *Registry) SetVision(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vision = model
}

// SetMaxTokens sets the output ceilings. Non-positive values are ignored.
func (r *Registry) SetMaxTokens(text, vision int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if text > 0 {
		r.textMaxTokens = text
	}
	if vision > 0 {
		r.visionMaxTokens = vision
	}
}

// Resolve returns the model id for a client label.
// Resolution order: alias → known model id → fallback.
func (r *Registry) Resolve(label string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.aliases[label]; ok {
		return m, nil
	}
	if r.models[label] {
		return label, nil
	}
	if r.fallback != "" {
		return r.fallback, nil
	}
	return "", fmt.Errorf("no model for label %q", label)
}

// Route picks the model and max output tokens for a request. Composite
// (image) requests always take the vision model when vision is enabled.
func (r *Registry) Route(label string, composite, visionEnabled bool) (Route, error) {
	if composite && visionEnabled {
		r.mu.RLock()
		defer r.mu.RUnlock()
		if r.vision == "" {
			return Route{}, fmt.Errorf("no vision model configured")
		}
		return Route{Model: r.vision, MaxTokens: r.visionMaxTokens, Vision: true}, nil
	}

	model, err := r.Resolve(label)
	if err != nil {
		return Route{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Route{Model: model, MaxTokens: r.textMaxTokens}, nil
}

// List returns all selectable model ids, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for n := range r.models {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
