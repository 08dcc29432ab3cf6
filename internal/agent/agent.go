// Package agent assembles provider requests from bounded history, streams
// replies to realtime rooms and persists the finished reply.
package agent

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/soyeahso/paxxium/internal/config"
	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/llm"
	"github.com/soyeahso/paxxium/internal/logging"
)

// maxToolRounds limits how many completion rounds one reply may take.
const maxToolRounds = 5

// State is the lifecycle state of an agent.
type State int

const (
	StateConstructed State = iota
	StateConfigured
	StateStreaming
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateConfigured:
		return "configured"
	case StateStreaming:
		return "streaming"
	case StateIdle:
		return "idle"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Variant selects how one agent behaves. All agents share one
// implementation.
type Variant struct {
	Name string
	// Rooms are other conversation ids of the same owner that mirror every
	// fragment.
	Rooms []string
	// UserRoom also publishes to the owner's user room.
	UserRoom       bool
	MemoryCapacity int
	VisionEnabled  bool
	HistoryBudget  int
	Populate       PopulatePolicy
	// UseMemory feeds short-term memory instead of the request history.
	UseMemory bool
}

var (
	BossVariant = Variant{
		Name:          "boss",
		VisionEnabled: true,
		HistoryBudget: DefaultHistoryBudget,
	}
	MasterVariant = Variant{
		Name:           "master",
		UserRoom:       true,
		MemoryCapacity: DefaultMemoryCapacity,
		HistoryBudget:  DefaultHistoryBudget,
		Populate:       PopulatePairs,
		UseMemory:      true,
	}
	SessionVariant = Variant{
		Name:           "session",
		MemoryCapacity: DefaultMemoryCapacity,
		HistoryBudget:  DefaultHistoryBudget,
		Populate:       PopulateTurns,
		UseMemory:      true,
	}
)

// VariantByName returns a built-in variant.
func VariantByName(name string) (Variant, error) {
	switch name {
	case "", BossVariant.Name:
		return BossVariant, nil
	case MasterVariant.Name:
		return MasterVariant, nil
	case SessionVariant.Name:
		return SessionVariant, nil
	}
	return Variant{}, fmt.Errorf("unknown agent variant %q", name)
}

// VariantFromConfig starts from the named variant and applies the
// configured overrides.
func VariantFromConfig(d config.AgentDefaults) (Variant, error) {
	v, err := VariantByName(d.Variant)
	if err != nil {
		return Variant{}, err
	}
	if d.HistoryBudget > 0 {
		v.HistoryBudget = d.HistoryBudget
	}
	if v.UseMemory {
		if d.MemoryCapacity > 0 {
			v.MemoryCapacity = d.MemoryCapacity
		}
		if d.Populate != "" {
			if v.Populate, err = ParsePopulatePolicy(d.Populate); err != nil {
				return Variant{}, err
			}
		}
	}
	if d.VisionEnabled != nil {
		v.VisionEnabled = *d.VisionEnabled
	}
	return v, nil
}

// UserRoom names the room that carries every reply for one user.
func UserRoom(userID string) string { return "user:" + userID }

// ConversationRoom names the room for one user's conversation. The user id
// is escaped so no user's room prefix is a prefix of another user's rooms.
func ConversationRoom(userID, conversationID string) string {
	return conversationRoomPrefix(userID) + conversationID
}

func conversationRoomPrefix(userID string) string {
	return "chat:" + url.QueryEscape(userID) + ":"
}

// OwnsRoom reports whether room is one of userID's rooms.
func OwnsRoom(userID, room string) bool {
	if userID == "" {
		return false
	}
	if room == UserRoom(userID) {
		return true
	}
	cid, ok := strings.CutPrefix(room, conversationRoomPrefix(userID))
	return ok && cid != ""
}

// Settings is the mutable part of an agent's configuration.
type Settings struct {
	// Model is the client model label, resolved through the registry.
	Model          string
	SystemPrompt   string
	Constants      string
	UseProfileData bool
	Speaker        string
	Temperature    *float64
}

// SettingsFromChat maps client chat settings onto agent settings. Empty
// fields fall back to defaults.
func SettingsFromChat(cs domain.ChatSettings, defaults Settings) Settings {
	s := defaults
	if cs.AgentModel != "" {
		s.Model = cs.AgentModel
	}
	if cs.SystemPrompt != "" {
		s.SystemPrompt = cs.SystemPrompt
	}
	s.Constants = cs.ChatConstants
	s.UseProfileData = cs.UseProfileData
	return s
}

func (s Settings) withDefaults() Settings {
	if s.SystemPrompt == "" {
		s.SystemPrompt = config.DefaultSystemPrompt
	}
	if s.Speaker == "" {
		s.Speaker = domain.AuthorAgent
	}
	return s
}

func (s Settings) equal(o Settings) bool {
	if s.Model != o.Model || s.SystemPrompt != o.SystemPrompt || s.Constants != o.Constants ||
		s.UseProfileData != o.UseProfileData || s.Speaker != o.Speaker {
		return false
	}
	if (s.Temperature == nil) != (o.Temperature == nil) {
		return false
	}
	return s.Temperature == nil || *s.Temperature == *o.Temperature
}

// ProfileReader returns the stored user analysis. store.ProfileStore
// implements it.
type ProfileReader interface {
	Analysis(ctx context.Context, userID string) (string, error)
}

// Deps are the collaborators of one agent.
type Deps struct {
	Client       llm.Client
	Models       *llm.Registry
	Estimator    Estimator
	Messages     MessageWriter
	Notes        NoteStore
	Profiles     ProfileReader
	Transport    Transport
	Capabilities *Capabilities
	Retry        RetryPolicy
	Log          *logging.Logger
}

// Request is one new user turn.
type Request struct {
	Text     string
	ImageURL string
	// History is the conversation before this turn, oldest first.
	History []domain.Message
	// Sink, when set, receives every fragment event after the rooms do.
	Sink Sink
}

// Reply describes a completed, persisted reply.
type Reply struct {
	Message   *domain.Message
	Model     string
	Vision    bool
	Fragments int
	Rounds    int
	Duration  time.Duration
}

// Agent is the per-conversation pipeline. Respond, Update and ClearMemory
// are serialized, so a settings change never lands inside a stream.
type Agent struct {
	userID         string
	conversationID string
	variant        Variant
	deps           Deps
	log            *logging.Logger

	run sync.Mutex

	mu       sync.RWMutex
	state    State
	settings Settings
	analysis string
	system   string
	memory   *Memory
}

// New builds an agent and configures it. Failure yields a
// *domain.ConfigurationError and no agent.
func New(ctx context.Context, userID, conversationID string, variant Variant, settings Settings, deps Deps) (*Agent, error) {
	if deps.Client == nil {
		return nil, &domain.ConfigurationError{Reason: "no completion client"}
	}
	if deps.Models == nil {
		return nil, &domain.ConfigurationError{Reason: "no model registry"}
	}
	if deps.Estimator == nil {
		deps.Estimator = llm.NewEstimator()
	}
	if deps.Retry.Attempts == 0 {
		deps.Retry = DefaultRetryPolicy
	}
	if deps.Log == nil {
		deps.Log = logging.New(nil, "silent")
	}
	if variant.HistoryBudget <= 0 {
		variant.HistoryBudget = DefaultHistoryBudget
	}

	a := &Agent{
		userID:         userID,
		conversationID: conversationID,
		variant:        variant,
		deps:           deps,
		log:            deps.Log.Sub("agent." + variant.Name).With("conversationId", conversationID),
		state:          StateConstructed,
	}
	if variant.UseMemory {
		a.memory = NewMemory(variant.MemoryCapacity, variant.Populate)
	}
	if err := a.configure(ctx, settings); err != nil {
		return nil, err
	}
	return a, nil
}

// ConversationID returns the conversation this agent serves.
func (a *Agent) ConversationID() string { return a.conversationID }

// Variant returns the agent's variant.
func (a *Agent) Variant() Variant { return a.variant }

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Settings returns the current settings.
func (a *Agent) Settings() Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// SystemPrompt returns the cached system turn without saved notes.
func (a *Agent) SystemPrompt() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.system
}

// Memory returns the short-term memory, or nil for variants without one.
func (a *Agent) Memory() *Memory {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.memory
}

// Update applies new settings. It waits for any in-flight stream, which
// finishes under the settings it started with.
func (a *Agent) Update(ctx context.Context, s Settings) error {
	a.run.Lock()
	defer a.run.Unlock()
	return a.configure(ctx, s)
}

// ClearMemory empties short-term memory. The next reply starts from a
// freshly populated memory.
func (a *Agent) ClearMemory() {
	a.run.Lock()
	defer a.run.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.memory != nil {
		a.memory.Clear()
	}
	a.state = StateConfigured
	a.log.Debug().Msg("memory cleared")
}

// configure derives the system turn and swaps it in with the settings in
// one step. Callers hold a.run.
func (a *Agent) configure(ctx context.Context, s Settings) error {
	s = s.withDefaults()
	if _, err := a.deps.Models.Resolve(s.Model); err != nil {
		return &domain.ConfigurationError{Reason: "resolve model", Err: err}
	}

	var analysis string
	if s.UseProfileData && a.deps.Profiles != nil {
		var err error
		if analysis, err = a.deps.Profiles.Analysis(ctx, a.userID); err != nil {
			return &domain.ConfigurationError{Reason: "load profile analysis", Err: err}
		}
	}
	system := BuildSystemPrompt(s.SystemPrompt, analysis, s.Constants, nil)

	a.mu.Lock()
	a.settings = s
	a.analysis = analysis
	a.system = system
	a.state = StateConfigured
	a.mu.Unlock()

	a.log.Debug().Str("model", s.Model).Bool("profile", s.UseProfileData).Msg("agent configured")
	return nil
}

type snapshot struct {
	settings Settings
	analysis string
	system   string
	memory   *Memory
}

func (a *Agent) begin() snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateStreaming
	return snapshot{settings: a.settings, analysis: a.analysis, system: a.system, memory: a.memory}
}

func (a *Agent) end() {
	a.mu.Lock()
	a.state = StateIdle
	a.mu.Unlock()
}

// Rooms returns where fragments are published.
func (a *Agent) Rooms() []string {
	rooms := []string{ConversationRoom(a.userID, a.conversationID)}
	if a.variant.UserRoom {
		rooms = append(rooms, UserRoom(a.userID))
	}
	for _, r := range a.variant.Rooms {
		if r != "" && r != a.conversationID {
			rooms = append(rooms, ConversationRoom(a.userID, r))
		}
	}
	return rooms
}

// Respond streams a reply to req, publishing every fragment and then
// persisting exactly one assistant message equal to their concatenation.
// A provider failure discards the partial reply and returns a
// *llm.ProviderError.
func (a *Agent) Respond(ctx context.Context, req Request) (*Reply, error) {
	a.run.Lock()
	defer a.run.Unlock()

	start := time.Now()
	snap := a.begin()
	defer a.end()

	route, err := a.deps.Models.Route(snap.settings.Model, req.ImageURL != "", a.variant.VisionEnabled)
	if err != nil {
		return nil, &domain.ConfigurationError{Reason: "route model", Err: err}
	}
	image := req.ImageURL
	if !route.Vision && image != "" {
		a.log.Debug().Msg("vision disabled, sending image turn as text")
		image = ""
	}

	history := req.History
	if snap.memory != nil {
		snap.memory.PopulateOnce(req.History)
		history = snap.memory.Messages()
	}
	windowed := Window(a.deps.Estimator, route.Model, history, a.variant.HistoryBudget)

	system := snap.system
	if notes := a.notes(ctx); len(notes) > 0 {
		system = BuildSystemPrompt(snap.settings.SystemPrompt, snap.analysis, snap.settings.Constants, notes)
	}

	llmReq := llm.CompletionRequest{
		Model:       route.Model,
		Messages:    Assemble(system, windowed, req.Text, image),
		MaxTokens:   route.MaxTokens,
		Temperature: snap.settings.Temperature,
	}
	if !route.Vision {
		llmReq.Tools = a.deps.Capabilities.Definitions()
	}

	a.log.Info().
		Str("userId", a.userID).
		Str("model", route.Model).
		Bool("vision", route.Vision).
		Int("historyTurns", len(windowed)).
		Msg("streaming reply")

	em := NewEmitter(a.deps.Transport, req.Sink, a.Rooms(), a.conversationID, snap.settings.Speaker, a.log)
	rounds, err := a.stream(ctx, llmReq, em)
	if err != nil {
		a.log.Warn().Err(err).Int("fragments", em.Fragments()).Msg("stream failed, reply discarded")
		return nil, err
	}

	msg, err := em.Persist(ctx, a.deps.Messages, a.userID, a.deps.Retry)
	if err != nil {
		a.log.Error().Err(err).Msg("reply not persisted")
		return nil, err
	}
	if snap.memory != nil {
		snap.memory.Save(req.Text, em.Text())
	}

	reply := &Reply{
		Message:   msg,
		Model:     route.Model,
		Vision:    route.Vision,
		Fragments: em.Fragments(),
		Rounds:    rounds,
		Duration:  time.Since(start),
	}
	a.log.Info().
		Int("fragments", reply.Fragments).
		Int("rounds", rounds).
		Dur("duration", reply.Duration).
		Msg("reply persisted")
	return reply, nil
}

// stream runs completion rounds until the model stops asking for
// capabilities or the round limit is hit. Every round's fragments go
// through the same emitter.
func (a *Agent) stream(ctx context.Context, req llm.CompletionRequest, em *Emitter) (int, error) {
	for round := 1; ; round++ {
		frags, err := OpenStream(ctx, a.deps.Client, req)
		if err != nil {
			return round, err
		}
		for frags.Next() {
			if err := em.Emit(frags.Text()); err != nil {
				frags.Close()
				return round, fmt.Errorf("emitting fragment: %w", err)
			}
		}
		if err := frags.Err(); err != nil {
			return round, err
		}

		resp := frags.Response()
		if len(resp.ToolCalls) == 0 {
			return round, nil
		}
		if round >= maxToolRounds {
			a.log.Warn().Int("rounds", round).Msg("capability round limit reached")
			return round, nil
		}

		a.log.Info().Int("calls", len(resp.ToolCalls)).Int("round", round).Msg("invoking capabilities")
		req.Messages = append(req.Messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			out, err := a.deps.Capabilities.Invoke(ctx, call)
			if err != nil {
				a.log.Debug().Str("capability", call.Name).Err(err).Msg("capability failed")
				out = "Error: " + err.Error()
			}
			req.Messages = append(req.Messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    out,
				ToolCallID: call.ID,
			})
		}
	}
}

// notes loads saved notes for the system turn. Failures only cost the notes.
func (a *Agent) notes(ctx context.Context) []string {
	if a.deps.Notes == nil {
		return nil
	}
	saved, err := a.deps.Notes.List(ctx, a.userID, a.conversationID, notesInPrompt)
	if err != nil {
		a.log.Warn().Err(err).Msg("loading saved notes")
		return nil
	}
	out := make([]string, 0, len(saved))
	for _, n := range saved {
		out = append(out, n.Content)
	}
	return out
}
