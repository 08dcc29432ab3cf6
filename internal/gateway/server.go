// Package gateway is the HTTP and websocket surface of Paxxium. HTTP
// clients stream replies as NDJSON; websocket clients join rooms and receive
// the same fragments as token events.
package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/paxxium/internal/agent"
	"github.com/soyeahso/paxxium/internal/config"
	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/files"
	"github.com/soyeahso/paxxium/internal/hooks"
	"github.com/soyeahso/paxxium/internal/llm"
	"github.com/soyeahso/paxxium/internal/logging"
	"github.com/soyeahso/paxxium/internal/version"
)

const maxPayload = 4 * 1024 * 1024

// Chat runs and manages conversations. routing.Router implements it.
type Chat interface {
	Handle(ctx context.Context, msg domain.InboundMessage, sink agent.Sink) (*agent.Reply, error)
	History(ctx context.Context, userID, conversationID string) (*domain.Conversation, error)
	Clear(ctx context.Context, userID, conversationID string) (int64, error)
}

// Analyst runs the one-shot completions. agent.Analyst implements it.
type Analyst interface {
	AnalyzeProfile(ctx context.Context, userID string) (*domain.Profile, error)
	Summarize(ctx context.Context, userID, text string) (string, error)
	GenerateImage(ctx context.Context, userID string, req llm.ImageRequest) (string, error)
}

// KeySetter stores a user's provider keys. keys.Service implements it.
type KeySetter interface {
	SetKeys(ctx context.Context, userID, providerKey, searchKey string) error
}

// Profiles stores profile answers. store.ProfileStore implements it.
type Profiles interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	SaveAnswers(ctx context.Context, userID string, answers []domain.ProfileAnswer) error
}

// Server is the gateway HTTP and websocket server.
type Server struct {
	cfg      config.GatewayConfig
	chat     Chat
	verifier Verifier
	log      *logging.Logger

	hub       *Hub
	clients   *ClientRegistry
	analyst   Analyst
	keys      KeySetter
	profiles  Profiles
	files     files.Store
	filesDir  string
	hooks     *hooks.Manager
	limiter   *userLimiter
	handlers  map[string]RequestHandler
	version   string
	startedAt time.Time

	mu          sync.Mutex
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures optional collaborators.
type ServerOption func(*Server)

// WithHub sets the room hub. Agents must publish to the same hub.
func WithHub(h *Hub) ServerOption { return func(s *Server) { s.hub = h } }

// WithAnalyst enables the profile, news and image endpoints.
func WithAnalyst(a Analyst) ServerOption { return func(s *Server) { s.analyst = a } }

// WithKeys enables PUT /keys.
func WithKeys(k KeySetter) ServerOption { return func(s *Server) { s.keys = k } }

// WithProfiles enables the profile question endpoints.
func WithProfiles(p Profiles) ServerOption { return func(s *Server) { s.profiles = p } }

// WithFiles enables uploads. A non-empty dir is also served under /files/.
func WithFiles(store files.Store, dir string) ServerOption {
	return func(s *Server) {
		s.files = store
		s.filesDir = dir
	}
}

// WithHooks sets the hook manager for gateway lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption { return func(s *Server) { s.hooks = hm } }

// New creates a gateway server.
func New(cfg config.GatewayConfig, chat Chat, verifier Verifier, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		chat:        chat,
		verifier:    verifier,
		log:         log.Sub("gateway"),
		clients:     NewClientRegistry(log.Sub("clients")),
		limiter:     newUserLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
		handlers:    make(map[string]RequestHandler),
		version:     version.Version,
		authLimiter: newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.ControlUI.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub(log)
	}
	s.registerRPCHandlers()
	return s
}

// Hub returns the room hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handle registers an RPC method.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Handler returns the full HTTP handler with middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.ControlUI.AllowedOrigins)
}

// checkWebSocketOrigin allows non-browser clients and listed origins.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isOriginAllowed(origin, allowed)
	}
}

func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start listens until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	// Streams outlive ordinary requests, so the write timeout follows the
	// stream timeout.
	writeTimeout := time.Duration(s.cfg.StreamTimeoutSeconds)*time.Second + 30*time.Second
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.cfg.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLS.CertPath, s.cfg.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12})
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled, identity tokens travel in cleartext")
	}

	s.startedAt = time.Now()
	s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Str("auth", s.cfg.Auth.Mode).
		Int("methods", len(s.handlers)).
		Msg("gateway server ready")

	go s.sweepAuthFailures(ctx)
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the configured listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

func (s *Server) sweepAuthFailures(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.authLimiter.sweep(now)
		}
	}
}

// handleWebSocket upgrades, authenticates and serves one connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("too many failed handshakes")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.authLimiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	client.Start()
	s.clients.Add(client)
	s.hub.Subscribe(agent.UserRoom(client.Identity.UserID), client)
	defer func() {
		s.hub.Drop(client)
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	s.readLoop(r.Context(), client)
}

// handshake runs connect.challenge -> connect -> hello-ok.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	challenge, err := NewEvent(EventChallenge, map[string]any{
		"nonce": uuid.New().String(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("parsing connect frame: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		sendErrorAndClose(conn, frame.ID, "protocol_error", "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		sendErrorAndClose(conn, frame.ID, "invalid_params", "invalid connect params")
		return nil, fmt.Errorf("parsing connect params: %w", err)
	}
	if params.MaxProtocol != 0 && params.MaxProtocol < ProtocolVersion {
		sendErrorAndClose(conn, frame.ID, "protocol_error", "unsupported protocol version")
		return nil, fmt.Errorf("client protocol %d too old", params.MaxProtocol)
	}

	result := Authorize(s.verifier, params.Auth)
	if !result.OK {
		sendErrorAndClose(conn, frame.ID, "unauthorized", result.Reason)
		return nil, fmt.Errorf("auth failed: %s", result.Reason)
	}

	conn.SetReadDeadline(time.Time{})
	client := NewClient(conn, params.Client, result.Identity, s.log.Sub("ws"))

	hello := HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: s.version,
			Commit:  version.Commit,
			ConnID:  client.ConnID,
		},
		UserID: result.Identity.UserID,
		Features: Features{
			Methods: s.Methods(),
			Events:  []string{EventChallenge, EventToken, EventChatToken},
		},
		Policy: ServerPolicy{MaxPayload: maxPayload, TickIntervalMs: 30000},
	}
	resp, err := NewResponse(frame.ID, hello)
	if err != nil {
		return nil, fmt.Errorf("creating hello response: %w", err)
	}
	if err := conn.WriteJSON(resp); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("userId", result.Identity.UserID).
		Str("clientId", params.Client.ID).
		Str("authMethod", result.Identity.Method).
		Msg("client authenticated")
	return client, nil
}

func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("read error")
			}
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		s.dispatch(ctx, client, frame)
	}
}

func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, ErrorShape{Code: "method_not_found", Message: "unknown method: " + frame.Method})
		return
	}
	handler(&RequestContext{Ctx: ctx, Client: client, Frame: frame, Server: s})
}

func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string) {
	conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{Code: code, Message: message}))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}
