package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/files"
	"github.com/soyeahso/paxxium/internal/llm"
	"github.com/soyeahso/paxxium/internal/routing"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 20 << 20
)

// HealthResponse is returned by health checks. The public endpoint only
// fills Status.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Clients int    `json:"clients,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found", "path": r.URL.Path})
}

type chatIDBody struct {
	ChatID string `json:"chatId"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var body chatIDBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.ChatID == "" {
		writeError(w, http.StatusBadRequest, "chatId is required")
		return
	}
	conv, err := s.chat.History(r.Context(), id.UserID, body.ChatID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if conv.Messages == nil {
		conv.Messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, conv)
}

// handlePost streams one reply as NDJSON. Provider failures and anything
// after the first fragment end the stream with an error line; other early
// failures get a status code.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var p ChatSendParams
	if !decodeJSON(w, r, &p) {
		return
	}
	msg := p.Inbound(id.UserID)
	if err := validateTurn(msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	nd := newNDJSON(w)
	_, err := s.chat.Handle(r.Context(), msg, nd.write)
	if err == nil {
		nd.start()
		return
	}
	var pe *llm.ProviderError
	if !nd.started() && !errors.As(err, &pe) {
		s.fail(w, err)
		return
	}
	s.log.Warn().Err(err).Str("userId", id.UserID).Str("conversationId", msg.ConversationID).Msg("stream ended with error")
	nd.writeError(err)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	var body chatIDBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.ChatID == "" {
		writeError(w, http.StatusBadRequest, "chatId is required")
		return
	}
	if _, err := s.chat.Clear(r.Context(), id.UserID, body.ChatID); err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "Memory Cleared")
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.files == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads are not configured")
		return
	}
	id, _ := IdentityFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	f, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"image\" is required")
		return
	}
	defer f.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	url, err := s.files.Put(r.Context(), files.ObjectName(id.UserID, header.Filename), contentType, f)
	if err != nil {
		s.fail(w, &domain.PersistenceError{Op: "store upload", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"fileUrl": url})
}

type keysBody struct {
	OpenAIKey string `json:"openaiKey"`
	SerpKey   string `json:"serpKey"`
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		writeError(w, http.StatusServiceUnavailable, "key storage is not configured")
		return
	}
	id, _ := IdentityFrom(r.Context())
	var body keysBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.OpenAIKey) == "" {
		writeError(w, http.StatusBadRequest, "openaiKey is required")
		return
	}
	if err := s.keys.SetKeys(r.Context(), id.UserID, strings.TrimSpace(body.OpenAIKey), strings.TrimSpace(body.SerpKey)); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleGetQuestions(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProfile(w, r)
	if !ok {
		return
	}
	answers := []domain.ProfileAnswer{}
	if p != nil && p.Answers != nil {
		answers = p.Answers
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": answers})
}

type questionsBody struct {
	Questions []domain.ProfileAnswer `json:"questions"`
}

func (s *Server) handleSaveQuestions(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "profiles are not configured")
		return
	}
	id, _ := IdentityFrom(r.Context())
	var body questionsBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := s.profiles.SaveAnswers(r.Context(), id.UserID, body.Questions); err != nil {
		s.fail(w, &domain.PersistenceError{Op: "save answers", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"saved": len(body.Questions)})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	p, ok := s.loadProfile(w, r)
	if !ok {
		return
	}
	out := map[string]any{"analysis": "", "news_topics": []string{}}
	if p != nil {
		out["analysis"] = p.Analysis
		if p.NewsTopics != nil {
			out["news_topics"] = p.NewsTopics
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.analyst == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis is not configured")
		return
	}
	id, _ := IdentityFrom(r.Context())
	p, err := s.analyst.AnalyzeProfile(r.Context(), id.UserID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analysis": p.Analysis, "news_topics": p.NewsTopics})
}

type summarizeBody struct {
	Text string `json:"text"`
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	if s.analyst == nil {
		writeError(w, http.StatusServiceUnavailable, "summaries are not configured")
		return
	}
	id, _ := IdentityFrom(r.Context())
	var body summarizeBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	summary, err := s.analyst.Summarize(r.Context(), id.UserID, body.Text)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	if s.analyst == nil {
		writeError(w, http.StatusServiceUnavailable, "image generation is not configured")
		return
	}
	id, _ := IdentityFrom(r.Context())
	var req llm.ImageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	url, err := s.analyst.GenerateImage(r.Context(), id.UserID, req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// loadProfile returns nil without error when the user has no profile yet.
func (s *Server) loadProfile(w http.ResponseWriter, r *http.Request) (*domain.Profile, bool) {
	if s.profiles == nil {
		writeError(w, http.StatusServiceUnavailable, "profiles are not configured")
		return nil, false
	}
	id, _ := IdentityFrom(r.Context())
	p, err := s.profiles.GetProfile(r.Context(), id.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, true
	}
	if err != nil {
		s.fail(w, err)
		return nil, false
	}
	return p, true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status >= 500 {
		s.log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

// httpStatus maps the error taxonomy onto status codes.
func httpStatus(err error) int {
	var (
		pe *llm.ProviderError
		ce *domain.ConfigurationError
	)
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, routing.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &pe):
		if pe.Code == http.StatusTooManyRequests {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	case errors.As(err, &ce):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorShape maps the error taxonomy onto websocket error codes.
func errorShape(err error) ErrorShape {
	var pe *llm.ProviderError
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return ErrorShape{Code: "unauthorized", Message: err.Error()}
	case errors.As(err, &pe):
		return ErrorShape{Code: "provider_error", Message: err.Error(), Retryable: pe.Code == 429 || pe.Code >= 500}
	default:
		return ErrorShape{Code: "agent_error", Message: err.Error()}
	}
}

func validateTurn(msg domain.InboundMessage) error {
	if msg.ConversationID == "" {
		return errors.New("chatSettings.chatId is required")
	}
	if strings.TrimSpace(msg.Content) == "" && msg.ImageURL == "" {
		return routing.ErrEmptyMessage
	}
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// ndjson writes one JSON object per line and flushes after each.
type ndjson struct {
	mu    sync.Mutex
	w     http.ResponseWriter
	rc    *http.ResponseController
	enc   *json.Encoder
	begun bool
}

func newNDJSON(w http.ResponseWriter) *ndjson {
	return &ndjson{w: w, rc: http.NewResponseController(w), enc: json.NewEncoder(w)}
}

func (n *ndjson) start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.startLocked()
}

func (n *ndjson) startLocked() {
	if n.begun {
		return
	}
	n.begun = true
	n.w.Header().Set("Content-Type", "application/x-ndjson")
	n.w.Header().Set("Cache-Control", "no-cache")
	n.w.Header().Set("X-Content-Type-Options", "nosniff")
	n.w.WriteHeader(http.StatusOK)
}

func (n *ndjson) started() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.begun
}

func (n *ndjson) write(evt domain.StreamEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.startLocked()
	if err := n.enc.Encode(evt); err != nil {
		return err
	}
	if err := n.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func (n *ndjson) writeError(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.startLocked()
	n.enc.Encode(map[string]string{"type": "error", "message": err.Error()})
	n.rc.Flush()
}
