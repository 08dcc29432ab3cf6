package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/soyeahso/paxxium/internal/domain"
	"github.com/soyeahso/paxxium/internal/files"
)

// registerHTTPRoutes sets up every HTTP route.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	auth := func(h http.HandlerFunc) http.HandlerFunc { return requireIdentity(s.verifier, h) }

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.HandleFunc("POST /messages", auth(s.handleMessages))
	mux.HandleFunc("POST /messages/post", auth(rateLimited(s.limiter, s.handlePost)))
	mux.HandleFunc("POST /messages/clear", auth(s.handleClear))
	mux.HandleFunc("POST /messages/utils", auth(s.handleUpload))

	mux.HandleFunc("PUT /keys", auth(s.handleKeys))

	mux.HandleFunc("GET /profile/questions", auth(s.handleGetQuestions))
	mux.HandleFunc("POST /profile/questions", auth(s.handleSaveQuestions))
	mux.HandleFunc("GET /profile/analyze", auth(s.handleGetAnalysis))
	mux.HandleFunc("POST /profile/analyze", auth(s.handleAnalyze))

	mux.HandleFunc("POST /news/summarize", auth(s.handleSummarize))
	mux.HandleFunc("POST /images/generate", auth(s.handleGenerateImage))

	if s.filesDir != "" {
		mux.Handle("GET "+files.LocalPrefix, http.StripPrefix(files.LocalPrefix, http.FileServer(http.Dir(s.filesDir))))
	}

	mux.HandleFunc("/", handleNotFound)
}

// registerRPCHandlers sets up the websocket methods.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("room.join", s.rpcRoomJoin)
	s.Handle("room.leave", s.rpcRoomLeave)
	s.Handle("chat.send", s.rpcChatSend)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:  "ok",
		Version: s.version,
		Clients: s.clients.Count(),
	})
}

func (s *Server) rpcRoomJoin(rc *RequestContext) {
	var p RoomParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	room, ok := s.resolveRoom(rc, p.Room)
	if !ok {
		return
	}
	s.hub.Subscribe(room, rc.Client)
	rc.Respond(map[string]any{"room": room, "rooms": s.hub.Rooms(rc.Client)})
}

func (s *Server) rpcRoomLeave(rc *RequestContext) {
	var p RoomParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	room, ok := s.resolveRoom(rc, p.Room)
	if !ok {
		return
	}
	s.hub.Unsubscribe(room, rc.Client)
	rc.Respond(map[string]any{"room": room, "rooms": s.hub.Rooms(rc.Client)})
}

// resolveRoom answers the request with an error when the caller may not
// use the room.
func (s *Server) resolveRoom(rc *RequestContext, name string) (string, bool) {
	if name == "" {
		rc.RespondError("invalid_params", "room is required")
		return "", false
	}
	room, ok := roomFor(rc.Client.Identity.UserID, name)
	if !ok {
		rc.RespondError("forbidden", "cannot join room: "+name)
		return "", false
	}
	return room, true
}

// rpcChatSend streams a reply. Fragments go to the conversation's rooms and
// to the caller as chat.token events; the response carries the final
// message. It runs on its own goroutine so the connection keeps reading.
func (s *Server) rpcChatSend(rc *RequestContext) {
	var p ChatSendParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	msg := p.Inbound(rc.Client.Identity.UserID)
	if err := validateTurn(msg); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if !s.limiter.Allow(msg.UserID) {
		rc.Client.RespondError(rc.Frame.ID, ErrorShape{Code: "rate_limited", Message: "rate limit exceeded", Retryable: true})
		return
	}

	go func() {
		ctx := context.WithoutCancel(rc.Ctx)
		reply, err := s.chat.Handle(ctx, msg, func(evt domain.StreamEvent) error {
			return rc.Client.SendEvent(EventChatToken, map[string]any{
				"requestId": rc.Frame.ID,
				"event":     evt,
			}, 0)
		})
		if err != nil {
			rc.Client.RespondError(rc.Frame.ID, errorShape(err))
			return
		}
		rc.Respond(map[string]any{
			"message":    reply.Message,
			"model":      reply.Model,
			"fragments":  reply.Fragments,
			"durationMs": reply.Duration.Milliseconds(),
		})
	}()
}

// RequestHandler serves one websocket RPC method.
type RequestHandler func(rc *RequestContext)

// RequestContext carries a request frame and its connection.
type RequestContext struct {
	// Ctx lives as long as the connection.
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Debug().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Client.RespondError(rc.Frame.ID, ErrorShape{Code: code, Message: message})
}

// Params decodes the request params. Missing params leave target as is.
func (rc *RequestContext) Params(target any) error {
	if len(rc.Frame.Params) == 0 {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}
