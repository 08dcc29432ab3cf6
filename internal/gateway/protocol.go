package gateway

import (
	"encoding/json"

	"github.com/soyeahso/paxxium/internal/domain"
)

// ProtocolVersion is the websocket protocol this server speaks.
const ProtocolVersion = 1

// Frame types.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// Events pushed to websocket clients.
const (
	EventChallenge = "connect.challenge"
	// EventToken carries one reply fragment to every subscriber of a room.
	EventToken = "token"
	// EventChatToken carries one fragment to the client that sent chat.send.
	EventChatToken = "chat.token"
)

// Frame is the envelope for every websocket message. Type selects which of
// the request, response or event fields are set.
type Frame struct {
	Type string `json:"type"`

	// request
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	// response
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`

	// event
	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`
}

// ErrorShape is the error body of a failed response.
type ErrorShape struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ConnectParams are sent by the client in the "connect" request.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
}

// ClientInfo identifies the connecting application.
type ClientInfo struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform,omitempty"`
}

// ConnectAuth carries the identity token.
type ConnectAuth struct {
	Token string `json:"token,omitempty"`
}

// HelloOK answers a successful connect.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	UserID   string       `json:"userId"`
	Features Features     `json:"features"`
	Policy   ServerPolicy `json:"policy"`
}

// ServerInfo identifies the server build and the connection.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// Features lists the RPC methods and events on offer.
type Features struct {
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

// ServerPolicy communicates protocol limits.
type ServerPolicy struct {
	MaxPayload     int `json:"maxPayload"`
	TickIntervalMs int `json:"tickIntervalMs"`
}

// RoomParams names a room for room.join and room.leave.
type RoomParams struct {
	// Room is one of the caller's conversation ids, or a full room name
	// ("user:<id>", "chat:<id>:<conversation>").
	Room string `json:"room"`
}

// ChatSendParams is the body of chat.send and POST /messages/post.
type ChatSendParams struct {
	UserMessage  UserMessage         `json:"userMessage"`
	ChatHistory  []domain.Message    `json:"chatHistory,omitempty"`
	ChatSettings domain.ChatSettings `json:"chatSettings"`
	ImageURL     string              `json:"image_url,omitempty"`
}

// UserMessage is the new user turn inside ChatSendParams.
type UserMessage struct {
	Content     string `json:"content"`
	MessageFrom string `json:"message_from,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Inbound converts the request into a routed message for userID.
func (p ChatSendParams) Inbound(userID string) domain.InboundMessage {
	image := p.UserMessage.ImageURL
	if image == "" {
		image = p.ImageURL
	}
	return domain.InboundMessage{
		UserID:         userID,
		ConversationID: p.ChatSettings.ChatID,
		Author:         p.UserMessage.MessageFrom,
		Content:        p.UserMessage.Content,
		ImageURL:       image,
		Settings:       p.ChatSettings,
		History:        p.ChatHistory,
	}
}

// NewRequest creates a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

// NewResponse creates a success response frame.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

// NewErrorResponse creates an error response frame.
func NewErrorResponse(id string, e ErrorShape) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &e}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}
