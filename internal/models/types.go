package models

// Inbound message types sent by clients
const (
	TypePing        = "ping"
	TypeNewSession  = "new_session"
	TypeUserMessage = "user_message"
)

// Outbound message types sent to clients
const (
	TypePong           = "pong"
	TypeSessionStarted = "session_started"
	TypeStatus         = "status"
	TypeBotMessage     = "bot_message"
	TypeError          = "error"
)

// Status values carried by TypeStatus messages
const (
	StatusThinking = "thinking"
	StatusIdle     = "idle"
)

// Error codes
const (
	ErrorInvalidJSON     = "invalid_json"
	ErrorEmptyText       = "empty_text"
	ErrorInferenceFailed = "inference_failed"
	ErrorUnknownType     = "unknown_type"
)

// Inbound is a client message. Only Type is required; Text and SessionID
// are read for user_message.
type Inbound struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Outbound is a server message. Fields not relevant to Type are omitted.
type Outbound struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

func Pong() Outbound {
	return Outbound{Type: TypePong}
}

func SessionStarted(sessionID string) Outbound {
	return Outbound{Type: TypeSessionStarted, SessionID: sessionID}
}

func Status(sessionID, status string) Outbound {
	return Outbound{Type: TypeStatus, Status: status, SessionID: sessionID}
}

func BotMessage(sessionID, text string) Outbound {
	return Outbound{Type: TypeBotMessage, Text: text, SessionID: sessionID}
}

// ErrorReply builds a typed error message. sessionID may be empty.
func ErrorReply(code, message, sessionID string) Outbound {
	return Outbound{Type: TypeError, Error: code, Message: message, SessionID: sessionID}
}

// NewSessionResponse is the body of POST /session/new
type NewSessionResponse struct {
	SessionID string `json:"session_id"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status string `json:"status"`
}
