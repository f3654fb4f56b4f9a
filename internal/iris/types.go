// Package iris talks to the Iris KakaoTalk bridge: replies go out over HTTP
// (or the socket when connected) and room messages arrive over a WebSocket.
package iris

// Message is one room message pushed by the bridge.
type Message struct {
	Msg    string       `json:"msg"`
	Room   string       `json:"room"`
	Sender string       `json:"sender"`
	JSON   *MessageJSON `json:"json,omitempty"`
}

// MessageJSON carries the raw chat-log identifiers.
type MessageJSON struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
	Type   string `json:"type"`
}

// SenderID is the stable user id when the bridge supplies one, else the
// display name.
func (m *Message) SenderID() string {
	if m.JSON != nil && m.JSON.UserID != "" {
		return m.JSON.UserID
	}
	return m.Sender
}

type ReplyRequest struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Data string `json:"data"`
}

// Config is the subset of /config the probe reports.
type Config struct {
	BotName           string `json:"bot_name"`
	BotHTTPPort       int    `json:"bot_http_port"`
	WebServerEndpoint string `json:"web_server_endpoint"`
}

type WebSocketState int

const (
	WSStateDisconnected WebSocketState = iota
	WSStateConnecting
	WSStateConnected
	WSStateReconnecting
	WSStateFailed
)

func (s WebSocketState) String() string {
	switch s {
	case WSStateConnecting:
		return "connecting"
	case WSStateConnected:
		return "connected"
	case WSStateReconnecting:
		return "reconnecting"
	case WSStateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// HeaderProvider supplies per-request headers (X-User-*).
type HeaderProvider func() map[string]string
