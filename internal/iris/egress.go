package iris

import (
	"context"
	"errors"

	"github.com/park285/court-queue/internal/obslog"
	"go.uber.org/zap"
)

// Egress sends text replies to a room.
type Egress interface {
	SendText(ctx context.Context, room, message string) error
}

// NewEgress picks the reply path: "http", "ws", or "auto" (socket when
// connected, HTTP otherwise or on socket failure).
func NewEgress(mode string, c *Client, ws *WebSocket) Egress {
	switch mode {
	case "ws":
		return &wsEgress{ws: ws}
	case "auto":
		return &autoEgress{ws: &wsEgress{ws: ws}, http: &httpEgress{c: c}}
	default:
		return &httpEgress{c: c}
	}
}

type httpEgress struct{ c *Client }

func (h *httpEgress) SendText(ctx context.Context, room, message string) error {
	if h.c == nil {
		return errors.New("http egress not available")
	}
	return h.c.SendMessage(ctx, room, message)
}

type wsEgress struct{ ws *WebSocket }

func (w *wsEgress) SendText(ctx context.Context, room, message string) error {
	if w.ws == nil {
		return ErrNotConnected
	}
	return w.ws.WriteJSON(ctx, &ReplyRequest{Type: "text", Room: room, Data: message})
}

type autoEgress struct {
	ws   *wsEgress
	http *httpEgress
}

func (a *autoEgress) SendText(ctx context.Context, room, message string) error {
	if a.ws.ws != nil && a.ws.ws.State() == WSStateConnected {
		err := a.ws.SendText(ctx, room, message)
		if err == nil {
			return nil
		}
		obslog.L().Warn("egress_fallback", zap.String("room", room), zap.Error(err))
	}
	return a.http.SendText(ctx, room, message)
}
