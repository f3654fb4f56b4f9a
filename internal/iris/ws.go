package iris

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/park285/court-queue/internal/obslog"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type MessageCallback func(msg *Message)

type StateCallback func(state WebSocketState)

var ErrNotConnected = errors.New("iris websocket not connected")

// WebSocket receives room messages from the bridge and reconnects with
// backoff after read or ping failures.
type WebSocket struct {
	url     string
	headers HeaderProvider

	mu    sync.RWMutex
	conn  *websocket.Conn
	state WebSocketState

	writeMu sync.Mutex

	cbMu    sync.RWMutex
	onMsg   []MessageCallback
	onState []StateCallback

	maxReconnect int
	pingInterval time.Duration

	rootCtx  context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWebSocket(url string, maxReconnect int) *WebSocket {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocket{
		url:          url,
		state:        WSStateDisconnected,
		maxReconnect: maxReconnect,
		pingInterval: 30 * time.Second,
		rootCtx:      ctx,
		cancel:       cancel,
	}
}

func (ws *WebSocket) SetHeaderProvider(h HeaderProvider) { ws.headers = h }

func (ws *WebSocket) OnMessage(cb MessageCallback) {
	ws.cbMu.Lock()
	ws.onMsg = append(ws.onMsg, cb)
	ws.cbMu.Unlock()
}

func (ws *WebSocket) OnStateChange(cb StateCallback) {
	ws.cbMu.Lock()
	ws.onState = append(ws.onState, cb)
	ws.cbMu.Unlock()
}

func (ws *WebSocket) State() WebSocketState {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.state
}

// Connect dials once; on failure it still schedules background reconnects
// and returns the dial error.
func (ws *WebSocket) Connect(ctx context.Context) error {
	switch ws.State() {
	case WSStateConnected, WSStateConnecting:
		return nil
	}
	ws.setState(WSStateConnecting)
	if err := ws.dial(ctx); err != nil {
		ws.setState(WSStateFailed)
		ws.reconnect()
		return err
	}
	return nil
}

func (ws *WebSocket) dial(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dctx, ws.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      ws.buildHeaders(),
	})
	if err != nil {
		return err
	}
	ws.mu.Lock()
	ws.conn = conn
	ws.mu.Unlock()
	ws.setState(WSStateConnected)
	obslog.L().Info("iris_ws_connected", zap.String("url", ws.url))

	ws.wg.Add(2)
	go ws.listen(conn)
	go ws.pingLoop(conn)
	return nil
}

func (ws *WebSocket) listen(conn *websocket.Conn) {
	defer ws.wg.Done()
	for {
		var msg Message
		if err := wsjson.Read(ws.rootCtx, conn, &msg); err != nil {
			if ws.stopping() {
				return
			}
			obslog.L().Warn("iris_ws_read_error", zap.Error(err))
			ws.drop(conn, "read failure")
			ws.reconnect()
			return
		}
		ws.cbMu.RLock()
		cbs := append([]MessageCallback(nil), ws.onMsg...)
		ws.cbMu.RUnlock()
		for _, cb := range cbs {
			cb(&msg)
		}
	}
}

func (ws *WebSocket) pingLoop(conn *websocket.Conn) {
	defer ws.wg.Done()
	t := time.NewTicker(ws.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ws.rootCtx.Done():
			return
		case <-t.C:
		}
		ws.mu.RLock()
		current := ws.conn == conn
		ws.mu.RUnlock()
		if !current {
			return
		}
		ctx, cancel := context.WithTimeout(ws.rootCtx, 3*time.Second)
		err := conn.Ping(ctx)
		cancel()
		if err == nil {
			failures = 0
			continue
		}
		// two misses in a row; the read loop notices the close and reconnects
		if failures++; failures >= 2 {
			ws.drop(conn, "ping failure")
			return
		}
	}
}

func (ws *WebSocket) reconnect() {
	if ws.maxReconnect <= 0 || ws.stopping() {
		return
	}
	ws.setState(WSStateReconnecting)
	go func() {
		for attempt := 1; attempt <= ws.maxReconnect; attempt++ {
			if err := sleepCtx(ws.rootCtx, backoff(attempt)); err != nil {
				return
			}
			if err := ws.dial(ws.rootCtx); err != nil {
				obslog.L().Debug("iris_ws_reconnect_failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			return
		}
		ws.setState(WSStateFailed)
		obslog.L().Error("iris_ws_gave_up", zap.Int("attempts", ws.maxReconnect))
	}()
}

// drop closes conn if it is still the current one.
func (ws *WebSocket) drop(conn *websocket.Conn, reason string) {
	ws.mu.Lock()
	if ws.conn != conn {
		ws.mu.Unlock()
		return
	}
	ws.conn = nil
	ws.mu.Unlock()
	_ = conn.Close(websocket.StatusGoingAway, reason)
	ws.setState(WSStateDisconnected)
}

// WriteJSON sends one frame on the live connection. Writes are serialised.
func (ws *WebSocket) WriteJSON(ctx context.Context, v any) error {
	ws.mu.RLock()
	conn, state := ws.conn, ws.state
	ws.mu.RUnlock()
	if conn == nil || state != WSStateConnected {
		return ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	return wsjson.Write(ctx, conn, v)
}

func (ws *WebSocket) setState(s WebSocketState) {
	ws.mu.Lock()
	ws.state = s
	ws.mu.Unlock()
	ws.cbMu.RLock()
	cbs := append([]StateCallback(nil), ws.onState...)
	ws.cbMu.RUnlock()
	for _, cb := range cbs {
		cb(s)
	}
}

func (ws *WebSocket) Close(ctx context.Context) error {
	ws.stopOnce.Do(ws.cancel)
	ws.mu.Lock()
	conn := ws.conn
	ws.conn = nil
	ws.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}

	done := make(chan struct{})
	go func() {
		ws.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		ws.setState(WSStateDisconnected)
		return nil
	}
}

func (ws *WebSocket) stopping() bool { return ws.rootCtx.Err() != nil }

func (ws *WebSocket) buildHeaders() http.Header {
	hdr := http.Header{}
	if ws.headers == nil {
		return hdr
	}
	for k, v := range ws.headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
