// Package api serves the queue over a small JSON HTTP interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/park285/court-queue/internal/adapter/queuepresenter"
	"github.com/park285/court-queue/internal/domain"
	"github.com/park285/court-queue/internal/ledger"
	"github.com/park285/court-queue/internal/obslog"
	"github.com/park285/court-queue/internal/queue"
	"github.com/park285/court-queue/internal/roster"
	"github.com/park285/court-queue/pkg/queuedto"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var errMethodNotAllowed = errors.New("method not allowed")

type Server struct {
	sched   *queue.Scheduler
	roster  *roster.Service
	ledger  *ledger.Service
	players queue.Registry

	timeout time.Duration
}

func NewServer(sched *queue.Scheduler, rs *roster.Service, lg *ledger.Service, players queue.Registry) *Server {
	return &Server{sched: sched, roster: rs, ledger: lg, players: players, timeout: 10 * time.Second}
}

// Handler returns the fasthttp entry point with request logging.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(rc *fasthttp.RequestCtx) {
		start := time.Now()
		s.route(rc)
		obslog.L().Info("http_request",
			zap.ByteString("method", rc.Method()),
			zap.ByteString("path", rc.Path()),
			zap.Int("status", rc.Response.StatusCode()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// ListenAndServe blocks until ctx is cancelled, then shuts the server down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &fasthttp.Server{
		Handler:      s.Handler(),
		Name:         "court-queue",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(addr) }()
	obslog.L().Info("http_listen", zap.String("addr", addr))
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.ShutdownWithContext(sctx)
	}
}

func (s *Server) route(rc *fasthttp.RequestCtx) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	method := string(rc.Method())
	path := strings.TrimRight(string(rc.Path()), "/")

	var err error
	switch {
	case path == "/healthz":
		writeJSON(rc, fasthttp.StatusOK, map[string]string{"status": "ok"})
	case path == "/api/queue" && method == fasthttp.MethodGet:
		err = s.listQueue(ctx, rc)
	case path == "/api/queue/add" && method == fasthttp.MethodPost:
		err = s.enqueue(ctx, rc)
	case path == "/api/queue/start" && method == fasthttp.MethodPut:
		err = s.start(ctx, rc)
	case path == "/api/queue/finish" && method == fasthttp.MethodPut:
		err = s.finish(ctx, rc)
	case path == "/api/queue/cancel" && method == fasthttp.MethodDelete:
		err = s.cancel(ctx, rc)
	case path == "/api/players" && method == fasthttp.MethodGet:
		err = s.listPlayers(ctx, rc)
	case path == "/api/players" && method == fasthttp.MethodPost:
		err = s.addPlayer(ctx, rc)
	case strings.HasPrefix(path, "/api/players/"):
		err = s.playerSubroute(ctx, rc, method, strings.TrimPrefix(path, "/api/players/"))
	case path == "/api/history" && method == fasthttp.MethodGet:
		err = s.matchHistory(ctx, rc)
	case path == "/api/payment" && method == fasthttp.MethodGet:
		err = s.listPayments(ctx, rc)
	case path == "/api/payment" && method == fasthttp.MethodPost:
		err = s.recordPayment(ctx, rc)
	case knownPath(path):
		err = errMethodNotAllowed
	default:
		writeJSON(rc, fasthttp.StatusNotFound, queuedto.DomainError{Code: queuedto.CodeNotFound, Message: "no such route"})
	}
	if err != nil {
		writeError(rc, err)
	}
}

// playerSubroute handles /api/players/{id}/done and /api/players/{id}/history.
func (s *Server) playerSubroute(ctx context.Context, rc *fasthttp.RequestCtx, method, rest string) error {
	id, action, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		return queue.ErrNotFound
	}
	switch {
	case action == "done" && method == fasthttp.MethodPut:
		p, err := s.roster.MarkDone(ctx, id)
		if err != nil {
			return err
		}
		part, err := s.sched.Participation(ctx, p.ID)
		if err != nil {
			return err
		}
		secs, _ := queue.WaitSeconds(p, s.sched.Now())
		writeJSON(rc, fasthttp.StatusOK, queuepresenter.ToDTOPlayer(p, part, secs))
		return nil
	case action == "history" && method == fasthttp.MethodGet:
		entries, err := s.sched.PlayerHistory(ctx, id)
		if err != nil {
			return err
		}
		writeJSON(rc, fasthttp.StatusOK, queuepresenter.ToDTOHistory(entries))
		return nil
	case action == "done" || action == "history":
		return errMethodNotAllowed
	default:
		return queue.ErrNotFound
	}
}

func knownPath(path string) bool {
	switch path {
	case "/api/queue", "/api/queue/add", "/api/queue/start", "/api/queue/finish", "/api/queue/cancel",
		"/api/players", "/api/history", "/api/payment":
		return true
	}
	return false
}

func decode(rc *fasthttp.RequestCtx, v any) error {
	body := rc.PostBody()
	if len(body) == 0 {
		return queuedto.DomainError{Code: queuedto.CodeInvalidArgument, Message: "request body required"}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return queuedto.DomainError{Code: queuedto.CodeInvalidArgument, Message: "invalid json: " + err.Error()}
	}
	return nil
}

func writeJSON(rc *fasthttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		obslog.L().Error("http_encode_error", zap.Error(err))
		rc.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	rc.SetStatusCode(status)
	rc.SetContentType("application/json")
	rc.SetBody(b)
}

func writeError(rc *fasthttp.RequestCtx, err error) {
	if errors.Is(err, errMethodNotAllowed) {
		writeJSON(rc, fasthttp.StatusMethodNotAllowed, queuedto.DomainError{Code: queuedto.CodeInvalidArgument, Message: err.Error()})
		return
	}
	de := queuedto.FromError(err)
	status := StatusFor(de.Code)
	if status >= fasthttp.StatusInternalServerError {
		obslog.L().Warn("http_error", zap.ByteString("path", rc.Path()), zap.String("code", de.Code), zap.Error(err))
	}
	writeJSON(rc, status, de)
}

// StatusFor maps a DomainError code onto an HTTP status.
func StatusFor(code string) int {
	switch code {
	case queuedto.CodeInvalidArgument, queuedto.CodeAlreadyQueued, queuedto.CodeAmbiguousName:
		return fasthttp.StatusBadRequest
	case queuedto.CodeNotFound:
		return fasthttp.StatusNotFound
	case queuedto.CodeInvalidState:
		return fasthttp.StatusConflict
	case queuedto.CodeStoreUnavailable:
		return fasthttp.StatusServiceUnavailable
	default:
		return fasthttp.StatusInternalServerError
	}
}

// playerIndex feeds slot names into match responses.
func (s *Server) playerIndex(ctx context.Context) map[string]*domain.Player {
	list, err := s.players.ListPlayers(ctx)
	if err != nil {
		obslog.L().Warn("http_player_index_error", zap.Error(err))
		return nil
	}
	idx := make(map[string]*domain.Player, len(list))
	for _, p := range list {
		idx[p.ID] = p
	}
	return idx
}
