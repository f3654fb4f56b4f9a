package api

import (
	"context"

	"github.com/park285/court-queue/internal/adapter/queuepresenter"
	"github.com/park285/court-queue/internal/domain"
	"github.com/park285/court-queue/internal/ledger"
	"github.com/park285/court-queue/internal/queue"
	"github.com/park285/court-queue/pkg/queuedto"
	"github.com/valyala/fasthttp"
)

func (s *Server) listQueue(ctx context.Context, rc *fasthttp.RequestCtx) error {
	open, err := s.sched.ListOpenMatches(ctx)
	if err != nil {
		return err
	}
	out := make([]queuedto.Match, 0, len(open))
	for _, m := range open {
		out = append(out, queuepresenter.ToDTOMatchView(m))
	}
	writeJSON(rc, fasthttp.StatusOK, out)
	return nil
}

func (s *Server) enqueue(ctx context.Context, rc *fasthttp.RequestCtx) error {
	var req queuedto.EnqueueRequest
	if err := decode(rc, &req); err != nil {
		return err
	}
	placed, err := s.sched.Enqueue(ctx, req.PlayerID)
	if err != nil {
		return err
	}
	status := fasthttp.StatusOK
	if placed.Created {
		status = fasthttp.StatusCreated
	}
	writeJSON(rc, status, queuepresenter.ToDTOPlacement(placed))
	return nil
}

func (s *Server) start(ctx context.Context, rc *fasthttp.RequestCtx) error {
	var req queuedto.MatchRequest
	if err := decode(rc, &req); err != nil {
		return err
	}
	m, err := s.sched.Start(ctx, req.MatchID)
	if err != nil {
		return err
	}
	writeJSON(rc, fasthttp.StatusOK, queuepresenter.ToDTOMatch(m, s.playerIndex(ctx)))
	return nil
}

func (s *Server) finish(ctx context.Context, rc *fasthttp.RequestCtx) error {
	var req queuedto.MatchRequest
	if err := decode(rc, &req); err != nil {
		return err
	}
	res, err := s.sched.Finish(ctx, req.MatchID)
	if err != nil {
		return err
	}
	writeJSON(rc, fasthttp.StatusOK, queuepresenter.ToDTOFinish(res, s.playerIndex(ctx)))
	return nil
}

// cancel names the players from before the delete so the response still
// shows who was seated.
func (s *Server) cancel(ctx context.Context, rc *fasthttp.RequestCtx) error {
	var req queuedto.MatchRequest
	if err := decode(rc, &req); err != nil {
		return err
	}
	idx := s.playerIndex(ctx)
	m, err := s.sched.Cancel(ctx, req.MatchID)
	if err != nil {
		return err
	}
	writeJSON(rc, fasthttp.StatusOK, queuepresenter.ToDTOMatch(m, idx))
	return nil
}

func (s *Server) listPlayers(ctx context.Context, rc *fasthttp.RequestCtx) error {
	pool, err := s.sched.Players(ctx)
	if err != nil {
		return err
	}
	writeJSON(rc, fasthttp.StatusOK, queuepresenter.ToDTOPool(pool))
	return nil
}

func (s *Server) addPlayer(ctx context.Context, rc *fasthttp.RequestCtx) error {
	var req queuedto.AddPlayerRequest
	if err := decode(rc, &req); err != nil {
		return err
	}
	p, err := s.roster.Add(ctx, req.Name, req.Level)
	if err != nil {
		return err
	}
	secs, _ := queue.WaitSeconds(p, s.sched.Now())
	writeJSON(rc, fasthttp.StatusCreated, queuepresenter.ToDTOPlayer(p, domain.WaitingParticipation(), secs))
	return nil
}

func (s *Server) matchHistory(ctx context.Context, rc *fasthttp.RequestCtx) error {
	sums, err := s.sched.MatchHistory(ctx)
	if err != nil {
		return err
	}
	writeJSON(rc, fasthttp.StatusOK, queuepresenter.ToDTOSummaries(sums))
	return nil
}

func (s *Server) listPayments(ctx context.Context, rc *fasthttp.RequestCtx) error {
	list, err := s.ledger.List(ctx)
	if err != nil {
		return err
	}
	writeJSON(rc, fasthttp.StatusOK, queuepresenter.ToDTOPayments(list, ledger.Summarize(list)))
	return nil
}

func (s *Server) recordPayment(ctx context.Context, rc *fasthttp.RequestCtx) error {
	var req queuedto.PaymentRequest
	if err := decode(rc, &req); err != nil {
		return err
	}
	p, err := s.ledger.Record(ctx, req.PlayerID, req.Method, req.AmountCents)
	if err != nil {
		return err
	}
	writeJSON(rc, fasthttp.StatusCreated, queuepresenter.ToDTOPayment(*p))
	return nil
}
