package chatbot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/park285/court-queue/internal/domain"
	"github.com/park285/court-queue/internal/obslog"
	"github.com/park285/court-queue/internal/queue"
	"github.com/park285/court-queue/internal/util"
	"github.com/park285/court-queue/pkg/queuedto"
	"go.uber.org/zap"
)

const historyLimit = 10

func (b *Bot) dispatch(ctx context.Context, cmd string, args []string) string {
	switch cmd {
	case "help":
		return b.render("help", nil)
	case "queue", "q":
		return b.queue(ctx)
	case "players", "pool":
		return b.players(ctx)
	case "add":
		return b.add(ctx, args)
	case "join":
		return b.join(ctx, args)
	case "start":
		return b.start(ctx, args)
	case "finish":
		return b.finish(ctx, args)
	case "cancel":
		return b.cancel(ctx, args)
	case "done":
		return b.done(ctx, args)
	case "history":
		return b.history(ctx, args)
	default:
		return b.render("unknown", nil)
	}
}

func (b *Bot) queue(ctx context.Context) string {
	open, err := b.sched.ListOpenMatches(ctx)
	if err != nil {
		return b.fail(err, "")
	}
	if len(open) == 0 {
		return b.render("queue.empty", nil)
	}
	rows := make([]data, 0, len(open))
	for i, m := range open {
		one, two := teamNames(m.Slots)
		rows = append(rows, data{"Pos": i + 1, "Status": string(m.Status), "TeamOne": one, "TeamTwo": two, "Count": len(m.Slots)})
	}
	d := data{"Matches": rows}
	return util.FoldLongReply(b.render("queue.header", d), b.render("queue.list", d))
}

func (b *Bot) players(ctx context.Context) string {
	pool, err := b.sched.Players(ctx)
	if err != nil {
		return b.fail(err, "")
	}
	if len(pool) == 0 {
		return b.render("players.empty", nil)
	}
	rows := make([]data, 0, len(pool))
	for _, e := range pool {
		rows = append(rows, data{
			"Name":    e.Player.Name,
			"Level":   string(e.Player.Level),
			"Games":   e.Player.GamesPlayed,
			"Status":  statusLabel(e.Participation),
			"Waiting": e.Participation.Kind == domain.Waiting,
			"Wait":    e.WaitSeconds,
		})
	}
	d := data{"Players": rows}
	return util.FoldLongReply(b.render("players.header", d), b.render("players.list", d))
}

// add takes the level as the last word so unquoted names with spaces work.
func (b *Bot) add(ctx context.Context, args []string) string {
	if len(args) < 2 {
		return b.usage(`add "<name>" <A-D>`)
	}
	name := strings.Join(args[:len(args)-1], " ")
	p, err := b.roster.Add(ctx, name, args[len(args)-1])
	if err != nil {
		return b.fail(err, name)
	}
	return b.render("add.ok", data{"Name": p.Name, "Level": string(p.Level)})
}

func (b *Bot) join(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return b.usage("join <name>")
	}
	query := strings.Join(args, " ")
	p, err := b.roster.Resolve(ctx, query)
	if err != nil {
		return b.fail(err, query)
	}
	placed, err := b.sched.Enqueue(ctx, p.ID)
	if err != nil {
		return b.fail(err, p.Name)
	}
	d := data{"Name": p.Name, "Pos": 0, "Team": placed.Team, "Count": len(placed.Slots)}
	pos, err := b.positionOf(ctx, placed.MatchID)
	if err != nil {
		// the seat is committed; only the numbering is unknown
		obslog.L().Warn("chat_join_position_error", zap.String("match_id", placed.MatchID), zap.Error(err))
		return b.render("join.ok", d)
	}
	d["Pos"] = pos
	if len(placed.Slots) >= domain.MatchCapacity {
		return b.render("join.full", d)
	}
	return b.render("join.ok", d)
}

func (b *Bot) start(ctx context.Context, args []string) string {
	pos, view, reply := b.matchArg(ctx, "start <n>", args)
	if view == nil {
		return reply
	}
	if _, err := b.sched.Start(ctx, view.ID); err != nil {
		return b.fail(err, "")
	}
	one, two := teamNames(view.Slots)
	return b.render("start.ok", data{"Pos": pos, "TeamOne": one, "TeamTwo": two})
}

func (b *Bot) finish(ctx context.Context, args []string) string {
	pos, view, reply := b.matchArg(ctx, "finish <n>", args)
	if view == nil {
		return reply
	}
	if _, err := b.sched.Finish(ctx, view.ID); err != nil {
		return b.fail(err, "")
	}
	return b.render("finish.ok", data{"Pos": pos, "Names": slotNames(view.Slots)})
}

func (b *Bot) cancel(ctx context.Context, args []string) string {
	pos, view, reply := b.matchArg(ctx, "cancel <n>", args)
	if view == nil {
		return reply
	}
	if _, err := b.sched.Cancel(ctx, view.ID); err != nil {
		return b.fail(err, "")
	}
	return b.render("cancel.ok", data{"Pos": pos, "Names": slotNames(view.Slots)})
}

func (b *Bot) done(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return b.usage("done <name>")
	}
	query := strings.Join(args, " ")
	p, err := b.roster.Resolve(ctx, query)
	if err != nil {
		return b.fail(err, query)
	}
	p, err = b.roster.MarkDone(ctx, p.ID)
	if err != nil {
		return b.fail(err, query)
	}
	return b.render("done.ok", data{"Name": p.Name, "Games": p.GamesPlayed})
}

func (b *Bot) history(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return b.usage("history <name>")
	}
	query := strings.Join(args, " ")
	p, err := b.roster.Resolve(ctx, query)
	if err != nil {
		return b.fail(err, query)
	}
	entries, err := b.sched.PlayerHistory(ctx, p.ID)
	if err != nil {
		return b.fail(err, query)
	}
	if len(entries) == 0 {
		return b.render("history.empty", data{"Name": p.Name})
	}
	if len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}
	rows := make([]data, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, data{
			"When":      e.CreatedAt.Local().Format("01-02 15:04"),
			"Status":    string(e.Status),
			"Teammates": e.Teammates,
			"Opponents": e.Opponents,
		})
	}
	d := data{"Name": p.Name, "Entries": rows}
	return util.FoldLongReply(b.render("history.header", d), b.render("history.list", d))
}

// matchArg resolves a 1-based position in the open-match list. A nil view
// means reply already holds the answer.
func (b *Bot) matchArg(ctx context.Context, usage string, args []string) (int, *queue.MatchView, string) {
	if len(args) != 1 {
		return 0, nil, b.usage(usage)
	}
	pos, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
	if err != nil || pos < 1 {
		return 0, nil, b.usage(usage)
	}
	open, err := b.sched.ListOpenMatches(ctx)
	if err != nil {
		return 0, nil, b.fail(err, "")
	}
	if pos > len(open) {
		return 0, nil, b.render("error.no_match", data{"Pos": pos})
	}
	return pos, &open[pos-1], ""
}

func (b *Bot) positionOf(ctx context.Context, matchID string) (int, error) {
	open, err := b.sched.ListOpenMatches(ctx)
	if err != nil {
		return 0, err
	}
	for i, m := range open {
		if m.ID == matchID {
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("match %s left the open list: %w", matchID, queue.ErrNotFound)
}

func (b *Bot) usage(u string) string {
	return b.render("error.usage", data{"Usage": b.prefix + u})
}

// fail maps err onto a reply. subject names the player or query involved.
func (b *Bot) fail(err error, subject string) string {
	de := queuedto.FromError(err)
	d := data{"Query": subject, "Name": subject, "Detail": de.Message}
	switch de.Code {
	case queuedto.CodeNotFound:
		return b.render("error.not_found", d)
	case queuedto.CodeAmbiguousName:
		return b.render("error.ambiguous", d)
	case queuedto.CodeAlreadyQueued:
		return b.render("error.already_queued", d)
	case queuedto.CodeInvalidState:
		return b.render("error.invalid_state", d)
	case queuedto.CodeStoreUnavailable:
		obslog.L().Warn("chat_store_unavailable", zap.Error(err))
		return b.render("error.unavailable", d)
	case queuedto.CodeInvalidArgument:
		return b.render("error.invalid", d)
	default:
		obslog.L().Error("chat_command_error", zap.Error(err))
		return b.render("error.internal", d)
	}
}

func teamNames(slots []queue.SlotView) (one, two []string) {
	for _, s := range slots {
		if s.Team == domain.TeamOne {
			one = append(one, s.Name)
		} else {
			two = append(two, s.Name)
		}
	}
	return one, two
}

func slotNames(slots []queue.SlotView) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Name)
	}
	return out
}

func statusLabel(p domain.Participation) string {
	switch p.Kind {
	case domain.Waiting:
		return "waiting"
	case domain.InMatch:
		return "in match"
	case domain.Done:
		return "done"
	default:
		return "idle"
	}
}
