// Package chatbot turns prefixed room messages into queue operations and
// replies with rendered templates.
package chatbot

import (
	"context"
	"strings"
	"time"

	"github.com/go-andiamo/splitter"
	"github.com/park285/court-queue/internal/iris"
	"github.com/park285/court-queue/internal/msgcat"
	"github.com/park285/court-queue/internal/obslog"
	"github.com/park285/court-queue/internal/queue"
	"github.com/park285/court-queue/internal/roster"
	"go.uber.org/zap"
)

type Options struct {
	Prefix        string
	AllowedRooms  []string
	RatePerMinute int
	ReplyTimeout  time.Duration
}

type Bot struct {
	sched  *queue.Scheduler
	roster *roster.Service
	cat    *msgcat.Catalog
	out    iris.Egress

	prefix  string
	rooms   map[string]struct{}
	limits  *senderLimits
	timeout time.Duration
	words   splitter.Splitter
}

func New(sched *queue.Scheduler, rs *roster.Service, cat *msgcat.Catalog, out iris.Egress, opts Options) (*Bot, error) {
	words, err := splitter.NewSplitter(' ', splitter.DoubleQuotes, splitter.LeftRightDoubleDoubleQuotes)
	if err != nil {
		return nil, err
	}
	b := &Bot{
		sched:   sched,
		roster:  rs,
		cat:     cat,
		out:     out,
		prefix:  strings.TrimSpace(opts.Prefix),
		limits:  newSenderLimits(opts.RatePerMinute),
		timeout: opts.ReplyTimeout,
		words:   words,
	}
	if b.prefix == "" {
		b.prefix = "!"
	}
	if b.timeout <= 0 {
		b.timeout = 10 * time.Second
	}
	if len(opts.AllowedRooms) > 0 {
		b.rooms = make(map[string]struct{}, len(opts.AllowedRooms))
		for _, r := range opts.AllowedRooms {
			b.rooms[r] = struct{}{}
		}
	}
	return b, nil
}

// OnMessage is the WebSocket callback. Commands run off the read loop.
func (b *Bot) OnMessage(msg *iris.Message) {
	if !b.accepts(msg) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		b.Handle(ctx, msg)
	}()
}

// Handle answers msg in its room, if it is a command for this bot.
func (b *Bot) Handle(ctx context.Context, msg *iris.Message) {
	text, ok := b.Reply(ctx, msg)
	if !ok || text == "" {
		return
	}
	if err := b.out.SendText(ctx, msg.Room, text); err != nil {
		obslog.L().Warn("chat_reply_error", zap.String("room", msg.Room), zap.Error(err))
	}
}

// Reply computes the answer without sending it. ok is false for messages the
// bot ignores.
func (b *Bot) Reply(ctx context.Context, msg *iris.Message) (string, bool) {
	if !b.accepts(msg) {
		return "", false
	}
	if !b.limits.allow(msg.SenderID(), time.Now()) {
		obslog.L().Info("chat_rate_limited", zap.String("room", msg.Room), zap.String("sender", msg.SenderID()))
		return b.render("error.rate_limited", data{"Sender": msg.Sender}), true
	}

	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg.Msg), b.prefix))
	args := b.split(raw)
	if len(args) == 0 {
		return b.render("help", nil), true
	}
	cmd := strings.ToLower(args[0])
	obslog.L().Info("chat_command",
		zap.String("room", msg.Room),
		zap.String("sender", msg.SenderID()),
		zap.String("cmd", cmd),
	)
	return b.dispatch(ctx, cmd, args[1:]), true
}

func (b *Bot) accepts(msg *iris.Message) bool {
	if msg == nil || strings.TrimSpace(msg.Msg) == "" {
		return false
	}
	if b.rooms != nil {
		if _, ok := b.rooms[msg.Room]; !ok {
			return false
		}
	}
	return strings.HasPrefix(strings.TrimSpace(msg.Msg), b.prefix)
}

var quotes = strings.NewReplacer("\"", "", "\u201c", "", "\u201d", "")

// split tokenises on spaces, keeping "quoted names" together.
func (b *Bot) split(raw string) []string {
	parts, err := b.words.Split(raw)
	if err != nil {
		// unbalanced quotes
		parts = strings.Fields(raw)
	}
	out := parts[:0]
	for _, p := range parts {
		p = quotes.Replace(p)
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type data map[string]any

// render fills in the command prefix so every template can use {{.P}}.
func (b *Bot) render(key string, d data) string {
	if d == nil {
		d = data{}
	}
	d["P"] = b.prefix
	return b.cat.RenderOr(key, map[string]any(d), "Something went wrong.")
}
