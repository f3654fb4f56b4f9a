package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/court-queue/internal/domain"
	"github.com/park285/court-queue/internal/iris"
	"github.com/park285/court-queue/internal/msgcat"
	"github.com/park285/court-queue/internal/queue"
	"github.com/park285/court-queue/internal/roster"
	"github.com/park285/court-queue/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentText struct{ room, text string }

type fakeEgress struct {
	mu   sync.Mutex
	sent []sentText
}

func (f *fakeEgress) SendText(_ context.Context, room, message string) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentText{room, message})
	f.mu.Unlock()
	return nil
}

type harness struct {
	bot    *Bot
	sched  *queue.Scheduler
	roster *roster.Service
	out    *fakeEgress
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	store := queue.NewMemoryStore()
	now := func() time.Time { return time.Date(2024, 5, 4, 18, 0, 0, 0, time.UTC) }
	sched, err := queue.NewScheduler(store, queue.WithClock(now))
	require.NoError(t, err)
	rs := roster.NewService(store, roster.WithClock(now))
	cat, err := msgcat.New("")
	require.NoError(t, err)
	out := &fakeEgress{}
	bot, err := New(sched, rs, cat, out, opts)
	require.NoError(t, err)
	return &harness{bot: bot, sched: sched, roster: rs, out: out}
}

func (h *harness) say(t *testing.T, text string) string {
	t.Helper()
	reply, ok := h.bot.Reply(context.Background(), &iris.Message{Msg: text, Room: "court", Sender: "Host"})
	require.True(t, ok, "message %q ignored", text)
	return reply
}

func (h *harness) addPlayers(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		_, err := h.roster.Add(context.Background(), n, "B")
		require.NoError(t, err)
	}
}

func TestIgnoresNonCommandsAndOtherRooms(t *testing.T) {
	h := newHarness(t, Options{Prefix: "!", AllowedRooms: []string{"court"}})

	_, ok := h.bot.Reply(context.Background(), &iris.Message{Msg: "hello", Room: "court"})
	assert.False(t, ok)
	_, ok = h.bot.Reply(context.Background(), &iris.Message{Msg: "!queue", Room: "lobby"})
	assert.False(t, ok)
	_, ok = h.bot.Reply(context.Background(), nil)
	assert.False(t, ok)

	assert.Contains(t, h.say(t, "!"), "Court queue commands")
	assert.Contains(t, h.say(t, "!bogus"), "Unknown command")
}

func TestAddJoinAndQueue(t *testing.T) {
	h := newHarness(t, Options{})

	assert.Equal(t, "Registered Ana Lee [A].", h.say(t, `!add "Ana Lee" a`))
	assert.Equal(t, "Registered Ben [C].", h.say(t, "!add Ben c"))
	assert.Contains(t, h.say(t, "!add Cy Z"), "level")
	assert.Equal(t, "Usage: !add \"<name>\" <A-D>", h.say(t, "!add Solo"))

	assert.Equal(t, "No open matches. Queue someone with !join <name>.", h.say(t, "!queue"))
	assert.Equal(t, "Ana Lee joined match #1 on team 1 (1/4).", h.say(t, "!join ana lee"))
	assert.Equal(t, "Ben joined match #1 on team 1 (2/4).", h.say(t, "!join Ben"))
	assert.Equal(t, "Ben is already queued or playing.", h.say(t, "!join Ben"))
	assert.Equal(t, "Not found: Zed", h.say(t, "!join Zed"))

	got := h.say(t, "!queue")
	assert.Equal(t, "Open matches (1)\n#1 [queued] Ana Lee, Ben vs  (2/4)", got)
}

func TestFullMatchLifecycle(t *testing.T) {
	h := newHarness(t, Options{})
	h.addPlayers(t, "Ana", "Ben", "Cy", "Di")
	for _, n := range []string{"Ana", "Ben", "Cy"} {
		h.say(t, "!join "+n)
	}
	assert.Equal(t, "Di joined match #1 on team 2. Match is full, !start 1 when ready.", h.say(t, "!join Di"))

	assert.Equal(t, "Match #1 started: Ana, Ben vs Cy, Di", h.say(t, "!start 1"))
	assert.Equal(t, "That match cannot do that right now.", h.say(t, "!start 1"))
	assert.Equal(t, "There is no open match #2.", h.say(t, "!finish 2"))
	assert.Equal(t, "Usage: !finish <n>", h.say(t, "!finish x"))

	assert.Equal(t, "Match #1 finished. Ana, Ben, Cy, Di are back in the pool.", h.say(t, "!finish #1"))
	assert.Equal(t, "Di is done for today after 1 games.", h.say(t, "!done di"))

	hist := h.say(t, "!history Ana")
	assert.True(t, strings.HasPrefix(hist, "Ana - last 1 games\n"), hist)
	assert.Contains(t, hist, "[finished] with Ben vs Cy, Di")

	players := h.say(t, "!players")
	assert.Contains(t, players, "Ana [B] games 1 - waiting 0s")
	// done players sort last
	assert.True(t, strings.HasSuffix(players, "\nDi [B] games 1 - done"), players)
}

func TestCancelReturnsPlayers(t *testing.T) {
	h := newHarness(t, Options{})
	h.addPlayers(t, "Ana", "Ben")
	h.say(t, "!join Ana")
	h.say(t, "!join Ben")

	assert.Equal(t, "Match #1 cancelled. Ana, Ben can queue again.", h.say(t, "!cancel 1"))
	assert.Equal(t, "Ana joined match #1 on team 1 (1/4).", h.say(t, "!join Ana"))
}

func TestAmbiguousNames(t *testing.T) {
	h := newHarness(t, Options{})
	h.addPlayers(t, "Sam", "sam")
	assert.Equal(t, "More than one player matches Sam. Use the full name.", h.say(t, "!join Sam"))
}

func TestLongListsFold(t *testing.T) {
	h := newHarness(t, Options{})
	for i := 1; i <= 8; i++ {
		h.addPlayers(t, fmt.Sprintf("Player %d", i))
	}
	got := h.say(t, "!players")
	assert.True(t, strings.HasPrefix(got, "Players (8)"+util.KakaoZeroWidthSpace), "header should sit above the fold")
}

func TestRateLimitPerSender(t *testing.T) {
	h := newHarness(t, Options{RatePerMinute: 4})
	msg := func(sender string) *iris.Message {
		return &iris.Message{Msg: "!queue", Room: "court", Sender: sender}
	}
	first, _ := h.bot.Reply(context.Background(), msg("Ana"))
	assert.NotContains(t, first, "Slow down")
	second, _ := h.bot.Reply(context.Background(), msg("Ana"))
	assert.Equal(t, "Slow down a little, Ana.", second)

	other, _ := h.bot.Reply(context.Background(), msg("Ben"))
	assert.NotContains(t, other, "Slow down")
}

func TestHandleSendsToRoom(t *testing.T) {
	h := newHarness(t, Options{})
	h.bot.Handle(context.Background(), &iris.Message{Msg: "!queue", Room: "court-7"})
	h.bot.Handle(context.Background(), &iris.Message{Msg: "chatter", Room: "court-7"})

	require.Len(t, h.out.sent, 1)
	assert.Equal(t, "court-7", h.out.sent[0].room)
}

// listFailStore commits normally but cannot list active matches.
type listFailStore struct{ *queue.MemoryStore }

func (listFailStore) ActiveMatches(context.Context) ([]*domain.Match, error) {
	return nil, errors.New("read replica down")
}

func TestJoinConfirmsSeatWhenPositionUnknown(t *testing.T) {
	store := listFailStore{queue.NewMemoryStore()}
	sched, err := queue.NewScheduler(store)
	require.NoError(t, err)
	rs := roster.NewService(store)
	cat, err := msgcat.New("")
	require.NoError(t, err)
	bot, err := New(sched, rs, cat, &fakeEgress{}, Options{Prefix: "!"})
	require.NoError(t, err)
	_, err = rs.Add(context.Background(), "Ana", "B")
	require.NoError(t, err)

	reply, ok := bot.Reply(context.Background(), &iris.Message{Msg: "!join Ana", Room: "court", Sender: "Host"})
	require.True(t, ok)
	assert.Equal(t, "Ana joined a match on team 1 (1/4).", reply)

	slot, err := store.ActiveSlotOf(context.Background(), mustResolve(t, rs, "Ana"))
	require.NoError(t, err)
	assert.NotNil(t, slot)
}

func mustResolve(t *testing.T, rs *roster.Service, name string) string {
	t.Helper()
	p, err := rs.Resolve(context.Background(), name)
	require.NoError(t, err)
	return p.ID
}
