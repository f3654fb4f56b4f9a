package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/court-queue/internal/domain"
	"github.com/redis/go-redis/v9"
)

const maxCommitRetries = 5

// RedisStore keeps the live queue in Redis. Batches run as WATCH + MULTI/EXEC
// so a commit either lands entirely or not at all.
type RedisStore struct{ rdb *redis.Client }

// NewRedisStore dials REDIS_URL (redis:// or rediss://, db taken from path).
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis queue store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

// Client exposes the connection so the scheduler lock can share it.
func (s *RedisStore) Client() *redis.Client { return s.rdb }

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func keyPlayer(id string) string        { return "cq:player:" + id }
func keyPlayerMatches(id string) string { return keyPlayer(id) + ":matches" }
func keyPlayers() string                { return "cq:players" }
func keyMatch(id string) string         { return "cq:match:" + id }
func keySlots(id string) string         { return keyMatch(id) + ":slots" }
func keyMatches() string                { return "cq:matches" }
func keyActiveMatches() string          { return "cq:matches:active" }
func keyActive(playerID string) string  { return "cq:active:" + playerID }

// pipeliner is satisfied by both *redis.Client and a WATCHed *redis.Tx.
type pipeliner interface {
	Pipeline() redis.Pipeliner
}

type redisSlot struct {
	PlayerID string    `json:"player_id"`
	Team     int       `json:"team"`
	Seq      int       `json:"seq"`
	JoinedAt time.Time `json:"joined_at"`
}

func (s *RedisStore) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	h, err := s.rdb.HGetAll(ctx, keyPlayer(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(h) == 0 {
		return nil, nil
	}
	return decodePlayer(h)
}

func (s *RedisStore) ListPlayers(ctx context.Context) ([]*domain.Player, error) {
	ids, err := s.rdb.SMembers(ctx, keyPlayers()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*domain.Player{}, nil
	}
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, keyPlayer(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.Player, 0, len(ids))
	for _, c := range cmds {
		h := c.Val()
		if len(h) == 0 {
			continue
		}
		p, err := decodePlayer(h)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *RedisStore) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	ms, err := s.loadMatches(ctx, s.rdb, []string{id})
	if err != nil || len(ms) == 0 {
		return nil, err
	}
	return ms[0], nil
}

func (s *RedisStore) OpenMatchesWithSlotCount(ctx context.Context) ([]OpenMatch, error) {
	ms, err := s.ActiveMatches(ctx)
	if err != nil {
		return nil, err
	}
	var out []OpenMatch
	for _, m := range ms {
		if m.Status == domain.MatchQueued {
			out = append(out, OpenMatch{ID: m.ID, CreatedAt: m.CreatedAt, Count: len(m.Slots)})
		}
	}
	return out, nil
}

func (s *RedisStore) ActiveMatches(ctx context.Context) ([]*domain.Match, error) {
	ids, err := s.rdb.SMembers(ctx, keyActiveMatches()).Result()
	if err != nil {
		return nil, err
	}
	return s.loadMatches(ctx, s.rdb, ids)
}

func (s *RedisStore) ActiveSlotOf(ctx context.Context, playerID string) (*domain.Slot, error) {
	matchID, err := s.rdb.Get(ctx, keyActive(playerID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m, err := s.GetMatch(ctx, matchID)
	if err != nil || m == nil || !m.Status.Active() {
		return nil, err
	}
	if sl, ok := m.SlotOf(playerID); ok {
		return &sl, nil
	}
	return nil, nil
}

func (s *RedisStore) MatchesOf(ctx context.Context, playerID string) ([]*domain.Match, error) {
	ids, err := s.rdb.SMembers(ctx, keyPlayerMatches(playerID)).Result()
	if err != nil {
		return nil, err
	}
	return s.loadMatches(ctx, s.rdb, ids)
}

func (s *RedisStore) ListMatches(ctx context.Context) ([]*domain.Match, error) {
	ids, err := s.rdb.ZRange(ctx, keyMatches(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return s.loadMatches(ctx, s.rdb, ids)
}

// loadMatches fetches match hashes and slot lists in one round trip. Ids whose
// hash is gone are skipped.
func (s *RedisStore) loadMatches(ctx context.Context, c pipeliner, ids []string) ([]*domain.Match, error) {
	if len(ids) == 0 {
		return []*domain.Match{}, nil
	}
	pipe := c.Pipeline()
	hs := make([]*redis.MapStringStringCmd, len(ids))
	ls := make([]*redis.StringSliceCmd, len(ids))
	for i, id := range ids {
		hs[i] = pipe.HGetAll(ctx, keyMatch(id))
		ls[i] = pipe.LRange(ctx, keySlots(id), 0, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}
	out := make([]*domain.Match, 0, len(ids))
	for i := range ids {
		h := hs[i].Val()
		if len(h) == 0 {
			continue
		}
		m, err := decodeMatch(h, ls[i].Val())
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Commit applies the batch under WATCH on every key it touches and retries a
// bounded number of times when a concurrent writer invalidates the watch.
func (s *RedisStore) Commit(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}
	keys := watchKeys(b)
	txf := func(tx *redis.Tx) error {
		st := &redisStage{ctx: ctx, tx: tx, store: s, matches: map[string]*domain.Match{}, active: map[string]string{}, players: map[string]bool{}}
		var writes []func(redis.Pipeliner)
		for _, o := range b.ops {
			w, err := st.apply(o)
			if err != nil {
				return err
			}
			writes = append(writes, w)
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range writes {
				w(pipe)
			}
			return nil
		})
		return err
	}
	for i := 0; i < maxCommitRetries; i++ {
		err := s.rdb.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis commit: %w", redis.TxFailedErr)
}

func watchKeys(b *Batch) []string {
	seen := map[string]bool{}
	var keys []string
	add := func(ks ...string) {
		for _, k := range ks {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	for _, o := range b.ops {
		switch o.kind {
		case opAddPlayer:
			add(keyPlayer(o.player.ID))
		case opSetWaitingState, opIncrementGamesPlayed, opMarkDone:
			add(keyPlayer(o.id))
		case opCreateMatch:
			add(keyMatch(o.match.ID))
		case opInsertSlot:
			add(keyMatch(o.slot.MatchID), keySlots(o.slot.MatchID), keyActive(o.slot.PlayerID))
		case opSetStatus, opDeleteMatchAndSlots:
			add(keyMatch(o.id), keySlots(o.id))
		}
	}
	return keys
}

// redisStage tracks the state a batch has produced so far so later ops see
// earlier ones before anything is written.
type redisStage struct {
	ctx     context.Context
	tx      *redis.Tx
	store   *RedisStore
	matches map[string]*domain.Match // nil value = deleted
	active  map[string]string        // playerID -> matchID, "" = cleared
	players map[string]bool
}

func (st *redisStage) playerExists(id string) (bool, error) {
	if ok, seen := st.players[id]; seen {
		return ok, nil
	}
	n, err := st.tx.Exists(st.ctx, keyPlayer(id)).Result()
	if err != nil {
		return false, err
	}
	st.players[id] = n > 0
	return n > 0, nil
}

func (st *redisStage) match(id string) (*domain.Match, error) {
	if m, seen := st.matches[id]; seen {
		return m, nil
	}
	ms, err := st.store.loadMatches(st.ctx, st.tx, []string{id})
	if err != nil {
		return nil, err
	}
	var m *domain.Match
	if len(ms) > 0 {
		m = ms[0]
	}
	st.matches[id] = m
	return m, nil
}

func (st *redisStage) activeOf(playerID string) (string, error) {
	if id, seen := st.active[playerID]; seen {
		return id, nil
	}
	id, err := st.tx.Get(st.ctx, keyActive(playerID)).Result()
	if err == redis.Nil {
		id, err = "", nil
	}
	if err != nil {
		return "", err
	}
	if id != "" {
		m, err := st.match(id)
		if err != nil {
			return "", err
		}
		if m == nil || !m.Status.Active() {
			id = ""
		}
	}
	st.active[playerID] = id
	return id, nil
}

func (st *redisStage) requirePlayer(id string) error {
	ok, err := st.playerExists(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("player %q: %w", id, errBatchConflict)
	}
	return nil
}

func (st *redisStage) apply(o op) (func(redis.Pipeliner), error) {
	ctx := st.ctx
	switch o.kind {
	case opAddPlayer:
		ok, err := st.playerExists(o.player.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, fmt.Errorf("player %q exists: %w", o.player.ID, errBatchConflict)
		}
		st.players[o.player.ID] = true
		p := o.player
		return func(pipe redis.Pipeliner) {
			pipe.HSet(ctx, keyPlayer(p.ID), encodePlayer(&p))
			pipe.SAdd(ctx, keyPlayers(), p.ID)
		}, nil

	case opSetWaitingState:
		if err := st.requirePlayer(o.id); err != nil {
			return nil, err
		}
		id, since, acc := o.id, formatTime(o.since), o.accumulated
		return func(pipe redis.Pipeliner) {
			pipe.HSet(ctx, keyPlayer(id), "waiting_since", since, "accumulated", acc)
		}, nil

	case opIncrementGamesPlayed:
		if err := st.requirePlayer(o.id); err != nil {
			return nil, err
		}
		id := o.id
		return func(pipe redis.Pipeliner) { pipe.HIncrBy(ctx, keyPlayer(id), "games_played", 1) }, nil

	case opMarkDone:
		if err := st.requirePlayer(o.id); err != nil {
			return nil, err
		}
		id := o.id
		return func(pipe redis.Pipeliner) { pipe.HSet(ctx, keyPlayer(id), "done", "1") }, nil

	case opCreateMatch:
		existing, err := st.match(o.match.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("match %q exists: %w", o.match.ID, errBatchConflict)
		}
		m := o.match.Clone()
		st.matches[m.ID] = m
		return func(pipe redis.Pipeliner) {
			pipe.HSet(ctx, keyMatch(m.ID), encodeMatch(m))
			pipe.ZAdd(ctx, keyMatches(), redis.Z{Score: float64(m.CreatedAt.UnixNano()), Member: m.ID})
			pipe.SAdd(ctx, keyActiveMatches(), m.ID)
		}, nil

	case opInsertSlot:
		sl := o.slot
		m, err := st.match(sl.MatchID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, fmt.Errorf("match %q: %w", sl.MatchID, errBatchConflict)
		}
		if m.Status != domain.MatchQueued || len(m.Slots) >= domain.MatchCapacity {
			return nil, fmt.Errorf("match %q not open: %w", m.ID, errBatchConflict)
		}
		if err := slotFits(sl, len(m.Slots)); err != nil {
			return nil, err
		}
		busy, err := st.activeOf(sl.PlayerID)
		if err != nil {
			return nil, err
		}
		if busy != "" {
			return nil, fmt.Errorf("player %q already seated: %w", sl.PlayerID, errBatchConflict)
		}
		m.Slots = append(m.Slots, sl)
		st.active[sl.PlayerID] = m.ID
		raw, err := json.Marshal(redisSlot{PlayerID: sl.PlayerID, Team: sl.Team, Seq: sl.Seq, JoinedAt: sl.JoinedAt})
		if err != nil {
			return nil, err
		}
		return func(pipe redis.Pipeliner) {
			pipe.RPush(ctx, keySlots(sl.MatchID), raw)
			pipe.Set(ctx, keyActive(sl.PlayerID), sl.MatchID, 0)
			pipe.SAdd(ctx, keyPlayerMatches(sl.PlayerID), sl.MatchID)
		}, nil

	case opSetStatus:
		m, err := st.match(o.id)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, fmt.Errorf("match %q: %w", o.id, errBatchConflict)
		}
		m.Status = o.status
		at := o.at
		fields := []any{"status", string(o.status)}
		switch o.status {
		case domain.MatchOngoing:
			m.StartedAt = &at
			fields = append(fields, "started_at", formatTime(&at))
		case domain.MatchFinished:
			m.EndedAt = &at
			fields = append(fields, "ended_at", formatTime(&at))
		}
		var released []string
		if !o.status.Active() {
			for _, sl := range m.Slots {
				released = append(released, keyActive(sl.PlayerID))
				st.active[sl.PlayerID] = ""
			}
		}
		id, closed := m.ID, !o.status.Active()
		return func(pipe redis.Pipeliner) {
			pipe.HSet(ctx, keyMatch(id), fields...)
			if closed {
				pipe.SRem(ctx, keyActiveMatches(), id)
			}
			if len(released) > 0 {
				pipe.Del(ctx, released...)
			}
		}, nil

	case opDeleteMatchAndSlots:
		m, err := st.match(o.id)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, fmt.Errorf("match %q: %w", o.id, errBatchConflict)
		}
		st.matches[m.ID] = nil
		var released []string
		var players []string
		for _, sl := range m.Slots {
			players = append(players, sl.PlayerID)
			if m.Status.Active() {
				released = append(released, keyActive(sl.PlayerID))
				st.active[sl.PlayerID] = ""
			}
		}
		id := m.ID
		return func(pipe redis.Pipeliner) {
			pipe.Del(ctx, keyMatch(id), keySlots(id))
			pipe.ZRem(ctx, keyMatches(), id)
			pipe.SRem(ctx, keyActiveMatches(), id)
			if len(released) > 0 {
				pipe.Del(ctx, released...)
			}
			for _, pid := range players {
				pipe.SRem(ctx, keyPlayerMatches(pid), id)
			}
		}, nil
	}
	return nil, fmt.Errorf("unknown op %d: %w", o.kind, errBatchConflict)
}

func encodePlayer(p *domain.Player) map[string]any {
	done := "0"
	if p.DonePlaying {
		done = "1"
	}
	return map[string]any{
		"id":            p.ID,
		"name":          p.Name,
		"level":         string(p.Level),
		"games_played":  p.GamesPlayed,
		"done":          done,
		"waiting_since": formatTime(p.WaitingSince),
		"accumulated":   p.AccumulatedWaitingSeconds,
		"created_at":    p.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodePlayer(h map[string]string) (*domain.Player, error) {
	p := &domain.Player{ID: h["id"], Name: h["name"], Level: domain.Level(h["level"]), DonePlaying: h["done"] == "1"}
	var err error
	if p.GamesPlayed, err = atoiOrZero(h["games_played"]); err != nil {
		return nil, fmt.Errorf("player %s games_played: %w", p.ID, err)
	}
	if v := h["accumulated"]; v != "" {
		if p.AccumulatedWaitingSeconds, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("player %s accumulated: %w", p.ID, err)
		}
	}
	if p.WaitingSince, err = parseTime(h["waiting_since"]); err != nil {
		return nil, fmt.Errorf("player %s waiting_since: %w", p.ID, err)
	}
	created, err := parseTime(h["created_at"])
	if err != nil {
		return nil, fmt.Errorf("player %s created_at: %w", p.ID, err)
	}
	if created != nil {
		p.CreatedAt = *created
	}
	return p, nil
}

func encodeMatch(m *domain.Match) map[string]any {
	return map[string]any{
		"id":         m.ID,
		"status":     string(m.Status),
		"created_at": m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"started_at": formatTime(m.StartedAt),
		"ended_at":   formatTime(m.EndedAt),
	}
}

func decodeMatch(h map[string]string, rawSlots []string) (*domain.Match, error) {
	m := &domain.Match{ID: h["id"], Status: domain.MatchStatus(h["status"])}
	created, err := parseTime(h["created_at"])
	if err != nil {
		return nil, fmt.Errorf("match %s created_at: %w", m.ID, err)
	}
	if created != nil {
		m.CreatedAt = *created
	}
	if m.StartedAt, err = parseTime(h["started_at"]); err != nil {
		return nil, fmt.Errorf("match %s started_at: %w", m.ID, err)
	}
	if m.EndedAt, err = parseTime(h["ended_at"]); err != nil {
		return nil, fmt.Errorf("match %s ended_at: %w", m.ID, err)
	}
	m.Slots = make([]domain.Slot, 0, len(rawSlots))
	for _, raw := range rawSlots {
		var rs redisSlot
		if err := json.Unmarshal([]byte(raw), &rs); err != nil {
			return nil, fmt.Errorf("match %s slot: %w", m.ID, err)
		}
		m.Slots = append(m.Slots, domain.Slot{MatchID: m.ID, PlayerID: rs.PlayerID, Team: rs.Team, Seq: rs.Seq, JoinedAt: rs.JoinedAt})
	}
	return m, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("redis db %q: %w", p, err)
		}
		db = n
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: u.Hostname()}
	}
	return opts, nil
}
