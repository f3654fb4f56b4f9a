package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/park285/court-queue/internal/domain"
)

// PostgresStore persists players, matches and slots in Postgres. Commit runs
// the whole batch in one transaction.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres opens and pings a pooled connection to DATABASE_URL.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return db, nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) DB() *sql.DB { return s.db }

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS players (
    id                          text PRIMARY KEY,
    name                        text NOT NULL,
    level                       text NOT NULL,
    games_played                integer NOT NULL DEFAULT 0,
    done_playing                boolean NOT NULL DEFAULT false,
    waiting_since               timestamptz NULL,
    accumulated_waiting_seconds bigint NOT NULL DEFAULT 0,
    created_at                  timestamptz NOT NULL
);
CREATE TABLE IF NOT EXISTS matches (
    id         text PRIMARY KEY,
    status     text NOT NULL,
    created_at timestamptz NOT NULL,
    started_at timestamptz NULL,
    ended_at   timestamptz NULL
);
CREATE INDEX IF NOT EXISTS matches_status_created_idx ON matches (status, created_at);
CREATE TABLE IF NOT EXISTS match_players (
    id        bigserial PRIMARY KEY,
    match_id  text NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
    player_id text NOT NULL REFERENCES players(id),
    team      smallint NOT NULL CHECK (team IN (1, 2)),
    seq       smallint NOT NULL,
    joined_at timestamptz NOT NULL,
    UNIQUE (match_id, seq),
    UNIQUE (match_id, player_id)
);
CREATE INDEX IF NOT EXISTS match_players_player_idx ON match_players (player_id);
`

// EnsureSchema creates the queue tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure queue schema: %w", err)
	}
	return nil
}

const playerColumns = `id, name, level, games_played, done_playing, waiting_since, accumulated_waiting_seconds, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlayer(r rowScanner) (*domain.Player, error) {
	var (
		p     domain.Player
		level string
		since sql.NullTime
	)
	if err := r.Scan(&p.ID, &p.Name, &level, &p.GamesPlayed, &p.DonePlaying, &since, &p.AccumulatedWaitingSeconds, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Level = domain.Level(level)
	if since.Valid {
		t := since.Time
		p.WaitingSince = &t
	}
	return &p, nil
}

func (s *PostgresStore) GetPlayer(ctx context.Context, id string) (*domain.Player, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id)
	p, err := scanPlayer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select player: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPlayers(ctx context.Context) ([]*domain.Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+playerColumns+` FROM players ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select players: %w", err)
	}
	defer rows.Close()
	out := []*domain.Player{}
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const matchColumns = `id, status, created_at, started_at, ended_at`

func (s *PostgresStore) queryMatches(ctx context.Context, q string, args ...any) ([]*domain.Match, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select matches: %w", err)
	}
	defer rows.Close()
	out := []*domain.Match{}
	for rows.Next() {
		var (
			m       domain.Match
			status  string
			started sql.NullTime
			ended   sql.NullTime
		)
		if err := rows.Scan(&m.ID, &status, &m.CreatedAt, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.Status = domain.MatchStatus(status)
		if started.Valid {
			t := started.Time
			m.StartedAt = &t
		}
		if ended.Valid {
			t := ended.Time
			m.EndedAt = &t
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachSlots(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) attachSlots(ctx context.Context, ms []*domain.Match) error {
	if len(ms) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Match, len(ms))
	ids := make([]string, 0, len(ms))
	for _, m := range ms {
		m.Slots = []domain.Slot{}
		byID[m.ID] = m
		ids = append(ids, m.ID)
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT match_id, player_id, team, seq, joined_at
          FROM match_players
         WHERE match_id = ANY($1)
         ORDER BY match_id, seq`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("select slots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sl domain.Slot
		if err := rows.Scan(&sl.MatchID, &sl.PlayerID, &sl.Team, &sl.Seq, &sl.JoinedAt); err != nil {
			return fmt.Errorf("scan slot: %w", err)
		}
		if m := byID[sl.MatchID]; m != nil {
			m.Slots = append(m.Slots, sl)
		}
	}
	return rows.Err()
}

func (s *PostgresStore) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	ms, err := s.queryMatches(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
	if err != nil || len(ms) == 0 {
		return nil, err
	}
	return ms[0], nil
}

func (s *PostgresStore) OpenMatchesWithSlotCount(ctx context.Context) ([]OpenMatch, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT m.id, m.created_at, COUNT(mp.id)
          FROM matches m
          LEFT JOIN match_players mp ON mp.match_id = m.id
         WHERE m.status = 'queued'
         GROUP BY m.id, m.created_at
         ORDER BY m.created_at, m.id`)
	if err != nil {
		return nil, fmt.Errorf("select open matches: %w", err)
	}
	defer rows.Close()
	var out []OpenMatch
	for rows.Next() {
		var om OpenMatch
		if err := rows.Scan(&om.ID, &om.CreatedAt, &om.Count); err != nil {
			return nil, fmt.Errorf("scan open match: %w", err)
		}
		out = append(out, om)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ActiveMatches(ctx context.Context) ([]*domain.Match, error) {
	return s.queryMatches(ctx, `SELECT `+matchColumns+` FROM matches WHERE status IN ('queued', 'ongoing') ORDER BY created_at, id`)
}

func (s *PostgresStore) ActiveSlotOf(ctx context.Context, playerID string) (*domain.Slot, error) {
	var sl domain.Slot
	err := s.db.QueryRowContext(ctx, `
        SELECT mp.match_id, mp.player_id, mp.team, mp.seq, mp.joined_at
          FROM match_players mp
          JOIN matches m ON m.id = mp.match_id
         WHERE mp.player_id = $1 AND m.status IN ('queued', 'ongoing')
         LIMIT 1`, playerID).Scan(&sl.MatchID, &sl.PlayerID, &sl.Team, &sl.Seq, &sl.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select active slot: %w", err)
	}
	return &sl, nil
}

func (s *PostgresStore) MatchesOf(ctx context.Context, playerID string) ([]*domain.Match, error) {
	return s.queryMatches(ctx, `
        SELECT `+matchColumns+`
          FROM matches
         WHERE id IN (SELECT match_id FROM match_players WHERE player_id = $1)
         ORDER BY created_at DESC, id DESC`, playerID)
}

func (s *PostgresStore) ListMatches(ctx context.Context) ([]*domain.Match, error) {
	return s.queryMatches(ctx, `SELECT `+matchColumns+` FROM matches ORDER BY created_at DESC, id DESC`)
}

// Commit runs the batch in a single transaction; any failed op rolls back
// everything before it.
func (s *PostgresStore) Commit(ctx context.Context, b *Batch) (err error) {
	if b == nil || b.Len() == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, o := range b.ops {
		if err = applyTx(ctx, tx, o); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func applyTx(ctx context.Context, tx *sql.Tx, o op) error {
	switch o.kind {
	case opAddPlayer:
		p := o.player
		_, err := tx.ExecContext(ctx, `INSERT INTO players (`+playerColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			p.ID, p.Name, string(p.Level), p.GamesPlayed, p.DonePlaying, nullTime(p.WaitingSince), p.AccumulatedWaitingSeconds, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
		return nil
	case opSetWaitingState:
		return execOne(ctx, tx, "player "+o.id,
			`UPDATE players SET waiting_since = $2, accumulated_waiting_seconds = $3 WHERE id = $1`,
			o.id, nullTime(o.since), o.accumulated)
	case opIncrementGamesPlayed:
		return execOne(ctx, tx, "player "+o.id, `UPDATE players SET games_played = games_played + 1 WHERE id = $1`, o.id)
	case opMarkDone:
		return execOne(ctx, tx, "player "+o.id, `UPDATE players SET done_playing = true WHERE id = $1`, o.id)
	case opCreateMatch:
		m := o.match
		_, err := tx.ExecContext(ctx, `INSERT INTO matches (`+matchColumns+`) VALUES ($1,$2,$3,$4,$5)`,
			m.ID, string(m.Status), m.CreatedAt, nullTime(m.StartedAt), nullTime(m.EndedAt))
		if err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
		return nil
	case opInsertSlot:
		return insertSlotTx(ctx, tx, o.slot)
	case opSetStatus:
		q := `UPDATE matches SET status = $2 WHERE id = $1`
		args := []any{o.id, string(o.status)}
		switch o.status {
		case domain.MatchOngoing:
			q = `UPDATE matches SET status = $2, started_at = $3 WHERE id = $1`
			args = append(args, o.at)
		case domain.MatchFinished:
			q = `UPDATE matches SET status = $2, ended_at = $3 WHERE id = $1`
			args = append(args, o.at)
		}
		return execOne(ctx, tx, "match "+o.id, q, args...)
	case opDeleteMatchAndSlots:
		if _, err := tx.ExecContext(ctx, `DELETE FROM match_players WHERE match_id = $1`, o.id); err != nil {
			return fmt.Errorf("delete slots: %w", err)
		}
		return execOne(ctx, tx, "match "+o.id, `DELETE FROM matches WHERE id = $1`, o.id)
	}
	return fmt.Errorf("unknown op %d: %w", o.kind, errBatchConflict)
}

func insertSlotTx(ctx context.Context, tx *sql.Tx, sl domain.Slot) error {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM matches WHERE id = $1 FOR UPDATE`, sl.MatchID).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("match %q: %w", sl.MatchID, errBatchConflict)
	}
	if err != nil {
		return fmt.Errorf("lock match: %w", err)
	}
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM match_players WHERE match_id = $1`, sl.MatchID).Scan(&count); err != nil {
		return fmt.Errorf("count slots: %w", err)
	}
	if domain.MatchStatus(status) != domain.MatchQueued || count >= domain.MatchCapacity {
		return fmt.Errorf("match %q not open: %w", sl.MatchID, errBatchConflict)
	}
	if err := slotFits(sl, count); err != nil {
		return err
	}
	var busy bool
	if err := tx.QueryRowContext(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM match_players mp JOIN matches m ON m.id = mp.match_id
             WHERE mp.player_id = $1 AND m.status IN ('queued', 'ongoing'))`, sl.PlayerID).Scan(&busy); err != nil {
		return fmt.Errorf("check active slot: %w", err)
	}
	if busy {
		return fmt.Errorf("player %q already seated: %w", sl.PlayerID, errBatchConflict)
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO match_players (match_id, player_id, team, seq, joined_at)
        VALUES ($1, $2, $3, $4, $5)`, sl.MatchID, sl.PlayerID, sl.Team, sl.Seq, sl.JoinedAt); err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func execOne(ctx context.Context, tx *sql.Tx, what, q string, args ...any) error {
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("%s: %w", what, errBatchConflict)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
