package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/park285/court-queue/internal/domain"
)

// Repository persists payments. List returns newest first.
type Repository interface {
	Insert(ctx context.Context, p domain.Payment) error
	List(ctx context.Context) ([]domain.Payment, error)
}

type memrepo struct {
	mu       sync.RWMutex
	payments []domain.Payment
}

// NewMemoryRepository is used when no database is configured.
func NewMemoryRepository() Repository { return &memrepo{} }

func (m *memrepo) Insert(ctx context.Context, p domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, p)
	return nil
}

func (m *memrepo) List(ctx context.Context) ([]domain.Payment, error) {
	m.mu.RLock()
	out := append([]domain.Payment(nil), m.payments...)
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

type sqlRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) Repository { return &sqlRepository{db: db} }

const paymentsSchema = `
CREATE TABLE IF NOT EXISTS payments (
    id           text PRIMARY KEY,
    player_id    text NOT NULL REFERENCES players(id),
    player_name  text NOT NULL,
    method       text NOT NULL CHECK (method IN ('cash', 'gcash')),
    amount_cents bigint NOT NULL CHECK (amount_cents >= 0),
    paid_at      timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS payments_paid_at_idx ON payments (paid_at DESC);
`

// EnsureSchema creates the payments table. The players table must exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, paymentsSchema); err != nil {
		return fmt.Errorf("ensure payments schema: %w", err)
	}
	return nil
}

func (r *sqlRepository) Insert(ctx context.Context, p domain.Payment) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO payments (id, player_id, player_name, method, amount_cents, paid_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.PlayerID, p.PlayerName, string(p.Method), p.AmountCents, p.Timestamp)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *sqlRepository) List(ctx context.Context) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT id, player_id, player_name, method, amount_cents, paid_at
          FROM payments
         ORDER BY paid_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()
	var out []domain.Payment
	for rows.Next() {
		var (
			p      domain.Payment
			method string
		)
		if err := rows.Scan(&p.ID, &p.PlayerID, &p.PlayerName, &method, &p.AmountCents, &p.Timestamp); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		p.Method = domain.PaymentMethod(method)
		out = append(out, p)
	}
	return out, rows.Err()
}
