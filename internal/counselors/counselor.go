package counselors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
)

// ErrNotFound is returned for unknown counselor ids.
var ErrNotFound = errors.New("counselors: not found")

// Counselor is the subset of a counselor profile the booking flow reads.
type Counselor struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName"`
	FeeCents        int64  `json:"feeCents"`
	StripeAccountID string `json:"stripeAccountId,omitempty"`
	Timezone        string `json:"timezone"`
}

// Location resolves the counselor's operating timezone, falling back to
// fallback (and then UTC) when it is unset or unknown.
func (c *Counselor) Location(fallback string) *time.Location {
	for _, name := range []string{c.Timezone, fallback} {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

// Repository reads counselor profiles.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Counselor, error)
}

// RowQuerier is the pgx surface the Postgres repository needs.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresRepository struct {
	db RowQuerier
}

func NewPostgresRepository(db RowQuerier) Repository {
	if db == nil {
		panic("counselors: db required")
	}
	return &postgresRepository{db: db}
}

func (r *postgresRepository) GetByID(ctx context.Context, id string) (*Counselor, error) {
	var (
		c       Counselor
		account *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, display_name, fee_cents, stripe_account_id, timezone
		FROM counselors
		WHERE id = $1`, id).Scan(&c.ID, &c.DisplayName, &c.FeeCents, &account, &c.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("counselors: get: %w", err)
	}
	if account != nil {
		c.StripeAccountID = *account
	}
	return &c, nil
}

// InMemoryRepository holds counselors in a map.
type InMemoryRepository struct {
	mu    sync.RWMutex
	items map[string]Counselor
}

func NewInMemoryRepository(seed ...Counselor) *InMemoryRepository {
	r := &InMemoryRepository{items: make(map[string]Counselor)}
	for _, c := range seed {
		r.items[c.ID] = c
	}
	return r
}

// Put inserts or replaces a counselor.
func (r *InMemoryRepository) Put(c Counselor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[c.ID] = c
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Counselor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[id]
	if !ok {
		return nil, notFound(id)
	}
	return &c, nil
}

func notFound(id string) error {
	return &apperr.Error{Kind: apperr.KindNotFound, Message: fmt.Sprintf("counselor %s not found", id), Err: ErrNotFound}
}
