package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a session has no recorded payment intent.
var ErrNotFound = errors.New("payments: not found")

// Payment record statuses.
const (
	StatusRequiresPayment = "requires_payment"
	StatusSucceeded       = "succeeded"
	StatusFailed          = "failed"
)

// Record is the local copy of a payment intent issued for a session.
type Record struct {
	ID                   uuid.UUID
	SessionID            uuid.UUID
	IntentID             string
	AmountCents          int64
	PlatformFeeCents     int64
	CounselorAmountCents int64
	Currency             string
	Destination          string
	Status               string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Repository persists payment records.
type Repository interface {
	// Insert is idempotent on IntentID; rec is refreshed from the stored row.
	Insert(ctx context.Context, rec *Record) error
	LatestForSession(ctx context.Context, sessionID uuid.UUID) (*Record, error)
	UpdateStatusByIntent(ctx context.Context, intentID, status string) (bool, error)
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) Repository {
	if db == nil {
		panic("payments: db required")
	}
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Insert(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = StatusRequiresPayment
	}
	var destination *string
	if rec.Destination != "" {
		destination = &rec.Destination
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO payments (id, session_id, intent_id, amount_cents, platform_fee_cents, counselor_amount_cents, currency, destination_account, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (intent_id) DO UPDATE SET updated_at = payments.updated_at
		RETURNING id, status, created_at, updated_at`,
		rec.ID, rec.SessionID, rec.IntentID, rec.AmountCents, rec.PlatformFeeCents, rec.CounselorAmountCents,
		rec.Currency, destination, rec.Status,
	).Scan(&rec.ID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("payments: insert record: %w", err)
	}
	return nil
}

func (r *postgresRepository) LatestForSession(ctx context.Context, sessionID uuid.UUID) (*Record, error) {
	var (
		rec         Record
		destination *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, session_id, intent_id, amount_cents, platform_fee_cents, counselor_amount_cents,
			currency, destination_account, status, created_at, updated_at
		FROM payments
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, sessionID).Scan(
		&rec.ID, &rec.SessionID, &rec.IntentID, &rec.AmountCents, &rec.PlatformFeeCents, &rec.CounselorAmountCents,
		&rec.Currency, &destination, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("payments: latest for session: %w", err)
	}
	if destination != nil {
		rec.Destination = *destination
	}
	return &rec, nil
}

// UpdateStatusByIntent is idempotent; a terminal succeeded record is never
// downgraded by a late failure event.
func (r *postgresRepository) UpdateStatusByIntent(ctx context.Context, intentID, status string) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status = $2, updated_at = now()
		WHERE intent_id = $1 AND status <> 'succeeded'`, intentID, status)
	if err != nil {
		return false, fmt.Errorf("payments: update status: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// InMemoryRepository keeps payment records in a slice.
type InMemoryRepository struct {
	mu      sync.Mutex
	records []Record
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Insert(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = StatusRequiresPayment
	}
	for _, existing := range r.records {
		if existing.IntentID == rec.IntentID {
			*rec = existing
			return nil
		}
	}
	now := time.Now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	r.records = append(r.records, *rec)
	return nil
}

func (r *InMemoryRepository) LatestForSession(ctx context.Context, sessionID uuid.UUID) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].SessionID == sessionID {
			rec := r.records[i]
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryRepository) UpdateStatusByIntent(ctx context.Context, intentID, status string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	updated := false
	for i := range r.records {
		if r.records[i].IntentID == intentID && r.records[i].Status != StatusSucceeded {
			r.records[i].Status = status
			r.records[i].UpdatedAt = time.Now().UTC()
			updated = true
		}
	}
	return updated, nil
}

// Records returns a copy of everything stored.
func (r *InMemoryRepository) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}
