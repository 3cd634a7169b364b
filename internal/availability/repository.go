package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Repository persists availability days keyed by (counselor, date).
type Repository interface {
	Upsert(ctx context.Context, day Day) (*Day, error)
	Get(ctx context.Context, counselorID, date string) (*Day, error)
	ListRange(ctx context.Context, counselorID, from, to string) ([]Day, error)
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresRepository struct {
	db DB
}

// NewPostgresRepository returns a Repository backed by the availability table.
func NewPostgresRepository(db DB) Repository {
	if db == nil {
		panic("availability: db required")
	}
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Upsert(ctx context.Context, day Day) (*Day, error) {
	date, err := ParseDate(day.Date)
	if err != nil {
		return nil, err
	}
	query := `
		INSERT INTO availability (counselor_id, day, slots, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (counselor_id, day)
		DO UPDATE SET slots = EXCLUDED.slots, updated_at = now()
		RETURNING updated_at
	`
	if err := r.db.QueryRow(ctx, query, day.CounselorID, date, day.AvailableSlots).Scan(&day.UpdatedAt); err != nil {
		return nil, fmt.Errorf("availability: upsert: %w", err)
	}
	return &day, nil
}

func (r *postgresRepository) Get(ctx context.Context, counselorID, date string) (*Day, error) {
	d, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT counselor_id, day, slots, updated_at
		FROM availability
		WHERE counselor_id = $1 AND day = $2
	`
	day, err := scanDay(r.db.QueryRow(ctx, query, counselorID, d))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("availability: get: %w", err)
	}
	return day, nil
}

func (r *postgresRepository) ListRange(ctx context.Context, counselorID, from, to string) ([]Day, error) {
	start, err := ParseDate(from)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(to)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT counselor_id, day, slots, updated_at
		FROM availability
		WHERE counselor_id = $1 AND day BETWEEN $2 AND $3
		ORDER BY day ASC`, counselorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("availability: list range: %w", err)
	}
	defer rows.Close()

	var days []Day
	for rows.Next() {
		day, err := scanDay(rows)
		if err != nil {
			return nil, fmt.Errorf("availability: scan: %w", err)
		}
		days = append(days, *day)
	}
	return days, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDay(row scanner) (*Day, error) {
	var (
		day  Day
		date time.Time
	)
	if err := row.Scan(&day.CounselorID, &date, &day.AvailableSlots, &day.UpdatedAt); err != nil {
		return nil, err
	}
	day.Date = date.Format(DateLayout)
	if day.AvailableSlots == nil {
		day.AvailableSlots = []string{}
	}
	return &day, nil
}

// InMemoryRepository is a map-backed Repository for tests and local runs.
type InMemoryRepository struct {
	mu   sync.RWMutex
	days map[string]map[string]Day // counselor -> date -> day
	now  func() time.Time
}

// NewInMemoryRepository returns an empty InMemoryRepository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		days: make(map[string]map[string]Day),
		now:  time.Now,
	}
}

func (r *InMemoryRepository) Upsert(ctx context.Context, day Day) (*Day, error) {
	if _, err := ParseDate(day.Date); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byDate, ok := r.days[day.CounselorID]
	if !ok {
		byDate = make(map[string]Day)
		r.days[day.CounselorID] = byDate
	}
	day.AvailableSlots = append([]string(nil), day.AvailableSlots...)
	day.UpdatedAt = r.now().UTC()
	byDate[day.Date] = day
	out := day
	out.AvailableSlots = append([]string(nil), day.AvailableSlots...)
	return &out, nil
}

func (r *InMemoryRepository) Get(ctx context.Context, counselorID, date string) (*Day, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	day, ok := r.days[counselorID][date]
	if !ok {
		return nil, ErrNotFound
	}
	day.AvailableSlots = append([]string(nil), day.AvailableSlots...)
	return &day, nil
}

func (r *InMemoryRepository) ListRange(ctx context.Context, counselorID, from, to string) ([]Day, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Day
	for date, day := range r.days[counselorID] {
		// dates share one layout, so lexical order is calendar order
		if date < from || date > to {
			continue
		}
		day.AvailableSlots = append([]string(nil), day.AvailableSlots...)
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
