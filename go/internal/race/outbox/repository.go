package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/dailies/go/internal/sqlutil"
)

// ErrEventNotFound is returned when an outbox row does not exist.
var ErrEventNotFound = errors.New("outbox event not found")

// Repository reads and marks race_outbox rows through database/sql.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new outbox repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const outboxColumns = `id, race_id, event_type, version, payload, metadata, created_at, sent_at`

// FetchByID returns a single outbox event.
func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM race_outbox WHERE id = $1`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", id, ErrEventNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox event %s: %w", id, err)
	}
	return ev, nil
}

// FetchUnsent returns the oldest unsent events. Races are delivered in
// version order because the oldest rows come first.
func (r *Repository) FetchUnsent(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+outboxColumns+`
		FROM race_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at, version
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// MarkSent stamps sent_at on an event. Marking an already sent event is a no-op.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE race_outbox SET sent_at = now() WHERE id = $1 AND sent_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event %s as sent: %w", id, err)
	}
	return nil
}

// CountUnsent returns the relay backlog.
func (r *Repository) CountUnsent(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM race_outbox WHERE sent_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count unsent outbox events: %w", err)
	}
	return n, nil
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*OutboxEvent, error) {
	var (
		ev     OutboxEvent
		sentAt sql.NullTime
	)
	if err := s.Scan(&ev.ID, &ev.RaceID, &ev.EventType, &ev.Version, &ev.Payload, &ev.Metadata, &ev.CreatedAt, &sentAt); err != nil {
		return nil, err
	}
	ev.SentAt = sqlutil.FromSqlTime(sentAt)
	return &ev, nil
}
