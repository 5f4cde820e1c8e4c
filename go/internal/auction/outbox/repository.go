package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/pennyauction/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

const outboxColumns = `id, auction_id, event_type, payload, headers, created_at, sent_at`

// SQLRepository reads and acks outbox rows through database/sql and lib/pq
type SQLRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLRepository)(nil)

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*OutboxEvent, error) {
	var (
		ev      OutboxEvent
		payload []byte
		headers pqtype.NullRawMessage
		sentAt  sql.NullTime
	)
	if err := row.Scan(&ev.ID, &ev.AuctionID, &ev.EventType, &payload, &headers, &ev.CreatedAt, &sentAt); err != nil {
		return nil, err
	}
	ev.Payload = json.RawMessage(payload)
	ev.SentAt = sqlutil.FromSqlTime(sentAt)
	if headers.Valid {
		if err := json.Unmarshal(headers.RawMessage, &ev.Headers); err != nil {
			return nil, fmt.Errorf("failed to decode headers of event %s: %w", ev.ID, err)
		}
	}
	return &ev, nil
}

// FetchUnsent returns the oldest unsent events
func (r *SQLRepository) FetchUnsent(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+outboxColumns+`
		FROM auction_outbox
		WHERE sent_at IS NULL
		ORDER BY created_at
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return out, nil
}

// FetchByID returns an unsent event
func (r *SQLRepository) FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+outboxColumns+`
		FROM auction_outbox
		WHERE id = $1 AND sent_at IS NULL`, id)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	return ev, nil
}

func (r *SQLRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE auction_outbox SET sent_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *SQLRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auction_outbox WHERE sent_at IS NULL`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", err)
	}
	return count, nil
}
