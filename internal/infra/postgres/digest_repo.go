package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nimbusgate/core/internal/domain"
	"github.com/nimbusgate/core/internal/notification"
)

// DigestRepo implements notification.DigestStore for PostgreSQL. Pending
// entries live in digest_pending rows keyed by recipient, so accumulation
// survives restarts and process memory stays bounded.
type DigestRepo struct {
	q domain.Querier
}

// NewDigestRepo creates a new DigestRepo bound to q.
func NewDigestRepo(q domain.Querier) *DigestRepo {
	return &DigestRepo{q: q}
}

// Append adds an entry to the recipient's open window. The first entry for
// a recipient stamps the window start and cadence.
func (r *DigestRepo) Append(ctx context.Context, cadence string, entry notification.DigestEntry) error {
	const op = "digestRepo.Append"

	notifID, err := uuid.Parse(entry.NotificationID)
	if err != nil {
		return fmt.Errorf("%s: parse notification ID: %w", op, err)
	}

	const query = `
		INSERT INTO digest_pending (id, recipient_id, notification_id, notification_type, title, cadence, window_started_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6,
			COALESCE((SELECT window_started_at FROM digest_pending WHERE recipient_id = $2 LIMIT 1), $7),
			$8)`

	now := time.Now().UTC()
	if _, err := r.q.Exec(ctx, query, uuid.New(), entry.RecipientID, notifID, string(entry.Type), entry.Title, cadence, now, entry.CreatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Due returns every recipient whose window has elapsed at now, with their
// accumulated entries in insertion order.
func (r *DigestRepo) Due(ctx context.Context, now time.Time) ([]notification.PendingDigest, error) {
	const op = "digestRepo.Due"

	const query = `
		SELECT recipient_id, notification_id, notification_type, title, cadence, window_started_at, created_at
		FROM digest_pending
		WHERE window_started_at + (CASE cadence
			WHEN 'hourly' THEN interval '1 hour'
			WHEN 'weekly' THEN interval '7 days'
			ELSE interval '1 day'
		END) <= $1
		ORDER BY recipient_id, created_at`

	rowsAny, err := r.q.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	rows, ok := rowsAny.(pgx.Rows)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported rows type %T", op, rowsAny)
	}
	defer rows.Close()

	byRecipient := map[string]*notification.PendingDigest{}
	var order []string
	for rows.Next() {
		var (
			recipientID string
			notifID     uuid.UUID
			typeName    string
			title       string
			cadence     string
			windowStart time.Time
			createdAt   time.Time
		)
		if err := rows.Scan(&recipientID, &notifID, &typeName, &title, &cadence, &windowStart, &createdAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		pending, ok := byRecipient[recipientID]
		if !ok {
			pending = &notification.PendingDigest{
				RecipientID:     recipientID,
				Cadence:         cadence,
				WindowStartedAt: windowStart,
			}
			byRecipient[recipientID] = pending
			order = append(order, recipientID)
		}
		pending.Entries = append(pending.Entries, notification.DigestEntry{
			RecipientID:    recipientID,
			NotificationID: notifID.String(),
			Type:           notification.Type(typeName),
			Title:          title,
			CreatedAt:      createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	out := make([]notification.PendingDigest, 0, len(order))
	for _, recipientID := range order {
		out = append(out, *byRecipient[recipientID])
	}
	return out, nil
}

// Clear removes the recipient's flushed entries.
func (r *DigestRepo) Clear(ctx context.Context, recipientID string) error {
	const op = "digestRepo.Clear"

	if _, err := r.q.Exec(ctx, `DELETE FROM digest_pending WHERE recipient_id = $1`, recipientID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
