package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nimbusgate/core/internal/domain"
	domainerrors "github.com/nimbusgate/core/internal/domain/errors"
	"github.com/nimbusgate/core/internal/notification"
)

// NotificationRepo implements notification.Repository for PostgreSQL.
type NotificationRepo struct {
	q domain.Querier
}

// NewNotificationRepo creates a new NotificationRepo bound to q.
func NewNotificationRepo(q domain.Querier) *NotificationRepo {
	return &NotificationRepo{q: q}
}

const notificationColumns = `id, owner_id, notification_type, title, content, action_url, priority, read, read_at, archived, data, created_at, updated_at`

// Insert stores a new notification.
func (r *NotificationRepo) Insert(ctx context.Context, n *notification.Notification) error {
	const op = "notificationRepo.Insert"

	id, err := uuid.Parse(n.ID)
	if err != nil {
		return fmt.Errorf("%s: parse ID: %w", op, err)
	}

	const query = `
		INSERT INTO notifications (` + notificationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	if _, err := r.q.Exec(ctx, query, id, n.OwnerID, string(n.Type), n.Title, n.Content, nullIfEmpty(n.ActionURL), n.Priority, n.Read, n.ReadAt, n.Archived, n.Data, n.CreatedAt, n.UpdatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FindByID loads one notification; a missing row maps to NOT_FOUND.
func (r *NotificationRepo) FindByID(ctx context.Context, id string) (notification.Notification, error) {
	const op = "notificationRepo.FindByID"

	parsed, err := uuid.Parse(id)
	if err != nil {
		return notification.Notification{}, fmt.Errorf("%s: parse ID: %w", op, err)
	}

	row := r.q.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, parsed)
	n, err := scanNotification(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notification.Notification{}, domainerrors.NewDomain(domainerrors.CodeNotFound, "notification not found")
		}
		return notification.Notification{}, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// ListByOwner returns a page of the owner's notifications, newest first,
// with the total count for pagination metadata.
func (r *NotificationRepo) ListByOwner(ctx context.Context, ownerID string, params domain.ListParams) ([]notification.Notification, int, error) {
	const op = "notificationRepo.ListByOwner"

	var total int
	countRow := r.q.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE owner_id = $1`, ownerID)
	scanner, ok := countRow.(interface{ Scan(...any) error })
	if !ok {
		return nil, 0, fmt.Errorf("%s: unsupported row type %T", op, countRow)
	}
	if err := scanner.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}
	if total == 0 {
		return []notification.Notification{}, 0, nil
	}

	const query = `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.queryNotifications(ctx, op, query, ownerID, params.Limit(), params.Offset())
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListUnread returns the owner's unread, unarchived notifications.
func (r *NotificationRepo) ListUnread(ctx context.Context, ownerID string) ([]notification.Notification, error) {
	const op = "notificationRepo.ListUnread"

	const query = `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE owner_id = $1 AND read = false AND archived = false
		ORDER BY created_at DESC`

	return r.queryNotifications(ctx, op, query, ownerID)
}

// CountUnread returns the owner's unread count.
func (r *NotificationRepo) CountUnread(ctx context.Context, ownerID string) (int, error) {
	const op = "notificationRepo.CountUnread"

	row := r.q.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE owner_id = $1 AND read = false AND archived = false`, ownerID)
	scanner, ok := row.(interface{ Scan(...any) error })
	if !ok {
		return 0, fmt.Errorf("%s: unsupported row type %T", op, row)
	}
	var count int
	if err := scanner.Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}

// Update persists the mutable flags of an existing notification.
func (r *NotificationRepo) Update(ctx context.Context, n *notification.Notification) error {
	const op = "notificationRepo.Update"

	id, err := uuid.Parse(n.ID)
	if err != nil {
		return fmt.Errorf("%s: parse ID: %w", op, err)
	}

	const query = `
		UPDATE notifications
		SET read = $2, read_at = $3, archived = $4, updated_at = $5
		WHERE id = $1`

	if _, err := r.q.Exec(ctx, query, id, n.Read, n.ReadAt, n.Archived, n.UpdatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete removes a notification by id.
func (r *NotificationRepo) Delete(ctx context.Context, id string) error {
	const op = "notificationRepo.Delete"

	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%s: parse ID: %w", op, err)
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, parsed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteArchivedBefore removes archived notifications older than the
// cutoff, returning the number deleted. Used by the periodic cleanup task.
func (r *NotificationRepo) DeleteArchivedBefore(ctx context.Context, before time.Time) (int64, error) {
	const op = "notificationRepo.DeleteArchivedBefore"

	res, err := r.q.Exec(ctx, `DELETE FROM notifications WHERE archived = true AND updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if tag, ok := res.(pgconn.CommandTag); ok {
		return tag.RowsAffected(), nil
	}
	return 0, nil
}

func (r *NotificationRepo) queryNotifications(ctx context.Context, op, query string, args ...any) ([]notification.Notification, error) {
	rowsAny, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	rows, ok := rowsAny.(pgx.Rows)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported rows type %T", op, rowsAny)
	}
	defer rows.Close()

	var out []notification.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return out, nil
}

func scanNotification(row any) (notification.Notification, error) {
	scanner, ok := row.(interface{ Scan(...any) error })
	if !ok {
		return notification.Notification{}, fmt.Errorf("unsupported row type %T", row)
	}

	var (
		n         notification.Notification
		rowID     uuid.UUID
		typeName  string
		actionURL *string
	)
	if err := scanner.Scan(&rowID, &n.OwnerID, &typeName, &n.Title, &n.Content, &actionURL, &n.Priority, &n.Read, &n.ReadAt, &n.Archived, &n.Data, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return notification.Notification{}, err
	}
	n.ID = rowID.String()
	n.Type = notification.Type(typeName)
	if actionURL != nil {
		n.ActionURL = *actionURL
	}
	return n, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
