package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nimbusgate/core/internal/domain"
)

// RecipientDirectory answers recipient existence for the notification
// intake against the users table. Recipient ids that are not UUIDs are
// unknown by definition.
type RecipientDirectory struct {
	q domain.Querier
}

// NewRecipientDirectory creates a RecipientDirectory bound to q.
func NewRecipientDirectory(q domain.Querier) *RecipientDirectory {
	return &RecipientDirectory{q: q}
}

// Exists reports whether the recipient is a known user.
func (d *RecipientDirectory) Exists(ctx context.Context, recipientID string) (bool, error) {
	const op = "recipientDirectory.Exists"

	id, err := uuid.Parse(recipientID)
	if err != nil {
		return false, nil
	}

	row := d.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id)
	scanner, ok := row.(interface{ Scan(...any) error })
	if !ok {
		return false, fmt.Errorf("%s: unsupported row type %T", op, row)
	}
	var exists bool
	if err := scanner.Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}
