package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nimbusgate/core/internal/domain"
	"github.com/nimbusgate/core/internal/template"
)

// TemplateRepo implements template.Repository for PostgreSQL, hand-written
// against domain.Querier like AuditEventRepo. The (type, language) pair is
// enforced unique by the notification_templates schema.
type TemplateRepo struct {
	q domain.Querier
}

// NewTemplateRepo creates a new TemplateRepo bound to q.
func NewTemplateRepo(q domain.Querier) *TemplateRepo {
	return &TemplateRepo{q: q}
}

// Insert stores a new template.
func (r *TemplateRepo) Insert(ctx context.Context, t *template.Template) error {
	const op = "templateRepo.Insert"

	id, err := uuid.Parse(t.ID)
	if err != nil {
		return fmt.Errorf("%s: parse ID: %w", op, err)
	}

	const query = `
		INSERT INTO notification_templates (id, notification_type, language, subject, body, required_variables, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := r.q.Exec(ctx, query, id, t.Type, t.Language, t.Subject, t.Body, t.RequiredVariables, t.CreatedAt, t.UpdatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Update replaces the mutable fields of an existing template.
func (r *TemplateRepo) Update(ctx context.Context, t *template.Template) error {
	const op = "templateRepo.Update"

	id, err := uuid.Parse(t.ID)
	if err != nil {
		return fmt.Errorf("%s: parse ID: %w", op, err)
	}

	const query = `
		UPDATE notification_templates
		SET subject = $2, body = $3, required_variables = $4, updated_at = $5
		WHERE id = $1`

	if _, err := r.q.Exec(ctx, query, id, t.Subject, t.Body, t.RequiredVariables, t.UpdatedAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteByID removes a template by id.
func (r *TemplateRepo) DeleteByID(ctx context.Context, id string) error {
	const op = "templateRepo.DeleteByID"

	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%s: parse ID: %w", op, err)
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM notification_templates WHERE id = $1`, parsed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// LoadAll returns every template, the source for the store's snapshot.
func (r *TemplateRepo) LoadAll(ctx context.Context) ([]template.Template, error) {
	const op = "templateRepo.LoadAll"

	const query = `
		SELECT id, notification_type, language, subject, body, required_variables, created_at, updated_at
		FROM notification_templates
		ORDER BY notification_type, language`

	rowsAny, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	rows, ok := rowsAny.(pgx.Rows)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported rows type %T", op, rowsAny)
	}
	defer rows.Close()

	var out []template.Template
	for rows.Next() {
		var (
			t     template.Template
			rowID uuid.UUID
		)
		if err := rows.Scan(&rowID, &t.Type, &t.Language, &t.Subject, &t.Body, &t.RequiredVariables, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		t.ID = rowID.String()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return out, nil
}
