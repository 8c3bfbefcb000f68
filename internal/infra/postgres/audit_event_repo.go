package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nimbusgate/core/internal/domain"
	"github.com/nimbusgate/core/internal/infra/observability"
)

// AuditEventRepo implements domain.AuditEventRepository for PostgreSQL,
// hand-written against domain.Querier rather than generated code.
type AuditEventRepo struct{}

// NewAuditEventRepo creates a new AuditEventRepo instance.
func NewAuditEventRepo() *AuditEventRepo {
	return &AuditEventRepo{}
}

// Create stores a new audit event in the database.
func (r *AuditEventRepo) Create(ctx context.Context, q domain.Querier, event *domain.AuditEvent) error {
	const op = "auditEventRepo.Create"

	id, err := uuid.Parse(string(event.ID))
	if err != nil {
		return fmt.Errorf("%s: parse ID: %w", op, err)
	}
	entityID, err := uuid.Parse(string(event.EntityID))
	if err != nil {
		return fmt.Errorf("%s: parse EntityID: %w", op, err)
	}

	var actorID any
	if !event.ActorID.IsEmpty() {
		if parsed, err := uuid.Parse(string(event.ActorID)); err == nil {
			actorID = parsed
		} else {
			observability.LoggerFromContext(ctx, slog.Default()).Warn("audit_event_repo: dropping invalid ActorID", "op", op, "actor_id", event.ActorID, "error", err, "request_id", event.RequestID)
		}
	}

	const query = `
		INSERT INTO audit_events (id, event_type, actor_id, entity_type, entity_id, payload, occurred_at, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var requestID any
	if event.RequestID != "" {
		requestID = event.RequestID
	}

	if _, err := q.Exec(ctx, query, id, event.EventType, actorID, event.EntityType, entityID, event.Payload, event.Timestamp, requestID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ListByEntityID retrieves audit events for a specific entity, ordered by
// occurred_at DESC (newest first).
func (r *AuditEventRepo) ListByEntityID(ctx context.Context, q domain.Querier, entityType string, entityID domain.ID, params domain.ListParams) ([]domain.AuditEvent, int, error) {
	const op = "auditEventRepo.ListByEntityID"

	eid, err := uuid.Parse(string(entityID))
	if err != nil {
		return nil, 0, fmt.Errorf("%s: parse entityID: %w", op, err)
	}

	var total int
	countRow := q.QueryRow(ctx, `SELECT count(*) FROM audit_events WHERE entity_type = $1 AND entity_id = $2`, entityType, eid)
	scanner, ok := countRow.(interface{ Scan(...any) error })
	if !ok {
		return nil, 0, fmt.Errorf("%s: unsupported row type %T", op, countRow)
	}
	if err := scanner.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}
	if total == 0 {
		return []domain.AuditEvent{}, 0, nil
	}

	const listQuery = `
		SELECT id, event_type, actor_id, entity_type, entity_id, payload, occurred_at, request_id
		FROM audit_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY occurred_at DESC
		LIMIT $3 OFFSET $4`

	rowsAny, err := q.Query(ctx, listQuery, entityType, eid, params.Limit(), params.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("%s: query: %w", op, err)
	}
	rows, ok := rowsAny.(pgx.Rows)
	if !ok {
		return nil, 0, fmt.Errorf("%s: unsupported rows type %T", op, rowsAny)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			evt      domain.AuditEvent
			rowID    uuid.UUID
			rowActor *uuid.UUID
			reqID    *string
		)
		if err := rows.Scan(&rowID, &evt.EventType, &rowActor, &evt.EntityType, &eid, &evt.Payload, &evt.Timestamp, &reqID); err != nil {
			return nil, 0, fmt.Errorf("%s: scan: %w", op, err)
		}
		evt.ID = domain.ID(rowID.String())
		evt.EntityID = domain.ID(eid.String())
		if rowActor != nil {
			evt.ActorID = domain.ID(rowActor.String())
		}
		if reqID != nil {
			evt.RequestID = *reqID
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	return events, total, nil
}

// Ensure AuditEventRepo implements domain.AuditEventRepository at compile time.
var _ domain.AuditEventRepository = (*AuditEventRepo)(nil)
