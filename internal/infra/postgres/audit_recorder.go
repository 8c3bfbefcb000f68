package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusgate/core/internal/ctxutil"
	"github.com/nimbusgate/core/internal/domain"
	"github.com/nimbusgate/core/internal/infra/observability"
)

// AuditRecorder implements notification.Auditor over the audit_events
// table. Recording is best-effort: failures are logged, never surfaced.
// Payloads are PII-redacted before they reach storage.
type AuditRecorder struct {
	repo     *AuditEventRepo
	q        domain.Querier
	redactor domain.Redactor
}

// NewAuditRecorder creates an AuditRecorder.
func NewAuditRecorder(repo *AuditEventRepo, q domain.Querier, redactor domain.Redactor) *AuditRecorder {
	return &AuditRecorder{repo: repo, q: q, redactor: redactor}
}

// Record persists one audit event for a notification state change.
func (r *AuditRecorder) Record(ctx context.Context, eventType, actorID, notificationID string, payload map[string]any) {
	var encoded []byte
	if payload != nil {
		redacted := payload
		if r.redactor != nil {
			redacted = r.redactor.RedactMap(payload)
		}
		encoded, _ = json.Marshal(redacted)
	}

	event := &domain.AuditEvent{
		ID:         domain.ID(uuid.New().String()),
		EventType:  eventType,
		ActorID:    domain.ID(actorID),
		EntityType: "notification",
		EntityID:   domain.ID(notificationID),
		Payload:    encoded,
		Timestamp:  time.Now().UTC(),
		RequestID:  ctxutil.RequestIDFromContext(ctx),
	}
	if err := r.repo.Create(ctx, r.q, event); err != nil {
		observability.LoggerFromContext(ctx, slog.Default()).Warn("audit record failed",
			"event_type", eventType,
			"entity_id", notificationID,
			"error", err,
		)
	}
}
