package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusgate/core/internal/domain"
	domainerrors "github.com/nimbusgate/core/internal/domain/errors"
	"github.com/nimbusgate/core/internal/infra/observability"
	"github.com/nimbusgate/core/internal/outbound"
	"github.com/nimbusgate/core/internal/template"
)

// OwnershipMismatchMessage is the stable message returned when a principal
// operates on a notification it does not own. The contract maps this to
// 400, not 403.
const OwnershipMismatchMessage = "notification does not belong to the requesting user"

// Repository persists notifications.
type Repository interface {
	Insert(ctx context.Context, n *Notification) error
	FindByID(ctx context.Context, id string) (Notification, error)
	ListByOwner(ctx context.Context, ownerID string, params domain.ListParams) ([]Notification, int, error)
	ListUnread(ctx context.Context, ownerID string) ([]Notification, error)
	CountUnread(ctx context.Context, ownerID string) (int, error)
	Update(ctx context.Context, n *Notification) error
	Delete(ctx context.Context, id string) error
}

// RecipientDirectory answers whether a recipient exists; intake returns 404
// for unknown users.
type RecipientDirectory interface {
	Exists(ctx context.Context, recipientID string) (bool, error)
}

// Auditor records audit-trail entries for notification state changes.
// Recording is best-effort: an audit failure never fails the user-facing
// operation. The payload may carry PII (metadata email hints); the
// recorder redacts it before persisting.
type Auditor interface {
	Record(ctx context.Context, eventType, actorID, notificationID string, payload map[string]any)
}

// Service is the notification core. All dependencies are injected at
// construction; the service itself is stateless.
type Service struct {
	repo       Repository
	directory  RecipientDirectory
	templates  *template.Store
	producer   outbound.Producer
	prefs      PreferenceSource
	digests    DigestStore
	auditor    Auditor
	maxRetries int
	now        func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxRetries overrides the outbound retry budget (default 3).
func WithMaxRetries(n int) ServiceOption {
	return func(s *Service) { s.maxRetries = n }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithAuditor installs an audit-trail recorder.
func WithAuditor(a Auditor) ServiceOption {
	return func(s *Service) { s.auditor = a }
}

// NewService wires the notification core.
func NewService(repo Repository, directory RecipientDirectory, templates *template.Store, producer outbound.Producer, prefs PreferenceSource, digests DigestStore, opts ...ServiceOption) *Service {
	s := &Service{
		repo:       repo,
		directory:  directory,
		templates:  templates,
		producer:   producer,
		prefs:      prefs,
		digests:    digests,
		maxRetries: 3,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create runs the full intake pipeline: validate, persist, classify,
// render, fan out.
func (s *Service) Create(ctx context.Context, req Request) (Notification, error) {
	if err := req.Validate(); err != nil {
		return Notification{}, err
	}

	exists, err := s.directory.Exists(ctx, req.RecipientID)
	if err != nil {
		return Notification{}, fmt.Errorf("notification: recipient lookup: %w", err)
	}
	if !exists {
		return Notification{}, domainerrors.NewDomain(domainerrors.CodeNotFound, "unknown user: "+req.RecipientID)
	}

	now := s.now().UTC()
	n := Notification{
		ID:        uuid.New().String(),
		OwnerID:   req.RecipientID,
		Type:      req.Type,
		Title:     req.Title,
		Content:   req.Content,
		ActionURL: req.ActionURL,
		Priority:  req.Priority,
		Data:      req.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, &n); err != nil {
		return Notification{}, fmt.Errorf("notification: persist: %w", err)
	}
	s.audit(ctx, domain.EventNotificationCreated, req.RecipientID, n.ID, map[string]any{
		"type":     string(n.Type),
		"title":    n.Title,
		"priority": n.Priority,
		"metadata": req.Metadata,
	})

	prefs, err := s.prefs.Preferences(ctx, req.RecipientID)
	if err != nil {
		// Preference lookup failure degrades to immediate in-app delivery
		// rather than dropping the notification.
		observability.LoggerFromContext(ctx, slog.Default()).Warn("notification: preference lookup failed",
			"recipient_id", req.RecipientID, "error", err)
		prefs = Preferences{Channels: []Channel{ChannelInApp}}
	}

	if s.useDigest(prefs, req) {
		if err := s.accumulateDigest(ctx, prefs, req, n); err != nil {
			return Notification{}, err
		}
		return n, nil
	}

	if err := s.fanOut(ctx, req, n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// useDigest routes non-urgent notifications into the digest accumulator.
// Security and high-priority notifications always deliver immediately.
func (s *Service) useDigest(prefs Preferences, req Request) bool {
	if prefs.DigestCadence == "" {
		return false
	}
	if req.Priority >= HighPriorityThreshold || req.Type == TypePasswordReset {
		return false
	}
	return true
}

func (s *Service) accumulateDigest(ctx context.Context, prefs Preferences, req Request, n Notification) error {
	entry := DigestEntry{
		RecipientID:    n.OwnerID,
		NotificationID: n.ID,
		Type:           n.Type,
		Title:          n.Title,
		CreatedAt:      n.CreatedAt,
	}
	if err := s.digests.Append(ctx, prefs.DigestCadence, entry); err != nil {
		return fmt.Errorf("notification: digest append: %w", err)
	}

	msg, err := outbound.NewMessage(
		outbound.ChannelRoutingKey(string(ChannelDigest), "pending"),
		n.Priority,
		digestPendingPayload(n),
		req.CorrelationID,
		s.maxRetries,
	)
	if err != nil {
		return fmt.Errorf("notification: digest message: %w", err)
	}
	msg.NotificationID = n.ID
	return s.producer.Publish(ctx, msg)
}

// fanOut enqueues one OutboundMessage per resolved channel, plus the
// created/priority event every consumer sees.
func (s *Service) fanOut(ctx context.Context, req Request, n Notification) error {
	createdKey := outbound.RoutingKeyCreated
	if n.Priority >= HighPriorityThreshold {
		createdKey = outbound.RoutingKeyPriorityHigh
	}

	msgs := make([]outbound.Message, 0, 4)
	created, err := outbound.NewMessage(createdKey, n.Priority, deliveryPayload(n, ChannelInApp, n.Title, n.Content), req.CorrelationID, s.maxRetries)
	if err != nil {
		return fmt.Errorf("notification: build message: %w", err)
	}
	created.NotificationID = n.ID
	msgs = append(msgs, created)

	prefs, _ := s.prefs.Preferences(ctx, n.OwnerID)
	for _, ch := range ResolveChannels(prefs, req) {
		if ch == ChannelInApp {
			continue // covered by the created event
		}
		subject, body := s.renderForChannel(ctx, req, n)
		msg, err := outbound.NewMessage(
			outbound.ChannelRoutingKey(string(ch), "send"),
			n.Priority,
			deliveryPayload(n, ch, subject, body),
			req.CorrelationID,
			s.maxRetries,
		)
		if err != nil {
			return fmt.Errorf("notification: build message: %w", err)
		}
		msg.NotificationID = n.ID
		msgs = append(msgs, msg)
	}

	for _, err := range s.producer.PublishBatch(ctx, msgs) {
		// A dead-lettered message is terminal but accounted for; only a
		// total producer failure aborts intake.
		if err != nil && !errors.Is(err, outbound.ErrDeadLettered) {
			return fmt.Errorf("notification: enqueue: %w", err)
		}
	}
	return nil
}

// renderForChannel renders the channel copy through the template store;
// when no template exists for the type the request's own title/content are
// delivered as-is.
func (s *Service) renderForChannel(ctx context.Context, req Request, n Notification) (subject, body string) {
	vars := make(map[string]string, len(req.Variables)+1)
	for k, v := range req.Variables {
		vars[k] = v
	}
	processed, err := s.templates.Render(string(n.Type), req.Language, vars)
	if err != nil {
		if domainErr := domainerrors.IsDomainError(err); domainErr == nil || domainErr.Code != domainerrors.CodeNotFound {
			observability.LoggerFromContext(ctx, slog.Default()).Warn("notification: template render failed",
				"type", n.Type, "language", req.Language, "error", err)
		}
		return n.Title, n.Content
	}
	return processed.Subject, processed.Body
}

// List returns a page of the owner's notifications, newest first.
func (s *Service) List(ctx context.Context, ownerID string, params domain.ListParams) ([]Notification, int, error) {
	return s.repo.ListByOwner(ctx, ownerID, params)
}

// Unread returns the owner's unread notifications.
func (s *Service) Unread(ctx context.Context, ownerID string) ([]Notification, error) {
	return s.repo.ListUnread(ctx, ownerID)
}

// UnreadCount returns the owner's unread count.
func (s *Service) UnreadCount(ctx context.Context, ownerID string) (int, error) {
	return s.repo.CountUnread(ctx, ownerID)
}

// MarkRead sets the read flag, stamping ReadAt exactly once.
func (s *Service) MarkRead(ctx context.Context, principalID, id string) (Notification, error) {
	n, err := s.owned(ctx, principalID, id)
	if err != nil {
		return Notification{}, err
	}
	if n.Read {
		return n, nil
	}
	now := s.now().UTC()
	n.Read = true
	n.ReadAt = &now
	n.UpdatedAt = now
	if err := s.repo.Update(ctx, &n); err != nil {
		return Notification{}, fmt.Errorf("notification: mark read: %w", err)
	}
	s.audit(ctx, domain.EventNotificationRead, principalID, n.ID, nil)
	return n, nil
}

// Archive sets the archived flag.
func (s *Service) Archive(ctx context.Context, principalID, id string) (Notification, error) {
	n, err := s.owned(ctx, principalID, id)
	if err != nil {
		return Notification{}, err
	}
	if n.Archived {
		return n, nil
	}
	n.Archived = true
	n.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, &n); err != nil {
		return Notification{}, fmt.Errorf("notification: archive: %w", err)
	}
	s.audit(ctx, domain.EventNotificationArchived, principalID, n.ID, nil)
	return n, nil
}

// Delete removes the principal's notification.
func (s *Service) Delete(ctx context.Context, principalID, id string) error {
	if _, err := s.owned(ctx, principalID, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("notification: delete: %w", err)
	}
	s.audit(ctx, domain.EventNotificationDeleted, principalID, id, nil)
	return nil
}

func (s *Service) audit(ctx context.Context, eventType, actorID, notificationID string, payload map[string]any) {
	if s.auditor != nil {
		s.auditor.Record(ctx, eventType, actorID, notificationID, payload)
	}
}

// owned loads a notification and enforces the ownership contract: a
// malformed id or an ownership mismatch is a 400, an unknown id a 404.
func (s *Service) owned(ctx context.Context, principalID, id string) (Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Notification{}, domainerrors.NewDomain(domainerrors.CodeBadRequest, "invalid notification id")
	}
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if domainErr := domainerrors.IsDomainError(err); domainErr != nil {
			return Notification{}, err
		}
		return Notification{}, fmt.Errorf("notification: load: %w", err)
	}
	if n.OwnerID != principalID {
		return Notification{}, domainerrors.NewDomain(domainerrors.CodeBadRequest, OwnershipMismatchMessage)
	}
	return n, nil
}

// FlushDigests runs one scheduler tick: every recipient whose digest window
// has elapsed gets a single summary notification, and their pending state
// is cleared.
func (s *Service) FlushDigests(ctx context.Context) (int, error) {
	due, err := s.digests.Due(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("notification: digest due: %w", err)
	}

	flushed := 0
	for _, pending := range due {
		if len(pending.Entries) == 0 {
			_ = s.digests.Clear(ctx, pending.RecipientID)
			continue
		}
		// Guard against stores that return windows early.
		if !pending.WindowStartedAt.IsZero() &&
			pending.WindowStartedAt.Add(CadenceWindow(pending.Cadence)).After(s.now()) {
			continue
		}
		summary := Request{
			RecipientID: pending.RecipientID,
			Type:        TypeDigestSummary,
			Title:       "You have " + strconv.Itoa(len(pending.Entries)) + " new notifications",
			Content:     digestSummaryContent(pending.Entries),
			Priority:    MinPriority,
		}

		now := s.now().UTC()
		n := Notification{
			ID:        uuid.New().String(),
			OwnerID:   pending.RecipientID,
			Type:      TypeDigestSummary,
			Title:     summary.Title,
			Content:   summary.Content,
			Priority:  summary.Priority,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Insert(ctx, &n); err != nil {
			observability.LoggerFromContext(ctx, slog.Default()).Error("notification: digest summary persist failed",
				"recipient_id", pending.RecipientID, "error", err)
			continue
		}
		if err := s.fanOut(ctx, summary, n); err != nil {
			observability.LoggerFromContext(ctx, slog.Default()).Error("notification: digest summary fan-out failed",
				"recipient_id", pending.RecipientID, "error", err)
			continue
		}
		if err := s.digests.Clear(ctx, pending.RecipientID); err != nil {
			return flushed, fmt.Errorf("notification: digest clear: %w", err)
		}
		flushed++
	}
	return flushed, nil
}

func digestSummaryContent(entries []DigestEntry) string {
	out := ""
	for i, e := range entries {
		if i > 0 {
			out += "\n"
		}
		out += "- " + e.Title
	}
	return out
}

// deliveryPayload is the broker message body for channel sends.
func deliveryPayload(n Notification, ch Channel, subject, body string) map[string]any {
	return map[string]any{
		"notificationId": n.ID,
		"recipientId":    n.OwnerID,
		"type":           string(n.Type),
		"channel":        string(ch),
		"subject":        subject,
		"body":           body,
		"actionUrl":      n.ActionURL,
		"priority":       n.Priority,
		"data":           n.Data,
	}
}

func digestPendingPayload(n Notification) map[string]any {
	return map[string]any{
		"notificationId": n.ID,
		"recipientId":    n.OwnerID,
		"type":           string(n.Type),
		"title":          n.Title,
	}
}
