package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// ArchivedDeleter is the repository slice the cleanup task needs.
type ArchivedDeleter interface {
	DeleteArchivedBefore(ctx context.Context, before time.Time) (int64, error)
}

// CleanupOldNotificationsPayload is the typed payload for cleanup tasks.
// This task is typically scheduled to run periodically (e.g., daily).
type CleanupOldNotificationsPayload struct {
	// ArchivedBefore specifies the cutoff time - notifications archived
	// before this will be cleaned up. If empty, defaults to 30 days ago.
	ArchivedBefore time.Time `json:"archived_before,omitempty"`

	// DryRun if true, only logs what would be deleted without actually deleting.
	DryRun bool `json:"dry_run,omitempty"`
}

// NewCleanupOldNotificationsTask creates a new cleanup task with default
// options: notifications archived more than 30 days ago.
func NewCleanupOldNotificationsTask() (*asynq.Task, error) {
	return NewCleanupOldNotificationsTaskWithOptions(CleanupOldNotificationsPayload{
		ArchivedBefore: time.Now().AddDate(0, 0, -30),
		DryRun:         false,
	})
}

// NewCleanupOldNotificationsTaskWithOptions creates a cleanup task with custom options.
func NewCleanupOldNotificationsTaskWithOptions(opts CleanupOldNotificationsPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshal cleanup payload: %w", err)
	}
	return asynq.NewTask(TypeCleanupOldNotifications, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
	), nil
}

// CleanupOldNotificationsHandler handles cleanup tasks.
type CleanupOldNotificationsHandler struct {
	deleter ArchivedDeleter
	logger  *zap.Logger
}

// NewCleanupOldNotificationsHandler creates a handler with injected dependencies.
// deleter may be nil, turning every run into a dry run.
func NewCleanupOldNotificationsHandler(deleter ArchivedDeleter, logger *zap.Logger) *CleanupOldNotificationsHandler {
	return &CleanupOldNotificationsHandler{deleter: deleter, logger: logger}
}

// Handle processes cleanup tasks.
func (h *CleanupOldNotificationsHandler) Handle(ctx context.Context, t *asynq.Task) error {
	taskID, _ := asynq.GetTaskID(ctx)

	var p CleanupOldNotificationsPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("invalid cleanup payload",
			zap.Error(err),
			zap.String("task_type", TypeCleanupOldNotifications),
			zap.String("task_id", taskID),
		)
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	if p.ArchivedBefore.IsZero() {
		p.ArchivedBefore = time.Now().AddDate(0, 0, -30)
	}

	h.logger.Info("starting cleanup of old notifications",
		zap.String("task_type", TypeCleanupOldNotifications),
		zap.String("task_id", taskID),
		zap.Time("archived_before", p.ArchivedBefore),
		zap.Bool("dry_run", p.DryRun),
	)

	var cleaned int64
	if !p.DryRun && h.deleter != nil {
		var err error
		cleaned, err = h.deleter.DeleteArchivedBefore(ctx, p.ArchivedBefore)
		if err != nil {
			h.logger.Error("cleanup failed",
				zap.Error(err),
				zap.String("task_type", TypeCleanupOldNotifications),
				zap.String("task_id", taskID),
			)
			return fmt.Errorf("delete archived notifications: %w", err)
		}
	}

	h.logger.Info("completed cleanup of old notifications",
		zap.String("task_type", TypeCleanupOldNotifications),
		zap.String("task_id", taskID),
		zap.Int64("cleaned_count", cleaned),
		zap.Bool("dry_run", p.DryRun),
	)
	return nil
}

// CleanupOldNotificationsJobID generates a unique job ID for deduplication.
// Use this with asynq.TaskID option to prevent duplicate cleanup jobs.
func CleanupOldNotificationsJobID() string {
	// Use date-based ID to allow one cleanup per day
	return fmt.Sprintf("%s:%s", TypeCleanupOldNotifications, time.Now().UTC().Format("2006-01-02"))
}
