package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// DigestFlusher is the slice of the notification core the flush task needs.
type DigestFlusher interface {
	FlushDigests(ctx context.Context) (int, error)
}

// NewDigestFlushTask creates the scheduler tick task.
func NewDigestFlushTask() *asynq.Task {
	return asynq.NewTask(TypeDigestFlush, nil,
		asynq.MaxRetry(2),
		asynq.Timeout(5*time.Minute),
	)
}

// DigestFlushJobID dedupes concurrent ticks: one flush per minute window.
func DigestFlushJobID() string {
	return fmt.Sprintf("%s:%s", TypeDigestFlush, time.Now().UTC().Format("2006-01-02T15:04"))
}

// DigestFlushHandler runs a digest flush tick.
type DigestFlushHandler struct {
	flusher DigestFlusher
	logger  *zap.Logger
}

// NewDigestFlushHandler creates a handler with injected dependencies.
func NewDigestFlushHandler(flusher DigestFlusher, logger *zap.Logger) *DigestFlushHandler {
	return &DigestFlushHandler{flusher: flusher, logger: logger}
}

// Handle processes a flush tick.
func (h *DigestFlushHandler) Handle(ctx context.Context, t *asynq.Task) error {
	taskID, _ := asynq.GetTaskID(ctx)

	flushed, err := h.flusher.FlushDigests(ctx)
	if err != nil {
		h.logger.Error("digest flush failed",
			zap.Error(err),
			zap.String("task_type", TypeDigestFlush),
			zap.String("task_id", taskID),
		)
		return fmt.Errorf("flush digests: %w", err)
	}

	h.logger.Info("digest flush completed",
		zap.String("task_type", TypeDigestFlush),
		zap.String("task_id", taskID),
		zap.Int("flushed", flushed),
	)
	return nil
}
