// Package tasks contains task handlers for async job processing.
package tasks

// Task type constants.
// Use colon-separated naming: {domain}:{action}. Delivery tasks use the
// broker routing keys directly (notification.{channel}.{action}), so the
// queue wire format matches the other Outbound Producer transports.
const (
	// TypeDigestFlush is the scheduler tick that flushes accumulated
	// digest-pending entries into summary notifications.
	TypeDigestFlush = "notification:digest:flush"

	// TypeCleanupOldNotifications is the periodic cleanup of archived
	// notifications past their retention window.
	TypeCleanupOldNotifications = "notification:cleanup"
)
