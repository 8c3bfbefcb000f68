// Package fixtures provides test data builders and factories.
//
// This package will contain builder pattern helpers for creating
// test data with sensible defaults that can be overridden:
//   - Notification builders
//   - Entity factories
//   - Random data generators
//
// Example usage (planned):
//
//	n := fixtures.NewNotificationBuilder().
//	    WithRecipient("user-123").
//	    Build()
package fixtures
