// Package notify defines the change-event publisher the sync engine uses to
// announce document creations, updates, and deletions. Implementations live in
// the provider subpackages; failures are logged by callers and never abort a
// crawl.
package notify

import "context"

// Publisher delivers one payload to a named topic and returns the provider's
// message ID. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Noop discards every event. Used when no notifier is configured.
type Noop struct{}

// Publish does nothing and reports success.
func (Noop) Publish(context.Context, string, any) (string, error) {
	return "", nil
}
