package events

import "context"

// Publisher publishes change events to an event stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *MessageEvent) error
	Close() error
}
