// Package nop provides a no-op events.Publisher used for tests and for
// deployments where event publishing is disabled.
package nop

import (
	"context"

	"github.com/branchweave/branchweave/pkg/events"
)

// Publisher is a no-op events.Publisher.
type Publisher struct{}

// NewPublisher creates a new no-op publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish validates input and otherwise does nothing.
func (p *Publisher) Publish(_ context.Context, event *events.MessageEvent) error {
	if event == nil {
		return events.ErrNilEvent
	}
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
