// Package noop implements a publisher that discards all messages.
package noop

import "context"

// Publisher drops every publish call.
type Publisher struct{}

// New constructs a Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish discards the payload.
func (*Publisher) Publish(context.Context, string, any) (string, error) {
	return "", nil
}

// Close is a no-op.
func (*Publisher) Close() error {
	return nil
}
