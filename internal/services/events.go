package services

import "context"

// EventPublisher receives pipeline events. Implementations must be safe for concurrent use.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, tenantID, conversationID int64, payload interface{}) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, int64, int64, interface{}) error { return nil }

func publisherOrNop(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
