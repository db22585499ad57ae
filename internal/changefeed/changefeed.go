// Package changefeed delivers change events on procurement data to live
// subscribers.
package changefeed

import (
	"context"
	"time"
)

// TopicPurchaseOrders carries purchase order changes.
const TopicPurchaseOrders = "purchase_orders"

// Change describes one committed mutation.
type Change struct {
	Topic  string    `json:"topic"`
	ID     string    `json:"id"`
	Kind   string    `json:"kind"`
	Status string    `json:"status,omitempty"`
	At     time.Time `json:"at"`
}

// Handler consumes delivered changes. It must not block for long.
type Handler func(Change)

// Unsubscribe stops a subscription and waits for its delivery loop to exit.
type Unsubscribe func()

// Feed publishes and subscribes to change events.
type Feed interface {
	Publish(ctx context.Context, change Change) error
	Subscribe(ctx context.Context, topic string, fn Handler) (Unsubscribe, error)
}
