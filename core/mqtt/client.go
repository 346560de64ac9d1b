package mqtt

import (
	"context"
	"time"

	"github.com/kilianp07/vehrelay/core/model"
)

// Receipt describes a payload handed over to the broker.
type Receipt struct {
	Topic       string
	ClientID    string
	Bytes       int
	Attempts    int
	PublishedAt time.Time
	Latency     time.Duration
}

// PayloadPublisher publishes vehicle snapshots to the broker.
type PayloadPublisher interface {
	// Publish connects, sends the payload, waits for completion and
	// disconnects.
	Publish(ctx context.Context, p model.Payload) (Receipt, error)
}

// PublishFunc adapts a function to PayloadPublisher.
type PublishFunc func(ctx context.Context, p model.Payload) (Receipt, error)

func (f PublishFunc) Publish(ctx context.Context, p model.Payload) (Receipt, error) {
	return f(ctx, p)
}
