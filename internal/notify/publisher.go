package notify

import (
	"context"

	"github.com/ticketloop/purchases-service/internal/metrics"
)

// Publisher delivers confirmation envelopes to the notifications channel.
// Delivery is best-effort: implementations report success or failure but
// never return an error, and a failed publish must not affect the purchase
// that triggered it.
type Publisher interface {
	Publish(ctx context.Context, envelope Envelope) bool
	Close() error
}

// NopPublisher drops every envelope. Used when notifications are disabled.
type NopPublisher struct{}

func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}

func (*NopPublisher) Publish(ctx context.Context, envelope Envelope) bool {
	countPublish("none", true)
	return true
}

func (*NopPublisher) Close() error {
	return nil
}

func countPublish(transport string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	metrics.NotificationsTotal.WithLabelValues(transport, status, metrics.ServiceName).Inc()
}
