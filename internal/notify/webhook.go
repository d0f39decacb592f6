package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// WebhookPublisher posts envelopes to an HTTP endpoint, for deployments that
// run the notifications service without a broker.
type WebhookPublisher struct {
	endpoint string
	http     *http.Client
}

func NewWebhookPublisher(endpoint string, timeout time.Duration) *WebhookPublisher {
	return &WebhookPublisher{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

func (p *WebhookPublisher) Publish(ctx context.Context, envelope Envelope) bool {
	body, err := json.Marshal(envelope)
	if err != nil {
		log.WithError(err).Error("Failed to marshal notification envelope")
		countPublish("webhook", false)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		log.WithError(err).Error("Failed to build notification request")
		countPublish("webhook", false)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		log.WithError(err).WithField("endpoint", p.endpoint).Error("Failed to deliver notification")
		countPublish("webhook", false)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithFields(log.Fields{
			"endpoint": p.endpoint,
			"status":   resp.StatusCode,
		}).Error("Notification endpoint rejected envelope")
		countPublish("webhook", false)
		return false
	}

	log.WithField("purchase_id", envelope.Data.PurchaseID).Info("Published purchase notification")
	countPublish("webhook", true)
	return true
}

func (p *WebhookPublisher) Close() error {
	return nil
}
