package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketloop/purchases-service/internal/clients"
	"github.com/ticketloop/purchases-service/internal/models"
)

func envelopeFixture() Envelope {
	createdAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	purchase := &models.Purchase{
		ID:        uuid.MustParse("7b0e4b3e-7b1a-4b5e-9d2c-1a2b3c4d5e6f"),
		UserID:    "user-1",
		EventID:   1,
		Quantity:  3,
		UnitPrice: decimal.NewFromInt(10),
		Total:     decimal.NewFromInt(30),
		Status:    models.PaymentPending,
		CreatedAt: createdAt,
	}
	event := &clients.EventSnapshot{
		ID:       1,
		Name:     "Concert",
		Date:     "2026-09-01",
		Location: "Arena",
		Capacity: 5,
		Price:    decimal.NewFromInt(10),
	}
	user := UserInfo{ID: "user-1", Email: "a@example.com", Name: "Ana"}
	return PaymentConfirmed(purchase, event, user)
}

func TestPaymentConfirmedEnvelopeShape(t *testing.T) {
	envelope := envelopeFixture()

	body, err := json.Marshal(envelope)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Equal(t, "payment.confirmed", decoded["type"])

	data := decoded["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["quantity"])
	assert.Equal(t, float64(30), data["total"])
	assert.Equal(t, "7b0e4b3e-7b1a-4b5e-9d2c-1a2b3c4d5e6f", data["purchase_id"])
	assert.Equal(t, "2026-08-01T12:00:00Z", data["created_at"])

	user := data["user"].(map[string]interface{})
	assert.Equal(t, "a@example.com", user["email"])

	event := data["event"].(map[string]interface{})
	assert.Equal(t, "Concert", event["name"])
	assert.Equal(t, "Arena", event["location"])
}

func TestWebhookPublisherDelivers(t *testing.T) {
	var received Envelope
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	publisher := NewWebhookPublisher(server.URL, time.Second)
	ok := publisher.Publish(context.Background(), envelopeFixture())

	assert.True(t, ok)
	assert.Equal(t, TypePaymentConfirmed, received.Type)
	assert.Equal(t, 3, received.Data.Quantity)
}

func TestWebhookPublisherSwallowsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	publisher := NewWebhookPublisher(server.URL, time.Second)
	assert.False(t, publisher.Publish(context.Background(), envelopeFixture()))
}

func TestWebhookPublisherSwallowsConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	publisher := NewWebhookPublisher(server.URL, time.Second)
	assert.False(t, publisher.Publish(context.Background(), envelopeFixture()))
}

func TestNopPublisher(t *testing.T) {
	publisher := NewNopPublisher()
	assert.True(t, publisher.Publish(context.Background(), envelopeFixture()))
	assert.NoError(t, publisher.Close())
}
