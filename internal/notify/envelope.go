package notify

import (
	"time"

	"github.com/ticketloop/purchases-service/internal/clients"
	"github.com/ticketloop/purchases-service/internal/models"
)

// TypePaymentConfirmed is the routing type consumed by the notifications
// service.
const TypePaymentConfirmed = "payment.confirmed"

// Envelope is the wire format published for every confirmed purchase.
type Envelope struct {
	Type string  `json:"type"`
	Data Payload `json:"data"`
}

type Payload struct {
	User       UserInfo  `json:"user"`
	Event      EventInfo `json:"event"`
	Quantity   int       `json:"quantity"`
	Total      float64   `json:"total"`
	PurchaseID string    `json:"purchase_id"`
	CreatedAt  string    `json:"created_at"`
}

type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type EventInfo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Date     string `json:"date"`
	Location string `json:"location"`
}

// PaymentConfirmed builds the confirmation envelope for a recorded purchase.
func PaymentConfirmed(purchase *models.Purchase, event *clients.EventSnapshot, user UserInfo) Envelope {
	return Envelope{
		Type: TypePaymentConfirmed,
		Data: Payload{
			User: user,
			Event: EventInfo{
				ID:       event.ID,
				Name:     event.Name,
				Date:     event.Date,
				Location: event.Location,
			},
			Quantity:   purchase.Quantity,
			Total:      purchase.Total.InexactFloat64(),
			PurchaseID: purchase.ID.String(),
			CreatedAt:  purchase.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
}
