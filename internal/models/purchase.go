package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment states. The transition is one-way: pending -> paid.
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

// Purchase is the durable record of an admitted ticket purchase. Buyer and
// event ids reference external services; unit price and total are captured at
// admission time and never recomputed. Purchases are never deleted, only
// transitioned to paid.
type Purchase struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	UserID    string          `gorm:"type:varchar(36);not null;index" json:"user_id"`
	EventID   int64           `gorm:"not null;index" json:"event_id"`
	Quantity  int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Total     decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`
	Status    string          `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (purchase *Purchase) BeforeCreate(tx *gorm.DB) (err error) {
	if purchase.ID == uuid.Nil {
		purchase.ID = uuid.New()
	}
	return
}

func (purchase *Purchase) IsPaid() bool {
	return purchase.Status == PaymentPaid
}
