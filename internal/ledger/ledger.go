package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ticketloop/purchases-service/internal/models"
)

var (
	ErrPurchaseNotFound = errors.New("ledger: purchase not found")
	ErrAlreadyPaid      = errors.New("ledger: purchase already paid")
)

// EventStats aggregates the purchases recorded for one event.
type EventStats struct {
	TotalPurchases   int64 `json:"total_purchases"`
	TotalTicketsSold int   `json:"total_tickets_sold"`
}

// Ledger is the durable store of purchase records. Serialized is the
// overselling guard: the callback runs inside a storage-level critical
// section keyed by event, so a sold-quantity read followed by an insert
// cannot interleave with another admission for the same event.
type Ledger interface {
	SoldQuantity(ctx context.Context, eventID int64) (int, error)
	Serialized(ctx context.Context, eventID int64, fn func(tx Ledger) error) error
	Create(ctx context.Context, purchase *models.Purchase) error
	Get(ctx context.Context, purchaseID uuid.UUID) (*models.Purchase, error)
	MarkPaid(ctx context.Context, purchaseID uuid.UUID, paidAt time.Time) (*models.Purchase, error)
	ListAll(ctx context.Context) ([]models.Purchase, error)
	ListByBuyer(ctx context.Context, userID string) ([]models.Purchase, error)
	ListPaidByBuyer(ctx context.Context, userID string) ([]models.Purchase, error)
	ListByEvent(ctx context.Context, eventID int64) ([]models.Purchase, error)
	EventStats(ctx context.Context, eventID int64) (*EventStats, error)
}
