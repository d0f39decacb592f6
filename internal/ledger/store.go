package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ticketloop/purchases-service/internal/models"
)

// Store implements Ledger on top of PostgreSQL via gorm.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// SoldQuantity sums quantities across all purchases for the event, any
// payment state.
func (s *Store) SoldQuantity(ctx context.Context, eventID int64) (int, error) {
	var sold int64
	err := s.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("event_id = ?", eventID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&sold).Error
	if err != nil {
		return 0, fmt.Errorf("summing sold quantity: %w", err)
	}
	return int(sold), nil
}

// Serialized runs fn inside a transaction holding a per-event advisory lock.
// The lock lives in PostgreSQL, so admissions for the same event are
// serialized across every instance of this service, and it is released
// automatically at commit or rollback.
func (s *Store) Serialized(ctx context.Context, eventID int64, fn func(tx Ledger) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", eventID).Error; err != nil {
			return fmt.Errorf("acquiring event lock: %w", err)
		}
		return fn(&Store{db: tx})
	})
}

func (s *Store) Create(ctx context.Context, purchase *models.Purchase) error {
	if err := s.db.WithContext(ctx).Create(purchase).Error; err != nil {
		return fmt.Errorf("inserting purchase: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, purchaseID uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := s.db.WithContext(ctx).First(&purchase, "id = ?", purchaseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("loading purchase: %w", err)
	}
	return &purchase, nil
}

// MarkPaid transitions the purchase to paid. The row is locked for the span
// of the transaction so repeated pay calls cannot both pass the status guard.
func (s *Store) MarkPaid(ctx context.Context, purchaseID uuid.UUID, paidAt time.Time) (*models.Purchase, error) {
	var purchase models.Purchase
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&purchase, "id = ?", purchaseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPurchaseNotFound
			}
			return fmt.Errorf("loading purchase: %w", err)
		}
		if purchase.Status == models.PaymentPaid {
			return ErrAlreadyPaid
		}
		purchase.Status = models.PaymentPaid
		purchase.PaidAt = &paidAt
		if err := tx.Model(&purchase).Updates(map[string]interface{}{
			"status":  models.PaymentPaid,
			"paid_at": paidAt,
		}).Error; err != nil {
			return fmt.Errorf("marking purchase paid: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

func (s *Store) ListAll(ctx context.Context) ([]models.Purchase, error) {
	return s.list(ctx, s.db)
}

func (s *Store) ListByBuyer(ctx context.Context, userID string) ([]models.Purchase, error) {
	return s.list(ctx, s.db.Where("user_id = ?", userID))
}

func (s *Store) ListPaidByBuyer(ctx context.Context, userID string) ([]models.Purchase, error) {
	return s.list(ctx, s.db.Where("user_id = ? AND status = ?", userID, models.PaymentPaid))
}

func (s *Store) ListByEvent(ctx context.Context, eventID int64) ([]models.Purchase, error) {
	return s.list(ctx, s.db.Where("event_id = ?", eventID))
}

func (s *Store) list(ctx context.Context, scope *gorm.DB) ([]models.Purchase, error) {
	var purchases []models.Purchase
	if err := scope.WithContext(ctx).Order("created_at DESC").Find(&purchases).Error; err != nil {
		return nil, fmt.Errorf("listing purchases: %w", err)
	}
	return purchases, nil
}

func (s *Store) EventStats(ctx context.Context, eventID int64) (*EventStats, error) {
	var stats EventStats
	err := s.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("event_id = ?", eventID).
		Select("COUNT(*) AS total_purchases, COALESCE(SUM(quantity), 0) AS total_tickets_sold").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("aggregating event stats: %w", err)
	}
	return &stats, nil
}
