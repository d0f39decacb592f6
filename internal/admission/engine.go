package admission

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ticketloop/purchases-service/internal/auth"
	"github.com/ticketloop/purchases-service/internal/clients"
	"github.com/ticketloop/purchases-service/internal/ledger"
	"github.com/ticketloop/purchases-service/internal/metrics"
	"github.com/ticketloop/purchases-service/internal/models"
	"github.com/ticketloop/purchases-service/internal/notify"
)

// CapacityOracle is the external authority for event capacity and pricing.
type CapacityOracle interface {
	FetchEvent(ctx context.Context, eventID int64) (*clients.EventSnapshot, error)
}

// Directory resolves buyer profiles for notification enrichment.
type Directory interface {
	FetchUser(ctx context.Context, userID string) (*clients.UserProfile, error)
}

// Engine decides whether a purchase request is admitted against the event's
// remaining capacity, records the accepted purchase, and emits the
// confirmation notification. It holds no mutable state; the overselling
// guard lives in the ledger's Serialized section.
type Engine struct {
	oracle    CapacityOracle
	directory Directory
	ledger    ledger.Ledger
	publisher notify.Publisher
	logger    *logrus.Logger
}

type EngineProperty struct {
	Oracle    CapacityOracle
	Directory Directory
	Ledger    ledger.Ledger
	Publisher notify.Publisher
	Logger    *logrus.Logger
}

func NewEngine(props EngineProperty) *Engine {
	logger := props.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		oracle:    props.Oracle,
		directory: props.Directory,
		ledger:    props.Ledger,
		publisher: props.Publisher,
		logger:    logger,
	}
}

// Result pairs a purchase with the event snapshot used to price it, so
// handlers can compose enriched responses without a second fetch.
type Result struct {
	Purchase *models.Purchase
	Event    *clients.EventSnapshot
}

// Purchase runs one admission attempt. The sold-quantity read and the insert
// happen inside the ledger's serialized section for the event; the snapshot
// fetch stays outside it so a slow events service never holds the lock.
func (e *Engine) Purchase(ctx context.Context, identity *auth.Identity, eventID int64, quantity int) (*Result, error) {
	if quantity <= 0 {
		metrics.AdmissionsTotal.WithLabelValues("invalid_quantity", metrics.ServiceName).Inc()
		return nil, ErrInvalidQuantity
	}

	snapshot, err := e.oracle.FetchEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, clients.ErrEventNotFound) {
			metrics.AdmissionsTotal.WithLabelValues("event_not_found", metrics.ServiceName).Inc()
			return nil, ErrEventNotFound
		}
		e.logger.WithError(err).WithField("event_id", eventID).Error("Events service lookup failed")
		metrics.AdmissionsTotal.WithLabelValues("upstream_unavailable", metrics.ServiceName).Inc()
		return nil, ErrUpstreamUnavailable
	}

	purchase := &models.Purchase{}
	err = e.ledger.Serialized(ctx, eventID, func(tx ledger.Ledger) error {
		sold, err := tx.SoldQuantity(ctx, eventID)
		if err != nil {
			return err
		}

		available := snapshot.Capacity - sold
		if quantity > available {
			return &CapacityError{Requested: quantity, Available: available}
		}

		purchase.UserID = identity.UserID
		purchase.EventID = eventID
		purchase.Quantity = quantity
		purchase.UnitPrice = snapshot.Price
		purchase.Total = snapshot.Price.Mul(decimal.NewFromInt(int64(quantity)))
		purchase.Status = models.PaymentPending
		return tx.Create(ctx, purchase)
	})
	if err != nil {
		var capacityErr *CapacityError
		if errors.As(err, &capacityErr) {
			metrics.AdmissionsTotal.WithLabelValues("insufficient_capacity", metrics.ServiceName).Inc()
		} else {
			e.logger.WithError(err).WithField("event_id", eventID).Error("Recording purchase failed")
			metrics.AdmissionsTotal.WithLabelValues("persistence_error", metrics.ServiceName).Inc()
		}
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"purchase_id": purchase.ID,
		"event_id":    eventID,
		"user_id":     identity.UserID,
		"quantity":    quantity,
		"total":       purchase.Total.String(),
	}).Info("Purchase admitted")
	metrics.AdmissionsTotal.WithLabelValues("admitted", metrics.ServiceName).Inc()

	// Post-commit, best effort. A failed notification never unwinds the
	// purchase.
	e.publish(ctx, identity, snapshot, purchase)

	return &Result{Purchase: purchase, Event: snapshot}, nil
}

// ConfirmPayment transitions an existing purchase to paid. Only the buyer may
// confirm; cross-tenant attempts are rejected with ErrForbidden, and repeated
// confirmations stop at the ledger's status guard without a second
// notification.
func (e *Engine) ConfirmPayment(ctx context.Context, identity *auth.Identity, purchaseID uuid.UUID) (*Result, error) {
	existing, err := e.ledger.Get(ctx, purchaseID)
	if err != nil {
		if errors.Is(err, ledger.ErrPurchaseNotFound) {
			return nil, ErrPurchaseNotFound
		}
		return nil, err
	}

	if existing.UserID != identity.UserID {
		return nil, ErrForbidden
	}

	paid, err := e.ledger.MarkPaid(ctx, purchaseID, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrAlreadyPaid):
			return nil, ErrAlreadyPaid
		case errors.Is(err, ledger.ErrPurchaseNotFound):
			return nil, ErrPurchaseNotFound
		default:
			return nil, err
		}
	}

	snapshot, err := e.oracle.FetchEvent(ctx, paid.EventID)
	if err != nil {
		// The payment is already committed; enrich with what we have.
		e.logger.WithError(err).WithField("event_id", paid.EventID).Warn("Event enrichment failed after payment")
		snapshot = &clients.EventSnapshot{ID: paid.EventID}
	}

	e.logger.WithFields(logrus.Fields{
		"purchase_id": paid.ID,
		"user_id":     identity.UserID,
	}).Info("Payment confirmed")

	e.publish(ctx, identity, snapshot, paid)

	return &Result{Purchase: paid, Event: snapshot}, nil
}

// publish assembles the confirmation envelope and hands it to the publisher.
// User details come from the users service when reachable, falling back to
// token claims.
func (e *Engine) publish(ctx context.Context, identity *auth.Identity, snapshot *clients.EventSnapshot, purchase *models.Purchase) {
	user := notify.UserInfo{
		ID:    purchase.UserID,
		Email: identity.Email,
		Name:  identity.Name,
	}
	if e.directory != nil {
		if profile, err := e.directory.FetchUser(ctx, purchase.UserID); err == nil {
			if profile.Email != "" {
				user.Email = profile.Email
			}
			if profile.Name != "" {
				user.Name = profile.Name
			}
		}
	}

	envelope := notify.PaymentConfirmed(purchase, snapshot, user)
	if !e.publisher.Publish(ctx, envelope) {
		e.logger.WithField("purchase_id", purchase.ID).Warn("Confirmation notification was not delivered")
	}
}
