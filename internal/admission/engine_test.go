package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketloop/purchases-service/internal/auth"
	"github.com/ticketloop/purchases-service/internal/clients"
	"github.com/ticketloop/purchases-service/internal/ledger"
	"github.com/ticketloop/purchases-service/internal/models"
	"github.com/ticketloop/purchases-service/internal/notify"
)

type fakeOracle struct {
	mu       sync.Mutex
	snapshot clients.EventSnapshot
	err      error
}

func (o *fakeOracle) FetchEvent(ctx context.Context, eventID int64) (*clients.EventSnapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	snapshot := o.snapshot
	return &snapshot, nil
}

func (o *fakeOracle) setPrice(price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshot.Price = price
}

type fakeDirectory struct {
	profile *clients.UserProfile
	err     error
}

func (d *fakeDirectory) FetchUser(ctx context.Context, userID string) (*clients.UserProfile, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.profile, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	envelopes []notify.Envelope
	fail      bool
}

func (p *fakePublisher) Publish(ctx context.Context, envelope notify.Envelope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return false
	}
	p.envelopes = append(p.envelopes, envelope)
	return true
}

func (p *fakePublisher) Close() error {
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.envelopes)
}

// fakeLedger serializes admissions with a process-local mutex, standing in
// for the store's advisory lock.
type fakeLedger struct {
	mu        sync.Mutex
	purchases []*models.Purchase
	createErr error
}

func (l *fakeLedger) Serialized(ctx context.Context, eventID int64, fn func(tx ledger.Ledger) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(&fakeLedgerTx{l})
}

func (l *fakeLedger) SoldQuantity(ctx context.Context, eventID int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.soldLocked(eventID), nil
}

func (l *fakeLedger) soldLocked(eventID int64) int {
	sold := 0
	for _, p := range l.purchases {
		if p.EventID == eventID {
			sold += p.Quantity
		}
	}
	return sold
}

func (l *fakeLedger) Create(ctx context.Context, purchase *models.Purchase) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.createLocked(purchase)
}

func (l *fakeLedger) createLocked(purchase *models.Purchase) error {
	if l.createErr != nil {
		return l.createErr
	}
	purchase.ID = uuid.New()
	purchase.CreatedAt = time.Now().UTC()
	l.purchases = append(l.purchases, purchase)
	return nil
}

func (l *fakeLedger) Get(ctx context.Context, purchaseID uuid.UUID) (*models.Purchase, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.purchases {
		if p.ID == purchaseID {
			return p, nil
		}
	}
	return nil, ledger.ErrPurchaseNotFound
}

func (l *fakeLedger) MarkPaid(ctx context.Context, purchaseID uuid.UUID, paidAt time.Time) (*models.Purchase, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.purchases {
		if p.ID == purchaseID {
			if p.Status == models.PaymentPaid {
				return nil, ledger.ErrAlreadyPaid
			}
			p.Status = models.PaymentPaid
			p.PaidAt = &paidAt
			return p, nil
		}
	}
	return nil, ledger.ErrPurchaseNotFound
}

func (l *fakeLedger) ListAll(ctx context.Context) ([]models.Purchase, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.Purchase, 0, len(l.purchases))
	for _, p := range l.purchases {
		out = append(out, *p)
	}
	return out, nil
}

func (l *fakeLedger) ListByBuyer(ctx context.Context, userID string) ([]models.Purchase, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Purchase
	for _, p := range l.purchases {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (l *fakeLedger) ListPaidByBuyer(ctx context.Context, userID string) ([]models.Purchase, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Purchase
	for _, p := range l.purchases {
		if p.UserID == userID && p.Status == models.PaymentPaid {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (l *fakeLedger) ListByEvent(ctx context.Context, eventID int64) ([]models.Purchase, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Purchase
	for _, p := range l.purchases {
		if p.EventID == eventID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (l *fakeLedger) EventStats(ctx context.Context, eventID int64) (*ledger.EventStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := &ledger.EventStats{}
	for _, p := range l.purchases {
		if p.EventID == eventID {
			stats.TotalPurchases++
			stats.TotalTicketsSold += p.Quantity
		}
	}
	return stats, nil
}

// fakeLedgerTx runs inside Serialized with the lock already held.
type fakeLedgerTx struct {
	parent *fakeLedger
}

func (t *fakeLedgerTx) SoldQuantity(ctx context.Context, eventID int64) (int, error) {
	return t.parent.soldLocked(eventID), nil
}

func (t *fakeLedgerTx) Create(ctx context.Context, purchase *models.Purchase) error {
	return t.parent.createLocked(purchase)
}

func (t *fakeLedgerTx) Serialized(ctx context.Context, eventID int64, fn func(tx ledger.Ledger) error) error {
	return errors.New("nested serialized section")
}

func (t *fakeLedgerTx) Get(ctx context.Context, purchaseID uuid.UUID) (*models.Purchase, error) {
	return nil, errors.New("not supported in tx")
}

func (t *fakeLedgerTx) MarkPaid(ctx context.Context, purchaseID uuid.UUID, paidAt time.Time) (*models.Purchase, error) {
	return nil, errors.New("not supported in tx")
}

func (t *fakeLedgerTx) ListAll(ctx context.Context) ([]models.Purchase, error) {
	return nil, errors.New("not supported in tx")
}

func (t *fakeLedgerTx) ListByBuyer(ctx context.Context, userID string) ([]models.Purchase, error) {
	return nil, errors.New("not supported in tx")
}

func (t *fakeLedgerTx) ListPaidByBuyer(ctx context.Context, userID string) ([]models.Purchase, error) {
	return nil, errors.New("not supported in tx")
}

func (t *fakeLedgerTx) ListByEvent(ctx context.Context, eventID int64) ([]models.Purchase, error) {
	return nil, errors.New("not supported in tx")
}

func (t *fakeLedgerTx) EventStats(ctx context.Context, eventID int64) (*ledger.EventStats, error) {
	return nil, errors.New("not supported in tx")
}

func buyer() *auth.Identity {
	return &auth.Identity{UserID: "buyer-a", Role: "user", Email: "a@example.com", Name: "Buyer A"}
}

func newTestEngine(oracle *fakeOracle, store *fakeLedger, publisher *fakePublisher) *Engine {
	return NewEngine(EngineProperty{
		Oracle:    oracle,
		Directory: &fakeDirectory{err: clients.ErrUserNotFound},
		Ledger:    store,
		Publisher: publisher,
	})
}

func snapshotFixture() clients.EventSnapshot {
	return clients.EventSnapshot{
		ID:       1,
		Name:     "Concert",
		Date:     "2026-09-01",
		Location: "Arena",
		Capacity: 5,
		Price:    decimal.NewFromInt(10),
	}
}

func TestPurchaseAdmitted(t *testing.T) {
	oracle := &fakeOracle{snapshot: snapshotFixture()}
	store := &fakeLedger{}
	publisher := &fakePublisher{}
	engine := newTestEngine(oracle, store, publisher)

	result, err := engine.Purchase(context.Background(), buyer(), 1, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Purchase.Quantity)
	assert.Equal(t, models.PaymentPending, result.Purchase.Status)
	assert.True(t, result.Purchase.UnitPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, result.Purchase.Total.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, "Concert", result.Event.Name)
	assert.Equal(t, 1, publisher.count())
}

func TestPurchaseExactCapacity(t *testing.T) {
	oracle := &fakeOracle{snapshot: snapshotFixture()}
	engine := newTestEngine(oracle, &fakeLedger{}, &fakePublisher{})

	_, err := engine.Purchase(context.Background(), buyer(), 1, 5)
	assert.NoError(t, err)
}

func TestPurchaseOverCapacity(t *testing.T) {
	oracle := &fakeOracle{snapshot: snapshotFixture()}
	engine := newTestEngine(oracle, &fakeLedger{}, &fakePublisher{})

	_, err := engine.Purchase(context.Background(), buyer(), 1, 6)

	var capacityErr *CapacityError
	require.ErrorAs(t, err, &capacityErr)
	assert.Equal(t, 6, capacityErr.Requested)
	assert.Equal(t, 5, capacityErr.Available)
}

func TestPurchaseReportsRemainingAfterPriorSales(t *testing.T) {
	oracle := &fakeOracle{snapshot: snapshotFixture()}
	store := &fakeLedger{}
	publisher := &fakePublisher{}
	engine := newTestEngine(oracle, store, publisher)

	_, err := engine.Purchase(context.Background(), buyer(), 1, 3)
	require.NoError(t, err)

	other := &auth.Identity{UserID: "buyer-b", Role: "user"}
	_, err = engine.Purchase(context.Background(), other, 1, 3)

	var capacityErr *CapacityError
	require.ErrorAs(t, err, &capacityErr)
	assert.Equal(t, 3, capacityErr.Requested)
	assert.Equal(t, 2, capacityErr.Available)
	assert.Equal(t, 1, publisher.count())
}

func TestPurchaseInvalidQuantity(t *testing.T) {
	engine := newTestEngine(&fakeOracle{snapshot: snapshotFixture()}, &fakeLedger{}, &fakePublisher{})

	for _, quantity := range []int{0, -1} {
		_, err := engine.Purchase(context.Background(), buyer(), 1, quantity)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	}
}

func TestPurchaseEventNotFound(t *testing.T) {
	oracle := &fakeOracle{err: clients.ErrEventNotFound}
	engine := newTestEngine(oracle, &fakeLedger{}, &fakePublisher{})

	_, err := engine.Purchase(context.Background(), buyer(), 999, 1)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestPurchaseUpstreamUnavailable(t *testing.T) {
	oracle := &fakeOracle{err: &clients.TransientError{Op: "fetching event"}}
	engine := newTestEngine(oracle, &fakeLedger{}, &fakePublisher{})

	_, err := engine.Purchase(context.Background(), buyer(), 1, 1)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.NotErrorIs(t, err, ErrEventNotFound)
}

func TestPurchasePersistenceFailure(t *testing.T) {
	oracle := &fakeOracle{snapshot: snapshotFixture()}
	store := &fakeLedger{createErr: errors.New("insert failed")}
	publisher := &fakePublisher{}
	engine := newTestEngine(oracle, store, publisher)

	_, err := engine.Purchase(context.Background(), buyer(), 1, 1)
	require.Error(t, err)
	assert.Equal(t, 0, publisher.count())
	assert.Empty(t, store.purchases)
}

func TestPurchaseSucceedsWhenPublisherFails(t *testing.T) {
	oracle := &fakeOracle{snapshot: snapshotFixture()}
	engine := newTestEngine(oracle, &fakeLedger{}, &fakePublisher{fail: true})

	result, err := engine.Purchase(context.Background(), buyer(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, result.Purchase.Status)
}

func TestTotalImmuneToLaterPriceChange(t *testing.T) {
	oracle := &fakeOracle{snapshot: snapshotFixture()}
	store := &fakeLedger{}
	engine := newTestEngine(oracle, store, &fakePublisher{})

	result, err := engine.Purchase(context.Background(), buyer(), 1, 3)
	require.NoError(t, err)

	oracle.setPrice(decimal.NewFromInt(99))

	stored, err := store.Get(context.Background(), result.Purchase.ID)
	require.NoError(t, err)
	assert.True(t, stored.UnitPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, stored.Total.Equal(decimal.NewFromInt(30)))
}

func TestConcurrentAdmissionsNeverOversell(t *testing.T) {
	oracle := &fakeOracle{snapshot: snapshotFixture()}
	store := &fakeLedger{}
	engine := newTestEngine(oracle, store, &fakePublisher{})

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Purchase(context.Background(), buyer(), 1, 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	admitted, rejected := 0, 0
	for err := range results {
		if err == nil {
			admitted++
			continue
		}
		var capacityErr *CapacityError
		require.ErrorAs(t, err, &capacityErr)
		rejected++
	}

	assert.Equal(t, 5, admitted)
	assert.Equal(t, attempts-5, rejected)

	sold, err := store.SoldQuantity(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, sold)
}

func TestConfirmPayment(t *testing.T) {
	oracle := &fakeOracle{snapshot: snapshotFixture()}
	store := &fakeLedger{}
	publisher := &fakePublisher{}
	engine := newTestEngine(oracle, store, publisher)

	identity := buyer()
	result, err := engine.Purchase(context.Background(), identity, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 1, publisher.count())

	paid, err := engine.ConfirmPayment(context.Background(), identity, result.Purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, paid.Purchase.Status)
	require.NotNil(t, paid.Purchase.PaidAt)
	assert.Equal(t, 2, publisher.count())
}

func TestConfirmPaymentIdempotent(t *testing.T) {
	oracle := &fakeOracle{snapshot: snapshotFixture()}
	store := &fakeLedger{}
	publisher := &fakePublisher{}
	engine := newTestEngine(oracle, store, publisher)

	identity := buyer()
	result, err := engine.Purchase(context.Background(), identity, 1, 2)
	require.NoError(t, err)

	first, err := engine.ConfirmPayment(context.Background(), identity, result.Purchase.ID)
	require.NoError(t, err)
	paidAt := *first.Purchase.PaidAt
	countAfterFirst := publisher.count()

	_, err = engine.ConfirmPayment(context.Background(), identity, result.Purchase.ID)
	assert.ErrorIs(t, err, ErrAlreadyPaid)

	stored, err := store.Get(context.Background(), result.Purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, paidAt, *stored.PaidAt)
	assert.Equal(t, countAfterFirst, publisher.count())
}

func TestConfirmPaymentForbiddenForOtherUser(t *testing.T) {
	oracle := &fakeOracle{snapshot: snapshotFixture()}
	store := &fakeLedger{}
	engine := newTestEngine(oracle, store, &fakePublisher{})

	result, err := engine.Purchase(context.Background(), buyer(), 1, 1)
	require.NoError(t, err)

	intruder := &auth.Identity{UserID: "buyer-b", Role: "user"}
	_, err = engine.ConfirmPayment(context.Background(), intruder, result.Purchase.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestConfirmPaymentUnknownPurchase(t *testing.T) {
	engine := newTestEngine(&fakeOracle{snapshot: snapshotFixture()}, &fakeLedger{}, &fakePublisher{})

	_, err := engine.ConfirmPayment(context.Background(), buyer(), uuid.New())
	assert.ErrorIs(t, err, ErrPurchaseNotFound)
}

func TestConfirmPaymentSurvivesEventLookupFailure(t *testing.T) {
	oracle := &fakeOracle{snapshot: snapshotFixture()}
	store := &fakeLedger{}
	publisher := &fakePublisher{}
	engine := newTestEngine(oracle, store, publisher)

	identity := buyer()
	result, err := engine.Purchase(context.Background(), identity, 1, 1)
	require.NoError(t, err)

	oracle.mu.Lock()
	oracle.err = &clients.TransientError{Op: "fetching event"}
	oracle.mu.Unlock()

	paid, err := engine.ConfirmPayment(context.Background(), identity, result.Purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, paid.Purchase.Status)
}

func TestNotificationEnrichedFromDirectory(t *testing.T) {
	oracle := &fakeOracle{snapshot: snapshotFixture()}
	publisher := &fakePublisher{}
	engine := NewEngine(EngineProperty{
		Oracle: oracle,
		Directory: &fakeDirectory{profile: &clients.UserProfile{
			ID:    "buyer-a",
			Email: "directory@example.com",
			Name:  "Directory Name",
		}},
		Ledger:    &fakeLedger{},
		Publisher: publisher,
	})

	_, err := engine.Purchase(context.Background(), buyer(), 1, 1)
	require.NoError(t, err)

	require.Equal(t, 1, publisher.count())
	envelope := publisher.envelopes[0]
	assert.Equal(t, notify.TypePaymentConfirmed, envelope.Type)
	assert.Equal(t, "directory@example.com", envelope.Data.User.Email)
	assert.Equal(t, "Directory Name", envelope.Data.User.Name)
	assert.Equal(t, "Concert", envelope.Data.Event.Name)
	assert.Equal(t, float64(10), envelope.Data.Total)
}
