package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"food_rescue/internal/ledger"
	"food_rescue/internal/model"
	"food_rescue/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.StatusChangeEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, evt model.StatusChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return n.err
}

func (n *recordingNotifier) Events() []model.StatusChangeEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.StatusChangeEvent(nil), n.events...)
}

type fixture struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	clock    *fakeClock
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(storage.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	f := &fixture{
		db:       db,
		clock:    &fakeClock{now: baseTime},
		notifier: &recordingNotifier{},
	}
	f.ledger = ledger.New(db, ledger.WithClock(f.clock.Now), ledger.WithNotifier(f.notifier))
	return f
}

// listing creates an AVAILABLE listing expiring at T+24h with a T+1h..T+8h pickup window.
func (f *fixture) listing(t *testing.T, quantity int64) *model.FoodListing {
	t.Helper()
	l, err := f.ledger.CreateListing(context.Background(), ledger.NewListing{
		ProviderID:        7,
		Title:             "Day-old bread",
		Unit:              "loaf",
		Quantity:          quantity,
		ExpirationDate:    baseTime.Add(24 * time.Hour),
		PickupWindowStart: baseTime.Add(1 * time.Hour),
		PickupWindowEnd:   baseTime.Add(8 * time.Hour),
	}, nil)
	require.NoError(t, err)
	return l
}

func (f *fixture) reserve(listingID uint, recipientID uint, q int64) (*model.Reservation, error) {
	return f.ledger.CreateReservation(context.Background(), ledger.CreateReservationRequest{
		ListingID:   listingID,
		RecipientID: recipientID,
		Quantity:    q,
		PickupTime:  baseTime.Add(2 * time.Hour),
	}, nil)
}

func (f *fixture) mustReserve(t *testing.T, listingID uint, q int64) *model.Reservation {
	t.Helper()
	r, err := f.reserve(listingID, 42, q)
	require.NoError(t, err)
	return r
}

func (f *fixture) reload(t *testing.T, id uint) model.FoodListing {
	t.Helper()
	var l model.FoodListing
	require.NoError(t, f.db.First(&l, id).Error)
	return l
}

// assertBalanced checks available = quantity - Σ(PENDING, CONFIRMED, COMPLETED).
func (f *fixture) assertBalanced(t *testing.T, id uint) {
	t.Helper()
	l := f.reload(t, id)

	var taken int64
	require.NoError(t, f.db.Model(&model.Reservation{}).
		Select("COALESCE(SUM(quantity_reserved), 0)").
		Where("listing_id = ? AND status IN ?", id,
			[]model.ReservationStatus{model.ReservationPending, model.ReservationConfirmed, model.ReservationCompleted}).
		Scan(&taken).Error)

	assert.Equal(t, l.Quantity-taken, l.AvailableQuantity, "available must equal quantity minus taken")
	assert.GreaterOrEqual(t, l.AvailableQuantity, int64(0))
	assert.LessOrEqual(t, l.AvailableQuantity, l.Quantity)

	b, err := f.ledger.ListingBalance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, b.Quantity, b.Available+b.Held+b.PickedUp)
}

func TestAtomically_RollsBackOnError(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 10)
	boom := errors.New("boom")

	err := f.ledger.Atomically(context.Background(), func(tx *ledger.Tx) error {
		_, err := tx.CreateReservation(ledger.CreateReservationRequest{
			ListingID:   l.ID,
			RecipientID: 1,
			Quantity:    4,
			PickupTime:  baseTime.Add(2 * time.Hour),
		}, nil)
		require.NoError(t, err)
		assert.Len(t, tx.Events(), 1)
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, int64(10), f.reload(t, l.ID).AvailableQuantity)
	var count int64
	require.NoError(t, f.db.Model(&model.Reservation{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, f.notifier.Events(), "no event may leave a rolled back unit of work")
}

func TestAtomically_SeveralOperationsCommitTogether(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 10)

	err := f.ledger.Atomically(context.Background(), func(tx *ledger.Tx) error {
		r, err := tx.CreateReservation(ledger.CreateReservationRequest{
			ListingID: l.ID, RecipientID: 1, Quantity: 3, PickupTime: baseTime.Add(2 * time.Hour),
		}, nil)
		if err != nil {
			return err
		}
		_, err = tx.Confirm(r.ID, nil)
		return err
	})
	require.NoError(t, err)

	events := f.notifier.Events()
	require.Len(t, events, 2)
	assert.Equal(t, model.ReservationStatus(""), events[0].OldStatus)
	assert.Equal(t, model.ReservationPending, events[0].NewStatus)
	assert.Equal(t, model.ReservationPending, events[1].OldStatus)
	assert.Equal(t, model.ReservationConfirmed, events[1].NewStatus)
	assert.Equal(t, uint(1), events[1].RecipientID)
	assert.Equal(t, baseTime, events[1].Timestamp)
	assert.NotEqual(t, events[0].EventID, events[1].EventID)
}

func TestNotifierFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	l := f.listing(t, 5)

	r, err := f.reserve(l.ID, 1, 2)
	require.NoError(t, err)

	var stored model.Reservation
	require.NoError(t, f.db.First(&stored, r.ID).Error)
	assert.Equal(t, model.ReservationPending, stored.Status)
	assert.Equal(t, int64(3), f.reload(t, l.ID).AvailableQuantity)
	assert.Len(t, f.notifier.Events(), 1)
}

func TestNotifierFunc(t *testing.T) {
	var got model.StatusChangeEvent
	n := ledger.NotifierFunc(func(_ context.Context, evt model.StatusChangeEvent) error {
		got = evt
		return nil
	})
	require.NoError(t, n.Notify(context.Background(), model.StatusChangeEvent{EventID: "e1"}))
	assert.Equal(t, "e1", got.EventID)
}

func TestAuthorizerRejection(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 5)
	r := f.mustReserve(t, l.ID, 2)

	deny := func(*model.FoodListing, *model.Reservation) error { return errors.New("not your listing") }

	_, err := f.ledger.Confirm(context.Background(), r.ID, deny)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Contains(t, err.Error(), "not your listing")

	_, err = f.ledger.Cancel(context.Background(), r.ID, deny)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Equal(t, int64(3), f.reload(t, l.ID).AvailableQuantity)

	var seen *model.Reservation
	allow := func(_ *model.FoodListing, res *model.Reservation) error {
		seen = res
		return nil
	}
	_, err = f.ledger.Cancel(context.Background(), r.ID, allow)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, r.ID, seen.ID)
}

func TestAuthorizerOnCreateListingAndCheckExpiration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deny := func(*model.FoodListing, *model.Reservation) error { return errors.New("read only") }

	var seenProvider uint
	in := ledger.NewListing{
		ProviderID:        9,
		Title:             "Soup",
		Quantity:          4,
		ExpirationDate:    baseTime.Add(24 * time.Hour),
		PickupWindowStart: baseTime.Add(time.Hour),
		PickupWindowEnd:   baseTime.Add(8 * time.Hour),
	}
	_, err := f.ledger.CreateListing(ctx, in, deny)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	var count int64
	require.NoError(t, f.db.Model(&model.FoodListing{}).Count(&count).Error)
	assert.Zero(t, count)

	l, err := f.ledger.CreateListing(ctx, in, func(fl *model.FoodListing, _ *model.Reservation) error {
		seenProvider = fl.ProviderID
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint(9), seenProvider)

	r := f.mustReserve(t, l.ID, 1)
	f.clock.Set(r.ExpirationTime.Add(time.Minute))
	_, err = f.ledger.CheckExpiration(ctx, r.ID, deny)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	var stored model.Reservation
	require.NoError(t, f.db.First(&stored, r.ID).Error)
	assert.Equal(t, model.ReservationPending, stored.Status)
}

func TestReason(t *testing.T) {
	cases := map[error]string{
		fmt.Errorf("%w: x", ledger.ErrNotFound):               "not_found",
		fmt.Errorf("%w: x", ledger.ErrInvalidQuantity):        "invalid_quantity",
		fmt.Errorf("%w: x", ledger.ErrInvalidPickupTime):      "invalid_pickup_time",
		fmt.Errorf("%w: x", ledger.ErrInvalidStateTransition): "invalid_state_transition",
		fmt.Errorf("%w: x", ledger.ErrExpired):                "expired",
		fmt.Errorf("%w: x", ledger.ErrUnauthorized):           "unauthorized",
		fmt.Errorf("%w: x", ledger.ErrInvalidInput):           "invalid_input",
		errors.New("disk full"):                                "internal",
	}
	for err, want := range cases {
		assert.Equal(t, want, ledger.Reason(err), err.Error())
	}
	assert.False(t, ledger.IsRejection(nil))
	assert.False(t, ledger.IsRejection(errors.New("disk full")))
	assert.True(t, ledger.IsRejection(ledger.ErrExpired))
}
