package ledger_test

import (
	"context"
	"testing"
	"time"

	"food_rescue/internal/ledger"
	"food_rescue/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	due := f.listing(t, 5)
	dueRes := f.mustReserve(t, due.ID, 2)

	in := validListing()
	in.ExpirationDate = baseTime.Add(72 * time.Hour)
	fresh, err := f.ledger.CreateListing(ctx, in, nil)
	require.NoError(t, err)
	freshRes := f.mustReserve(t, fresh.ID, 1)

	res, err := f.ledger.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.SweepResult{}, res)

	f.clock.Set(baseTime.Add(25 * time.Hour))
	res, err = f.ledger.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.SweepResult{Listings: 1}, res, "reservations of an expired listing go with it")

	assert.Equal(t, model.ListingExpired, f.reload(t, due.ID).Status)
	assert.Equal(t, int64(5), f.reload(t, due.ID).AvailableQuantity)
	var r model.Reservation
	require.NoError(t, f.db.First(&r, dueRes.ID).Error)
	assert.Equal(t, model.ReservationExpired, r.Status)

	var untouched model.Reservation
	require.NoError(t, f.db.First(&untouched, freshRes.ID).Error)
	assert.Equal(t, model.ReservationPending, untouched.Status)
	assert.Equal(t, model.ListingAvailable, f.reload(t, fresh.ID).Status)

	res, err = f.ledger.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.SweepResult{}, res)
}

func TestSweepExpired_OrphanReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.listing(t, 5)
	r := f.mustReserve(t, l.ID, 2)

	// The provider pushed the listing's expiration out after the
	// reservation copied the original one.
	later := baseTime.Add(96 * time.Hour)
	_, err := f.ledger.UpdateListing(ctx, l.ID, ledger.ListingUpdate{ExpirationDate: &later}, nil)
	require.NoError(t, err)

	f.clock.Set(baseTime.Add(25 * time.Hour))
	res, err := f.ledger.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.SweepResult{Reservations: 1}, res)

	var stored model.Reservation
	require.NoError(t, f.db.First(&stored, r.ID).Error)
	assert.Equal(t, model.ReservationExpired, stored.Status)
	got := f.reload(t, l.ID)
	assert.Equal(t, int64(5), got.AvailableQuantity)
	assert.Equal(t, model.ListingAvailable, got.Status)
}

func TestSweepExpired_CompletesPickedUpListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done := f.listing(t, 4)
	picked := f.mustReserve(t, done.ID, 4)
	_, err := f.ledger.Confirm(ctx, picked.ID, nil)
	require.NoError(t, err)
	// Last pickup committed without promoting the listing, as when two
	// completions on the same listing each still saw the other pending.
	require.NoError(t, f.db.Model(&model.Reservation{}).Where("id = ?", picked.ID).
		Updates(map[string]any{"status": model.ReservationCompleted, "actual_pickup_time": baseTime.Add(2 * time.Hour)}).Error)
	require.Equal(t, model.ListingReserved, f.reload(t, done.ID).Status)

	held := f.listing(t, 2)
	f.mustReserve(t, held.ID, 2)

	f.clock.Set(baseTime.Add(25 * time.Hour))
	res, err := f.ledger.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.SweepResult{Listings: 1, Completed: 1}, res)

	assert.Equal(t, model.ListingCompleted, f.reload(t, done.ID).Status, "a fully picked up listing is never reported expired")
	f.assertBalanced(t, done.ID)
	assert.Equal(t, model.ListingExpired, f.reload(t, held.ID).Status)

	res, err = f.ledger.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.SweepResult{}, res)
}

func TestSweeperStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	l := f.listing(t, 5)
	f.clock.Set(l.ExpirationDate.Add(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	s := ledger.NewSweeper(f.ledger, 10*time.Millisecond, zap.NewNop())
	s.Start(ctx)

	require.Eventually(t, func() bool {
		var got model.FoodListing
		return f.db.First(&got, l.ID).Error == nil && got.Status == model.ListingExpired
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestSweeperStop(t *testing.T) {
	f := newFixture(t)

	// Stop without Start returns at once.
	idle := ledger.NewSweeper(f.ledger, time.Hour, nil)
	idle.Stop()
	idle.Stop()

	s := ledger.NewSweeper(f.ledger, time.Hour, zap.NewNop())
	s.Start(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not end the running sweeper")
	}
}
