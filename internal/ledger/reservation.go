package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"food_rescue/internal/model"
)

type CreateReservationRequest struct {
	ListingID   uint
	RecipientID uint
	Quantity    int64
	PickupTime  time.Time
	Notes       string
}

// CreateReservation takes req.Quantity from the listing and records a
// PENDING reservation carrying a copy of the listing's pickup window and
// expiration.
func (t *Tx) CreateReservation(req CreateReservationRequest, auth Authorizer) (*model.Reservation, error) {
	l, err := t.loadListing(req.ListingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, l, nil); err != nil {
		return nil, err
	}

	switch {
	case l.Status == model.ListingExpired || (l.Status.Open() && l.ExpiredAt(t.now)):
		return nil, fmt.Errorf("%w: listing %d expired at %s", ErrExpired, l.ID, l.ExpirationDate.Format(time.RFC3339))
	case !l.Status.Open():
		return nil, fmt.Errorf("%w: listing %d is %s", ErrInvalidStateTransition, l.ID, l.Status)
	}

	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %d must be positive", ErrInvalidQuantity, req.Quantity)
	}

	pickup := req.PickupTime.UTC()
	if pickup.Before(t.now) {
		return nil, fmt.Errorf("%w: pickup time %s is in the past", ErrInvalidPickupTime, pickup.Format(time.RFC3339))
	}
	if !l.InPickupWindow(pickup) {
		return nil, fmt.Errorf("%w: pickup time %s outside window %s - %s", ErrInvalidPickupTime,
			pickup.Format(time.RFC3339), l.PickupWindowStart.Format(time.RFC3339), l.PickupWindowEnd.Format(time.RFC3339))
	}
	if pickup.After(l.ExpirationDate) {
		return nil, fmt.Errorf("%w: pickup time %s is after the listing expires at %s", ErrInvalidPickupTime,
			pickup.Format(time.RFC3339), l.ExpirationDate.Format(time.RFC3339))
	}

	if err := t.Reserve(l, req.Quantity); err != nil {
		return nil, err
	}

	r := &model.Reservation{
		ListingID:         l.ID,
		RecipientID:       req.RecipientID,
		QuantityReserved:  req.Quantity,
		Status:            model.ReservationPending,
		Notes:             req.Notes,
		PickupTime:        pickup,
		PickupWindowStart: l.PickupWindowStart,
		PickupWindowEnd:   l.PickupWindowEnd,
		ExpirationTime:    l.ExpirationDate,
	}
	if err := t.db.Create(r).Error; err != nil {
		return nil, fmt.Errorf("insert reservation on listing %d: %w", l.ID, err)
	}
	t.record(r, "", model.ReservationPending)
	return r, nil
}

// Confirm moves a PENDING reservation to CONFIRMED. An overdue pending
// reservation is rejected with ErrExpired; it has to be expired instead.
func (t *Tx) Confirm(id uint, auth Authorizer) (*model.Reservation, error) {
	r, l, err := t.loadReservation(id)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, l, r); err != nil {
		return nil, err
	}
	if r.Status != model.ReservationPending {
		return nil, fmt.Errorf("%w: cannot confirm reservation %d in status %s", ErrInvalidStateTransition, r.ID, r.Status)
	}
	if r.ExpiredAt(t.now) {
		return nil, fmt.Errorf("%w: reservation %d expired at %s", ErrExpired, r.ID, r.ExpirationTime.Format(time.RFC3339))
	}
	if err := t.transition(r, model.ReservationConfirmed, nil); err != nil {
		return nil, err
	}
	return r, nil
}

// Complete records the pickup of a CONFIRMED reservation. Its quantity stays
// taken. The listing only becomes COMPLETED once nothing is left on it and no
// reservation is still waiting for pickup.
func (t *Tx) Complete(id uint, auth Authorizer) (*model.Reservation, error) {
	r, l, err := t.loadReservation(id)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, l, r); err != nil {
		return nil, err
	}
	if r.Status != model.ReservationConfirmed {
		return nil, fmt.Errorf("%w: cannot complete reservation %d in status %s", ErrInvalidStateTransition, r.ID, r.Status)
	}
	if r.ExpiredAt(t.now) {
		return nil, fmt.Errorf("%w: reservation %d expired at %s", ErrExpired, r.ID, r.ExpirationTime.Format(time.RFC3339))
	}
	if !r.InPickupWindow(t.now) {
		return nil, fmt.Errorf("%w: pickup at %s outside window %s - %s", ErrInvalidPickupTime,
			t.now.Format(time.RFC3339), r.PickupWindowStart.Format(time.RFC3339), r.PickupWindowEnd.Format(time.RFC3339))
	}

	now := t.now
	if err := t.transition(r, model.ReservationCompleted, map[string]any{"actual_pickup_time": now}); err != nil {
		return nil, err
	}
	r.ActualPickupTime = &now

	if err := t.MarkCompleted(l); err != nil && !errors.Is(err, ErrInvalidStateTransition) {
		return nil, err
	}
	return r, nil
}

// Cancel ends a PENDING or CONFIRMED reservation and refunds its quantity.
func (t *Tx) Cancel(id uint, auth Authorizer) (*model.Reservation, error) {
	r, l, err := t.loadReservation(id)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, l, r); err != nil {
		return nil, err
	}
	if err := t.release(r, l, model.ReservationCancelled); err != nil {
		return nil, err
	}
	return r, nil
}

// CheckExpiration expires an active reservation whose expiration time has
// passed, refunding exactly like Cancel.
func (t *Tx) CheckExpiration(id uint, auth Authorizer) (*model.Reservation, error) {
	r, l, err := t.loadReservation(id)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, l, r); err != nil {
		return nil, err
	}
	if !r.Status.Active() {
		return nil, fmt.Errorf("%w: reservation %d is %s", ErrInvalidStateTransition, r.ID, r.Status)
	}
	if !r.ExpiredAt(t.now) {
		return nil, fmt.Errorf("%w: reservation %d does not expire until %s", ErrInvalidStateTransition, r.ID, r.ExpirationTime.Format(time.RFC3339))
	}
	if err := t.release(r, l, model.ReservationExpired); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdatePickupTime reschedules a PENDING reservation inside its pickup window.
func (t *Tx) UpdatePickupTime(id uint, newTime time.Time, auth Authorizer) (*model.Reservation, error) {
	r, l, err := t.loadReservation(id)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, l, r); err != nil {
		return nil, err
	}
	if r.Status != model.ReservationPending {
		return nil, fmt.Errorf("%w: cannot reschedule reservation %d in status %s", ErrInvalidStateTransition, r.ID, r.Status)
	}
	if r.ExpiredAt(t.now) {
		return nil, fmt.Errorf("%w: reservation %d expired at %s", ErrExpired, r.ID, r.ExpirationTime.Format(time.RFC3339))
	}

	pickup := newTime.UTC()
	if pickup.Before(t.now) || !r.InPickupWindow(pickup) {
		return nil, fmt.Errorf("%w: pickup time %s outside window %s - %s", ErrInvalidPickupTime,
			pickup.Format(time.RFC3339), r.PickupWindowStart.Format(time.RFC3339), r.PickupWindowEnd.Format(time.RFC3339))
	}
	if pickup.After(r.ExpirationTime) {
		return nil, fmt.Errorf("%w: pickup time %s is after the reservation expires at %s", ErrInvalidPickupTime,
			pickup.Format(time.RFC3339), r.ExpirationTime.Format(time.RFC3339))
	}

	res := t.db.Model(&model.Reservation{}).
		Where("id = ? AND status = ?", r.ID, model.ReservationPending).
		Update("pickup_time", pickup)
	if res.Error != nil {
		return nil, fmt.Errorf("update pickup time of reservation %d: %w", r.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: reservation %d is no longer %s", ErrInvalidStateTransition, r.ID, model.ReservationPending)
	}
	r.PickupTime = pickup
	return r, nil
}

// GetReservation loads a reservation, expiring it first when it is overdue.
func (t *Tx) GetReservation(id uint, auth Authorizer) (*model.Reservation, error) {
	r, l, err := t.loadReservation(id)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, l, r); err != nil {
		return nil, err
	}
	if r.Status.Active() && r.ExpiredAt(t.now) {
		if err := t.release(r, l, model.ReservationExpired); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (l *Ledger) CreateReservation(ctx context.Context, req CreateReservationRequest, auth Authorizer) (*model.Reservation, error) {
	var out *model.Reservation
	err := l.Atomically(ctx, func(tx *Tx) error {
		r, err := tx.CreateReservation(req, auth)
		out = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) Confirm(ctx context.Context, id uint, auth Authorizer) (*model.Reservation, error) {
	return l.reservationOp(ctx, func(tx *Tx) (*model.Reservation, error) { return tx.Confirm(id, auth) })
}

func (l *Ledger) Complete(ctx context.Context, id uint, auth Authorizer) (*model.Reservation, error) {
	return l.reservationOp(ctx, func(tx *Tx) (*model.Reservation, error) { return tx.Complete(id, auth) })
}

func (l *Ledger) Cancel(ctx context.Context, id uint, auth Authorizer) (*model.Reservation, error) {
	return l.reservationOp(ctx, func(tx *Tx) (*model.Reservation, error) { return tx.Cancel(id, auth) })
}

func (l *Ledger) CheckExpiration(ctx context.Context, id uint, auth Authorizer) (*model.Reservation, error) {
	return l.reservationOp(ctx, func(tx *Tx) (*model.Reservation, error) { return tx.CheckExpiration(id, auth) })
}

func (l *Ledger) UpdatePickupTime(ctx context.Context, id uint, newTime time.Time, auth Authorizer) (*model.Reservation, error) {
	return l.reservationOp(ctx, func(tx *Tx) (*model.Reservation, error) { return tx.UpdatePickupTime(id, newTime, auth) })
}

func (l *Ledger) GetReservation(ctx context.Context, id uint, auth Authorizer) (*model.Reservation, error) {
	return l.reservationOp(ctx, func(tx *Tx) (*model.Reservation, error) { return tx.GetReservation(id, auth) })
}

func (l *Ledger) reservationOp(ctx context.Context, op func(tx *Tx) (*model.Reservation, error)) (*model.Reservation, error) {
	var out *model.Reservation
	err := l.Atomically(ctx, func(tx *Tx) error {
		r, err := op(tx)
		out = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
