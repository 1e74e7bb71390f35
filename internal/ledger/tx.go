package ledger

import (
	"errors"
	"fmt"
	"time"

	"food_rescue/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Tx is the unit of work for one ledger call. It is only valid inside the
// function passed to Ledger.Atomically.
type Tx struct {
	db     *gorm.DB
	now    time.Time
	events []model.StatusChangeEvent

	// lockRows 为 true 时读清单加 FOR UPDATE，同一清单上的写操作串行执行。
	// SQLite 只有一个连接，本身就是串行的，也不支持该语法。
	lockRows bool
}

// Now is the instant every check in this unit of work is evaluated against.
func (t *Tx) Now() time.Time { return t.now }

// Events returns the status changes recorded so far.
func (t *Tx) Events() []model.StatusChangeEvent { return t.events }

// loadListing reads a listing and, where supported, holds its row lock until
// the unit of work ends. Every mutation of a listing or its reservations goes
// through here first, so decisions such as MarkCompleted see the others'
// committed writes.
func (t *Tx) loadListing(id uint) (*model.FoodListing, error) {
	q := t.db
	if t.lockRows {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var l model.FoodListing
	if err := q.First(&l, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: listing %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load listing %d: %w", id, err)
	}
	return &l, nil
}

func (t *Tx) loadReservation(id uint) (*model.Reservation, *model.FoodListing, error) {
	var r model.Reservation
	if err := t.db.First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: reservation %d", ErrNotFound, id)
		}
		return nil, nil, fmt.Errorf("load reservation %d: %w", id, err)
	}
	l, err := t.loadListing(r.ListingID)
	if err != nil {
		return nil, nil, err
	}
	return &r, l, nil
}

func (t *Tx) reload(l *model.FoodListing) error {
	fresh, err := t.loadListing(l.ID)
	if err != nil {
		return err
	}
	*l = *fresh
	return nil
}

// Reserve takes q units from the listing with a single guarded update, so
// two transactions can never both take the last units. The listing becomes
// RESERVED when its availability reaches zero. l is refreshed on success.
func (t *Tx) Reserve(l *model.FoodListing, q int64) error {
	if q <= 0 {
		return fmt.Errorf("%w: quantity %d must be positive", ErrInvalidQuantity, q)
	}
	res := t.db.Model(&model.FoodListing{}).
		Where("id = ? AND status = ? AND available_quantity >= ?", l.ID, model.ListingAvailable, q).
		Updates(map[string]any{
			"available_quantity": gorm.Expr("available_quantity - ?", q),
			"status":             gorm.Expr("CASE WHEN available_quantity - ? = 0 THEN ? ELSE status END", q, model.ListingReserved),
		})
	if res.Error != nil {
		return fmt.Errorf("reserve %d from listing %d: %w", q, l.ID, res.Error)
	}
	if err := t.reload(l); err != nil {
		return err
	}
	if res.RowsAffected == 1 {
		return nil
	}

	// Lost the race or the listing changed; classify from the fresh row.
	switch {
	case l.Status == model.ListingExpired:
		return fmt.Errorf("%w: listing %d", ErrExpired, l.ID)
	case l.Status == model.ListingReserved, l.Status == model.ListingAvailable:
		return fmt.Errorf("%w: requested %d, listing %d has %d available", ErrInvalidQuantity, q, l.ID, l.AvailableQuantity)
	default:
		return fmt.Errorf("%w: listing %d is %s", ErrInvalidStateTransition, l.ID, l.Status)
	}
}

// ReturnQuantity gives q units back to the listing. It never lets
// available_quantity exceed quantity. A RESERVED listing that is not past
// its expiration becomes AVAILABLE again. l is refreshed on success.
func (t *Tx) ReturnQuantity(l *model.FoodListing, q int64) error {
	if q <= 0 {
		return fmt.Errorf("%w: quantity %d must be positive", ErrInvalidQuantity, q)
	}
	updates := map[string]any{
		"available_quantity": gorm.Expr("available_quantity + ?", q),
	}
	if !l.ExpiredAt(t.now) {
		updates["status"] = gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END", model.ListingReserved, model.ListingAvailable)
	}
	res := t.db.Model(&model.FoodListing{}).
		Where("id = ? AND available_quantity + ? <= quantity", l.ID, q).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("return %d to listing %d: %w", q, l.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: returning %d would exceed quantity of listing %d", ErrInvalidQuantity, q, l.ID)
	}
	return t.reload(l)
}

// transition moves r from its current status to `to`, guarded on the
// current status so a concurrent duplicate transition affects no rows.
func (t *Tx) transition(r *model.Reservation, to model.ReservationStatus, extra map[string]any) error {
	from := r.Status
	updates := map[string]any{"status": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := t.db.Model(&model.Reservation{}).
		Where("id = ? AND status = ?", r.ID, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("reservation %d %s -> %s: %w", r.ID, from, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: reservation %d is no longer %s", ErrInvalidStateTransition, r.ID, from)
	}
	r.Status = to
	t.record(r, from, to)
	return nil
}

// release ends an active reservation as CANCELLED or EXPIRED and refunds
// its quantity to the listing.
func (t *Tx) release(r *model.Reservation, l *model.FoodListing, to model.ReservationStatus) error {
	if !r.Status.Active() {
		return fmt.Errorf("%w: reservation %d is %s", ErrInvalidStateTransition, r.ID, r.Status)
	}
	if err := t.transition(r, to, nil); err != nil {
		return err
	}
	return t.ReturnQuantity(l, r.QuantityReserved)
}

func (t *Tx) activeReservations(listingID uint) ([]model.Reservation, error) {
	var out []model.Reservation
	err := t.db.Where("listing_id = ? AND status IN ?", listingID, model.ActiveReservationStatuses).
		Order("id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("active reservations of listing %d: %w", listingID, err)
	}
	return out, nil
}

func (t *Tx) record(r *model.Reservation, from, to model.ReservationStatus) {
	t.events = append(t.events, model.StatusChangeEvent{
		EventID:       uuid.NewString(),
		ReservationID: r.ID,
		ListingID:     r.ListingID,
		RecipientID:   r.RecipientID,
		OldStatus:     from,
		NewStatus:     to,
		Timestamp:     t.now,
	})
}
