package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"food_rescue/internal/model"
)

type NewListing struct {
	ProviderID           uint
	DistributionCenterID *uint
	Title                string
	Description          string
	Unit                 string
	Quantity             int64
	ExpirationDate       time.Time
	PickupWindowStart    time.Time
	PickupWindowEnd      time.Time
	// Draft listings start PENDING and must be published before they can be reserved.
	Draft bool
}

// ListingUpdate lists the only fields a provider may edit after creation.
// Nil fields are left untouched. Quantities are never editable.
type ListingUpdate struct {
	Title                *string
	Description          *string
	Unit                 *string
	DistributionCenterID *uint
	ExpirationDate       *time.Time
	PickupWindowStart    *time.Time
	PickupWindowEnd      *time.Time
}

func (t *Tx) validateSchedule(expiration, start, end time.Time) error {
	if !start.Before(end) {
		return fmt.Errorf("%w: pickup window start %s must be before end %s", ErrInvalidPickupTime,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if !expiration.After(t.now) {
		return fmt.Errorf("%w: expiration %s is not in the future", ErrExpired, expiration.Format(time.RFC3339))
	}
	return nil
}

// CreateListing inserts a listing. auth sees the listing before it is stored.
func (t *Tx) CreateListing(in NewListing, auth Authorizer) (*model.FoodListing, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.ProviderID == 0 {
		return nil, fmt.Errorf("%w: provider is required", ErrInvalidInput)
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %d must be positive", ErrInvalidQuantity, in.Quantity)
	}
	exp, start, end := in.ExpirationDate.UTC(), in.PickupWindowStart.UTC(), in.PickupWindowEnd.UTC()
	if err := t.validateSchedule(exp, start, end); err != nil {
		return nil, err
	}

	status := model.ListingAvailable
	if in.Draft {
		status = model.ListingPending
	}
	l := &model.FoodListing{
		ProviderID:           in.ProviderID,
		DistributionCenterID: in.DistributionCenterID,
		Title:                title,
		Description:          in.Description,
		Unit:                 in.Unit,
		Quantity:             in.Quantity,
		AvailableQuantity:    in.Quantity,
		Status:               status,
		ExpirationDate:       exp,
		PickupWindowStart:    start,
		PickupWindowEnd:      end,
	}
	if err := authorize(auth, l, nil); err != nil {
		return nil, err
	}
	if err := t.db.Create(l).Error; err != nil {
		return nil, fmt.Errorf("insert listing: %w", err)
	}
	return l, nil
}

// PublishListing opens a draft listing for reservations.
func (t *Tx) PublishListing(id uint, auth Authorizer) (*model.FoodListing, error) {
	l, err := t.loadListing(id)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, l, nil); err != nil {
		return nil, err
	}
	if l.Status != model.ListingPending {
		return nil, fmt.Errorf("%w: cannot publish listing %d in status %s", ErrInvalidStateTransition, l.ID, l.Status)
	}
	if l.ExpiredAt(t.now) {
		return nil, fmt.Errorf("%w: listing %d expired at %s", ErrExpired, l.ID, l.ExpirationDate.Format(time.RFC3339))
	}
	if err := t.setListingStatus(l, model.ListingAvailable, model.ListingPending); err != nil {
		return nil, err
	}
	return l, nil
}

func (t *Tx) UpdateListing(id uint, upd ListingUpdate, auth Authorizer) (*model.FoodListing, error) {
	l, err := t.loadListing(id)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, l, nil); err != nil {
		return nil, err
	}
	if l.Status.Terminal() {
		return nil, fmt.Errorf("%w: listing %d is %s", ErrInvalidStateTransition, l.ID, l.Status)
	}

	changes := map[string]any{}
	if upd.Title != nil {
		title := strings.TrimSpace(*upd.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
		}
		changes["title"] = title
	}
	if upd.Description != nil {
		changes["description"] = *upd.Description
	}
	if upd.Unit != nil {
		changes["unit"] = *upd.Unit
	}
	if upd.DistributionCenterID != nil {
		changes["distribution_center_id"] = *upd.DistributionCenterID
	}

	exp, start, end := l.ExpirationDate, l.PickupWindowStart, l.PickupWindowEnd
	if upd.ExpirationDate != nil {
		exp = upd.ExpirationDate.UTC()
		changes["expiration_date"] = exp
	}
	if upd.PickupWindowStart != nil {
		start = upd.PickupWindowStart.UTC()
		changes["pickup_window_start"] = start
	}
	if upd.PickupWindowEnd != nil {
		end = upd.PickupWindowEnd.UTC()
		changes["pickup_window_end"] = end
	}
	if upd.ExpirationDate != nil || upd.PickupWindowStart != nil || upd.PickupWindowEnd != nil {
		if err := t.validateSchedule(exp, start, end); err != nil {
			return nil, err
		}
	}
	if len(changes) == 0 {
		return l, nil
	}

	if err := t.db.Model(&model.FoodListing{}).Where("id = ?", l.ID).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("update listing %d: %w", l.ID, err)
	}
	if err := t.reload(l); err != nil {
		return nil, err
	}
	return l, nil
}

// WithdrawListing cancels the listing on the provider's behalf. Active
// reservations are cancelled first so their quantity is refunded before the
// listing becomes final.
func (t *Tx) WithdrawListing(id uint, auth Authorizer) (*model.FoodListing, error) {
	l, err := t.loadListing(id)
	if err != nil {
		return nil, err
	}
	if err := authorize(auth, l, nil); err != nil {
		return nil, err
	}
	if l.Status != model.ListingPending && !l.Status.Open() {
		return nil, fmt.Errorf("%w: cannot withdraw listing %d in status %s", ErrInvalidStateTransition, l.ID, l.Status)
	}
	if err := t.releaseAll(l, model.ReservationCancelled); err != nil {
		return nil, err
	}
	if err := t.setListingStatus(l, model.ListingCancelled, l.Status); err != nil {
		return nil, err
	}
	return l, nil
}

// DeleteListing removes a listing and its reservation history. It refuses
// while any reservation still holds quantity.
func (t *Tx) DeleteListing(id uint, auth Authorizer) error {
	l, err := t.loadListing(id)
	if err != nil {
		return err
	}
	if err := authorize(auth, l, nil); err != nil {
		return err
	}
	active, err := t.activeReservations(l.ID)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return fmt.Errorf("%w: listing %d has %d active reservations", ErrInvalidStateTransition, l.ID, len(active))
	}
	if err := t.db.Where("listing_id = ?", l.ID).Delete(&model.Reservation{}).Error; err != nil {
		return fmt.Errorf("delete reservations of listing %d: %w", l.ID, err)
	}
	if err := t.db.Delete(&model.FoodListing{}, l.ID).Error; err != nil {
		return fmt.Errorf("delete listing %d: %w", l.ID, err)
	}
	return nil
}

// MarkExpired closes an open listing whose expiration has passed. Its active
// reservations share the same expiration, so they are expired and refunded
// first; afterwards the listing's quantity never changes again.
func (t *Tx) MarkExpired(l *model.FoodListing) error {
	if !l.Status.Open() {
		return fmt.Errorf("%w: cannot expire listing %d in status %s", ErrInvalidStateTransition, l.ID, l.Status)
	}
	if !l.ExpiredAt(t.now) {
		return fmt.Errorf("%w: listing %d does not expire until %s", ErrInvalidStateTransition, l.ID, l.ExpirationDate.Format(time.RFC3339))
	}
	if err := t.releaseAll(l, model.ReservationExpired); err != nil {
		return err
	}
	return t.setListingStatus(l, model.ListingExpired, l.Status)
}

// MarkCompleted closes a listing whose whole quantity has been picked up:
// nothing available, nothing waiting for pickup, at least one completed pickup.
func (t *Tx) MarkCompleted(l *model.FoodListing) error {
	if l.Status != model.ListingReserved || l.AvailableQuantity != 0 {
		return fmt.Errorf("%w: listing %d (%s, %d available) is not fully taken", ErrInvalidStateTransition, l.ID, l.Status, l.AvailableQuantity)
	}
	active, err := t.activeReservations(l.ID)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return fmt.Errorf("%w: listing %d still has %d reservations awaiting pickup", ErrInvalidStateTransition, l.ID, len(active))
	}
	var completed int64
	if err := t.db.Model(&model.Reservation{}).
		Where("listing_id = ? AND status = ?", l.ID, model.ReservationCompleted).
		Count(&completed).Error; err != nil {
		return fmt.Errorf("count completed reservations of listing %d: %w", l.ID, err)
	}
	if completed == 0 {
		return fmt.Errorf("%w: listing %d has no completed pickups", ErrInvalidStateTransition, l.ID)
	}
	return t.setListingStatus(l, model.ListingCompleted, model.ListingReserved)
}

// GetListing loads a listing, expiring it first when it is overdue.
func (t *Tx) GetListing(id uint) (*model.FoodListing, error) {
	l, err := t.loadListing(id)
	if err != nil {
		return nil, err
	}
	if l.Status.Open() && l.ExpiredAt(t.now) {
		if err := t.MarkExpired(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (t *Tx) releaseAll(l *model.FoodListing, to model.ReservationStatus) error {
	active, err := t.activeReservations(l.ID)
	if err != nil {
		return err
	}
	for i := range active {
		if err := t.release(&active[i], l, to); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) setListingStatus(l *model.FoodListing, to, from model.ListingStatus) error {
	res := t.db.Model(&model.FoodListing{}).
		Where("id = ? AND status = ?", l.ID, from).
		Update("status", to)
	if res.Error != nil {
		return fmt.Errorf("listing %d %s -> %s: %w", l.ID, from, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: listing %d is no longer %s", ErrInvalidStateTransition, l.ID, from)
	}
	l.Status = to
	return nil
}

func (l *Ledger) CreateListing(ctx context.Context, in NewListing, auth Authorizer) (*model.FoodListing, error) {
	return l.listingOp(ctx, func(tx *Tx) (*model.FoodListing, error) { return tx.CreateListing(in, auth) })
}

func (l *Ledger) PublishListing(ctx context.Context, id uint, auth Authorizer) (*model.FoodListing, error) {
	return l.listingOp(ctx, func(tx *Tx) (*model.FoodListing, error) { return tx.PublishListing(id, auth) })
}

func (l *Ledger) UpdateListing(ctx context.Context, id uint, upd ListingUpdate, auth Authorizer) (*model.FoodListing, error) {
	return l.listingOp(ctx, func(tx *Tx) (*model.FoodListing, error) { return tx.UpdateListing(id, upd, auth) })
}

func (l *Ledger) WithdrawListing(ctx context.Context, id uint, auth Authorizer) (*model.FoodListing, error) {
	return l.listingOp(ctx, func(tx *Tx) (*model.FoodListing, error) { return tx.WithdrawListing(id, auth) })
}

func (l *Ledger) GetListing(ctx context.Context, id uint) (*model.FoodListing, error) {
	return l.listingOp(ctx, func(tx *Tx) (*model.FoodListing, error) { return tx.GetListing(id) })
}

func (l *Ledger) DeleteListing(ctx context.Context, id uint, auth Authorizer) error {
	return l.Atomically(ctx, func(tx *Tx) error { return tx.DeleteListing(id, auth) })
}

func (l *Ledger) listingOp(ctx context.Context, op func(tx *Tx) (*model.FoodListing, error)) (*model.FoodListing, error) {
	var out *model.FoodListing
	err := l.Atomically(ctx, func(tx *Tx) error {
		fl, err := op(tx)
		out = fl
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
