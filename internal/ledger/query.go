package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"food_rescue/internal/model"

	"gorm.io/gorm"
)

// MaxHorizonHours bounds how far ahead expiring-soon queries may look.
const MaxHorizonHours = 366 * 24

type ListingFilter struct {
	ProviderID           uint
	DistributionCenterID uint
	// ExpiringWithin keeps listings expiring within this duration from now; 0 disables.
	ExpiringWithin time.Duration
	MinAvailable   int64
	Limit          int
}

// ListAvailableListings returns AVAILABLE listings that have not expired yet,
// soonest expiration first.
func (l *Ledger) ListAvailableListings(ctx context.Context, f ListingFilter) ([]model.FoodListing, error) {
	if f.ExpiringWithin < 0 || f.ExpiringWithin > MaxHorizonHours*time.Hour {
		return nil, fmt.Errorf("%w: expiring window must be between 0 and %d hours", ErrInvalidInput, MaxHorizonHours)
	}
	now := l.now().UTC()
	q := l.db.WithContext(ctx).
		Where("status = ? AND expiration_date > ?", model.ListingAvailable, now)
	if f.ProviderID != 0 {
		q = q.Where("provider_id = ?", f.ProviderID)
	}
	if f.DistributionCenterID != 0 {
		q = q.Where("distribution_center_id = ?", f.DistributionCenterID)
	}
	if f.ExpiringWithin > 0 {
		q = q.Where("expiration_date <= ?", now.Add(f.ExpiringWithin))
	}
	if f.MinAvailable > 0 {
		q = q.Where("available_quantity >= ?", f.MinAvailable)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var out []model.FoodListing
	if err := q.Order("expiration_date, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list available listings: %w", err)
	}
	return out, nil
}

// ListExpiringSoon returns available listings expiring within the given hours.
func (l *Ledger) ListExpiringSoon(ctx context.Context, hours int) ([]model.FoodListing, error) {
	if hours <= 0 || hours > MaxHorizonHours {
		return nil, fmt.Errorf("%w: hours must be between 1 and %d", ErrInvalidInput, MaxHorizonHours)
	}
	return l.ListAvailableListings(ctx, ListingFilter{ExpiringWithin: time.Duration(hours) * time.Hour})
}

// ListRecipientReservations returns a recipient's reservations, latest pickup
// first, optionally narrowed to one status.
func (l *Ledger) ListRecipientReservations(ctx context.Context, recipientID uint, status model.ReservationStatus) ([]model.Reservation, error) {
	q := l.db.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if status != "" {
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown reservation status %q", ErrInvalidInput, status)
		}
		q = q.Where("status = ?", status)
	}
	var out []model.Reservation
	if err := q.Order("pickup_time DESC, id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list reservations of recipient %d: %w", recipientID, err)
	}
	return out, nil
}

func (l *Ledger) ListPendingReservations(ctx context.Context) ([]model.Reservation, error) {
	var out []model.Reservation
	err := l.db.WithContext(ctx).
		Where("status = ?", model.ReservationPending).
		Order("pickup_time, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list pending reservations: %w", err)
	}
	return out, nil
}

// Balance breaks a listing's quantity down by where it currently sits.
// Available + Held + PickedUp always equals Quantity.
type Balance struct {
	ListingID uint                `json:"listing_id"`
	Status    model.ListingStatus `json:"status"`
	Quantity  int64               `json:"quantity"`
	Available int64               `json:"available"`
	Held      int64               `json:"held"`
	PickedUp  int64               `json:"picked_up"`
}

func (l *Ledger) ListingBalance(ctx context.Context, id uint) (Balance, error) {
	db := l.db.WithContext(ctx)

	var fl model.FoodListing
	if err := db.First(&fl, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Balance{}, fmt.Errorf("%w: listing %d", ErrNotFound, id)
		}
		return Balance{}, fmt.Errorf("load listing %d: %w", id, err)
	}

	var rows []struct {
		Status model.ReservationStatus
		Total  int64
	}
	err := db.Model(&model.Reservation{}).
		Select("status, COALESCE(SUM(quantity_reserved), 0) AS total").
		Where("listing_id = ?", id).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return Balance{}, fmt.Errorf("sum reservations of listing %d: %w", id, err)
	}

	b := Balance{
		ListingID: fl.ID,
		Status:    fl.Status,
		Quantity:  fl.Quantity,
		Available: fl.AvailableQuantity,
	}
	for _, r := range rows {
		switch {
		case r.Status.Active():
			b.Held += r.Total
		case r.Status == model.ReservationCompleted:
			b.PickedUp += r.Total
		}
	}
	return b, nil
}

type Stats struct {
	Listings     map[model.ListingStatus]int64     `json:"listings"`
	Reservations map[model.ReservationStatus]int64 `json:"reservations"`
}

// Stats counts listings and reservations per status.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	db := l.db.WithContext(ctx)
	out := Stats{
		Listings:     map[model.ListingStatus]int64{},
		Reservations: map[model.ReservationStatus]int64{},
	}

	var listingRows []struct {
		Status model.ListingStatus
		Count  int64
	}
	if err := db.Model(&model.FoodListing{}).Select("status, COUNT(*) AS count").Group("status").Scan(&listingRows).Error; err != nil {
		return Stats{}, fmt.Errorf("count listings: %w", err)
	}
	for _, r := range listingRows {
		out.Listings[r.Status] = r.Count
	}

	var reservationRows []struct {
		Status model.ReservationStatus
		Count  int64
	}
	if err := db.Model(&model.Reservation{}).Select("status, COUNT(*) AS count").Group("status").Scan(&reservationRows).Error; err != nil {
		return Stats{}, fmt.Errorf("count reservations: %w", err)
	}
	for _, r := range reservationRows {
		out.Reservations[r.Status] = r.Count
	}
	return out, nil
}
