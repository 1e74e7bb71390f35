package model

import "time"

// Reservation 是接收方对某个 listing 部分数量的占用。
// Window and expiration are copies taken from the listing at creation time.
type Reservation struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ListingID        uint              `gorm:"not null;index" json:"listing_id"`
	RecipientID      uint              `gorm:"not null;index" json:"recipient_id"`
	QuantityReserved int64             `gorm:"not null" json:"quantity_reserved"`
	Status           ReservationStatus `gorm:"size:16;not null;index" json:"status"`
	Notes            string            `gorm:"type:text" json:"notes"`

	PickupTime        time.Time  `gorm:"not null" json:"pickup_time"`
	PickupWindowStart time.Time  `gorm:"not null" json:"pickup_window_start"`
	PickupWindowEnd   time.Time  `gorm:"not null" json:"pickup_window_end"`
	ExpirationTime    time.Time  `gorm:"not null;index" json:"expiration_time"`
	ActualPickupTime  *time.Time `json:"actual_pickup_time"`
}

func (Reservation) TableName() string { return "reservations" }

// ExpiredAt reports whether now is strictly past the reservation's expiration.
func (r *Reservation) ExpiredAt(now time.Time) bool {
	return now.After(r.ExpirationTime)
}

// InPickupWindow reports whether t lies in the copied pickup window, bounds included.
func (r *Reservation) InPickupWindow(t time.Time) bool {
	return !t.Before(r.PickupWindowStart) && !t.After(r.PickupWindowEnd)
}
