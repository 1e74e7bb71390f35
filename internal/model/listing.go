package model

import "time"

// FoodListing 是供应方发布的一批剩余食物。
// Quantity is fixed at creation; AvailableQuantity is only changed by the ledger.
type FoodListing struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProviderID           uint   `gorm:"not null;index" json:"provider_id"`
	DistributionCenterID *uint  `gorm:"index" json:"distribution_center_id"`
	Title                string `gorm:"size:255;not null" json:"title"`
	Description          string `gorm:"type:text" json:"description"`
	Unit                 string `gorm:"size:50" json:"unit"`

	Quantity          int64         `gorm:"not null" json:"quantity"`
	AvailableQuantity int64         `gorm:"not null" json:"available_quantity"`
	Status            ListingStatus `gorm:"size:16;not null;index" json:"status"`

	ExpirationDate    time.Time `gorm:"not null;index" json:"expiration_date"`
	PickupWindowStart time.Time `gorm:"not null" json:"pickup_window_start"`
	PickupWindowEnd   time.Time `gorm:"not null" json:"pickup_window_end"`
}

func (FoodListing) TableName() string { return "food_listings" }

// ExpiredAt reports whether the listing's expiration instant has passed at now.
func (l *FoodListing) ExpiredAt(now time.Time) bool {
	return !now.Before(l.ExpirationDate)
}

// InPickupWindow reports whether t lies in the listing's pickup window, bounds included.
func (l *FoodListing) InPickupWindow(t time.Time) bool {
	return !t.Before(l.PickupWindowStart) && !t.After(l.PickupWindowEnd)
}
