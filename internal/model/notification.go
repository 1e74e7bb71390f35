package model

import "time"

// Notification records one delivered (or failed) status-change notification.
// EventID is unique so a redelivered Kafka message is stored only once.
type Notification struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EventID       string            `gorm:"size:64;uniqueIndex;not null" json:"event_id"`
	ReservationID uint              `gorm:"not null;index" json:"reservation_id"`
	ListingID     uint              `gorm:"not null" json:"listing_id"`
	RecipientID   uint              `gorm:"not null;index" json:"recipient_id"`
	OldStatus     ReservationStatus `gorm:"size:16" json:"old_status"`
	NewStatus     ReservationStatus `gorm:"size:16;not null" json:"new_status"`
	Channel       string            `gorm:"size:16" json:"channel"`
	DeliveredAt   *time.Time        `json:"delivered_at"`
	Error         string            `gorm:"size:255" json:"error"`
}

func (Notification) TableName() string { return "notifications" }
