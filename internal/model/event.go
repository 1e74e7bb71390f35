package model

import "time"

// StatusChangeEvent is emitted after every committed reservation transition.
// OldStatus is empty for a newly created reservation.
type StatusChangeEvent struct {
	EventID       string            `json:"event_id"`
	ReservationID uint              `json:"reservation_id"`
	ListingID     uint              `json:"listing_id"`
	RecipientID   uint              `json:"recipient_id"`
	OldStatus     ReservationStatus `json:"old_status"`
	NewStatus     ReservationStatus `json:"new_status"`
	Timestamp     time.Time         `json:"timestamp"`
}
