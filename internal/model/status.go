package model

// ListingStatus is the single canonical status type for food listings.
type ListingStatus string

const (
	ListingPending   ListingStatus = "PENDING"   // draft, not yet published
	ListingAvailable ListingStatus = "AVAILABLE" // open for reservations
	ListingReserved  ListingStatus = "RESERVED"  // available_quantity reached 0
	ListingCompleted ListingStatus = "COMPLETED" // all capacity picked up
	ListingExpired   ListingStatus = "EXPIRED"
	ListingCancelled ListingStatus = "CANCELLED" // withdrawn by the provider
)

// Valid reports whether s is one of the known listing statuses.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingPending, ListingAvailable, ListingReserved, ListingCompleted, ListingExpired, ListingCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further quantity change is allowed.
func (s ListingStatus) Terminal() bool {
	return s == ListingCompleted || s == ListingExpired || s == ListingCancelled
}

// Open reports whether the listing still holds or offers quantity.
func (s ListingStatus) Open() bool {
	return s == ListingAvailable || s == ListingReserved
}

// ReservationStatus is the single canonical status type for reservations.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCompleted ReservationStatus = "COMPLETED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// ActiveReservationStatuses still hold quantity on their listing.
var ActiveReservationStatuses = []ReservationStatus{ReservationPending, ReservationConfirmed}

// Valid reports whether s is one of the known reservation statuses.
func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationPending, ReservationConfirmed, ReservationCompleted, ReservationCancelled, ReservationExpired:
		return true
	}
	return false
}

// Active reports whether the reservation still holds quantity and may transition.
func (s ReservationStatus) Active() bool {
	return s == ReservationPending || s == ReservationConfirmed
}

// Terminal reports whether the reservation can no longer change.
func (s ReservationStatus) Terminal() bool {
	return !s.Active() && s.Valid()
}
