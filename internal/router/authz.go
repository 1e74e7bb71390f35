package router

import (
	"errors"

	"food_rescue/internal/ledger"
	"food_rescue/internal/middleware"
	"food_rescue/internal/model"
)

var (
	errNotOwner     = errors.New("listing belongs to another provider")
	errNotRecipient = errors.New("reservation belongs to another recipient")
	errNotParty     = errors.New("not a party to this reservation")
)

// listingOwner allows admins and the provider that owns the listing.
func listingOwner(a *middleware.Actor) ledger.Authorizer {
	return func(l *model.FoodListing, _ *model.Reservation) error {
		if a.Role == middleware.RoleAdmin {
			return nil
		}
		if a.Role == middleware.RoleProvider && a.ProviderID == l.ProviderID {
			return nil
		}
		return errNotOwner
	}
}

// reservationOwner allows only the recipient holding the reservation.
func reservationOwner(a *middleware.Actor) ledger.Authorizer {
	return func(_ *model.FoodListing, r *model.Reservation) error {
		if r != nil && a.Role == middleware.RoleRecipient && r.RecipientID == a.UserID {
			return nil
		}
		return errNotRecipient
	}
}

// reservationParty allows admins, the owning provider and the recipient.
func reservationParty(a *middleware.Actor) ledger.Authorizer {
	return func(l *model.FoodListing, r *model.Reservation) error {
		switch a.Role {
		case middleware.RoleAdmin:
			return nil
		case middleware.RoleProvider:
			if a.ProviderID == l.ProviderID {
				return nil
			}
		case middleware.RoleRecipient:
			if r != nil && r.RecipientID == a.UserID {
				return nil
			}
		}
		return errNotParty
	}
}
