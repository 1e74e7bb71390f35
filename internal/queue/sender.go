package queue

import (
	"context"
	"fmt"

	"food_rescue/internal/model"

	"go.uber.org/zap"
)

// Sender delivers a notification to its recipient.
type Sender interface {
	Channel() string
	Send(ctx context.Context, n *model.Notification) error
}

// LogSender writes notifications to the log instead of an email or SMS gateway.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log.With(zap.String("component", "notify"))}
}

func (s *LogSender) Channel() string { return "email" }

func (s *LogSender) Send(_ context.Context, n *model.Notification) error {
	s.log.Info("notification sent",
		zap.Uint("recipient_id", n.RecipientID),
		zap.Uint("reservation_id", n.ReservationID),
		zap.String("event_id", n.EventID),
		zap.String("message", Message(n)),
	)
	return nil
}

// Message renders the text a recipient sees for a status change.
func Message(n *model.Notification) string {
	switch n.NewStatus {
	case model.ReservationPending:
		return fmt.Sprintf("Reservation #%d for listing #%d is waiting for the provider to confirm.", n.ReservationID, n.ListingID)
	case model.ReservationConfirmed:
		return fmt.Sprintf("Reservation #%d is confirmed. Please pick up within the agreed window.", n.ReservationID)
	case model.ReservationCompleted:
		return fmt.Sprintf("Reservation #%d was picked up. Thank you!", n.ReservationID)
	case model.ReservationCancelled:
		return fmt.Sprintf("Reservation #%d was cancelled.", n.ReservationID)
	case model.ReservationExpired:
		return fmt.Sprintf("Reservation #%d expired before pickup.", n.ReservationID)
	default:
		return fmt.Sprintf("Reservation #%d changed to %s.", n.ReservationID, n.NewStatus)
	}
}
