// Package ledger owns the quantity accounting of food listings and the
// lifecycle of reservations against them.
//
// Every operation runs inside a Tx, a unit of work wrapping one database
// transaction. Status-change events collected by a Tx are handed to the
// Notifier only after the transaction commits; a notifier failure is logged
// and never undoes the committed change.
package ledger

import (
	"context"
	"time"

	"food_rescue/internal/metrics"
	"food_rescue/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier receives committed status-change events.
type Notifier interface {
	Notify(ctx context.Context, evt model.StatusChangeEvent) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, evt model.StatusChangeEvent) error

func (f NotifierFunc) Notify(ctx context.Context, evt model.StatusChangeEvent) error {
	return f(ctx, evt)
}

type Ledger struct {
	db       *gorm.DB
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Ledger)

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{
		db:  db,
		log: zap.NewNop(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Atomically runs fn in a single transaction. All of fn's changes commit
// together or not at all. Events recorded by fn are dispatched after commit.
func (l *Ledger) Atomically(ctx context.Context, fn func(tx *Tx) error) error {
	var events []model.StatusChangeEvent
	err := l.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		tx := &Tx{db: db, now: l.now().UTC(), lockRows: db.Dialector.Name() != "sqlite"}
		if err := fn(tx); err != nil {
			return err
		}
		events = tx.events
		return nil
	})
	if err != nil {
		if IsRejection(err) {
			metrics.LedgerRejectionsTotal.WithLabelValues(Reason(err)).Inc()
		}
		return err
	}
	l.dispatch(context.WithoutCancel(ctx), events)
	return nil
}

func (l *Ledger) dispatch(ctx context.Context, events []model.StatusChangeEvent) {
	for _, evt := range events {
		switch {
		case evt.OldStatus == "":
			metrics.ReservationsCreatedTotal.Inc()
		case evt.NewStatus == model.ReservationCancelled || evt.NewStatus == model.ReservationExpired:
			metrics.QuantityRefundsTotal.Inc()
		}
		metrics.ReservationTransitionsTotal.WithLabelValues(string(evt.NewStatus)).Inc()

		if l.notifier == nil {
			continue
		}
		if err := l.notifier.Notify(ctx, evt); err != nil {
			metrics.NotifyFailuresTotal.Inc()
			l.log.Warn("notify status change",
				zap.String("event_id", evt.EventID),
				zap.Uint("reservation_id", evt.ReservationID),
				zap.String("new_status", string(evt.NewStatus)),
				zap.Error(err),
			)
		}
	}
}
