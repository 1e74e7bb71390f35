package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"food_rescue/internal/metrics"
	"food_rescue/internal/model"

	"go.uber.org/zap"
)

type SweepResult struct {
	Listings     int `json:"listings"`
	Reservations int `json:"reservations"`
	Completed    int `json:"completed"`
}

// SweepExpired first completes fully picked-up listings that were left
// RESERVED, then expires every overdue open listing and every overdue active
// reservation, one transaction per entity. Entities that changed in the
// meantime are skipped.
func (l *Ledger) SweepExpired(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := l.now().UTC()

	var doneIDs []uint
	err := l.db.WithContext(ctx).Model(&model.FoodListing{}).
		Where("status = ? AND available_quantity = 0", model.ListingReserved).
		Where("NOT EXISTS (SELECT 1 FROM reservations r WHERE r.listing_id = food_listings.id AND r.status IN ?)", model.ActiveReservationStatuses).
		Where("EXISTS (SELECT 1 FROM reservations r WHERE r.listing_id = food_listings.id AND r.status = ?)", model.ReservationCompleted).
		Order("id").
		Pluck("id", &doneIDs).Error
	if err != nil {
		return res, fmt.Errorf("find picked up listings: %w", err)
	}
	for _, id := range doneIDs {
		err := l.Atomically(ctx, func(tx *Tx) error {
			fl, err := tx.loadListing(id)
			if err != nil {
				return err
			}
			return tx.MarkCompleted(fl)
		})
		if err != nil {
			if skippable(err) {
				continue
			}
			return res, err
		}
		res.Completed++
	}

	var listingIDs []uint
	err = l.db.WithContext(ctx).Model(&model.FoodListing{}).
		Where("status IN ? AND expiration_date <= ?", []model.ListingStatus{model.ListingAvailable, model.ListingReserved}, now).
		Order("id").
		Pluck("id", &listingIDs).Error
	if err != nil {
		return res, fmt.Errorf("find expired listings: %w", err)
	}
	for _, id := range listingIDs {
		err := l.Atomically(ctx, func(tx *Tx) error {
			fl, err := tx.loadListing(id)
			if err != nil {
				return err
			}
			return tx.MarkExpired(fl)
		})
		if err != nil {
			if skippable(err) {
				continue
			}
			return res, err
		}
		res.Listings++
	}

	var reservationIDs []uint
	err = l.db.WithContext(ctx).Model(&model.Reservation{}).
		Where("status IN ? AND expiration_time < ?", model.ActiveReservationStatuses, now).
		Order("id").
		Pluck("id", &reservationIDs).Error
	if err != nil {
		return res, fmt.Errorf("find expired reservations: %w", err)
	}
	for _, id := range reservationIDs {
		err := l.Atomically(ctx, func(tx *Tx) error {
			_, err := tx.CheckExpiration(id, nil)
			return err
		})
		if err != nil {
			if skippable(err) {
				continue
			}
			return res, err
		}
		res.Reservations++
	}

	metrics.SweepExpiredTotal.WithLabelValues("listing").Add(float64(res.Listings))
	metrics.SweepExpiredTotal.WithLabelValues("reservation").Add(float64(res.Reservations))
	metrics.SweepCompletedTotal.Add(float64(res.Completed))
	return res, nil
}

func skippable(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition) || errors.Is(err, ErrNotFound)
}

// Sweeper runs SweepExpired periodically. Lazy expiration on read keeps
// working without it.
type Sweeper struct {
	ledger   *Ledger
	interval time.Duration
	log      *zap.Logger

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

func NewSweeper(l *Ledger, interval time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		ledger:   l,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Start launches the sweep loop. It ends when ctx is cancelled or Stop is
// called; Stop waits for it.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("expiration sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ticker.C:
			res, err := s.ledger.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Error("sweep expired", zap.Error(err))
				continue
			}
			if res.Listings > 0 || res.Reservations > 0 || res.Completed > 0 {
				s.log.Info("swept expired",
					zap.Int("listings", res.Listings),
					zap.Int("reservations", res.Reservations),
					zap.Int("completed", res.Completed),
				)
			}
		case <-s.stop:
			s.log.Info("expiration sweeper stopped")
			return
		case <-ctx.Done():
			s.log.Info("expiration sweeper context cancelled")
			return
		}
	}
}

// Stop ends the loop and waits for an in-flight sweep to finish. It is safe
// to call more than once, and before or without Start.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}
