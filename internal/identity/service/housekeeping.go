package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/openshelf-dev/identity/internal/identity/store"
)

// HousekeepingService periodically purges rows that no longer serve any
// request path: principals soft-deleted past the retention window and
// second-factor secrets that were deactivated long ago.
type HousekeepingService struct {
	Store     store.Store
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval defaults to 1 hour, a non-positive retention to 30 days.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	return &HousekeepingService{
		Store:     st,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut it
// down gracefully.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval, "retention", s.Retention)
}

// Stop shuts the worker down, blocking until any in-progress sweep ends.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

// Stopped returns a channel that is closed once the background worker has
// exited.
func (s *HousekeepingService) Stopped() <-chan struct{} {
	return s.doneCh
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Sweep once on startup so a rarely restarted process still catches up.
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep deletes each category independently so one failure does not block
// the others.
func (s *HousekeepingService) sweep() {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-s.Retention)

	if err := s.Store.Principals().PurgeDeletedBefore(ctx, cutoff); err != nil {
		s.Logger.Error("failed to purge deleted principals", "error", err)
	} else {
		s.Logger.Debug("purged deleted principals", "cutoff", cutoff)
	}

	if err := s.Store.SecondFactorSecrets().DeleteInactiveBefore(ctx, cutoff); err != nil {
		s.Logger.Error("failed to delete inactive second factor secrets", "error", err)
	} else {
		s.Logger.Debug("deleted inactive second factor secrets", "cutoff", cutoff)
	}
}
