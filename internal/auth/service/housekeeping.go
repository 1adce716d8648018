package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/lodgebook/authcore/internal/auth/store"
)

// HousekeepingService periodically cleans up expired database records to
// prevent unbounded growth of challenges, session tokens, and abuse
// counters.
type HousekeepingService struct {
	Store       store.Store
	Logger      *slog.Logger
	Interval    time.Duration
	CounterLife time.Duration // counters older than this are stale

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service. If interval is
// 0 or negative, defaults to 1 hour. counterLife should be at least the
// guard window; it defaults to 24 hours.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval, counterLife time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if counterLife <= 0 {
		counterLife = 24 * time.Hour
	}

	return &HousekeepingService{
		Store:       st,
		Logger:      logger,
		Interval:    interval,
		CounterLife: counterLife,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Non-blocking; call Stop() to shut the worker down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts down the background worker. Blocks until any in-progress
// cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup deletes expired records. Each deletion is independent, a failure
// in one does not stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	s.Logger.Debug("starting housekeeping cleanup")

	if err := s.Store.Challenges().DeleteExpired(ctx); err != nil {
		s.Logger.Error("failed to delete expired challenges", "error", err)
	}

	if err := s.Store.SessionTokens().DeleteExpired(ctx); err != nil {
		s.Logger.Error("failed to delete expired session tokens", "error", err)
	}

	cutoff := time.Now().UTC().Add(-s.CounterLife)
	if err := s.Store.AbuseCounters().DeleteStale(ctx, cutoff); err != nil {
		s.Logger.Error("failed to delete stale abuse counters", "error", err)
	}
}
