// Package jobs runs periodic maintenance over the booking store.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Expirer cancels and reopens offers that stayed pending longer than olderThan.
type Expirer interface {
	ExpireOffers(ctx context.Context, olderThan time.Duration, actorID string) (int, error)
}

// SweeperActor is recorded as the actor of expiry events.
const SweeperActor = "system:offer-sweeper"

// Sweeper expires stale offers on a fixed interval.
type Sweeper struct {
	expirer  Expirer
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

func NewSweeper(expirer Expirer, ttl, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{expirer: expirer, ttl: ttl, interval: interval, logger: logger, stop: make(chan struct{})}
}

// Start launches the sweep loop. A zero ttl disables expiry and Start does nothing.
func (s *Sweeper) Start(ctx context.Context) {
	if s.ttl <= 0 {
		s.logger.Info("offer expiry disabled")
		return
	}
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop signals the loop to stop and waits for it.
func (s *Sweeper) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Run starts the sweeper and blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			s.logger.Info("sweeper stopping")
			return
		case <-ctx.Done():
			s.logger.Info("context canceled, sweeper exiting")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one expiry pass and returns the number of offers expired.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	n, err := s.expirer.ExpireOffers(ctx, s.ttl, SweeperActor)
	if err != nil {
		s.logger.Error("expire offers", "err", err)
	}
	if n > 0 {
		s.logger.Info("expired offers", "count", n, "ttl", s.ttl)
	}
	return n
}
