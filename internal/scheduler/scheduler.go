// Package scheduler runs the periodic maintenance of open calendars.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "klinikcal/internal/log"
)

// Refresher is the part of calendar.Sessions the scheduler drives.
type Refresher interface {
	RefreshAll(ctx context.Context) int
	Evict() int
	Len() int
}

// Sweeper drops expired cache entries; cache.Memory implements it.
type Sweeper interface {
	Sweep() int
}

// Scheduler refetches every open calendar on a cron schedule and evicts
// idle sessions.
type Scheduler struct {
	cron     *cron.Cron
	sessions Refresher
	sweeper  Sweeper
	timeout  time.Duration
}

// New parses spec (standard five-field cron) and registers the tick. sweeper
// may be nil.
func New(spec string, sessions Refresher, sweeper Sweeper, timeout time.Duration) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		sessions: sessions,
		sweeper:  sweeper,
		timeout:  timeout,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Tick(context.Background()) }); err != nil {
		return nil, fmt.Errorf("scheduler: invalid refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

// Tick runs one maintenance round.
func (s *Scheduler) Tick(ctx context.Context) {
	evicted := s.sessions.Evict()
	swept := 0
	if s.sweeper != nil {
		swept = s.sweeper.Sweep()
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	failed := s.sessions.RefreshAll(ctx)

	kv := []any{
		"sessions", s.sessions.Len(),
		"evicted", evicted,
		"swept", swept,
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if failed > 0 {
		appLog.Warn("scheduled refresh finished with failures", kv...)
		return
	}
	appLog.Debug("scheduled refresh finished", kv...)
}

// Start runs the schedule in its own goroutine until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()
}
