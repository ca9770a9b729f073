package calendar

import (
	"context"
	"errors"
	"sync"
	"time"

	appLog "klinikcal/internal/log"
	"klinikcal/internal/metrics"
	"klinikcal/internal/model"
)

// Sessions keeps one Calendar per logged-in user.
type Sessions struct {
	mu      sync.RWMutex
	items   map[string]*Calendar
	newCal  func(model.User) *Calendar
	idle    time.Duration
	now     func() time.Time
	metrics *metrics.CalendarMetrics
}

// NewSessions builds calendars with newCal on first use and forgets them
// after idle without use (idle <= 0 keeps them forever).
func NewSessions(newCal func(model.User) *Calendar, idle time.Duration, m *metrics.CalendarMetrics) *Sessions {
	return &Sessions{
		items:   make(map[string]*Calendar),
		newCal:  newCal,
		idle:    idle,
		now:     time.Now,
		metrics: m,
	}
}

func sessionKey(u model.User) string {
	return u.ID + "|" + string(u.Role)
}

// Get returns the user's calendar, creating it when needed.
func (s *Sessions) Get(u model.User) *Calendar {
	key := sessionKey(u)

	s.mu.RLock()
	c, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.items[key]; ok {
		return c
	}
	c = s.newCal(u)
	s.items[key] = c
	s.metrics.SetSessions(len(s.items))
	appLog.Debug("calendar session created", "user_id", u.ID, "role", u.Role)
	return c
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Evict drops calendars unused for longer than the idle timeout and returns
// how many were removed.
func (s *Sessions) Evict() int {
	if s.idle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idle)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, c := range s.items {
		if c.LastUsed().Before(cutoff) {
			delete(s.items, k)
			n++
		}
	}
	if n > 0 {
		s.metrics.SetSessions(len(s.items))
		appLog.Info("evicted idle calendar sessions", "count", n, "remaining", len(s.items))
	}
	return n
}

// RefreshAll refetches every session that has a doctor selected. Errors are
// logged per session; the number of failed refreshes is returned.
func (s *Sessions) RefreshAll(ctx context.Context) int {
	s.mu.RLock()
	snapshot := make([]*Calendar, 0, len(s.items))
	for _, c := range s.items {
		snapshot = append(snapshot, c)
	}
	s.mu.RUnlock()

	failed := 0
	for _, c := range snapshot {
		if ctx.Err() != nil {
			break
		}
		err := c.Refresh(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrNoDoctor):
		default:
			failed++
			appLog.Error("scheduled refresh failed", err)
		}
	}
	return failed
}
