package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	refreshes int
	evicts    int
	failures  int
	deadline  bool
}

func (f *fakeSessions) RefreshAll(ctx context.Context) int {
	f.refreshes++
	_, f.deadline = ctx.Deadline()
	return f.failures
}

func (f *fakeSessions) Evict() int { f.evicts++; return 1 }
func (f *fakeSessions) Len() int   { return 3 }

type fakeSweeper struct{ n int }

func (f *fakeSweeper) Sweep() int { f.n++; return 2 }

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New("every five minutes", &fakeSessions{}, nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid refresh schedule")
}

func TestTick(t *testing.T) {
	sessions := &fakeSessions{failures: 1}
	sweeper := &fakeSweeper{}
	s, err := New("*/5 * * * *", sessions, sweeper, time.Minute)
	require.NoError(t, err)

	s.Tick(context.Background())
	assert.Equal(t, 1, sessions.refreshes)
	assert.Equal(t, 1, sessions.evicts)
	assert.Equal(t, 1, sweeper.n)
	assert.True(t, sessions.deadline)
}

func TestTickWithoutSweeperOrTimeout(t *testing.T) {
	sessions := &fakeSessions{}
	s, err := New("@every 1h", sessions, nil, 0)
	require.NoError(t, err)

	s.Tick(context.Background())
	assert.Equal(t, 1, sessions.refreshes)
	assert.False(t, sessions.deadline)
}

func TestStartStopsWithContext(t *testing.T) {
	s, err := New("@every 1h", &fakeSessions{}, nil, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Len(t, s.cron.Entries(), 1)
	cancel()
}
