package slot

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func istanbul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Istanbul")
	require.NoError(t, err)
	return loc
}

func TestWeekStartIsMondayWithinSixDays(t *testing.T) {
	for _, name := range []string{"Europe/Istanbul", "Europe/Berlin", "America/New_York", "UTC"} {
		loc, err := time.LoadLocation(name)
		require.NoError(t, err)
		g := NewGrid(loc)

		d := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
		for i := 0; i < 800; i++ {
			// Probe several times of day, including the last minute.
			for _, h := range []time.Duration{0, 9 * time.Hour, 23*time.Hour + 59*time.Minute} {
				probe := d.Add(h)
				ws := g.WeekStart(probe)
				require.Equal(t, time.Monday, ws.Weekday(), "%s %s", name, probe)
				require.Zero(t, ws.Hour())
				diff := g.DayStart(probe).Sub(ws)
				days := int((diff + 12*time.Hour) / (24 * time.Hour))
				require.GreaterOrEqual(t, days, 0, "%s %s", name, probe)
				require.LessOrEqual(t, days, 6, "%s %s", name, probe)
			}
			d = d.AddDate(0, 0, 1)
		}
	}
}

func TestWeekStartSundayGoesBack(t *testing.T) {
	g := NewGrid(istanbul(t))
	sunday := time.Date(2025, 1, 26, 15, 0, 0, 0, g.Location)
	assert.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, g.Location), g.WeekStart(sunday))
}

func TestWeekStartUsesClinicDate(t *testing.T) {
	g := NewGrid(istanbul(t))
	// Sunday 22:30 UTC is already Monday 01:30 in Istanbul.
	utc := time.Date(2025, 1, 19, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 20, 0, 0, 0, 0, g.Location), g.WeekStart(utc))
}

func TestSlotClockRoundTrip(t *testing.T) {
	g := NewGrid(time.UTC)
	for i := 0; i <= g.LastSlot(); i++ {
		c := g.SlotToClock(i)
		assert.GreaterOrEqual(t, c.Hour, 9)
		assert.LessOrEqual(t, c.Hour, 20)
		assert.Contains(t, []int{0, 15, 30, 45}, c.Minute)

		back, ok := g.ClockToSlot(c)
		require.True(t, ok)
		assert.Equal(t, i, back)
	}
	assert.Equal(t, Clock{Hour: 20, Minute: 45}, g.SlotToClock(47))
	assert.Equal(t, "10:15", g.Label(5))
}

func TestClockToSlotRejectsOffGrid(t *testing.T) {
	g := NewGrid(time.UTC)
	for _, c := range []Clock{{8, 45}, {9, 10}, {21, 0}, {23, 0}} {
		_, ok := g.ClockToSlot(c)
		assert.False(t, ok, c.String())
	}
}

func TestInstanceDateAppliesClinicOffset(t *testing.T) {
	g := NewGrid(istanbul(t))
	ws := time.Date(2025, 1, 6, 0, 0, 0, 0, g.Location)

	assert.Equal(t, time.Date(2025, 1, 6, 6, 0, 0, 0, time.UTC), g.InstanceDate(ws, 0, 0))
	// Wednesday 10:30 local.
	assert.Equal(t, time.Date(2025, 1, 8, 7, 30, 0, 0, time.UTC), g.InstanceDate(ws, 2, 6))

	day, i, ok := g.Position(time.Date(2025, 1, 8, 7, 30, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, 2, day)
	assert.Equal(t, 6, i)

	_, _, ok = g.Position(time.Date(2025, 1, 8, 7, 31, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestInstanceDateKeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	g := NewGrid(loc)

	before := g.InstanceDate(time.Date(2025, 3, 24, 0, 0, 0, 0, loc), 0, 0)
	after := g.InstanceDate(time.Date(2025, 3, 31, 0, 0, 0, 0, loc), 0, 0)
	assert.Equal(t, 9, before.In(loc).Hour())
	assert.Equal(t, 9, after.In(loc).Hour())
	assert.Equal(t, 8, before.Hour())
	assert.Equal(t, 7, after.Hour())
}

func TestDurationAndSpan(t *testing.T) {
	g := NewGrid(time.UTC)
	assert.Equal(t, 15, g.DurationMinutes(4, 4))
	assert.Equal(t, 45, g.DurationMinutes(4, 6))

	require.NoError(t, g.CheckSpan(45, 3))
	assert.ErrorIs(t, g.CheckSpan(46, 3), ErrInvalidSpan)
	assert.ErrorIs(t, g.CheckSpan(48, 1), ErrInvalidSlot)
	assert.ErrorIs(t, g.CheckSpan(0, 0), ErrInvalidSpan)
}

func TestIsPast(t *testing.T) {
	g := NewGrid(istanbul(t))
	ws := time.Date(2025, 1, 6, 0, 0, 0, 0, g.Location)
	now := time.Date(2025, 1, 7, 7, 0, 0, 0, time.UTC) // Tuesday 10:00 local

	assert.True(t, g.IsPast(ws, 0, 47, now))
	assert.True(t, g.IsPast(ws, 1, 4, now), "slot starting exactly now counts as past")
	assert.False(t, g.IsPast(ws, 1, 5, now))
	assert.False(t, g.IsPast(ws, 2, 0, now))
}

func TestValidate(t *testing.T) {
	require.NoError(t, NewGrid(time.UTC).Validate())

	g := NewGrid(time.UTC)
	g.SlotMinutes = 7
	assert.Error(t, g.Validate())

	g = NewGrid(time.UTC)
	g.FirstHour = 20
	assert.Error(t, g.Validate())
}
