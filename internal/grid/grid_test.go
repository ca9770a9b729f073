package grid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klinikcal/internal/model"
)

var trt = time.FixedZone("TRT", 3*60*60)

func instance(id string, day, start, count int, at time.Time) model.AppointmentInstance {
	return model.AppointmentInstance{
		ID:              id,
		SeriesID:        id,
		DayIndex:        day,
		TimeIndex:       start,
		EndTimeIndex:    start + count - 1,
		SlotCount:       count,
		AppointmentDate: at,
	}
}

func TestFindOccupantMultiSlot(t *testing.T) {
	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, trt)
	at := time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC) // 10:00 local, slot 4
	instances := []model.AppointmentInstance{instance("a", 0, 4, 3, at)}

	for i := 0; i < 10; i++ {
		occ, ok := FindOccupant(instances, 0, i, monday, trt)
		if i >= 4 && i <= 6 {
			require.True(t, ok, "slot %d", i)
			assert.Equal(t, "a", occ.Instance.ID)
			assert.Equal(t, i == 4, occ.Head, "slot %d", i)
		} else {
			assert.False(t, ok, "slot %d", i)
		}
	}

	_, ok := FindOccupant(instances, 1, 4, monday.AddDate(0, 0, 1), trt)
	assert.False(t, ok, "other day")
}

func TestFindOccupantRequiresSameCalendarDay(t *testing.T) {
	thisWeek := time.Date(2025, 1, 6, 0, 0, 0, 0, trt)
	lastWeek := instance("old", 0, 0, 1, time.Date(2024, 12, 30, 6, 0, 0, 0, time.UTC))

	_, ok := FindOccupant([]model.AppointmentInstance{lastWeek}, 0, 0, thisWeek, trt)
	assert.False(t, ok)
}

func TestFindOccupantUsesClinicDate(t *testing.T) {
	// 22:00 UTC on the 5th is 01:00 on the 6th in TRT.
	in := instance("late", 0, 0, 1, time.Date(2025, 1, 5, 22, 0, 0, 0, time.UTC))
	_, ok := FindOccupant([]model.AppointmentInstance{in}, 0, 0, time.Date(2025, 1, 6, 0, 0, 0, 0, trt), trt)
	assert.True(t, ok)
}

func TestOverlapFirstMatchWins(t *testing.T) {
	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, trt)
	at := time.Date(2025, 1, 6, 6, 0, 0, 0, time.UTC)
	instances := []model.AppointmentInstance{
		instance("first", 0, 0, 2, at),
		instance("second", 0, 1, 2, at.Add(15*time.Minute)),
	}

	var overlaps [][2]string
	r := Resolver{Location: trt, OnOverlap: func(w, o model.AppointmentInstance) {
		overlaps = append(overlaps, [2]string{w.ID, o.ID})
	}}

	occ, ok := r.FindOccupant(instances, 0, 1, monday)
	require.True(t, ok)
	assert.Equal(t, "first", occ.Instance.ID)
	assert.False(t, occ.Head)
	assert.Equal(t, [][2]string{{"first", "second"}}, overlaps)

	occ, ok = FindOccupant(instances, 0, 2, monday, trt)
	require.True(t, ok)
	assert.Equal(t, "second", occ.Instance.ID)
}

func TestFirstInRange(t *testing.T) {
	monday := time.Date(2025, 1, 6, 0, 0, 0, 0, trt)
	instances := []model.AppointmentInstance{instance("a", 0, 8, 2, time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC))}
	r := Resolver{Location: trt}

	_, ok := r.FirstInRange(instances, 0, 4, 7, monday)
	assert.False(t, ok)
	occ, ok := r.FirstInRange(instances, 0, 9, 6, monday)
	require.True(t, ok)
	assert.Equal(t, "a", occ.Instance.ID)
}

func TestSelectionDragNormalization(t *testing.T) {
	var s Selection
	s, ok := s.Begin(Cell{Day: 2, Slot: 10}, false, true)
	require.True(t, ok)
	assert.Equal(t, Selecting, s.State())

	s = s.Enter(Cell{Day: 2, Slot: 8})
	s = s.Enter(Cell{Day: 2, Slot: 6})
	assert.Equal(t, []int{6, 7, 8, 9, 10}, s.Highlighted())

	idle, r, ok := s.Commit()
	require.True(t, ok)
	assert.Equal(t, Range{DayIndex: 2, TimeIndex: 6, EndTimeIndex: 10, SlotCount: 5}, r)
	assert.Equal(t, Idle, idle.State())
}

func TestSelectionIgnoresOtherDays(t *testing.T) {
	s, _ := Selection{}.Begin(Cell{Day: 1, Slot: 3}, false, true)
	s = s.Enter(Cell{Day: 1, Slot: 5})
	s = s.Enter(Cell{Day: 3, Slot: 12})

	assert.Equal(t, Cell{Day: 1, Slot: 5}, s.End())
	_, r, ok := s.Commit()
	require.True(t, ok)
	assert.Equal(t, Range{DayIndex: 1, TimeIndex: 3, EndTimeIndex: 5, SlotCount: 3}, r)
}

func TestSelectionClickWithoutDragIsSingleSlot(t *testing.T) {
	s, _ := Selection{}.Begin(Cell{Day: 4, Slot: 20}, false, true)
	_, r, ok := s.Commit()
	require.True(t, ok)
	assert.Equal(t, 1, r.SlotCount)
	assert.Equal(t, 20, r.EndTimeIndex)
}

func TestSelectionBeginRefused(t *testing.T) {
	var idle Selection

	_, ok := idle.Begin(Cell{Day: 0, Slot: 0}, true, true)
	assert.False(t, ok, "occupied cell")

	_, ok = idle.Begin(Cell{Day: 0, Slot: 0}, false, false)
	assert.False(t, ok, "no doctor selected")

	active, _ := idle.Begin(Cell{Day: 0, Slot: 0}, false, true)
	again, ok := active.Begin(Cell{Day: 0, Slot: 5}, true, true)
	assert.False(t, ok, "occupied cell mid-gesture")
	assert.Equal(t, active, again)

	_, _, ok = idle.Commit()
	assert.False(t, ok, "commit while idle")
}

func TestSelectionBeginRestartsStuckGesture(t *testing.T) {
	stuck, _ := Selection{}.Begin(Cell{Day: 1, Slot: 3}, false, true)
	stuck = stuck.Enter(Cell{Day: 1, Slot: 7})

	s, ok := stuck.Begin(Cell{Day: 4, Slot: 12}, false, true)
	require.True(t, ok)
	assert.Equal(t, Selecting, s.State())
	assert.Equal(t, Cell{Day: 4, Slot: 12}, s.Start())
	assert.Equal(t, []int{12}, s.Highlighted())

	idle, r, ok := s.Commit()
	require.True(t, ok)
	assert.Equal(t, Range{DayIndex: 4, TimeIndex: 12, EndTimeIndex: 12, SlotCount: 1}, r)
	assert.Equal(t, Idle, idle.State())
}

func TestSelectionIsCopyOnWrite(t *testing.T) {
	s, _ := Selection{}.Begin(Cell{Day: 0, Slot: 2}, false, true)
	moved := s.Enter(Cell{Day: 0, Slot: 9})

	assert.Equal(t, Cell{Day: 0, Slot: 2}, s.End())
	assert.Equal(t, Cell{Day: 0, Slot: 9}, moved.End())
}
