package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestRecordSpan(t *testing.T) {
	tests := []struct {
		name      string
		rec       AppointmentRecord
		start     int
		end       int
		count     int
		wantValid bool
	}{
		{"slot count wins", AppointmentRecord{TimeIndex: intp(4), SlotCount: intp(3), EndTimeIndex: intp(9)}, 4, 6, 3, true},
		{"end index only", AppointmentRecord{TimeIndex: intp(4), EndTimeIndex: intp(5)}, 4, 5, 2, true},
		{"legacy single slot", AppointmentRecord{TimeIndex: intp(7)}, 7, 7, 1, true},
		{"end before start ignored", AppointmentRecord{TimeIndex: intp(7), EndTimeIndex: intp(2)}, 7, 7, 1, true},
		{"missing time index", AppointmentRecord{}, 0, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, e, c, ok := tt.rec.Span()
			assert.Equal(t, tt.wantValid, ok)
			assert.Equal(t, tt.start, s)
			assert.Equal(t, tt.end, e)
			assert.Equal(t, tt.count, c)
		})
	}
}

func TestRecordUnmarshalAcceptsBothIDKeys(t *testing.T) {
	var a, b AppointmentRecord
	require.NoError(t, json.Unmarshal([]byte(`{"_id":"x1","dayIndex":2,"timeIndex":0}`), &a))
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x2","appointmentType":"Muayene"}`), &b))

	assert.Equal(t, "x1", a.ID)
	require.NotNil(t, a.DayIndex)
	assert.Equal(t, 2, *a.DayIndex)
	require.NotNil(t, a.TimeIndex)
	assert.Equal(t, 0, *a.TimeIndex)

	assert.Equal(t, "x2", b.ID)
	assert.Nil(t, b.DayIndex)
	assert.Equal(t, TypeExamination, b.AppointmentType)
}

func TestVirtualID(t *testing.T) {
	d := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	id := VirtualID("abc", d)
	assert.Equal(t, "abc_instance_2025-02-03", id)
	assert.True(t, IsVirtualID(id))
	assert.False(t, IsVirtualID("abc"))

	series, date, ok := ParseVirtualID(id)
	require.True(t, ok)
	assert.Equal(t, "abc", series)
	assert.True(t, date.Equal(d))

	_, _, ok = ParseVirtualID("abc_instance_notadate")
	assert.False(t, ok)
	_, _, ok = ParseVirtualID("_instance_2025-02-03")
	assert.False(t, ok)
}

func TestAppointmentTypeValid(t *testing.T) {
	assert.True(t, TypeRoutine.Valid())
	assert.True(t, AppointmentType("Muayene").Valid())
	assert.False(t, AppointmentType("").Valid())
	assert.False(t, AppointmentType("Kontrol").Valid())
}

func TestWeekWindow(t *testing.T) {
	w := WeekWindow{Start: time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)}
	assert.True(t, w.Contains(w.Start))
	assert.True(t, w.Contains(time.Date(2025, 1, 26, 23, 59, 0, 0, time.UTC)))
	assert.False(t, w.Contains(w.End()))
	assert.Equal(t, time.Date(2025, 1, 22, 0, 0, 0, 0, time.UTC), w.Day(2))
}
