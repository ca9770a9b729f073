package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klinikcal/internal/appointment"
	"klinikcal/internal/cache"
	"klinikcal/internal/metrics"
	"klinikcal/internal/model"
)

var monday = time.Date(2025, 1, 6, 0, 0, 0, 0, time.FixedZone("TRT", 3*60*60))

func newClient(t *testing.T, srv *httptest.Server, store cache.Store) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL: srv.URL + "/api/",
		Token:   "secret",
		Cache:   store,
		Metrics: metrics.NewCalendarMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{BaseURL: "/relative"})
	assert.Error(t, err)
}

func TestListWeekConditionalGet(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/calendar-appointments", r.URL.Path)
		assert.Equal(t, "doc1", r.URL.Query().Get("doctorId"))
		assert.Equal(t, "2025-01-05T21:00:00Z", r.URL.Query().Get("weekStart"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = io.WriteString(w, `[{"_id":"a","dayIndex":0,"timeIndex":0,"appointmentDate":"2025-01-06T06:00:00Z"},{"id":"b"}]`)
	}))
	defer srv.Close()

	c := newClient(t, srv, cache.NewMemory(0))
	ctx := context.Background()

	recs, res, err := c.ListWeek(ctx, "doc1", monday)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, "b", recs[1].ID)

	recs, res, err = c.ListWeek(ctx, "doc1", monday)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.False(t, res.Stale)
	assert.Len(t, recs, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestListWeekFallsBackToCacheOnServerError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"data":[{"_id":"a"}]}`)
	}))
	defer srv.Close()

	c := newClient(t, srv, cache.NewMemory(0))
	ctx := context.Background()

	_, _, err := c.ListWeek(ctx, "doc1", monday)
	require.NoError(t, err)

	fail.Store(true)
	recs, res, err := c.ListWeek(ctx, "doc1", monday)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID)
}

func TestListWeekErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	_, _, err := newClient(t, srv, nil).ListWeek(context.Background(), "doc1", monday)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Equal(t, OpList, se.Op)
	assert.Equal(t, "nope", se.Body)
}

func TestNotModifiedWithoutCacheIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	_, _, err := newClient(t, srv, nil).ListWeek(context.Background(), "doc1", monday)
	assert.ErrorIs(t, err, ErrNotModified)
}

func TestMutationInvalidatesStaleFallback(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case fail.Load():
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = io.WriteString(w, `[{"_id":"a"}]`)
		}
	}))
	defer srv.Close()

	c := newClient(t, srv, cache.NewMemory(0))
	ctx := context.Background()

	_, _, err := c.ListWeek(ctx, "doc1", monday)
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, "doc1", "a", appointment.ModeSingle))

	fail.Store(true)
	_, _, err = c.ListWeek(ctx, "doc1", monday)
	assert.Error(t, err, "pre-mutation week must not be served")
}

func TestCreateSendsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/calendar-appointments", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "doc1", body["doctorId"])
		assert.Equal(t, float64(5), body["timeIndex"])
		assert.Equal(t, "old", body["bookingId"])
		assert.NotContains(t, body, "updateAllInstances")

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"_id":"new1"}`)
	}))
	defer srv.Close()

	rec, err := newClient(t, srv, nil).Create(context.Background(), appointment.Request{
		DoctorID:        "doc1",
		TimeIndex:       5,
		BookingID:       "old",
		AppointmentType: model.TypeExamination,
	})
	require.NoError(t, err)
	assert.Equal(t, "new1", rec.ID)
}

func TestUpdateTargetsInstanceID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/calendar-appointments/rec1_instance_2025-01-20", r.URL.Path)

		var body appointment.Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.UpdateAllInstances)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newClient(t, srv, nil).Update(context.Background(), "rec1_instance_2025-01-20", appointment.Request{
		DoctorID:           "doc1",
		UpdateAllInstances: true,
		IsVirtualInstance:  true,
	})
	require.NoError(t, err)
}

func TestDeleteSendsMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/calendar-appointments/abc_instance_2025-02-03", r.URL.Path)
		assert.Equal(t, "afterThis", r.URL.Query().Get("mode"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newClient(t, srv, nil)
	require.NoError(t, c.Delete(context.Background(), "doc1", "abc_instance_2025-02-03", appointment.ModeAfterThis))

	err := c.Delete(context.Background(), "doc1", "abc", "bogus")
	assert.ErrorIs(t, err, appointment.ErrInvalidMode)
}

func TestMutationErrorIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()

	err := newClient(t, srv, nil).Update(context.Background(), "gone", appointment.Request{})
	assert.True(t, IsNotFound(err))
}

func TestServices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/services", r.URL.Path)
		_, _ = io.WriteString(w, `[{"_id":"s1","provider":"Dr. Ada","serviceType":"Muayene","serviceFee":750,"status":"Aktif"}]`)
	}))
	defer srv.Close()

	got, err := newClient(t, srv, nil).Services(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.TypeExamination, got[0].ServiceType)
	assert.Equal(t, 750.0, got[0].ServiceFee)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://api.example.com/...(redacted)", redactURL("https://api.example.com/calendar?doctorId=x"))
	assert.Equal(t, "backend://...(redacted)", redactURL("not a url"))
}
