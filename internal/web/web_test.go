package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindhd/internal/config"
	"remindhd/internal/driver"
	"remindhd/internal/metrics"
	"remindhd/internal/model"
	"remindhd/internal/status"
)

type stubStatus struct{ st driver.State }

func (s stubStatus) Snapshot() driver.State { return s.st }

type stubSource struct {
	events []model.CalendarEvent
	err    error
	calls  int
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Events(context.Context, time.Time, time.Time) ([]model.CalendarEvent, error) {
	s.calls++
	return s.events, s.err
}

func do(t *testing.T, h http.Handler, path string, auth ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(Options{
		BasicAuth: &config.BasicAuthConfig{Username: "u", Password: "p"},
	})
	rec := do(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestStatusBeforeFirstPoll(t *testing.T) {
	s := NewServer(Options{Status: stubStatus{st: driver.State{Baseline: status.Off}}})

	rec := do(t, s.Handler(), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "off", body["baseline"])
	assert.NotContains(t, body, "status")
	assert.NotContains(t, body, "minutes_to_next_event")
	assert.NotContains(t, body, "last_poll")
}

func TestStatusAfterPoll(t *testing.T) {
	poll := time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)
	s := NewServer(Options{
		Location: time.UTC,
		Status: stubStatus{st: driver.State{
			Baseline:            status.Free,
			ConsecutiveFailures: 0,
			LastPoll:            poll,
			LastResult:          &status.Result{MinutesToNextEvent: 2, Summary: "Standup", Status: status.Busy},
		}},
	})

	rec := do(t, s.Handler(), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "busy", body.Status)
	require.NotNil(t, body.MinutesToNextEvent)
	assert.Equal(t, 2, *body.MinutesToNextEvent)
	assert.Equal(t, "Standup", body.Summary)
	assert.Equal(t, "imminent", body.Tier)
	require.NotNil(t, body.LastPoll)
	assert.True(t, poll.Equal(*body.LastPoll))
}

func TestStatusUnavailable(t *testing.T) {
	s := NewServer(Options{})
	rec := do(t, s.Handler(), "/api/status")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "status unavailable")
}

func TestBasicAuth(t *testing.T) {
	s := NewServer(Options{
		Status:    stubStatus{},
		BasicAuth: &config.BasicAuthConfig{Username: "admin", Password: "secret"},
	})
	h := s.Handler()

	rec := do(t, h, "/api/status")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `realm="remindhd"`)

	rec = do(t, h, "/api/status", "admin", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, "/api/status", "admin", "secret")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBasicAuthEmptyCredentialsDisabled(t *testing.T) {
	s := NewServer(Options{Status: stubStatus{}, BasicAuth: &config.BasicAuthConfig{Username: "admin"}})
	rec := do(t, s.Handler(), "/api/status")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	m.ObserveResult(status.Result{MinutesToNextEvent: 4, Status: status.Free})

	s := NewServer(Options{Metrics: m.Handler()})
	rec := do(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "remindhd_minutes_to_next_event 4")

	rec = do(t, NewServer(Options{}).Handler(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsCached(t *testing.T) {
	start := time.Now().Add(5 * time.Minute)
	src := &stubSource{events: []model.CalendarEvent{
		{UID: "a", Summary: "Planning", Start: &start, Transparency: model.TransparencyOpaque},
		{UID: "b", Summary: "Holiday"},
	}}
	s := NewServer(Options{Source: src, Window: 10 * time.Minute})
	h := s.Handler()

	rec := do(t, h, "/api/events")
	require.Equal(t, http.StatusOK, rec.Code)

	var body eventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "stub", body.Source)
	require.Len(t, body.Events, 2)
	assert.Equal(t, "Planning", body.Events[0].Summary)
	assert.True(t, body.Events[0].Busy)
	assert.True(t, body.Events[1].AllDay)
	assert.Nil(t, body.Events[1].Start)
	assert.Equal(t, 10*time.Minute, body.RangeEnd.Sub(body.RangeStart))

	do(t, h, "/api/events")
	assert.Equal(t, 1, src.calls)

	// A different window bypasses the cache.
	rec = do(t, h, "/api/events?minutes=30")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, src.calls)
}

func TestEventsFetchError(t *testing.T) {
	src := &stubSource{err: errors.New("boom")}
	s := NewServer(Options{Source: src})
	rec := do(t, s.Handler(), "/api/events")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "failed to fetch events"))
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s := NewServer(Options{Listen: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
