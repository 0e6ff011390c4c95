package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//remindhd//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:focus@test\r\n" +
	"SUMMARY:Focus\r\n" +
	"DTSTART:20250303T093000Z\r\n" +
	"DTEND:20250303T110000Z\r\n" +
	"RRULE:FREQ=DAILY;COUNT=5\r\n" +
	"EXDATE:20250304T093000Z\r\n" +
	"TRANSP:TRANSPARENT\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:standup@test\r\n" +
	"SUMMARY:Standup\r\n" +
	"DTSTART:20250305T100500Z\r\n" +
	"DTEND:20250305T101500Z\r\n" +
	"TRANSP:OPAQUE\r\n" +
	"BEGIN:VALARM\r\n" +
	"ACTION:DISPLAY\r\n" +
	"TRIGGER:-PT5M\r\n" +
	"END:VALARM\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:dropped@test\r\n" +
	"SUMMARY:Dropped\r\n" +
	"DTSTART:20250305T100700Z\r\n" +
	"DTEND:20250305T103000Z\r\n" +
	"STATUS:CANCELLED\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:holiday@test\r\n" +
	"SUMMARY:Holiday\r\n" +
	"DTSTART;VALUE=DATE:20250305\r\n" +
	"DTEND;VALUE=DATE:20250306\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

var tenAM = time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)

func TestParseICSReadsEventAttributes(t *testing.T) {
	events, err := ParseICS(Feed{ID: "work"}, []byte(fixture))
	require.NoError(t, err)
	require.Len(t, events, 4)

	byUID := make(map[string]ParsedEvent)
	for _, ev := range events {
		byUID[ev.UID] = ev
	}

	focus := byUID["focus@test"]
	assert.Equal(t, "transparent", focus.Transparency)
	assert.Equal(t, "FREQ=DAILY;COUNT=5", focus.RawRRule)
	require.Len(t, focus.ExDates, 1)

	standup := byUID["standup@test"]
	assert.Equal(t, "opaque", standup.Transparency)
	require.Len(t, standup.Alarms, 1)
	assert.Equal(t, 5, standup.Alarms[0].Minutes)
	assert.Equal(t, "display", standup.Alarms[0].Method)

	assert.True(t, byUID["dropped@test"].Cancelled)
	assert.True(t, byUID["holiday@test"].AllDay)
}

func TestParseICSRejectsEmptyBody(t *testing.T) {
	_, err := ParseICS(Feed{ID: "x"}, nil)
	assert.Error(t, err)
}

func TestExpandWindow(t *testing.T) {
	parsed, err := ParseICS(Feed{ID: "work"}, []byte(fixture))
	require.NoError(t, err)

	events, err := Expand(parsed, Window{From: tenAM, To: tenAM.Add(10 * time.Minute), Location: time.UTC})
	require.NoError(t, err)

	var timed []string
	for _, ev := range events {
		if ev.IsAllDay() {
			continue
		}
		timed = append(timed, ev.UID)
	}
	// Focus is already in progress, Dropped is cancelled.
	assert.Equal(t, []string{"focus@test", "standup@test"}, timed)

	for _, ev := range events {
		if ev.UID == "focus@test" {
			require.NotNil(t, ev.Start)
			assert.True(t, ev.Start.Equal(time.Date(2025, 3, 5, 9, 30, 0, 0, time.UTC)))
			assert.False(t, ev.IsBusy())
			assert.False(t, ev.HasReminder())
		}
		if ev.UID == "standup@test" {
			assert.Equal(t, "work", ev.SourceID)
			assert.True(t, ev.IsBusy())
			assert.True(t, ev.HasReminder())
		}
	}
}

func TestExpandHonorsExDate(t *testing.T) {
	parsed, err := ParseICS(Feed{ID: "work"}, []byte(fixture))
	require.NoError(t, err)

	from := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	events, err := Expand(parsed, Window{From: from, To: from.AddDate(0, 0, 7), Location: time.UTC})
	require.NoError(t, err)

	var days []int
	for _, ev := range events {
		if ev.UID == "focus@test" {
			days = append(days, ev.Start.Day())
		}
	}
	assert.Equal(t, []int{3, 5, 6, 7}, days)
}

func TestExpandAllDayFirstWithoutStart(t *testing.T) {
	parsed, err := ParseICS(Feed{ID: "work"}, []byte(fixture))
	require.NoError(t, err)

	from := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	events, err := Expand(parsed, Window{From: from, To: from.AddDate(0, 0, 3), Location: time.UTC})
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "holiday@test", events[0].UID)
	assert.Nil(t, events[0].Start)
}

func TestExpandRejectsInvertedWindow(t *testing.T) {
	_, err := Expand(nil, Window{From: tenAM, To: tenAM.Add(-time.Minute)})
	assert.Error(t, err)
}

func TestOverlapsIsHalfOpen(t *testing.T) {
	end := tenAM.Add(10 * time.Minute)
	assert.False(t, overlaps(tenAM.Add(-time.Hour), tenAM, tenAM, end), "ends exactly at window start")
	assert.False(t, overlaps(end, end.Add(time.Minute), tenAM, end), "starts exactly at window end")
	assert.True(t, overlaps(tenAM, tenAM, tenAM, end), "instant at window start")
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"-PT15M":   -15 * time.Minute,
		"PT0S":     0,
		"-P1D":     -24 * time.Hour,
		"-P1DT2H":  -26 * time.Hour,
		"+PT1H30M": 90 * time.Minute,
		"-P1W":     -7 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, err := parseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "15M", "-PTM", "-PT15"} {
		_, err := parseDuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestSourceFetchesAndCaches(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(fixture))
	}))
	defer srv.Close()

	src := NewSource(srv.URL+"/private/token.ics", t.TempDir(), time.UTC)
	assert.True(t, strings.HasSuffix(src.Name(), "/...(redacted)"))

	first, err := src.Events(context.Background(), tenAM, tenAM.Add(10*time.Minute))
	require.NoError(t, err)

	second, err := src.Events(context.Background(), tenAM, tenAM.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, len(first), len(second))
}

func TestFetchFallsBackToCache(t *testing.T) {
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(fixture))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir())
	feed := Feed{ID: "work", URL: srv.URL + "/cal.ics"}

	res, err := f.Fetch(context.Background(), feed)
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	fail = true
	res, err = f.Fetch(context.Background(), feed)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, fixture, string(res.Body))
}

func TestFetchWithoutCacheFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewFetcher(t.TempDir()).Fetch(context.Background(), Feed{ID: "x", URL: srv.URL})
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", redactURL("https://example.com/a/b.ics?token=x"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
