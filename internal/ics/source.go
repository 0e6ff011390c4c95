package ics

import (
	"context"
	"time"

	"remindhd/internal/model"
)

// Source adapts a single ICS subscription to calendar.Source.
type Source struct {
	feed     Feed
	fetcher  *Fetcher
	location *time.Location
}

// NewSource returns a Source polling url. Occurrence times are converted to
// loc; nil means time.Local.
func NewSource(url, cacheDir string, loc *time.Location) *Source {
	return &Source{
		feed:     Feed{ID: "ics", URL: url},
		fetcher:  NewFetcher(cacheDir),
		location: loc,
	}
}

func (s *Source) Name() string { return "ics:" + redactURL(s.feed.URL) }

// Events fetches the feed (falling back to the cached body) and expands it
// into the events overlapping [from, to).
func (s *Source) Events(ctx context.Context, from, to time.Time) ([]model.CalendarEvent, error) {
	res, err := s.fetcher.Fetch(ctx, s.feed)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseICS(s.feed, res.Body)
	if err != nil {
		return nil, err
	}
	return Expand(parsed, Window{From: from, To: to, Location: s.location})
}
