// Package google reads events from the Google Calendar API.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	appLog "remindhd/internal/log"
	"remindhd/internal/model"
)

const requestTimeout = 10 * time.Second

// Options configures the Google Calendar source.
type Options struct {
	// CredentialsFile is the OAuth client JSON from the Cloud console.
	CredentialsFile string
	// TokenFile holds the authorized user token; it is rewritten whenever
	// the token is refreshed.
	TokenFile string
	// CalendarID defaults to "primary".
	CalendarID string
}

// Source lists events from one Google calendar.
type Source struct {
	svc        *calendarapi.Service
	calendarID string
}

// New builds a Source from stored credentials. The token file must exist;
// run the authorize flow first.
func New(ctx context.Context, opts Options) (*Source, error) {
	conf, err := oauthConfig(opts.CredentialsFile)
	if err != nil {
		return nil, err
	}

	tok, err := LoadToken(opts.TokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("google: no token at %s; run with -authorize first", opts.TokenFile)
		}
		return nil, err
	}

	ts := &persistingTokenSource{
		base: conf.TokenSource(ctx, tok),
		path: opts.TokenFile,
		last: tok.AccessToken,
	}
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = requestTimeout

	svc, err := calendarapi.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("google: create calendar service: %w", err)
	}
	return NewWithService(svc, opts.CalendarID), nil
}

// NewWithService wraps an existing calendar service.
func NewWithService(svc *calendarapi.Service, calendarID string) *Source {
	if calendarID == "" {
		calendarID = "primary"
	}
	return &Source{svc: svc, calendarID: calendarID}
}

func (s *Source) Name() string { return "google:" + s.calendarID }

// Events lists single (expanded) events overlapping [from, to) ordered by
// start time.
func (s *Source) Events(ctx context.Context, from, to time.Time) ([]model.CalendarEvent, error) {
	call := s.svc.Events.List(s.calendarID).
		TimeMin(from.UTC().Format(time.RFC3339)).
		TimeMax(to.UTC().Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")

	var out []model.CalendarEvent
	err := call.Pages(ctx, func(page *calendarapi.Events) error {
		for _, item := range page.Items {
			ev, err := toModel(s.calendarID, item)
			if err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	appLog.Debug("google events listed", "calendar", s.calendarID, "count", len(out))
	return out, nil
}

func toModel(calendarID string, item *calendarapi.Event) (model.CalendarEvent, error) {
	ev := model.CalendarEvent{
		SourceID:     calendarID,
		UID:          item.Id,
		Summary:      item.Summary,
		Transparency: item.Transparency,
	}

	start, err := parseEventTime(item.Start)
	if err != nil {
		return ev, fmt.Errorf("google: event %s start: %w", item.Id, err)
	}
	end, err := parseEventTime(item.End)
	if err != nil {
		return ev, fmt.Errorf("google: event %s end: %w", item.Id, err)
	}
	ev.Start = start
	ev.End = end

	if item.Reminders != nil {
		ev.Reminders.UseDefault = item.Reminders.UseDefault
		for _, o := range item.Reminders.Overrides {
			if o == nil {
				continue
			}
			ev.Reminders.Overrides = append(ev.Reminders.Overrides, model.ReminderOverride{
				Method:  o.Method,
				Minutes: int(o.Minutes),
			})
		}
	}
	return ev, nil
}

// parseEventTime returns nil for all-day (date-only) values.
func parseEventTime(t *calendarapi.EventDateTime) (*time.Time, error) {
	if t == nil || t.DateTime == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, t.DateTime)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func oauthConfig(credentialsFile string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("google: read credentials: %w", err)
	}
	conf, err := googleoauth.ConfigFromJSON(data, calendarapi.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("google: parse credentials: %w", err)
	}
	return conf, nil
}
