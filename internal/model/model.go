package model

import "time"

// NoTitle is shown for events that carry no summary.
const NoTitle = "No Title"

// Transparency markers. Anything other than TransparencyTransparent is busy.
const (
	TransparencyOpaque      = "opaque"
	TransparencyTransparent = "transparent"
)

// ReminderOverride is a single explicit reminder on an event.
type ReminderOverride struct {
	Method  string // popup, email, display, ...
	Minutes int    // minutes before start
}

// Reminders mirrors the reminder block of a calendar event: either the
// calendar's default reminder applies, or a list of explicit overrides.
type Reminders struct {
	UseDefault bool
	Overrides  []ReminderOverride
}

// CalendarEvent is a single concrete event as delivered by a calendar
// source, ordered by start time within the fetch window.
type CalendarEvent struct {
	SourceID string // calendar source ID
	UID      string

	// Summary is empty when the event has no title.
	Summary string

	// Start is nil for all-day events.
	Start *time.Time
	End   *time.Time

	// Transparency is empty or "opaque" for busy events and "transparent"
	// for events that do not block time.
	Transparency string

	Reminders Reminders
}

// DisplaySummary returns the summary or NoTitle when absent.
func (e CalendarEvent) DisplaySummary() string {
	if e.Summary == "" {
		return NoTitle
	}
	return e.Summary
}

// IsAllDay reports whether the event has no start time.
func (e CalendarEvent) IsAllDay() bool {
	return e.Start == nil
}

// IsBusy reports whether the event blocks time.
func (e CalendarEvent) IsBusy() bool {
	return e.Transparency != TransparencyTransparent
}

// HasReminder is true when the default reminder is enabled or at least one
// override exists.
func (e CalendarEvent) HasReminder() bool {
	return e.Reminders.UseDefault || len(e.Reminders.Overrides) > 0
}
