package status

import (
	"strings"
	"time"

	appLog "remindhd/internal/log"
	"remindhd/internal/model"
	"remindhd/internal/prefs"
)

// NoUpcomingEvent is the MinutesToNextEvent sentinel when no upcoming event
// qualified.
const NoUpcomingEvent = -1

// Result is the outcome of one evaluation.
type Result struct {
	// MinutesToNextEvent is NoUpcomingEvent when nothing qualified, otherwise
	// whole minutes to the soonest upcoming event, capped at the search window.
	MinutesToNextEvent int `json:"minutes_to_next_event"`
	// Summary joins the titles of all qualifying upcoming events with ", ",
	// in the order they were supplied.
	Summary string `json:"summary"`
	Status  Status `json:"status"`
}

// HasUpcoming reports whether an upcoming event qualified.
func (r Result) HasUpcoming() bool {
	return r.MinutesToNextEvent != NoUpcomingEvent
}

type upcoming struct {
	summary string
	minutes int
}

// Baseline is the status before any ongoing event is considered: Free when
// working hours are disabled or now is inside them, Off otherwise.
func Baseline(now time.Time, p *prefs.Preferences) Status {
	if !p.UseWorkingHours() {
		return Free
	}
	if p.InWorkingHours(now) {
		return Free
	}
	return Off
}

// Evaluate reduces events to a Result. events must be ordered by start time
// as the calendar sources guarantee; now should be in the zone working hours
// are expressed in. Evaluate does no I/O and is deterministic in its inputs.
func Evaluate(events []model.CalendarEvent, now time.Time, p *prefs.Preferences, windowMinutes int) Result {
	current := Baseline(now, p)
	appLog.Debug("status baseline", "status", current, "now", now.Format(time.RFC3339))

	var next []upcoming
	for _, ev := range events {
		if ev.IsAllDay() {
			continue
		}
		summary := ev.DisplaySummary()
		if p.Ignores(summary) {
			appLog.Debug("ignoring event", "summary", summary)
			continue
		}

		start := *ev.Start
		if start.After(now) {
			if p.ReminderOnly() && !ev.HasReminder() {
				appLog.Debug("skipping upcoming event without reminder", "summary", summary)
				continue
			}
			minutes := int(start.Sub(now) / time.Minute)
			appLog.Debug("upcoming event", "summary", summary, "minutes", minutes)
			next = append(next, upcoming{summary: summary, minutes: minutes})
			continue
		}

		appLog.Debug("ongoing event", "summary", summary, "busy", ev.IsBusy())
		if p.BusyOnly() {
			if ev.IsBusy() {
				current = Busy
			}
			continue
		}
		if ev.IsBusy() {
			current = Combine(current, Busy)
		} else {
			current = Combine(current, Tentative)
		}
	}

	if len(next) == 0 {
		return Result{MinutesToNextEvent: NoUpcomingEvent, Summary: "", Status: current}
	}

	nearest := windowMinutes
	titles := make([]string, 0, len(next))
	for _, u := range next {
		titles = append(titles, u.summary)
		if u.minutes < nearest {
			nearest = u.minutes
		}
	}
	return Result{
		MinutesToNextEvent: nearest,
		Summary:            strings.Join(titles, ", "),
		Status:             current,
	}
}
