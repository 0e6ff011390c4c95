package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "remindhd/internal/log"
	"remindhd/internal/model"
)

const defaultMaxOccurrencesPerEvent = 500

// Window is the half-open range [From, To) of occurrences to produce.
type Window struct {
	From time.Time
	To   time.Time

	// Location converts occurrence times. Nil means time.Local.
	Location *time.Location

	// MaxOccurrencesPerEvent caps a single RRULE expansion. Zero uses the
	// package default.
	MaxOccurrencesPerEvent int
}

// Expand turns parsed VEVENTs into concrete calendar events overlapping the
// window, ordered by start time with all-day events first.
//
// RRULE, EXDATE and RECURRENCE-ID overrides are applied. Cancelled events and
// cancelled overrides produce nothing.
func Expand(events []ParsedEvent, w Window) ([]model.CalendarEvent, error) {
	if w.To.Before(w.From) {
		return nil, errors.New("expand: window end is before start")
	}
	if w.Location == nil {
		w.Location = time.Local
	}
	if w.MaxOccurrencesPerEvent <= 0 {
		w.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	bases := make(map[string][]ParsedEvent)
	overrides := make(map[string][]ParsedEvent)
	var order []string
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := bases[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		bases[ev.UID] = append(bases[ev.UID], ev)
	}

	out := make([]model.CalendarEvent, 0)
	for _, uid := range order {
		for _, ev := range bases[uid] {
			if ev.Cancelled {
				continue
			}
			if ev.RawRRule == "" {
				out = append(out, expandSingle(ev, overrides[uid], w)...)
				continue
			}
			occ, capped := expandRecurring(ev, overrides[uid], w)
			if capped {
				appLog.Warn("expand: occurrences truncated", "uid", uid, "cap", w.MaxOccurrencesPerEvent)
			}
			out = append(out, occ...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Start, out[j].Start
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	return out, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, w Window) []model.CalendarEvent {
	if o, ok := findOverride(overrides, ev.Start); ok {
		ev = o
	}
	if ev.Cancelled || !overlaps(ev.Start, ev.End, w.From, w.To) {
		return nil
	}
	return []model.CalendarEvent{toModel(ev, ev.Start, ev.End, w.Location)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, w Window) ([]model.CalendarEvent, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the event duration so occurrences already in
	// progress at From are found.
	dur := ev.End.Sub(ev.Start)
	lo := w.From.Add(-dur).In(ev.Start.Location())
	hi := w.To.In(ev.Start.Location())
	starts := set.Between(lo, hi, true)

	capped := false
	if len(starts) > w.MaxOccurrencesPerEvent {
		starts = starts[:w.MaxOccurrencesPerEvent]
		capped = true
	}

	out := make([]model.CalendarEvent, 0, len(starts))
	for _, start := range starts {
		end := start.Add(dur)
		if ev.AllDay {
			start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
			end = start.AddDate(0, 0, 1)
		}

		inst := ev
		if o, ok := findOverride(overrides, start); ok {
			if o.Cancelled {
				continue
			}
			inst, start, end = o, o.Start, o.End
		}
		if !overlaps(start, end, w.From, w.To) {
			continue
		}
		out = append(out, toModel(inst, start, end, w.Location))
	}
	return out, capped
}

// findOverride finds the override whose RECURRENCE-ID equals start.
func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

func toModel(ev ParsedEvent, start, end time.Time, loc *time.Location) model.CalendarEvent {
	out := model.CalendarEvent{
		SourceID:     ev.Feed.ID,
		UID:          ev.UID,
		Summary:      ev.Summary,
		Transparency: ev.Transparency,
	}
	if len(ev.Alarms) > 0 {
		out.Reminders.Overrides = append([]model.ReminderOverride(nil), ev.Alarms...)
	}
	if ev.AllDay {
		return out
	}
	s, e := start.In(loc), end.In(loc)
	out.Start, out.End = &s, &e
	return out
}

// overlaps reports whether [aStart, aEnd) intersects [bStart, bEnd). A
// zero-length event counts when its instant falls inside the window.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aEnd.After(aStart) {
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aEnd.After(bStart) && aStart.Before(bEnd)
}
