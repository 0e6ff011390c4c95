// Package prefs holds the user policy that drives status derivation: working
// hours, busy-only and reminder-only filtering, and ignore keywords. A
// Preferences value is built once at startup and never mutated, so it can be
// shared across polls without locking.
package prefs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"remindhd/internal/config"
)

// ErrWorkingHoursDisabled is returned by the working-hours accessors when
// the working hours gate is off.
var ErrWorkingHoursDisabled = errors.New("prefs: working hours disabled")

// TimeOfDay is a wall-clock time expressed as an offset from midnight.
type TimeOfDay time.Duration

// ParseTimeOfDay parses a 24-hour "HH:MM" string ("8:00" is accepted).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("time of day %q: want HH:MM", s)
	}
	return TimeOfDay(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute), nil
}

// Of returns the time of day of t in t's own location.
func Of(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond()))
}

func (d TimeOfDay) String() string {
	dur := time.Duration(d)
	return fmt.Sprintf("%02d:%02d", int(dur.Hours()), int(dur.Minutes())%60)
}

// Preferences is an immutable snapshot of user policy.
type Preferences struct {
	busyOnly        bool
	reminderOnly    bool
	ignoreKeywords  []string
	useWorkingHours bool
	workStart       TimeOfDay
	workEnd         TimeOfDay
	searchWindow    int
}

// Options is the plain form of a preference set, used by FromConfig and by
// callers that build preferences without a config document.
type Options struct {
	BusyOnly            bool
	ReminderOnly        bool
	IgnoreKeywords      []string
	UseWorkingHours     bool
	WorkStart           string
	WorkEnd             string
	SearchWindowMinutes int
}

// New validates opts and returns the preference set. Malformed values are
// reported as *config.ConfigurationError.
func New(opts Options) (*Preferences, error) {
	p := &Preferences{
		busyOnly:        opts.BusyOnly,
		reminderOnly:    opts.ReminderOnly,
		useWorkingHours: opts.UseWorkingHours,
		searchWindow:    opts.SearchWindowMinutes,
	}
	if p.searchWindow <= 0 {
		return nil, &config.ConfigurationError{
			Key: "search_window_minutes",
			Err: fmt.Errorf("must be positive, got %d", opts.SearchWindowMinutes),
		}
	}

	for _, kw := range opts.IgnoreKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		p.ignoreKeywords = append(p.ignoreKeywords, kw)
	}

	if p.useWorkingHours {
		start, err := ParseTimeOfDay(opts.WorkStart)
		if err != nil {
			return nil, &config.ConfigurationError{Key: "work_start", Err: err}
		}
		end, err := ParseTimeOfDay(opts.WorkEnd)
		if err != nil {
			return nil, &config.ConfigurationError{Key: "work_end", Err: err}
		}
		if start >= end {
			return nil, &config.ConfigurationError{
				Key: "work_end",
				Err: fmt.Errorf("work_start %s must be before work_end %s", start, end),
			}
		}
		p.workStart = start
		p.workEnd = end
	}

	return p, nil
}

// FromConfig builds the preference set from a loaded configuration.
func FromConfig(cfg *config.Config) (*Preferences, error) {
	if cfg == nil {
		return nil, &config.ConfigurationError{Err: errors.New("config is nil")}
	}
	return New(Options{
		BusyOnly:            cfg.BusyOnly,
		ReminderOnly:        cfg.ReminderOnly,
		IgnoreKeywords:      cfg.IgnoreInSummary,
		UseWorkingHours:     cfg.UseWorkingHours,
		WorkStart:           cfg.WorkStart,
		WorkEnd:             cfg.WorkEnd,
		SearchWindowMinutes: cfg.SearchWindowMinutes,
	})
}

func (p *Preferences) BusyOnly() bool        { return p.busyOnly }
func (p *Preferences) ReminderOnly() bool    { return p.reminderOnly }
func (p *Preferences) UseWorkingHours() bool { return p.useWorkingHours }

// SearchWindowMinutes is how far ahead the calendar is queried.
func (p *Preferences) SearchWindowMinutes() int { return p.searchWindow }

// IgnoreKeywords returns a copy of the normalized (lower-case) keywords.
func (p *Preferences) IgnoreKeywords() []string {
	out := make([]string, len(p.ignoreKeywords))
	copy(out, p.ignoreKeywords)
	return out
}

// WorkStart returns the start of working hours.
func (p *Preferences) WorkStart() (TimeOfDay, error) {
	if !p.useWorkingHours {
		return 0, ErrWorkingHoursDisabled
	}
	return p.workStart, nil
}

// WorkEnd returns the end of working hours.
func (p *Preferences) WorkEnd() (TimeOfDay, error) {
	if !p.useWorkingHours {
		return 0, ErrWorkingHoursDisabled
	}
	return p.workEnd, nil
}

// Ignores reports whether summary contains any ignore keyword,
// case-insensitively.
func (p *Preferences) Ignores(summary string) bool {
	if len(p.ignoreKeywords) == 0 {
		return false
	}
	lower := strings.ToLower(summary)
	for _, kw := range p.ignoreKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// InWorkingHours reports whether now falls strictly inside the working
// hours window on a weekday. It is false when working hours are disabled.
func (p *Preferences) InWorkingHours(now time.Time) bool {
	if !p.useWorkingHours {
		return false
	}
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	tod := Of(now)
	return p.workStart < tod && tod < p.workEnd
}
