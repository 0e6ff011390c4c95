package status

import (
	"fmt"

	"remindhd/internal/model"
)

// MalformedEventError reports an event that breaks the calendar source
// contract.
type MalformedEventError struct {
	Index  int
	UID    string
	Reason string
}

func (e *MalformedEventError) Error() string {
	if e.UID != "" {
		return fmt.Sprintf("malformed event %d (%s): %s", e.Index, e.UID, e.Reason)
	}
	return fmt.Sprintf("malformed event %d: %s", e.Index, e.Reason)
}

// Validate checks the shape of events before they reach Evaluate. It returns
// the first violation found.
func Validate(events []model.CalendarEvent) error {
	for i, ev := range events {
		if ev.Start != nil && ev.Start.IsZero() {
			return &MalformedEventError{Index: i, UID: ev.UID, Reason: "zero start time"}
		}
		switch ev.Transparency {
		case "", model.TransparencyOpaque, model.TransparencyTransparent:
		default:
			return &MalformedEventError{Index: i, UID: ev.UID, Reason: fmt.Sprintf("unknown transparency %q", ev.Transparency)}
		}
		for _, o := range ev.Reminders.Overrides {
			if o.Minutes < 0 {
				return &MalformedEventError{Index: i, UID: ev.UID, Reason: fmt.Sprintf("negative reminder offset %d", o.Minutes)}
			}
		}
	}
	return nil
}
