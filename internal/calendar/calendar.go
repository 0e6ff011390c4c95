// Package calendar defines the boundary to calendar services.
package calendar

import (
	"context"
	"fmt"
	"time"

	"remindhd/internal/model"
)

// Source lists the events of a calendar between from and to, ordered by
// start time. Events already in progress at from are included.
type Source interface {
	Name() string
	Events(ctx context.Context, from, to time.Time) ([]model.CalendarEvent, error)
}

// FetchError wraps any failure to retrieve events from a Source. The polling
// driver counts these toward its restart policy.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("calendar %s: fetch failed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
