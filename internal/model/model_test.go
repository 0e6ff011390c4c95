package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisplaySummary(t *testing.T) {
	assert.Equal(t, NoTitle, CalendarEvent{}.DisplaySummary())
	assert.Equal(t, "1:1", CalendarEvent{Summary: "1:1"}.DisplaySummary())
}

func TestIsBusy(t *testing.T) {
	assert.True(t, CalendarEvent{}.IsBusy())
	assert.True(t, CalendarEvent{Transparency: TransparencyOpaque}.IsBusy())
	assert.False(t, CalendarEvent{Transparency: TransparencyTransparent}.IsBusy())
}

func TestHasReminder(t *testing.T) {
	assert.False(t, CalendarEvent{}.HasReminder())
	assert.True(t, CalendarEvent{Reminders: Reminders{UseDefault: true}}.HasReminder())
	assert.True(t, CalendarEvent{Reminders: Reminders{
		Overrides: []ReminderOverride{{Method: "popup", Minutes: 10}},
	}}.HasReminder())
}

func TestIsAllDay(t *testing.T) {
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	assert.True(t, CalendarEvent{}.IsAllDay())
	assert.False(t, CalendarEvent{Start: &start}.IsAllDay())
}
