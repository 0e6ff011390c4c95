// Package driver runs the polling loop: once per elapsed minute it fetches
// the calendar window, evaluates the status, renders it and updates the
// remote beacon. It owns the only mutable state of the process.
package driver

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"remindhd/internal/beacon"
	"remindhd/internal/calendar"
	"remindhd/internal/indicator"
	appLog "remindhd/internal/log"
	"remindhd/internal/metrics"
	"remindhd/internal/prefs"
	"remindhd/internal/status"
)

// DefaultSchedule polls at the top of every minute.
const DefaultSchedule = "* * * * *"

// Renderer is the subset of *indicator.Indicator the driver uses.
type Renderer interface {
	SetActivityLight(c color.RGBA, increment bool) error
	ShowFailure(ctx context.Context) error
	ShowResult(ctx context.Context, r status.Result, showSummary bool) error
}

// Options wires a Driver. Source, Prefs and Renderer are required; Notifier,
// Rebooter and Metrics may be nil.
type Options struct {
	Source   calendar.Source
	Prefs    *prefs.Preferences
	Renderer Renderer
	Notifier beacon.Notifier
	Rebooter Rebooter
	Metrics  *metrics.Metrics

	// Schedule is a standard 5-field cron expression.
	Schedule string
	// ShowSummary scrolls the event titles (display_meeting_summary).
	ShowSummary bool

	UseRebootCounter   bool
	RebootCounterLimit int

	// Location is the zone working hours are expressed in. Nil means
	// time.Local.
	Location *time.Location
	// Clock returns the current time. Nil means time.Now.
	Clock func() time.Time
}

// State is the driver's owned, mutable state. It is created at startup,
// changed only by Tick and discarded at exit.
type State struct {
	LastMinute          int
	HasError            bool
	ConsecutiveFailures int
	LastPoll            time.Time
	LastError           string
	LastResult          *status.Result
	Baseline            status.Status
}

// Driver is the polling loop.
type Driver struct {
	opts   Options
	window time.Duration

	mu    sync.Mutex
	state State
}

// New validates opts and initializes the state so the first MinuteChanged
// call reports a change.
func New(opts Options) (*Driver, error) {
	if opts.Source == nil || opts.Prefs == nil || opts.Renderer == nil {
		return nil, errors.New("driver: source, prefs and renderer are required")
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(opts.Schedule); err != nil {
		return nil, fmt.Errorf("driver: invalid poll schedule %q: %w", opts.Schedule, err)
	}
	if opts.UseRebootCounter && opts.RebootCounterLimit <= 0 {
		return nil, fmt.Errorf("driver: reboot counter limit must be positive, got %d", opts.RebootCounterLimit)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	now := opts.Clock().In(opts.Location)
	return &Driver{
		opts:   opts,
		window: time.Duration(opts.Prefs.SearchWindowMinutes()) * time.Minute,
		state: State{
			LastMinute: previousMinute(now.Minute()),
			Baseline:   status.Baseline(now, opts.Prefs),
		},
	}, nil
}

func previousMinute(m int) int {
	if m == 0 {
		return 59
	}
	return m - 1
}

// MinuteChanged reports whether now falls in a different wall-clock minute
// than the last poll, and records it if so.
func (d *Driver) MinuteChanged(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := now.In(d.opts.Location).Minute()
	if m == d.state.LastMinute {
		return false
	}
	d.state.LastMinute = m
	return true
}

// Snapshot returns a copy of the state.
func (d *Driver) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.state
	if s.LastResult != nil {
		r := *s.LastResult
		s.LastResult = &r
	}
	return s
}

// Tick performs one poll at now. A fetch or validation failure is returned
// after the failure policy ran; rendering and beacon errors are logged only.
func (d *Driver) Tick(ctx context.Context, now time.Time) error {
	now = now.In(d.opts.Location)
	start := time.Now()

	d.mu.Lock()
	hadError := d.state.HasError
	d.mu.Unlock()

	// Leave the failure light alone while a previous error persists.
	if !hadError {
		d.render(ctx, "activity", d.opts.Renderer.SetActivityLight(indicator.Checking, true))
	}

	appLog.Debug("driver: fetching events", "source", d.opts.Source.Name(), "from", now.Format(time.RFC3339), "window", d.window)
	events, err := d.opts.Source.Events(ctx, now, now.Add(d.window))
	if err != nil {
		var fe *calendar.FetchError
		if !errors.As(err, &fe) {
			err = &calendar.FetchError{Source: d.opts.Source.Name(), Err: err}
		}
	} else {
		err = status.Validate(events)
	}
	if err != nil {
		return d.fail(ctx, now, start, err)
	}

	d.render(ctx, "activity", d.opts.Renderer.SetActivityLight(indicator.Success, false))

	result := status.Evaluate(events, now, d.opts.Prefs, d.opts.Prefs.SearchWindowMinutes())
	appLog.Info("driver: evaluated",
		"status", result.Status,
		"minutes", result.MinutesToNextEvent,
		"summary", result.Summary,
		"events", len(events),
	)

	d.mu.Lock()
	d.state.HasError = false
	d.state.ConsecutiveFailures = 0
	d.state.LastPoll = now
	d.state.LastError = ""
	d.state.LastResult = &result
	d.state.Baseline = status.Baseline(now, d.opts.Prefs)
	d.mu.Unlock()

	if m := d.opts.Metrics; m != nil {
		m.ObservePoll(now, time.Since(start), nil, 0)
		m.ObserveResult(result)
	}

	if d.opts.Notifier != nil {
		berr := d.opts.Notifier.SetStatus(ctx, result.Status)
		if berr != nil {
			appLog.Error("driver: beacon update failed", berr, "status", result.Status)
		}
		if m := d.opts.Metrics; m != nil {
			m.ObserveBeacon(berr)
		}
	}

	if result.HasUpcoming() {
		if result.MinutesToNextEvent == 1 {
			appLog.Info("driver: next event starts in 1 minute")
		} else {
			appLog.Info("driver: next event", "starts_in_minutes", result.MinutesToNextEvent)
		}
	}
	d.render(ctx, "result", d.opts.Renderer.ShowResult(ctx, result, d.opts.ShowSummary))
	return ctx.Err()
}

func (d *Driver) fail(ctx context.Context, now, start time.Time, err error) error {
	appLog.Error("driver: poll failed", err, "source", d.opts.Source.Name())
	d.render(ctx, "failure", d.opts.Renderer.ShowFailure(ctx))

	d.mu.Lock()
	d.state.HasError = true
	d.state.ConsecutiveFailures++
	d.state.LastPoll = now
	d.state.LastError = err.Error()
	failures := d.state.ConsecutiveFailures
	d.mu.Unlock()

	if m := d.opts.Metrics; m != nil {
		m.ObservePoll(now, time.Since(start), err, failures)
	}

	if d.opts.UseRebootCounter {
		appLog.Warn("driver: incrementing reboot counter", "failures", failures, "limit", d.opts.RebootCounterLimit)
		if failures == d.opts.RebootCounterLimit && d.opts.Rebooter != nil {
			if m := d.opts.Metrics; m != nil {
				m.ObserveReboot()
			}
			if rerr := d.opts.Rebooter.Reboot(ctx); rerr != nil {
				appLog.Error("driver: reboot failed", rerr)
			}
		}
	}
	return err
}

func (d *Driver) render(ctx context.Context, what string, err error) {
	if err == nil || ctx.Err() != nil {
		return
	}
	appLog.Error("driver: render failed", err, "effect", what)
}

// poll runs a tick when the minute changed since the last one.
func (d *Driver) poll(ctx context.Context) {
	now := d.opts.Clock()
	if !d.MinuteChanged(now) {
		return
	}
	// Errors are already logged and counted by Tick.
	_ = d.Tick(ctx, now)
}

// Run polls immediately, then on the configured cron schedule until ctx is
// cancelled. Overlapping runs are skipped.
func (d *Driver) Run(ctx context.Context) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(d.opts.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(d.opts.Schedule, func() { d.poll(ctx) }); err != nil {
		return fmt.Errorf("driver: schedule: %w", err)
	}

	appLog.Info("driver: starting", "schedule", d.opts.Schedule, "window", d.window, "reboot_counter", d.opts.UseRebootCounter)
	d.poll(ctx)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	appLog.Info("driver: stopped")
	return nil
}

// cronLogger routes robfig/cron's internal logging to the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}
