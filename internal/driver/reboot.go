package driver

import (
	"context"
	"os/exec"
	"time"

	appLog "remindhd/internal/log"
)

// Rebooter restarts the host as a last-resort recovery from repeated fetch
// failures (typically a network stack that did not come back after a power
// loss).
type Rebooter interface {
	Reboot(ctx context.Context) error
}

// CommandRebooter counts down, logging each second, then runs a command.
type CommandRebooter struct {
	Countdown time.Duration
	Command   []string

	run func(ctx context.Context, name string, args ...string) error
}

// NewCommandRebooter returns a rebooter that runs "sudo reboot" after ten
// seconds.
func NewCommandRebooter() *CommandRebooter {
	return &CommandRebooter{
		Countdown: 10 * time.Second,
		Command:   []string{"sudo", "reboot"},
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

func (r *CommandRebooter) Reboot(ctx context.Context) error {
	for left := r.Countdown; left > 0; left -= time.Second {
		appLog.Warn("rebooting", "in", left)
		t := time.NewTimer(time.Second)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	appLog.Warn("rebooting now", "command", r.Command)
	return r.run(ctx, r.Command[0], r.Command[1:]...)
}
