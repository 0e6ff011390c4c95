package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remindhd/internal/beacon"
	"remindhd/internal/calendar"
	"remindhd/internal/calendar/google"
	"remindhd/internal/config"
	"remindhd/internal/driver"
	"remindhd/internal/ics"
	"remindhd/internal/indicator"
	appLog "remindhd/internal/log"
	"remindhd/internal/metrics"
	"remindhd/internal/prefs"
	"remindhd/internal/unicorn"
	"remindhd/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	authorize  bool
	noDisplay  bool
}

func main() {
	os.Exit(run())
}

func run() int {
	appLog.Info("remindhd starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		var ce *config.ConfigurationError
		if errors.As(err, &ce) {
			appLog.Error("invalid configuration", err, "config_path", flags.configPath)
		} else {
			appLog.Error("failed to load config", err, "config_path", flags.configPath)
		}
		return 1
	}

	if conf.DebugMode {
		appLog.SetLevel(appLog.LevelDebug)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.authorize {
		if err := google.Authorize(ctx, conf.Calendar.CredentialsFile, conf.Calendar.TokenFile, os.Stdin, os.Stdout); err != nil {
			appLog.Error("authorization failed", err)
			return 1
		}
		appLog.Info("authorization complete", "token_file", conf.Calendar.TokenFile)
		return 0
	}

	loc, err := conf.Location()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", conf.Timezone)
		loc = time.Local
	}

	p, err := prefs.FromConfig(conf)
	if err != nil {
		appLog.Error("invalid preferences", err)
		return 1
	}

	appLog.Info("effective config",
		"source", conf.Calendar.Source,
		"timezone", loc.String(),
		"busy_only", p.BusyOnly(),
		"reminder_only", p.ReminderOnly(),
		"use_working_hours", p.UseWorkingHours(),
		"search_window_minutes", p.SearchWindowMinutes(),
		"use_remote_notify", conf.UseRemoteNotify,
		"use_reboot_counter", conf.UseRebootCounter,
		"listen", conf.Listen,
		"once", flags.once,
	)

	display := unicorn.Default(ctx, unicorn.Options{
		Brightness: conf.Display.Brightness,
		Rotation:   conf.Display.Rotation,
		Disabled:   conf.Display.Disabled || flags.noDisplay,
	})
	ind := indicator.New(display)
	defer func() {
		if err := ind.Off(); err != nil {
			appLog.Error("failed to clear display", err)
		}
		if err := display.Close(); err != nil {
			appLog.Error("failed to close display", err)
		}
	}()

	if err := ind.SelfTest(ctx); err != nil && ctx.Err() == nil {
		appLog.Error("display self test failed", err)
	}

	src, err := newSource(ctx, conf, loc)
	if err != nil {
		appLog.Error("failed to initialize calendar source", err, "source", conf.Calendar.Source)
		_ = ind.Halt(ctx)
		return 1
	}

	var notifier beacon.Notifier
	if conf.UseRemoteNotify {
		particle, err := beacon.NewParticle(ctx, beacon.Options{
			APIURL:      conf.Particle.APIURL,
			DeviceID:    conf.DeviceID,
			Function:    conf.Particle.Function,
			AccessToken: conf.AccessToken,
		})
		if err != nil {
			appLog.Error("failed to initialize remote beacon", err)
			return 1
		}
		notifier = beacon.NewSuppressor(particle)
	}

	m := metrics.New()
	d, err := driver.New(driver.Options{
		Source:             src,
		Prefs:              p,
		Renderer:           ind,
		Notifier:           notifier,
		Rebooter:           driver.NewCommandRebooter(),
		Metrics:            m,
		Schedule:           conf.PollSchedule,
		ShowSummary:        conf.DisplayMeetingSummary,
		UseRebootCounter:   conf.UseRebootCounter,
		RebootCounterLimit: conf.RebootCounterLimit,
		Location:           loc,
	})
	if err != nil {
		appLog.Error("failed to initialize driver", err)
		return 1
	}

	if flags.once {
		if err := d.Tick(ctx, time.Now()); err != nil {
			return 1
		}
		return 0
	}

	if conf.Listen != "" {
		srv := web.NewServer(web.Options{
			Listen:    conf.Listen,
			BasicAuth: conf.BasicAuth,
			Status:    d,
			Source:    src,
			Window:    time.Duration(p.SearchWindowMinutes()) * time.Minute,
			Metrics:   m.Handler(),
			Location:  loc,
		})
		go func() {
			if err := srv.Run(ctx); err != nil {
				appLog.Error("HTTP server error", err)
			}
		}()
	}

	if err := d.Run(ctx); err != nil {
		appLog.Error("driver stopped", err)
		return 1
	}
	appLog.Info("remindhd exiting")
	return 0
}

func newSource(ctx context.Context, conf *config.Config, loc *time.Location) (calendar.Source, error) {
	switch conf.Calendar.Source {
	case config.SourceICS:
		return ics.NewSource(conf.Calendar.ICSURL, conf.Calendar.CacheDir, loc), nil
	default:
		return google.New(ctx, google.Options{
			CredentialsFile: conf.Calendar.CredentialsFile,
			TokenFile:       conf.Calendar.TokenFile,
			CalendarID:      conf.Calendar.CalendarID,
		})
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/remindhd/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address for the status API (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one poll cycle and exit")
	flag.BoolVar(&cfg.authorize, "authorize", false, "Run the Google OAuth consent flow, store the token and exit")
	flag.BoolVar(&cfg.noDisplay, "no-display", false, "Do not touch the LED matrix; log effects instead")

	flag.Parse()

	return cfg
}
