package indicator

import (
	"context"
	"time"

	"remindhd/internal/status"
)

// Tier groups minutes-to-next-event into the three alert levels.
type Tier string

const (
	TierNone     Tier = "none"
	TierFar      Tier = "far"      // 5 minutes or more
	TierNear     Tier = "near"     // 3 to 4 minutes
	TierImminent Tier = "imminent" // 2 minutes or less
)

const (
	farThreshold  = 5
	nearThreshold = 2
)

// TierFor maps a Result's MinutesToNextEvent to a Tier. Negative values mean
// nothing is coming up.
func TierFor(minutes int) Tier {
	switch {
	case minutes < 0:
		return TierNone
	case minutes >= farThreshold:
		return TierFar
	case minutes > nearThreshold:
		return TierNear
	default:
		return TierImminent
	}
}

// ShowResult renders the alert for an evaluation: a flash or swirl sized to
// the tier, the scrolling summary when showSummary is set, then the activity
// light in the tier color. Nothing is drawn when no event is upcoming.
func (in *Indicator) ShowResult(ctx context.Context, r status.Result, showSummary bool) error {
	c := White
	switch TierFor(r.MinutesToNextEvent) {
	case TierNone:
		return nil
	case TierFar:
		if err := in.FlashAll(ctx, 1, 250*time.Millisecond, White); err != nil {
			return err
		}
	case TierNear:
		c = Yellow
		if err := in.FlashAll(ctx, 2, 250*time.Millisecond, Yellow); err != nil {
			return err
		}
	case TierImminent:
		c = Orange
		// Longer the closer the event is.
		if err := in.Swirl(ctx, (4-r.MinutesToNextEvent)*50); err != nil {
			return err
		}
	}

	if showSummary {
		if err := in.ScrollText(ctx, r.Summary, c); err != nil {
			return err
		}
	}
	return in.SetActivityLight(c, false)
}

// SelfTest shows random colors, then three green flashes.
func (in *Indicator) SelfTest(ctx context.Context) error {
	if err := in.FlashRandom(ctx, 5, 500*time.Millisecond); err != nil {
		return err
	}
	return in.FlashAll(ctx, 3, 100*time.Millisecond, Success)
}

// ShowFailure flashes the failure color and leaves the activity light red.
func (in *Indicator) ShowFailure(ctx context.Context) error {
	if err := in.FlashAll(ctx, 1, 2*time.Second, Failure); err != nil {
		return err
	}
	return in.SetActivityLight(Failure, false)
}

// Halt lights the whole display in the failure color for five seconds, then
// blanks it. Used when startup cannot continue.
func (in *Indicator) Halt(ctx context.Context) error {
	if err := in.SetAll(Failure); err != nil {
		return err
	}
	if err := in.sleep(ctx, 5*time.Second); err != nil {
		return err
	}
	return in.Off()
}
