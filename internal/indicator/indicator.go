// Package indicator draws the notifier's effects on a 16x16 LED display:
// the activity light, flashes, the swirl and the scrolling summary.
package indicator

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/rand"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Colors used by the effects.
var (
	Red    = color.RGBA{R: 255, A: 255}
	Green  = color.RGBA{G: 255, A: 255}
	Blue   = color.RGBA{B: 255, A: 255}
	Orange = color.RGBA{R: 255, G: 153, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, A: 255}
	Black  = color.RGBA{A: 255}

	Checking = Blue
	Success  = Green
	Failure  = Red
)

// Display is the drawing surface effects render to. unicorn.Matrix and
// unicorn.Console implement it.
type Display interface {
	Width() int
	Height() int
	SetPixel(x, y int, c color.RGBA)
	Fill(c color.RGBA)
	Clear()
	Show() error
}

const frameDelay = 10 * time.Millisecond

// textBaseline places 13px basicfont glyphs two rows below the top edge.
const textBaseline = 13

// Indicator owns the activity-light position and renders effects. It is not
// safe for concurrent use.
type Indicator struct {
	d Display

	activity     int // column of the activity light, counts down
	indicatorRow int

	rnd   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// New wraps a display. The activity light starts at the right edge.
func New(d Display) *Indicator {
	return &Indicator{
		d:            d,
		activity:     d.Width(),
		indicatorRow: d.Height() - 1,
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Off blanks the display.
func (in *Indicator) Off() error {
	in.d.Clear()
	return in.d.Show()
}

// SetAll lights every LED in c.
func (in *Indicator) SetAll(c color.RGBA) error {
	in.d.Fill(c)
	return in.d.Show()
}

// SetActivityLight lights a single LED on the bottom row. With increment the
// light moves one column left, wrapping to the right edge.
func (in *Indicator) SetActivityLight(c color.RGBA, increment bool) error {
	in.d.Clear()
	if increment {
		if in.activity < 1 {
			in.activity = in.d.Width()
		}
		in.activity--
	}
	if in.activity >= in.d.Width() {
		in.activity = in.d.Width() - 1
	}
	in.d.SetPixel(in.activity, in.indicatorRow, c)
	return in.d.Show()
}

// FlashAll lights every LED in c for delay, then dark for delay, count times.
func (in *Indicator) FlashAll(ctx context.Context, count int, delay time.Duration, c color.RGBA) error {
	for i := 0; i < count; i++ {
		if err := in.SetAll(c); err != nil {
			return err
		}
		if err := in.sleep(ctx, delay); err != nil {
			return err
		}
		if err := in.Off(); err != nil {
			return err
		}
		if err := in.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

// FlashRandom shows count frames of random colors.
func (in *Indicator) FlashRandom(ctx context.Context, count int, delay time.Duration) error {
	for i := 0; i < count; i++ {
		for y := 0; y < in.d.Height(); y++ {
			for x := 0; x < in.d.Width(); x++ {
				in.d.SetPixel(x, y, color.RGBA{
					R: uint8(in.rnd.Intn(255)),
					G: uint8(in.rnd.Intn(255)),
					B: uint8(in.rnd.Intn(255)),
					A: 255,
				})
			}
		}
		if err := in.d.Show(); err != nil {
			return err
		}
		if err := in.sleep(ctx, delay); err != nil {
			return err
		}
		if err := in.Off(); err != nil {
			return err
		}
	}
	return nil
}

// Swirl animates a rotating color field for the given number of frames and
// blanks the display afterwards.
func (in *Indicator) Swirl(ctx context.Context, frames int) error {
	step := 0.0
	for i := 0; i < frames; i++ {
		for y := 0; y < in.d.Height(); y++ {
			for x := 0; x < in.d.Width(); x++ {
				in.d.SetPixel(x, y, in.swirlPixel(x, y, step))
			}
		}
		step += 2
		if err := in.d.Show(); err != nil {
			return err
		}
		if err := in.sleep(ctx, frameDelay); err != nil {
			return err
		}
	}
	return in.Off()
}

func (in *Indicator) swirlPixel(x, y int, step float64) color.RGBA {
	fx := float64(x) - float64(in.d.Width())/2
	fy := float64(y) - float64(in.d.Height())/2
	dist := math.Sqrt(fx*fx+fy*fy) / 2
	angle := step/10 + dist*1.5
	s, c := math.Sin(angle), math.Cos(angle)
	xs := fx*c - fy*s
	ys := fx*s + fy*c
	r := math.Abs(xs+ys)*12 - 20
	return color.RGBA{R: clamp(r), G: clamp(r + s*130), B: clamp(r + c*130), A: 255}
}

func clamp(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, v)))
}

// ScrollText scrolls text right to left across the display in c, then
// blanks it. Empty text is a no-op.
func (in *Indicator) ScrollText(ctx context.Context, text string, c color.RGBA) error {
	if text == "" {
		return nil
	}

	w, h := in.d.Width(), in.d.Height()
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, text).Ceil()

	// Room for the text plus a full blank screen on each side.
	canvasWidth := w + textWidth + w
	img := image.NewRGBA(image.Rect(0, 0, canvasWidth, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(Black), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(w, textBaseline),
	}
	drawer.DrawString(text)

	for scroll := 0; scroll < canvasWidth-w; scroll++ {
		for x := 0; x < w; x++ {
			for y := 0; y < h; y++ {
				in.d.SetPixel(w-1-x, y, img.RGBAAt(x+scroll, y))
			}
		}
		if err := in.d.Show(); err != nil {
			return err
		}
		if err := in.sleep(ctx, frameDelay); err != nil {
			return err
		}
	}
	return in.Off()
}
