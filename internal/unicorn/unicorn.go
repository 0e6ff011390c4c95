// Package unicorn drives a Pimoroni Unicorn HAT HD (16x16 RGB LEDs) over SPI
// using periph.io, with a console stand-in for hosts without the HAT.
package unicorn

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"runtime"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"remindhd/internal/convert"
	appLog "remindhd/internal/log"
)

// startOfFrame precedes every frame on the wire.
const startOfFrame = 0x72

const spiSpeed = 9 * physic.MegaHertz

// Options configures a display.
type Options struct {
	// Port is the periph SPI port name; "" opens the default (/dev/spidev0.0).
	Port string
	// Brightness in [0, 1].
	Brightness float64
	// Rotation in degrees, a multiple of 90.
	Rotation int
	// Disabled skips the hardware and returns a console display.
	Disabled bool
}

// Display is the drawing surface shared by Matrix and Console.
type Display interface {
	Width() int
	Height() int
	SetPixel(x, y int, c color.RGBA)
	Fill(c color.RGBA)
	Clear()
	Show() error
	Close() error
}

// canvas is the in-memory pixel buffer both displays draw into.
type canvas struct {
	mu  sync.Mutex
	img *image.RGBA
}

func newFrame() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, convert.MatrixWidth, convert.MatrixHeight))
}

func (c *canvas) Width() int  { return convert.MatrixWidth }
func (c *canvas) Height() int { return convert.MatrixHeight }

// SetPixel ignores coordinates outside the matrix.
func (c *canvas) SetPixel(x, y int, col color.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	col.A = 0xff
	c.img.SetRGBA(x, y, col)
}

func (c *canvas) Fill(col color.RGBA) {
	c.mu.Lock()
	defer c.mu.Unlock()
	col.A = 0xff
	for i := 0; i < len(c.img.Pix); i += 4 {
		c.img.Pix[i+0] = col.R
		c.img.Pix[i+1] = col.G
		c.img.Pix[i+2] = col.B
		c.img.Pix[i+3] = col.A
	}
}

func (c *canvas) Clear() { c.Fill(color.RGBA{}) }

// snapshot copies the buffer so packing happens outside the lock.
func (c *canvas) snapshot() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := image.NewRGBA(c.img.Rect)
	copy(cp.Pix, c.img.Pix)
	return cp
}

// Matrix is the SPI-backed Unicorn HAT HD.
type Matrix struct {
	canvas

	conn       spi.Conn
	closer     io.Closer
	rotation   int
	brightness float64
}

// Open initializes periph.io, connects to the SPI port at 9 MHz mode 0 and
// blanks the matrix.
func Open(_ context.Context, opts Options) (*Matrix, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("unicorn: periph host init failed: %w", err)
	}

	port, err := spireg.Open(opts.Port)
	if err != nil {
		return nil, fmt.Errorf("unicorn: failed to open SPI port: %w", err)
	}

	conn, err := port.Connect(spiSpeed, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("unicorn: failed to connect SPI: %w", err)
	}

	m, err := newMatrix(conn, port, opts)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	if err := m.Show(); err != nil {
		_ = port.Close()
		return nil, err
	}
	return m, nil
}

func newMatrix(conn spi.Conn, closer io.Closer, opts Options) (*Matrix, error) {
	if opts.Brightness < 0 || opts.Brightness > 1 {
		return nil, fmt.Errorf("unicorn: brightness must be in [0, 1], got %v", opts.Brightness)
	}
	if opts.Rotation%90 != 0 {
		return nil, fmt.Errorf("unicorn: rotation must be a multiple of 90, got %d", opts.Rotation)
	}
	return &Matrix{
		canvas:     canvas{img: newFrame()},
		conn:       conn,
		closer:     closer,
		rotation:   opts.Rotation,
		brightness: opts.Brightness,
	}, nil
}

// Show pushes the buffer to the LEDs.
func (m *Matrix) Show() error {
	frame, err := convert.Pack(m.snapshot(), m.rotation, m.brightness)
	if err != nil {
		return err
	}
	w := make([]byte, 0, len(frame)+1)
	w = append(w, startOfFrame)
	w = append(w, frame...)
	if err := m.conn.Tx(w, nil); err != nil {
		return fmt.Errorf("unicorn: spi write failed: %w", err)
	}
	return nil
}

// Close blanks the matrix and releases the SPI port.
func (m *Matrix) Close() error {
	m.Clear()
	showErr := m.Show()
	var closeErr error
	if m.closer != nil {
		closeErr = m.closer.Close()
	}
	return errors.Join(showErr, closeErr)
}

// Console stands in for the HAT on development machines. Frames are
// summarized in the debug log.
type Console struct {
	canvas
}

// NewConsole returns a console display.
func NewConsole() *Console {
	return &Console{canvas: canvas{img: newFrame()}}
}

func (c *Console) Show() error {
	img := c.snapshot()
	lit := 0
	var last color.RGBA
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] == 0 && img.Pix[i+1] == 0 && img.Pix[i+2] == 0 {
			continue
		}
		lit++
		last = color.RGBA{R: img.Pix[i], G: img.Pix[i+1], B: img.Pix[i+2], A: 0xff}
	}
	appLog.Debug("console frame", "lit", lit, "rgb", fmt.Sprintf("#%02x%02x%02x", last.R, last.G, last.B))
	return nil
}

func (c *Console) Close() error { return nil }

// Default returns the display the main program should use.
//
// Priority:
//  1. the HAT over SPI on Linux, unless opts.Disabled is set
//  2. the console display when the hardware is unavailable
func Default(ctx context.Context, opts Options) Display {
	if opts.Disabled {
		return NewConsole()
	}
	if runtime.GOOS != "linux" {
		appLog.Info("unicorn: not on linux, using console display", "goos", runtime.GOOS)
		return NewConsole()
	}
	m, err := Open(ctx, opts)
	if err != nil {
		appLog.Error("unicorn: open failed, using console display", err)
		return NewConsole()
	}
	appLog.Info("unicorn: display ready", "rotation", opts.Rotation, "brightness", opts.Brightness)
	return m
}
