package convert

import (
	"fmt"
	"image"
)

// Unicorn HAT HD geometry (16x16 RGB).
const (
	MatrixWidth  = 16
	MatrixHeight = 16
	FrameSize    = MatrixWidth * MatrixHeight * 3 // 768 bytes
)

// Pack converts a 16x16 RGBA image into the HAT's frame buffer.
//
// Requirements / behavior:
//
//   - img must be exactly 16x16 pixels.
//   - rotation must be a multiple of 90 degrees (negative values allowed);
//     the image is turned counter-clockwise by that amount.
//   - brightness in [0, 1] scales every channel, truncating toward zero.
//   - alpha is ignored; the matrix has no transparency.
//
// Packing rules:
//
//   - column-major, x outer and y inner, three bytes (R, G, B) per pixel:
//     byteIndex = (x * 16 + y) * 3
//   - the start-of-frame command byte is not included; see unicorn.Matrix.
func Pack(img *image.RGBA, rotation int, brightness float64) ([]byte, error) {
	b := img.Bounds()
	if b.Dx() != MatrixWidth || b.Dy() != MatrixHeight {
		return nil, fmt.Errorf("convert: expected %dx%d image, got %dx%d", MatrixWidth, MatrixHeight, b.Dx(), b.Dy())
	}
	if rotation%90 != 0 {
		return nil, fmt.Errorf("convert: rotation must be a multiple of 90, got %d", rotation)
	}
	if brightness < 0 || brightness > 1 {
		return nil, fmt.Errorf("convert: brightness must be in [0, 1], got %v", brightness)
	}

	turns := ((rotation/90)%4 + 4) % 4
	frame := make([]byte, FrameSize)

	for x := 0; x < MatrixWidth; x++ {
		for y := 0; y < MatrixHeight; y++ {
			sx, sy := sourcePixel(x, y, turns)
			// Use Pix directly to avoid At() and color conversion.
			i := img.PixOffset(b.Min.X+sx, b.Min.Y+sy)
			o := (x*MatrixHeight + y) * 3
			frame[o+0] = scale(img.Pix[i+0], brightness)
			frame[o+1] = scale(img.Pix[i+1], brightness)
			frame[o+2] = scale(img.Pix[i+2], brightness)
		}
	}

	return frame, nil
}

// sourcePixel maps an output position to the input pixel after turning the
// image counter-clockwise turns times.
func sourcePixel(x, y, turns int) (int, int) {
	const last = MatrixWidth - 1
	switch turns {
	case 1:
		return y, last - x
	case 2:
		return last - x, last - y
	case 3:
		return last - y, x
	default:
		return x, y
	}
}

func scale(v byte, brightness float64) byte {
	return byte(float64(v) * brightness)
}
