package convert

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameAt(frame []byte, x, y int) [3]byte {
	o := (x*MatrixHeight + y) * 3
	return [3]byte{frame[o], frame[o+1], frame[o+2]}
}

func TestPackLayoutIsColumnMajor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, MatrixWidth, MatrixHeight))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(0, 1, color.RGBA{G: 255, A: 255})
	img.Set(1, 0, color.RGBA{B: 255, A: 255})

	frame, err := Pack(img, 0, 1)
	require.NoError(t, err)
	require.Len(t, frame, FrameSize)

	assert.Equal(t, []byte{255, 0, 0}, frame[0:3])
	assert.Equal(t, []byte{0, 255, 0}, frame[3:6], "y is the inner index")
	assert.Equal(t, []byte{0, 0, 255}, frame[MatrixHeight*3:MatrixHeight*3+3])
}

func TestPackRotation(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, MatrixWidth, MatrixHeight))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})

	cases := map[int][2]int{
		0:    {0, 0},
		90:   {15, 0},
		180:  {15, 15},
		270:  {0, 15},
		-90:  {0, 15},
		450:  {15, 0},
		-180: {15, 15},
	}
	for rot, pos := range cases {
		frame, err := Pack(img, rot, 1)
		require.NoError(t, err)
		assert.Equal(t, [3]byte{200, 0, 0}, frameAt(frame, pos[0], pos[1]), "rotation %d", rot)
	}
}

func TestPackBrightness(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, MatrixWidth, MatrixHeight))
	img.Set(3, 4, color.RGBA{R: 255, G: 101, B: 1, A: 255})

	frame, err := Pack(img, 0, 0.5)
	require.NoError(t, err)
	assert.Equal(t, [3]byte{127, 50, 0}, frameAt(frame, 3, 4))

	frame, err = Pack(img, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, FrameSize), frame)
}

func TestPackHonorsBoundsOffset(t *testing.T) {
	img := image.NewRGBA(image.Rect(5, 5, 5+MatrixWidth, 5+MatrixHeight))
	img.Set(5, 5, color.RGBA{G: 9, A: 255})

	frame, err := Pack(img, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, [3]byte{0, 9, 0}, frameAt(frame, 0, 0))
}

func TestPackRejectsBadInput(t *testing.T) {
	_, err := Pack(image.NewRGBA(image.Rect(0, 0, 8, 16)), 0, 1)
	assert.Error(t, err)

	img := image.NewRGBA(image.Rect(0, 0, MatrixWidth, MatrixHeight))
	_, err = Pack(img, 45, 1)
	assert.Error(t, err)
	_, err = Pack(img, 0, 1.1)
	assert.Error(t, err)
	_, err = Pack(img, 0, -0.1)
	assert.Error(t, err)
}
