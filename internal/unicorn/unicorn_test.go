package unicorn

import (
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/spi"
)

type fakeConn struct {
	writes [][]byte
	err    error
}

func (f *fakeConn) String() string              { return "fake-spi" }
func (f *fakeConn) Duplex() conn.Duplex         { return conn.Full }
func (f *fakeConn) TxPackets([]spi.Packet) error { return errors.New("not supported") }

func (f *fakeConn) Tx(w, _ []byte) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, append([]byte(nil), w...))
	return nil
}

type fakeCloser struct{ closed bool }

func (c *fakeCloser) Close() error {
	c.closed = true
	return nil
}

func TestMatrixShowWritesFrame(t *testing.T) {
	fc := &fakeConn{}
	m, err := newMatrix(fc, nil, Options{Brightness: 1})
	require.NoError(t, err)

	m.SetPixel(0, 1, color.RGBA{R: 10, G: 20, B: 30})
	require.NoError(t, m.Show())

	require.Len(t, fc.writes, 1)
	w := fc.writes[0]
	require.Len(t, w, 769)
	assert.Equal(t, byte(0x72), w[0])
	assert.Equal(t, []byte{10, 20, 30}, w[4:7])
}

func TestMatrixFillAndBrightness(t *testing.T) {
	fc := &fakeConn{}
	m, err := newMatrix(fc, nil, Options{Brightness: 0.5})
	require.NoError(t, err)

	m.Fill(color.RGBA{R: 200, G: 100, B: 50})
	require.NoError(t, m.Show())
	for i := 1; i < len(fc.writes[0]); i += 3 {
		require.Equal(t, []byte{100, 50, 25}, fc.writes[0][i:i+3])
	}
}

func TestMatrixCloseBlanksAndReleases(t *testing.T) {
	fc := &fakeConn{}
	closer := &fakeCloser{}
	m, err := newMatrix(fc, closer, Options{Brightness: 1, Rotation: 90})
	require.NoError(t, err)

	m.Fill(color.RGBA{G: 255})
	require.NoError(t, m.Close())
	assert.True(t, closer.closed)
	require.Len(t, fc.writes, 1)
	assert.Equal(t, make([]byte, 768), fc.writes[0][1:])
}

func TestMatrixShowPropagatesBusErrors(t *testing.T) {
	m, err := newMatrix(&fakeConn{err: errors.New("bus down")}, nil, Options{Brightness: 1})
	require.NoError(t, err)
	assert.ErrorContains(t, m.Show(), "bus down")
}

func TestNewMatrixValidatesOptions(t *testing.T) {
	_, err := newMatrix(&fakeConn{}, nil, Options{Brightness: 2})
	assert.Error(t, err)
	_, err = newMatrix(&fakeConn{}, nil, Options{Brightness: 1, Rotation: 30})
	assert.Error(t, err)
}

func TestSetPixelOutOfRangeIsIgnored(t *testing.T) {
	c := NewConsole()
	c.SetPixel(-1, 3, color.RGBA{R: 1})
	c.SetPixel(16, 16, color.RGBA{R: 1})
	assert.Equal(t, make([]byte, 16*16*4), c.snapshot().Pix)
}

func TestDefaultDisabledUsesConsole(t *testing.T) {
	d := Default(context.Background(), Options{Disabled: true})
	_, ok := d.(*Console)
	assert.True(t, ok)
	assert.Equal(t, 16, d.Width())
	assert.NoError(t, d.Show())
	assert.NoError(t, d.Close())
}
