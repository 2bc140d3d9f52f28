package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronologos/rscreen/internal/protocol"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0x80, 0xff})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), nil))
	return buf.Bytes()
}

func TestDecodeJPEG(t *testing.T) {
	d, err := ImageDecoder{}.Decode(protocol.KindJPEG, encodeJPEG(t, 64, 32))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", d.Format)
	assert.Equal(t, 64, d.Width)
	assert.Equal(t, 32, d.Height)
	require.NotNil(t, d.Image)
	assert.Equal(t, image.Rect(0, 0, 64, 32), d.Image.Bounds())
}

func TestDecodeSniffsPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(8, 8)))

	d, err := ImageDecoder{}.Decode(protocol.KindJPEG, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "png", d.Format)
}

func TestDecodeDiscardPixels(t *testing.T) {
	d, err := ImageDecoder{DiscardPixels: true}.Decode(protocol.KindJPEG, encodeJPEG(t, 40, 20))
	require.NoError(t, err)
	assert.Nil(t, d.Image)
	assert.Equal(t, "jpeg", d.Format)
	assert.Equal(t, 40, d.Width)
	assert.Equal(t, 20, d.Height)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := ImageDecoder{}.Decode(protocol.KindJPEG, []byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrDecode)

	_, err = ImageDecoder{DiscardPixels: true}.Decode(protocol.KindJPEG, []byte{0xff, 0xd8, 0x00})
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeTruncatedJPEG(t *testing.T) {
	b := encodeJPEG(t, 64, 64)
	_, err := ImageDecoder{}.Decode(protocol.KindJPEG, b[:len(b)/2])
	assert.ErrorIs(t, err, ErrDecode)
}

// A body cut short and zero-filled to its announced length keeps a valid
// header, so only a full decode can tell it apart from a good frame.
func TestDecodeZeroFilledBody(t *testing.T) {
	b := encodeJPEG(t, 64, 64)
	holed := make([]byte, len(b))
	copy(holed, b[:len(b)/2])

	for _, d := range []ImageDecoder{{}, {DiscardPixels: true}} {
		_, err := d.Decode(protocol.KindJPEG, holed)
		assert.ErrorIs(t, err, ErrDecode, "DiscardPixels=%v", d.DiscardPixels)
	}
}

func TestDecodeRawUnsupported(t *testing.T) {
	_, err := ImageDecoder{}.Decode(protocol.KindRaw, encodeJPEG(t, 4, 4))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDecodeEmpty(t *testing.T) {
	_, err := ImageDecoder{}.Decode(protocol.KindJPEG, nil)
	assert.ErrorIs(t, err, ErrEmpty)
}
