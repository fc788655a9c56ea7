package frames

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/open-teleop/airscan/pkg/airsim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBGR(t *testing.T) {
	resp := airsim.ImageResponse{
		Width:  2,
		Height: 1,
		// pixel 0 is pure blue, pixel 1 pure red, both in BGR order
		ImageDataUint8: []byte{255, 0, 0, 0, 0, 255},
	}
	img, err := Decode(resp)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, img.NRGBAAt(1, 0))
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode(airsim.ImageResponse{})
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = Decode(airsim.ImageResponse{Width: 2, Height: 2, ImageDataUint8: []byte{1, 2, 3}})
	assert.ErrorContains(t, err, "want 12")
}

func TestDecodeCompressed(t *testing.T) {
	src := imaging.New(3, 2, color.NRGBA{G: 200, A: 255})
	data, err := EncodePNG(src)
	require.NoError(t, err)

	img, err := Decode(airsim.ImageResponse{Width: 3, Height: 2, Compress: true, ImageDataUint8: data})
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
	assert.Equal(t, color.NRGBA{G: 200, A: 255}, img.NRGBAAt(2, 1))
}

func TestResizeAndSave(t *testing.T) {
	img := Resize(imaging.New(640, 480, color.NRGBA{R: 10, A: 255}), 320, 240)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 240, img.Bounds().Dy())

	dir := filepath.Join(t.TempDir(), "images")
	path, err := SavePNG(dir, 4, 1700000000000, img)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "frame_00004_1700000000000.png"), path)

	back, err := imaging.Open(path)
	require.NoError(t, err)
	assert.Equal(t, 320, back.Bounds().Dx())
}
