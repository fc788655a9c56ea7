package video

import (
	"bytes"
	"image"
	"image/color"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/open-teleop/airscan/domain/capture"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})
	return img
}

func TestStreamReceivesNewestFrame(t *testing.T) {
	s := NewVideoService(customlog.Must("error", ""))
	frames, stop := s.StartStream()
	assert.Equal(t, 1, s.GetActiveStreams())

	s.Publish(1, time.Now(), testImage())
	s.HandleFrame(&capture.Frame{Index: 2, Image: testImage()})
	s.HandleFrame(&capture.Frame{Index: 3})

	f := <-frames
	assert.Equal(t, 2, f.Index)
	assert.True(t, bytes.HasPrefix(f.PNG, pngMagic))

	stop()
	stop()
	assert.Equal(t, 0, s.GetActiveStreams())
	_, open := <-frames
	assert.False(t, open)
}

func TestStreamHandler(t *testing.T) {
	s := NewVideoService(customlog.Must("error", ""))
	app := fiber.New()
	app.Get("/api/video/latest", s.StreamHandler)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/video/latest", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	s.Publish(9, time.Now(), testImage())
	resp, err = app.Test(httptest.NewRequest("GET", "/api/video/latest", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "9", resp.Header.Get("X-Frame-Index"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, pngMagic))
}
