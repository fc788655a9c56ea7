// Package frames turns simulator camera responses into images and stores them.
package frames

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/open-teleop/airscan/pkg/airsim"
)

// ErrEmptyImage is returned when the simulator answered with no pixels,
// which it does while the camera is still warming up.
var ErrEmptyImage = errors.New("frames: empty image")

// Decode converts a camera response into an RGBA image. Uncompressed scene
// images are packed 3-byte BGR rows; compressed ones are PNG.
func Decode(resp airsim.ImageResponse) (*image.NRGBA, error) {
	if resp.Width == 0 || resp.Height == 0 || len(resp.ImageDataUint8) == 0 {
		return nil, ErrEmptyImage
	}
	if resp.Compress {
		img, err := imaging.Decode(bytes.NewReader(resp.ImageDataUint8))
		if err != nil {
			return nil, fmt.Errorf("failed to decode compressed image: %w", err)
		}
		return imaging.Clone(img), nil
	}

	want := resp.Width * resp.Height * 3
	if len(resp.ImageDataUint8) != want {
		return nil, fmt.Errorf("image %dx%d: got %d bytes, want %d",
			resp.Width, resp.Height, len(resp.ImageDataUint8), want)
	}
	img := image.NewNRGBA(image.Rect(0, 0, resp.Width, resp.Height))
	src := resp.ImageDataUint8
	for i, j := 0, 0; i < len(src); i, j = i+3, j+4 {
		img.Pix[j] = src[i+2]
		img.Pix[j+1] = src[i+1]
		img.Pix[j+2] = src[i]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

// Resize scales img to exactly w×h.
func Resize(img image.Image, w, h int) *image.NRGBA {
	return imaging.Resize(img, w, h, imaging.Linear)
}

// EncodePNG returns img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is frame_<frame>_<unix ms>.png.
func FileName(frame int, tsMillis int64) string {
	return fmt.Sprintf("frame_%05d_%d.png", frame, tsMillis)
}

// SavePNG writes img into dir and returns the file path.
func SavePNG(dir string, frame int, tsMillis int64, img image.Image) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory '%s': %w", dir, err)
	}
	path := filepath.Join(dir, FileName(frame, tsMillis))
	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("failed to save frame %d: %w", frame, err)
	}
	return path, nil
}
