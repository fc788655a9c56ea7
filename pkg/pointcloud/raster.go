package pointcloud

import (
	"image"
	"image/color"
)

// TopDownRaster plots the cloud from above on a size×size black image: each
// point lights the pixel at (size/2 + x*scale, size/2 + y*scale), wrapped
// modulo size. Z is ignored.
func (c *Cloud) TopDownRaster(size int, scale float64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	if size <= 0 {
		return img
	}
	half := float64(size / 2)
	for _, p := range c.points() {
		xi := wrap(int(half+p.X*scale), size)
		yi := wrap(int(half+p.Y*scale), size)
		img.SetRGBA(xi, yi, color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff})
	}
	return img
}

// wrap is a modulo that always lands in [0, n).
func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}
