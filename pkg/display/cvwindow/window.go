// Package cvwindow implements display.Display with OpenCV HighGUI windows.
// OpenCV expects window calls from one thread; callers drive a Display from
// a single goroutine.
package cvwindow

import (
	"fmt"
	"image"

	"github.com/open-teleop/airscan/pkg/display"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

// Display keeps one window per name.
type Display struct {
	windows map[string]*gocv.Window
	order   []string
}

var _ display.Display = (*Display)(nil)

// New returns a display with no windows open yet.
func New() *Display {
	return &Display{windows: make(map[string]*gocv.Window)}
}

// Show converts img to a BGR matrix and draws it in window name.
func (d *Display) Show(name string, img image.Image) error {
	w, ok := d.windows[name]
	if !ok {
		w = gocv.NewWindow(name)
		d.windows[name] = w
		d.order = append(d.order, name)
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("failed to convert image for window %q: %w", name, err)
	}
	defer mat.Close()
	w.IMShow(mat)
	return nil
}

// WaitKey pumps events for every window and returns the low byte of the key
// pressed, or display.NoKey.
func (d *Display) WaitKey(delayMs int) int {
	if len(d.order) == 0 {
		return display.NoKey
	}
	k := d.windows[d.order[0]].WaitKey(delayMs)
	if k < 0 {
		return display.NoKey
	}
	return k & 0xFF
}

// Close destroys all windows.
func (d *Display) Close() error {
	var err error
	for _, name := range d.order {
		err = multierr.Append(err, d.windows[name].Close())
	}
	d.windows = make(map[string]*gocv.Window)
	d.order = nil
	return err
}
