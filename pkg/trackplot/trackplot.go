// Package trackplot renders the horizontal path flown by a survey.
package trackplot

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/golang/geo/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ErrEmptyTrack is returned when there is nothing to plot.
var ErrEmptyTrack = errors.New("track has no positions")

// Track is the flown path plus the waypoints it was aiming for.
type Track struct {
	Title     string
	Positions []r3.Vector
	Targets   []r3.Vector
}

// Add appends a visited position.
func (t *Track) Add(p r3.Vector) {
	t.Positions = append(t.Positions, p)
}

// Save writes the track as a top-down plot (north on X, east on Y). The
// image format follows the file extension.
func (t *Track) Save(path string) error {
	if len(t.Positions) == 0 {
		return ErrEmptyTrack
	}

	p := plot.New()
	p.Title.Text = t.Title
	p.X.Label.Text = "North (m)"
	p.Y.Label.Text = "East (m)"
	p.Add(plotter.NewGrid())

	flown, err := plotter.NewLine(toXYs(t.Positions))
	if err != nil {
		return fmt.Errorf("flown path: %w", err)
	}
	flown.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	flown.Width = vg.Points(1.5)
	p.Add(flown)
	p.Legend.Add("flown", flown)

	if len(t.Targets) > 0 {
		targets, err := plotter.NewScatter(toXYs(t.Targets))
		if err != nil {
			return fmt.Errorf("waypoints: %w", err)
		}
		targets.GlyphStyle.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		targets.GlyphStyle.Shape = draw.CrossGlyph{}
		targets.GlyphStyle.Radius = vg.Points(3)
		p.Add(targets)
		p.Legend.Add("waypoints", targets)
	}

	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("save track plot: %w", err)
	}
	return nil
}

func toXYs(points []r3.Vector) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, v := range points {
		xys[i] = plotter.XY{X: v.X, Y: v.Y}
	}
	return xys
}
