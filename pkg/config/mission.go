package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Waypoint is a target position in the simulator's NED frame (z negative is up).
type Waypoint [3]float64

// X returns the north coordinate.
func (w Waypoint) X() float64 { return w[0] }

// Y returns the east coordinate.
func (w Waypoint) Y() float64 { return w[1] }

// Z returns the down coordinate.
func (w Waypoint) Z() float64 { return w[2] }

// Mission describes a waypoint survey.
type Mission struct {
	Name             string     `yaml:"name" json:"name"`
	Altitude         float64    `yaml:"altitude" json:"altitude"`
	ClimbVelocity    float64    `yaml:"climb_velocity" json:"climb_velocity"`
	Velocity         float64    `yaml:"velocity" json:"velocity"`
	PollsPerWaypoint int        `yaml:"polls_per_waypoint" json:"polls_per_waypoint"`
	PollPeriodMs     int        `yaml:"poll_period_ms" json:"poll_period_ms"`
	RasterSize       int        `yaml:"raster_size" json:"raster_size"`
	RasterScale      float64    `yaml:"raster_scale" json:"raster_scale"`
	Waypoints        []Waypoint `yaml:"waypoints" json:"waypoints"`
}

// LoadMission loads a mission from the specified file path and fills defaults.
func LoadMission(path string) (*Mission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading mission file: %w", err)
	}
	return ParseMission(data)
}

// ParseMission decodes and validates mission YAML.
func ParseMission(data []byte) (*Mission, error) {
	var m Mission
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error parsing mission file: %w", err)
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the mission is flyable.
func (m *Mission) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("validation failed: mission name is required")
	}
	if len(m.Waypoints) == 0 {
		return fmt.Errorf("validation failed: mission %q has no waypoints", m.Name)
	}
	if m.Velocity <= 0 {
		return fmt.Errorf("validation failed: mission velocity must be positive")
	}
	if m.Altitude < 0 {
		return fmt.Errorf("validation failed: mission altitude must not be negative")
	}
	return nil
}

func (m *Mission) applyDefaults() {
	if m.Altitude == 0 {
		m.Altitude = 5
	}
	if m.ClimbVelocity == 0 {
		m.ClimbVelocity = 2
	}
	if m.Velocity == 0 {
		m.Velocity = 3
	}
	if m.PollsPerWaypoint == 0 {
		m.PollsPerWaypoint = 10
	}
	if m.PollPeriodMs == 0 {
		m.PollPeriodMs = 100
	}
	if m.RasterSize == 0 {
		m.RasterSize = 500
	}
	if m.RasterScale == 0 {
		m.RasterScale = 5
	}
}

// DefaultMission returns the lawn-mower grid flown at 5 m over the test field.
func DefaultMission() *Mission {
	m := &Mission{Name: "default-grid", Waypoints: defaultGrid()}
	m.applyDefaults()
	return m
}

func defaultGrid() []Waypoint {
	const z = -5
	rows := []struct {
		x  float64
		ys []float64
	}{
		{-17, []float64{-3, -1, 1, 3}},
		{-15, []float64{3, 1, -1, -3}},
		{-13, []float64{-3, -1, 1, 3}},
		{-14, []float64{0, 2, -2}},
		{-11, []float64{-3, -1, 1, 3}},
		{-9, []float64{3, 1, -1, -3}},
		{-7, []float64{-3, -1, 1, 3}},
		{-8, []float64{2, 0, -2}},
		{-3, []float64{-3, -1, 1, 3}},
		{0, []float64{3, 1, -1, -3}},
		{3, []float64{-3, -1, 1, 3}},
		{4, []float64{2, 0, -2}},
		{7, []float64{-3, -1, 1, 3}},
		{11, []float64{2, 0, -2}},
		{15, []float64{-3, -1, 1, 3}},
		{17, []float64{3, 1, -1, -3}},
	}
	var wps []Waypoint
	for _, r := range rows {
		for _, y := range r.ys {
			wps = append(wps, Waypoint{r.x, y, z})
		}
	}
	return wps
}
