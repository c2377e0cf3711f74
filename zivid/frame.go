package zivid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.jpl.nasa.gov/bdube/hdrcapture/camera"
	"github.jpl.nasa.gov/bdube/hdrcapture/temperature"
)

// FrameInfo is the metadata attached to a frame
type FrameInfo struct {
	// ID uniquely identifies the frame
	ID uuid.UUID `json:"id"`

	// Serial is the serial number of the camera that captured the frame
	Serial string `json:"serial"`

	// Timestamp is the time the acquisition started
	Timestamp time.Time `json:"timestamp"`

	// Temperature is the camera temperature at the time of capture
	Temperature temperature.Celsius `json:"temperature"`
}

// Frame is a captured point cloud along with the settings that produced it.
// An HDR frame carries one Settings entry per bracketed acquisition.
type Frame struct {
	camera.PointCloud

	Settings []Settings
	Info     FrameInfo
}

// newFrame wraps a point cloud in a frame with a fresh ID
func newFrame(pc camera.PointCloud, serial string, temp temperature.Celsius, settings ...Settings) *Frame {
	s := make([]Settings, len(settings))
	for i := range settings {
		s[i] = settings[i].Clone()
	}
	return &Frame{
		PointCloud: pc,
		Settings:   s,
		Info: FrameInfo{
			ID:          uuid.New(),
			Serial:      serial,
			Timestamp:   time.Now().UTC(),
			Temperature: temp,
		},
	}
}

// Summary holds simple statistics of a frame's depth data
type Summary struct {
	Width, Height int

	// Valid is the number of pixels holding a measurement
	Valid int

	// Coverage is Valid divided by the pixel count
	Coverage float64

	// Z statistics over the valid pixels, in mm
	ZMean, ZStd, ZMin, ZMax float64
}

// Summary computes statistics over the valid pixels of the frame
func (f *Frame) Summary() Summary {
	s := Summary{Width: f.Width, Height: f.Height}
	z := make([]float64, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		if f.Valid(i) {
			_, _, zz := f.Point(i)
			z = append(z, float64(zz))
		}
	}
	s.Valid = len(z)
	if f.Len() > 0 {
		s.Coverage = float64(s.Valid) / float64(f.Len())
	}
	if len(z) == 0 {
		return s
	}
	s.ZMean, s.ZStd = stat.MeanStdDev(z, nil)
	s.ZMin = floats.Min(z)
	s.ZMax = floats.Max(z)
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%dx%d, %.1f%% valid, z %.1f +/- %.1f mm [%.1f, %.1f]",
		s.Width, s.Height, 100*s.Coverage, s.ZMean, s.ZStd, s.ZMin, s.ZMax)
}
