/*Package hdr captures an HDR frame from the first available camera with a
three frame exposure bracket and saves it to disk.

The procedure is linear: connect, build the bracket, capture, save.  The first
error stops it, and ExitCode maps the result to a process exit status.
*/
package hdr

import (
	"context"
	"log"
	"os"
	"time"

	"github.jpl.nasa.gov/bdube/hdrcapture/zivid"
)

// DefaultOutput is the file the HDR frame is saved to
const DefaultOutput = "HDR.zdf"

// FrameSettings holds the settings that change between frames of the bracket
type FrameSettings struct {
	Iris         uint64
	ExposureTime time.Duration
	Gain         float64
}

// DefaultBaseline returns the settings shared by every frame of the bracket
func DefaultBaseline() zivid.Settings {
	s := zivid.DefaultSettings()
	s.Brightness = 1
	s.Bidirectional = false
	s.BlueBalance = 1.081
	s.RedBalance = 1.709
	s.Filters = zivid.Filters{
		Contrast:   zivid.ContrastFilter{Enabled: true, Threshold: zivid.Float(5)},
		Gaussian:   zivid.GaussianFilter{Enabled: true, Sigma: zivid.Float(1.5)},
		Outlier:    zivid.OutlierFilter{Enabled: true, Threshold: zivid.Float(5)},
		Reflection: zivid.ReflectionFilter{Enabled: true},
		Saturated:  zivid.SaturatedFilter{Enabled: true},
	}
	return s
}

// DefaultFrames returns the iris, exposure, and gain of each frame of the
// default bracket
func DefaultFrames() []FrameSettings {
	iris := []uint64{17, 27, 27}
	exposure := []int64{10000, 10000, 40000}
	gain := []float64{1, 1, 2}
	out := make([]FrameSettings, len(iris))
	for i := range iris {
		out[i] = FrameSettings{
			Iris:         iris[i],
			ExposureTime: zivid.Microseconds(exposure[i]),
			Gain:         gain[i]}
	}
	return out
}

// Bracket applies each of frames to a copy of base.  Entries do not share
// any memory with base or with each other.
func Bracket(base zivid.Settings, frames []FrameSettings) []zivid.Settings {
	out := make([]zivid.Settings, 0, len(frames))
	for _, f := range frames {
		s := base.Clone()
		s.Iris = f.Iris
		s.ExposureTime = f.ExposureTime
		s.Gain = f.Gain
		out = append(out, s)
	}
	return out
}

// Connector connects to a camera
type Connector interface {
	ConnectCamera(context.Context) (zivid.Camera, error)
}

// Frame is a captured frame that can be written to disk
type Frame interface {
	Save(string) error
}

// Capturer performs an HDR capture
type Capturer interface {
	Capture(context.Context, zivid.Camera, []zivid.Settings) (Frame, error)
}

// Spinner shows activity while the capture blocks.  *yacspin.Spinner
// satisfies it.
type Spinner interface {
	Start() error
	Stop() error
	StopFail() error
}

type zividHDR struct{}

func (zividHDR) Capture(ctx context.Context, cam zivid.Camera, settings []zivid.Settings) (Frame, error) {
	f, err := zivid.HDR.Capture(ctx, cam, settings)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ZividHDR is a Capturer backed by zivid.HDR
var ZividHDR Capturer = zividHDR{}

// Runner executes the capture procedure
type Runner struct {
	// Log receives the progress messages.  If nil, they go to stdout
	Log *log.Logger

	Connector Connector
	Capturer  Capturer

	// Output is the path the frame is saved to, DefaultOutput if empty
	Output string

	// Baseline holds the settings common to all frames
	Baseline zivid.Settings

	// Frames holds the per-frame settings, DefaultFrames if nil.  An empty,
	// non-nil slice is an error
	Frames []FrameSettings

	// Spinner, if not nil, runs during the capture
	Spinner Spinner
}

// NewRunner returns a Runner with the default baseline, frames, and output
func NewRunner(c Connector) *Runner {
	return &Runner{
		Connector: c,
		Capturer:  ZividHDR,
		Output:    DefaultOutput,
		Baseline:  DefaultBaseline(),
		Frames:    DefaultFrames(),
	}
}

func (r *Runner) logger() *log.Logger {
	if r.Log == nil {
		return log.New(os.Stdout, "", 0)
	}
	return r.Log
}

// Run connects, captures, and saves.  The first error is returned and no
// step after it is performed.
func (r *Runner) Run(ctx context.Context) error {
	lg := r.logger()
	lg.Println("Connecting to the camera")
	cam, err := r.Connector.ConnectCamera(ctx)
	if err != nil {
		return err
	}

	lg.Println("Configuring settings same for all HDR frames")
	base := r.Baseline.Clone()

	lg.Println("Configuring settings different for all HDR frames")
	frames := r.Frames
	if frames == nil {
		frames = DefaultFrames()
	}
	bracket := Bracket(base, frames)
	for i, s := range bracket {
		lg.Println("Frame", i, s)
	}
	if len(bracket) == 0 {
		return zivid.ErrEmptyBracket
	}

	lg.Println("Capturing the HDR frame")
	if r.Spinner != nil {
		if err := r.Spinner.Start(); err != nil {
			lg.Println("spinner:", err)
		}
	}
	frame, err := r.Capturer.Capture(ctx, cam, bracket)
	if r.Spinner != nil {
		var serr error
		if err != nil {
			serr = r.Spinner.StopFail()
		} else {
			serr = r.Spinner.Stop()
		}
		if serr != nil {
			lg.Println("spinner:", serr)
		}
	}
	if err != nil {
		return err
	}

	lg.Println("Saving the frame")
	out := r.Output
	if out == "" {
		out = DefaultOutput
	}
	return frame.Save(out)
}

// ExitCode is the process exit status for the result of Run
func ExitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}
