package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"golang.org/x/time/rate"

	"github.jpl.nasa.gov/bdube/hdrcapture/hdr"
	"github.jpl.nasa.gov/bdube/hdrcapture/imgrec"
	"github.jpl.nasa.gov/bdube/hdrcapture/server/middleware/locker"
	"github.jpl.nasa.gov/bdube/hdrcapture/zivid"
)

// FrameConfig holds the settings unique to one frame of the bracket
type FrameConfig struct {
	Iris       uint64  `yaml:"Iris" koanf:"Iris"`
	ExposureUs int64   `yaml:"ExposureUs" koanf:"ExposureUs"`
	Gain       float64 `yaml:"Gain" koanf:"Gain"`
}

// CameraConfig selects and shapes the camera
type CameraConfig struct {
	// Serial is the serial number to connect to; the first camera if empty
	Serial string `yaml:"Serial" koanf:"Serial"`

	// Width and Height are the resolution of the emulated camera
	Width  int `yaml:"Width" koanf:"Width"`
	Height int `yaml:"Height" koanf:"Height"`

	// ConnectRetries is the number of times a failed connection is retried
	ConnectRetries uint64 `yaml:"ConnectRetries" koanf:"ConnectRetries"`
}

// ServerConfig configures the serve command
type ServerConfig struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// RecordRoot, when not empty, enables autowrite of served .zdf files
	// into dated folders below it
	RecordRoot string `yaml:"RecordRoot" koanf:"RecordRoot"`

	// RecordPrefix is the filename prefix for autowritten files
	RecordPrefix string `yaml:"RecordPrefix" koanf:"RecordPrefix"`

	// CapturesPerSecond limits the capture rate; zero is unlimited
	CapturesPerSecond float64 `yaml:"CapturesPerSecond" koanf:"CapturesPerSecond"`
}

// Config is the configuration of hdrcapture, populated from hdrcapture.yml
type Config struct {
	// Output is the path the HDR frame is saved to
	Output string `yaml:"Output" koanf:"Output"`

	// Baseline is the settings shared by all frames
	Baseline zivid.Settings `yaml:"Baseline" koanf:"Baseline"`

	// Frames are the per-frame settings of the bracket, in capture order
	Frames []FrameConfig `yaml:"Frames" koanf:"Frames"`

	Camera CameraConfig `yaml:"Camera" koanf:"Camera"`

	// Spinner shows a spinner while the capture runs
	Spinner bool `yaml:"Spinner" koanf:"Spinner"`

	Server ServerConfig `yaml:"Server" koanf:"Server"`
}

// DefaultConfig is the configuration used when no file is present
func DefaultConfig() Config {
	frames := []FrameConfig{}
	for _, f := range hdr.DefaultFrames() {
		frames = append(frames, FrameConfig{
			Iris:       f.Iris,
			ExposureUs: f.ExposureTime.Microseconds(),
			Gain:       f.Gain})
	}
	emu := zivid.DefaultEmulatorConfig()
	return Config{
		Output:   hdr.DefaultOutput,
		Baseline: hdr.DefaultBaseline(),
		Frames:   frames,
		Camera: CameraConfig{
			Width:  emu.Width,
			Height: emu.Height},
		Server: ServerConfig{
			Addr:         ":8000",
			RecordPrefix: "hdr"},
	}
}

// FrameSettings converts the configured frames
func (c Config) FrameSettings() []hdr.FrameSettings {
	out := make([]hdr.FrameSettings, len(c.Frames))
	for i, f := range c.Frames {
		out[i] = hdr.FrameSettings{
			Iris:         f.Iris,
			ExposureTime: zivid.Microseconds(f.ExposureUs),
			Gain:         f.Gain}
	}
	return out
}

// NewApplication creates the application context described by c
func NewApplication(c Config) *zivid.Application {
	emu := zivid.DefaultEmulatorConfig()
	if c.Camera.Serial != "" {
		emu.Serial = c.Camera.Serial
	}
	if c.Camera.Width > 0 {
		emu.Width = c.Camera.Width
	}
	if c.Camera.Height > 0 {
		emu.Height = c.Camera.Height
	}
	return zivid.NewApplication(
		zivid.WithDriver(zivid.NewEmulator(emu)),
		zivid.WithConnectRetries(c.Camera.ConnectRetries))
}

// connector connects by serial when one is configured
type connector struct {
	app    *zivid.Application
	serial string
}

func (c connector) ConnectCamera(ctx context.Context) (zivid.Camera, error) {
	if c.serial == "" {
		return c.app.ConnectCamera(ctx)
	}
	return c.app.ConnectCameraBySerial(ctx, c.serial)
}

// BuildMux connects to the camera and returns a router serving it, with
// request logging and a lock
func BuildMux(ctx context.Context, c Config, app *zivid.Application) (chi.Router, error) {
	cam, err := connector{app, c.Camera.Serial}.ConnectCamera(ctx)
	if err != nil {
		return nil, err
	}

	var rec *imgrec.Recorder
	if c.Server.RecordRoot != "" {
		rec = &imgrec.Recorder{
			Root:    c.Server.RecordRoot,
			Prefix:  c.Server.RecordPrefix,
			Enabled: true}
		rec.Incr()
	}
	var lim *rate.Limiter
	if c.Server.CapturesPerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(c.Server.CapturesPerSecond), 1)
	}

	bracket := hdr.Bracket(c.Baseline, c.FrameSettings())
	w := zivid.NewHTTPWrapper(cam, c.Baseline, bracket, rec, lim)
	lk := locker.New()
	locker.Inject(w, lk)

	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Use(middleware.Timeout(time.Minute))
	root.Use(lk.Check)
	w.RT().Bind(root)
	return root, nil
}

// serve listens on the configured address until the server fails
func serve(ctx context.Context, c Config, app *zivid.Application) error {
	mux, err := BuildMux(ctx, c, app)
	if err != nil {
		return err
	}
	return http.ListenAndServe(c.Server.Addr, mux)
}
