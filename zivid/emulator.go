package zivid

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.jpl.nasa.gov/bdube/hdrcapture/camera"
	"github.jpl.nasa.gov/bdube/hdrcapture/mathx"
	"github.jpl.nasa.gov/bdube/hdrcapture/temperature"
)

const (
	// patternsPerCapture is the number of projected patterns in one acquisition
	patternsPerCapture = 13

	// nominalExposure is the exposure time at which the scene's reflectances
	// map directly to sensor levels, with unity gain and brightness and
	// nominalIris
	nominalExposure = 10 * time.Millisecond
	nominalIris     = 27.

	// snrScale is the SNR of a pixel at full well with unity gain
	snrScale = 60.

	// depthNoise is the depth standard deviation in mm of a pixel with SNR=1
	depthNoise = 8.

	// reflectionOffset is how far behind the true surface a specular
	// reflection places its spurious point, in mm
	reflectionOffset = 40.
)

var (
	// ErrCameraBusy is generated when a camera that is already connected is
	// connected again
	ErrCameraBusy = errors.New("zivid: camera is already connected")

	// channelResponse is the relative response of the color channels to the
	// projector's white; the white balance gains undo it
	channelResponse = [3]float64{1 / 1.709, 1, 1 / 1.081}
)

// EmulatorConfig configures an emulated driver
type EmulatorConfig struct {
	// Serial is the serial number of the first camera; further cameras get a
	// numeric suffix
	Serial string

	// Model and Firmware are reported in CameraInfo
	Model    string
	Firmware string

	// Width and Height are the sensor resolution
	Width, Height int

	// Cameras is the number of cameras the driver reports
	Cameras int

	// Seed seeds the sensor noise
	Seed int64

	// Realtime makes captures take as long as the projected patterns would
	Realtime bool
}

// DefaultEmulatorConfig returns a config with a single small camera
func DefaultEmulatorConfig() EmulatorConfig {
	return EmulatorConfig{
		Serial:   "EMU00001",
		Model:    "Emulated One+",
		Firmware: "emulator",
		Width:    160,
		Height:   120,
		Cameras:  1,
		Seed:     1,
	}
}

// Emulator is a Driver which serves emulated cameras viewing a synthetic
// scene: a tilted plane with black, dark, and bright bands, an orange
// sphere in front of it, and a specular patch on the bright band.
type Emulator struct {
	sync.Mutex
	cfg  EmulatorConfig
	cams map[string]*EmulatedCamera
}

// NewEmulator returns a new emulated driver.  A zero Width or Height takes the default.
func NewEmulator(cfg EmulatorConfig) *Emulator {
	def := DefaultEmulatorConfig()
	if cfg.Width == 0 {
		cfg.Width = def.Width
	}
	if cfg.Height == 0 {
		cfg.Height = def.Height
	}
	if cfg.Serial == "" {
		cfg.Serial = def.Serial
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Firmware == "" {
		cfg.Firmware = def.Firmware
	}
	return &Emulator{cfg: cfg, cams: make(map[string]*EmulatedCamera)}
}

func (e *Emulator) serial(i int) string {
	if i == 0 {
		return e.cfg.Serial
	}
	return fmt.Sprintf("%s-%d", e.cfg.Serial, i)
}

// Cameras lists the emulated cameras
func (e *Emulator) Cameras(ctx context.Context) ([]CameraInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]CameraInfo, e.cfg.Cameras)
	for i := range out {
		out[i] = CameraInfo{Serial: e.serial(i), Model: e.cfg.Model, Firmware: e.cfg.Firmware}
	}
	return out, nil
}

// Open returns the emulated camera with the given serial.  Each serial maps
// to a single camera instance for the life of the driver.
func (e *Emulator) Open(ctx context.Context, serial string) (Camera, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.Lock()
	defer e.Unlock()
	if c, ok := e.cams[serial]; ok {
		return c, nil
	}
	for i := 0; i < e.cfg.Cameras; i++ {
		if e.serial(i) != serial {
			continue
		}
		c := &EmulatedCamera{
			info:  CameraInfo{Serial: serial, Model: e.cfg.Model, Firmware: e.cfg.Firmware},
			cfg:   e.cfg,
			temp:  25,
			drift: temperature.Drift{Steady: 42, Rate: 0.05},
			rng:   rand.New(rand.NewSource(e.cfg.Seed + int64(i))),
		}
		e.cams[serial] = c
		return c, nil
	}
	return nil, fmt.Errorf("%w with serial %s", ErrNoCamera, serial)
}

// EmulatedCamera is a Camera served by an Emulator.  It is safe for
// concurrent use; captures are serialized.
type EmulatedCamera struct {
	sync.Mutex
	info      CameraInfo
	cfg       EmulatorConfig
	connected bool
	temp      temperature.Celsius
	drift     temperature.Drift
	rng       *rand.Rand
	captures  int
}

// Connect connects to the camera
func (c *EmulatedCamera) Connect() error {
	c.Lock()
	defer c.Unlock()
	if c.connected {
		return ErrCameraBusy
	}
	c.connected = true
	return nil
}

// Disconnect releases the camera
func (c *EmulatedCamera) Disconnect() error {
	c.Lock()
	defer c.Unlock()
	if !c.connected {
		return ErrNotConnected
	}
	c.connected = false
	return nil
}

// GetRes returns (H, W)
func (c *EmulatedCamera) GetRes() ([2]int, error) {
	return [2]int{c.cfg.Height, c.cfg.Width}, nil
}

// GetTemp returns the camera temperature in Celsius
func (c *EmulatedCamera) GetTemp() (float64, error) {
	c.Lock()
	defer c.Unlock()
	return mathx.Round(float64(c.temp), 0.1), nil
}

// Info identifies the camera
func (c *EmulatedCamera) Info() CameraInfo {
	return c.info
}

// Captures returns the number of frames captured so far
func (c *EmulatedCamera) Captures() int {
	c.Lock()
	defer c.Unlock()
	return c.captures
}

// acquisitionTime is how long the projector runs for one capture
func acquisitionTime(s Settings) time.Duration {
	d := time.Duration(patternsPerCapture) * s.ExposureTime
	if s.Bidirectional {
		d *= 2
	}
	return d
}

// Capture acquires a frame of the synthetic scene
func (c *EmulatedCamera) Capture(ctx context.Context, s Settings) (*Frame, error) {
	c.Lock()
	defer c.Unlock()
	if !c.connected {
		return nil, ErrNotConnected
	}
	err := s.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if c.cfg.Realtime {
		t := time.NewTimer(acquisitionTime(s))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw := c.expose(s)
	pc := applyFilters(raw, s.Filters)
	c.captures++
	c.temp = c.drift.Step(c.temp)
	return newFrame(pc, c.info.Serial, c.temp, s), nil
}

// surface is what a ray from the camera hits
type surface struct {
	t        float64
	refl     [3]float64
	specular bool
}

// scene geometry, in mm
const (
	focalScale   = 2.5 // focal length in units of sensor width
	sphereZ      = 800.
	sphereRadius = 120.
	planeZ       = 1000.
	planeTilt    = 0.2
)

var (
	blackRefl  = [3]float64{0.004, 0.004, 0.004}
	darkRefl   = [3]float64{0.02, 0.03, 0.04}
	brightRefl = [3]float64{0.9, 0.85, 0.8}
	sphereRefl = [3]float64{0.8, 0.4, 0.1}
)

// ray returns the direction (dx, dy, 1) through pixel (row, col)
func (c *EmulatedCamera) ray(row, col int) (dx, dy float64) {
	w, h := float64(c.cfg.Width), float64(c.cfg.Height)
	f := focalScale * w
	dx = (float64(col) + 0.5 - w/2) / f
	dy = (float64(row) + 0.5 - h/2) / f
	return dx, dy
}

// trace finds the surface seen by pixel (row, col)
func (c *EmulatedCamera) trace(row, col int) surface {
	dx, dy := c.ray(row, col)

	// sphere centered on the optical axis
	a := dx*dx + dy*dy + 1
	b := -2 * sphereZ
	cc := sphereZ*sphereZ - sphereRadius*sphereRadius
	disc := b*b - 4*a*cc
	if disc >= 0 {
		return surface{t: (-b - math.Sqrt(disc)) / (2 * a), refl: sphereRefl}
	}

	// plane z = planeZ + tilt*y, banded by column
	t := planeZ / (1 - planeTilt*dy)
	u := float64(col) / float64(c.cfg.Width)
	v := float64(row) / float64(c.cfg.Height)
	switch {
	case u < 0.25:
		return surface{t: t, refl: blackRefl}
	case u < 0.5:
		return surface{t: t, refl: darkRefl}
	}
	spec := u >= 0.75 && u < 0.9 && v >= 0.7 && v < 0.85
	return surface{t: t, refl: brightRefl, specular: spec}
}

// expose synthesizes the unfiltered sensor output for s
func (c *EmulatedCamera) expose(s Settings) rawFrame {
	w, h := c.cfg.Width, c.cfg.Height
	raw := rawFrame{
		PointCloud: camera.NewPointCloud(w, h),
		saturated:  make([]bool, w*h),
		reflection: make([]bool, w*h),
	}
	aperture := math.Pow(float64(s.Iris)/nominalIris, 2)
	exposure := s.ExposureTime.Seconds() / nominalExposure.Seconds() * s.Gain * aperture * s.Brightness
	balance := [3]float64{s.RedBalance, 1, s.BlueBalance}
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			i := raw.Index(row, col)
			srf := c.trace(row, col)
			falloff := math.Pow(planeZ/srf.t, 2)
			lum := (srf.refl[0] + srf.refl[1] + srf.refl[2]) / 3 * exposure * falloff
			if srf.specular {
				lum *= 6
			}

			var rgb [3]uint8
			for ch := 0; ch < 3; ch++ {
				v := 255 * srf.refl[ch] * exposure * falloff * channelResponse[ch] * balance[ch]
				rgb[ch] = uint8(mathx.Clamp(v, 0, 255))
			}
			raw.SetColor(i, color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255})

			if lum <= 0 {
				continue
			}
			snr := snrScale * math.Sqrt(math.Min(lum, 1)) / math.Sqrt(s.Gain)
			if s.Bidirectional {
				snr *= math.Sqrt2
			}
			t := srf.t
			if lum >= 1 {
				raw.saturated[i] = true
				snr = 1
			}
			if srf.specular {
				raw.reflection[i] = true
				t += reflectionOffset
			}
			t += c.rng.NormFloat64() * depthNoise / snr
			dx, dy := c.ray(row, col)
			raw.SetPoint(i, float32(t*dx), float32(t*dy), float32(t))
			raw.SNR[i] = float32(snr)
		}
	}
	return raw
}
