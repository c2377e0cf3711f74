package zivid

import (
	"fmt"
	"time"

	"github.com/go-yaml/yaml"
)

const (
	// DefaultContrastThreshold is used when the contrast filter is enabled
	// without a threshold
	DefaultContrastThreshold = 5.

	// DefaultGaussianSigma is used when the gaussian filter is enabled
	// without a sigma
	DefaultGaussianSigma = 1.5

	// DefaultOutlierThreshold is used when the outlier filter is enabled
	// without a threshold, in mm
	DefaultOutlierThreshold = 20.
)

// Limits on the acquisition parameters of a camera
var (
	BrightnessRange    = [2]float64{0, 1.8}
	IrisRange          = [2]float64{0, 72}
	ExposureRange      = [2]time.Duration{6500 * time.Microsecond, 100 * time.Millisecond}
	GainRange          = [2]float64{1, 16}
	BalanceRange       = [2]float64{1, 8}
	GaussianSigmaRange = [2]float64{0.5, 5}
)

// ContrastFilter discards points whose signal to noise ratio is below Threshold
type ContrastFilter struct {
	Enabled   bool     `json:"enabled" yaml:"enabled" koanf:"enabled"`
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty" koanf:"threshold"`
}

// GaussianFilter smooths the depth map with a gaussian kernel of width Sigma pixels
type GaussianFilter struct {
	Enabled bool     `json:"enabled" yaml:"enabled" koanf:"enabled"`
	Sigma   *float64 `json:"sigma,omitempty" yaml:"sigma,omitempty" koanf:"sigma"`
}

// OutlierFilter discards points further than Threshold mm from their neighbors
type OutlierFilter struct {
	Enabled   bool     `json:"enabled" yaml:"enabled" koanf:"enabled"`
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty" koanf:"threshold"`
}

// ReflectionFilter discards points produced by specular reflections
type ReflectionFilter struct {
	Enabled bool `json:"enabled" yaml:"enabled" koanf:"enabled"`
}

// SaturatedFilter discards points whose sensor values were saturated
type SaturatedFilter struct {
	Enabled bool `json:"enabled" yaml:"enabled" koanf:"enabled"`
}

// Filters holds the post-processing applied to each frame
type Filters struct {
	Contrast   ContrastFilter   `json:"contrast" yaml:"contrast" koanf:"contrast"`
	Gaussian   GaussianFilter   `json:"gaussian" yaml:"gaussian" koanf:"gaussian"`
	Outlier    OutlierFilter    `json:"outlier" yaml:"outlier" koanf:"outlier"`
	Reflection ReflectionFilter `json:"reflection" yaml:"reflection" koanf:"reflection"`
	Saturated  SaturatedFilter  `json:"saturated" yaml:"saturated" koanf:"saturated"`
}

// Settings configures a single acquisition.
//
// Settings is a value type, but the optional filter parameters are pointers;
// use Clone before mutating a copy that must stay independent.
type Settings struct {
	// Brightness is the projector brightness, 1 is nominal
	Brightness float64 `json:"brightness" yaml:"brightness" koanf:"brightness"`

	// Bidirectional captures patterns in both directions to reduce
	// contrast distortion
	Bidirectional bool `json:"bidirectional" yaml:"bidirectional" koanf:"bidirectional"`

	// BlueBalance is the white balance gain of the blue channel
	BlueBalance float64 `json:"blueBalance" yaml:"blueBalance" koanf:"blueBalance"`

	// RedBalance is the white balance gain of the red channel
	RedBalance float64 `json:"redBalance" yaml:"redBalance" koanf:"redBalance"`

	// Iris is the aperture setting, larger values admit more light
	Iris uint64 `json:"iris" yaml:"iris" koanf:"iris"`

	// ExposureTime is the sensor exposure time per pattern
	ExposureTime time.Duration `json:"exposureTime" yaml:"exposureTime" koanf:"exposureTime"`

	// Gain is the analog sensor gain
	Gain float64 `json:"gain" yaml:"gain" koanf:"gain"`

	Filters Filters `json:"filters" yaml:"filters" koanf:"filters"`
}

// DefaultSettings returns the settings a camera uses when none are given
func DefaultSettings() Settings {
	return Settings{
		Brightness:   1,
		BlueBalance:  1,
		RedBalance:   1,
		Iris:         22,
		ExposureTime: 8333 * time.Microsecond,
		Gain:         1,
		Filters: Filters{
			Contrast:  ContrastFilter{Enabled: true, Threshold: Float(DefaultContrastThreshold)},
			Gaussian:  GaussianFilter{Enabled: true, Sigma: Float(DefaultGaussianSigma)},
			Outlier:   OutlierFilter{Enabled: true, Threshold: Float(DefaultOutlierThreshold)},
			Saturated: SaturatedFilter{Enabled: true},
		},
	}
}

// Float returns a pointer to f, for the optional filter parameters
func Float(f float64) *float64 {
	return &f
}

// Microseconds converts an integer number of microseconds to a duration
func Microseconds(us int64) time.Duration {
	return time.Duration(us) * time.Microsecond
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	return Float(*f)
}

// Clone returns a deep copy of s
func (s Settings) Clone() Settings {
	out := s
	out.Filters.Contrast.Threshold = cloneFloat(s.Filters.Contrast.Threshold)
	out.Filters.Gaussian.Sigma = cloneFloat(s.Filters.Gaussian.Sigma)
	out.Filters.Outlier.Threshold = cloneFloat(s.Filters.Outlier.Threshold)
	return out
}

// ContrastThreshold returns the effective contrast threshold
func (f Filters) ContrastThreshold() float64 {
	if f.Contrast.Threshold == nil {
		return DefaultContrastThreshold
	}
	return *f.Contrast.Threshold
}

// GaussianSigma returns the effective gaussian sigma
func (f Filters) GaussianSigma() float64 {
	if f.Gaussian.Sigma == nil {
		return DefaultGaussianSigma
	}
	return *f.Gaussian.Sigma
}

// OutlierThreshold returns the effective outlier threshold
func (f Filters) OutlierThreshold() float64 {
	if f.Outlier.Threshold == nil {
		return DefaultOutlierThreshold
	}
	return *f.Outlier.Threshold
}

// ErrOutOfRange is generated when a setting is outside of the range the
// camera supports
type ErrOutOfRange struct {
	// Setting is the name of the offending setting
	Setting string

	// Value is the value that was requested
	Value float64

	// Min and Max bound the allowed range
	Min, Max float64
}

// Error satisfies the error interface
func (e ErrOutOfRange) Error() string {
	return fmt.Sprintf("%s %g is outside the allowed range [%g, %g]", e.Setting, e.Value, e.Min, e.Max)
}

func checkRange(name string, v float64, rng [2]float64) error {
	if v < rng[0] || v > rng[1] {
		return ErrOutOfRange{Setting: name, Value: v, Min: rng[0], Max: rng[1]}
	}
	return nil
}

// Validate returns an error if any setting is out of range
func (s Settings) Validate() error {
	exp := [2]float64{float64(ExposureRange[0].Microseconds()), float64(ExposureRange[1].Microseconds())}
	checks := []error{
		checkRange("Brightness", s.Brightness, BrightnessRange),
		checkRange("Iris", float64(s.Iris), IrisRange),
		checkRange("ExposureTime (us)", float64(s.ExposureTime.Microseconds()), exp),
		checkRange("Gain", s.Gain, GainRange),
		checkRange("BlueBalance", s.BlueBalance, BalanceRange),
		checkRange("RedBalance", s.RedBalance, BalanceRange),
	}
	if s.Filters.Contrast.Enabled && s.Filters.ContrastThreshold() < 0 {
		checks = append(checks, ErrOutOfRange{Setting: "Filters.Contrast.Threshold",
			Value: s.Filters.ContrastThreshold(), Min: 0, Max: 100})
	}
	if s.Filters.Gaussian.Enabled {
		checks = append(checks, checkRange("Filters.Gaussian.Sigma", s.Filters.GaussianSigma(), GaussianSigmaRange))
	}
	if s.Filters.Outlier.Enabled && s.Filters.OutlierThreshold() < 0 {
		checks = append(checks, ErrOutOfRange{Setting: "Filters.Outlier.Threshold",
			Value: s.Filters.OutlierThreshold(), Min: 0, Max: 100})
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

// settingsView is the printed form of Settings, with the exposure time
// rendered as a duration string
type settingsView struct {
	Brightness    float64 `yaml:"Brightness"`
	Bidirectional bool    `yaml:"Bidirectional"`
	BlueBalance   float64 `yaml:"BlueBalance"`
	RedBalance    float64 `yaml:"RedBalance"`
	Iris          uint64  `yaml:"Iris"`
	ExposureTime  string  `yaml:"ExposureTime"`
	Gain          float64 `yaml:"Gain"`
	Filters       Filters `yaml:"Filters"`
}

// String renders the settings as YAML
func (s Settings) String() string {
	v := settingsView{
		Brightness:    s.Brightness,
		Bidirectional: s.Bidirectional,
		BlueBalance:   s.BlueBalance,
		RedBalance:    s.RedBalance,
		Iris:          s.Iris,
		ExposureTime:  s.ExposureTime.String(),
		Gain:          s.Gain,
		Filters:       s.Filters,
	}
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}
