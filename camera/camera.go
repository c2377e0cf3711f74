/*Package camera describes a standard set of types and interfaces for 3D cameras

PointCloud holds the organized data produced by a structured light camera, one
sample per sensor pixel.  The Minimal interface contains the basics of a
connection, while Thermometer contains the temperature readout found on most
industrial 3D cameras.

*/
package camera

import (
	"image"
	"image/color"
	"math"
)

// Minimal describes a minimal camera interface with only the basics.
type Minimal interface {
	// Connect opens the connection to the camera.  This may have myriad side
	// effects, for example the allocation of buffer(s) for holding frames,
	// or the upload of a default configuration.
	Connect() error

	// Disconnect releases the camera, after which it may be opened by
	// another process
	Disconnect() error

	// GetRes gets the (H, W) associated with the data returned by a capture
	GetRes() ([2]int, error)
}

// Thermometer describes a camera which can report its internal temperature.
type Thermometer interface {
	// GetTemp gets the current camera temperature in Celcius
	// what the temperature is actually measured on (projector, lens, pcb, etc)
	// is implementation dependent.
	GetTemp() (float64, error)
}

// PointCloud is an organized point cloud.  All slices are row major and
// strided by Width.
type PointCloud struct {
	// Width is the number of columns
	Width int

	// Height is the number of rows
	Height int

	// XYZ holds 3 float32 per pixel in millimeters.  A pixel without data
	// has NaN for all three coordinates
	XYZ []float32

	// RGBA holds 4 bytes of color per pixel
	RGBA []uint8

	// SNR holds the signal to noise ratio (contrast) of each pixel
	SNR []float32
}

// NewPointCloud allocates a point cloud of the given size with every pixel
// marked invalid
func NewPointCloud(width, height int) PointCloud {
	n := width * height
	pc := PointCloud{
		Width:  width,
		Height: height,
		XYZ:    make([]float32, 3*n),
		RGBA:   make([]uint8, 4*n),
		SNR:    make([]float32, n),
	}
	nan := float32(math.NaN())
	for i := range pc.XYZ {
		pc.XYZ[i] = nan
	}
	return pc
}

// Len returns the number of pixels in the cloud
func (pc PointCloud) Len() int {
	return pc.Width * pc.Height
}

// Index converts (row, col) to a flat pixel index
func (pc PointCloud) Index(row, col int) int {
	return row*pc.Width + col
}

// Point returns the XYZ coordinate of pixel i
func (pc PointCloud) Point(i int) (x, y, z float32) {
	return pc.XYZ[3*i], pc.XYZ[3*i+1], pc.XYZ[3*i+2]
}

// SetPoint sets the XYZ coordinate of pixel i
func (pc PointCloud) SetPoint(i int, x, y, z float32) {
	pc.XYZ[3*i] = x
	pc.XYZ[3*i+1] = y
	pc.XYZ[3*i+2] = z
}

// Invalidate marks pixel i as having no data
func (pc PointCloud) Invalidate(i int) {
	nan := float32(math.NaN())
	pc.SetPoint(i, nan, nan, nan)
	pc.SNR[i] = 0
}

// Valid returns true if pixel i holds a measurement
func (pc PointCloud) Valid(i int) bool {
	return !math.IsNaN(float64(pc.XYZ[3*i+2]))
}

// ValidCount returns the number of pixels that hold a measurement
func (pc PointCloud) ValidCount() int {
	n := 0
	for i := 0; i < pc.Len(); i++ {
		if pc.Valid(i) {
			n++
		}
	}
	return n
}

// Color returns the color of pixel i
func (pc PointCloud) Color(i int) color.RGBA {
	o := 4 * i
	return color.RGBA{R: pc.RGBA[o], G: pc.RGBA[o+1], B: pc.RGBA[o+2], A: pc.RGBA[o+3]}
}

// SetColor sets the color of pixel i
func (pc PointCloud) SetColor(i int, c color.RGBA) {
	o := 4 * i
	pc.RGBA[o] = c.R
	pc.RGBA[o+1] = c.G
	pc.RGBA[o+2] = c.B
	pc.RGBA[o+3] = c.A
}

// Clone returns a deep copy of the point cloud
func (pc PointCloud) Clone() PointCloud {
	out := PointCloud{Width: pc.Width, Height: pc.Height}
	out.XYZ = append([]float32(nil), pc.XYZ...)
	out.RGBA = append([]uint8(nil), pc.RGBA...)
	out.SNR = append([]float32(nil), pc.SNR...)
	return out
}

// Image returns the color channel of the cloud as an image.  The pixel buffer
// is shared with the cloud.
func (pc PointCloud) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    pc.RGBA,
		Stride: 4 * pc.Width,
		Rect:   image.Rect(0, 0, pc.Width, pc.Height),
	}
}
