/*Package zivid exposes control of structured light 3D cameras in Go.

The surface follows the vendor SDK: an Application is created once per
process, cameras are connected through it, each Capture takes a Settings
value and returns a Frame, and HDR.Capture combines a bracket of Settings into
a single Frame which may be saved to a .zdf file.

Cameras are reached through a Driver.  This package ships an Emulator driver
which synthesizes a scene in-process; hardware drivers satisfy the same
interface.
*/
package zivid

import (
	"context"
	"errors"

	"github.jpl.nasa.gov/bdube/hdrcapture/camera"
)

// WRAPVER is the wrapper code version, written into saved frames.
// Incremement this when the .zdf layout changes.
const WRAPVER = 2

var (
	// ErrNoCamera is generated when no camera is available to connect to
	ErrNoCamera = errors.New("zivid: no camera found")

	// ErrNotConnected is generated when a camera is used before Connect or after Disconnect
	ErrNotConnected = errors.New("zivid: camera is not connected")

	// ErrApplicationClosed is generated when a closed Application is used
	ErrApplicationClosed = errors.New("zivid: application is closed")

	// ErrEmptyBracket is generated when an HDR capture is requested with no settings
	ErrEmptyBracket = errors.New("zivid: HDR capture requires at least one settings entry")
)

// CameraInfo identifies a camera
type CameraInfo struct {
	// Serial is the serial number, unique per camera
	Serial string `json:"serial"`

	// Model is the model name
	Model string `json:"model"`

	// Firmware is the firmware version string
	Firmware string `json:"firmware"`
}

// Camera is a connected (or connectable) 3D camera
type Camera interface {
	camera.Minimal

	// Capture acquires a single frame with the given settings.  It blocks
	// until the frame is complete or ctx is done.
	Capture(ctx context.Context, s Settings) (*Frame, error)

	// Info identifies the camera
	Info() CameraInfo
}

// Driver enumerates and opens cameras
type Driver interface {
	// Cameras lists the cameras the driver can reach, in a stable order
	Cameras(ctx context.Context) ([]CameraInfo, error)

	// Open returns the camera with the given serial, not yet connected
	Open(ctx context.Context, serial string) (Camera, error)
}
