package zivid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

// Application is the process-wide entry point to the cameras.  Create one
// with NewApplication and Close it when the process is done.
type Application struct {
	sync.Mutex

	driver  Driver
	retries uint64
	cameras []Camera
	closed  bool
}

// Option configures an Application
type Option func(*Application)

// WithDriver selects the driver used to reach cameras.  The default is an
// Emulator with DefaultEmulatorConfig.
func WithDriver(d Driver) Option {
	return func(a *Application) {
		a.driver = d
	}
}

// WithConnectRetries sets how many times a failed connection is retried
// with exponential backoff.  The default of zero makes exactly one attempt.
func WithConnectRetries(n uint64) Option {
	return func(a *Application) {
		a.retries = n
	}
}

// NewApplication creates a new application context
func NewApplication(opts ...Option) *Application {
	a := &Application{}
	for _, opt := range opts {
		opt(a)
	}
	if a.driver == nil {
		a.driver = NewEmulator(DefaultEmulatorConfig())
	}
	return a
}

// Cameras lists the cameras reachable by the application's driver
func (a *Application) Cameras(ctx context.Context) ([]CameraInfo, error) {
	a.Lock()
	closed := a.closed
	a.Unlock()
	if closed {
		return nil, ErrApplicationClosed
	}
	return a.driver.Cameras(ctx)
}

// ConnectCamera connects to the first available camera
func (a *Application) ConnectCamera(ctx context.Context) (Camera, error) {
	return a.connect(ctx, "")
}

// ConnectCameraBySerial connects to the camera with the given serial number
func (a *Application) ConnectCameraBySerial(ctx context.Context, serial string) (Camera, error) {
	return a.connect(ctx, serial)
}

func (a *Application) connect(ctx context.Context, serial string) (Camera, error) {
	a.Lock()
	closed := a.closed
	a.Unlock()
	if closed {
		return nil, ErrApplicationClosed
	}

	// discovery may back off for a while, so the lock is not held here
	var cam Camera
	op := func() error {
		infos, err := a.driver.Cameras(ctx)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			return ErrNoCamera
		}
		target := infos[0]
		if serial != "" {
			found := false
			for _, info := range infos {
				if info.Serial == serial {
					target = info
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("%w with serial %s", ErrNoCamera, serial)
			}
		}
		c, err := a.driver.Open(ctx, target.Serial)
		if err != nil {
			return err
		}
		err = c.Connect()
		if err != nil {
			return err
		}
		cam = c
		return nil
	}

	var err error
	if a.retries == 0 {
		err = op()
	} else {
		// cameras on a busy network can take a moment to answer discovery
		policy := &backoff.ExponentialBackOff{
			InitialInterval:     100 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         2 * time.Second,
			MaxElapsedTime:      30 * time.Second,
			Clock:               backoff.SystemClock}
		policy.Reset()
		err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, a.retries), ctx))
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to camera: %w", err)
	}
	a.Lock()
	defer a.Unlock()
	if a.closed {
		cam.Disconnect()
		return nil, ErrApplicationClosed
	}
	a.cameras = append(a.cameras, cam)
	return cam, nil
}

// Close disconnects every camera connected through the application.
// The application may not be used afterwards.
func (a *Application) Close() error {
	a.Lock()
	defer a.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	var first error
	for _, c := range a.cameras {
		err := c.Disconnect()
		if err != nil && err != ErrNotConnected && first == nil {
			first = err
		}
	}
	a.cameras = nil
	return first
}
