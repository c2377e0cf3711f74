package zivid_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/hdrcapture/zivid"
)

func TestConnectCameraDefaultDriver(t *testing.T) {
	app := zivid.NewApplication()
	defer app.Close()
	cam, err := app.ConnectCamera(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "EMU00001", cam.Info().Serial)
}

func TestConnectCameraNoCamera(t *testing.T) {
	cfg := zivid.DefaultEmulatorConfig()
	cfg.Cameras = 0
	app := zivid.NewApplication(zivid.WithDriver(zivid.NewEmulator(cfg)))
	defer app.Close()
	_, err := app.ConnectCamera(context.Background())
	assert.True(t, errors.Is(err, zivid.ErrNoCamera), "expected ErrNoCamera, got %v", err)
}

func TestConnectCameraBySerial(t *testing.T) {
	cfg := zivid.DefaultEmulatorConfig()
	cfg.Cameras = 2
	app := zivid.NewApplication(zivid.WithDriver(zivid.NewEmulator(cfg)))
	defer app.Close()
	cam, err := app.ConnectCameraBySerial(context.Background(), "EMU00001-1")
	require.NoError(t, err)
	assert.Equal(t, "EMU00001-1", cam.Info().Serial)

	_, err = app.ConnectCameraBySerial(context.Background(), "ZZZ")
	assert.True(t, errors.Is(err, zivid.ErrNoCamera))
}

func TestCloseDisconnects(t *testing.T) {
	app := zivid.NewApplication()
	cam, err := app.ConnectCamera(context.Background())
	require.NoError(t, err)
	require.NoError(t, app.Close())

	_, err = cam.Capture(context.Background(), zivid.DefaultSettings())
	assert.Equal(t, zivid.ErrNotConnected, err)
	_, err = app.ConnectCamera(context.Background())
	assert.Equal(t, zivid.ErrApplicationClosed, err)
	assert.NoError(t, app.Close(), "closing twice is a no-op")
}

// flakyDriver fails discovery a fixed number of times before delegating
type flakyDriver struct {
	zivid.Driver
	failures int
	attempts int
}

func (f *flakyDriver) Cameras(ctx context.Context) ([]zivid.CameraInfo, error) {
	f.attempts++
	if f.attempts <= f.failures {
		return nil, errors.New("discovery timeout")
	}
	return f.Driver.Cameras(ctx)
}

func TestConnectDoesNotRetryByDefault(t *testing.T) {
	d := &flakyDriver{Driver: zivid.NewEmulator(zivid.DefaultEmulatorConfig()), failures: 1}
	app := zivid.NewApplication(zivid.WithDriver(d))
	defer app.Close()
	_, err := app.ConnectCamera(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, d.attempts)
}

func TestConnectRetries(t *testing.T) {
	d := &flakyDriver{Driver: zivid.NewEmulator(zivid.DefaultEmulatorConfig()), failures: 2}
	app := zivid.NewApplication(zivid.WithDriver(d), zivid.WithConnectRetries(2))
	defer app.Close()
	_, err := app.ConnectCamera(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 3, d.attempts)
}

// gatedDriver holds discovery until release is closed
type gatedDriver struct {
	zivid.Driver
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedDriver) Cameras(ctx context.Context) ([]zivid.CameraInfo, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.Driver.Cameras(ctx)
}

func TestCloseDuringDiscovery(t *testing.T) {
	emu := zivid.NewEmulator(zivid.DefaultEmulatorConfig())
	d := &gatedDriver{Driver: emu, entered: make(chan struct{}), release: make(chan struct{})}
	app := zivid.NewApplication(zivid.WithDriver(d))

	result := make(chan error, 1)
	go func() {
		_, err := app.ConnectCamera(context.Background())
		result <- err
	}()
	<-d.entered

	closed := make(chan error, 1)
	go func() { closed <- app.Close() }()
	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind camera discovery")
	}

	close(d.release)
	assert.Equal(t, zivid.ErrApplicationClosed, <-result)

	// the camera found after Close was released again
	cam, err := emu.Open(context.Background(), "EMU00001")
	require.NoError(t, err)
	assert.NoError(t, cam.Connect())
	cam.Disconnect()
}
