package hdr_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/hdrcapture/hdr"
	"github.jpl.nasa.gov/bdube/hdrcapture/zivid"
)

// calls records the order collaborators are invoked in
type calls []string

type mockConnector struct {
	log *calls
	err error
}

func (m mockConnector) ConnectCamera(ctx context.Context) (zivid.Camera, error) {
	*m.log = append(*m.log, "connect")
	return nil, m.err
}

type mockFrame struct {
	log   *calls
	paths []string
	err   error
}

func (m *mockFrame) Save(path string) error {
	*m.log = append(*m.log, "save")
	m.paths = append(m.paths, path)
	return m.err
}

type mockCapturer struct {
	log     *calls
	frame   *mockFrame
	bracket []zivid.Settings
	err     error
}

func (m *mockCapturer) Capture(ctx context.Context, cam zivid.Camera, b []zivid.Settings) (hdr.Frame, error) {
	*m.log = append(*m.log, "capture")
	m.bracket = b
	if m.err != nil {
		return nil, m.err
	}
	return m.frame, nil
}

type mockSpinner struct {
	log *calls
}

func (m mockSpinner) Start() error    { *m.log = append(*m.log, "spin"); return nil }
func (m mockSpinner) Stop() error     { *m.log = append(*m.log, "stop"); return nil }
func (m mockSpinner) StopFail() error { *m.log = append(*m.log, "stopfail"); return nil }

func setup(connErr, capErr, saveErr error) (*hdr.Runner, *calls, *mockCapturer, *bytes.Buffer) {
	c := &calls{}
	f := &mockFrame{log: c, err: saveErr}
	capt := &mockCapturer{log: c, frame: f, err: capErr}
	buf := &bytes.Buffer{}
	r := hdr.NewRunner(mockConnector{log: c, err: connErr})
	r.Capturer = capt
	r.Log = log.New(buf, "", 0)
	return r, c, capt, buf
}

func TestBracketMatchesFrames(t *testing.T) {
	base := hdr.DefaultBaseline()
	b := hdr.Bracket(base, hdr.DefaultFrames())
	require.Len(t, b, 3)

	iris := []uint64{17, 27, 27}
	exposure := []int64{10000, 10000, 40000}
	gain := []float64{1, 1, 2}
	for i, s := range b {
		assert.Equal(t, iris[i], s.Iris)
		assert.Equal(t, zivid.Microseconds(exposure[i]), s.ExposureTime)
		assert.Equal(t, gain[i], s.Gain)

		// everything else is the baseline
		want := base.Clone()
		want.Iris, want.ExposureTime, want.Gain = s.Iris, s.ExposureTime, s.Gain
		if diff := cmp.Diff(want, s); diff != "" {
			t.Errorf("frame %d differs from baseline (-want +got):\n%s", i, diff)
		}
	}
}

func TestBracketEntriesAreIndependent(t *testing.T) {
	base := hdr.DefaultBaseline()
	b := hdr.Bracket(base, hdr.DefaultFrames())
	*b[0].Filters.Contrast.Threshold = 99
	assert.Equal(t, 5., *b[1].Filters.Contrast.Threshold)
	assert.Equal(t, 5., *base.Filters.Contrast.Threshold)
	base.Brightness = 0.5
	assert.Equal(t, 1., b[2].Brightness)
}

func TestDefaultBaselineIsValid(t *testing.T) {
	for i, s := range hdr.Bracket(hdr.DefaultBaseline(), hdr.DefaultFrames()) {
		assert.NoError(t, s.Validate(), "frame %d", i)
	}
}

func TestRunSuccess(t *testing.T) {
	r, c, capt, buf := setup(nil, nil, nil)
	err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, hdr.ExitCode(err))
	assert.Equal(t, calls{"connect", "capture", "save"}, *c)
	assert.Equal(t, []string{"HDR.zdf"}, capt.frame.paths)
	want := hdr.Bracket(hdr.DefaultBaseline(), hdr.DefaultFrames())
	if diff := cmp.Diff(want, capt.bracket); diff != "" {
		t.Errorf("bracket sent to the capturer (-want +got):\n%s", diff)
	}

	out := buf.String()
	order := []string{
		"Connecting to the camera",
		"Configuring settings same for all HDR frames",
		"Configuring settings different for all HDR frames",
		"Frame 0",
		"Frame 1",
		"Frame 2",
		"Capturing the HDR frame",
		"Saving the frame",
	}
	last := -1
	for _, line := range order {
		idx := strings.Index(out, line)
		require.NotEqual(t, -1, idx, "missing %q in output", line)
		assert.Greater(t, idx, last, "%q out of order", line)
		last = idx
	}
}

func TestRunFailures(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name                     string
		connErr, capErr, saveErr error
		want                     calls
	}{
		{"connect", boom, nil, nil, calls{"connect"}},
		{"capture", nil, boom, nil, calls{"connect", "capture"}},
		{"save", nil, nil, boom, calls{"connect", "capture", "save"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, c, _, buf := setup(tc.connErr, tc.capErr, tc.saveErr)
			err := r.Run(context.Background())
			assert.Equal(t, boom, err)
			assert.Equal(t, 1, hdr.ExitCode(err))
			assert.Equal(t, tc.want, *c)
			if tc.connErr != nil {
				assert.NotContains(t, buf.String(), "Configuring")
			}
		})
	}
}

func TestRunEmptyFrames(t *testing.T) {
	r, c, _, _ := setup(nil, nil, nil)
	r.Frames = []hdr.FrameSettings{}
	err := r.Run(context.Background())
	assert.True(t, errors.Is(err, zivid.ErrEmptyBracket), "expected ErrEmptyBracket, got %v", err)
	assert.Equal(t, 1, hdr.ExitCode(err))
	assert.Equal(t, calls{"connect"}, *c)
}

type brokenSpinner struct{}

func (brokenSpinner) Start() error    { return errors.New("no tty") }
func (brokenSpinner) Stop() error     { return errors.New("no tty") }
func (brokenSpinner) StopFail() error { return errors.New("no tty") }

func TestRunLogsSpinnerErrors(t *testing.T) {
	r, c, _, buf := setup(nil, nil, nil)
	r.Spinner = brokenSpinner{}
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, calls{"connect", "capture", "save"}, *c)
	assert.Equal(t, 2, strings.Count(buf.String(), "spinner: no tty"))
}

func TestRunSpinner(t *testing.T) {
	r, c, _, _ := setup(nil, nil, nil)
	r.Spinner = mockSpinner{log: c}
	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, calls{"connect", "spin", "capture", "stop", "save"}, *c)

	r, c, _, _ = setup(nil, errors.New("boom"), nil)
	r.Spinner = mockSpinner{log: c}
	require.Error(t, r.Run(context.Background()))
	assert.Equal(t, calls{"connect", "spin", "capture", "stopfail"}, *c)
}

func TestRunWithEmulator(t *testing.T) {
	app := zivid.NewApplication()
	defer app.Close()
	r := hdr.NewRunner(app)
	r.Log = log.New(&bytes.Buffer{}, "", 0)
	r.Output = filepath.Join(t.TempDir(), hdr.DefaultOutput)
	require.NoError(t, r.Run(context.Background()))

	f, err := zivid.Load(r.Output)
	require.NoError(t, err)
	require.Len(t, f.Settings, 3)
	assert.Equal(t, uint64(17), f.Settings[0].Iris)
	assert.Equal(t, 2., f.Settings[2].Gain)
}

func ExampleExitCode() {
	fmt.Println(hdr.ExitCode(nil), hdr.ExitCode(errors.New("no camera")))
	// Output: 0 1
}
