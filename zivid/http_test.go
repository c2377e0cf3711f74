package zivid_test

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.jpl.nasa.gov/bdube/hdrcapture/imgrec"
	"github.jpl.nasa.gov/bdube/hdrcapture/zivid"
)

func newTestServer(t *testing.T, rec *imgrec.Recorder) (*zivid.HTTPWrapper, *httptest.Server) {
	t.Helper()
	bracket := bracketSettings()
	h := zivid.NewHTTPWrapper(connectedEmulator(t), bracket[1], bracket, rec, nil)
	r := chi.NewRouter()
	h.RT().Bind(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return h, srv
}

func TestHTTPInfoAndTemperature(t *testing.T) {
	_, srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	info := zivid.CameraInfo{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "EMU00001", info.Serial)

	resp2, err := http.Get(srv.URL + "/temperature")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestHTTPCaptureHDRZDF(t *testing.T) {
	_, srv := newTestServer(t, nil)
	resp, err := http.Post(srv.URL+"/hdr", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	f, err := zivid.ReadZDF(resp.Body)
	require.NoError(t, err)
	assert.Len(t, f.Settings, 3)
}

func TestHTTPCapturePNGThumbnail(t *testing.T) {
	_, srv := newTestServer(t, nil)
	resp, err := http.Post(srv.URL+"/capture?fmt=png&width=80", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 80, img.Bounds().Dx())
	assert.Equal(t, 60, img.Bounds().Dy())
}

func TestHTTPBadFormat(t *testing.T) {
	_, srv := newTestServer(t, nil)
	resp, err := http.Post(srv.URL+"/capture?fmt=tiff", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPSetBracket(t *testing.T) {
	_, srv := newTestServer(t, nil)
	resp, err := http.Post(srv.URL+"/bracket", "application/json", strings.NewReader("[]"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	one := bracketSettings()[:1]
	body, err := json.Marshal(one)
	require.NoError(t, err)
	resp, err = http.Post(srv.URL+"/bracket", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/bracket")
	require.NoError(t, err)
	defer resp.Body.Close()
	got := []zivid.Settings{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, one[0].Iris, got[0].Iris)
}

func TestHTTPSetSettingsValidates(t *testing.T) {
	_, srv := newTestServer(t, nil)
	s := zivid.DefaultSettings()
	s.Iris = 200
	body, err := json.Marshal(s)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/settings", "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPAutowrite(t *testing.T) {
	rec := &imgrec.Recorder{Root: t.TempDir(), Prefix: "hdr", Enabled: true}
	_, srv := newTestServer(t, rec)
	for i := 0; i < 2; i++ {
		resp, err := http.Post(srv.URL+"/hdr", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.True(t, strings.HasSuffix(rec.Path(), "hdr000002.zdf"), "next path was %s", rec.Path())
}
