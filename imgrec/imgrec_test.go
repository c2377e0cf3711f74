package imgrec

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"

	"github.jpl.nasa.gov/bdube/hdrcapture/server"
)

func fixedClock() time.Time {
	return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
}

func TestRecordIncrementsFilenames(t *testing.T) {
	root := t.TempDir()
	r := &Recorder{Root: root, Prefix: "hdr", now: fixedClock}
	for i := 0; i < 3; i++ {
		_, err := r.Record([]byte("frame"))
		if err != nil {
			t.Fatal(err)
		}
	}
	for _, fn := range []string{"hdr000000.zdf", "hdr000001.zdf", "hdr000002.zdf"} {
		p := filepath.Join(root, "2026-10-19", fn)
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}
}

func TestIncrPicksUpExistingFiles(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "2026-10-19")
	if err := os.MkdirAll(dir, 0777); err != nil {
		t.Fatal(err)
	}
	for _, fn := range []string{"hdr000007.zdf", "hdr000003.zdf", "hdr000100.fits", "other000200.zdf"} {
		if err := os.WriteFile(filepath.Join(dir, fn), nil, 0666); err != nil {
			t.Fatal(err)
		}
	}
	r := &Recorder{Root: root, Prefix: "hdr", now: fixedClock}
	r.Incr()
	if want := filepath.Join(dir, "hdr000008.zdf"); r.Path() != want {
		t.Errorf("expected next path %s, got %s", want, r.Path())
	}
}

type table server.RouteTable

func (t table) RT() server.RouteTable { return server.RouteTable(t) }

func TestHTTPWrapperSetsPrefix(t *testing.T) {
	r := &Recorder{Root: t.TempDir(), now: fixedClock}
	rt := table{}
	NewHTTPWrapper(r).Inject(rt)
	mux := chi.NewRouter()
	server.RouteTable(rt).Bind(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/autowrite/prefix", strings.NewReader(`{"str":"bench"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if r.Prefix != "bench" {
		t.Errorf("expected prefix to be updated, got %q", r.Prefix)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/autowrite/prefix", nil))
	if !strings.Contains(rec.Body.String(), `"str":"bench"`) {
		t.Errorf("expected prefix in body, got %s", rec.Body.String())
	}
}
