// Package imgrec contains a frame recorder used to automatically save captures to disk.
package imgrec

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.jpl.nasa.gov/bdube/hdrcapture/server"
)

// DefaultExt is the file extension used when Ext is empty
const DefaultExt = ".zdf"

// Recorder records frame sequences with incrementing filenames in yyyy-mm-dd subfolders.  It is not thread safe.
type Recorder struct {
	// counter is the internally incrementing counter
	counter int

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames
	Prefix string

	// Ext is the file extension, including the dot
	Ext string

	// timeFldr is the subfolder with yyyy-mm-dd format.
	timeFldr string

	// Enabled is a flag unused by this struct that allows consumers to disable its use in their code
	Enabled bool

	// now is swapped in tests
	now func() time.Time
}

func (r *Recorder) ext() string {
	if r.Ext == "" {
		return DefaultExt
	}
	return r.Ext
}

// updateFolder checks the current time and updates the folder as needed
func (r *Recorder) updateFolder() {
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	r.timeFldr = now().Format("2006-01-02")
}

// mkDir makes the folder and returns it
func (r *Recorder) mkDir() (string, error) {
	fldr := filepath.Join(r.Root, r.timeFldr)
	err := os.MkdirAll(fldr, 0777)
	return fldr, err
}

// Path returns the path the next recording will be written to
func (r *Recorder) Path() string {
	r.updateFolder()
	fn := fmt.Sprintf("%s%06d%s", r.Prefix, r.counter, r.ext())
	return filepath.Join(r.Root, r.timeFldr, fn)
}

// Write implements io.Writer and appends p to the current file
func (r *Recorder) Write(p []byte) (n int, err error) {
	r.updateFolder()
	_, err = r.mkDir()
	if err != nil {
		return 0, err
	}
	fid, err := os.OpenFile(r.Path(), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0666)
	if err != nil {
		return 0, err
	}
	defer fid.Close()
	return fid.Write(p)
}

// Record writes a complete file and advances the counter.  It returns the
// path written to.
func (r *Recorder) Record(p []byte) (string, error) {
	fn := r.Path()
	_, err := r.Write(p)
	if err != nil {
		return "", err
	}
	r.Incr()
	return fn, nil
}

// Incr updates the filename counter; it scans the folder to do so.  If there is an error, the counter is not incremented
func (r *Recorder) Incr() {
	r.updateFolder()
	dn, _ := r.mkDir()
	files, err := os.ReadDir(dn)
	if err != nil {
		return
	}
	count := -1
	ext := r.ext()
	for _, file := range files {
		// skip directories, other extensions, and wrong prefix
		if file.IsDir() {
			continue
		}
		fn := file.Name()
		if !strings.HasSuffix(fn, ext) || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		bit := strings.TrimSuffix(strings.TrimPrefix(fn, r.Prefix), ext)
		n, err := strconv.Atoi(bit)
		if err != nil {
			continue
		}
		if count < n {
			count = n
		}
	}
	r.counter = count + 1
}

// HTTPWrapper is an HTTP wrapper around a recorder that allows the folder and prefix to be changed on the fly
//
// it does not implement server.HTTPer, offering an Inject method allowing it to be injected
// into another HTTPer
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

func (h HTTPWrapper) setRoot(s string) error {
	rec := h.Recorder
	rec.Root = s
	rec.updateFolder()
	_, err := rec.mkDir()
	if err != nil {
		return err
	}
	rec.Incr()
	return nil
}

func (h HTTPWrapper) setPrefix(s string) error {
	h.Recorder.Prefix = s
	h.Recorder.Incr()
	return nil
}

func (h HTTPWrapper) setEnabled(b bool) error {
	h.Recorder.Enabled = b
	return nil
}

// Inject adds GET and POST routes for /autowrite/root, /autowrite/prefix, and /autowrite/enabled to the HTTPer which manipulate this wrapper's recorder
func (h HTTPWrapper) Inject(other server.HTTPer) {
	rt := other.RT()
	rt[server.MethodPath{Method: http.MethodPost, Path: "/autowrite/root"}] = server.SetString(h.setRoot)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/autowrite/root"}] = server.GetString(func() (string, error) { return h.Recorder.Root, nil })
	rt[server.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}] = server.SetString(h.setPrefix)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/autowrite/prefix"}] = server.GetString(func() (string, error) { return h.Recorder.Prefix, nil })
	rt[server.MethodPath{Method: http.MethodPost, Path: "/autowrite/enabled"}] = server.SetBool(h.setEnabled)
	rt[server.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}] = server.GetBool(func() (bool, error) { return h.Recorder.Enabled, nil })
}
