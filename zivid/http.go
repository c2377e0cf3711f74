package zivid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/nfnt/resize"
	"golang.org/x/time/rate"

	"github.jpl.nasa.gov/bdube/hdrcapture/camera"
	"github.jpl.nasa.gov/bdube/hdrcapture/imgrec"
	"github.jpl.nasa.gov/bdube/hdrcapture/server"
)

// HTTPWrapper provides an HTTP interface to a camera
type HTTPWrapper struct {
	// Camera is the camera object being wrapped
	Camera Camera

	// Recorder, when enabled, receives a copy of every .zdf served
	Recorder *imgrec.Recorder

	// Limiter throttles captures
	Limiter *rate.Limiter

	// mu serializes captures and guards the settings below
	mu       sync.Mutex
	baseline Settings
	bracket  []Settings

	RouteTable server.RouteTable
}

// NewHTTPWrapper returns a new wrapper with the route table populated.
// rec and lim may be nil.
func NewHTTPWrapper(c Camera, baseline Settings, bracket []Settings, rec *imgrec.Recorder, lim *rate.Limiter) *HTTPWrapper {
	if lim == nil {
		lim = rate.NewLimiter(rate.Inf, 1)
	}
	w := &HTTPWrapper{
		Camera:   c,
		Recorder: rec,
		Limiter:  lim,
		baseline: baseline.Clone(),
		bracket:  cloneBracket(bracket),
	}
	w.RouteTable = server.RouteTable{
		{Method: http.MethodGet, Path: "/info"}:      w.GetInfo,
		{Method: http.MethodGet, Path: "/settings"}:  w.GetSettings,
		{Method: http.MethodPost, Path: "/settings"}: w.SetSettings,
		{Method: http.MethodGet, Path: "/bracket"}:   w.GetBracket,
		{Method: http.MethodPost, Path: "/bracket"}:  w.SetBracket,
		{Method: http.MethodPost, Path: "/capture"}:  w.Capture,
		{Method: http.MethodPost, Path: "/hdr"}:      w.CaptureHDR,
	}
	if th, ok := c.(camera.Thermometer); ok {
		w.RouteTable[server.MethodPath{Method: http.MethodGet, Path: "/temperature"}] = server.GetFloat(th.GetTemp)
	}
	if rec != nil {
		imgrec.NewHTTPWrapper(rec).Inject(w)
	}
	return w
}

// RT satisfies server.HTTPer
func (h *HTTPWrapper) RT() server.RouteTable {
	return h.RouteTable
}

func cloneBracket(b []Settings) []Settings {
	out := make([]Settings, len(b))
	for i := range b {
		out[i] = b[i].Clone()
	}
	return out
}

// GetInfo returns the camera's CameraInfo as JSON
func (h *HTTPWrapper) GetInfo(w http.ResponseWriter, r *http.Request) {
	server.ReplyJSON(w, h.Camera.Info())
}

// GetSettings returns the settings used for single captures as JSON
func (h *HTTPWrapper) GetSettings(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	s := h.baseline.Clone()
	h.mu.Unlock()
	server.ReplyJSON(w, s)
}

// SetSettings replaces the settings used for single captures from a JSON body
func (h *HTTPWrapper) SetSettings(w http.ResponseWriter, r *http.Request) {
	s := Settings{}
	err := json.NewDecoder(r.Body).Decode(&s)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = s.Validate()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	h.baseline = s
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// GetBracket returns the HDR bracket as a JSON array
func (h *HTTPWrapper) GetBracket(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	b := cloneBracket(h.bracket)
	h.mu.Unlock()
	server.ReplyJSON(w, b)
}

// SetBracket replaces the HDR bracket from a JSON array of settings
func (h *HTTPWrapper) SetBracket(w http.ResponseWriter, r *http.Request) {
	b := []Settings{}
	err := json.NewDecoder(r.Body).Decode(&b)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(b) == 0 {
		http.Error(w, ErrEmptyBracket.Error(), http.StatusBadRequest)
		return
	}
	for i, s := range b {
		err = s.Validate()
		if err != nil {
			http.Error(w, fmt.Sprintf("frame %d: %s", i, err), http.StatusBadRequest)
			return
		}
	}
	h.mu.Lock()
	h.bracket = b
	h.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

// Capture takes a single frame with the current settings and returns it.
// See respond for the output formats.
func (h *HTTPWrapper) Capture(w http.ResponseWriter, r *http.Request) {
	err := h.Limiter.Wait(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}
	h.mu.Lock()
	f, err := h.Camera.Capture(r.Context(), h.baseline)
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.respond(w, r, f)
}

// CaptureHDR captures the HDR bracket and returns the merged frame.
// See respond for the output formats.
func (h *HTTPWrapper) CaptureHDR(w http.ResponseWriter, r *http.Request) {
	err := h.Limiter.Wait(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}
	h.mu.Lock()
	f, err := HDR.Capture(r.Context(), h.Camera, h.bracket)
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.respond(w, r, f)
}

// respond writes a frame in the format given by the fmt query parameter:
// zdf (default), png, or jpg.  For the image formats an optional width
// parameter resizes the color image, preserving the aspect ratio.
func (h *HTTPWrapper) respond(w http.ResponseWriter, r *http.Request, f *Frame) {
	q := r.URL.Query()
	format := q.Get("fmt")
	if format == "" {
		format = "zdf"
	}
	switch format {
	case "zdf":
		buf := &bytes.Buffer{}
		err := WriteZDF(buf, f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if h.Recorder != nil && h.Recorder.Enabled && h.Recorder.Root != "" {
			h.mu.Lock()
			_, err = h.Recorder.Record(buf.Bytes())
			h.mu.Unlock()
			if err != nil {
				log.Println("autowrite failed:", err)
			}
		}
		hdr := w.Header()
		hdr.Set("Content-Type", "application/octet-stream")
		hdr.Set("Content-Disposition", "attachment; filename="+f.Info.ID.String()+".zdf")
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	case "png", "jpg":
		var img image.Image = f.Image()
		if ws := q.Get("width"); ws != "" {
			width, err := strconv.Atoi(ws)
			if err != nil || width <= 0 {
				http.Error(w, "width must be a positive integer", http.StatusBadRequest)
				return
			}
			img = resize.Resize(uint(width), 0, img, resize.Bilinear)
		}
		buf := &bytes.Buffer{}
		var err error
		ctype := "image/png"
		if format == "png" {
			err = png.Encode(buf, img)
		} else {
			ctype = "image/jpeg"
			err = jpeg.Encode(buf, img, nil)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", ctype)
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	default:
		http.Error(w, fmt.Sprintf("unknown format %q, use zdf, png, or jpg", format), http.StatusBadRequest)
	}
}
