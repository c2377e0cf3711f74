package zivid

import (
	"context"
	"errors"
	"fmt"

	"github.jpl.nasa.gov/bdube/hdrcapture/camera"
)

// ErrSizeMismatch is generated when frames of different resolution are merged
var ErrSizeMismatch = errors.New("zivid: frames to merge differ in resolution")

type hdr struct{}

// HDR captures high dynamic range frames.  Call it as HDR.Capture.
var HDR hdr

// Capture acquires one frame per entry of settings, in order, and merges
// them into a single frame.  It blocks until every acquisition is done.
// The returned frame records every entry of settings.
func (hdr) Capture(ctx context.Context, cam Camera, settings []Settings) (*Frame, error) {
	if len(settings) == 0 {
		return nil, ErrEmptyBracket
	}
	if cam == nil {
		return nil, ErrNotConnected
	}
	frames := make([]*Frame, 0, len(settings))
	for i, s := range settings {
		f, err := cam.Capture(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("HDR frame %d: %w", i, err)
		}
		frames = append(frames, f)
	}
	return Merge(frames...)
}

// Merge combines frames of the same scene.  Each pixel takes the point and
// color of the valid sample with the highest SNR; pixels with no valid
// sample keep the color of the first frame.
func Merge(frames ...*Frame) (*Frame, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyBracket
	}
	first := frames[0]
	for _, f := range frames[1:] {
		if f.Width != first.Width || f.Height != first.Height {
			return nil, ErrSizeMismatch
		}
	}
	pc := camera.NewPointCloud(first.Width, first.Height)
	for i := 0; i < pc.Len(); i++ {
		best := -1
		var bestSNR float32
		for k, f := range frames {
			if f.Valid(i) && (best < 0 || f.SNR[i] > bestSNR) {
				best, bestSNR = k, f.SNR[i]
			}
		}
		if best < 0 {
			pc.SetColor(i, first.Color(i))
			continue
		}
		src := frames[best]
		x, y, z := src.Point(i)
		pc.SetPoint(i, x, y, z)
		pc.SetColor(i, src.Color(i))
		pc.SNR[i] = bestSNR
	}
	settings := make([]Settings, 0, len(frames))
	for _, f := range frames {
		settings = append(settings, f.Settings...)
	}
	last := frames[len(frames)-1]
	out := newFrame(pc, first.Info.Serial, last.Info.Temperature, settings...)
	out.Info.Timestamp = first.Info.Timestamp
	return out, nil
}
