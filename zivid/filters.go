package zivid

import (
	"math"

	"github.jpl.nasa.gov/bdube/hdrcapture/camera"
)

// rawFrame is a point cloud straight off the sensor, before filtering,
// along with the per-pixel flags the filters need
type rawFrame struct {
	camera.PointCloud

	saturated  []bool
	reflection []bool
}

// applyFilters runs the enabled filters over raw in a fixed order:
// saturated, reflection, contrast, outlier, gaussian
func applyFilters(raw rawFrame, f Filters) camera.PointCloud {
	pc := raw.PointCloud
	n := pc.Len()
	if f.Saturated.Enabled {
		for i := 0; i < n; i++ {
			if raw.saturated[i] {
				pc.Invalidate(i)
			}
		}
	}
	if f.Reflection.Enabled {
		for i := 0; i < n; i++ {
			if raw.reflection[i] {
				pc.Invalidate(i)
			}
		}
	}
	if f.Contrast.Enabled {
		contrastFilter(pc, f.ContrastThreshold())
	}
	if f.Outlier.Enabled {
		outlierFilter(pc, f.OutlierThreshold())
	}
	if f.Gaussian.Enabled {
		gaussianFilter(pc, f.GaussianSigma())
	}
	return pc
}

// contrastFilter invalidates every pixel with SNR below thresh
func contrastFilter(pc camera.PointCloud, thresh float64) {
	for i := 0; i < pc.Len(); i++ {
		if pc.Valid(i) && float64(pc.SNR[i]) < thresh {
			pc.Invalidate(i)
		}
	}
}

// outlierFilter invalidates valid pixels which have fewer than two valid
// 8-neighbors within thresh mm.  The decision is made against the
// unfiltered cloud so the result does not depend on scan order.
func outlierFilter(pc camera.PointCloud, thresh float64) {
	src := pc.Clone()
	for row := 0; row < src.Height; row++ {
		for col := 0; col < src.Width; col++ {
			i := src.Index(row, col)
			if !src.Valid(i) {
				continue
			}
			x, y, z := src.Point(i)
			near := 0
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					if dr == 0 && dc == 0 {
						continue
					}
					r, c := row+dr, col+dc
					if r < 0 || c < 0 || r >= src.Height || c >= src.Width {
						continue
					}
					j := src.Index(r, c)
					if !src.Valid(j) {
						continue
					}
					xx, yy, zz := src.Point(j)
					d := math.Sqrt(sq(float64(x-xx)) + sq(float64(y-yy)) + sq(float64(z-zz)))
					if d <= thresh {
						near++
					}
				}
			}
			if near < 2 {
				pc.Invalidate(i)
			}
		}
	}
}

// gaussianKernel returns a normalized 1D kernel of half width ceil(3 sigma)
func gaussianKernel(sigma float64) []float64 {
	r := int(math.Ceil(3 * sigma))
	k := make([]float64, 2*r+1)
	sum := 0.
	for i := -r; i <= r; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		k[i+r] = v
		sum += v
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

// gaussianFilter smooths depth along each pixel's ray.  Only valid pixels
// contribute and only valid pixels are updated; weights are renormalized
// over the valid part of the kernel.
func gaussianFilter(pc camera.PointCloud, sigma float64) {
	k := gaussianKernel(sigma)
	r := len(k) / 2
	w, h := pc.Width, pc.Height
	z := make([]float64, pc.Len())
	for i := range z {
		_, _, zz := pc.Point(i)
		z[i] = float64(zz)
	}
	pass := func(src []float64, horizontal bool) []float64 {
		dst := make([]float64, len(src))
		for row := 0; row < h; row++ {
			for col := 0; col < w; col++ {
				i := row*w + col
				if math.IsNaN(src[i]) {
					dst[i] = src[i]
					continue
				}
				acc, norm := 0., 0.
				for o := -r; o <= r; o++ {
					rr, cc := row, col+o
					if !horizontal {
						rr, cc = row+o, col
					}
					if rr < 0 || cc < 0 || rr >= h || cc >= w {
						continue
					}
					v := src[rr*w+cc]
					if math.IsNaN(v) {
						continue
					}
					acc += k[o+r] * v
					norm += k[o+r]
				}
				dst[i] = acc / norm
			}
		}
		return dst
	}
	smooth := pass(pass(z, true), false)
	for i := range smooth {
		if !pc.Valid(i) {
			continue
		}
		x, y, zz := pc.Point(i)
		scale := float32(smooth[i]) / zz
		pc.SetPoint(i, x*scale, y*scale, float32(smooth[i]))
	}
}

func sq(x float64) float64 {
	return x * x
}
