package zivid

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/google/uuid"
	"github.com/snksoft/crc"

	"github.jpl.nasa.gov/bdube/hdrcapture/camera"
	"github.jpl.nasa.gov/bdube/hdrcapture/temperature"
)

// A .zdf file is a FITS file.  The primary HDU holds Z as a float32 image
// along with the frame metadata and the settings of every acquisition, as
// indexed cards (IRIS0, EXPUS0, ...).  Image extensions X, Y, and SNR hold
// float32 planes and RGBA holds a (W, H, 4) uint8 cube.  ZCRC is a CRC-32 of
// the planes, in the order X, Y, Z, SNR, RGBA, as little endian bytes.

var (
	// ErrChecksum is generated when a .zdf file's data do not match its checksum
	ErrChecksum = errors.New("zivid: zdf checksum mismatch")

	// ErrNotZDF is generated when a FITS file lacks the .zdf layout
	ErrNotZDF = errors.New("zivid: file is not a zdf frame")

	crcTable = crc.NewTable(crc.CRC32)
)

// Save writes the frame to path in the .zdf format, overwriting any
// existing file
func (f *Frame) Save(path string) error {
	fid, err := os.Create(path)
	if err != nil {
		return err
	}
	err = WriteZDF(fid, f)
	if err != nil {
		fid.Close()
		return err
	}
	return fid.Close()
}

// Load reads a frame from a .zdf file
func Load(path string) (*Frame, error) {
	fid, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fid.Close()
	return ReadZDF(fid)
}

// planes splits the interleaved XYZ of a point cloud into three planes
func planes(pc camera.PointCloud) (x, y, z []float32) {
	n := pc.Len()
	x, y, z = make([]float32, n), make([]float32, n), make([]float32, n)
	for i := 0; i < n; i++ {
		x[i], y[i], z[i] = pc.Point(i)
	}
	return x, y, z
}

func checksum(x, y, z, snr []float32, rgba []uint8) uint32 {
	buf := &bytes.Buffer{}
	buf.Grow(4*(len(x)+len(y)+len(z)+len(snr)) + len(rgba))
	for _, p := range [][]float32{x, y, z, snr} {
		binary.Write(buf, binary.LittleEndian, p)
	}
	buf.Write(rgba)
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, buf.Bytes())
	return crcTable.CRC32(c)
}

func settingsCards(i int, s Settings) []fitsio.Card {
	k := func(stem string) string { return stem + strconv.Itoa(i) }
	cards := []fitsio.Card{
		{Name: k("IRIS"), Value: int(s.Iris), Comment: "aperture"},
		{Name: k("EXPUS"), Value: int(s.ExposureTime.Microseconds()), Comment: "exposure time [us]"},
		{Name: k("GAIN"), Value: s.Gain, Comment: "sensor gain"},
		{Name: k("BRITE"), Value: s.Brightness, Comment: "projector brightness"},
		{Name: k("BIDIR"), Value: s.Bidirectional, Comment: "bidirectional patterns"},
		{Name: k("BLUEB"), Value: s.BlueBalance, Comment: "blue balance"},
		{Name: k("REDB"), Value: s.RedBalance, Comment: "red balance"},
		{Name: k("FCON"), Value: s.Filters.Contrast.Enabled, Comment: "contrast filter"},
		{Name: k("FGAU"), Value: s.Filters.Gaussian.Enabled, Comment: "gaussian filter"},
		{Name: k("FOUT"), Value: s.Filters.Outlier.Enabled, Comment: "outlier filter"},
		{Name: k("FREF"), Value: s.Filters.Reflection.Enabled, Comment: "reflection filter"},
		{Name: k("FSAT"), Value: s.Filters.Saturated.Enabled, Comment: "saturated filter"},
	}
	if t := s.Filters.Contrast.Threshold; t != nil {
		cards = append(cards, fitsio.Card{Name: k("FCONT"), Value: *t, Comment: "contrast threshold"})
	}
	if t := s.Filters.Gaussian.Sigma; t != nil {
		cards = append(cards, fitsio.Card{Name: k("FGAUS"), Value: *t, Comment: "gaussian sigma"})
	}
	if t := s.Filters.Outlier.Threshold; t != nil {
		cards = append(cards, fitsio.Card{Name: k("FOUTT"), Value: *t, Comment: "outlier threshold [mm]"})
	}
	return cards
}

// WriteZDF streams a frame in the .zdf format to w
func WriteZDF(w io.Writer, f *Frame) error {
	x, y, z := planes(f.PointCloud)
	dims := []int{f.Width, f.Height}
	meta := []fitsio.Card{
		{Name: "EXTNAME", Value: "Z"},
		{Name: "ZDFVER", Value: WRAPVER, Comment: "zdf layout version"},
		{Name: "FRAMEID", Value: f.Info.ID.String()},
		{Name: "SERIAL", Value: f.Info.Serial, Comment: "camera serial number"},
		{Name: "DATE-OBS", Value: f.Info.Timestamp.UTC().Format(time.RFC3339Nano)},
		{Name: "TEMPC", Value: float64(f.Info.Temperature), Comment: "camera temperature [C]"},
		{Name: "TEMPK", Value: float64(temperature.C2K(f.Info.Temperature)), Comment: "camera temperature [K]"},
		{Name: "NFRAMES", Value: len(f.Settings), Comment: "acquisitions merged"},
		{Name: "ZCRC", Value: int(checksum(x, y, z, f.SNR, f.RGBA)), Comment: "CRC-32 of the data"},
	}
	for i, s := range f.Settings {
		meta = append(meta, settingsCards(i, s)...)
	}

	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()

	write := func(bitpix int, dims []int, cards []fitsio.Card, data interface{}) error {
		im := fitsio.NewImage(bitpix, dims)
		defer im.Close()
		err := im.Header().Append(cards...)
		if err != nil {
			return err
		}
		err = im.Write(data)
		if err != nil {
			return err
		}
		return fits.Write(im)
	}
	err = write(-32, dims, meta, z)
	if err != nil {
		return err
	}
	for _, p := range []struct {
		name string
		data []float32
	}{{"X", x}, {"Y", y}, {"SNR", f.SNR}} {
		err = write(-32, dims, []fitsio.Card{{Name: "EXTNAME", Value: p.name}}, p.data)
		if err != nil {
			return err
		}
	}
	return write(8, []int{4, f.Width, f.Height}, []fitsio.Card{{Name: "EXTNAME", Value: "RGBA"}}, f.RGBA)
}

func cardInt(h *fitsio.Header, name string) (int, bool) {
	c := h.Get(name)
	if c == nil {
		return 0, false
	}
	switch v := c.Value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func cardFloat(h *fitsio.Header, name string) (float64, bool) {
	c := h.Get(name)
	if c == nil {
		return 0, false
	}
	switch v := c.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func cardBool(h *fitsio.Header, name string) bool {
	c := h.Get(name)
	if c == nil {
		return false
	}
	b, _ := c.Value.(bool)
	return b
}

func cardString(h *fitsio.Header, name string) string {
	c := h.Get(name)
	if c == nil {
		return ""
	}
	s, _ := c.Value.(string)
	return s
}

func settingsFromCards(h *fitsio.Header, i int) Settings {
	k := func(stem string) string { return stem + strconv.Itoa(i) }
	s := Settings{}
	iris, _ := cardInt(h, k("IRIS"))
	s.Iris = uint64(iris)
	exp, _ := cardInt(h, k("EXPUS"))
	s.ExposureTime = Microseconds(int64(exp))
	s.Gain, _ = cardFloat(h, k("GAIN"))
	s.Brightness, _ = cardFloat(h, k("BRITE"))
	s.Bidirectional = cardBool(h, k("BIDIR"))
	s.BlueBalance, _ = cardFloat(h, k("BLUEB"))
	s.RedBalance, _ = cardFloat(h, k("REDB"))
	s.Filters.Contrast.Enabled = cardBool(h, k("FCON"))
	s.Filters.Gaussian.Enabled = cardBool(h, k("FGAU"))
	s.Filters.Outlier.Enabled = cardBool(h, k("FOUT"))
	s.Filters.Reflection.Enabled = cardBool(h, k("FREF"))
	s.Filters.Saturated.Enabled = cardBool(h, k("FSAT"))
	if v, ok := cardFloat(h, k("FCONT")); ok {
		s.Filters.Contrast.Threshold = Float(v)
	}
	if v, ok := cardFloat(h, k("FGAUS")); ok {
		s.Filters.Gaussian.Sigma = Float(v)
	}
	if v, ok := cardFloat(h, k("FOUTT")); ok {
		s.Filters.Outlier.Threshold = Float(v)
	}
	return s
}

func sameAxes(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ReadZDF reads a frame in the .zdf format from r and verifies its checksum
func ReadZDF(r io.Reader) (*Frame, error) {
	fits, err := fitsio.Open(r)
	if err != nil {
		return nil, err
	}
	defer fits.Close()

	images := map[string]fitsio.Image{}
	for _, hdu := range fits.HDUs() {
		if im, ok := hdu.(fitsio.Image); ok {
			images[hdu.Name()] = im
		}
	}
	for _, name := range []string{"Z", "X", "Y", "SNR", "RGBA"} {
		if _, ok := images[name]; !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrNotZDF, name)
		}
	}
	hdr := images["Z"].Header()
	if _, ok := cardInt(hdr, "ZDFVER"); !ok {
		return nil, fmt.Errorf("%w: missing ZDFVER", ErrNotZDF)
	}
	axes := hdr.Axes()
	if len(axes) != 2 || axes[0] <= 0 || axes[1] <= 0 {
		return nil, fmt.Errorf("%w: Z has axes %v", ErrNotZDF, axes)
	}
	n := axes[0] * axes[1]
	for _, name := range []string{"X", "Y", "SNR"} {
		if got := images[name].Header().Axes(); !sameAxes(got, axes) {
			return nil, fmt.Errorf("%w: %s has axes %v, Z has %v", ErrNotZDF, name, got, axes)
		}
	}
	if got := images["RGBA"].Header().Axes(); !sameAxes(got, []int{4, axes[0], axes[1]}) {
		return nil, fmt.Errorf("%w: RGBA has axes %v, Z has %v", ErrNotZDF, got, axes)
	}

	// Read fills up to the capacity of the destination
	x, y, z, snr := make([]float32, 0, n), make([]float32, 0, n), make([]float32, 0, n), make([]float32, 0, n)
	rgba := make([]uint8, 0, 4*n)
	for _, p := range []struct {
		name string
		dst  *[]float32
	}{{"X", &x}, {"Y", &y}, {"Z", &z}, {"SNR", &snr}} {
		err = images[p.name].Read(p.dst)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p.name, err)
		}
	}
	err = images["RGBA"].Read(&rgba)
	if err != nil {
		return nil, fmt.Errorf("reading RGBA: %w", err)
	}

	want, _ := cardInt(hdr, "ZCRC")
	if checksum(x, y, z, snr, rgba) != uint32(want) {
		return nil, ErrChecksum
	}

	pc := camera.PointCloud{Width: axes[0], Height: axes[1], SNR: snr, RGBA: rgba}
	if len(x) != n || len(y) != n || len(z) != n || len(snr) != n || len(rgba) != 4*n {
		return nil, fmt.Errorf("%w: plane sizes disagree with %dx%d", ErrNotZDF, pc.Width, pc.Height)
	}
	pc.XYZ = make([]float32, 3*n)
	for i := 0; i < n; i++ {
		pc.SetPoint(i, x[i], y[i], z[i])
	}

	f := &Frame{PointCloud: pc}
	nframes, _ := cardInt(hdr, "NFRAMES")
	for i := 0; i < nframes; i++ {
		f.Settings = append(f.Settings, settingsFromCards(hdr, i))
	}
	f.Info.Serial = cardString(hdr, "SERIAL")
	if id, err := uuid.Parse(cardString(hdr, "FRAMEID")); err == nil {
		f.Info.ID = id
	}
	if ts, err := time.Parse(time.RFC3339Nano, cardString(hdr, "DATE-OBS")); err == nil {
		f.Info.Timestamp = ts
	}
	if t, ok := cardFloat(hdr, "TEMPC"); ok {
		f.Info.Temperature = temperature.Celsius(t)
	}
	return f, nil
}
