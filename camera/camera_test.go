package camera_test

import (
	"fmt"
	"image/color"
	"testing"

	"github.jpl.nasa.gov/bdube/hdrcapture/camera"
)

func ExamplePointCloud_Index() {
	pc := camera.NewPointCloud(4, 3)
	fmt.Println(pc.Len(), pc.Index(2, 1))
	// Output: 12 9
}

func TestNewPointCloudIsEmpty(t *testing.T) {
	pc := camera.NewPointCloud(8, 6)
	if n := pc.ValidCount(); n != 0 {
		t.Errorf("expected a new point cloud to have no valid pixels, got %d", n)
	}
}

func TestSetPointAndInvalidate(t *testing.T) {
	pc := camera.NewPointCloud(2, 2)
	pc.SetPoint(3, 1, 2, 3)
	pc.SNR[3] = 10
	if !pc.Valid(3) {
		t.Fatal("expected pixel 3 to be valid after SetPoint")
	}
	x, y, z := pc.Point(3)
	if x != 1 || y != 2 || z != 3 {
		t.Errorf("expected (1,2,3) got (%f,%f,%f)", x, y, z)
	}
	pc.Invalidate(3)
	if pc.Valid(3) || pc.SNR[3] != 0 {
		t.Error("expected pixel 3 to be invalid with zero SNR after Invalidate")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	pc := camera.NewPointCloud(2, 1)
	pc.SetPoint(0, 1, 1, 1)
	cp := pc.Clone()
	cp.SetPoint(0, 5, 5, 5)
	cp.SetColor(0, color.RGBA{R: 255})
	if _, _, z := pc.Point(0); z != 1 {
		t.Errorf("mutating a clone changed the source, z=%f", z)
	}
	if pc.Color(0).R != 0 {
		t.Error("mutating a clone's color changed the source")
	}
}

func TestImageSharesPixels(t *testing.T) {
	pc := camera.NewPointCloud(3, 2)
	pc.SetColor(pc.Index(1, 2), color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img := pc.Image()
	got := img.RGBAAt(2, 1)
	if got.R != 10 || got.G != 20 || got.B != 30 {
		t.Errorf("expected image pixel (2,1) to be the cloud color, got %v", got)
	}
}
