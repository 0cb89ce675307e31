package detector

import (
	"errors"
	"math"
	"testing"

	"gocv.io/x/gocv"

	"github.com/dudu/blazelive/internal/geometry"
)

func TestNewLetterbox(t *testing.T) {
	testCases := []struct {
		name           string
		width, height  int
		size           int
		scale          float64
		padX, padY     int
		resizedW, resH int
	}{
		{name: "landscape-640x480", width: 640, height: 480, size: 256, scale: 256.0 / 640, padX: 0, padY: 32, resizedW: 256, resH: 192},
		{name: "portrait-480x640", width: 480, height: 640, size: 256, scale: 256.0 / 640, padX: 32, padY: 0, resizedW: 192, resH: 256},
		{name: "square", width: 100, height: 100, size: 128, scale: 1.28, padX: 0, padY: 0, resizedW: 128, resH: 128},
		{name: "identity", width: 128, height: 128, size: 128, scale: 1, padX: 0, padY: 0, resizedW: 128, resH: 128},
		{name: "odd-remainder", width: 300, height: 101, size: 128, scale: 128.0 / 300, padX: 0, padY: 42, resizedW: 128, resH: 43},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lb, err := NewLetterbox(tc.width, tc.height, tc.size)
			if err != nil {
				t.Fatalf("NewLetterbox failed: %v", err)
			}
			if math.Abs(lb.Scale-tc.scale) > 1e-12 {
				t.Errorf("scale = %f, want %f", lb.Scale, tc.scale)
			}
			if lb.PadX != tc.padX || lb.PadY != tc.padY {
				t.Errorf("padding = (%d,%d), want (%d,%d)", lb.PadX, lb.PadY, tc.padX, tc.padY)
			}
			if lb.ResizedWidth != tc.resizedW || lb.ResizedHeight != tc.resH {
				t.Errorf("resized = %dx%d, want %dx%d", lb.ResizedWidth, lb.ResizedHeight, tc.resizedW, tc.resH)
			}
		})
	}
}

func TestNewLetterbox_InvalidInput(t *testing.T) {
	for _, dims := range [][2]int{{0, 480}, {640, 0}, {0, 0}, {-3, 10}} {
		_, err := NewLetterbox(dims[0], dims[1], 256)
		if !errors.Is(err, geometry.ErrInvalidInput) {
			t.Errorf("%v: expected ErrInvalidInput, got %v", dims, err)
		}
	}
}

func TestResizePad(t *testing.T) {
	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()
	img.SetTo(gocv.NewScalar(200, 100, 50, 0))

	padded, lb, err := ResizePad(img, 256)
	if err != nil {
		t.Fatalf("ResizePad failed: %v", err)
	}
	defer padded.Close()

	if padded.Rows() != 256 || padded.Cols() != 256 {
		t.Fatalf("padded size = %dx%d, want 256x256", padded.Cols(), padded.Rows())
	}
	if lb.Scale != 256.0/640 {
		t.Errorf("scale = %f, want %f", lb.Scale, 256.0/640)
	}
	if lb.PadX != 0 || lb.PadY == 0 {
		t.Errorf("expected vertical padding only, got (%d,%d)", lb.PadX, lb.PadY)
	}

	// padding rows are black, content rows keep the fill colour
	if v := padded.GetVecbAt(0, 128); v[0] != 0 || v[1] != 0 || v[2] != 0 {
		t.Errorf("top padding pixel = %v, want black", v)
	}
	if v := padded.GetVecbAt(255, 128); v[0] != 0 {
		t.Errorf("bottom padding pixel = %v, want black", v)
	}
	if v := padded.GetVecbAt(128, 128); v[0] != 200 || v[1] != 100 || v[2] != 50 {
		t.Errorf("content pixel = %v, want [200 100 50]", v)
	}
}

func TestResizePad_Empty(t *testing.T) {
	img := gocv.NewMat()
	defer img.Close()

	out, _, err := ResizePad(img, 128)
	defer out.Close()
	if !errors.Is(err, geometry.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDenormalize_RoundTrip(t *testing.T) {
	lb, err := NewLetterbox(640, 480, 256)
	if err != nil {
		t.Fatal(err)
	}

	source := Detection{
		BoundingBox: BoundingBox{X1: 100, Y1: 40, X2: 300, Y2: 420},
		Keypoints:   []geometry.Point{{X: 0, Y: 0}, {X: 639, Y: 479}, {X: 320.5, Y: 17.25}},
		Score:       0.87,
	}

	// forward: source pixels -> normalized detector space
	n1 := lb.Normalize(geometry.Point{X: source.BoundingBox.X1, Y: source.BoundingBox.Y1})
	n2 := lb.Normalize(geometry.Point{X: source.BoundingBox.X2, Y: source.BoundingBox.Y2})
	normalized := Detection{
		BoundingBox: BoundingBox{X1: n1.X, Y1: n1.Y, X2: n2.X, Y2: n2.Y},
		Score:       source.Score,
	}
	for _, kp := range source.Keypoints {
		normalized.Keypoints = append(normalized.Keypoints, lb.Normalize(kp))
	}

	out := Denormalize([]Detection{normalized}, lb)
	if len(out) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(out))
	}
	got := out[0]

	const tol = 1e-9
	if math.Abs(got.BoundingBox.X1-source.BoundingBox.X1) > tol ||
		math.Abs(got.BoundingBox.Y1-source.BoundingBox.Y1) > tol ||
		math.Abs(got.BoundingBox.X2-source.BoundingBox.X2) > tol ||
		math.Abs(got.BoundingBox.Y2-source.BoundingBox.Y2) > tol {
		t.Errorf("box round trip: got %+v want %+v", got.BoundingBox, source.BoundingBox)
	}
	for i, kp := range got.Keypoints {
		if math.Abs(kp.X-source.Keypoints[i].X) > tol || math.Abs(kp.Y-source.Keypoints[i].Y) > tol {
			t.Errorf("keypoint %d round trip: got %v want %v", i, kp, source.Keypoints[i])
		}
	}
	if got.Score != source.Score {
		t.Errorf("score changed: %f -> %f", source.Score, got.Score)
	}
}

func TestDenormalize_Formula(t *testing.T) {
	lb, err := NewLetterbox(640, 480, 256)
	if err != nil {
		t.Fatal(err)
	}

	// the top edge of the content area is at normalized y = 32/256
	det := Detection{Keypoints: []geometry.Point{{X: 0.5, Y: 32.0 / 256}}}
	out := Denormalize([]Detection{det}, lb)

	want := geometry.Point{X: 320, Y: 0}
	if got := out[0].Keypoints[0]; math.Abs(got.X-want.X) > 1e-9 || math.Abs(got.Y-want.Y) > 1e-9 {
		t.Errorf("got %v, want %v", got, want)
	}

	padX, padY := lb.SourcePadding()
	if padX != 0 || padY != 80 {
		t.Errorf("source padding = (%f,%f), want (0,80)", padX, padY)
	}
}

func TestDenormalize_Empty(t *testing.T) {
	lb, err := NewLetterbox(640, 480, 256)
	if err != nil {
		t.Fatal(err)
	}

	out := Denormalize(nil, lb)
	if out == nil || len(out) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", out)
	}
}

func TestDenormalize_DoesNotMutateInput(t *testing.T) {
	lb, err := NewLetterbox(200, 100, 128)
	if err != nil {
		t.Fatal(err)
	}

	in := []Detection{{Keypoints: []geometry.Point{{X: 0.25, Y: 0.75}}}}
	_ = Denormalize(in, lb)
	if in[0].Keypoints[0] != (geometry.Point{X: 0.25, Y: 0.75}) {
		t.Errorf("input keypoint mutated: %v", in[0].Keypoints[0])
	}
}
