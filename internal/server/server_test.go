package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"

	"github.com/dudu/blazelive/internal/detector"
	"github.com/dudu/blazelive/internal/domain"
	"github.com/dudu/blazelive/internal/geometry"
	"github.com/dudu/blazelive/internal/landmark"
	"github.com/dudu/blazelive/internal/pipeline"
	"github.com/dudu/blazelive/internal/snapshot"
)

type fakeDetector struct {
	dets []detector.Detection
}

func (f *fakeDetector) ResizePad(img gocv.Mat) (gocv.Mat, detector.Letterbox, error) {
	return detector.ResizePad(img, 128)
}

func (f *fakeDetector) PredictOnImage(gocv.Mat) ([]detector.Detection, error) {
	return f.dets, nil
}

func (f *fakeDetector) SetMinScore(float32) {}

func (f *fakeDetector) Close() error { return nil }

type fakeLandmark struct {
	flag float32
}

func (f *fakeLandmark) Predict(patches []gocv.Mat) ([]float32, []landmark.Set, error) {
	flags := make([]float32, len(patches))
	sets := make([]landmark.Set, len(patches))
	for i := range patches {
		flags[i] = f.flag
		sets[i] = landmark.Set{Points: []landmark.Point3{{X: 0.5, Y: 0.5}}, Presence: f.flag}
	}
	return flags, sets, nil
}

func (f *fakeLandmark) Close() error { return nil }

type fakeRecorder struct {
	sources []string
	records []snapshot.Record
	err     error
}

func (f *fakeRecorder) SaveFrame(_ context.Context, source string, rec snapshot.Record) error {
	f.sources = append(f.sources, source)
	f.records = append(f.records, rec)
	return f.err
}

// keyedRecorder stores like the frame_results table, one row per
// source, domain and frame with later saves replacing earlier ones
type keyedRecorder struct {
	rows map[string]snapshot.Record
}

func (k *keyedRecorder) SaveFrame(_ context.Context, source string, rec snapshot.Record) error {
	k.rows[fmt.Sprintf("%s|%s|%d", source, rec.Domain, rec.Frame)] = rec
	return nil
}

// exclusiveRecorder fails when SaveFrame calls overlap, like a single pgx conn
type exclusiveRecorder struct {
	inFlight atomic.Int32
	overlaps atomic.Int32
	saved    atomic.Int32
}

func (e *exclusiveRecorder) SaveFrame(context.Context, string, snapshot.Record) error {
	if e.inFlight.Add(1) > 1 {
		e.overlaps.Add(1)
		e.inFlight.Add(-1)
		return errors.New("conn busy")
	}
	time.Sleep(2 * time.Millisecond)
	e.saved.Add(1)
	e.inFlight.Add(-1)
	return nil
}

func newTestServer(t *testing.T, flag float32, rec Recorder) *Server {
	t.Helper()
	return New(map[string]*pipeline.Pipeline{"face": newFacePipeline(t, flag)}, Options{Recorder: rec})
}

func newFacePipeline(t *testing.T, flag float32) *pipeline.Pipeline {
	t.Helper()
	cfg, err := domain.Lookup("face")
	if err != nil {
		t.Fatal(err)
	}
	face := detector.Detection{
		BoundingBox: detector.BoundingBox{X1: 0.4, Y1: 0.4, X2: 0.6, Y2: 0.6},
		Keypoints: []geometry.Point{
			{X: 0.45, Y: 0.45}, {X: 0.55, Y: 0.45},
			{X: 0.5, Y: 0.5}, {X: 0.5, Y: 0.55}, {X: 0.4, Y: 0.5}, {X: 0.6, Y: 0.5},
		},
		Score: 0.9,
	}
	p := pipeline.NewWithModels(pipeline.Config{Domain: cfg},
		&fakeDetector{dets: []detector.Detection{face}}, &fakeLandmark{flag: flag}, nil)
	t.Cleanup(func() { p.Close() })
	return p
}

func postImage(t *testing.T, s *Server, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "image/png")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 120, G: 80, B: 40, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 1, nil)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Status  string   `json:"status"`
		Domains []string `json:"domains"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || len(body.Domains) != 1 || body.Domains[0] != "face" {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestDetect_Raw(t *testing.T) {
	rec := &fakeRecorder{}
	s := newTestServer(t, 0.9, rec)

	req := httptest.NewRequest(http.MethodPost, "/v1/face/detect?patches=1", bytes.NewReader(pngBytes(t, 640, 480)))
	req.Header.Set("Content-Type", "image/png")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp DetectResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}

	if resp.Domain != "face" || resp.Frame != 1 || resp.Width != 640 || resp.Height != 480 {
		t.Errorf("unexpected header %+v", resp.Record)
	}
	if len(resp.Detections) != 1 || len(resp.ROIs) != 1 || len(resp.Landmarks) != 1 {
		t.Fatalf("expected one of each, got %+v", resp.Record)
	}
	r := resp.ROIs[0]
	if math.Abs(r.XCenter-320) > 1e-6 || math.Abs(r.YCenter-240) > 1e-6 || math.Abs(r.Scale-192) > 1e-6 {
		t.Errorf("roi = %+v", r)
	}
	if len(resp.Present) != 1 || !resp.Present[0] {
		t.Errorf("present = %v", resp.Present)
	}

	if len(resp.Patches) != 1 {
		t.Fatalf("patches = %d", len(resp.Patches))
	}
	data, err := base64.StdEncoding.DecodeString(resp.Patches[0])
	if err != nil {
		t.Fatal(err)
	}
	patch, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if patch.Bounds() != image.Rect(0, 0, 192, 192) {
		t.Errorf("patch bounds = %v", patch.Bounds())
	}

	if len(rec.records) != 1 || rec.sources[0] != s.RunSource() || rec.records[0].Frame != 1 {
		t.Errorf("recorder saw %v %+v", rec.sources, rec.records)
	}
}

func TestDetect_Multipart(t *testing.T) {
	// recorder failures are logged, not returned
	s := newTestServer(t, 0.2, &fakeRecorder{err: errors.New("db down")})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "frame.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write(pngBytes(t, 320, 240))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/face/detect", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	var resp DetectResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Width != 320 || resp.Height != 240 {
		t.Errorf("size = %dx%d", resp.Width, resp.Height)
	}
	if len(resp.Present) != 1 || resp.Present[0] {
		t.Errorf("low presence flag should not be present: %v", resp.Present)
	}
	if len(resp.Patches) != 0 {
		t.Errorf("patches returned without being asked for")
	}
}

func TestDetect_Errors(t *testing.T) {
	s := newTestServer(t, 1, nil)

	testCases := []struct {
		name   string
		method string
		path   string
		body   []byte
		status int
		code   string
	}{
		{name: "unknown-domain", method: http.MethodPost, path: "/v1/pose/detect", body: pngBytes(t, 8, 8), status: http.StatusNotFound, code: "unknown_domain"},
		{name: "empty-body", method: http.MethodPost, path: "/v1/face/detect", status: http.StatusBadRequest, code: "invalid_request"},
		{name: "not-an-image", method: http.MethodPost, path: "/v1/face/detect", body: []byte("hello"), status: http.StatusBadRequest, code: "invalid_image"},
		{name: "wrong-method", method: http.MethodGet, path: "/v1/face/detect", status: http.StatusMethodNotAllowed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, bytes.NewReader(tc.body))
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d", rr.Code, tc.status)
			}
			if tc.code == "" {
				return
			}
			var resp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Code != tc.code {
				t.Errorf("code = %s, want %s", resp.Code, tc.code)
			}
		})
	}
}

func TestDetect_UploadLimit(t *testing.T) {
	s := newTestServer(t, 1, nil)
	s.opts.MaxUploadBytes = 16

	req := httptest.NewRequest(http.MethodPost, "/v1/face/detect", bytes.NewReader(pngBytes(t, 64, 64)))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestDetect_ParallelRecording(t *testing.T) {
	rec := &exclusiveRecorder{}
	s := New(map[string]*pipeline.Pipeline{
		"face":  newFacePipeline(t, 0.9),
		"face2": newFacePipeline(t, 0.9),
	}, Options{Recorder: rec})
	img := pngBytes(t, 160, 120)

	const requests = 12
	var wg sync.WaitGroup
	frames := make(chan int, requests)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := "/v1/face/detect"
			if i%2 == 1 {
				path = "/v1/face2/detect"
			}
			rr := postImage(t, s, path, img)
			if rr.Code != http.StatusOK {
				t.Errorf("request %d: status = %d", i, rr.Code)
				return
			}
			var resp DetectResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Errorf("request %d: %v", i, err)
				return
			}
			frames <- resp.Frame
		}(i)
	}
	wg.Wait()
	close(frames)

	if n := rec.overlaps.Load(); n != 0 {
		t.Errorf("%d SaveFrame calls overlapped", n)
	}
	if n := rec.saved.Load(); n != requests {
		t.Errorf("saved %d frames, want %d", n, requests)
	}
	seen := make(map[int]bool)
	for f := range frames {
		if seen[f] {
			t.Errorf("frame %d numbered twice", f)
		}
		seen[f] = true
	}
}

func TestDetect_RestartKeepsEarlierRecords(t *testing.T) {
	rec := &keyedRecorder{rows: make(map[string]snapshot.Record)}
	img := pngBytes(t, 64, 64)

	// both runs number their first upload frame 1
	first := New(map[string]*pipeline.Pipeline{"face": newFacePipeline(t, 0.9)}, Options{Recorder: rec})
	if rr := postImage(t, first, "/v1/face/detect", img); rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	second := New(map[string]*pipeline.Pipeline{"face": newFacePipeline(t, 0.9)}, Options{Recorder: rec})
	if rr := postImage(t, second, "/v1/face/detect", img); rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	if first.RunSource() == second.RunSource() {
		t.Fatalf("both runs record under %s", first.RunSource())
	}
	for _, src := range []string{first.RunSource(), second.RunSource()} {
		if !strings.HasPrefix(src, Source+"/") {
			t.Errorf("source %q lacks the %s/ prefix", src, Source)
		}
	}
	if len(rec.rows) != 2 {
		t.Errorf("stored %d rows, want 2: %v", len(rec.rows), rec.rows)
	}
}

func TestRunSource_ExplicitID(t *testing.T) {
	s := New(map[string]*pipeline.Pipeline{}, Options{RunID: "nightly"})
	if s.RunSource() != "http/nightly" {
		t.Errorf("RunSource = %q", s.RunSource())
	}
}
