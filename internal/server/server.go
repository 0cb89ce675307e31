// Package server exposes the pipelines over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/dudu/blazelive/internal/geometry"
	"github.com/dudu/blazelive/internal/pipeline"
	"github.com/dudu/blazelive/internal/roi"
	"github.com/dudu/blazelive/internal/snapshot"
)

// Source prefixes the store source of HTTP uploads. Each server run records
// under Source + "/" + its run id, since frame numbers restart with the process.
const Source = "http"

// Recorder persists one processed frame. *store.Store satisfies it.
// The server never calls SaveFrame concurrently.
type Recorder interface {
	SaveFrame(ctx context.Context, source string, rec snapshot.Record) error
}

// Options configure the server
type Options struct {
	MaxUploadBytes int64
	Recorder       Recorder
	// RunID names this run in the store, default start time and pid
	RunID string
}

// Server routes detect requests to the pipeline of the requested domain
type Server struct {
	pipelines map[string]*pipeline.Pipeline
	opts      Options
	router    *mux.Router
	frames    atomic.Int64
	source    string
	recordMu  sync.Mutex
}

// DetectResponse is the body of a successful detect call
type DetectResponse struct {
	snapshot.Record
	Present []bool   `json:"present"`
	Patches []string `json:"patches,omitempty"`
}

// ErrorResponse is the body of every failed call
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New builds the router. The pipelines stay owned by the caller.
func New(pipelines map[string]*pipeline.Pipeline, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	if opts.RunID == "" {
		opts.RunID = fmt.Sprintf("%s-%d", time.Now().UTC().Format("20060102T150405.000000000Z"), os.Getpid())
	}
	s := &Server{pipelines: pipelines, opts: opts, source: Source + "/" + opts.RunID}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/v1/{domain}/detect", s.handleDetect).Methods(http.MethodPost)
	s.router = r
	return s
}

// RunSource returns the store source this server records under
func (s *Server) RunSource() string {
	return s.source
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Handler:      s.router,
		Addr:         addr,
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) domains() []string {
	names := make([]string, 0, len(s.pipelines))
	for name := range s.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"domains": s.domains(),
	})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := mux.Vars(r)["domain"]
	p, ok := s.pipelines[name]
	if !ok {
		sendError(w, "unknown_domain",
			fmt.Sprintf("domain %q is not served, have %s", name, strings.Join(s.domains(), ", ")),
			http.StatusNotFound)
		return
	}

	data, err := readUpload(r, s.opts.MaxUploadBytes)
	if err != nil {
		sendError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		sendError(w, "invalid_image", "failed to decode image", http.StatusBadRequest)
		return
	}

	frame, err := gocv.ImageToMatRGB(img)
	if err != nil {
		sendError(w, "invalid_image", err.Error(), http.StatusBadRequest)
		return
	}
	defer frame.Close()

	res, err := p.Process(frame)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, geometry.ErrInvalidInput) {
			status = http.StatusUnprocessableEntity
		}
		sendError(w, "processing_error", err.Error(), status)
		return
	}
	defer res.Close()

	frameNo := int(s.frames.Add(1))
	resp := DetectResponse{
		Record:  snapshot.FromResult(name, frameNo, res),
		Present: make([]bool, len(res.Landmarks)),
	}
	for i := range res.Landmarks {
		resp.Present[i] = res.Present(i)
	}

	if r.URL.Query().Get("patches") == "1" {
		resp.Patches, err = encodePatches(img, res.ROIs, p.Domain().Landmark.Resolution)
		if err != nil {
			sendError(w, "processing_error", err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if s.opts.Recorder != nil {
		s.record(r.Context(), resp.Record)
	}

	log.WithFields(log.Fields{
		"domain":     name,
		"frame":      frameNo,
		"detections": len(res.Detections),
		"elapsed":    time.Since(start),
	}).Debug("detect")

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) record(ctx context.Context, rec snapshot.Record) {
	s.recordMu.Lock()
	defer s.recordMu.Unlock()

	if err := s.opts.Recorder.SaveFrame(ctx, s.source, rec); err != nil {
		log.Warnf("failed to record frame %d: %v", rec.Frame, err)
	}
}

// readUpload accepts a multipart "file" field or the raw body
func readUpload(r *http.Request, limit int64) ([]byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(limit); err != nil {
			return nil, err
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return io.ReadAll(io.LimitReader(file, limit))
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("upload exceeds %d bytes", limit)
	}
	if len(data) == 0 {
		return nil, errors.New("empty body")
	}
	return data, nil
}

func encodePatches(img image.Image, rois []roi.ROI, resolution int) ([]string, error) {
	batch, err := roi.ExtractImage(img, rois, resolution)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(batch.Patches))
	var buf bytes.Buffer
	for _, patch := range batch.Patches {
		buf.Reset()
		if err := imaging.Encode(&buf, patch, imaging.PNG); err != nil {
			return nil, fmt.Errorf("failed to encode patch: %w", err)
		}
		out = append(out, base64.StdEncoding.EncodeToString(buf.Bytes()))
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("failed to write response: %v", err)
	}
}

func sendError(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
