package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dudu/blazelive/internal/snapshot"
)

// TestStoreIntegration runs against a real Postgres container and needs Docker.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// testcontainers panics when the docker socket is missing
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("blazelive_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close()

	const source = "clips/hands.mp4"
	records := []snapshot.Record{
		{Domain: "hand", Frame: 2, Width: 640, Height: 480, Detections: []snapshot.Detection{{Score: 0.9}, {Score: 0.7}}},
		{Domain: "hand", Frame: 1, Width: 640, Height: 480},
		{Domain: "hand", Frame: 3, Width: 640, Height: 480, Detections: []snapshot.Detection{{Score: 0.6}}},
	}
	for _, rec := range records {
		if err := s.SaveFrame(ctx, source, rec); err != nil {
			t.Fatalf("SaveFrame failed: %v", err)
		}
	}

	frames, err := s.Frames(ctx, source)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if f.Frame != i+1 {
			t.Errorf("frame %d out of order: %d", i, f.Frame)
		}
		if f.Detections != len(f.Record.Detections) {
			t.Errorf("frame %d: detections column %d, record has %d", f.Frame, f.Detections, len(f.Record.Detections))
		}
	}

	// saving the same frame again replaces it
	records[1].Detections = []snapshot.Detection{{Score: 0.5}}
	if err := s.SaveFrame(ctx, source, records[1]); err != nil {
		t.Fatal(err)
	}
	counts, err := s.DetectionCounts(ctx, source)
	if err != nil {
		t.Fatalf("DetectionCounts failed: %v", err)
	}
	if counts[0] != 0 || counts[1] != 2 || counts[2] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}

	if err := s.Reset(ctx, source, "hand"); err != nil {
		t.Fatal(err)
	}
	frames, err = s.Frames(ctx, source)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 0 {
		t.Errorf("Expected no frames after reset, got %d", len(frames))
	}

	// handlers of different domains save at the same time
	const parallel = "http/concurrent"
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			domain := "hand"
			if n%2 == 1 {
				domain = "face"
			}
			errs <- s.SaveFrame(ctx, parallel, snapshot.Record{Domain: domain, Frame: n, Width: 64, Height: 64})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent SaveFrame failed: %v", err)
		}
	}
	frames, err = s.Frames(ctx, parallel)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 16 {
		t.Errorf("Expected 16 concurrently saved frames, got %d", len(frames))
	}
}
