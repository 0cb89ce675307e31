package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blazelive.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvORTLib, "")
	t.Setenv(EnvDBURL, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Blaze != "hand" || cfg.Camera.Width != 640 || cfg.Camera.Height != 480 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.CaptureDir != "./captured-images" {
		t.Errorf("capture dir = %q", cfg.CaptureDir)
	}
}

func TestLoad_File(t *testing.T) {
	t.Setenv(EnvORTLib, "")
	t.Setenv(EnvDBURL, "")

	path := writeFile(t, `
blaze: pose
model1: models/pose_det.onnx
min_score: 0.6
camera:
  source: /dev/video2
server:
  addr: 127.0.0.1:9000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Blaze != "pose" || cfg.Model1 != "models/pose_det.onnx" || cfg.MinScore != 0.6 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Camera.Source != "/dev/video2" || cfg.Camera.Width != 640 {
		t.Errorf("camera = %+v", cfg.Camera)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || cfg.Server.MaxUploadMiB != 16 {
		t.Errorf("server = %+v", cfg.Server)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv(EnvORTLib, "/opt/ort/libonnxruntime.so")
	t.Setenv(EnvDBURL, "postgres://localhost/blaze")

	cfg, err := Load(writeFile(t, "blaze: face\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ORTLib != "/opt/ort/libonnxruntime.so" || cfg.DatabaseURL != "postgres://localhost/blaze" {
		t.Errorf("env not applied: %+v", cfg)
	}

	// the file wins over the environment
	cfg, err = Load(writeFile(t, "ort_lib: lib/custom.so\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ORTLib != "lib/custom.so" {
		t.Errorf("ort_lib = %q", cfg.ORTLib)
	}
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		want    string
	}{
		{name: "unknown-field", content: "blase: hand\n", want: "blase"},
		{name: "backend", content: "backend: cuda\n", want: "unknown backend"},
		{name: "min-score", content: "min_score: 1.5\n", want: "min_score"},
		{name: "camera", content: "camera:\n  width: 0\n", want: "camera size"},
		{name: "syntax", content: "blaze: [\n", want: "failed to parse"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
