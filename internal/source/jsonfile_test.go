package source

import (
	"os"
	"path/filepath"
	"testing"
)

func writeClipFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp clip file: %v", err)
	}
	return path
}

func TestLoadClipFile(t *testing.T) {
	path := writeClipFile(t, `{
		"clip_id": "clip-1",
		"detections": [
			{"timestamp_seconds": 1.5, "bbox": {"x": 0.1, "y": 0.2, "w": 0.3, "h": 0.4}, "embedding": [1, 0], "confidence": 0.9}
		],
		"atoms": [
			{"start_time_seconds": 0, "end_time_seconds": 10, "transcript": "hi"}
		]
	}`)

	clip, err := LoadClipFile(path)
	if err != nil {
		t.Fatalf("LoadClipFile failed: %v", err)
	}
	if clip.ClipID != "clip-1" {
		t.Errorf("clip id = %s; want clip-1", clip.ClipID)
	}
	if len(clip.Detections) != 1 {
		t.Fatalf("detections = %d; want 1", len(clip.Detections))
	}
	if clip.Detections[0].ClipID != "clip-1" {
		t.Errorf("detection should inherit the file clip id, got %q", clip.Detections[0].ClipID)
	}
	if len(clip.Atoms) != 1 || clip.Atoms[0].End != 10 {
		t.Errorf("atoms not parsed: %+v", clip.Atoms)
	}
}

func TestLoadClipFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing clip id", `{"detections": []}`},
		{"not json", `not json at all`},
		{"foreign detection", `{"clip_id": "clip-1", "detections": [{"clip_id": "clip-2", "timestamp_seconds": 0, "embedding": [1], "confidence": 0.5}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadClipFile(writeClipFile(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadClipFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file should fail")
	}
}
