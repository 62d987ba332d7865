package registry

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/face-tracker/internal/faces"
	"github.com/kozaktomas/face-tracker/internal/vectormath"
)

func testDetection(clipID string, ts, confidence float64, embedding []float32) faces.Detection {
	return faces.Detection{
		ClipID:     clipID,
		Timestamp:  ts,
		BBox:       faces.BBox{X: 0.1, Y: 0.1, W: 0.3, H: 0.3},
		Embedding:  embedding,
		Confidence: confidence,
	}
}

func TestMemoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(3)

	centroid := []float32{1, 0, 0}
	created, err := m.Create(ctx, centroid, testDetection("clip", 1, 0.9, centroid))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.Count != 1 {
		t.Errorf("new identity count = %d; want 1", created.Count)
	}
	if created.ID == "" {
		t.Error("new identity should have an ID")
	}

	got, err := m.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != created.ID || got.Count != 1 {
		t.Errorf("Get returned wrong identity: %+v", got)
	}

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryFindBestMatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	a, err := m.Create(ctx, []float32{1, 0}, testDetection("clip", 0, 0.9, []float32{1, 0}))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := m.Create(ctx, []float32{0, 1}, testDetection("clip", 1, 0.9, []float32{0, 1})); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	match, similarity, err := m.FindBestMatch(ctx, []float32{0.9, 0.1}, DefaultMatchThreshold)
	if err != nil {
		t.Fatalf("FindBestMatch failed: %v", err)
	}
	if match == nil || match.ID != a.ID {
		t.Fatalf("expected match on first identity, got %+v", match)
	}
	if similarity <= DefaultMatchThreshold {
		t.Errorf("similarity %f should exceed the threshold", similarity)
	}
}

func TestMemoryFindBestMatchBelowThreshold(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	if _, err := m.Create(ctx, []float32{1, 0}, testDetection("clip", 0, 0.9, []float32{1, 0})); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	match, _, err := m.FindBestMatch(ctx, []float32{0, 1}, DefaultMatchThreshold)
	if err != nil {
		t.Fatalf("FindBestMatch failed: %v", err)
	}
	if match != nil {
		t.Errorf("orthogonal query should not match, got %+v", match)
	}
}

func TestMemoryFindBestMatchTieKeepsEarliest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	// Two identities with identical centroids: the one created first wins.
	first, err := m.Create(ctx, []float32{1, 0}, testDetection("clip", 0, 0.9, []float32{1, 0}))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := m.Create(ctx, []float32{1, 0}, testDetection("clip", 1, 0.9, []float32{1, 0})); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	match, _, err := m.FindBestMatch(ctx, []float32{1, 0}, DefaultMatchThreshold)
	if err != nil {
		t.Fatalf("FindBestMatch failed: %v", err)
	}
	if match == nil || match.ID != first.ID {
		t.Errorf("tie should resolve to the earliest identity")
	}
}

func TestMemoryFindBestMatchDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(3)

	_, _, err := m.FindBestMatch(ctx, []float32{1, 0}, DefaultMatchThreshold)
	if !errors.Is(err, vectormath.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestMemoryMergeRunningMean(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	created, err := m.Create(ctx, []float32{1, 1}, testDetection("clip", 0, 0.9, []float32{1, 1}))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	newCentroid, err := m.Merge(ctx, created.ID, []float32{3, 3}, testDetection("clip", 1, 0.5, []float32{3, 3}))
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	for i := range newCentroid {
		if math.Abs(float64(newCentroid[i]-2)) > 1e-6 {
			t.Errorf("centroid[%d] = %f; want 2 (running mean)", i, newCentroid[i])
		}
	}

	got, err := m.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Count != 2 {
		t.Errorf("count after merge = %d; want 2", got.Count)
	}
}

func TestMemoryMergeReplacesRepresentative(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	weak := testDetection("clip", 0, 0.5, []float32{1, 0})
	created, err := m.Create(ctx, []float32{1, 0}, weak)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	strong := testDetection("clip", 5, 0.95, []float32{1, 0})
	if _, err := m.Merge(ctx, created.ID, strong.Embedding, strong); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}

	got, err := m.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Representative.Confidence != 0.95 {
		t.Errorf("higher-confidence detection should replace the representative, got %f", got.Representative.Confidence)
	}

	// An equal detection must not displace the incumbent.
	equal := testDetection("clip", 9, 0.95, []float32{1, 0})
	if _, err := m.Merge(ctx, created.ID, equal.Embedding, equal); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	got, _ = m.Get(ctx, created.ID)
	if got.Representative.Timestamp != 5 {
		t.Errorf("tie should keep the existing representative, got timestamp %f", got.Representative.Timestamp)
	}
}

func TestMemoryLabels(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	created, err := m.Create(ctx, []float32{1, 0}, testDetection("clip", 0, 0.9, []float32{1, 0}))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.SetLabel(ctx, created.ID, "Jan Novák"); err != nil {
		t.Fatalf("SetLabel failed: %v", err)
	}

	// Slug form matches the display name after normalization.
	found, err := m.FindByLabel(ctx, "jan-novak")
	if err != nil {
		t.Fatalf("FindByLabel failed: %v", err)
	}
	if len(found) != 1 || found[0].ID != created.ID {
		t.Errorf("expected normalized label match, got %+v", found)
	}

	if err := m.SetLabel(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStats(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(2)

	a, _ := m.Create(ctx, []float32{1, 0}, testDetection("clip", 0, 0.9, []float32{1, 0}))
	if _, err := m.Create(ctx, []float32{0, 1}, testDetection("clip", 1, 0.9, []float32{0, 1})); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := m.Merge(ctx, a.ID, []float32{1, 0}, testDetection("clip", 2, 0.9, []float32{1, 0})); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if err := m.SetLabel(ctx, a.ID, "Alice"); err != nil {
		t.Fatalf("SetLabel failed: %v", err)
	}

	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Identities != 2 || stats.Detections != 3 || stats.Labeled != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Jan Novák", "jan novak"},
		{"jan-novak", "jan novak"},
		{"  Jiří ", "jiri"},
		{"ALICE", "alice"},
	}
	for _, tc := range tests {
		if got := NormalizeLabel(tc.in); got != tc.expected {
			t.Errorf("NormalizeLabel(%q) = %q; want %q", tc.in, got, tc.expected)
		}
	}
}
