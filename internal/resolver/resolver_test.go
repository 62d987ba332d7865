package resolver

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kozaktomas/face-tracker/internal/faces"
	"github.com/kozaktomas/face-tracker/internal/registry"
)

// embeddingAt returns a unit 2D embedding at the given angle in degrees,
// so cosine similarity between two embeddings is cos(angle delta).
func embeddingAt(degrees float64) []float32 {
	rad := degrees * math.Pi / 180
	return []float32{float32(math.Cos(rad)), float32(math.Sin(rad))}
}

func detection(clipID string, ts float64, angle float64, confidence float64) faces.Detection {
	return faces.Detection{
		ClipID:     clipID,
		Timestamp:  ts,
		BBox:       faces.BBox{X: 0.1, Y: 0.1, W: 0.2, H: 0.2},
		Embedding:  embeddingAt(angle),
		Confidence: confidence,
	}
}

// personClip builds n detections of one person around baseAngle with
// distinct timestamps, pairwise similarity well above the match threshold.
func personClip(clipID string, baseAngle float64, n int, tsOffset float64) []faces.Detection {
	detections := make([]faces.Detection, 0, n)
	for i := 0; i < n; i++ {
		angle := baseAngle + float64(i%5)*2
		detections = append(detections, detection(clipID, tsOffset+float64(i), angle, 0.9))
	}
	return detections
}

func TestResolveClipSinglePersonEmptyRegistry(t *testing.T) {
	store := registry.NewMemory(2)
	r := New(store, Config{Dim: 2})
	ctx := context.Background()

	result, err := r.ResolveClip(ctx, "clip-1", personClip("clip-1", 0, 30, 0))
	if err != nil {
		t.Fatalf("ResolveClip failed: %v", err)
	}

	if result.ClustersTotal != 1 {
		t.Errorf("clusters = %d; want 1", result.ClustersTotal)
	}
	if result.IdentitiesCreated != 1 || result.IdentitiesMatched != 0 {
		t.Errorf("created=%d matched=%d; want 1/0", result.IdentitiesCreated, result.IdentitiesMatched)
	}
	if len(result.Assignments) != 30 {
		t.Fatalf("assignments = %d; want 30", len(result.Assignments))
	}

	id := result.Assignments[0].IdentityID
	for _, a := range result.Assignments {
		if a.IdentityID != id {
			t.Errorf("detection at %f assigned to %s, expected %s", a.Detection.Timestamp, a.IdentityID, id)
		}
		if !a.Created {
			t.Errorf("detection at %f not marked created", a.Detection.Timestamp)
		}
	}

	identity, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if identity.Count != 30 {
		t.Errorf("identity count = %d; want 30 (representative merged exactly once)", identity.Count)
	}
}

func TestResolveClipTwoPeople(t *testing.T) {
	store := registry.NewMemory(2)
	r := New(store, Config{Dim: 2})
	ctx := context.Background()

	// Cross-person similarity cos(120°) is far below the threshold.
	detections := append(personClip("clip-1", 0, 15, 0), personClip("clip-1", 120, 15, 100)...)

	result, err := r.ResolveClip(ctx, "clip-1", detections)
	if err != nil {
		t.Fatalf("ResolveClip failed: %v", err)
	}
	if result.ClustersTotal != 2 || result.IdentitiesCreated != 2 {
		t.Fatalf("clusters=%d created=%d; want 2/2", result.ClustersTotal, result.IdentitiesCreated)
	}

	ids := map[string]int{}
	for _, a := range result.Assignments {
		ids[a.IdentityID]++
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 distinct identities, got %d", len(ids))
	}
	for id, n := range ids {
		if n != 15 {
			t.Errorf("identity %s has %d assignments; want 15", id, n)
		}
	}
}

func TestResolveClipCrossClipMatch(t *testing.T) {
	store := registry.NewMemory(2)
	r := New(store, Config{Dim: 2})
	ctx := context.Background()

	first, err := r.ResolveClip(ctx, "clip-1", personClip("clip-1", 0, 10, 0))
	if err != nil {
		t.Fatalf("ResolveClip clip-1 failed: %v", err)
	}
	id := first.Assignments[0].IdentityID

	// Same person in a second clip, 10 degrees away: similarity to the
	// stored centroid stays far above 0.65.
	second, err := r.ResolveClip(ctx, "clip-2", personClip("clip-2", 10, 5, 0))
	if err != nil {
		t.Fatalf("ResolveClip clip-2 failed: %v", err)
	}

	if second.IdentitiesCreated != 0 || second.IdentitiesMatched != 1 {
		t.Fatalf("created=%d matched=%d; want 0/1", second.IdentitiesCreated, second.IdentitiesMatched)
	}
	for _, a := range second.Assignments {
		if a.IdentityID != id {
			t.Errorf("clip-2 detection assigned to %s, expected existing identity %s", a.IdentityID, id)
		}
		if a.Created {
			t.Error("cross-clip match must not mark assignments as created")
		}
		if a.Similarity <= registry.DefaultMatchThreshold {
			t.Errorf("match similarity %f should exceed threshold", a.Similarity)
		}
	}

	identity, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if identity.Count != 15 {
		t.Errorf("identity count after both clips = %d; want 15", identity.Count)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Identities != 1 {
		t.Errorf("registry holds %d identities; want 1", stats.Identities)
	}
}

func TestResolveClipIdempotent(t *testing.T) {
	store := registry.NewMemory(2)
	r := New(store, Config{Dim: 2})
	ctx := context.Background()
	detections := personClip("clip-1", 0, 10, 0)

	first, err := r.ResolveClip(ctx, "clip-1", detections)
	if err != nil {
		t.Fatalf("first ResolveClip failed: %v", err)
	}
	second, err := r.ResolveClip(ctx, "clip-1", detections)
	if err != nil {
		t.Fatalf("second ResolveClip failed: %v", err)
	}

	if second.IdentitiesCreated != 0 {
		t.Errorf("second pass created %d identities; want 0", second.IdentitiesCreated)
	}
	if first.Assignments[0].IdentityID != second.Assignments[0].IdentityID {
		t.Error("both passes should assign to the same identity")
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Identities != 1 {
		t.Errorf("registry holds %d identities after two passes; want 1", stats.Identities)
	}
}

func TestResolveClipSingletonMatchesExisting(t *testing.T) {
	store := registry.NewMemory(2)
	r := New(store, Config{Dim: 2})
	ctx := context.Background()

	first, err := r.ResolveClip(ctx, "clip-1", personClip("clip-1", 0, 10, 0))
	if err != nil {
		t.Fatalf("ResolveClip failed: %v", err)
	}
	id := first.Assignments[0].IdentityID

	// One fleeting detection of the same person: a singleton cluster
	// still resolves like any other.
	result, err := r.ResolveClip(ctx, "clip-2", []faces.Detection{detection("clip-2", 3, 5, 0.8)})
	if err != nil {
		t.Fatalf("ResolveClip failed: %v", err)
	}
	if result.ClustersTotal != 1 || result.IdentitiesMatched != 1 {
		t.Fatalf("clusters=%d matched=%d; want 1/1", result.ClustersTotal, result.IdentitiesMatched)
	}
	if result.Assignments[0].IdentityID != id {
		t.Errorf("singleton assigned to %s, expected %s", result.Assignments[0].IdentityID, id)
	}
}

func TestResolveClipValidation(t *testing.T) {
	store := registry.NewMemory(2)
	r := New(store, Config{Dim: 2})
	ctx := context.Background()

	if _, err := r.ResolveClip(ctx, "", nil); err == nil {
		t.Error("empty clip id should fail")
	}
	bad := detection("clip-1", -1, 0, 0.9)
	if _, err := r.ResolveClip(ctx, "clip-1", []faces.Detection{bad}); err == nil {
		t.Error("negative timestamp should fail validation")
	}
	foreign := detection("clip-other", 1, 0, 0.9)
	if _, err := r.ResolveClip(ctx, "clip-1", []faces.Detection{foreign}); err == nil {
		t.Error("detection from another clip should fail")
	}
}

func TestResolveClipEmpty(t *testing.T) {
	store := registry.NewMemory(2)
	r := New(store, Config{Dim: 2})

	result, err := r.ResolveClip(context.Background(), "clip-1", nil)
	if err != nil {
		t.Fatalf("ResolveClip failed: %v", err)
	}
	if result.ClustersTotal != 0 || len(result.Assignments) != 0 {
		t.Errorf("empty clip should produce an empty result, got %+v", result)
	}
}

func TestResolveClipCancelled(t *testing.T) {
	store := registry.NewMemory(2)
	r := New(store, Config{Dim: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ResolveClip(ctx, "clip-1", personClip("clip-1", 0, 10, 0))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Identities != 0 {
		t.Errorf("cancelled pass must not commit clusters, registry holds %d identities", stats.Identities)
	}
}

// failingStore simulates storage going away mid-pass.
type failingStore struct {
	registry.Store
}

func (f *failingStore) FindBestMatch(ctx context.Context, embedding []float32, threshold float64) (*registry.Identity, float64, error) {
	return nil, 0, registry.ErrUnavailable
}

func TestResolveClipRegistryFailureAborts(t *testing.T) {
	store := &failingStore{Store: registry.NewMemory(2)}
	r := New(store, Config{Dim: 2})

	_, err := r.ResolveClip(context.Background(), "clip-1", personClip("clip-1", 0, 10, 0))
	if !errors.Is(err, registry.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
