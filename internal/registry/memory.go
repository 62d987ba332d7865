package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-tracker/internal/faces"
	"github.com/kozaktomas/face-tracker/internal/vectormath"
)

// Memory is an in-process registry backend. It backs the dry-run CLI mode
// and the unit tests; deployments with durable requirements use the
// postgres backend, which shares this exact contract.
type Memory struct {
	mu         sync.RWMutex
	clipMu     sync.Mutex
	identities map[string]*Identity
	order      []string // IDs in creation order
	dim        int      // 0 = accept first seen dimensionality
	nextSeq    int64
}

// NewMemory creates an empty in-memory registry. dim fixes the embedding
// dimensionality; 0 adopts the dimensionality of the first identity.
func NewMemory(dim int) *Memory {
	return &Memory{
		identities: make(map[string]*Identity),
		dim:        dim,
	}
}

// LockClip acquires the whole-clip write section.
func (m *Memory) LockClip() { m.clipMu.Lock() }

// UnlockClip releases the whole-clip write section.
func (m *Memory) UnlockClip() { m.clipMu.Unlock() }

func (m *Memory) checkDim(embedding []float32) error {
	if m.dim > 0 && len(embedding) != m.dim {
		return fmt.Errorf("%w: got %d, registry stores %d", vectormath.ErrDimensionMismatch, len(embedding), m.dim)
	}
	return nil
}

// Get retrieves an identity by ID.
func (m *Memory) Get(ctx context.Context, id string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	identity, ok := m.identities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return copyIdentity(identity), nil
}

// List returns all identities in creation order.
func (m *Memory) List(ctx context.Context) ([]Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Identity, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *copyIdentity(m.identities[id]))
	}
	return out, nil
}

// FindBestMatch scans all identities for the highest cosine similarity
// above threshold. The scan runs in creation order and only a strictly
// higher score displaces the leader, so ties resolve to the identity
// created first.
func (m *Memory) FindBestMatch(ctx context.Context, embedding []float32, threshold float64) (*Identity, float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.checkDim(embedding); err != nil {
		return nil, 0, err
	}

	var best *Identity
	bestSimilarity := -2.0
	for _, id := range m.order {
		identity := m.identities[id]
		similarity, err := vectormath.CosineSimilarity(embedding, identity.Centroid)
		if err != nil {
			return nil, 0, err
		}
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			best = identity
		}
	}

	if best == nil || bestSimilarity <= threshold {
		return nil, 0, nil
	}
	return copyIdentity(best), bestSimilarity, nil
}

// FindByLabel returns identities whose normalized label matches.
func (m *Memory) FindByLabel(ctx context.Context, label string) ([]Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := NormalizeLabel(label)
	var out []Identity
	for _, id := range m.order {
		identity := m.identities[id]
		if identity.Label != "" && NormalizeLabel(identity.Label) == want {
			out = append(out, *copyIdentity(identity))
		}
	}
	return out, nil
}

// Stats returns registry totals.
func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{Identities: int64(len(m.order))}
	for _, identity := range m.identities {
		stats.Detections += identity.Count
		if identity.Label != "" {
			stats.Labeled++
		}
	}
	return stats, nil
}

// Create allocates a new identity with count=1.
func (m *Memory) Create(ctx context.Context, centroid []float32, representative faces.Detection) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dim == 0 {
		m.dim = len(centroid)
	}
	if err := m.checkDim(centroid); err != nil {
		return nil, err
	}

	m.nextSeq++
	now := time.Now().UTC()
	identity := &Identity{
		ID:             uuid.NewString(),
		Centroid:       append([]float32(nil), centroid...),
		Representative: representative,
		Count:          1,
		Seq:            m.nextSeq,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.identities[identity.ID] = identity
	m.order = append(m.order, identity.ID)
	return copyIdentity(identity), nil
}

// Merge folds one detection into an identity and returns the new centroid.
func (m *Memory) Merge(ctx context.Context, id string, embedding []float32, detection faces.Detection) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.identities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	newCentroid, err := vectormath.RunningMean(identity.Centroid, identity.Count, embedding)
	if err != nil {
		return nil, err
	}

	replace, err := BetterRepresentative(detection, identity.Representative, newCentroid)
	if err != nil {
		return nil, err
	}

	identity.Centroid = newCentroid
	identity.Count++
	identity.UpdatedAt = time.Now().UTC()
	if replace {
		identity.Representative = detection
	}
	return append([]float32(nil), newCentroid...), nil
}

// SetLabel attaches an external label to an identity.
func (m *Memory) SetLabel(ctx context.Context, id string, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.identities[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	identity.Label = label
	identity.UpdatedAt = time.Now().UTC()
	return nil
}

func copyIdentity(identity *Identity) *Identity {
	out := *identity
	out.Centroid = append([]float32(nil), identity.Centroid...)
	return &out
}
