package registry

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

const (
	// hnswMaxNeighbors (M) is the maximum number of neighbors per node.
	hnswMaxNeighbors = 16
	// SearchMultiplier asks HNSW for more candidates than needed so exact
	// re-scoring can compensate for the approximate graph walk.
	SearchMultiplier = 3
)

// Index is an in-memory HNSW graph over identity centroids, used by
// backends that hold too many identities for a full linear scan. Search
// results are approximate: callers re-score candidates exactly and apply
// the creation-order tie-break themselves.
type Index struct {
	graph *hnsw.Graph[string]
	mu    sync.RWMutex
	path  string // Optional save/load path
}

// NewIndex creates an empty identity index.
func NewIndex() *Index {
	return &Index{}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given identities.
func (x *Index) Build(identities []Identity) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if len(identities) == 0 {
		x.graph = nil
		return
	}
	g := newGraph()
	for i := range identities {
		if len(identities[i].Centroid) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(identities[i].ID, identities[i].Centroid))
	}
	x.graph = g
}

// Upsert adds an identity centroid or replaces its previous vector after a
// merge moved it.
func (x *Index) Upsert(id string, centroid []float32) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if len(centroid) == 0 {
		return
	}
	if x.graph == nil {
		x.graph = newGraph()
	}
	x.graph.Add(hnsw.MakeNode(id, centroid))
}

// Search returns up to k approximate nearest identity IDs with cosine
// distances, nearest first.
func (x *Index) Search(query []float32, k int) ([]string, []float64) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil || k <= 0 {
		return nil, nil
	}

	neighbors := x.graph.Search(query, k)
	ids := make([]string, len(neighbors))
	distances := make([]float64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
		distances[i] = float64(hnsw.CosineDistance(query, n.Value))
	}
	return ids, distances
}

// Count returns the number of indexed identities.
func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph == nil {
		return 0
	}
	return x.graph.Len()
}

// SetPath sets the path for saving/loading the index.
func (x *Index) SetPath(path string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.path = path
}

// Save persists the index to disk, if a path is configured.
func (x *Index) Save() error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.path == "" {
		return nil
	}
	if x.graph == nil {
		// Remove existing file if index is empty (best-effort cleanup).
		_ = os.Remove(x.path)
		return nil
	}

	f, err := os.Create(x.path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer f.Close()

	if err := x.graph.Export(f); err != nil {
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	return nil
}

// Load loads the index from disk. A missing file is not an error; the
// caller rebuilds from storage instead.
func (x *Index) Load(path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.path = path
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer f.Close()

	g := newGraph()
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("failed to import HNSW graph: %w", err)
	}
	x.graph = g
	return nil
}
