// Package registry is the durable catalog of long-lived, cross-clip
// identities, queryable by embedding similarity.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/kozaktomas/face-tracker/internal/faces"
)

var (
	// ErrNotFound is returned when an identity does not exist.
	ErrNotFound = errors.New("identity not found")
	// ErrUnavailable wraps storage I/O failures. A clip's resolution pass
	// aborts on this error and is safe to retry wholesale.
	ErrUnavailable = errors.New("registry unavailable")
)

// DefaultMatchThreshold is the minimum cosine similarity for a cluster to
// merge into an existing identity.
const DefaultMatchThreshold = 0.65

// Identity is a long-lived, cross-clip person record. The centroid is the
// running mean of all embeddings merged into it; see Merge.
type Identity struct {
	ID             string          `json:"id"`
	Centroid       []float32       `json:"-"`
	Representative faces.Detection `json:"representative"`
	Count          int64           `json:"count"`
	// Label is attached by a human or upstream system; empty until then.
	Label string `json:"label,omitempty"`
	// Seq is the registry-local creation order, used to break similarity
	// ties deterministically (lowest wins).
	Seq       int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats summarizes the registry contents.
type Stats struct {
	Identities int64 `json:"identities"`
	Detections int64 `json:"detections"`
	Labeled    int64 `json:"labeled"`
}

// Reader provides read-only access to identities. Reads may run
// concurrently with a resolution pass.
type Reader interface {
	// Get retrieves an identity by ID, ErrNotFound if missing.
	Get(ctx context.Context, id string) (*Identity, error)
	// List returns all identities in creation order.
	List(ctx context.Context) ([]Identity, error)
	// FindBestMatch returns the identity whose centroid has the highest
	// cosine similarity to the query, provided it exceeds threshold;
	// (nil, 0, nil) when nothing qualifies. Equal scores resolve to the
	// identity created first.
	FindBestMatch(ctx context.Context, embedding []float32, threshold float64) (*Identity, float64, error)
	// FindByLabel returns identities whose label matches after
	// normalization (lowercase, no diacritics, dashes to spaces).
	FindByLabel(ctx context.Context, label string) ([]Identity, error)
	// Stats returns registry totals.
	Stats(ctx context.Context) (Stats, error)
}

// Writer provides the mutations the resolver performs.
type Writer interface {
	Reader

	// Create allocates a new identity with count=1 whose centroid is the
	// given embedding and whose representative is the given detection.
	Create(ctx context.Context, centroid []float32, representative faces.Detection) (*Identity, error)
	// Merge folds one detection into an identity: the centroid becomes the
	// running mean (old*count + embedding)/(count+1), count increments and
	// the detection may replace the representative if it strictly beats it.
	// Returns the new centroid value so the update is observable and pure.
	Merge(ctx context.Context, id string, embedding []float32, detection faces.Detection) ([]float32, error)
	// SetLabel attaches an external label to an identity.
	SetLabel(ctx context.Context, id string, label string) error
}

// Store is the full registry contract the resolver needs: mutations plus
// the whole-clip write section. All registry writes for one clip's
// resolution pass happen inside one LockClip/UnlockClip section, the single
// serialization point of the pipeline.
type Store interface {
	Writer

	LockClip()
	UnlockClip()
}
