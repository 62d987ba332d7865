// Package resolver orchestrates a clip's resolution pass: cluster the
// clip's detections, then match each cluster against the identity
// registry or register a new identity for it.
package resolver

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-tracker/internal/cluster"
	"github.com/kozaktomas/face-tracker/internal/faces"
	"github.com/kozaktomas/face-tracker/internal/registry"
)

// Config tunes one resolver instance. Zero values fall back to the
// package defaults.
type Config struct {
	// Dim is the expected embedding dimensionality; 0 skips the check.
	Dim int
	// Eps is the maximum cosine distance for the clustering pass.
	Eps float64
	// MinSamples is the minimum neighborhood size for a dense cluster.
	MinSamples int
	// MatchThreshold is the minimum cosine similarity for a cluster to
	// merge into an existing identity.
	MatchThreshold float64
	// DedupeIoU collapses same-frame boxes with at least this overlap
	// before clustering. 0 uses the default, negative disables dedupe.
	DedupeIoU float64
}

// Assignment records where one detection ended up.
type Assignment struct {
	Detection  faces.Detection `json:"detection"`
	IdentityID string          `json:"identity_id"`
	// Created is true when this detection's cluster spawned a new
	// identity rather than merging into an existing one.
	Created bool `json:"created"`
	// Similarity is the match score of the cluster centroid against the
	// identity it merged into; 0 for created identities.
	Similarity float64 `json:"similarity,omitempty"`
}

// Result is the outcome of resolving one clip.
type Result struct {
	ClipID            string       `json:"clip_id"`
	Assignments       []Assignment `json:"assignments"`
	ClustersTotal     int          `json:"clusters_total"`
	IdentitiesCreated int          `json:"identities_created"`
	IdentitiesMatched int          `json:"identities_matched"`
}

// Resolver turns one clip's detections into identity assignments
// against a shared registry.
type Resolver struct {
	store registry.Store
	cfg   Config
}

// New creates a resolver over the given registry store.
func New(store registry.Store, cfg Config) *Resolver {
	if cfg.Eps <= 0 {
		cfg.Eps = cluster.DefaultEps
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = cluster.DefaultMinSamples
	}
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = registry.DefaultMatchThreshold
	}
	if cfg.DedupeIoU == 0 {
		cfg.DedupeIoU = faces.DefaultDedupeIoU
	}
	return &Resolver{store: store, cfg: cfg}
}

// ResolveClip runs the full pass for one clip: validate, dedupe,
// cluster, then resolve each cluster in earliest-member-timestamp order.
//
// All registry writes happen inside one whole-clip lock section, so
// concurrent clips never interleave merges on the same identity. A
// registry failure aborts the whole clip; the clip must be retried
// wholesale to avoid partially resolved state. Cancellation is honored
// between cluster commits, never inside one, so every committed cluster
// is complete.
func (r *Resolver) ResolveClip(ctx context.Context, clipID string, detections []faces.Detection) (*Result, error) {
	if clipID == "" {
		return nil, fmt.Errorf("resolve: empty clip id")
	}
	for i := range detections {
		if err := detections[i].Validate(r.cfg.Dim); err != nil {
			return nil, fmt.Errorf("resolve clip %s: %w", clipID, err)
		}
		if detections[i].ClipID != clipID {
			return nil, fmt.Errorf("resolve clip %s: detection belongs to clip %s", clipID, detections[i].ClipID)
		}
	}

	if r.cfg.DedupeIoU > 0 {
		detections = faces.DedupeFrameDuplicates(detections, r.cfg.DedupeIoU)
	}

	clusters, err := cluster.Partition(detections, cluster.Params{Eps: r.cfg.Eps, MinSamples: r.cfg.MinSamples})
	if err != nil {
		return nil, fmt.Errorf("resolve clip %s: %w", clipID, err)
	}

	result := &Result{ClipID: clipID, ClustersTotal: len(clusters)}
	if len(clusters) == 0 {
		return result, nil
	}

	r.store.LockClip()
	defer r.store.UnlockClip()

	for i := range clusters {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resolve clip %s: %w", clipID, err)
		}
		if err := r.resolveCluster(ctx, &clusters[i], result); err != nil {
			return nil, fmt.Errorf("resolve clip %s: %w", clipID, err)
		}
	}
	return result, nil
}

// resolveCluster commits one candidate cluster: merge every member into
// the best match, or create a new identity and merge the rest. Each
// merge updates the running centroid, so later members of the same
// cluster are folded into the evolving centroid.
func (r *Resolver) resolveCluster(ctx context.Context, c *cluster.Cluster, result *Result) error {
	match, similarity, err := r.store.FindBestMatch(ctx, c.Centroid, r.cfg.MatchThreshold)
	if err != nil {
		return err
	}

	if match != nil {
		for _, member := range c.Members {
			if _, err := r.store.Merge(ctx, match.ID, member.Embedding, member); err != nil {
				return err
			}
			result.Assignments = append(result.Assignments, Assignment{
				Detection:  member,
				IdentityID: match.ID,
				Similarity: similarity,
			})
		}
		result.IdentitiesMatched++
		return nil
	}

	// New identity: the cluster centroid becomes the first centroid
	// sample and the highest-quality member the representative, then the
	// remaining members fold in one by one.
	representative, err := registry.SelectRepresentative(c.Members, c.Centroid)
	if err != nil {
		return err
	}
	created, err := r.store.Create(ctx, c.Centroid, representative)
	if err != nil {
		return err
	}
	result.IdentitiesCreated++

	claimed := false
	for _, member := range c.Members {
		if !claimed && sameDetection(member, representative) {
			claimed = true
		} else {
			if _, err := r.store.Merge(ctx, created.ID, member.Embedding, member); err != nil {
				return err
			}
		}
		result.Assignments = append(result.Assignments, Assignment{
			Detection:  member,
			IdentityID: created.ID,
			Created:    true,
		})
	}
	return nil
}

// sameDetection identifies the representative among the cluster members
// so it is not merged twice. Timestamp plus bbox is unique within a
// deduped clip.
func sameDetection(a, b faces.Detection) bool {
	return a.Timestamp == b.Timestamp && a.BBox == b.BBox
}
