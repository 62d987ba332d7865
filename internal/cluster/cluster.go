// Package cluster groups one clip's face detections into candidate
// person-clusters using density-based clustering over cosine distance.
package cluster

import (
	"fmt"
	"sort"

	"github.com/kozaktomas/face-tracker/internal/faces"
	"github.com/kozaktomas/face-tracker/internal/vectormath"
)

const (
	// DefaultEps is the maximum cosine distance for two detections to be
	// considered directly connected.
	DefaultEps = 0.35
	// DefaultMinSamples is the minimum neighborhood size (including the
	// point itself) to seed a dense cluster.
	DefaultMinSamples = 2
)

// Params tunes the DBSCAN pass.
type Params struct {
	Eps        float64
	MinSamples int
}

// DefaultParams returns the standard clustering parameters.
func DefaultParams() Params {
	return Params{Eps: DefaultEps, MinSamples: DefaultMinSamples}
}

// Cluster is an ephemeral grouping of detections within one clip believed
// to be the same person. Members keep the timestamp-sorted processing order.
type Cluster struct {
	Members        []faces.Detection
	Centroid       []float32
	MeanConfidence float64
}

// EarliestTimestamp returns the timestamp of the earliest member.
// Members are ordered, so this is the first one.
func (c *Cluster) EarliestTimestamp() float64 {
	if len(c.Members) == 0 {
		return 0
	}
	return c.Members[0].Timestamp
}

// Partition groups detections into candidate person-clusters.
//
// Standard DBSCAN semantics over cosine distance: a detection whose
// eps-neighborhood (itself included) has at least MinSamples members is a
// core point; clusters are grown from core points by density-connectivity.
// Detections are processed in timestamp order, so a border point reachable
// from two clusters lands in the one whose seed has the earlier timestamp,
// which makes the partition reproducible. Noise points become singleton
// clusters on purpose: a fleeting single face is still its own candidate.
//
// A clip with zero detections yields zero clusters.
func Partition(detections []faces.Detection, params Params) ([]Cluster, error) {
	if len(detections) == 0 {
		return nil, nil
	}
	if params.Eps <= 0 {
		params.Eps = DefaultEps
	}
	if params.MinSamples <= 0 {
		params.MinSamples = DefaultMinSamples
	}

	// Stable timestamp ordering drives both seeding and border assignment.
	order := make([]int, len(detections))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return detections[order[a]].Timestamp < detections[order[b]].Timestamp
	})

	neighbors, err := buildNeighborhoods(detections, order, params.Eps)
	if err != nil {
		return nil, err
	}

	const unassigned = -1
	assignment := make([]int, len(detections)) // Position in `order` -> cluster index
	for i := range assignment {
		assignment[i] = unassigned
	}

	var memberships [][]int // Cluster index -> positions in `order`
	for pos := range order {
		if assignment[pos] != unassigned {
			continue
		}
		if len(neighbors[pos]) < params.MinSamples {
			continue // Noise for now, may still be claimed as a border point.
		}

		// New cluster seeded by the earliest unclaimed core point.
		clusterIdx := len(memberships)
		memberships = append(memberships, nil)
		queue := []int{pos}
		assignment[pos] = clusterIdx
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			memberships[clusterIdx] = append(memberships[clusterIdx], p)

			if len(neighbors[p]) < params.MinSamples {
				continue // Border point, do not expand through it.
			}
			for _, q := range neighbors[p] {
				if assignment[q] == unassigned {
					assignment[q] = clusterIdx
					queue = append(queue, q)
				}
			}
		}
	}

	// Leftover noise points become singleton clusters, in timestamp order.
	for pos := range order {
		if assignment[pos] == unassigned {
			memberships = append(memberships, []int{pos})
		}
	}

	clusters := make([]Cluster, 0, len(memberships))
	for _, positions := range memberships {
		sort.Ints(positions)
		c := Cluster{Members: make([]faces.Detection, 0, len(positions))}
		embeddings := make([][]float32, 0, len(positions))
		var confidenceSum float64
		for _, p := range positions {
			d := detections[order[p]]
			c.Members = append(c.Members, d)
			embeddings = append(embeddings, d.Embedding)
			confidenceSum += d.Confidence
		}
		centroid, err := vectormath.Centroid(embeddings)
		if err != nil {
			return nil, fmt.Errorf("computing cluster centroid: %w", err)
		}
		c.Centroid = centroid
		c.MeanConfidence = confidenceSum / float64(len(positions))
		clusters = append(clusters, c)
	}

	// Resolution order is by earliest member timestamp.
	sort.SliceStable(clusters, func(a, b int) bool {
		return clusters[a].EarliestTimestamp() < clusters[b].EarliestTimestamp()
	})
	return clusters, nil
}

// buildNeighborhoods computes the eps-neighborhood (self included) for every
// detection, positions expressed in `order` space. O(n^2) pairwise scan.
func buildNeighborhoods(detections []faces.Detection, order []int, eps float64) ([][]int, error) {
	n := len(order)
	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		neighbors[i] = append(neighbors[i], i)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dist, err := vectormath.CosineDistance(detections[order[i]].Embedding, detections[order[j]].Embedding)
			if err != nil {
				return nil, fmt.Errorf("comparing detections: %w", err)
			}
			if dist <= eps {
				neighbors[i] = append(neighbors[i], j)
				neighbors[j] = append(neighbors[j], i)
			}
		}
	}
	return neighbors, nil
}
