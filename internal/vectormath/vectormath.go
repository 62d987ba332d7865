// Package vectormath provides cosine similarity and centroid primitives
// over fixed-length float32 embedding vectors.
package vectormath

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDimensionMismatch is returned when two vectors have different lengths.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmptyInput is returned when an operation requires at least one vector.
	ErrEmptyInput = errors.New("empty input")
)

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value in [-1, 1]. A zero-magnitude vector yields similarity 0
// (not an error) so it never poisons downstream threshold comparisons.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors.
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return similarity, nil
}

// CosineDistance computes 1 - CosineSimilarity, in [0, 2].
func CosineDistance(a, b []float32) (float64, error) {
	similarity, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1 - similarity, nil
}

// Centroid computes the component-wise arithmetic mean of the given vectors.
// All vectors must share the same dimensionality.
func Centroid(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyInput
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(v), dim)
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}

	centroid := make([]float32, dim)
	n := float64(len(vectors))
	for i, s := range sum {
		centroid[i] = float32(s / n)
	}
	return centroid, nil
}

// RunningMean folds one new sample into a centroid that currently represents
// count samples: (old*count + sample) / (count+1). The result is a fresh
// slice; the inputs are never mutated.
func RunningMean(old []float32, count int64, sample []float32) ([]float32, error) {
	if len(old) != len(sample) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(old), len(sample))
	}
	if count < 1 {
		return nil, fmt.Errorf("running mean requires count >= 1, got %d", count)
	}

	next := make([]float32, len(old))
	n := float64(count)
	for i := range old {
		next[i] = float32((float64(old[i])*n + float64(sample[i])) / (n + 1))
	}
	return next, nil
}
