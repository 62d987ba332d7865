// Package faces defines the face detection contract consumed by the
// clustering and resolution pipeline. Detections arrive from an external
// detector with bounding box, embedding and confidence already computed;
// this package never touches pixels.
package faces

import (
	"fmt"
)

// BBox is a normalized bounding box. All coordinates are in [0, 1]
// relative to the frame, [x, y, w, h].
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area returns the normalized box area (fraction of the frame).
func (b BBox) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// IoU calculates Intersection over Union between two normalized boxes.
func (b BBox) IoU(other BBox) float64 {
	x1 := max(b.X, other.X)
	y1 := max(b.Y, other.Y)
	x2 := min(b.X+b.W, other.X+other.W)
	y2 := min(b.Y+b.H, other.Y+other.H)

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := b.Area() + other.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// Detection is one face found in one video frame. Immutable once created;
// cluster and identity assignments are tracked outside the detection itself.
type Detection struct {
	ClipID     string    `json:"clip_id"`
	Timestamp  float64   `json:"timestamp_seconds"`
	BBox       BBox      `json:"bbox"`
	Embedding  []float32 `json:"embedding"`
	Confidence float64   `json:"confidence"`
	// Quality is the detector's quality score (face area x sharpness).
	// Zero means the provider did not supply one; see QualityScore.
	Quality float64 `json:"quality,omitempty"`
}

// QualityScore returns the detection quality used for representative
// selection. Falls back to bbox area x detector confidence when the
// provider did not supply a score, keeping the ordering total.
func (d *Detection) QualityScore() float64 {
	if d.Quality > 0 {
		return d.Quality
	}
	return d.BBox.Area() * d.Confidence
}

// Validate checks the provider contract: timestamp >= 0, confidence in
// [0, 1], a non-empty embedding of the expected dimensionality (dim 0
// skips the dimension check).
func (d *Detection) Validate(dim int) error {
	if d.ClipID == "" {
		return fmt.Errorf("detection missing clip id")
	}
	if d.Timestamp < 0 {
		return fmt.Errorf("detection timestamp must be >= 0, got %f", d.Timestamp)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("detection confidence must be in [0, 1], got %f", d.Confidence)
	}
	if len(d.Embedding) == 0 {
		return fmt.Errorf("detection has empty embedding")
	}
	if dim > 0 && len(d.Embedding) != dim {
		return fmt.Errorf("detection embedding has %d dimensions, expected %d", len(d.Embedding), dim)
	}
	return nil
}
