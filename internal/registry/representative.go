package registry

import (
	"github.com/kozaktomas/face-tracker/internal/faces"
	"github.com/kozaktomas/face-tracker/internal/vectormath"
)

// BetterRepresentative reports whether candidate strictly beats current as
// an identity's representative detection. The ordering key, descending, is
// (detector confidence, quality score, -distance to centroid). Ties keep
// the current representative, so an established thumbnail is stable against
// equally good newcomers.
func BetterRepresentative(candidate, current faces.Detection, centroid []float32) (bool, error) {
	if candidate.Confidence != current.Confidence {
		return candidate.Confidence > current.Confidence, nil
	}
	if cq, rq := candidate.QualityScore(), current.QualityScore(); cq != rq {
		return cq > rq, nil
	}

	candidateDist, err := vectormath.CosineDistance(candidate.Embedding, centroid)
	if err != nil {
		return false, err
	}
	currentDist, err := vectormath.CosineDistance(current.Embedding, centroid)
	if err != nil {
		return false, err
	}
	return candidateDist < currentDist, nil
}

// SelectRepresentative picks the best-quality detection out of a non-empty
// slice, using the same ordering as BetterRepresentative against the given
// centroid. The scan is in input order and only a strictly better detection
// displaces the leader, so the earliest of equally good detections wins.
func SelectRepresentative(detections []faces.Detection, centroid []float32) (faces.Detection, error) {
	if len(detections) == 0 {
		return faces.Detection{}, vectormath.ErrEmptyInput
	}

	best := detections[0]
	for _, d := range detections[1:] {
		better, err := BetterRepresentative(d, best, centroid)
		if err != nil {
			return faces.Detection{}, err
		}
		if better {
			best = d
		}
	}
	return best, nil
}
