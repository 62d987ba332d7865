package faces

import (
	"sort"
)

// DefaultDedupeIoU is the overlap above which two boxes in the same frame
// are treated as duplicate detections of one face.
const DefaultDedupeIoU = 0.6

// DedupeFrameDuplicates removes duplicate detections the detector emitted
// for the same face in the same frame: detections sharing a timestamp whose
// boxes overlap with IoU >= iouThreshold collapse into the one with the
// higher detector confidence. Input order is not mutated; the result is a
// fresh slice sorted by timestamp, then descending confidence.
func DedupeFrameDuplicates(detections []Detection, iouThreshold float64) []Detection {
	if len(detections) < 2 {
		return append([]Detection(nil), detections...)
	}

	sorted := append([]Detection(nil), detections...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timestamp != sorted[j].Timestamp {
			return sorted[i].Timestamp < sorted[j].Timestamp
		}
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]Detection, 0, len(sorted))
	for _, d := range sorted {
		duplicate := false
		// Only detections from the same frame can be duplicates, and kept
		// detections are confidence-ordered within a frame, so the survivor
		// is always the strongest box.
		for i := len(kept) - 1; i >= 0 && kept[i].Timestamp == d.Timestamp; i-- {
			if kept[i].BBox.IoU(d.BBox) >= iouThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, d)
		}
	}
	return kept
}
