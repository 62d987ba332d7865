// Package source loads face detections and atoms from their upstream
// providers: JSON clip files exported by the detector, or the detector
// service's MariaDB directly.
package source

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kozaktomas/face-tracker/internal/atoms"
	"github.com/kozaktomas/face-tracker/internal/faces"
)

// ClipFile is one clip's detector export: all face detections plus the
// transcript-derived atoms, when present.
type ClipFile struct {
	ClipID     string            `json:"clip_id"`
	Detections []faces.Detection `json:"detections"`
	Atoms      []atoms.Atom      `json:"atoms,omitempty"`
}

// LoadClipFile reads and validates one exported clip file. Detections
// without a clip id inherit the file's.
func LoadClipFile(path string) (*ClipFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading clip file: %w", err)
	}

	var clip ClipFile
	if err := json.Unmarshal(data, &clip); err != nil {
		return nil, fmt.Errorf("parsing clip file %s: %w", path, err)
	}
	if clip.ClipID == "" {
		return nil, fmt.Errorf("clip file %s has no clip_id", path)
	}
	for i := range clip.Detections {
		if clip.Detections[i].ClipID == "" {
			clip.Detections[i].ClipID = clip.ClipID
		}
		if clip.Detections[i].ClipID != clip.ClipID {
			return nil, fmt.Errorf("clip file %s: detection %d belongs to clip %s", path, i, clip.Detections[i].ClipID)
		}
	}
	return &clip, nil
}
