// Package atoms binds resolved identity occurrences onto externally
// supplied time-ranged segments. Atoms arrive from an upstream
// atomization step; any fields beyond the time range are opaque here and
// pass through untouched.
package atoms

import (
	"encoding/json"
	"fmt"
	"sort"
)

// VisibleIdentity summarizes one identity's presence within an atom.
type VisibleIdentity struct {
	IdentityID      string  `json:"identity_id"`
	OccurrenceCount int     `json:"occurrence_count"`
	MeanConfidence  float64 `json:"mean_confidence"`
}

// Occurrence is one resolved detection reduced to what binding needs.
type Occurrence struct {
	IdentityID string  `json:"identity_id"`
	Timestamp  float64 `json:"timestamp_seconds"`
	Confidence float64 `json:"confidence"`
}

// Atom is one time-ranged segment, [Start, End) in seconds. Unknown
// JSON fields survive an unmarshal/marshal round trip.
type Atom struct {
	Start             float64
	End               float64
	VisibleIdentities []VisibleIdentity

	extra map[string]json.RawMessage
}

const (
	startKey   = "start_time_seconds"
	endKey     = "end_time_seconds"
	visibleKey = "visible_identities"
)

// UnmarshalJSON pulls the time range out and stashes every other field
// verbatim, so enrichment never loses upstream data.
func (a *Atom) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("parsing atom: %w", err)
	}

	raw, ok := fields[startKey]
	if !ok {
		return fmt.Errorf("parsing atom: missing %s", startKey)
	}
	if err := json.Unmarshal(raw, &a.Start); err != nil {
		return fmt.Errorf("parsing atom %s: %w", startKey, err)
	}
	raw, ok = fields[endKey]
	if !ok {
		return fmt.Errorf("parsing atom: missing %s", endKey)
	}
	if err := json.Unmarshal(raw, &a.End); err != nil {
		return fmt.Errorf("parsing atom %s: %w", endKey, err)
	}
	if raw, ok := fields[visibleKey]; ok {
		if err := json.Unmarshal(raw, &a.VisibleIdentities); err != nil {
			return fmt.Errorf("parsing atom %s: %w", visibleKey, err)
		}
	}

	delete(fields, startKey)
	delete(fields, endKey)
	delete(fields, visibleKey)
	a.extra = fields
	return nil
}

// MarshalJSON emits the time range, the bound identities and the opaque
// upstream fields.
func (a Atom) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(a.extra)+3)
	for k, v := range a.extra {
		fields[k] = v
	}

	start, err := json.Marshal(a.Start)
	if err != nil {
		return nil, err
	}
	end, err := json.Marshal(a.End)
	if err != nil {
		return nil, err
	}
	fields[startKey] = start
	fields[endKey] = end
	if a.VisibleIdentities != nil {
		visible, err := json.Marshal(a.VisibleIdentities)
		if err != nil {
			return nil, err
		}
		fields[visibleKey] = visible
	}
	return json.Marshal(fields)
}

// Validate rejects inverted ranges. Zero duration is legal and simply
// never matches.
func (a *Atom) Validate() error {
	if a.End < a.Start {
		return fmt.Errorf("atom range [%f, %f) is inverted", a.Start, a.End)
	}
	return nil
}

// Bind annotates every atom with the identities whose occurrences fall
// inside its half-open [Start, End) interval: occurrence count plus mean
// detector confidence per identity, ordered by first appearance.
//
// Occurrences are sorted by timestamp once, then each atom's window is
// located by binary search. An occurrence at exactly End is excluded, at
// exactly Start included, and a zero-duration atom matches nothing.
// Atoms with no occurrences get an empty list, which is not an error.
func Bind(segments []Atom, occurrences []Occurrence) ([]Atom, error) {
	for i := range segments {
		if err := segments[i].Validate(); err != nil {
			return nil, err
		}
	}

	sorted := make([]Occurrence, len(occurrences))
	copy(sorted, occurrences)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	bound := make([]Atom, len(segments))
	for i, atom := range segments {
		lo := sort.Search(len(sorted), func(k int) bool {
			return sorted[k].Timestamp >= atom.Start
		})
		hi := sort.Search(len(sorted), func(k int) bool {
			return sorted[k].Timestamp >= atom.End
		})
		atom.VisibleIdentities = aggregate(sorted[lo:hi])
		bound[i] = atom
	}
	return bound, nil
}

func aggregate(window []Occurrence) []VisibleIdentity {
	visible := []VisibleIdentity{}
	index := map[string]int{}
	for _, occ := range window {
		i, ok := index[occ.IdentityID]
		if !ok {
			i = len(visible)
			index[occ.IdentityID] = i
			visible = append(visible, VisibleIdentity{IdentityID: occ.IdentityID})
		}
		visible[i].OccurrenceCount++
		visible[i].MeanConfidence += occ.Confidence
	}
	for i := range visible {
		visible[i].MeanConfidence /= float64(visible[i].OccurrenceCount)
	}
	return visible
}
