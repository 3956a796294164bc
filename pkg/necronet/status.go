package necronet

import "fmt"

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUploaded, StatusMigrating, StatusReady, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions will be observed.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// canTransition reports whether the service may move an artifact from one
// status to another. Terminal statuses have no outgoing edges.
func canTransition(from, to Status) bool {
	switch from {
	case StatusUploaded:
		return to == StatusMigrating || to == StatusReady || to == StatusFailed
	case StatusMigrating:
		return to == StatusReady || to == StatusFailed
	default:
		return false
	}
}

// CheckObservation validates that next is a plausible successor of prev for
// the same artifact. Repeating the same status is allowed, and a narration
// URL never disappears once present.
func CheckObservation(prev, next *Artifact) error {
	if prev == nil || next == nil {
		return nil
	}
	if prev.ID != next.ID {
		return fmt.Errorf("observation for %s does not match artifact %s", next.ID, prev.ID)
	}
	if prev.Status != next.Status && !canTransition(prev.Status, next.Status) {
		return fmt.Errorf("invalid status transition for %s: %s -> %s", next.ID, prev.Status, next.Status)
	}
	if prev.HasNarration() && !next.HasNarration() {
		return fmt.Errorf("narration url disappeared for %s", next.ID)
	}
	return nil
}
