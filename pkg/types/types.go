// Package types defines the core data structures for agent long-term memory.
// These types represent embeddings, memories, access events, and the dialogue
// messages that conversation memories are summarized from.
package types

import "fmt"

// Importance bounds. Importance is an integer on a 0–9 scale where 0 is purely
// mundane and 9 is extremely poignant.
const (
	MinImportance     = 0
	MaxImportance     = 9
	DefaultImportance = 5
)

// ValidImportance reports whether v lies on the 0–9 importance scale.
func ValidImportance(v int) bool {
	return v >= MinImportance && v <= MaxImportance
}

// ClampImportance forces v onto the 0–9 importance scale.
func ClampImportance(v int) int {
	if v < MinImportance {
		return MinImportance
	}
	if v > MaxImportance {
		return MaxImportance
	}
	return v
}

// ValidateDraft checks that a draft can be ingested.
func ValidateDraft(d MemoryDraft) error {
	if d.AgentID == "" {
		return fmt.Errorf("agent ID is required")
	}
	if d.Description == "" {
		return fmt.Errorf("description is required")
	}
	if d.Payload == nil {
		return fmt.Errorf("payload is required")
	}
	if d.Importance != nil && !ValidImportance(*d.Importance) {
		return fmt.Errorf("importance %d outside [%d, %d]", *d.Importance, MinImportance, MaxImportance)
	}
	return nil
}
