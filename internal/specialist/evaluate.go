package specialist

import (
	"strings"

	"hivemind/internal/protocol"
)

// =============================================================================
// CONFIDENCE EVALUATION
// =============================================================================

// Evaluate scores this specialist's fitness for a task. It is a pure
// function of the task text: the profile's base confidence, raised to the
// highest score among matched keywords. Matching is case-insensitive
// substring containment. The boolean reports whether the confidence clears
// the profile's handle threshold.
func (s *Specialist) Evaluate(task string) (bool, int) {
	lower := strings.ToLower(task)
	confidence := s.profile.Base()
	for keyword, score := range s.profile.Keywords {
		if strings.Contains(lower, strings.ToLower(keyword)) && score > confidence {
			confidence = score
		}
	}
	confidence = protocol.ClampConfidence(confidence)
	return confidence >= s.profile.Threshold(), confidence
}
