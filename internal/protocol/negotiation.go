package protocol

import (
	"fmt"
	"strings"
)

// =============================================================================
// NEGOTIATION TRANSCRIPT
// =============================================================================

// NegotiationTurn is one specialist's statement in one negotiation round.
// Turns accumulate into a shared transcript: specialists later in a round see
// the turns taken earlier in the same round as well as all prior rounds.
type NegotiationTurn struct {
	Round      int // 1-based
	Specialist string
	Confidence int
	Reasoning  string
}

// NoDiscussionText stands in for an empty transcript when a specialist is
// asked to re-evaluate before any peer has spoken.
const NoDiscussionText = "No other agents have evaluated yet."

// FormatNegotiationHistory renders a transcript for inclusion in a
// re-evaluation prompt, one line per turn.
func FormatNegotiationHistory(turns []NegotiationTurn) string {
	if len(turns) == 0 {
		return NoDiscussionText
	}
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = fmt.Sprintf("%s: %d%% - %s", t.Specialist, t.Confidence, t.Reasoning)
	}
	return strings.Join(lines, "\n")
}
