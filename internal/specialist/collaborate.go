package specialist

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"hivemind/internal/logging"
	"hivemind/internal/protocol"
)

// =============================================================================
// COLLABORATIVE RE-EVALUATION (negotiation rounds)
// =============================================================================

// CollaborativeEvaluate re-scores the task in light of peers' statements
// from earlier negotiation turns. With a language model attached, the model
// reasons over the transcript and states an adjustment which is applied to
// the base confidence; without one, a fixed heuristic defers to clearly
// stronger peers and presses the claim when nobody is stronger. The returned
// string is the reasoning shown in the negotiation thread.
func (s *Specialist) CollaborativeEvaluate(ctx context.Context, task string, history []protocol.NegotiationTurn) (int, string, error) {
	_, base := s.Evaluate(task)

	if s.llm == nil {
		confidence, reasoning := s.heuristicAdjust(base, history)
		return confidence, reasoning, nil
	}

	system := fmt.Sprintf(
		"You are %s, one of several specialists negotiating who should take a task. Your specialties: %s.",
		s.Name(), s.capabilities())
	user := fmt.Sprintf(
		"Task: %s\n\nMy current confidence: %d%%\n\nOther specialists said:\n%s\n\n"+
			"In one or two sentences, reason about whether you or a peer should handle this. "+
			"End with a confidence adjustment such as +10, -5, increase by 10, or boost to 60.",
		task, base, protocol.FormatNegotiationHistory(history))

	response, err := s.llm.CompleteWithSystem(ctx, system, user)
	if err != nil {
		return 0, "", fmt.Errorf("collaborative evaluation: %w", err)
	}
	response = strings.TrimSpace(response)

	confidence := base
	if value, absolute, ok := ParseAdjustment(response); ok {
		if absolute {
			confidence = value
		} else {
			confidence = base + value
		}
	}
	confidence = protocol.ClampConfidence(confidence)
	logging.Negotiation("[%s] re-evaluated %q: %d%% -> %d%%", s.Name(), task, base, confidence)
	return confidence, response, nil
}

// heuristicAdjust is the deterministic stand-in for model-driven reasoning:
// back off when a peer is far ahead, press the claim when every peer is
// behind, otherwise hold.
func (s *Specialist) heuristicAdjust(base int, history []protocol.NegotiationTurn) (int, string) {
	var (
		bestPeer     string
		bestPeerConf = -1
	)
	for _, turn := range history {
		if turn.Specialist == s.Name() {
			continue
		}
		if turn.Confidence > bestPeerConf {
			bestPeer, bestPeerConf = turn.Specialist, turn.Confidence
		}
	}

	switch {
	case bestPeerConf < 0:
		return protocol.ClampConfidence(base), "Initial assessment based on my capability match."
	case bestPeerConf >= base+20:
		return protocol.ClampConfidence(base - 10), fmt.Sprintf("Deferring: %s looks better positioned for this task.", bestPeer)
	case bestPeerConf < base:
		return protocol.ClampConfidence(base + 5), "No peer reports higher confidence, so I am raising my claim."
	default:
		return protocol.ClampConfidence(base), "Holding my initial assessment."
	}
}

// Adjustment phrasings recognized in model output, tried in order. The bare
// delta requires an explicit sign so that "decrease by 10" reaches its own
// pattern instead of matching "10" as a positive delta.
var adjustmentPatterns = []struct {
	re       *regexp.Regexp
	negative bool
	absolute bool
}{
	{re: regexp.MustCompile(`([+-]\d+)%?`)},
	{re: regexp.MustCompile(`increase by (\d+)`)},
	{re: regexp.MustCompile(`decrease by (\d+)`), negative: true},
	{re: regexp.MustCompile(`boost to (\d+)`), absolute: true},
	{re: regexp.MustCompile(`reduce to (\d+)`), absolute: true},
}

// ParseAdjustment extracts a confidence adjustment from free text. absolute
// means value is a target confidence rather than a delta. ok is false when
// no phrasing matched.
func ParseAdjustment(text string) (value int, absolute bool, ok bool) {
	lower := strings.ToLower(text)
	for _, p := range adjustmentPatterns {
		m := p.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(m[1], "+"))
		if err != nil {
			continue
		}
		if p.negative {
			n = -n
		}
		return n, p.absolute, true
	}
	return 0, false, false
}
