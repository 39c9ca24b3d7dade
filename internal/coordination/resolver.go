package coordination

import (
	"context"
	"fmt"
	"sort"

	"hivemind/internal/channel"
	"hivemind/internal/config"
	"hivemind/internal/logging"
	"hivemind/internal/protocol"
	"hivemind/internal/registry"
)

// =============================================================================
// ASSIGNMENT RESOLVER
// =============================================================================

// OutcomeKind discriminates the terminal states of a coordination run.
type OutcomeKind string

const (
	OutcomeAssigned   OutcomeKind = "assigned"
	OutcomeDeclined   OutcomeKind = "declined"
	OutcomeNoResponse OutcomeKind = "no_response"
)

// Outcome is the terminal decision for one task. Exactly one Outcome is
// produced, and one message posted, per coordination run.
type Outcome struct {
	Kind       OutcomeKind
	Specialist string // winner for Assigned, best reporter for Declined
	Confidence int
}

// Resolver turns a confidence mapping into the thread's terminal outcome and
// posts it. Below the discussion threshold it hands the decision to the
// negotiation coordinator first and only falls back to the initial reports
// when negotiation produces nobody qualified.
type Resolver struct {
	adapter             channel.Adapter
	channelID           string
	registry            *registry.Registry
	negotiation         *Coordinator
	minConfidence       int
	discussionThreshold int
}

// NewResolver builds a resolver. The negotiation coordinator is required;
// whether it runs is decided per task by the discussion threshold.
func NewResolver(adapter channel.Adapter, channelID string, reg *registry.Registry, negotiation *Coordinator, cfg config.CoordinationConfig) *Resolver {
	return &Resolver{
		adapter:             adapter,
		channelID:           channelID,
		registry:            reg,
		negotiation:         negotiation,
		minConfidence:       cfg.MinConfidence,
		discussionThreshold: cfg.DiscussionThreshold,
	}
}

// Resolve applies the assignment policy to one collection pass and posts the
// result into the thread.
//
// An empty mapping is a no-response outcome. A best report below the
// discussion threshold triggers negotiation; a negotiation winner clearing
// the minimum confidence is committed, anything less falls back to the
// initial reports. The fallback assigns the highest initial reporter if it
// clears the minimum confidence and belongs to the registry, and declines
// otherwise.
//
// The assignment post is the one write that triggers execution; its failure
// is logged, not retried, and never fails the run. A failed decline post is
// returned as an error so the caller can still surface something.
func (r *Resolver) Resolve(ctx context.Context, threadTS, task string, evaluations map[string]int, negotiators []Negotiator) (Outcome, error) {
	rl := logging.WithRequestID(logging.CategoryCoordination, threadTS)

	if len(evaluations) == 0 {
		rl.Info("no responses collected")
		if _, err := r.adapter.Post(ctx, r.channelID, protocol.NoResponseText, threadTS); err != nil {
			rl.Error("could not post no-response notice: %v", err)
		}
		return Outcome{Kind: OutcomeNoResponse}, nil
	}

	bestName, bestConfidence := r.argmax(evaluations)

	if bestConfidence < r.discussionThreshold {
		rl.Info("best report %s at %d%% is below the discussion threshold %d%%; negotiating",
			bestName, bestConfidence, r.discussionThreshold)
		winner, confidence := r.negotiation.Negotiate(ctx, task, threadTS, negotiators)
		if winner != "" && confidence >= r.minConfidence {
			return r.commit(ctx, rl, threadTS, winner, confidence)
		}
		rl.Info("negotiation produced no qualified winner; falling back to initial reports")
	}

	if bestConfidence >= r.minConfidence {
		if _, known := r.registry.ByName(bestName); known {
			return r.commit(ctx, rl, threadTS, bestName, bestConfidence)
		}
		rl.Error("best reporter %q is not a registered specialist; declining", bestName)
	}

	rl.Info("declining: best %s at %d%%, minimum %d%%", bestName, bestConfidence, r.minConfidence)
	decline := protocol.ComposeDecline(bestName, bestConfidence, r.minConfidence)
	if _, err := r.adapter.Post(ctx, r.channelID, decline, threadTS); err != nil {
		return Outcome{}, fmt.Errorf("posting decline: %w", err)
	}
	return Outcome{Kind: OutcomeDeclined, Specialist: bestName, Confidence: bestConfidence}, nil
}

// commit posts the ASSIGNED message for the winner. Post failures are logged
// and the outcome stands; there is no second post that could double-trigger
// execution.
func (r *Resolver) commit(ctx context.Context, rl *logging.RequestLogger, threadTS, name string, confidence int) (Outcome, error) {
	entry, ok := r.registry.ByName(name)
	if !ok {
		return Outcome{}, fmt.Errorf("winner %q is not a registered specialist", name)
	}
	rl.Info("assigning to %s at %d%%", entry.Name, confidence)
	if _, err := r.adapter.Post(ctx, r.channelID, protocol.ComposeAssignment(entry.UserID), threadTS); err != nil {
		rl.Error("could not post assignment: %v", err)
	}
	return Outcome{Kind: OutcomeAssigned, Specialist: entry.Name, Confidence: confidence}, nil
}

// argmax picks the highest-confidence reporter. Ties break by registry
// order, so the outcome is deterministic run to run; reporters outside the
// registry are considered after registered ones, in name order.
func (r *Resolver) argmax(evaluations map[string]int) (string, int) {
	best, bestConfidence := "", -1
	for _, e := range r.registry.Entries() {
		if c, ok := evaluations[e.Name]; ok && c > bestConfidence {
			best, bestConfidence = e.Name, c
		}
	}

	outsiders := make([]string, 0, len(evaluations))
	for name := range evaluations {
		if _, known := r.registry.ByName(name); !known {
			outsiders = append(outsiders, name)
		}
	}
	sort.Strings(outsiders)
	for _, name := range outsiders {
		if evaluations[name] > bestConfidence {
			best, bestConfidence = name, evaluations[name]
		}
	}
	return best, bestConfidence
}
