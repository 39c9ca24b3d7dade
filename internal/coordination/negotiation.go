package coordination

import (
	"context"
	"time"

	"hivemind/internal/channel"
	"hivemind/internal/config"
	"hivemind/internal/logging"
	"hivemind/internal/protocol"
)

// =============================================================================
// NEGOTIATION COORDINATOR
// =============================================================================

// Negotiator is the negotiation-capable face of a specialist: it re-scores a
// task after reading what its peers have claimed so far.
type Negotiator interface {
	Name() string
	CollaborativeEvaluate(ctx context.Context, task string, history []protocol.NegotiationTurn) (int, string, error)
}

// Coordinator runs bounded rounds of collaborative re-evaluation when the
// initial confidence reports are all low. Each turn is appended to a shared
// transcript visible to every later turn and posted into the thread so
// observers can follow the negotiation.
type Coordinator struct {
	adapter   channel.Adapter
	channelID string
	rounds    int
	target    int
	pause     time.Duration
	clock     Clock
}

// NewCoordinator builds a negotiation coordinator for the coordination
// channel.
func NewCoordinator(adapter channel.Adapter, channelID string, cfg config.CoordinationConfig) *Coordinator {
	return &Coordinator{
		adapter:   adapter,
		channelID: channelID,
		rounds:    cfg.NegotiationRounds,
		target:    cfg.NegotiationTarget,
		pause:     cfg.GetRoundPause(),
		clock:     realClock{},
	}
}

// Negotiate runs up to the configured number of rounds over the specialists
// in the given order. The moment any turn reaches the target confidence the
// negotiation settles on that specialist, mid-round; nobody later in the
// round is asked again. A specialist whose re-evaluation fails scores zero
// for the turn and the round carries on. After the final round the latest
// statement per specialist decides, ties going to the earlier position in
// the given order.
//
// An empty winner name means negotiation produced nobody; the caller falls
// back to the initial reports.
func (n *Coordinator) Negotiate(ctx context.Context, task, threadTS string, specialists []Negotiator) (winner string, confidence int) {
	if len(specialists) == 0 {
		return "", 0
	}
	rl := logging.WithRequestID(logging.CategoryNegotiation, threadTS)
	rl.Info("opening negotiation over %d specialists, %d rounds, target %d%%", len(specialists), n.rounds, n.target)

	history := make([]protocol.NegotiationTurn, 0, n.rounds*len(specialists))

	for round := 1; round <= n.rounds; round++ {
		for _, s := range specialists {
			if ctx.Err() != nil {
				rl.Warn("negotiation abandoned: %v", ctx.Err())
				return "", 0
			}

			conf, reasoning, err := s.CollaborativeEvaluate(ctx, task, history)
			if err != nil {
				rl.Error("%s failed to re-evaluate: %v", s.Name(), err)
				conf, reasoning = 0, "Error in collaborative evaluation"
			}
			conf = protocol.ClampConfidence(conf)
			history = append(history, protocol.NegotiationTurn{
				Round:      round,
				Specialist: s.Name(),
				Confidence: conf,
				Reasoning:  reasoning,
			})

			update := protocol.ComposeNegotiationUpdate(s.Name(), round, conf, reasoning)
			if _, perr := n.adapter.Post(ctx, n.channelID, update, threadTS); perr != nil {
				rl.Error("could not post %s's round %d statement: %v", s.Name(), round, perr)
			}

			if conf >= n.target {
				rl.Info("%s reached %d%% in round %d; settled", s.Name(), conf, round)
				return s.Name(), conf
			}
		}
		n.clock.Sleep(ctx, n.pause)
	}

	latest := make(map[string]int, len(specialists))
	for _, turn := range history {
		latest[turn.Specialist] = turn.Confidence
	}
	confidence = -1
	for _, s := range specialists {
		if c, ok := latest[s.Name()]; ok && c > confidence {
			winner, confidence = s.Name(), c
		}
	}
	if winner == "" {
		return "", 0
	}
	rl.Info("no one reached target; soft winner %s at %d%%", winner, confidence)
	return winner, confidence
}
