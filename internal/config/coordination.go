package config

import (
	"fmt"
	"time"
)

// CoordinationConfig tunes the task-assignment protocol: how long the
// collector polls, when negotiation kicks in, and how assignment is gated.
type CoordinationConfig struct {
	// Channel is the coordination channel ID all protocol traffic flows
	// through.
	Channel string `yaml:"channel"`

	// EvaluationTimeout bounds one collection pass (wall clock, extended by
	// rate-limit waits, never shortened).
	EvaluationTimeout string `yaml:"evaluation_timeout"`

	// InitialDelay is the pause before the first poll, giving specialists a
	// head start on the round trip.
	InitialDelay string `yaml:"initial_delay"`

	// MaxRetryAfter caps a server-provided rate-limit delay so one bad
	// header cannot park the collector for minutes.
	MaxRetryAfter string `yaml:"max_retry_after"`

	// MinConfidence gates assignment: a winner below it is declined.
	MinConfidence int `yaml:"min_confidence"`

	// DiscussionThreshold triggers negotiation when the best initial
	// confidence is strictly below it.
	DiscussionThreshold int `yaml:"discussion_threshold"`

	// NegotiationRounds bounds the negotiation loop.
	NegotiationRounds int `yaml:"negotiation_rounds"`

	// NegotiationTarget ends negotiation the moment any specialist reaches it.
	NegotiationTarget int `yaml:"negotiation_target"`

	// RoundPause is the mandatory wait between negotiation rounds.
	RoundPause string `yaml:"round_pause"`

	// ContextLimit bounds how many messages of history an assigned
	// specialist gathers per source thread.
	ContextLimit int `yaml:"context_limit"`

	// MentionContextLimit bounds prior-thread context gathered when the
	// orchestrator is mentioned inside an existing thread.
	MentionContextLimit int `yaml:"mention_context_limit"`
}

// DefaultCoordinationConfig mirrors the tuned production values.
func DefaultCoordinationConfig() CoordinationConfig {
	return CoordinationConfig{
		EvaluationTimeout:   "8s",
		InitialDelay:        "200ms",
		MaxRetryAfter:       "10s",
		MinConfidence:       30,
		DiscussionThreshold: 50,
		NegotiationRounds:   3,
		NegotiationTarget:   50,
		RoundPause:          "1s",
		ContextLimit:        50,
		MentionContextLimit: 20,
	}
}

// GetEvaluationTimeout returns the evaluation timeout as a duration.
func (c *CoordinationConfig) GetEvaluationTimeout() time.Duration {
	d, err := time.ParseDuration(c.EvaluationTimeout)
	if err != nil || d <= 0 {
		return 8 * time.Second
	}
	return d
}

// GetInitialDelay returns the pre-poll delay as a duration.
func (c *CoordinationConfig) GetInitialDelay() time.Duration {
	d, err := time.ParseDuration(c.InitialDelay)
	if err != nil || d < 0 {
		return 200 * time.Millisecond
	}
	return d
}

// GetMaxRetryAfter returns the rate-limit delay cap as a duration.
func (c *CoordinationConfig) GetMaxRetryAfter() time.Duration {
	d, err := time.ParseDuration(c.MaxRetryAfter)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// GetRoundPause returns the between-rounds pause as a duration.
func (c *CoordinationConfig) GetRoundPause() time.Duration {
	d, err := time.ParseDuration(c.RoundPause)
	if err != nil || d < 0 {
		return time.Second
	}
	return d
}

// Validate checks threshold sanity.
func (c *CoordinationConfig) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return fmt.Errorf("min_confidence %d outside [0,100]", c.MinConfidence)
	}
	if c.DiscussionThreshold < 0 || c.DiscussionThreshold > 100 {
		return fmt.Errorf("discussion_threshold %d outside [0,100]", c.DiscussionThreshold)
	}
	if c.NegotiationTarget < 0 || c.NegotiationTarget > 100 {
		return fmt.Errorf("negotiation_target %d outside [0,100]", c.NegotiationTarget)
	}
	if c.NegotiationRounds < 1 {
		return fmt.Errorf("negotiation_rounds must be at least 1, got %d", c.NegotiationRounds)
	}
	return nil
}
