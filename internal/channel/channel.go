// Package channel defines the messaging surface the coordination core runs
// on: an append-only, shared, replayable store of timestamped text messages
// organized into threads, plus an event stream.
//
// The production transport (a chat SDK) lives outside this repository; the
// core consumes only the Adapter interface. The in-memory Hub in this package
// implements the same contract for tests, the console, and local runs.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Message is one channel message, as returned by reply listings and as
// delivered on the event stream.
type Message struct {
	TS        string // adapter-assigned timestamp key, unique per channel
	ThreadTS  string // root timestamp for replies, empty for thread roots
	ChannelID string
	Text      string
	UserID    string // posting user ID (bots post under their bot user ID)
	BotID     string // non-empty when the poster is a bot
}

// Root returns the timestamp of the thread this message belongs to.
func (m Message) Root() string {
	if m.ThreadTS != "" {
		return m.ThreadTS
	}
	return m.TS
}

// ThreadRef points at one thread in one channel.
type ThreadRef struct {
	ChannelID string
	ThreadTS  string
}

// Handler receives messages from an event subscription. Delivery is
// at-least-once and handlers run on adapter-owned goroutines; anything slow
// must be spun off so the delivery loop is never held up.
type Handler func(msg Message)

// Adapter is the minimal surface the coordination core consumes. One Adapter
// value is bound to one posting identity.
type Adapter interface {
	// Post appends a message. A non-empty threadTS makes it a reply to that
	// thread's root. Returns the adapter-assigned timestamp of the new
	// message.
	Post(ctx context.Context, channelID, text, threadTS string) (string, error)

	// ListReplies returns a thread's root message followed by every reply
	// visible so far, in timestamp order. Re-fetching returns a superset of
	// earlier results. May fail with *RateLimitError.
	ListReplies(ctx context.Context, channelID, threadTS string) ([]Message, error)

	// AddReaction attaches an emoji reaction to a message. Best effort.
	AddReaction(ctx context.Context, channelID, ts, emoji string) error

	// Subscribe registers a handler for every message posted after the call.
	// The returned cancel function stops delivery and releases the
	// subscription.
	Subscribe(fn Handler) (cancel func())
}

// RateLimitError is the distinguishable backpressure signal from the
// transport. Callers must wait RetryAfter and retry the same call without
// counting the delay against their own deadlines.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// AsRateLimit unwraps err as a *RateLimitError if it is one.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

var (
	// ErrThreadNotFound is returned when a reply targets a root timestamp
	// that does not exist in the channel.
	ErrThreadNotFound = errors.New("channel: thread not found")

	// ErrClosed is returned by operations on a closed hub.
	ErrClosed = errors.New("channel: hub closed")
)
