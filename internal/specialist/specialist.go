// Package specialist implements one responder identity on the coordination
// channel: it watches the event stream for evaluation requests addressed to
// it, self-scores confidence from its keyword profile, posts reports, and
// executes tasks it wins. Confidence scoring is a pure function of the task
// text; everything with side effects runs on short-lived worker goroutines so
// the adapter's delivery loop is never blocked.
package specialist

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"hivemind/internal/channel"
	"hivemind/internal/config"
	"hivemind/internal/llm"
	"hivemind/internal/tools"
)

const defaultContextLimit = 50

// RequestDirectory resolves a coordination thread back to the conversation
// that spawned it, so an assigned specialist can fold the original thread
// into its task context. The orchestrator maintains the directory.
type RequestDirectory interface {
	Lookup(coordinationTS string) (channel.ThreadRef, bool)
}

// Options configures a Specialist.
type Options struct {
	Profile      config.SpecialistProfile
	Adapter      channel.Adapter
	Channel      string // coordination channel ID
	Orchestrator string // orchestrator bot's user ID; its posts drive dispatch
	LLM          llm.Client       // optional; nil keeps the deterministic paths only
	Search       tools.Searcher   // optional
	Weather      tools.Forecaster // optional
	Directory    RequestDirectory // optional; locates request origins for context
	ContextLimit int              // max origin-thread messages folded into context
}

// Specialist is one long-lived responder. A single value serves many tasks,
// concurrently; all mutable state is behind the mutex.
type Specialist struct {
	profile      config.SpecialistProfile
	adapter      channel.Adapter
	channelID    string
	orchestrator string
	llm          llm.Client
	search       tools.Searcher
	weather      tools.Forecaster
	directory    RequestDirectory
	contextLimit int

	mu       sync.RWMutex
	accepted map[string]struct{} // coordination threads already executed

	inflight sync.WaitGroup
}

// New validates the profile and builds a Specialist.
func New(opts Options) (*Specialist, error) {
	if err := opts.Profile.Validate(); err != nil {
		return nil, fmt.Errorf("specialist profile: %w", err)
	}
	if opts.Adapter == nil {
		return nil, errors.New("specialist requires a channel adapter")
	}
	if opts.Channel == "" {
		return nil, errors.New("specialist requires a coordination channel")
	}
	limit := opts.ContextLimit
	if limit <= 0 {
		limit = defaultContextLimit
	}
	return &Specialist{
		profile:      opts.Profile,
		adapter:      opts.Adapter,
		channelID:    opts.Channel,
		orchestrator: opts.Orchestrator,
		llm:          opts.LLM,
		search:       opts.Search,
		weather:      opts.Weather,
		directory:    opts.Directory,
		contextLimit: limit,
		accepted:     make(map[string]struct{}),
	}, nil
}

// Name returns the specialist's display name.
func (s *Specialist) Name() string { return s.profile.Name }

// UserID returns the bot user ID this specialist posts and is mentioned as.
func (s *Specialist) UserID() string { return s.profile.UserID }

// BotID returns the bot ID carried on this specialist's messages.
func (s *Specialist) BotID() string { return s.profile.BotID }

// capabilities renders the keyword specialties as a stable, readable list.
func (s *Specialist) capabilities() string {
	if len(s.profile.Keywords) == 0 {
		return "general assistance"
	}
	words := make([]string, 0, len(s.profile.Keywords))
	for kw := range s.profile.Keywords {
		words = append(words, kw)
	}
	sort.Strings(words)
	return strings.Join(words, ", ")
}

// accept records the first assignment for a thread. Returns false when this
// specialist has already executed (or started executing) the thread's task,
// which makes a replayed assignment message a no-op.
func (s *Specialist) accept(threadTS string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.accepted[threadTS]; dup {
		return false
	}
	s.accepted[threadTS] = struct{}{}
	return true
}

// Accepted reports whether this specialist has taken the assignment for a
// coordination thread.
func (s *Specialist) Accepted(threadTS string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accepted[threadTS]
	return ok
}
