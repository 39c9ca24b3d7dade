// Package coordination implements the task-assignment protocol: the
// orchestrator receives mentions, opens a coordination thread, the collector
// aggregates the specialists' confidence reports under a deadline, and the
// resolver commits exactly one terminal outcome per task, negotiating first
// when every report is low. All traffic is plain text over the channel
// adapter; the wire formats live in the protocol package.
package coordination

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"hivemind/internal/channel"
	"hivemind/internal/config"
	"hivemind/internal/logging"
	"hivemind/internal/protocol"
	"hivemind/internal/registry"
)

// thinkingReaction is attached to the mention while the request resolves.
const thinkingReaction = "thinking_face"

// Task is the immutable record of one request, created when the orchestrator
// is mentioned and held until the coordination run (and, for assigned tasks,
// the execution it triggers) reaches a terminal state.
type Task struct {
	UserID    string            // requesting user
	Text      string            // cleaned request text
	Origin    channel.ThreadRef // conversation the request came from
	CreatedAt time.Time
	Context   []channel.Message // bounded prior-thread context, oldest first
}

// Options configures an Orchestrator.
type Options struct {
	Adapter     channel.Adapter
	UserID      string // the orchestrator's own mention target
	Name        string // display name, defaults to "Orchestrator"
	Channel     string // coordination channel ID
	Registry    *registry.Registry
	Negotiators []Negotiator // negotiation order; normally registry order
	Config      config.CoordinationConfig
	Clock       Clock // optional; tests inject a fake
}

// Orchestrator owns the request side of the protocol: it turns mentions into
// coordination threads, tracks active tasks, and drives each thread to a
// terminal outcome on its own worker goroutine.
type Orchestrator struct {
	adapter      channel.Adapter
	userID       string
	name         string
	channelID    string
	registry     *registry.Registry
	negotiators  []Negotiator
	collector    *Collector
	resolver     *Resolver
	mentionLimit int

	mu     sync.RWMutex
	active map[string]Task // coordination thread TS → task

	inflight sync.WaitGroup
}

// New validates the options and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Adapter == nil {
		return nil, errors.New("orchestrator requires a channel adapter")
	}
	if opts.UserID == "" {
		return nil, errors.New("orchestrator requires its own user ID")
	}
	if opts.Channel == "" {
		return nil, errors.New("orchestrator requires a coordination channel")
	}
	if opts.Registry == nil {
		return nil, errors.New("orchestrator requires a specialist registry")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name = "Orchestrator"
	}
	mentionLimit := opts.Config.MentionContextLimit
	if mentionLimit <= 0 {
		mentionLimit = 20
	}

	collector := NewCollector(opts.Adapter, opts.Channel, opts.Config)
	negotiation := NewCoordinator(opts.Adapter, opts.Channel, opts.Config)
	if opts.Clock != nil {
		collector.clock = opts.Clock
		negotiation.clock = opts.Clock
	}

	return &Orchestrator{
		adapter:      opts.Adapter,
		userID:       opts.UserID,
		name:         name,
		channelID:    opts.Channel,
		registry:     opts.Registry,
		negotiators:  opts.Negotiators,
		collector:    collector,
		resolver:     NewResolver(opts.Adapter, opts.Channel, opts.Registry, negotiation, opts.Config),
		mentionLimit: mentionLimit,
		active:       make(map[string]Task),
	}, nil
}

// SetNegotiators installs the negotiation roster, normally the specialists
// in registry order. Specialists need the orchestrator as their request
// directory before they exist as negotiators, so wiring happens in two
// steps; call this before Attach.
func (o *Orchestrator) SetNegotiators(negotiators []Negotiator) {
	o.mu.Lock()
	o.negotiators = append([]Negotiator(nil), negotiators...)
	o.mu.Unlock()
}

func (o *Orchestrator) negotiationRoster() []Negotiator {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.negotiators
}

// Attach subscribes the orchestrator to the adapter's event stream. Mentions
// are handled on worker goroutines; the returned stop function unsubscribes
// and waits for in-flight coordination runs.
func (o *Orchestrator) Attach(ctx context.Context) (stop func()) {
	cancel := o.adapter.Subscribe(func(msg channel.Message) {
		o.handleMessage(ctx, msg)
	})
	return func() {
		cancel()
		o.inflight.Wait()
	}
}

// Online announces readiness in the coordination channel.
func (o *Orchestrator) Online(ctx context.Context) error {
	_, err := o.adapter.Post(ctx, o.channelID, protocol.ComposeOnline(o.name), "")
	return err
}

// handleMessage routes one delivered message: human mentions of the
// orchestrator become tasks, and specialists' terminal status posts inside
// active coordination threads retire the matching task record.
func (o *Orchestrator) handleMessage(ctx context.Context, msg channel.Message) {
	if msg.BotID != "" {
		if msg.ChannelID == o.channelID && msg.ThreadTS != "" && protocol.IsTerminalStatus(msg.Text) {
			o.finish(msg.ThreadTS)
		}
		return
	}
	if !protocol.MentionsBot(msg.Text, o.userID) {
		return
	}

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.CoordinationError("panic handling mention %s: %v", msg.TS, r)
			}
		}()
		o.HandleMention(ctx, msg)
	}()
}

// HandleMention ingests one mention of the orchestrator: it cleans the
// request text, gathers bounded context when the mention sits inside an
// existing thread, opens the coordination thread, records the active task,
// and spawns the coordination run. A mention with no request text after
// cleaning is ignored.
func (o *Orchestrator) HandleMention(ctx context.Context, msg channel.Message) {
	task := o.cleanRequest(msg.Text)
	if task == "" {
		logging.Coordination("mention from <@%s> carried no request text; ignoring", msg.UserID)
		return
	}

	// Best effort; the protocol does not depend on the reaction.
	if err := o.adapter.AddReaction(ctx, msg.ChannelID, msg.TS, thinkingReaction); err != nil {
		logging.Coordination("could not add %s reaction: %v", thinkingReaction, err)
	}

	var history []channel.Message
	if msg.ThreadTS != "" {
		history = o.gatherMentionContext(ctx, msg)
	}

	text := protocol.ComposeCoordinationRequest(msg.UserID, task, o.specialistIDs())
	threadTS, err := o.adapter.Post(ctx, o.channelID, text, "")
	if err != nil {
		logging.CoordinationError("could not open coordination thread for %q: %v", task, err)
		return
	}

	o.mu.Lock()
	o.active[threadTS] = Task{
		UserID:    msg.UserID,
		Text:      task,
		Origin:    channel.ThreadRef{ChannelID: msg.ChannelID, ThreadTS: msg.Root()},
		CreatedAt: time.Now(),
		Context:   history,
	}
	o.mu.Unlock()

	logging.Coordination("task %q from <@%s> opened thread %s", task, msg.UserID, threadTS)

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		o.run(ctx, threadTS, task)
	}()
}

// run drives one coordination thread to its terminal outcome. Errors from
// collection or resolution are posted into the thread; a thread never
// resolves silently. Assigned tasks stay in the active map until the
// specialist's terminal status arrives, so the assignee can still resolve
// the request's origin while executing.
func (o *Orchestrator) run(ctx context.Context, threadTS, task string) {
	rl := logging.WithRequestID(logging.CategoryCoordination, threadTS)

	evaluations, err := o.collector.Collect(ctx, threadTS, o.registry.Names())
	if err != nil {
		rl.Error("collection failed: %v", err)
		o.postRunError(ctx, threadTS, err)
		o.finish(threadTS)
		return
	}
	rl.Info("collected %d/%d evaluations", len(evaluations), o.registry.Len())

	outcome, err := o.resolver.Resolve(ctx, threadTS, task, evaluations, o.negotiationRoster())
	if err != nil {
		rl.Error("resolution failed: %v", err)
		o.postRunError(ctx, threadTS, err)
		o.finish(threadTS)
		return
	}

	switch outcome.Kind {
	case OutcomeAssigned:
		rl.Info("assigned to %s at %d%%; awaiting execution", outcome.Specialist, outcome.Confidence)
	case OutcomeDeclined:
		rl.Info("declined; best was %s at %d%%", outcome.Specialist, outcome.Confidence)
		o.finish(threadTS)
	case OutcomeNoResponse:
		rl.Info("no specialists responded")
		o.finish(threadTS)
	}
}

func (o *Orchestrator) postRunError(ctx context.Context, threadTS string, err error) {
	if _, perr := o.adapter.Post(ctx, o.channelID, protocol.ComposeAssignmentError(err), threadTS); perr != nil {
		logging.CoordinationError("could not post assignment error to %s: %v", threadTS, perr)
	}
}

// cleanRequest strips the orchestrator's own mention and rewrites registered
// specialists' mention tokens as display names, so the task text reads
// naturally inside the coordination thread. Unknown mentions stay verbatim;
// they may be part of the request.
func (o *Orchestrator) cleanRequest(text string) string {
	text = strings.ReplaceAll(text, protocol.Mention(o.userID), "")
	for _, e := range o.registry.Entries() {
		text = strings.ReplaceAll(text, protocol.Mention(e.UserID), e.Name)
	}
	return strings.TrimSpace(text)
}

// gatherMentionContext fetches the thread the mention appeared in, keeping
// the most recent messages up to the configured bound. Fetch failures
// degrade to no context.
func (o *Orchestrator) gatherMentionContext(ctx context.Context, msg channel.Message) []channel.Message {
	msgs, err := o.adapter.ListReplies(ctx, msg.ChannelID, msg.Root())
	if err != nil {
		logging.Coordination("could not gather mention context from %s: %v", msg.Root(), err)
		return nil
	}
	if len(msgs) > o.mentionLimit {
		msgs = msgs[len(msgs)-o.mentionLimit:]
	}
	return msgs
}

func (o *Orchestrator) specialistIDs() []string {
	entries := o.registry.Entries()
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	return ids
}

// finish retires one task record.
func (o *Orchestrator) finish(threadTS string) {
	o.mu.Lock()
	_, ok := o.active[threadTS]
	delete(o.active, threadTS)
	o.mu.Unlock()
	if ok {
		logging.Coordination("task record for thread %s retired", threadTS)
	}
}

// Lookup resolves a coordination thread back to the conversation that
// spawned it. It satisfies the specialists' request-directory interface.
func (o *Orchestrator) Lookup(coordinationTS string) (channel.ThreadRef, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.active[coordinationTS]
	if !ok {
		return channel.ThreadRef{}, false
	}
	return t.Origin, true
}

// Request returns the active task anchored at a coordination thread.
func (o *Orchestrator) Request(coordinationTS string) (Task, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	t, ok := o.active[coordinationTS]
	return t, ok
}

// PendingCount reports how many tasks are awaiting a terminal state.
func (o *Orchestrator) PendingCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}
