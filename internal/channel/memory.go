package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IN-MEMORY HUB
// =============================================================================

// Hub is an in-memory message store shared by any number of identities. It
// implements the transport semantics the core depends on: append-only
// threads, reply listings that are supersets over time, and an at-least-once
// event stream that never blocks posters on slow handlers.
type Hub struct {
	mu          sync.RWMutex
	threads     map[string][]Message // threadKey → root followed by replies
	log         map[string][]Message // channelID → every message in post order
	reactions   map[string][]string  // threadKey(ts) → emoji names
	subscribers map[string]*subscriber
	seq         uint64
	closed      bool

	hookMu      sync.RWMutex
	repliesHook func(channelID, threadTS string) error
	postHook    func(channelID, text, threadTS string) error

	wg sync.WaitGroup
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		threads:     make(map[string][]Message),
		log:         make(map[string][]Message),
		reactions:   make(map[string][]string),
		subscribers: make(map[string]*subscriber),
	}
}

func threadKey(channelID, ts string) string {
	return channelID + "\x00" + ts
}

// nextTS mints a Slack-style "seconds.sequence" timestamp. The sequence part
// keeps timestamps unique and ordered within one process.
func (h *Hub) nextTS() string {
	h.seq++
	return fmt.Sprintf("%d.%06d", time.Now().Unix(), h.seq)
}

// Client binds an identity to the hub. Bots pass their bot user ID plus a
// bot ID; plain users pass an empty botID.
func (h *Hub) Client(userID, botID string) *Client {
	return &Client{hub: h, userID: userID, botID: botID}
}

// History returns every message posted to a channel, in post order.
func (h *Hub) History(channelID string) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Message, len(h.log[channelID]))
	copy(out, h.log[channelID])
	return out
}

// Reactions returns the emoji reactions attached to one message.
func (h *Hub) Reactions(channelID, ts string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	src := h.reactions[threadKey(channelID, ts)]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// SetRepliesHook installs a fault hook consulted before every reply listing.
// A non-nil return is surfaced to the caller; used to simulate rate limiting.
func (h *Hub) SetRepliesHook(fn func(channelID, threadTS string) error) {
	h.hookMu.Lock()
	defer h.hookMu.Unlock()
	h.repliesHook = fn
}

// SetPostHook installs a fault hook consulted before every post.
func (h *Hub) SetPostHook(fn func(channelID, text, threadTS string) error) {
	h.hookMu.Lock()
	defer h.hookMu.Unlock()
	h.postHook = fn
}

// Close stops every subscription and waits for delivery goroutines to drain.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		subs = append(subs, s)
	}
	h.subscribers = make(map[string]*subscriber)
	h.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	h.wg.Wait()
}

func (h *Hub) post(ctx context.Context, userID, botID, channelID, text, threadTS string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h.hookMu.RLock()
	hook := h.postHook
	h.hookMu.RUnlock()
	if hook != nil {
		if err := hook(channelID, text, threadTS); err != nil {
			return "", err
		}
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrClosed
	}
	if threadTS != "" {
		if _, ok := h.threads[threadKey(channelID, threadTS)]; !ok {
			h.mu.Unlock()
			return "", ErrThreadNotFound
		}
	}

	msg := Message{
		TS:        h.nextTS(),
		ThreadTS:  threadTS,
		ChannelID: channelID,
		Text:      text,
		UserID:    userID,
		BotID:     botID,
	}
	if threadTS == "" {
		h.threads[threadKey(channelID, msg.TS)] = []Message{msg}
	} else {
		key := threadKey(channelID, threadTS)
		h.threads[key] = append(h.threads[key], msg)
	}
	h.log[channelID] = append(h.log[channelID], msg)

	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.enqueue(msg)
	}
	return msg.TS, nil
}

func (h *Hub) listReplies(ctx context.Context, channelID, threadTS string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.hookMu.RLock()
	hook := h.repliesHook
	h.hookMu.RUnlock()
	if hook != nil {
		if err := hook(channelID, threadTS); err != nil {
			return nil, err
		}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrClosed
	}
	msgs, ok := h.threads[threadKey(channelID, threadTS)]
	if !ok {
		return nil, ErrThreadNotFound
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (h *Hub) addReaction(ctx context.Context, channelID, ts, emoji string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	key := threadKey(channelID, ts)
	h.reactions[key] = append(h.reactions[key], emoji)
	return nil
}

func (h *Hub) subscribe(fn Handler) (cancel func()) {
	s := &subscriber{
		fn:     fn,
		notify: make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	id := uuid.NewString()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return func() {}
	}
	h.subscribers[id] = s
	h.wg.Add(1)
	h.mu.Unlock()

	go s.run(&h.wg)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
			s.stop()
		})
	}
}

// =============================================================================
// CLIENT (one identity on the hub)
// =============================================================================

// Client is one identity's view of the hub. It satisfies Adapter.
type Client struct {
	hub    *Hub
	userID string
	botID  string
}

var _ Adapter = (*Client)(nil)

// UserID returns the identity's user ID.
func (c *Client) UserID() string { return c.userID }

// BotID returns the identity's bot ID, empty for plain users.
func (c *Client) BotID() string { return c.botID }

// Post appends a message under this client's identity.
func (c *Client) Post(ctx context.Context, channelID, text, threadTS string) (string, error) {
	return c.hub.post(ctx, c.userID, c.botID, channelID, text, threadTS)
}

// ListReplies fetches a thread's root and replies.
func (c *Client) ListReplies(ctx context.Context, channelID, threadTS string) ([]Message, error) {
	return c.hub.listReplies(ctx, channelID, threadTS)
}

// AddReaction attaches an emoji to a message.
func (c *Client) AddReaction(ctx context.Context, channelID, ts, emoji string) error {
	return c.hub.addReaction(ctx, channelID, ts, emoji)
}

// Subscribe registers a handler for all hub traffic.
func (c *Client) Subscribe(fn Handler) (cancel func()) {
	return c.hub.subscribe(fn)
}

// =============================================================================
// SUBSCRIBER DELIVERY
// =============================================================================

// subscriber decouples posting from handler execution: enqueue never blocks,
// and one goroutine per subscription delivers in FIFO order.
type subscriber struct {
	mu    sync.Mutex
	queue []Message

	fn     Handler
	notify chan struct{}
	quit   chan struct{}
	once   sync.Once
}

func (s *subscriber) enqueue(msg Message) {
	s.mu.Lock()
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.quit) })
}

func (s *subscriber) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			msg := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			s.fn(msg)
		}
		select {
		case <-s.notify:
		case <-s.quit:
			// Drain whatever arrived before the stop to keep delivery
			// at-least-once for accepted posts.
			s.mu.Lock()
			rest := s.queue
			s.queue = nil
			s.mu.Unlock()
			for _, msg := range rest {
				s.fn(msg)
			}
			return
		}
	}
}
