// Package registry tracks the specialist roster. Registration order is
// significant: it is the tie-break order when two specialists report the
// same confidence, so the roster should be registered in priority order.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"hivemind/internal/config"
	"hivemind/internal/logging"
	"hivemind/internal/protocol"
)

// Entry is one registered specialist.
type Entry struct {
	Name    string // display name, as posted in reports
	UserID  string // mention target
	BotID   string // stamped on the specialist's own posts
	Profile config.SpecialistProfile
}

// Registry is the ordered specialist roster. Safe for concurrent use;
// normally populated once at startup and read everywhere after.
type Registry struct {
	mu     sync.RWMutex
	order  []string // lowercase names in registration order
	byName map[string]*Entry
	byUser map[string]*Entry
	byBot  map[string]*Entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*Entry),
		byUser: make(map[string]*Entry),
		byBot:  make(map[string]*Entry),
	}
}

// FromProfiles builds a registry from profiles in the given order.
func FromProfiles(profiles []config.SpecialistProfile) (*Registry, error) {
	r := New()
	for i := range profiles {
		if err := r.Add(profiles[i]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add registers one specialist. Names are matched case-insensitively, so
// "grok" and "Grok" collide.
func (r *Registry) Add(p config.SpecialistProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	key := strings.ToLower(p.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[key]; exists {
		return fmt.Errorf("specialist %q already registered", p.Name)
	}
	if _, exists := r.byUser[p.UserID]; exists {
		return fmt.Errorf("user ID %q already registered", p.UserID)
	}
	if _, exists := r.byBot[p.BotID]; exists {
		return fmt.Errorf("bot ID %q already registered", p.BotID)
	}

	e := &Entry{Name: p.Name, UserID: p.UserID, BotID: p.BotID, Profile: p}
	r.order = append(r.order, key)
	r.byName[key] = e
	r.byUser[p.UserID] = e
	r.byBot[p.BotID] = e

	logging.Registry("registered specialist %s (user=%s bot=%s keywords=%d)",
		p.Name, p.UserID, p.BotID, len(p.Keywords))
	return nil
}

// ByName looks up a specialist by display name, case-insensitively.
func (r *Registry) ByName(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[strings.ToLower(name)]
	return e, ok
}

// ByUserID looks up a specialist by mention target.
func (r *Registry) ByUserID(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byUser[id]
	return e, ok
}

// ByBotID looks up a specialist by the bot ID on its posts.
func (r *Registry) ByBotID(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byBot[id]
	return e, ok
}

// IsSpecialistBot reports whether the bot ID belongs to a registered
// specialist.
func (r *Registry) IsSpecialistBot(id string) bool {
	_, ok := r.ByBotID(id)
	return ok
}

// Names returns display names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.order))
	for _, key := range r.order {
		names = append(names, r.byName[key].Name)
	}
	return names
}

// Entries returns all entries in registration order.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]*Entry, 0, len(r.order))
	for _, key := range r.order {
		entries = append(entries, r.byName[key])
	}
	return entries
}

// Len returns the roster size.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Rank returns the registration index of a specialist, or -1 if unknown.
// Lower rank wins confidence ties.
func (r *Registry) Rank(name string) int {
	key := strings.ToLower(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i, k := range r.order {
		if k == key {
			return i
		}
	}
	return -1
}

// MentionAll returns a space-separated mention of every specialist, in
// registration order, for the coordination request.
func (r *Registry) MentionAll() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mentions := make([]string, 0, len(r.order))
	for _, key := range r.order {
		mentions = append(mentions, protocol.Mention(r.byName[key].UserID))
	}
	return strings.Join(mentions, " ")
}
