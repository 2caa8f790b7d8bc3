package prompt

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of conversations tracked at once.
const DefaultCacheSize = 1024

// sessionState is the per-conversation injection state.
type sessionState struct {
	profileInjected bool
	reminded        map[string]bool
}

// SessionCache tracks, per conversation, whether the full profile has been
// injected and which fields have produced a drift reminder. It is bounded;
// evicting a conversation only means its profile may be injected again.
type SessionCache struct {
	mu    sync.Mutex
	items *lru.Cache[string, *sessionState]
}

// NewSessionCache returns a cache holding at most size conversations. A size
// below one uses DefaultCacheSize.
func NewSessionCache(size int) *SessionCache {
	if size < 1 {
		size = DefaultCacheSize
	}
	items, err := lru.New[string, *sessionState](size)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &SessionCache{items: items}
}

func (c *SessionCache) state(id string) *sessionState {
	if s, ok := c.items.Get(id); ok {
		return s
	}
	s := &sessionState{reminded: make(map[string]bool)}
	c.items.Add(id, s)
	return s
}

// ProfileInjected reports whether the full profile was injected for id.
func (c *SessionCache) ProfileInjected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.items.Get(id)
	return ok && s.profileInjected
}

// MarkProfileInjected records the one-time profile injection for id. It
// reports false when the profile was already marked.
func (c *SessionCache) MarkProfileInjected(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state(id)
	if s.profileInjected {
		return false
	}
	s.profileInjected = true
	return true
}

// MarkReminded records a drift reminder for field in conversation id. It
// reports false when that field was already reminded.
func (c *SessionCache) MarkReminded(id, field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state(id)
	if s.reminded[field] {
		return false
	}
	s.reminded[field] = true
	return true
}

// Reminded reports whether field already produced a reminder for id.
func (c *SessionCache) Reminded(id, field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.items.Get(id)
	return ok && s.reminded[field]
}

// Len returns the number of tracked conversations.
func (c *SessionCache) Len() int {
	return c.items.Len()
}
