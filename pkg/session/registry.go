// Package session provides in-memory conversation registries for the planner
// and worker roles. Histories live for the duration of the process; durable
// persistence is out of scope.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"forgeloop/pkg/llm"
)

// Turn is a single conversation turn.
type Turn struct {
	Role    llm.Role `json:"role"`
	Content string   `json:"content"`
}

// Options bounds a registry. Zero values disable the corresponding bound.
type Options struct {
	// MaxSessions caps the number of live sessions; the oldest-idle session
	// is evicted when the cap would be exceeded.
	MaxSessions int
	// TTL evicts sessions idle longer than this on access.
	TTL time.Duration
}

type entry struct {
	turns    []Turn
	lastUsed time.Time
}

// Registry is a keyed in-memory turn-history store. It is safe for
// concurrent use; each session key has a single logical owner, so the
// registry guards map structure, not per-session ordering.
type Registry struct {
	mu   sync.RWMutex
	m    map[string]*entry
	opts Options
	now  func() time.Time
}

// NewRegistry creates a registry with the given bounds.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		m:    make(map[string]*entry),
		opts: opts,
		now:  time.Now,
	}
}

// Mint returns a fresh session identifier.
func Mint() string {
	return uuid.NewString()
}

// Ensure returns id, minting a new identifier when id is empty, and
// guarantees a live session exists under the returned key.
func (r *Registry) Ensure(id string) string {
	if id == "" {
		id = Mint()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.m[id]; ok {
		e.lastUsed = r.now()
		return id
	}
	r.evictLocked()
	r.m[id] = &entry{lastUsed: r.now()}
	return id
}

// Append adds turns to the session's history, creating the session if needed.
func (r *Registry) Append(id string, turns ...Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.m[id]
	if !ok {
		r.evictLocked()
		e = &entry{}
		r.m[id] = e
	}
	e.turns = append(e.turns, turns...)
	e.lastUsed = r.now()
}

// History returns a copy of the session's turns, oldest first. A missing
// session yields an empty history.
func (r *Registry) History(id string) []Turn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.m[id]
	if !ok {
		return nil
	}
	out := make([]Turn, len(e.turns))
	copy(out, e.turns)
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// evictLocked enforces the TTL and capacity bounds. Callers hold the write lock.
func (r *Registry) evictLocked() {
	if r.opts.TTL > 0 {
		cutoff := r.now().Add(-r.opts.TTL)
		for id, e := range r.m {
			if e.lastUsed.Before(cutoff) {
				delete(r.m, id)
			}
		}
	}

	if r.opts.MaxSessions > 0 {
		for len(r.m) >= r.opts.MaxSessions {
			var oldestID string
			var oldest time.Time
			for id, e := range r.m {
				if oldestID == "" || e.lastUsed.Before(oldest) {
					oldestID = id
					oldest = e.lastUsed
				}
			}
			if oldestID == "" {
				return
			}
			delete(r.m, oldestID)
		}
	}
}

// KeyMap assigns stable session identifiers to filenames so each planned
// file keeps one conversation across rounds.
type KeyMap struct {
	mu sync.Mutex
	m  map[string]string
}

// NewKeyMap creates an empty filename-to-session mapping.
func NewKeyMap() *KeyMap {
	return &KeyMap{m: make(map[string]string)}
}

// Ensure returns the session id for filename, minting one on first use.
func (k *KeyMap) Ensure(filename string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if id, ok := k.m[filename]; ok {
		return id
	}
	id := Mint()
	k.m[filename] = id
	return id
}

// Snapshot returns a copy of the filename-to-session mapping.
func (k *KeyMap) Snapshot() map[string]string {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[string]string, len(k.m))
	for f, id := range k.m {
		out[f] = id
	}
	return out
}

// Restore seeds the mapping from an existing snapshot, overwriting entries
// for filenames present in m.
func (k *KeyMap) Restore(m map[string]string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for f, id := range m {
		if id != "" {
			k.m[f] = id
		}
	}
}
