package index

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/vpsinv/internal/domain"
)

// MemoryIndex keeps, per user, the last server list loaded from the
// repository. It is the read model queries are answered from.
//
// Every load is stamped with a token from Begin. Only the response carrying
// the latest token for a user may replace that user's view, so a slow load
// can never overwrite a newer one.
type MemoryIndex struct {
	mu         sync.RWMutex
	views      map[string]*view // userID -> view
	nextToken  uint64
	lastReload time.Time // Timestamp of the last applied load, any user
	now        func() time.Time
}

type view struct {
	servers    []domain.Server
	issued     uint64 // latest token handed out for this user
	loaded     bool
	stale      bool
	loadedAt   time.Time
	accessedAt time.Time
}

// Snapshot is a copy of one user's view.
type Snapshot struct {
	Servers  []domain.Server
	LoadedAt time.Time
	Loaded   bool
	Stale    bool
}

// NewMemoryIndex creates an empty index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		views: make(map[string]*view),
		now:   time.Now,
	}
}

func (idx *MemoryIndex) viewLocked(userID string) *view {
	v, ok := idx.views[userID]
	if !ok {
		v = &view{accessedAt: idx.now()}
		idx.views[userID] = v
	}
	return v
}

func (idx *MemoryIndex) issueLocked(v *view) uint64 {
	idx.nextToken++
	v.issued = idx.nextToken
	return v.issued
}

// Begin issues the token a load for userID must present to Apply or Fail.
// Tokens strictly increase.
func (idx *MemoryIndex) Begin(userID string) uint64 {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	return idx.issueLocked(idx.viewLocked(userID))
}

// Apply installs servers as userID's view if token is still the latest
// issued. It reports false when the response is stale and was discarded.
func (idx *MemoryIndex) Apply(userID string, token uint64, servers []domain.Server) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	v := idx.viewLocked(userID)
	if token != v.issued {
		return false
	}

	now := idx.now()
	v.servers = cloneServers(servers)
	v.loaded = true
	v.stale = false
	v.loadedAt = now
	idx.lastReload = now
	return true
}

// Fail records that the load holding token failed. The current view is kept
// but marked stale so the next query reloads it.
func (idx *MemoryIndex) Fail(userID string, token uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if v, ok := idx.views[userID]; ok && token == v.issued {
		v.stale = true
	}
}

// Mutate applies fn to userID's view after a successful write. It issues a
// fresh token, which invalidates every load started before the write.
//
// When the user has no loaded view there is nothing to patch: the view is
// only marked stale and fn is not called.
func (idx *MemoryIndex) Mutate(userID string, fn func([]domain.Server) []domain.Server) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	v := idx.viewLocked(userID)
	idx.issueLocked(v)
	if !v.loaded {
		v.stale = true
		return
	}
	v.servers = fn(cloneServers(v.servers))
}

// Invalidate marks userID's view stale and discards in-flight loads.
func (idx *MemoryIndex) Invalidate(userID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	v, ok := idx.views[userID]
	if !ok {
		return
	}
	idx.issueLocked(v)
	v.stale = true
}

// Get returns a copy of userID's view and refreshes its access time.
func (idx *MemoryIndex) Get(userID string) (Snapshot, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	v, ok := idx.views[userID]
	if !ok || !v.loaded {
		return Snapshot{}, false
	}
	v.accessedAt = idx.now()
	return Snapshot{
		Servers:  cloneServers(v.servers),
		LoadedAt: v.loadedAt,
		Loaded:   v.loaded,
		Stale:    v.stale,
	}, true
}

// Evict drops userID's view
func (idx *MemoryIndex) Evict(userID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.views, userID)
}

// EvictIdle drops views not accessed for longer than idle and returns how
// many were removed.
func (idx *MemoryIndex) EvictIdle(idle time.Duration) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cutoff := idx.now().Add(-idle)
	removed := 0
	for userID, v := range idx.views {
		if v.accessedAt.Before(cutoff) {
			delete(idx.views, userID)
			removed++
		}
	}
	return removed
}

// Count returns the number of views held
func (idx *MemoryIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.views)
}

// GetLastReload returns the timestamp of the last applied load
func (idx *MemoryIndex) GetLastReload() time.Time {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.lastReload
}

func cloneServers(servers []domain.Server) []domain.Server {
	out := make([]domain.Server, len(servers))
	for i, s := range servers {
		out[i] = s.Clone()
	}
	return out
}
