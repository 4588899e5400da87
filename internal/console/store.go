package console

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Store keeps one workspace per session and screen. Evicted or expired
// workspaces cancel their in-flight fetch.
type Store struct {
	registry *Registry
	deps     Dependencies
	cache    *expirable.LRU[string, *Workspace]
	creating singleflight.Group
}

// NewStore bounds the store to size workspaces living at most ttl since
// their last creation.
func NewStore(registry *Registry, deps Dependencies, size int, ttl time.Duration) *Store {
	if size <= 0 {
		size = 512
	}
	return &Store{
		registry: registry,
		deps:     deps,
		cache: expirable.NewLRU[string, *Workspace](size, func(_ string, w *Workspace) {
			w.Shutdown()
		}, ttl),
	}
}

func storeKey(sessionID, screen string) string {
	return sessionID + ":" + screen
}

// Get returns the session's workspace for screen, creating and mounting it on
// first use.
func (s *Store) Get(ctx context.Context, sessionID, screen string) (*Workspace, error) {
	def, err := s.registry.Get(screen)
	if err != nil {
		return nil, err
	}
	key := storeKey(sessionID, screen)
	if w, ok := s.cache.Get(key); ok {
		return w, nil
	}
	v, err, _ := s.creating.Do(key, func() (interface{}, error) {
		if w, ok := s.cache.Get(key); ok {
			return w, nil
		}
		w, err := NewWorkspace(ctx, def, s.deps)
		if err != nil {
			return nil, err
		}
		w.Mount(ctx)
		s.cache.Add(key, w)
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Workspace), nil
}

// Drop discards the session's workspace for screen.
func (s *Store) Drop(sessionID, screen string) {
	s.cache.Remove(storeKey(sessionID, screen))
}

// DropSession discards the session's workspaces for screens and reports how
// many were live.
func (s *Store) DropSession(sessionID string, screens []string) int {
	dropped := 0
	for _, screen := range screens {
		if s.cache.Remove(storeKey(sessionID, screen)) {
			dropped++
		}
	}
	return dropped
}

// Len reports the number of live workspaces.
func (s *Store) Len() int {
	return s.cache.Len()
}

// Purge discards every workspace.
func (s *Store) Purge() {
	s.cache.Purge()
}

// Registry exposes the screen definitions.
func (s *Store) Registry() *Registry {
	return s.registry
}
