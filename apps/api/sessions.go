package main

import (
	"sync"

	identityservice "github.com/bookline-app/bookline-core/domains/identity/be/service"
)

// sessionRegistry keeps one session manager per authenticated user so each
// user's resolutions are ordered by their own generation counter.
type sessionRegistry struct {
	mu         sync.Mutex
	managers   map[string]*identityservice.Manager
	newManager func() *identityservice.Manager
}

func newSessionRegistry(newManager func() *identityservice.Manager) *sessionRegistry {
	return &sessionRegistry{
		managers:   make(map[string]*identityservice.Manager),
		newManager: newManager,
	}
}

// For returns the manager for userID, creating it on first use.
func (r *sessionRegistry) For(userID string) *identityservice.Manager {
	r.mu.Lock()
	defer r.mu.Unlock()

	mgr, ok := r.managers[userID]
	if !ok {
		mgr = r.newManager()
		r.managers[userID] = mgr
	}
	return mgr
}

// Drop removes a user's manager after logout.
func (r *sessionRegistry) Drop(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, userID)
}
