// Package registry owns the keyed store of active listener registrations.
//
// The store is explicit rather than relying on host-platform lifecycle
// callbacks: register/unregister have clear atomicity semantics and lookups
// observe a consistent snapshot, which keeps concurrency and testing
// tractable in isolation.
package registry

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-crm-bridge/core"
)

// Registry is a concurrency-safe keyed store of listener registrations.
// Reads never touch the optional durable store; writes go through it first
// so a storage failure leaves the in-memory view unchanged.
type Registry struct {
	mu        sync.RWMutex
	listeners map[string]core.ListenerRegistration

	store core.ListenerStore
	Now   func() time.Time
}

type Option func(*Registry)

// WithListenerStore mirrors mutations to a durable store. Lookups remain
// served from memory only.
func WithListenerStore(store core.ListenerStore) Option {
	return func(r *Registry) {
		r.store = store
	}
}

func New(options ...Option) *Registry {
	registry := &Registry{
		listeners: map[string]core.ListenerRegistration{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(registry)
	}
	return registry
}

// Restore seeds the in-memory view from the durable store. Intended for
// startup, before the registry begins serving lookups.
func (r *Registry) Restore(ctx context.Context) error {
	if r == nil {
		return registryInternal("registry: registry is nil")
	}
	if r.store == nil {
		return nil
	}
	registrations, err := r.store.List(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "registry: restore registrations").
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.BridgeErrorInternal)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, registration := range registrations {
		normalized := registration.Normalized(r.now())
		if normalized.Validate() != nil {
			continue
		}
		r.listeners[normalized.ListenerID] = normalized
	}
	return nil
}

// Register installs or atomically replaces the registration for a listener
// id. Re-registering is idempotent: there is no window where the listener is
// unregistered or where old and new content are both visible.
func (r *Registry) Register(ctx context.Context, registration core.ListenerRegistration) error {
	if r == nil {
		return registryInternal("registry: registry is nil")
	}
	normalized := registration.Normalized(r.now())
	if err := normalized.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "registry: register listener").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.BridgeErrorBadInput).
			WithMetadata(map[string]any{"listener_id": normalized.ListenerID})
	}
	if r.store != nil {
		stored, err := r.store.Upsert(ctx, normalized)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "registry: persist registration").
				WithCode(http.StatusInternalServerError).
				WithTextCode(core.BridgeErrorInternal).
				WithMetadata(map[string]any{"listener_id": normalized.ListenerID})
		}
		normalized = stored.Normalized(r.now())
	}
	r.mu.Lock()
	r.listeners[normalized.ListenerID] = normalized
	r.mu.Unlock()
	return nil
}

// Unregister removes the registration when present. Unregistering an unknown
// listener id is a no-op, never an error.
func (r *Registry) Unregister(ctx context.Context, listenerID string) error {
	if r == nil {
		return registryInternal("registry: registry is nil")
	}
	listenerID = strings.TrimSpace(listenerID)
	if listenerID == "" {
		return goerrors.New("registry: listener id is required", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.BridgeErrorBadInput)
	}
	if r.store != nil {
		if err := r.store.Delete(ctx, listenerID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "registry: delete registration").
				WithCode(http.StatusInternalServerError).
				WithTextCode(core.BridgeErrorInternal).
				WithMetadata(map[string]any{"listener_id": listenerID})
		}
	}
	r.mu.Lock()
	delete(r.listeners, listenerID)
	r.mu.Unlock()
	return nil
}

// FindMatches returns the ids of every active registration subscribed to the
// event name and scoped to exactly the identifier value. The result is a
// consistent snapshot: a concurrent register or unregister is either fully
// visible or not at all.
func (r *Registry) FindMatches(eventName string, identifierValue string) []string {
	if r == nil {
		return []string{}
	}
	eventName = strings.TrimSpace(eventName)
	identifierValue = strings.TrimSpace(identifierValue)
	if eventName == "" || identifierValue == "" {
		return []string{}
	}
	r.mu.RLock()
	matches := make([]string, 0, len(r.listeners))
	for listenerID, registration := range r.listeners {
		if registration.Matches(eventName, identifierValue) {
			matches = append(matches, listenerID)
		}
	}
	r.mu.RUnlock()
	sort.Strings(matches)
	return matches
}

// Get returns the active registration for a listener id, if any.
func (r *Registry) Get(listenerID string) (core.ListenerRegistration, bool) {
	if r == nil {
		return core.ListenerRegistration{}, false
	}
	listenerID = strings.TrimSpace(listenerID)
	if listenerID == "" {
		return core.ListenerRegistration{}, false
	}
	r.mu.RLock()
	registration, ok := r.listeners[listenerID]
	r.mu.RUnlock()
	return registration, ok
}

// Len reports the number of active registrations.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

func (r *Registry) now() time.Time {
	if r != nil && r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func registryInternal(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.BridgeErrorInternal)
}
