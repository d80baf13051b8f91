// Package registry implements the BackendRegistry: a named collection of
// backend.Backend instances plus preference-ordered routing. The registry
// never executes an operation itself — it only decides which backend
// should, mirroring the teacher's AttestationManager
// (pkg/attestation/manager.go), which routes verification requests by name
// the same way.
package registry

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/backend"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/registry/cache"
	"github.com/TrustEdge-Labs/trustedge-sub003/pkg/trustedgeerr"
)

// BackendPreferences names an ordered list of backend names to try, keyed
// by a scenario name (e.g. "hardware_preferred").
type BackendPreferences struct {
	Name  string
	Order []string
}

// DefaultPreferences returns the registry's built-in preference lists.
func DefaultPreferences() map[string]BackendPreferences {
	return map[string]BackendPreferences{
		"hardware_preferred": {
			Name:  "hardware_preferred",
			Order: []string{"yubikey", "aws_kms", "software_hsm"},
		},
		"software_preferred": {
			Name:  "software_preferred",
			Order: []string{"software_hsm", "aws_kms", "yubikey"},
		},
	}
}

// Registry holds named backends and routes operations to them by
// preference. Safe for concurrent use: registration/unregistration take an
// exclusive lock, dispatch lookups take a shared lock (spec §5: "permits
// concurrent reads, serializes mutations").
type Registry struct {
	mu       sync.RWMutex
	backends map[string]backend.Backend
	logger   *zap.Logger
	cache    *cache.Cache
}

// New creates an empty registry with no capability cache.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		backends: make(map[string]backend.Backend),
		logger:   logger,
	}
}

// NewWithCache creates an empty registry whose GetCapabilities/ListKeys
// calls consult c before hitting the backend, and invalidate it on every
// Register/Unregister. c may be nil, in which case the registry behaves
// exactly like New (pkg/registry/cache documents that every Registry
// works identically with a nil *Cache).
func NewWithCache(logger *zap.Logger, c *cache.Cache) *Registry {
	r := New(logger)
	r.cache = c
	return r
}

// Register adds or replaces a named backend. Any cached capabilities/key
// list for name are dropped, since a replaced backend may answer
// differently than the one it replaces.
func (r *Registry) Register(name string, b backend.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
	r.logger.Info("registered backend", zap.String("name", name))
	r.invalidateCache(name)
}

// Unregister removes a named backend. No-op if the name isn't registered.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backends, name)
	r.logger.Info("unregistered backend", zap.String("name", name))
	r.invalidateCache(name)
}

// invalidateCache drops name's cached entries, if a cache is configured.
// Best-effort: a cache write failure here must never block registration,
// it just means the next GetCapabilities/ListKeys call pays a cache miss.
func (r *Registry) invalidateCache(name string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(context.Background(), name); err != nil {
		r.logger.Warn("failed to invalidate registry cache entry",
			zap.String("name", name), zap.Error(err))
	}
}

// Get returns the named backend, or false if it isn't registered.
func (r *Registry) Get(name string) (backend.Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Names returns the currently registered backend names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}

// GetCapabilities returns the named backend's capabilities, consulting the
// registry's cache (if configured) before calling the backend directly. A
// cache miss or a nil cache falls through to b.GetCapabilities() and, when
// a cache is configured, populates it for next time. Never caches
// BackendInfo.Available (see pkg/registry/cache) — only the capability
// descriptor, which is static for a given backend instance.
func (r *Registry) GetCapabilities(ctx context.Context, name string) (backend.BackendCapabilities, *trustedgeerr.BackendError) {
	b, ok := r.Get(name)
	if !ok {
		return backend.BackendCapabilities{}, trustedgeerr.NewBackendError(trustedgeerr.UnsupportedOperation, "no such backend: "+name)
	}

	if r.cache != nil {
		if caps, hit, err := r.cache.GetCapabilities(ctx, name); err != nil {
			r.logger.Warn("registry cache read failed, falling back to backend", zap.String("name", name), zap.Error(err))
		} else if hit {
			return caps, nil
		}
	}

	caps := b.GetCapabilities()
	if r.cache != nil {
		if err := r.cache.PutCapabilities(ctx, name, caps); err != nil {
			r.logger.Warn("registry cache write failed", zap.String("name", name), zap.Error(err))
		}
	}
	return caps, nil
}

// ListKeys returns the named backend's key metadata, consulting the
// registry's cache (if configured) the same way GetCapabilities does.
func (r *Registry) ListKeys(ctx context.Context, name string) ([]backend.KeyMetadata, *trustedgeerr.BackendError) {
	b, ok := r.Get(name)
	if !ok {
		return nil, trustedgeerr.NewBackendError(trustedgeerr.UnsupportedOperation, "no such backend: "+name)
	}

	if r.cache != nil {
		if keys, hit, err := r.cache.GetListKeys(ctx, name); err != nil {
			r.logger.Warn("registry cache read failed, falling back to backend", zap.String("name", name), zap.Error(err))
		} else if hit {
			return keys, nil
		}
	}

	keys, berr := b.ListKeys()
	if berr != nil {
		return nil, berr
	}
	if r.cache != nil {
		if err := r.cache.PutListKeys(ctx, name, keys); err != nil {
			r.logger.Warn("registry cache write failed", zap.String("name", name), zap.Error(err))
		}
	}
	return keys, nil
}

// FindPreferredBackend walks prefs.Order and returns the first registered
// backend whose SupportsOperation(op) is true. Returns false if none of the
// preferred names are registered, or none support op.
func (r *Registry) FindPreferredBackend(op backend.CryptoOperation, prefs BackendPreferences) (backend.Backend, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range prefs.Order {
		b, ok := r.backends[name]
		if !ok {
			continue
		}
		if b.SupportsOperation(op) {
			return b, name, true
		}
	}
	return nil, "", false
}

// BackendConstructor builds a named backend, returning an error if
// construction fails (e.g. hardware absent, credentials missing).
type BackendConstructor struct {
	Name string
	New  func() (backend.Backend, error)
}

// WithDefaults registers every backend whose constructor succeeds,
// silently skipping ones that fail — registration is side-effectful and
// optional, never fatal (spec §4.B). Returns the registry plus the names
// that were skipped and why, for logging by the caller.
func WithDefaults(logger *zap.Logger, constructors []BackendConstructor) (*Registry, []string) {
	r := New(logger)
	var skipped []string

	for _, c := range constructors {
		b, err := c.New()
		if err != nil {
			r.logger.Warn("skipping backend that failed to construct",
				zap.String("name", c.Name), zap.Error(err))
			skipped = append(skipped, fmt.Sprintf("%s: %v", c.Name, err))
			continue
		}
		r.Register(c.Name, b)
	}

	return r, skipped
}
