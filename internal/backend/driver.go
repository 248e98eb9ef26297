// Package backend defines the pluggable storage-backend abstraction (C2,
// C4): the Driver contract every backend platform implements, and the
// process-wide Registry mapping a platform tag to a driver constructor.
package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/kenneth/discord-file-vault/internal/errs"
)

// Driver is the polymorphic capability set a backend platform must
// implement: prepare a per-file remote container, then upload/download/
// delete individual ciphertext chunks against it.
type Driver interface {
	// Platform returns the tag this driver was constructed for.
	Platform() string

	// PrepareStorage is called once per upload. meta carries caller hints
	// (currently just "filename"). Returns the opaque storage_context
	// persisted on the LogicalFile.
	PrepareStorage(ctx context.Context, meta map[string]interface{}) (map[string]interface{}, error)

	// UploadChunk uploads one ciphertext chunk and returns an opaque
	// chunk_reference sufficient, together with storageContext, to
	// retrieve it later. Must not mutate storageContext.
	UploadChunk(ctx context.Context, ciphertext []byte, storageContext map[string]interface{}) (map[string]interface{}, error)

	// DownloadChunk is the inverse of UploadChunk.
	DownloadChunk(ctx context.Context, reference map[string]interface{}, storageContext map[string]interface{}) ([]byte, error)

	// DeleteChunk removes the remote object behind reference. Backends
	// that cannot truly delete (e.g. a webhook deleting another
	// principal's message) may implement this as a no-op, but must still
	// satisfy the interface (§9 "deletion parity").
	DeleteChunk(ctx context.Context, reference map[string]interface{}, storageContext map[string]interface{}) error

	// MaxChunkSize is the largest plaintext slice this driver accepts.
	MaxChunkSize() int
}

// Constructor builds a Driver from a BackendConfig's opaque config map.
// skipValidation bypasses the platform's Config Validator, for use by
// tests and by the Storage Facade when a caller has already validated.
type Constructor func(config map[string]interface{}, skipValidation bool) (Driver, error)

// Registry is a process-wide, immutable-after-init mapping from platform
// tag to Constructor. Lookup failure is a fatal configuration error
// (UnsupportedPlatform); it is never retried.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns an empty Registry. Callers register every known
// platform at process startup, before the registry is read from
// concurrently.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a platform tag -> Constructor mapping. Re-registering an
// existing tag overwrites it; this is only ever done at initialization.
func (r *Registry) Register(platform string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[platform] = ctor
}

// Build looks up platform and constructs a Driver from config.
func (r *Registry) Build(platform string, config map[string]interface{}, skipValidation bool) (Driver, error) {
	r.mu.RLock()
	ctor, ok := r.constructors[platform]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.KindUnsupportedPlatform, fmt.Sprintf("no driver registered for platform %q", platform))
	}
	return ctor(config, skipValidation)
}

// Platforms lists every registered platform tag, for diagnostics.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.constructors))
	for p := range r.constructors {
		out = append(out, p)
	}
	return out
}
