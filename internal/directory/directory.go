// Package directory implements the Backend Directory (C6): named,
// persisted backend configurations that the Storage Facade resolves by
// name before handing them to the Backend Registry.
package directory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kenneth/discord-file-vault/internal/backend"
	"github.com/kenneth/discord-file-vault/internal/errs"
)

// Entry is one named backend configuration.
type Entry struct {
	ID       string
	Name     string
	Platform string
	Config   map[string]interface{}
}

// Directory is the persistence contract for named backend configurations.
type Directory interface {
	GetByID(ctx context.Context, id string) (*Entry, error)
	GetByName(ctx context.Context, name string) (*Entry, error)
	ListAll(ctx context.Context) ([]*Entry, error)
	Create(ctx context.Context, name, platform string, config map[string]interface{}) (*Entry, error)
}

// InMemory is a sync.RWMutex-guarded Directory implementation.
type InMemory struct {
	mu       sync.RWMutex
	byID     map[string]*Entry
	registry *backend.Registry
}

// NewInMemory constructs an empty Directory. registry is consulted by
// Create to reject configurations naming an unregistered platform.
func NewInMemory(registry *backend.Registry) *InMemory {
	return &InMemory{byID: make(map[string]*Entry), registry: registry}
}

func (d *InMemory) GetByID(ctx context.Context, id string) (*Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.byID[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "no backend with id "+id)
	}
	return copyEntry(e), nil
}

func (d *InMemory) GetByName(ctx context.Context, name string) (*Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, e := range d.byID {
		if e.Name == name {
			return copyEntry(e), nil
		}
	}
	return nil, errs.New(errs.KindNotFound, "no backend named "+name)
}

func (d *InMemory) ListAll(ctx context.Context) ([]*Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Entry, 0, len(d.byID))
	for _, e := range d.byID {
		out = append(out, copyEntry(e))
	}
	return out, nil
}

// Create validates name/config non-emptiness, name uniqueness, and that
// platform is registered, then stores the entry.
func (d *InMemory) Create(ctx context.Context, name, platform string, config map[string]interface{}) (*Entry, error) {
	if name == "" {
		return nil, errs.New(errs.KindUsageError, "backend name must not be empty")
	}
	if len(config) == 0 {
		return nil, errs.New(errs.KindUsageError, "backend config must not be empty")
	}

	supported := false
	for _, p := range d.registry.Platforms() {
		if p == platform {
			supported = true
			break
		}
	}
	if !supported {
		return nil, errs.New(errs.KindUsageError, "platform '"+platform+"' is not registered")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.byID {
		if e.Name == name {
			return nil, errs.New(errs.KindUsageError, "a backend named '"+name+"' already exists")
		}
	}

	e := &Entry{ID: uuid.NewString(), Name: name, Platform: platform, Config: config}
	d.byID[e.ID] = e
	return copyEntry(e), nil
}

func copyEntry(e *Entry) *Entry {
	cp := *e
	cfg := make(map[string]interface{}, len(e.Config))
	for k, v := range e.Config {
		cfg[k] = v
	}
	cp.Config = cfg
	return &cp
}
