// Package catalog defines the persistence contract (C5) used by the File
// Service: LogicalFile and Chunk records, status transitions, and
// resumable-upload lookup by client fingerprint. The relational engine
// backing a production Catalog is an external collaborator; this package
// ships an in-memory reference implementation used by tests and by
// callers with no database of their own.
package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kenneth/discord-file-vault/internal/crypto"
	"github.com/kenneth/discord-file-vault/internal/errs"
)

// Status is a LogicalFile's position in its upload lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusError     Status = "ERROR"
)

func validStatus(s Status) bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusError:
		return true
	default:
		return false
	}
}

// LogicalFile is one user file spread across an ordered set of Chunks.
type LogicalFile struct {
	ID                string
	OriginalName      string
	OpaqueName        string
	Description       string
	EncryptionKey     crypto.KeyEnvelope
	ClientFingerprint string
	UploadedAt        time.Time
	BackendRef        string
	ChunkSize         int
	StorageContext    map[string]interface{}
	Status            Status
}

// Chunk is one ciphertext slice of a LogicalFile, in upload order.
type Chunk struct {
	Parent    string
	Order     int
	Reference map[string]interface{}
}

// Catalog is the persistence contract the File Service depends on.
type Catalog interface {
	CreateFile(ctx context.Context, f *LogicalFile) (*LogicalFile, error)
	GetFile(ctx context.Context, id string) (*LogicalFile, error)
	ListFiles(ctx context.Context) ([]*LogicalFile, error)
	UpdateFile(ctx context.Context, id string, patch func(*LogicalFile)) error
	DeleteFile(ctx context.Context, id string) error
	ChangeStatus(ctx context.Context, id string, status Status) error
	FindResumable(ctx context.Context, clientFingerprint string) (*LogicalFile, error)

	CreateChunk(ctx context.Context, parent string, order int, reference map[string]interface{}) error
	ListChunks(ctx context.Context, parent string) ([]*Chunk, error)
	ChunkOrders(ctx context.Context, parent string) ([]int, error)
}

// InMemory is a process-local Catalog backed by maps and guarded by a
// single mutex. It enforces the same invariants a relational engine would:
// (parent, order) uniqueness on chunks, closed-set status values, and
// cascade delete of chunks with their parent.
type InMemory struct {
	mu     sync.RWMutex
	files  map[string]*LogicalFile
	chunks map[string][]*Chunk // parent id -> chunks, unordered storage order
}

// NewInMemory returns an empty in-memory Catalog.
func NewInMemory() *InMemory {
	return &InMemory{
		files:  make(map[string]*LogicalFile),
		chunks: make(map[string][]*Chunk),
	}
}

func (c *InMemory) CreateFile(ctx context.Context, f *LogicalFile) (*LogicalFile, error) {
	clone := *f
	clone.ID = uuid.NewString()
	clone.UploadedAt = time.Now()
	clone.Status = StatusPending

	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[clone.ID] = &clone
	out := clone
	return &out, nil
}

func (c *InMemory) GetFile(ctx context.Context, id string) (*LogicalFile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.files[id]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "logical file not found: "+id)
	}
	out := *f
	return &out, nil
}

func (c *InMemory) ListFiles(ctx context.Context) ([]*LogicalFile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*LogicalFile, 0, len(c.files))
	for _, f := range c.files {
		clone := *f
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (c *InMemory) UpdateFile(ctx context.Context, id string, patch func(*LogicalFile)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[id]
	if !ok {
		return errs.New(errs.KindNotFound, "logical file not found: "+id)
	}
	patch(f)
	return nil
}

func (c *InMemory) DeleteFile(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.files[id]; !ok {
		return errs.New(errs.KindNotFound, "logical file not found: "+id)
	}
	delete(c.files, id)
	delete(c.chunks, id) // cascade
	return nil
}

func (c *InMemory) ChangeStatus(ctx context.Context, id string, status Status) error {
	if !validStatus(status) {
		return errs.New(errs.KindUsageError, "unknown status: "+string(status))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[id]
	if !ok {
		return errs.New(errs.KindNotFound, "logical file not found: "+id)
	}
	f.Status = status
	return nil
}

// FindResumable returns, among PENDING files whose ClientFingerprint
// matches, the one with the most persisted chunks. An empty fingerprint
// never matches anything.
func (c *InMemory) FindResumable(ctx context.Context, clientFingerprint string) (*LogicalFile, error) {
	if clientFingerprint == "" {
		return nil, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var best *LogicalFile
	bestCount := -1
	for _, f := range c.files {
		if f.Status != StatusPending || f.ClientFingerprint != clientFingerprint {
			continue
		}
		count := len(c.chunks[f.ID])
		if count > bestCount {
			best, bestCount = f, count
		}
	}
	if best == nil {
		return nil, nil
	}
	out := *best
	return &out, nil
}

func (c *InMemory) CreateChunk(ctx context.Context, parent string, order int, reference map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.files[parent]; !ok {
		return errs.New(errs.KindNotFound, "logical file not found: "+parent)
	}
	for _, existing := range c.chunks[parent] {
		if existing.Order == order {
			return errs.New(errs.KindUsageError, "duplicate chunk order for parent")
		}
	}
	c.chunks[parent] = append(c.chunks[parent], &Chunk{Parent: parent, Order: order, Reference: reference})
	return nil
}

func (c *InMemory) ListChunks(ctx context.Context, parent string) ([]*Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chunks := append([]*Chunk(nil), c.chunks[parent]...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Order < chunks[j].Order })
	return chunks, nil
}

func (c *InMemory) ChunkOrders(ctx context.Context, parent string) ([]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	orders := make([]int, 0, len(c.chunks[parent]))
	for _, ch := range c.chunks[parent] {
		orders = append(orders, ch.Order)
	}
	sort.Ints(orders)
	return orders, nil
}
