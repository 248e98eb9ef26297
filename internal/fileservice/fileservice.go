// Package fileservice implements the File Service (C8): the upload,
// download, and delete algorithms that tie the Cipher, Storage Facade,
// Backend Directory/Registry, Catalog, and Key Manager together into one
// resumable, chunked file-transfer core.
package fileservice

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/discord-file-vault/internal/audit"
	"github.com/kenneth/discord-file-vault/internal/backend"
	"github.com/kenneth/discord-file-vault/internal/catalog"
	"github.com/kenneth/discord-file-vault/internal/crypto"
	"github.com/kenneth/discord-file-vault/internal/directory"
	"github.com/kenneth/discord-file-vault/internal/errs"
	"github.com/kenneth/discord-file-vault/internal/metrics"
	"github.com/kenneth/discord-file-vault/internal/storage"
)

// Source yields plaintext in caller-controlled slices, for example a
// ReaderSource wrapping an io.Reader. Next must return io.EOF (wrapped or
// bare) once exhausted, with no more bytes to deliver.
type Source interface {
	Next(ctx context.Context, maxSize int) ([]byte, error)
}

// ReaderSource adapts an io.Reader into a Source, reading up to maxSize
// bytes per call.
type ReaderSource struct {
	R io.Reader
}

func (s *ReaderSource) Next(ctx context.Context, maxSize int) ([]byte, error) {
	buf := make([]byte, maxSize)
	n, err := io.ReadFull(s.R, buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, io.EOF
	}
	return nil, err
}

// Service implements the upload/download/delete algorithms of §4.8.
type Service struct {
	catalog    catalog.Catalog
	keyManager crypto.KeyManager
	directory  directory.Directory
	registry   *backend.Registry
	log        *logrus.Logger
	metrics    *metrics.Metrics
	audit      audit.Logger
	bufferPool *crypto.BufferPool

	facadesMu sync.Mutex
	facades   map[string]*storage.Facade
}

// New wires a Service from its collaborators. Every Cipher it constructs
// internally draws its chunk-sized scratch buffers from one shared
// BufferPool, amortizing allocation across files and backends.
func New(cat catalog.Catalog, keyManager crypto.KeyManager, dir directory.Directory, registry *backend.Registry, log *logrus.Logger) *Service {
	return &Service{
		catalog:    cat,
		keyManager: keyManager,
		directory:  dir,
		registry:   registry,
		log:        log,
		bufferPool: crypto.NewBufferPool(),
		facades:    make(map[string]*storage.Facade),
	}
}

// WithMetrics attaches a Metrics collector; every Facade the Service
// constructs from then on records chunk operation metrics against it, and
// the shared buffer pool reports its hit/miss counts to it too.
// Returns s for chaining.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	s.bufferPool.WithObserver(m)
	return s
}

// WithAudit attaches an audit Logger; every Facade the Service constructs
// from then on records chunk operation audit events against it. Returns s
// for chaining.
func (s *Service) WithAudit(a audit.Logger) *Service {
	s.audit = a
	return s
}

// facadeFor returns a cached Facade for backendName, constructing (and
// validating) it on first use. Driver instances are stateless apart from
// their configured credentials and are reused across files (§5).
func (s *Service) facadeFor(ctx context.Context, backendName string) (*storage.Facade, error) {
	s.facadesMu.Lock()
	defer s.facadesMu.Unlock()
	if f, ok := s.facades[backendName]; ok {
		return f, nil
	}
	f, err := storage.New(ctx, backendName, s.directory, s.registry, false, s.log)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		f = f.WithMetrics(s.metrics)
	}
	if s.audit != nil {
		f = f.WithAudit(s.audit)
	}
	s.facades[backendName] = f
	return f, nil
}

// UploadRequest carries the inputs to Upload.
type UploadRequest struct {
	Source            Source
	Filename          string
	BackendName       string
	ChunkSize         int
	Description       string
	ClientFingerprint string
}

// Upload implements §4.8.1: resume probe, fresh-vs-resumed branch, the
// per-chunk stream loop (skipping already-persisted chunks), and the
// COMPLETED finalize transition.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*catalog.LogicalFile, error) {
	if req.ChunkSize <= 0 {
		return nil, errs.New(errs.KindUsageError, "chunk_size must be positive")
	}

	var resumable *catalog.LogicalFile
	if req.ClientFingerprint != "" {
		var err error
		resumable, err = s.catalog.FindResumable(ctx, req.ClientFingerprint)
		if err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.RecordResumeLookup(resumable != nil)
		}
	}

	var file *catalog.LogicalFile
	var key []byte
	knownChunks := map[int]bool{}

	if resumable != nil {
		if resumable.ChunkSize != req.ChunkSize {
			return nil, errs.New(errs.KindChunkSizeMismatch, fmt.Sprintf(
				"resume requested with chunk_size %d but file %s was created with chunk_size %d",
				req.ChunkSize, resumable.ID, resumable.ChunkSize))
		}
		unwrapped, err := s.keyManager.UnwrapKey(ctx, &resumable.EncryptionKey)
		if s.audit != nil {
			s.audit.LogKeyOperation(audit.EventTypeKeyUnwrap, resumable.ID, resumable.EncryptionKey.KeyVersion, err == nil, err)
		}
		if err != nil {
			return nil, errs.Wrap(errs.KindKeyManagerError, "failed to unwrap resumed file's key", err)
		}
		key = unwrapped
		file = resumable

		orders, err := s.catalog.ChunkOrders(ctx, file.ID)
		if err != nil {
			return nil, err
		}
		for _, o := range orders {
			knownChunks[o] = true
		}
	} else {
		facade, err := s.facadeFor(ctx, req.BackendName)
		if err != nil {
			return nil, err
		}
		if req.ChunkSize > facade.MaxChunkSize() {
			return nil, errs.New(errs.KindUsageError, fmt.Sprintf(
				"chunk_size %d exceeds backend %q's maximum of %d", req.ChunkSize, req.BackendName, facade.MaxChunkSize()))
		}

		newKey, err := crypto.NewRandomKey()
		if err != nil {
			return nil, err
		}
		envelope, err := s.keyManager.WrapKey(ctx, newKey)
		if s.audit != nil {
			version := 0
			if envelope != nil {
				version = envelope.KeyVersion
			}
			s.audit.LogKeyOperation(audit.EventTypeKeyWrap, "", version, err == nil, err)
		}
		if err != nil {
			return nil, errs.Wrap(errs.KindKeyManagerError, "failed to wrap new file key", err)
		}

		storageContext, err := facade.PrepareStorage(ctx, map[string]interface{}{"filename": req.Filename})
		if err != nil {
			return nil, err
		}

		created, err := s.catalog.CreateFile(ctx, &catalog.LogicalFile{
			OriginalName:      req.Filename,
			OpaqueName:        req.Filename,
			Description:       req.Description,
			EncryptionKey:     *envelope,
			ClientFingerprint: req.ClientFingerprint,
			BackendRef:        req.BackendName,
			ChunkSize:         req.ChunkSize,
			StorageContext:    storageContext,
		})
		if err != nil {
			return nil, err
		}
		key = newKey
		file = created
	}

	cipher, err := crypto.NewWithPool(key, s.bufferPool)
	if err != nil {
		return nil, err
	}
	facade, err := s.facadeFor(ctx, file.BackendRef)
	if err != nil {
		return nil, err
	}

	n := 1
	for {
		slice, err := req.Source.Next(ctx, req.ChunkSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if knownChunks[n] {
			n++
			continue
		}

		ciphertext, err := cipher.Encrypt(slice)
		if err != nil {
			return nil, err
		}
		ref, err := facade.UploadChunk(ctx, ciphertext, file.StorageContext)
		if err != nil {
			return nil, err
		}
		if err := s.catalog.CreateChunk(ctx, file.ID, n, ref); err != nil {
			return nil, err
		}
		n++
	}

	if err := s.catalog.ChangeStatus(ctx, file.ID, catalog.StatusCompleted); err != nil {
		return nil, err
	}
	file.Status = catalog.StatusCompleted
	return file, nil
}

// ChunkIterator is the lazy, restartable download sequence of §4.8.2: no
// network call is issued until Next is called.
type ChunkIterator struct {
	svc    *Service
	file   *catalog.LogicalFile
	cipher *crypto.Cipher
	facade *storage.Facade
	chunks []*catalog.Chunk
	idx    int
}

// Next decrypts and returns the next plaintext chunk, or io.EOF once the
// chunk set is exhausted.
func (it *ChunkIterator) Next(ctx context.Context) ([]byte, error) {
	if it.idx >= len(it.chunks) {
		return nil, io.EOF
	}
	chunk := it.chunks[it.idx]
	it.idx++

	ciphertext, err := it.facade.DownloadChunk(ctx, chunk.Reference, it.file.StorageContext)
	if err != nil {
		return nil, err
	}
	return it.cipher.Decrypt(ciphertext)
}

// Download implements §4.8.2: enumerate chunks in order, fail fast on an
// empty chunk set, and return a lazy iterator over decrypted plaintext.
func (s *Service) Download(ctx context.Context, file *catalog.LogicalFile) (*ChunkIterator, error) {
	chunks, err := s.catalog.ListChunks(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, errs.New(errs.KindNoChunks, "logical file "+file.ID+" has no persisted chunks")
	}

	key, err := s.keyManager.UnwrapKey(ctx, &file.EncryptionKey)
	if s.audit != nil {
		s.audit.LogKeyOperation(audit.EventTypeKeyUnwrap, file.ID, file.EncryptionKey.KeyVersion, err == nil, err)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindKeyManagerError, "failed to unwrap file key", err)
	}
	cipher, err := crypto.NewWithPool(key, s.bufferPool)
	if err != nil {
		return nil, err
	}
	facade, err := s.facadeFor(ctx, file.BackendRef)
	if err != nil {
		return nil, err
	}

	return &ChunkIterator{svc: s, file: file, cipher: cipher, facade: facade, chunks: chunks}, nil
}

// Delete implements §4.8.3: delete every remote chunk first; only once all
// remote deletions succeed does the Catalog row disappear. A storage-side
// failure propagates and leaves the row (and any already-deleted chunks'
// remote state) as-is, so a retry can pick up where it left off.
func (s *Service) Delete(ctx context.Context, file *catalog.LogicalFile) error {
	chunks, err := s.catalog.ListChunks(ctx, file.ID)
	if err != nil {
		return err
	}
	facade, err := s.facadeFor(ctx, file.BackendRef)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err := facade.DeleteChunk(ctx, chunk.Reference, file.StorageContext); err != nil {
			return err
		}
	}
	return s.catalog.DeleteFile(ctx, file.ID)
}
