// Package storage implements the Storage Facade (C7): a thin, validating
// front for a single resolved Backend Driver.
package storage

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/discord-file-vault/internal/audit"
	"github.com/kenneth/discord-file-vault/internal/backend"
	"github.com/kenneth/discord-file-vault/internal/debug"
	"github.com/kenneth/discord-file-vault/internal/directory"
	"github.com/kenneth/discord-file-vault/internal/errs"
	"github.com/kenneth/discord-file-vault/internal/metrics"
)

// Facade wraps one backend.Driver instance with defensive contract checks
// and normalizes driver errors into the Upload/Download error families.
type Facade struct {
	driver  backend.Driver
	log     *logrus.Logger
	metrics *metrics.Metrics
	audit   audit.Logger
}

// New resolves backendName via dir and registry, constructs the driver with
// its stored config, and (unless skipValidation) runs its validator.
func New(ctx context.Context, backendName string, dir directory.Directory, registry *backend.Registry, skipValidation bool, log *logrus.Logger) (*Facade, error) {
	entry, err := dir.GetByName(ctx, backendName)
	if err != nil {
		return nil, err
	}
	driver, err := registry.Build(entry.Platform, entry.Config, skipValidation)
	if err != nil {
		return nil, err
	}
	return &Facade{driver: driver, log: log}, nil
}

// NewFromDriver wraps an already-constructed driver directly, bypassing
// directory/registry resolution. Used by tests and by callers that already
// hold a driver instance.
func NewFromDriver(driver backend.Driver, log *logrus.Logger) *Facade {
	return &Facade{driver: driver, log: log}
}

// WithMetrics attaches a Metrics collector; chunk operations are recorded
// against it from then on. Returns f for chaining.
func (f *Facade) WithMetrics(m *metrics.Metrics) *Facade {
	f.metrics = m
	return f
}

// WithAudit attaches an audit Logger; chunk operations are recorded against
// it from then on. Returns f for chaining.
func (f *Facade) WithAudit(a audit.Logger) *Facade {
	f.audit = a
	return f
}

func (f *Facade) MaxChunkSize() int { return f.driver.MaxChunkSize() }

// PrepareStorage delegates to the driver, requiring a non-empty result map.
func (f *Facade) PrepareStorage(ctx context.Context, meta map[string]interface{}) (map[string]interface{}, error) {
	if meta == nil {
		return nil, errs.New(errs.KindUsageError, "prepare_storage requires non-nil metadata")
	}
	sc, err := f.driver.PrepareStorage(ctx, meta)
	if err != nil {
		return nil, errs.Wrap(errs.KindUploadPrepError, "backend prepare_storage failed", err)
	}
	if len(sc) == 0 {
		return nil, errs.New(errs.KindUploadPrepError, "backend prepare_storage returned an empty storage_context")
	}
	return sc, nil
}

// UploadChunk delegates to the driver, requiring non-empty ciphertext in
// and a non-empty reference map out.
func (f *Facade) UploadChunk(ctx context.Context, ciphertext []byte, storageContext map[string]interface{}) (map[string]interface{}, error) {
	start := time.Now()
	if len(ciphertext) == 0 {
		return nil, errs.New(errs.KindUsageError, "upload_chunk requires non-empty ciphertext")
	}
	if len(storageContext) == 0 {
		return nil, errs.New(errs.KindUsageError, "upload_chunk requires a non-empty storage_context")
	}
	ref, err := f.driver.UploadChunk(ctx, ciphertext, storageContext)
	if err != nil {
		f.recordChunkOutcome(ctx, "upload_chunk", time.Since(start), int64(len(ciphertext)), false, err)
		return nil, errs.Wrap(errs.KindUploadError, "backend upload_chunk failed", err)
	}
	if len(ref) == 0 {
		wrapped := errs.New(errs.KindUploadError, "backend upload_chunk returned an empty reference")
		f.recordChunkOutcome(ctx, "upload_chunk", time.Since(start), int64(len(ciphertext)), false, wrapped)
		return nil, wrapped
	}
	f.recordChunkOutcome(ctx, "upload_chunk", time.Since(start), int64(len(ciphertext)), true, nil)
	return ref, nil
}

// DownloadChunk delegates to the driver, requiring non-empty ciphertext out.
func (f *Facade) DownloadChunk(ctx context.Context, reference map[string]interface{}, storageContext map[string]interface{}) ([]byte, error) {
	start := time.Now()
	if len(reference) == 0 {
		return nil, errs.New(errs.KindUsageError, "download_chunk requires a non-empty reference")
	}
	data, err := f.driver.DownloadChunk(ctx, reference, storageContext)
	if err != nil {
		f.recordChunkOutcome(ctx, "download_chunk", time.Since(start), 0, false, err)
		return nil, errs.Wrap(errs.KindDownloadError, "backend download_chunk failed", err)
	}
	if len(data) == 0 {
		wrapped := errs.New(errs.KindDownloadError, "backend download_chunk returned empty ciphertext")
		f.recordChunkOutcome(ctx, "download_chunk", time.Since(start), 0, false, wrapped)
		return nil, wrapped
	}
	f.recordChunkOutcome(ctx, "download_chunk", time.Since(start), int64(len(data)), true, nil)
	return data, nil
}

// DeleteChunk delegates to the driver. A driver may treat this as a no-op
// (see discordhook.Driver.DeleteChunk); the Facade does not second-guess
// that choice.
func (f *Facade) DeleteChunk(ctx context.Context, reference map[string]interface{}, storageContext map[string]interface{}) error {
	if len(reference) == 0 {
		return errs.New(errs.KindUsageError, "delete_chunk requires a non-empty reference")
	}
	if err := f.driver.DeleteChunk(ctx, reference, storageContext); err != nil {
		return errs.Wrap(errs.KindUploadError, "backend delete_chunk failed", err)
	}
	return nil
}

// recordChunkOutcome reports an upload_chunk/download_chunk attempt to the
// attached Metrics and audit Logger, if any are configured. Errors are
// reported by kind so high-cardinality error text never becomes a label.
func (f *Facade) recordChunkOutcome(ctx context.Context, operation string, d time.Duration, bytes int64, success bool, err error) {
	platform := f.driver.Platform()
	if debug.Enabled() && f.log != nil {
		f.log.WithFields(logrus.Fields{
			"operation": operation,
			"platform":  platform,
			"bytes":     bytes,
			"duration":  d,
			"success":   success,
		}).Debug("chunk operation completed")
	}
	if f.metrics != nil {
		f.metrics.RecordChunkOperation(ctx, operation, platform, d, bytes)
		if !success {
			f.metrics.RecordChunkError(ctx, operation, platform, string(errs.KindOf(err)))
		}
	}
	if f.audit != nil {
		eventType := audit.EventTypeUploadChunk
		if operation == "download_chunk" {
			eventType = audit.EventTypeDownloadChunk
		}
		f.audit.LogAccess(eventType, "", platform, "", "", "", success, err, d)
	}
}
