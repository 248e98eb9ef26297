package catalog

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ResumeIndexed wraps a Catalog with an optional Redis-backed accelerator
// for FindResumable (C12). It is purely an optimization: every miss, and
// every error talking to Redis, falls back to the wrapped Catalog's own
// scan, which remains the single source of truth. Correctness of
// FindResumable never depends on Redis being reachable.
type ResumeIndexed struct {
	Catalog
	redis *redis.Client
	ttl   time.Duration
	log   *logrus.Logger
}

// NewResumeIndexed wraps base with a Redis fingerprint->file-id index.
// If client is nil, the wrapper behaves exactly like base.
func NewResumeIndexed(base Catalog, client *redis.Client, ttl time.Duration, log *logrus.Logger) *ResumeIndexed {
	return &ResumeIndexed{Catalog: base, redis: client, ttl: ttl, log: log}
}

func fingerprintKey(fp string) string { return "vault:resume:" + fp }

// CreateFile creates the file in the wrapped Catalog and, if a
// fingerprint was supplied, best-effort populates the Redis index.
func (r *ResumeIndexed) CreateFile(ctx context.Context, f *LogicalFile) (*LogicalFile, error) {
	created, err := r.Catalog.CreateFile(ctx, f)
	if err != nil {
		return nil, err
	}
	if r.redis != nil && created.ClientFingerprint != "" {
		if err := r.redis.Set(ctx, fingerprintKey(created.ClientFingerprint), created.ID, r.ttl).Err(); err != nil {
			r.log.WithError(err).Warn("resume index: failed to record new file, falling back to catalog scan on next lookup")
		}
	}
	return created, nil
}

// FindResumable probes Redis first; on a hit it still re-fetches and
// re-validates the candidate from the underlying Catalog (the index only
// ever narrows the search, it is never trusted for correctness). A miss,
// a stale id, or a Redis error falls through to the wrapped Catalog's
// own scan and repopulates the index from that result.
func (r *ResumeIndexed) FindResumable(ctx context.Context, clientFingerprint string) (*LogicalFile, error) {
	if clientFingerprint == "" {
		return nil, nil
	}

	if r.redis != nil {
		if id, err := r.redis.Get(ctx, fingerprintKey(clientFingerprint)).Result(); err == nil && id != "" {
			f, ferr := r.Catalog.GetFile(ctx, id)
			if ferr == nil && f.Status == StatusPending && f.ClientFingerprint == clientFingerprint {
				return f, nil
			}
			// stale index entry: fall through to the authoritative scan
		} else if err != nil && err != redis.Nil {
			r.log.WithError(err).Warn("resume index: redis unavailable, falling back to catalog scan")
		}
	}

	f, err := r.Catalog.FindResumable(ctx, clientFingerprint)
	if err != nil || f == nil {
		return f, err
	}
	if r.redis != nil {
		if err := r.redis.Set(ctx, fingerprintKey(clientFingerprint), f.ID, r.ttl).Err(); err != nil {
			r.log.WithError(err).Warn("resume index: failed to repopulate after catalog scan")
		}
	}
	return f, nil
}
