package catalog

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestResumeIndex(t *testing.T) (*ResumeIndexed, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewResumeIndexed(NewInMemory(), client, 0, log), mr
}

func TestResumeIndexedHitsRedisBeforeScanningCatalog(t *testing.T) {
	idx, mr := newTestResumeIndex(t)
	ctx := context.Background()

	created, err := idx.CreateFile(ctx, &LogicalFile{OriginalName: "a.txt", ClientFingerprint: "fp-1"})
	require.NoError(t, err)
	require.True(t, mr.Exists(fingerprintKey("fp-1")))

	found, err := idx.FindResumable(ctx, "fp-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, created.ID, found.ID)
}

func TestResumeIndexedFallsBackWhenRedisUnavailable(t *testing.T) {
	idx, mr := newTestResumeIndex(t)
	ctx := context.Background()

	_, err := idx.CreateFile(ctx, &LogicalFile{OriginalName: "a.txt", ClientFingerprint: "fp-2"})
	require.NoError(t, err)

	mr.Close()

	found, err := idx.FindResumable(ctx, "fp-2")
	require.NoError(t, err)
	require.NotNil(t, found, "a dead Redis must never break resumability, only its acceleration")
}

func TestResumeIndexedIgnoresStaleEntryForCompletedFile(t *testing.T) {
	idx, mr := newTestResumeIndex(t)
	ctx := context.Background()

	created, err := idx.CreateFile(ctx, &LogicalFile{OriginalName: "a.txt", ClientFingerprint: "fp-3"})
	require.NoError(t, err)
	require.NoError(t, idx.ChangeStatus(ctx, created.ID, StatusCompleted))
	require.True(t, mr.Exists(fingerprintKey("fp-3")))

	found, err := idx.FindResumable(ctx, "fp-3")
	require.NoError(t, err)
	require.Nil(t, found, "a completed file must never be offered for resume even if the index still points at it")
}
