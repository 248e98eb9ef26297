package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakePoolObserver struct {
	hits   []string
	misses []string
}

func (f *fakePoolObserver) RecordBufferPoolHit(sizeClass string)  { f.hits = append(f.hits, sizeClass) }
func (f *fakePoolObserver) RecordBufferPoolMiss(sizeClass string) { f.misses = append(f.misses, sizeClass) }

func TestBufferPoolGetPutReusesBuffer(t *testing.T) {
	pool := NewBufferPool()
	buf := pool.Get(2048)
	require.Len(t, buf, 2048)
	pool.Put(buf)

	hits, misses := pool.Metrics()
	require.Equal(t, int64(0), hits)
	require.Equal(t, int64(1), misses)

	reused := pool.Get(2048)
	require.Len(t, reused, 2048)
	hits, misses = pool.Metrics()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(1), misses)
}

func TestBufferPoolPutZeroizesBeforeReuse(t *testing.T) {
	pool := NewBufferPool()
	buf := pool.Get(1024)
	for i := range buf {
		buf[i] = 0xAB
	}
	pool.Put(buf)

	reused := pool.Get(1024)
	for _, b := range reused {
		require.Equal(t, byte(0), b)
	}
}

func TestBufferPoolWithObserverReportsHitsAndMisses(t *testing.T) {
	pool := NewBufferPool()
	obs := &fakePoolObserver{}
	pool.WithObserver(obs)

	buf := pool.Get(512)
	require.Equal(t, []string{"1024"}, obs.misses)
	pool.Put(buf)

	pool.Get(512)
	require.Equal(t, []string{"1024"}, obs.hits)
}

func TestBufferPoolSizeClassRoundsUpToPowerOfTwoWith1KiBFloor(t *testing.T) {
	require.Equal(t, 1024, sizeClass(1))
	require.Equal(t, 1024, sizeClass(1024))
	require.Equal(t, 2048, sizeClass(1025))
	require.Equal(t, 4096, sizeClass(4096))
	require.Equal(t, 8192, sizeClass(4097))
}
