package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateFileStartsPending(t *testing.T) {
	c := NewInMemory()
	f, err := c.CreateFile(context.Background(), &LogicalFile{OriginalName: "a.txt", BackendRef: "discord_default"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, f.Status)
	require.NotEmpty(t, f.ID)
}

func TestChunkOrderUniqueness(t *testing.T) {
	c := NewInMemory()
	f, err := c.CreateFile(context.Background(), &LogicalFile{OriginalName: "a.txt"})
	require.NoError(t, err)

	require.NoError(t, c.CreateChunk(context.Background(), f.ID, 1, map[string]interface{}{"message_id": "1"}))
	err = c.CreateChunk(context.Background(), f.ID, 1, map[string]interface{}{"message_id": "2"})
	require.Error(t, err)
}

func TestFindResumableRequiresPendingAndFingerprint(t *testing.T) {
	c := NewInMemory()
	f, err := c.CreateFile(context.Background(), &LogicalFile{OriginalName: "a.txt", ClientFingerprint: "abc"})
	require.NoError(t, err)
	require.NoError(t, c.CreateChunk(context.Background(), f.ID, 1, nil))
	require.NoError(t, c.CreateChunk(context.Background(), f.ID, 2, nil))

	none, err := c.FindResumable(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, none)

	found, err := c.FindResumable(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, f.ID, found.ID)

	require.NoError(t, c.ChangeStatus(context.Background(), f.ID, StatusCompleted))
	none, err = c.FindResumable(context.Background(), "abc")
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestFindResumablePicksMostChunks(t *testing.T) {
	c := NewInMemory()
	a, _ := c.CreateFile(context.Background(), &LogicalFile{OriginalName: "a", ClientFingerprint: "fp"})
	b, _ := c.CreateFile(context.Background(), &LogicalFile{OriginalName: "b", ClientFingerprint: "fp"})

	require.NoError(t, c.CreateChunk(context.Background(), a.ID, 1, nil))
	require.NoError(t, c.CreateChunk(context.Background(), b.ID, 1, nil))
	require.NoError(t, c.CreateChunk(context.Background(), b.ID, 2, nil))

	found, err := c.FindResumable(context.Background(), "fp")
	require.NoError(t, err)
	require.Equal(t, b.ID, found.ID)
}

func TestDeleteFileCascadesChunks(t *testing.T) {
	c := NewInMemory()
	f, _ := c.CreateFile(context.Background(), &LogicalFile{OriginalName: "a"})
	require.NoError(t, c.CreateChunk(context.Background(), f.ID, 1, nil))

	require.NoError(t, c.DeleteFile(context.Background(), f.ID))
	_, err := c.GetFile(context.Background(), f.ID)
	require.Error(t, err)

	orders, err := c.ChunkOrders(context.Background(), f.ID)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestChangeStatusRejectsUnknownValue(t *testing.T) {
	c := NewInMemory()
	f, _ := c.CreateFile(context.Background(), &LogicalFile{OriginalName: "a"})
	err := c.ChangeStatus(context.Background(), f.ID, Status("BOGUS"))
	require.Error(t, err)
}
