package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kenneth/discord-file-vault/internal/backend"
)

func newTestRegistry() *backend.Registry {
	r := backend.NewRegistry()
	r.Register("Discord", func(config map[string]interface{}, skipValidation bool) (backend.Driver, error) {
		return nil, nil
	})
	return r
}

func TestCreateRejectsEmptyName(t *testing.T) {
	d := NewInMemory(newTestRegistry())
	_, err := d.Create(context.Background(), "", "Discord", map[string]interface{}{"a": 1})
	require.Error(t, err)
}

func TestCreateRejectsEmptyConfig(t *testing.T) {
	d := NewInMemory(newTestRegistry())
	_, err := d.Create(context.Background(), "primary", "Discord", nil)
	require.Error(t, err)
}

func TestCreateRejectsUnregisteredPlatform(t *testing.T) {
	d := NewInMemory(newTestRegistry())
	_, err := d.Create(context.Background(), "primary", "Nonexistent", map[string]interface{}{"a": 1})
	require.Error(t, err)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	d := NewInMemory(newTestRegistry())
	_, err := d.Create(context.Background(), "primary", "Discord", map[string]interface{}{"a": 1})
	require.NoError(t, err)
	_, err = d.Create(context.Background(), "primary", "Discord", map[string]interface{}{"a": 2})
	require.Error(t, err)
}

func TestGetByNameAndByIDReturnSameEntry(t *testing.T) {
	d := NewInMemory(newTestRegistry())
	created, err := d.Create(context.Background(), "primary", "Discord", map[string]interface{}{"a": 1})
	require.NoError(t, err)

	byName, err := d.GetByName(context.Background(), "primary")
	require.NoError(t, err)
	require.Equal(t, created.ID, byName.ID)

	byID, err := d.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, "primary", byID.Name)
}

func TestGetByNameMissingReturnsNotFound(t *testing.T) {
	d := NewInMemory(newTestRegistry())
	_, err := d.GetByName(context.Background(), "missing")
	require.Error(t, err)
}

func TestListAllReturnsAllEntries(t *testing.T) {
	d := NewInMemory(newTestRegistry())
	_, _ = d.Create(context.Background(), "a", "Discord", map[string]interface{}{"x": 1})
	_, _ = d.Create(context.Background(), "b", "Discord", map[string]interface{}{"x": 2})

	all, err := d.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
}
