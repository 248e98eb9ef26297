package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	platform     string
	maxChunk     int
	prepareErr   error
	uploadErr    error
	downloadErr  error
	deleteErr    error
	downloadData []byte
}

func (d *fakeDriver) Platform() string  { return d.platform }
func (d *fakeDriver) MaxChunkSize() int { return d.maxChunk }

func (d *fakeDriver) PrepareStorage(ctx context.Context, meta map[string]interface{}) (map[string]interface{}, error) {
	if d.prepareErr != nil {
		return nil, d.prepareErr
	}
	return map[string]interface{}{"thread_id": "1"}, nil
}

func (d *fakeDriver) UploadChunk(ctx context.Context, ciphertext []byte, storageContext map[string]interface{}) (map[string]interface{}, error) {
	if d.uploadErr != nil {
		return nil, d.uploadErr
	}
	return map[string]interface{}{"message_id": "1"}, nil
}

func (d *fakeDriver) DownloadChunk(ctx context.Context, reference map[string]interface{}, storageContext map[string]interface{}) ([]byte, error) {
	if d.downloadErr != nil {
		return nil, d.downloadErr
	}
	return d.downloadData, nil
}

func (d *fakeDriver) DeleteChunk(ctx context.Context, reference map[string]interface{}, storageContext map[string]interface{}) error {
	return d.deleteErr
}

func TestPrepareStorageRejectsNilMeta(t *testing.T) {
	f := NewFromDriver(&fakeDriver{}, logrus.New())
	_, err := f.PrepareStorage(context.Background(), nil)
	require.Error(t, err)
}

func TestUploadChunkRejectsEmptyCiphertext(t *testing.T) {
	f := NewFromDriver(&fakeDriver{}, logrus.New())
	_, err := f.UploadChunk(context.Background(), nil, map[string]interface{}{"a": 1})
	require.Error(t, err)
}

func TestDownloadChunkRejectsEmptyResultFromDriver(t *testing.T) {
	f := NewFromDriver(&fakeDriver{downloadData: nil}, logrus.New())
	_, err := f.DownloadChunk(context.Background(), map[string]interface{}{"a": 1}, map[string]interface{}{})
	require.Error(t, err)
}

func TestDownloadChunkReturnsDataOnSuccess(t *testing.T) {
	f := NewFromDriver(&fakeDriver{downloadData: []byte("ciphertext")}, logrus.New())
	data, err := f.DownloadChunk(context.Background(), map[string]interface{}{"a": 1}, map[string]interface{}{})
	require.NoError(t, err)
	require.Equal(t, "ciphertext", string(data))
}

func TestUploadChunkWrapsDriverErrors(t *testing.T) {
	f := NewFromDriver(&fakeDriver{uploadErr: errors.New("network error")}, logrus.New())
	_, err := f.UploadChunk(context.Background(), []byte("ct"), map[string]interface{}{"a": 1})
	require.Error(t, err)
}
