package s3compat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	objects map[string][]byte
}

func newFakeAPI() *fakeAPI { return &fakeAPI{objects: map[string][]byte{}} }

func objectKey(bucket, key *string) string { return aws.ToString(bucket) + "/" + aws.ToString(key) }

func (f *fakeAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[objectKey(in.Bucket, in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[objectKey(in.Bucket, in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey: object does not exist")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, objectKey(in.Bucket, in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func newTestDriver() (*Driver, *fakeAPI) {
	fa := newFakeAPI()
	return &Driver{client: fa, log: logrus.New(), bucket: "test-bucket", provider: "aws", maxChunkSize: defaultMaxChunk}, fa
}

func TestUploadThenDownloadChunkRoundTrips(t *testing.T) {
	d, _ := newTestDriver()
	ctx := context.Background()

	sc, err := d.PrepareStorage(ctx, map[string]interface{}{"filename": "report.pdf"})
	require.NoError(t, err)
	require.Equal(t, "test-bucket", sc["bucket"])
	require.NotEmpty(t, sc["prefix"])

	ref, err := d.UploadChunk(ctx, []byte("ciphertext-bytes"), sc)
	require.NoError(t, err)
	require.NotEmpty(t, ref["key"])

	data, err := d.DownloadChunk(ctx, ref, sc)
	require.NoError(t, err)
	require.Equal(t, "ciphertext-bytes", string(data))
}

func TestUploadChunkTwiceProducesDistinctKeys(t *testing.T) {
	d, _ := newTestDriver()
	ctx := context.Background()
	sc, _ := d.PrepareStorage(ctx, map[string]interface{}{"filename": "a.bin"})

	ref1, err := d.UploadChunk(ctx, []byte("one"), sc)
	require.NoError(t, err)
	ref2, err := d.UploadChunk(ctx, []byte("two"), sc)
	require.NoError(t, err)

	require.NotEqual(t, ref1["key"], ref2["key"])
}

func TestUploadChunkRequiresPrefix(t *testing.T) {
	d, _ := newTestDriver()
	_, err := d.UploadChunk(context.Background(), []byte("x"), map[string]interface{}{})
	require.Error(t, err)
}

func TestDeleteChunkRemovesObject(t *testing.T) {
	d, fa := newTestDriver()
	ctx := context.Background()
	sc, _ := d.PrepareStorage(ctx, map[string]interface{}{"filename": "a.bin"})
	ref, err := d.UploadChunk(ctx, []byte("x"), sc)
	require.NoError(t, err)
	require.NotEmpty(t, fa.objects)

	require.NoError(t, d.DeleteChunk(ctx, ref, sc))
	_, err = d.DownloadChunk(ctx, ref, sc)
	require.Error(t, err)
}

func TestSanitizeKeyComponentStripsUnsafeCharacters(t *testing.T) {
	require.Equal(t, "a_b_c.txt", sanitizeKeyComponent("a/b c.txt"))
}
