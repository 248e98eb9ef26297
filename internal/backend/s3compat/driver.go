// Package s3compat implements the S3-Compatible backend driver: each
// LogicalFile gets an object-key prefix in a configured bucket, and every
// ciphertext chunk becomes one object under that prefix.
package s3compat

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kenneth/discord-file-vault/internal/errs"
)

const (
	Platform        = "S3Compatible"
	defaultMaxChunk = 8 * 1024 * 1024
)

// api is the subset of the AWS SDK v2 S3 client this driver calls, so
// tests can substitute a fake without standing up a real bucket.
type api interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Driver implements backend.Driver over an S3-compatible object store.
type Driver struct {
	client       api
	log          *logrus.Logger
	bucket       string
	provider     string
	maxChunkSize int
}

// New constructs an S3-Compatible driver from a backend config map holding
// bucket, access_key, secret_key, and optionally provider/region/endpoint.
func New(config map[string]interface{}, skipValidation bool, log *logrus.Logger) (*Driver, error) {
	if !skipValidation {
		ok, result := Validate(config)
		if !ok {
			return nil, errs.New(errs.KindConfigInvalid, "invalid S3-Compatible configuration: "+result.Report())
		}
	}

	bucket, _ := config["bucket"].(string)
	accessKey, _ := config["access_key"].(string)
	secretKey, _ := config["secret_key"].(string)
	provider, _ := config["provider"].(string)
	if provider == "" {
		provider = "aws"
	}
	region, _ := config["region"].(string)
	endpoint, _ := config["endpoint"].(string)

	endpoint, region, err := ResolveEndpointAndRegion(endpoint, provider, region)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfigInvalid, "failed to resolve S3 provider defaults", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfigInvalid, "failed to load AWS config", err)
	}

	usePathStyle := RequiresPathStyleAddressing(provider)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if provider != "aws" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = usePathStyle
	})

	maxChunkSize := defaultMaxChunk
	if v, ok := config["max_chunk_size"]; ok {
		if n, ok := asInt(v); ok {
			maxChunkSize = n
		}
	}

	return &Driver{client: client, log: log, bucket: bucket, provider: provider, maxChunkSize: maxChunkSize}, nil
}

func asInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

func (d *Driver) Platform() string  { return Platform }
func (d *Driver) MaxChunkSize() int { return d.maxChunkSize }

// PrepareStorage allocates an object-key prefix for the file, scoped by a
// random id so concurrent uploads of files sharing a name never collide.
func (d *Driver) PrepareStorage(ctx context.Context, meta map[string]interface{}) (map[string]interface{}, error) {
	filename, _ := meta["filename"].(string)
	if filename == "" {
		filename = "unknown"
	}
	prefix := fmt.Sprintf("vault/%s-%s", uuid.NewString(), sanitizeKeyComponent(filename))
	return map[string]interface{}{
		"bucket": d.bucket,
		"prefix": prefix,
	}, nil
}

// UploadChunk puts ciphertext under prefix/<chunk-uuid>.enc and returns the
// object key as the chunk reference.
func (d *Driver) UploadChunk(ctx context.Context, ciphertext []byte, storageContext map[string]interface{}) (map[string]interface{}, error) {
	prefix, _ := storageContext["prefix"].(string)
	if prefix == "" {
		return nil, errs.New(errs.KindUsageError, "storage_context must contain 'prefix' for S3-Compatible uploads")
	}
	key := fmt.Sprintf("%s/%s.enc", prefix, uuid.NewString())

	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(ciphertext),
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindUploadError, fmt.Sprintf("failed to put object %s/%s", d.bucket, key), err)
	}

	return map[string]interface{}{
		"bucket": d.bucket,
		"key":    key,
	}, nil
}

// DownloadChunk fetches the object named by reference["key"].
func (d *Driver) DownloadChunk(ctx context.Context, reference map[string]interface{}, storageContext map[string]interface{}) ([]byte, error) {
	key, _ := reference["key"].(string)
	if key == "" {
		return nil, errs.New(errs.KindDownloadError, "chunk_ref must contain 'key' for S3-Compatible downloads")
	}
	bucket := d.bucket
	if b, ok := reference["bucket"].(string); ok && b != "" {
		bucket = b
	}

	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindDownloadError, fmt.Sprintf("failed to get object %s/%s", bucket, key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindDownloadError, "failed to read object body", err)
	}
	if len(data) == 0 {
		return nil, errs.New(errs.KindDownloadError, "downloaded object was empty")
	}
	return data, nil
}

// DeleteChunk removes the object named by reference["key"].
func (d *Driver) DeleteChunk(ctx context.Context, reference map[string]interface{}, storageContext map[string]interface{}) error {
	key, _ := reference["key"].(string)
	if key == "" {
		return errs.New(errs.KindUsageError, "chunk_ref must contain 'key' to delete an S3-Compatible chunk")
	}
	bucket := d.bucket
	if b, ok := reference["bucket"].(string); ok && b != "" {
		bucket = b
	}
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errs.Wrap(errs.KindUploadError, fmt.Sprintf("failed to delete object %s/%s", bucket, key), err)
	}
	return nil
}

func sanitizeKeyComponent(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.', c == '-', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) > 64 {
		out = out[:64]
	}
	return string(out)
}
