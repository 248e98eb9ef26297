package s3compat

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kenneth/discord-file-vault/internal/validate"
)

// Validate runs the S3-Compatible four-layer Config Validator (C3):
// schema, endpoint-format, chunk-size business rules, then a live
// HeadBucket probe. It always runs the live layer.
func Validate(config map[string]interface{}) (bool, *validate.Result) {
	return validateLayers(context.Background(), config, false, false)
}

func validateLayers(ctx context.Context, config map[string]interface{}, allowErrors, skipLive bool) (bool, *validate.Result) {
	return validate.Validate(ctx, validate.Layers{
		Schema:   func(r *validate.Result) { schemaLayer(r, config) },
		Format:   func(r *validate.Result) { formatLayer(r, config) },
		Business: func(r *validate.Result) { businessLayer(r, config) },
		LiveAPI:  func(ctx context.Context, r *validate.Result) { liveAPILayer(ctx, r, config) },
	}, allowErrors, skipLive)
}

func schemaLayer(r *validate.Result, config map[string]interface{}) {
	for _, field := range []string{"bucket", "access_key", "secret_key"} {
		v, ok := config[field]
		if !ok {
			r.AddError("Missing required field: '%s'", field)
			continue
		}
		s, ok := v.(string)
		if !ok || s == "" {
			r.AddError("Field '%s' must be a non-empty string", field)
		}
	}
	if mv, ok := config["max_chunk_size"]; ok {
		if _, ok := asInt(mv); !ok {
			r.AddError("Optional field 'max_chunk_size' must be an integer")
		}
	}
}

func formatLayer(r *validate.Result, config map[string]interface{}) {
	provider, _ := config["provider"].(string)
	if provider == "" {
		provider = "aws"
	}
	if !IsProviderSupported(provider) {
		r.AddError("Unknown provider '%s'", provider)
		return
	}
	if endpoint, _ := config["endpoint"].(string); endpoint != "" {
		if err := ValidateEndpoint(normalizeEndpoint(endpoint)); err != nil {
			r.AddError("Invalid 'endpoint': %v", err)
		}
	}
}

func businessLayer(r *validate.Result, config map[string]interface{}) {
	v, present := config["max_chunk_size"]
	n, _ := asInt(v)
	validate.ChunkSizeBusinessRules(r, n, present)
}

// liveAPILayer probes the bucket with a HeadBucket call, mirroring the
// BotChannel/Webhook validators' live-credential check.
func liveAPILayer(ctx context.Context, r *validate.Result, config map[string]interface{}) {
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
		r.AddError("Failed to resolve provider defaults: %v", err)
		return
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		r.AddError("Failed to load AWS config: %v", err)
		return
	}

	usePathStyle := RequiresPathStyleAddressing(provider)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if provider != "aws" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = usePathStyle
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		r.AddError("Bucket '%s' is not reachable with the supplied credentials: %v", bucket, err)
	}
}
