package discordhook

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/kenneth/discord-file-vault/internal/validate"
)

// Validate runs the Webhook four-layer Config Validator (C3): schema,
// URL-format, chunk-size business rules, then (unless skipLive) a live
// probe of webhook_url itself.
func Validate(ctx context.Context, config map[string]interface{}, allowErrors, skipLive bool) (bool, *validate.Result) {
	return validate.Validate(ctx, validate.Layers{
		Schema:   func(r *validate.Result) { schemaLayer(r, config) },
		Format:   func(r *validate.Result) { formatLayer(r, config) },
		Business: func(r *validate.Result) { businessLayer(r, config) },
		LiveAPI:  func(ctx context.Context, r *validate.Result) { liveAPILayer(ctx, r, config) },
	}, allowErrors, skipLive)
}

func schemaLayer(r *validate.Result, config map[string]interface{}) {
	v, ok := config["webhook_url"]
	if !ok {
		r.AddError("Missing required field: 'webhook_url'")
		return
	}
	s, ok := v.(string)
	if !ok {
		r.AddError("Field 'webhook_url' must be a string")
		return
	}
	if s == "" {
		r.AddError("Field 'webhook_url' cannot be empty")
	}

	if mv, ok := config["max_chunk_size"]; ok {
		if _, ok := asInt(mv); !ok {
			r.AddError("Optional field 'max_chunk_size' must be an integer")
		}
	}
}

func formatLayer(r *validate.Result, config map[string]interface{}) {
	s, _ := config["webhook_url"].(string)
	if s == "" {
		return
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		r.AddError("'webhook_url' (%s) is not a valid https URL", s)
	}
}

func businessLayer(r *validate.Result, config map[string]interface{}) {
	v, present := config["max_chunk_size"]
	n, _ := asInt(v)
	validate.ChunkSizeBusinessRules(r, n, present)
}

func liveAPILayer(ctx context.Context, r *validate.Result, config map[string]interface{}) {
	s, _ := config["webhook_url"].(string)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s, nil)
	if err != nil {
		r.AddError("Failed to build webhook identity request: %v", err)
		return
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		r.AddError("Failed to validate webhook_url: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		r.AddError("Unexpected response from Discord API when validating webhook_url: HTTP %d", resp.StatusCode)
	}
}
