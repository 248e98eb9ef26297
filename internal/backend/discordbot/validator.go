package discordbot

import (
	"context"
	"net/http"
	"time"

	"github.com/kenneth/discord-file-vault/internal/validate"
)

// Validate runs the BotChannel four-layer Config Validator (C3) against
// config: schema, format, business rules, then (unless skipLive) a live
// bot-identity probe.
func Validate(ctx context.Context, config map[string]interface{}, allowErrors, skipLive bool) (bool, *validate.Result) {
	return validate.Validate(ctx, validate.Layers{
		Schema:   func(r *validate.Result) { schemaLayer(r, config) },
		Format:   func(r *validate.Result) { formatLayer(r, config) },
		Business: func(r *validate.Result) { businessLayer(r, config) },
		LiveAPI:  func(ctx context.Context, r *validate.Result) { liveAPILayer(ctx, r, config) },
	}, allowErrors, skipLive)
}

func schemaLayer(r *validate.Result, config map[string]interface{}) {
	required := []string{"bot_token", "server_id", "channel_id"}
	for _, field := range required {
		v, ok := config[field]
		if !ok {
			r.AddError("Missing required field: '%s'", field)
			continue
		}
		switch v.(type) {
		case string, int, int64, float64:
		default:
			r.AddError("Field '%s' has an unsupported type", field)
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			r.AddError("Field '%s' cannot be empty", field)
		}
	}

	if v, ok := config["max_chunk_size"]; ok {
		if _, ok := asInt(v); !ok {
			r.AddError("Optional field 'max_chunk_size' must be an integer")
		}
	}
}

func formatLayer(r *validate.Result, config map[string]interface{}) {
	botToken, _ := config["bot_token"].(string)
	if botToken != "" && !validate.BotTokenPattern.MatchString(botToken) {
		r.AddWarning("Bot token doesn't match expected Discord token format. This might be a test token or incorrectly formatted.")
	}

	for _, field := range []string{"server_id", "channel_id"} {
		value := stringify(config[field])
		if value != "" && !validate.SnowflakePattern.MatchString(value) {
			r.AddError("'%s' (%s) doesn't match Discord Snowflake ID format (17-19 digits)", field, value)
		}
	}
}

func businessLayer(r *validate.Result, config map[string]interface{}) {
	v, present := config["max_chunk_size"]
	n, _ := asInt(v)
	validate.ChunkSizeBusinessRules(r, n, present)
}

func liveAPILayer(ctx context.Context, r *validate.Result, config map[string]interface{}) {
	botToken, _ := config["bot_token"].(string)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/users/@me", nil)
	if err != nil {
		r.AddError("Failed to build bot identity request: %v", err)
		return
	}
	req.Header.Set("Authorization", "Bot "+botToken)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		r.AddError("Failed to validate bot token: %v", err)
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return
	case resp.StatusCode == http.StatusUnauthorized:
		r.AddError("Bot token is invalid or unauthorized.")
	default:
		r.AddError("Unexpected response from Discord API when validating bot token: HTTP %d", resp.StatusCode)
	}
}
