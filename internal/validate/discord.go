package validate

import "regexp"

// Shared Discord-family format patterns and chunk-size business rules,
// used by both the BotChannel and Webhook config validators.
var (
	BotTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}\.[A-Za-z0-9_-]{6,}\.[A-Za-z0-9_-]{27,}$`)
	SnowflakePattern = regexp.MustCompile(`^\d{17,19}$`)
)

const (
	MinChunkSize         = 1024
	MaxChunkSize         = 10 * 1024 * 1024
	RecommendedChunkSize = 8 * 1024 * 1024
)

// ChunkSizeBusinessRules checks an optional max_chunk_size value against
// MinChunkSize/MaxChunkSize/RecommendedChunkSize. All violations are
// warnings, never errors (§4.3).
func ChunkSizeBusinessRules(r *Result, maxChunkSize int, present bool) {
	if !present {
		return
	}
	switch {
	case maxChunkSize < MinChunkSize:
		r.AddWarning("max_chunk_size (%d) is too small. Minimum is %d bytes", maxChunkSize, MinChunkSize)
	case maxChunkSize > MaxChunkSize:
		r.AddWarning("max_chunk_size (%d) exceeds the platform limit. Maximum is %d bytes", maxChunkSize, MaxChunkSize)
	case maxChunkSize > RecommendedChunkSize:
		r.AddWarning("max_chunk_size (%d) is larger than recommended (%d). This may cause issues with overhead.", maxChunkSize, RecommendedChunkSize)
	}
}
