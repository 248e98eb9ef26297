package metrics

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSanitizePathLabel(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/", "/"},
		{"/metrics", "/metrics"},
		{"/health", "/health"},
		{"/files/abc123", "/files/*"},
		{"/files/abc123/with/more/segments", "/files/*"},
		{"/files", "/files"},
		{"/files?query=param", "/files"},
		{"", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			result := sanitizePathLabel(tt.path)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRecordHTTPRequest_Cardinality(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry(reg)

	// Record requests with high cardinality paths
	m.RecordHTTPRequest(context.Background(), "GET", "/files/file1", http.StatusOK, time.Millisecond, 100)
	m.RecordHTTPRequest(context.Background(), "GET", "/files/file2", http.StatusOK, time.Millisecond, 100)
	m.RecordHTTPRequest(context.Background(), "GET", "/status/file1", http.StatusOK, time.Millisecond, 100)

	// Check that we have collapsed paths
	// We expect /files/* and /status/*

	countFiles := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/files/*", "OK"))
	assert.Equal(t, 2.0, countFiles)

	countStatus := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/status/*", "OK"))
	assert.Equal(t, 1.0, countStatus)
}

func TestRecordChunkOperation_DisableBackendLabel(t *testing.T) {
	// Create metrics with backend label disabled
	reg := prometheus.NewRegistry()
	cfg := Config{EnableBackendLabel: false}
	m := newMetricsWithRegistry(reg, cfg)

	m.RecordChunkOperation(context.Background(), "upload_chunk", "BotChannel", time.Millisecond, 10)
	m.RecordChunkOperation(context.Background(), "upload_chunk", "S3Compatible", time.Millisecond, 10)

	// Should align to backend_platform="*"
	count := testutil.ToFloat64(m.chunkOperationsTotal.WithLabelValues("upload_chunk", "*"))
	assert.Equal(t, 2.0, count)
}

func TestRecordChunkError_DisableBackendLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := Config{EnableBackendLabel: false}
	m := newMetricsWithRegistry(reg, cfg)

	m.RecordChunkError(context.Background(), "download_chunk", "BotChannel", "NotFound")
	m.RecordChunkError(context.Background(), "download_chunk", "S3Compatible", "NotFound")

	count := testutil.ToFloat64(m.chunkOperationErrors.WithLabelValues("download_chunk", "*", "NotFound"))
	assert.Equal(t, 2.0, count)
}
