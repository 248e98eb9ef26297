package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ryanuber/go-glob"

	"github.com/kenneth/discord-file-vault/internal/config"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeUploadChunk represents a chunk upload to a backend.
	EventTypeUploadChunk EventType = "upload_chunk"
	// EventTypeDownloadChunk represents a chunk download from a backend.
	EventTypeDownloadChunk EventType = "download_chunk"
	// EventTypePrepareStorage represents a prepare_storage call.
	EventTypePrepareStorage EventType = "prepare_storage"
	// EventTypeValidateConfig represents a backend config validation run.
	EventTypeValidateConfig EventType = "validate_config"
	// EventTypeKeyWrap represents a Key Manager wrap_key operation.
	EventTypeKeyWrap EventType = "key_wrap"
	// EventTypeKeyUnwrap represents a Key Manager unwrap_key operation.
	EventTypeKeyUnwrap EventType = "key_unwrap"
	// EventTypeResume represents a find_resumable lookup.
	EventTypeResume EventType = "resume"
)

// AuditEvent represents a single audit log event.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   EventType              `json:"event_type"`
	Operation   string                 `json:"operation"`
	FileID      string                 `json:"file_id,omitempty"`
	BackendName string                 `json:"backend_name,omitempty"`
	ClientIP    string                 `json:"client_ip,omitempty"`
	UserAgent   string                 `json:"user_agent,omitempty"`
	RequestID   string                 `json:"request_id,omitempty"`
	Algorithm   string                 `json:"algorithm,omitempty"`
	KeyVersion  int                    `json:"key_version,omitempty"`
	Success     bool                   `json:"success"`
	Error       string                 `json:"error,omitempty"`
	Duration    time.Duration          `json:"duration_ms"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Logger is the interface for audit logging.
type Logger interface {
	// Log logs an audit event.
	Log(event *AuditEvent) error

	// LogUploadChunk logs a chunk upload to a backend.
	LogUploadChunk(fileID, backendName string, success bool, err error, duration time.Duration, metadata map[string]interface{})

	// LogDownloadChunk logs a chunk download from a backend.
	LogDownloadChunk(fileID, backendName string, success bool, err error, duration time.Duration, metadata map[string]interface{})

	// LogKeyOperation logs a wrap_key or unwrap_key call against the Key Manager.
	LogKeyOperation(eventType EventType, fileID string, keyVersion int, success bool, err error)

	// LogAccess logs a general access operation.
	LogAccess(eventType EventType, fileID, backendName, clientIP, userAgent, requestID string, success bool, err error, duration time.Duration)

	// GetEvents returns all audit events (for testing/querying).
	GetEvents() []*AuditEvent

	// Close closes the logger and its underlying writer.
	Close() error
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	mu          sync.Mutex
	events      []*AuditEvent
	maxEvents   int
	writer      EventWriter
	redactGlobs []string
}

// EventWriter is an interface for writing audit events.
type EventWriter interface {
	WriteEvent(event *AuditEvent) error
}

// NewLogger creates a new audit logger.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	return NewLoggerWithRedaction(maxEvents, writer, nil)
}

// NewLoggerWithRedaction creates a new audit logger. redactGlobs are glob
// patterns (e.g. "*token*", "*secret*") matched against metadata keys.
func NewLoggerWithRedaction(maxEvents int, writer EventWriter, redactGlobs []string) Logger {
	if writer == nil {
		writer = &defaultWriter{}
	}

	return &auditLogger{
		events:      make([]*AuditEvent, 0, maxEvents),
		maxEvents:   maxEvents,
		writer:      writer,
		redactGlobs: redactGlobs,
	}
}

// NewLoggerFromConfig creates a new audit logger from configuration.
func NewLoggerFromConfig(cfg config.AuditConfig) (Logger, error) {
	var writer EventWriter

	switch cfg.Sink.Type {
	case "http":
		writer = NewHTTPSink(cfg.Sink.Endpoint, cfg.Sink.Headers)
	case "file":
		writer = NewFileSink(cfg.Sink.FilePath)
	case "stdout", "":
		writer = &defaultWriter{}
	default:
		return nil, fmt.Errorf("unknown sink type: %s", cfg.Sink.Type)
	}

	if cfg.Sink.BatchSize > 0 || cfg.Sink.FlushInterval > 0 {
		writer = NewBatchSink(writer, cfg.Sink.BatchSize, cfg.Sink.FlushInterval, cfg.Sink.RetryCount, cfg.Sink.RetryBackoff)
	}

	return NewLoggerWithRedaction(cfg.MaxEvents, writer, cfg.RedactMetadataKeys), nil
}

// Log logs an audit event.
func (l *auditLogger) Log(event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		l.writer.WriteEvent(event)
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}

	return nil
}

// Close closes the logger and its underlying writer.
func (l *auditLogger) Close() error {
	if closer, ok := l.writer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// redactMetadata masks any metadata value whose key matches a redaction
// glob pattern (e.g. "*token*", "*secret*").
func (l *auditLogger) redactMetadata(metadata map[string]interface{}) map[string]interface{} {
	if len(l.redactGlobs) == 0 || len(metadata) == 0 {
		return metadata
	}

	needsRedaction := false
	for k := range metadata {
		if l.matchesAnyGlob(k) {
			needsRedaction = true
			break
		}
	}
	if !needsRedaction {
		return metadata
	}

	clone := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		if l.matchesAnyGlob(k) {
			clone[k] = "[REDACTED]"
		} else {
			clone[k] = v
		}
	}
	return clone
}

func (l *auditLogger) matchesAnyGlob(key string) bool {
	for _, pattern := range l.redactGlobs {
		if glob.Glob(pattern, key) {
			return true
		}
	}
	return false
}

// LogUploadChunk logs a chunk upload to a backend.
func (l *auditLogger) LogUploadChunk(fileID, backendName string, success bool, err error, duration time.Duration, metadata map[string]interface{}) {
	event := &AuditEvent{
		Timestamp:   time.Now(),
		EventType:   EventTypeUploadChunk,
		Operation:   string(EventTypeUploadChunk),
		FileID:      fileID,
		BackendName: backendName,
		Success:     success,
		Duration:    duration,
		Metadata:    l.redactMetadata(metadata),
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// LogDownloadChunk logs a chunk download from a backend.
func (l *auditLogger) LogDownloadChunk(fileID, backendName string, success bool, err error, duration time.Duration, metadata map[string]interface{}) {
	event := &AuditEvent{
		Timestamp:   time.Now(),
		EventType:   EventTypeDownloadChunk,
		Operation:   string(EventTypeDownloadChunk),
		FileID:      fileID,
		BackendName: backendName,
		Success:     success,
		Duration:    duration,
		Metadata:    l.redactMetadata(metadata),
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// LogKeyOperation logs a wrap_key or unwrap_key call against the Key Manager.
func (l *auditLogger) LogKeyOperation(eventType EventType, fileID string, keyVersion int, success bool, err error) {
	event := &AuditEvent{
		Timestamp:  time.Now(),
		EventType:  eventType,
		Operation:  string(eventType),
		FileID:     fileID,
		KeyVersion: keyVersion,
		Success:    success,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// LogAccess logs a general access operation.
func (l *auditLogger) LogAccess(eventType EventType, fileID, backendName, clientIP, userAgent, requestID string, success bool, err error, duration time.Duration) {
	event := &AuditEvent{
		Timestamp:   time.Now(),
		EventType:   eventType,
		Operation:   string(eventType),
		FileID:      fileID,
		BackendName: backendName,
		ClientIP:    clientIP,
		UserAgent:   userAgent,
		RequestID:   requestID,
		Success:     success,
		Duration:    duration,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// GetEvents returns all audit events (for testing/querying).
func (l *auditLogger) GetEvents() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*AuditEvent, len(l.events))
	copy(events, l.events)
	return events
}

// defaultWriter is a default implementation that writes to stdout as JSON.
type defaultWriter struct{}

func (w *defaultWriter) WriteEvent(event *AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	fmt.Printf("%s\n", string(data))
	return nil
}

// nopWriter discards every event. Used when auditing is disabled so the
// Facade and File Service can still call a non-nil Logger unconditionally.
type nopWriter struct{}

func (w *nopWriter) WriteEvent(event *AuditEvent) error { return nil }

// NewDisabledLogger returns a Logger that records nothing and writes
// nothing, for when AuditConfig.Enabled is false but a caller still wants a
// non-nil Logger to pass around unconditionally.
func NewDisabledLogger() Logger {
	return NewLogger(0, &nopWriter{})
}
