// Package discordbot implements the BotChannel backend driver: one
// Discord thread per LogicalFile, ciphertext chunks posted as messages
// with a single attachment, bot-token authenticated.
package discordbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/discord-file-vault/internal/errs"
)

const (
	Platform        = "Discord"
	apiBase         = "https://discord.com/api/v10"
	defaultMaxChunk = 8 * 1024 * 1024
)

// Driver implements backend.Driver for the BotChannel platform.
type Driver struct {
	httpClient *http.Client
	log        *logrus.Logger
	apiBase    string // overridable in tests; defaults to the real Discord API

	botToken     string
	serverID     string
	channelID    string
	maxChunkSize int
}

// New constructs a BotChannel driver from its opaque config map. Unless
// skipValidation is set, the config is run through the four-layer
// validator, including a live bot-identity probe.
func New(config map[string]interface{}, skipValidation bool, log *logrus.Logger) (*Driver, error) {
	d := &Driver{httpClient: &http.Client{Timeout: 60 * time.Second}, log: log, maxChunkSize: defaultMaxChunk, apiBase: apiBase}

	if !skipValidation {
		ok, result := Validate(context.Background(), config, false, false)
		if !ok {
			return nil, errs.New(errs.KindConfigInvalid, "invalid BotChannel configuration: "+result.Report())
		}
	}

	d.botToken, _ = config["bot_token"].(string)
	d.serverID = stringify(config["server_id"])
	d.channelID = stringify(config["channel_id"])
	if v, ok := config["max_chunk_size"]; ok {
		if n, ok := asInt(v); ok {
			d.maxChunkSize = n
		}
	}
	return d, nil
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return ""
	}
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

// PrepareStorage creates a new public thread under the configured
// channel, named "[FILE] <filename>" (truncated to 90 chars).
func (d *Driver) PrepareStorage(ctx context.Context, meta map[string]interface{}) (map[string]interface{}, error) {
	filename, _ := meta["filename"].(string)
	if filename == "" {
		filename = "Untitled"
	}
	threadName := "[FILE] " + filename
	if len(threadName) > 90 {
		threadName = threadName[:90] + "..."
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"name":                  threadName,
		"type":                  11,
		"auto_archive_duration": 10080,
	})

	url := fmt.Sprintf("%s/channels/%s/threads", d.apiBase, d.channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.Wrap(errs.KindUploadPrepError, "failed to build thread-create request", err)
	}
	req.Header.Set("Authorization", "Bot "+d.botToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindUploadPrepError, "network error creating thread", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return nil, errs.New(errs.KindUploadPrepError, fmt.Sprintf("Discord API error (status %d): %s", resp.StatusCode, body))
	}

	var data struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errs.Wrap(errs.KindUploadPrepError, "malformed thread-create response", err)
	}
	return map[string]interface{}{"thread_id": data.ID}, nil
}

// UploadChunk posts ciphertext as a message attachment in the file's
// thread.
func (d *Driver) UploadChunk(ctx context.Context, ciphertext []byte, storageContext map[string]interface{}) (map[string]interface{}, error) {
	threadID, _ := storageContext["thread_id"].(string)
	if threadID == "" {
		return nil, errs.New(errs.KindUsageError, "storage_context must contain 'thread_id' for Discord uploads")
	}

	body, contentType, err := buildChunkMultipart(ciphertext)
	if err != nil {
		return nil, errs.Wrap(errs.KindUploadError, "failed to build multipart body", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", d.apiBase, threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, errs.Wrap(errs.KindUploadError, "failed to build chunk-upload request", err)
	}
	req.Header.Set("Authorization", "Bot "+d.botToken)
	req.Header.Set("Content-Type", contentType)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindUploadError, "network error uploading chunk", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.KindUploadError, fmt.Sprintf("Discord API error (status %d): %s", resp.StatusCode, respBody))
	}

	var data map[string]interface{}
	if err := json.Unmarshal(respBody, &data); err != nil {
		return nil, errs.Wrap(errs.KindUploadError, "malformed chunk-upload response", err)
	}
	if id, ok := data["id"]; ok {
		data["message_id"] = id
		delete(data, "id")
	}
	data["thread_id"] = threadID
	return data, nil
}

// DownloadChunk fetches the message in chunk_ref/storage_context's
// thread, then downloads its first attachment.
func (d *Driver) DownloadChunk(ctx context.Context, reference map[string]interface{}, storageContext map[string]interface{}) ([]byte, error) {
	chunkThreadID, _ := reference["thread_id"].(string)
	fileThreadID, _ := storageContext["thread_id"].(string)
	if chunkThreadID == "" && fileThreadID == "" {
		return nil, errs.New(errs.KindDownloadError, "either chunk_ref or storage_context must contain 'thread_id' for Discord downloads")
	}
	if fileThreadID != "" && chunkThreadID != "" && fileThreadID != chunkThreadID {
		d.log.Warn("mismatch between thread_id in storage_context and chunk_ref; using storage_context's thread_id")
	}
	threadID := fileThreadID
	if threadID == "" {
		threadID = chunkThreadID
	}

	messageID, _ := reference["message_id"].(string)
	if messageID == "" {
		return nil, errs.New(errs.KindDownloadError, "chunk_ref must contain 'message_id' for Discord downloads")
	}

	apiURL := fmt.Sprintf("%s/channels/%s/messages/%s", d.apiBase, threadID, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindDownloadError, "failed to build message-fetch request", err)
	}
	req.Header.Set("Authorization", "Bot "+d.botToken)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindDownloadError, "network error fetching message", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.KindDownloadError, fmt.Sprintf("Discord API error (status %d): %s", resp.StatusCode, body))
	}

	var message struct {
		Attachments []struct {
			URL string `json:"url"`
		} `json:"attachments"`
	}
	if err := json.Unmarshal(body, &message); err != nil {
		return nil, errs.Wrap(errs.KindDownloadError, "malformed message response", err)
	}
	if len(message.Attachments) == 0 {
		return nil, errs.New(errs.KindDownloadError, fmt.Sprintf("no attachments found in message %s", messageID))
	}

	return d.downloadAttachment(ctx, message.Attachments[0].URL)
}

// DeleteChunk deletes the message carrying the chunk's attachment.
func (d *Driver) DeleteChunk(ctx context.Context, reference map[string]interface{}, storageContext map[string]interface{}) error {
	threadID, _ := storageContext["thread_id"].(string)
	messageID, _ := reference["message_id"].(string)
	if threadID == "" || messageID == "" {
		return errs.New(errs.KindUsageError, "storage_context and chunk_ref must contain thread_id and message_id to delete a chunk")
	}

	url := fmt.Sprintf("%s/channels/%s/messages/%s", d.apiBase, threadID, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return errs.Wrap(errs.KindUploadError, "failed to build delete request", err)
	}
	req.Header.Set("Authorization", "Bot "+d.botToken)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(errs.KindUploadError, "network error deleting chunk", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return errs.New(errs.KindUploadError, fmt.Sprintf("Discord API error deleting chunk (status %d): %s", resp.StatusCode, body))
	}
	return nil
}

func (d *Driver) downloadAttachment(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindDownloadError, "failed to build attachment-download request", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindDownloadError, "network error downloading attachment", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindDownloadError, "failed to read attachment body", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.KindDownloadError, fmt.Sprintf("failed to download attachment (status %d)", resp.StatusCode))
	}
	if len(data) == 0 {
		return nil, errs.New(errs.KindDownloadError, "downloaded attachment was empty")
	}
	return data, nil
}

func buildChunkMultipart(ciphertext []byte) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	part, err := w.CreateFormFile("files[0]", "chunk.enc")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(ciphertext); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("payload_json", "{}"); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
