// Package discordhook implements the Webhook backend driver: a single
// Discord webhook anchored by a "bookmark" message per LogicalFile,
// ciphertext chunks posted through that webhook.
package discordhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenneth/discord-file-vault/internal/errs"
)

const (
	Platform        = "Discord_Webhook"
	apiBase         = "https://discord.com/api/v10"
	defaultMaxChunk = 8 * 1024 * 1024
)

// Driver implements backend.Driver for the Webhook platform. Identity
// (server/channel/webhook id and token) is resolved once at construction
// by fetching webhookURL, matching the original provider's behavior.
type Driver struct {
	httpClient *http.Client
	log        *logrus.Logger
	apiBase    string

	webhookURL   string
	maxChunkSize int

	serverID     string
	channelID    string
	webhookID    string
	webhookToken string
}

// New constructs a Webhook driver. Unlike BotChannel, the original
// provider always resolves identity at construction regardless of
// skipValidation — schema/format validation is separately gated.
func New(ctx context.Context, config map[string]interface{}, skipValidation bool, log *logrus.Logger) (*Driver, error) {
	d := &Driver{httpClient: &http.Client{Timeout: 60 * time.Second}, log: log, maxChunkSize: defaultMaxChunk, apiBase: apiBase}

	if !skipValidation {
		ok, result := Validate(ctx, config, false, false)
		if !ok {
			return nil, errs.New(errs.KindConfigInvalid, "invalid Webhook configuration: "+result.Report())
		}
	}

	d.webhookURL, _ = config["webhook_url"].(string)
	if v, ok := config["max_chunk_size"]; ok {
		if n, ok := asInt(v); ok {
			d.maxChunkSize = n
		}
	}

	creds, err := d.fetchCredentials(ctx)
	if err != nil {
		return nil, err
	}
	d.serverID = creds.GuildID
	d.channelID = creds.ChannelID
	d.webhookID = creds.ID
	d.webhookToken = creds.Token

	return d, nil
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

type webhookIdentity struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	ID        string `json:"id"`
	Token     string `json:"token"`
}

func (d *Driver) fetchCredentials(ctx context.Context) (*webhookIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.webhookURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindUploadPrepError, "failed to build webhook identity request", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindUploadPrepError, "network error fetching webhook identity", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.KindUploadPrepError, fmt.Sprintf("Discord API error (status %d): %s", resp.StatusCode, body))
	}
	var data webhookIdentity
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errs.Wrap(errs.KindUploadPrepError, "malformed webhook identity response", err)
	}
	return &data, nil
}

func (d *Driver) Platform() string  { return Platform }
func (d *Driver) MaxChunkSize() int { return d.maxChunkSize }

// PrepareStorage posts a short bookmark message through the webhook to
// anchor the file, then augments the response with server_id and
// webhook_token from the identity fetched at construction.
func (d *Driver) PrepareStorage(ctx context.Context, meta map[string]interface{}) (map[string]interface{}, error) {
	filename, _ := meta["filename"].(string)
	if filename == "" {
		filename = "Unknown"
	}
	content := fmt.Sprintf("Preparing for the upload of %s...", filename)
	if len(content) > 1950 {
		content = content[:1950] + "..."
	}

	payload, _ := json.Marshal(map[string]interface{}{"content": content})
	url := d.webhookURL + "?wait=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.Wrap(errs.KindUploadPrepError, "failed to build bookmark request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindUploadPrepError, "network error creating bookmark message", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.KindUploadPrepError, fmt.Sprintf("Discord API error (status %d): %s", resp.StatusCode, body))
	}

	var data struct {
		Timestamp string `json:"timestamp"`
		ID        string `json:"id"`
		ChannelID string `json:"channel_id"`
		WebhookID string `json:"webhook_id"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, errs.Wrap(errs.KindUploadPrepError, "malformed bookmark response", err)
	}

	storageContext := map[string]interface{}{
		"timestamp":     data.Timestamp,
		"message_id":    data.ID,
		"channel_id":    data.ChannelID,
		"webhook_id":    data.WebhookID,
		"server_id":     d.serverID,
		"webhook_token": d.webhookToken,
	}
	storageContext["message_url"] = fmt.Sprintf("https://discord.com/channels/%s/%s/%s", d.serverID, data.ChannelID, data.ID)
	return storageContext, nil
}

// UploadChunk posts ciphertext through the webhook. It prefers
// self.webhookURL over any webhook_url carried in storageContext,
// matching the original provider's (arguably buggy) precedence, and
// synthesizes message_url/webhook_message_url from the driver's own
// identity rather than storageContext's (§9 design note).
func (d *Driver) UploadChunk(ctx context.Context, ciphertext []byte, storageContext map[string]interface{}) (map[string]interface{}, error) {
	serverID, _ := storageContext["server_id"].(string)
	channelID, _ := storageContext["channel_id"].(string)
	if serverID == "" || channelID == "" {
		return nil, errs.New(errs.KindUsageError, "storage_context must contain 'server_id' and 'channel_id' for Discord Webhook uploads")
	}

	body, contentType, err := buildChunkMultipart(ciphertext)
	if err != nil {
		return nil, errs.Wrap(errs.KindUploadError, "failed to build multipart body", err)
	}

	url := d.webhookURL + "?wait=true"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, errs.Wrap(errs.KindUploadError, "failed to build chunk-upload request", err)
	}
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

	var chunkRef map[string]interface{}
	if err := json.Unmarshal(respBody, &chunkRef); err != nil {
		return nil, errs.Wrap(errs.KindUploadError, "malformed chunk-upload response", err)
	}
	id, ok := chunkRef["id"]
	if !ok {
		return nil, errs.New(errs.KindUploadError, "Discord API response missing 'id' field")
	}
	chunkRef["message_id"] = id
	delete(chunkRef, "id")

	messageID := fmt.Sprintf("%v", id)
	chunkRef["message_url"] = fmt.Sprintf("https://discord.com/channels/%s/%s/%s", d.serverID, d.channelID, messageID)
	chunkRef["webhook_message_url"] = fmt.Sprintf("%s/webhooks/%s/%s/messages/%s", d.apiBase, d.webhookID, d.webhookToken, messageID)
	return chunkRef, nil
}

// DownloadChunk retrieves the message at webhook_message_url and
// downloads its first attachment.
func (d *Driver) DownloadChunk(ctx context.Context, reference map[string]interface{}, storageContext map[string]interface{}) ([]byte, error) {
	webhookMessageURL, _ := reference["webhook_message_url"].(string)
	if webhookMessageURL == "" {
		return nil, errs.New(errs.KindDownloadError, "chunk_ref must contain 'webhook_message_url' for downloading chunks")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, webhookMessageURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindDownloadError, "failed to build message-fetch request", err)
	}
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
		return nil, errs.New(errs.KindDownloadError, "no attachments found in webhook message")
	}

	return d.downloadAttachment(ctx, message.Attachments[0].URL)
}

// DeleteChunk is a no-op: a webhook cannot reliably delete a message it
// did not author under another principal's permissions in all
// configurations (§9 "deletion parity" — unspecified for this backend).
func (d *Driver) DeleteChunk(ctx context.Context, reference map[string]interface{}, storageContext map[string]interface{}) error {
	d.log.Warn("Webhook backend does not support chunk deletion; leaving remote message in place")
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
