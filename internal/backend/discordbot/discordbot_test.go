package discordbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestDriver(t *testing.T, server *httptest.Server) *Driver {
	t.Helper()
	d, err := New(map[string]interface{}{
		"bot_token":  "test-token",
		"server_id":  "123456789012345678",
		"channel_id": "123456789012345678",
	}, true, logrus.New())
	require.NoError(t, err)
	d.httpClient = server.Client()
	d.apiBase = server.URL
	return d
}

func TestPrepareStorageTruncatesLongThreadNames(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/channels/123456789012345678/threads", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		name := body["name"].(string)
		require.Len(t, name, 93) // "[FILE] " + 90-char-truncate + "..."
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "999"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	d := newTestDriver(t, server)
	sc, err := d.PrepareStorage(context.Background(), map[string]interface{}{"filename": strings.Repeat("a", 200)})
	require.NoError(t, err)
	require.Equal(t, "999", sc["thread_id"])
}

func TestUploadChunkRenamesIDToMessageID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/channels/thread-1/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "msg-1", "attachments": []interface{}{}})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	d := newTestDriver(t, server)
	ref, err := d.UploadChunk(context.Background(), []byte("ciphertext"), map[string]interface{}{"thread_id": "thread-1"})
	require.NoError(t, err)
	require.Equal(t, "msg-1", ref["message_id"])
	require.NotContains(t, ref, "id")
	require.Equal(t, "thread-1", ref["thread_id"])
}

func TestDownloadChunkFetchesFirstAttachment(t *testing.T) {
	var attachmentServer *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/channels/thread-1/messages/msg-1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"attachments": []map[string]string{{"url": attachmentServer.URL + "/chunk.enc"}},
		})
	})
	mux.HandleFunc("/chunk.enc", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ciphertext-bytes"))
	})
	server := httptest.NewServer(mux)
	attachmentServer = server
	defer server.Close()

	d := newTestDriver(t, server)
	data, err := d.DownloadChunk(context.Background(),
		map[string]interface{}{"message_id": "msg-1", "thread_id": "thread-1"},
		map[string]interface{}{"thread_id": "thread-1"})
	require.NoError(t, err)
	require.Equal(t, "ciphertext-bytes", string(data))
}

func TestDownloadChunkRequiresThreadID(t *testing.T) {
	d := &Driver{httpClient: http.DefaultClient, log: logrus.New(), apiBase: apiBase}
	_, err := d.DownloadChunk(context.Background(), map[string]interface{}{"message_id": "1"}, map[string]interface{}{})
	require.Error(t, err)
}

func TestUploadChunkRequiresThreadID(t *testing.T) {
	d := &Driver{httpClient: http.DefaultClient, log: logrus.New(), apiBase: apiBase}
	_, err := d.UploadChunk(context.Background(), []byte("x"), map[string]interface{}{})
	require.Error(t, err)
}
