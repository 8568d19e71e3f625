package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"inboxdb/pkg/ingest"
	"inboxdb/pkg/models"
	"inboxdb/pkg/store"
)

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()
	st, err := store.OpenPebble(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	srv := httptest.NewServer(Handler(ingest.NewOrchestrator(st), st, 4<<20))
	t.Cleanup(srv.Close)
	return srv, st
}

const webhookBody = `{
	"metaData": {"entry": [{"changes": [{"value": {
		"contacts": [{"wa_id": "919937320320", "profile": {"name": "Ravi Kumar"}}],
		"messages": [{"id": "wamid.1", "from": "919937320320", "timestamp": "1754400000", "type": "text", "text": {"body": "Hi there"}}]
	}}]}]}
}`

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestWebhookIngest(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/webhook", webhookBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res ingest.Result
	decode(t, resp, &res)
	require.Equal(t, 1, res.Inserted)

	// duplicate delivery is accepted but inserts nothing
	resp = postJSON(t, srv.URL+"/v1/webhook", webhookBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &res)
	require.Equal(t, 0, res.Inserted)
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/webhook", `{broken`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConversationEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	_ = postJSON(t, srv.URL+"/v1/webhook", webhookBody)

	resp, err := http.Get(srv.URL + "/v1/conversations")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sidebar struct {
		Conversations []models.Conversation `json:"conversations"`
	}
	decode(t, resp, &sidebar)
	require.Len(t, sidebar.Conversations, 1)
	require.Equal(t, "919937320320", sidebar.Conversations[0].ConversationID)
	require.Equal(t, "Ravi Kumar", sidebar.Conversations[0].DisplayName)

	resp, err = http.Get(srv.URL + "/v1/conversations/919937320320/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var thread struct {
		ConversationID string           `json:"conversation_id"`
		Messages       []models.Message `json:"messages"`
	}
	decode(t, resp, &thread)
	require.Equal(t, "919937320320", thread.ConversationID)
	require.Len(t, thread.Messages, 1)
	require.Equal(t, "Hi there", thread.Messages[0].Body)
	require.Equal(t, models.DirectionInbound, thread.Messages[0].Direction)

	resp, err = http.Get(srv.URL + "/v1/conversations/919937320320/messages?limit=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/messages", `{"conversation_id": "919937320320", "body": "On my way"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Message
	decode(t, resp, &created)
	require.NotEmpty(t, created.PrimaryID)
	require.Equal(t, models.DirectionOutbound, created.Direction)
	require.Equal(t, models.StatusSent, created.Status)
	require.Equal(t, "text", created.Kind)

	// replaying with the assigned id conflicts
	replay, err := json.Marshal(map[string]string{
		"conversation_id": "919937320320",
		"primary_id":      created.PrimaryID,
		"body":            "On my way",
	})
	require.NoError(t, err)
	resp = postJSON(t, srv.URL+"/v1/messages", string(replay))
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/v1/messages", `{"body": "no conversation"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessageLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)
	_ = postJSON(t, srv.URL+"/v1/webhook", webhookBody)

	resp, err := http.Get(srv.URL + "/v1/messages/wamid.1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var m models.Message
	decode(t, resp, &m)
	require.Equal(t, "Hi there", m.Body)

	req, err := http.NewRequest(http.MethodPatch, srv.URL+"/v1/messages/wamid.1/status", bytes.NewReader([]byte(`{"status": "message_read"}`)))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var patched map[string]string
	decode(t, resp, &patched)
	require.Equal(t, "read", patched["status"])

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/v1/messages/wamid.1", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// the deleted message is gone from the API surface
	resp, err = http.Get(srv.URL + "/v1/messages/wamid.1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/v1/messages/wamid.1", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/messages/wamid.missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusPatchUnknownMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodPatch, srv.URL+"/v1/messages/wamid.ghost/status", bytes.NewReader([]byte(`{"status": "delivered"}`)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
