package designer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EXG1O/telegram-bots-hub/internal/flow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := New(srv.URL, 42, "secret")
	return c, srv
}

func TestClient_GetBot_SetsPathAndAuth(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/telegram-bots-hub/telegram-bots/42/", r.URL.Path)
		assert.Equal(t, "Token secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 42, "is_private": true})
	})
	defer srv.Close()

	bot, err := c.GetBot(t.Context())
	require.NoError(t, err)
	assert.EqualValues(t, 42, bot.ID)
	assert.True(t, bot.IsPrivate)
}

func TestClient_GetTrigger_ByID(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/telegram-bots-hub/telegram-bots/42/triggers/7", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 7})
	})
	defer srv.Close()

	trig, err := c.GetTrigger(t.Context(), 7)
	require.NoError(t, err)
	assert.EqualValues(t, 7, trig.ID)
}

func TestClient_FindTriggerByCommand_SetsQuery(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "start", r.URL.Query().Get("command"))
		assert.Equal(t, "ref1", r.URL.Query().Get("command_payload"))
		assert.Equal(t, "true", r.URL.Query().Get("has_command_payload"))
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 1}})
	})
	defer srv.Close()

	triggers, err := c.FindTriggerByCommand(t.Context(), "start", "ref1")
	require.NoError(t, err)
	assert.Len(t, triggers, 1)
}

func TestClient_FindTriggerByCommand_NoPayloadOmitsCommandPayload(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "start", r.URL.Query().Get("command"))
		assert.Empty(t, r.URL.Query().Get("command_payload"))
		assert.Equal(t, "false", r.URL.Query().Get("has_command_payload"))
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 1}})
	})
	defer srv.Close()

	triggers, err := c.FindTriggerByCommand(t.Context(), "start", "")
	require.NoError(t, err)
	assert.Len(t, triggers, 1)
}

func TestClient_ListMessageTriggers_SetsHasMessageFilter(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("has_message"))
		_ = json.NewEncoder(w).Encode([]map[string]any{{"id": 1}})
	})
	defer srv.Close()

	triggers, err := c.ListMessageTriggers(t.Context())
	require.NoError(t, err)
	assert.Len(t, triggers, 1)
}

func TestClient_GetOrCreateUser_ReturnsExistingWithoutPOST(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			t.Fatal("should not create a user that already exists")
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{"telegram_id": 99, "full_name": "Ada"}})
	})
	defer srv.Close()

	user, err := c.GetOrCreateUser(t.Context(), 99, "Ada")
	require.NoError(t, err)
	assert.EqualValues(t, 99, user.TelegramID)
}

func TestClient_GetOrCreateUser_CreatesWhenMissing(t *testing.T) {
	calls := 0
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Method == http.MethodGet {
			_ = json.NewEncoder(w).Encode([]map[string]any{})
			return
		}
		assert.Equal(t, http.MethodPost, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{"telegram_id": 100, "full_name": "New"})
	})
	defer srv.Close()

	user, err := c.GetOrCreateUser(t.Context(), 100, "New")
	require.NoError(t, err)
	assert.EqualValues(t, 100, user.TelegramID)
	assert.Equal(t, 2, calls)
}

func TestClient_UpdateDatabaseRecords_OverwriteUsesPUT(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/telegram-bots-hub/telegram-bots/42/database-records/update-many", r.URL.Path)
	})
	defer srv.Close()

	err := c.UpdateDatabaseRecords(t.Context(), "owner", "7", map[string]any{"score": "10"}, true, false)
	require.NoError(t, err)
}

func TestClient_UpdateDatabaseRecords_MergeUsesPATCH(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
	})
	defer srv.Close()

	err := c.UpdateDatabaseRecords(t.Context(), "owner", "7", map[string]any{"score": "10"}, false, true)
	require.NoError(t, err)
}

func TestClient_ErrorStatusIsWrapped(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"not found"}`))
	})
	defer srv.Close()

	_, err := c.GetCondition(t.Context(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestClient_Fetch_DispatchesByKind(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 3})
	})
	defer srv.Close()

	obj, err := c.Fetch(t.Context(), flow.KindMessage, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, obj.(flow.Message).ID)
}
