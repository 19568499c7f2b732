package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stealthy-realtime/internal/fanout"
	"stealthy-realtime/internal/model"
	"stealthy-realtime/internal/store"
)

type broadcast struct {
	Event     model.EventType
	Targets   []string
	Excluding string
	Payload   any
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []broadcast
}

func (b *recordingBroadcaster) Broadcast(event model.EventType, targets []string, payload any) fanout.Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcast{Event: event, Targets: append([]string(nil), targets...), Payload: payload})
	return fanout.Report{Targets: len(targets)}
}

func (b *recordingBroadcaster) BroadcastExcept(event model.EventType, targets []string, excluding string, payload any) fanout.Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcast{Event: event, Targets: append([]string(nil), targets...), Excluding: excluding, Payload: payload})
	return fanout.Report{Targets: len(targets)}
}

func (b *recordingBroadcaster) recorded() []broadcast {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcast(nil), b.calls...)
}

func (b *recordingBroadcaster) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

// asUser stands in for RequireAuth.
func asUser(c *gin.Context) {
	if id := c.GetHeader("X-Test-User"); id != "" {
		c.Set("userID", id)
	}
	c.Next()
}

type testAPI struct {
	router *gin.Engine
	store  *store.Store
	bc     *recordingBroadcaster
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st, err := store.Open(store.Options{MaxGroupMembers: 5})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bc := &recordingBroadcaster{}
	chats := &ChatHandler{Store: st, Broadcaster: bc}
	messages := &MessageHandler{Store: st, Broadcaster: bc, MaxMessageLength: 20}
	requests := &RequestHandler{Store: st, Broadcaster: bc}

	r := gin.New()
	v1 := r.Group("/v1", asUser)
	v1.GET("/chats", chats.List)
	v1.POST("/chats", chats.Create)
	v1.GET("/chats/:id", chats.Get)
	v1.PATCH("/chats/:id", chats.Rename)
	v1.DELETE("/chats/:id", chats.Delete)
	v1.POST("/chats/:id/members", chats.AddMembers)
	v1.DELETE("/chats/:id/members/:userId", chats.RemoveMember)
	v1.POST("/chats/:id/leave", chats.Leave)
	v1.GET("/chats/:id/messages", messages.List)
	v1.POST("/chats/:id/messages", messages.Send)
	v1.POST("/requests", requests.Send)
	v1.GET("/requests", requests.List)
	v1.POST("/requests/:id/respond", requests.Respond)
	return &testAPI{router: r, store: st, bc: bc}
}

func (a *testAPI) do(t *testing.T, method, path, user string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func (a *testAPI) createGroup(t *testing.T, creator string, others ...string) string {
	t.Helper()
	w, resp := a.do(t, http.MethodPost, "/v1/chats", creator, gin.H{"name": "team", "otherMembers": others})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return resp["chat"].(map[string]any)["_id"].(string)
}

func TestChatHandler_CreateNotifiesMembers(t *testing.T) {
	api := newTestAPI(t)

	chatID := api.createGroup(t, "u1", "u2", "u3")

	calls := api.bc.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, model.EventAlert, calls[0].Event)
	assert.Equal(t, []string{"u1", "u2", "u3"}, calls[0].Targets)
	assert.Equal(t, model.AlertPayload{ChatID: chatID, Message: "Welcome to team group chat"}, calls[0].Payload)
	assert.Equal(t, model.EventRefetchChats, calls[1].Event)
	assert.Equal(t, []string{"u2", "u3"}, calls[1].Targets)

	msgs, err := api.store.Messages(chatID, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Welcome to team group chat", msgs[0].Content)
}

func TestChatHandler_CreateValidation(t *testing.T) {
	api := newTestAPI(t)

	w, _ := api.do(t, http.MethodPost, "/v1/chats", "u1", gin.H{"name": "team"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := api.do(t, http.MethodPost, "/v1/chats", "u1", gin.H{"name": "team", "otherMembers": []string{"u1"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "At least one other member is required", resp["error"])

	w, _ = api.do(t, http.MethodPost, "/v1/chats", "", gin.H{"name": "team", "otherMembers": []string{"u2"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, api.bc.recorded())
}

func TestChatHandler_GetAndList(t *testing.T) {
	api := newTestAPI(t)
	chatID := api.createGroup(t, "u1", "u2")

	w, resp := api.do(t, http.MethodGet, "/v1/chats/"+chatID, "u2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "team", resp["chat"].(map[string]any)["name"])

	w, _ = api.do(t, http.MethodGet, "/v1/chats/"+chatID, "outsider", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp = api.do(t, http.MethodGet, "/v1/chats/missing", "u1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Chat not found", resp["error"])

	w, resp = api.do(t, http.MethodGet, "/v1/chats", "u2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp["chats"], 1)
}

func TestChatHandler_MembershipChanges(t *testing.T) {
	api := newTestAPI(t)
	chatID := api.createGroup(t, "u1", "u2")
	api.bc.reset()

	w, _ := api.do(t, http.MethodPost, "/v1/chats/"+chatID+"/members", "u2", gin.H{"members": []string{"u3"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = api.do(t, http.MethodPost, "/v1/chats/"+chatID+"/members", "u1", gin.H{"members": []string{"u3", "u4"}})
	require.Equal(t, http.StatusOK, w.Code)
	calls := api.bc.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, model.EventAlert, calls[0].Event)
	assert.Equal(t, []string{"u1", "u2", "u3", "u4"}, calls[0].Targets)
	assert.Equal(t, model.EventRefetchChats, calls[1].Event)
	assert.Equal(t, []string{"u3", "u4"}, calls[1].Targets)
	api.bc.reset()

	w, _ = api.do(t, http.MethodDelete, "/v1/chats/"+chatID+"/members/u3", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	calls = api.bc.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"u1", "u2", "u4"}, calls[0].Targets)
	assert.Equal(t, model.AlertPayload{ChatID: chatID, Message: "User u3 has been removed from the group"}, calls[0].Payload)
	assert.Equal(t, []string{"u3"}, calls[1].Targets)
	api.bc.reset()

	w, _ = api.do(t, http.MethodPost, "/v1/chats/"+chatID+"/leave", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	calls = api.bc.recorded()
	require.Len(t, calls, 2)
	assert.Equal(t, model.EventAlert, calls[0].Event)
	assert.Equal(t, []string{"u2", "u4"}, calls[0].Targets)
	assert.Equal(t, model.EventRefetchChats, calls[1].Event)
	assert.Equal(t, []string{"u1"}, calls[1].Targets)

	chat, err := api.store.ChatForMember(chatID, "u2")
	require.NoError(t, err)
	assert.Equal(t, "u2", chat.Creator)
}

func TestChatHandler_RenameAndDelete(t *testing.T) {
	api := newTestAPI(t)
	chatID := api.createGroup(t, "u1", "u2")
	api.bc.reset()

	w, resp := api.do(t, http.MethodPatch, "/v1/chats/"+chatID, "u1", gin.H{"name": "renamed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "renamed", resp["chat"].(map[string]any)["name"])

	w, _ = api.do(t, http.MethodDelete, "/v1/chats/"+chatID, "u2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = api.do(t, http.MethodDelete, "/v1/chats/"+chatID, "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	calls := api.bc.recorded()
	require.Len(t, calls, 2)
	for _, call := range calls {
		assert.Equal(t, model.EventRefetchChats, call.Event)
		assert.Equal(t, []string{"u1", "u2"}, call.Targets)
	}
}
