package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/branchmux/branchmux/content"
	"github.com/branchmux/branchmux/messaging"
	"github.com/branchmux/branchmux/model"
	"github.com/branchmux/branchmux/notification"
	"github.com/branchmux/branchmux/realtime"
	"github.com/branchmux/branchmux/server/middlewares"
	"github.com/branchmux/branchmux/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	graph  *content.Graph
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := utils.NewTestDB(t)
	hub := realtime.NewHub()
	dispatcher := realtime.NewDispatcher(hub)
	notifier := notification.NewEngine(db, dispatcher)
	graph := content.NewGraph(db, notifier, dispatcher)
	messages := messaging.NewService(db, dispatcher)
	gateway := NewGateway(db, hub, dispatcher, messages)

	router := gin.New()
	router.Use(middlewares.Identity())
	New(graph, messages, notifier, gateway).RegisterRoutes(router)

	return &testEnv{router: router, db: db, graph: graph}
}

func (e *testEnv) createUser(t *testing.T, handle string) *model.User {
	t.Helper()
	user := &model.User{
		Id:        uuid.New().String(),
		Handle:    handle,
		IsActive:  true,
		CreatedAt: time.Now(),
		LastSeen:  time.Now(),
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

// request performs an HTTP round trip; userID lands in the "sub" identity
// header, "" means anonymous.
func (e *testEnv) request(t *testing.T, method, path, userID string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("sub", userID)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var parsed map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func TestCreatePostEndpoint(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	w, body := env.request(t, http.MethodPost, "/posts", alice.Id,
		gin.H{"content": "hello world"})
	require.Equal(t, http.StatusCreated, w.Code)

	post := body["post"].(map[string]interface{})
	assert.Equal(t, "hello world", post["content"])
	assert.Equal(t, alice.Id, post["author_id"])
}

func TestCreatePostRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.request(t, http.MethodPost, "/posts", "", gin.H{"content": "hi"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreatePostValidationMapsTo400(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	w, _ := env.request(t, http.MethodPost, "/posts", alice.Id, gin.H{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = env.request(t, http.MethodPost, "/posts", alice.Id, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPostWithReplies(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	root, err := env.graph.CreatePost(alice.Id, "root", nil, false)
	require.NoError(t, err)
	_, err = env.graph.CreatePost(bob.Id, "reply", &root.Id, false)
	require.NoError(t, err)

	// Public read: no identity needed.
	w, body := env.request(t, http.MethodGet, "/posts/"+root.Id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["replies"].([]interface{}), 1)

	w, _ = env.request(t, http.MethodGet, "/posts/no-such-post", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeletePostOwnership(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	post, err := env.graph.CreatePost(alice.Id, "mine", nil, false)
	require.NoError(t, err)

	// Not the owner: indistinguishable from a missing post.
	w, _ := env.request(t, http.MethodDelete, "/posts/"+post.Id, bob.Id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := env.request(t, http.MethodDelete, "/posts/"+post.Id, alice.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, post.Id, body["deleted_post_id"])
}

func TestLikeAndShareEndpoints(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	post, err := env.graph.CreatePost(alice.Id, "likeable", nil, false)
	require.NoError(t, err)

	w, body := env.request(t, http.MethodPost, "/posts/"+post.Id+"/like", bob.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["is_liked"])
	assert.Equal(t, float64(1), body["likes_count"])

	w, body = env.request(t, http.MethodPost, "/posts/"+post.Id+"/like", bob.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["is_liked"])

	w, _ = env.request(t, http.MethodPost, "/posts/"+post.Id+"/share", bob.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	// Second share conflicts.
	w, _ = env.request(t, http.MethodPost, "/posts/"+post.Id+"/share", bob.Id, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTrendingEndpointPagination(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	for i := 0; i < 3; i++ {
		_, err := env.graph.CreatePost(alice.Id, "post", nil, false)
		require.NoError(t, err)
	}

	w, body := env.request(t, http.MethodGet, "/trending?page=1&per_page=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["posts"].([]interface{}), 2)

	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(3), pagination["total"])
	assert.Equal(t, true, pagination["has_next"])
	assert.Equal(t, false, pagination["has_prev"])
}

func TestNotificationEndpoints(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	post, err := env.graph.CreatePost(alice.Id, "notify me", nil, false)
	require.NoError(t, err)
	_, _, err = env.graph.LikePost(bob.Id, post.Id)
	require.NoError(t, err)

	w, body := env.request(t, http.MethodGet, "/notifications", alice.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	notifications := body["notifications"].([]interface{})
	require.Len(t, notifications, 1)
	assert.Equal(t, float64(1), body["unread_count"])

	id := notifications[0].(map[string]interface{})["id"].(string)
	w, _ = env.request(t, http.MethodPost, "/notifications/"+id+"/read", alice.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, body = env.request(t, http.MethodGet, "/notifications", alice.Id, nil)
	assert.Equal(t, float64(0), body["unread_count"])
}

func TestMessagingEndpoints(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	w, body := env.request(t, http.MethodPost, "/messages", alice.Id,
		gin.H{"recipient_id": bob.Id, "content": "hello"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, body["conversation_id"])

	// Self-messaging conflicts.
	w, _ = env.request(t, http.MethodPost, "/messages", alice.Id,
		gin.H{"recipient_id": alice.Id, "content": "me"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = env.request(t, http.MethodGet, "/messages/"+alice.Id, bob.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["messages"].([]interface{}), 1)

	w, body = env.request(t, http.MethodGet, "/conversations", bob.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	conversations := body["conversations"].([]interface{})
	require.Len(t, conversations, 1)
	assert.Equal(t, float64(1), conversations[0].(map[string]interface{})["unread_count"])
}

func TestMessageSaveAndDeleteEndpoints(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	w, body := env.request(t, http.MethodPost, "/messages", alice.Id,
		gin.H{"recipient_id": bob.Id, "content": "keep or toss"})
	require.Equal(t, http.StatusCreated, w.Code)
	msgID := body["message_data"].(map[string]interface{})["id"].(string)
	convID := body["conversation_id"].(string)

	w, _ = env.request(t, http.MethodPost, "/messages/"+msgID+"/save", bob.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body = env.request(t, http.MethodPost, "/conversations/"+convID+"/read", bob.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["marked_read"])

	// Each side deletes its own view; the second delete removes the row.
	w, _ = env.request(t, http.MethodDelete, "/messages/"+msgID, alice.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = env.request(t, http.MethodDelete, "/messages/"+msgID, bob.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = env.request(t, http.MethodDelete, "/messages/"+msgID, alice.Id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFollowEndpoints(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	w, _ := env.request(t, http.MethodPost, "/users/"+bob.Id+"/follow", alice.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = env.request(t, http.MethodPost, "/users/"+bob.Id+"/follow", alice.Id, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = env.request(t, http.MethodDelete, "/users/"+bob.Id+"/follow", alice.Id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = env.request(t, http.MethodDelete, "/users/"+bob.Id+"/follow", alice.Id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
