package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutribot/nutribot/internal/chat"
	"github.com/nutribot/nutribot/internal/coach"
	"github.com/nutribot/nutribot/internal/log"
	"github.com/nutribot/nutribot/internal/memory"
	"github.com/nutribot/nutribot/internal/storage"
)

type stubEngine struct {
	plan *coach.CoachResponse
}

func (s *stubEngine) BuildPlan(context.Context, coach.PlanRequest) (*coach.CoachResponse, []coach.ToolCallRecord) {
	if s.plan != nil {
		return s.plan, nil
	}
	return &coach.CoachResponse{Summary: "eat more plants"}, nil
}

type stubClassifier struct {
	result string
}

func (s *stubClassifier) Enabled() bool { return s.result != "" }

func (s *stubClassifier) ClassifyImage(context.Context, string) (string, error) {
	return s.result, nil
}

type testEnv struct {
	server    *httptest.Server
	store     *storage.Store
	uploadDir string
}

func newTestEnv(t *testing.T, classifier *stubClassifier) testEnv {
	t.Helper()

	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Migrate(db))

	store, err := storage.NewStore(db)
	require.NoError(t, err)
	memStore, err := memory.NewStore(db)
	require.NoError(t, err)

	if classifier == nil {
		classifier = &stubClassifier{}
	}
	service, err := chat.NewService(store, &stubEngine{}, classifier, log.NewNop())
	require.NoError(t, err)

	uploadDir := filepath.Join(dir, "uploads")
	server, err := NewServer(ServerConfig{
		Logger:    log.NewNop(),
		Chat:      service,
		Store:     store,
		Memory:    memStore,
		DB:        db,
		UploadDir: uploadDir,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return testEnv{server: ts, store: store, uploadDir: uploadDir}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])

	resp, err = http.Get(env.server.URL + "/ready")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", decodeBody(t, resp)["status"])
}

func TestChatEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := postJSON(t, env.server.URL+"/api/v1/chat", map[string]any{
		"user_id": "alice",
		"message": "what should I eat for breakfast?",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.NotZero(t, body["conversation_id"])
	plan, ok := body["response"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "eat more plants", plan["summary"])
}

func TestChatValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing user_id", map[string]any{"message": "hi"}},
		{"empty turn", map[string]any{"user_id": "alice"}},
		{"oversized message", map[string]any{"user_id": "alice", "message": strings.Repeat("x", 4001)}},
		{"bad image url", map[string]any{"user_id": "alice", "image_url": "/etc/passwd"}},
		{"image url with traversal", map[string]any{"user_id": "alice", "image_url": "/uploads/../secret.jpg"}},
		{"too many goals", map[string]any{
			"user_id": "alice", "message": "hi",
			"goals": make([]string, 21),
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, env.server.URL+"/api/v1/chat", tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decodeBody(t, resp)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestChatRejectsNonFoodImage(t *testing.T) {
	env := newTestEnv(t, &stubClassifier{result: "rejected"})

	resp := postJSON(t, env.server.URL+"/api/v1/chat", map[string]any{
		"user_id":   "alice",
		"image_url": "/uploads/0123456789abcdef0123456789abcdef.jpg",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "image_rejected", decodeBody(t, resp)["error"])
}

func TestProfileRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)

	raw, err := json.Marshal(map[string]any{
		"goals":     []string{"lose weight"},
		"allergies": []string{"shellfish"},
		"notes":     "prefers morning workouts",
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPut,
		env.server.URL+"/api/v1/users/bob/profile", bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(env.server.URL + "/api/v1/users/bob/profile")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, []any{"lose weight"}, body["goals"])
	assert.Equal(t, []any{"shellfish"}, body["allergies"])
	assert.Equal(t, "prefers morning workouts", body["notes"])
}

func TestProfileNotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.server.URL + "/api/v1/users/nobody/profile")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestConversationRoutes(t *testing.T) {
	env := newTestEnv(t, nil)

	chatResp := decodeBody(t, postJSON(t, env.server.URL+"/api/v1/chat", map[string]any{
		"user_id": "carol",
		"message": "plan my lunch",
	}))
	conversationID := int64(chatResp["conversation_id"].(float64))

	resp, err := http.Get(env.server.URL + "/api/v1/conversations/carol")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	conversations, ok := body["conversations"].([]any)
	require.True(t, ok)
	require.Len(t, conversations, 1)

	url := env.server.URL + "/api/v1/conversations/carol/" +
		strconv.FormatInt(conversationID, 10) + "/messages"
	resp, err = http.Get(url)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, messages, 2)

	// Non-numeric conversation ID is rejected up front.
	resp, err = http.Get(env.server.URL + "/api/v1/conversations/carol/abc/messages")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestMemoryEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	memStore, err := memory.NewStore(env.store.DB())
	require.NoError(t, err)
	require.NoError(t, memStore.Add(context.Background(), "dave", "diet", "vegetarian", "stated directly"))

	resp, err := http.Get(env.server.URL + "/api/v1/memory/dave")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	snapshot, ok := body["snapshot"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "vegetarian", snapshot["diet"])
	recent, ok := body["recent"].([]any)
	require.True(t, ok)
	assert.Len(t, recent, 1)
}

func TestUploadImage(t *testing.T) {
	env := newTestEnv(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "meal.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("not really a jpeg"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(env.server.URL+"/api/v1/upload-image", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	imageURL, ok := body["image_url"].(string)
	require.True(t, ok)
	assert.Regexp(t, regexp.MustCompile(`^/uploads/[a-f0-9]{32}\.jpg$`), imageURL)

	// The stored file is served back under the same URL.
	resp, err = http.Get(env.server.URL + imageURL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestUploadRejectsUnknownExtension(t *testing.T) {
	env := newTestEnv(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "script.sh")
	require.NoError(t, err)
	_, err = part.Write([]byte("#!/bin/sh"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(env.server.URL+"/api/v1/upload-image", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unsupported_type", decodeBody(t, resp)["error"])
}
