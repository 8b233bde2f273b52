package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidalsh/multiplayer-backend/internal/engine"
	"github.com/davidalsh/multiplayer-backend/internal/hub"
	"github.com/davidalsh/multiplayer-backend/internal/session"
	"github.com/davidalsh/multiplayer-backend/internal/store"
)

const testSecret = "test-secret"

func testToken(t *testing.T, userID, name string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId":      userID,
		"displayName": name,
		"exp":         time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(ctx, store.NewMemory(), session.Config{
		PersistTimeout: time.Second,
	}, zap.NewNop())
	srv := NewServer(h, zap.NewNop())
	wsStub := func(w http.ResponseWriter, r *http.Request) {}
	return SetupRoutes(srv, wsStub, []byte(testSecret))
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

type sessionResponse struct {
	Message     string       `json:"message"`
	SessionID   string       `json:"sessionId"`
	GameSession engine.State `json:"gameSession"`
}

func TestAPI_RequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/sessions", "", map[string]string{"gameId": "g1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/sessions", "garbage-token", map[string]string{"gameId": "g1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_CreateValidatesBody(t *testing.T) {
	router := newTestRouter(t)
	alice := testToken(t, "alice", "Alice")

	rec := doJSON(t, router, http.MethodPost, "/api/sessions", alice, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetMissingSession(t *testing.T) {
	router := newTestRouter(t)
	alice := testToken(t, "alice", "Alice")

	rec := doJSON(t, router, http.MethodGet, "/api/sessions/ghost", alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_SessionLifecycle(t *testing.T) {
	router := newTestRouter(t)
	alice := testToken(t, "alice", "Alice")
	bob := testToken(t, "bob", "Bob")

	// create
	rec := doJSON(t, router, http.MethodPost, "/api/sessions", alice, map[string]string{"gameId": "g1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)
	require.Len(t, created.GameSession.Participants, 1)
	assert.Equal(t, "alice", created.GameSession.CurrentTurnUserID)
	assert.Equal(t, "waiting", created.GameSession.GameData["status"])

	base := "/api/sessions/" + created.SessionID

	// join
	rec = doJSON(t, router, http.MethodPost, base+"/join", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var joined sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &joined))
	require.Len(t, joined.GameSession.Participants, 2)
	assert.Equal(t, "Bob", joined.GameSession.Participants[1].DisplayName)

	// read
	rec = doJSON(t, router, http.MethodGet, base, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got.GameSession.Participants, 2)

	// state patch merges through the same session queue as game traffic
	rec = doJSON(t, router, http.MethodPut, base+"/state", alice,
		map[string]any{"gameState": map[string]any{"board": "b1"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var patched sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patched))
	assert.Equal(t, "b1", patched.GameSession.GameData["board"])
	assert.Equal(t, "waiting", patched.GameSession.GameData["status"])

	// leave marks inactive, never removes
	rec = doJSON(t, router, http.MethodPost, base+"/leave", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var left sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &left))
	require.Len(t, left.GameSession.Participants, 2)
	assert.False(t, left.GameSession.Participants[1].Active)
}

func TestAPI_UpdateStateValidatesBody(t *testing.T) {
	router := newTestRouter(t)
	alice := testToken(t, "alice", "Alice")

	rec := doJSON(t, router, http.MethodPost, "/api/sessions", alice, map[string]string{"gameId": "g1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, router, http.MethodPut, "/api/sessions/"+created.SessionID+"/state", alice,
		map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
