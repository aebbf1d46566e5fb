package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddenisenko/clubcode/internal/feed"
	"github.com/ddenisenko/clubcode/internal/repository"
	"github.com/ddenisenko/clubcode/internal/service"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	bus := feed.NewBus(nil)
	userRepo := repository.NewInMemoryUserRepository()

	roomService := service.NewRoomService(
		repository.NewInMemoryRoomRepository(),
		repository.NewInMemoryParticipantRepository(),
		userRepo,
		bus,
		nil,
	)
	signalService := service.NewSignalService(repository.NewInMemorySignalRepository(), bus, nil, 0)
	battleService := service.NewBattleService(
		repository.NewInMemoryBattleRepository(),
		repository.NewInMemoryBattleParticipantRepository(),
		userRepo,
		bus,
		nil,
	)
	t.Cleanup(battleService.Close)
	userService := service.NewUserService(userRepo, nil)

	roomController := NewRoomController(roomService, userService, signalService, bus, nil)
	battleController := NewBattleController(battleService, bus, nil)
	userController := NewUserController(userService)

	return SetupRouter(roomController, battleController, userController, nil, []string{"stun:stun.l.google.com:19302"})
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func createBattleViaAPI(t *testing.T, router *gin.Engine, creator uuid.UUID) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/battles/create", gin.H{
		"title":              "two sum",
		"problem_statement":  "sum the numbers",
		"time_limit_seconds": 600,
		"created_by":         creator.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	battle := body["battle"].(map[string]any)
	return battle["id"].(string)
}

func joinBattleViaAPI(t *testing.T, router *gin.Engine, battleID string, userID uuid.UUID, username string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, router, http.MethodPost, "/api/battles/"+battleID+"/join", gin.H{
		"user_id":  userID.String(),
		"username": username,
	})
}

func TestCreateBattleEndpoint(t *testing.T) {
	router := newTestRouter(t)

	battleID := createBattleViaAPI(t, router, uuid.New())

	rec := doJSON(t, router, http.MethodGet, "/api/battles/"+battleID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	battle := body["battle"].(map[string]any)
	assert.Equal(t, "waiting", battle["status"])
	assert.Equal(t, float64(600), battle["time_limit_seconds"])
}

func TestCreateBattleRejectsMissingFields(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/battles/create", gin.H{
		"title":      "incomplete",
		"created_by": uuid.New().String(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBattleLifecycleOverAPI(t *testing.T) {
	router := newTestRouter(t)
	creator := uuid.New()
	opponent := uuid.New()

	battleID := createBattleViaAPI(t, router, creator)

	rec := joinBattleViaAPI(t, router, battleID, creator, "alice")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = joinBattleViaAPI(t, router, battleID, opponent, "bob")
	require.Equal(t, http.StatusOK, rec.Code)

	// Only the creator can start.
	rec = doJSON(t, router, http.MethodPost, "/api/battles/"+battleID+"/start", gin.H{
		"user_id": opponent.String(),
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/battles/"+battleID+"/start", gin.H{
		"user_id": creator.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	battle := decodeBody(t, rec)["battle"].(map[string]any)
	assert.Equal(t, "active", battle["status"])

	code := "func solve(nums []int) int {\n\ttotal := 0\n\treturn total\n}"
	rec = doJSON(t, router, http.MethodPost, "/api/battles/"+battleID+"/submit", gin.H{
		"user_id": opponent.String(),
		"code":    code,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	participant := decodeBody(t, rec)["participant"].(map[string]any)
	assert.Equal(t, true, participant["is_correct"])
	assert.Equal(t, "submitted", participant["status"])

	rec = doJSON(t, router, http.MethodPost, "/api/battles/"+battleID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	battle = decodeBody(t, rec)["battle"].(map[string]any)
	assert.Equal(t, "completed", battle["status"])

	// Completion is idempotent over the API too.
	rec = doJSON(t, router, http.MethodPost, "/api/battles/"+battleID+"/complete", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartWithOnePlayerConflicts(t *testing.T) {
	router := newTestRouter(t)
	creator := uuid.New()

	battleID := createBattleViaAPI(t, router, creator)
	rec := joinBattleViaAPI(t, router, battleID, creator, "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/battles/"+battleID+"/start", gin.H{
		"user_id": creator.String(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestJoinStartedBattleConflicts(t *testing.T) {
	router := newTestRouter(t)
	creator := uuid.New()
	opponent := uuid.New()

	battleID := createBattleViaAPI(t, router, creator)
	require.Equal(t, http.StatusOK, joinBattleViaAPI(t, router, battleID, creator, "alice").Code)
	require.Equal(t, http.StatusOK, joinBattleViaAPI(t, router, battleID, opponent, "bob").Code)

	rec := doJSON(t, router, http.MethodPost, "/api/battles/"+battleID+"/start", gin.H{
		"user_id": creator.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = joinBattleViaAPI(t, router, battleID, uuid.New(), "late")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetUnknownBattle(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/battles/%s", uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/battles/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBattles(t *testing.T) {
	router := newTestRouter(t)
	createBattleViaAPI(t, router, uuid.New())
	createBattleViaAPI(t, router, uuid.New())

	rec := doJSON(t, router, http.MethodGet, "/api/battles", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	battles := decodeBody(t, rec)["battles"].([]any)
	assert.Len(t, battles, 2)
}

func dialBattle(t *testing.T, server *httptest.Server, battleID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/battles/" + battleID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readBattleUntil drains the watcher socket until a message of the wanted
// type arrives.
func readBattleUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %q", msgType)
		if msg["type"] == msgType {
			return msg
		}
	}
}

func TestWatchBattleStreamsLifecycle(t *testing.T) {
	router := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	creator := uuid.New()
	opponent := uuid.New()
	battleID := createBattleViaAPI(t, router, creator)
	require.Equal(t, http.StatusOK, joinBattleViaAPI(t, router, battleID, creator, "alice").Code)

	watcher := dialBattle(t, server, battleID)

	// A join while watching lands on the participant feed.
	require.Equal(t, http.StatusOK, joinBattleViaAPI(t, router, battleID, opponent, "bob").Code)
	msg := readBattleUntil(t, watcher, "participant")
	participant := msg["participant"].(map[string]any)
	assert.Equal(t, "bob", participant["username"])

	rec := doJSON(t, router, http.MethodPost, "/api/battles/"+battleID+"/start", gin.H{
		"user_id": creator.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	msg = readBattleUntil(t, watcher, "battle")
	battle := msg["battle"].(map[string]any)
	assert.Equal(t, "active", battle["status"])

	// Submissions sent over the watcher socket come back on the feed.
	code := "func solve(nums []int) int {\n\ttotal := 0\n\treturn total\n}"
	require.NoError(t, watcher.WriteJSON(gin.H{
		"type":    "submit",
		"user_id": opponent.String(),
		"code":    code,
	}))
	msg = readBattleUntil(t, watcher, "participant")
	participant = msg["participant"].(map[string]any)
	assert.Equal(t, "submitted", participant["status"])
	assert.Equal(t, true, participant["is_correct"])

	rec = doJSON(t, router, http.MethodPost, "/api/battles/"+battleID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	msg = readBattleUntil(t, watcher, "battle")
	battle = msg["battle"].(map[string]any)
	assert.Equal(t, "completed", battle["status"])
}

func TestWatchUnknownBattle(t *testing.T) {
	router := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/battles/" + uuid.NewString() + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
