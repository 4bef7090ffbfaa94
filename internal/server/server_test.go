package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/igrek51/connect4solver/internal/game"
	"github.com/igrek51/connect4solver/internal/match"
	"github.com/igrek51/connect4solver/internal/solver"
	"github.com/igrek51/connect4solver/internal/storage"
)

func newTestServer(t *testing.T, store storage.Store) *Server {
	t.Helper()
	s, err := New(Config{
		Match: match.Settings{
			Width:           game.Columns,
			Height:          game.Rows,
			WinLength:       game.DefaultWinLength,
			ReconnectWindow: time.Minute,
		},
		BotFallbackAfter: 10 * time.Millisecond,
		Store:            store,
		SolverWorkers:    2,
		SolveMaxEmpties:  20,
	})
	require.NoError(t, err)
	gin.SetMode(gin.TestMode)
	return s
}

func postSolve(t *testing.T, s *Server, body any) (*httptest.ResponseRecorder, solveResponse) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/solve", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var resp solveResponse
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSolveStackedBoard(t *testing.T) {
	s := newTestServer(t, nil)
	w, resp := postSolve(t, s, map[string]any{
		"board":     "....\nABAB\nABAB\nABAB",
		"winLength": 4,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, []solver.Outcome{solver.Win, solver.Lose, solver.Win, solver.Lose}, resp.Outcomes)
	require.Equal(t, 0, resp.Best)
	require.False(t, resp.Cached)
	require.NotEmpty(t, resp.ID)
	require.Positive(t, resp.Nodes)
	require.Contains(t, resp.Board, "| 0 1 2 3 |")
	require.Contains(t, w.Body.String(), `"outcomes":["win","lose","win","lose"]`)
}

func TestSolvePerspectiveDefaultsToMover(t *testing.T) {
	s := newTestServer(t, nil)
	_, asB := postSolve(t, s, map[string]any{"board": "...\n...\n...", "winLength": 2, "mover": "b"})
	require.Equal(t, []solver.Outcome{solver.Win, solver.Win, solver.Win}, asB.Outcomes)

	_, forA := postSolve(t, s, map[string]any{"board": "...\n...\n...", "winLength": 2, "mover": "B", "perspective": "A"})
	require.Equal(t, []solver.Outcome{solver.Lose, solver.Lose, solver.Lose}, forA.Outcomes)
}

func TestSolveFullColumn(t *testing.T) {
	s := newTestServer(t, nil)
	w, resp := postSolve(t, s, map[string]any{"board": "A..\nB..\nA..", "winLength": 3, "mover": "B"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, solver.NoOutcome, resp.Outcomes[0])
	require.Contains(t, w.Body.String(), `"outcomes":[null,`)
}

func TestSolveRejectsBadInput(t *testing.T) {
	s := newTestServer(t, nil)
	tests := map[string]map[string]any{
		"missing board":  {"winLength": 4},
		"floating piece": {"board": "A...\n....\n....\nABAB"},
		"ragged rows":    {"board": "....\n..."},
		"bad mover":      {"board": "....\n....", "mover": "C"},
		"bad player":     {"board": "....\n....", "perspective": "x"},
		"win too long":   {"board": "....\n....", "winLength": 7},
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			w, _ := postSolve(t, s, body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	w, _ := postSolve(t, s, map[string]any{"board": strings.Repeat(".......\n", 5) + "......."})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSolveUsesStore(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "c4.db"))
	require.NoError(t, err)
	require.NoError(t, store.EnsureTables(ctx))
	t.Cleanup(func() { store.Close() })
	s := newTestServer(t, store)

	body := map[string]any{"board": "....\nABAB\nABAB\nABAB"}
	_, first := postSolve(t, s, body)
	require.False(t, first.Cached)

	_, second := postSolve(t, s, body)
	require.True(t, second.Cached)
	require.Equal(t, first.Outcomes, second.Outcomes)
	require.Equal(t, first.Nodes, second.Nodes)
	require.NotEqual(t, first.ID, second.ID)
}

func TestLeaderboardInMemory(t *testing.T) {
	s := newTestServer(t, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/leaderboard", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `[]`, w.Body.String())

	s.onFinish(&match.GameState{ID: "1", Winner: "alice"})
	s.onFinish(&match.GameState{ID: "2", Winner: "bob"})
	s.onFinish(&match.GameState{ID: "3", Winner: "alice"})
	s.onFinish(&match.GameState{ID: "4", Winner: match.BotName})

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/leaderboard", nil))
	require.JSONEq(t, `[{"username":"alice","wins":2},{"username":"bob","wins":1}]`, w.Body.String())
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == msgType {
			return msg
		}
	}
}

func TestWebsocketBotGame(t *testing.T) {
	s := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?username=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	readUntil(t, conn, "waiting")
	initMsg := readUntil(t, conn, "init")
	require.Equal(t, match.BotName, initMsg["opponent"])
	require.Equal(t, "A", initMsg["slot"])
	require.Equal(t, float64(game.Columns), initMsg["width"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "move", "column": 3}))
	state := readUntil(t, conn, "state")
	require.Equal(t, float64(3), state["column"])
	require.Equal(t, "B", state["turn"])

	// the bot answers right away
	state = readUntil(t, conn, "state")
	require.Equal(t, "A", state["turn"])
	require.Equal(t, 2, strings.Count(state["board"].(string), "A")+strings.Count(state["board"].(string), "B"))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "move", "column": 99}))
	msg := readUntil(t, conn, "error")
	require.Contains(t, msg["message"], "column")
}

func TestWebsocketRequiresUsername(t *testing.T) {
	s := newTestServer(t, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebsocketWaitingUserLeaves(t *testing.T) {
	s := newTestServer(t, nil)
	s.botDelay = time.Hour
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?username="

	alice, _, err := websocket.DefaultDialer.Dial(base+"alice", nil)
	require.NoError(t, err)
	readUntil(t, alice, "waiting")
	require.True(t, s.manager.IsWaiting("alice"))
	require.NoError(t, alice.Close())

	require.Eventually(t, func() bool { return !s.manager.IsWaiting("alice") }, 2*time.Second, 10*time.Millisecond)

	bob, _, err := websocket.DefaultDialer.Dial(base+"bob", nil)
	require.NoError(t, err)
	t.Cleanup(func() { bob.Close() })
	readUntil(t, bob, "waiting")
	require.True(t, s.manager.IsWaiting("bob"))
}

func TestSolveBudgetIsSharedBySlots(t *testing.T) {
	s, err := New(Config{
		Match:            match.Settings{Width: 4, Height: 4, WinLength: 4},
		CacheMaxEntries:  1000,
		SolveConcurrency: 4,
	})
	require.NoError(t, err)
	require.Equal(t, 250, s.cacheMaxEntries)

	require.Equal(t, 0, slotBudget(0, 3))
	require.Equal(t, 1, slotBudget(2, 3))
	require.Equal(t, 1000, slotBudget(1000, 1))
}

func TestSolveWaitsForFreeSlot(t *testing.T) {
	s := newTestServer(t, nil)
	require.NoError(t, s.solveSlots.Acquire(context.Background(), 1))
	t.Cleanup(func() { s.solveSlots.Release(1) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	data, err := json.Marshal(map[string]any{"board": "....\nABAB\nABAB\nABAB"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/solve", bytes.NewReader(data)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
}
