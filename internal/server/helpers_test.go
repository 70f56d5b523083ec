package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/smarter-english/elt-trading-game/internal/auth"
	"github.com/smarter-english/elt-trading-game/internal/auth/authtest"
	"github.com/smarter-english/elt-trading-game/internal/config"
	"github.com/smarter-english/elt-trading-game/internal/market"
)

// memoryStore is a GameStore that keeps snapshots in memory.
type memoryStore struct {
	mu       sync.Mutex
	games    map[string][]byte
	sessions map[string]SessionInfo
	finished []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		games:    make(map[string][]byte),
		sessions: make(map[string]SessionInfo),
	}
}

func (m *memoryStore) SaveGame(_ context.Context, game *ActiveGame) error {
	data, _, _, err := snapshot(game)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[game.ID] = data
	return nil
}

func (m *memoryStore) LoadAllGames(_ context.Context) ([]*ActiveGame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	games := make([]*ActiveGame, 0, len(m.games))
	for _, data := range m.games {
		var game ActiveGame
		if err := json.Unmarshal(data, &game); err != nil {
			return nil, err
		}
		game.ensureMaps()
		games = append(games, &game)
	}
	return games, nil
}

func (m *memoryStore) DeleteGame(_ context.Context, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.games[gameID]; !exists {
		return ErrGameNotFound
	}
	delete(m.games, gameID)
	for token, s := range m.sessions {
		if s.GameID == gameID {
			delete(m.sessions, token)
		}
	}
	return nil
}

func (m *memoryStore) SaveSession(_ context.Context, session SessionInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.Token] = session
	return nil
}

func (m *memoryStore) LoadAllSessions(_ context.Context) ([]SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (m *memoryStore) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

// CleanupOldGames removes whatever ids were queued in finished.
func (m *memoryStore) CleanupOldGames(_ context.Context, _ time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := m.finished
	m.finished = nil
	for _, id := range deleted {
		delete(m.games, id)
	}
	return deleted, nil
}

func (m *memoryStore) hasGame(gameID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.games[gameID]
	return exists
}

func (m *memoryStore) sessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func testScenario(t testing.TB) *market.Scenario {
	t.Helper()
	s, err := market.DefaultScenario()
	require.NoError(t, err)
	return s
}

func newTestServer(t testing.TB) (*Server, *memoryStore) {
	t.Helper()
	accounts, _ := authtest.NewService()
	store := newMemoryStore()
	cfg := config.Config{AllowedOrigins: []string{"*"}}
	return newServer(cfg, nil, store, accounts, testScenario(t), authtest.FastHasher()), store
}

func serve(s *Server) (string, func()) {
	server := httptest.NewServer(http.HandlerFunc(s.websocketHandler))
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/websocket"
	return url, server.Close
}

func setupTestServer(t testing.TB) (*Server, string, func()) {
	t.Helper()
	s, _ := newTestServer(t)
	url, cleanup := serve(s)
	return s, url, cleanup
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// envelope is ServerMessage as the client reads it.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg := ClientMessage{Type: msgType}
	if payload != nil {
		msg.Payload = mustMarshal(payload)
	}
	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, mustMarshal(msg)))
}

// readType reads until a message of msgType arrives, skipping state pushes
// and anything else in between.
func readType(t *testing.T, conn *websocket.Conn, msgType string) envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err, "waiting for %s", msgType)

		var env envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == msgType {
			return env
		}
		if msgType != MsgError && env.Type == MsgError {
			t.Fatalf("waiting for %s, got error: %s", msgType, env.Payload)
		}
	}
}

func readError(t *testing.T, conn *websocket.Conn) ErrorMessage {
	t.Helper()
	var msg ErrorMessage
	decode(t, readType(t, conn, MsgError), &msg)
	return msg
}

func decode(t *testing.T, env envelope, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Payload, v))
}

// signInTeacher registers a teacher and authenticates conn as them.
func signInTeacher(t *testing.T, s *Server, conn *websocket.Conn, email string, role auth.Role) auth.Teacher {
	t.Helper()
	teacher, token, err := authtest.Teacher(context.Background(), s.accounts, email, role)
	require.NoError(t, err)

	send(t, conn, MsgTeacherAuth, TeacherAuthRequest{Token: token})
	readType(t, conn, MsgTeacherAuthed)
	return teacher
}

func createGame(t *testing.T, conn *websocket.Conn, name string) CreateGameResponse {
	t.Helper()
	send(t, conn, MsgCreateGame, CreateGameRequest{Name: name})
	var resp CreateGameResponse
	decode(t, readType(t, conn, MsgGameCreated), &resp)
	return resp
}

func joinGame(t *testing.T, conn *websocket.Conn, code, team, password string) JoinGameResponse {
	t.Helper()
	send(t, conn, MsgJoinGame, JoinGameRequest{Code: code, TeamName: team, Password: password})
	var resp JoinGameResponse
	decode(t, readType(t, conn, MsgGameJoined), &resp)
	return resp
}

func authtestTeacher(s *Server, email string, role auth.Role) (auth.Teacher, string, error) {
	return authtest.Teacher(context.Background(), s.accounts, email, role)
}

// approve admits a team and waits until the team sees it.
func approve(t *testing.T, teacher, team *websocket.Conn, gameID, teamID string) {
	t.Helper()
	send(t, teacher, MsgApproveTeam, TeamRequest{GameID: gameID, TeamID: teamID})
	for range 20 {
		var view TeamView
		decode(t, readType(t, team, MsgTeamState), &view)
		if view.Team.Status == TeamApproved {
			return
		}
	}
	t.Fatal("team was never approved")
}
