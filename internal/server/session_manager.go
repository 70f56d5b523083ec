package server

import (
	"sync"
	"time"
)

// SessionInfo ties an opaque team token to a team in a game.
type SessionInfo struct {
	Token     string
	GameID    string
	TeamID    string
	TeamName  string
	CreatedAt time.Time
}

type SessionManager struct {
	sessions map[string]SessionInfo // Token -> SessionInfo
	mu       sync.RWMutex
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]SessionInfo),
	}
}

func (sm *SessionManager) StoreSession(info SessionInfo) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[info.Token] = info
}

func (sm *SessionManager) GetSession(token string) (SessionInfo, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[token]
	if !exists {
		return SessionInfo{}, ErrTokenNotFound
	}

	return session, nil
}

// Used for teams who intentionally leave
func (sm *SessionManager) RemoveSession(token string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, token)
}

// RemoveGameSessions drops every session of a deleted game and returns
// their tokens.
func (sm *SessionManager) RemoveGameSessions(gameID string) []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var tokens []string
	for token, session := range sm.sessions {
		if session.GameID == gameID {
			tokens = append(tokens, token)
			delete(sm.sessions, token)
		}
	}
	return tokens
}

// SessionForTeam finds the live session of a team, if any.
func (sm *SessionManager) SessionForTeam(gameID, teamID string) (SessionInfo, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, session := range sm.sessions {
		if session.GameID == gameID && session.TeamID == teamID {
			return session, true
		}
	}
	return SessionInfo{}, false
}
