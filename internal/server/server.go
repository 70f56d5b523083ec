package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/smarter-english/elt-trading-game/internal/auth"
	"github.com/smarter-english/elt-trading-game/internal/config"
	"github.com/smarter-english/elt-trading-game/internal/database"
	"github.com/smarter-english/elt-trading-game/internal/market"
)

const (
	idleTimeout     = 10 * time.Minute
	reapInterval    = time.Minute
	cleanupInterval = time.Hour
	storeTimeout    = 5 * time.Second
)

type Server struct {
	port               int
	db                 database.Service
	accounts           *auth.Service
	connectionManager  *ConnectionManager
	gameManager        *GameManager
	sessionManager     *SessionManager
	persistenceManager GameStore
	rateLimiter        *RateLimiter
	connectionHealth   *ConnectionHealth
	allowedOrigins     []string

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer restores persisted games and sessions, starts the background
// tasks and returns the HTTP server to run.
func NewServer(ctx context.Context, cfg config.Config, db database.Service, accounts *auth.Service, scenario *market.Scenario) (*Server, *http.Server, error) {
	s := newServer(cfg, db, NewPersistenceManager(db.Pool()), accounts, scenario, auth.DefaultHasher())

	if err := s.loadPersistedState(ctx); err != nil {
		return nil, nil, err
	}

	s.startBackgroundTasks(cfg.SaveInterval, cfg.GameRetention)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, httpServer, nil
}

func newServer(cfg config.Config, db database.Service, store GameStore, accounts *auth.Service, scenario *market.Scenario, hasher auth.PasswordHasher) *Server {
	return &Server{
		port:               cfg.Port,
		db:                 db,
		accounts:           accounts,
		connectionManager:  NewConnectionManager(),
		gameManager:        NewGameManager(scenario, hasher),
		sessionManager:     NewSessionManager(),
		persistenceManager: store,
		rateLimiter:        NewRateLimiter(10, time.Second),
		connectionHealth:   NewConnectionHealth(),
		allowedOrigins:     cfg.AllowedOrigins,
		stop:               make(chan struct{}),
	}
}

// loadPersistedState restores games and sessions from the database.
func (s *Server) loadPersistedState(ctx context.Context) error {
	games, err := s.persistenceManager.LoadAllGames(ctx)
	if err != nil {
		return fmt.Errorf("failed to load games: %w", err)
	}
	s.gameManager.Restore(games)

	sessions, err := s.persistenceManager.LoadAllSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	for _, session := range sessions {
		s.sessionManager.StoreSession(session)
	}

	log.Info().Int("games", len(games)).Int("sessions", len(sessions)).Msg("Restored persisted state")
	return nil
}

func (s *Server) startBackgroundTasks(saveInterval, retention time.Duration) {
	s.wg.Add(3)
	go s.periodicSaveTask(saveInterval)
	go s.cleanupTask(retention)
	go s.reapTask()
}

// periodicSaveTask persists every live game on an interval.
func (s *Server) periodicSaveTask(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			saved := s.saveAllGames(context.Background())
			log.Debug().Int("games", saved).Msg("Periodic save completed")
		}
	}
}

// cleanupTask deletes finished games older than retention.
func (s *Server) cleanupTask(retention time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.cleanupOldGames(retention)
		}
	}
}

func (s *Server) cleanupOldGames(retention time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	deleted, err := s.persistenceManager.CleanupOldGames(ctx, retention)
	if err != nil {
		log.Error().Err(err).Msg("Cleanup task failed")
		return
	}
	for _, id := range deleted {
		if game := s.gameManager.Evict(id); game != nil {
			s.discardStoredGame(game)
		}
		s.sessionManager.RemoveGameSessions(id)
		s.connectionManager.ForgetGame(id)
	}
	if len(deleted) > 0 {
		log.Info().Int("games", len(deleted)).Msg("Cleanup task deleted old finished games")
	}
}

// reapTask closes connections that have gone quiet.
func (s *Server) reapTask() {
	defer s.wg.Done()
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.reapIdleConnections(idleTimeout)
		}
	}
}

func (s *Server) reapIdleConnections(timeout time.Duration) {
	for _, connID := range s.connectionHealth.GetInactiveConnections(timeout) {
		if conn := s.connectionManager.GetConnection(connID); conn != nil {
			log.Info().Str("conn_id", connID).Msg("Closing idle connection")
			go conn.Close(websocket.StatusPolicyViolation, "Idle for too long")
		}
		s.connectionHealth.RemoveConnection(connID)
	}
	s.rateLimiter.Cleanup()
}

func (s *Server) saveAllGames(ctx context.Context) int {
	saved := 0
	for _, game := range s.gameManager.Games() {
		if s.saveGame(ctx, game) {
			saved++
		}
	}
	return saved
}

// persistGame writes one game after a mutation.
func (s *Server) persistGame(game *ActiveGame) {
	s.saveGame(context.Background(), game)
}

// saveGame writes the game unless it was deleted while the caller held it.
func (s *Server) saveGame(ctx context.Context, game *ActiveGame) bool {
	game.saveMu.Lock()
	defer game.saveMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	err := s.persistenceManager.SaveGame(ctx, game)
	switch {
	case errors.Is(err, ErrGameNotFound):
		log.Debug().Str("game_id", game.ID).Msg("Skipped save of deleted game")
		return false
	case err != nil:
		log.Error().Err(err).Str("game_id", game.ID).Msg("Failed to save game")
		return false
	}
	return true
}

// discardStoredGame removes a deleted game's row once any save already
// under way has finished.
func (s *Server) discardStoredGame(game *ActiveGame) {
	game.saveMu.Lock()
	defer game.saveMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.persistenceManager.DeleteGame(ctx, game.ID); err != nil && !errors.Is(err, ErrGameNotFound) {
		log.Error().Err(err).Str("game_id", game.ID).Msg("Failed to delete stored game")
	}
}

func (s *Server) persistSession(session SessionInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.persistenceManager.SaveSession(ctx, session); err != nil {
		log.Error().Err(err).Str("game_id", session.GameID).Msg("Failed to save session")
	}
}

func (s *Server) deleteSession(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.persistenceManager.DeleteSession(ctx, token); err != nil {
		log.Error().Err(err).Msg("Failed to delete session")
	}
}

// Shutdown stops background work, saves every game and tells connected
// clients the server is going away.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()

	saved := s.saveAllGames(ctx)
	log.Info().Int("games", saved).Msg("Saved games before shutdown")

	conns := s.connectionManager.Connections()
	for _, conn := range conns {
		_ = s.sendMessage(conn, ctx, ServerMessage{
			Type:    MsgServerShutdown,
			Payload: ErrorMessage{Message: "Server is restarting, reconnect in a moment"},
		})
		conn.Close(websocket.StatusGoingAway, "Server shutting down")
	}

	return ctx.Err()
}
