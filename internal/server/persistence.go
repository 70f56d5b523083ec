package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// GameStore persists games and team sessions.
type GameStore interface {
	SaveGame(ctx context.Context, game *ActiveGame) error
	LoadAllGames(ctx context.Context) ([]*ActiveGame, error)
	DeleteGame(ctx context.Context, gameID string) error
	SaveSession(ctx context.Context, session SessionInfo) error
	LoadAllSessions(ctx context.Context) ([]SessionInfo, error)
	DeleteSession(ctx context.Context, token string) error
	CleanupOldGames(ctx context.Context, olderThan time.Duration) ([]string, error)
}

// PersistenceManager stores each game as a JSONB snapshot in Postgres.
type PersistenceManager struct {
	pool *pgxpool.Pool
}

func NewPersistenceManager(pool *pgxpool.Pool) *PersistenceManager {
	return &PersistenceManager{pool: pool}
}

// snapshot serialises the game under its lock. A deleted game has no
// snapshot.
func snapshot(game *ActiveGame) (data []byte, status GameState, updatedAt time.Time, err error) {
	game.mu.Lock()
	defer game.mu.Unlock()

	if game.deleted {
		return nil, "", time.Time{}, ErrGameNotFound
	}
	data, err = json.Marshal(game)
	return data, game.State, game.UpdatedAt, err
}

// SaveGame upserts the game snapshot.
func (pm *PersistenceManager) SaveGame(ctx context.Context, game *ActiveGame) error {
	data, status, updatedAt, err := snapshot(game)
	if err != nil {
		return fmt.Errorf("failed to serialize game: %w", err)
	}

	_, err = pm.pool.Exec(ctx, `
		INSERT INTO games (id, code, created_by, status, game_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    game_data = EXCLUDED.game_data,
		    updated_at = EXCLUDED.updated_at`,
		game.ID, game.Code, game.CreatedBy, string(status), data, game.CreatedAt, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save game %s: %w", game.Code, err)
	}
	return nil
}

// LoadGame retrieves a game by id.
func (pm *PersistenceManager) LoadGame(ctx context.Context, gameID string) (*ActiveGame, error) {
	var data []byte
	err := pm.pool.QueryRow(ctx, `SELECT game_data FROM games WHERE id = $1`, gameID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game %s: %w", gameID, err)
	}

	var game ActiveGame
	if err := json.Unmarshal(data, &game); err != nil {
		return nil, fmt.Errorf("failed to deserialize game %s: %w", gameID, err)
	}
	game.ensureMaps()
	return &game, nil
}

// LoadAllGames retrieves every stored game. Used on startup.
func (pm *PersistenceManager) LoadAllGames(ctx context.Context) ([]*ActiveGame, error) {
	rows, err := pm.pool.Query(ctx, `SELECT id, game_data FROM games ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer rows.Close()

	var games []*ActiveGame
	for rows.Next() {
		var id uuid.UUID
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan game row: %w", err)
		}

		var game ActiveGame
		if err := json.Unmarshal(data, &game); err != nil {
			log.Warn().Err(err).Str("game_id", id.String()).Msg("Skipping unreadable game")
			continue
		}
		game.ensureMaps()
		games = append(games, &game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating game rows: %w", err)
	}

	return games, nil
}

// DeleteGame removes a game; its sessions go with it.
func (pm *PersistenceManager) DeleteGame(ctx context.Context, gameID string) error {
	tag, err := pm.pool.Exec(ctx, `DELETE FROM games WHERE id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("failed to delete game %s: %w", gameID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGameNotFound
	}
	return nil
}

func (pm *PersistenceManager) SaveSession(ctx context.Context, session SessionInfo) error {
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := pm.pool.Exec(ctx, `
		INSERT INTO sessions (token, game_id, team_id, team_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token) DO UPDATE
		SET game_id = EXCLUDED.game_id,
		    team_id = EXCLUDED.team_id,
		    team_name = EXCLUDED.team_name`,
		session.Token, session.GameID, session.TeamID, session.TeamName, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadAllSessions restores SessionManager state on startup.
func (pm *PersistenceManager) LoadAllSessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := pm.pool.Query(ctx, `SELECT token, game_id, team_id, team_name, created_at FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var s SessionInfo
		var gameID uuid.UUID
		if err := rows.Scan(&s.Token, &gameID, &s.TeamID, &s.TeamName, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		s.GameID = gameID.String()
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

func (pm *PersistenceManager) DeleteSession(ctx context.Context, token string) error {
	if _, err := pm.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CleanupOldGames deletes finished games untouched for olderThan and returns
// their ids.
func (pm *PersistenceManager) CleanupOldGames(ctx context.Context, olderThan time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-olderThan)

	tx, err := pm.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin cleanup: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`DELETE FROM games WHERE status = $1 AND updated_at < $2 RETURNING id`,
		string(StateFinished), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to cleanup old games: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to collect deleted games: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	deleted := make([]string, 0, len(ids))
	for _, id := range ids {
		deleted = append(deleted, id.String())
	}
	return deleted, nil
}
