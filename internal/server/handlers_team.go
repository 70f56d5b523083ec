package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func (s *Server) handlePing(socket *websocket.Conn, ctx context.Context, connectionID string, _ json.RawMessage) {
	if err := s.sendMessage(socket, ctx, ServerMessage{Type: MsgPong, Payload: struct{}{}}); err != nil {
		log.Debug().Err(err).Str("conn_id", connectionID).Msg("Failed to send pong")
	}
}

func (s *Server) handleJoinGame(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	var req JoinGameRequest
	if err := decodePayload(payload, &req); err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	game, team, err := s.gameManager.JoinGame(req.Code, req.TeamName, req.Password)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	// A team keeps one session; joining again from a new device takes it over.
	session, exists := s.sessionManager.SessionForTeam(game.ID, team.ID)
	if !exists {
		session = SessionInfo{
			Token:     uuid.NewString(),
			GameID:    game.ID,
			TeamID:    team.ID,
			TeamName:  team.Name,
			CreatedAt: time.Now(),
		}
		s.sessionManager.StoreSession(session)
	}

	s.persistGame(game)
	s.persistSession(session)
	s.bindSession(connectionID, socket, session)

	response := ServerMessage{
		Type: MsgGameJoined,
		Payload: JoinGameResponse{
			Token:    session.Token,
			GameID:   game.ID,
			TeamID:   team.ID,
			TeamName: team.Name,
			Status:   team.Status,
		},
	}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Warn().Err(err).Str("conn_id", connectionID).Msg("Failed to send game_joined")
		return
	}

	s.broadcastGame(game.ID)
}

func (s *Server) handleReconnect(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	var req ReconnectRequest
	if err := decodePayload(payload, &req); err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	session, err := s.sessionManager.GetSession(req.Token)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	team, err := s.gameManager.Team(session.GameID, session.TeamID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	s.bindSession(connectionID, socket, session)

	response := ServerMessage{
		Type: MsgReconnected,
		Payload: JoinGameResponse{
			Token:    session.Token,
			GameID:   session.GameID,
			TeamID:   team.ID,
			TeamName: team.Name,
			Status:   team.Status,
		},
	}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Warn().Err(err).Str("conn_id", connectionID).Msg("Failed to send reconnected")
		return
	}

	log.Info().Str("game_id", session.GameID).Str("team_id", team.ID).Msg("Team reconnected")
	s.broadcastGame(session.GameID)
}

// bindSession attaches a team session to this connection and closes any
// other device still holding it.
func (s *Server) bindSession(connectionID string, socket *websocket.Conn, session SessionInfo) {
	oldConnectionID := s.connectionManager.AddConnectionWithToken(connectionID, socket, session)
	if oldConnectionID == "" || oldConnectionID == connectionID {
		return
	}

	old := s.connectionManager.GetConnection(oldConnectionID)
	if old == nil {
		return
	}

	log.Info().Str("team_id", session.TeamID).Str("old_conn_id", oldConnectionID).Msg("Team moved to a new device")
	_ = s.sendMessage(old, context.Background(), ServerMessage{
		Type:    MsgDisconnectedElsewhere,
		Payload: ErrorMessage{Message: "Your team signed in on another device"},
	})
	go old.Close(websocket.StatusPolicyViolation, "Signed in elsewhere")
}

func (s *Server) handleTrade(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	client := s.connectionManager.Client(connectionID)
	if !client.isTeam() {
		s.sendError(socket, ctx, ErrNotInGame)
		return
	}

	var req TradeRequest
	if err := decodePayload(payload, &req); err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	game, trade, err := s.gameManager.Trade(client.GameID, client.TeamID, req.Commodity, req.Action, req.Quantity)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	s.persistGame(game)

	if err := s.sendMessage(socket, ctx, ServerMessage{Type: MsgTradeResult, Payload: TradeResponse{Trade: trade}}); err != nil {
		log.Warn().Err(err).Str("conn_id", connectionID).Msg("Failed to send trade_result")
	}

	s.broadcastGame(game.ID)
}

// handleLeaveGame ends the team's session on this device. The team stays
// in the game and can join again with its password.
func (s *Server) handleLeaveGame(socket *websocket.Conn, ctx context.Context, connectionID string, _ json.RawMessage) {
	client := s.connectionManager.Client(connectionID)
	if !client.isTeam() {
		s.sendError(socket, ctx, ErrNotInGame)
		return
	}

	s.sessionManager.RemoveSession(client.Token)
	s.connectionManager.UnmapToken(client.Token)
	s.deleteSession(client.Token)

	if err := s.sendMessage(socket, ctx, ServerMessage{Type: MsgLeftGame, Payload: struct{}{}}); err != nil {
		log.Warn().Err(err).Str("conn_id", connectionID).Msg("Failed to send left_game")
	}

	log.Info().Str("game_id", client.GameID).Str("team_id", client.TeamID).Msg("Team left")
	s.broadcastGame(client.GameID)
}
