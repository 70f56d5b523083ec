package server

import (
	"context"
	"encoding/json"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/smarter-english/elt-trading-game/internal/auth"
)

// teacherFor returns the account signed in on a connection.
func (s *Server) teacherFor(connectionID string) (auth.Teacher, error) {
	client := s.connectionManager.Client(connectionID)
	if client.Teacher == nil {
		return auth.Teacher{}, ErrNotAuthenticated
	}
	return *client.Teacher, nil
}

func (s *Server) handleTeacherAuth(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	var req TeacherAuthRequest
	if err := decodePayload(payload, &req); err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	teacher, err := s.accounts.Authenticate(ctx, req.Token)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}
	if !teacher.Role.CanManageGames() {
		s.sendError(socket, ctx, ErrNotTeacher)
		return
	}

	s.connectionManager.BindTeacher(connectionID, teacher)

	if err := s.sendMessage(socket, ctx, ServerMessage{Type: MsgTeacherAuthed, Payload: TeacherAuthResponse{Teacher: teacher}}); err != nil {
		log.Warn().Err(err).Str("conn_id", connectionID).Msg("Failed to send teacher_authed")
	}
}

func (s *Server) handleCreateGame(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	teacher, err := s.teacherFor(connectionID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	var req CreateGameRequest
	if err := decodePayload(payload, &req); err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	game, err := s.gameManager.CreateGame(teacher, req.Name)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	s.persistGame(game)
	s.connectionManager.Watch(connectionID, game.ID)

	response := ServerMessage{
		Type:    MsgGameCreated,
		Payload: CreateGameResponse{GameID: game.ID, Code: game.Code, Name: game.Name},
	}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Warn().Err(err).Str("conn_id", connectionID).Msg("Failed to send game_created")
		return
	}

	s.broadcastGame(game.ID)
}

func (s *Server) handleListGames(socket *websocket.Conn, ctx context.Context, connectionID string, _ json.RawMessage) {
	teacher, err := s.teacherFor(connectionID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	response := ServerMessage{
		Type:    MsgGamesList,
		Payload: ListGamesResponse{Games: s.gameManager.ListGames(teacher)},
	}
	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Warn().Err(err).Str("conn_id", connectionID).Msg("Failed to send games_list")
	}
}

func (s *Server) handleWatchGame(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	teacher, err := s.teacherFor(connectionID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	var req GameRequest
	if err := decodePayload(payload, &req); err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	if _, err := s.gameManager.Authorize(teacher, req.GameID); err != nil {
		s.sendError(socket, ctx, err)
		return
	}
	s.connectionManager.Watch(connectionID, req.GameID)

	view, err := s.gameManager.TeacherView(req.GameID, func(teamID string) bool {
		return s.connectionManager.TeamOnline(req.GameID, teamID)
	})
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}
	if err := s.sendMessage(socket, ctx, ServerMessage{Type: MsgTeacherState, Payload: view}); err != nil {
		log.Warn().Err(err).Str("conn_id", connectionID).Msg("Failed to send teacher_state")
	}
}

type teamAction func(teacher auth.Teacher, gameID, teamID string) (*ActiveGame, error)

// handleTeamAction runs approve_team, reject_team and kick_team.
func (s *Server) handleTeamAction(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage, action teamAction) {
	teacher, err := s.teacherFor(connectionID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	var req TeamRequest
	if err := decodePayload(payload, &req); err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	game, err := action(teacher, req.GameID, req.TeamID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	s.afterTeacherAction(connectionID, game)
}

type gameAction func(teacher auth.Teacher, gameID string) (*ActiveGame, error)

// handleGameAction runs toggle_state and advance_round.
func (s *Server) handleGameAction(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage, action gameAction) {
	teacher, err := s.teacherFor(connectionID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	var req GameRequest
	if err := decodePayload(payload, &req); err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	game, err := action(teacher, req.GameID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	s.afterTeacherAction(connectionID, game)
}

func (s *Server) handleRevealHeadline(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	teacher, err := s.teacherFor(connectionID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	var req RevealHeadlineRequest
	if err := decodePayload(payload, &req); err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	game, err := s.gameManager.RevealHeadline(teacher, req.GameID, *req.Index)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	s.afterTeacherAction(connectionID, game)
}

func (s *Server) handleFineTeam(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	teacher, err := s.teacherFor(connectionID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	var req FineTeamRequest
	if err := decodePayload(payload, &req); err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	game, err := s.gameManager.FineTeam(teacher, req.GameID, req.TeamID, req.Amount, req.Reason)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	s.afterTeacherAction(connectionID, game)
}

// afterTeacherAction saves the game, keeps the acting console subscribed
// and pushes fresh state to everyone following the game.
func (s *Server) afterTeacherAction(connectionID string, game *ActiveGame) {
	s.persistGame(game)
	s.connectionManager.Watch(connectionID, game.ID)
	s.broadcastGame(game.ID)
}

func (s *Server) handleDeleteGame(socket *websocket.Conn, ctx context.Context, connectionID string, payload json.RawMessage) {
	teacher, err := s.teacherFor(connectionID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	var req GameRequest
	if err := decodePayload(payload, &req); err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	subs := s.connectionManager.Subscribers(req.GameID)

	game, err := s.gameManager.DeleteGame(teacher, req.GameID)
	if err != nil {
		s.sendError(socket, ctx, err)
		return
	}

	s.discardStoredGame(game)
	s.sessionManager.RemoveGameSessions(game.ID)
	s.connectionManager.ForgetGame(game.ID)

	notified := false
	for _, sub := range subs {
		if sub.ConnectionID == connectionID {
			notified = true
		}
	}
	if !notified {
		subs = append(subs, Subscriber{ConnectionID: connectionID, Conn: socket})
	}
	s.notifyGameDeleted(subs, game.ID)
}
