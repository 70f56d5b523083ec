package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	writeTimeout    = 5 * time.Second
	broadcastFanout = 16
)

func (s *Server) sendMessage(socket *websocket.Conn, ctx context.Context, msg ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return socket.Write(ctx, websocket.MessageText, data)
}

// sendError reports err to the client as an error message with a code.
func (s *Server) sendError(socket *websocket.Conn, ctx context.Context, err error) {
	gameErr := asGameError(err)
	if gameErr == ErrInternal {
		log.Error().Err(err).Msg("Internal error while handling message")
	}

	response := ServerMessage{
		Type: MsgError,
		Payload: ErrorMessage{
			Message: gameErr.Message,
			Code:    gameErr.Code,
		},
	}

	if err := s.sendMessage(socket, ctx, response); err != nil {
		log.Warn().Err(err).Msg("Failed to send error message")
	}
}

// broadcastGame pushes fresh state to everyone following a game: each team
// gets its own view and every watching teacher gets the console.
func (s *Server) broadcastGame(gameID string) {
	subs := s.connectionManager.Subscribers(gameID)
	if len(subs) == 0 {
		return
	}

	var (
		teacherView *TeacherView
		viewErr     error
	)
	for _, sub := range subs {
		if !sub.Client.isTeam() {
			view, err := s.gameManager.TeacherView(gameID, func(teamID string) bool {
				return s.connectionManager.TeamOnline(gameID, teamID)
			})
			teacherView, viewErr = &view, err
			break
		}
	}
	if viewErr != nil {
		log.Warn().Err(viewErr).Str("game_id", gameID).Msg("Failed to build teacher view")
		return
	}

	var g errgroup.Group
	g.SetLimit(broadcastFanout)

	for _, sub := range subs {
		g.Go(func() error {
			var msg ServerMessage
			if sub.Client.isTeam() {
				view, err := s.gameManager.TeamView(gameID, sub.Client.TeamID)
				if err != nil {
					return fmt.Errorf("team view for %s: %w", sub.Client.TeamID, err)
				}
				msg = ServerMessage{Type: MsgTeamState, Payload: view}
			} else {
				msg = ServerMessage{Type: MsgTeacherState, Payload: teacherView}
			}

			if err := s.sendMessage(sub.Conn, context.Background(), msg); err != nil {
				return fmt.Errorf("send to %s: %w", sub.ConnectionID, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Debug().Err(err).Str("game_id", gameID).Msg("Broadcast incomplete")
	}
}

// notifyGameDeleted tells every follower of a game that it is gone.
func (s *Server) notifyGameDeleted(subs []Subscriber, gameID string) {
	msg := ServerMessage{Type: MsgGameDeleted, Payload: GameDeletedNotification{GameID: gameID}}
	for _, sub := range subs {
		if err := s.sendMessage(sub.Conn, context.Background(), msg); err != nil {
			log.Debug().Err(err).Str("conn_id", sub.ConnectionID).Msg("Failed to notify game deleted")
		}
	}
}
