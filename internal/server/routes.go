package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/smarter-english/elt-trading-game/internal/auth"
)

const maxBodyBytes = 1 << 16

func (s *Server) RegisterRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("POST /api/teachers/apply", s.applyHandler)
	mux.HandleFunc("POST /api/teachers/login", s.loginHandler)
	mux.HandleFunc("GET /api/teachers/me", s.requireTeacher(s.profileHandler))
	mux.HandleFunc("PUT /api/teachers/me", s.requireTeacher(s.updateProfileHandler))

	mux.HandleFunc("GET /api/scenario", s.scenarioHandler)

	mux.HandleFunc("/websocket", s.websocketHandler)

	return s.corsMiddleware(mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if slices.Contains(s.allowedOrigins, "*") {
		return true
	}
	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	return slices.Contains(s.allowedOrigins, origin) || slices.Contains(s.allowedOrigins, host)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]string{"status": "up"}
	if s.db != nil {
		stats = s.db.Health()
	}

	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, stats)
}

func (s *Server) applyHandler(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	teacher, err := s.accounts.Apply(r.Context(), auth.Application{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, teacher)
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	token, teacher, err := s.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Teacher: teacher})
}

type teacherHandler func(w http.ResponseWriter, r *http.Request, teacher auth.Teacher)

// requireTeacher resolves the bearer token into a signed-in account.
func (s *Server) requireTeacher(next teacherHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			writeError(w, ErrNotAuthenticated)
			return
		}

		teacher, err := s.accounts.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			writeError(w, err)
			return
		}

		next(w, r, teacher)
	}
}

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request, teacher auth.Teacher) {
	writeJSON(w, http.StatusOK, teacher)
}

func (s *Server) updateProfileHandler(w http.ResponseWriter, r *http.Request, teacher auth.Teacher) {
	var req UpdateProfileRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	updated, err := s.accounts.UpdateProfile(r.Context(), teacher.ID, req.FirstName, req.LastName)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// scenarioHandler lists the tradable commodities. Prices stay server side.
func (s *Server) scenarioHandler(w http.ResponseWriter, r *http.Request) {
	scenario := s.gameManager.Scenario()

	resp := ScenarioResponse{
		Rounds:      scenario.Rounds(),
		Commodities: make([]CommodityInfo, 0, len(scenario.Commodities)),
	}
	for _, c := range scenario.Commodities {
		resp.Commodities = append(resp.Commodities, CommodityInfo{ID: c.ID, Name: c.Name})
	}

	writeJSON(w, http.StatusOK, resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, req any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(req); err != nil {
		return ErrInvalidPayload
	}
	return validateRequest(req)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	gameErr := asGameError(err)
	if gameErr == ErrInternal {
		log.Error().Err(err).Msg("Internal error while handling request")
	}
	writeJSON(w, httpStatus(gameErr), ErrorMessage{Message: gameErr.Message, Code: gameErr.Code})
}

func httpStatus(err *GameError) int {
	switch err.Code {
	case ErrInvalidPayload.Code, "INVALID_QUANTITY", "INVALID_ACTION":
		return http.StatusBadRequest
	case ErrNotAuthenticated.Code, "INVALID_CREDENTIALS", "TOKEN_EXPIRED", "INVALID_TOKEN":
		return http.StatusUnauthorized
	case "ACCOUNT_PENDING", "ACCOUNT_REJECTED", ErrNotTeacher.Code, ErrNotOwner.Code:
		return http.StatusForbidden
	case "ACCOUNT_NOT_FOUND", ErrGameNotFound.Code:
		return http.StatusNotFound
	case "EMAIL_TAKEN":
		return http.StatusConflict
	case ErrRateLimited.Code:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.allowedOrigins,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to open websocket")
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "Server closing")

	ctx := r.Context()

	connectionID := uuid.NewString()
	log.Debug().Str("conn_id", connectionID).Msg("New connection")
	s.connectionManager.AddConnection(connectionID, socket)
	s.connectionHealth.UpdateActivity(connectionID)
	defer s.disconnect(connectionID)

	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status == -1 && !errors.Is(err, context.Canceled) {
				log.Debug().Err(err).Str("conn_id", connectionID).Msg("Connection read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			log.Debug().Str("conn_id", connectionID).Msg("Non-text input")
			continue
		}

		if !s.rateLimiter.Allow(connectionID) {
			s.sendError(socket, ctx, ErrRateLimited)
			continue
		}
		s.connectionHealth.UpdateActivity(connectionID)

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(socket, ctx, newGameError("INVALID_JSON", "Invalid JSON"))
			continue
		}

		if err := ValidateMessageType(msg.Type); err != nil {
			s.sendError(socket, ctx, err)
			continue
		}

		log.Debug().Str("type", msg.Type).Str("conn_id", connectionID).Msg("Message received")

		switch msg.Type {
		case MsgPing:
			s.handlePing(socket, ctx, connectionID, msg.Payload)
		case MsgJoinGame:
			s.handleJoinGame(socket, ctx, connectionID, msg.Payload)
		case MsgReconnect:
			s.handleReconnect(socket, ctx, connectionID, msg.Payload)
		case MsgTrade:
			s.handleTrade(socket, ctx, connectionID, msg.Payload)
		case MsgLeaveGame:
			s.handleLeaveGame(socket, ctx, connectionID, msg.Payload)
		case MsgTeacherAuth:
			s.handleTeacherAuth(socket, ctx, connectionID, msg.Payload)
		case MsgCreateGame:
			s.handleCreateGame(socket, ctx, connectionID, msg.Payload)
		case MsgListGames:
			s.handleListGames(socket, ctx, connectionID, msg.Payload)
		case MsgWatchGame:
			s.handleWatchGame(socket, ctx, connectionID, msg.Payload)
		case MsgApproveTeam:
			s.handleTeamAction(socket, ctx, connectionID, msg.Payload, s.gameManager.ApproveTeam)
		case MsgRejectTeam:
			s.handleTeamAction(socket, ctx, connectionID, msg.Payload, s.gameManager.RejectTeam)
		case MsgKickTeam:
			s.handleTeamAction(socket, ctx, connectionID, msg.Payload, s.gameManager.KickTeam)
		case MsgToggleState:
			s.handleGameAction(socket, ctx, connectionID, msg.Payload, s.gameManager.ToggleState)
		case MsgRevealHeadline:
			s.handleRevealHeadline(socket, ctx, connectionID, msg.Payload)
		case MsgAdvanceRound:
			s.handleGameAction(socket, ctx, connectionID, msg.Payload, s.gameManager.AdvanceRound)
		case MsgFineTeam:
			s.handleFineTeam(socket, ctx, connectionID, msg.Payload)
		case MsgDeleteGame:
			s.handleDeleteGame(socket, ctx, connectionID, msg.Payload)
		}
	}
}

// disconnect forgets a closed connection and lets the teacher console know
// if a team dropped off.
func (s *Server) disconnect(connectionID string) {
	client := s.connectionManager.Client(connectionID)

	s.connectionManager.RemoveConnection(connectionID)
	s.rateLimiter.RemoveConnection(connectionID)
	s.connectionHealth.RemoveConnection(connectionID)
	log.Debug().Str("conn_id", connectionID).Msg("Connection closed")

	if client.isTeam() && client.GameID != "" {
		s.broadcastGame(client.GameID)
	}
}
