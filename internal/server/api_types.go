package server

import (
	"time"

	"github.com/smarter-english/elt-trading-game/internal/auth"
	"github.com/smarter-english/elt-trading-game/internal/market"
)

// ============================================================================
// ERROR RESPONSES
// ============================================================================
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ============================================================================
// TEACHER ACCOUNTS (HTTP)
// ============================================================================
type ApplyRequest struct {
	FirstName string `json:"firstName" validate:"required,notblank,max=50"`
	LastName  string `json:"lastName" validate:"required,max=50"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token   string       `json:"token"`
	Teacher auth.Teacher `json:"teacher"`
}

type UpdateProfileRequest struct {
	FirstName string `json:"firstName" validate:"required,notblank,max=50"`
	LastName  string `json:"lastName" validate:"required,max=50"`
}

type CommodityInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ScenarioResponse struct {
	Rounds      int             `json:"rounds"`
	Commodities []CommodityInfo `json:"commodities"`
}

// ============================================================================
// TEAMS (join_game, reconnect, trade, leave_game)
// ============================================================================
type JoinGameRequest struct {
	Code     string `json:"code" validate:"required,max=16"`
	TeamName string `json:"teamName" validate:"required,notblank,max=30"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

type JoinGameResponse struct {
	Token    string     `json:"token"`
	GameID   string     `json:"gameId"`
	TeamID   string     `json:"teamId"`
	TeamName string     `json:"teamName"`
	Status   TeamStatus `json:"status"`
}

type ReconnectRequest struct {
	Token string `json:"token" validate:"required,uuid"`
}

type TradeRequest struct {
	Commodity string `json:"commodity" validate:"required"`
	Action    string `json:"action" validate:"required,oneof=buy short"`
	Quantity  int    `json:"quantity" validate:"required,gt=0,lte=1000000"`
}

type TradeResponse struct {
	Trade Trade `json:"trade"`
}

// ============================================================================
// TEACHER CONSOLE (teacher_auth and game management)
// ============================================================================
type TeacherAuthRequest struct {
	Token string `json:"token" validate:"required"`
}

type TeacherAuthResponse struct {
	Teacher auth.Teacher `json:"teacher"`
}

type CreateGameRequest struct {
	Name string `json:"name" validate:"max=80"`
}

type CreateGameResponse struct {
	GameID string `json:"gameId"`
	Code   string `json:"code"`
	Name   string `json:"name"`
}

type ListGamesResponse struct {
	Games []GameSummary `json:"games"`
}

// GameRequest addresses a whole game (watch_game, toggle_state,
// advance_round, delete_game).
type GameRequest struct {
	GameID string `json:"gameId" validate:"required,uuid"`
}

// TeamRequest addresses one team (approve_team, reject_team, kick_team).
type TeamRequest struct {
	GameID string `json:"gameId" validate:"required,uuid"`
	TeamID string `json:"teamId" validate:"required,uuid"`
}

type RevealHeadlineRequest struct {
	GameID string `json:"gameId" validate:"required,uuid"`
	Index  *int   `json:"index" validate:"required,gte=0"`
}

type FineTeamRequest struct {
	GameID string       `json:"gameId" validate:"required,uuid"`
	TeamID string       `json:"teamId" validate:"required,uuid"`
	Amount market.Money `json:"amount" validate:"gt=0"`
	Reason string       `json:"reason" validate:"max=200"`
}

type GameDeletedNotification struct {
	GameID string `json:"gameId"`
}

// ============================================================================
// STATE PUSHES (team_state, teacher_state)
// ============================================================================
type GameMeta struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Round       int       `json:"round"`
	Month       int       `json:"month"`
	TotalRounds int       `json:"totalRounds"`
	State       GameState `json:"state"`
}

type TeamInfo struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Status   TeamStatus `json:"status"`
	JoinedAt time.Time  `json:"joinedAt"`
}

type PortfolioView struct {
	Cash       market.Money `json:"cash"`
	CreditCap  market.Money `json:"creditCap"`
	CreditUsed market.Money `json:"creditUsed"`
	Available  market.Money `json:"available"`
	Holdings   market.Money `json:"holdings"`
	NetWorth   market.Money `json:"netWorth"`
}

type CommodityQuote struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Price    market.Money `json:"price"`
	Position int          `json:"position"`
	Value    market.Money `json:"value"`
}

type HeadlineView struct {
	Index    int             `json:"index"`
	Text     string          `json:"text"`
	Revealed bool            `json:"revealed"`
	Effects  []market.Effect `json:"effects,omitempty"`
}

// TeamView is what a team sees: its own book and the news revealed so far.
type TeamView struct {
	Game        GameMeta         `json:"game"`
	Team        TeamInfo         `json:"team"`
	Portfolio   *PortfolioView   `json:"portfolio,omitempty"`
	Commodities []CommodityQuote `json:"commodities"`
	Headlines   []HeadlineView   `json:"headlines"`
}

type TeamSummary struct {
	TeamInfo
	Portfolio *PortfolioView `json:"portfolio,omitempty"`
	Connected bool           `json:"connected"`
}

// TeacherView is the full console for the game's owner.
type TeacherView struct {
	Game        GameMeta           `json:"game"`
	Teams       []TeamSummary      `json:"teams"`
	Commodities []CommodityQuote   `json:"commodities"`
	Headlines   []HeadlineView     `json:"headlines"`
	Review      []market.ReviewRow `json:"review"`
	Scoreboard  []market.Standing  `json:"scoreboard"`
	Trades      []Trade            `json:"trades"`
	Fines       []Fine             `json:"fines"`
}
