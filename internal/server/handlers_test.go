package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarter-english/elt-trading-game/internal/auth"
	"github.com/smarter-english/elt-trading-game/internal/market"
)

func readTeamState(t *testing.T, conn *websocket.Conn) TeamView {
	t.Helper()
	var view TeamView
	decode(t, readType(t, conn, MsgTeamState), &view)
	return view
}

func readTeacherState(t *testing.T, conn *websocket.Conn) TeacherView {
	t.Helper()
	var view TeacherView
	decode(t, readType(t, conn, MsgTeacherState), &view)
	return view
}

// readTeacherStateUntil skips console pushes until cond holds.
func readTeacherStateUntil(t *testing.T, conn *websocket.Conn, cond func(TeacherView) bool) TeacherView {
	t.Helper()
	for range 20 {
		if view := readTeacherState(t, conn); cond(view) {
			return view
		}
	}
	t.Fatal("teacher state never matched")
	return TeacherView{}
}

func TestTeacherAuth_RequiredForConsole(t *testing.T) {
	_, url, cleanup := setupTestServer(t)
	defer cleanup()

	conn := dial(t, url)
	send(t, conn, MsgCreateGame, CreateGameRequest{Name: "Sneaky"})

	assert.Equal(t, ErrNotAuthenticated.Code, readError(t, conn).Code)
}

func TestTeacherAuth_BadToken(t *testing.T) {
	_, url, cleanup := setupTestServer(t)
	defer cleanup()

	conn := dial(t, url)
	send(t, conn, MsgTeacherAuth, TeacherAuthRequest{Token: "not-a-jwt"})

	assert.Equal(t, "INVALID_TOKEN", readError(t, conn).Code)
}

func TestHandleCreateGame(t *testing.T) {
	assert := assert.New(t)
	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	conn := dial(t, url)
	signInTeacher(t, s, conn, "ms.jones@school.org", auth.RoleTeacher)

	created := createGame(t, conn, "Year 10 Economics")
	assert.Len(created.Code, 6)
	assert.Equal("Year 10 Economics", created.Name)

	view := readTeacherState(t, conn)
	assert.Equal(created.GameID, view.Game.ID)
	assert.Equal(StatePlay, view.Game.State)
	assert.Equal(6, view.Game.TotalRounds)
	assert.Len(view.Headlines, 8)
	assert.Empty(view.Teams)

	send(t, conn, MsgListGames, nil)
	var list ListGamesResponse
	decode(t, readType(t, conn, MsgGamesList), &list)
	require.Len(t, list.Games, 1)
	assert.Equal(created.Code, list.Games[0].Code)
}

func TestHandleJoinGame_PendingUntilApproved(t *testing.T) {
	assert := assert.New(t)
	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	teacher := dial(t, url)
	signInTeacher(t, s, teacher, "ms.jones@school.org", auth.RoleTeacher)
	game := createGame(t, teacher, "Class")

	team := dial(t, url)
	joined := joinGame(t, team, game.Code, "Bulls", "secret1")
	assert.Equal(TeamPending, joined.Status)
	assert.NotEmpty(joined.Token)

	view := readTeamState(t, team)
	assert.Nil(view.Portfolio)
	assert.Equal(TeamPending, view.Team.Status)

	console := readTeacherStateUntil(t, teacher, func(v TeacherView) bool { return len(v.Teams) == 1 })
	assert.Equal("Bulls", console.Teams[0].Name)
	assert.True(console.Teams[0].Connected)

	// Trading waits for approval.
	send(t, team, MsgTrade, TradeRequest{Commodity: "gold", Action: "buy", Quantity: 1})
	assert.Equal(ErrTeamNotApproved.Code, readError(t, team).Code)

	send(t, teacher, MsgApproveTeam, TeamRequest{GameID: game.GameID, TeamID: joined.TeamID})

	view = readTeamState(t, team)
	assert.Equal(TeamApproved, view.Team.Status)
	require.NotNil(t, view.Portfolio)
	assert.Equal(market.Dollars(10000), view.Portfolio.Cash)
	assert.Equal(market.Dollars(5000), view.Portfolio.CreditCap)
}

func TestHandleJoinGame_Errors(t *testing.T) {
	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	teacher := dial(t, url)
	signInTeacher(t, s, teacher, "ms.jones@school.org", auth.RoleTeacher)
	game := createGame(t, teacher, "Class")

	team := dial(t, url)

	send(t, team, MsgJoinGame, JoinGameRequest{Code: "ZZZZZZ", TeamName: "Bulls", Password: "secret1"})
	assert.Equal(t, ErrGameNotFound.Code, readError(t, team).Code)

	send(t, team, MsgJoinGame, JoinGameRequest{Code: "ABC", TeamName: "Bulls", Password: "secret1"})
	assert.Equal(t, ErrInvalidCode.Code, readError(t, team).Code)

	send(t, team, MsgJoinGame, JoinGameRequest{Code: game.Code, TeamName: "!!!", Password: "secret1"})
	assert.Equal(t, ErrTeamNameInvalid.Code, readError(t, team).Code)

	send(t, team, MsgJoinGame, JoinGameRequest{Code: game.Code, TeamName: "Bulls", Password: "123"})
	assert.Equal(t, ErrInvalidPayload.Code, readError(t, team).Code)

	joinGame(t, team, game.Code, "Bulls", "secret1")

	other := dial(t, url)
	send(t, other, MsgJoinGame, JoinGameRequest{Code: game.Code, TeamName: "BULLS", Password: "guessing"})
	assert.Equal(t, ErrWrongPassword.Code, readError(t, other).Code)
}

func TestHandleJoinGame_PastedCode(t *testing.T) {
	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	teacher := dial(t, url)
	signInTeacher(t, s, teacher, "ms.jones@school.org", auth.RoleTeacher)
	game := createGame(t, teacher, "Class")

	team := dial(t, url)
	joined := joinGame(t, team, "  "+strings.ToLower(game.Code)+"\n", "Bulls", "secret1")

	assert.Equal(t, game.GameID, joined.GameID)
	assert.Equal(t, TeamPending, joined.Status)
}

func TestHandleJoinGame_SameTeamNewDevice(t *testing.T) {
	assert := assert.New(t)
	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	teacher := dial(t, url)
	signInTeacher(t, s, teacher, "ms.jones@school.org", auth.RoleTeacher)
	game := createGame(t, teacher, "Class")

	first := dial(t, url)
	joined := joinGame(t, first, game.Code, "Bulls", "secret1")

	second := dial(t, url)
	again := joinGame(t, second, game.Code, " bulls ", "secret1")

	assert.Equal(joined.TeamID, again.TeamID)
	assert.Equal(joined.Token, again.Token, "the team keeps its session")

	readType(t, first, MsgDisconnectedElsewhere)
}

func TestHandleTrade(t *testing.T) {
	assert := assert.New(t)
	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	teacher := dial(t, url)
	signInTeacher(t, s, teacher, "ms.jones@school.org", auth.RoleTeacher)
	game := createGame(t, teacher, "Class")

	team := dial(t, url)
	joined := joinGame(t, team, game.Code, "Bulls", "secret1")
	approve(t, teacher, team, game.GameID, joined.TeamID)

	send(t, team, MsgTrade, TradeRequest{Commodity: "gold", Action: "buy", Quantity: 2})
	var result TradeResponse
	decode(t, readType(t, team, MsgTradeResult), &result)
	assert.Equal(market.Dollars(1850), result.Trade.Price)
	assert.Equal(market.Buy, result.Trade.Action)

	view := readTeamState(t, team)
	assert.Equal(market.Dollars(6300), view.Portfolio.Cash)

	send(t, team, MsgTrade, TradeRequest{Commodity: "gold", Action: "buy", Quantity: 10})
	assert.Equal("INSUFFICIENT_FUNDS", readError(t, team).Code)

	send(t, team, MsgTrade, TradeRequest{Commodity: "gold", Action: "sell", Quantity: 1})
	assert.Equal(ErrInvalidPayload.Code, readError(t, team).Code)

	send(t, team, MsgTrade, TradeRequest{Commodity: "tin", Action: "short", Quantity: 1})
	assert.Equal("UNKNOWN_COMMODITY", readError(t, team).Code)

	// Review closes the market.
	send(t, teacher, MsgToggleState, GameRequest{GameID: game.GameID})
	view = readTeamState(t, team)
	assert.Equal(StateReview, view.Game.State)

	send(t, team, MsgTrade, TradeRequest{Commodity: "gold", Action: "buy", Quantity: 1})
	assert.Equal(ErrNotTrading.Code, readError(t, team).Code)
}

func TestHandleTrade_NotInGame(t *testing.T) {
	_, url, cleanup := setupTestServer(t)
	defer cleanup()

	conn := dial(t, url)
	send(t, conn, MsgTrade, TradeRequest{Commodity: "gold", Action: "buy", Quantity: 1})

	assert.Equal(t, ErrNotInGame.Code, readError(t, conn).Code)
}

func TestRevealAdvanceAndFine(t *testing.T) {
	assert := assert.New(t)
	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	teacher := dial(t, url)
	signInTeacher(t, s, teacher, "ms.jones@school.org", auth.RoleTeacher)
	game := createGame(t, teacher, "Class")

	team := dial(t, url)
	joined := joinGame(t, team, game.Code, "Bulls", "secret1")
	approve(t, teacher, team, game.GameID, joined.TeamID)

	send(t, team, MsgTrade, TradeRequest{Commodity: "gold", Action: "buy", Quantity: 2})
	readType(t, team, MsgTradeResult)

	send(t, teacher, MsgRevealHeadline, RevealHeadlineRequest{GameID: game.GameID, Index: new(int)})
	view := readTeamStateUntil(t, team, func(v TeamView) bool { return len(v.Headlines) == 1 })
	assert.Equal(0, view.Headlines[0].Index)
	assert.Contains(view.Headlines[0].Text, "gold")

	console := readTeacherStateUntil(t, teacher, func(v TeacherView) bool { return v.Headlines[0].Revealed })
	require.NotEmpty(t, console.Review)
	assert.Equal(market.Down, console.Review[0].Effect)
	assert.Equal(market.SignalBad, console.Review[0].Cells[0].Signal)

	outOfRange := 99
	send(t, teacher, MsgRevealHeadline, RevealHeadlineRequest{GameID: game.GameID, Index: &outOfRange})
	assert.Equal(ErrHeadlineRange.Code, readError(t, teacher).Code)

	send(t, teacher, MsgAdvanceRound, GameRequest{GameID: game.GameID})
	view = readTeamStateUntil(t, team, func(v TeamView) bool { return v.Game.Round == 1 })
	assert.Equal(market.Dollars(9694.50), view.Portfolio.Cash)
	assert.Equal(market.Dollars(4847), view.Portfolio.CreditCap)
	assert.Empty(view.Headlines, "a new month starts with no news")

	send(t, teacher, MsgFineTeam, FineTeamRequest{GameID: game.GameID, TeamID: joined.TeamID, Amount: market.Dollars(500), Reason: "Talking"})
	view = readTeamStateUntil(t, team, func(v TeamView) bool { return v.Portfolio.Cash == market.Dollars(9194.50) })
	assert.Equal(market.Dollars(9194.50), view.Portfolio.Cash)

	console = readTeacherStateUntil(t, teacher, func(v TeacherView) bool { return len(v.Fines) == 1 })
	assert.Equal("Talking", console.Fines[0].Reason)
}

func readTeamStateUntil(t *testing.T, conn *websocket.Conn, cond func(TeamView) bool) TeamView {
	t.Helper()
	for range 20 {
		if view := readTeamState(t, conn); cond(view) {
			return view
		}
	}
	t.Fatal("team state never matched")
	return TeamView{}
}

func TestAdvanceRound_FinishesGame(t *testing.T) {
	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	teacher := dial(t, url)
	signInTeacher(t, s, teacher, "ms.jones@school.org", auth.RoleTeacher)
	game := createGame(t, teacher, "Class")

	for range 6 {
		send(t, teacher, MsgAdvanceRound, GameRequest{GameID: game.GameID})
	}
	view := readTeacherStateUntil(t, teacher, func(v TeacherView) bool { return v.Game.State == StateFinished })
	assert.Equal(t, 6, view.Game.Round)

	send(t, teacher, MsgAdvanceRound, GameRequest{GameID: game.GameID})
	assert.Equal(t, ErrGameFinished.Code, readError(t, teacher).Code)
}

func TestKickAndRejectTeams(t *testing.T) {
	assert := assert.New(t)
	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	teacher := dial(t, url)
	signInTeacher(t, s, teacher, "ms.jones@school.org", auth.RoleTeacher)
	game := createGame(t, teacher, "Class")

	bulls := dial(t, url)
	bullsJoined := joinGame(t, bulls, game.Code, "Bulls", "secret1")
	bears := dial(t, url)
	bearsJoined := joinGame(t, bears, game.Code, "Bears", "secret2")

	// Only approved teams can be kicked.
	send(t, teacher, MsgKickTeam, TeamRequest{GameID: game.GameID, TeamID: bullsJoined.TeamID})
	assert.Equal(ErrInvalidTeamStatus.Code, readError(t, teacher).Code)

	send(t, teacher, MsgRejectTeam, TeamRequest{GameID: game.GameID, TeamID: bearsJoined.TeamID})
	view := readTeamStateUntil(t, bears, func(v TeamView) bool { return v.Team.Status == TeamRejected })
	assert.Nil(view.Portfolio)

	approve(t, teacher, bulls, game.GameID, bullsJoined.TeamID)
	send(t, teacher, MsgKickTeam, TeamRequest{GameID: game.GameID, TeamID: bullsJoined.TeamID})
	readTeamStateUntil(t, bulls, func(v TeamView) bool { return v.Team.Status == TeamKicked })

	send(t, bulls, MsgTrade, TradeRequest{Commodity: "gold", Action: "buy", Quantity: 1})
	assert.Equal(ErrTeamRemoved.Code, readError(t, bulls).Code)
}

func TestManageGame_OwnerOnly(t *testing.T) {
	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	owner := dial(t, url)
	signInTeacher(t, s, owner, "owner@school.org", auth.RoleTeacher)
	game := createGame(t, owner, "Mine")

	other := dial(t, url)
	signInTeacher(t, s, other, "other@school.org", auth.RoleTeacher)
	send(t, other, MsgToggleState, GameRequest{GameID: game.GameID})
	assert.Equal(t, ErrNotOwner.Code, readError(t, other).Code)

	send(t, other, MsgWatchGame, GameRequest{GameID: game.GameID})
	assert.Equal(t, ErrNotOwner.Code, readError(t, other).Code)

	admin := dial(t, url)
	signInTeacher(t, s, admin, "admin@school.org", auth.RoleAdmin)
	send(t, admin, MsgWatchGame, GameRequest{GameID: game.GameID})
	view := readTeacherState(t, admin)
	assert.Equal(t, game.GameID, view.Game.ID)
}

func TestHandleReconnect(t *testing.T) {
	assert := assert.New(t)
	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	teacher := dial(t, url)
	signInTeacher(t, s, teacher, "ms.jones@school.org", auth.RoleTeacher)
	game := createGame(t, teacher, "Class")

	first := dial(t, url)
	joined := joinGame(t, first, game.Code, "Bulls", "secret1")

	second := dial(t, url)
	send(t, second, MsgReconnect, ReconnectRequest{Token: joined.Token})
	var resp JoinGameResponse
	decode(t, readType(t, second, MsgReconnected), &resp)
	assert.Equal(joined.TeamID, resp.TeamID)
	assert.Equal("Bulls", resp.TeamName)

	readType(t, first, MsgDisconnectedElsewhere)

	view := readTeamState(t, second)
	assert.Equal(joined.TeamID, view.Team.ID)
}

func TestHandleReconnect_InvalidToken(t *testing.T) {
	_, url, cleanup := setupTestServer(t)
	defer cleanup()

	conn := dial(t, url)
	send(t, conn, MsgReconnect, ReconnectRequest{Token: "5f0c6bd4-1c44-4c8f-9a55-3b0f0b5d1a11"})

	assert.Equal(t, ErrTokenNotFound.Code, readError(t, conn).Code)
}

func TestHandleLeaveGame(t *testing.T) {
	assert := assert.New(t)
	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	teacher := dial(t, url)
	signInTeacher(t, s, teacher, "ms.jones@school.org", auth.RoleTeacher)
	game := createGame(t, teacher, "Class")

	team := dial(t, url)
	joined := joinGame(t, team, game.Code, "Bulls", "secret1")

	send(t, team, MsgLeaveGame, nil)
	readType(t, team, MsgLeftGame)

	_, err := s.sessionManager.GetSession(joined.Token)
	assert.ErrorIs(err, ErrTokenNotFound)

	// The team stays in the game and can come back with its password.
	console := readTeacherStateUntil(t, teacher, func(v TeacherView) bool {
		return len(v.Teams) == 1 && !v.Teams[0].Connected
	})
	assert.Equal(joined.TeamID, console.Teams[0].ID)

	back := joinGame(t, team, game.Code, "Bulls", "secret1")
	assert.Equal(joined.TeamID, back.TeamID)
	assert.NotEqual(joined.Token, back.Token)
}

func TestHandleDeleteGame(t *testing.T) {
	assert := assert.New(t)
	s, store := newTestServer(t)
	url, cleanup := serve(s)
	defer cleanup()

	teacher := dial(t, url)
	signInTeacher(t, s, teacher, "ms.jones@school.org", auth.RoleTeacher)
	game := createGame(t, teacher, "Class")

	team := dial(t, url)
	joined := joinGame(t, team, game.Code, "Bulls", "secret1")
	assert.True(store.hasGame(game.GameID))

	send(t, teacher, MsgDeleteGame, GameRequest{GameID: game.GameID})

	var deleted GameDeletedNotification
	decode(t, readType(t, teacher, MsgGameDeleted), &deleted)
	assert.Equal(game.GameID, deleted.GameID)
	readType(t, team, MsgGameDeleted)

	assert.False(store.hasGame(game.GameID))
	assert.Zero(store.sessionCount())
	_, err := s.sessionManager.GetSession(joined.Token)
	assert.ErrorIs(err, ErrTokenNotFound)

	send(t, team, MsgTrade, TradeRequest{Commodity: "gold", Action: "buy", Quantity: 1})
	assert.Equal(ErrNotInGame.Code, readError(t, team).Code)
}

func TestDisconnectUpdatesConsole(t *testing.T) {
	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	teacher := dial(t, url)
	signInTeacher(t, s, teacher, "ms.jones@school.org", auth.RoleTeacher)
	game := createGame(t, teacher, "Class")

	team, _, err := websocket.Dial(context.Background(), url, nil)
	require.NoError(t, err)
	joinGame(t, team, game.Code, "Bulls", "secret1")
	readTeacherStateUntil(t, teacher, func(v TeacherView) bool { return len(v.Teams) == 1 && v.Teams[0].Connected })

	team.Close(websocket.StatusNormalClosure, "")

	view := readTeacherStateUntil(t, teacher, func(v TeacherView) bool { return !v.Teams[0].Connected })
	assert.Len(t, view.Teams, 1)
}

func TestShutdownNotifiesClients(t *testing.T) {
	s, url, cleanup := setupTestServer(t)
	defer cleanup()

	conn := dial(t, url)
	send(t, conn, MsgPing, nil)
	readType(t, conn, MsgPong)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go s.Shutdown(ctx)

	readType(t, conn, MsgServerShutdown)
}
