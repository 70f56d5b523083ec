package server

import "encoding/json"

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Client → server message types.
const (
	MsgPing           = "ping"
	MsgJoinGame       = "join_game"
	MsgReconnect      = "reconnect"
	MsgTrade          = "trade"
	MsgLeaveGame      = "leave_game"
	MsgTeacherAuth    = "teacher_auth"
	MsgCreateGame     = "create_game"
	MsgListGames      = "list_games"
	MsgWatchGame      = "watch_game"
	MsgApproveTeam    = "approve_team"
	MsgRejectTeam     = "reject_team"
	MsgKickTeam       = "kick_team"
	MsgToggleState    = "toggle_state"
	MsgRevealHeadline = "reveal_headline"
	MsgAdvanceRound   = "advance_round"
	MsgFineTeam       = "fine_team"
	MsgDeleteGame     = "delete_game"
)

// Server → client message types.
const (
	MsgPong                  = "pong"
	MsgError                 = "error"
	MsgGameJoined            = "game_joined"
	MsgReconnected           = "reconnected"
	MsgTradeResult           = "trade_result"
	MsgLeftGame              = "left_game"
	MsgTeacherAuthed         = "teacher_authed"
	MsgGameCreated           = "game_created"
	MsgGamesList             = "games_list"
	MsgGameDeleted           = "game_deleted"
	MsgTeamState             = "team_state"
	MsgTeacherState          = "teacher_state"
	MsgDisconnectedElsewhere = "disconnected_elsewhere"
	MsgServerShutdown        = "server_shutdown"
)
