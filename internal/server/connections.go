package server

import (
	"sync"

	"github.com/coder/websocket"

	"github.com/smarter-english/elt-trading-game/internal/auth"
)

// ClientInfo describes who is on the other end of a connection. A team
// connection carries a session token; a teacher connection carries the
// signed-in account and the game it is watching.
type ClientInfo struct {
	Token   string
	GameID  string
	TeamID  string
	Teacher *auth.Teacher
}

func (c ClientInfo) isTeam() bool {
	return c.Token != ""
}

// Subscriber is a live connection following a game.
type Subscriber struct {
	ConnectionID string
	Conn         *websocket.Conn
	Client       ClientInfo
}

type ConnectionManager struct {
	connections map[string]*websocket.Conn // connectionID → socket
	clients     map[string]ClientInfo      // connectionID → client info
	mu          sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
		clients:     make(map[string]ClientInfo),
	}
}

func (cm *ConnectionManager) AddConnection(id string, conn *websocket.Conn) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[id] = conn
}

func (cm *ConnectionManager) RemoveConnection(id string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.connections, id)
	delete(cm.clients, id)
}

// AddConnectionWithToken binds a team session to a connection. If the token
// was already bound to a different connection, that connection id is
// returned so the caller can close the stale device.
func (cm *ConnectionManager) AddConnectionWithToken(connectionID string, conn *websocket.Conn, session SessionInfo) string {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	oldConnectionID := ""
	for id, client := range cm.clients {
		if client.Token == session.Token {
			oldConnectionID = id
			if id != connectionID {
				delete(cm.clients, id)
			}
			break
		}
	}

	if conn != nil {
		cm.connections[connectionID] = conn
	}
	cm.clients[connectionID] = ClientInfo{
		Token:  session.Token,
		GameID: session.GameID,
		TeamID: session.TeamID,
	}
	return oldConnectionID
}

// BindTeacher marks the connection as a signed-in teacher.
func (cm *ConnectionManager) BindTeacher(connectionID string, teacher auth.Teacher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.clients[connectionID] = ClientInfo{Teacher: &teacher}
}

// Watch subscribes a teacher connection to a game's updates.
func (cm *ConnectionManager) Watch(connectionID, gameID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	client := cm.clients[connectionID]
	client.GameID = gameID
	cm.clients[connectionID] = client
}

// UnmapToken removes the team binding of whichever connection holds token.
func (cm *ConnectionManager) UnmapToken(token string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for connID, client := range cm.clients {
		if client.Token == token {
			delete(cm.clients, connID)
			break
		}
	}
}

func (cm *ConnectionManager) Client(connectionID string) ClientInfo {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.clients[connectionID]
}

// GetConnection returns websocket for connectionID
func (cm *ConnectionManager) GetConnection(connectionID string) *websocket.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.connections[connectionID]
}

// Subscribers lists the open connections following a game.
func (cm *ConnectionManager) Subscribers(gameID string) []Subscriber {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var subs []Subscriber
	for connID, client := range cm.clients {
		if client.GameID != gameID {
			continue
		}
		conn, open := cm.connections[connID]
		if !open {
			continue
		}
		subs = append(subs, Subscriber{ConnectionID: connID, Conn: conn, Client: client})
	}
	return subs
}

// TeamOnline reports whether any connection is bound to the team.
func (cm *ConnectionManager) TeamOnline(gameID, teamID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for connID, client := range cm.clients {
		if client.GameID == gameID && client.TeamID == teamID {
			if _, open := cm.connections[connID]; open {
				return true
			}
		}
	}
	return false
}

// ForgetGame unsubscribes every connection from a deleted game.
func (cm *ConnectionManager) ForgetGame(gameID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for connID, client := range cm.clients {
		if client.GameID != gameID {
			continue
		}
		if client.isTeam() {
			delete(cm.clients, connID)
			continue
		}
		client.GameID = ""
		cm.clients[connID] = client
	}
}

// Count returns the number of open connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// Connections returns every open socket.
func (cm *ConnectionManager) Connections() []*websocket.Conn {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	conns := make([]*websocket.Conn, 0, len(cm.connections))
	for _, conn := range cm.connections {
		if conn != nil {
			conns = append(conns, conn)
		}
	}
	return conns
}
