package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-connection token bucket: maxRequests may arrive in a
// burst and the bucket refills at maxRequests per window.
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	window   time.Duration
	limiters map[string]*connectionLimiter // connectionID -> bucket
	mu       sync.Mutex
}

type connectionLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Every(window / time.Duration(maxRequests)),
		burst:    maxRequests,
		window:   window,
		limiters: make(map[string]*connectionLimiter),
	}
}

// Allow reports whether the connection may send another message now.
func (r *RateLimiter) Allow(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cl, exists := r.limiters[connectionID]
	if !exists {
		cl = &connectionLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[connectionID] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter.Allow()
}

// Cleanup drops buckets of connections that have been quiet for a full
// window.
func (r *RateLimiter) Cleanup() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.window)
	for connID, cl := range r.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(r.limiters, connID)
		}
	}
}

func (r *RateLimiter) RemoveConnection(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.limiters, connectionID)
}

// ConnectionHealth tracks last activity time for each connection
type ConnectionHealth struct {
	lastActivity map[string]time.Time // connectionID -> last message time
	mu           sync.RWMutex
}

func NewConnectionHealth() *ConnectionHealth {
	return &ConnectionHealth{
		lastActivity: make(map[string]time.Time),
	}
}

// UpdateActivity records that a connection is active
func (h *ConnectionHealth) UpdateActivity(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActivity[connectionID] = time.Now()
}

// GetInactiveConnections returns all connections inactive longer than timeout
func (h *ConnectionHealth) GetInactiveConnections(timeout time.Duration) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	inactive := make([]string, 0)
	now := time.Now()

	for connID, lastActivity := range h.lastActivity {
		if now.Sub(lastActivity) > timeout {
			inactive = append(inactive, connID)
		}
	}

	return inactive
}

func (h *ConnectionHealth) RemoveConnection(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.lastActivity, connectionID)
}

var validMessageTypes = map[string]bool{
	MsgPing:           true,
	MsgJoinGame:       true,
	MsgReconnect:      true,
	MsgTrade:          true,
	MsgLeaveGame:      true,
	MsgTeacherAuth:    true,
	MsgCreateGame:     true,
	MsgListGames:      true,
	MsgWatchGame:      true,
	MsgApproveTeam:    true,
	MsgRejectTeam:     true,
	MsgKickTeam:       true,
	MsgToggleState:    true,
	MsgRevealHeadline: true,
	MsgAdvanceRound:   true,
	MsgFineTeam:       true,
	MsgDeleteGame:     true,
}

// ValidateMessageType checks if a message type is recognized
func ValidateMessageType(msgType string) error {
	if !validMessageTypes[msgType] {
		return newGameError("INVALID_MESSAGE_TYPE", "Unknown message type '%s'", msgType)
	}
	return nil
}
