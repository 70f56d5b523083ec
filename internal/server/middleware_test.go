package server

import (
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	limiter := NewRateLimiter(10, time.Second)
	connID := "test-conn"

	for i := 0; i < 10; i++ {
		if !limiter.Allow(connID) {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if limiter.Allow(connID) {
		t.Error("11th request should be rate limited")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	limiter := NewRateLimiter(2, 100*time.Millisecond)
	connID := "test-conn"

	if !limiter.Allow(connID) {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow(connID) {
		t.Error("Second request should be allowed")
	}
	if limiter.Allow(connID) {
		t.Error("Third request should be rate limited")
	}

	time.Sleep(120 * time.Millisecond)

	if !limiter.Allow(connID) {
		t.Error("Request after the window should be allowed")
	}
}

func TestRateLimiter_MultipleConnections(t *testing.T) {
	limiter := NewRateLimiter(5, time.Second)
	conn1 := "conn-1"
	conn2 := "conn-2"

	for i := 0; i < 5; i++ {
		limiter.Allow(conn1)
	}
	if limiter.Allow(conn1) {
		t.Error("conn-1 should be rate limited")
	}

	for i := 0; i < 5; i++ {
		if !limiter.Allow(conn2) {
			t.Errorf("conn-2 request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(10, 50*time.Millisecond)

	limiter.Allow("quiet")
	time.Sleep(80 * time.Millisecond)
	limiter.Allow("busy")

	limiter.Cleanup()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, exists := limiter.limiters["quiet"]; exists {
		t.Error("quiet connection should be dropped")
	}
	if _, exists := limiter.limiters["busy"]; !exists {
		t.Error("busy connection should be kept")
	}
}

func TestRateLimiter_RemoveConnection(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute)
	limiter.Allow("conn")
	if limiter.Allow("conn") {
		t.Fatal("second request should be limited")
	}

	limiter.RemoveConnection("conn")

	if !limiter.Allow("conn") {
		t.Error("a removed connection starts with a full bucket")
	}
}

func TestConnectionHealth_UpdateActivity(t *testing.T) {
	health := NewConnectionHealth()
	connID := "test-conn"

	health.UpdateActivity(connID)

	health.mu.RLock()
	lastActivity, exists := health.lastActivity[connID]
	health.mu.RUnlock()

	if !exists {
		t.Error("Activity should be recorded")
	}
	if time.Since(lastActivity) > time.Second {
		t.Error("Activity should be recent")
	}
}

func TestConnectionHealth_GetInactiveConnections(t *testing.T) {
	health := NewConnectionHealth()

	health.UpdateActivity("active-1")
	health.UpdateActivity("active-2")

	health.mu.Lock()
	health.lastActivity["inactive-1"] = time.Now().Add(-6 * time.Minute)
	health.lastActivity["inactive-2"] = time.Now().Add(-10 * time.Minute)
	health.mu.Unlock()

	inactive := health.GetInactiveConnections(5 * time.Minute)

	if len(inactive) != 2 {
		t.Errorf("Expected 2 inactive connections, got %d", len(inactive))
	}
	found := map[string]bool{}
	for _, id := range inactive {
		found[id] = true
	}
	if !found["inactive-1"] || !found["inactive-2"] {
		t.Error("Should find both inactive connections")
	}
}

func TestConnectionHealth_RemoveConnection(t *testing.T) {
	health := NewConnectionHealth()
	connID := "test-conn"

	health.UpdateActivity(connID)
	health.RemoveConnection(connID)

	health.mu.RLock()
	_, exists := health.lastActivity[connID]
	health.mu.RUnlock()
	if exists {
		t.Error("Connection should be removed")
	}
}

func TestValidateMessageType(t *testing.T) {
	validTypes := []string{
		"ping", "join_game", "reconnect", "trade", "leave_game",
		"teacher_auth", "create_game", "list_games", "watch_game",
		"approve_team", "reject_team", "kick_team", "toggle_state",
		"reveal_headline", "advance_round", "fine_team", "delete_game",
	}
	for _, msgType := range validTypes {
		if err := ValidateMessageType(msgType); err != nil {
			t.Errorf("Valid message type '%s' should not error", msgType)
		}
	}

	invalidTypes := []string{"invalid", "execute_move", "PING", ""}
	for _, msgType := range invalidTypes {
		if err := ValidateMessageType(msgType); err == nil {
			t.Errorf("Invalid message type '%s' should error", msgType)
		}
	}
}
