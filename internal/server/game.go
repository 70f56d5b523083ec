package server

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/smarter-english/elt-trading-game/internal/market"
)

type GameState string

const (
	StatePlay     GameState = "play"
	StateReview   GameState = "review"
	StateFinished GameState = "finished"
)

type TeamStatus string

const (
	TeamPending  TeamStatus = "pending"
	TeamApproved TeamStatus = "approved"
	TeamKicked   TeamStatus = "kicked"
	TeamRejected TeamStatus = "rejected"
)

type Team struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	NormalizedName string     `json:"normalizedName"`
	PasswordHash   string     `json:"passwordHash"`
	Status         TeamStatus `json:"status"`
	JoinedAt       time.Time  `json:"joinedAt"`
}

type Trade struct {
	TeamID    string        `json:"teamId"`
	Round     int           `json:"round"`
	Commodity string        `json:"commodity"`
	Action    market.Action `json:"action"`
	Quantity  int           `json:"quantity"`
	Price     market.Money  `json:"price"`
	At        time.Time     `json:"at"`
}

type Fine struct {
	TeamID string       `json:"teamId"`
	Round  int          `json:"round"`
	Amount market.Money `json:"amount"`
	Reason string       `json:"reason"`
	At     time.Time    `json:"at"`
}

// ActiveGame is one classroom game. mu guards every field; the JSON form is
// the persisted snapshot. saveMu orders writes of the snapshot against
// removal of the stored row.
type ActiveGame struct {
	mu      sync.Mutex
	saveMu  sync.Mutex
	deleted bool

	ID           string                       `json:"id"`
	Name         string                       `json:"name"`
	Code         string                       `json:"code"`
	CreatedBy    string                       `json:"createdBy"`
	CreatedAt    time.Time                    `json:"createdAt"`
	UpdatedAt    time.Time                    `json:"updatedAt"`
	CurrentRound int                          `json:"currentRound"`
	State        GameState                    `json:"state"`
	Teams        map[string]*Team             `json:"teams"`
	Portfolios   map[string]*market.Portfolio `json:"portfolios"`
	Reveals      map[int][]int                `json:"reveals"`
	Trades       []Trade                      `json:"trades"`
	Fines        []Fine                       `json:"fines"`
}

func newActiveGame(id, code, name, createdBy string, now time.Time) *ActiveGame {
	return &ActiveGame{
		ID:         id,
		Name:       name,
		Code:       code,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
		State:      StatePlay,
		Teams:      make(map[string]*Team),
		Portfolios: make(map[string]*market.Portfolio),
		Reveals:    make(map[int][]int),
	}
}

// ensureMaps fills maps that a restored snapshot may have left nil.
func (g *ActiveGame) ensureMaps() {
	if g.Teams == nil {
		g.Teams = make(map[string]*Team)
	}
	if g.Portfolios == nil {
		g.Portfolios = make(map[string]*market.Portfolio)
	}
	if g.Reveals == nil {
		g.Reveals = make(map[int][]int)
	}
	for _, p := range g.Portfolios {
		if p.Positions == nil {
			p.Positions = make(map[string]int)
		}
	}
}

// sortedTeams lists teams in join order. Caller holds g.mu.
func (g *ActiveGame) sortedTeams() []*Team {
	teams := make([]*Team, 0, len(g.Teams))
	for _, t := range g.Teams {
		teams = append(teams, t)
	}
	slices.SortFunc(teams, func(a, b *Team) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.NormalizedName, b.NormalizedName)
	})
	return teams
}

// teamByName finds a team by normalised name. Caller holds g.mu.
func (g *ActiveGame) teamByName(normalized string) *Team {
	for _, t := range g.Teams {
		if t.NormalizedName == normalized {
			return t
		}
	}
	return nil
}

func (g *ActiveGame) revealed(round int) []int {
	return g.Reveals[round]
}

// markDeleted stops any later snapshot of a removed game.
func (g *ActiveGame) markDeleted() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = true
}

func (g *ActiveGame) touch(now time.Time) {
	g.UpdatedAt = now
}
