package server

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/smarter-english/elt-trading-game/internal/auth"
	"github.com/smarter-english/elt-trading-game/internal/market"
)

type GameManager struct {
	games    map[string]*ActiveGame // game id -> game
	codes    map[string]string      // room code -> game id
	scenario *market.Scenario
	hasher   auth.PasswordHasher
	now      func() time.Time
	mu       sync.RWMutex
}

func NewGameManager(scenario *market.Scenario, hasher auth.PasswordHasher) *GameManager {
	return &GameManager{
		games:    make(map[string]*ActiveGame),
		codes:    make(map[string]string),
		scenario: scenario,
		hasher:   hasher,
		now:      time.Now,
	}
}

func (gm *GameManager) Scenario() *market.Scenario {
	return gm.scenario
}

// GameSummary is a dashboard row.
type GameSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	CreatedAt    time.Time `json:"createdAt"`
	CurrentRound int       `json:"currentRound"`
	State        GameState `json:"state"`
	TeamCount    int       `json:"teamCount"`
	PendingCount int       `json:"pendingCount"`
}

func (gm *GameManager) CreateGame(teacher auth.Teacher, name string) (*ActiveGame, error) {
	if !teacher.Role.CanManageGames() {
		return nil, ErrNotTeacher
	}

	now := gm.now()
	name = strings.TrimSpace(name)
	if name == "" {
		name = "My Game " + now.Format("2 Jan 2006")
	}

	gm.mu.Lock()
	defer gm.mu.Unlock()

	code := GenerateRoomCode(gm.codes)
	game := newActiveGame(uuid.NewString(), code, name, teacher.ID, now)
	gm.games[game.ID] = game
	gm.codes[code] = game.ID

	log.Info().Str("game_id", game.ID).Str("code", code).Str("teacher_id", teacher.ID).Msg("Game created")
	return game, nil
}

// ListGames returns the teacher's games, newest first.
func (gm *GameManager) ListGames(teacher auth.Teacher) []GameSummary {
	gm.mu.RLock()
	owned := make([]*ActiveGame, 0)
	for _, g := range gm.games {
		if g.CreatedBy == teacher.ID {
			owned = append(owned, g)
		}
	}
	gm.mu.RUnlock()

	summaries := make([]GameSummary, 0, len(owned))
	for _, g := range owned {
		g.mu.Lock()
		s := GameSummary{
			ID:           g.ID,
			Name:         g.Name,
			Code:         g.Code,
			CreatedAt:    g.CreatedAt,
			CurrentRound: g.CurrentRound,
			State:        g.State,
			TeamCount:    len(g.Teams),
		}
		for _, t := range g.Teams {
			if t.Status == TeamPending {
				s.PendingCount++
			}
		}
		g.mu.Unlock()
		summaries = append(summaries, s)
	}

	slices.SortFunc(summaries, func(a, b GameSummary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	return summaries
}

func (gm *GameManager) GetGame(gameID string) (*ActiveGame, error) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	game, exists := gm.games[gameID]
	if !exists {
		return nil, ErrGameNotFound
	}
	return game, nil
}

func (gm *GameManager) GetGameByCode(code string) (*ActiveGame, error) {
	code = NormalizeRoomCode(code)
	if err := ValidateRoomCode(code); err != nil {
		return nil, err
	}

	gm.mu.RLock()
	defer gm.mu.RUnlock()

	id, exists := gm.codes[code]
	if !exists {
		return nil, ErrGameNotFound
	}
	return gm.games[id], nil
}

// Games returns every live game.
func (gm *GameManager) Games() []*ActiveGame {
	gm.mu.RLock()
	defer gm.mu.RUnlock()

	games := make([]*ActiveGame, 0, len(gm.games))
	for _, g := range gm.games {
		games = append(games, g)
	}
	return games
}

// Restore adds games loaded from storage.
func (gm *GameManager) Restore(games []*ActiveGame) {
	gm.mu.Lock()
	defer gm.mu.Unlock()

	for _, g := range games {
		g.ensureMaps()
		gm.games[g.ID] = g
		gm.codes[g.Code] = g.ID
	}
}

// managedGame returns the game if teacher may manage it.
func (gm *GameManager) managedGame(teacher auth.Teacher, gameID string) (*ActiveGame, error) {
	if !teacher.Role.CanManageGames() {
		return nil, ErrNotTeacher
	}
	game, err := gm.GetGame(gameID)
	if err != nil {
		return nil, err
	}
	if game.CreatedBy != teacher.ID && teacher.Role != auth.RoleAdmin {
		return nil, ErrNotOwner
	}
	return game, nil
}

// Authorize checks that teacher may manage the game.
func (gm *GameManager) Authorize(teacher auth.Teacher, gameID string) (*ActiveGame, error) {
	return gm.managedGame(teacher, gameID)
}

func (gm *GameManager) DeleteGame(teacher auth.Teacher, gameID string) (*ActiveGame, error) {
	game, err := gm.managedGame(teacher, gameID)
	if err != nil {
		return nil, err
	}

	gm.mu.Lock()
	delete(gm.games, game.ID)
	delete(gm.codes, game.Code)
	gm.mu.Unlock()
	game.markDeleted()

	log.Info().Str("game_id", game.ID).Str("code", game.Code).Msg("Game deleted")
	return game, nil
}

// JoinGame enters a team into a game. A known team name with the right
// password re-enters that team; an unknown name creates a pending team.
func (gm *GameManager) JoinGame(code, teamName, password string) (*ActiveGame, Team, error) {
	game, err := gm.GetGameByCode(code)
	if err != nil {
		return nil, Team{}, err
	}

	teamName = strings.TrimSpace(teamName)
	normalized := market.NormalizeName(teamName)
	if normalized == "" {
		return nil, Team{}, ErrTeamNameInvalid
	}

	game.mu.Lock()
	existing := game.teamByName(normalized)
	var existingTeam Team
	if existing != nil {
		existingTeam = *existing
	}
	finished := game.State == StateFinished
	game.mu.Unlock()

	if existing != nil {
		return gm.reenter(game, existingTeam, password)
	}
	if finished {
		return nil, Team{}, ErrGameFinished
	}

	// Hash outside the game lock, then re-check for a racing join.
	hash, err := gm.hasher.Hash(password)
	if err != nil {
		return nil, Team{}, err
	}

	game.mu.Lock()
	if raced := game.teamByName(normalized); raced != nil {
		racedTeam := *raced
		game.mu.Unlock()
		return gm.reenter(game, racedTeam, password)
	}

	now := gm.now()
	team := &Team{
		ID:             uuid.NewString(),
		Name:           teamName,
		NormalizedName: normalized,
		PasswordHash:   hash,
		Status:         TeamPending,
		JoinedAt:       now,
	}
	game.Teams[team.ID] = team
	game.touch(now)
	joined := *team
	game.mu.Unlock()

	log.Info().Str("game_id", game.ID).Str("team_id", team.ID).Str("team", teamName).Msg("Team joined")
	return game, joined, nil
}

func (gm *GameManager) reenter(game *ActiveGame, team Team, password string) (*ActiveGame, Team, error) {
	ok, err := gm.hasher.Compare(team.PasswordHash, password)
	if err != nil {
		return nil, Team{}, err
	}
	if !ok {
		return nil, Team{}, ErrWrongPassword
	}
	return game, team, nil
}

// Team returns a copy of a team.
func (gm *GameManager) Team(gameID, teamID string) (Team, error) {
	game, err := gm.GetGame(gameID)
	if err != nil {
		return Team{}, err
	}

	game.mu.Lock()
	defer game.mu.Unlock()

	team, exists := game.Teams[teamID]
	if !exists {
		return Team{}, ErrTeamNotFound
	}
	return *team, nil
}

// ApproveTeam admits a team and seeds its portfolio the first time.
func (gm *GameManager) ApproveTeam(teacher auth.Teacher, gameID, teamID string) (*ActiveGame, error) {
	return gm.updateTeam(teacher, gameID, teamID, func(game *ActiveGame, team *Team) error {
		team.Status = TeamApproved
		if _, seeded := game.Portfolios[team.ID]; !seeded {
			game.Portfolios[team.ID] = market.NewPortfolio()
		}
		return nil
	})
}

func (gm *GameManager) RejectTeam(teacher auth.Teacher, gameID, teamID string) (*ActiveGame, error) {
	return gm.updateTeam(teacher, gameID, teamID, func(_ *ActiveGame, team *Team) error {
		if team.Status != TeamPending {
			return ErrInvalidTeamStatus
		}
		team.Status = TeamRejected
		return nil
	})
}

func (gm *GameManager) KickTeam(teacher auth.Teacher, gameID, teamID string) (*ActiveGame, error) {
	return gm.updateTeam(teacher, gameID, teamID, func(_ *ActiveGame, team *Team) error {
		if team.Status != TeamApproved {
			return ErrInvalidTeamStatus
		}
		team.Status = TeamKicked
		return nil
	})
}

func (gm *GameManager) updateTeam(teacher auth.Teacher, gameID, teamID string, fn func(*ActiveGame, *Team) error) (*ActiveGame, error) {
	game, err := gm.managedGame(teacher, gameID)
	if err != nil {
		return nil, err
	}

	game.mu.Lock()
	defer game.mu.Unlock()

	team, exists := game.Teams[teamID]
	if !exists {
		return nil, ErrTeamNotFound
	}
	before := team.Status
	if err := fn(game, team); err != nil {
		return nil, err
	}
	game.touch(gm.now())

	log.Info().Str("game_id", game.ID).Str("team_id", team.ID).
		Str("from", string(before)).Str("to", string(team.Status)).Msg("Team status changed")
	return game, nil
}

// ToggleState flips between trading and review.
func (gm *GameManager) ToggleState(teacher auth.Teacher, gameID string) (*ActiveGame, error) {
	game, err := gm.managedGame(teacher, gameID)
	if err != nil {
		return nil, err
	}

	game.mu.Lock()
	defer game.mu.Unlock()

	switch game.State {
	case StatePlay:
		game.State = StateReview
	case StateReview:
		game.State = StatePlay
	default:
		return nil, ErrGameFinished
	}
	game.touch(gm.now())
	return game, nil
}

// RevealHeadline shows one of the current month's headlines to the teams.
// Revealing the same headline twice is a no-op.
func (gm *GameManager) RevealHeadline(teacher auth.Teacher, gameID string, index int) (*ActiveGame, error) {
	game, err := gm.managedGame(teacher, gameID)
	if err != nil {
		return nil, err
	}

	game.mu.Lock()
	defer game.mu.Unlock()

	if game.State == StateFinished {
		return nil, ErrGameFinished
	}
	if index < 0 || index >= len(gm.scenario.HeadlinesFor(game.CurrentRound)) {
		return nil, ErrHeadlineRange
	}

	shown := game.Reveals[game.CurrentRound]
	if slices.Contains(shown, index) {
		return game, nil
	}
	shown = append(shown, index)
	slices.Sort(shown)
	game.Reveals[game.CurrentRound] = shown
	game.touch(gm.now())
	return game, nil
}

// AdvanceRound closes every position at next month's prices and moves the
// game on. Advancing past the last month finishes the game.
func (gm *GameManager) AdvanceRound(teacher auth.Teacher, gameID string) (*ActiveGame, error) {
	game, err := gm.managedGame(teacher, gameID)
	if err != nil {
		return nil, err
	}

	game.mu.Lock()
	defer game.mu.Unlock()

	if game.State == StateFinished {
		return nil, ErrGameFinished
	}

	next := game.CurrentRound + 1
	prices := gm.scenario.Prices(next)
	for teamID, p := range game.Portfolios {
		delta := p.Liquidate(prices)
		log.Debug().Str("game_id", game.ID).Str("team_id", teamID).
			Stringer("delta", delta).Stringer("cash", p.Cash).Msg("Portfolio liquidated")
	}

	game.CurrentRound = next
	if next >= gm.scenario.Rounds() {
		game.State = StateFinished
	} else {
		game.State = StatePlay
	}
	game.touch(gm.now())

	log.Info().Str("game_id", game.ID).Int("round", next).Str("state", string(game.State)).Msg("Round advanced")
	return game, nil
}

// FineTeam deducts a penalty from a team's cash. Cash may go negative.
func (gm *GameManager) FineTeam(teacher auth.Teacher, gameID, teamID string, amount market.Money, reason string) (*ActiveGame, error) {
	game, err := gm.managedGame(teacher, gameID)
	if err != nil {
		return nil, err
	}

	game.mu.Lock()
	defer game.mu.Unlock()

	if _, exists := game.Teams[teamID]; !exists {
		return nil, ErrTeamNotFound
	}
	p, seeded := game.Portfolios[teamID]
	if !seeded {
		return nil, ErrTeamNotApproved
	}
	if err := p.ApplyFine(amount); err != nil {
		return nil, err
	}

	now := gm.now()
	game.Fines = append(game.Fines, Fine{
		TeamID: teamID,
		Round:  game.CurrentRound,
		Amount: amount,
		Reason: strings.TrimSpace(reason),
		At:     now,
	})
	game.touch(now)

	log.Info().Str("game_id", game.ID).Str("team_id", teamID).Stringer("amount", amount).Msg("Team fined")
	return game, nil
}

// Trade buys or shorts a commodity at the current month's price.
func (gm *GameManager) Trade(gameID, teamID, commodity, action string, quantity int) (*ActiveGame, Trade, error) {
	game, err := gm.GetGame(gameID)
	if err != nil {
		return nil, Trade{}, err
	}

	act, err := market.ParseAction(strings.ToLower(strings.TrimSpace(action)))
	if err != nil {
		return nil, Trade{}, err
	}
	commodityID := commodity
	if _, ok := gm.scenario.Commodity(commodityID); !ok {
		if id, ok := gm.scenario.CommodityIDByName(commodity); ok {
			commodityID = id
		}
	}

	game.mu.Lock()
	defer game.mu.Unlock()

	team, exists := game.Teams[teamID]
	if !exists {
		return nil, Trade{}, ErrTeamNotFound
	}
	switch team.Status {
	case TeamApproved:
	case TeamPending:
		return nil, Trade{}, ErrTeamNotApproved
	default:
		return nil, Trade{}, ErrTeamRemoved
	}

	switch game.State {
	case StateFinished:
		return nil, Trade{}, ErrGameFinished
	case StateReview:
		return nil, Trade{}, ErrNotTrading
	}

	p := game.Portfolios[teamID]
	if p == nil {
		p = market.NewPortfolio()
		game.Portfolios[teamID] = p
	}

	order := market.Order{Commodity: commodityID, Action: act, Quantity: quantity}
	price, err := p.Apply(order, gm.scenario.Prices(game.CurrentRound))
	if err != nil {
		return nil, Trade{}, err
	}

	now := gm.now()
	trade := Trade{
		TeamID:    teamID,
		Round:     game.CurrentRound,
		Commodity: commodityID,
		Action:    act,
		Quantity:  quantity,
		Price:     price,
		At:        now,
	}
	game.Trades = append(game.Trades, trade)
	game.touch(now)

	log.Info().Str("game_id", game.ID).Str("team_id", teamID).Str("commodity", commodityID).
		Str("action", string(act)).Int("quantity", quantity).Stringer("price", price).Msg("Trade executed")
	return game, trade, nil
}

// Evict drops a game from memory after it was removed from storage and
// returns it, or nil if it was not loaded.
func (gm *GameManager) Evict(gameID string) *ActiveGame {
	gm.mu.Lock()
	game, exists := gm.games[gameID]
	if exists {
		delete(gm.codes, game.Code)
		delete(gm.games, gameID)
	}
	gm.mu.Unlock()

	if !exists {
		return nil
	}
	game.markDeleted()
	return game
}
