package server

import (
	"slices"

	"github.com/smarter-english/elt-trading-game/internal/market"
)

// TeamView builds the state pushed to one team.
func (gm *GameManager) TeamView(gameID, teamID string) (TeamView, error) {
	game, err := gm.GetGame(gameID)
	if err != nil {
		return TeamView{}, err
	}

	game.mu.Lock()
	defer game.mu.Unlock()

	team, exists := game.Teams[teamID]
	if !exists {
		return TeamView{}, ErrTeamNotFound
	}

	prices := gm.scenario.Prices(game.CurrentRound)
	view := TeamView{
		Game: gm.meta(game),
		Team: teamInfo(team),
	}

	var positions map[string]int
	if team.Status == TeamApproved {
		if p := game.Portfolios[teamID]; p != nil {
			view.Portfolio = portfolioView(p, prices)
			positions = p.Positions
		}
	}
	view.Commodities = gm.quotes(prices, positions)

	revealed := game.revealed(game.CurrentRound)
	view.Headlines = make([]HeadlineView, 0, len(revealed))
	headlines := gm.scenario.HeadlinesFor(game.CurrentRound)
	for _, idx := range revealed {
		if idx < 0 || idx >= len(headlines) {
			continue
		}
		view.Headlines = append(view.Headlines, HeadlineView{
			Index:    idx,
			Text:     headlines[idx].Text,
			Revealed: true,
		})
	}
	return view, nil
}

// TeacherView builds the console state for a game. online reports whether a
// team currently has a live connection.
func (gm *GameManager) TeacherView(gameID string, online func(teamID string) bool) (TeacherView, error) {
	game, err := gm.GetGame(gameID)
	if err != nil {
		return TeacherView{}, err
	}

	game.mu.Lock()
	defer game.mu.Unlock()

	prices := gm.scenario.Prices(game.CurrentRound)
	view := TeacherView{
		Game:        gm.meta(game),
		Commodities: gm.quotes(prices, nil),
		Trades:      slices.Clone(game.Trades),
		Fines:       slices.Clone(game.Fines),
	}
	if view.Trades == nil {
		view.Trades = []Trade{}
	}
	if view.Fines == nil {
		view.Fines = []Fine{}
	}

	teams := game.sortedTeams()
	view.Teams = make([]TeamSummary, 0, len(teams))
	var positions []market.TeamPositions
	var entries []market.ScoreEntry
	for _, t := range teams {
		summary := TeamSummary{TeamInfo: teamInfo(t)}
		if online != nil {
			summary.Connected = online(t.ID)
		}
		if p := game.Portfolios[t.ID]; p != nil {
			summary.Portfolio = portfolioView(p, prices)
		}
		view.Teams = append(view.Teams, summary)

		if t.Status != TeamApproved {
			continue
		}
		p := game.Portfolios[t.ID]
		var held map[string]int
		if p != nil {
			held = p.Positions
		}
		positions = append(positions, market.TeamPositions{TeamID: t.ID, Name: t.Name, Positions: held})
		entries = append(entries, market.ScoreEntry{TeamID: t.ID, Name: t.Name, Portfolio: p})
	}

	revealed := game.revealed(game.CurrentRound)
	headlines := gm.scenario.HeadlinesFor(game.CurrentRound)
	view.Headlines = make([]HeadlineView, 0, len(headlines))
	for i, h := range headlines {
		view.Headlines = append(view.Headlines, HeadlineView{
			Index:    i,
			Text:     h.Text,
			Revealed: slices.Contains(revealed, i),
			Effects:  h.Effects,
		})
	}

	view.Review = market.BuildReviewBoard(gm.scenario, game.CurrentRound, revealed, positions)
	view.Scoreboard = market.BuildScoreboard(entries, prices)
	return view, nil
}

func (gm *GameManager) meta(g *ActiveGame) GameMeta {
	return GameMeta{
		ID:          g.ID,
		Name:        g.Name,
		Code:        g.Code,
		Round:       g.CurrentRound,
		Month:       g.CurrentRound + 1,
		TotalRounds: gm.scenario.Rounds(),
		State:       g.State,
	}
}

func (gm *GameManager) quotes(prices map[string]market.Money, positions map[string]int) []CommodityQuote {
	quotes := make([]CommodityQuote, 0, len(gm.scenario.Commodities))
	for _, c := range gm.scenario.Commodities {
		price := prices[c.ID]
		qty := positions[c.ID]
		quotes = append(quotes, CommodityQuote{
			ID:       c.ID,
			Name:     c.Name,
			Price:    price,
			Position: qty,
			Value:    price.Times(qty),
		})
	}
	return quotes
}

func teamInfo(t *Team) TeamInfo {
	return TeamInfo{ID: t.ID, Name: t.Name, Status: t.Status, JoinedAt: t.JoinedAt}
}

func portfolioView(p *market.Portfolio, prices map[string]market.Money) *PortfolioView {
	holdings := p.Holdings(prices)
	return &PortfolioView{
		Cash:       p.Cash,
		CreditCap:  p.CreditCap,
		CreditUsed: p.CreditUsed(prices),
		Available:  p.Available(prices),
		Holdings:   holdings,
		NetWorth:   p.Cash + holdings,
	}
}
