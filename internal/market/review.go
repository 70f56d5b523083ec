package market

import (
	"cmp"
	"slices"
)

// Signal marks whether a team's position agrees with the revealed news.
type Signal string

const (
	SignalNone Signal = ""
	SignalGood Signal = "good"
	SignalBad  Signal = "bad"
)

// TeamPositions is the slice of a team's state the review board needs.
type TeamPositions struct {
	TeamID    string
	Name      string
	Positions map[string]int
}

type ReviewCell struct {
	TeamID   string `json:"teamId"`
	Position int    `json:"position"`
	Signal   Signal `json:"signal,omitempty"`
}

type ReviewRow struct {
	CommodityID string       `json:"commodityId"`
	Name        string       `json:"name"`
	Effect      Direction    `json:"effect,omitempty"`
	Cells       []ReviewCell `json:"cells"`
}

// RevealedEffects maps commodity id to the direction announced by the
// revealed headlines of a month. Only a headline's first effect counts and
// a later headline overrides an earlier one for the same commodity.
func RevealedEffects(s *Scenario, round int, revealed []int) map[string]Direction {
	effects := make(map[string]Direction)
	headlines := s.HeadlinesFor(round)

	shown := make([]int, 0, len(revealed))
	for _, idx := range revealed {
		if idx >= 0 && idx < len(headlines) {
			shown = append(shown, idx)
		}
	}
	slices.Sort(shown)

	for _, idx := range shown {
		h := headlines[idx]
		if len(h.Effects) == 0 {
			continue
		}
		eff := h.Effects[0]
		id, ok := s.CommodityIDByName(eff.Commodity)
		if !ok {
			continue
		}
		effects[id] = eff.Change
	}
	return effects
}

// BuildReviewBoard lays out every team's position per commodity and flags
// positions that the revealed news favours (long into "up", short into
// "down") or punishes.
func BuildReviewBoard(s *Scenario, round int, revealed []int, teams []TeamPositions) []ReviewRow {
	effects := RevealedEffects(s, round, revealed)

	rows := make([]ReviewRow, 0, len(s.Commodities))
	for _, c := range s.Commodities {
		dir := effects[c.ID]
		row := ReviewRow{
			CommodityID: c.ID,
			Name:        c.Name,
			Effect:      dir,
			Cells:       make([]ReviewCell, 0, len(teams)),
		}
		for _, t := range teams {
			qty := t.Positions[c.ID]
			row.Cells = append(row.Cells, ReviewCell{
				TeamID:   t.TeamID,
				Position: qty,
				Signal:   signalFor(dir, qty),
			})
		}
		rows = append(rows, row)
	}
	return rows
}

func signalFor(dir Direction, qty int) Signal {
	if dir == "" || qty == 0 {
		return SignalNone
	}
	if (dir == Up && qty > 0) || (dir == Down && qty < 0) {
		return SignalGood
	}
	return SignalBad
}

type ScoreEntry struct {
	TeamID    string
	Name      string
	Portfolio *Portfolio
}

type Standing struct {
	Rank     int    `json:"rank"`
	TeamID   string `json:"teamId"`
	Name     string `json:"name"`
	Cash     Money  `json:"cash"`
	Holdings Money  `json:"holdings"`
	NetWorth Money  `json:"netWorth"`
}

// BuildScoreboard ranks teams by net worth at the given prices. Equal net
// worth shares a rank; ties are listed by name.
func BuildScoreboard(entries []ScoreEntry, prices map[string]Money) []Standing {
	standings := make([]Standing, 0, len(entries))
	for _, e := range entries {
		if e.Portfolio == nil {
			continue
		}
		holdings := e.Portfolio.Holdings(prices)
		standings = append(standings, Standing{
			TeamID:   e.TeamID,
			Name:     e.Name,
			Cash:     e.Portfolio.Cash,
			Holdings: holdings,
			NetWorth: e.Portfolio.Cash + holdings,
		})
	}

	slices.SortFunc(standings, func(a, b Standing) int {
		if c := cmp.Compare(b.NetWorth, a.NetWorth); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	for i := range standings {
		if i > 0 && standings[i].NetWorth == standings[i-1].NetWorth {
			standings[i].Rank = standings[i-1].Rank
		} else {
			standings[i].Rank = i + 1
		}
	}
	return standings
}
