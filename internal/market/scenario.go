package market

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed scenario.yaml
var defaultScenario []byte

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

type Commodity struct {
	ID     string  `yaml:"id" json:"id"`
	Name   string  `yaml:"name" json:"name"`
	Prices []Money `yaml:"prices" json:"prices"`
}

// Effect is the market move a headline announces for one commodity. The
// commodity is referenced by display name, matched with NormalizeName.
type Effect struct {
	Commodity string    `yaml:"commodity" json:"commodity"`
	Change    Direction `yaml:"change" json:"change"`
	Impact    string    `yaml:"impact" json:"impact,omitempty"`
}

type Headline struct {
	Text    string   `yaml:"text" json:"text"`
	Effects []Effect `yaml:"effects" json:"effects,omitempty"`
}

// Scenario is the scripted market a game is played against: a price per
// commodity per month and the headlines the teacher can reveal each month.
// A commodity has one more price than there are months; the extra price is
// what positions from the final month close at.
type Scenario struct {
	Commodities []Commodity
	Headlines   map[int][]Headline

	byID   map[string]int
	byName map[string]string
}

type scenarioFile struct {
	Commodities []Commodity `yaml:"commodities"`
	Headlines   []struct {
		Round int        `yaml:"round"`
		Items []Headline `yaml:"items"`
	} `yaml:"headlines"`
}

// DefaultScenario returns a fresh copy of the built-in scenario.
func DefaultScenario() (*Scenario, error) {
	return LoadScenario(bytes.NewReader(defaultScenario))
}

func LoadScenarioFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario %s: %w", path, err)
	}
	defer f.Close()

	return LoadScenario(f)
}

// LoadScenario parses and validates a YAML scenario.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var file scenarioFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}

	s := &Scenario{
		Commodities: file.Commodities,
		Headlines:   make(map[int][]Headline, len(file.Headlines)),
	}
	for _, round := range file.Headlines {
		s.Headlines[round.Round] = append(s.Headlines[round.Round], round.Items...)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the scenario is playable and builds the lookup indexes.
func (s *Scenario) Validate() error {
	if len(s.Commodities) == 0 {
		return errors.New("scenario has no commodities")
	}

	s.byID = make(map[string]int, len(s.Commodities))
	s.byName = make(map[string]string, len(s.Commodities))

	priceCount := len(s.Commodities[0].Prices)
	if priceCount < 2 {
		return fmt.Errorf("commodity %q needs at least 2 prices", s.Commodities[0].ID)
	}

	for i, c := range s.Commodities {
		if c.ID == "" || c.Name == "" {
			return fmt.Errorf("commodity %d is missing an id or name", i)
		}
		if _, dup := s.byID[c.ID]; dup {
			return fmt.Errorf("duplicate commodity id %q", c.ID)
		}
		if len(c.Prices) != priceCount {
			return fmt.Errorf("commodity %q has %d prices, want %d", c.ID, len(c.Prices), priceCount)
		}
		for month, p := range c.Prices {
			if p <= 0 {
				return fmt.Errorf("commodity %q has non-positive price in month %d", c.ID, month+1)
			}
		}
		s.byID[c.ID] = i
		s.byName[NormalizeName(c.Name)] = c.ID
	}

	for round, items := range s.Headlines {
		if round < 0 || round >= s.Rounds() {
			return fmt.Errorf("headlines for month %d are outside the %d playable months", round+1, s.Rounds())
		}
		for i, h := range items {
			if h.Text == "" {
				return fmt.Errorf("headline %d in month %d has no text", i, round+1)
			}
			for _, eff := range h.Effects {
				if _, ok := s.byName[NormalizeName(eff.Commodity)]; !ok {
					return fmt.Errorf("headline %q references unknown commodity %q", h.Text, eff.Commodity)
				}
				if eff.Change != Up && eff.Change != Down {
					return fmt.Errorf("headline %q has invalid change %q", h.Text, eff.Change)
				}
			}
		}
	}

	return nil
}

// Rounds is the number of playable months.
func (s *Scenario) Rounds() int {
	if len(s.Commodities) == 0 {
		return 0
	}
	return len(s.Commodities[0].Prices) - 1
}

func (s *Scenario) Commodity(id string) (Commodity, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Commodity{}, false
	}
	return s.Commodities[i], true
}

// CommodityIDByName resolves a headline's commodity name to an id.
func (s *Scenario) CommodityIDByName(name string) (string, bool) {
	id, ok := s.byName[NormalizeName(name)]
	return id, ok
}

// PriceAt returns the price of a commodity in a month. Months past the last
// price are reported as missing.
func (s *Scenario) PriceAt(id string, round int) (Money, bool) {
	c, ok := s.Commodity(id)
	if !ok || round < 0 || round >= len(c.Prices) {
		return 0, false
	}
	return c.Prices[round], true
}

// Prices returns every commodity's price for a month.
func (s *Scenario) Prices(round int) map[string]Money {
	prices := make(map[string]Money, len(s.Commodities))
	for _, c := range s.Commodities {
		if round >= 0 && round < len(c.Prices) {
			prices[c.ID] = c.Prices[round]
		}
	}
	return prices
}

func (s *Scenario) HeadlinesFor(round int) []Headline {
	return s.Headlines[round]
}
