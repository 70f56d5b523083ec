package market

import (
	"errors"
	"fmt"
	"maps"
	"math"
)

const (
	InitialCapital Money = 10_000_00

	// CreditMultiplier is the share of cash a team may borrow for shorts.
	CreditMultiplier = 0.5
)

var (
	ErrInvalidQuantity    = errors.New("quantity must be a whole number of at least 1")
	ErrInvalidAction      = errors.New("action must be buy or short")
	ErrUnknownCommodity   = errors.New("unknown commodity")
	ErrNoPrice            = errors.New("commodity has no price this month")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientCredit = errors.New("insufficient credit")
	ErrInvalidFine        = errors.New("fine must be a positive amount")
)

type Action string

const (
	Buy   Action = "buy"
	Short Action = "short"
)

func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case Buy, Short:
		return Action(s), nil
	}
	return "", ErrInvalidAction
}

// Order is a request to buy or short a quantity of one commodity.
type Order struct {
	Commodity string
	Action    Action
	Quantity  int
}

// Portfolio is a team's cash, credit cap and signed positions (negative
// quantities are shorts).
type Portfolio struct {
	Cash      Money          `json:"cash"`
	CreditCap Money          `json:"creditCap"`
	Positions map[string]int `json:"positions"`
}

func NewPortfolio() *Portfolio {
	return &Portfolio{
		Cash:      InitialCapital,
		CreditCap: CreditCapFor(InitialCapital),
		Positions: make(map[string]int),
	}
}

// CreditCapFor is half of cash rounded to the whole dollar, never negative.
func CreditCapFor(cash Money) Money {
	dollars := math.Round(cash.Float() * CreditMultiplier)
	if dollars < 0 {
		return 0
	}
	return Money(dollars) * 100
}

func (p *Portfolio) Clone() *Portfolio {
	c := *p
	c.Positions = maps.Clone(p.Positions)
	if c.Positions == nil {
		c.Positions = make(map[string]int)
	}
	return &c
}

// CreditUsed is the current value of all short positions.
func (p *Portfolio) CreditUsed(prices map[string]Money) Money {
	var used Money
	for id, qty := range p.Positions {
		if qty < 0 {
			used += prices[id].Times(-qty)
		}
	}
	return used
}

func (p *Portfolio) Available(prices map[string]Money) Money {
	return p.CreditCap - p.CreditUsed(prices)
}

// Holdings is the signed market value of all open positions.
func (p *Portfolio) Holdings(prices map[string]Money) Money {
	var total Money
	for id, qty := range p.Positions {
		total += prices[id].Times(qty)
	}
	return total
}

func (p *Portfolio) NetWorth(prices map[string]Money) Money {
	return p.Cash + p.Holdings(prices)
}

// Apply executes an order at the given month's prices and returns the
// price it filled at. A buy spends cash; a short is limited by available
// credit and credits the sale proceeds to cash. The portfolio is left
// untouched when the order is rejected.
func (p *Portfolio) Apply(o Order, prices map[string]Money) (Money, error) {
	if o.Quantity < 1 {
		return 0, ErrInvalidQuantity
	}
	if _, err := ParseAction(string(o.Action)); err != nil {
		return 0, err
	}

	price, ok := prices[o.Commodity]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCommodity, o.Commodity)
	}
	if price <= 0 {
		return 0, ErrNoPrice
	}

	cost := price.Times(o.Quantity)
	if p.Positions == nil {
		p.Positions = make(map[string]int)
	}

	switch o.Action {
	case Buy:
		if cost > p.Cash {
			return 0, ErrInsufficientFunds
		}
		p.Cash -= cost
		p.Positions[o.Commodity] += o.Quantity
	case Short:
		if cost > p.Available(prices) {
			return 0, ErrInsufficientCredit
		}
		p.Cash += cost
		p.Positions[o.Commodity] -= o.Quantity
	}

	if p.Positions[o.Commodity] == 0 {
		delete(p.Positions, o.Commodity)
	}
	return price, nil
}

// Liquidate closes every position at the given prices: longs are sold and
// shorts bought back. The credit cap is then reset from the new cash.
// It returns the cash change.
func (p *Portfolio) Liquidate(prices map[string]Money) Money {
	delta := p.Holdings(prices)
	p.Cash += delta
	p.Positions = make(map[string]int)
	p.CreditCap = CreditCapFor(p.Cash)
	return delta
}

// ApplyFine deducts a penalty from cash. Cash may go negative.
func (p *Portfolio) ApplyFine(amount Money) error {
	if amount <= 0 {
		return ErrInvalidFine
	}
	p.Cash -= amount
	return nil
}
