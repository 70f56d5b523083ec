package market

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Money is an amount in cents. Prices, cash and credit are all kept in
// cents so that repeated trades never accumulate float error.
type Money int64

// Dollars converts a dollar amount to Money, rounding to the nearest cent.
func Dollars(d float64) Money {
	return Money(math.Round(d * 100))
}

func (m Money) Float() float64 {
	return float64(m) / 100
}

// Times returns the value of qty units priced at m.
func (m Money) Times(qty int) Money {
	return m * Money(qty)
}

func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

// String renders the amount as "$1,234.50" (or "-$1,234.50").
func (m Money) String() string {
	sign := ""
	if m < 0 {
		sign = "-"
	}
	cents := int64(m.Abs())
	whole := strconv.FormatInt(cents/100, 10)

	grouped := make([]byte, 0, len(whole)+len(whole)/3)
	for i := range len(whole) {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped = append(grouped, ',')
		}
		grouped = append(grouped, whole[i])
	}

	return fmt.Sprintf("%s$%s.%02d", sign, grouped, cents%100)
}

// MarshalJSON writes the amount in dollars so clients never see cents.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatFloat(m.Float(), 'f', 2, 64)), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d float64
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("money: %w", err)
	}
	*m = Dollars(d)
	return nil
}

func (m *Money) UnmarshalYAML(value *yaml.Node) error {
	var d float64
	if err := value.Decode(&d); err != nil {
		return fmt.Errorf("money: %w", err)
	}
	*m = Dollars(d)
	return nil
}
