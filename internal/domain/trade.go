package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction a trader bets on.
type Side string

const (
	SideUp   Side = "up"
	SideDown Side = "down"
)

// ParseSide validates user input.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideUp:
		return SideUp, nil
	case SideDown:
		return SideDown, nil
	}
	return "", &ValidationError{Field: "side", Msg: "side must be 'up' or 'down'"}
}

// Trade is one accepted entry of the ledger.
type Trade struct {
	ID             string
	EventID        string
	Side           Side
	Amount         decimal.Decimal
	TraderID       string
	ExecutionPrice float64 // price of Side quoted when the trade was accepted
	PriceUp        float64 // prices after the trade
	PriceDown      float64
	CreatedAt      time.Time
}

// Position holds the running totals of an event's ledger. Both totals only grow:
// closing exposure is an opposite-side trade.
type Position struct {
	EventID string
	NetUp   decimal.Decimal
	NetDown decimal.Decimal
}

// Apply returns the position after a trade of amount on side.
func (p Position) Apply(side Side, amount decimal.Decimal) Position {
	out := p
	switch side {
	case SideUp:
		out.NetUp = p.NetUp.Add(amount)
	case SideDown:
		out.NetDown = p.NetDown.Add(amount)
	}
	return out
}

// Net is net_up − net_down.
func (p Position) Net() decimal.Decimal {
	return p.NetUp.Sub(p.NetDown)
}

// Volume is the total amount traded on the event.
func (p Position) Volume() decimal.Decimal {
	return p.NetUp.Add(p.NetDown)
}
