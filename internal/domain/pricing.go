package domain

import "math"

const (
	defaultPricingK         = 1.0
	defaultPricingLiquidity = 20.0
)

// Pricing maps a position to outcome prices:
//
//	price_up   = 1 / (1 + exp(−K · (net_up − net_down) / Liquidity))
//	price_down = 1 − price_up
//
// Liquidity is the depth that keeps a handful of large trades from pinning
// the price at 0 or 1.
type Pricing struct {
	K         float64
	Liquidity float64
}

// DefaultPricing returns K=1, Liquidity=20.
func DefaultPricing() Pricing {
	return Pricing{K: defaultPricingK, Liquidity: defaultPricingLiquidity}
}

// Prices is a complementary pair of outcome probabilities.
type Prices struct {
	Up   float64
	Down float64
}

// For returns the price of side.
func (p Prices) For(side Side) float64 {
	if side == SideDown {
		return p.Down
	}
	return p.Up
}

// EvenPrices is the price of a market without trades.
var EvenPrices = Prices{Up: 0.5, Down: 0.5}

// Price computes the outcome prices for pos. A balanced position prices 0.5/0.5 exactly.
func (pr Pricing) Price(pos Position) Prices {
	net := pos.Net()
	if net.IsZero() {
		return EvenPrices
	}
	k, liq := pr.K, pr.Liquidity
	if k <= 0 {
		k = defaultPricingK
	}
	if liq <= 0 {
		liq = defaultPricingLiquidity
	}
	x := k * net.InexactFloat64() / liq
	up := logistic(x)
	return Prices{Up: up, Down: math.Min(1-up, belowOne)}
}

var belowOne = math.Nextafter(1, 0)

// logistic is 1/(1+e^−x), evaluated so that neither tail overflows. Only a
// result that rounded to exactly 0 or 1 is moved back inside (0,1).
func logistic(x float64) float64 {
	var p float64
	if x >= 0 {
		p = 1 / (1 + math.Exp(-x))
	} else {
		e := math.Exp(x)
		p = e / (1 + e)
	}
	switch {
	case p <= 0:
		return math.SmallestNonzeroFloat64
	case p >= 1:
		return belowOne
	}
	return p
}
