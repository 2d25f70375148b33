package domain

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func pos(up, down float64) Position {
	return Position{NetUp: decimal.NewFromFloat(up), NetDown: decimal.NewFromFloat(down)}
}

func TestPrice_BalancedIsExactlyHalf(t *testing.T) {
	pr := DefaultPricing()
	for _, n := range []float64{0, 1, 10, 12345.5} {
		p := pr.Price(pos(n, n))
		assert.Equal(t, 0.5, p.Up)
		assert.Equal(t, 0.5, p.Down)
	}
}

func TestPrice_SumsToOne(t *testing.T) {
	pr := DefaultPricing()
	cases := [][2]float64{{0, 0}, {10, 0}, {0, 10}, {30, 7}, {500, 3}, {2, 900}, {0.01, 0}}
	for _, c := range cases {
		p := pr.Price(pos(c[0], c[1]))
		assert.InDelta(t, 1.0, p.Up+p.Down, 1e-12, "net_up=%v net_down=%v", c[0], c[1])
		assert.Greater(t, p.Up, 0.0)
		assert.Less(t, p.Up, 1.0)
	}
}

func TestPrice_StrictlyMonotonicInNet(t *testing.T) {
	pr := DefaultPricing()
	prev := pr.Price(pos(0, 100)).Up
	for up := 1.0; up <= 200; up++ {
		cur := pr.Price(pos(up, 100)).Up
		assert.Greater(t, cur, prev, "net_up=%v", up)
		prev = cur
	}

	// far into both tails; x = net/20 reaches ±250
	nets := []float64{-5000, -700, -600, -300, -1, 0, 1, 300, 600, 700, 5000}
	var last Prices
	for i, n := range nets {
		p := pr.Price(pos(math.Max(n, 0), math.Max(-n, 0)))
		assert.Greater(t, p.Up, 0.0, "net=%v", n)
		assert.Less(t, p.Up, 1.0, "net=%v", n)
		assert.Greater(t, p.Down, 0.0, "net=%v", n)
		assert.Less(t, p.Down, 1.0, "net=%v", n)
		if i > 0 {
			assert.Greater(t, p.Up, last.Up, "up at net=%v", n)
			assert.Less(t, p.Down, last.Down, "down at net=%v", n)
		}
		last = p
	}
}

func TestPrice_DependsOnlyOnNet(t *testing.T) {
	pr := DefaultPricing()
	a := pr.Price(pos(15, 5))
	b := pr.Price(pos(110, 100))
	assert.InDelta(t, a.Up, b.Up, 1e-12)
}

func TestPrice_LargeTradesDoNotSaturateInstantly(t *testing.T) {
	p := DefaultPricing().Price(pos(30, 0))
	// 1/(1+e^-1.5)
	assert.InDelta(t, 0.8176, p.Up, 0.0001)
	assert.Less(t, p.Up, 0.99)
}

func TestPrice_ExtremeNetStaysInOpenInterval(t *testing.T) {
	p := DefaultPricing().Price(pos(1e9, 0))
	assert.Less(t, p.Up, 1.0)
	assert.Greater(t, p.Down, 0.0)

	p = DefaultPricing().Price(pos(0, 1e9))
	assert.Greater(t, p.Up, 0.0)
	assert.Less(t, p.Down, 1.0)
}

func TestPrices_For(t *testing.T) {
	p := Prices{Up: 0.7, Down: 0.3}
	assert.Equal(t, 0.7, p.For(SideUp))
	assert.Equal(t, 0.3, p.For(SideDown))
}

func TestPosition_ApplyOnlyGrows(t *testing.T) {
	p := Position{EventID: "e1"}
	p = p.Apply(SideUp, decimal.NewFromInt(10))
	p = p.Apply(SideDown, decimal.NewFromInt(4))
	p = p.Apply(SideUp, decimal.RequireFromString("0.5"))

	assert.True(t, p.NetUp.Equal(decimal.RequireFromString("10.5")))
	assert.True(t, p.NetDown.Equal(decimal.NewFromInt(4)))
	assert.True(t, p.Net().Equal(decimal.RequireFromString("6.5")))
	assert.True(t, p.Volume().Equal(decimal.RequireFromString("14.5")))
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide(" UP ")
	assert.NoError(t, err)
	assert.Equal(t, SideUp, s)

	_, err = ParseSide("sideways")
	assert.True(t, IsValidation(err))
}
