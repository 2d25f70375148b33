package index

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"time"

	"github.com/alejandrodnm/attention/internal/domain"
)

// DemoTick is the interval between synthetic index points (4× the live rate).
const DemoTick = 15 * time.Second

// DemoParams shapes the synthetic process:
//
//	momentum[t] = decay · momentum[t−1] (+ burst with probability BurstChance)
//	index[t]    = index[t−1] + Reversion·(100 − index[t−1]) + momentum[t] + noise[t]
type DemoParams struct {
	Reversion   float64
	Decay       float64
	BurstChance float64
	BurstSize   float64
	Noise       float64
	Min         float64
	Max         float64
}

// DefaultDemoParams keeps the series around 100 with visible waves.
func DefaultDemoParams() DemoParams {
	return DemoParams{
		Reversion:   0.12,
		Decay:       0.7,
		BurstChance: 0.25,
		BurstSize:   5,
		Noise:       0.8,
		Min:         50,
		Max:         200,
	}
}

// DemoGenerator produces a deterministic index series per event id.
// Each tick draws from its own stream seeded by (event id, tick), so two
// events never share state and any tick can be replayed.
type DemoGenerator struct {
	params DemoParams
}

// NewDemoGenerator creates a generator. Min/Max are fixed up if inverted or unset.
func NewDemoGenerator(p DemoParams) *DemoGenerator {
	if p.Min <= 0 {
		p.Min = 50
	}
	if p.Max <= p.Min {
		p.Max = math.Max(200, p.Min*2)
	}
	return &DemoGenerator{params: p}
}

// Value returns index[tick]. Tick 0 (and negative ticks) is BaseIndex.
func (g *DemoGenerator) Value(eventID string, tick int) float64 {
	if tick <= 0 {
		return domain.BaseIndex
	}
	series := g.Trajectory(eventID, tick)
	return series[tick]
}

// Trajectory returns index[0..n].
func (g *DemoGenerator) Trajectory(eventID string, n int) []float64 {
	if n < 0 {
		n = 0
	}
	out := make([]float64, n+1)
	out[0] = domain.BaseIndex

	seed := eventSeed(eventID)
	level, momentum := domain.BaseIndex, 0.0
	for t := 1; t <= n; t++ {
		r := tickRand(seed, t)
		momentum *= g.params.Decay
		if r.Float64() < g.params.BurstChance {
			momentum += (r.Float64()*2 - 1) * g.params.BurstSize
		}
		noise := r.NormFloat64() * g.params.Noise
		level += g.params.Reversion*(domain.BaseIndex-level) + momentum + noise
		level = g.clamp(level)
		out[t] = domain.RoundIndex(level)
	}
	return out
}

func (g *DemoGenerator) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return domain.BaseIndex
	}
	return math.Min(math.Max(v, g.params.Min), g.params.Max)
}

// TickIndex is the number of whole demo ticks elapsed since start.
func TickIndex(start, now time.Time, every time.Duration) int {
	if every <= 0 {
		every = DemoTick
	}
	if now.Before(start) {
		return 0
	}
	return int(now.Sub(start) / every)
}

func eventSeed(eventID string) uint64 {
	sum := sha256.Sum256([]byte(eventID))
	return binary.BigEndian.Uint64(sum[:8])
}

func tickRand(seed uint64, tick int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(tick)*0x9e3779b97f4a7c15))
}
