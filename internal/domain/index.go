package domain

import (
	"math"
	"time"
)

const (
	// BaseIndex is the value of the index when activity equals the baseline.
	BaseIndex = 100.0
	// IndexGain converts the weighted log delta into index points.
	IndexGain = 10.0
)

// IndexSnapshot is one point of the append-only index series of an event.
type IndexSnapshot struct {
	EventID   string
	Timestamp time.Time
	Value     float64
}

// ChannelReading is the outcome of one channel collection: either an
// activity count or an error. An error reading contributes nothing.
type ChannelReading struct {
	Kind     ChannelKind
	Activity float64
	Err      error
}

// OK reports whether the reading carries a usable activity count.
func (r ChannelReading) OK() bool {
	return r.Err == nil
}

// ChannelDelta is log1p(max(0, activity − baseline) / scale). It is never
// negative, so activity below the baseline cannot pull the index down.
func ChannelDelta(activity, baseline, scale float64) float64 {
	if scale <= 0 {
		scale = 1
	}
	d := activity - baseline
	if !(d > 0) {
		return 0
	}
	return math.Log1p(d / scale)
}

// ComputeIndex combines readings into one index value:
//
//	index = 100 + 10 × Σ weight_c × log1p(max(0, activity_c − baseline_c) / scale_c)
//
// readings[i] belongs to channels[i]. Channels with a missing baseline are
// skipped. ok is false when no baselined channel answered, in which case the
// caller must keep the previous index.
func ComputeIndex(channels []Channel, readings []ChannelReading) (value float64, ok bool) {
	sum := 0.0
	for i, ch := range channels {
		if ch.BaselineMissing || i >= len(readings) || !readings[i].OK() {
			continue
		}
		ok = true
		sum += ch.Weight * ChannelDelta(readings[i].Activity, ch.Baseline, ch.Scale)
	}
	if !ok {
		return 0, false
	}
	return RoundIndex(BaseIndex + IndexGain*sum), true
}

// TotalActivity sums the successful readings.
func TotalActivity(readings []ChannelReading) float64 {
	total := 0.0
	for _, r := range readings {
		if r.OK() && r.Activity > 0 {
			total += r.Activity
		}
	}
	return total
}

// RoundIndex rounds an index value to two decimals.
func RoundIndex(v float64) float64 {
	return math.Round(v*100) / 100
}
