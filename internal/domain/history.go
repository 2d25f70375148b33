package domain

import (
	"sort"
	"time"
)

// HistoryInterval is a chart bucket size.
type HistoryInterval string

const (
	IntervalRaw   HistoryInterval = ""
	IntervalHour  HistoryInterval = "1h"
	Interval6H    HistoryInterval = "6h"
	IntervalDay   HistoryInterval = "1d"
	IntervalWeek  HistoryInterval = "1w"
	IntervalMonth HistoryInterval = "1m"
)

var intervalSizes = map[HistoryInterval]time.Duration{
	IntervalHour:  time.Hour,
	Interval6H:    6 * time.Hour,
	IntervalDay:   24 * time.Hour,
	IntervalWeek:  7 * 24 * time.Hour,
	IntervalMonth: 30 * 24 * time.Hour,
}

// AggregateHistory buckets snapshots by interval, aligned to align, and keeps
// the last value of each bucket. Unknown intervals return the input unchanged.
func AggregateHistory(points []IndexSnapshot, interval HistoryInterval, align time.Time) []IndexSnapshot {
	size, ok := intervalSizes[interval]
	if !ok || len(points) == 0 {
		return points
	}
	if align.IsZero() {
		align = points[0].Timestamp
	}

	last := make(map[int64]IndexSnapshot, len(points))
	for _, p := range points {
		offset := p.Timestamp.Sub(align)
		key := int64(offset / size)
		if offset < 0 && offset%size != 0 {
			key-- // floor for points before the alignment
		}
		prev, seen := last[key]
		if !seen || !p.Timestamp.Before(prev.Timestamp) {
			last[key] = p
		}
	}

	keys := make([]int64, 0, len(last))
	for k := range last {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]IndexSnapshot, 0, len(keys))
	for _, k := range keys {
		out = append(out, last[k])
	}
	return out
}
