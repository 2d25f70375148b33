package index

// pipeline.go turns channel activity into one index value per tick.
//
// Every channel is queried concurrently with its own timeout. A channel that
// fails, times out or is not registered becomes an error reading and adds
// nothing to the index; the tick is only degraded when every channel failed.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/attention/internal/domain"
	"github.com/alejandrodnm/attention/internal/ports"
)

const (
	defaultChannelTimeout = 8 * time.Second
	defaultLookback       = time.Hour
)

// Result is the outcome of one pipeline run.
type Result struct {
	Value    float64 // meaningless when Degraded
	Readings []domain.ChannelReading
	Degraded bool // no channel answered
	// Baselines is set when a channel without baseline answered this run:
	// the config with that reading fixed as its baseline.
	Baselines *domain.ChannelConfig
}

// Pipeline collects activity from the registered channels and combines it.
type Pipeline struct {
	collectors map[domain.ChannelKind]ports.ChannelCollector
	timeout    time.Duration
	lookback   time.Duration
	now        func() time.Time
}

// NewPipeline creates a Pipeline. Zero durations use the defaults (8s, 1h).
func NewPipeline(timeout, lookback time.Duration, collectors ...ports.ChannelCollector) *Pipeline {
	if timeout <= 0 {
		timeout = defaultChannelTimeout
	}
	if lookback <= 0 {
		lookback = defaultLookback
	}
	p := &Pipeline{
		collectors: make(map[domain.ChannelKind]ports.ChannelCollector, len(collectors)),
		timeout:    timeout,
		lookback:   lookback,
		now:        time.Now,
	}
	for _, c := range collectors {
		p.collectors[c.Kind()] = c
	}
	return p
}

// Collect queries every channel of cfg. readings[i] belongs to cfg.Channels[i].
// It never fails: errors are carried in the readings.
func (p *Pipeline) Collect(ctx context.Context, cfg domain.ChannelConfig) []domain.ChannelReading {
	readings := make([]domain.ChannelReading, len(cfg.Channels))
	since := p.now().Add(-p.lookback)

	var g errgroup.Group
	for i, ch := range cfg.Channels {
		g.Go(func() error {
			readings[i] = p.collectOne(ctx, ch, cfg, since)
			return nil
		})
	}
	_ = g.Wait()
	return readings
}

func (p *Pipeline) collectOne(ctx context.Context, ch domain.Channel, cfg domain.ChannelConfig, since time.Time) domain.ChannelReading {
	reading := domain.ChannelReading{Kind: ch.Kind()}

	collector, ok := p.collectors[ch.Kind()]
	if !ok {
		reading.Err = fmt.Errorf("no collector for channel %q", ch.Kind())
		return reading
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	activity, err := collector.FetchActivity(cctx, ports.ActivityQuery{
		Spec:       ch.Spec,
		Keywords:   cfg.Keywords,
		Exclusions: cfg.Exclusions,
		Since:      since,
	})
	if err != nil {
		slog.Warn("channel unavailable", "channel", ch.Kind(), "err", err)
		reading.Err = err
		return reading
	}
	reading.Activity = activity
	return reading
}

// Compute runs one tick for cfg.
func (p *Pipeline) Compute(ctx context.Context, cfg domain.ChannelConfig) Result {
	readings := p.Collect(ctx, cfg)
	value, ok := domain.ComputeIndex(cfg.Channels, readings)
	res := Result{Value: value, Readings: readings, Degraded: !ok}
	if captured, changed := cfg.CaptureMissingBaselines(readings); changed {
		res.Baselines = &captured
	}
	return res
}

// Baseline observes the current activity of cfg and returns a copy of cfg
// whose baselines are that activity, plus the total activity seen. The index
// of the returned config at this instant is BaseIndex by construction.
func (p *Pipeline) Baseline(ctx context.Context, cfg domain.ChannelConfig) (domain.ChannelConfig, float64) {
	readings := p.Collect(ctx, cfg)
	return cfg.WithBaselines(readings), domain.TotalActivity(readings)
}
