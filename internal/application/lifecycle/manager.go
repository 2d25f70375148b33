package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/attention/internal/domain"
	"github.com/alejandrodnm/attention/internal/index"
	"github.com/alejandrodnm/attention/internal/ports"
)

// Reasons shown verbatim to the proposer when a topic is not opened.
const (
	ReasonAnalysisFailed = "Analysis failed; event rejected."
	ReasonNoTraction     = "We couldn't find enough attention around this topic right now, so it's not tradable yet."
	ReasonNotTradable    = "This topic isn't a good fit for an attention market."
)

// IndexSource is the live index pipeline as seen by the lifecycle.
type IndexSource interface {
	Baseline(ctx context.Context, cfg domain.ChannelConfig) (domain.ChannelConfig, float64)
	Compute(ctx context.Context, cfg domain.ChannelConfig) index.Result
}

// Config holds the lifecycle settings.
type Config struct {
	HourWindow   time.Duration
	DayWindow    time.Duration
	DemoWindow   time.Duration
	DemoTick     time.Duration
	ChannelScale float64 // scale of derived channels; 0 keeps 1
	Pricing      domain.Pricing
}

// DefaultConfig returns 60 min / 24 h / 2 min windows and a 15s demo tick.
func DefaultConfig() Config {
	return Config{
		HourWindow: time.Hour,
		DayWindow:  24 * time.Hour,
		DemoWindow: 2 * time.Minute,
		DemoTick:   index.DemoTick,
		Pricing:    domain.DefaultPricing(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HourWindow <= 0 {
		c.HourWindow = d.HourWindow
	}
	if c.DayWindow <= 0 {
		c.DayWindow = d.DayWindow
	}
	if c.DemoWindow <= 0 {
		c.DemoWindow = d.DemoWindow
	}
	if c.DemoTick <= 0 {
		c.DemoTick = d.DemoTick
	}
	if c.Pricing.K <= 0 || c.Pricing.Liquidity <= 0 {
		c.Pricing = d.Pricing
	}
	return c
}

// Manager drives events through draft → proposed → {rejected | open} → resolved.
// Work on one event is serialized by a per-event lock; the store's
// compare-and-set updates guard against any other writer.
type Manager struct {
	cfg       Config
	store     ports.Store
	pipeline  IndexSource
	demo      *index.DemoGenerator
	gate      ports.Gate
	explainer ports.Explainer
	metrics   ports.Metrics
	locks     *eventLocks
	now       func() time.Time
	newID     func() string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDs replaces the uuid generator for events and trades.
func WithIDs(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// WithExplainer sets the resolution explainer. Without one, resolved events
// carry no explanation.
func WithExplainer(e ports.Explainer) Option {
	return func(m *Manager) { m.explainer = e }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt ports.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// New creates a Manager. A nil gate accepts every topic.
func New(cfg Config, store ports.Store, pipeline IndexSource, demo *index.DemoGenerator, gate ports.Gate, opts ...Option) *Manager {
	if demo == nil {
		demo = index.NewDemoGenerator(index.DefaultDemoParams())
	}
	if gate == nil {
		gate = acceptAll{}
	}
	m := &Manager{
		cfg:      cfg.withDefaults(),
		store:    store,
		pipeline: pipeline,
		demo:     demo,
		gate:     gate,
		metrics:  ports.NopMetrics{},
		locks:    newEventLocks(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Event returns one event.
func (m *Manager) Event(ctx context.Context, id string) (domain.Event, error) {
	ev, err := m.store.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, fmt.Errorf("lifecycle.Event: %w", err)
	}
	return ev, nil
}

// ListEvents lists events by status, open when status is empty. An empty
// name matches every topic.
func (m *Manager) ListEvents(ctx context.Context, status domain.EventStatus, name string) ([]domain.Event, error) {
	if status == "" {
		status = domain.StatusOpen
	}
	if !status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", status)}
	}
	events, err := m.store.ListEvents(ctx, status, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("lifecycle.ListEvents: %w", err)
	}
	return events, nil
}

// IndexHistory returns the index series of an event in time order, bucketed
// by interval from window_start. An empty interval returns every snapshot.
func (m *Manager) IndexHistory(ctx context.Context, id string, interval domain.HistoryInterval) ([]domain.IndexSnapshot, error) {
	ev, err := m.store.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.IndexHistory: %w", err)
	}
	points, err := m.store.IndexHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.IndexHistory: %w", err)
	}
	return domain.AggregateHistory(points, interval, ev.WindowStart), nil
}

func (m *Manager) windowFor(mt domain.MarketType, minutes int) time.Duration {
	switch {
	case mt == domain.MarketDemo:
		return m.cfg.DemoWindow
	case minutes > 0:
		return time.Duration(minutes) * time.Minute
	case mt == domain.MarketDay:
		return m.cfg.DayWindow
	default:
		return m.cfg.HourWindow
	}
}

// errorReason labels an error for metrics.
func errorReason(err error) string {
	switch {
	case domain.IsValidation(err):
		return "validation"
	case errors.Is(err, domain.ErrStateConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "storage"
	}
}

type acceptAll struct{}

func (acceptAll) CheckReasonability(context.Context, ports.Proposal) (ports.Verdict, error) {
	return ports.Verdict{Accept: true}, nil
}

func (acceptAll) DecideAccept(context.Context, ports.Proposal, float64, float64) (ports.Verdict, error) {
	return ports.Verdict{Accept: true}, nil
}
