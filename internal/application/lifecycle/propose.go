package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alejandrodnm/attention/internal/domain"
	"github.com/alejandrodnm/attention/internal/ports"
)

// ProposeRequest is a new topic submitted for trading.
type ProposeRequest struct {
	Name          string
	MarketType    domain.MarketType
	WindowMinutes int // overrides the market window; ignored for demo markets
	SourceURL     string
	Description   string
	Channels      *domain.ChannelConfig // nil derives the default config from Name

	recurOf string
}

// Propose creates the event and runs it through the gate. A rejected topic is
// not an error: the returned event is rejected with its reason set.
func (m *Manager) Propose(ctx context.Context, req ProposeRequest) (domain.Event, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Event{}, &domain.ValidationError{Field: "name", Msg: "name is required"}
	}
	mt := domain.ParseMarketType(string(req.MarketType))
	if req.WindowMinutes < 0 {
		return domain.Event{}, &domain.ValidationError{Field: "window_minutes", Msg: "window must be positive"}
	}

	channels, err := m.channelsFor(name, req.Channels)
	if err != nil {
		return domain.Event{}, err
	}

	window := m.windowFor(mt, req.WindowMinutes)
	now := m.now()
	pres := domain.DefaultPresentation(name, mt)
	ev := domain.Event{
		ID:           m.newID(),
		Name:         name,
		MarketType:   mt,
		Status:       domain.StatusDraft,
		WindowStart:  now,
		WindowEnd:    now.Add(window),
		IndexStart:   domain.BaseIndex,
		IndexCurrent: domain.BaseIndex,
		Channels:     channels,
		SourceURL:    strings.TrimSpace(req.SourceURL),
		Description:  strings.TrimSpace(req.Description),
		Headline:     pres.Headline,
		Subline:      pres.Subline,
		LabelUp:      pres.LabelUp,
		LabelDown:    pres.LabelDown,
		CreatedAt:    now,
		RecurOf:      req.recurOf,
	}

	unlock := m.locks.lock(ev.ID)
	defer unlock()

	if err := m.store.CreateEvent(ctx, ev); err != nil {
		return domain.Event{}, fmt.Errorf("lifecycle.Propose: %w", err)
	}
	if err := m.store.Transition(ctx, ev.ID, domain.StatusDraft, domain.StatusProposed); err != nil {
		return domain.Event{}, fmt.Errorf("lifecycle.Propose: %w", err)
	}

	if ev.IsDemo() {
		return m.open(ctx, ev, domain.BaseIndex, channels)
	}

	proposal := ports.Proposal{Name: ev.Name, SourceURL: ev.SourceURL, Description: ev.Description}

	verdict, err := m.gate.CheckReasonability(ctx, proposal)
	if err != nil {
		slog.Warn("reasonability check failed", "event_id", ev.ID, "name", ev.Name, "err", err)
		return m.reject(ctx, ev, ReasonAnalysisFailed)
	}
	if !verdict.Accept {
		return m.reject(ctx, ev, reasonOr(verdict.Reason, ReasonNotTradable))
	}

	baselined, activity := m.pipeline.Baseline(ctx, channels)
	if activity <= 0 {
		return m.reject(ctx, ev, ReasonNoTraction)
	}

	verdict, err = m.gate.DecideAccept(ctx, proposal, domain.BaseIndex, activity)
	switch {
	case err != nil:
		// traction already passed
		slog.Warn("accept decision failed, accepting", "event_id", ev.ID, "err", err)
	case !verdict.Accept:
		return m.reject(ctx, ev, reasonOr(verdict.Reason, ReasonNotTradable))
	}

	return m.open(ctx, ev, domain.BaseIndex, baselined)
}

// Recur proposes the next window of a resolved topic. It succeeds at most
// once per PreviousID; later calls fail with a *domain.ConflictError.
func (m *Manager) Recur(ctx context.Context, intent domain.RecurrenceIntent) (domain.Event, error) {
	channels := intent.Channels.WithoutBaselines()
	minutes := 0
	if intent.Window > 0 && intent.Window != m.windowFor(intent.MarketType, 0) {
		minutes = int(intent.Window.Minutes())
	}
	ev, err := m.Propose(ctx, ProposeRequest{
		Name:          intent.Name,
		MarketType:    intent.MarketType,
		WindowMinutes: minutes,
		SourceURL:     intent.SourceURL,
		Description:   intent.Description,
		Channels:      &channels,
		recurOf:       intent.PreviousID,
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("lifecycle.Recur: after %s: %w", intent.PreviousID, err)
	}
	slog.Info("event recurred",
		"previous_id", intent.PreviousID,
		"event_id", ev.ID,
		"name", ev.Name,
		"status", ev.Status,
	)
	return ev, nil
}

// open fixes the window from the current instant and the starting index.
func (m *Manager) open(ctx context.Context, ev domain.Event, indexStart float64, channels domain.ChannelConfig) (domain.Event, error) {
	start := m.now()
	err := m.store.OpenEvent(ctx, ev.ID, ports.OpenParams{
		WindowStart: start,
		WindowEnd:   start.Add(ev.Window()),
		IndexStart:  indexStart,
		Channels:    channels,
	})
	if err != nil {
		return domain.Event{}, fmt.Errorf("lifecycle.Propose: open %s: %w", ev.ID, err)
	}
	m.metrics.EventProposed(domain.StatusOpen)
	slog.Info("event opened",
		"event_id", ev.ID,
		"name", ev.Name,
		"market", ev.MarketType,
		"window_end", start.Add(ev.Window()).Format("15:04:05"),
	)
	return m.Event(ctx, ev.ID)
}

func (m *Manager) reject(ctx context.Context, ev domain.Event, reason string) (domain.Event, error) {
	if err := m.store.RejectEvent(ctx, ev.ID, reason); err != nil {
		return domain.Event{}, fmt.Errorf("lifecycle.Propose: reject %s: %w", ev.ID, err)
	}
	m.metrics.EventProposed(domain.StatusRejected)
	slog.Info("proposal rejected", "event_id", ev.ID, "name", ev.Name, "reason", reason)
	return m.Event(ctx, ev.ID)
}

// channelsFor validates the hints or derives the default config from name.
func (m *Manager) channelsFor(name string, hints *domain.ChannelConfig) (domain.ChannelConfig, error) {
	var cfg domain.ChannelConfig
	if hints != nil {
		cfg = *hints
		if len(cfg.Keywords) == 0 {
			cfg.Keywords = domain.KeywordsFromName(name)
		}
		if len(cfg.Channels) == 0 {
			cfg.Channels = domain.DefaultChannelConfig(name).Channels
		}
	} else {
		cfg = domain.DefaultChannelConfig(name)
		if m.cfg.ChannelScale > 0 {
			for i := range cfg.Channels {
				cfg.Channels[i].Scale = m.cfg.ChannelScale
			}
		}
	}
	return cfg.Normalize()
}

func reasonOr(reason, fallback string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	return fallback
}
