package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/attention/internal/domain"
	"github.com/alejandrodnm/attention/internal/index"
)

// TickReport is the outcome of one tick of one event.
type TickReport struct {
	EventID  string
	Recorded bool    // a snapshot was appended
	Value    float64 // index_current after the tick
	Degraded bool    // every channel failed; index left unchanged
	Dropped  bool    // the event is no longer open
	Resolved domain.Resolution
	// Recurrence is set when this tick resolved a live event. The caller
	// must pass it to Recur; until that succeeds the intent stays listed by
	// PendingRecurrences.
	Recurrence *domain.RecurrenceIntent
}

// Tick recomputes the index of an open event, or resolves it once its
// window has closed. Ticks of one event never overlap.
func (m *Manager) Tick(ctx context.Context, id string) (TickReport, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	start := time.Now()
	ev, err := m.store.GetEvent(ctx, id)
	if err != nil {
		m.metrics.TickFailed()
		return TickReport{EventID: id}, fmt.Errorf("lifecycle.Tick: %w", err)
	}
	if ev.Status != domain.StatusOpen {
		return TickReport{EventID: id, Dropped: true, Value: ev.IndexCurrent}, nil
	}

	now := m.now()
	if ev.Due(now) {
		return m.resolveLocked(ctx, ev, now)
	}

	report, err := m.recordTick(ctx, ev, now)
	if err != nil {
		m.metrics.TickFailed()
		return report, err
	}
	m.metrics.TickCompleted(ev.IsDemo(), report.Degraded, time.Since(start))
	return report, nil
}

// Resolve closes an event whose window has ended. It fails with a
// *domain.ConflictError while the window is still running or when the event
// is not open. For a live event the caller is expected to pass
// report.Recurrence to Recur; an intent that is dropped is picked up again
// from PendingRecurrences.
func (m *Manager) Resolve(ctx context.Context, id string) (TickReport, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	ev, err := m.store.GetEvent(ctx, id)
	if err != nil {
		return TickReport{EventID: id}, fmt.Errorf("lifecycle.Resolve: %w", err)
	}
	if ev.Status != domain.StatusOpen {
		return TickReport{EventID: id}, &domain.ConflictError{EventID: id, Status: ev.Status, Op: "resolve"}
	}
	now := m.now()
	if !ev.Due(now) {
		return TickReport{EventID: id}, &domain.ConflictError{
			EventID: id, Status: ev.Status, Op: "resolve",
			Msg: fmt.Sprintf("window closes in %s", ev.Remaining(now).Round(time.Second)),
		}
	}
	return m.resolveLocked(ctx, ev, now)
}

func (m *Manager) recordTick(ctx context.Context, ev domain.Event, now time.Time) (TickReport, error) {
	report := TickReport{EventID: ev.ID, Value: ev.IndexCurrent}

	var snap domain.IndexSnapshot
	if ev.IsDemo() {
		tick := index.TickIndex(ev.WindowStart, now, m.cfg.DemoTick)
		if tick == 0 {
			return report, nil
		}
		snap = domain.IndexSnapshot{
			EventID:   ev.ID,
			Timestamp: ev.WindowStart.Add(time.Duration(tick) * m.cfg.DemoTick),
			Value:     m.demo.Value(ev.ID, tick),
		}
	} else {
		res := m.pipeline.Compute(ctx, ev.Channels)
		if res.Baselines != nil {
			if err := m.store.SetChannels(ctx, ev.ID, *res.Baselines); err != nil {
				if errors.Is(err, domain.ErrStateConflict) {
					report.Dropped = true
					return report, nil
				}
				return report, fmt.Errorf("lifecycle.Tick: %w", err)
			}
			slog.Info("channel baseline captured", "event_id", ev.ID, "name", ev.Name)
		}
		if res.Degraded {
			slog.Warn("tick degraded, index unchanged", "event_id", ev.ID, "name", ev.Name)
			report.Degraded = true
			return report, nil
		}
		snap = domain.IndexSnapshot{EventID: ev.ID, Timestamp: now, Value: res.Value}
	}

	err := m.store.RecordTick(ctx, snap)
	switch {
	case errors.Is(err, domain.ErrSnapshotOrder):
		// this tick slot is already recorded
		return report, nil
	case errors.Is(err, domain.ErrStateConflict):
		report.Dropped = true
		return report, nil
	case err != nil:
		return report, fmt.Errorf("lifecycle.Tick: %w", err)
	}

	report.Recorded = true
	report.Value = snap.Value
	slog.Debug("index tick",
		"event_id", ev.ID,
		"value", snap.Value,
		"start", ev.IndexStart,
		"remaining", ev.Remaining(now).Round(time.Second),
	)
	return report, nil
}

// resolveLocked settles ev. Only the caller whose compare-and-set wins gets
// a recurrence intent back.
func (m *Manager) resolveLocked(ctx context.Context, ev domain.Event, now time.Time) (TickReport, error) {
	report := TickReport{EventID: ev.ID, Value: ev.IndexCurrent}
	res := ev.Outcome()

	won, err := m.store.ResolveEvent(ctx, ev.ID, res, now)
	if err != nil {
		m.metrics.TickFailed()
		return report, fmt.Errorf("lifecycle.resolve: %w", err)
	}
	if !won {
		report.Dropped = true
		return report, nil
	}

	report.Resolved = res
	m.metrics.EventResolved(res)
	slog.Info("event resolved",
		"event_id", ev.ID,
		"name", ev.Name,
		"resolution", res,
		"index_start", ev.IndexStart,
		"index_end", ev.IndexCurrent,
	)

	ev.Status = domain.StatusResolved
	ev.Resolution = res
	ev.ResolvedAt = &now
	m.explain(ctx, ev)

	if !ev.IsDemo() {
		intent := recurrenceOf(ev)
		report.Recurrence = &intent
	}
	return report, nil
}

// PendingRecurrences returns the intents of resolved live events whose next
// window was never created, oldest first.
func (m *Manager) PendingRecurrences(ctx context.Context) ([]domain.RecurrenceIntent, error) {
	events, err := m.store.PendingRecurrences(ctx)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.PendingRecurrences: %w", err)
	}
	intents := make([]domain.RecurrenceIntent, 0, len(events))
	for _, ev := range events {
		intents = append(intents, recurrenceOf(ev))
	}
	return intents, nil
}

func recurrenceOf(ev domain.Event) domain.RecurrenceIntent {
	return domain.RecurrenceIntent{
		PreviousID:  ev.ID,
		Name:        ev.Name,
		MarketType:  ev.MarketType,
		Window:      ev.Window(),
		Channels:    ev.Channels,
		SourceURL:   ev.SourceURL,
		Description: ev.Description,
	}
}

// explain stores the resolution explanation. Failures are logged only.
func (m *Manager) explain(ctx context.Context, ev domain.Event) {
	if m.explainer == nil {
		return
	}
	history, err := m.store.IndexHistory(ctx, ev.ID)
	if err != nil {
		slog.Warn("explanation skipped", "event_id", ev.ID, "err", err)
		return
	}
	text, err := m.explainer.Explain(ctx, ev, history)
	if err != nil || text == "" {
		if err != nil {
			slog.Warn("explanation failed", "event_id", ev.ID, "err", err)
		}
		return
	}
	if err := m.store.SetExplanation(ctx, ev.ID, text); err != nil {
		slog.Warn("explanation not stored", "event_id", ev.ID, "err", err)
	}
}
