package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/attention/internal/adapters/storage"
	"github.com/alejandrodnm/attention/internal/application/lifecycle"
	"github.com/alejandrodnm/attention/internal/application/scheduler"
	"github.com/alejandrodnm/attention/internal/domain"
	"github.com/alejandrodnm/attention/internal/index"
)

// --- mocks ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type mockLifecycle struct {
	mu      sync.Mutex
	events  map[string]domain.Event
	reports map[string]lifecycle.TickReport
	errs    map[string]error
	block   map[string]chan struct{}
	started chan string
	ticks   map[string]int
	recurs  []domain.RecurrenceIntent
	recurFn func(domain.RecurrenceIntent) (domain.Event, error)
	pending map[string]domain.RecurrenceIntent
}

func newMockLifecycle(events ...domain.Event) *mockLifecycle {
	m := &mockLifecycle{
		events:  make(map[string]domain.Event),
		reports: make(map[string]lifecycle.TickReport),
		errs:    make(map[string]error),
		block:   make(map[string]chan struct{}),
		started: make(chan string, 16),
		ticks:   make(map[string]int),
		pending: make(map[string]domain.RecurrenceIntent),
	}
	for _, ev := range events {
		m.events[ev.ID] = ev
	}
	return m
}

func (m *mockLifecycle) Event(_ context.Context, id string) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return domain.Event{}, domain.ErrNotFound
	}
	return ev, nil
}

func (m *mockLifecycle) ListEvents(_ context.Context, status domain.EventStatus, _ string) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, ev := range m.events {
		if ev.Status == status {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *mockLifecycle) Tick(_ context.Context, id string) (lifecycle.TickReport, error) {
	m.mu.Lock()
	m.ticks[id]++
	wait := m.block[id]
	m.mu.Unlock()

	m.started <- id
	if wait != nil {
		<-wait
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[id]; err != nil {
		return lifecycle.TickReport{EventID: id}, err
	}
	rep := m.reports[id]
	rep.EventID = id
	if rep.Resolved != domain.ResolutionNone {
		ev := m.events[id]
		ev.Status = domain.StatusResolved
		ev.Resolution = rep.Resolved
		m.events[id] = ev
	}
	if rep.Recurrence != nil {
		m.pending[id] = *rep.Recurrence
	}
	return rep, nil
}

func (m *mockLifecycle) Recur(_ context.Context, intent domain.RecurrenceIntent) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recurs = append(m.recurs, intent)
	if _, ok := m.pending[intent.PreviousID]; !ok {
		return domain.Event{}, &domain.ConflictError{EventID: intent.PreviousID, Status: domain.StatusResolved, Op: "recur"}
	}
	if m.recurFn != nil {
		ev, err := m.recurFn(intent)
		if err == nil {
			m.events[ev.ID] = ev
			delete(m.pending, intent.PreviousID)
		}
		return ev, err
	}
	return domain.Event{}, errors.New("no recurrence configured")
}

func (m *mockLifecycle) PendingRecurrences(context.Context) ([]domain.RecurrenceIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RecurrenceIntent, 0, len(m.pending))
	for _, intent := range m.pending {
		out = append(out, intent)
	}
	return out, nil
}

func (m *mockLifecycle) tickCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks[id]
}

type mockNotifier struct {
	mu    sync.Mutex
	calls [][]domain.Event
}

func (n *mockNotifier) NotifyEvents(_ context.Context, events []domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, events)
	return nil
}

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func openEvent(id string, mt domain.MarketType, window time.Duration) domain.Event {
	return domain.Event{
		ID:          id,
		Name:        "topic-" + id,
		MarketType:  mt,
		Status:      domain.StatusOpen,
		WindowStart: t0,
		WindowEnd:   t0.Add(window),
		IndexStart:  100,
	}
}

func drain(ch chan string) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func TestScheduler_TicksOnlyDueEvents(t *testing.T) {
	live := openEvent("live", domain.MarketHour, time.Hour)
	demo := openEvent("demo", domain.MarketDemo, 2*time.Minute)
	lc := newMockLifecycle(live, demo)
	clock := &fakeClock{now: t0.Add(20 * time.Second)}
	s := scheduler.New(scheduler.Config{LiveTick: time.Minute, DemoTick: 15 * time.Second}, lc, nil,
		scheduler.WithClock(clock.Now))

	res := s.RunCycle(context.Background())
	assert.Equal(t, 1, res.Ticked)
	assert.Equal(t, 0, lc.tickCount("live"))
	assert.Equal(t, 1, lc.tickCount("demo"))
	assert.Equal(t, []string{"demo", "live"}, s.Tracked())

	// 10s más tarde ninguno toca todavía
	clock.Set(t0.Add(30 * time.Second))
	res = s.RunCycle(context.Background())
	assert.Zero(t, res.Ticked)

	clock.Set(t0.Add(61 * time.Second))
	res = s.RunCycle(context.Background())
	assert.Equal(t, 2, res.Ticked)
	assert.Equal(t, 1, lc.tickCount("live"))
	assert.Equal(t, 2, lc.tickCount("demo"))
	assert.Equal(t, 2, res.Open)
}

func TestScheduler_ResolutionAndRecurrence(t *testing.T) {
	live := openEvent("live", domain.MarketHour, time.Hour)
	demo := openEvent("demo", domain.MarketDemo, 2*time.Minute)
	lc := newMockLifecycle(live, demo)
	lc.reports["live"] = lifecycle.TickReport{
		Resolved:   domain.ResolutionUp,
		Recurrence: &domain.RecurrenceIntent{PreviousID: "live", Name: live.Name, MarketType: domain.MarketHour},
	}
	lc.reports["demo"] = lifecycle.TickReport{Resolved: domain.ResolutionDown}
	lc.recurFn = func(intent domain.RecurrenceIntent) (domain.Event, error) {
		next := openEvent("live-2", intent.MarketType, time.Hour)
		next.WindowStart = t0.Add(time.Hour)
		next.WindowEnd = t0.Add(2 * time.Hour)
		return next, nil
	}
	notifier := &mockNotifier{}
	clock := &fakeClock{now: t0.Add(time.Hour)}
	s := scheduler.New(scheduler.Config{}, lc, notifier, scheduler.WithClock(clock.Now))

	res := s.RunCycle(context.Background())
	assert.Equal(t, 2, res.Resolved)
	assert.Equal(t, 1, res.Recurred)
	require.Len(t, lc.recurs, 1)
	assert.Equal(t, "live", lc.recurs[0].PreviousID)
	assert.Equal(t, []string{"live-2"}, s.Tracked())

	require.Len(t, notifier.calls, 1)
	ids := map[string]domain.EventStatus{}
	for _, ev := range notifier.calls[0] {
		ids[ev.ID] = ev.Status
	}
	assert.Equal(t, map[string]domain.EventStatus{
		"live-2": domain.StatusOpen,
		"live":   domain.StatusResolved,
		"demo":   domain.StatusResolved,
	}, ids)

	// los eventos resueltos no vuelven a ser tickeados
	res = s.RunCycle(context.Background())
	assert.Zero(t, res.Resolved)
	assert.Equal(t, 1, lc.tickCount("live"))
}

func TestScheduler_FailedRecurrenceIsRetried(t *testing.T) {
	live := openEvent("live", domain.MarketHour, time.Hour)
	lc := newMockLifecycle(live)
	lc.reports["live"] = lifecycle.TickReport{
		Resolved:   domain.ResolutionUp,
		Recurrence: &domain.RecurrenceIntent{PreviousID: "live", Name: live.Name, MarketType: domain.MarketHour},
	}
	attempts := 0
	lc.recurFn = func(intent domain.RecurrenceIntent) (domain.Event, error) {
		attempts++
		if attempts == 1 {
			return domain.Event{}, errors.New("database is locked")
		}
		next := openEvent("live-2", intent.MarketType, time.Hour)
		next.WindowStart = t0.Add(time.Hour)
		next.WindowEnd = t0.Add(2 * time.Hour)
		return next, nil
	}
	clock := &fakeClock{now: t0.Add(time.Hour)}
	s := scheduler.New(scheduler.Config{}, lc, nil, scheduler.WithClock(clock.Now))

	res := s.RunCycle(context.Background())
	assert.Equal(t, 1, res.Resolved)
	assert.Zero(t, res.Recurred)
	assert.Empty(t, s.Tracked())

	clock.Set(t0.Add(time.Hour + 5*time.Second))
	res = s.RunCycle(context.Background())
	assert.Equal(t, 1, res.Recurred)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []string{"live-2"}, s.Tracked())

	// nothing pending any more
	res = s.RunCycle(context.Background())
	assert.Zero(t, res.Recurred)
	assert.Len(t, lc.recurs, 2)
}

func TestScheduler_FailureIsIsolated(t *testing.T) {
	a := openEvent("a", domain.MarketHour, time.Hour)
	b := openEvent("b", domain.MarketHour, time.Hour)
	lc := newMockLifecycle(a, b)
	lc.errs["a"] = errors.New("disk I/O error")
	clock := &fakeClock{now: t0.Add(time.Minute)}
	s := scheduler.New(scheduler.Config{}, lc, nil, scheduler.WithClock(clock.Now))

	res := s.RunCycle(context.Background())
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Ticked)
	assert.Equal(t, []string{"a", "b"}, s.Tracked())

	// a se reintenta en el siguiente ciclo; b no toca todavía
	lc.mu.Lock()
	delete(lc.errs, "a")
	lc.mu.Unlock()
	clock.Set(t0.Add(time.Minute + 5*time.Second))
	res = s.RunCycle(context.Background())
	assert.Equal(t, 1, res.Ticked)
	assert.Equal(t, 2, lc.tickCount("a"))
	assert.Equal(t, 1, lc.tickCount("b"))
}

func TestScheduler_DroppedEventsLeaveRegistry(t *testing.T) {
	a := openEvent("a", domain.MarketHour, time.Hour)
	lc := newMockLifecycle(a)
	lc.reports["a"] = lifecycle.TickReport{Dropped: true}
	clock := &fakeClock{now: t0.Add(time.Minute)}
	s := scheduler.New(scheduler.Config{}, lc, nil, scheduler.WithClock(clock.Now))

	res := s.RunCycle(context.Background())
	assert.Equal(t, 1, res.Dropped)

	// once the store no longer lists it as open, sync leaves it out
	lc.mu.Lock()
	ev := lc.events["a"]
	ev.Status = domain.StatusResolved
	lc.events["a"] = ev
	lc.mu.Unlock()
	clock.Set(t0.Add(3 * time.Minute))
	s.RunCycle(context.Background())
	assert.Empty(t, s.Tracked())
}

func TestScheduler_SkipsInFlightEvent(t *testing.T) {
	slow := openEvent("slow", domain.MarketHour, time.Hour)
	lc := newMockLifecycle(slow)
	release := make(chan struct{})
	lc.block["slow"] = release
	clock := &fakeClock{now: t0.Add(time.Minute)}
	s := scheduler.New(scheduler.Config{}, lc, nil, scheduler.WithClock(clock.Now))

	done := make(chan scheduler.CycleResult)
	go func() { done <- s.RunCycle(context.Background()) }()
	assert.Equal(t, "slow", <-lc.started)

	clock.Set(t0.Add(5 * time.Minute))
	res := s.RunCycle(context.Background())
	assert.Zero(t, res.Ticked)
	assert.Equal(t, 1, lc.tickCount("slow"))

	close(release)
	first := <-done
	assert.Equal(t, 1, first.Ticked)
	drain(lc.started)
}

func TestScheduler_StartStopsWithContext(t *testing.T) {
	lc := newMockLifecycle(openEvent("a", domain.MarketHour, time.Hour))
	clock := &fakeClock{now: t0.Add(time.Minute)}
	s := scheduler.New(scheduler.Config{DriverSpec: "@every 1h"}, lc, nil, scheduler.WithClock(clock.Now))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	assert.Equal(t, "a", <-lc.started) // first cycle runs immediately
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	s := scheduler.New(scheduler.Config{DriverSpec: "every now and then"}, newMockLifecycle(), nil)
	assert.Error(t, s.Start(context.Background()))
}

// --- integración con el lifecycle real ---

type risingPipeline struct {
	mu    sync.Mutex
	value float64
}

func (p *risingPipeline) Baseline(_ context.Context, cfg domain.ChannelConfig) (domain.ChannelConfig, float64) {
	return cfg, 5
}

func (p *risingPipeline) Compute(context.Context, domain.ChannelConfig) index.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value += 1
	return index.Result{Value: 100 + p.value}
}

func TestScheduler_DrivesLifecycle(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	clock := &fakeClock{now: t0}
	mgr := lifecycle.New(lifecycle.DefaultConfig(), store, &risingPipeline{}, nil, nil,
		lifecycle.WithClock(clock.Now))
	s := scheduler.New(scheduler.Config{}, mgr, nil, scheduler.WithClock(clock.Now))

	live, err := mgr.Propose(ctx, lifecycle.ProposeRequest{Name: "rust", MarketType: domain.MarketHour})
	require.NoError(t, err)
	demo, err := mgr.Propose(ctx, lifecycle.ProposeRequest{Name: "demo", MarketType: domain.MarketDemo})
	require.NoError(t, err)

	for at := time.Minute; at <= 2*time.Hour; at += 15 * time.Second {
		clock.Set(t0.Add(at))
		s.RunCycle(ctx)
	}

	gotLive, err := mgr.Event(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, gotLive.Status)
	assert.Equal(t, domain.ResolutionUp, gotLive.Resolution)

	gotDemo, err := mgr.Event(ctx, demo.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, gotDemo.Status)

	// live recurs once per window, demo never
	rust, err := store.ListEvents(ctx, "", "rust")
	require.NoError(t, err)
	assert.Len(t, rust, 3) // t0, t0+1h and t0+2h windows
	demos, err := store.ListEvents(ctx, "", "demo")
	require.NoError(t, err)
	assert.Len(t, demos, 1)

	open, err := mgr.ListEvents(ctx, domain.StatusOpen, "")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, t0.Add(2*time.Hour), open[0].WindowStart)
}

func TestScheduler_RecoversRecurrenceAfterRestart(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	clock := &fakeClock{now: t0}
	mgr := lifecycle.New(lifecycle.DefaultConfig(), store, &risingPipeline{}, nil, nil,
		lifecycle.WithClock(clock.Now))

	live, err := mgr.Propose(ctx, lifecycle.ProposeRequest{Name: "rust", MarketType: domain.MarketHour})
	require.NoError(t, err)

	// resolved by a process that died before recurring
	clock.Set(t0.Add(time.Hour))
	report, err := mgr.Resolve(ctx, live.ID)
	require.NoError(t, err)
	require.NotNil(t, report.Recurrence)

	s := scheduler.New(scheduler.Config{}, mgr, nil, scheduler.WithClock(clock.Now))
	res := s.RunCycle(ctx)
	assert.Equal(t, 1, res.Recurred)
	require.Len(t, s.Tracked(), 1)

	next, err := mgr.Event(ctx, s.Tracked()[0])
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, next.Status)
	assert.Equal(t, live.ID, next.RecurOf)

	// the intent from the report is now stale
	_, err = mgr.Recur(ctx, *report.Recurrence)
	assert.ErrorIs(t, err, domain.ErrStateConflict)

	res = s.RunCycle(ctx)
	assert.Zero(t, res.Recurred)
	rust, err := store.ListEvents(ctx, "", "rust")
	require.NoError(t, err)
	assert.Len(t, rust, 2)
}
