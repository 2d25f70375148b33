package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/attention/internal/application/lifecycle"
	"github.com/alejandrodnm/attention/internal/domain"
	"github.com/alejandrodnm/attention/internal/ports"
)

// Lifecycle es la parte del lifecycle manager que el scheduler necesita.
type Lifecycle interface {
	Event(ctx context.Context, id string) (domain.Event, error)
	ListEvents(ctx context.Context, status domain.EventStatus, name string) ([]domain.Event, error)
	Tick(ctx context.Context, id string) (lifecycle.TickReport, error)
	Recur(ctx context.Context, intent domain.RecurrenceIntent) (domain.Event, error)
	PendingRecurrences(ctx context.Context) ([]domain.RecurrenceIntent, error)
}

// Config controla la cadencia del scheduler.
type Config struct {
	DriverSpec string        // spec cron del driver, con segundos ("@every 5s")
	LiveTick   time.Duration // intervalo entre ticks de eventos live
	DemoTick   time.Duration // intervalo entre ticks de eventos demo
	Workers    int           // eventos procesados en paralelo por ciclo
}

func (c Config) withDefaults() Config {
	if c.DriverSpec == "" {
		c.DriverSpec = "@every 5s"
	}
	if c.LiveTick <= 0 {
		c.LiveTick = time.Minute
	}
	if c.DemoTick <= 0 {
		c.DemoTick = 15 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	return c
}

// entry es el estado del scheduler para un evento abierto.
type entry struct {
	id        string
	name      string
	demo      bool
	windowEnd time.Time
	lastTick  time.Time
	running   bool
}

// CycleResult resume un ciclo del driver.
type CycleResult struct {
	Ticked   int
	Degraded int
	Resolved int
	Recurred int
	Dropped  int
	Failed   int
	Open     int
}

// Scheduler owns the registry of open events and drives their ticks. Events
// of one cycle run concurrently, at most Workers at a time; an event whose
// previous tick is still running is skipped.
type Scheduler struct {
	cfg      Config
	lc       Lifecycle
	notifier ports.Notifier
	metrics  ports.Metrics
	now      func() time.Time

	mu       sync.Mutex
	registry map[string]*entry
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m ports.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// New crea un Scheduler. notifier puede ser nil.
func New(cfg Config, lc Lifecycle, notifier ports.Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:      cfg.withDefaults(),
		lc:       lc,
		notifier: notifier,
		metrics:  ports.NopMetrics{},
		now:      time.Now,
		registry: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Track registers an open event. Other statuses are ignored.
func (s *Scheduler) Track(ev domain.Event) {
	if ev.Status != domain.StatusOpen {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registry[ev.ID]; ok {
		return
	}
	s.registry[ev.ID] = &entry{
		id:        ev.ID,
		name:      ev.Name,
		demo:      ev.IsDemo(),
		windowEnd: ev.WindowEnd,
		lastTick:  ev.WindowStart,
	}
}

// Tracked returns the ids in the registry, sorted.
func (s *Scheduler) Tracked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.registry))
	for id := range s.registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Sync loads every open event from the store into the registry, so events
// opened by another caller or before a restart get ticked.
func (s *Scheduler) Sync(ctx context.Context) error {
	events, err := s.lc.ListEvents(ctx, domain.StatusOpen, "")
	if err != nil {
		return fmt.Errorf("scheduler.Sync: %w", err)
	}
	for _, ev := range events {
		s.Track(ev)
	}
	return nil
}

// RunCycle ejecuta un ciclo: sincroniza, ticks de los eventos que tocan,
// resoluciones y recurrencias, y notifica el estado.
func (s *Scheduler) RunCycle(ctx context.Context) CycleResult {
	start := time.Now()
	var result CycleResult

	if err := s.Sync(ctx); err != nil {
		slog.Error("registry sync failed", "err", err)
	}
	result.Recurred += s.retryRecurrences(ctx)

	due := s.claimDue(s.now())

	var (
		mu       sync.Mutex
		resolved []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, e := range due {
		g.Go(func() error {
			outcome := s.runOne(gctx, e)
			mu.Lock()
			defer mu.Unlock()
			outcome.addTo(&result)
			if outcome.resolved {
				resolved = append(resolved, e.id)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	result.Open = len(s.registry)
	s.mu.Unlock()
	s.metrics.OpenEvents(result.Open)

	s.notify(ctx, resolved)

	if len(due) > 0 || result.Recurred > 0 {
		slog.Info("scheduler cycle complete",
			"ticked", result.Ticked,
			"resolved", result.Resolved,
			"recurred", result.Recurred,
			"degraded", result.Degraded,
			"failed", result.Failed,
			"open", result.Open,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}
	return result
}

// claimDue marca como running los eventos cuyo tick o cierre ya tocan.
func (s *Scheduler) claimDue(now time.Time) []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*entry
	for _, e := range s.registry {
		if e.running {
			continue // tick anterior todavía en curso
		}
		every := s.cfg.LiveTick
		if e.demo {
			every = s.cfg.DemoTick
		}
		if !now.Before(e.windowEnd) || now.Sub(e.lastTick) >= every {
			e.running = true
			due = append(due, e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].id < due[j].id })
	return due
}

type tickOutcome struct {
	ticked, degraded, resolved, recurred, dropped, failed bool
}

func (o tickOutcome) addTo(r *CycleResult) {
	if o.ticked {
		r.Ticked++
	}
	if o.degraded {
		r.Degraded++
	}
	if o.resolved {
		r.Resolved++
	}
	if o.recurred {
		r.Recurred++
	}
	if o.dropped {
		r.Dropped++
	}
	if o.failed {
		r.Failed++
	}
}

// runOne ticks one event and applies the outcome to the registry. A failure
// stays local to the event; it is retried on the next cycle.
func (s *Scheduler) runOne(ctx context.Context, e *entry) tickOutcome {
	var out tickOutcome
	report, err := s.lc.Tick(ctx, e.id)

	s.mu.Lock()
	e.running = false
	if err != nil {
		s.mu.Unlock()
		slog.Error("tick failed", "event_id", e.id, "name", e.name, "err", err)
		out.failed = true
		return out
	}
	e.lastTick = s.now()
	if report.Dropped || report.Resolved != domain.ResolutionNone {
		delete(s.registry, e.id)
	}
	s.mu.Unlock()

	switch {
	case report.Dropped:
		out.dropped = true
	case report.Resolved != domain.ResolutionNone:
		out.resolved = true
	default:
		out.ticked = true
		out.degraded = report.Degraded
	}

	if report.Recurrence != nil {
		out.recurred = s.recur(ctx, *report.Recurrence)
	}
	return out
}

// retryRecurrences proposes the next window of resolved events whose
// recurrence did not go through in an earlier cycle or before a restart.
func (s *Scheduler) retryRecurrences(ctx context.Context) int {
	intents, err := s.lc.PendingRecurrences(ctx)
	if err != nil {
		slog.Error("pending recurrences not loaded", "err", err)
		return 0
	}
	n := 0
	for _, intent := range intents {
		if s.recur(ctx, intent) {
			n++
		}
	}
	return n
}

// recur proposes the next window and tracks it if it opened. A failed intent
// stays pending in the store.
func (s *Scheduler) recur(ctx context.Context, intent domain.RecurrenceIntent) bool {
	next, err := s.lc.Recur(ctx, intent)
	switch {
	case errors.Is(err, domain.ErrStateConflict):
		slog.Debug("recurrence already proposed", "previous_id", intent.PreviousID, "err", err)
		return false
	case err != nil:
		slog.Error("recurrence failed, retrying next cycle",
			"previous_id", intent.PreviousID, "name", intent.Name, "err", err)
		return false
	}
	s.Track(next)
	return true
}

func (s *Scheduler) notify(ctx context.Context, resolved []string) {
	if s.notifier == nil {
		return
	}
	events, err := s.lc.ListEvents(ctx, domain.StatusOpen, "")
	if err != nil {
		slog.Warn("notifier skipped", "err", err)
		return
	}
	sort.Strings(resolved)
	for _, id := range resolved {
		ev, err := s.lc.Event(ctx, id)
		if err != nil {
			slog.Warn("resolved event not loaded", "event_id", id, "err", err)
			continue
		}
		events = append(events, ev)
	}
	if err := s.notifier.NotifyEvents(ctx, events); err != nil {
		slog.Warn("notifier error", "err", err)
	}
}

// Start corre el driver cron hasta que ctx se cancele. El primer ciclo se
// ejecuta inmediatamente.
func (s *Scheduler) Start(ctx context.Context) error {
	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug))
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(s.cfg.DriverSpec, func() { s.RunCycle(ctx) }); err != nil {
		return fmt.Errorf("scheduler.Start: driver spec %q: %w", s.cfg.DriverSpec, err)
	}

	slog.Info("scheduler starting",
		"driver", s.cfg.DriverSpec,
		"live_tick", s.cfg.LiveTick,
		"demo_tick", s.cfg.DemoTick,
		"workers", s.cfg.Workers,
	)
	s.RunCycle(ctx)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("scheduler stopped")
	return nil
}
