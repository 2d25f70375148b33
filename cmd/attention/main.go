package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/attention/config"
	"github.com/alejandrodnm/attention/internal/adapters/channels"
	"github.com/alejandrodnm/attention/internal/adapters/explain"
	"github.com/alejandrodnm/attention/internal/adapters/gate"
	"github.com/alejandrodnm/attention/internal/adapters/metrics"
	"github.com/alejandrodnm/attention/internal/adapters/notify"
	"github.com/alejandrodnm/attention/internal/adapters/storage"
	"github.com/alejandrodnm/attention/internal/application/lifecycle"
	"github.com/alejandrodnm/attention/internal/application/scheduler"
	"github.com/alejandrodnm/attention/internal/domain"
	"github.com/alejandrodnm/attention/internal/index"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one scheduler cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print the full market table (default: compact 1-line)")

	propose := flag.String("propose", "", "propose a topic and exit")
	market := flag.String("market", "1h", "market type for -propose: 1h|24h|demo")
	demo := flag.Bool("demo", false, "shorthand for -market demo")
	window := flag.Int("window", 0, "window override in minutes for -propose (live markets only)")
	source := flag.String("source", "", "source URL for -propose")
	description := flag.String("description", "", "description for -propose")

	tradeEvent := flag.String("trade-event", "", "event id to trade on")
	side := flag.String("side", "up", "trade side: up|down")
	amount := flag.String("amount", "", "trade amount")
	trader := flag.String("trader", "", "trader id")
	trades := flag.Bool("trades", false, "list the trades of -trader and exit")

	history := flag.String("history", "", "print the index history of an event and exit")
	interval := flag.String("interval", "", "history bucket: 1h|6h|1d|1w|1m (default raw)")
	list := flag.String("list", "", "list events with status (open|resolved|rejected|...) and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	httpClient := channels.NewClient(cfg.Channels.RedditUserAgent)
	pipeline := index.NewPipeline(cfg.ChannelTimeout(), cfg.Lookback(),
		channels.NewHackerNews(httpClient, cfg.Channels.HackerNewsBase),
		channels.NewReddit(httpClient, cfg.Channels.RedditBase),
	)
	prom := metrics.New()

	hour, day, demoWindow := cfg.Windows()
	lc := lifecycle.New(lifecycle.Config{
		HourWindow:   hour,
		DayWindow:    day,
		DemoWindow:   demoWindow,
		DemoTick:     cfg.DemoTick(),
		ChannelScale: cfg.Index.Scale,
		Pricing:      domain.Pricing{K: cfg.Pricing.K, Liquidity: cfg.Pricing.Liquidity},
	}, store, pipeline,
		index.NewDemoGenerator(index.DefaultDemoParams()),
		gate.NewRules(gate.Config{Blocklist: cfg.Gate.Blocklist, MinActivity: cfg.Gate.MinActivity}),
		lifecycle.WithExplainer(explain.Template{}),
		lifecycle.WithMetrics(prom),
	)

	notifier := notify.NewConsole(*table || *list != "")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *propose != "":
		mt := domain.MarketType(*market)
		if *demo {
			mt = domain.MarketDemo
		}
		runPropose(ctx, lc, notifier, lifecycle.ProposeRequest{
			Name:          *propose,
			MarketType:    mt,
			WindowMinutes: *window,
			SourceURL:     *source,
			Description:   *description,
		})
		return
	case *tradeEvent != "":
		runTrade(ctx, lc, *tradeEvent, *side, *amount, *trader)
		return
	case *trades:
		runListTrades(ctx, lc, *trader)
		return
	case *history != "":
		runHistory(ctx, lc, *history, domain.HistoryInterval(*interval))
		return
	case *list != "":
		runList(ctx, lc, notifier, domain.EventStatus(*list))
		return
	}

	slog.Info("attention starting",
		"config", *configPath,
		"dsn", cfg.Storage.DSN,
		"live_tick", cfg.LiveTick(),
		"demo_tick", cfg.DemoTick(),
		"once", *once,
	)

	sched := scheduler.New(scheduler.Config{
		DriverSpec: cfg.Scheduler.DriverSpec,
		LiveTick:   cfg.LiveTick(),
		DemoTick:   cfg.DemoTick(),
		Workers:    cfg.Scheduler.Workers,
	}, lc, notifier, scheduler.WithMetrics(prom))

	if *once {
		res := sched.RunCycle(ctx)
		slog.Info("cycle complete", "ticked", res.Ticked, "resolved", res.Resolved, "open", res.Open)
		return
	}

	if err := serve(ctx, sched, prom, cfg.Metrics.Addr); err != nil {
		slog.Error("scheduler exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("attention stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
