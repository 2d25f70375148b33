package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/attention/internal/adapters/notify"
	"github.com/alejandrodnm/attention/internal/application/lifecycle"
	"github.com/alejandrodnm/attention/internal/domain"
)

func runPropose(ctx context.Context, lc *lifecycle.Manager, notifier *notify.Console, req lifecycle.ProposeRequest) {
	ev, err := lc.Propose(ctx, req)
	if err != nil {
		exitOnError("proposal failed", err)
	}
	if ev.Status == domain.StatusRejected {
		fmt.Printf("\nRejected: %s\n", ev.RejectReason)
		return
	}
	fmt.Printf("\n%s\n  %s\n  id: %s  window: %s → %s\n",
		ev.Headline, ev.Subline, ev.ID,
		ev.WindowStart.Format("15:04:05"), ev.WindowEnd.Format("15:04:05"))
	if err := notifier.NotifyEvents(ctx, []domain.Event{ev}); err != nil {
		slog.Warn("notifier error", "err", err)
	}
}

func runTrade(ctx context.Context, lc *lifecycle.Manager, eventID, side, amount, trader string) {
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		exitOnError("invalid amount", &domain.ValidationError{Field: "amount", Msg: fmt.Sprintf("%q is not a number", amount)})
	}
	res, err := lc.SubmitTrade(ctx, lifecycle.TradeRequest{
		EventID:  eventID,
		Side:     side,
		Amount:   amt,
		TraderID: trader,
	})
	if err != nil {
		exitOnError("trade rejected", err)
	}
	fmt.Printf("\nTrade %s: %s %s @ %.4f\n", res.Trade.ID, res.Trade.Side, res.Trade.Amount, res.Trade.ExecutionPrice)
	fmt.Printf("  prices now: up %.4f  down %.4f  volume %s\n", res.Prices.Up, res.Prices.Down, res.Volume)
}

func runListTrades(ctx context.Context, lc *lifecycle.Manager, trader string) {
	trades, err := lc.ListTrades(ctx, trader)
	if err != nil {
		exitOnError("list trades failed", err)
	}
	if len(trades) == 0 {
		fmt.Println("no trades")
		return
	}
	for _, t := range trades {
		fmt.Printf("%s  %s  %-4s %10s @ %.4f  event %s\n",
			t.CreatedAt.Format("2006-01-02 15:04:05"), t.ID, t.Side, t.Amount, t.ExecutionPrice, t.EventID)
	}
}

func runHistory(ctx context.Context, lc *lifecycle.Manager, eventID string, interval domain.HistoryInterval) {
	snaps, err := lc.IndexHistory(ctx, eventID, interval)
	if err != nil {
		exitOnError("history failed", err)
	}
	for _, s := range snaps {
		fmt.Printf("%s  %8.2f\n", s.Timestamp.Format("2006-01-02 15:04:05"), s.Value)
	}
}

func runList(ctx context.Context, lc *lifecycle.Manager, notifier *notify.Console, status domain.EventStatus) {
	events, err := lc.ListEvents(ctx, status, "")
	if err != nil {
		exitOnError("list failed", err)
	}
	if err := notifier.NotifyEvents(ctx, events); err != nil {
		slog.Warn("notifier error", "err", err)
	}
}

// exitOnError prints user-facing errors plainly and logs the rest.
func exitOnError(msg string, err error) {
	var verr *domain.ValidationError
	var cerr *domain.ConflictError
	switch {
	case errors.As(err, &verr), errors.As(err, &cerr), errors.Is(err, domain.ErrNotFound):
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	default:
		slog.Error(msg, "err", err)
	}
	os.Exit(1)
}
