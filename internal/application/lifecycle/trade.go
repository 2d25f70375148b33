package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/attention/internal/domain"
)

// TradeRequest is one bet on the direction of an event's index.
type TradeRequest struct {
	EventID  string
	Side     string
	Amount   decimal.Decimal
	TraderID string
}

// TradeResult is an accepted trade and the prices it left behind.
type TradeResult struct {
	Trade  domain.Trade
	Prices domain.Prices
	Volume decimal.Decimal
}

// SubmitTrade appends a trade to an open event and reprices it. The ledger
// row, the position and the prices are written in one store transaction.
// A trade on an event that is not open, or whose window has closed, fails
// with a *domain.ConflictError.
func (m *Manager) SubmitTrade(ctx context.Context, req TradeRequest) (TradeResult, error) {
	side, amount, err := validateTrade(req)
	if err != nil {
		m.metrics.TradeRejected(errorReason(err))
		return TradeResult{}, err
	}

	unlock := m.locks.lock(req.EventID)
	defer unlock()

	now := m.now()
	var prices domain.Prices
	trade, pos, err := m.store.ApplyTrade(ctx, req.EventID, func(ev domain.Event, pos domain.Position) (domain.Trade, domain.Position, error) {
		if ev.Status != domain.StatusOpen {
			return domain.Trade{}, domain.Position{}, &domain.ConflictError{EventID: ev.ID, Status: ev.Status, Op: "trade"}
		}
		if ev.Due(now) {
			return domain.Trade{}, domain.Position{}, &domain.ConflictError{
				EventID: ev.ID, Status: ev.Status, Op: "trade", Msg: "trading window has closed",
			}
		}
		quoted := m.cfg.Pricing.Price(pos)
		next := pos.Apply(side, amount)
		prices = m.cfg.Pricing.Price(next)
		return domain.Trade{
			ID:             m.newID(),
			Side:           side,
			Amount:         amount,
			TraderID:       strings.TrimSpace(req.TraderID),
			ExecutionPrice: quoted.For(side),
			PriceUp:        prices.Up,
			PriceDown:      prices.Down,
			CreatedAt:      now,
		}, next, nil
	})
	if err != nil {
		m.metrics.TradeRejected(errorReason(err))
		return TradeResult{}, fmt.Errorf("lifecycle.SubmitTrade: %w", err)
	}

	m.metrics.TradeAccepted(side, amount.InexactFloat64())
	slog.Debug("trade accepted",
		"event_id", req.EventID,
		"side", side,
		"amount", amount.String(),
		"execution_price", fmt.Sprintf("%.4f", trade.ExecutionPrice),
		"price_up", fmt.Sprintf("%.4f", prices.Up),
	)
	return TradeResult{Trade: trade, Prices: prices, Volume: pos.Volume()}, nil
}

// ListTrades returns the trades of a trader, newest first.
func (m *Manager) ListTrades(ctx context.Context, traderID string) ([]domain.Trade, error) {
	traderID = strings.TrimSpace(traderID)
	if traderID == "" {
		return nil, &domain.ValidationError{Field: "trader", Msg: "trader is required"}
	}
	trades, err := m.store.ListTradesByTrader(ctx, traderID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.ListTrades: %w", err)
	}
	return trades, nil
}

func validateTrade(req TradeRequest) (domain.Side, decimal.Decimal, error) {
	if strings.TrimSpace(req.EventID) == "" {
		return "", decimal.Zero, &domain.ValidationError{Field: "event_id", Msg: "event id is required"}
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		return "", decimal.Zero, err
	}
	if !req.Amount.IsPositive() {
		return "", decimal.Zero, &domain.ValidationError{Field: "amount", Msg: "amount must be positive"}
	}
	return side, req.Amount, nil
}
