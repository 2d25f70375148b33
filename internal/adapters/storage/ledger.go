package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alejandrodnm/attention/internal/domain"
	"github.com/alejandrodnm/attention/internal/ports"
	"github.com/shopspring/decimal"
)

// ApplyTrade reads the event and its position, lets fn price the trade, and
// writes the ledger row, the new position and the new prices in one transaction.
// A reader never sees a trade without the prices it produced.
func (s *SQLiteStorage) ApplyTrade(ctx context.Context, eventID string, fn ports.TradeFunc) (domain.Trade, domain.Position, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("storage.ApplyTrade: begin tx: %w", err)
	}
	defer tx.Rollback()

	ev, err := scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, eventID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("storage.ApplyTrade: %s: %w", eventID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("storage.ApplyTrade: load %s: %w", eventID, err)
	}

	pos, err := loadPosition(ctx, tx, eventID)
	if err != nil {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("storage.ApplyTrade: %w", err)
	}

	trade, next, err := fn(ev, pos)
	if err != nil {
		return domain.Trade{}, domain.Position{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trades
			(id, event_id, side, amount, trader_id, execution_price, price_up, price_down, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, eventID, string(trade.Side), trade.Amount.String(), trade.TraderID,
		trade.ExecutionPrice, trade.PriceUp, trade.PriceDown, toNanos(trade.CreatedAt),
	); err != nil {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("storage.ApplyTrade: insert trade: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO event_positions (event_id, net_up, net_down, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			net_up     = excluded.net_up,
			net_down   = excluded.net_down,
			updated_at = excluded.updated_at`,
		eventID, next.NetUp.String(), next.NetDown.String(), toNanos(trade.CreatedAt),
	); err != nil {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("storage.ApplyTrade: update position: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE events SET price_up = ?, price_down = ? WHERE id = ? AND status = ?`,
		trade.PriceUp, trade.PriceDown, eventID, string(domain.StatusOpen),
	)
	if err != nil {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("storage.ApplyTrade: update prices: %w", err)
	}
	if err := s.checkCAS(ctx, tx, res, eventID, "trade"); err != nil {
		return domain.Trade{}, domain.Position{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.Trade{}, domain.Position{}, fmt.Errorf("storage.ApplyTrade: commit: %w", err)
	}
	trade.EventID = eventID
	next.EventID = eventID
	return trade, next, nil
}

// GetPosition returns the running totals of an event. Events without trades
// have a zero position.
func (s *SQLiteStorage) GetPosition(ctx context.Context, eventID string) (domain.Position, error) {
	pos, err := loadPosition(ctx, s.db, eventID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("storage.GetPosition: %w", err)
	}
	return pos, nil
}

// ListTradesByTrader returns the trades of a trader, newest first.
func (s *SQLiteStorage) ListTradesByTrader(ctx context.Context, traderID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, side, amount, trader_id, execution_price, price_up, price_down, created_at
		FROM trades
		WHERE trader_id = ?
		ORDER BY created_at DESC, id`, traderID)
	if err != nil {
		return nil, fmt.Errorf("storage.ListTradesByTrader: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var (
			t         domain.Trade
			side, amt string
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.EventID, &side, &amt, &t.TraderID,
			&t.ExecutionPrice, &t.PriceUp, &t.PriceDown, &createdAt); err != nil {
			return nil, fmt.Errorf("storage.ListTradesByTrader: scan row: %w", err)
		}
		t.Side = domain.Side(side)
		t.Amount, err = decimal.NewFromString(amt)
		if err != nil {
			return nil, fmt.Errorf("storage.ListTradesByTrader: amount of %s: %w", t.ID, err)
		}
		t.CreatedAt = fromNanos(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

func loadPosition(ctx context.Context, q execQuerier, eventID string) (domain.Position, error) {
	pos := domain.Position{EventID: eventID}
	var up, down string
	err := q.QueryRowContext(ctx,
		`SELECT net_up, net_down FROM event_positions WHERE event_id = ?`, eventID,
	).Scan(&up, &down)
	if errors.Is(err, sql.ErrNoRows) {
		return pos, nil
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("load position %s: %w", eventID, err)
	}
	if pos.NetUp, err = decimal.NewFromString(up); err != nil {
		return domain.Position{}, fmt.Errorf("net_up of %s: %w", eventID, err)
	}
	if pos.NetDown, err = decimal.NewFromString(down); err != nil {
		return domain.Position{}, fmt.Errorf("net_down of %s: %w", eventID, err)
	}
	return pos, nil
}
