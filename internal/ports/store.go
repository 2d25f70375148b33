package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/attention/internal/domain"
)

// OpenParams fixes the window and the starting index of an event.
type OpenParams struct {
	WindowStart time.Time
	WindowEnd   time.Time
	IndexStart  float64
	Channels    domain.ChannelConfig // with baselines
}

// TradeFunc prices a trade against the event and position read inside the
// store transaction. Returning an error aborts the transaction.
type TradeFunc func(ev domain.Event, pos domain.Position) (domain.Trade, domain.Position, error)

// Store persists events, index snapshots, trades and positions.
// Every status change is a compare-and-set on the current status.
type Store interface {
	// CreateEvent inserts a new event in draft status.
	CreateEvent(ctx context.Context, ev domain.Event) error

	// Transition moves an event from → to. It returns a *domain.ConflictError
	// when the event is not in from.
	Transition(ctx context.Context, id string, from, to domain.EventStatus) error

	// OpenEvent moves a proposed event to open, fixes index_start and writes
	// the first snapshot and an empty position in one transaction.
	OpenEvent(ctx context.Context, id string, p OpenParams) error

	// RejectEvent moves a proposed event to rejected with reason.
	RejectEvent(ctx context.Context, id, reason string) error

	// RecordTick appends a snapshot and updates index_current while the event is open.
	RecordTick(ctx context.Context, snap domain.IndexSnapshot) error

	// ResolveEvent moves an open event to resolved. It returns false, nil
	// when the event was not open any more.
	ResolveEvent(ctx context.Context, id string, res domain.Resolution, at time.Time) (bool, error)

	// PendingRecurrences lists resolved live events whose next window was
	// not created yet. Creating an event with RecurOf set clears the flag.
	PendingRecurrences(ctx context.Context) ([]domain.Event, error)

	// SetChannels replaces the channel config of an open event.
	SetChannels(ctx context.Context, id string, cfg domain.ChannelConfig) error

	// SetExplanation stores the resolution explanation once; later calls are ignored.
	SetExplanation(ctx context.Context, id, text string) error

	// ApplyTrade runs fn and appends the trade, updates the position and the
	// event prices atomically.
	ApplyTrade(ctx context.Context, eventID string, fn TradeFunc) (domain.Trade, domain.Position, error)

	GetEvent(ctx context.Context, id string) (domain.Event, error)
	// ListEvents filters by status; an empty name matches all topics.
	ListEvents(ctx context.Context, status domain.EventStatus, name string) ([]domain.Event, error)
	GetPosition(ctx context.Context, eventID string) (domain.Position, error)
	IndexHistory(ctx context.Context, eventID string) ([]domain.IndexSnapshot, error)
	ListTradesByTrader(ctx context.Context, traderID string) ([]domain.Trade, error)

	Close() error
}
