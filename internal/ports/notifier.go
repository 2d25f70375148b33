package ports

import (
	"context"

	"github.com/alejandrodnm/attention/internal/domain"
)

// Notifier presents the current state of the markets to the operator.
type Notifier interface {
	NotifyEvents(ctx context.Context, events []domain.Event) error
}
