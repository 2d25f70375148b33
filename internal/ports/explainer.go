package ports

import (
	"context"

	"github.com/alejandrodnm/attention/internal/domain"
)

// Explainer writes a short text on why the index of a resolved event moved.
type Explainer interface {
	Explain(ctx context.Context, ev domain.Event, history []domain.IndexSnapshot) (string, error)
}
