package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/attention/internal/domain"
)

// ActivityQuery is what a channel needs to count activity.
type ActivityQuery struct {
	Spec       domain.ChannelSpec
	Keywords   []string
	Exclusions []string
	Since      time.Time
}

// ChannelCollector counts recent activity on one external source.
type ChannelCollector interface {
	Kind() domain.ChannelKind
	// FetchActivity returns the number of matching items since q.Since.
	FetchActivity(ctx context.Context, q ActivityQuery) (float64, error)
}
