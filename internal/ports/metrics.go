package ports

import (
	"time"

	"github.com/alejandrodnm/attention/internal/domain"
)

// Metrics records lifecycle and scheduler activity.
type Metrics interface {
	TickCompleted(demo, degraded bool, took time.Duration)
	TickFailed()
	TradeAccepted(side domain.Side, amount float64)
	TradeRejected(reason string)
	EventProposed(status domain.EventStatus)
	EventResolved(res domain.Resolution)
	OpenEvents(n int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) TickCompleted(bool, bool, time.Duration) {}
func (NopMetrics) TickFailed()                             {}
func (NopMetrics) TradeAccepted(domain.Side, float64)      {}
func (NopMetrics) TradeRejected(string)                    {}
func (NopMetrics) EventProposed(domain.EventStatus)        {}
func (NopMetrics) EventResolved(domain.Resolution)         {}
func (NopMetrics) OpenEvents(int)                          {}
