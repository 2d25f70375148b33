package domain

import (
	"strings"
	"time"
)

// EventStatus is the lifecycle state of an attention market.
type EventStatus string

const (
	StatusDraft    EventStatus = "draft"
	StatusProposed EventStatus = "proposed"
	StatusOpen     EventStatus = "open"
	StatusRejected EventStatus = "rejected"
	StatusResolved EventStatus = "resolved"
)

// Terminal reports whether no further transition is possible from s.
func (s EventStatus) Terminal() bool {
	return s == StatusRejected || s == StatusResolved
}

// Valid reports whether s is one of the known statuses.
func (s EventStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusProposed, StatusOpen, StatusRejected, StatusResolved:
		return true
	}
	return false
}

// transitions lists the allowed edges of the state machine.
var transitions = map[EventStatus][]EventStatus{
	StatusDraft:    {StatusProposed},
	StatusProposed: {StatusOpen, StatusRejected},
	StatusOpen:     {StatusResolved},
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to EventStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MarketType selects the trading window of an event.
type MarketType string

const (
	MarketHour MarketType = "1h"
	MarketDay  MarketType = "24h"
	MarketDemo MarketType = "demo"
)

// ParseMarketType maps user input to a MarketType. Unknown values fall back to 1h.
func ParseMarketType(s string) MarketType {
	switch MarketType(strings.ToLower(strings.TrimSpace(s))) {
	case MarketDay:
		return MarketDay
	case MarketDemo:
		return MarketDemo
	default:
		return MarketHour
	}
}

// Resolution is the outcome of a resolved event. Empty means unresolved.
type Resolution string

const (
	ResolutionNone Resolution = ""
	ResolutionUp   Resolution = "up"
	ResolutionDown Resolution = "down"
)

// ResolveOutcome decides the direction of the index over the window.
// Only a strict rise resolves up; a flat index resolves down.
func ResolveOutcome(indexStart, indexCurrent float64) Resolution {
	if indexCurrent > indexStart {
		return ResolutionUp
	}
	return ResolutionDown
}

// Event is one trading window on the attention index of a topic.
type Event struct {
	ID           string
	Name         string
	MarketType   MarketType
	Status       EventStatus
	WindowStart  time.Time
	WindowEnd    time.Time
	IndexStart   float64 // fixed when the event opens
	IndexCurrent float64
	Resolution   Resolution
	RejectReason string
	Explanation  string
	Channels     ChannelConfig
	SourceURL    string
	Description  string
	Headline     string
	Subline      string
	LabelUp      string
	LabelDown    string
	PriceUp      float64
	PriceDown    float64
	CreatedAt    time.Time
	ResolvedAt   *time.Time
	RecurOf      string // previous window of the same topic, if any
	RecurPending bool   // resolved live event whose next window was not proposed yet
}

// IsDemo reports whether the event is driven by the synthetic generator.
func (e Event) IsDemo() bool {
	return e.MarketType == MarketDemo
}

// Due reports whether the window has closed at now. Never true before WindowEnd.
func (e Event) Due(now time.Time) bool {
	return !now.Before(e.WindowEnd)
}

// Remaining returns the time left in the window, or 0 when it has closed.
func (e Event) Remaining(now time.Time) time.Duration {
	d := e.WindowEnd.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Window is the length of the trading window.
func (e Event) Window() time.Duration {
	return e.WindowEnd.Sub(e.WindowStart)
}

// Outcome returns the resolution the current index trajectory implies.
func (e Event) Outcome() Resolution {
	return ResolveOutcome(e.IndexStart, e.IndexCurrent)
}

// RecurrenceIntent asks the proposal pipeline to open the next window of a topic.
// The resolver emits it; it never calls back into the proposal flow itself.
type RecurrenceIntent struct {
	PreviousID  string
	Name        string
	MarketType  MarketType
	Window      time.Duration
	Channels    ChannelConfig
	SourceURL   string
	Description string
}

// Presentation holds the texts shown next to a market.
type Presentation struct {
	Headline  string
	Subline   string
	LabelUp   string
	LabelDown string
}

// DefaultPresentation builds the headline and button labels for a topic.
func DefaultPresentation(name string, mt MarketType) Presentation {
	p := Presentation{LabelUp: "Heating up", LabelDown: "Cooling down"}
	switch mt {
	case MarketDay:
		p.Headline = "Will " + name + " stay hot?"
		p.Subline = "Sustained attention · next 24h"
	case MarketDemo:
		p.Headline = "Is " + name + " gaining momentum?"
		p.Subline = "Demo market · next 2 min"
	default:
		p.Headline = "Is " + name + " gaining momentum?"
		p.Subline = "Attention change · next 60 min"
	}
	return p
}
