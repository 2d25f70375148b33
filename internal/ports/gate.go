package ports

import "context"

// Proposal is the part of a proposed event the gate looks at.
type Proposal struct {
	Name        string
	SourceURL   string
	Description string
}

// Verdict is a gate decision. Reason is shown to the user verbatim on reject.
type Verdict struct {
	Accept bool
	Reason string
}

// Gate decides whether a topic may be traded.
type Gate interface {
	// CheckReasonability runs before any index is built.
	CheckReasonability(ctx context.Context, p Proposal) (Verdict, error)
	// DecideAccept runs once traction is known.
	DecideAccept(ctx context.Context, p Proposal, indexValue, activity float64) (Verdict, error)
}
