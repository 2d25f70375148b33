package explain

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/attention/internal/domain"
	"github.com/alejandrodnm/attention/internal/ports"
)

// Template explains a resolution from the index values alone.
type Template struct{}

var _ ports.Explainer = Template{}

// Explain compares the closing index against index_start. The closing value is
// the last snapshot when there is history, otherwise the event's current index.
func (Template) Explain(_ context.Context, ev domain.Event, history []domain.IndexSnapshot) (string, error) {
	end := ev.IndexCurrent
	if len(history) > 0 {
		end = history[len(history)-1].Value
	}

	var text string
	switch {
	case end > ev.IndexStart:
		text = "Attention increased over the window (index rose)."
	case end < ev.IndexStart:
		text = "Attention decreased over the window (index fell)."
	default:
		text = "Attention stayed roughly flat over the window."
	}

	if peak, ok := peakOf(history); ok && peak.Value > ev.IndexStart && peak.Value > end {
		text += fmt.Sprintf(" It peaked at %.1f at %s UTC.", peak.Value, peak.Timestamp.UTC().Format("15:04"))
	}
	return fmt.Sprintf("%s Index went from %.1f to %.1f.", text, ev.IndexStart, end), nil
}

func peakOf(history []domain.IndexSnapshot) (domain.IndexSnapshot, bool) {
	if len(history) == 0 {
		return domain.IndexSnapshot{}, false
	}
	peak := history[0]
	for _, s := range history[1:] {
		if s.Value > peak.Value {
			peak = s
		}
	}
	return peak, true
}
