package explain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/attention/internal/adapters/explain"
	"github.com/alejandrodnm/attention/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func snaps(values ...float64) []domain.IndexSnapshot {
	out := make([]domain.IndexSnapshot, len(values))
	for i, v := range values {
		out[i] = domain.IndexSnapshot{EventID: "e1", Timestamp: t0.Add(time.Duration(i) * time.Minute), Value: v}
	}
	return out
}

func TestTemplate_Direction(t *testing.T) {
	cases := []struct {
		name    string
		history []domain.IndexSnapshot
		want    string
	}{
		{"rose", snaps(100, 101, 104), "Attention increased over the window (index rose). Index went from 100.0 to 104.0."},
		{"fell", snaps(100, 99, 97), "Attention decreased over the window (index fell). Index went from 100.0 to 97.0."},
		{"flat", snaps(100, 100), "Attention stayed roughly flat over the window. Index went from 100.0 to 100.0."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := explain.Template{}.Explain(context.Background(), domain.Event{IndexStart: 100}, tc.history)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTemplate_MentionsPeak(t *testing.T) {
	got, err := explain.Template{}.Explain(context.Background(), domain.Event{IndexStart: 100}, snaps(100, 112.4, 103))
	require.NoError(t, err)
	assert.Contains(t, got, "(index rose)")
	assert.Contains(t, got, "peaked at 112.4 at 10:01 UTC")
}

func TestTemplate_NoHistoryUsesCurrent(t *testing.T) {
	got, err := explain.Template{}.Explain(context.Background(), domain.Event{IndexStart: 100, IndexCurrent: 95}, nil)
	require.NoError(t, err)
	assert.Contains(t, got, "(index fell)")
	assert.NotContains(t, got, "peaked")
}
