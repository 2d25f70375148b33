package gate_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/attention/internal/adapters/gate"
	"github.com/alejandrodnm/attention/internal/ports"
)

func TestRules_CheckReasonability(t *testing.T) {
	g := gate.NewRules(gate.Config{Blocklist: []string{"Casino"}})

	cases := []struct {
		name   string
		p      ports.Proposal
		accept bool
	}{
		{"plain topic", ports.Proposal{Name: "Rust 2.0"}, true},
		{"with source", ports.Proposal{Name: "OpenAI DevDay", SourceURL: "https://openai.com/devday"}, true},
		{"too short", ports.Proposal{Name: " x "}, false},
		{"too long", ports.Proposal{Name: strings.Repeat("a", 121)}, false},
		{"no letters", ports.Proposal{Name: "12345"}, false},
		{"outcome question", ports.Proposal{Name: "Will Rust overtake Go?"}, false},
		{"question without outcome word", ports.Proposal{Name: "Rust vs Go?"}, true},
		{"blocklisted name", ports.Proposal{Name: "online casino bonus"}, false},
		{"blocklisted description", ports.Proposal{Name: "Lucky", Description: "a CASINO app"}, false},
		{"bad url", ports.Proposal{Name: "Rust", SourceURL: "ftp://example.com"}, false},
		{"relative url", ports.Proposal{Name: "Rust", SourceURL: "/news"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := g.CheckReasonability(context.Background(), tc.p)
			require.NoError(t, err)
			assert.Equal(t, tc.accept, v.Accept)
			if !tc.accept {
				assert.NotEmpty(t, v.Reason)
			}
		})
	}
}

func TestRules_DecideAccept(t *testing.T) {
	ctx := context.Background()
	p := ports.Proposal{Name: "rust"}

	g := gate.NewRules(gate.Config{})
	v, err := g.DecideAccept(ctx, p, 100, 0.5)
	require.NoError(t, err)
	assert.False(t, v.Accept)

	v, err = g.DecideAccept(ctx, p, 100, 1)
	require.NoError(t, err)
	assert.True(t, v.Accept)

	strict := gate.NewRules(gate.Config{MinActivity: 5})
	v, err = strict.DecideAccept(ctx, p, 100, 4)
	require.NoError(t, err)
	assert.False(t, v.Accept)
	assert.Equal(t, "There isn't enough traction around this topic yet.", v.Reason)
}
