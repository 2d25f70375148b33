package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordsFromName(t *testing.T) {
	kw := KeywordsFromName("  Open-Source AI Agents in Go ")
	assert.Equal(t, []string{"open-source ai agents in go", "open", "source", "agents"}, kw)
	assert.Nil(t, KeywordsFromName("   "))
}

func TestNormalize_RescalesWeights(t *testing.T) {
	cfg := ChannelConfig{
		Keywords: []string{"rust", " "},
		Channels: []Channel{
			{Spec: HackerNewsSpec{Tag: "story"}, Weight: 3},
			{Spec: RedditSpec{Subreddit: "rust"}, Weight: 1},
		},
	}
	out, err := cfg.Normalize()
	require.NoError(t, err)
	assert.Equal(t, []string{"rust"}, out.Keywords)
	assert.InDelta(t, 0.75, out.Channels[0].Weight, 1e-12)
	assert.InDelta(t, 0.25, out.Channels[1].Weight, 1e-12)
	assert.Equal(t, 1.0, out.Channels[0].Scale)
	assert.Equal(t, 3.0, cfg.Channels[0].Weight, "input must not be mutated")
}

func TestNormalize_Rejects(t *testing.T) {
	cases := map[string]ChannelConfig{
		"no keywords":    {Channels: []Channel{{Spec: RedditSpec{}, Weight: 1}}},
		"no channels":    {Keywords: []string{"x"}},
		"zero weight":    {Keywords: []string{"x"}, Channels: []Channel{{Spec: RedditSpec{}, Weight: 0}}},
		"missing spec":   {Keywords: []string{"x"}, Channels: []Channel{{Weight: 1}}},
		"bad tag":        {Keywords: []string{"x"}, Channels: []Channel{{Spec: HackerNewsSpec{Tag: "job"}, Weight: 1}}},
		"bad subreddit":  {Keywords: []string{"x"}, Channels: []Channel{{Spec: RedditSpec{Subreddit: "a/b"}, Weight: 1}}},
		"negative scale": {Keywords: []string{"x"}, Channels: []Channel{{Spec: RedditSpec{}, Weight: 1, Scale: -1}}},
		"duplicate kind": {Keywords: []string{"x"}, Channels: []Channel{{Spec: RedditSpec{}, Weight: 1}, {Spec: RedditSpec{Subreddit: "go"}, Weight: 1}}},
	}
	for name, cfg := range cases {
		_, err := cfg.Normalize()
		var ve *ValidationError
		assert.True(t, errors.As(err, &ve), name)
	}
}

func TestChannelConfig_JSONKeepsKinds(t *testing.T) {
	cfg := DefaultChannelConfig("kubernetes")
	cfg.Channels[1].Spec = RedditSpec{Subreddit: "kubernetes"}
	cfg.Channels[0].Baseline = 4

	b, err := json.Marshal(cfg)
	require.NoError(t, err)

	var back ChannelConfig
	require.NoError(t, json.Unmarshal(b, &back))
	require.Len(t, back.Channels, 2)
	assert.Equal(t, HackerNewsSpec{Tag: "story"}, back.Channels[0].Spec)
	assert.Equal(t, RedditSpec{Subreddit: "kubernetes"}, back.Channels[1].Spec)
	assert.Equal(t, 4.0, back.Channels[0].Baseline)
}

func TestChannel_UnmarshalUnknownKind(t *testing.T) {
	var ch Channel
	err := json.Unmarshal([]byte(`{"kind":"twitter","weight":1}`), &ch)
	assert.Error(t, err)
}

func TestWithBaselines(t *testing.T) {
	cfg := DefaultChannelConfig("go")
	out := cfg.WithBaselines([]ChannelReading{{Activity: 7}, {Activity: 3, Err: errors.New("down")}})
	assert.Equal(t, 7.0, out.Channels[0].Baseline)
	assert.False(t, out.Channels[0].BaselineMissing)
	assert.Equal(t, 0.0, out.Channels[1].Baseline)
	assert.True(t, out.Channels[1].BaselineMissing)
	assert.Equal(t, 0.0, cfg.Channels[0].Baseline)

	reset := out.WithoutBaselines()
	assert.Equal(t, 0.0, reset.Channels[0].Baseline)
	assert.False(t, reset.Channels[1].BaselineMissing)
}

func TestCaptureMissingBaselines(t *testing.T) {
	cfg := DefaultChannelConfig("go").WithBaselines([]ChannelReading{{Err: errors.New("down")}, {Activity: 5}})

	// sigue caído: nada que capturar
	same, changed := cfg.CaptureMissingBaselines([]ChannelReading{{Err: errors.New("down")}, {Activity: 9}})
	assert.False(t, changed)
	assert.True(t, same.Channels[0].BaselineMissing)
	assert.Equal(t, 5.0, same.Channels[1].Baseline, "present baselines are never moved")

	out, changed := cfg.CaptureMissingBaselines([]ChannelReading{{Activity: 20}, {Activity: 9}})
	require.True(t, changed)
	assert.Equal(t, 20.0, out.Channels[0].Baseline)
	assert.False(t, out.Channels[0].BaselineMissing)
	assert.Equal(t, 5.0, out.Channels[1].Baseline)
	assert.True(t, cfg.Channels[0].BaselineMissing, "input is not mutated")
}

func TestChannel_JSONKeepsMissingBaseline(t *testing.T) {
	cfg := DefaultChannelConfig("go").WithBaselines([]ChannelReading{{Err: errors.New("down")}, {Activity: 5}})
	b, err := json.Marshal(cfg)
	require.NoError(t, err)

	var back ChannelConfig
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Channels[0].BaselineMissing)
	assert.False(t, back.Channels[1].BaselineMissing)
}
