package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ChannelKind identifies an external attention source.
type ChannelKind string

const (
	ChannelHackerNews ChannelKind = "hackernews"
	ChannelReddit     ChannelKind = "reddit"
)

// ChannelSpec is the per-kind part of a channel. Exactly one implementation
// exists per ChannelKind; the set is closed to this package.
type ChannelSpec interface {
	Kind() ChannelKind
	validate() error
}

// HackerNewsSpec counts Hacker News items (stories or comments) matching the keywords.
type HackerNewsSpec struct {
	Tag string `json:"tag"` // story | comment
}

func (HackerNewsSpec) Kind() ChannelKind { return ChannelHackerNews }

func (s HackerNewsSpec) validate() error {
	switch s.Tag {
	case "", "story", "comment":
		return nil
	}
	return &ValidationError{Field: "channels.hackernews.tag", Msg: fmt.Sprintf("unsupported tag %q", s.Tag)}
}

// RedditSpec counts Reddit posts matching the keywords, optionally in one subreddit.
type RedditSpec struct {
	Subreddit string `json:"subreddit,omitempty"`
}

func (RedditSpec) Kind() ChannelKind { return ChannelReddit }

func (s RedditSpec) validate() error {
	if strings.ContainsAny(s.Subreddit, "/ ?&") {
		return &ValidationError{Field: "channels.reddit.subreddit", Msg: fmt.Sprintf("invalid subreddit %q", s.Subreddit)}
	}
	return nil
}

// Channel is one weighted source of the index.
// Baseline is the activity observed when the event opened. BaselineMissing
// marks a channel whose opening reading failed; it adds nothing to the index
// until its first successful reading becomes the baseline.
type Channel struct {
	Spec            ChannelSpec
	Weight          float64
	Scale           float64
	Baseline        float64
	BaselineMissing bool
}

// Kind returns the kind of the channel spec.
func (c Channel) Kind() ChannelKind {
	if c.Spec == nil {
		return ""
	}
	return c.Spec.Kind()
}

type channelJSON struct {
	Kind     ChannelKind     `json:"kind"`
	Weight   float64         `json:"weight"`
	Scale    float64         `json:"scale"`
	Baseline float64         `json:"baseline"`
	Missing  bool            `json:"baseline_missing,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// MarshalJSON encodes the channel with an explicit kind discriminator.
func (c Channel) MarshalJSON() ([]byte, error) {
	if c.Spec == nil {
		return nil, fmt.Errorf("domain.Channel: missing spec")
	}
	params, err := json.Marshal(c.Spec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(channelJSON{
		Kind:     c.Spec.Kind(),
		Weight:   c.Weight,
		Scale:    c.Scale,
		Baseline: c.Baseline,
		Missing:  c.BaselineMissing,
		Params:   params,
	})
}

// UnmarshalJSON decodes a channel, dispatching on the kind discriminator.
func (c *Channel) UnmarshalJSON(b []byte) error {
	var raw channelJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var spec ChannelSpec
	switch raw.Kind {
	case ChannelHackerNews:
		s := HackerNewsSpec{Tag: "story"}
		if len(raw.Params) > 0 {
			if err := json.Unmarshal(raw.Params, &s); err != nil {
				return fmt.Errorf("domain.Channel: hackernews params: %w", err)
			}
		}
		spec = s
	case ChannelReddit:
		var s RedditSpec
		if len(raw.Params) > 0 {
			if err := json.Unmarshal(raw.Params, &s); err != nil {
				return fmt.Errorf("domain.Channel: reddit params: %w", err)
			}
		}
		spec = s
	default:
		return fmt.Errorf("domain.Channel: unknown kind %q", raw.Kind)
	}
	*c = Channel{Spec: spec, Weight: raw.Weight, Scale: raw.Scale, Baseline: raw.Baseline, BaselineMissing: raw.Missing}
	return nil
}

// ChannelConfig describes what an event listens to.
type ChannelConfig struct {
	Keywords   []string  `json:"keywords"`
	Exclusions []string  `json:"exclusions,omitempty"`
	Channels   []Channel `json:"channels"`
}

// DefaultChannelConfig derives keywords from the topic name and listens to
// Hacker News (0.6) and Reddit (0.4).
func DefaultChannelConfig(name string) ChannelConfig {
	return ChannelConfig{
		Keywords: KeywordsFromName(name),
		Channels: []Channel{
			{Spec: HackerNewsSpec{Tag: "story"}, Weight: 0.6, Scale: 1},
			{Spec: RedditSpec{}, Weight: 0.4, Scale: 1},
		},
	}
}

// KeywordsFromName returns the lowercased name plus up to five of its words
// longer than two characters, without duplicates.
func KeywordsFromName(name string) []string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return nil
	}
	out := []string{lower}
	seen := map[string]bool{lower: true}
	words := 0
	for _, w := range strings.Fields(strings.ReplaceAll(lower, "-", " ")) {
		if len(w) <= 2 || words == 5 {
			continue
		}
		words++
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// Normalize validates the config and rescales weights to sum to 1.
// Channels without an explicit scale get scale 1.
func (c ChannelConfig) Normalize() (ChannelConfig, error) {
	keywords := make([]string, 0, len(c.Keywords))
	for _, k := range c.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		return ChannelConfig{}, &ValidationError{Field: "channels.keywords", Msg: "at least one keyword is required"}
	}
	if len(c.Channels) == 0 {
		return ChannelConfig{}, &ValidationError{Field: "channels", Msg: "at least one channel is required"}
	}

	total := 0.0
	seen := make(map[ChannelKind]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Spec == nil {
			return ChannelConfig{}, &ValidationError{Field: fmt.Sprintf("channels[%d]", i), Msg: "missing channel kind"}
		}
		if seen[ch.Kind()] {
			return ChannelConfig{}, &ValidationError{Field: fmt.Sprintf("channels[%d]", i), Msg: fmt.Sprintf("duplicate channel %q", ch.Kind())}
		}
		seen[ch.Kind()] = true
		if err := ch.Spec.validate(); err != nil {
			return ChannelConfig{}, err
		}
		if !(ch.Weight > 0) || math.IsInf(ch.Weight, 0) {
			return ChannelConfig{}, &ValidationError{Field: fmt.Sprintf("channels[%d].weight", i), Msg: "weight must be positive"}
		}
		if ch.Scale < 0 || math.IsNaN(ch.Scale) || math.IsInf(ch.Scale, 0) {
			return ChannelConfig{}, &ValidationError{Field: fmt.Sprintf("channels[%d].scale", i), Msg: "scale must be positive"}
		}
		total += ch.Weight
	}

	out := ChannelConfig{
		Keywords:   keywords,
		Exclusions: append([]string(nil), c.Exclusions...),
		Channels:   make([]Channel, len(c.Channels)),
	}
	for i, ch := range c.Channels {
		ch.Weight /= total
		if ch.Scale == 0 {
			ch.Scale = 1
		}
		out.Channels[i] = ch
	}
	return out, nil
}

// WithBaselines returns a copy whose channel baselines are the given readings.
// A failed reading leaves the channel's baseline missing.
func (c ChannelConfig) WithBaselines(readings []ChannelReading) ChannelConfig {
	out := c.copyChannels()
	for i := range out.Channels {
		out.Channels[i].Baseline = 0
		out.Channels[i].BaselineMissing = true
		if i < len(readings) && readings[i].OK() {
			out.Channels[i].Baseline = readings[i].Activity
			out.Channels[i].BaselineMissing = false
		}
	}
	return out
}

// CaptureMissingBaselines fills every missing baseline whose reading
// succeeded. It reports whether anything changed.
func (c ChannelConfig) CaptureMissingBaselines(readings []ChannelReading) (ChannelConfig, bool) {
	out := c.copyChannels()
	changed := false
	for i := range out.Channels {
		if !out.Channels[i].BaselineMissing || i >= len(readings) || !readings[i].OK() {
			continue
		}
		out.Channels[i].Baseline = readings[i].Activity
		out.Channels[i].BaselineMissing = false
		changed = true
	}
	return out, changed
}

// WithoutBaselines returns a copy with every baseline reset, used when a topic recurs.
func (c ChannelConfig) WithoutBaselines() ChannelConfig {
	out := c.copyChannels()
	for i := range out.Channels {
		out.Channels[i].Baseline = 0
		out.Channels[i].BaselineMissing = false
	}
	return out
}

func (c ChannelConfig) copyChannels() ChannelConfig {
	out := c
	out.Channels = make([]Channel, len(c.Channels))
	copy(out.Channels, c.Channels)
	return out
}
