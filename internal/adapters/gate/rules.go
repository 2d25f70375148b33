package gate

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/alejandrodnm/attention/internal/ports"
)

const (
	minNameLen = 2
	maxNameLen = 120
)

var (
	hasLetter = regexp.MustCompile(`\pL`)
	// outcome questions ("will X win", "who will") are prediction markets, not attention
	outcomeQuestion = regexp.MustCompile(`(?i)^\s*(will|who|which|when)\b.*\?\s*$`)
)

// Config controla las reglas del gate.
type Config struct {
	Blocklist   []string // términos que nunca se abren (case-insensitive)
	MinActivity float64  // actividad total mínima al abrir
}

// Rules is a deterministic gate: shape checks on the proposal and a minimum
// activity for the accept decision.
type Rules struct {
	blocklist   []string
	minActivity float64
}

var _ ports.Gate = (*Rules)(nil)

// NewRules creates the gate. MinActivity below 1 is raised to 1.
func NewRules(cfg Config) *Rules {
	r := &Rules{minActivity: cfg.MinActivity}
	if r.minActivity < 1 {
		r.minActivity = 1
	}
	for _, term := range cfg.Blocklist {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
			r.blocklist = append(r.blocklist, term)
		}
	}
	return r
}

// CheckReasonability rejects names that cannot be tracked as a topic.
func (r *Rules) CheckReasonability(_ context.Context, p ports.Proposal) (ports.Verdict, error) {
	name := strings.TrimSpace(p.Name)
	switch n := utf8.RuneCountInString(name); {
	case n < minNameLen:
		return reject("The topic name is too short to track."), nil
	case n > maxNameLen:
		return reject(fmt.Sprintf("Keep the topic name under %d characters.", maxNameLen)), nil
	}
	if !hasLetter.MatchString(name) {
		return reject("The topic name needs at least one word."), nil
	}
	if outcomeQuestion.MatchString(name) {
		return reject("Propose a topic, not a question about an outcome; the market trades on attention."), nil
	}
	lower := strings.ToLower(name + " " + p.Description)
	for _, term := range r.blocklist {
		if strings.Contains(lower, term) {
			return reject("This topic can't be listed."), nil
		}
	}
	if p.SourceURL != "" {
		u, err := url.Parse(p.SourceURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return reject("The source link is not a valid web address."), nil
		}
	}
	return ports.Verdict{Accept: true}, nil
}

// DecideAccept opens the topic when enough activity was observed.
func (r *Rules) DecideAccept(_ context.Context, _ ports.Proposal, _ float64, activity float64) (ports.Verdict, error) {
	if activity < r.minActivity {
		return reject("There isn't enough traction around this topic yet."), nil
	}
	return ports.Verdict{Accept: true}, nil
}

func reject(reason string) ports.Verdict {
	return ports.Verdict{Accept: false, Reason: reason}
}
