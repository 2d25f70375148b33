package channels

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/attention/internal/domain"
	"github.com/alejandrodnm/attention/internal/ports"
)

const hnHitsPerPage = 100

// HackerNews counts recent Hacker News items through the Algolia search API.
type HackerNews struct {
	client  *Client
	base    string
	limiter *rate.Limiter
}

var _ ports.ChannelCollector = (*HackerNews)(nil)

// NewHackerNews creates the collector. An empty base uses the public Algolia endpoint.
func NewHackerNews(client *Client, base string) *HackerNews {
	if base == "" {
		base = defaultHackerNewsBase
	}
	return &HackerNews{
		client:  client,
		base:    strings.TrimRight(base, "/"),
		limiter: rate.NewLimiter(hackerNewsRatePerSec, 4),
	}
}

// SetRateLimit replaces the request limiter.
func (h *HackerNews) SetRateLimit(r rate.Limit, burst int) {
	h.limiter = rate.NewLimiter(r, burst)
}

func (h *HackerNews) Kind() domain.ChannelKind { return domain.ChannelHackerNews }

type hnSearchResponse struct {
	Hits []struct {
		ObjectID    string `json:"objectID"`
		Title       string `json:"title"`
		StoryTitle  string `json:"story_title"`
		CommentText string `json:"comment_text"`
		CreatedAtI  int64  `json:"created_at_i"`
	} `json:"hits"`
}

// FetchActivity runs a single search for all keywords and counts the distinct
// items whose title matches one of them.
func (h *HackerNews) FetchActivity(ctx context.Context, q ports.ActivityQuery) (float64, error) {
	query, optional := hnQuery(q.Keywords)
	if query == "" {
		return 0, nil
	}
	tag := "story"
	if spec, ok := q.Spec.(domain.HackerNewsSpec); ok && spec.Tag != "" {
		tag = spec.Tag
	}

	params := url.Values{}
	params.Set("query", query)
	if optional != "" {
		params.Set("optionalWords", optional)
	}
	params.Set("tags", tag)
	params.Set("numericFilters", fmt.Sprintf("created_at_i>=%d", q.Since.Unix()))
	params.Set("hitsPerPage", fmt.Sprint(hnHitsPerPage))

	var resp hnSearchResponse
	if err := h.client.getJSON(ctx, h.limiter, h.base+"/search_by_date?"+params.Encode(), &resp); err != nil {
		return 0, fmt.Errorf("hackernews.FetchActivity: %q: %w", query, err)
	}

	seen := make(map[string]bool)
	for _, hit := range resp.Hits {
		if seen[hit.ObjectID] || hit.CreatedAtI < q.Since.Unix() {
			continue
		}
		title := hit.Title
		if tag == "comment" {
			title = hit.StoryTitle + " " + hit.CommentText
		}
		if matchTitle(title, q.Keywords, q.Exclusions) {
			seen[hit.ObjectID] = true
		}
	}
	return float64(len(seen)), nil
}

// hnQuery joins the distinct words of keywords into one Algolia query. With
// more than one keyword every word is optional, so a hit on any keyword is
// returned and matchTitle does the filtering.
func hnQuery(keywords []string) (query, optional string) {
	var words []string
	seen := make(map[string]bool)
	for _, kw := range keywords {
		for _, w := range strings.Fields(strings.ToLower(kw)) {
			if !seen[w] {
				seen[w] = true
				words = append(words, w)
			}
		}
	}
	query = strings.Join(words, " ")
	if len(keywords) > 1 {
		optional = strings.Join(words, ",")
	}
	return query, optional
}
