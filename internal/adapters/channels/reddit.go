package channels

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/attention/internal/domain"
	"github.com/alejandrodnm/attention/internal/ports"
)

const redditLimit = 100

// Reddit counts recent posts through the public search listing, site-wide or
// restricted to one subreddit.
type Reddit struct {
	client  *Client
	base    string
	limiter *rate.Limiter
}

var _ ports.ChannelCollector = (*Reddit)(nil)

// NewReddit creates the collector. An empty base uses www.reddit.com.
func NewReddit(client *Client, base string) *Reddit {
	if base == "" {
		base = defaultRedditBase
	}
	return &Reddit{
		client:  client,
		base:    strings.TrimRight(base, "/"),
		limiter: rate.NewLimiter(rate.Limit(redditRatePerSec), 2),
	}
}

// SetRateLimit replaces the request limiter.
func (r *Reddit) SetRateLimit(limit rate.Limit, burst int) {
	r.limiter = rate.NewLimiter(limit, burst)
}

func (r *Reddit) Kind() domain.ChannelKind { return domain.ChannelReddit }

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID         string  `json:"id"`
				Title      string  `json:"title"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FetchActivity searches the keywords as one OR query and counts the distinct
// posts created since q.Since whose title matches.
func (r *Reddit) FetchActivity(ctx context.Context, q ports.ActivityQuery) (float64, error) {
	if len(q.Keywords) == 0 {
		return 0, nil
	}
	terms := make([]string, len(q.Keywords))
	for i, kw := range q.Keywords {
		terms[i] = `"` + strings.ReplaceAll(kw, `"`, "") + `"`
	}

	params := url.Values{}
	params.Set("q", strings.Join(terms, " OR "))
	params.Set("sort", "new")
	params.Set("limit", fmt.Sprint(redditLimit))
	params.Set("t", timeFilter(q))
	path := "/search.json"
	if spec, ok := q.Spec.(domain.RedditSpec); ok && spec.Subreddit != "" {
		path = "/r/" + url.PathEscape(spec.Subreddit) + "/search.json"
		params.Set("restrict_sr", "1")
	}

	var listing redditListing
	if err := r.client.getJSON(ctx, r.limiter, r.base+path+"?"+params.Encode(), &listing); err != nil {
		return 0, fmt.Errorf("reddit.FetchActivity: %w", err)
	}

	since := float64(q.Since.Unix())
	seen := make(map[string]bool)
	for _, child := range listing.Data.Children {
		post := child.Data
		if seen[post.ID] || post.CreatedUTC < since {
			continue
		}
		if matchTitle(post.Title, q.Keywords, q.Exclusions) {
			seen[post.ID] = true
		}
	}
	return float64(len(seen)), nil
}

// timeFilter picks the narrowest Reddit time bucket covering q.Since.
func timeFilter(q ports.ActivityQuery) string {
	if q.Since.IsZero() {
		return "day"
	}
	// a minute of slack so a 60m lookback still maps to "hour"
	d := time.Since(q.Since) - time.Minute
	switch {
	case d <= time.Hour:
		return "hour"
	case d <= 24*time.Hour:
		return "day"
	case d <= 7*24*time.Hour:
		return "week"
	default:
		return "month"
	}
}
