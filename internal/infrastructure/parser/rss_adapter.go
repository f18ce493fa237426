package parser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"leadscanner/internal/domain"
	"leadscanner/internal/ports"
)

// RSSAdapter fetches syndicated feeds and emits one candidate item per
// entry.
type RSSAdapter struct {
	client *http.Client
	parser *gofeed.Parser
}

var _ ports.SourceAdapter = (*RSSAdapter)(nil)

// NewRSSAdapter wires an HTTP client; timeout defaults to 20s.
func NewRSSAdapter(client *http.Client) *RSSAdapter {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &RSSAdapter{client: client, parser: gofeed.NewParser()}
}

// Type identifies the adapter inside the registry.
func (a *RSSAdapter) Type() domain.SourceType {
	return domain.SourceRSS
}

// Fetch parses the feed at the source URL. The candidate text is the entry
// title and snippet joined by a blank line, which is what extraction works
// from.
func (a *RSSAdapter) Fetch(ctx context.Context, source domain.ScanSource) ([]domain.CandidateItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	feed, err := a.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	feedTitle := strings.TrimSpace(feed.Title)
	if feedTitle == "" {
		feedTitle = source.Name
	}

	items := make([]domain.CandidateItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		title := strings.TrimSpace(entry.Title)
		snippet := strings.TrimSpace(entry.Description)
		if title == "" && snippet == "" {
			continue
		}

		var published time.Time
		if entry.PublishedParsed != nil {
			published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			published = *entry.UpdatedParsed
		}

		items = append(items, domain.CandidateItem{
			Text:        title + "\n\n" + snippet,
			Link:        strings.TrimSpace(entry.Link),
			PublishedAt: published,
			SourceTitle: feedTitle,
		})
	}

	return items, nil
}
