package parser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"leadscanner/internal/domain"
	"leadscanner/internal/ports"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Nodes that carry no lead content: scripts, styling, chrome, embeds.
const strippedSelectors = "script, style, nav, header, footer, iframe, svg, noscript"

// PageAdapter fetches an arbitrary web page and emits a single candidate
// item holding the page's visible text.
type PageAdapter struct {
	client *http.Client
}

var _ ports.SourceAdapter = (*PageAdapter)(nil)

// NewPageAdapter wires an HTTP client; timeout defaults to 20s.
func NewPageAdapter(client *http.Client) *PageAdapter {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &PageAdapter{client: client}
}

// Type identifies the adapter inside the registry.
func (a *PageAdapter) Type() domain.SourceType {
	return domain.SourceURL
}

// Fetch GETs the configured URL with browser-like headers, strips
// non-content nodes, and collapses whitespace. No finer-grained title is
// available before extraction, so SourceTitle falls back to the source name.
func (a *PageAdapter) Fetch(ctx context.Context, source domain.ScanSource) ([]domain.CandidateItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	doc.Find(strippedSelectors).Remove()

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	text = strings.Join(strings.Fields(text), " ")

	item := domain.CandidateItem{
		Text:        text,
		Link:        source.URL,
		SourceTitle: source.Name,
	}
	return []domain.CandidateItem{item}, nil
}
