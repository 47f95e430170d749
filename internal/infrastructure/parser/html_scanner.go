package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/scanner"
)

const (
	defaultHeadlineSelector = "h2 a, h3 a"
	defaultMaxTopics        = 20
	maxTopicRunes           = 120
)

// HTMLScanner collects headlines from a listing page as topic candidates.
//
// Options: "pages" walks ?page=1..N, "limit" caps the result count.
type HTMLScanner struct {
	client *http.Client
}

// NewHTMLScanner wires an HTTP client; nil selects a 20s default.
func NewHTMLScanner(client *http.Client) *HTMLScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTMLScanner{client: client}
}

// Name identifies the strategy inside the registry.
func (h *HTMLScanner) Name() string {
	return "html"
}

// Scan fetches each page and extracts the selector's text.
func (h *HTMLScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.TopicCandidate, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("no url provided for site %s", req.Site)
	}

	selector := req.Selector
	if selector == "" {
		selector = defaultHeadlineSelector
	}
	pages := intOption(req.Options, "pages", 1)
	limit := intOption(req.Options, "limit", defaultMaxTopics)

	results := make([]domain.TopicCandidate, 0)
	seen := map[string]struct{}{}

	for page := 1; page <= pages && len(results) < limit; page++ {
		pageURL := req.URL
		if pages > 1 {
			var err error
			pageURL, err = buildPageURL(req.URL, page)
			if err != nil {
				return nil, err
			}
		}

		doc, err := h.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		for _, headline := range extractHeadlines(doc, selector) {
			if _, ok := seen[headline]; ok {
				continue
			}
			seen[headline] = struct{}{}
			results = append(results, domain.TopicCandidate{
				Site:     req.Site,
				Topic:    headline,
				Category: req.Category,
				Priority: req.Priority,
			})
			if len(results) == limit {
				break
			}
		}
	}

	return results, nil
}

func (h *HTMLScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "AutoPublisher/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", pageURL, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func extractHeadlines(doc *goquery.Document, selector string) []string {
	var out []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text == "" {
			return
		}
		if r := []rune(text); len(r) > maxTopicRunes {
			text = strings.TrimSpace(string(r[:maxTopicRunes]))
		}
		out = append(out, text)
	})
	return out
}

func buildPageURL(base string, page int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid source url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("page", strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func intOption(opts map[string]string, key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(opts[key]))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
