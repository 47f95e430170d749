package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"AutoPublisher/internal/config"
	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/ports"
)

// Publisher posts content through the WordPress REST API (wp-json/wp/v2).
type Publisher struct {
	site     string
	apiURL   string
	username string
	password string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger

	mu   sync.Mutex
	tags map[string]int
}

var _ ports.Publisher = (*Publisher)(nil)

// NewPublisher builds a publisher for one site. RequestsPerMinute of zero disables throttling.
func NewPublisher(site string, cfg config.WordPressConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(cfg.RequestsPerMinute / 60)
	}
	return &Publisher{
		site:     site,
		apiURL:   strings.TrimRight(cfg.URL, "/") + "/wp-json/wp/v2/",
		username: cfg.Username,
		password: strings.ReplaceAll(cfg.AppPassword, " ", ""),
		client:   &http.Client{Timeout: 60 * time.Second},
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.With("component", "wordpress", "site", site),
		tags:     map[string]int{},
	}
}

type wpPost struct {
	ID   int    `json:"id"`
	Link string `json:"link"`
}

type wpTerm struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Publish creates the post. A 4xx answer is a rejection, not an error.
func (p *Publisher) Publish(ctx context.Context, content domain.GeneratedContent, images []domain.Image, draft bool) (domain.PublishResult, error) {
	if p.username == "" || p.password == "" {
		return domain.PublishResult{}, fmt.Errorf("wordpress %s: missing credentials", p.site)
	}

	body, err := renderContent(content.Body, images)
	if err != nil {
		return domain.PublishResult{}, err
	}
	if strings.TrimSpace(body) == "" {
		return domain.PublishResult{Success: false, Error: "empty content"}, nil
	}

	status := "publish"
	if draft {
		status = "draft"
	}
	payload := map[string]any{
		"title":   content.Title,
		"content": body,
		"excerpt": content.Excerpt,
		"status":  status,
		"format":  "standard",
	}
	if ids := p.tagIDs(ctx, content.Tags); len(ids) > 0 {
		payload["tags"] = ids
	}

	var post wpPost
	code, msg, err := p.do(ctx, http.MethodPost, "posts", payload, &post)
	if err != nil {
		return domain.PublishResult{}, err
	}
	if code >= http.StatusBadRequest {
		p.logger.Warn("post rejected", "status", code, "body", msg)
		return domain.PublishResult{Success: false, Error: fmt.Sprintf("%d: %s", code, msg)}, nil
	}

	p.logger.Info("post created", "id", post.ID, "url", post.Link, "draft", draft)
	return domain.PublishResult{Success: true, URL: post.Link, PostID: strconv.Itoa(post.ID)}, nil
}

// tagIDs resolves names to term ids, creating missing tags. Failures drop the tag.
func (p *Publisher) tagIDs(ctx context.Context, names []string) []int {
	ids := make([]int, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)

		p.mu.Lock()
		id, ok := p.tags[key]
		p.mu.Unlock()
		if !ok {
			var err error
			id, err = p.resolveTag(ctx, name)
			if err != nil {
				p.logger.Debug("skip tag", "tag", name, "error", err)
				continue
			}
			p.mu.Lock()
			p.tags[key] = id
			p.mu.Unlock()
		}
		ids = append(ids, id)
	}
	return ids
}

func (p *Publisher) resolveTag(ctx context.Context, name string) (int, error) {
	var found []wpTerm
	code, msg, err := p.do(ctx, http.MethodGet, "tags?search="+url.QueryEscape(name), nil, &found)
	if err != nil {
		return 0, err
	}
	if code < http.StatusBadRequest {
		for _, t := range found {
			if strings.EqualFold(html.UnescapeString(t.Name), name) {
				return t.ID, nil
			}
		}
	}

	var created wpTerm
	code, msg, err = p.do(ctx, http.MethodPost, "tags", map[string]string{"name": name}, &created)
	if err != nil {
		return 0, err
	}
	if code >= http.StatusBadRequest {
		return 0, fmt.Errorf("create tag: %d %s", code, msg)
	}
	return created.ID, nil
}

// do returns the status code and, for error statuses, a trimmed body.
func (p *Publisher) do(ctx context.Context, method, path string, payload any, v any) (int, string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, "", fmt.Errorf("wordpress rate limit: %w", err)
	}

	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, "", fmt.Errorf("marshal payload: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.apiURL+path, reader)
	if err != nil {
		return 0, "", fmt.Errorf("new request: %w", err)
	}
	req.SetBasicAuth(p.username, p.password)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, strings.TrimSpace(string(raw)), nil
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return resp.StatusCode, "", fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, "", nil
}

// renderContent strips scripts and places one image after each of the first paragraphs.
func renderContent(body string, images []domain.Image) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse content: %w", err)
	}
	doc.Find("script").Remove()

	if len(images) > 0 {
		paragraphs := doc.Find("body > p")
		for i, img := range images {
			figure := fmt.Sprintf(`<figure class="wp-block-image"><img src="%s" alt="%s"/></figure>`,
				html.EscapeString(img.URL), html.EscapeString(img.Alt))
			if i < paragraphs.Length() {
				paragraphs.Eq(i).AfterHtml(figure)
			} else {
				doc.Find("body").AppendHtml(figure)
			}
		}
	}

	out, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("render content: %w", err)
	}
	return strings.TrimSpace(out), nil
}
