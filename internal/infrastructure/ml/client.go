package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/ports"
)

// Client talks to an external image rendering service.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.ImageGenerator = (*Client)(nil)

// NewClient creates a reusable HTTP client. An empty endpoint disables image generation.
func NewClient(endpoint, apiKey string) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
	}
	if c.endpoint != "" {
		c.http = &http.Client{Timeout: 90 * time.Second}
	}
	return c
}

// GenerateImages requests count illustrations for the post.
func (c *Client) GenerateImages(ctx context.Context, title, body string, count int) ([]domain.Image, error) {
	if c.http == nil || count <= 0 {
		return nil, nil
	}

	payload := map[string]any{
		"title": title,
		"body":  body,
		"count": count,
	}

	var resp struct {
		Images []domain.Image `json:"images"`
	}
	if err := c.post(ctx, "/images", payload, &resp); err != nil {
		return nil, err
	}

	images := resp.Images[:0]
	for _, img := range resp.Images {
		if img.URL == "" {
			continue
		}
		if img.Alt == "" {
			img.Alt = title
		}
		images = append(images, img)
	}
	if len(images) > count {
		images = images[:count]
	}
	return images, nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return fmt.Errorf("unexpected status %s, close body: %v", resp.Status, closeErr)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if v == nil {
		if err := resp.Body.Close(); err != nil {
			return fmt.Errorf("close response body: %w", err)
		}
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		_ = resp.Body.Close()
		return fmt.Errorf("decode response: %w", err)
	}

	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}

	return nil
}
