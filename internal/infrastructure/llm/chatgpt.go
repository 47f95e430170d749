package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"AutoPublisher/internal/config"
	"AutoPublisher/internal/domain"
	"AutoPublisher/internal/ports"
)

// ChatGPTClient implements ports.ContentGenerator backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.ContentGenerator = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig) *ChatGPTClient {
	return &ChatGPTClient{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate asks the model for a JSON post {title, body, tags, excerpt}.
func (c *ChatGPTClient) Generate(ctx context.Context, req ports.GenerationRequest) (domain.GeneratedContent, error) {
	if c == nil {
		return domain.GeneratedContent{}, fmt.Errorf("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return domain.GeneratedContent{}, fmt.Errorf("chatgpt client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []chatMessage{
			{Role: "system", Content: safePrompt(c.systemPrompt)},
			{Role: "user", Content: buildPrompt(req)},
		},
		"response_format": map[string]string{"type": "json_object"},
	})
	if err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("generate content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.GeneratedContent{}, fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("decode chatgpt response: %w", err)
	}
	if len(out.Choices) == 0 {
		return domain.GeneratedContent{}, fmt.Errorf("chatgpt returned no choices")
	}

	var content domain.GeneratedContent
	if err := json.Unmarshal([]byte(stripFence(out.Choices[0].Message.Content)), &content); err != nil {
		return domain.GeneratedContent{}, fmt.Errorf("%w: %v", domain.ErrInvalidContent, err)
	}
	return content, nil
}

func buildPrompt(req ports.GenerationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a blog post for %s.\n", siteName(req.Site))
	fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	if req.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", req.Category)
	}
	if len(req.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(req.Keywords, ", "))
	}
	fmt.Fprintf(&b, "Length: %s\n", lengthHint(req.TargetLength))
	if req.Site.ContentStyle != "" {
		fmt.Fprintf(&b, "Style: %s\n", req.Site.ContentStyle)
	}
	if req.Site.TargetAudience != "" {
		fmt.Fprintf(&b, "Audience: %s\n", req.Site.TargetAudience)
	}
	if len(req.AvoidTitles) > 0 {
		b.WriteString("Do not reuse or closely paraphrase these recent titles:\n")
		for _, t := range req.AvoidTitles {
			fmt.Fprintf(&b, "- %s\n", t)
		}
	}
	b.WriteString(`Reply with a JSON object: {"title": string, "body": HTML string, "tags": [string], "excerpt": string}.`)
	return b.String()
}

func siteName(p domain.SiteProfile) string {
	if p.Name != "" {
		return p.Name
	}
	return p.Key
}

func lengthHint(target string) string {
	switch target {
	case "short":
		return "about 1000 characters"
	case "long":
		return "about 5000 characters"
	default:
		return "about 2500 characters"
	}
}

// stripFence removes a ```json fence some models add despite json_object mode.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a professional blog writer."
	}
	return prompt
}
