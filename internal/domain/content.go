package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var contentValidator = validator.New(validator.WithRequiredStructEnabled())

// GeneratedContent is the generator's output, validated before it reaches a publisher.
type GeneratedContent struct {
	Title   string   `json:"title" validate:"required,max=200"`
	Body    string   `json:"body" validate:"required"`
	Tags    []string `json:"tags" validate:"max=10,dive,required"`
	Excerpt string   `json:"excerpt,omitempty" validate:"omitempty,max=500"`
}

// Validate enforces the generator boundary contract.
func (c GeneratedContent) Validate() error {
	if strings.TrimSpace(c.Title) == "" || strings.TrimSpace(c.Body) == "" {
		return fmt.Errorf("%w: blank title or body", ErrInvalidContent)
	}
	if err := contentValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContent, err)
	}
	return nil
}

// Image is a rendered illustration handed to the publisher.
type Image struct {
	URL  string `json:"url"`
	Alt  string `json:"alt"`
	Data []byte `json:"-"`
}

// PublishResult is the publisher's verdict.
type PublishResult struct {
	Success bool
	URL     string
	PostID  string
	Error   string
}

// ContentRecord is the append-only history row used by duplicate detection.
type ContentRecord struct {
	ID            int64
	Site          string
	Title         string
	TitleHash     string
	ContentHash   string
	Category      string
	Keywords      []string
	URL           string
	PublishedDate time.Time
}

// HashTitle returns the stable title fingerprint stored in content history.
func HashTitle(title string) string {
	return HashText(strings.TrimSpace(title))
}

// HashText returns hex SHA-256 of text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
