package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AutoPublisher/internal/domain"
)

type namedScanner string

func (n namedScanner) Name() string { return string(n) }

func (n namedScanner) Scan(context.Context, Request) ([]domain.TopicCandidate, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(namedScanner("seed"), namedScanner("html"))

	s, err := reg.Resolve("seed")
	require.NoError(t, err)
	assert.Equal(t, "seed", s.Name())

	_, err = reg.Resolve("rss")
	assert.ErrorContains(t, err, "rss")
	assert.Equal(t, []string{"html", "seed"}, reg.Names())
}
