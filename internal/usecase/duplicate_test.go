package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AutoPublisher/internal/infrastructure/storage/memory"
)

func TestIsDuplicateExactMatchIsScopedToSite(t *testing.T) {
	store := memory.New()
	seedHistory(store, "unpre", "JWT 토큰 기반 시큐리티 구현")
	detector := NewDuplicateDetector(store, 0, 0)
	ctx := context.Background()

	dup, err := detector.IsDuplicate(ctx, "unpre", "  JWT 토큰 기반 시큐리티 구현 ")
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = detector.IsDuplicate(ctx, "untab", "JWT 토큰 기반 시큐리티 구현")
	require.NoError(t, err)
	assert.False(t, dup, "other sites never collide")
}

func TestCheckJaccardThreshold(t *testing.T) {
	store := memory.New()
	seedHistory(store, "unpre", "a b c d e f g h i j")
	detector := NewDuplicateDetector(store, 0, 0)
	ctx := context.Background()

	tests := []struct {
		name  string
		title string
		want  bool
	}{
		{name: "seven of ten tokens", title: "a b c d e f g", want: true},
		{name: "case folded", title: "A B C D E F G H", want: true},
		{name: "six of ten tokens", title: "a b c d e f", want: false},
		{name: "no shared tokens", title: "x y z", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := detector.Check(ctx, "unpre", tt.title)
			require.NoError(t, err)
			assert.Equal(t, tt.want, verdict.Duplicate, "similarity %.2f", verdict.Similarity)
			assert.False(t, verdict.Exact)
		})
	}
}

func TestCheckNeverFlagsDisjointTitles(t *testing.T) {
	store := memory.New()
	seedHistory(store, "unpre", "alpha beta")
	detector := NewDuplicateDetector(store, 0.01, 0)

	verdict, err := detector.Check(context.Background(), "unpre", "gamma delta")
	require.NoError(t, err)
	assert.False(t, verdict.Duplicate)
	assert.Zero(t, verdict.Similarity)
}

func TestCheckOnlyScansRecentWindow(t *testing.T) {
	store := memory.New()
	seedHistory(store, "unpre", "kubernetes operator pattern guide", "sourdough bread at home")
	detector := NewDuplicateDetector(store, 0, 1)

	verdict, err := detector.Check(context.Background(), "unpre", "kubernetes operator pattern guide 2025")
	require.NoError(t, err)
	assert.False(t, verdict.Duplicate, "older titles fall outside the window")
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("Go Generics", "go generics"), 1e-9)
	assert.InDelta(t, 0.5, Similarity("a b", "a b c d"), 1e-9)
	assert.Zero(t, Similarity("", "a"))
}
