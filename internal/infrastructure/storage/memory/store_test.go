package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AutoPublisher/internal/domain"
)

func entry(day domain.DayKey, site, category, topic string) domain.ScheduleEntry {
	return domain.ScheduleEntry{Day: day, Site: site, TopicCategory: category, SpecificTopic: topic, TargetLength: "medium"}
}

func TestUpsertRangeTwiceLeavesSecondSet(t *testing.T) {
	ctx := context.Background()
	store := New()
	day := domain.DayKeyFromYMD(2025, time.August, 26)
	week := domain.WeekOf(day)

	first := []domain.ScheduleEntry{
		entry(day, "unpre", "프로그래밍", "JWT"),
		entry(day, "unpre", "언어학습", "토익"),
		entry(day.AddDays(1), "unpre", "프로그래밍", "Docker"),
	}
	second := []domain.ScheduleEntry{
		entry(day, "unpre", "프로그래밍", "JWT 토큰 기반 시큐리티 구현"),
		entry(day.AddDays(2), "unpre", "IT", "Kubernetes"),
	}

	require.NoError(t, store.UpsertRange(ctx, week, first))
	require.NoError(t, store.UpsertRange(ctx, week, second))

	count, err := store.CountInPeriod(ctx, week)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := store.Lookup(ctx, day, "unpre")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "JWT 토큰 기반 시큐리티 구현", got[0].SpecificTopic)
	assert.Equal(t, domain.SchedulePlanned, got[0].Status)
}

func TestUpsertRangeKeepsPublishedStatus(t *testing.T) {
	ctx := context.Background()
	store := New()
	day := domain.DayKeyFromYMD(2025, time.August, 26)
	e := entry(day, "unpre", "프로그래밍", "JWT")

	require.NoError(t, store.UpsertRange(ctx, domain.WeekOf(day), []domain.ScheduleEntry{e}))
	key := e.Key()
	_, _, err := store.RecordPublished(ctx, domain.ContentRecord{Site: "unpre", Title: "JWT", URL: "https://unpre.co.kr/jwt"}, &key)
	require.NoError(t, err)

	e.SpecificTopic = "JWT 개정판"
	require.NoError(t, store.UpsertRange(ctx, domain.WeekOf(day), []domain.ScheduleEntry{e}))

	got, err := store.Lookup(ctx, day, "unpre")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "JWT 개정판", got[0].SpecificTopic)
	assert.Equal(t, domain.SchedulePublished, got[0].Status)
	assert.Equal(t, "https://unpre.co.kr/jwt", got[0].PublishedURL)
}

func TestRecordPublishedReportsWhetherEntryWasMarked(t *testing.T) {
	ctx := context.Background()
	store := New()
	day := domain.DayKeyFromYMD(2025, time.August, 26)
	e := entry(day, "unpre", "프로그래밍", "JWT")
	require.NoError(t, store.UpsertRange(ctx, domain.WeekOf(day), []domain.ScheduleEntry{e}))
	key := e.Key()

	first, marked, err := store.RecordPublished(ctx, domain.ContentRecord{Site: "unpre", Title: "JWT", URL: "https://a"}, &key)
	require.NoError(t, err)
	assert.True(t, marked)

	second, marked, err := store.RecordPublished(ctx, domain.ContentRecord{Site: "unpre", Title: "JWT", URL: "https://b"}, &key)
	require.NoError(t, err)
	assert.False(t, marked, "an already published entry is not marked twice")
	assert.NotEqual(t, first, second)

	_, marked, err = store.RecordPublished(ctx, domain.ContentRecord{Site: "unpre", Title: "pool"}, nil)
	require.NoError(t, err)
	assert.False(t, marked)

	got, err := store.Lookup(ctx, day, "unpre")
	require.NoError(t, err)
	assert.Equal(t, "https://a", got[0].PublishedURL)
}

func TestRegeneratePeriodReplacesPlannedOnly(t *testing.T) {
	ctx := context.Background()
	store := New()
	day := domain.DayKeyFromYMD(2025, time.September, 3)
	month := domain.MonthOf(day)

	published := entry(day, "untab", "투자", "리츠")
	require.NoError(t, store.RegeneratePeriod(ctx, month, []domain.ScheduleEntry{
		published,
		entry(day.AddDays(1), "untab", "투자", "공모주"),
	}))
	key := published.Key()
	_, _, err := store.RecordPublished(ctx, domain.ContentRecord{Site: "untab", Title: "리츠", URL: "u"}, &key)
	require.NoError(t, err)

	require.NoError(t, store.RegeneratePeriod(ctx, month, []domain.ScheduleEntry{
		entry(day, "untab", "투자", "다른 주제"),
		entry(day.AddDays(5), "untab", "투자", "배당주"),
	}))

	got, err := store.Lookup(ctx, day, "untab")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "리츠", got[0].SpecificTopic)
	assert.Equal(t, domain.SchedulePublished, got[0].Status)

	gone, err := store.Lookup(ctx, day.AddDays(1), "untab")
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestPoolOrderingAndConditionalMark(t *testing.T) {
	ctx := context.Background()
	store := New()

	n, err := store.AddTopics(ctx, []domain.TopicCandidate{
		{Site: "untab", Topic: "low", Priority: 5},
		{Site: "untab", Topic: "high-a", Priority: 9},
		{Site: "untab", Topic: "high-b", Priority: 9},
		{Site: "untab", Topic: "low", Priority: 7},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	next, err := store.NextUnused(ctx, "untab")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "high-a", next.Topic)

	ok, err := store.MarkUsed(ctx, next.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkUsed(ctx, next.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	next, err = store.NextUnused(ctx, "untab")
	require.NoError(t, err)
	assert.Equal(t, "high-b", next.Topic)

	none, err := store.NextUnused(ctx, "skewese")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestWatermarkOnlyMovesForward(t *testing.T) {
	ctx := context.Background()
	store := New()
	t1 := time.Date(2025, 8, 26, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveWatermark(ctx, "unpre_1_12_0", t1))
	require.NoError(t, store.SaveWatermark(ctx, "unpre_1_12_0", t1.Add(-24*time.Hour)))

	marks, err := store.LoadWatermarks(ctx)
	require.NoError(t, err)
	assert.Equal(t, t1, marks["unpre_1_12_0"])
}
