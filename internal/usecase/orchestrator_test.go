package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AutoPublisher/internal/domain"
)

func TestRunPublishesCalendarEntry(t *testing.T) {
	f := newOrchestratorFixture(3, false)
	seedEntries(f.store, entry(aug26, "unpre", "프로그래밍", "JWT 토큰 기반 시큐리티 구현"))
	ctx := context.Background()

	outcome, err := f.orch.Run(ctx, RunRequest{SlotID: "unpre_1_12_0", Site: "unpre", Date: aug26.In(kst).Add(12 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, outcome.State)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, domain.SourceCalendar, outcome.Source)
	assert.NotEmpty(t, outcome.URL)
	assert.Equal(t, []int{DefaultImageCount}, f.publisher.images)

	entries, err := f.store.Lookup(ctx, aug26, "unpre")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SchedulePublished, entries[0].Status)
	assert.Equal(t, outcome.URL, entries[0].PublishedURL)

	history := f.store.History()
	require.Len(t, history, 1)
	assert.Equal(t, outcome.URL, history[0].URL)
	assert.Equal(t, domain.HashTitle(history[0].Title), history[0].TitleHash)
	assert.Equal(t, entries[0].GeneratedContentID, history[0].ID)

	ledger, err := f.store.OutcomesForDay(ctx, aug26)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, outcome.ID, ledger[0].ID)

	again, err := f.orch.Run(ctx, RunRequest{Site: "unpre", Date: aug26.In(kst)})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSkippedNoTopic, again.State, "a relaunched slot never republishes")
	assert.Len(t, f.store.History(), 1)
}

func TestRunRetriesExactlyMaxRetriesThenFails(t *testing.T) {
	f := newOrchestratorFixture(3, false)
	seedEntries(f.store, entry(aug26, "unpre", "프로그래밍", "JWT"))
	f.generator.fail = []error{errTransient, errTransient, errTransient, errTransient}
	ctx := context.Background()

	outcome, err := f.orch.Run(ctx, RunRequest{Site: "unpre", Date: aug26.In(kst)})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, errTransient)

	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.StageGenerating, stageErr.Stage)

	assert.Equal(t, domain.RunFailed, outcome.State)
	assert.Equal(t, 4, outcome.Attempts)
	assert.Equal(t, 4, f.generator.Calls())
	assert.Equal(t, []time.Duration{5 * time.Minute, 5 * time.Minute, 5 * time.Minute}, f.waits)
	assert.Contains(t, outcome.Error, "upstream timeout")
	assert.Empty(t, f.store.History(), "no partial content record")

	entries, err := f.store.Lookup(ctx, aug26, "unpre")
	require.NoError(t, err)
	assert.Equal(t, domain.SchedulePlanned, entries[0].Status)

	// A later run picks the same entry up and succeeds.
	outcome, err = f.orch.Run(ctx, RunRequest{Site: "unpre", Date: aug26.In(kst)})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, outcome.State)

	ledger, err := f.store.OutcomesForDay(ctx, aug26)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, domain.RunFailed, ledger[0].State)
	assert.Equal(t, domain.RunSuccess, ledger[1].State)
}

func TestRunRecoversAfterPublishFailures(t *testing.T) {
	f := newOrchestratorFixture(3, false)
	seedEntries(f.store, entry(aug26, "unpre", "프로그래밍", "JWT"))
	f.publisher.fail = []error{errTransient}
	f.publisher.reject = 2

	outcome, err := f.orch.Run(context.Background(), RunRequest{Site: "unpre", Date: aug26.In(kst)})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, outcome.State)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Len(t, f.waits, 2)
	assert.Len(t, f.store.History(), 1)
}

func TestRunWithoutTopicIsSkipped(t *testing.T) {
	f := newOrchestratorFixture(3, false)

	outcome, err := f.orch.Run(context.Background(), RunRequest{Site: "unpre", Date: aug26.In(kst)})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSkippedNoTopic, outcome.State)
	assert.Zero(t, f.generator.Calls())
}

func TestRunDuplicateTopicIsSkipped(t *testing.T) {
	f := newOrchestratorFixture(3, false)
	seedHistory(f.store, "unpre", "JWT 토큰 기반 시큐리티 구현")
	seedEntries(f.store, entry(aug26, "unpre", "프로그래밍", "JWT 토큰 기반 시큐리티 구현"))

	outcome, err := f.orch.Run(context.Background(), RunRequest{Site: "unpre", Date: aug26.In(kst)})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSkippedDuplicate, outcome.State)
	assert.Zero(t, f.generator.Calls())
	assert.Len(t, f.store.History(), 1)
}

func TestRunDuplicateGeneratedTitleIsRetried(t *testing.T) {
	f := newOrchestratorFixture(1, false)
	seedHistory(f.store, "unpre", "이미 발행된 제목")
	seedEntries(f.store, entry(aug26, "unpre", "프로그래밍", "JWT"))
	f.generator.title = "이미 발행된 제목"

	outcome, err := f.orch.Run(context.Background(), RunRequest{Site: "unpre", Date: aug26.In(kst)})
	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, outcome.State)
	assert.Equal(t, 2, f.generator.Calls())
	assert.Zero(t, f.publisher.calls)
}

func TestRunImageFailure(t *testing.T) {
	t.Run("tolerated when images are optional", func(t *testing.T) {
		f := newOrchestratorFixture(0, false)
		seedEntries(f.store, entry(aug26, "unpre", "프로그래밍", "JWT"))
		f.images.err = errors.New("render quota")

		outcome, err := f.orch.Run(context.Background(), RunRequest{Site: "unpre", Date: aug26.In(kst)})
		require.NoError(t, err)
		assert.Equal(t, domain.RunSuccess, outcome.State)
		assert.Equal(t, []int{0}, f.publisher.images)
	})

	t.Run("fails generation when images are required", func(t *testing.T) {
		f := newOrchestratorFixture(0, true)
		seedEntries(f.store, entry(aug26, "unpre", "프로그래밍", "JWT"))
		f.images.err = errors.New("render quota")

		outcome, err := f.orch.Run(context.Background(), RunRequest{Site: "unpre", Date: aug26.In(kst)})
		require.Error(t, err)
		assert.Equal(t, domain.RunFailed, outcome.State)
		assert.Zero(t, f.publisher.calls)
	})
}

func TestRunInvalidContentIsGenerationFailure(t *testing.T) {
	f := newOrchestratorFixture(0, false)
	seedEntries(f.store, entry(aug26, "unpre", "프로그래밍", "JWT"))
	f.generator.title = "   "

	_, err := f.orch.Run(context.Background(), RunRequest{Site: "unpre", Date: aug26.In(kst)})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidContent)
}

func TestRunUnknownSiteFails(t *testing.T) {
	f := newOrchestratorFixture(3, false)

	outcome, err := f.orch.Run(context.Background(), RunRequest{Site: "nope", Date: aug26.In(kst)})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownSite)
	assert.Equal(t, domain.RunFailed, outcome.State)
	assert.Zero(t, outcome.Attempts)
}

func TestRunStopsRetryingWhenContextEnds(t *testing.T) {
	f := newOrchestratorFixture(3, false)
	seedEntries(f.store, entry(aug26, "unpre", "프로그래밍", "JWT"))
	f.generator.fail = []error{errTransient, errTransient, errTransient, errTransient}
	f.orch.wait = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := f.orch.Run(ctx, RunRequest{Site: "unpre", Date: aug26.In(kst)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, errTransient, "the last attempt error is kept")
	assert.NotErrorIs(t, err, domain.ErrMaxRetriesExceeded, "cancellation is not retry exhaustion")
	assert.Contains(t, outcome.Error, "retry interrupted after 1 attempts")
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 1, f.generator.Calls())

	ledger, err := f.store.OutcomesForDay(context.Background(), aug26)
	require.NoError(t, err)
	assert.Len(t, ledger, 1, "the terminal state is recorded even after cancellation")
}

func TestRunNotesEntryPublishedByAnotherRun(t *testing.T) {
	f := newOrchestratorFixture(0, false)
	e := entry(aug26, "unpre", "프로그래밍", "JWT")
	seedEntries(f.store, e)
	ctx := context.Background()
	key := e.Key()
	f.publisher.onPublish = func() {
		_, marked, err := f.store.RecordPublished(ctx, domain.ContentRecord{Site: "unpre", Title: "JWT", URL: "https://unpre.example/first"}, &key)
		require.NoError(t, err)
		require.True(t, marked)
	}

	outcome, err := f.orch.Run(ctx, RunRequest{Site: "unpre", Date: aug26.In(kst)})
	require.NoError(t, err)
	assert.Equal(t, domain.RunSuccess, outcome.State)
	assert.Contains(t, outcome.Error, domain.ErrEntryAlreadyPublished.Error())

	entries, err := f.store.Lookup(ctx, aug26, "unpre")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://unpre.example/first", entries[0].PublishedURL, "the first run keeps the entry")
	assert.Len(t, f.store.History(), 2)
}

func TestRunSitesRunsEverySite(t *testing.T) {
	f := newOrchestratorFixture(0, false)
	seedEntries(f.store,
		entry(aug26, "unpre", "프로그래밍", "JWT"),
		entry(aug26, "untab", "부동산", "경매 입문"),
	)

	outcomes, err := f.orch.RunSites(context.Background(), nil, aug26.In(kst), 2)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "unpre", outcomes[0].Site)
	assert.Equal(t, "untab", outcomes[1].Site)
	for _, o := range outcomes {
		assert.Equal(t, domain.RunSuccess, o.State)
	}
}
