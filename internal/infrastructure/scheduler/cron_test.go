package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AutoPublisher/internal/infrastructure/storage/memory"
	"AutoPublisher/internal/ports"
)

var (
	kst     = time.FixedZone("KST", 9*60*60)
	discard = slog.New(slog.NewTextHandler(io.Discard, nil))
	// Monday 2025-08-25 12:00 KST.
	mondayNoon = time.Date(2025, 8, 25, 12, 0, 0, 0, kst)
)

func newTestDispatcher(now time.Time, opts ...Option) *Dispatcher {
	opts = append([]Option{WithLocation(kst), WithLogger(discard)}, opts...)
	d := NewDispatcher(opts...)
	d.now = func() time.Time { return now }
	return d
}

func TestRegisterValidates(t *testing.T) {
	d := newTestDispatcher(mondayNoon)
	job := func(context.Context, time.Time) {}

	require.NoError(t, d.Register(ports.Trigger{ID: "unpre_0_12_0", Spec: "0 12 * * 1", Slot: true, Job: job}))
	assert.Error(t, d.Register(ports.Trigger{ID: "unpre_0_12_0", Spec: "0 12 * * 1", Job: job}), "duplicate id")
	assert.Error(t, d.Register(ports.Trigger{ID: "bad", Spec: "every day", Job: job}))
	assert.Error(t, d.Register(ports.Trigger{ID: "nojob", Spec: "@daily"}))

	require.NoError(t, d.Start(context.Background()))
	assert.Error(t, d.Register(ports.Trigger{ID: "late", Spec: "@daily", Job: job}))
	require.NoError(t, d.Stop(context.Background()))
}

func TestSlotRunsOneInstanceAtATime(t *testing.T) {
	d := newTestDispatcher(mondayNoon)
	require.NoError(t, d.Start(context.Background()))

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var calls atomic.Int32
	trigger := ports.Trigger{ID: "unpre_0_12_0", Slot: true, Job: func(context.Context, time.Time) {
		calls.Add(1)
		started <- struct{}{}
		<-release
	}}

	d.fire(trigger, mondayNoon)
	<-started
	d.fire(trigger, mondayNoon)

	close(release)
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	d := newTestDispatcher(mondayNoon, WithWorkers(2))
	require.NoError(t, d.Start(context.Background()))

	var (
		running, peak atomic.Int32
		wg            sync.WaitGroup
	)
	release := make(chan struct{})
	wg.Add(5)
	for i := 0; i < 5; i++ {
		d.fire(ports.Trigger{ID: string(rune('a' + i)), Slot: true, Job: func(context.Context, time.Time) {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		}}, mondayNoon)
	}

	assert.Eventually(t, func() bool { return running.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, int32(2), peak.Load())
}

func TestMisfireBeyondGraceIsSkipped(t *testing.T) {
	store := memory.New()
	d := newTestDispatcher(mondayNoon.Add(2*time.Hour), WithWatermarks(store))
	require.NoError(t, d.Start(context.Background()))

	var calls atomic.Int32
	d.fire(ports.Trigger{ID: "unpre_0_12_0", Slot: true, Job: func(context.Context, time.Time) { calls.Add(1) }}, mondayNoon)
	require.NoError(t, d.Stop(context.Background()))

	assert.Zero(t, calls.Load())
	marks, err := store.LoadWatermarks(context.Background())
	require.NoError(t, err)
	assert.True(t, marks["unpre_0_12_0"].Equal(mondayNoon), "dropped runs still advance the watermark")
}

func TestMaintenanceIgnoresMisfireGrace(t *testing.T) {
	d := newTestDispatcher(mondayNoon.Add(2 * time.Hour))
	require.NoError(t, d.Start(context.Background()))

	var calls atomic.Int32
	d.fire(ports.Trigger{ID: "daily_report", Job: func(context.Context, time.Time) { calls.Add(1) }}, mondayNoon)
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, int32(1), calls.Load())
}

func TestStartCatchesUpMissedSlotWithinGrace(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		now         time.Time
		noWatermark bool
		want        int32
	}{
		{name: "thirty minutes late", now: mondayNoon.Add(30 * time.Minute), want: 1},
		{name: "two hours late", now: mondayNoon.Add(2 * time.Hour), want: 0},
		{name: "never fired, thirty minutes late", now: mondayNoon.Add(30 * time.Minute), noWatermark: true, want: 1},
		{name: "never fired, two hours late", now: mondayNoon.Add(2 * time.Hour), noWatermark: true, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			if !tt.noWatermark {
				require.NoError(t, store.SaveWatermark(ctx, "unpre_0_12_0", mondayNoon.AddDate(0, 0, -7)))
			}

			d := newTestDispatcher(tt.now, WithWatermarks(store))
			var (
				calls atomic.Int32
				got   atomic.Value
			)
			require.NoError(t, d.Register(ports.Trigger{ID: "unpre_0_12_0", Spec: "0 12 * * 1", Slot: true,
				Job: func(_ context.Context, at time.Time) {
					calls.Add(1)
					got.Store(at)
				}}))

			require.NoError(t, d.Start(ctx))
			require.NoError(t, d.Stop(ctx))

			assert.Equal(t, tt.want, calls.Load())
			if tt.want > 0 {
				assert.True(t, got.Load().(time.Time).Equal(mondayNoon))
				marks, err := store.LoadWatermarks(ctx)
				require.NoError(t, err)
				assert.True(t, marks["unpre_0_12_0"].Equal(mondayNoon))
			}
		})
	}
}

func TestStartSkipsSlotsAlreadyHandled(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.SaveWatermark(ctx, "unpre_0_12_0", mondayNoon))

	d := newTestDispatcher(mondayNoon.Add(10*time.Minute), WithWatermarks(store))
	var calls atomic.Int32
	require.NoError(t, d.Register(ports.Trigger{ID: "unpre_0_12_0", Spec: "0 12 * * 1", Slot: true,
		Job: func(context.Context, time.Time) { calls.Add(1) }}))

	require.NoError(t, d.Start(ctx))
	require.NoError(t, d.Stop(ctx))
	assert.Zero(t, calls.Load())
}

func TestStopCancelsJobsWhenDeadlinePasses(t *testing.T) {
	d := newTestDispatcher(mondayNoon)
	require.NoError(t, d.Start(context.Background()))

	started := make(chan struct{})
	d.fire(ports.Trigger{ID: "slow", Slot: true, Job: func(ctx context.Context, _ time.Time) {
		close(started)
		<-ctx.Done()
	}}, mondayNoon)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)
}

func TestPanickingJobIsRecovered(t *testing.T) {
	d := newTestDispatcher(mondayNoon)
	require.NoError(t, d.Start(context.Background()))

	d.fire(ports.Trigger{ID: "boom", Job: func(context.Context, time.Time) { panic("boom") }}, mondayNoon)
	assert.NoError(t, d.Stop(context.Background()))
}
