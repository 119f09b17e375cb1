package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTick_BackoffAfterRepeatedFailures(t *testing.T) {
	var calls int
	fail := true
	task := newTask(context.Background(), "alerts", func(ctx context.Context) error {
		calls++
		if fail {
			return errors.New("network down")
		}
		return nil
	}, zerolog.Nop(), WithBackoff(10*time.Second, 40*time.Second))

	clock := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	task.now = func() time.Time { return clock }
	task.jitter = func() float64 { return 0.5 }

	// First failure does not delay the next tick
	task.tick()
	require.Equal(t, 1, task.Failures())
	task.tick()
	require.Equal(t, 2, calls)
	require.Equal(t, 2, task.Failures())

	// Second failure backs off by the base delay
	task.tick()
	require.Equal(t, 2, calls)

	clock = clock.Add(11 * time.Second)
	task.tick()
	require.Equal(t, 3, calls)
	require.Equal(t, 3, task.Failures())
	require.Equal(t, clock.Add(20*time.Second), task.resumeAfter)

	fail = false
	clock = clock.Add(21 * time.Second)
	task.tick()
	require.Equal(t, 4, calls)
	require.Zero(t, task.Failures())

	task.tick()
	require.Equal(t, 5, calls)
}

func TestBackoff_CappedAndJittered(t *testing.T) {
	task := newTask(context.Background(), "chat", nil, zerolog.Nop(), WithBackoff(time.Second, 8*time.Second))

	task.jitter = func() float64 { return 0.5 }
	require.Zero(t, task.backoff(1))
	require.Equal(t, time.Second, task.backoff(2))
	require.Equal(t, 2*time.Second, task.backoff(3))
	require.Equal(t, 8*time.Second, task.backoff(10))

	task.jitter = func() float64 { return 0 }
	require.Equal(t, 4*time.Second, task.backoff(10))

	task.jitter = func() float64 { return 0.999 }
	require.Less(t, task.backoff(10), 12*time.Second)
}

func TestStart_RunsImmediatelyAndStops(t *testing.T) {
	var calls atomic.Int32
	task, err := Start(context.Background(), "alerts", "@every 1s", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, zerolog.Nop())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, 3*time.Second, 20*time.Millisecond)

	task.Stop()
	stoppedAt := calls.Load()
	time.Sleep(1500 * time.Millisecond)
	require.Equal(t, stoppedAt, calls.Load())

	task.Stop()
}

func TestStart_SlowTickDoesNotBlockNext(t *testing.T) {
	var started atomic.Int32
	task, err := Start(context.Background(), "slow", "@every 1s", func(ctx context.Context) error {
		started.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}, zerolog.Nop())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return started.Load() >= 2 }, 3*time.Second, 20*time.Millisecond)
	task.Stop()
}

func TestStart_InvalidSchedule(t *testing.T) {
	_, err := Start(context.Background(), "bad", "every now and then", func(ctx context.Context) error { return nil }, zerolog.Nop())
	require.Error(t, err)
}
