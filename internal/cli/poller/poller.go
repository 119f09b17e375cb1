// Package poller runs the periodic re-fetch behind live views (alerts,
// chat). Each view owns one Task and stops it when the view goes away.
package poller

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TickFunc fetches once. Errors are logged and swallowed.
type TickFunc func(ctx context.Context) error

const (
	defaultBackoffBase = 30 * time.Second
	defaultBackoffMax  = 5 * time.Minute
)

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Task is a cancellable scheduled fetch. Ticks run independently: a slow
// tick never delays the next one.
type Task struct {
	name string
	fn   TickFunc
	log  zerolog.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	backoffBase time.Duration
	backoffMax  time.Duration
	now         func() time.Time
	jitter      func() float64

	mu          sync.Mutex
	failures    int
	resumeAfter time.Time
	stopped     bool
}

// Option configures a Task
type Option func(*Task)

// WithBackoff sets the delay after the first failure and its ceiling
func WithBackoff(base, max time.Duration) Option {
	return func(t *Task) {
		t.backoffBase = base
		t.backoffMax = max
	}
}

// Start schedules fn on spec ("@every 30s", or a cron expression with
// optional seconds) and runs it once immediately.
func Start(ctx context.Context, name, spec string, fn TickFunc, log zerolog.Logger, opts ...Option) (*Task, error) {
	t := newTask(ctx, name, fn, log, opts...)

	schedule, err := parser.Parse(spec)
	if err != nil {
		t.cancel()
		return nil, fmt.Errorf("invalid poll schedule %q: %w", spec, err)
	}

	t.cron = cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger{log: log})),
	)
	t.cron.Schedule(schedule, cron.FuncJob(t.tick))
	t.cron.Start()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.tick()
	}()

	log.Debug().Str("task", name).Str("schedule", spec).Msg("Polling started")
	return t, nil
}

func newTask(ctx context.Context, name string, fn TickFunc, log zerolog.Logger, opts ...Option) *Task {
	tctx, cancel := context.WithCancel(ctx)
	t := &Task{
		name:        name,
		fn:          fn,
		log:         log,
		ctx:         tctx,
		cancel:      cancel,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
		now:         time.Now,
		jitter:      rand.Float64,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Stop cancels in-flight ticks, prevents new ones and waits for running
// ticks to return. It is safe to call more than once.
func (t *Task) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()

	t.cancel()
	if t.cron != nil {
		<-t.cron.Stop().Done()
	}
	t.wg.Wait()
	t.log.Debug().Str("task", t.name).Msg("Polling stopped")
}

// Failures returns the number of consecutive failed ticks
func (t *Task) Failures() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failures
}

func (t *Task) tick() {
	t.mu.Lock()
	if t.stopped || t.ctx.Err() != nil {
		t.mu.Unlock()
		return
	}
	now := t.now()
	if now.Before(t.resumeAfter) {
		t.mu.Unlock()
		t.log.Debug().Str("task", t.name).Time("resume_after", t.resumeAfter).Msg("Skipping tick during backoff")
		return
	}
	t.mu.Unlock()

	err := t.fn(t.ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		t.failures = 0
		t.resumeAfter = time.Time{}
		return
	}
	if t.ctx.Err() != nil {
		return
	}

	t.failures++
	delay := t.backoff(t.failures)
	t.resumeAfter = t.now().Add(delay)
	t.log.Debug().
		Err(err).
		Str("task", t.name).
		Int("failures", t.failures).
		Dur("backoff", delay).
		Msg("Poll failed")
}

// backoff is zero for the first failure, then doubles from backoffBase up to
// backoffMax with ±50% jitter.
func (t *Task) backoff(failures int) time.Duration {
	if failures < 2 {
		return 0
	}
	d := t.backoffBase
	for i := 2; i < failures && d < t.backoffMax; i++ {
		d *= 2
	}
	if d > t.backoffMax {
		d = t.backoffMax
	}
	return time.Duration(float64(d) * (0.5 + t.jitter()))
}

// cronLogger adapts zerolog to cron.Logger
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
