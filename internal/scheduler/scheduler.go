// Package scheduler refreshes fetchable collections on a recurring
// schedule, either a CRON expression or a fixed interval.
//
// Each tick refreshes every registered collection concurrently. A failing
// collection is logged and retried per the configured retry policy; it
// never stops the others, and it is fetched again on the next tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"golang.org/x/sync/errgroup"

	"github.com/gscoppino/STEM/internal/errhandling"
	"github.com/gscoppino/STEM/internal/logger"
)

// Common errors
var (
	ErrNoSchedule     = errors.New("either a schedule or an interval is required")
	ErrInvalidCron    = errors.New("invalid CRON expression")
	ErrAlreadyRunning = errors.New("scheduler is already running")
	ErrNotRunning     = errors.New("scheduler is not running")
	ErrNilRefresher   = errors.New("refresher is nil")
)

// Refresher is something the scheduler can refresh.
// *collection.Collection satisfies it.
type Refresher interface {
	Name() string
	Fetch(ctx context.Context) error
}

// Options configure a Scheduler. Schedule wins over Interval when both are
// set.
type Options struct {
	Schedule string
	Interval time.Duration
	Retry    errhandling.RetryConfig
	// MaxConcurrent bounds parallel refreshes per tick (0 = unbounded).
	MaxConcurrent int
}

// Scheduler runs periodic refreshes.
type Scheduler struct {
	cron          *cronexpr.Expression
	interval      time.Duration
	retry         errhandling.RetryConfig
	maxConcurrent int

	mu         sync.Mutex
	refreshers map[string]Refresher
	running    bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// ValidateCronExpression reports whether expr is a valid CRON expression.
func ValidateCronExpression(expr string) error {
	if expr == "" {
		return fmt.Errorf("%w: empty expression", ErrInvalidCron)
	}
	if _, err := cronexpr.Parse(expr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCron, err)
	}
	return nil
}

// New creates a scheduler from opts.
func New(opts Options) (*Scheduler, error) {
	s := &Scheduler{
		interval:      opts.Interval,
		retry:         opts.Retry,
		maxConcurrent: opts.MaxConcurrent,
		refreshers:    make(map[string]Refresher),
	}

	switch {
	case opts.Schedule != "":
		expr, err := cronexpr.Parse(opts.Schedule)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCron, err)
		}
		s.cron = expr
	case opts.Interval > 0:
	default:
		return nil, ErrNoSchedule
	}

	if s.retry.BackoffMultiplier == 0 {
		s.retry = errhandling.DefaultRetryConfig()
		s.retry.MaxAttempts = opts.Retry.MaxAttempts
	}
	if err := s.retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return s, nil
}

// Register adds r, replacing any refresher with the same name.
func (s *Scheduler) Register(r Refresher) error {
	if r == nil {
		return ErrNilRefresher
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshers[r.Name()] = r
	return nil
}

// Unregister removes the refresher named name.
func (s *Scheduler) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshers, name)
}

// Names returns the registered names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.refreshers))
	for name := range s.refreshers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRun returns the first run time strictly after t.
func (s *Scheduler) NextRun(t time.Time) time.Time {
	if s.cron != nil {
		return s.cron.Next(t)
	}
	return t.Add(s.interval)
}

// Start runs the schedule in the background until ctx is done or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(runCtx, s.done)

	logger.Info("scheduler started",
		slog.Int("collections", len(s.refreshers)),
		slog.Time("next_run", s.NextRun(time.Now())),
	)
	return nil
}

// Stop cancels the schedule and waits for an in-progress tick to finish or
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the schedule is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		next := s.NextRun(time.Now())
		if next.IsZero() {
			logger.Warn("schedule has no future run time")
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.RefreshAll(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("scheduled refresh completed with failures",
				slog.String("error", err.Error()),
			)
		}
	}
}

// RefreshAll refreshes every registered collection once, concurrently.
// It returns the joined errors of the collections that still failed after
// retries; a failure never cancels the other refreshes.
func (s *Scheduler) RefreshAll(ctx context.Context) error {
	s.mu.Lock()
	refreshers := make([]Refresher, 0, len(s.refreshers))
	for _, r := range s.refreshers {
		refreshers = append(refreshers, r)
	}
	s.mu.Unlock()

	sort.Slice(refreshers, func(i, j int) bool { return refreshers[i].Name() < refreshers[j].Name() })

	var g errgroup.Group
	if s.maxConcurrent > 0 {
		g.SetLimit(s.maxConcurrent)
	}

	errs := make([]error, len(refreshers))
	start := time.Now()
	for i, r := range refreshers {
		i, r := i, r // per-iteration copy (go directive is 1.21)
		g.Go(func() error {
			errs[i] = s.refresh(ctx, r)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	logger.Debug("refresh tick finished",
		slog.Int("collections", len(refreshers)),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)),
	)
	return errors.Join(errs...)
}

func (s *Scheduler) refresh(ctx context.Context, r Refresher) error {
	err := errhandling.Retry(ctx, s.retry, r.Fetch, func(attempt int, err error, delay time.Duration) {
		logger.Warn("refresh failed, retrying",
			slog.String("collection", r.Name()),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
	})
	if err == nil {
		return nil
	}
	if errhandling.IsAborted(err) {
		// A newer fetch of the same collection owns the outcome.
		return nil
	}

	logger.Error("refresh failed",
		slog.String("collection", r.Name()),
		slog.String("category", string(errhandling.GetErrorCategory(err))),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%s: %w", r.Name(), err)
}
