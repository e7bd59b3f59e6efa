// Package scheduler runs automatic report generation at fixed local times.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultTimezone               = "Asia/Ho_Chi_Minh"
	DefaultMaxConsecutiveFailures = 3
	DefaultProgressRetention      = time.Hour
	pruneSpec                     = "@hourly"
)

var (
	ErrNoTimes     = errors.New("at least one schedule time is required")
	ErrInvalidTime = errors.New("invalid schedule time")
	ErrRunning     = errors.New("scheduler already running")
)

// Runner generates one report. A nil error means a report was published.
type Runner interface {
	RunScheduled(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) RunScheduled(ctx context.Context) error {
	return f(ctx)
}

// Pruner drops finished progress records older than maxAge.
type Pruner interface {
	Prune(maxAge time.Duration) int
}

type Config struct {
	Enabled                bool          `yaml:"enabled"`
	Timezone               string        `yaml:"timezone" validate:"required"`
	Times                  []string      `yaml:"times" validate:"min=1,dive,datetime=15:04"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" validate:"gte=1"`
	ProgressRetention      time.Duration `yaml:"progress_retention" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:                true,
		Timezone:               DefaultTimezone,
		Times:                  []string{"07:30", "15:00", "19:00"},
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		ProgressRetention:      DefaultProgressRetention,
	}
}

// Specs converts the configured wall-clock times into cron expressions
// pinned to the configured timezone.
func (c Config) Specs() ([]string, error) {
	if len(c.Times) == 0 {
		return nil, ErrNoTimes
	}

	tz := c.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}

	if _, err := time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}

	specs := make([]string, 0, len(c.Times))

	for _, at := range c.Times {
		hour, minute, err := parseClock(at)
		if err != nil {
			return nil, err
		}

		specs = append(specs, fmt.Sprintf("CRON_TZ=%s %d %d * * *", tz, minute, hour))
	}

	return specs, nil
}

func parseClock(at string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(at), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, at)
	}

	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, at)
	}

	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, at)
	}

	return hour, minute, nil
}

// Next returns the first slot strictly after now.
func (c Config) Next(now time.Time) (time.Time, error) {
	specs, err := c.Specs()
	if err != nil {
		return time.Time{}, err
	}

	var next time.Time

	for _, spec := range specs {
		schedule, err := cron.ParseStandard(spec)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid schedule %q: %w", spec, err)
		}

		candidate := schedule.Next(now)
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}

	return next, nil
}

type Status struct {
	Enabled             bool       `json:"enabled"`
	Running             bool       `json:"running"`
	Generating          bool       `json:"generating"`
	Timezone            string     `json:"timezone"`
	Times               []string   `json:"times"`
	NextRun             *time.Time `json:"next_run,omitempty"`
	LastRun             *time.Time `json:"last_run,omitempty"`
	LastSuccess         *time.Time `json:"last_success,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	SkipNext            bool       `json:"skip_next"`
	TotalRuns           int        `json:"total_runs"`
}

type Scheduler struct {
	cfg    Config
	runner Runner
	pruner Pruner
	logger *slog.Logger
	now    func() time.Time

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	generating  bool
	failures    int
	skipNext    bool
	totalRuns   int
	lastRun     time.Time
	lastSuccess time.Time
	lastError   string
}

type Option func(*Scheduler)

// WithPruner registers an hourly prune of finished progress records.
func WithPruner(p Pruner) Option {
	return func(s *Scheduler) {
		s.pruner = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

func New(cfg Config, runner Runner, logger *slog.Logger, opts ...Option) *Scheduler {
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}

	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}

	s := &Scheduler{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("module", "scheduler"),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start registers one cron entry per slot and starts the cron loop. Jobs run
// with a context derived from ctx, so cancelling it aborts in-flight runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrRunning
	}

	specs, err := s.cfg.Specs()
	if err != nil {
		return err
	}

	logger := cronLogger{logger: s.logger}
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(logger),
		cron.Recover(logger),
	))

	for _, spec := range specs {
		if _, err := c.AddFunc(spec, s.runSlot); err != nil {
			return fmt.Errorf("failed to add schedule %q: %w", spec, err)
		}
	}

	if s.pruner != nil && s.cfg.ProgressRetention > 0 {
		if _, err := c.AddFunc(pruneSpec, s.prune); err != nil {
			return fmt.Errorf("failed to add prune job: %w", err)
		}
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = c
	c.Start()

	s.logger.Info("scheduler started", "timezone", s.cfg.Timezone, "times", s.cfg.Times)

	return nil
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	done := c.Stop()

	select {
	case <-done.Done():
	case <-ctx.Done():
		cancel()
		<-done.Done()

		return ctx.Err()
	}

	cancel()
	s.logger.Info("scheduler stopped")

	return nil
}

func (s *Scheduler) runSlot() {
	s.mu.Lock()

	if s.skipNext {
		s.skipNext = false
		s.failures = 0
		s.mu.Unlock()

		s.logger.Warn("skipping scheduled generation after consecutive failures",
			"max_consecutive_failures", s.cfg.MaxConsecutiveFailures)

		return
	}

	if s.generating {
		s.mu.Unlock()
		s.logger.Warn("previous scheduled generation still running, skipping slot")

		return
	}

	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	s.generating = true
	s.totalRuns++
	s.lastRun = s.now()
	s.mu.Unlock()

	s.logger.Info("starting scheduled report generation")

	err := s.runner.RunScheduled(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.generating = false

	if err != nil {
		s.failures++
		s.lastError = err.Error()

		s.logger.Error("scheduled report generation failed",
			"error", err, "consecutive_failures", s.failures)

		if s.failures >= s.cfg.MaxConsecutiveFailures {
			s.skipNext = true
		}

		return
	}

	s.failures = 0
	s.lastError = ""
	s.lastSuccess = s.now()

	s.logger.Info("scheduled report generation finished")
}

func (s *Scheduler) prune() {
	removed := s.pruner.Prune(s.cfg.ProgressRetention)
	s.logger.Debug("pruned progress records", "removed", removed)
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Enabled:             s.cfg.Enabled,
		Running:             s.cron != nil,
		Generating:          s.generating,
		Timezone:            s.cfg.Timezone,
		Times:               append([]string(nil), s.cfg.Times...),
		LastError:           s.lastError,
		ConsecutiveFailures: s.failures,
		SkipNext:            s.skipNext,
		TotalRuns:           s.totalRuns,
	}

	if next, err := s.cfg.Next(s.now()); err == nil {
		status.NextRun = &next
	}

	if !s.lastRun.IsZero() {
		last := s.lastRun
		status.LastRun = &last
	}

	if !s.lastSuccess.IsZero() {
		last := s.lastSuccess
		status.LastSuccess = &last
	}

	return status
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
