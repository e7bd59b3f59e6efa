package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls int
	errs  []error
}

func (r *countingRunner) RunScheduled(context.Context) error {
	r.calls++

	if len(r.errs) == 0 {
		return nil
	}

	err := r.errs[0]
	r.errs = r.errs[1:]

	return err
}

type countingPruner struct {
	maxAge time.Duration
}

func (p *countingPruner) Prune(maxAge time.Duration) int {
	p.maxAge = maxAge

	return 2
}

func TestConfig_Specs(t *testing.T) {
	specs, err := DefaultConfig().Specs()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"CRON_TZ=Asia/Ho_Chi_Minh 30 7 * * *",
		"CRON_TZ=Asia/Ho_Chi_Minh 0 15 * * *",
		"CRON_TZ=Asia/Ho_Chi_Minh 0 19 * * *",
	}, specs)
}

func TestConfig_SpecsRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "no times", cfg: Config{Timezone: "UTC"}, wantErr: ErrNoTimes},
		{name: "missing colon", cfg: Config{Timezone: "UTC", Times: []string{"0730"}}, wantErr: ErrInvalidTime},
		{name: "hour out of range", cfg: Config{Timezone: "UTC", Times: []string{"24:00"}}, wantErr: ErrInvalidTime},
		{name: "minute out of range", cfg: Config{Timezone: "UTC", Times: []string{"07:60"}}, wantErr: ErrInvalidTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Specs()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := Config{Timezone: "Mars/Olympus", Times: []string{"07:30"}}.Specs()
	assert.Error(t, err)
}

func TestConfig_Next(t *testing.T) {
	loc, err := time.LoadLocation(DefaultTimezone)
	require.NoError(t, err)

	cfg := DefaultConfig()

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before first slot",
			now:  time.Date(2025, 3, 9, 6, 0, 0, 0, loc),
			want: time.Date(2025, 3, 9, 7, 30, 0, 0, loc),
		},
		{
			name: "between slots",
			now:  time.Date(2025, 3, 9, 15, 0, 0, 0, loc),
			want: time.Date(2025, 3, 9, 19, 0, 0, 0, loc),
		},
		{
			name: "after last slot",
			now:  time.Date(2025, 3, 9, 20, 0, 0, 0, loc),
			want: time.Date(2025, 3, 10, 7, 30, 0, 0, loc),
		},
		{
			name: "utc input",
			now:  time.Date(2025, 3, 9, 1, 0, 0, 0, time.UTC),
			want: time.Date(2025, 3, 9, 15, 0, 0, 0, loc),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := cfg.Next(tt.now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(next), "want %s, got %s", tt.want, next)
		})
	}
}

func TestScheduler_SkipsSlotAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("boom")
	runner := &countingRunner{errs: []error{boom, boom, boom}}
	s := New(DefaultConfig(), runner, slog.Default())

	for range 3 {
		s.runSlot()
	}

	status := s.Status()
	assert.Equal(t, 3, status.ConsecutiveFailures)
	assert.True(t, status.SkipNext)
	assert.Equal(t, "boom", status.LastError)
	assert.Nil(t, status.LastSuccess)

	s.runSlot()
	assert.Equal(t, 3, runner.calls)

	status = s.Status()
	assert.False(t, status.SkipNext)
	assert.Zero(t, status.ConsecutiveFailures)

	s.runSlot()
	assert.Equal(t, 4, runner.calls)

	status = s.Status()
	require.NotNil(t, status.LastSuccess)
	assert.Empty(t, status.LastError)
	assert.Equal(t, 4, status.TotalRuns)
}

func TestScheduler_SuccessResetsFailures(t *testing.T) {
	runner := &countingRunner{errs: []error{errors.New("a"), errors.New("b"), nil, errors.New("c")}}
	s := New(DefaultConfig(), runner, slog.Default())

	for range 4 {
		s.runSlot()
	}

	status := s.Status()
	assert.Equal(t, 1, status.ConsecutiveFailures)
	assert.False(t, status.SkipNext)
	assert.Equal(t, 4, runner.calls)
}

func TestScheduler_StartStop(t *testing.T) {
	now := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	pruner := &countingPruner{}
	s := New(DefaultConfig(), &countingRunner{}, slog.Default(),
		WithPruner(pruner),
		WithClock(func() time.Time { return now }),
	)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrRunning)

	status := s.Status()
	assert.True(t, status.Running)
	require.NotNil(t, status.NextRun)
	assert.True(t, status.NextRun.After(now))

	s.prune()
	assert.Equal(t, DefaultProgressRetention, pruner.maxAge)

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.Status().Running)
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_StartRejectsBadConfig(t *testing.T) {
	s := New(Config{Times: []string{"nope"}}, &countingRunner{}, slog.Default())

	assert.ErrorIs(t, s.Start(context.Background()), ErrInvalidTime)
	assert.False(t, s.Status().Running)
}
