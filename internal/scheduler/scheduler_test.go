package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remindbot/internal/settings"
)

type fixedSettings struct{ s settings.Settings }

func (f *fixedSettings) Get(context.Context) settings.Settings { return f.s }

func withInterval(m int) *fixedSettings {
	s := settings.Defaults()
	s.IntervalMinutes = m
	return &fixedSettings{s: s}
}

func TestRule(t *testing.T) {
	t.Parallel()
	cases := map[int]string{
		0:   "*/1 * * * *",
		1:   "*/1 * * * *",
		15:  "*/15 * * * *",
		30:  "*/30 * * * *",
		45:  "@every 45m",
		60:  "0 * * * *",
		90:  "@every 90m",
		120: "@every 120m",
	}
	for minutes, want := range cases {
		got := Rule(minutes)
		assert.Equal(t, want, got, "minutes=%d", minutes)
		_, err := ParseRule(got)
		assert.NoError(t, err, got)
	}
}

func TestStartStopSnapshot(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "UTC"}, Deps{
		Settings: withInterval(30),
		Cycle:    func(context.Context) error { return nil },
	})

	assert.False(t, s.Stop(), "stop before start is a no-op")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	snap := s.Snapshot()
	assert.True(t, snap.Running)
	assert.Equal(t, "*/30 * * * *", snap.Rule)
	assert.Equal(t, "UTC", snap.Timezone)
	require.False(t, snap.Next.IsZero())
	assert.Zero(t, snap.Next.Minute()%30)
	assert.True(t, snap.Next.After(time.Now()))

	assert.True(t, s.Stop())
	assert.False(t, s.Stop())
	assert.False(t, s.Running())
	assert.Empty(t, s.Snapshot().Rule)
}

func TestStartReplacesExistingJob(t *testing.T) {
	t.Parallel()
	st := withInterval(30)
	s := New(Config{}, Deps{Settings: st, Cycle: func(context.Context) error { return nil }})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	st.s.IntervalMinutes = 7
	require.NoError(t, s.Restart(context.Background()))
	assert.Equal(t, "@every 7m", s.Snapshot().Rule)
	assert.Len(t, s.c.Entries(), 1)
}

func TestStartWithoutCycle(t *testing.T) {
	t.Parallel()
	s := New(Config{}, Deps{Settings: withInterval(5)})
	assert.ErrorIs(t, s.Start(context.Background()), ErrNoJob)
}

func TestInvalidTimezoneFallsBackToLocal(t *testing.T) {
	t.Parallel()
	s := New(Config{Timezone: "Mars/Olympus"}, Deps{})
	assert.Equal(t, time.Local.String(), s.Snapshot().Timezone)
}

func TestTriggerSkipsWhileCycleRunning(t *testing.T) {
	t.Parallel()
	var runs atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	s := New(Config{}, Deps{
		Settings: withInterval(30),
		Cycle: func(context.Context) error {
			if runs.Add(1) == 1 {
				close(entered)
				<-release
			}
			return nil
		},
	})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.mu.Lock()
	job := s.job
	s.mu.Unlock()

	done := make(chan struct{})
	go func() { job.Run(); close(done) }()
	<-entered

	job.Run() // skipped: first run still in flight
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	<-done
	job.Run()
	assert.Equal(t, int32(2), runs.Load())
}

func TestCycleRunsOnBaseContextAfterStop(t *testing.T) {
	t.Parallel()
	base, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan error, 1)
	release := make(chan struct{})
	s := New(Config{}, Deps{
		Context:  base,
		Settings: withInterval(30),
		Cycle: func(ctx context.Context) error {
			<-release
			got <- ctx.Err()
			return nil
		},
	})
	require.NoError(t, s.Start(context.Background()))
	s.mu.Lock()
	job := s.job
	s.mu.Unlock()

	go job.Run()
	s.Stop()
	close(release)
	assert.NoError(t, <-got, "stopping the scheduler must not cancel the cycle")
}
