package watcher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCycler struct {
	calls atomic.Int32
	delay time.Duration
	done  atomic.Int32
}

func (c *countingCycler) RunCycle(ctx context.Context) CycleReport {
	c.calls.Add(1)
	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
	}
	c.done.Add(1)
	return CycleReport{ID: "x"}
}

func TestSchedulerRunNow(t *testing.T) {
	c := &countingCycler{}
	s := NewScheduler(c, time.Hour)
	rep := s.RunNow()
	assert.Equal(t, "x", rep.ID)
	assert.Equal(t, int32(1), c.calls.Load())
}

func TestSchedulerStopWaitsForInFlightCycle(t *testing.T) {
	c := &countingCycler{delay: 200 * time.Millisecond}
	s := NewScheduler(c, time.Hour)
	require.NoError(t, s.Start(context.Background(), true))

	require.Eventually(t, func() bool { return c.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, int32(1), c.done.Load(), "Stop returns after the cycle finished")
}

func TestSchedulerStopDeadline(t *testing.T) {
	c := &countingCycler{delay: 10 * time.Second}
	s := NewScheduler(c, time.Hour)
	require.NoError(t, s.Start(context.Background(), true))
	require.Eventually(t, func() bool { return c.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), c.done.Load(), "cycle context is cancelled on deadline")
}

func TestSchedulerTicks(t *testing.T) {
	c := &countingCycler{}
	s := NewScheduler(c, time.Second)
	require.NoError(t, s.Start(context.Background(), false))
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return c.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestSchedulerDoubleStart(t *testing.T) {
	s := NewScheduler(&countingCycler{}, time.Hour)
	require.NoError(t, s.Start(context.Background(), false))
	defer s.Stop(context.Background())
	assert.Error(t, s.Start(context.Background(), false))
}
