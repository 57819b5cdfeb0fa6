package services

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronSchedulerAfterFiresOnce(t *testing.T) {
	sched, err := NewCronScheduler(zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = sched.Shutdown() }()

	var fired atomic.Int32
	_, err = sched.After(50*time.Millisecond, func() { fired.Add(1) })
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestCronSchedulerCancel(t *testing.T) {
	sched, err := NewCronScheduler(zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = sched.Shutdown() }()

	var fired atomic.Bool
	cancel, err := sched.After(200*time.Millisecond, func() { fired.Store(true) })
	require.NoError(t, err)
	cancel()
	cancel()

	time.Sleep(400 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestCronSchedulerEvery(t *testing.T) {
	sched, err := NewCronScheduler(zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = sched.Shutdown() }()

	var runs atomic.Int32
	require.NoError(t, sched.Every(20*time.Millisecond, "tick", func() { runs.Add(1) }))
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}
