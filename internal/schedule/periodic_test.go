package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunOnceExecutesTask(t *testing.T) {
	var calls atomic.Int32
	p := NewPeriodic("test", time.Hour, 0, func(context.Context) error {
		calls.Add(1)
		return nil
	}, zap.NewNop())

	ran, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), p.Runs())
}

func TestRunOnceSkipsOverlap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := NewPeriodic("overlap", time.Hour, 0, func(context.Context) error {
		close(started)
		<-release
		return nil
	}, nil)

	result := make(chan bool, 1)
	go func() {
		ran, _ := p.RunOnce(context.Background())
		result <- ran
	}()
	<-started

	ran, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, uint64(1), p.Skips())
	assert.True(t, p.Running())

	close(release)
	assert.True(t, <-result)
	assert.False(t, p.Running())
}

func TestRunOnceEnforcesMaxRuntime(t *testing.T) {
	p := NewPeriodic("bounded", time.Hour, 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	ran, err := p.RunOnce(context.Background())
	assert.True(t, ran)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunOnceRecoversPanic(t *testing.T) {
	p := NewPeriodic("panicky", time.Hour, 0, func(context.Context) error {
		panic("boom")
	}, nil)

	ran, err := p.RunOnce(context.Background())
	assert.True(t, ran)
	assert.Error(t, err)
	assert.False(t, p.Running())
}

func TestStartTicksAndStopWaits(t *testing.T) {
	var calls atomic.Int32
	p := NewPeriodic("ticker", 5*time.Millisecond, 0, func(context.Context) error {
		calls.Add(1)
		return errors.New("logged, not fatal")
	}, nil)

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	p.Stop()
	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "no runs after Stop returns")

	p.Stop()
}

func TestStartRejectsZeroInterval(t *testing.T) {
	p := NewPeriodic("zero", 0, 0, func(context.Context) error { return nil }, nil)
	assert.Error(t, p.Start(context.Background()))
}

func TestParentCancelStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPeriodic("parent", time.Millisecond, 0, func(context.Context) error { return nil }, nil)
	require.NoError(t, p.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after parent cancel")
	}
}

func TestPeriodicOnSkipHook(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var hooked atomic.Int32

	p := NewPeriodic("hook", time.Hour, 0, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}, zap.NewNop()).OnSkip(func() { hooked.Add(1) })

	go func() { _, _ = p.RunOnce(context.Background()) }()
	<-started

	ran, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	close(release)

	assert.Equal(t, int32(1), hooked.Load())
}
