// Package schedule runs a task on a fixed interval with overlap protection.
package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyStarted is returned by Start on a running Periodic.
var ErrAlreadyStarted = errors.New("periodic job already started")

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// Periodic runs a Task every interval. At most one run is in flight; a tick
// that arrives while a run is active is skipped and counted.
type Periodic struct {
	name       string
	interval   time.Duration
	maxRuntime time.Duration
	task       Task
	logger     *zap.Logger
	onSkip     func()

	running atomic.Bool
	runs    atomic.Uint64
	skips   atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPeriodic builds a job. maxRuntime bounds each run; zero means unbounded.
func NewPeriodic(name string, interval, maxRuntime time.Duration, task Task, logger *zap.Logger) *Periodic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Periodic{
		name:       name,
		interval:   interval,
		maxRuntime: maxRuntime,
		task:       task,
		logger:     logger.With(zap.String("job", name)),
	}
}

// OnSkip registers fn to be called for every skipped tick. Call it before Start.
func (p *Periodic) OnSkip(fn func()) *Periodic {
	p.onSkip = fn
	return p
}

// Start launches the ticker loop. The loop exits when ctx is cancelled or
// Stop is called.
func (p *Periodic) Start(ctx context.Context) error {
	if p.interval <= 0 {
		return errors.New("periodic interval must be > 0")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)

	p.logger.Info("periodic job started", zap.Duration("interval", p.interval))
	return nil
}

func (p *Periodic) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("periodic run failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes the task now unless a run is already in progress, in
// which case it returns ran=false.
func (p *Periodic) RunOnce(ctx context.Context) (bool, error) {
	if !p.running.CompareAndSwap(false, true) {
		p.skips.Add(1)
		p.logger.Warn("periodic run skipped, previous run still active")
		if p.onSkip != nil {
			p.onSkip()
		}
		return false, nil
	}
	defer p.running.Store(false)

	runCtx := ctx
	if p.maxRuntime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.maxRuntime)
		defer cancel()
	}

	start := time.Now()
	err := p.runTask(runCtx)
	p.runs.Add(1)
	p.logger.Debug("periodic run finished", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	return true, err
}

func (p *Periodic) runTask(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("periodic task panicked")
			p.logger.Error("periodic task panicked", zap.Any("panic", r))
		}
	}()
	return p.task(ctx)
}

// Stop cancels the loop and waits for it to exit, including any in-flight
// run. Stop on a job that was never started is a no-op.
func (p *Periodic) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("periodic job stopped")
}

// Runs is the number of completed runs.
func (p *Periodic) Runs() uint64 { return p.runs.Load() }

// Skips is the number of runs skipped due to overlap.
func (p *Periodic) Skips() uint64 { return p.skips.Load() }

// Running reports whether a run is in flight.
func (p *Periodic) Running() bool { return p.running.Load() }
