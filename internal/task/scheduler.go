package task

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultSchedulerInterval = time.Minute
	logEventTaskFailed       = "scheduled_task_failed"
	logEventTaskCompleted    = "scheduled_task_completed"
)

// RunnerFunc performs one pass of a periodic task.
type RunnerFunc func(context.Context) error

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Name           string
	Interval       time.Duration
	Runner         RunnerFunc
	RunImmediately bool
	Logger         *zap.Logger
}

// Scheduler runs a task on a fixed interval and on demand.
type Scheduler struct {
	name           string
	interval       time.Duration
	runner         RunnerFunc
	runImmediately bool
	logger         *zap.Logger
	trigger        chan struct{}
	controlMutex   sync.Mutex
	cancel         context.CancelFunc
	done           chan struct{}
}

// NewScheduler returns a stopped scheduler. A non-positive interval defaults to one minute.
func NewScheduler(configuration SchedulerConfig) *Scheduler {
	interval := configuration.Interval
	if interval <= 0 {
		interval = defaultSchedulerInterval
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		name:           configuration.Name,
		interval:       interval,
		runner:         configuration.Runner,
		runImmediately: configuration.RunImmediately,
		logger:         logger,
		trigger:        make(chan struct{}, 1),
	}
}

// Start launches the loop in the background. Starting twice is a no-op.
func (scheduler *Scheduler) Start(ctx context.Context) {
	if scheduler == nil || scheduler.runner == nil {
		return
	}
	scheduler.controlMutex.Lock()
	if scheduler.cancel != nil {
		scheduler.controlMutex.Unlock()
		return
	}
	runtimeCtx, cancel := context.WithCancel(ctx)
	scheduler.cancel = cancel
	done := make(chan struct{})
	scheduler.done = done
	scheduler.controlMutex.Unlock()

	go scheduler.loop(runtimeCtx, done)
}

// Run starts the scheduler and blocks until ctx ends.
func (scheduler *Scheduler) Run(ctx context.Context) error {
	scheduler.Start(ctx)
	<-ctx.Done()
	scheduler.Stop()
	return nil
}

// Trigger requests an extra run. Requests made while a run is pending coalesce.
func (scheduler *Scheduler) Trigger() {
	if scheduler == nil {
		return
	}
	select {
	case scheduler.trigger <- struct{}{}:
	default:
	}
}

// Stop cancels the loop and waits for the current run to return.
func (scheduler *Scheduler) Stop() {
	if scheduler == nil {
		return
	}
	scheduler.controlMutex.Lock()
	cancel := scheduler.cancel
	done := scheduler.done
	scheduler.cancel = nil
	scheduler.done = nil
	scheduler.controlMutex.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (scheduler *Scheduler) loop(ctx context.Context, done chan struct{}) {
	timer := time.NewTimer(scheduler.interval)
	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}()
	defer close(done)
	if scheduler.runImmediately {
		scheduler.run(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-scheduler.trigger:
			scheduler.run(ctx)
		case <-timer.C:
			scheduler.run(ctx)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(scheduler.interval)
	}
}

func (scheduler *Scheduler) run(ctx context.Context) {
	started := time.Now()
	if runErr := scheduler.runner(ctx); runErr != nil {
		if ctx.Err() != nil {
			return
		}
		scheduler.logger.Warn(logEventTaskFailed, zap.String("task", scheduler.name), zap.Error(runErr))
		return
	}
	scheduler.logger.Debug(logEventTaskCompleted, zap.String("task", scheduler.name), zap.Duration("elapsed", time.Since(started)))
}
