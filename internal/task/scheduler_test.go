package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testSchedulerInterval = 10 * time.Millisecond
	testSchedulerTimeout  = 2 * time.Second
)

func TestNewSchedulerDefaultsInterval(testingT *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{Runner: func(context.Context) error { return nil }})
	require.Equal(testingT, time.Minute, scheduler.interval)
	require.NotNil(testingT, scheduler.logger)
}

func TestSchedulerRunsOnTrigger(testingT *testing.T) {
	var runCount int64
	scheduler := NewScheduler(SchedulerConfig{
		Name:     "trigger",
		Interval: time.Hour,
		Runner: func(context.Context) error {
			atomic.AddInt64(&runCount, 1)
			return nil
		},
	})
	runtimeContext, cancel := context.WithCancel(context.Background())
	testingT.Cleanup(cancel)

	scheduler.Start(runtimeContext)
	scheduler.Trigger()

	require.Eventually(testingT, func() bool {
		return atomic.LoadInt64(&runCount) > 0
	}, testSchedulerTimeout, testSchedulerInterval)

	scheduler.Stop()
	require.Nil(testingT, scheduler.cancel)
}

func TestSchedulerRunsOnInterval(testingT *testing.T) {
	var runCount int64
	scheduler := NewScheduler(SchedulerConfig{
		Interval: testSchedulerInterval,
		Runner: func(context.Context) error {
			atomic.AddInt64(&runCount, 1)
			return errors.New("transient")
		},
	})
	scheduler.Start(context.Background())
	testingT.Cleanup(scheduler.Stop)

	require.Eventually(testingT, func() bool {
		return atomic.LoadInt64(&runCount) >= 2
	}, testSchedulerTimeout, testSchedulerInterval)
}

func TestSchedulerRunImmediately(testingT *testing.T) {
	ran := make(chan struct{}, 1)
	scheduler := NewScheduler(SchedulerConfig{
		Interval:       time.Hour,
		RunImmediately: true,
		Runner: func(context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		},
	})
	scheduler.Start(context.Background())
	testingT.Cleanup(scheduler.Stop)

	select {
	case <-ran:
	case <-time.After(testSchedulerTimeout):
		testingT.Fatal("runner did not run on start")
	}
}

func TestSchedulerRunBlocksUntilContextEnds(testingT *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{Interval: time.Hour, Runner: func(context.Context) error { return nil }})
	runtimeContext, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() {
		finished <- scheduler.Run(runtimeContext)
	}()
	cancel()
	select {
	case runErr := <-finished:
		require.NoError(testingT, runErr)
	case <-time.After(testSchedulerTimeout):
		testingT.Fatal("run did not return after cancel")
	}
	require.Nil(testingT, scheduler.cancel)
}

func TestSchedulerHandlesNilReceiver(testingT *testing.T) {
	var scheduler *Scheduler
	scheduler.Start(context.Background())
	scheduler.Trigger()
	scheduler.Stop()
}

func TestSchedulerSkipsStartWhenRunnerMissing(testingT *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{Interval: testSchedulerInterval})
	scheduler.Start(context.Background())
	require.Nil(testingT, scheduler.cancel)
}

func TestSchedulerStartIsIdempotent(testingT *testing.T) {
	scheduler := NewScheduler(SchedulerConfig{Interval: testSchedulerInterval, Runner: func(context.Context) error { return nil }})
	scheduler.Start(context.Background())
	doneAfterStart := scheduler.done
	require.NotNil(testingT, scheduler.cancel)
	scheduler.Start(context.Background())
	require.Equal(testingT, doneAfterStart, scheduler.done)
	scheduler.Stop()
}
