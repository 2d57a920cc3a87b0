package task

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	defaultJournalRetention = 30 * 24 * time.Hour
	defaultViewIdleTimeout  = 30 * time.Minute
	defaultThrottleIdle     = 10 * time.Minute
	logEventMaintenance     = "maintenance_completed"
)

// ErrMissingJournal indicates a maintenance job without an activity journal.
var ErrMissingJournal = errors.New("task: missing activity journal")

// JournalPruner deletes activity entries older than cutoff.
type JournalPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// ViewEvictor drops live views that have been idle since cutoff.
type ViewEvictor interface {
	EvictIdle(cutoff time.Time) int
}

// ThrottlePruner forgets rate limit buckets untouched since cutoff.
type ThrottlePruner interface {
	Prune(cutoff time.Time) int
}

// MaintenanceConfig configures a MaintenanceJob. Zero durations use defaults.
type MaintenanceConfig struct {
	Journal          JournalPruner
	Views            ViewEvictor
	Throttles        []ThrottlePruner
	JournalRetention time.Duration
	ViewIdleTimeout  time.Duration
	ThrottleIdle     time.Duration
	Logger           *zap.Logger
	Now              func() time.Time
}

// MaintenanceJob bounds the memory and disk the console accumulates.
type MaintenanceJob struct {
	journal          JournalPruner
	views            ViewEvictor
	throttles        []ThrottlePruner
	journalRetention time.Duration
	viewIdleTimeout  time.Duration
	throttleIdle     time.Duration
	logger           *zap.Logger
	now              func() time.Time
}

// MaintenanceResult reports what one pass removed.
type MaintenanceResult struct {
	JournalEntries int64
	Views          int
	ThrottleKeys   int
}

// NewMaintenanceJob validates configuration and applies defaults.
func NewMaintenanceJob(configuration MaintenanceConfig) (*MaintenanceJob, error) {
	if configuration.Journal == nil {
		return nil, ErrMissingJournal
	}
	job := &MaintenanceJob{
		journal:          configuration.Journal,
		views:            configuration.Views,
		throttles:        configuration.Throttles,
		journalRetention: configuration.JournalRetention,
		viewIdleTimeout:  configuration.ViewIdleTimeout,
		throttleIdle:     configuration.ThrottleIdle,
		logger:           configuration.Logger,
		now:              configuration.Now,
	}
	if job.journalRetention <= 0 {
		job.journalRetention = defaultJournalRetention
	}
	if job.viewIdleTimeout <= 0 {
		job.viewIdleTimeout = defaultViewIdleTimeout
	}
	if job.throttleIdle <= 0 {
		job.throttleIdle = defaultThrottleIdle
	}
	if job.logger == nil {
		job.logger = zap.NewNop()
	}
	if job.now == nil {
		job.now = func() time.Time { return time.Now().UTC() }
	}
	return job, nil
}

// Execute runs one maintenance pass. In-memory cleanup still happens when pruning the journal fails.
func (job *MaintenanceJob) Execute(ctx context.Context) (MaintenanceResult, error) {
	now := job.now()
	result := MaintenanceResult{}
	if job.views != nil {
		result.Views = job.views.EvictIdle(now.Add(-job.viewIdleTimeout))
	}
	for _, throttle := range job.throttles {
		if throttle != nil {
			result.ThrottleKeys += throttle.Prune(now.Add(-job.throttleIdle))
		}
	}
	pruned, pruneErr := job.journal.Prune(ctx, now.Add(-job.journalRetention))
	if pruneErr != nil {
		return result, pruneErr
	}
	result.JournalEntries = pruned
	job.logger.Info(logEventMaintenance,
		zap.Int64("journal_entries", result.JournalEntries),
		zap.Int("views", result.Views),
		zap.Int("throttle_keys", result.ThrottleKeys),
	)
	return result, nil
}

// Run adapts Execute to a scheduler runner.
func (job *MaintenanceJob) Run(ctx context.Context) error {
	_, executeErr := job.Execute(ctx)
	return executeErr
}
