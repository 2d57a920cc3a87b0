package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	jsonKeyEntries         = "entries"
	jsonKeyStatus          = "status"
	jsonKeyChecks          = "checks"
	queryKeyLimit          = "limit"
	activityDefaultLimit   = 50
	activityMaximumLimit   = 200
	activityLoadFailed     = "failed to load activity"
	healthStatusOK         = "ok"
	healthStatusDegraded   = "degraded"
	healthCheckTimeout     = 2 * time.Second
	logEventActivityLoad   = "activity_load_failed"
	logEventHealthCheckBad = "health_check_failed"
)

var ErrMissingActivityReader = errors.New("httpapi: missing activity reader")

// ActivityReader lists recent journal entries.
type ActivityReader interface {
	Recent(ctx context.Context, limit int) ([]model.ActivityEntry, error)
}

// ActivityHandlers expose the operator activity journal as JSON.
type ActivityHandlers struct {
	reader ActivityReader
	logger *zap.Logger
}

// NewActivityHandlers constructs ActivityHandlers.
func NewActivityHandlers(reader ActivityReader, logger *zap.Logger) (*ActivityHandlers, error) {
	if reader == nil {
		return nil, ErrMissingActivityReader
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityHandlers{reader: reader, logger: logger}, nil
}

// Recent returns the newest journal entries, newest first.
func (handlers *ActivityHandlers) Recent(context *gin.Context) {
	limit := activityDefaultLimit
	if rawLimit := context.Query(queryKeyLimit); rawLimit != "" {
		if parsed, parseErr := strconv.Atoi(rawLimit); parseErr == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > activityMaximumLimit {
		limit = activityMaximumLimit
	}
	entries, loadErr := handlers.reader.Recent(context.Request.Context(), limit)
	if loadErr != nil {
		handlers.logger.Warn(logEventActivityLoad, zap.Error(loadErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: activityLoadFailed})
		return
	}
	if entries == nil {
		entries = []model.ActivityEntry{}
	}
	context.JSON(http.StatusOK, gin.H{jsonKeyEntries: entries})
}

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthHandlers report process readiness.
type HealthHandlers struct {
	checks []HealthCheck
	logger *zap.Logger
}

// NewHealthHandlers constructs HealthHandlers over checks.
func NewHealthHandlers(logger *zap.Logger, checks ...HealthCheck) *HealthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandlers{checks: checks, logger: logger}
}

// Health answers 200 when every check passes and 503 otherwise.
func (handlers *HealthHandlers) Health(context *gin.Context) {
	ctx, cancel := contextWithTimeout(context.Request.Context(), healthCheckTimeout)
	defer cancel()
	results := make(map[string]string, len(handlers.checks))
	status := http.StatusOK
	for _, check := range handlers.checks {
		if check.Probe == nil {
			continue
		}
		if probeErr := check.Probe(ctx); probeErr != nil {
			handlers.logger.Warn(logEventHealthCheckBad, zap.String("check", check.Name), zap.Error(probeErr))
			results[check.Name] = probeErr.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[check.Name] = healthStatusOK
	}
	overall := healthStatusOK
	if status != http.StatusOK {
		overall = healthStatusDegraded
	}
	context.JSON(status, gin.H{jsonKeyStatus: overall, jsonKeyChecks: results})
}

func contextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}
