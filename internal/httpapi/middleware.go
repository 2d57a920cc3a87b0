package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/metrics"
)

const unmatchedRoute = "unmatched"

// RequestLogger logs every request and records it in collector.
func RequestLogger(logger *zap.Logger, collector *metrics.Collector) gin.HandlerFunc {
	return func(context *gin.Context) {
		start := time.Now()
		context.Next()
		duration := time.Since(start)
		route := context.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		collector.ObserveHTTPRequest(context.Request.Method, route, context.Writer.Status(), duration)
		logger.Info("http",
			zap.String("method", context.Request.Method),
			zap.String("path", context.Request.URL.Path),
			zap.Int("status", context.Writer.Status()),
			zap.Duration("dur", duration),
			zap.String("ip", context.ClientIP()),
			zap.String("ua", context.Request.UserAgent()),
		)
	}
}
