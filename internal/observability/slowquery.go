package observability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/homequest/realestate-search/internal/models"
)

// SlowResolveDetector logs and records resolve calls that exceed the warning
// threshold. Fast calls return immediately with zero overhead.
type SlowResolveDetector struct {
	warningThreshold  time.Duration
	criticalThreshold time.Duration
	logger            *zap.Logger
	analyticsWriter   AnalyticsWriter
}

type AnalyticsWriter interface {
	WriteResolveLatency(ctx context.Context, event *models.AnalyticsEvent) error
}

func NewSlowResolveDetector(warning, critical time.Duration, logger *zap.Logger, aw AnalyticsWriter) *SlowResolveDetector {
	return &SlowResolveDetector{
		warningThreshold:  warning,
		criticalThreshold: critical,
		logger:            logger,
		analyticsWriter:   aw,
	}
}

func (d *SlowResolveDetector) Intercept(ctx context.Context, query string, action, reason, cityID string, duration time.Duration) {
	if duration <= d.warningThreshold {
		return
	}

	traceID := TraceIDFromContext(ctx)
	severity := d.classifySeverity(duration)

	SlowResolveCounter.WithLabelValues(severity, action).Inc()

	d.logger.Warn("slow resolve detected",
		zap.String("trace_id", traceID),
		zap.String("query_hash", hashQueryForLog(query)),
		zap.String("action", action),
		zap.String("reason", reason),
		zap.Float64("duration_ms", float64(duration.Milliseconds())),
		zap.String("severity", severity),
	)

	// Analytics write happens off the request path.
	if d.analyticsWriter != nil {
		event := &models.AnalyticsEvent{
			EventType:  "resolve_latency",
			QueryHash:  hashQueryForLog(query),
			Action:     action,
			Reason:     reason,
			CityID:     cityID,
			DurationMs: float64(duration.Milliseconds()),
			Timestamp:  time.Now().UTC(),
			TraceID:    traceID,
		}
		go func() {
			writeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := d.analyticsWriter.WriteResolveLatency(writeCtx, event); err != nil {
				d.logger.Error("failed to write resolve latency",
					zap.String("trace_id", traceID),
					zap.Error(err),
				)
			}
		}()
	}
}

func (d *SlowResolveDetector) classifySeverity(dur time.Duration) string {
	if dur > d.criticalThreshold {
		return "critical"
	}
	if dur > d.warningThreshold {
		return "warning"
	}
	return "normal"
}

func hashQueryForLog(q string) string {
	return fmt.Sprintf("%016x", hashUint64(q))
}

func hashUint64(s string) uint64 {
	h := uint64(0)
	for _, c := range s {
		h = h*31 + uint64(c)
	}
	return h
}
