package api

import (
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const metricsKey = "command.metrics"

type commandMetrics struct {
	route            string
	start            time.Time
	upstreamDuration time.Duration
	errorStage       string
}

func (m *commandMetrics) ObserveUpstream(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.upstreamDuration += duration
}

func (m *commandMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *commandMetrics) fields(status int, err error) log.Fields {
	fields := log.Fields{
		"route":    m.route,
		"status":   status,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.upstreamDuration > 0 {
		fields["upstream_ms"] = durationToMillis(m.upstreamDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	return fields
}

// commandMetricsMiddleware logs one metrics line per request and wraps it in a span.
func commandMetricsMiddleware(logger *log.Logger) echo.MiddlewareFunc {
	tracer := otel.Tracer("taskflow/api")
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			ctx, span := tracer.Start(c.Request().Context(), "bff "+c.Request().Method+" "+route)
			defer span.End()
			c.SetRequest(c.Request().WithContext(ctx))

			m := &commandMetrics{route: route, start: time.Now()}
			c.Set(metricsKey, m)
			err := next(c)

			status := c.Response().Status
			span.SetAttributes(
				attribute.String("http.method", c.Request().Method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", status),
			)
			if status >= 500 || err != nil {
				span.SetStatus(codes.Error, m.errorStage)
			}
			logger.WithFields(m.fields(status, err)).Info("board.command.metrics")
			return err
		}
	}
}

func metricsFrom(c echo.Context) *commandMetrics {
	m, _ := c.Get(metricsKey).(*commandMetrics)
	return m
}

// observe times an engine call against the upstream counter.
func observe(c echo.Context) func() {
	start := time.Now()
	return func() {
		metricsFrom(c).ObserveUpstream(time.Since(start))
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
