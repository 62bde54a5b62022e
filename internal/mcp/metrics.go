package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/copyvara/internal/storage"
	"github.com/fyrsmithlabs/copyvara/internal/workspace"
)

const instrumentationName = "github.com/fyrsmithlabs/copyvara/internal/mcp"

// Metrics counts tool calls by tool name. Instruments that fail to
// register stay nil and are skipped.
type Metrics struct {
	calls    metric.Int64Counter
	latency  metric.Float64Histogram
	failures metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// NewMetrics registers instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	var (
		m    Metrics
		errs [4]error
	)
	m.calls, errs[0] = meter.Int64Counter("copyvara.mcp.tool.invocations_total",
		metric.WithDescription("MCP tool calls by tool."),
		metric.WithUnit("{invocation}"))
	m.latency, errs[1] = meter.Float64Histogram("copyvara.mcp.tool.duration_seconds",
		metric.WithDescription("MCP tool call latency by tool."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60))
	m.failures, errs[2] = meter.Int64Counter("copyvara.mcp.tool.errors_total",
		metric.WithDescription("Failed MCP tool calls by tool and reason."),
		metric.WithUnit("{error}"))
	m.inFlight, errs[3] = meter.Int64UpDownCounter("copyvara.mcp.tool.active_requests",
		metric.WithDescription("MCP tool calls currently running."),
		metric.WithUnit("{request}"))

	if err := errors.Join(errs[:]...); err != nil && logger != nil {
		logger.Warn("registering mcp instruments", zap.Error(err))
	}
	return &m
}

// begin marks a call to tool as in flight. The returned function ends it
// and records its outcome.
func (m *Metrics) begin(ctx context.Context, tool string) func(error) {
	toolAttr := attribute.String("tool", tool)
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1, metric.WithAttributes(toolAttr))
	}
	start := time.Now()

	return func(err error) {
		if m.inFlight != nil {
			m.inFlight.Add(ctx, -1, metric.WithAttributes(toolAttr))
		}
		if m.calls != nil {
			m.calls.Add(ctx, 1, metric.WithAttributes(toolAttr))
		}
		if m.latency != nil {
			m.latency.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(toolAttr))
		}
		if err != nil && m.failures != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(toolAttr, attribute.String("reason", errorReason(err))))
		}
	}
}

// errorReason maps err onto a bounded label value.
func errorReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, workspace.ErrValidation):
		return "validation_error"
	case errors.Is(err, workspace.ErrUpstreamGeneration):
		return "generation_error"
	case errors.Is(err, workspace.ErrUpstreamPersistence):
		return "storage_error"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal_error"
	}
}
