// Package metrics holds the OpenTelemetry instruments recorded by the
// security layer. When no meter provider is configured the instruments are
// no-ops.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/aman-churiwal/projectguard"

type Metrics struct {
	RateLimitDecisions metric.Int64Counter
	RateLimitFailOpen  metric.Int64Counter
	ReaperDeleted      metric.Int64Counter
	AuditEntries       metric.Int64Counter
	VaultOperations    metric.Int64Counter
}

func New(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(meterName)

	m := &Metrics{}
	var err error

	m.RateLimitDecisions, err = meter.Int64Counter(
		"projectguard.ratelimit.decisions",
		metric.WithDescription("Rate limit decisions by endpoint and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.decisions counter: %w", err)
	}

	m.RateLimitFailOpen, err = meter.Int64Counter(
		"projectguard.ratelimit.fail_open",
		metric.WithDescription("Rate limit checks admitted because the store failed"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ratelimit.fail_open counter: %w", err)
	}

	m.ReaperDeleted, err = meter.Int64Counter(
		"projectguard.ratelimit.reaper.deleted",
		metric.WithDescription("Expired rate limit windows deleted by the reaper"),
		metric.WithUnit("{window}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reaper.deleted counter: %w", err)
	}

	m.AuditEntries, err = meter.Int64Counter(
		"projectguard.audit.entries",
		metric.WithDescription("Audit log entries appended by action"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.entries counter: %w", err)
	}

	m.VaultOperations, err = meter.Int64Counter(
		"projectguard.vault.operations",
		metric.WithDescription("Credential vault encrypt/decrypt operations by result"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault.operations counter: %w", err)
	}

	return m, nil
}

// Noop returns instruments that record nothing
func Noop() *Metrics {
	m, _ := New(noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordDecision(ctx context.Context, endpoint string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "limited"
	}
	m.RateLimitDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordFailOpen(ctx context.Context, endpoint string) {
	m.RateLimitFailOpen.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

func (m *Metrics) RecordReaped(ctx context.Context, n int64) {
	m.ReaperDeleted.Add(ctx, n)
}

func (m *Metrics) RecordAudit(ctx context.Context, action string) {
	m.AuditEntries.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (m *Metrics) RecordVault(ctx context.Context, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.VaultOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("result", result),
	))
}
