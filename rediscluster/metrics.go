package rediscluster

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/joomcode/redisrouter/rediscluster"

type metrics struct {
	dispatch  metric.Int64Counter
	exhausted metric.Int64Counter
	discovery metric.Int64Counter
}

// newMetrics creates instruments with mp, or with global MeterProvider if mp is nil.
// Instruments which could not be created are replaced with no-op ones.
func newMetrics(mp metric.MeterProvider) *metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	fallback := noop.NewMeterProvider().Meter(meterName)

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			otel.Handle(err)
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}
	return &metrics{
		dispatch: counter("rediscluster_dispatch_total",
			"Number of commands dispatched to cluster nodes."),
		exhausted: counter("rediscluster_pool_exhausted_total",
			"Number of commands failed because there were no free connection to the server."),
		discovery: counter("rediscluster_discovery_total",
			"Number of topology discovery attempts by result."),
	}
}

func (m *metrics) dispatched(ctx context.Context, cmd string, role Role) {
	m.dispatch.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", strings.ToUpper(cmd)),
		attribute.String("role", role.String()),
	))
}

func (m *metrics) poolExhausted(ctx context.Context, server string) {
	m.exhausted.Add(ctx, 1, metric.WithAttributes(attribute.String("server", server)))
}

func (m *metrics) discovered(ctx context.Context, result string) {
	m.discovery.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
