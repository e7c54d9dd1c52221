package inbound

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// discard reasons, also used as the reason log field
const (
	reasonDecode    = "decode"
	reasonNoSession = "no_session"
	reasonIntegrity = "integrity"
	reasonNoReply   = "no_partitions"
)

type metrics struct {
	records   metric.Int64Counter
	discarded metric.Int64Counter
	published metric.Int64Counter
	failed    metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = noop.MeterProvider{}
	}
	meter := mp.Meter("linkmesh/inbound")
	var (
		m   metrics
		err error
	)
	if m.records, err = meter.Int64Counter("linkmesh.inbound.records",
		metric.WithDescription("Records produced by the inbound processor")); err != nil {
		return nil, err
	}
	if m.discarded, err = meter.Int64Counter("linkmesh.inbound.discarded",
		metric.WithDescription("Link messages discarded by the inbound processor")); err != nil {
		return nil, err
	}
	if m.published, err = meter.Int64Counter("linkmesh.inbound.rpc.published",
		metric.WithDescription("Requests whose records were published")); err != nil {
		return nil, err
	}
	if m.failed, err = meter.Int64Counter("linkmesh.inbound.rpc.failed",
		metric.WithDescription("Requests that completed with an error")); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *metrics) produced(ctx context.Context, recs []Record) {
	for _, r := range recs {
		m.records.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", r.Topic)))
	}
}

func (m *metrics) discard(ctx context.Context, reason string) {
	m.discarded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
