// Package telemetry records OpenTelemetry counters and histograms for
// column operations. The column coordinator only ever calls the
// [Hooks] it is given; when none is supplied it falls back to the
// package-level no-op, so the core library carries no otel dependency
// on its hot path beyond that default.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Hooks are the column-shaped callbacks the coordinator invokes after
// each operation. All fields are optional; a nil field is simply not
// called.
type Hooks struct {
	RecordGet       func(ctx context.Context, columnID uint8, hit bool, d time.Duration)
	RecordWrite     func(ctx context.Context, columnID uint8, outcome string, d time.Duration)
	RecordRebalance func(ctx context.Context, columnID uint8, chunksDrained int, d time.Duration)
}

// Noop is a [Hooks] value whose fields are all nil, the default used
// when a caller does not wire telemetry at all.
var Noop = Hooks{}

// Meter builds [Hooks] backed by the given OpenTelemetry meter, using
// instrument names under the "coldb.column" namespace.
type Meter struct {
	getCount       metric.Int64Counter
	getHitCount    metric.Int64Counter
	getDuration    metric.Float64Histogram
	writeCount     metric.Int64Counter
	writeDuration  metric.Float64Histogram
	rebalanceCount metric.Int64Counter
	rebalanceChunk metric.Int64Counter
	rebalanceDur   metric.Float64Histogram
}

// NewMeter creates the column's instruments against m.
func NewMeter(m metric.Meter) (*Meter, error) {
	var (
		tm  Meter
		err error
	)

	tm.getCount, err = m.Int64Counter("coldb.column.get.count")
	if err != nil {
		return nil, err
	}

	tm.getHitCount, err = m.Int64Counter("coldb.column.get.hit_count")
	if err != nil {
		return nil, err
	}

	tm.getDuration, err = m.Float64Histogram("coldb.column.get.duration_ms")
	if err != nil {
		return nil, err
	}

	tm.writeCount, err = m.Int64Counter("coldb.column.write.count")
	if err != nil {
		return nil, err
	}

	tm.writeDuration, err = m.Float64Histogram("coldb.column.write.duration_ms")
	if err != nil {
		return nil, err
	}

	tm.rebalanceCount, err = m.Int64Counter("coldb.column.rebalance.count")
	if err != nil {
		return nil, err
	}

	tm.rebalanceChunk, err = m.Int64Counter("coldb.column.rebalance.chunks_drained")
	if err != nil {
		return nil, err
	}

	tm.rebalanceDur, err = m.Float64Histogram("coldb.column.rebalance.duration_ms")
	if err != nil {
		return nil, err
	}

	return &tm, nil
}

// Hooks adapts the meter's instruments into the [Hooks] shape the
// column coordinator consumes.
func (tm *Meter) Hooks() Hooks {
	return Hooks{
		RecordGet: func(ctx context.Context, columnID uint8, hit bool, d time.Duration) {
			attrs := metric.WithAttributes(attribute.Int("column_id", int(columnID)))

			tm.getCount.Add(ctx, 1, attrs)
			tm.getDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)

			if hit {
				tm.getHitCount.Add(ctx, 1, attrs)
			}
		},
		RecordWrite: func(ctx context.Context, columnID uint8, outcome string, d time.Duration) {
			attrs := metric.WithAttributes(
				attribute.Int("column_id", int(columnID)),
				attribute.String("outcome", outcome),
			)

			tm.writeCount.Add(ctx, 1, attrs)
			tm.writeDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
		},
		RecordRebalance: func(ctx context.Context, columnID uint8, chunksDrained int, d time.Duration) {
			attrs := metric.WithAttributes(attribute.Int("column_id", int(columnID)))

			tm.rebalanceCount.Add(ctx, 1, attrs)
			tm.rebalanceChunk.Add(ctx, int64(chunksDrained), attrs)
			tm.rebalanceDur.Record(ctx, float64(d.Microseconds())/1000, attrs)
		},
	}
}
