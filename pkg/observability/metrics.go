package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricCommitsTotal   = "gitexporter.replay.commits.total"
	metricCommitDuration = "gitexporter.replay.commit.duration.seconds"
	metricRecordsTotal   = "gitexporter.replay.records.total"
	metricBytesWritten   = "gitexporter.replay.bytes.written.total"

	attrAction = "action"
	attrKind   = "kind"
)

// durationBucketBoundaries covers 1ms to 60s per commit.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// ReplayMetrics holds the OTel instruments of a replay run.
type ReplayMetrics struct {
	commitsTotal   metric.Int64Counter
	commitDuration metric.Float64Histogram
	recordsTotal   metric.Int64Counter
	bytesWritten   metric.Int64Counter
}

// NewReplayMetrics creates replay instruments from the given meter.
func NewReplayMetrics(mt metric.Meter) (*ReplayMetrics, error) {
	commits, err := mt.Int64Counter(metricCommitsTotal,
		metric.WithDescription("Source commits processed by action"),
		metric.WithUnit("{commit}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCommitsTotal, err)
	}

	duration, err := mt.Float64Histogram(metricCommitDuration,
		metric.WithDescription("Per-commit processing duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCommitDuration, err)
	}

	records, err := mt.Int64Counter(metricRecordsTotal,
		metric.WithDescription("Change records applied by kind"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRecordsTotal, err)
	}

	written, err := mt.Int64Counter(metricBytesWritten,
		metric.WithDescription("Bytes written into the target working tree"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricBytesWritten, err)
	}

	return &ReplayMetrics{
		commitsTotal:   commits,
		commitDuration: duration,
		recordsTotal:   records,
		bytesWritten:   written,
	}, nil
}

// RecordCommit counts one processed commit. Safe on a nil receiver.
func (rm *ReplayMetrics) RecordCommit(ctx context.Context, action string, d time.Duration) {
	if rm == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrAction, action))
	rm.commitsTotal.Add(ctx, 1, attrs)
	rm.commitDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordRecords adds per-kind record counts and written bytes. Safe on a nil receiver.
func (rm *ReplayMetrics) RecordRecords(ctx context.Context, byKind map[string]int, bytes int64) {
	if rm == nil {
		return
	}

	for kind, n := range byKind {
		if n == 0 {
			continue
		}

		rm.recordsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String(attrKind, kind)))
	}

	if bytes > 0 {
		rm.bytesWritten.Add(ctx, bytes)
	}
}
