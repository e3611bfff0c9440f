package workdaysync

import (
	"context"
	"log/slog"

	"workday-sync/lib/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const libraryName = "workday-sync.services.workdaysync"

var tracer = telemetry.Tracer(libraryName)

// Kind names an entity kind in summaries, spans and metrics.
type Kind string

const (
	KindWorker                  Kind = "worker"
	KindExternalCommitteeMember Kind = "external-committee-member"
	KindExpenseReport           Kind = "expense-report"
	KindExpenseReportLine       Kind = "expense-report-line"
	KindAttachment              Kind = "attachment"
)

var kinds = []Kind{
	KindWorker,
	KindExternalCommitteeMember,
	KindExpenseReport,
	KindExpenseReportLine,
	KindAttachment,
}

type counters struct {
	synced metric.Int64Counter
	bytes  metric.Int64Counter
}

func newCounters() counters {
	meter := telemetry.Meter(libraryName)

	synced, err := meter.Int64Counter(
		"workday_sync.entities",
		metric.WithDescription("Entities uploaded to Loop."),
		metric.WithUnit("{entity}"),
	)
	if err != nil {
		slog.Warn("failed to create entity counter", "err", err)
		synced = noop.Int64Counter{}
	}
	bytes, err := meter.Int64Counter(
		"workday_sync.attachment_bytes",
		metric.WithDescription("Attachment bytes uploaded to Loop."),
		metric.WithUnit("By"),
	)
	if err != nil {
		slog.Warn("failed to create attachment counter", "err", err)
		bytes = noop.Int64Counter{}
	}

	return counters{synced: synced, bytes: bytes}
}

func (c counters) entity(ctx context.Context, kind Kind) {
	c.synced.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}
