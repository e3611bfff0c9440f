package workdaysync

import (
	"context"
	"encoding/json"
	"log/slog"

	"workday-sync/lib/loop"
	"workday-sync/lib/tree"
	"workday-sync/lib/workday"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Source is the Workday side of a sync, implemented by *workday.Client.
type Source interface {
	Worker(ctx context.Context, id string) (any, error)
	ExternalCommitteeMember(ctx context.Context, id string) (any, error)
	ExpenseReport(ctx context.Context, id string) (any, error)
	ExpenseReportLine(ctx context.Context, actionUri, lineId string) (any, error)
	Attachment(ctx context.Context, instanceId, target string) ([]byte, error)
	Results(ctx context.Context, startRow, maxRows int) (any, error)
}

// Destination is the Loop side of a sync, implemented by *loop.Client.
type Destination interface {
	UploadExpenseReports(ctx context.Context, results any) (loop.Worklist, error)
	UploadExpenseReport(ctx context.Context, reportId string, detail any) error
	UploadExpenseReportLine(ctx context.Context, reportId, lineId string, detail any) (loop.LineAck, error)
	UploadAttachment(ctx context.Context, reportId, lineId, attachmentId, filename string, content []byte) error
	UploadWorker(ctx context.Context, detail any) error
	UploadExternalCommitteeMember(ctx context.Context, detail any) error
	Worklist(ctx context.Context) (loop.Worklist, error)
	FinishSync(ctx context.Context) error
}

var (
	_ Source      = (*workday.Client)(nil)
	_ Destination = (*loop.Client)(nil)
)

// Engine syncs single entities and their dependents from Workday to Loop.
// Calls are strictly sequential, a parent is always uploaded before its
// children.
type Engine struct {
	source   Source
	dest     Destination
	summary  *Summary
	counters counters
}

func NewEngine(source Source, dest Destination) *Engine {
	return &Engine{
		source:   source,
		dest:     dest,
		summary:  newSummary(),
		counters: newCounters(),
	}
}

// Summary returns what the engine has synced so far.
func (e *Engine) Summary() Summary {
	return e.summary.clone()
}

func (e *Engine) synced(ctx context.Context, kind Kind) {
	e.summary.Synced[kind]++
	e.counters.entity(ctx, kind)
}

func fail(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	return err
}

func (e *Engine) SyncWorker(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "SyncWorker", trace.WithAttributes(attribute.String("worker.id", id)))
	defer span.End()

	slog.InfoContext(ctx, "syncing worker", "id", id)
	detail, err := e.source.Worker(ctx, id)
	if err != nil {
		return fail(span, err, "failed to fetch worker")
	}
	err = e.dest.UploadWorker(ctx, detail)
	if err != nil {
		return fail(span, err, "failed to upload worker")
	}

	e.synced(ctx, KindWorker)
	return nil
}

func (e *Engine) SyncExternalCommitteeMember(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "SyncExternalCommitteeMember", trace.WithAttributes(attribute.String("ecm.id", id)))
	defer span.End()

	slog.InfoContext(ctx, "syncing external committee member", "id", id)
	detail, err := e.source.ExternalCommitteeMember(ctx, id)
	if err != nil {
		return fail(span, err, "failed to fetch external committee member")
	}
	err = e.dest.UploadExternalCommitteeMember(ctx, detail)
	if err != nil {
		return fail(span, err, "failed to upload external committee member")
	}

	e.synced(ctx, KindExternalCommitteeMember)
	return nil
}

// SyncExpenseReport uploads a report, then every one of its lines in the
// order Workday lists them.
func (e *Engine) SyncExpenseReport(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "SyncExpenseReport", trace.WithAttributes(attribute.String("report.id", id)))
	defer span.End()

	slog.InfoContext(ctx, "syncing expense report", "id", id)
	detail, err := e.source.ExpenseReport(ctx, id)
	if err != nil {
		return fail(span, err, "failed to fetch expense report")
	}
	err = e.dest.UploadExpenseReport(ctx, id, detail)
	if err != nil {
		return fail(span, err, "failed to upload expense report")
	}
	e.synced(ctx, KindExpenseReport)

	actionUri, err := lineActionUri(ctx, detail)
	if err != nil {
		return fail(span, err, "failed to find line action")
	}
	lineIds, err := expenseLineIds(ctx, detail)
	if err != nil {
		return fail(span, err, "failed to find expense lines")
	}
	span.SetAttributes(attribute.Int("report.lines", len(lineIds)))

	for _, lineId := range lineIds {
		err = e.SyncExpenseReportLine(ctx, id, actionUri, lineId)
		if err != nil {
			return fail(span, err, "failed to sync expense report line")
		}
	}
	return nil
}

// the single extensionActions widget carries the uri lines are fetched with
func lineActionUri(ctx context.Context, detail any) (string, error) {
	widget, err := exactlyOne(ctx, detail, "widget", "extensionActions")
	if err != nil {
		return "", err
	}
	actions, ok := tree.Slice(widget, "extensionActions")
	if !ok || len(actions) == 0 {
		return "", missing(ctx, "extensionActions[0]", widget)
	}
	action, ok := tree.Map(actions[0])
	if !ok {
		return "", missing(ctx, "extensionActions[0]", widget)
	}
	uri, ok := tree.String(action, "uri")
	if !ok || uri == "" {
		return "", missing(ctx, "extensionActions[0].uri", widget)
	}
	return uri, nil
}

func expenseLineIds(ctx context.Context, detail any) ([]string, error) {
	widget, err := exactlyOne(ctx, detail, "label", "Expense Lines")
	if err != nil {
		return nil, err
	}
	rows, ok := tree.Slice(widget, "rows")
	if !ok {
		return nil, missing(ctx, "Expense Lines rows", widget)
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		row, ok := tree.Map(r)
		if !ok {
			return nil, missing(ctx, "Expense Lines row", widget)
		}
		id, ok := idString(row["id"])
		if !ok {
			return nil, missing(ctx, "Expense Lines row id", row)
		}
		ids[i] = id
	}
	return ids, nil
}

func idString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	}
	return "", false
}

// AttachmentRef locates the contents of an attachment inside Workday.
type AttachmentRef struct {
	Id       string
	Target   string
	Filename string
}

// SyncExpenseReportLine uploads a line, then the attachments Loop asks for in
// its acknowledgement. Every attachment is located before the first one is
// uploaded, a line with an ambiguous attachment uploads none.
func (e *Engine) SyncExpenseReportLine(ctx context.Context, reportId, actionUri, lineId string) error {
	ctx, span := tracer.Start(ctx, "SyncExpenseReportLine", trace.WithAttributes(
		attribute.String("report.id", reportId),
		attribute.String("line.id", lineId),
	))
	defer span.End()

	slog.InfoContext(ctx, "syncing expense report line", "report", reportId, "line", lineId)
	detail, err := e.source.ExpenseReportLine(ctx, actionUri, lineId)
	if err != nil {
		return fail(span, err, "failed to fetch expense report line")
	}
	ack, err := e.dest.UploadExpenseReportLine(ctx, reportId, lineId, detail)
	if err != nil {
		return fail(span, err, "failed to upload expense report line")
	}
	e.synced(ctx, KindExpenseReportLine)

	refs := make([]AttachmentRef, len(ack.Attachments))
	for i, attachmentId := range ack.Attachments {
		refs[i], err = attachmentRef(ctx, detail, attachmentId)
		if err != nil {
			return fail(span, err, "failed to locate attachment")
		}
	}

	for _, ref := range refs {
		err = e.SyncAttachment(ctx, reportId, lineId, ref)
		if err != nil {
			return fail(span, err, "failed to sync attachment")
		}
	}
	return nil
}

func attachmentRef(ctx context.Context, lineDetail any, attachmentId string) (AttachmentRef, error) {
	descriptor, err := exactlyOne(ctx, lineDetail, "instanceId", workday.AttachmentInstanceId(attachmentId))
	if err != nil {
		return AttachmentRef{}, err
	}
	target, ok := tree.String(descriptor, "target")
	if !ok || target == "" {
		return AttachmentRef{}, missing(ctx, "attachment target", descriptor)
	}
	filename, ok := tree.String(descriptor, "text")
	if !ok || filename == "" {
		return AttachmentRef{}, missing(ctx, "attachment filename", descriptor)
	}
	return AttachmentRef{Id: attachmentId, Target: target, Filename: filename}, nil
}

func (e *Engine) SyncAttachment(ctx context.Context, reportId, lineId string, ref AttachmentRef) error {
	ctx, span := tracer.Start(ctx, "SyncAttachment", trace.WithAttributes(
		attribute.String("report.id", reportId),
		attribute.String("line.id", lineId),
		attribute.String("attachment.id", ref.Id),
	))
	defer span.End()

	slog.InfoContext(ctx, "syncing attachment", "report", reportId, "line", lineId, "attachment", ref.Id, "filename", ref.Filename)
	content, err := e.source.Attachment(ctx, workday.AttachmentInstanceId(ref.Id), ref.Target)
	if err != nil {
		return fail(span, err, "failed to download attachment")
	}
	err = e.dest.UploadAttachment(ctx, reportId, lineId, ref.Id, ref.Filename, content)
	if err != nil {
		return fail(span, err, "failed to upload attachment")
	}

	e.synced(ctx, KindAttachment)
	e.summary.Bytes += int64(len(content))
	e.counters.bytes.Add(ctx, int64(len(content)))
	return nil
}

// Dispatch syncs every entity of a worklist: workers, then external
// committee members, then expense reports, each in the order listed.
func (e *Engine) Dispatch(ctx context.Context, worklist loop.Worklist) error {
	ctx, span := tracer.Start(ctx, "Dispatch", trace.WithAttributes(
		attribute.Int("worklist.workers", len(worklist.Workers)),
		attribute.Int("worklist.external_committee_members", len(worklist.ExternalCommitteeMembers)),
		attribute.Int("worklist.expense_reports", len(worklist.ExpenseReports)),
	))
	defer span.End()

	for _, id := range worklist.Workers {
		err := e.SyncWorker(ctx, id)
		if err != nil {
			return fail(span, err, "failed to sync worker")
		}
	}
	for _, id := range worklist.ExternalCommitteeMembers {
		err := e.SyncExternalCommitteeMember(ctx, id)
		if err != nil {
			return fail(span, err, "failed to sync external committee member")
		}
	}
	for _, id := range worklist.ExpenseReports {
		err := e.SyncExpenseReport(ctx, id)
		if err != nil {
			return fail(span, err, "failed to sync expense report")
		}
	}
	return nil
}
