package workdaysync

import (
	"context"
	"log/slog"
	"time"

	"workday-sync/lib/workday"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPageSize is the number of search result rows fetched in bulk.
const DefaultPageSize = 500

// Connect builds the Workday source of a run from its session.
type Connect func(session workday.Session) (Source, error)

type DriverOptions struct {
	// PageSize is the maxRows of the bulk result fetch.
	PageSize int
}

// Driver runs a whole sync: bulk upload of the search results, then every
// entity Loop asks for, then the sync is marked complete.
type Driver struct {
	sessions SessionProvider
	connect  Connect
	dest     Destination
	opts     DriverOptions
}

func NewDriver(sessions SessionProvider, connect Connect, dest Destination, opts DriverOptions) Driver {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return Driver{
		sessions: sessions,
		connect:  connect,
		dest:     dest,
		opts:     opts,
	}
}

// Run fails on the first error, nothing is retried. Loop keeps track of what
// is still outstanding, running again resumes where a failed run stopped.
func (d Driver) Run(ctx context.Context) (Summary, error) {
	runId := uuid.NewString()
	ctx, span := tracer.Start(ctx, "Run", trace.WithAttributes(attribute.String("run.id", runId)))
	defer span.End()

	start := time.Now()
	summary := newSummary()
	summary.RunId = runId
	finish := func(engine *Engine) Summary {
		if engine != nil {
			summary = engine.summary
		}
		summary.RunId = runId
		summary.Duration = time.Since(start)
		return summary.clone()
	}

	logger := slog.With("run", runId)
	logger.InfoContext(ctx, "starting workday sync")

	session, err := d.sessions.Session(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "failed to get workday session", "err", err)
		return finish(nil), fail(span, err, "failed to get workday session")
	}
	source, err := d.connect(session)
	if err != nil {
		logger.ErrorContext(ctx, "failed to connect to workday", "err", err)
		return finish(nil), fail(span, err, "failed to connect to workday")
	}
	engine := NewEngine(source, d.dest)

	logger.InfoContext(ctx, "retrieving all results from workday", "locator", session.Locator, "rows", d.opts.PageSize)
	results, err := source.Results(ctx, 1, d.opts.PageSize)
	if err != nil {
		return finish(engine), fail(span, err, "failed to fetch search results")
	}

	logger.InfoContext(ctx, "uploading results to loop")
	worklist, err := d.dest.UploadExpenseReports(ctx, results)
	if err != nil {
		return finish(engine), fail(span, err, "failed to upload search results")
	}
	logger.InfoContext(
		ctx, "loop acknowledged results",
		"workers", len(worklist.Workers),
		"external_committee_members", len(worklist.ExternalCommitteeMembers),
		"expense_reports", len(worklist.ExpenseReports),
	)
	err = engine.Dispatch(ctx, worklist)
	if err != nil {
		return finish(engine), fail(span, err, "failed to sync acknowledged entities")
	}

	// loop may surface entities it only discovered while processing the results
	worklist, err = d.dest.Worklist(ctx)
	if err != nil {
		return finish(engine), fail(span, err, "failed to get worklist")
	}
	logger.InfoContext(
		ctx, "loop worklist",
		"workers", len(worklist.Workers),
		"external_committee_members", len(worklist.ExternalCommitteeMembers),
		"expense_reports", len(worklist.ExpenseReports),
	)
	err = engine.Dispatch(ctx, worklist)
	if err != nil {
		return finish(engine), fail(span, err, "failed to sync worklist")
	}

	err = d.dest.FinishSync(ctx)
	if err != nil {
		return finish(engine), fail(span, err, "failed to finish sync")
	}

	out := finish(engine)
	span.SetAttributes(attribute.Int("run.synced", out.Total()))
	logger.InfoContext(ctx, "workday sync complete", "synced", out.Total(), "duration", out.Duration)
	return out, nil
}
