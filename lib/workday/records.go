package workday

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// class ids Workday prefixes instance ids with
const (
	classWorker                  = "1$37/247"
	classExternalCommitteeMember = "1$15341/15341"
	classExpenseReport           = "1$1356/1356"
	classAttachment              = "1074"
)

// AttachmentInstanceId returns the instance id Workday uses for an attachment
// in the documents of an expense report line.
func AttachmentInstanceId(attachmentId string) string {
	return classAttachment + "$" + attachmentId
}

func (c *Client) instancePath(class, id string) string {
	return fmt.Sprintf("/%s/inst/%s$%s", c.opts.Tenant, class, id)
}

// Worker fetches the profile of a worker.
func (c *Client) Worker(ctx context.Context, id string) (any, error) {
	ctx, span := tracer.Start(ctx, "client:Worker")
	defer span.End()

	return c.Fetch(ctx, Request{
		Method: http.MethodGet,
		Path:   c.instancePath(classWorker, id),
	})
}

// ExternalCommitteeMember fetches an external committee member. Workday only
// serves these as preview documents, hence the POST.
func (c *Client) ExternalCommitteeMember(ctx context.Context, id string) (any, error) {
	ctx, span := tracer.Start(ctx, "client:ExternalCommitteeMember")
	defer span.End()

	return c.Fetch(ctx, Request{
		Method: http.MethodPost,
		Path:   c.instancePath(classExternalCommitteeMember, id),
		Form:   map[string]string{"preview": "1"},
	})
}

// ExpenseReport fetches the detail page of an expense report.
func (c *Client) ExpenseReport(ctx context.Context, id string) (any, error) {
	ctx, span := tracer.Start(ctx, "client:ExpenseReport")
	defer span.End()

	return c.Fetch(ctx, Request{
		Method: http.MethodGet,
		Path:   c.instancePath(classExpenseReport, id),
	})
}

// ExpenseReportLine fetches a line of an expense report through the action
// uri found in the report's detail page.
func (c *Client) ExpenseReportLine(ctx context.Context, actionUri, lineId string) (any, error) {
	ctx, span := tracer.Start(ctx, "client:ExpenseReportLine")
	defer span.End()

	return c.Fetch(ctx, Request{
		Method: http.MethodPost,
		Path:   actionUri,
		Form:   map[string]string{"id": lineId},
	})
}

// Attachment downloads the contents of an attachment.
func (c *Client) Attachment(ctx context.Context, instanceId, target string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "client:Attachment")
	defer span.End()

	return c.FetchRaw(ctx, Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/%s/attachment/%s/%s", c.opts.Tenant, instanceId, target),
	})
}

// Results fetches a page of the search result set the session points to.
// Rows are numbered from 1.
func (c *Client) Results(ctx context.Context, startRow, maxRows int) (any, error) {
	ctx, span := tracer.Start(ctx, "client:Results")
	defer span.End()

	return c.Fetch(ctx, Request{
		Method: http.MethodPost,
		Path:   c.session.Locator,
		Form: map[string]string{
			"startRow": strconv.Itoa(startRow),
			"maxRows":  strconv.Itoa(maxRows),
		},
		Timeout: c.opts.BulkReadTimeout,
	})
}
