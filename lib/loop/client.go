package loop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"workday-sync/lib/restyutil"
	"workday-sync/lib/telemetry"
	"workday-sync/lib/tree"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("workday-sync.lib.loop")

const apiPrefix = "/api/v1/workday"

type Options struct {
	// Server is the base url of Loop, ex. https://loop.example.com
	Server string
	Token  string

	ConnectTimeout time.Duration
	// ReadTimeout bounds how long Loop may take to start answering once a
	// request has been sent.
	ReadTimeout time.Duration
	// BulkReadTimeout is ReadTimeout for the upload of the whole search result set.
	BulkReadTimeout time.Duration
	// AttachmentReadTimeout is ReadTimeout for attachment uploads.
	AttachmentReadTimeout time.Duration
	// TransferTimeout bounds a whole call, request and response bodies included.
	TransferTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 5 * time.Second
	}
	if o.BulkReadTimeout == 0 {
		o.BulkReadTimeout = 60 * time.Second
	}
	if o.AttachmentReadTimeout == 0 {
		o.AttachmentReadTimeout = 10 * time.Second
	}
	if o.TransferTimeout == 0 {
		o.TransferTimeout = 5 * time.Minute
	}
	return o
}

// Client uploads Workday documents to Loop.
type Client struct {
	http *resty.Client
	opts Options
}

func NewClient(opts Options) (*Client, error) {
	opts = opts.withDefaults()
	if opts.Server == "" {
		return nil, fmt.Errorf("loop server url is required")
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("loop token is required")
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(opts.Server, "/"))
	client.SetTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: opts.ConnectTimeout,
		ForceAttemptHTTP2:   true,
	})
	client.SetAuthToken(opts.Token)
	client.SetHeader("accept", "application/json")

	telemetry.InstrumentResty(client, "workday-sync.lib.loop.http")

	return &Client{http: client, opts: opts}, nil
}

// Http exposes the underlying client so callers can attach middleware.
func (c *Client) Http() *resty.Client {
	return c.http
}

type call struct {
	method  string
	path    string
	timeout time.Duration
	// detail is sent as the json body when set.
	detail any
	// file is sent as the multipart field "attachment" when set.
	file *file
}

type file struct {
	name    string
	content []byte
}

func (c *Client) do(ctx context.Context, in call) (*resty.Response, error) {
	timeout := in.timeout
	if timeout == 0 {
		timeout = c.opts.ReadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.TransferTimeout)
	defer cancel()
	ctx, stop := restyutil.WithReadTimeout(ctx, timeout)
	defer stop()

	req := c.http.R().SetContext(ctx)
	if in.detail != nil {
		body, err := json.Marshal(in.detail)
		if err != nil {
			return nil, err
		}
		req.SetHeader("content-type", "application/json").SetBody(body)
	}
	if in.file != nil {
		req.SetFileReader("attachment", in.file.name, bytes.NewReader(in.file.content))
	}

	url := c.http.BaseURL + in.path
	res, err := req.Execute(in.method, in.path)
	if err != nil {
		err = restyutil.TimeoutCause(ctx, err)
		slog.ErrorContext(ctx, "request to loop failed", "method", in.method, "url", url, "err", err)
		return nil, &ResponseError{Method: in.method, Url: url, Detail: in.detail, Err: err}
	}

	if res.StatusCode() != http.StatusOK {
		args := []any{
			"method", in.method,
			"url", url,
			"status", res.StatusCode(),
			"body", res.String(),
		}
		if in.detail != nil {
			// the rejected document is what an operator needs to reproduce the failure
			args = append(args, "detail", tree.Dump(in.detail))
		}
		slog.ErrorContext(ctx, "unexpected response code from loop", args...)
		return nil, &ResponseError{
			Method: in.method,
			Url:    url,
			Status: res.StatusCode(),
			Body:   res.String(),
			Detail: in.detail,
		}
	}

	slog.DebugContext(ctx, "loop accepted request", "method", in.method, "url", url, "body", res.String())
	return res, nil
}

func decodeAck[T any](ctx context.Context, res *resty.Response, out *T) error {
	err := json.Unmarshal(res.Body(), out)
	if err != nil {
		slog.ErrorContext(
			ctx, "unexpected acknowledgement from loop",
			"url", res.Request.URL,
			"body", res.String(),
			"err", err,
		)
		return &ResponseError{
			Method: res.Request.Method,
			Url:    res.Request.URL,
			Status: res.StatusCode(),
			Body:   res.String(),
			Err:    err,
		}
	}
	return nil
}

// UploadExpenseReports uploads a page of search results and returns the
// entities Loop wants next.
func (c *Client) UploadExpenseReports(ctx context.Context, results any) (Worklist, error) {
	ctx, span := tracer.Start(ctx, "client:UploadExpenseReports")
	defer span.End()

	res, err := c.do(ctx, call{
		method:  http.MethodPost,
		path:    apiPrefix + "/expense-reports",
		timeout: c.opts.BulkReadTimeout,
		detail:  results,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload expense reports")
		return Worklist{}, err
	}

	var worklist Worklist
	err = decodeAck(ctx, res, &worklist)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode worklist")
		return Worklist{}, err
	}
	span.SetAttributes(attribute.Int("worklist.size", worklist.Len()))
	return worklist, nil
}

func (c *Client) UploadExpenseReport(ctx context.Context, reportId string, detail any) error {
	ctx, span := tracer.Start(ctx, "client:UploadExpenseReport")
	defer span.End()

	_, err := c.do(ctx, call{
		method: http.MethodPut,
		path:   fmt.Sprintf("%s/expense-reports/%s", apiPrefix, reportId),
		detail: detail,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload expense report")
	}
	return err
}

// UploadExpenseReportLine uploads a line and returns the attachments of that
// line Loop does not have yet.
func (c *Client) UploadExpenseReportLine(ctx context.Context, reportId, lineId string, detail any) (LineAck, error) {
	ctx, span := tracer.Start(ctx, "client:UploadExpenseReportLine")
	defer span.End()

	res, err := c.do(ctx, call{
		method: http.MethodPut,
		path:   fmt.Sprintf("%s/expense-reports/%s/lines/%s", apiPrefix, reportId, lineId),
		detail: detail,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload expense report line")
		return LineAck{}, err
	}

	var ack LineAck
	err = decodeAck(ctx, res, &ack)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode line acknowledgement")
		return LineAck{}, err
	}
	return ack, nil
}

func (c *Client) UploadAttachment(ctx context.Context, reportId, lineId, attachmentId, filename string, content []byte) error {
	ctx, span := tracer.Start(ctx, "client:UploadAttachment")
	defer span.End()

	span.SetAttributes(
		attribute.String("attachment.filename", filename),
		attribute.Int("attachment.size", len(content)),
	)

	_, err := c.do(ctx, call{
		method: http.MethodPost,
		path: fmt.Sprintf(
			"%s/expense-reports/%s/lines/%s/attachments/%s",
			apiPrefix, reportId, lineId, attachmentId,
		),
		timeout: c.opts.AttachmentReadTimeout,
		file:    &file{name: filename, content: content},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload attachment")
	}
	return err
}

func (c *Client) UploadWorker(ctx context.Context, detail any) error {
	ctx, span := tracer.Start(ctx, "client:UploadWorker")
	defer span.End()

	_, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   apiPrefix + "/workers",
		detail: detail,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload worker")
	}
	return err
}

func (c *Client) UploadExternalCommitteeMember(ctx context.Context, detail any) error {
	ctx, span := tracer.Start(ctx, "client:UploadExternalCommitteeMember")
	defer span.End()

	_, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   apiPrefix + "/external-committee-members",
		detail: detail,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload external committee member")
	}
	return err
}

// Worklist returns the entities Loop still needs.
func (c *Client) Worklist(ctx context.Context) (Worklist, error) {
	ctx, span := tracer.Start(ctx, "client:Worklist")
	defer span.End()

	res, err := c.do(ctx, call{
		method: http.MethodGet,
		path:   apiPrefix + "/sync",
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get worklist")
		return Worklist{}, err
	}

	var worklist Worklist
	err = decodeAck(ctx, res, &worklist)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode worklist")
		return Worklist{}, err
	}
	span.SetAttributes(attribute.Int("worklist.size", worklist.Len()))
	return worklist, nil
}

// FinishSync tells Loop the run is complete.
func (c *Client) FinishSync(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:FinishSync")
	defer span.End()

	_, err := c.do(ctx, call{
		method: http.MethodPost,
		path:   apiPrefix + "/sync",
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to finish sync")
	}
	return err
}
