package workday

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"workday-sync/lib/htmlutil"
	"workday-sync/lib/restyutil"
	"workday-sync/lib/telemetry"
	"workday-sync/lib/tree"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = telemetry.Tracer("workday-sync.lib.workday")

const DefaultBaseUrl = "https://wd5.myworkday.com"

type Options struct {
	BaseUrl string
	Tenant  string

	ConnectTimeout time.Duration
	// ReadTimeout bounds how long Workday may take to start answering a
	// single record fetch.
	ReadTimeout time.Duration
	// BulkReadTimeout is ReadTimeout for the fetch of the whole result set.
	BulkReadTimeout time.Duration
	// TransferTimeout bounds a whole call, body included.
	TransferTimeout time.Duration

	// RequestsPerSecond paces calls made with the session, 0 disables pacing.
	RequestsPerSecond float64
	UserAgent         string
}

func (o Options) withDefaults() Options {
	if o.BaseUrl == "" {
		o.BaseUrl = DefaultBaseUrl
	}
	if o.Tenant == "" {
		o.Tenant = "gatech"
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 5 * time.Second
	}
	if o.BulkReadTimeout == 0 {
		o.BulkReadTimeout = 60 * time.Second
	}
	if o.TransferTimeout == 0 {
		o.TransferTimeout = 5 * time.Minute
	}
	if o.UserAgent == "" {
		o.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	}
	return o
}

// Client fetches records from Workday with an authenticated session.
type Client struct {
	http    *resty.Client
	opts    Options
	session Session
}

func NewClient(opts Options, session Session) (*Client, error) {
	opts = opts.withDefaults()
	err := session.Validate()
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(opts.BaseUrl, "/"))
	client.SetTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: opts.ConnectTimeout,
		ForceAttemptHTTP2:   true,
	})
	client.SetCookies(session.httpCookies())
	client.SetHeader("user-agent", opts.UserAgent)
	client.SetHeader("accept", "application/json")
	client.SetHeader("accept-encoding", "gzip, deflate, zstd")
	client.SetRedirectPolicy(resty.NoRedirectPolicy())

	if opts.RequestsPerSecond > 0 {
		limiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, "workday-sync.lib.workday.http")

	return &Client{http: client, opts: opts, session: session}, nil
}

// Http exposes the underlying client so callers can attach middleware.
func (c *Client) Http() *resty.Client {
	return c.http
}

type Request struct {
	Method string
	// Path is absolute to the host, without the .htmld suffix.
	Path string
	Form map[string]string
	// Timeout overrides Options.ReadTimeout.
	Timeout time.Duration
}

// Fetch issues one call and returns the decoded json document.
func (c *Client) Fetch(ctx context.Context, req Request) (any, error) {
	ctx, span := tracer.Start(ctx, "client:Fetch")
	defer span.End()

	body, err := c.do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, err
	}

	detail, err := tree.Parse(body)
	if err != nil {
		resErr := &ResponseError{
			Method: req.Method,
			Url:    c.url(req.Path),
			Status: http.StatusOK,
			Body:   string(body),
			Err:    fmt.Errorf("parse json: %w", err),
		}
		if htmlutil.LooksLikeHtml(body) {
			// an expired session is answered with the sign in page
			resErr.Summary = htmlutil.Summarize(body, 120)
			resErr.Err = nil
		}
		slog.ErrorContext(
			ctx, "unexpected response body from workday",
			"method", req.Method,
			"url", resErr.Url,
			"page", resErr.Summary,
			"body", resErr.Body,
		)
		span.RecordError(resErr)
		span.SetStatus(codes.Error, "failed to parse json response")
		return nil, resErr
	}

	return detail, nil
}

// FetchRaw issues one call and returns the decoded body bytes.
func (c *Client) FetchRaw(ctx context.Context, req Request) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "client:FetchRaw")
	defer span.End()

	body, err := c.do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return nil, err
	}
	span.SetAttributes(attribute.Int("body.size", len(body)))
	return body, nil
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("%s%s.htmld", c.http.BaseURL, path)
}

func (c *Client) do(ctx context.Context, req Request) ([]byte, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.opts.ReadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.TransferTimeout)
	defer cancel()
	ctx, stop := restyutil.WithReadTimeout(ctx, timeout)
	defer stop()

	r := c.http.R().SetContext(ctx)
	if len(req.Form) > 0 {
		r.SetFormData(req.Form)
	}

	slog.DebugContext(ctx, "fetching from workday", "method", req.Method, "path", req.Path)
	res, err := r.Execute(req.Method, req.Path+".htmld")
	if err != nil {
		err = restyutil.TimeoutCause(ctx, err)
		slog.ErrorContext(
			ctx, "request to workday failed",
			"method", req.Method,
			"url", c.url(req.Path),
			"err", err,
		)
		return nil, &ResponseError{Method: req.Method, Url: c.url(req.Path), Err: err}
	}

	if res.StatusCode() != http.StatusOK {
		slog.ErrorContext(
			ctx, "unexpected response code from workday",
			"method", req.Method,
			"url", c.url(req.Path),
			"status", res.StatusCode(),
			"body", res.String(),
		)
		return nil, &ResponseError{
			Method: req.Method,
			Url:    c.url(req.Path),
			Status: res.StatusCode(),
			Body:   res.String(),
		}
	}

	body, err := decodeBody(res.Body(), res.Header().Get("Content-Encoding"))
	if err != nil {
		return nil, &ResponseError{
			Method: req.Method,
			Url:    c.url(req.Path),
			Status: res.StatusCode(),
			Err:    err,
		}
	}
	return body, nil
}
