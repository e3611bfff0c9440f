package loop

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"workday-sync/lib/restyutil"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type received struct {
	method        string
	path          string
	authorization string
	contentType   string
	body          string
	filename      string
	fileContent   string
}

func newTestServer(t testing.TB, status int, reply string) (*Client, *[]received) {
	var calls []received
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := received{
			method:        r.Method,
			path:          r.URL.Path,
			authorization: r.Header.Get("Authorization"),
			contentType:   r.Header.Get("Content-Type"),
		}
		if strings.HasPrefix(call.contentType, "multipart/") {
			file, header, err := r.FormFile("attachment")
			if err == nil {
				content, _ := io.ReadAll(file)
				call.filename = header.Filename
				call.fileContent = string(content)
			}
		} else {
			body, _ := io.ReadAll(r.Body)
			call.body = string(body)
		}
		calls = append(calls, call)

		w.WriteHeader(status)
		w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Options{Server: server.URL + "/", Token: "token-123"})
	require.NoError(t, err)
	return client, &calls
}

func TestNewClientRequiresConnection(t *testing.T) {
	_, err := NewClient(Options{Token: "x"})
	require.Error(t, err)
	_, err = NewClient(Options{Server: "http://localhost"})
	require.Error(t, err)
}

func TestUploadExpenseReports(t *testing.T) {
	client, calls := newTestServer(t, http.StatusOK, `{
		"workers": ["100"],
		"external-committee-members": [],
		"expense-reports": ["7", 8]
	}`)

	results := map[string]any{"body": map[string]any{"children": []any{}}}
	worklist, err := client.UploadExpenseReports(context.Background(), results)
	require.NoError(t, err)

	expected := Worklist{
		Workers:                  []string{"100"},
		ExternalCommitteeMembers: []string{},
		ExpenseReports:           []string{"7", "8"},
	}
	if diff := cmp.Diff(expected, worklist); diff != "" {
		t.Fatal(diff)
	}

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	require.Equal(t, http.MethodPost, call.method)
	require.Equal(t, "/api/v1/workday/expense-reports", call.path)
	require.Equal(t, "Bearer token-123", call.authorization)
	require.Equal(t, "application/json", call.contentType)
	require.JSONEq(t, `{"body": {"children": []}}`, call.body)
}

func TestUploadPaths(t *testing.T) {
	testCases := []struct {
		name   string
		upload func(c *Client) error
		method string
		path   string
	}{
		{
			name: "expense report",
			upload: func(c *Client) error {
				return c.UploadExpenseReport(context.Background(), "7", map[string]any{})
			},
			method: http.MethodPut,
			path:   "/api/v1/workday/expense-reports/7",
		},
		{
			name: "worker",
			upload: func(c *Client) error {
				return c.UploadWorker(context.Background(), map[string]any{})
			},
			method: http.MethodPost,
			path:   "/api/v1/workday/workers",
		},
		{
			name: "external committee member",
			upload: func(c *Client) error {
				return c.UploadExternalCommitteeMember(context.Background(), map[string]any{})
			},
			method: http.MethodPost,
			path:   "/api/v1/workday/external-committee-members",
		},
		{
			name: "finish sync",
			upload: func(c *Client) error {
				return c.FinishSync(context.Background())
			},
			method: http.MethodPost,
			path:   "/api/v1/workday/sync",
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			client, calls := newTestServer(t, http.StatusOK, `{}`)
			require.NoError(t, test.upload(client))
			require.Len(t, *calls, 1)
			require.Equal(t, test.method, (*calls)[0].method)
			require.Equal(t, test.path, (*calls)[0].path)
		})
	}
}

func TestUploadExpenseReportLine(t *testing.T) {
	client, calls := newTestServer(t, http.StatusOK, `{"attachments": ["42", "43"]}`)

	ack, err := client.UploadExpenseReportLine(context.Background(), "7", "A", map[string]any{"id": "A"})
	require.NoError(t, err)
	require.Equal(t, []string{"42", "43"}, ack.Attachments)
	require.Equal(t, http.MethodPut, (*calls)[0].method)
	require.Equal(t, "/api/v1/workday/expense-reports/7/lines/A", (*calls)[0].path)
}

func TestUploadAttachment(t *testing.T) {
	client, calls := newTestServer(t, http.StatusOK, `{}`)

	err := client.UploadAttachment(context.Background(), "7", "A", "42", "receipt.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	require.Equal(t, http.MethodPost, call.method)
	require.Equal(t, "/api/v1/workday/expense-reports/7/lines/A/attachments/42", call.path)
	require.Equal(t, "Bearer token-123", call.authorization)
	require.Equal(t, "receipt.pdf", call.filename)
	require.Equal(t, "%PDF-1.4", call.fileContent)
}

func TestWorklist(t *testing.T) {
	client, calls := newTestServer(t, http.StatusOK, `{
		"workers": [],
		"external-committee-members": ["3"],
		"expense-reports": []
	}`)

	worklist, err := client.Worklist(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"3"}, worklist.ExternalCommitteeMembers)
	require.Equal(t, 1, worklist.Len())
	require.Equal(t, http.MethodGet, (*calls)[0].method)
	require.Equal(t, "/api/v1/workday/sync", (*calls)[0].path)
}

func TestRejectedUpload(t *testing.T) {
	client, _ := newTestServer(t, http.StatusInternalServerError, `{"message": "boom"}`)

	detail := map[string]any{"title": "Travel"}
	err := client.UploadExpenseReport(context.Background(), "7", detail)
	require.ErrorIs(t, err, ErrDestinationRejected)

	var resErr *ResponseError
	require.True(t, errors.As(err, &resErr))
	require.Equal(t, http.StatusInternalServerError, resErr.Status)
	require.Equal(t, `{"message": "boom"}`, resErr.Body)
	require.Equal(t, detail, resErr.Detail)

	_, err = client.Worklist(context.Background())
	require.ErrorIs(t, err, ErrDestinationRejected)

	err = client.FinishSync(context.Background())
	require.ErrorIs(t, err, ErrDestinationRejected)
}

func TestUnreachableDestination(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client, err := NewClient(Options{Server: server.URL, Token: "token"})
	require.NoError(t, err)

	err = client.UploadWorker(context.Background(), map[string]any{})
	require.ErrorIs(t, err, ErrDestinationRejected)
}

func TestMalformedWorklist(t *testing.T) {
	testCases := []struct {
		name      string
		reply     string
		malformed bool
	}{
		{name: "missing kind", reply: `{"workers": [], "expense-reports": []}`, malformed: true},
		{name: "not a list", reply: `{"workers": "100", "external-committee-members": [], "expense-reports": []}`, malformed: true},
		{name: "null list", reply: `{"workers": null, "external-committee-members": [], "expense-reports": []}`, malformed: true},
		{name: "null item", reply: `{"workers": [null], "external-committee-members": [], "expense-reports": []}`, malformed: true},
		{name: "object item", reply: `{"workers": [{}], "external-committee-members": [], "expense-reports": []}`, malformed: true},
		{name: "not an object", reply: `[]`, malformed: true},
		{name: "not json", reply: `<html></html>`},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			client, _ := newTestServer(t, http.StatusOK, test.reply)
			_, err := client.Worklist(context.Background())
			require.ErrorIs(t, err, ErrDestinationRejected)
			if test.malformed {
				require.ErrorIs(t, err, ErrMalformedAck)
			}
		})
	}
}

func TestLineAckRequiresAttachments(t *testing.T) {
	var ack LineAck
	err := json.Unmarshal([]byte(`{}`), &ack)
	require.ErrorIs(t, err, ErrMalformedAck)

	err = json.Unmarshal([]byte(`{"attachments": []}`), &ack)
	require.NoError(t, err)
	require.Empty(t, ack.Attachments)
}

func TestSlowAcknowledgementWithinReadTimeout(t *testing.T) {
	chunks := []string{`{"workers": ["100"], `, `"external-committee-members": [], `, `"expense-reports": []}`}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		for _, chunk := range chunks {
			w.Write([]byte(chunk))
			w.(http.Flusher).Flush()
			time.Sleep(40 * time.Millisecond)
		}
	}))
	defer server.Close()

	client, err := NewClient(Options{Server: server.URL, Token: "token", ReadTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	worklist, err := client.Worklist(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"100"}, worklist.Workers)
}

func TestNoAnswerWithinReadTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client, err := NewClient(Options{Server: server.URL, Token: "token", ReadTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	err = client.FinishSync(context.Background())
	require.ErrorIs(t, err, ErrDestinationRejected)
	require.ErrorIs(t, err, restyutil.ErrNoResponse)
}

type runKey struct{}

// ctxHandler records the run id carried by the context of each error record.
type ctxHandler struct {
	slog.Handler
	runs *[]string
}

func (h ctxHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level == slog.LevelError {
		run, _ := ctx.Value(runKey{}).(string)
		*h.runs = append(*h.runs, run)
	}
	return h.Handler.Handle(ctx, record)
}

func TestMalformedAckIsLoggedWithCallerContext(t *testing.T) {
	var runs []string
	previous := slog.Default()
	slog.SetDefault(slog.New(ctxHandler{Handler: slog.NewTextHandler(io.Discard, nil), runs: &runs}))
	defer slog.SetDefault(previous)

	client, _ := newTestServer(t, http.StatusOK, `{"workers": [null], "external-committee-members": [], "expense-reports": []}`)
	ctx := context.WithValue(context.Background(), runKey{}, "run-7")
	_, err := client.Worklist(ctx)
	require.ErrorIs(t, err, ErrMalformedAck)

	require.NotEmpty(t, runs)
	for _, run := range runs {
		require.Equal(t, "run-7", run)
	}
}
