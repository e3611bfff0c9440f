// Package notify emails the operators when a sync run aborts.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"

	"workday-sync/lib/telemetry"
	"workday-sync/lib/timezone"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("workday-sync.lib.notify")

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type Options struct {
	Smtp SmtpConfig `json:"smtp"`
	To   []string   `json:"to"`
}

// Failure describes an aborted run.
type Failure struct {
	RunId string
	Err   error
	// Summary is the rendered summary table of what was synced before the
	// run aborted.
	Summary string
	At      time.Time
}

type Notifier struct {
	opts Options
}

func NewNotifier(opts Options) Notifier {
	return Notifier{opts: opts}
}

// Enabled reports whether there is anywhere to send a notification.
func (n Notifier) Enabled() bool {
	return n.opts.Smtp.Server != "" && len(n.opts.To) > 0
}

func (n Notifier) addr() string {
	return fmt.Sprintf("%s:%d", n.opts.Smtp.Server, n.opts.Smtp.Port)
}

func subject(f Failure) string {
	return fmt.Sprintf("workday-sync run %s failed", f.RunId)
}

func body(f Failure) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The Workday sync run %s aborted at %s.\n\n", f.RunId, timezone.Format(f.At))
	if f.Err != nil {
		fmt.Fprintf(&sb, "Error: %s\n", f.Err.Error())
	}
	if f.Summary != "" {
		sb.WriteString("\nSynced before the failure:\n\n")
		sb.WriteString(f.Summary)
		if !strings.HasSuffix(f.Summary, "\n") {
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nThe next run picks up whatever is still outstanding.")
	return sb.String()
}

func (n Notifier) RunFailed(ctx context.Context, f Failure) error {
	ctx, span := tracer.Start(ctx, "notify:RunFailed")
	defer span.End()

	if !n.Enabled() {
		return nil
	}
	if f.At.IsZero() {
		f.At = timezone.Now()
	}
	span.SetAttributes(
		attribute.String("run.id", f.RunId),
		attribute.Int("notify.recipients", len(n.opts.To)),
	)

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("workday-sync <%s>", n.opts.Smtp.EmailAddress)
	mail.To = n.opts.To
	mail.Subject = subject(f)
	mail.Text = []byte(body(f))

	err := mail.Send(
		n.addr(),
		smtp.PlainAuth("", n.opts.Smtp.EmailAddress, n.opts.Smtp.Password, n.opts.Smtp.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(n.addr(), nil)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to send failure notification", "server", n.addr(), "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}

	slog.InfoContext(ctx, "sent failure notification", "to", n.opts.To)
	return nil
}
