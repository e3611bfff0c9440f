package restyutil

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptrace"
	"sync"
	"time"
)

var ErrNoResponse = errors.New("no response before the read timeout")

// WithReadTimeout returns a context that is canceled when the server does not
// start answering within timeout of the request being written. Reading the
// body is not bounded by it, only by the deadline of the parent.
//
// Only the first exchange is timed, redirects fall back to the parent deadline.
func WithReadTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)

	var (
		mu        sync.Mutex
		timer     *time.Timer
		responded bool
	)
	stop := func() {
		mu.Lock()
		defer mu.Unlock()
		responded = true
		if timer != nil {
			timer.Stop()
		}
	}

	trace := &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) {
			mu.Lock()
			defer mu.Unlock()
			// a server may answer before the request body is fully written
			if responded || timer != nil {
				return
			}
			timer = time.AfterFunc(timeout, func() {
				cancel(fmt.Errorf("%w (%s)", ErrNoResponse, timeout))
			})
		},
		GotFirstResponseByte: stop,
	}

	return httptrace.WithClientTrace(ctx, trace), func() {
		stop()
		cancel(context.Canceled)
	}
}

// TimeoutCause replaces err with the reason ctx was canceled when that reason
// is a read timeout, transports only report "context canceled".
func TimeoutCause(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrNoResponse) {
		return fmt.Errorf("%w: %w", cause, err)
	}
	return err
}
