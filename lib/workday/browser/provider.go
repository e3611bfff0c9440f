// Package browser obtains a Workday session by driving Chrome through the
// CAS login and the expense report search, the same way a person would.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"workday-sync/lib/telemetry"
	"workday-sync/lib/workday"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("workday-sync.lib.workday.browser")

// ErrLocatorNotFound is returned when the search finished but none of the
// responses Workday sent carried a result set locator.
var ErrLocatorNotFound = errors.New("browser: could not find chunkingUrl")

const (
	homeTitle          = "Home - Workday"
	homeBannerSelector = "div[data-automation-id='pex-home-banner']"
	submitSelector     = "button[data-automation-id='wd-CommandButton_uic_okButton']"
)

type Options struct {
	BaseUrl string
	Tenant  string

	// Username and Password are entered on the CAS login page when both are
	// set, otherwise the login is left to the person at the browser.
	Username string
	Password string

	// ControlUrl connects to a running Chrome instead of launching one.
	ControlUrl string
	// Bin is the Chrome binary to launch, empty lets rod find or fetch one.
	Bin      string
	Headless bool

	// SearchTask is the path of the search task, without the .htmld suffix.
	SearchTask  string
	SearchTitle string
	Steps       []Step
	// ResultsSelector appears once the search results are rendered.
	ResultsSelector string

	LoginTimeout       time.Duration
	InteractiveTimeout time.Duration
	StepTimeout        time.Duration
	ResultsTimeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.BaseUrl == "" {
		o.BaseUrl = workday.DefaultBaseUrl
	}
	o.BaseUrl = strings.TrimSuffix(o.BaseUrl, "/")
	if o.Tenant == "" {
		o.Tenant = "gatech"
	}
	if o.SearchTask == "" {
		o.SearchTask = fmt.Sprintf("/%s/d/task/1422$269", o.Tenant)
	}
	if o.SearchTitle == "" {
		o.SearchTitle = "Find Expense Reports by Organization - CR - Workday"
	}
	if len(o.Steps) == 0 {
		o.Steps = DefaultSteps()
	}
	if o.ResultsSelector == "" {
		o.ResultsSelector = "div[title='Export to Excel']"
	}
	if o.LoginTimeout == 0 {
		o.LoginTimeout = 20 * time.Second
	}
	if o.InteractiveTimeout == 0 {
		o.InteractiveTimeout = 60 * time.Second
	}
	if o.StepTimeout == 0 {
		o.StepTimeout = 10 * time.Second
	}
	if o.ResultsTimeout == 0 {
		o.ResultsTimeout = 30 * time.Second
	}
	return o
}

func (o Options) interactive() bool {
	return o.Username == "" || o.Password == ""
}

func (o Options) flowControllerUrl() string {
	return fmt.Sprintf("%s/%s/flowController.htmld", o.BaseUrl, o.Tenant)
}

// Provider produces a session by logging in and running the search in Chrome.
type Provider struct {
	opts Options
}

func NewProvider(opts Options) (Provider, error) {
	opts = opts.withDefaults()
	for i, step := range opts.Steps {
		err := step.Validate()
		if err != nil {
			return Provider{}, fmt.Errorf("search step %d: %w", i, err)
		}
	}
	return Provider{opts: opts}, nil
}

func (p Provider) Session(ctx context.Context) (workday.Session, error) {
	ctx, span := tracer.Start(ctx, "browser:Session")
	defer span.End()

	browser, cleanup, err := p.connect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start chrome")
		return workday.Session{}, err
	}
	defer cleanup()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open page")
		return workday.Session{}, err
	}
	defer page.Close()

	err = p.login(ctx, page)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to log in to workday")
		return workday.Session{}, err
	}
	locator, err := p.search(ctx, page)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to search for expense reports")
		return workday.Session{}, err
	}

	cookies, err := page.Cookies([]string{p.opts.BaseUrl})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read cookies")
		return workday.Session{}, err
	}

	session := workday.Session{Cookies: cookieMap(cookies), Locator: locator}
	span.SetAttributes(
		attribute.String("session.locator", locator),
		attribute.Int("session.cookies", len(session.Cookies)),
	)
	return session, session.Validate()
}

func (p Provider) connect(ctx context.Context) (*rod.Browser, func(), error) {
	controlUrl := p.opts.ControlUrl
	var l *launcher.Launcher
	if controlUrl == "" {
		l = launcher.New().Headless(p.opts.Headless)
		if p.opts.Bin != "" {
			l = l.Bin(p.opts.Bin)
		}
		var err error
		controlUrl, err = l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("launch chrome: %w", err)
		}
	}

	browser := rod.New().ControlURL(controlUrl).Context(ctx)
	err := browser.Connect()
	if err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, nil, fmt.Errorf("connect to chrome: %w", err)
	}

	return browser, func() {
		err := browser.Close()
		if err != nil {
			slog.WarnContext(ctx, "failed to close chrome", "err", err)
		}
		if l != nil {
			l.Cleanup()
		}
	}, nil
}

func (p Provider) login(ctx context.Context, page *rod.Page) error {
	ctx, span := tracer.Start(ctx, "browser:login")
	defer span.End()

	slog.InfoContext(ctx, "starting workday authentication")
	err := page.Navigate(fmt.Sprintf("%s/%s/", p.opts.BaseUrl, p.opts.Tenant))
	if err != nil {
		return err
	}

	username, err := page.Timeout(p.opts.StepTimeout).Element("#username")
	if err != nil {
		return fmt.Errorf("wait for login page: %w", err)
	}

	timeout := p.opts.InteractiveTimeout
	if !p.opts.interactive() {
		timeout = p.opts.LoginTimeout

		slog.InfoContext(ctx, "entering credentials")
		err = username.Input(p.opts.Username)
		if err != nil {
			return err
		}
		password, err := page.Element("#password")
		if err != nil {
			return err
		}
		err = password.Input(p.opts.Password)
		if err != nil {
			return err
		}
		submit, err := page.Element("[name=submitbutton]")
		if err != nil {
			return err
		}
		err = submit.Click(proto.InputMouseButtonLeft, 1)
		if err != nil {
			return err
		}
	} else {
		slog.InfoContext(ctx, "no credentials given, waiting for login in the browser", "timeout", timeout)
	}

	// duo runs in between, the login is over once the home page shows up
	slog.InfoContext(ctx, "waiting for authentication to complete")
	err = waitTitle(ctx, page, homeTitle, timeout)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication did not complete")
		return err
	}

	// leaving before the home page is loaded closes the search later on
	_, err = page.Timeout(p.opts.StepTimeout).Element(homeBannerSelector)
	if err != nil {
		return fmt.Errorf("wait for home page: %w", err)
	}
	return nil
}

func waitTitle(ctx context.Context, page *rod.Page, title string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	last := ""
	for {
		info, err := page.Context(ctx).Info()
		if err == nil {
			last = info.Title
			if info.Title == title {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("page title is %q after %s, expected %q", last, timeout, title)
		case <-ticker.C:
		}
	}
}

func (p Provider) search(ctx context.Context, page *rod.Page) (string, error) {
	ctx, span := tracer.Start(ctx, "browser:search")
	defer span.End()

	slog.InfoContext(ctx, "navigating to expense report search")
	err := page.Navigate(p.opts.BaseUrl + p.opts.SearchTask + ".htmld")
	if err != nil {
		return "", err
	}
	err = waitTitle(ctx, page, p.opts.SearchTitle, 2*p.opts.StepTimeout)
	if err != nil {
		return "", err
	}

	for i, step := range p.opts.Steps {
		slog.InfoContext(ctx, "running search step", "index", i, "step", step.String())
		err = p.runStep(page, step)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "search step failed")
			return "", fmt.Errorf("search step %d (%s): %w", i, step, err)
		}
	}

	restore := page.EnableDomain(proto.NetworkEnable{})
	defer restore()

	capture := newCapture(p.opts.flowControllerUrl())
	watchCtx, stopWatching := context.WithCancel(ctx)
	wait := page.Context(watchCtx).EachEvent(capture.onResponse, capture.onFinished)
	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()

	slog.InfoContext(ctx, "submitting search")
	submit, err := page.Element(submitSelector)
	if err == nil {
		err = submit.Click(proto.InputMouseButtonLeft, 1)
	}
	if err == nil {
		slog.InfoContext(ctx, "waiting for report results to load")
		_, err = page.Timeout(p.opts.ResultsTimeout).Element(p.opts.ResultsSelector)
	}
	stopWatching()
	<-done
	if err != nil {
		return "", err
	}

	var bodies [][]byte
	for _, id := range capture.finished() {
		res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(page)
		if err != nil {
			slog.WarnContext(ctx, "failed to read flowController response", "request", id, "err", err)
			continue
		}
		body, err := responseBody(res)
		if err != nil {
			slog.WarnContext(ctx, "failed to decode flowController response", "request", id, "err", err)
			continue
		}
		bodies = append(bodies, body)
	}

	locator, ok := findLocator(bodies)
	if !ok {
		slog.ErrorContext(ctx, "could not find chunkingUrl", "responses", len(bodies))
		span.SetStatus(codes.Error, "no locator")
		return "", ErrLocatorNotFound
	}
	slog.InfoContext(ctx, "found chunking url", "locator", locator)
	return locator, nil
}

func (p Provider) runStep(page *rod.Page, step Step) error {
	page = page.Timeout(p.opts.StepTimeout)
	defer page.CancelTimeout()

	switch step.Kind {
	case StepInput:
		container, err := page.Element(step.Selector)
		if err != nil {
			return err
		}
		field, err := container.Element("input")
		if err != nil {
			return err
		}
		err = field.Input(step.Text)
		if err != nil {
			return err
		}
		err = field.Type(input.Enter)
		if err != nil {
			return err
		}
	case StepClick:
		el, err := page.Element(step.Selector)
		if err != nil {
			return err
		}
		err = el.Click(proto.InputMouseButtonLeft, 1)
		if err != nil {
			return err
		}
	case StepTab:
		err := page.KeyActions().Type(repeat(input.Tab, step.Count)...).Do()
		if err != nil {
			return err
		}
	case StepText:
		typed, err := keys(step.Text)
		if err != nil {
			return err
		}
		err = page.KeyActions().Type(typed...).Do()
		if err != nil {
			return err
		}
	}

	if step.WaitFor != "" {
		el, err := page.Element(step.WaitFor)
		if err != nil {
			return fmt.Errorf("wait for %s: %w", step.WaitFor, err)
		}
		if step.WaitValue != "" {
			err = el.Wait(rod.Eval(`(v) => this.value === v`, step.WaitValue))
			if err != nil {
				return fmt.Errorf("wait for %s to hold %q: %w", step.WaitFor, step.WaitValue, err)
			}
		}
	}
	return nil
}

// capture collects the ids of successful flowController responses whose body
// finished loading.
type capture struct {
	url string

	mu       sync.Mutex
	matched  map[proto.NetworkRequestID]bool
	complete []proto.NetworkRequestID
}

func newCapture(url string) *capture {
	return &capture{url: url, matched: map[proto.NetworkRequestID]bool{}}
}

func (c *capture) onResponse(ev *proto.NetworkResponseReceived) {
	if ev.Response == nil || ev.Response.Status != 200 {
		return
	}
	if !strings.HasPrefix(ev.Response.URL, c.url) {
		return
	}
	c.mu.Lock()
	c.matched[ev.RequestID] = true
	c.mu.Unlock()
}

func (c *capture) onFinished(ev *proto.NetworkLoadingFinished) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.matched[ev.RequestID] {
		c.complete = append(c.complete, ev.RequestID)
	}
}

func (c *capture) finished() []proto.NetworkRequestID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]proto.NetworkRequestID(nil), c.complete...)
}
