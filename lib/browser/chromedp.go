package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("browser")

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// best-effort automation-signal reduction, cannot guarantee a bypass
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
window.chrome = { runtime: {} };
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
`

type Options struct {
	// launch a visible browser instead of a headless one, recommended
	// so the user can complete login and verification prompts.
	Headful bool
	// persistent user data dir, keeps the login session across runs.
	// ignored when attaching to an existing browser.
	ProfileDir string
	// attach to an already-running browser over CDP instead of
	// launching one. the browser must have been started with
	// --remote-debugging-port.
	Attach     bool
	DebugPort  int
	ActionWait time.Duration
	UserAgent  string
	// pixels advanced per scroll step over the order list
	ScrollStep int
}

func (o *Options) fillDefaults() {
	if o.ProfileDir == "" {
		o.ProfileDir = filepath.Join(".chrome", "walmart-profile")
	}
	if o.DebugPort == 0 {
		o.DebugPort = 9222
	}
	if o.ActionWait == 0 {
		o.ActionWait = time.Second * 45
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.ScrollStep == 0 {
		o.ScrollStep = 2000
	}
}

// ChromeSession drives a single Chrome tab. All interactions are
// sequential, one session never runs two CDP actions concurrently.
type ChromeSession struct {
	opts    Options
	ctx     context.Context
	cancels []context.CancelFunc
}

func NewSession(ctx context.Context, opts Options) (*ChromeSession, error) {
	opts.fillDefaults()

	s := &ChromeSession{opts: opts}

	var allocCtx context.Context
	var cancel context.CancelFunc
	if opts.Attach {
		allocCtx, cancel = chromedp.NewRemoteAllocator(
			ctx,
			fmt.Sprintf("http://localhost:%d", opts.DebugPort),
		)
		s.cancels = append(s.cancels, cancel)
	} else {
		err := os.MkdirAll(opts.ProfileDir, 0755)
		if err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
		allocOpts := append(
			chromedp.DefaultExecAllocatorOptions[:],
			chromedp.UserDataDir(opts.ProfileDir),
			chromedp.UserAgent(opts.UserAgent),
			chromedp.Flag("headless", !opts.Headful),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("no-first-run", true),
			chromedp.Flag("no-default-browser-check", true),
			chromedp.WindowSize(1380, 820),
		)
		allocCtx, cancel = chromedp.NewExecAllocator(ctx, allocOpts...)
		s.cancels = append(s.cancels, cancel)
	}

	tabCtx, cancel := chromedp.NewContext(allocCtx)
	s.cancels = append(s.cancels, cancel)
	s.ctx = tabCtx

	err := chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(opts.UserAgent).
				WithAcceptLanguage("en-US,en;q=0.9").
				Do(ctx)
		}),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("initialize browser session: %w", err)
	}

	slog.Info("browser session ready", "attach", opts.Attach, "headful", opts.Headful)
	return s, nil
}

// run executes CDP actions against the session tab with the per-action
// timeout, bailing out early if the caller's context is already dead.
func (s *ChromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(s.ctx, s.opts.ActionWait)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *ChromeSession) Navigate(ctx context.Context, address string) (Status, error) {
	ctx, span := tracer.Start(ctx, "session:Navigate")
	defer span.End()
	span.SetAttributes(attribute.String("address", address))

	if err := ctx.Err(); err != nil {
		return StatusError, err
	}
	runCtx, cancel := context.WithTimeout(s.ctx, s.opts.ActionWait)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(address))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
		return StatusError, fmt.Errorf("navigate %s: %w", address, err)
	}
	// a nil response happens on same-document navigations
	if resp == nil {
		return StatusOK, nil
	}
	status := StatusFromHTTP(int(resp.Status))
	slog.Debug("navigated", "address", address, "http_status", resp.Status, "status", status.String())
	return status, nil
}

func (s *ChromeSession) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, chromedp.Location(&loc))
	if err != nil {
		return "", err
	}
	return loc, nil
}

var errPageMarkers = []string{
	"we can’t find this page",
	"we can't find this page",
	"this page could not be found",
	"robot or human",
}

func (s *ChromeSession) CurrentStatus(ctx context.Context) (Status, error) {
	ctx, span := tracer.Start(ctx, "session:CurrentStatus")
	defer span.End()

	var loc string
	var body string
	err := s.run(ctx,
		chromedp.Location(&loc),
		chromedp.Text("body", &body, chromedp.ByQuery),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to inspect page")
		return StatusError, err
	}

	if strings.Contains(loc, "/blocked") {
		return StatusError, nil
	}
	lower := strings.ToLower(body)
	for _, marker := range errPageMarkers {
		if strings.Contains(lower, marker) {
			span.SetAttributes(attribute.String("marker", marker))
			return StatusNotFound, nil
		}
	}
	return StatusOK, nil
}

func (s *ChromeSession) RenderedRows(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "session:RenderedRows")
	defer span.End()

	var html string
	err := s.run(ctx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("body", &html, chromedp.ByQuery),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read rendered rows")
		return "", fmt.Errorf("read rendered rows: %w", err)
	}
	return html, nil
}

func (s *ChromeSession) ScrollList(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "session:ScrollList")
	defer span.End()

	err := s.run(ctx, chromedp.Evaluate(
		fmt.Sprintf("window.scrollBy(0, %d)", s.opts.ScrollStep),
		nil,
	))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scroll failed")
		return fmt.Errorf("scroll list: %w", err)
	}
	return nil
}

func (s *ChromeSession) SnapshotPDF(ctx context.Context) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "session:SnapshotPDF")
	defer span.End()

	var pdf []byte
	err := s.run(ctx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pdf snapshot failed")
		return nil, fmt.Errorf("snapshot pdf: %w", err)
	}
	span.SetAttributes(attribute.Int("pdf_bytes", len(pdf)))
	return pdf, nil
}

func (s *ChromeSession) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var cookies []*http.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cdpCookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cdpCookies {
			cookies = append(cookies, &http.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: c.Domain,
				Path:   c.Path,
				Secure: c.Secure,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("export cookies: %w", err)
	}
	return cookies, nil
}

// Close tears down the tab and, in launch mode, the browser process.
// In attach mode the user's browser is left running.
func (s *ChromeSession) Close() error {
	for i := len(s.cancels) - 1; i >= 0; i-- {
		s.cancels[i]()
	}
	return nil
}
