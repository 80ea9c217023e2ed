// Package probe checks detail-page addresses over plain HTTP, reusing
// the browser session's cookies. It is much cheaper than a full
// navigation when trying several URL variants per order.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cychen2021/walmart-receipt-crawler/lib/browser"
	"github.com/cychen2021/walmart-receipt-crawler/lib/restyutil"
)

var tracer = otel.Tracer("probe")

var instrumentOutput restyutil.InstrumentOutput

// SetInstrumentOutput enables request/response dumps for debugging.
// Must be called before NewClient.
func SetInstrumentOutput(output restyutil.InstrumentOutput) {
	instrumentOutput = output
}

type Client struct {
	Http *resty.Client
}

type ClientOptions struct {
	UserAgent string
	Timeout   time.Duration
	// cookies exported from the authenticated browser session
	Cookies []*http.Cookie
}

func NewClient(opts ClientOptions) (*Client, error) {
	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetCookies(opts.Cookies)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	if opts.UserAgent != "" {
		client.SetHeader("user-agent", opts.UserAgent)
	}
	client.SetHeader("accept-language", "en-US,en;q=0.9")
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}
	client.SetTimeout(timeout)

	restyutil.InstrumentClient(client, tracer, instrumentOutput)

	return &Client{Http: client}, nil
}

var notFoundMarkers = []string{
	"we can’t find this page",
	"we can't find this page",
	"this page could not be found",
}

// Status fetches the address and reports whether it serves a usable
// detail page. Error pages that come back as 200 are caught by body
// markers.
func (c *Client) Status(ctx context.Context, address string) (browser.Status, error) {
	ctx, span := tracer.Start(ctx, "probe:Status")
	defer span.End()
	span.SetAttributes(attribute.String("address", address))

	if _, err := url.Parse(address); err != nil {
		return browser.StatusError, fmt.Errorf("invalid address %q: %w", address, err)
	}

	res, err := c.Http.R().
		SetContext(ctx).
		Get(address)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe request failed")
		return browser.StatusError, fmt.Errorf("probe %s: %w", address, err)
	}

	status := browser.StatusFromHTTP(res.StatusCode())
	if status != browser.StatusOK {
		span.SetAttributes(attribute.Int("http_status", res.StatusCode()))
		return status, nil
	}

	body := strings.ToLower(res.String())
	for _, marker := range notFoundMarkers {
		if strings.Contains(body, marker) {
			span.SetAttributes(attribute.String("marker", marker))
			return browser.StatusNotFound, nil
		}
	}
	return browser.StatusOK, nil
}
