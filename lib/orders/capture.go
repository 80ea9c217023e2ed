package orders

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cychen2021/walmart-receipt-crawler/lib/browser"
)

// PageBrowser is the slice of the browser capability capture needs.
type PageBrowser interface {
	Navigate(ctx context.Context, address string) (browser.Status, error)
	CurrentStatus(ctx context.Context) (browser.Status, error)
	SnapshotPDF(ctx context.Context) ([]byte, error)
}

// NavigationProber resolves detail addresses through the browser
// session itself: navigate and inspect the resulting page. Slower than
// the HTTP prober but sees exactly what a capture would see.
type NavigationProber struct {
	Browser PageBrowser
}

func (p NavigationProber) Status(ctx context.Context, address string) (browser.Status, error) {
	status, err := p.Browser.Navigate(ctx, address)
	if err != nil {
		return browser.StatusError, err
	}
	if status != browser.StatusOK {
		return status, nil
	}
	// error pages frequently hide behind a 200
	return p.Browser.CurrentStatus(ctx)
}

// Capturer produces the receipt document for one accepted order.
type Capturer struct {
	Browser  PageBrowser
	Resolver Resolver
}

// Capture resolves a working detail address for the order, navigates to
// it, and snapshots the page as a PDF. Every failure mode comes back as
// a *CaptureError so the caller can record it and move on.
func (c Capturer) Capture(ctx context.Context, order Summary) (Receipt, error) {
	ctx, span := tracer.Start(ctx, "capturer:Capture")
	defer span.End()
	span.SetAttributes(attribute.String("order_id", order.ID))

	addr, err := c.Resolver.Resolve(ctx, order.ID, order.Kind)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "address resolution failed")
		return Receipt{}, &CaptureError{OrderID: order.ID, Err: err}
	}

	status, err := c.Browser.Navigate(ctx, addr.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
		return Receipt{}, &CaptureError{OrderID: order.ID, Err: err}
	}
	if status != browser.StatusOK {
		err := fmt.Errorf("detail page %s loaded with status %s", addr.URL, status)
		span.SetStatus(codes.Error, err.Error())
		return Receipt{}, &CaptureError{OrderID: order.ID, Err: err}
	}

	pdf, err := c.Browser.SnapshotPDF(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot failed")
		return Receipt{}, &CaptureError{OrderID: order.ID, Err: err}
	}

	return Receipt{
		OrderID:       order.ID,
		PlacedAt:      order.PlacedAt,
		SourceAddress: addr,
		PDF:           pdf,
	}, nil
}
