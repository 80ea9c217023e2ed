// Package browser wraps a Chrome DevTools session behind the small
// capability set the crawler needs: navigate, read the rendered order
// list, scroll it, and print the current page to PDF.
package browser

import (
	"context"
	"net/http"
)

type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// Session is the transport capability the crawler core consumes. The
// chromedp implementation below is the only production one, tests fake it.
type Session interface {
	// Navigate loads the given address and reports the page status of
	// the navigation response.
	Navigate(ctx context.Context, address string) (Status, error)
	// CurrentURL reports the address the session is currently on.
	CurrentURL(ctx context.Context) (string, error)
	// CurrentStatus inspects the currently loaded page for error or
	// not-found indicators that hide behind a 200 response.
	CurrentStatus(ctx context.Context) (Status, error)
	// RenderedRows returns the HTML of the currently rendered portion
	// of the page's main content.
	RenderedRows(ctx context.Context) (string, error)
	// ScrollList advances the virtualized list by one scroll step.
	ScrollList(ctx context.Context) error
	// SnapshotPDF prints the full current page to a PDF document.
	SnapshotPDF(ctx context.Context) ([]byte, error)
	// Cookies exports the session's cookies so they can be replayed
	// over plain HTTP.
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	Close() error
}

// StatusFromHTTP maps an HTTP response code onto a page status.
func StatusFromHTTP(code int) Status {
	switch {
	case code == http.StatusNotFound:
		return StatusNotFound
	case code >= 400:
		return StatusError
	default:
		return StatusOK
	}
}
