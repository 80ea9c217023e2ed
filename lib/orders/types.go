// Package orders implements the receipt discovery pipeline: enumerating
// the account's order list, resolving detail-page addresses, and
// capturing per-order receipt documents.
package orders

import (
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes how an order was placed. Walmart routes in-store
// purchases differently from online ones.
type Kind int

const (
	KindStandard Kind = iota
	KindStorePurchase
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindStandard:
		return "standard"
	case KindStorePurchase:
		return "store_purchase"
	default:
		return "unknown"
	}
}

// Summary is one order as it appears in the order list. Immutable once
// yielded by the enumerator.
type Summary struct {
	ID       string
	PlacedAt time.Time
	Kind     Kind
}

// DateRange is inclusive on both ends.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Validate() error {
	if r.End.Before(r.Start) {
		return fmt.Errorf("end date %s is before start date %s",
			r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}
	return nil
}

// Contains reports whether t falls inside the range, boundaries included.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s to %s", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
}

const defaultRangeDays = 90

// DefaultRange is the last 90 days ending today, truncated to midnight.
// Computed once at pipeline start.
func DefaultRange(now time.Time) DateRange {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return DateRange{
		Start: today.AddDate(0, 0, -defaultRangeDays),
		End:   today,
	}
}

// DetailAddress is a resolved detail-page locator plus the query
// variant that produced it.
type DetailAddress struct {
	URL     string
	Variant Variant
}

// Receipt is the captured document for one order.
type Receipt struct {
	OrderID       string
	PlacedAt      time.Time
	SourceAddress DetailAddress
	PDF           []byte
}

// ResolutionExhaustedError reports that every URL variant failed for
// one order. Recorded per order, never fatal to the run.
type ResolutionExhaustedError struct {
	OrderID   string
	Attempted []DetailAddress
}

func (e *ResolutionExhaustedError) Error() string {
	urls := make([]string, len(e.Attempted))
	for i, a := range e.Attempted {
		urls[i] = a.URL
	}
	return fmt.Sprintf(
		"order %s: all detail address variants failed: %s",
		e.OrderID, strings.Join(urls, ", "),
	)
}

// CaptureError wraps any per-order capture failure: address resolution,
// navigation, or the PDF snapshot itself.
type CaptureError struct {
	OrderID string
	Err     error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture order %s: %s", e.OrderID, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
