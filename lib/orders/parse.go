package orders

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/cychen2021/walmart-receipt-crawler/lib/htmlutil"
)

var orderDateLayouts = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"01/02/2006",
	"2006-01-02",
}

func parseOrderDate(text string) (time.Time, bool) {
	text = htmlutil.CleanText(text)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range orderDateLayouts {
		t, err := time.Parse(layout, text)
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func kindFromRow(href *url.URL, rowText string) Kind {
	if href.Query().Get("storePurchase") == "true" {
		return KindStorePurchase
	}
	lower := strings.ToLower(rowText)
	if strings.Contains(lower, "store purchase") || strings.Contains(lower, "in-store") {
		return KindStorePurchase
	}
	if strings.Contains(href.Path, "/orders/") {
		return KindStandard
	}
	return KindUnknown
}

// ParseRows extracts order summaries from the rendered order-list HTML.
// Rows whose date cannot be determined are skipped; deduplication is the
// enumerator's job, the same order may appear here repeatedly across
// overlapping scroll windows.
func ParseRows(pageHTML string) ([]Summary, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, err
	}

	var out []Summary
	doc.Find("a[href*='/orders/']").Each(func(_ int, sel *goquery.Selection) {
		rawHref, ok := sel.Attr("href")
		if !ok {
			return
		}
		href, err := url.Parse(rawHref)
		if err != nil {
			return
		}

		segments := strings.Split(strings.Trim(href.Path, "/"), "/")
		id := segments[len(segments)-1]
		if id == "" || id == "orders" {
			return
		}

		row := sel.Closest("[data-order-id], li, div")
		rowText := htmlutil.CleanText(row.Text())

		dateText := row.Find("time").First().Text()
		placedAt, ok := parseOrderDate(dateText)
		if !ok {
			// could extend by opening the detail page, not worth a
			// navigation per unparseable row
			slog.Debug("skipping row with unparseable date", "order_id", id)
			return
		}

		out = append(out, Summary{
			ID:       id,
			PlacedAt: placedAt,
			Kind:     kindFromRow(href, rowText),
		})
	})
	return out, nil
}
