package orders

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cychen2021/walmart-receipt-crawler/lib/browser"
)

// fakePage fakes the detail-page half of the browser capability.
type fakePage struct {
	navStatus   map[string]browser.Status
	pageStatus  browser.Status
	pdf         []byte
	snapshotErr error
	navigated   []string
}

func (p *fakePage) Navigate(ctx context.Context, address string) (browser.Status, error) {
	p.navigated = append(p.navigated, address)
	if status, ok := p.navStatus[address]; ok {
		return status, nil
	}
	return browser.StatusOK, nil
}

func (p *fakePage) CurrentStatus(ctx context.Context) (browser.Status, error) {
	return p.pageStatus, nil
}

func (p *fakePage) SnapshotPDF(ctx context.Context) ([]byte, error) {
	if p.snapshotErr != nil {
		return nil, p.snapshotErr
	}
	return p.pdf, nil
}

func testCapturer(page *fakePage) Capturer {
	return Capturer{
		Browser:  page,
		Resolver: Resolver{Prober: NavigationProber{Browser: page}},
	}
}

func TestCaptureSuccess(t *testing.T) {
	page := &fakePage{pdf: []byte("%PDF-fake")}
	c := testCapturer(page)

	order := Summary{ID: "200012345678", PlacedAt: date(2025, 2, 10), Kind: KindStandard}
	receipt, err := c.Capture(context.Background(), order)
	require.NoError(t, err)

	require.Equal(t, "200012345678", receipt.OrderID)
	require.Equal(t, date(2025, 2, 10), receipt.PlacedAt)
	require.Equal(t, VariantCanonical, receipt.SourceAddress.Variant)
	require.Equal(t, []byte("%PDF-fake"), receipt.PDF)
}

func TestCaptureStorePurchaseResolvesThirdVariant(t *testing.T) {
	page := &fakePage{
		pdf: []byte("%PDF-fake"),
		navStatus: map[string]browser.Status{
			canonicalAddr: browser.StatusNotFound,
			groupAddr:     browser.StatusNotFound,
		},
	}
	c := testCapturer(page)

	order := Summary{ID: "200012345678", PlacedAt: date(2025, 2, 10), Kind: KindStorePurchase}
	receipt, err := c.Capture(context.Background(), order)
	require.NoError(t, err)
	require.Equal(t, VariantGroupStore, receipt.SourceAddress.Variant)
	require.True(t, strings.HasSuffix(receipt.SourceAddress.URL, "groupId=0&storePurchase=true"))
}

func TestCaptureResolutionExhausted(t *testing.T) {
	page := &fakePage{
		navStatus: map[string]browser.Status{
			canonicalAddr:  browser.StatusNotFound,
			groupAddr:      browser.StatusNotFound,
			groupStoreAddr: browser.StatusNotFound,
		},
	}
	c := testCapturer(page)

	_, err := c.Capture(context.Background(), Summary{ID: "200012345678", Kind: KindStorePurchase})

	var captureErr *CaptureError
	require.ErrorAs(t, err, &captureErr)
	require.Equal(t, "200012345678", captureErr.OrderID)
	var exhausted *ResolutionExhaustedError
	require.ErrorAs(t, err, &exhausted)
}

func TestCaptureSnapshotFailure(t *testing.T) {
	page := &fakePage{snapshotErr: fmt.Errorf("print timed out")}
	c := testCapturer(page)

	_, err := c.Capture(context.Background(), Summary{ID: "200012345678"})

	var captureErr *CaptureError
	require.ErrorAs(t, err, &captureErr)
	require.Contains(t, captureErr.Error(), "print timed out")
}
