package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cychen2021/walmart-receipt-crawler/lib/browser"
)

// fakeSession simulates the site redirecting to login until the user
// completes it manually.
type fakeSession struct {
	current    string
	body       string
	loginPolls int
	// releases the login redirect after this many CurrentURL calls
	releaseAfter int
}

func (s *fakeSession) Navigate(ctx context.Context, address string) (browser.Status, error) {
	if s.releaseAfter > 0 {
		s.current = "https://www.walmart.com/account/login"
	} else {
		s.current = address
	}
	return browser.StatusOK, nil
}

func (s *fakeSession) CurrentURL(ctx context.Context) (string, error) {
	s.loginPolls++
	if s.releaseAfter > 0 {
		s.releaseAfter--
		if s.releaseAfter == 0 {
			s.current = OrdersURL
		}
	}
	return s.current, nil
}

func (s *fakeSession) RenderedRows(ctx context.Context) (string, error) {
	return s.body, nil
}

func TestEnsureOrdersPageDirect(t *testing.T) {
	s := &fakeSession{body: "<main>orders</main>"}
	err := EnsureOrdersPage(context.Background(), s, nil)
	require.NoError(t, err)
	require.Equal(t, OrdersURL, s.current)
}

func TestEnsureOrdersPageWaitsForLogin(t *testing.T) {
	s := &fakeSession{body: "<main>orders</main>", releaseAfter: 2}

	var messages []string
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := EnsureOrdersPage(ctx, s, func(m string) { messages = append(messages, m) })
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Contains(t, messages[0], "log in")
	require.Equal(t, OrdersURL, s.current)
}

func TestEnsureOrdersPageCancelledDuringLogin(t *testing.T) {
	s := &fakeSession{body: "<main>orders</main>", releaseAfter: 1 << 30}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := EnsureOrdersPage(ctx, s, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
