package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/cychen2021/walmart-receipt-crawler/lib/browser"
)

// SessionBrowser is the slice of the browser capability the login flow
// needs.
type SessionBrowser interface {
	Navigate(ctx context.Context, address string) (browser.Status, error)
	CurrentURL(ctx context.Context) (string, error)
	RenderedRows(ctx context.Context) (string, error)
}

const loginPollInterval = 2 * time.Second

// EnsureOrdersPage navigates to the order list, and when the site
// redirects to login or throws up a bot challenge, tells the user (via
// notify) to resolve it in the visible browser and waits until the
// order list is reachable. No credentials are ever collected, the user
// logs in manually. Blocks until the list is open or ctx expires.
func EnsureOrdersPage(ctx context.Context, b SessionBrowser, notify func(message string)) error {
	ctx, span := tracer.Start(ctx, "EnsureOrdersPage")
	defer span.End()
	if notify == nil {
		notify = func(string) {}
	}

	if _, err := b.Navigate(ctx, OrdersURL); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open orders page")
		return fmt.Errorf("open orders page: %w", err)
	}

	loc, err := b.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("open orders page: %w", err)
	}

	if strings.Contains(loc, "/account/login") {
		notify("Please log in to Walmart in the opened browser and complete any verification if prompted.")
		err = waitUntil(ctx, func() (bool, error) {
			loc, err := b.CurrentURL(ctx)
			if err != nil {
				return false, nil
			}
			return !strings.Contains(loc, "/account/login"), nil
		})
		if err != nil {
			span.SetStatus(codes.Error, "login never completed")
			return fmt.Errorf("waiting for login: %w", err)
		}
		slog.Info("login completed")
	}

	if challenged, _ := botChallenged(ctx, b); challenged {
		notify("Bot challenge detected. Please complete it in the browser.")
		err = waitUntil(ctx, func() (bool, error) {
			challenged, err := botChallenged(ctx, b)
			if err != nil {
				return false, nil
			}
			return !challenged, nil
		})
		if err != nil {
			span.SetStatus(codes.Error, "bot challenge never cleared")
			return fmt.Errorf("waiting for bot challenge: %w", err)
		}
		slog.Info("bot challenge cleared")
	}

	// land back on the order list after whatever detour happened
	loc, err = b.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("open orders page: %w", err)
	}
	if !strings.Contains(loc, "/orders") {
		if _, err := b.Navigate(ctx, OrdersURL); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to reopen orders page")
			return fmt.Errorf("reopen orders page: %w", err)
		}
	}
	return nil
}

func botChallenged(ctx context.Context, b SessionBrowser) (bool, error) {
	loc, err := b.CurrentURL(ctx)
	if err != nil {
		return false, err
	}
	if strings.Contains(loc, "/blocked") {
		return true, nil
	}
	body, err := b.RenderedRows(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(body), "robot or human"), nil
}

func waitUntil(ctx context.Context, cond func() (bool, error)) error {
	ticker := time.NewTicker(loginPollInterval)
	defer ticker.Stop()
	for {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
