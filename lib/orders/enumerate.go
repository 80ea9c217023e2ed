package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// ListBrowser is the slice of the browser capability the enumerator
// needs: reading the rendered window of the virtualized order list and
// advancing it.
type ListBrowser interface {
	RenderedRows(ctx context.Context) (string, error)
	ScrollList(ctx context.Context) error
}

// enumerator traversal states. The traversal is an explicit bounded
// state machine so termination is provable: the cap is reached, the
// list is exhausted, or the stall retry budget runs out.
type enumState int

const (
	stateReading enumState = iota
	stateScrolling
	stateStalled
	stateExhausted
)

const DefaultStallRetries = 3

// Enumerator produces a lazy, finite sequence of order summaries from
// the virtualized order list. Restartable only by calling Enumerate
// again from the beginning.
type Enumerator struct {
	Browser ListBrowser
	// consecutive no-new-rows scrolls tolerated before the list is
	// declared exhausted; DefaultStallRetries when zero
	StallRetries int
	// pause before each scroll step; a 3-6s jitter in production
	Delay DelayFunc
}

// Enumerate reads the rendered rows, yields each previously-unseen
// order in encounter order, and scrolls for more until the list is
// exhausted, maxCount summaries have been yielded (0 means unbounded),
// or yield returns false. The same order id is never yielded twice in
// one call even when overlapping scroll windows re-render it.
func (e Enumerator) Enumerate(ctx context.Context, maxCount int, yield func(Summary) bool) error {
	ctx, span := tracer.Start(ctx, "enumerator:Enumerate")
	defer span.End()

	retries := e.StallRetries
	if retries == 0 {
		retries = DefaultStallRetries
	}
	delay := e.Delay
	if delay == nil {
		delay = Jitter(3*time.Second, 6*time.Second)
	}

	seen := map[string]bool{}
	yielded := 0
	stalls := 0
	firstRead := true
	state := stateReading

	for state != stateExhausted {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch state {
		case stateReading:
			pageHTML, err := e.Browser.RenderedRows(ctx)
			if err != nil {
				return fmt.Errorf("enumerate orders: %w", err)
			}
			rows, err := ParseRows(pageHTML)
			if err != nil {
				return fmt.Errorf("enumerate orders: %w", err)
			}

			newRows := 0
			for _, s := range rows {
				if seen[s.ID] {
					continue
				}
				seen[s.ID] = true
				newRows++
				if !yield(s) {
					state = stateExhausted
					break
				}
				yielded++
				if maxCount > 0 && yielded >= maxCount {
					state = stateExhausted
					break
				}
			}
			if state == stateExhausted {
				break
			}

			if firstRead {
				firstRead = false
				state = stateScrolling
				break
			}
			if newRows == 0 {
				stalls++
				if stalls > retries {
					slog.Debug("order list exhausted", "yielded", yielded, "stalls", stalls)
					state = stateExhausted
					break
				}
				state = stateStalled
				break
			}
			stalls = 0
			state = stateScrolling

		case stateScrolling, stateStalled:
			delay(ctx)
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.Browser.ScrollList(ctx); err != nil {
				return fmt.Errorf("enumerate orders: %w", err)
			}
			state = stateReading
		}
	}

	span.SetAttributes(attribute.Int("yielded", yielded))
	return nil
}
