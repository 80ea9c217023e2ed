// Package export orchestrates a full receipt export run: it consumes
// the order enumerator's sequence, filters by date, captures each
// accepted order, and persists the documents individually or as one
// combined PDF.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cychen2021/walmart-receipt-crawler/lib/orders"
)

var tracer = otel.Tracer("export")

// ErrRunAborted means the run was cut short: either the caller
// cancelled it or too many consecutive actions timed out. The partial
// Result is still returned alongside it.
var ErrRunAborted = errors.New("export run aborted")

const DefaultConsecutiveTimeoutLimit = 3

// Failure is one order that could not be captured.
type Failure struct {
	OrderID string
	Reason  string
}

// Result is the final accounting for a run. It is always populated,
// even for partial or aborted runs; silent data loss is disallowed.
type Result struct {
	Attempted int
	Captured  int
	Failed    []Failure
}

type Options struct {
	Range orders.DateRange
	// capture at most this many accepted orders; 0 means unbounded
	MaxCount int
	// merge everything into one combined document instead of writing
	// one file per order
	Combined bool
	// consecutive per-order timeouts tolerated before the whole run is
	// aborted; DefaultConsecutiveTimeoutLimit when zero
	ConsecutiveTimeoutLimit int
}

// Source yields order summaries until exhausted or the yield callback
// returns false. orders.Enumerator is the production implementation.
type Source interface {
	Enumerate(ctx context.Context, maxCount int, yield func(orders.Summary) bool) error
}

// Capturer produces the receipt document for one order.
type Capturer interface {
	Capture(ctx context.Context, order orders.Summary) (orders.Receipt, error)
}

// Sink persists captured documents.
type Sink interface {
	WriteReceipt(receipt orders.Receipt) (string, error)
	WriteCombined(rng orders.DateRange, docs [][]byte) (string, error)
}

type Runner struct {
	Source   Source
	Capturer Capturer
	Sink     Sink
	// pause between captured orders; a 5-10s jitter in production
	Delay orders.DelayFunc
	// called after each accepted order, err is nil on success
	OnOrder func(order orders.Summary, err error)
}

// Run drives the export pipeline to completion in two phases: first the
// whole list is enumerated and filtered, then every accepted order is
// captured. Capture navigates the shared browser tab away from the
// order list, so discovery must finish before the first detail page is
// opened; interleaving the two would strand the enumerator on a receipt
// page and lose every order past the first rendered window.
//
// Per-order failures are recorded in the result and never stop the run;
// only cancellation and the consecutive-timeout threshold abort it, and
// even then the partial result is returned together with ErrRunAborted.
func (r Runner) Run(ctx context.Context, opts Options) (Result, error) {
	ctx, span := tracer.Start(ctx, "runner:Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("range", opts.Range.String()),
		attribute.Int("max_count", opts.MaxCount),
		attribute.Bool("combined", opts.Combined),
	)

	if err := opts.Range.Validate(); err != nil {
		return Result{}, err
	}
	timeoutLimit := opts.ConsecutiveTimeoutLimit
	if timeoutLimit == 0 {
		timeoutLimit = DefaultConsecutiveTimeoutLimit
	}
	delay := r.Delay
	if delay == nil {
		delay = orders.Jitter(5*time.Second, 10*time.Second)
	}

	var result Result
	var merged [][]byte
	var runErr error

	slog.Info("starting export", "range", opts.Range.String(), "combined", opts.Combined)

	// phase 1: walk the order list end to end while the tab is still on
	// it, buffering every order inside the range up to the cap
	var accepted []orders.Summary
	enumErr := r.Source.Enumerate(ctx, 0, func(order orders.Summary) bool {
		if !opts.Range.Contains(order.PlacedAt) {
			slog.Debug("order outside date range",
				"order_id", order.ID, "placed_at", order.PlacedAt.Format(time.DateOnly))
			return true
		}
		accepted = append(accepted, order)
		return opts.MaxCount <= 0 || len(accepted) < opts.MaxCount
	})
	if enumErr != nil {
		if errors.Is(enumErr, context.Canceled) || errors.Is(enumErr, context.DeadlineExceeded) {
			runErr = fmt.Errorf("%w: %s", ErrRunAborted, enumErr)
		} else {
			// still capture whatever was discovered before the failure
			runErr = fmt.Errorf("order enumeration failed: %w", enumErr)
			slog.Warn("order enumeration failed", "discovered", len(accepted), "err", enumErr)
		}
	}
	slog.Info("order discovery finished", "accepted", len(accepted))
	span.SetAttributes(attribute.Int("accepted", len(accepted)))

	// phase 2: capture each accepted order in discovery order
	consecutiveTimeouts := 0
	for _, order := range accepted {
		// cooperative stop checked between orders, never mid-capture
		if ctx.Err() != nil {
			if runErr == nil {
				runErr = fmt.Errorf("%w: %s", ErrRunAborted, context.Cause(ctx))
			}
			break
		}

		result.Attempted++
		receipt, err := r.Capturer.Capture(ctx, order)
		if err != nil {
			result.Failed = append(result.Failed, Failure{OrderID: order.ID, Reason: err.Error()})
			slog.Warn("order capture failed", "order_id", order.ID, "err", err)

			if errors.Is(err, context.DeadlineExceeded) {
				consecutiveTimeouts++
				if consecutiveTimeouts >= timeoutLimit {
					if runErr == nil {
						runErr = fmt.Errorf("%w: %d consecutive timeouts", ErrRunAborted, consecutiveTimeouts)
					}
					r.notify(order, err)
					break
				}
			} else {
				consecutiveTimeouts = 0
			}
			r.notify(order, err)
			continue
		}
		consecutiveTimeouts = 0

		if opts.Combined {
			merged = append(merged, receipt.PDF)
			result.Captured++
		} else if path, sinkErr := r.Sink.WriteReceipt(receipt); sinkErr != nil {
			result.Failed = append(result.Failed, Failure{OrderID: order.ID, Reason: sinkErr.Error()})
			slog.Warn("failed to persist receipt", "order_id", order.ID, "err", sinkErr)
			err = sinkErr
		} else {
			result.Captured++
			slog.Info("captured receipt", "order_id", order.ID, "path", path)
		}
		r.notify(order, err)
		delay(ctx)
	}

	// finalize with whatever has been captured so far, aborted or not
	if opts.Combined && len(merged) > 0 {
		path, err := r.Sink.WriteCombined(opts.Range, merged)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "combined write failed")
			if runErr == nil {
				runErr = fmt.Errorf("write combined document: %w", err)
			}
		} else {
			slog.Info("combined document written", "path", path, "receipts", len(merged))
		}
	}

	span.SetAttributes(
		attribute.Int("attempted", result.Attempted),
		attribute.Int("captured", result.Captured),
		attribute.Int("failed", len(result.Failed)),
	)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "run did not complete")
	}
	return result, runErr
}

func (r Runner) notify(order orders.Summary, err error) {
	if r.OnOrder != nil {
		r.OnOrder(order, err)
	}
}
