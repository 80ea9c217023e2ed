package export

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/cychen2021/walmart-receipt-crawler/lib/orders"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sliceSource replays a fixed set of summaries, the way the enumerator
// would yield them.
type sliceSource struct {
	summaries []orders.Summary
}

func (s sliceSource) Enumerate(ctx context.Context, maxCount int, yield func(orders.Summary) bool) error {
	for i, summary := range s.summaries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if maxCount > 0 && i >= maxCount {
			return nil
		}
		if !yield(summary) {
			return nil
		}
	}
	return nil
}

// fakeCapturer records capture order and fails for configured ids.
type fakeCapturer struct {
	failIDs  map[string]error
	captured []string
}

func (c *fakeCapturer) Capture(ctx context.Context, order orders.Summary) (orders.Receipt, error) {
	if err, ok := c.failIDs[order.ID]; ok {
		return orders.Receipt{}, &orders.CaptureError{OrderID: order.ID, Err: err}
	}
	c.captured = append(c.captured, order.ID)
	return orders.Receipt{
		OrderID:  order.ID,
		PlacedAt: order.PlacedAt,
		PDF:      []byte("%PDF-" + order.ID),
	}, nil
}

// memSink buffers writes in memory.
type memSink struct {
	receipts  []orders.Receipt
	combined  [][]byte
	wroteFile bool
	writeErr  error
}

func (s *memSink) WriteReceipt(r orders.Receipt) (string, error) {
	if s.writeErr != nil {
		return "", s.writeErr
	}
	s.receipts = append(s.receipts, r)
	return "mem://" + r.OrderID, nil
}

func (s *memSink) WriteCombined(rng orders.DateRange, docs [][]byte) (string, error) {
	s.wroteFile = true
	s.combined = docs
	return "mem://combined", nil
}

var exportRange = orders.DateRange{Start: date(2025, 1, 1), End: date(2025, 3, 31)}

func summaries(ids ...string) []orders.Summary {
	out := make([]orders.Summary, len(ids))
	for i, id := range ids {
		out[i] = orders.Summary{ID: id, PlacedAt: date(2025, 2, 10), Kind: orders.KindStandard}
	}
	return out
}

func newRunner(src Source, cap Capturer, sink Sink) Runner {
	return Runner{Source: src, Capturer: cap, Sink: sink, Delay: orders.NoDelay}
}

func TestRunFiltersByDateRange(t *testing.T) {
	src := sliceSource{summaries: []orders.Summary{
		{ID: "old", PlacedAt: date(2024, 12, 31)},
		{ID: "in", PlacedAt: date(2025, 2, 10)},
		{ID: "late", PlacedAt: date(2025, 4, 1)},
	}}
	capturer := &fakeCapturer{}
	sink := &memSink{}

	result, err := newRunner(src, capturer, sink).Run(context.Background(), Options{Range: exportRange})
	require.NoError(t, err)

	require.Equal(t, []string{"in"}, capturer.captured)
	require.Equal(t, 1, result.Attempted)
	require.Equal(t, 1, result.Captured)
	require.Empty(t, result.Failed)
}

func TestRunMaxCountBoundsAttempts(t *testing.T) {
	src := sliceSource{summaries: summaries("1", "2", "3", "4", "5")}
	capturer := &fakeCapturer{}
	sink := &memSink{}

	result, err := newRunner(src, capturer, sink).Run(context.Background(), Options{
		Range:    exportRange,
		MaxCount: 2,
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Attempted)
	require.Equal(t, []string{"1", "2"}, capturer.captured)
}

func TestRunFailureDoesNotStopRun(t *testing.T) {
	src := sliceSource{summaries: summaries("1", "2", "3")}
	capturer := &fakeCapturer{failIDs: map[string]error{
		"2": fmt.Errorf("detail page never loaded"),
	}}
	sink := &memSink{}

	result, err := newRunner(src, capturer, sink).Run(context.Background(), Options{Range: exportRange})
	require.NoError(t, err)

	require.Equal(t, 3, result.Attempted)
	require.Equal(t, 2, result.Captured)
	expected := []Failure{{
		OrderID: "2",
		Reason:  "capture order 2: detail page never loaded",
	}}
	if diff := cmp.Diff(expected, result.Failed); diff != "" {
		t.Fatalf("unexpected failures (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"1", "3"}, capturer.captured)
}

func TestRunCombinedPreservesCaptureOrder(t *testing.T) {
	src := sliceSource{summaries: summaries("a", "b", "c")}
	capturer := &fakeCapturer{}
	sink := &memSink{}

	result, err := newRunner(src, capturer, sink).Run(context.Background(), Options{
		Range:    exportRange,
		Combined: true,
	})
	require.NoError(t, err)
	require.Equal(t, 3, result.Captured)

	require.True(t, sink.wroteFile)
	require.Equal(t, [][]byte{
		[]byte("%PDF-a"), []byte("%PDF-b"), []byte("%PDF-c"),
	}, sink.combined)
	require.Empty(t, sink.receipts)
}

func TestRunCombinedEmptyCaptureSetWritesNothing(t *testing.T) {
	src := sliceSource{summaries: []orders.Summary{
		{ID: "old", PlacedAt: date(2020, 1, 1)},
	}}
	sink := &memSink{}

	result, err := newRunner(src, &fakeCapturer{}, sink).Run(context.Background(), Options{
		Range:    exportRange,
		Combined: true,
	})
	require.NoError(t, err)
	require.Equal(t, 0, result.Captured)
	require.False(t, sink.wroteFile)
}

func TestRunIndividualModeWritesEachReceipt(t *testing.T) {
	src := sliceSource{summaries: summaries("a", "b")}
	sink := &memSink{}

	result, err := newRunner(src, &fakeCapturer{}, sink).Run(context.Background(), Options{Range: exportRange})
	require.NoError(t, err)
	require.Equal(t, 2, result.Captured)
	require.Len(t, sink.receipts, 2)
	require.False(t, sink.wroteFile)
}

func TestRunSinkFailureRecordedAsFailure(t *testing.T) {
	src := sliceSource{summaries: summaries("a")}
	sink := &memSink{writeErr: fmt.Errorf("disk full")}

	result, err := newRunner(src, &fakeCapturer{}, sink).Run(context.Background(), Options{Range: exportRange})
	require.NoError(t, err)
	require.Equal(t, 1, result.Attempted)
	require.Equal(t, 0, result.Captured)
	require.Len(t, result.Failed, 1)
	require.Contains(t, result.Failed[0].Reason, "disk full")
}

func TestRunCancellationReturnsPartialResult(t *testing.T) {
	src := sliceSource{summaries: summaries("1", "2", "3")}
	sink := &memSink{}

	ctx, cancel := context.WithCancel(context.Background())
	capturer := &fakeCapturer{}
	runner := Runner{
		Source:   src,
		Capturer: capturer,
		Sink:     sink,
		Delay:    orders.NoDelay,
		OnOrder: func(order orders.Summary, err error) {
			if order.ID == "1" {
				cancel()
			}
		},
	}

	result, err := runner.Run(ctx, Options{Range: exportRange})
	require.ErrorIs(t, err, ErrRunAborted)
	require.Equal(t, 1, result.Captured)
	require.Equal(t, []string{"1"}, capturer.captured)
}

// timeoutCapturer times out on every order.
type timeoutCapturer struct{ calls int }

func (c *timeoutCapturer) Capture(ctx context.Context, order orders.Summary) (orders.Receipt, error) {
	c.calls++
	return orders.Receipt{}, &orders.CaptureError{
		OrderID: order.ID,
		Err:     fmt.Errorf("navigate: %w", context.DeadlineExceeded),
	}
}

func TestRunConsecutiveTimeoutsAbort(t *testing.T) {
	src := sliceSource{summaries: summaries("1", "2", "3", "4", "5")}
	capturer := &timeoutCapturer{}
	sink := &memSink{}

	runner := Runner{Source: src, Capturer: capturer, Sink: sink, Delay: orders.NoDelay}
	result, err := runner.Run(context.Background(), Options{
		Range:                   exportRange,
		ConsecutiveTimeoutLimit: 2,
	})

	require.ErrorIs(t, err, ErrRunAborted)
	require.Equal(t, 2, capturer.calls)
	require.Equal(t, 2, result.Attempted)
	require.Len(t, result.Failed, 2)
}

func TestRunCombinedFinalizesOnAbort(t *testing.T) {
	src := sliceSource{summaries: summaries("1", "2", "3")}
	sink := &memSink{}
	capturer := &fakeCapturer{}

	ctx, cancel := context.WithCancel(context.Background())
	runner := Runner{
		Source:   src,
		Capturer: capturer,
		Sink:     sink,
		Delay:    orders.NoDelay,
		OnOrder: func(order orders.Summary, err error) {
			if order.ID == "2" {
				cancel()
			}
		},
	}

	result, err := runner.Run(ctx, Options{Range: exportRange, Combined: true})
	require.ErrorIs(t, err, ErrRunAborted)
	require.Equal(t, 2, result.Captured)
	// documents captured before the abort still land in the combined file
	require.True(t, sink.wroteFile)
	require.Len(t, sink.combined, 2)
}

func TestRunInvalidRange(t *testing.T) {
	runner := newRunner(sliceSource{}, &fakeCapturer{}, &memSink{})
	_, err := runner.Run(context.Background(), Options{
		Range: orders.DateRange{Start: date(2025, 2, 1), End: date(2025, 1, 1)},
	})
	require.Error(t, err)
}
