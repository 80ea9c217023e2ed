package export

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cychen2021/walmart-receipt-crawler/lib/orders"
	"github.com/cychen2021/walmart-receipt-crawler/lib/pdfutil"
)

// FSSink writes captured documents into a directory. Filenames are
// deterministic: the order date and id for individual receipts, the
// date range for the combined document.
type FSSink struct {
	Dir string
	// merge primitive, swappable in tests; pdfutil.Merge when nil
	Merge func(docs [][]byte, w *bytes.Buffer) error
}

func NewFSSink(dir string) FSSink {
	return FSSink{Dir: dir}
}

func (s FSSink) merge(docs [][]byte, w *bytes.Buffer) error {
	if s.Merge != nil {
		return s.Merge(docs, w)
	}
	return pdfutil.Merge(docs, w)
}

var filenameReplacer = strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "_")

func receiptFilename(r orders.Receipt) string {
	return fmt.Sprintf(
		"walmart_%s_%s.pdf",
		r.PlacedAt.Format(time.DateOnly),
		filenameReplacer.Replace(r.OrderID),
	)
}

func combinedFilename(rng orders.DateRange) string {
	return fmt.Sprintf(
		"walmart_receipts_%s_to_%s.pdf",
		rng.Start.Format(time.DateOnly),
		rng.End.Format(time.DateOnly),
	)
}

func (s FSSink) WriteReceipt(r orders.Receipt) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(s.Dir, receiptFilename(r))
	if err := os.WriteFile(path, r.PDF, 0644); err != nil {
		return "", fmt.Errorf("write receipt %s: %w", r.OrderID, err)
	}
	return path, nil
}

func (s FSSink) WriteCombined(rng orders.DateRange, docs [][]byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	var buf bytes.Buffer
	if err := s.merge(docs, &buf); err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir, combinedFilename(rng))
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write combined document: %w", err)
	}
	return path, nil
}
