// Package pdfutil wraps the pdfcpu merge primitive. Merging is
// order-preserving and never deduplicates pages.
package pdfutil

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Merge concatenates the given PDF documents, in order, into w.
func Merge(docs [][]byte, w io.Writer) error {
	if len(docs) == 0 {
		return fmt.Errorf("nothing to merge")
	}
	readers := make([]io.ReadSeeker, len(docs))
	for i, doc := range docs {
		readers[i] = bytes.NewReader(doc)
	}
	err := api.MergeRaw(readers, w, false, nil)
	if err != nil {
		return fmt.Errorf("merge %d documents: %w", len(docs), err)
	}
	return nil
}

// MergeFiles concatenates the given PDF files, in order, into outPath.
func MergeFiles(paths []string, outPath string) error {
	if len(paths) == 0 {
		return fmt.Errorf("nothing to merge")
	}
	err := api.MergeCreateFile(paths, outPath, false, nil)
	if err != nil {
		return fmt.Errorf("merge %d files into %s: %w", len(paths), outPath, err)
	}
	return nil
}
