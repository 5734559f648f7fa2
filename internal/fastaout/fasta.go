// Package fastaout writes the personalized proteome as FASTA records
// and the optional run-summary tables.
package fastaout

import (
	"bufio"
	"fmt"
	"io"
)

// Writer emits FASTA records. Sequences are written on a single line
// unless a line width is set.
type Writer struct {
	w     *bufio.Writer
	wrap  int
	count int
}

// NewWriter creates a FASTA writer with no line wrapping.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// SetLineWidth enables wrapping of sequence lines at n bytes. Zero or
// negative disables wrapping.
func (w *Writer) SetLineWidth(n int) {
	w.wrap = n
}

// WriteRecord writes one ">id\nsequence\n" record.
func (w *Writer) WriteRecord(id string, seq []byte) error {
	if _, err := fmt.Fprintf(w.w, ">%s\n", id); err != nil {
		return fmt.Errorf("write fasta header %q: %w", id, err)
	}
	if w.wrap <= 0 {
		if _, err := w.w.Write(seq); err != nil {
			return fmt.Errorf("write fasta sequence %q: %w", id, err)
		}
		if err := w.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write fasta sequence %q: %w", id, err)
		}
		w.count++
		return nil
	}
	for start := 0; start < len(seq); start += w.wrap {
		end := start + w.wrap
		if end > len(seq) {
			end = len(seq)
		}
		if _, err := w.w.Write(seq[start:end]); err != nil {
			return fmt.Errorf("write fasta sequence %q: %w", id, err)
		}
		if err := w.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write fasta sequence %q: %w", id, err)
		}
	}
	if len(seq) == 0 {
		if err := w.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write fasta sequence %q: %w", id, err)
		}
	}
	w.count++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int {
	return w.count
}

// Flush flushes buffered output to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}
