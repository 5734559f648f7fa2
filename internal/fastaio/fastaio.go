// Package fastaio provides a small streaming FASTA reader, transparent to
// gzip-compressed input, used by the reference index reader.
package fastaio

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one ">"-delimited FASTA entry. ID is every byte of the header
// line after the ">" prefix, verbatim — callers that want a bare
// accession out of a pipe- or space-delimited header do that split
// themselves.
type Record struct {
	ID       string
	Sequence string
}

// Open opens path for reading, transparently unwrapping a ".gz" suffix.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fasta file: %w", err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	return &gzipReadCloser{gz: gz, f: f}, nil
}

type gzipReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }
func (g *gzipReadCloser) Close() error {
	if err := g.gz.Close(); err != nil {
		g.f.Close()
		return err
	}
	return g.f.Close()
}

// ReadAll reads every record from r, in file order. Sequence lines are
// concatenated with only their trailing whitespace removed (no case
// folding, no residue validation — that is the caller's concern).
func ReadAll(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	var records []Record
	var cur *Record
	var seq strings.Builder

	flush := func() {
		if cur != nil {
			cur.Sequence = seq.String()
			records = append(records, *cur)
		}
		seq.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, ">") {
			flush()
			cur = &Record{ID: strings.TrimPrefix(line, ">")}
			continue
		}
		if cur == nil {
			continue // stray sequence data before the first header
		}
		// Only trailing whitespace is stripped; leading bytes are part
		// of the sequence as written.
		seq.WriteString(strings.TrimRight(line, " \t\r"))
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan fasta: %w", err)
	}
	return records, nil
}
