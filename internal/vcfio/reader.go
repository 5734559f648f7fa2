package vcfio

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Reader reads variants from a VCF file, gzip-transparent, one line at a
// time.
type Reader struct {
	reader      *bufio.Reader
	file        *os.File
	gzipReader  *gzip.Reader
	lineNumber  int
	header      []string
	sampleNames []string // sample names from the #CHROM header line, header order
}

// Open opens path for reading. "-" reads from stdin. Both plain and
// gzipped (.vcf.gz) files are supported.
func Open(path string) (*Reader, error) {
	if path == "-" {
		return NewReader(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vcf file: %w", err)
	}

	r := &Reader{file: file}

	magic := make([]byte, 2)
	if _, err := io.ReadFull(file, magic); err != nil {
		file.Close()
		return nil, fmt.Errorf("read vcf header: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek vcf file: %w", err)
	}

	if magic[0] == 0x1f && magic[1] == 0x8b {
		r.gzipReader, err = gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		r.reader = bufio.NewReader(r.gzipReader)
	} else {
		r.reader = bufio.NewReader(file)
	}

	if err := r.parseHeader(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// NewReader builds a Reader from an arbitrary io.Reader (e.g. stdin or a
// test fixture).
func NewReader(rd io.Reader) (*Reader, error) {
	r := &Reader{reader: bufio.NewReader(rd)}
	if err := r.parseHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) parseHeader() error {
	for {
		line, err := r.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("read header: %w", err)
		}
		r.lineNumber++
		line = strings.TrimRight(line, "\r\n")

		if strings.HasPrefix(line, "##") {
			r.header = append(r.header, line)
			continue
		}
		if strings.HasPrefix(line, "#CHROM") {
			r.header = append(r.header, line)
			fields := strings.Split(line, "\t")
			if len(fields) > 9 {
				r.sampleNames = fields[9:]
			}
			return nil
		}
		return &ParseError{Line: r.lineNumber, Message: "expected #CHROM header line"}
	}
	return &ParseError{Line: r.lineNumber, Message: "no #CHROM header line found"}
}

// Next reads the next variant. Returns nil, nil at end of stream.
func (r *Reader) Next() (*Variant, error) {
	line, err := r.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			if line == "" {
				return nil, nil
			}
		} else {
			return nil, fmt.Errorf("read variant line: %w", err)
		}
	}
	r.lineNumber++
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return r.Next()
	}
	return r.parseLine(line)
}

func (r *Reader) parseLine(line string) (*Variant, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 8 {
		return nil, &ParseError{Line: r.lineNumber, Message: fmt.Sprintf("expected at least 8 columns, found %d", len(fields))}
	}

	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, &ParseError{Line: r.lineNumber, Message: fmt.Sprintf("invalid position: %s", fields[1])}
	}

	qual := 0.0
	if fields[5] != "." {
		qual, _ = strconv.ParseFloat(fields[5], 64)
	}

	v := &Variant{
		Chrom:  fields[0],
		Pos:    pos,
		ID:     fields[2],
		Ref:    fields[3],
		Alt:    strings.Split(fields[4], ","),
		Qual:   qual,
		Filter: fields[6],
		Info:   parseInfo(fields[7]),
	}

	if len(fields) > 9 {
		v.Samples = fields[9:]
	}

	return v, nil
}

func parseInfo(info string) map[string]string {
	result := make(map[string]string)
	if info == "." {
		return result
	}
	for _, kv := range strings.Split(info, ";") {
		key, val, ok := strings.Cut(kv, "=")
		if !ok {
			result[key] = "" // flag-type INFO field
			continue
		}
		result[key] = val
	}
	return result
}

// Header returns the raw VCF header lines, in file order.
func (r *Reader) Header() []string {
	return r.header
}

// SampleNames returns the sample names from the #CHROM header line, in
// header order — the deterministic patient ordering used throughout:
// never re-sorted lexicographically.
func (r *Reader) SampleNames() []string {
	return r.sampleNames
}

// LineNumber returns the current line number being processed.
func (r *Reader) LineNumber() int {
	return r.lineNumber
}

// Close closes the reader and any underlying file/gzip stream.
func (r *Reader) Close() error {
	if r.gzipReader != nil {
		r.gzipReader.Close()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// ParseError reports a VCF parsing failure with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("vcf parse error at line %d: %s", e.Line, e.Message)
}
