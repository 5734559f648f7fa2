// Package reference builds the Reference Index: an id to
// protein-sequence mapping loaded once from a FASTA stream and shared
// read-only by every downstream component.
package reference

import (
	"errors"
	"fmt"
	"io"

	"github.com/ikmb/vcf2prot/internal/fastaio"
)

// ErrDuplicateTranscript is returned when a FASTA stream defines the same
// transcript id more than once. A last-wins policy would be the easy
// alternative; this index treats the collision as a fatal input error,
// since a silently-replaced reference sequence would make every
// downstream instruction position computed against it suspect.
var ErrDuplicateTranscript = errors.New("duplicate transcript id in reference fasta")

// Record is one id/sequence pair to index. It mirrors fastaio.Record so
// callers rebuilding an Index from a non-FASTA source (e.g. refcache's
// DuckDB-backed store) don't need to depend on fastaio directly.
type Record = fastaio.Record

// Index is the read-only mapping from transcript id to reference protein
// sequence. A zero Index is not valid; construct one with Load or
// FromRecords.
type Index struct {
	ids  []string
	seqs map[string]string
}

// Load reads every record from r and builds an Index. The key for each
// record is exactly its FASTA header (every byte after ">" up to the
// newline) — callers whose headers carry extra pipe- or
// space-delimited fields must present already-trimmed ids upstream.
func Load(r io.Reader) (*Index, error) {
	records, err := fastaio.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	return FromRecords(records)
}

// FromRecords builds an Index directly from a slice of records, in the
// order given. Used both by Load and by refcache when rehydrating a
// previously persisted index.
func FromRecords(records []Record) (*Index, error) {
	idx := &Index{
		ids:  make([]string, 0, len(records)),
		seqs: make(map[string]string, len(records)),
	}
	for _, rec := range records {
		if _, exists := idx.seqs[rec.ID]; exists {
			return nil, fmt.Errorf("reference: %w: %q", ErrDuplicateTranscript, rec.ID)
		}
		idx.seqs[rec.ID] = rec.Sequence
		idx.ids = append(idx.ids, rec.ID)
	}
	return idx, nil
}

// Sequence returns the reference protein sequence for a transcript id and
// whether it was found.
func (idx *Index) Sequence(transcriptID string) (string, bool) {
	seq, ok := idx.seqs[transcriptID]
	return seq, ok
}

// Len returns the reference length (in residues) for a transcript id, or
// -1 if the id is unknown.
func (idx *Index) Len(transcriptID string) int {
	seq, ok := idx.seqs[transcriptID]
	if !ok {
		return -1
	}
	return len(seq)
}

// Has reports whether transcriptID is present in the index.
func (idx *Index) Has(transcriptID string) bool {
	_, ok := idx.seqs[transcriptID]
	return ok
}

// TranscriptIDs returns every transcript id, in the order it first
// appeared in the FASTA stream — the deterministic "transcript order"
// used wherever output needs to be produced in reference-file order.
func (idx *Index) TranscriptIDs() []string {
	out := make([]string, len(idx.ids))
	copy(out, idx.ids)
	return out
}

// Count returns the number of transcripts in the index.
func (idx *Index) Count() int {
	return len(idx.ids)
}
