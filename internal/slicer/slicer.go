// Package slicer splits the executed result buffer back into
// per-record sequences and hands them to the output writer as
// (fasta id, sequence) pairs.
package slicer

import (
	"fmt"

	"github.com/ikmb/vcf2prot/internal/lowering"
)

// Record is one sliced output record. Sequence aliases the result
// buffer; callers that outlive the buffer must copy it.
type Record struct {
	ID       string
	Sequence []byte
}

// FastaID renders the canonical output header for one descriptor:
// patient, haplotype index, transcript, underscore-joined.
func FastaID(d lowering.Descriptor) string {
	return fmt.Sprintf("%s_%d_%s", d.Patient, d.Haplotype, d.Transcript)
}

// Slice walks the descriptor list in order and calls emit once per
// record with its slice of the result buffer. The descriptor order is
// the deterministic output order fixed at lowering time; Slice never
// reorders.
func Slice(descs []lowering.Descriptor, result []byte, emit func(Record) error) error {
	for _, d := range descs {
		end := d.OutStart + d.OutLength
		if d.OutStart < 0 || end > len(result) {
			return fmt.Errorf("descriptor %s spans [%d, %d) outside result buffer of length %d",
				FastaID(d), d.OutStart, end, len(result))
		}
		rec := Record{ID: FastaID(d), Sequence: result[d.OutStart:end]}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}

// Records collects every sliced record into a slice, for callers that
// want the whole output at once rather than a streaming emit.
func Records(descs []lowering.Descriptor, result []byte) ([]Record, error) {
	out := make([]Record, 0, len(descs))
	err := Slice(descs, result, func(r Record) error {
		out = append(out, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
