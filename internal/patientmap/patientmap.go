// Package patientmap builds the Patient Map: for every sample in
// the VCF, the set of Mutations affecting each haplotype's copy of each
// transcript, assembled in VCF record order.
package patientmap

import (
	"fmt"

	"github.com/ikmb/vcf2prot/internal/bitmask"
	"github.com/ikmb/vcf2prot/internal/csq"
	"github.com/ikmb/vcf2prot/internal/mutation"
	"github.com/ikmb/vcf2prot/internal/vcfio"
)

// Map is patient_id -> haplotype_idx (0 or 1) -> transcript_id -> ordered
// []Mutation.
type Map struct {
	patients []string
	data     map[string][2]map[string][]mutation.Mutation
}

// New creates an empty Map with one entry per sample, in header order.
func New(sampleNames []string) *Map {
	m := &Map{
		patients: append([]string(nil), sampleNames...),
		data:     make(map[string][2]map[string][]mutation.Mutation, len(sampleNames)),
	}
	for _, p := range sampleNames {
		m.data[p] = [2]map[string][]mutation.Mutation{
			make(map[string][]mutation.Mutation),
			make(map[string][]mutation.Mutation),
		}
	}
	return m
}

// Patients returns sample ids in the deterministic order carried over
// from the VCF header — never re-sorted.
func (m *Map) Patients() []string {
	out := make([]string, len(m.patients))
	copy(out, m.patients)
	return out
}

// Transcripts returns the transcript ids with at least one Mutation on
// the given patient/haplotype. The order is not defined: ids come out in
// map iteration order.
func (m *Map) Transcripts(patient string, haplotype int) []string {
	haps, ok := m.data[patient]
	if !ok {
		return nil
	}
	byTranscript := haps[haplotype]
	out := make([]string, 0, len(byTranscript))
	for t := range byTranscript {
		out = append(out, t)
	}
	return out
}

// Mutations returns the ordered mutation list for one
// (patient, haplotype, transcript) triple.
func (m *Map) Mutations(patient string, haplotype int, transcript string) []mutation.Mutation {
	haps, ok := m.data[patient]
	if !ok {
		return nil
	}
	return haps[haplotype][transcript]
}

func (m *Map) add(patient string, haplotype int, muts []mutation.Mutation) {
	haps, ok := m.data[patient]
	if !ok {
		return
	}
	byTranscript := haps[haplotype]
	for _, mu := range muts {
		byTranscript[mu.TranscriptID] = append(byTranscript[mu.TranscriptID], mu)
	}
}

// RecordDecode is the per-variant, per-allele consequence list: the
// expensive part of processing one VCF record (BCSQ parsing), kept
// separate from the cheap per-sample bitmask decode so it can be computed
// once per record rather than once per (record, sample).
type RecordDecode struct {
	variant   *vcfio.Variant
	perAllele [][]mutation.Mutation
}

// DecodeRecord parses a variant's BCSQ annotation into per-allele mutation
// lists. Skipped annotations (unsupported kind, non-coding biotype,
// malformed descriptor) are returned as formatted warnings rather than
// failing the record.
func DecodeRecord(v *vcfio.Variant) (RecordDecode, []string) {
	parsed := csq.ParseField(v.BCSQ())
	perAllele := make([][]mutation.Mutation, len(parsed))
	var warnings []string
	for i, group := range parsed {
		for _, res := range group {
			if res.Skipped {
				warnings = append(warnings, fmt.Sprintf("%s:%d: %s", v.Chrom, v.Pos, res.Reason))
				continue
			}
			perAllele[i] = append(perAllele[i], res.Mutation)
		}
	}
	return RecordDecode{variant: v, perAllele: perAllele}, warnings
}

// Fold applies one record's decoded annotations to every sample's
// bitmask genotype, appending mutations into m. Must be called in VCF
// record order — Fold itself does not
// reorder anything, so a caller parallelizing DecodeRecord across
// records must still call Fold sequentially, in record order.
func Fold(m *Map, d RecordDecode) []string {
	var warnings []string
	samples := d.variant.Samples
	for i, patient := range m.patients {
		if i >= len(samples) {
			continue
		}
		hap0, hap1, err := bitmask.Decode(samples[i])
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s:%d sample %s: %v", d.variant.Chrom, d.variant.Pos, patient, err))
			continue
		}
		addAlleles(m, patient, 0, d.perAllele, hap0)
		addAlleles(m, patient, 1, d.perAllele, hap1)
	}
	return warnings
}

func addAlleles(m *Map, patient string, haplotype int, perAllele [][]mutation.Mutation, alleleIndices []int) {
	for _, idx := range alleleIndices {
		if idx < 0 || idx >= len(perAllele) {
			continue // bitmask references an allele with no consequence annotation
		}
		m.add(patient, haplotype, perAllele[idx])
	}
}
