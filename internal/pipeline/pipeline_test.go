package pipeline

import (
	"strings"
	"testing"

	"github.com/ikmb/vcf2prot/internal/exec"
	"github.com/ikmb/vcf2prot/internal/reference"
	"github.com/ikmb/vcf2prot/internal/slicer"
	"github.com/ikmb/vcf2prot/internal/vcfio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const refFasta = ">T1\nMKTAYQ\n"

// vcfWith builds a minimal single-record VCF. bcsq is the raw BCSQ
// INFO value; samples are the per-sample genotype columns, one per
// name in sampleNames.
func vcfWith(sampleNames []string, bcsq string, samples ...string) string {
	var b strings.Builder
	b.WriteString("##fileformat=VCFv4.2\n")
	b.WriteString("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\t")
	b.WriteString(strings.Join(sampleNames, "\t"))
	b.WriteString("\n")
	b.WriteString("1\t100\t.\tA\tG\t.\tPASS\tBCSQ=" + bcsq + "\tGT:PB\t")
	b.WriteString(strings.Join(samples, "\t"))
	b.WriteString("\n")
	return b.String()
}

func runPipeline(t *testing.T, backendName, fasta, vcf string) ([]slicer.Record, *Pipeline) {
	t.Helper()
	idx, err := reference.Load(strings.NewReader(fasta))
	require.NoError(t, err)
	backend, err := exec.New(backendName, nil)
	require.NoError(t, err)
	r, err := vcfio.NewReader(strings.NewReader(vcf))
	require.NoError(t, err)

	p := New(idx, backend)
	var records []slicer.Record
	_, err = p.Run(r, func(rec slicer.Record) error {
		records = append(records, slicer.Record{ID: rec.ID, Sequence: append([]byte(nil), rec.Sequence...)})
		return nil
	})
	require.NoError(t, err)
	return records, p
}

// S1: heterozygous missense. Haplotype 0 is reference and emits
// nothing; haplotype 1 carries the substitution.
func TestScenarioMissenseHeterozygous(t *testing.T) {
	vcf := vcfWith([]string{"p1"},
		"missense_variant|G1|T1|protein_coding|+|3T>S|c.7A>T", "0|1:2")
	records, _ := runPipeline(t, "stp", refFasta, vcf)

	require.Len(t, records, 1)
	assert.Equal(t, "p1_1_T1", records[0].ID)
	assert.Equal(t, "MKSAYQ", string(records[0].Sequence))
}

// S2: inframe insertion on haplotype 1.
func TestScenarioInsertion(t *testing.T) {
	vcf := vcfWith([]string{"p1"},
		"inframe_insertion|G1|T1|protein_coding|+|3T>TRR|c.9_10insAGACGA", "0|1:2")
	records, _ := runPipeline(t, "stp", refFasta, vcf)

	require.Len(t, records, 1)
	assert.Equal(t, "p1_1_T1", records[0].ID)
	assert.Equal(t, "MKTRRAYQ", string(records[0].Sequence))
}

// S3: inframe deletion on haplotype 0.
func TestScenarioDeletion(t *testing.T) {
	vcf := vcfWith([]string{"p1"},
		"inframe_deletion|G1|T1|protein_coding|+|3TA>T|c.8_10del", "0|1:1")
	records, _ := runPipeline(t, "stp", refFasta, vcf)

	require.Len(t, records, 1)
	assert.Equal(t, "p1_0_T1", records[0].ID)
	assert.Equal(t, "MKTYQ", string(records[0].Sequence))
}

// S4: stop gained truncates without copying the tail.
func TestScenarioStopGained(t *testing.T) {
	vcf := vcfWith([]string{"p1"},
		"stop_gained|G1|T1|protein_coding|+|4A>*|c.10G>T", "0|1:2")
	records, _ := runPipeline(t, "stp", refFasta, vcf)

	require.Len(t, records, 1)
	assert.Equal(t, "p1_1_T1", records[0].ID)
	assert.Equal(t, "MKT", string(records[0].Sequence))
}

// S5: two distinct mutations at the same protein position on one
// haplotype drop the transcript and bump the counter.
func TestScenarioConflict(t *testing.T) {
	vcf := vcfWith([]string{"p1"},
		"missense_variant|G1|T1|protein_coding|+|3T>S|c.7A>T"+
			"+inframe_deletion|G1|T1|protein_coding|+|3TA>T|c.8_10del", "0|1:2")
	records, p := runPipeline(t, "stp", refFasta, vcf)

	assert.Empty(t, records)
	assert.Equal(t, uint64(1), p.Counters().Snapshot().TranscriptsDropped)
}

// S6: two patients, output order fixed by the VCF header, identical
// bytes across every backend.
func TestScenarioTwoPatientsAllBackends(t *testing.T) {
	vcf := vcfWith([]string{"p1", "p2"},
		"protein_altering_variant|G1|T1|protein_coding|+|3T>TRR|c.9_10insAGACGA"+
			",missense_variant|G1|T1|protein_coding|+|3T>S|c.7A>T",
		"0|1:8", "1|0:1")

	var outputs []string
	for _, name := range []string{"stp", "mtp", "gpu"} {
		records, _ := runPipeline(t, name, refFasta, vcf)
		require.Len(t, records, 2, name)
		assert.Equal(t, "p1_1_T1", records[0].ID, name)
		assert.Equal(t, "MKSAYQ", string(records[0].Sequence), name)
		assert.Equal(t, "p2_0_T1", records[1].ID, name)
		assert.Equal(t, "MKTRRAYQ", string(records[1].Sequence), name)

		var joined strings.Builder
		for _, rec := range records {
			joined.WriteString(rec.ID)
			joined.WriteString("=")
			joined.Write(rec.Sequence)
			joined.WriteString(";")
		}
		outputs = append(outputs, joined.String())
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[0], outputs[2])
}

// Property 4/5: transcripts with no mutations, or only synonymous
// ones, emit nothing at all.
func TestSynonymousInvariance(t *testing.T) {
	vcf := vcfWith([]string{"p1"},
		"synonymous_variant|G1|T1|protein_coding|+|3T>T|c.9A>G", "1|1:3")
	records, p := runPipeline(t, "stp", refFasta, vcf)

	assert.Empty(t, records)
	assert.Zero(t, p.Counters().Snapshot().TranscriptsDropped)
}

// Property 3: two runs over identical input produce identical output,
// including record order.
func TestDeterminism(t *testing.T) {
	vcf := vcfWith([]string{"p1", "p2"},
		"missense_variant|G1|T1|protein_coding|+|3T>S|c.7A>T", "1|1:3", "0|1:2")

	first, _ := runPipeline(t, "mtp", refFasta, vcf)
	second, _ := runPipeline(t, "mtp", refFasta, vcf)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Sequence, second[i].Sequence)
	}
}

// An annotation naming a transcript absent from the reference FASTA is
// a fatal input error, not a silent skip.
func TestUnknownTranscriptIsFatal(t *testing.T) {
	idx, err := reference.Load(strings.NewReader(refFasta))
	require.NoError(t, err)
	backend, err := exec.New("stp", nil)
	require.NoError(t, err)
	vcf := vcfWith([]string{"p1"},
		"missense_variant|G1|TX|protein_coding|+|3T>S|c.7A>T", "0|1:2")
	r, err := vcfio.NewReader(strings.NewReader(vcf))
	require.NoError(t, err)

	p := New(idx, backend)
	_, err = p.Run(r, func(slicer.Record) error { return nil })
	assert.Error(t, err)
}

// Unsupported consequence kinds are counted, not fatal, and yield no
// record.
func TestUnsupportedKindCounted(t *testing.T) {
	vcf := vcfWith([]string{"p1"},
		"splice_donor_variant|G1|T1|protein_coding|+|3T>S|c.7A>T", "0|1:2")
	records, p := runPipeline(t, "stp", refFasta, vcf)

	assert.Empty(t, records)
	assert.Equal(t, uint64(1), p.Counters().Snapshot().AnnotationsSkipped)
}
