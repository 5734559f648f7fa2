package csq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikmb/vcf2prot/internal/mutation"
)

func tuple(kind, transcript, aachange string) string {
	return kind + "|GENE1|" + transcript + "|protein_coding|+|" + aachange + "|dna_change"
}

func TestParseFieldMissense(t *testing.T) {
	raw := tuple("missense_variant", "T1", "3T>S")
	results := ParseField(raw)
	require.Len(t, results, 1)
	require.Len(t, results[0], 1)
	r := results[0][0]
	require.False(t, r.Skipped, r.Reason)
	assert.Equal(t, mutation.Mutation{TranscriptID: "T1", Kind: mutation.Missense, Pos: 2, RefLen: 1, AltAA: 'S'}, r.Mutation)
}

func TestParseFieldInsertion(t *testing.T) {
	raw := tuple("inframe_insertion", "T1", "3T>TRR")
	results := ParseField(raw)
	r := results[0][0]
	require.False(t, r.Skipped, r.Reason)
	assert.Equal(t, mutation.Mutation{TranscriptID: "T1", Kind: mutation.InframeDelins, Pos: 2, RefLen: 1, Inserted: "TRR"}, r.Mutation)
}

func TestParseFieldDeletion(t *testing.T) {
	raw := tuple("inframe_deletion", "T1", "3TA>T")
	results := ParseField(raw)
	r := results[0][0]
	require.False(t, r.Skipped, r.Reason)
	assert.Equal(t, mutation.Mutation{TranscriptID: "T1", Kind: mutation.InframeDelins, Pos: 2, RefLen: 2, Inserted: "T"}, r.Mutation)
}

func TestParseFieldStopGained(t *testing.T) {
	raw := tuple("stop_gained", "T1", "4A>*")
	results := ParseField(raw)
	r := results[0][0]
	require.False(t, r.Skipped, r.Reason)
	assert.Equal(t, mutation.Mutation{TranscriptID: "T1", Kind: mutation.StopGained, Pos: 3, RefLen: 1}, r.Mutation)
}

func TestParseFieldStopLost(t *testing.T) {
	raw := tuple("stop_lost", "T1", "61*>NMKLOPLMNBJK*")
	results := ParseField(raw)
	r := results[0][0]
	require.False(t, r.Skipped, r.Reason)
	assert.Equal(t, mutation.StopLost, r.Mutation.Kind)
	assert.Equal(t, "NMKLOPLMNBJK*", r.Mutation.Inserted)
	assert.Equal(t, 60, r.Mutation.Pos)
}

func TestParseFieldStartLostShortAnnotation(t *testing.T) {
	raw := "start_lost|GENE1|T1|protein_coding"
	results := ParseField(raw)
	r := results[0][0]
	require.False(t, r.Skipped, r.Reason)
	assert.Equal(t, mutation.Mutation{TranscriptID: "T1", Kind: mutation.StartLost, Pos: 0}, r.Mutation)
}

func TestParseFieldFrameShift(t *testing.T) {
	raw := tuple("frameshift_variant", "T1", "10A>RRKX*")
	results := ParseField(raw)
	r := results[0][0]
	require.False(t, r.Skipped, r.Reason)
	assert.Equal(t, mutation.FrameShift, r.Mutation.Kind)
	assert.Equal(t, "RRKX*", r.Mutation.NewTail)
	assert.Equal(t, 9, r.Mutation.Pos)
}

func TestParseFieldSynonymous(t *testing.T) {
	raw := tuple("synonymous_variant", "T1", "12L>L")
	results := ParseField(raw)
	r := results[0][0]
	require.False(t, r.Skipped, r.Reason)
	assert.Equal(t, mutation.Synonymous, r.Mutation.Kind)
	assert.Equal(t, 11, r.Mutation.Pos)
}

func TestParseFieldUnsupportedKindSkipped(t *testing.T) {
	raw := tuple("splice_acceptor_variant", "T1", "12L>L")
	results := ParseField(raw)
	r := results[0][0]
	assert.True(t, r.Skipped)
	assert.Contains(t, r.Reason, "unsupported consequence kind")
}

func TestParseFieldNonCodingBiotypeSkipped(t *testing.T) {
	raw := "missense_variant|GENE1|T1|retained_intron|+|3T>S|dna_change"
	results := ParseField(raw)
	r := results[0][0]
	assert.True(t, r.Skipped)
	assert.Contains(t, r.Reason, "non-coding")
}

func TestParseFieldMalformedTupleSkipped(t *testing.T) {
	raw := "missense_variant|GENE1|T1"
	results := ParseField(raw)
	r := results[0][0]
	assert.True(t, r.Skipped)
	assert.Contains(t, r.Reason, "malformed annotation")
}

func TestParseFieldMultipleAltAlleles(t *testing.T) {
	raw := tuple("missense_variant", "T1", "3T>S") + "," + tuple("stop_gained", "T1", "4A>*")
	results := ParseField(raw)
	require.Len(t, results, 2)
	assert.Equal(t, mutation.Missense, results[0][0].Mutation.Kind)
	assert.Equal(t, mutation.StopGained, results[1][0].Mutation.Kind)
}

func TestParseFieldCompoundPlusJoined(t *testing.T) {
	raw := tuple("missense_variant", "T1", "3T>S") + "+" + tuple("missense_variant", "T2", "8A>V")
	results := ParseField(raw)
	require.Len(t, results, 1)
	require.Len(t, results[0], 2)
	assert.Equal(t, "T1", results[0][0].Mutation.TranscriptID)
	assert.Equal(t, "T2", results[0][1].Mutation.TranscriptID)
}

func TestParseFieldCompoundAmpersandKind(t *testing.T) {
	raw := tuple("missense_variant&inframe_altering", "T1", "3T>S")
	results := ParseField(raw)
	r := results[0][0]
	require.False(t, r.Skipped, r.Reason)
	assert.Equal(t, mutation.Missense, r.Mutation.Kind)
}

func TestParseFieldEmptyOrMissing(t *testing.T) {
	assert.Nil(t, ParseField(""))
	assert.Nil(t, ParseField("."))
}

func TestParseFieldConflictingMultiAnnotationSharesPos(t *testing.T) {
	// Mirrors a documented conflict scenario: a missense and a delins both
	// anchored at the same protein_pos must compare equal on Pos so the
	// compiler's multi-annotation check can catch it.
	raw := tuple("missense_variant", "T1", "3T>S") + "," + tuple("inframe_deletion", "T1", "3TA>T")
	results := ParseField(raw)
	pos1 := results[0][0].Mutation.Pos
	pos2 := results[1][0].Mutation.Pos
	assert.Equal(t, pos1, pos2)
}
