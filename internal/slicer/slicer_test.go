package slicer

import (
	"errors"
	"testing"

	"github.com/ikmb/vcf2prot/internal/lowering"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastaID(t *testing.T) {
	d := lowering.Descriptor{Patient: "p1", Haplotype: 1, Transcript: "ENST0001"}
	assert.Equal(t, "p1_1_ENST0001", FastaID(d))
}

func TestSlicePreservesDescriptorOrder(t *testing.T) {
	result := []byte("MKSAYQMKTRRAYQ")
	descs := []lowering.Descriptor{
		{Patient: "p1", Haplotype: 1, Transcript: "T1", OutStart: 0, OutLength: 6},
		{Patient: "p2", Haplotype: 0, Transcript: "T1", OutStart: 6, OutLength: 8},
	}

	recs, err := Records(descs, result)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "p1_1_T1", recs[0].ID)
	assert.Equal(t, "MKSAYQ", string(recs[0].Sequence))
	assert.Equal(t, "p2_0_T1", recs[1].ID)
	assert.Equal(t, "MKTRRAYQ", string(recs[1].Sequence))
}

func TestSliceOutOfRangeDescriptor(t *testing.T) {
	descs := []lowering.Descriptor{
		{Patient: "p1", Haplotype: 0, Transcript: "T1", OutStart: 4, OutLength: 6},
	}
	_, err := Records(descs, []byte("MKTA"))
	assert.Error(t, err)
}

func TestSliceStopsOnEmitError(t *testing.T) {
	descs := []lowering.Descriptor{
		{Patient: "p1", Haplotype: 0, Transcript: "T1", OutStart: 0, OutLength: 2},
		{Patient: "p1", Haplotype: 1, Transcript: "T1", OutStart: 2, OutLength: 2},
	}
	sentinel := errors.New("writer full")
	calls := 0
	err := Slice(descs, []byte("MKTA"), func(Record) error {
		calls++
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}
