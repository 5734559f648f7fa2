package exec

import (
	"errors"
	"strings"
	"testing"

	"github.com/ikmb/vcf2prot/internal/compiler"
	"github.com/ikmb/vcf2prot/internal/lowering"
	"github.com/ikmb/vcf2prot/internal/mutation"
	"github.com/ikmb/vcf2prot/internal/reference"
	"github.com/ikmb/vcf2prot/internal/vcferr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTaskSet lowers a small three-program workload spanning both
// source streams and two transcripts.
func buildTaskSet(t *testing.T) *lowering.TaskSet {
	t.Helper()
	idx, err := reference.Load(strings.NewReader(">T1\nMKTAYQ\n>T2\nMAPLE\n"))
	require.NoError(t, err)

	l := lowering.New(idx)
	add := func(patient string, hap int, txp string, refLen int, muts []mutation.Mutation) {
		prog, reason := compiler.Compile(refLen, muts)
		require.Equal(t, compiler.NotDropped, reason)
		require.True(t, l.Add(patient, hap, txp, prog))
	}
	add("p1", 1, "T1", 6, []mutation.Mutation{{Kind: mutation.Missense, Pos: 2, RefLen: 1, AltAA: 'S'}})
	add("p2", 0, "T1", 6, []mutation.Mutation{{Kind: mutation.InframeDelins, Pos: 2, RefLen: 1, Inserted: "TRR"}})
	add("p2", 1, "T2", 5, []mutation.Mutation{{Kind: mutation.FrameShift, Pos: 2, RefLen: 1, NewTail: "WW*"}})
	return l.Finish()
}

const wantBuffer = "MKSAYQ" + "MKTRRAYQ" + "MAWW*"

func TestSingleThreadExecute(t *testing.T) {
	b, err := New("stp", nil)
	require.NoError(t, err)
	out, err := b.Execute(buildTaskSet(t))
	require.NoError(t, err)
	assert.Equal(t, wantBuffer, string(out))
}

func TestBackendsAreByteIdentical(t *testing.T) {
	ts := buildTaskSet(t)
	var buffers [][]byte
	for _, name := range []string{"stp", "mtp", "gpu"} {
		b, err := New(name, nil)
		require.NoError(t, err)
		out, err := b.Execute(ts)
		require.NoError(t, err, name)
		buffers = append(buffers, out)
	}
	assert.Equal(t, buffers[0], buffers[1])
	assert.Equal(t, buffers[0], buffers[2])
	assert.Equal(t, wantBuffer, string(buffers[0]))
}

func TestEmptyTaskSet(t *testing.T) {
	for _, name := range []string{"stp", "mtp", "gpu"} {
		b, err := New(name, nil)
		require.NoError(t, err)
		out, err := b.Execute(&lowering.TaskSet{})
		require.NoError(t, err, name)
		assert.Empty(t, out, name)
	}
}

func TestUnknownBackendName(t *testing.T) {
	_, err := New("simd", nil)
	assert.Error(t, err)
}

func TestMalformedTaskSetIsFatalBackend(t *testing.T) {
	ts := &lowering.TaskSet{
		ExecCode:  []uint8{lowering.ExecCopyRef},
		SrcStart:  []int{0},
		Length:    []int{10},
		OutStart:  []int{0},
		RefStream: []byte("MK"),
		ResultLen: 10,
	}
	for _, name := range []string{"stp", "mtp", "gpu"} {
		b, err := New(name, nil)
		require.NoError(t, err)
		_, err = b.Execute(ts)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, vcferr.ErrFatalBackend), name)
	}
}

func TestGPUManyMoreTasksThanLanes(t *testing.T) {
	idx, err := reference.Load(strings.NewReader(">T1\n" + strings.Repeat("MKTAYQLW", 200) + "\n"))
	require.NoError(t, err)

	// One missense per 8-residue block produces 2 tasks per block plus
	// the trailing copy, well past the emulation's lane count.
	refLen := 1600
	var muts []mutation.Mutation
	for p := 0; p < refLen; p += 8 {
		muts = append(muts, mutation.Mutation{Kind: mutation.Missense, Pos: p, RefLen: 1, AltAA: 'X'})
	}
	prog, reason := compiler.Compile(refLen, muts)
	require.Equal(t, compiler.NotDropped, reason)

	l := lowering.New(idx)
	require.True(t, l.Add("p1", 0, "T1", prog))
	ts := l.Finish()

	gpu, err := New("gpu", nil)
	require.NoError(t, err)
	stp, err := New("stp", nil)
	require.NoError(t, err)

	got, err := gpu.Execute(ts)
	require.NoError(t, err)
	want, err := stp.Execute(ts)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
