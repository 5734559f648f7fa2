// Package lowering flattens compiled per-transcript Instruction lists
// into the executor-ready Task stream: four parallel arrays in
// structure-of-arrays layout plus the reference and alternate byte
// streams, sized so a backend can write the whole result buffer in one
// pass.
package lowering

import (
	"github.com/ikmb/vcf2prot/internal/compiler"
	"github.com/ikmb/vcf2prot/internal/reference"
)

// Exec codes stored in TaskSet.ExecCode. Zero copies from the reference
// stream, one from the alternate stream, matching the Instruction ops.
const (
	ExecCopyRef  uint8 = 0
	ExecWriteAlt uint8 = 1
)

// Descriptor locates one (patient, haplotype, transcript) record inside
// the global result buffer.
type Descriptor struct {
	Patient    string
	Haplotype  int
	Transcript string
	OutStart   int
	OutLength  int
}

// TaskSet is the lowered form of every compiled program: parallel arrays
// indexed by task, the two source byte streams, the per-record
// descriptors, and the total result-buffer length.
type TaskSet struct {
	ExecCode []uint8
	SrcStart []int
	Length   []int
	OutStart []int

	RefStream []byte
	AltStream []byte

	Descriptors []Descriptor
	ResultLen   int
}

// Tasks returns the number of lowered tasks.
func (ts *TaskSet) Tasks() int {
	return len(ts.ExecCode)
}

// Lowerer accumulates programs into a TaskSet. Programs must be added in
// the final output order; the descriptor list preserves it.
type Lowerer struct {
	idx        *reference.Index
	refOffsets map[string]int
	ts         TaskSet
}

// New creates a Lowerer drawing reference bytes from idx.
func New(idx *reference.Index) *Lowerer {
	return &Lowerer{
		idx:        idx,
		refOffsets: make(map[string]int),
	}
}

// refOffset returns the transcript's offset into the reference stream,
// appending its sequence on first use so each transcript's bytes are
// materialized at most once no matter how many patients mutate it.
func (l *Lowerer) refOffset(transcript string) (int, bool) {
	if off, ok := l.refOffsets[transcript]; ok {
		return off, true
	}
	seq, ok := l.idx.Sequence(transcript)
	if !ok {
		return 0, false
	}
	off := len(l.ts.RefStream)
	l.ts.RefStream = append(l.ts.RefStream, seq...)
	l.refOffsets[transcript] = off
	return off, true
}

// Add lowers one compiled program. A program with OutLength zero (e.g. a
// stop gained at the first residue) contributes no tasks and no
// descriptor, per the out_length > 0 output contract. Returns false when
// the transcript id is not in the reference index — the caller treats
// that as a fatal input error, since the compiler positions were
// computed against a sequence the index must hold.
func (l *Lowerer) Add(patient string, haplotype int, transcript string, prog *compiler.Program) bool {
	if prog.OutLength == 0 {
		return true
	}

	refOff, ok := l.refOffset(transcript)
	if !ok {
		return false
	}

	gOut := l.ts.ResultLen
	for _, ins := range prog.Instructions {
		switch ins.Op {
		case compiler.CopyRef:
			l.ts.ExecCode = append(l.ts.ExecCode, ExecCopyRef)
			l.ts.SrcStart = append(l.ts.SrcStart, refOff+ins.RefStart)
		case compiler.WriteAlt:
			l.ts.ExecCode = append(l.ts.ExecCode, ExecWriteAlt)
			l.ts.SrcStart = append(l.ts.SrcStart, len(l.ts.AltStream))
			l.ts.AltStream = append(l.ts.AltStream, ins.Alt...)
		}
		l.ts.Length = append(l.ts.Length, ins.Length)
		l.ts.OutStart = append(l.ts.OutStart, gOut+ins.OutStart)
	}

	l.ts.Descriptors = append(l.ts.Descriptors, Descriptor{
		Patient:    patient,
		Haplotype:  haplotype,
		Transcript: transcript,
		OutStart:   gOut,
		OutLength:  prog.OutLength,
	})
	l.ts.ResultLen += prog.OutLength
	return true
}

// Finish releases the accumulated TaskSet. The Lowerer must not be used
// afterwards.
func (l *Lowerer) Finish() *TaskSet {
	ts := l.ts
	l.ts = TaskSet{}
	l.refOffsets = nil
	return &ts
}
