package compiler

import (
	"sort"

	"github.com/ikmb/vcf2prot/internal/mutation"
)

// DropReason names why a transcript's program was rejected instead of
// compiled.
type DropReason string

const (
	// NotDropped is the zero value: the transcript compiled successfully.
	NotDropped DropReason = ""

	MultiAnnotation DropReason = "multi_annotation"
	Engulfment      DropReason = "engulfment"
	PostTerminal    DropReason = "post_terminal_mutation"
	StartLostDrop   DropReason = "start_lost"
)

// Program is the compiled Instruction list for one (patient, haplotype,
// transcript), plus the total output length after the last emit.
type Program struct {
	Instructions []Instruction
	OutLength    int
}

// Compile runs the full pipeline for one transcript: sort, semantic
// dedup, conflict detection, then the lowering walk. refLen is the
// reference protein's length in residues. A non-empty DropReason means
// the transcript produces no record; Program is nil in that case.
// A nil Program with NotDropped means every mutation was synonymous
// (or the list was empty): the protein is byte-identical to the
// reference, so no record is produced and nothing is counted as
// dropped.
func Compile(refLen int, muts []mutation.Mutation) (*Program, DropReason) {
	sorted := sortMutations(muts)
	deduped := dedup(sorted)
	deduped = dropSynonymous(deduped)
	if len(deduped) == 0 {
		return nil, NotDropped
	}

	if reason := detectConflicts(deduped); reason != NotDropped {
		return nil, reason
	}

	prog, startLost := lower(refLen, deduped)
	if startLost {
		return nil, StartLostDrop
	}
	return prog, NotDropped
}

// sortMutations returns a new slice sorted by (Pos, RefLen) ascending,
// stable so ties preserve the caller's original relative order — that
// original order is the VCF record order the Patient Map
// Builder assembled, which matters when a later step needs a
// deterministic tiebreak.
func sortMutations(muts []mutation.Mutation) []mutation.Mutation {
	out := make([]mutation.Mutation, len(muts))
	copy(out, muts)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Pos != out[j].Pos {
			return out[i].Pos < out[j].Pos
		}
		return out[i].RefLen < out[j].RefLen
	})
	return out
}

// dedup collapses consecutive, byte-identical Mutations. Sorting by
// (Pos, RefLen) groups every candidate pair, since Equivalent requires an
// exact Pos and RefLen match; two equivalent entries with a different
// mutation of the same Pos and RefLen between them are not collapsed, and
// such a list fails the multi-annotation check either way.
func dedup(sorted []mutation.Mutation) []mutation.Mutation {
	if len(sorted) == 0 {
		return sorted
	}
	out := make([]mutation.Mutation, 0, len(sorted))
	out = append(out, sorted[0])
	for _, m := range sorted[1:] {
		if m.Equivalent(out[len(out)-1]) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// dropSynonymous removes Synonymous Mutations before conflict detection
// and lowering: a synonymous change leaves the protein byte-identical to
// the reference at that position, so it contributes no Instruction and
// must not consume the lowering cursor or participate in overlap/
// multi-annotation checks.
func dropSynonymous(muts []mutation.Mutation) []mutation.Mutation {
	out := muts[:0:0]
	for _, m := range muts {
		if m.Kind != mutation.Synonymous {
			out = append(out, m)
		}
	}
	return out
}

// detectConflicts applies the three conflict rules against an already
// sorted, deduped Mutation list.
func detectConflicts(muts []mutation.Mutation) DropReason {
	for i := range muts {
		// Multi-annotation: a later entry with the same Pos. Adjacent
		// check suffices since the list is sorted by Pos.
		if i+1 < len(muts) && muts[i+1].Pos == muts[i].Pos {
			return MultiAnnotation
		}

		// Engulfment/overlap: the next mutation starts inside this one's
		// reference span. Checking only the immediate successor suffices
		// because the list is sorted by Pos: if muts[i+1] starts at or
		// after end, so does every later entry.
		_, end := muts[i].Span()
		if i+1 < len(muts) && muts[i+1].Pos < end {
			return Engulfment
		}

		// Post-terminal mutation: once a StopGained or FrameShift is
		// found, any following entry (sorted by Pos, so pos >= this
		// one's) is illegal.
		if muts[i].Kind == mutation.StopGained || muts[i].Kind == mutation.FrameShift {
			if i+1 < len(muts) {
				return PostTerminal
			}
		}
	}
	return NotDropped
}

// lower runs the cursor walk producing Instructions
// from a conflict-free, sorted Mutation list. Returns (nil, true) if a
// StartLost mutation is present, signaling the caller to drop the whole
// transcript rather than emit a partial program.
func lower(refLen int, muts []mutation.Mutation) (*Program, bool) {
	for _, m := range muts {
		if m.Kind == mutation.StartLost {
			return nil, true
		}
	}

	var instrs []Instruction
	c, o := 0, 0
	terminated := false

	for _, m := range muts {
		if m.Pos > c {
			length := m.Pos - c
			instrs = append(instrs, Instruction{Op: CopyRef, RefStart: c, Length: length, OutStart: o})
			o += length
			c = m.Pos
		}

		switch m.Kind {
		case mutation.Missense:
			instrs = append(instrs, Instruction{Op: WriteAlt, Alt: string(m.AltAA), Length: 1, OutStart: o})
			c++
			o++
		case mutation.InframeInsertion:
			instrs = append(instrs, Instruction{Op: WriteAlt, Alt: m.Inserted, Length: len(m.Inserted), OutStart: o})
			o += len(m.Inserted)
		case mutation.InframeDeletion:
			c += m.RefLen
		case mutation.InframeDelins:
			instrs = append(instrs, Instruction{Op: WriteAlt, Alt: m.Inserted, Length: len(m.Inserted), OutStart: o})
			c += m.RefLen
			o += len(m.Inserted)
		case mutation.StopGained:
			terminated = true
		case mutation.StopLost:
			instrs = append(instrs, Instruction{Op: WriteAlt, Alt: m.Inserted, Length: len(m.Inserted), OutStart: o})
			o += len(m.Inserted)
			c = refLen
		case mutation.FrameShift:
			instrs = append(instrs, Instruction{Op: WriteAlt, Alt: m.NewTail, Length: len(m.NewTail), OutStart: o})
			o += len(m.NewTail)
			terminated = true
		}

		if terminated {
			break
		}
	}

	if !terminated && c < refLen {
		length := refLen - c
		instrs = append(instrs, Instruction{Op: CopyRef, RefStart: c, Length: length, OutStart: o})
		o += length
	}

	return &Program{Instructions: instrs, OutLength: o}, false
}
