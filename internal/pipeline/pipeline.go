// Package pipeline drives the full run: VCF records
// are decoded into the patient map, per-transcript programs are
// compiled in parallel across patients, lowered into one Task stream,
// executed on the selected backend, and sliced back into FASTA
// records. Every stage completes before the next starts; no partial
// results cross a stage boundary.
package pipeline

import (
	"os"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ikmb/vcf2prot/internal/compiler"
	"github.com/ikmb/vcf2prot/internal/exec"
	"github.com/ikmb/vcf2prot/internal/lowering"
	"github.com/ikmb/vcf2prot/internal/mutation"
	"github.com/ikmb/vcf2prot/internal/patientmap"
	"github.com/ikmb/vcf2prot/internal/reference"
	"github.com/ikmb/vcf2prot/internal/slicer"
	"github.com/ikmb/vcf2prot/internal/vcferr"
	"github.com/ikmb/vcf2prot/internal/vcfio"
)

// Pipeline owns the shared state of one run: the read-only reference
// index, the execution backend, the logger, and the warning counters.
type Pipeline struct {
	idx      *reference.Index
	backend  exec.Backend
	logger   *zap.Logger
	counters vcferr.Counters
	workers  int
	inspect  bool
}

// New creates a Pipeline over idx executing on backend.
func New(idx *reference.Index, backend exec.Backend) *Pipeline {
	return &Pipeline{
		idx:     idx,
		backend: backend,
		logger:  zap.NewNop(),
		workers: runtime.NumCPU(),
	}
}

// SetLogger sets the logger for warning and info messages.
func (p *Pipeline) SetLogger(l *zap.Logger) {
	p.logger = l
}

// SetWorkers overrides the worker count used by the decode and compile
// stages. Values below 1 reset to one worker.
func (p *Pipeline) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	p.workers = n
}

// SetInspect enables the post-execution translation self-check (the -i
// flag; the INSPECT_TXP variable has the same effect).
func (p *Pipeline) SetInspect(on bool) {
	p.inspect = on
}

// Counters exposes the run counters for the stats summary.
func (p *Pipeline) Counters() *vcferr.Counters {
	return &p.counters
}

// Run executes the whole pipeline, calling emit once per output record
// in the deterministic order (patients in VCF header order, haplotype
// 0 before 1, transcripts in reference-file order). The returned
// descriptors locate every emitted record and feed the stats summary.
func (p *Pipeline) Run(r *vcfio.Reader, emit func(slicer.Record) error) ([]lowering.Descriptor, error) {
	pmap, err := p.buildPatientMap(r)
	if err != nil {
		return nil, err
	}

	compiled, err := p.compileAll(pmap)
	if err != nil {
		return nil, err
	}

	ts, err := p.lowerAll(pmap.Patients(), compiled)
	if err != nil {
		return nil, err
	}

	result, err := p.backend.Execute(ts)
	if err != nil {
		return nil, err
	}

	if err := p.inspectResult(ts, result); err != nil {
		return nil, err
	}

	err = slicer.Slice(ts.Descriptors, result, func(rec slicer.Record) error {
		p.counters.RecordEmitted()
		return emit(rec)
	})
	if err != nil {
		return nil, err
	}
	return ts.Descriptors, nil
}

// decodeItem / decodeResult carry one VCF record through the decode
// worker pool, tagged with its sequence number so folding into the
// patient map happens in record order.
type decodeItem struct {
	seq     int
	variant *vcfio.Variant
}

type decodeResult struct {
	seq      int
	decoded  patientmap.RecordDecode
	warnings []string
}

// buildPatientMap reads every VCF record, parses its consequence
// annotations on a worker pool, and folds the decoded records into the
// patient map in record order.
func (p *Pipeline) buildPatientMap(r *vcfio.Reader) (*patientmap.Map, error) {
	samples := r.SampleNames()
	if len(samples) == 0 {
		return nil, vcferr.Input("vcf carries no sample columns")
	}
	pmap := patientmap.New(samples)

	items := make(chan decodeItem, 2*p.workers)
	results := make(chan decodeResult, 2*p.workers)

	var wg sync.WaitGroup
	wg.Add(p.workers)
	for w := 0; w < p.workers; w++ {
		go func() {
			defer wg.Done()
			for item := range items {
				d, warnings := patientmap.DecodeRecord(item.variant)
				results <- decodeResult{seq: item.seq, decoded: d, warnings: warnings}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var readErr error
	go func() {
		defer close(items)
		seq := 0
		for {
			v, err := r.Next()
			if err != nil {
				readErr = vcferr.Input("read vcf: %v", err)
				return
			}
			if v == nil {
				return
			}
			items <- decodeItem{seq: seq, variant: v}
			seq++
		}
	}()

	// Fold results in sequence order, buffering out-of-order arrivals.
	pending := make(map[int]decodeResult)
	nextSeq := 0
	for res := range results {
		pending[res.seq] = res
		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++

			for _, warning := range rr.warnings {
				p.counters.AnnotationSkipped()
				p.logger.Warn("skipped annotation", zap.String("detail", warning))
			}
			for _, warning := range patientmap.Fold(pmap, rr.decoded) {
				p.counters.BitmaskDecodeError()
				p.logger.Warn("bitmask decode failed", zap.String("detail", warning))
			}
		}
	}
	if readErr != nil {
		return nil, readErr
	}
	return pmap, nil
}

// compiledProgram is one (haplotype, transcript) program of a patient,
// already ordered for lowering.
type compiledProgram struct {
	haplotype  int
	transcript string
	program    *compiler.Program
}

// compileAll compiles every patient's programs on a worker pool
// (the run parallelizes across patients) and returns them indexed by patient
// header order. The first fatal error wins; drops are counted, never
// returned, and inspect failures are counted and returned only when
// PANIC_INSPECT_ERR is set.
func (p *Pipeline) compileAll(pmap *patientmap.Map) ([][]compiledProgram, error) {
	patients := pmap.Patients()
	compiled := make([][]compiledProgram, len(patients))
	errs := make([]error, len(patients))

	rank := make(map[string]int, p.idx.Count())
	for i, id := range p.idx.TranscriptIDs() {
		rank[id] = i
	}

	indices := make(chan int)
	var wg sync.WaitGroup
	wg.Add(p.workers)
	for w := 0; w < p.workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indices {
				compiled[i], errs[i] = p.compilePatient(pmap, patients[i], rank)
			}
		}()
	}
	for i := range patients {
		indices <- i
	}
	close(indices)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return compiled, nil
}

// compilePatient compiles both haplotypes of one patient, transcripts
// in reference-file order within each haplotype.
func (p *Pipeline) compilePatient(pmap *patientmap.Map, patient string, rank map[string]int) ([]compiledProgram, error) {
	debugTxp, _ := os.LookupEnv("DEBUG_TXP")
	_, inspectGen := os.LookupEnv("INSPECT_INS_GEN")

	var out []compiledProgram
	for hap := 0; hap < 2; hap++ {
		transcripts := pmap.Transcripts(patient, hap)
		sort.Slice(transcripts, func(i, j int) bool {
			ri, iok := rank[transcripts[i]]
			rj, jok := rank[transcripts[j]]
			if iok && jok {
				return ri < rj
			}
			if iok != jok {
				return iok
			}
			return transcripts[i] < transcripts[j]
		})

		for _, txp := range transcripts {
			refLen := p.idx.Len(txp)
			if refLen < 0 {
				return nil, vcferr.Input("consequence references unknown transcript %q", txp)
			}

			muts := p.boundsFilter(patient, hap, txp, refLen, pmap.Mutations(patient, hap, txp))
			if len(muts) == 0 {
				continue
			}
			prog, reason := compiler.Compile(refLen, muts)
			if reason != compiler.NotDropped {
				p.counters.TranscriptDropped()
				p.logger.Warn("transcript dropped",
					zap.String("patient", patient),
					zap.Int("haplotype", hap),
					zap.String("transcript", txp),
					zap.String("reason", string(reason)))
				continue
			}
			if prog == nil {
				// Every mutation was synonymous: byte-identical to the
				// reference, no record.
				continue
			}

			if txp == debugTxp {
				p.logger.Info("compiled transcript",
					zap.String("patient", patient),
					zap.Int("haplotype", hap),
					zap.String("transcript", txp),
					zap.Int("mutations", len(muts)),
					zap.Int("instructions", len(prog.Instructions)),
					zap.Int("out_length", prog.OutLength))
			}
			if inspectGen {
				if err := p.checkTiling(patient, hap, txp, prog); err != nil {
					return nil, err
				}
			}
			out = append(out, compiledProgram{haplotype: hap, transcript: txp, program: prog})
		}
	}
	return out, nil
}

// boundsFilter drops mutations whose reference span falls outside the
// reference protein. Truncating kinds (stop lost, stop gained,
// frameshift) may legitimately sit one position past the final residue
// when the annotation addresses the stop codon itself; every other
// kind must consume residues the reference actually has. A dropped
// mutation is a counted AnnotationSkipped, not a fatal error.
func (p *Pipeline) boundsFilter(patient string, hap int, txp string, refLen int, muts []mutation.Mutation) []mutation.Mutation {
	kept := muts[:0:0]
	for _, m := range muts {
		truncating := m.Kind == mutation.StopGained || m.Kind == mutation.StopLost || m.Kind == mutation.FrameShift
		inBounds := m.Pos >= 0 &&
			((truncating && m.Pos <= refLen) || (!truncating && m.Pos+m.RefLen <= refLen))
		if !inBounds {
			p.counters.AnnotationSkipped()
			p.logger.Warn("mutation position outside reference protein",
				zap.String("patient", patient),
				zap.Int("haplotype", hap),
				zap.String("transcript", txp),
				zap.Int("pos", m.Pos),
				zap.Int("ref_len", m.RefLen),
				zap.Int("protein_len", refLen))
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

// checkTiling verifies the tiling property for one compiled program
// (INSPECT_INS_GEN): instructions partition [0, OutLength) with no
// gaps and no overlaps. A violation is a counted warning, promoted to
// fatal by PANIC_INSPECT_ERR.
func (p *Pipeline) checkTiling(patient string, hap int, txp string, prog *compiler.Program) error {
	cursor := 0
	ok := true
	for _, ins := range prog.Instructions {
		if ins.OutStart != cursor {
			ok = false
			break
		}
		cursor += ins.Length
	}
	if ok && cursor == prog.OutLength {
		return nil
	}

	p.counters.InspectFailed()
	p.logger.Warn("instruction tiling check failed",
		zap.String("patient", patient),
		zap.Int("haplotype", hap),
		zap.String("transcript", txp),
		zap.Int("out_length", prog.OutLength))
	if _, panicOn := os.LookupEnv("PANIC_INSPECT_ERR"); panicOn {
		return vcferr.ErrInspectFailure
	}
	return nil
}

// lowerAll serializes the per-patient program lists, in patient header
// order, into one Task stream. compiled is aligned with patients.
func (p *Pipeline) lowerAll(patients []string, compiled [][]compiledProgram) (*lowering.TaskSet, error) {
	l := lowering.New(p.idx)
	for i, patientPrograms := range compiled {
		for _, cp := range patientPrograms {
			if !l.Add(patients[i], cp.haplotype, cp.transcript, cp.program) {
				return nil, vcferr.Input("compiled program references unknown transcript %q", cp.transcript)
			}
		}
	}
	return l.Finish(), nil
}

// inspectResult re-executes the Task stream on the single-thread
// backend and byte-compares when inspection is enabled, surfacing
// backend divergence as an InspectFailure.
func (p *Pipeline) inspectResult(ts *lowering.TaskSet, result []byte) error {
	_, inspectEnv := os.LookupEnv("INSPECT_TXP")
	if !p.inspect && !inspectEnv {
		return nil
	}
	st, err := exec.New("stp", p.logger)
	if err != nil {
		return err
	}
	expected, err := st.Execute(ts)
	if err != nil {
		return err
	}
	if string(expected) == string(result) {
		return nil
	}
	p.counters.InspectFailed()
	p.logger.Warn("backend result differs from single-thread reference execution",
		zap.String("backend", p.backend.Name()))
	if _, panicOn := os.LookupEnv("PANIC_INSPECT_ERR"); panicOn {
		return vcferr.ErrInspectFailure
	}
	return nil
}
