// Package exec materializes the result buffer from a lowered TaskSet.
// Three backends share one contract: byte-identical result
// buffers for the same input. Instructions tile the output with
// disjoint writes, so the parallel variants need no synchronization
// beyond a barrier at the end.
package exec

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/ikmb/vcf2prot/internal/lowering"
	"github.com/ikmb/vcf2prot/internal/vcferr"
)

// Backend consumes a Task stream and produces the result buffer.
type Backend interface {
	Name() string
	Execute(ts *lowering.TaskSet) ([]byte, error)
}

// New selects a backend by its CLI name: "stp" (single thread), "mtp"
// (multi-thread pool), or "gpu" (data-parallel emulation).
func New(name string, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch name {
	case "stp":
		return &singleThread{logger: logger}, nil
	case "mtp":
		return &threadPool{logger: logger, workers: runtime.NumCPU()}, nil
	case "gpu":
		return &gpuEmulation{logger: logger, lanes: 256}, nil
	default:
		return nil, fmt.Errorf("%q is not a supported backend (stp, mtp, gpu)", name)
	}
}

// validate bounds-checks every task against the streams and the result
// buffer before any byte is written, so a malformed TaskSet fails whole
// rather than after a partial write.
func validate(ts *lowering.TaskSet) error {
	for i := range ts.ExecCode {
		src, length, out := ts.SrcStart[i], ts.Length[i], ts.OutStart[i]
		if length < 0 || out < 0 || out+length > ts.ResultLen {
			return fmt.Errorf("task %d writes [%d, %d) outside result buffer of length %d", i, out, out+length, ts.ResultLen)
		}
		stream := ts.RefStream
		if ts.ExecCode[i] == lowering.ExecWriteAlt {
			stream = ts.AltStream
		}
		if src < 0 || src+length > len(stream) {
			return fmt.Errorf("task %d reads [%d, %d) outside source stream of length %d", i, src, src+length, len(stream))
		}
	}
	return nil
}

// debugTable logs the adjacency self-check the DEBUG_CPU_EXEC /
// DEBUG_GPU variables enable: consecutive tasks of one program abut in
// the result buffer, so a gap between out_start[i-1]+length[i-1] and
// out_start[i] that is not a program boundary indicates a lowering bug.
// Diagnostics only; never alters the run.
func debugTable(logger *zap.Logger, label string, ts *lowering.TaskSet) {
	starts := make(map[int]bool, len(ts.Descriptors))
	for _, d := range ts.Descriptors {
		starts[d.OutStart] = true
	}
	for i := 1; i < len(ts.ExecCode); i++ {
		if starts[ts.OutStart[i]] {
			continue
		}
		if ts.OutStart[i] != ts.OutStart[i-1]+ts.Length[i-1] {
			logger.Warn("execution table discontinuity",
				zap.String("backend", label),
				zap.Int("task", i),
				zap.Int("out_start", ts.OutStart[i]),
				zap.Int("prev_out_start", ts.OutStart[i-1]),
				zap.Int("prev_length", ts.Length[i-1]))
		}
	}
	logger.Debug("validated execution tasks", zap.String("backend", label), zap.Int("tasks", ts.Tasks()))
}

// executeRange runs tasks [lo, hi) against the shared buffers. Writes
// are disjoint by construction, so concurrent callers on distinct
// ranges never race.
func executeRange(ts *lowering.TaskSet, result []byte, lo, hi int) {
	for i := lo; i < hi; i++ {
		src, length, out := ts.SrcStart[i], ts.Length[i], ts.OutStart[i]
		if ts.ExecCode[i] == lowering.ExecCopyRef {
			copy(result[out:out+length], ts.RefStream[src:src+length])
		} else {
			copy(result[out:out+length], ts.AltStream[src:src+length])
		}
	}
}

type singleThread struct {
	logger *zap.Logger
}

func (b *singleThread) Name() string { return "stp" }

func (b *singleThread) Execute(ts *lowering.TaskSet) ([]byte, error) {
	if _, ok := os.LookupEnv("DEBUG_CPU_EXEC"); ok {
		debugTable(b.logger, b.Name(), ts)
	}
	if err := validate(ts); err != nil {
		return nil, vcferr.Backend(vcferr.BackendExec, err)
	}
	result := make([]byte, ts.ResultLen)
	executeRange(ts, result, 0, ts.Tasks())
	return result, nil
}

type threadPool struct {
	logger  *zap.Logger
	workers int
}

func (b *threadPool) Name() string { return "mtp" }

func (b *threadPool) Execute(ts *lowering.TaskSet) ([]byte, error) {
	if _, ok := os.LookupEnv("DEBUG_CPU_EXEC"); ok {
		debugTable(b.logger, b.Name(), ts)
	}
	if err := validate(ts); err != nil {
		return nil, vcferr.Backend(vcferr.BackendWorkerPool, err)
	}

	result := make([]byte, ts.ResultLen)
	n := ts.Tasks()
	workers := b.workers
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	if n == 0 {
		return result, nil
	}

	// Partition the task index range into one contiguous chunk per
	// worker; the remainder spreads over the leading chunks.
	chunk := n / workers
	rem := n % workers

	var wg sync.WaitGroup
	wg.Add(workers)
	lo := 0
	for w := 0; w < workers; w++ {
		hi := lo + chunk
		if w < rem {
			hi++
		}
		go func(lo, hi int) {
			defer wg.Done()
			executeRange(ts, result, lo, hi)
		}(lo, hi)
		lo = hi
	}
	wg.Wait()

	return result, nil
}
