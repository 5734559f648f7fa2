// GPU backend. The corpus offers no device binding, so this is a
// software emulation of the data-parallel kernel: the four task arrays
// and the two streams are staged into "device" copies, a grid-stride
// loop is run with a fixed lane count where each lane executes every
// lanes-th task, and the result buffer is copied back. The staging and
// the per-stage failure categories mirror a real device path so a
// binding can replace the emulation without touching callers, and the
// output is byte-identical to the CPU backends by contract.
package exec

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/ikmb/vcf2prot/internal/lowering"
	"github.com/ikmb/vcf2prot/internal/vcferr"
)

type gpuEmulation struct {
	logger *zap.Logger
	lanes  int
}

func (b *gpuEmulation) Name() string { return "gpu" }

// deviceState holds the staged copies a real binding would allocate on
// the device.
type deviceState struct {
	execCode  []uint8
	srcStart  []int
	length    []int
	outStart  []int
	refStream []byte
	altStream []byte
	result    []byte
}

func (b *gpuEmulation) Execute(ts *lowering.TaskSet) ([]byte, error) {
	if _, ok := os.LookupEnv("DEBUG_GPU"); ok {
		debugTable(b.logger, b.Name(), ts)
	}
	if err := validate(ts); err != nil {
		return nil, vcferr.Backend(vcferr.BackendLaunch, err)
	}

	dev, err := b.allocate(ts)
	if err != nil {
		return nil, vcferr.Backend(vcferr.BackendAlloc, err)
	}
	if err := b.copyIn(ts, dev); err != nil {
		return nil, vcferr.Backend(vcferr.BackendCopyIn, err)
	}
	if err := b.launch(dev); err != nil {
		return nil, vcferr.Backend(vcferr.BackendExec, err)
	}

	result := make([]byte, ts.ResultLen)
	if err := b.copyOut(dev, result); err != nil {
		return nil, vcferr.Backend(vcferr.BackendCopyOut, err)
	}
	return result, nil
}

func (b *gpuEmulation) allocate(ts *lowering.TaskSet) (*deviceState, error) {
	n := ts.Tasks()
	return &deviceState{
		execCode:  make([]uint8, n),
		srcStart:  make([]int, n),
		length:    make([]int, n),
		outStart:  make([]int, n),
		refStream: make([]byte, len(ts.RefStream)),
		altStream: make([]byte, len(ts.AltStream)),
		result:    make([]byte, ts.ResultLen),
	}, nil
}

func (b *gpuEmulation) copyIn(ts *lowering.TaskSet, dev *deviceState) error {
	copy(dev.execCode, ts.ExecCode)
	copy(dev.srcStart, ts.SrcStart)
	copy(dev.length, ts.Length)
	copy(dev.outStart, ts.OutStart)
	copy(dev.refStream, ts.RefStream)
	copy(dev.altStream, ts.AltStream)
	return nil
}

// launch runs the kernel: a grid-stride loop where lane l executes
// tasks l, l+lanes, l+2*lanes, ...
func (b *gpuEmulation) launch(dev *deviceState) error {
	n := len(dev.execCode)
	lanes := b.lanes
	if lanes < 1 {
		return fmt.Errorf("invalid lane count %d", lanes)
	}
	if lanes > n {
		lanes = n
	}
	if n == 0 {
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(lanes)
	for l := 0; l < lanes; l++ {
		go func(lane int) {
			defer wg.Done()
			for i := lane; i < n; i += b.lanes {
				src, length, out := dev.srcStart[i], dev.length[i], dev.outStart[i]
				if dev.execCode[i] == lowering.ExecCopyRef {
					copy(dev.result[out:out+length], dev.refStream[src:src+length])
				} else {
					copy(dev.result[out:out+length], dev.altStream[src:src+length])
				}
			}
		}(l)
	}
	wg.Wait()
	return nil
}

func (b *gpuEmulation) copyOut(dev *deviceState, result []byte) error {
	if len(dev.result) != len(result) {
		return fmt.Errorf("device result length %d does not match host buffer %d", len(dev.result), len(result))
	}
	copy(result, dev.result)
	return nil
}
