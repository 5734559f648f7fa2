// Package vcferr defines the error kinds and run counters shared across
// the pipeline: fatal input and backend errors that abort the run,
// and the counted, non-fatal warning categories.
package vcferr

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrFatalInput marks unreadable or malformed VCF/FASTA input, a
// duplicate transcript id, or an unknown transcript id referenced by a
// consequence annotation.
var ErrFatalInput = errors.New("fatal input error")

// ErrFatalBackend marks an execution-backend failure (worker pool or
// device). Wrap with Backend to attach the failure category.
var ErrFatalBackend = errors.New("fatal backend error")

// ErrInspectFailure marks a diagnostic self-check mismatch. Only raised
// as an error when PANIC_INSPECT_ERR is set; the default is a warning.
var ErrInspectFailure = errors.New("inspect failure")

// BackendCategory numbers the backend failure stages reported with
// ErrFatalBackend.
type BackendCategory int

const (
	BackendAlloc      BackendCategory = 1 // device allocation
	BackendCopyIn     BackendCategory = 2 // host to device copy
	BackendLaunch     BackendCategory = 3 // kernel launch
	BackendExec       BackendCategory = 4 // kernel or worker execution
	BackendCopyOut    BackendCategory = 5 // device to host copy
	BackendWorkerPool BackendCategory = 6 // CPU worker-pool failure
)

func (c BackendCategory) String() string {
	switch c {
	case BackendAlloc:
		return "allocation"
	case BackendCopyIn:
		return "host-to-device copy"
	case BackendLaunch:
		return "kernel launch"
	case BackendExec:
		return "execution"
	case BackendCopyOut:
		return "device-to-host copy"
	case BackendWorkerPool:
		return "worker pool"
	default:
		return fmt.Sprintf("category %d", int(c))
	}
}

// Input formats a message and wraps it as a fatal input error.
func Input(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFatalInput, fmt.Sprintf(format, args...))
}

// Backend wraps err as a fatal backend error carrying its category.
func Backend(cat BackendCategory, err error) error {
	return fmt.Errorf("%w (%s): %w", ErrFatalBackend, cat, err)
}

// Counters accumulates the non-fatal warning counts surfaced in the run
// summary. Safe for concurrent use by the compile workers.
type Counters struct {
	transcriptsDropped  atomic.Uint64
	annotationsSkipped  atomic.Uint64
	recordsEmitted      atomic.Uint64
	inspectFailures     atomic.Uint64
	bitmaskDecodeErrors atomic.Uint64
}

func (c *Counters) TranscriptDropped() { c.transcriptsDropped.Add(1) }
func (c *Counters) AnnotationSkipped() { c.annotationsSkipped.Add(1) }
func (c *Counters) RecordEmitted() { c.recordsEmitted.Add(1) }
func (c *Counters) InspectFailed() { c.inspectFailures.Add(1) }
func (c *Counters) BitmaskDecodeError() { c.bitmaskDecodeErrors.Add(1) }

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	TranscriptsDropped  uint64
	AnnotationsSkipped  uint64
	RecordsEmitted      uint64
	InspectFailures     uint64
	BitmaskDecodeErrors uint64
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		TranscriptsDropped:  c.transcriptsDropped.Load(),
		AnnotationsSkipped:  c.annotationsSkipped.Load(),
		RecordsEmitted:      c.recordsEmitted.Load(),
		InspectFailures:     c.inspectFailures.Load(),
		BitmaskDecodeErrors: c.bitmaskDecodeErrors.Load(),
	}
}
