package runtime

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/matchcam/core/internal/pipeline"
)

// State is a PipelineHandle's lifecycle state: Null → Building → Playing →
// Draining → Stopped → Disposed. There is no separate Ready state between
// Building and Playing.
type State int

const (
	StateNull State = iota
	StateBuilding
	StatePlaying
	StateDraining
	StateStopped
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateBuilding:
		return "building"
	case StatePlaying:
		return "playing"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// EventKind tags the union delivered to a handle's event sink.
type EventKind int

const (
	EventError EventKind = iota
	EventWarning
	EventEOS
	EventStateChanged
)

// Event is the {Error(code,msg), Warning(msg), Eos, StateChanged} union
// the adapter delivers on a dedicated worker (spec §4.3).
type Event struct {
	Kind    EventKind
	Code    string
	Message string
	State   State
}

// EventSink receives events for a single handle. Implementations must not
// block significantly — the adapter's worker serializes all events for
// that handle.
type EventSink func(Event)

var handleSeq uint64

// PipelineHandle is an opaque reference to one native pipeline instance.
// Exactly one worker goroutine owns each handle's event delivery and state
// transitions.
type PipelineHandle struct {
	id   uint64
	desc pipeline.Description

	mu    sync.Mutex
	state State

	sinks   []EventSink
	sinksMu sync.Mutex

	disposedErr error
}

func newHandle(desc pipeline.Description) *PipelineHandle {
	return &PipelineHandle{
		id:    atomic.AddUint64(&handleSeq, 1),
		desc:  desc,
		state: StateNull,
	}
}

// ID returns a process-unique numeric id, useful for log correlation.
func (h *PipelineHandle) ID() uint64 { return h.id }

// Description returns the PipelineDescription this handle was built from.
func (h *PipelineHandle) Description() pipeline.Description { return h.desc }

// State returns the handle's current lifecycle state.
func (h *PipelineHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *PipelineHandle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// DisposedError returns the error that caused Disposed, if any (e.g.
// RuntimeStuck from a forced teardown).
func (h *PipelineHandle) DisposedError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposedErr
}

func (h *PipelineHandle) setDisposedErr(err error) {
	h.mu.Lock()
	h.disposedErr = err
	h.mu.Unlock()
}

func (h *PipelineHandle) addSink(sink EventSink) {
	h.sinksMu.Lock()
	h.sinks = append(h.sinks, sink)
	h.sinksMu.Unlock()
}

func (h *PipelineHandle) dispatch(ev Event) {
	h.sinksMu.Lock()
	sinks := append([]EventSink{}, h.sinks...)
	h.sinksMu.Unlock()
	for _, s := range sinks {
		s(ev)
	}
}

func (h *PipelineHandle) String() string {
	return fmt.Sprintf("handle(%d,%s/%d,%s)", h.id, h.desc.Role, h.desc.CameraID, h.State())
}
