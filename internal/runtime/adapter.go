package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matchcam/core/internal/constants"
	"github.com/matchcam/core/internal/logging"
	"github.com/matchcam/core/internal/pipeline"
)

// Adapter is the Media Runtime Adapter (C3): it wraps Engine and owns one
// worker goroutine per handle so event callbacks never execute on a
// caller's goroutine, and enforces the start/forced-teardown timeouts.
type Adapter struct {
	engine Engine
	logger *logging.Logger

	mu       sync.Mutex
	sessions map[uint64]*trackedSession

	startTimeout          time.Duration
	forcedTeardownTimeout time.Duration
}

type trackedSession struct {
	handle  *PipelineHandle
	session EngineSession
	cancel  context.CancelFunc
	done    chan struct{}

	playingCh chan struct{}
	errCh     chan Event
	eosCh     chan struct{}
	once      sync.Once
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTimeouts overrides the default start and forced-teardown timeouts.
func WithTimeouts(start, forcedTeardown time.Duration) Option {
	return func(a *Adapter) {
		a.startTimeout = start
		a.forcedTeardownTimeout = forcedTeardown
	}
}

// NewAdapter returns an Adapter driving the given Engine.
func NewAdapter(engine Engine, opts ...Option) *Adapter {
	a := &Adapter{
		engine:                engine,
		logger:                logging.GetLogger("runtime-adapter"),
		sessions:              make(map[uint64]*trackedSession),
		startTimeout:          constants.DefaultStartTimeout,
		forcedTeardownTimeout: constants.DefaultForcedTeardownTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Create builds a native session for desc and returns a handle in state
// Null. It does not start the pipeline.
func (a *Adapter) Create(desc pipeline.Description) (*PipelineHandle, error) {
	session, err := a.engine.Build(desc)
	if err != nil {
		return nil, &RuntimeBuildError{CameraID: desc.CameraID, Err: err}
	}

	handle := newHandle(desc)
	ctx, cancel := context.WithCancel(context.Background())
	ts := &trackedSession{
		handle:    handle,
		session:   session,
		cancel:    cancel,
		done:      make(chan struct{}),
		playingCh: make(chan struct{}),
		errCh:     make(chan Event, 1),
		eosCh:     make(chan struct{}),
	}

	a.mu.Lock()
	a.sessions[handle.id] = ts
	a.mu.Unlock()

	go a.worker(ctx, ts)
	return handle, nil
}

// worker is the dedicated per-handle goroutine: it is the only thing that
// reads the session's native event channel and the only thing that
// mutates handle state, so callbacks never run on a caller's goroutine.
func (a *Adapter) worker(ctx context.Context, ts *trackedSession) {
	defer close(ts.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ts.session.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case EventStateChanged:
				ts.handle.setState(ev.State)
				if ev.State == StatePlaying {
					ts.once.Do(func() { close(ts.playingCh) })
				}
			case EventError:
				select {
				case ts.errCh <- ev:
				default:
				}
			case EventEOS:
				select {
				case ts.eosCh <- struct{}{}:
				default:
				}
			}
			ts.handle.dispatch(ev)
		}
	}
}

// Subscribe registers sink to receive every event for handle.
func (a *Adapter) Subscribe(handle *PipelineHandle, sink EventSink) {
	handle.addSink(sink)
}

// Start moves handle Null -> Playing, blocking until the runtime reports
// Playing or errors, bounded by the adapter's start timeout.
func (a *Adapter) Start(ctx context.Context, handle *PipelineHandle) error {
	ts, err := a.lookup(handle)
	if err != nil {
		return err
	}

	handle.setState(StateBuilding)
	if err := ts.session.Start(ctx); err != nil {
		return fmt.Errorf("runtime: start camera %d: %w", handle.desc.CameraID, err)
	}

	timeout := time.NewTimer(a.startTimeout)
	defer timeout.Stop()

	select {
	case <-ts.playingCh:
		return nil
	case ev := <-ts.errCh:
		return fmt.Errorf("runtime: camera %d reported error during start: %s (%s)", handle.desc.CameraID, ev.Message, ev.Code)
	case <-timeout.C:
		return &RuntimeStartTimeoutError{CameraID: handle.desc.CameraID, Timeout: a.startTimeout.String()}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendEndOfStream injects EOS at the source.
func (a *Adapter) SendEndOfStream(handle *PipelineHandle) error {
	ts, err := a.lookup(handle)
	if err != nil {
		return err
	}
	ts.session.SendEOS()
	return nil
}

// AwaitDrain waits for EOS to reach the muxer, bounded by timeout. It does
// not force teardown: on timeout it returns drained=false, nil.
func (a *Adapter) AwaitDrain(handle *PipelineHandle, timeout time.Duration) (drained bool, err error) {
	ts, lookupErr := a.lookup(handle)
	if lookupErr != nil {
		return false, lookupErr
	}
	handle.setState(StateDraining)

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ts.eosCh:
		return true, nil
	case <-t.C:
		return false, nil
	}
}

// Stop moves handle to Null and releases native resources. Idempotent. If
// the native Stop doesn't complete within the forced-teardown timeout, the
// adapter reclaims resources anyway and marks the handle
// Disposed(error=RuntimeStuck).
func (a *Adapter) Stop(handle *PipelineHandle) error {
	ts, err := a.lookup(handle)
	if err != nil {
		if handle.State() == StateDisposed || handle.State() == StateStopped {
			return nil
		}
		return err
	}

	if handle.State() == StateDisposed || handle.State() == StateStopped {
		return nil
	}

	stopDone := make(chan error, 1)
	go func() { stopDone <- ts.session.Stop() }()

	var stopErr error
	select {
	case stopErr = <-stopDone:
	case <-time.After(a.forcedTeardownTimeout):
		stuck := &RuntimeStuckError{CameraID: handle.desc.CameraID}
		handle.setDisposedErr(stuck)
		handle.setState(StateDisposed)
		a.teardown(handle)
		return stuck
	}

	a.teardown(handle)
	handle.setState(StateNull)
	handle.setState(StateStopped)
	return stopErr
}

// teardown cancels the worker and removes the session, guaranteeing no
// further events are delivered for this handle after it returns.
func (a *Adapter) teardown(handle *PipelineHandle) {
	a.mu.Lock()
	ts, ok := a.sessions[handle.id]
	if ok {
		delete(a.sessions, handle.id)
	}
	a.mu.Unlock()
	if !ok {
		return
	}
	ts.cancel()
	<-ts.done
}

func (a *Adapter) lookup(handle *PipelineHandle) (*trackedSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ts, ok := a.sessions[handle.id]
	if !ok {
		return nil, fmt.Errorf("runtime: handle %d has no active session", handle.id)
	}
	return ts, nil
}
