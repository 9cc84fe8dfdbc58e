package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matchcam/core/internal/pipeline"
)

// FakeEngine is an in-process Engine with no native dependency: the
// production target has no reachable GStreamer/cgo binding in this
// module's dependency graph, so the adapter is validated against a
// deterministic simulated backend instead. FailBuild/FailStart/
// StartDelay/DrainDelay/HangOnStop let tests exercise every adapter path
// (RuntimeBuildError, start timeout, forced teardown, drain timeout).
type FakeEngine struct {
	mu sync.Mutex

	FailBuild  func(desc pipeline.Description) error
	FailStart  func(desc pipeline.Description) error
	StartDelay time.Duration
	DrainDelay time.Duration
	HangOnStop bool
}

func (e *FakeEngine) Build(desc pipeline.Description) (EngineSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailBuild != nil {
		if err := e.FailBuild(desc); err != nil {
			return nil, err
		}
	}
	return &fakeSession{engine: e, desc: desc, events: make(chan Event, 8)}, nil
}

type fakeSession struct {
	engine *FakeEngine
	desc   pipeline.Description
	events chan Event

	mu      sync.Mutex
	stopped bool
}

func (s *fakeSession) Start(ctx context.Context) error {
	s.engine.mu.Lock()
	var failErr error
	if s.engine.FailStart != nil {
		failErr = s.engine.FailStart(s.desc)
	}
	delay := s.engine.StartDelay
	s.engine.mu.Unlock()

	go func() {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}
		if failErr != nil {
			s.emit(Event{Kind: EventError, Code: "start_failed", Message: failErr.Error()})
			return
		}
		s.emit(Event{Kind: EventStateChanged, State: StatePlaying})
	}()
	return nil
}

func (s *fakeSession) SendEOS() {
	s.engine.mu.Lock()
	delay := s.engine.DrainDelay
	s.engine.mu.Unlock()

	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		s.emit(Event{Kind: EventEOS})
	}()
}

func (s *fakeSession) Stop() error {
	s.engine.mu.Lock()
	hang := s.engine.HangOnStop
	s.engine.mu.Unlock()
	if hang {
		// Simulates a native Stop call that outlasts the adapter's
		// forced-teardown timeout without leaking forever: long enough for
		// any reasonable test timeout to win the race, short enough that
		// the goroutine eventually exits instead of blocking for good.
		time.Sleep(2 * time.Second)
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.events)
	return nil
}

func (s *fakeSession) Events() <-chan Event { return s.events }

func (s *fakeSession) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

// FailOnce builds a FailBuild/FailStart hook that errors for the first N
// calls for a given camera id, then succeeds — useful for exercising the
// recording service's per-camera retry policy.
func FailOnce(n int) func(desc pipeline.Description) error {
	var mu sync.Mutex
	counts := map[int]int{}
	return func(desc pipeline.Description) error {
		mu.Lock()
		defer mu.Unlock()
		counts[desc.CameraID]++
		if counts[desc.CameraID] <= n {
			return fmt.Errorf("fake failure %d for camera %d", counts[desc.CameraID], desc.CameraID)
		}
		return nil
	}
}
