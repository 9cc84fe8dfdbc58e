package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/matchcam/core/internal/pipeline"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func desc(cam int) pipeline.Description {
	return pipeline.Description{Role: pipeline.RoleRecord, CameraID: cam}
}

func TestCreateStartStopHappyPath(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := &FakeEngine{}
	a := NewAdapter(engine, WithTimeouts(time.Second, time.Second))

	handle, err := a.Create(desc(0))
	require.NoError(t, err)
	require.Equal(t, StateNull, handle.State())

	var events []Event
	a.Subscribe(handle, func(ev Event) { events = append(events, ev) })

	require.NoError(t, a.Start(context.Background(), handle))
	require.Equal(t, StatePlaying, handle.State())

	require.NoError(t, a.SendEndOfStream(handle))
	drained, err := a.AwaitDrain(handle, time.Second)
	require.NoError(t, err)
	require.True(t, drained)

	require.NoError(t, a.Stop(handle))
	require.Equal(t, StateStopped, handle.State())

	// Idempotent.
	require.NoError(t, a.Stop(handle))
	require.NotEmpty(t, events)
}

func TestBuildFailureReturnsRuntimeBuildError(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := &FakeEngine{FailBuild: func(pipeline.Description) error { return context.DeadlineExceeded }}
	a := NewAdapter(engine)

	_, err := a.Create(desc(0))
	require.Error(t, err)
	var buildErr *RuntimeBuildError
	require.ErrorAs(t, err, &buildErr)
}

func TestStartTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := &FakeEngine{StartDelay: 5 * time.Second}
	a := NewAdapter(engine, WithTimeouts(50*time.Millisecond, time.Second))

	handle, err := a.Create(desc(0))
	require.NoError(t, err)

	err = a.Start(context.Background(), handle)
	require.Error(t, err)
	var timeoutErr *RuntimeStartTimeoutError
	require.ErrorAs(t, err, &timeoutErr)

	require.NoError(t, a.Stop(handle))
}

func TestDrainTimeoutReturnsNotDrainedWithoutError(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := &FakeEngine{DrainDelay: 5 * time.Second}
	a := NewAdapter(engine, WithTimeouts(time.Second, time.Second))

	handle, err := a.Create(desc(0))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background(), handle))
	require.NoError(t, a.SendEndOfStream(handle))

	drained, err := a.AwaitDrain(handle, 50*time.Millisecond)
	require.NoError(t, err)
	require.False(t, drained)

	require.NoError(t, a.Stop(handle))
}

func TestStopEscalatesToForcedTeardownOnStuckNativeStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := &FakeEngine{HangOnStop: true}
	a := NewAdapter(engine, WithTimeouts(time.Second, 50*time.Millisecond))

	handle, err := a.Create(desc(0))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background(), handle))

	err = a.Stop(handle)
	require.Error(t, err)
	var stuck *RuntimeStuckError
	require.ErrorAs(t, err, &stuck)
	require.Equal(t, StateDisposed, handle.State())
	require.Error(t, handle.DisposedError())

	// Allow the fake's background Stop() goroutine to finish before the
	// leak check at defer time.
	time.Sleep(2100 * time.Millisecond)
}

func TestNoEventsDeliveredAfterStopReturns(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := &FakeEngine{}
	a := NewAdapter(engine, WithTimeouts(time.Second, time.Second))

	handle, err := a.Create(desc(0))
	require.NoError(t, err)

	count := 0
	a.Subscribe(handle, func(Event) { count++ })
	require.NoError(t, a.Start(context.Background(), handle))
	require.NoError(t, a.Stop(handle))

	after := count
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, after, count)
}
