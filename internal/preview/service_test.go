package preview

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/matchcam/core/internal/config"
	"github.com/matchcam/core/internal/lock"
	"github.com/matchcam/core/internal/runtime"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newTestService(t *testing.T, engine *runtime.FakeEngine, recordingActive RecordingStateChecker) *Service {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Cameras: map[int]*config.CameraConfig{
			0: {CameraID: 0, SensorWidth: 1920, SensorHeight: 1080, CorrectionKind: config.CorrectionNone},
			1: {CameraID: 1, SensorWidth: 1920, SensorHeight: 1080, CorrectionKind: config.CorrectionNone},
		},
	}
	path := filepath.Join(dir, "config.json")
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	store, err := config.NewStore(path)
	require.NoError(t, err)

	adapter := runtime.NewAdapter(engine)
	l, err := lock.New(filepath.Join(dir, "locks"))
	require.NoError(t, err)
	return NewService(store, adapter, l, recordingActive)
}

func TestStartBothCamerasThenStopReleasesLock(t *testing.T) {
	defer goleak.VerifyNone(t)
	svc := newTestService(t, &runtime.FakeEngine{}, nil)

	result, err := svc.Start(context.Background(), nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []int{0, 1}, result.CamerasStarted)
	require.Equal(t, StateActive, svc.State([]int{0, 1}))

	stopResult := svc.Stop(nil)
	require.ElementsMatch(t, []int{0, 1}, stopResult.CamerasStopped)
	require.Equal(t, StateStopped, svc.State([]int{0, 1}))
}

func TestStartSingleCameraLeavesOtherUntouched(t *testing.T) {
	defer goleak.VerifyNone(t)
	svc := newTestService(t, &runtime.FakeEngine{}, nil)

	result, err := svc.Start(context.Background(), []int{0})
	require.NoError(t, err)
	require.Equal(t, []int{0}, result.CamerasStarted)
	require.Equal(t, StatePartiallyActive, svc.State([]int{0, 1}))

	stopResult := svc.Stop([]int{0})
	require.Equal(t, []int{0}, stopResult.CamerasStopped)
	require.Equal(t, StateStopped, svc.State([]int{0, 1}))
}

func TestStartRefusedWhileRecordingActive(t *testing.T) {
	svc := newTestService(t, &runtime.FakeEngine{}, func() bool { return true })

	_, err := svc.Start(context.Background(), nil)
	require.Error(t, err)
	var recActive *RecordingActiveError
	require.ErrorAs(t, err, &recActive)
}

func TestRestartIsObservationallyStopThenStart(t *testing.T) {
	defer goleak.VerifyNone(t)
	svc := newTestService(t, &runtime.FakeEngine{}, nil)

	_, err := svc.Start(context.Background(), nil)
	require.NoError(t, err)

	result, err := svc.Restart(context.Background(), nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []int{0, 1}, result.CamerasStarted)
	require.Equal(t, StateActive, svc.State([]int{0, 1}))

	svc.Stop(nil)
}

func TestStartWhileBusyWithRecordLockFails(t *testing.T) {
	dir := t.TempDir()
	l, err := lock.New(dir)
	require.NoError(t, err)
	require.NoError(t, l.Acquire(context.Background(), lock.RoleRecord, false, nil))
	defer l.Release()

	cfg := &config.Config{Cameras: map[int]*config.CameraConfig{
		0: {CameraID: 0, SensorWidth: 1920, SensorHeight: 1080, CorrectionKind: config.CorrectionNone},
	}}
	cfgPath := filepath.Join(dir, "config.json")
	raw, _ := json.Marshal(cfg)
	require.NoError(t, os.WriteFile(cfgPath, raw, 0o644))
	store, err := config.NewStore(cfgPath)
	require.NoError(t, err)

	svc := NewService(store, runtime.NewAdapter(&runtime.FakeEngine{}), l, nil)
	_, err = svc.Start(context.Background(), nil)
	require.Error(t, err)
}
