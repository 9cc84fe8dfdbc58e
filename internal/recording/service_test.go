package recording

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matchcam/core/internal/config"
	"github.com/matchcam/core/internal/lock"
	"github.com/matchcam/core/internal/pipeline"
	"github.com/matchcam/core/internal/runtime"
	"github.com/stretchr/testify/require"
)

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []string
}

func (r *recordingAlerts) Emit(kind string, severity string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, kind)
}

func (r *recordingAlerts) has(kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range r.alerts {
		if k == kind {
			return true
		}
	}
	return false
}

func newTestStore(t *testing.T, dir string, mutate func(*config.Config)) *config.Store {
	t.Helper()
	cfg := testDefaultConfig(dir)
	if mutate != nil {
		mutate(cfg)
	}
	path := filepath.Join(dir, "config.json")
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	store, err := config.NewStore(path)
	require.NoError(t, err)
	return store
}

func testDefaultConfig(dir string) *config.Config {
	return &config.Config{
		Cameras: map[int]*config.CameraConfig{
			0: {CameraID: 0, SensorWidth: 1920, SensorHeight: 1080, CorrectionKind: config.CorrectionNone},
			1: {CameraID: 1, SensorWidth: 1920, SensorHeight: 1080, CorrectionKind: config.CorrectionNone},
		},
		RecordingRequireAllCameras:      true,
		RecordingRecoveryMaxAttempts:    2,
		RecordingRecoveryBackoffSeconds: 0.01,
		RecordingStopEOSTimeoutSeconds:  1,
		ProtectionSeconds:               0,
		HeartbeatSeconds:                1,
		OutputDir:                       filepath.Join(dir, "recordings"),
		LockDir:                         filepath.Join(dir, "locks"),
		PersistedStatePath:              filepath.Join(dir, "recording_state.json"),
		AlertLogPath:                    filepath.Join(dir, "alerts.ndjson"),
	}
}

func newTestService(t *testing.T, engine *runtime.FakeEngine, mutate func(*config.Config)) (*Service, *recordingAlerts) {
	t.Helper()
	dir := t.TempDir()
	store := newTestStore(t, dir, mutate)
	adapter := runtime.NewAdapter(engine, runtime.WithTimeouts(time.Second, time.Second))
	l, err := lock.New(filepath.Join(dir, "locks"))
	require.NoError(t, err)
	alerts := &recordingAlerts{}
	svc := NewService(store, adapter, l, alerts)
	svc.retryBackoff = time.Millisecond
	return svc, alerts
}

func TestStartActivatesBothCamerasAndPersistsState(t *testing.T) {
	svc, alerts := newTestService(t, &runtime.FakeEngine{}, nil)

	matchID, err := svc.Start(context.Background(), StartOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, matchID)
	require.Equal(t, StateActive, svc.State())
	require.True(t, alerts.has("recording_started"))
	require.FileExists(t, svc.persistPath)

	report, err := svc.Stop(context.Background(), StopOptions{Force: true})
	require.NoError(t, err)
	require.Equal(t, matchID, report.MatchID)
	require.Len(t, report.Cameras, 2)
	require.Equal(t, StateIdle, svc.State())
}

func TestStartWithoutForceWhileActiveIsAlreadyRecording(t *testing.T) {
	svc, _ := newTestService(t, &runtime.FakeEngine{}, nil)
	_, err := svc.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), StartOptions{})
	require.Error(t, err)
	var already *AlreadyRecordingError
	require.ErrorAs(t, err, &already)

	_, _ = svc.Stop(context.Background(), StopOptions{Force: true})
}

func TestStopWithoutForceDuringProtectionWindowIsRejected(t *testing.T) {
	svc, _ := newTestService(t, &runtime.FakeEngine{}, func(c *config.Config) {
		c.ProtectionSeconds = 60
	})
	_, err := svc.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	_, err = svc.Stop(context.Background(), StopOptions{})
	require.Error(t, err)
	var protected *ProtectedStopError
	require.ErrorAs(t, err, &protected)
	require.Greater(t, protected.RemainingSeconds, 0.0)

	_, err = svc.Stop(context.Background(), StopOptions{Force: true})
	require.NoError(t, err)
}

func TestStopWhileIdleIsNotRecording(t *testing.T) {
	svc, _ := newTestService(t, &runtime.FakeEngine{}, nil)
	_, err := svc.Stop(context.Background(), StopOptions{})
	require.Error(t, err)
	var notRecording *NotRecordingError
	require.ErrorAs(t, err, &notRecording)
}

func TestStartRollsBackOnPartialCameraFailure(t *testing.T) {
	// Camera 1 fails its first start only, so the second Start below can
	// succeed once the first has rolled back.
	failedOnce := false
	engine := &runtime.FakeEngine{
		FailStart: func(desc pipeline.Description) error {
			if desc.CameraID == 1 && !failedOnce {
				failedOnce = true
				return errors.New("simulated camera 1 failure")
			}
			return nil
		},
	}
	svc, _ := newTestService(t, engine, func(c *config.Config) {
		c.RecordingRecoveryMaxAttempts = 1
	})
	svc.retryMaxAttempts = 1

	_, err := svc.Start(context.Background(), StartOptions{})
	require.Error(t, err)
	var startFailed *StartFailedError
	require.ErrorAs(t, err, &startFailed)
	require.Equal(t, StateIdle, svc.State())

	// Rolled back cleanly: a subsequent Start must succeed.
	_, err = svc.Start(context.Background(), StartOptions{})
	require.NoError(t, err)
	_, err = svc.Stop(context.Background(), StopOptions{Force: true})
	require.NoError(t, err)
}

func TestRequireAllCamerasFalseKeepsSurvivorRunning(t *testing.T) {
	engine := &runtime.FakeEngine{}
	svc, alerts := newTestService(t, engine, func(c *config.Config) {
		c.RecordingRequireAllCameras = false
	})

	_, err := svc.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	svc.handleCameraFault(cameraFault{cameraID: 1, err: errors.New("bus error")})

	require.Eventually(t, func() bool { return alerts.has("recording_camera_error") }, time.Second, 10*time.Millisecond)
	require.Equal(t, StateActive, svc.State())

	svc.mu.Lock()
	_, stillTracked := svc.handles[1]
	svc.mu.Unlock()
	require.False(t, stillTracked, "failed camera's handle must be dropped so a later Stop doesn't re-drain it")

	report, err := svc.Stop(context.Background(), StopOptions{Force: true})
	require.NoError(t, err)
	require.Len(t, report.Cameras, 2)
	require.False(t, report.AllOK, "asymmetry must be recorded: one camera failed mid-session")

	var failedReport CameraReport
	for _, c := range report.Cameras {
		if c.CameraID == 1 {
			failedReport = c
		}
	}
	require.False(t, failedReport.Graceful)
	require.Equal(t, "bus error", failedReport.Error)
}

// TestCameraFaultUnderRequireAllForcesStopWithoutDeadlock guards against a
// self-join: a fault posted to the event queue is handled on the same
// goroutine that Stop's stopBackgroundLoops must join, so the forced Stop
// it triggers cannot run synchronously on that goroutine.
func TestCameraFaultUnderRequireAllForcesStopWithoutDeadlock(t *testing.T) {
	svc, alerts := newTestService(t, &runtime.FakeEngine{}, nil)
	_, err := svc.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	svc.eventQueue <- cameraFault{cameraID: 0, err: errors.New("bus error")}

	done := make(chan struct{})
	go func() {
		for svc.State() != StateIdle {
			time.Sleep(5 * time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forced stop triggered by a camera fault deadlocked")
	}
	require.True(t, alerts.has("recording_camera_error"))
}

// TestOverloadTriggerForcesStopWithoutDeadlock mirrors the event-queue
// case above for the overload guard: trigger() runs on overloadGuard.loop,
// the same goroutine stopBackgroundLoops joins via overload.stop().
func TestOverloadTriggerForcesStopWithoutDeadlock(t *testing.T) {
	svc, alerts := newTestService(t, &runtime.FakeEngine{}, func(c *config.Config) {
		c.RecordingOverloadGuardEnabled = true
		c.RecordingOverloadCPUPercent = 0
		c.RecordingOverloadPollInterval = 0.01
		c.RecordingOverloadStreakThreshold = 1
	})
	_, err := svc.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for svc.State() != StateIdle {
			time.Sleep(5 * time.Millisecond)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forced stop triggered by the overload guard deadlocked")
	}
	require.True(t, alerts.has("recording_overload_guard_triggered"))
}

func TestRecoverOnBootEmitsAlertForRecentState(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir, nil)
	adapter := runtime.NewAdapter(&runtime.FakeEngine{})
	l, err := lock.New(filepath.Join(dir, "locks"))
	require.NoError(t, err)
	alerts := &recordingAlerts{}
	svc := NewService(store, adapter, l, alerts)

	persistPath := filepath.Join(dir, "recording_state.json")
	require.NoError(t, writePersistedState(persistPath, newPersistedState("match_x", dir, cameraIDs, time.Now())))

	require.NoError(t, svc.RecoverOnBoot(persistPath))
	require.True(t, alerts.has("recovered_incomplete"))
	_, statErr := os.Stat(persistPath)
	require.True(t, os.IsNotExist(statErr))
}
