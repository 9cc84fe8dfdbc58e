package control

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matchcam/core/internal/config"
	"github.com/matchcam/core/internal/health"
	"github.com/matchcam/core/internal/lock"
	"github.com/matchcam/core/internal/preview"
	"github.com/matchcam/core/internal/recording"
	"github.com/matchcam/core/internal/runtime"
	"github.com/stretchr/testify/require"
)

func newTestSurface(t *testing.T) *Surface {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Cameras: map[int]*config.CameraConfig{
			0: {CameraID: 0, SensorWidth: 1920, SensorHeight: 1080, CorrectionKind: config.CorrectionNone},
			1: {CameraID: 1, SensorWidth: 1920, SensorHeight: 1080, CorrectionKind: config.CorrectionNone},
		},
		RecordingRequireAllCameras:     true,
		RecordingRecoveryMaxAttempts:   1,
		RecordingStopEOSTimeoutSeconds: 1,
		ProtectionSeconds:              0,
		HeartbeatSeconds:               1,
		OutputDir:                      filepath.Join(dir, "recordings"),
		LockDir:                        filepath.Join(dir, "locks"),
		PersistedStatePath:             filepath.Join(dir, "recording_state.json"),
		AlertLogPath:                   filepath.Join(dir, "alerts.ndjson"),
	}
	cfgPath := filepath.Join(dir, "config.json")
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgPath, raw, 0o644))
	store, err := config.NewStore(cfgPath)
	require.NoError(t, err)

	alerts, err := health.NewChannel(64, "")
	require.NoError(t, err)

	recAdapter := runtime.NewAdapter(&runtime.FakeEngine{})
	recLock, err := lock.New(filepath.Join(dir, "rec-locks"))
	require.NoError(t, err)
	recSvc := recording.NewService(store, recAdapter, recLock, alerts)

	prevAdapter := runtime.NewAdapter(&runtime.FakeEngine{})
	prevLock, err := lock.New(filepath.Join(dir, "rec-locks"))
	require.NoError(t, err)
	prevSvc := preview.NewService(store, prevAdapter, prevLock, func() bool {
		return recSvc.State() != recording.StateIdle
	})
	recSvc.SetPreviewStopper(prevSvc.StopForEviction)

	return NewSurface(recSvc, prevSvc, alerts)
}

func TestStartRecordingIdempotentWithoutForce(t *testing.T) {
	surface := newTestSurface(t)

	resp, err := surface.StartRecording(context.Background(), StartRecordingRequest{MatchID: "match_1"})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, "match_1", resp.MatchID)

	resp2, err := surface.StartRecording(context.Background(), StartRecordingRequest{MatchID: "match_1"})
	require.NoError(t, err)
	require.True(t, resp2.Success)
	require.Equal(t, "match_1", resp2.MatchID)

	_, err = surface.StopRecording(context.Background(), StopRecordingRequest{Force: true})
	require.NoError(t, err)
}

func TestStartRecordingStopsPreviewFirst(t *testing.T) {
	surface := newTestSurface(t)

	_, err := surface.StartPreview(context.Background(), nil)
	require.NoError(t, err)
	require.True(t, surface.GetStatus().Preview.PreviewActive)

	resp, err := surface.StartRecording(context.Background(), StartRecordingRequest{})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.False(t, surface.GetStatus().Preview.PreviewActive)

	_, err = surface.StopRecording(context.Background(), StopRecordingRequest{Force: true})
	require.NoError(t, err)
}

func TestStartPreviewRefusedDuringRecording(t *testing.T) {
	surface := newTestSurface(t)

	_, err := surface.StartRecording(context.Background(), StartRecordingRequest{})
	require.NoError(t, err)

	_, err = surface.StartPreview(context.Background(), nil)
	require.Error(t, err)
	var recActive *preview.RecordingActiveError
	require.ErrorAs(t, err, &recActive)

	_, err = surface.StopRecording(context.Background(), StopRecordingRequest{Force: true})
	require.NoError(t, err)
}

func TestGetRecordingHealthReflectsCameraErrors(t *testing.T) {
	surface := newTestSurface(t)
	_, err := surface.StartRecording(context.Background(), StartRecordingRequest{})
	require.NoError(t, err)

	surface.alerts.Emit("recording_camera_error", "error", map[string]any{"camera_id": 0})
	time.Sleep(10 * time.Millisecond)

	health := surface.GetRecordingHealth()
	require.Contains(t, health.PerCamera[0].Issues, "recording_camera_error")

	_, err = surface.StopRecording(context.Background(), StopRecordingRequest{Force: true})
	require.NoError(t, err)
}
