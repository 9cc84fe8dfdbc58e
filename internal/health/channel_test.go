package health

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmitAppendsToRingAndNdjsonSink(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "alerts.ndjson")
	ch, err := NewChannel(8, logPath)
	require.NoError(t, err)
	defer ch.Close()

	ch.Emit("recording_started", "info", map[string]any{"match_id": "match_1", "duration_seconds": 0.25})
	ch.Emit("recording_camera_error", "error", map[string]any{"camera_id": 1, "match_id": "match_1"})

	alerts := ch.Alerts(0)
	require.Len(t, alerts, 2)
	require.Equal(t, "recording_started", alerts[0].Kind)
	require.Equal(t, "recording_camera_error", alerts[1].Kind)
	require.NotNil(t, alerts[1].CameraID)
	require.Equal(t, 1, *alerts[1].CameraID)

	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Equal(t, 2, bytes.Count(raw, []byte("\n")))
}

func TestRingDropsOldestOnOverflow(t *testing.T) {
	ch, err := NewChannel(2, "")
	require.NoError(t, err)
	ch.Emit("a", "info", nil)
	ch.Emit("b", "info", nil)
	ch.Emit("c", "info", nil)

	alerts := ch.Alerts(0)
	require.Len(t, alerts, 2)
	require.Equal(t, "b", alerts[0].Kind)
	require.Equal(t, "c", alerts[1].Kind)
}

func TestRecordingHealthMergesRecentIssues(t *testing.T) {
	ch, err := NewChannel(16, "")
	require.NoError(t, err)
	ch.Emit("recording_camera_error", "error", map[string]any{"camera_id": 0})

	health := ch.RecordingHealth([]CameraStateInput{
		{CameraID: 0, State: "playing", UptimeS: 12},
		{CameraID: 1, State: "playing", UptimeS: 12},
	})
	require.Contains(t, health.PerCamera[0].Issues, "recording_camera_error")
	require.Empty(t, health.PerCamera[1].Issues)
}

func TestCorrelateGroupsAlertsWithinWindow(t *testing.T) {
	ch, err := NewChannel(16, "")
	require.NoError(t, err)
	ch.Emit("recording_stop_non_graceful", "warn", map[string]any{"camera_id": 0})
	ch.Emit("recording_integrity_failed", "error", map[string]any{"camera_id": 0})

	events := ch.Correlate(5.0)
	require.NotEmpty(t, events)
	found := false
	for _, ev := range events {
		if len(ev.Related) > 0 {
			found = true
		}
	}
	require.True(t, found)
}

func TestAlertsMaxLimitsToMostRecent(t *testing.T) {
	ch, err := NewChannel(16, "")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		ch.Emit("tick", "info", nil)
	}
	require.Len(t, ch.Alerts(2), 2)
}
