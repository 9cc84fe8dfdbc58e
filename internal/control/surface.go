package control

import (
	"context"
	"errors"
	"sort"

	"github.com/matchcam/core/internal/health"
	"github.com/matchcam/core/internal/logging"
	"github.com/matchcam/core/internal/preview"
	"github.com/matchcam/core/internal/recording"
)

// Surface is the Control Surface (C8). It holds no state of its own beyond
// its collaborators: every enforcement rule reads through to the
// Recording/Preview Service's own state.
type Surface struct {
	recording *recording.Service
	preview   *preview.Service
	alerts    *health.Channel
	logger    *logging.Logger
}

// NewSurface wires the Control Surface's collaborators.
func NewSurface(rec *recording.Service, prev *preview.Service, alerts *health.Channel) *Surface {
	return &Surface{
		recording: rec,
		preview:   prev,
		alerts:    alerts,
		logger:    logging.GetLogger("control-surface"),
	}
}

// GetStatus answers get_status (spec §6.1).
func (s *Surface) GetStatus() StatusResponse {
	recStatus := s.recording.Status()
	prevSnapshot := s.preview.Snapshot()
	return StatusResponse{Recording: &recStatus, Preview: &prevSnapshot}
}

// StartRecording dispatches start_recording, enforcing idempotence (spec
// §4.8 i): a matching match_id on an already-active session returns the
// existing session's result unless force is set.
func (s *Surface) StartRecording(ctx context.Context, req StartRecordingRequest) (*StartRecordingResponse, error) {
	current := s.recording.Status()
	if current.Recording && !req.Force && (req.MatchID == "" || req.MatchID == current.MatchID) {
		return &StartRecordingResponse{
			Success:        true,
			MatchID:        current.MatchID,
			CamerasStarted: cameraIDsFromStatus(current),
		}, nil
	}

	matchID, err := s.recording.Start(ctx, recording.StartOptions{
		MatchID:           req.MatchID,
		Force:             req.Force,
		RequireAllCameras: req.RequireAllCameras,
	})
	if err != nil {
		var startFailed *recording.StartFailedError
		if errors.As(err, &startFailed) {
			failed := make([]CameraFailure, 0, len(startFailed.Partial))
			for _, id := range startFailed.Partial {
				failed = append(failed, CameraFailure{CameraID: id, Cause: startFailed.Error()})
			}
			return &StartRecordingResponse{Success: false, CamerasFailed: failed}, err
		}
		return nil, err
	}

	return &StartRecordingResponse{
		Success:        true,
		MatchID:        matchID,
		CamerasStarted: cameraIDsFromStatus(s.recording.Status()),
	}, nil
}

// StopRecording dispatches stop_recording. ProtectedStop and NotRecording
// are returned as typed errors (spec §4.8 ii), never silently absorbed.
func (s *Surface) StopRecording(ctx context.Context, req StopRecordingRequest) (*recording.StopReport, error) {
	return s.recording.Stop(ctx, recording.StopOptions{Force: req.Force})
}

// StartPreview dispatches start_preview. cameraIDs nil means both cameras
// (spec §6.1 "camera_id null = both").
func (s *Surface) StartPreview(ctx context.Context, cameraIDs []int) (*PreviewOpResponse, error) {
	result, err := s.preview.Start(ctx, cameraIDs)
	if err != nil {
		return nil, err
	}
	return &PreviewOpResponse{CamerasStarted: result.CamerasStarted, CamerasFailed: toCameraFailures(result.CamerasFailed)}, nil
}

// StopPreview dispatches stop_preview.
func (s *Surface) StopPreview(cameraIDs []int) *PreviewOpResponse {
	result := s.preview.Stop(cameraIDs)
	return &PreviewOpResponse{CamerasStopped: result.CamerasStopped, CamerasFailed: toCameraFailures(result.CamerasFailed)}
}

// RestartPreview dispatches restart_preview: observationally stop+start
// (spec §8 round-trip property).
func (s *Surface) RestartPreview(ctx context.Context, cameraIDs []int) (*PreviewOpResponse, error) {
	result, err := s.preview.Restart(ctx, cameraIDs)
	if err != nil {
		return nil, err
	}
	return &PreviewOpResponse{CamerasStarted: result.CamerasStarted, CamerasFailed: toCameraFailures(result.CamerasFailed)}, nil
}

// GetRecordingHealth dispatches get_recording_health (spec §4.7),
// synthesizing from the Recording Service's current camera states.
func (s *Surface) GetRecordingHealth() health.RecordingHealth {
	status := s.recording.Status()
	cams := make([]health.CameraStateInput, 0, len(status.Cameras))
	for id, cam := range status.Cameras {
		cams = append(cams, health.CameraStateInput{CameraID: id, State: cam.State, UptimeS: cam.UptimeS})
	}
	return s.alerts.RecordingHealth(cams)
}

// GetAlerts dispatches get_alerts.
func (s *Surface) GetAlerts(max int) []health.Alert {
	return s.alerts.Alerts(max)
}

func cameraIDsFromStatus(st recording.Status) []int {
	ids := make([]int, 0, len(st.Cameras))
	for id := range st.Cameras {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func toCameraFailures(failed []preview.CameraResult) []CameraFailure {
	out := make([]CameraFailure, 0, len(failed))
	for _, f := range failed {
		out = append(out, CameraFailure{CameraID: f.CameraID, Cause: f.Error})
	}
	return out
}
