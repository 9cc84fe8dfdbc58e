package control

import (
	"github.com/matchcam/core/internal/preview"
	"github.com/matchcam/core/internal/recording"
)

// CameraFailure names one camera and why a start/stop operation failed on it.
type CameraFailure struct {
	CameraID int    `json:"id"`
	Cause    string `json:"cause"`
}

// StatusResponse answers get_status (spec §6.1): recording and preview
// session snapshots side by side.
type StatusResponse struct {
	Recording *recording.Status `json:"recording,omitempty"`
	Preview   *preview.Snapshot `json:"preview,omitempty"`
}

// StartRecordingRequest is the input to start_recording.
type StartRecordingRequest struct {
	MatchID           string
	Force             bool
	RequireAllCameras *bool
}

// StartRecordingResponse is the output of start_recording.
type StartRecordingResponse struct {
	Success        bool
	MatchID        string
	CamerasStarted []int
	CamerasFailed  []CameraFailure
}

// StopRecordingRequest is the input to stop_recording.
type StopRecordingRequest struct {
	Force bool
}

// PreviewOpResponse is the common shape of start_preview/stop_preview/
// restart_preview (spec §6.1): `{cameras_started|stopped, cameras_failed}`.
type PreviewOpResponse struct {
	CamerasStarted []int
	CamerasStopped []int
	CamerasFailed  []CameraFailure
}
