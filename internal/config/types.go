package config

import (
	"sort"
	"time"
)

// CorrectionKind is the tagged variant over lens/perspective correction
// modes (spec §3, §9 — replaces the source's "duck-typed config with
// whatever fields" with a schema-validating loader).
type CorrectionKind string

const (
	CorrectionNone            CorrectionKind = "none"
	CorrectionBarrel          CorrectionKind = "barrel"
	CorrectionCylindrical     CorrectionKind = "cylindrical"
	CorrectionEquirectangular CorrectionKind = "equirectangular"
	CorrectionPerspective     CorrectionKind = "perspective"
)

// CorrectionParams holds kind-specific parameters. Only the fields
// relevant to CameraConfig.CorrectionKind are meaningful; the loader
// rejects parameters that don't belong to the declared kind.
type CorrectionParams struct {
	// Barrel / cylindrical / equirectangular.
	K1, K2       float64 `json:"k1,omitempty" mapstructure:"k1"`
	FocalLengthX float64 `json:"focal_length_x,omitempty" mapstructure:"focal_length_x"`
	FocalLengthY float64 `json:"focal_length_y,omitempty" mapstructure:"focal_length_y"`

	// Perspective (4-point homography corners, normalized 0..1).
	CornersX [4]float64 `json:"corners_x,omitempty" mapstructure:"corners_x"`
	CornersY [4]float64 `json:"corners_y,omitempty" mapstructure:"corners_y"`
}

// CropBox is edge-removal crop in Config Store format: pixels removed
// from each sensor edge. Pipeline Builder (§4.2) converts this to an
// absolute bounding box.
type CropBox struct {
	Left   int `json:"left" mapstructure:"left"`
	Right  int `json:"right" mapstructure:"right"`
	Top    int `json:"top" mapstructure:"top"`
	Bottom int `json:"bottom" mapstructure:"bottom"`
}

// CameraConfig is the per-camera settings document (spec §3).
type CameraConfig struct {
	CameraID             int              `json:"camera_id" mapstructure:"camera_id"`
	SensorWidth          int              `json:"sensor_width" mapstructure:"sensor_width"`
	SensorHeight         int              `json:"sensor_height" mapstructure:"sensor_height"`
	Rotation             float64          `json:"rotation" mapstructure:"rotation"`
	Crop                 CropBox          `json:"crop" mapstructure:"crop"`
	CorrectionKind       CorrectionKind   `json:"correction_type" mapstructure:"correction_type"`
	CorrectionParams     CorrectionParams `json:"correction_params" mapstructure:"correction_params"`
	ExposureCompensation float32          `json:"exposure_compensation" mapstructure:"exposure_compensation"`
}

// Config is the complete on-disk document (spec §6.3). Server operation
// knobs are top-level fields, never hardcoded constants, per the open
// question in spec §9.
type Config struct {
	Cameras map[int]*CameraConfig `json:"cameras" mapstructure:"cameras"`

	RecordingRequireAllCameras       bool          `json:"recording_require_all_cameras" mapstructure:"recording_require_all_cameras"`
	RecordingRecoveryMaxAttempts     int           `json:"recording_recovery_max_attempts" mapstructure:"recording_recovery_max_attempts"`
	RecordingRecoveryBackoffSeconds  float64       `json:"recording_recovery_backoff_seconds" mapstructure:"recording_recovery_backoff_seconds"`
	RecordingStopEOSTimeoutSeconds   float64       `json:"recording_stop_eos_timeout_seconds" mapstructure:"recording_stop_eos_timeout_seconds"`
	ProtectionSeconds                float64       `json:"protection_seconds" mapstructure:"protection_seconds"`
	HeartbeatSeconds                 float64       `json:"heartbeat_seconds" mapstructure:"heartbeat_seconds"`
	RecordingSLOMinEffectiveFPS      float64       `json:"recording_slo_min_effective_fps" mapstructure:"recording_slo_min_effective_fps"`
	RecordingOverloadGuardEnabled    bool          `json:"recording_overload_guard_enabled" mapstructure:"recording_overload_guard_enabled"`
	RecordingOverloadCPUPercent      float64       `json:"recording_overload_cpu_percent_threshold" mapstructure:"recording_overload_cpu_percent_threshold"`
	RecordingOverloadPollInterval    float64       `json:"recording_overload_poll_interval_seconds" mapstructure:"recording_overload_poll_interval_seconds"`
	RecordingOverloadStreakThreshold int           `json:"recording_overload_unhealthy_streak_threshold" mapstructure:"recording_overload_unhealthy_streak_threshold"`

	OutputDir string `json:"output_dir" mapstructure:"output_dir"`
	HLSRoot   string `json:"hls_root" mapstructure:"hls_root"`
	LockDir   string `json:"lock_dir" mapstructure:"lock_dir"`

	PersistedStatePath string `json:"persisted_state_path" mapstructure:"persisted_state_path"`
	AlertLogPath       string `json:"alert_log_path" mapstructure:"alert_log_path"`

	StorageLowThresholdPercent float64 `json:"storage_low_threshold_percent" mapstructure:"storage_low_threshold_percent"`
	StoragePollIntervalSeconds float64 `json:"storage_poll_interval_seconds" mapstructure:"storage_poll_interval_seconds"`
}

// ProtectionWindow returns the configured protection window as a Duration.
func (c *Config) ProtectionWindow() time.Duration {
	return time.Duration(c.ProtectionSeconds * float64(time.Second))
}

// HeartbeatInterval returns the configured heartbeat interval as a Duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds * float64(time.Second))
}

// CameraIDs returns the configured camera ids in ascending order.
func (c *Config) CameraIDs() []int {
	ids := make([]int, 0, len(c.Cameras))
	for id := range c.Cameras {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
