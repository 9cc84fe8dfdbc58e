package config

import "github.com/matchcam/core/internal/constants"

// defaultConfig returns the service defaults that form a Store's snapshot
// before its document is loaded. A loaded document replaces this snapshot
// as a whole: fields absent from the document are zero, not defaulted, and
// NewStore returns no Store when the first load fails.
func defaultConfig() *Config {
	return &Config{
		Cameras: map[int]*CameraConfig{
			0: defaultCameraConfig(0),
			1: defaultCameraConfig(1),
		},
		RecordingRequireAllCameras:       true,
		RecordingRecoveryMaxAttempts:     constants.DefaultRecoveryMaxRetries,
		RecordingRecoveryBackoffSeconds:  constants.DefaultRecoveryBackoff.Seconds(),
		RecordingStopEOSTimeoutSeconds:   constants.DefaultEOSTimeout.Seconds(),
		ProtectionSeconds:                constants.DefaultProtectionSeconds,
		HeartbeatSeconds:                 constants.DefaultHeartbeatInterval.Seconds(),
		RecordingSLOMinEffectiveFPS:      24.0,
		RecordingOverloadGuardEnabled:    false,
		RecordingOverloadCPUPercent:      constants.DefaultOverloadCPUPercent,
		RecordingOverloadPollInterval:    constants.DefaultOverloadPollInterval.Seconds(),
		RecordingOverloadStreakThreshold: constants.DefaultOverloadStreakThreshold,

		OutputDir: "/var/lib/matchcam/recordings",
		HLSRoot:   constants.DefaultHLSRoot,
		LockDir:   constants.DefaultLockDir,

		PersistedStatePath: constants.DefaultPersistedStatePath,
		AlertLogPath:       constants.DefaultAlertLogPath,
	}
}

func defaultCameraConfig(id int) *CameraConfig {
	return &CameraConfig{
		CameraID:             id,
		SensorWidth:          3840,
		SensorHeight:         2160,
		Rotation:             0,
		Crop:                 CropBox{},
		CorrectionKind:       CorrectionNone,
		ExposureCompensation: 0,
	}
}
