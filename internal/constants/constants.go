// Defaults shared across the pipeline, lock, recording, preview and health
// packages. Spec §9 leaves protection/heartbeat timing and overload-guard
// streak semantics as open questions — these are defaults, never hardcoded
// in the packages that consume them.
package constants

import "time"

const (
	// Media Runtime Adapter (§4.3) timeouts.
	DefaultStartTimeout          = 10 * time.Second
	DefaultForcedTeardownTimeout = 8 * time.Second

	// Recording Service (§4.5) defaults.
	DefaultProtectionSeconds  = 10.0
	DefaultHeartbeatInterval  = 5 * time.Second
	DefaultEOSTimeout         = 8 * time.Second
	DefaultRecoveryMaxRetries = 2
	DefaultRecoveryBackoff    = 1 * time.Second
	MaxRecoveryBackoff        = 5 * time.Second
	DefaultIntegrityInterval  = 2 * time.Second
	PersistedStateStaleAfter  = 5 * time.Minute

	// Per-camera circuit breaker (§4.5 "Retry on start"): trips after
	// repeated start failures across sessions so a persistently broken
	// camera fails fast instead of running the full retry ladder every time.
	DefaultBreakerFailureThreshold = 4
	DefaultBreakerRecoveryTimeout  = 30 * time.Second

	// Exclusion Lock (§4.4) staleness policy.
	DefaultLockStaleAfter = 5 * time.Minute

	// Segment layout (§6.2).
	RecordSegmentDuration  = 600 * time.Second
	PreviewSegmentDuration = 2 * time.Second
	PreviewPlaylistLength  = 8
	PreviewMaxSegmentFiles = 8

	// Crop/scaler hardware limits (§3, §4.2).
	MinCropDimension   = 16
	CropPixelAlignment = 2
	MaxScalerRatio     = 16.0

	// Overload guard (§4.5, §9).
	DefaultOverloadCPUPercent      = 90.0
	DefaultOverloadPollInterval    = 5 * time.Second
	DefaultOverloadStreakThreshold = 3

	// Health & Alert Channel (§4.7).
	DefaultAlertRingSize = 1024
)

// Well-known path defaults. Operators override these via the config
// surface; these are the fallbacks used when a value is unset.
const (
	DefaultPersistedStatePath = "/var/lib/matchcam/recording_state.json"
	DefaultAlertLogPath       = "/var/log/matchcam/alerts.ndjson"
	DefaultLockDir            = "/run/matchcam/locks"
	DefaultHLSRoot            = "/dev/shm/matchcam/hls"

	// RecordSegmentTemplate tokens: {match_id} {cam} {timestamp} {index}.
	RecordSegmentTemplate = "{match_id}/segments/cam{cam}_{timestamp}_{index}.mp4"
	PreviewPlaylistName   = "cam{cam}.m3u8"
	PreviewSegmentName    = "cam{cam}_{index}.ts"
)
