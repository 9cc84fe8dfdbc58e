package config

import (
	"fmt"

	"github.com/matchcam/core/internal/constants"
)

// FieldError points at the offending field, per spec §4.1 ("a precise
// error pointing at the offending field").
type FieldError struct {
	Field string
	Value interface{}
	Msg   string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: field %q (value %v): %s", e.Field, e.Value, e.Msg)
}

// ConfigInvalidError wraps one or more field errors from a parse/schema
// failure (spec §7 ErrConfigInvalid).
type ConfigInvalidError struct {
	Fields []*FieldError
}

func (e *ConfigInvalidError) Error() string {
	if len(e.Fields) == 1 {
		return e.Fields[0].Error()
	}
	return fmt.Sprintf("config: %d validation errors, first: %s", len(e.Fields), e.Fields[0].Error())
}

func (e *ConfigInvalidError) Unwrap() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e.Fields[0]
}

func validCorrectionKind(k CorrectionKind) bool {
	switch k {
	case CorrectionNone, CorrectionBarrel, CorrectionCylindrical, CorrectionEquirectangular, CorrectionPerspective:
		return true
	default:
		return false
	}
}

// ValidateCameraConfig enforces spec §3's invariant:
// sensor_width - left - right >= min_crop_width (and the height analogue),
// both >= 16 and 2-pixel aligned (chroma requirement).
func ValidateCameraConfig(cfg *CameraConfig) error {
	var fields []*FieldError

	if cfg.SensorWidth <= 0 {
		fields = append(fields, &FieldError{"sensor_width", cfg.SensorWidth, "must be positive"})
	}
	if cfg.SensorHeight <= 0 {
		fields = append(fields, &FieldError{"sensor_height", cfg.SensorHeight, "must be positive"})
	}
	if cfg.Crop.Left < 0 || cfg.Crop.Right < 0 || cfg.Crop.Top < 0 || cfg.Crop.Bottom < 0 {
		fields = append(fields, &FieldError{"crop", cfg.Crop, "all edges must be nonnegative"})
	}
	if cfg.SensorWidth > 0 {
		width := cfg.SensorWidth - cfg.Crop.Left - cfg.Crop.Right
		if width < constants.MinCropDimension {
			fields = append(fields, &FieldError{"crop.left/right", cfg.Crop, fmt.Sprintf("resulting width %d is below minimum %d", width, constants.MinCropDimension)})
		} else if width%constants.CropPixelAlignment != 0 {
			fields = append(fields, &FieldError{"crop.left/right", cfg.Crop, fmt.Sprintf("resulting width %d is not %d-pixel aligned", width, constants.CropPixelAlignment)})
		}
	}
	if cfg.SensorHeight > 0 {
		height := cfg.SensorHeight - cfg.Crop.Top - cfg.Crop.Bottom
		if height < constants.MinCropDimension {
			fields = append(fields, &FieldError{"crop.top/bottom", cfg.Crop, fmt.Sprintf("resulting height %d is below minimum %d", height, constants.MinCropDimension)})
		} else if height%constants.CropPixelAlignment != 0 {
			fields = append(fields, &FieldError{"crop.top/bottom", cfg.Crop, fmt.Sprintf("resulting height %d is not %d-pixel aligned", height, constants.CropPixelAlignment)})
		}
	}
	if !validCorrectionKind(cfg.CorrectionKind) {
		fields = append(fields, &FieldError{"correction_type", cfg.CorrectionKind, "unknown correction kind"})
	}
	if cfg.ExposureCompensation < -4.0 || cfg.ExposureCompensation > 4.0 {
		fields = append(fields, &FieldError{"exposure_compensation", cfg.ExposureCompensation, "must be within [-4.0, 4.0] EV"})
	}

	if len(fields) > 0 {
		return &ConfigInvalidError{Fields: fields}
	}
	return nil
}

// ValidateConfig validates every camera entry plus the top-level knobs.
func ValidateConfig(cfg *Config) error {
	var fields []*FieldError
	for id, cam := range cfg.Cameras {
		if cam.CameraID != id {
			fields = append(fields, &FieldError{"cameras", id, "camera_id key does not match entry's camera_id field"})
		}
		if err := ValidateCameraConfig(cam); err != nil {
			if ci, ok := err.(*ConfigInvalidError); ok {
				fields = append(fields, ci.Fields...)
			}
		}
	}
	if cfg.ProtectionSeconds < 0 {
		fields = append(fields, &FieldError{"protection_seconds", cfg.ProtectionSeconds, "must be nonnegative (0 disables the window)"})
	}
	if cfg.RecordingRecoveryMaxAttempts < 0 {
		fields = append(fields, &FieldError{"recording_recovery_max_attempts", cfg.RecordingRecoveryMaxAttempts, "must be nonnegative"})
	}
	if len(fields) > 0 {
		return &ConfigInvalidError{Fields: fields}
	}
	return nil
}
