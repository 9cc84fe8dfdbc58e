package pipeline

import (
	"fmt"

	"github.com/matchcam/core/internal/config"
	"github.com/matchcam/core/internal/constants"
)

// BadCropError is ErrBadCrop from spec §7, carrying the computed absolute
// values so the caller can see exactly why the crop was rejected.
type BadCropError struct {
	CameraID                  int
	LeftAbs, TopAbs           int
	RightAbs, BottomAbs       int
	SensorWidth, SensorHeight int
	Reason                    string
}

func (e *BadCropError) Error() string {
	return fmt.Sprintf(
		"pipeline: bad crop for camera %d: left=%d top=%d right=%d bottom=%d (sensor %dx%d): %s",
		e.CameraID, e.LeftAbs, e.TopAbs, e.RightAbs, e.BottomAbs, e.SensorWidth, e.SensorHeight, e.Reason,
	)
}

// Build is the Pipeline Builder's pure function (spec §4.2): given a role,
// camera id and CameraConfig, it returns the canonical PipelineDescription
// or a BadCropError. It never touches the filesystem, the network, or the
// media runtime — calling it twice with equal inputs always returns equal
// output (spec §8 idempotence property).
func Build(role Role, cameraID int, cfg *config.CameraConfig) (Description, error) {
	crop, err := absoluteCrop(cameraID, cfg)
	if err != nil {
		return Description{}, err
	}

	desc := Description{
		Role:             role,
		CameraID:         cameraID,
		SensorMode:       fmt.Sprintf("%dx%d", cfg.SensorWidth, cfg.SensorHeight),
		Crop:             crop,
		Rotation:         cfg.Rotation,
		Correction:       cfg.CorrectionKind,
		CorrectionParams: cfg.CorrectionParams,
		Exposure:         cfg.ExposureCompensation,
		Encoder:          encoderParams(role),
		Sink:             sinkDescriptor(role, cameraID),
	}
	return desc, nil
}

// absoluteCrop converts the Config Store's edge-removal crop to the
// absolute bounding box the hardware cropper expects (spec §4.2):
//
//	left_abs   = crop.left
//	right_abs  = sensor_w - crop.right
//	top_abs    = crop.top
//	bottom_abs = sensor_h - crop.bottom
//
// and enforces right_abs > left_abs >= 0, bottom_abs > top_abs >= 0, and
// the hardware scaler's <=16x upscaling limit.
func absoluteCrop(cameraID int, cfg *config.CameraConfig) (Rect, error) {
	leftAbs := cfg.Crop.Left
	rightAbs := cfg.SensorWidth - cfg.Crop.Right
	topAbs := cfg.Crop.Top
	bottomAbs := cfg.SensorHeight - cfg.Crop.Bottom

	bad := func(reason string) (Rect, error) {
		return Rect{}, &BadCropError{
			CameraID: cameraID, LeftAbs: leftAbs, TopAbs: topAbs,
			RightAbs: rightAbs, BottomAbs: bottomAbs,
			SensorWidth: cfg.SensorWidth, SensorHeight: cfg.SensorHeight,
			Reason: reason,
		}
	}

	if leftAbs < 0 {
		return bad("left_abs < 0")
	}
	if rightAbs <= leftAbs {
		return bad("right_abs must be > left_abs")
	}
	if topAbs < 0 {
		return bad("top_abs < 0")
	}
	if bottomAbs <= topAbs {
		return bad("bottom_abs must be > top_abs")
	}

	width := rightAbs - leftAbs
	height := bottomAbs - topAbs
	if width == 0 || float64(cfg.SensorWidth)/float64(width) > constants.MaxScalerRatio {
		return bad("crop width exceeds hardware scaler's upscaling limit")
	}
	if height == 0 || float64(cfg.SensorHeight)/float64(height) > constants.MaxScalerRatio {
		return bad("crop height exceeds hardware scaler's upscaling limit")
	}

	return Rect{Left: leftAbs, Top: topAbs, Right: rightAbs, Bottom: bottomAbs}, nil
}

// encoderParams returns role-specific encoder settings. The imaging chain
// (crop/rotation/correction) is byte-identical between roles — preview is
// a fidelity preview of what will be recorded (spec §4.2).
func encoderParams(role Role) EncoderParams {
	switch role {
	case RoleRecord:
		return EncoderParams{
			BitrateKbps:        12000,
			GOPSeconds:         2.0,
			Preset:             "balanced",
			StreamFormat:       "avc",
			RepeatHeaders:      false,
			SegmentDurationSec: constants.RecordSegmentDuration.Seconds(),
		}
	case RolePreview:
		return EncoderParams{
			BitrateKbps:        2500,
			GOPSeconds:         2.0,
			Preset:             "fast",
			StreamFormat:       "byte-stream",
			RepeatHeaders:      true,
			SegmentDurationSec: constants.PreviewSegmentDuration.Seconds(),
		}
	default:
		return EncoderParams{}
	}
}

func sinkDescriptor(role Role, cameraID int) SinkDescriptor {
	switch role {
	case RoleRecord:
		return SinkDescriptor{SegmentTemplate: constants.RecordSegmentTemplate}
	case RolePreview:
		return SinkDescriptor{
			PlaylistPath:        replaceCam(constants.PreviewPlaylistName, cameraID),
			SegmentTemplatePath: replaceCam(constants.PreviewSegmentName, cameraID),
			PlaylistLength:      constants.PreviewPlaylistLength,
			MaxSegmentFiles:     constants.PreviewMaxSegmentFiles,
		}
	default:
		return SinkDescriptor{}
	}
}

func replaceCam(tmpl string, cameraID int) string {
	out := make([]byte, 0, len(tmpl)+2)
	for i := 0; i < len(tmpl); i++ {
		if i+4 <= len(tmpl) && tmpl[i:i+4] == "{cam" {
			j := i
			for j < len(tmpl) && tmpl[j] != '}' {
				j++
			}
			out = append(out, []byte(fmt.Sprintf("%d", cameraID))...)
			i = j
			continue
		}
		out = append(out, tmpl[i])
	}
	return string(out)
}
