package pipeline

import (
	"testing"

	"github.com/matchcam/core/internal/config"
	"github.com/stretchr/testify/require"
)

func camConfig() *config.CameraConfig {
	return &config.CameraConfig{
		CameraID:       0,
		SensorWidth:    1920,
		SensorHeight:   1080,
		Crop:           config.CropBox{Left: 0, Right: 0, Top: 0, Bottom: 0},
		CorrectionKind: config.CorrectionNone,
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	cfg := camConfig()
	a, err := Build(RoleRecord, 0, cfg)
	require.NoError(t, err)
	b, err := Build(RoleRecord, 0, cfg)
	require.NoError(t, err)
	require.True(t, a.Equal(b))
}

func TestBuildCropRoundTrip(t *testing.T) {
	cfg := camConfig()
	cfg.Crop = config.CropBox{Left: 100, Right: 100, Top: 50, Bottom: 50}

	desc, err := Build(RoleRecord, 0, cfg)
	require.NoError(t, err)
	require.Equal(t, Rect{Left: 100, Top: 50, Right: 1820, Bottom: 1030}, desc.Crop)
	require.Equal(t, 1720, desc.Crop.Width())
	require.Equal(t, 980, desc.Crop.Height())
}

func TestBuildRejectsInvertedCrop(t *testing.T) {
	cfg := camConfig()
	cfg.Crop = config.CropBox{Left: 1000, Right: 1000, Top: 0, Bottom: 0}

	_, err := Build(RoleRecord, 0, cfg)
	require.Error(t, err)
	var bad *BadCropError
	require.ErrorAs(t, err, &bad)
	require.Equal(t, 0, bad.CameraID)
}

func TestBuildRejectsExcessiveScalerRatio(t *testing.T) {
	cfg := camConfig()
	// 1920 sensor width cropped down to 100px requested output exceeds 16x.
	cfg.Crop = config.CropBox{Left: 0, Right: 1820, Top: 0, Bottom: 0}

	_, err := Build(RoleRecord, 0, cfg)
	require.Error(t, err)
	var bad *BadCropError
	require.ErrorAs(t, err, &bad)
}

func TestBuildRoleDiffersOnlyInEncoderAndSink(t *testing.T) {
	cfg := camConfig()
	rec, err := Build(RoleRecord, 0, cfg)
	require.NoError(t, err)
	prev, err := Build(RolePreview, 0, cfg)
	require.NoError(t, err)

	require.Equal(t, rec.Crop, prev.Crop)
	require.Equal(t, rec.Rotation, prev.Rotation)
	require.Equal(t, rec.Correction, prev.Correction)
	require.Equal(t, rec.CorrectionParams, prev.CorrectionParams)
	require.NotEqual(t, rec.Encoder, prev.Encoder)
	require.NotEqual(t, rec.Sink, prev.Sink)
}

func TestName(t *testing.T) {
	require.Equal(t, "record_0", Name(RoleRecord, 0))
	require.Equal(t, "preview_1", Name(RolePreview, 1))
}
