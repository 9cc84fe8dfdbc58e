package pipeline

import "github.com/matchcam/core/internal/config"

// Role distinguishes the two independent media pipelines a camera can run
// (spec §3: "at most one handle per {role, camera_id}").
type Role string

const (
	RoleRecord  Role = "record"
	RolePreview Role = "preview"
)

// Name returns the canonical handle name "{role}_{camera_id}" (spec §3).
func Name(role Role, cameraID int) string {
	return string(role) + "_" + itoa(cameraID)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Rect is an absolute bounding box in sensor coordinates.
type Rect struct {
	Left, Top, Right, Bottom int
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// EncoderParams captures the encoder settings that differ between record
// and preview (spec §4.2: "differ only in bitrate, stream-format, header
// repetition policy, and sink"). The imaging chain (crop/rotation/
// correction) is identical between roles.
type EncoderParams struct {
	BitrateKbps        int
	GOPSeconds         float64
	Preset             string
	StreamFormat       string // e.g. "avc" (byte-stream vs avcC)
	RepeatHeaders      bool
	SegmentDurationSec float64
}

// SinkDescriptor is the output sink: a record segment template or a
// preview playlist+segment template (spec §3).
type SinkDescriptor struct {
	// Record sink.
	SegmentTemplate string // contains {match_id} {cam} {timestamp} {index}

	// Preview sink.
	PlaylistPath        string
	SegmentTemplatePath string
	PlaylistLength      int
	MaxSegmentFiles     int
}

// Description is the immutable value produced by Build (spec §3:
// "PipelineDescription"). Two descriptions are compared with Equal for
// cache/change detection.
type Description struct {
	Role             Role
	CameraID         int
	SensorMode       string
	Crop             Rect
	Rotation         float64
	Correction       config.CorrectionKind
	CorrectionParams config.CorrectionParams
	Exposure         float32
	Encoder          EncoderParams
	Sink             SinkDescriptor
}

// Name returns the canonical handle name for this description.
func (d Description) Name() string { return Name(d.Role, d.CameraID) }

// Equal reports whether two descriptions are value-equal (spec §3:
// "Equality of two descriptions must be decidable").
func (d Description) Equal(o Description) bool {
	return d.Role == o.Role &&
		d.CameraID == o.CameraID &&
		d.SensorMode == o.SensorMode &&
		d.Crop == o.Crop &&
		d.Rotation == o.Rotation &&
		d.Correction == o.Correction &&
		d.CorrectionParams == o.CorrectionParams &&
		d.Exposure == o.Exposure &&
		d.Encoder == o.Encoder &&
		d.Sink == o.Sink
}
