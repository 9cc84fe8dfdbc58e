package preview

// RecordingActiveError is ErrRecordingActive: start_preview refused because
// a RecordingSession is in Active/Starting/Stopping/Finalizing.
type RecordingActiveError struct{}

func (e *RecordingActiveError) Error() string { return "preview: recording is active" }
