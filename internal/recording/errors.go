package recording

import "fmt"

// AlreadyRecordingError is ErrAlreadyRecording: Start without force while
// a session is already in flight.
type AlreadyRecordingError struct{ MatchID string }

func (e *AlreadyRecordingError) Error() string {
	return fmt.Sprintf("recording: already recording match %q", e.MatchID)
}

// NotRecordingError is ErrNotRecording: Stop while idle.
type NotRecordingError struct{}

func (e *NotRecordingError) Error() string { return "recording: not recording" }

// ProtectedStopError is ErrProtectedStop: Stop without force inside the
// protection window.
type ProtectedStopError struct{ RemainingSeconds float64 }

func (e *ProtectedStopError) Error() string {
	return fmt.Sprintf("recording: protected, %.1fs remaining", e.RemainingSeconds)
}

// StartFailedError is ErrStartFailed: at least one camera failed to reach
// Playing during Start; Partial lists cameras that had been started and
// were rolled back.
type StartFailedError struct {
	Partial []int
	Cause   error
}

func (e *StartFailedError) Error() string {
	return fmt.Sprintf("recording: start failed (rolled back cameras %v): %v", e.Partial, e.Cause)
}
func (e *StartFailedError) Unwrap() error { return e.Cause }

// OverloadGuardError is ErrOverloadGuard: the CPU-pressure watcher forced a
// stop.
type OverloadGuardError struct{}

func (e *OverloadGuardError) Error() string { return "recording: overload guard triggered forced stop" }
