package runtime

import (
	"context"

	"github.com/matchcam/core/internal/pipeline"
)

// Engine is the pluggable native multimedia framework binding. Build
// constructs a native session for a PipelineDescription; the returned
// EngineSession is driven entirely by the Adapter.
type Engine interface {
	Build(desc pipeline.Description) (EngineSession, error)
}

// EngineSession is one native pipeline instance as seen by the Adapter.
// Implementations must deliver every state/error/eos transition on
// Events() and must not block Start/SendEOS/Stop waiting for those
// transitions to be observed — the Adapter does the waiting.
type EngineSession interface {
	// Start begins the Null -> Playing transition. The actual transition
	// is reported asynchronously via Events().
	Start(ctx context.Context) error
	// SendEOS injects end-of-stream at the source.
	SendEOS()
	// Stop releases native resources. Idempotent.
	Stop() error
	// Events delivers this session's native-level events until Stop.
	Events() <-chan Event
}
