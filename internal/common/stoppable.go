// Package common provides the graceful-shutdown interface shared by the
// long-running sessions (recording, preview) that cmd/server tears down
// after its supervisor tree stops accepting new work.
package common

import (
	"context"
	"time"
)

// Stoppable is implemented by anything that can be asked to stop within a
// bounded window — an active recording or preview session, typically.
type Stoppable interface {
	Stop(ctx context.Context) error
}

// StopWithTimeout calls Stop with a fresh context bounded by timeout, so a
// session that won't tear down cleanly can't hang process shutdown forever.
func StopWithTimeout(service Stoppable, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return service.Stop(ctx)
}
