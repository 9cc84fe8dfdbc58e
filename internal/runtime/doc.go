// Package runtime is the Media Runtime Adapter (C3): it wraps the native
// multimedia framework behind a small Engine interface and owns a
// dedicated worker per handle so event callbacks never run on a caller's
// goroutine. It enforces the adapter's two timeouts — a start timeout
// (default 10s) and a forced-teardown timeout (default 8s extra) — and
// guarantees that once Stop returns, no further event for that handle is
// ever delivered.
package runtime
