// Package config is the Config Store (spec §4.1 / C1): it loads the single
// per-camera JSON configuration document, validates it, and serves
// in-memory snapshots to the Pipeline Builder. Writes go through a
// tempfile-then-rename atomic path and a change notification; pipelines
// already in flight never observe a mutation mid-run, only the next build.
//
// Configuration categories:
//   - Cameras: rotation, crop box, correction kind + params, exposure comp
//   - Top-level knobs: protection/heartbeat/retry/EOS timeouts, overload guard
//
// Usage:
//   - NewStore(path) loads and validates the document
//   - store.Camera(id) returns the current CameraConfig snapshot
//   - store.Set(id, cfg) validates, writes atomically, and notifies watchers
//   - store.EnableHotReload() watches the document and reacts to external edits
package config
