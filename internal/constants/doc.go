// Package constants provides shared constants for the dual-camera capture
// controller.
//
// This package centralizes default timeouts, retry policy, segment rollover
// windows, and path templates so that they have a single source of truth
// across the pipeline, recording, preview and health packages instead of
// being duplicated as magic numbers.
//
// Constant categories:
//   - Timeouts: start/drain/forced-teardown bounds, lock staleness
//   - Recording defaults: protection window, heartbeat, retry policy
//   - Segment layout: record rollover duration, preview HLS target duration
//   - Path templates: on-disk artifact naming from spec §6.2
package constants
