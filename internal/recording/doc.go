// Package recording is the Recording Service (C5): the dual-camera
// recording state machine Idle -> Starting -> Active -> Stopping ->
// Finalizing -> Idle, with error arcs back to Stopping from any state.
//
// It owns the exclusion-lock acquisition, per-camera start retry policy,
// all-or-nothing start semantics, the protection window, the EOS-drain
// stop sequence, on-disk state persistence across crashes, the integrity
// probe and the optional CPU-overload guard.
package recording
