// Package pipeline is the Pipeline Builder (spec §4.2 / C2): a pure
// function from (role, camera id, CameraConfig) to an immutable
// PipelineDescription consumable by the Media Runtime Adapter.
//
// Build is deterministic — identical inputs always produce an equal
// PipelineDescription (spec §8's idempotence property) — and performs the
// crop-derivation and hardware-scaler-limit checks that the adapter
// assumes are already satisfied by the time it builds a native pipeline.
package pipeline
