// Package preview implements the Preview Service (C6): per-camera HLS
// preview lifecycle that yields to the Recording Service on the Exclusion
// Lock and carries no persisted state.
package preview
