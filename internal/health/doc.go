// Package health implements the Health & Alert Channel (C7): a bounded
// alert ring plus an append-only ndjson sink, Prometheus counters for the
// operational metrics named in spec §4.7, a per-camera health synthesis,
// and time-window correlation between alerts.
package health
