// Package logging provides structured, component-tagged logging for the
// match capture appliance on top of logrus.
//
// Callers get a per-component logger via GetLogger("component-name"),
// backed by a global factory so every component shares the level/format
// SetupLogging establishes at process start. Correlation IDs thread through
// context.Context for tracing a single request or session across goroutines.
//
// Field conventions:
//   - "component": logger name as passed to GetLogger
//   - "correlation_id": request/session correlation id
//   - "camera_id": camera under discussion, where applicable
package logging
