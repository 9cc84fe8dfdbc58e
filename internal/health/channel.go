package health

import (
	"context"
	"time"

	"github.com/matchcam/core/internal/constants"
	"github.com/matchcam/core/internal/logging"
	"golang.org/x/time/rate"
)

// Channel is the Health & Alert Channel (C7). It satisfies the Recording
// Service's and Preview Service's structural AlertSink interface (Emit)
// without either package importing this one.
type Channel struct {
	ring   *ring
	sink   *ndjsonSink
	logger *logging.Logger

	storageCancel context.CancelFunc
	storageDone   chan struct{}
}

// NewChannel builds a Health & Alert Channel backed by a bounded ring
// (ringSize, 0 = constants.DefaultAlertRingSize) and an ndjson append-only
// file sink at alertLogPath ("" disables the file sink, e.g. in tests).
func NewChannel(ringSize int, alertLogPath string) (*Channel, error) {
	if ringSize <= 0 {
		ringSize = constants.DefaultAlertRingSize
	}
	sink, err := newNdjsonSink(alertLogPath)
	if err != nil {
		return nil, err
	}
	return &Channel{
		ring:   newRing(ringSize),
		sink:   sink,
		logger: logging.GetLogger("health-channel"),
	}, nil
}

// Emit records one alert (spec §4.7): it lands in the bounded ring, the
// ndjson sink, and bumps the matching Prometheus counter. Satisfies
// recording.AlertSink and preview's analogous structural interface.
func (c *Channel) Emit(kind string, severity string, fields map[string]any) {
	a := Alert{
		Kind:      kind,
		Severity:  severity,
		Fields:    fields,
		Timestamp: time.Now(),
	}
	if fields != nil {
		if camID, ok := fields["camera_id"].(int); ok {
			a.CameraID = &camID
		}
		if matchID, ok := fields["match_id"].(string); ok {
			a.SessionID = matchID
		}
		if corrID, ok := fields["correlation_id"].(string); ok {
			a.CorrelationID = corrID
		}
	}

	c.ring.push(a)
	if err := c.sink.append(a); err != nil {
		c.logger.WithError(err).Warn("failed to append alert to ndjson sink")
	}
	recordAlertMetrics(a)

	switch kind {
	case "recording_started":
		if d, ok := fields["duration_seconds"].(float64); ok {
			ObserveStartLatency(d)
		}
	case "recording_stopped":
		if d, ok := fields["duration_seconds"].(float64); ok {
			ObserveStopLatency(d)
		}
	}
}

// Alerts returns up to max most recent alerts, oldest first (spec §4.7
// "alerts(max)"). max<=0 returns every alert currently held.
func (c *Channel) Alerts(max int) []Alert {
	return c.ring.last(max)
}

// CameraStateInput is the per-camera state fed into RecordingHealth by the
// Control Surface, which owns the direct view into recording.Service
// (§4.7: "synthesized from handle states and recent integrity verdicts").
type CameraStateInput struct {
	CameraID int
	State    string
	UptimeS  float64
}

// RecordingHealth synthesizes a per-camera health snapshot from the
// caller-supplied handle states and this channel's recent warn/error
// alerts (spec §4.7).
func (c *Channel) RecordingHealth(cameras []CameraStateInput) RecordingHealth {
	issues := c.recentIssuesByCamera(30 * time.Second)
	per := make(map[int]CameraHealth, len(cameras))
	for _, cam := range cameras {
		per[cam.CameraID] = CameraHealth{
			State:   cam.State,
			UptimeS: cam.UptimeS,
			Issues:  issues[cam.CameraID],
		}
	}
	return RecordingHealth{PerCamera: per}
}

func (c *Channel) recentIssuesByCamera(window time.Duration) map[int][]string {
	cutoff := time.Now().Add(-window)
	out := map[int][]string{}
	for _, a := range c.ring.all() {
		if a.Timestamp.Before(cutoff) || a.CameraID == nil {
			continue
		}
		if a.Severity != "warn" && a.Severity != "error" {
			continue
		}
		out[*a.CameraID] = append(out[*a.CameraID], a.Kind)
	}
	return out
}

// Correlate pairs every alert with the alerts that fell within windowS of
// it. It returns one CorrelatedEvent per alert that has at least one such
// neighbour, so an alert appears both as a Primary and among the Related
// of its neighbours. Alerts are matched by time only: their kinds are not
// considered, and overlapping groups are not merged into clusters.
func (c *Channel) Correlate(windowS float64) []CorrelatedEvent {
	window := time.Duration(windowS * float64(time.Second))
	alerts := c.ring.all()
	events := make([]CorrelatedEvent, 0, len(alerts))
	for i, primary := range alerts {
		var related []Alert
		for j, other := range alerts {
			if i == j {
				continue
			}
			delta := other.Timestamp.Sub(primary.Timestamp)
			if delta < 0 {
				delta = -delta
			}
			if delta <= window {
				related = append(related, other)
			}
		}
		if len(related) > 0 {
			events = append(events, CorrelatedEvent{Primary: primary, Related: related})
		}
	}
	return events
}

// StartStorageMonitor polls free space under path every pollInterval,
// rate-limited to one sample per interval, and emits a "disk_space_low"
// alert when usage crosses thresholdPercent (supplemental feature, §5 of
// SPEC_FULL). Call the returned stop func to end the poller.
func (c *Channel) StartStorageMonitor(path string, thresholdPercent float64, pollInterval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	c.storageCancel = cancel
	c.storageDone = make(chan struct{})
	limiter := rate.NewLimiter(rate.Every(pollInterval), 1)

	go func() {
		defer close(c.storageDone)
		t := time.NewTicker(pollInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if !limiter.Allow() {
					continue
				}
				if issue, ok := storagePressure(path, thresholdPercent); ok {
					c.Emit(issue, "warn", map[string]any{"path": path})
				}
			}
		}
	}()

	return func() {
		cancel()
		<-c.storageDone
	}
}

// Close flushes and closes the ndjson sink.
func (c *Channel) Close() error {
	return c.sink.close()
}
