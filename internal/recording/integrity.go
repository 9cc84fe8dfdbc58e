package recording

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/matchcam/core/internal/constants"
)

// integrityMonitor is the integrity probe (spec §4.5.4): every probe
// interval it stats the newest segment file per camera and checks for
// stalls (the newest modification time must advance) and a segment count
// consistent with the expected roll duration. File size is not compared
// between probes. Failures are diagnostic only — they never stop the
// recording.
type integrityMonitor struct {
	outputDir string
	matchID   string
	cameras   []int
	interval  time.Duration
	startedAt time.Time
	alerts    AlertSink

	mu         sync.Mutex
	lastNewest map[int]time.Time
	consecFail map[int]int

	cancel context.CancelFunc
	done   chan struct{}
}

func startIntegrityMonitor(outputDir, matchID string, cameras []int, interval time.Duration, startedAt time.Time, alerts AlertSink) *integrityMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &integrityMonitor{
		outputDir:  outputDir,
		matchID:    matchID,
		cameras:    cameras,
		interval:   interval,
		startedAt:  startedAt,
		alerts:     alerts,
		lastNewest: map[int]time.Time{},
		consecFail: map[int]int{},
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go m.loop(ctx)
	return m
}

func (m *integrityMonitor) stop() {
	m.cancel()
	<-m.done
}

func (m *integrityMonitor) loop(ctx context.Context) {
	defer close(m.done)
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.probeOnce()
		}
	}
}

func (m *integrityMonitor) probeOnce() {
	for _, cam := range m.cameras {
		segs := listSegments(m.outputDir, m.matchID, cam)
		ok, reason := m.evaluate(cam, segs)
		m.mu.Lock()
		if ok {
			m.consecFail[cam] = 0
		} else {
			m.consecFail[cam]++
		}
		fails := m.consecFail[cam]
		m.mu.Unlock()

		if !ok {
			severity := "warn"
			if fails >= 2 {
				severity = "error"
			}
			m.alerts.Emit("recording_integrity_warning", severity, map[string]any{
				"camera_id": cam, "match_id": m.matchID, "reason": reason,
			})
		}
	}
}

func (m *integrityMonitor) evaluate(cam int, segs []segmentFile) (bool, string) {
	if len(segs) == 0 {
		return false, "no segments found"
	}
	newest := segs[len(segs)-1]

	m.mu.Lock()
	prev, seen := m.lastNewest[cam]
	m.lastNewest[cam] = newest.modTime
	m.mu.Unlock()

	if seen && !newest.modTime.After(prev) {
		return false, "newest segment did not advance between probes"
	}

	elapsed := time.Since(m.startedAt).Seconds()
	expected := int(math.Floor(elapsed / constants.RecordSegmentDuration.Seconds()))
	if diff := len(segs) - expected; diff < -1 || diff > 1 {
		return false, fmt.Sprintf("segment count %d inconsistent with expected ~%d", len(segs), expected)
	}
	return true, ""
}

type segmentFile struct {
	path    string
	modTime time.Time
	size    int64
}

func listSegments(outputDir, matchID string, cameraID int) []segmentFile {
	dir := filepath.Join(outputDir, matchID, "segments")
	pattern := filepath.Join(dir, fmt.Sprintf("cam%d_*.mp4", cameraID))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	segs := make([]segmentFile, 0, len(matches))
	for _, p := range matches {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		segs = append(segs, segmentFile{path: p, modTime: info.ModTime(), size: info.Size()})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].modTime.Before(segs[j].modTime) })
	return segs
}
