package preview

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/matchcam/core/internal/config"
	"github.com/matchcam/core/internal/lock"
	"github.com/matchcam/core/internal/logging"
	"github.com/matchcam/core/internal/pipeline"
	"github.com/matchcam/core/internal/runtime"
)

// RecordingStateChecker reports whether a RecordingSession currently
// occupies a state that refuses preview (Active/Starting/Stopping/
// Finalizing — spec §4.6 step 1). Wraps recording.Service.State without a
// direct import, mirroring recording.PreviewStopper's decoupling.
type RecordingStateChecker func() (refuse bool)

type cameraSession struct {
	handle    *runtime.PipelineHandle
	startedAt time.Time
}

// Service is the Preview Service (C6).
type Service struct {
	mu sync.Mutex

	handles map[int]*cameraSession

	cfgStore        *config.Store
	adapter         *runtime.Adapter
	exclLock        *lock.Lock
	logger          *logging.Logger
	recordingActive RecordingStateChecker
}

// NewService wires the Preview Service's collaborators.
func NewService(cfgStore *config.Store, adapter *runtime.Adapter, exclLock *lock.Lock, recordingActive RecordingStateChecker) *Service {
	return &Service{
		handles:         map[int]*cameraSession{},
		cfgStore:        cfgStore,
		adapter:         adapter,
		exclLock:        exclLock,
		logger:          logging.GetLogger("preview-service"),
		recordingActive: recordingActive,
	}
}

// State returns the aggregate lifecycle state across known cameras.
func (s *Service) State(knownCameras []int) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(knownCameras)
}

func (s *Service) stateLocked(knownCameras []int) State {
	if len(s.handles) == 0 {
		return StateStopped
	}
	if len(s.handles) >= len(knownCameras) {
		return StateActive
	}
	return StatePartiallyActive
}

// Snapshot returns the current per-camera preview snapshot (spec §6.1).
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	cams := make(map[int]CameraSnapshot, len(s.handles))
	for id, cs := range s.handles {
		cams[id] = CameraSnapshot{
			CameraID: id,
			State:    cs.handle.State().String(),
			UptimeS:  time.Since(cs.startedAt).Seconds(),
		}
	}
	return Snapshot{PreviewActive: len(s.handles) > 0, Cameras: cams}
}

// Start brings up preview on the requested cameras (nil = all known
// cameras), per spec §4.6.
func (s *Service) Start(ctx context.Context, cameraIDs []int) (*StartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recordingActive != nil && s.recordingActive() {
		return nil, &RecordingActiveError{}
	}

	targets := cameraIDs
	if len(targets) == 0 {
		targets = s.cfgStore.Snapshot().CameraIDs()
	}

	if len(s.handles) == 0 {
		if err := s.exclLock.Acquire(ctx, lock.RolePreview, false, nil); err != nil {
			return nil, fmt.Errorf("preview: acquire exclusion lock: %w", err)
		}
	}

	result := &StartResult{}
	for _, camID := range targets {
		if _, already := s.handles[camID]; already {
			result.CamerasStarted = append(result.CamerasStarted, camID)
			continue
		}
		if err := s.startOneLocked(ctx, camID); err != nil {
			result.CamerasFailed = append(result.CamerasFailed, CameraResult{CameraID: camID, Error: err.Error()})
			continue
		}
		result.CamerasStarted = append(result.CamerasStarted, camID)
	}

	if len(s.handles) == 0 {
		_ = s.exclLock.Release()
	}

	sort.Ints(result.CamerasStarted)
	return result, nil
}

func (s *Service) startOneLocked(ctx context.Context, camID int) error {
	camCfg, err := s.cfgStore.Camera(camID)
	if err != nil {
		return fmt.Errorf("camera %d: %w", camID, err)
	}
	desc, err := pipeline.Build(pipeline.RolePreview, camID, camCfg)
	if err != nil {
		return err
	}
	handle, err := s.adapter.Create(desc)
	if err != nil {
		return err
	}
	if err := s.adapter.Start(ctx, handle); err != nil {
		_ = s.adapter.Stop(handle)
		return err
	}
	s.handles[camID] = &cameraSession{handle: handle, startedAt: time.Now()}
	return nil
}

// Stop tears down preview on the requested cameras (nil = all active
// cameras). Stopping the last active camera releases the exclusion lock.
// Preview never drains via EOS (spec §4.6): HLS segments are self-
// contained and can be abandoned.
func (s *Service) Stop(cameraIDs []int) *StopResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	targets := cameraIDs
	if len(targets) == 0 {
		for id := range s.handles {
			targets = append(targets, id)
		}
	}

	result := &StopResult{}
	for _, camID := range targets {
		cs, ok := s.handles[camID]
		if !ok {
			continue
		}
		if err := s.adapter.Stop(cs.handle); err != nil {
			result.CamerasFailed = append(result.CamerasFailed, CameraResult{CameraID: camID, Error: err.Error()})
			continue
		}
		delete(s.handles, camID)
		result.CamerasStopped = append(result.CamerasStopped, camID)
	}

	if len(s.handles) == 0 {
		_ = s.exclLock.Release()
	}

	sort.Ints(result.CamerasStopped)
	return result
}

// StopForEviction is the recording.PreviewStopper-compatible hook wired into the
// Recording Service's force-acquire path (spec §4.5 step 3 / §4.8 iii):
// stops every active preview camera, releasing the exclusion lock.
func (s *Service) StopForEviction(ctx context.Context) error {
	s.Stop(nil)
	return nil
}

// Restart is Stop + Start on the same camera set (spec §4.6 "Restart").
func (s *Service) Restart(ctx context.Context, cameraIDs []int) (*StartResult, error) {
	s.Stop(cameraIDs)
	return s.Start(ctx, cameraIDs)
}
