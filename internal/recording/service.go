package recording

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/matchcam/core/internal/config"
	"github.com/matchcam/core/internal/constants"
	"github.com/matchcam/core/internal/lock"
	"github.com/matchcam/core/internal/logging"
	"github.com/matchcam/core/internal/pipeline"
	"github.com/matchcam/core/internal/resilience"
	"github.com/matchcam/core/internal/runtime"
	"golang.org/x/sync/errgroup"
)

var cameraIDs = []int{0, 1}

// PreviewStopper is called by the Recording Service when it must evict a
// preview holder of the Exclusion Lock (force=true acquisition, spec
// §4.5 step 3). Wraps preview.Service.Stop without a direct import, to
// keep the two services decoupled.
type PreviewStopper func(ctx context.Context) error

// Service is the Recording Service (C5).
type Service struct {
	mu sync.Mutex

	state             State
	matchID           string
	startedAtWall     time.Time
	startedAtMono     time.Time
	protectionSeconds float64
	handles           map[int]*runtime.PipelineHandle
	requireAllCameras bool
	cameraFailed      map[int]bool
	failedCameras     map[int]string
	outputDir         string
	persistPath       string

	eventQueue chan cameraFault
	queueDone  chan struct{}
	queueStop  context.CancelFunc

	heartbeatStop context.CancelFunc
	heartbeatDone chan struct{}

	integrity *integrityMonitor
	overload  *overloadGuard

	cfgStore       *config.Store
	adapter        *runtime.Adapter
	exclLock       *lock.Lock
	alerts         AlertSink
	logger         *logging.Logger
	previewStopper PreviewStopper

	retryMaxAttempts int
	retryBackoff     time.Duration

	breakersMu sync.Mutex
	breakers   map[int]*resilience.CircuitBreaker
}

type cameraFault struct {
	cameraID int
	err      error
}

// NewService wires the Recording Service's collaborators.
func NewService(cfgStore *config.Store, adapter *runtime.Adapter, exclLock *lock.Lock, alerts AlertSink) *Service {
	if alerts == nil {
		alerts = NopAlertSink{}
	}
	return &Service{
		state:            StateIdle,
		cfgStore:         cfgStore,
		adapter:          adapter,
		exclLock:         exclLock,
		alerts:           alerts,
		logger:           logging.GetLogger("recording-service"),
		retryMaxAttempts: constants.DefaultRecoveryMaxRetries,
		retryBackoff:     constants.DefaultRecoveryBackoff,
		breakers:         make(map[int]*resilience.CircuitBreaker),
	}
}

// breakerFor returns the per-camera circuit breaker, creating it on first use.
func (s *Service) breakerFor(camID int) *resilience.CircuitBreaker {
	s.breakersMu.Lock()
	defer s.breakersMu.Unlock()
	cb, ok := s.breakers[camID]
	if !ok {
		cb = resilience.New(
			fmt.Sprintf("camera-%d", camID),
			resilience.Config{
				FailureThreshold: constants.DefaultBreakerFailureThreshold,
				RecoveryTimeout:  constants.DefaultBreakerRecoveryTimeout,
			},
			s.logger,
		)
		s.breakers[camID] = cb
	}
	return cb
}

// SetPreviewStopper wires the callback used to evict a preview holder of
// the Exclusion Lock.
func (s *Service) SetPreviewStopper(stopper PreviewStopper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previewStopper = stopper
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MatchID returns the active session's match id, or "" when idle.
func (s *Service) MatchID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchID
}

// CameraStatus is one camera's entry in a Status snapshot.
type CameraStatus struct {
	State   string
	UptimeS float64
}

// Status is the recording session snapshot for get_status (spec §6.1):
// `{recording, match_id?, duration_s, cameras, protected}`.
type Status struct {
	Recording bool
	MatchID   string
	DurationS float64
	Cameras   map[int]CameraStatus
	Protected bool
}

// Status returns the current recording session snapshot.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return Status{Recording: false}
	}
	elapsed := time.Since(s.startedAtMono)
	cams := make(map[int]CameraStatus, len(s.handles))
	for id, h := range s.handles {
		cams[id] = CameraStatus{State: h.State().String(), UptimeS: elapsed.Seconds()}
	}
	return Status{
		Recording: true,
		MatchID:   s.matchID,
		DurationS: elapsed.Seconds(),
		Cameras:   cams,
		Protected: elapsed.Seconds() < s.protectionSeconds,
	}
}

// RecoverOnBoot implements the crash-recovery check (spec §4.5): any
// PersistedState found at boot is necessarily stale (no live handles
// survive a process restart); a recent one gets a recovered_incomplete
// alert before being deleted, an old one is cleaned up silently.
func (s *Service) RecoverOnBoot(persistPath string) error {
	st, err := readPersistedState(persistPath)
	if err != nil {
		return fmt.Errorf("recording: read persisted state: %w", err)
	}
	if st == nil {
		return nil
	}
	age := time.Since(time.Unix(st.LastHeartbeatUnix, 0))
	if age < constants.PersistedStateStaleAfter {
		s.alerts.Emit("recovered_incomplete", "warn", map[string]any{
			"match_id": st.MatchID, "output_dir": st.OutputDir, "age_seconds": age.Seconds(),
		})
	}
	return deletePersistedState(persistPath)
}

// Start begins a dual-camera recording session (spec §4.5).
func (s *Service) Start(ctx context.Context, opts StartOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	startBegin := time.Now()

	if s.state != StateIdle {
		if !opts.Force {
			return "", &AlreadyRecordingError{MatchID: s.matchID}
		}
		if _, err := s.stopLocked(ctx, true); err != nil {
			return "", fmt.Errorf("recording: force stop before restart: %w", err)
		}
	}

	matchID := opts.MatchID
	if matchID == "" {
		matchID = matchIDFromNow(time.Now())
	}

	cfgSnap := s.cfgStore.Snapshot()
	requireAll := cfgSnap.RecordingRequireAllCameras
	if opts.RequireAllCameras != nil {
		requireAll = *opts.RequireAllCameras
	}
	s.retryMaxAttempts = cfgSnap.RecordingRecoveryMaxAttempts
	if s.retryMaxAttempts < 1 {
		s.retryMaxAttempts = 1
	}
	if cfgSnap.RecordingRecoveryBackoffSeconds > 0 {
		s.retryBackoff = time.Duration(cfgSnap.RecordingRecoveryBackoffSeconds * float64(time.Second))
	}

	s.state = StateStarting

	evict := func(ctx context.Context, existing lock.Role) error {
		if s.previewStopper != nil {
			return s.previewStopper(ctx)
		}
		return nil
	}
	if err := s.exclLock.Acquire(ctx, lock.RoleRecord, true, evict); err != nil {
		s.state = StateIdle
		return "", fmt.Errorf("recording: acquire exclusion lock: %w", err)
	}

	handles, startErr := s.startAllCameras(ctx)
	if startErr != nil {
		for _, h := range handles {
			_ = s.adapter.Stop(h)
		}
		_ = s.exclLock.Release()
		s.state = StateIdle

		partial := make([]int, 0, len(handles))
		for id := range handles {
			partial = append(partial, id)
		}
		sort.Ints(partial)
		return "", &StartFailedError{Partial: partial, Cause: startErr}
	}

	now := time.Now()
	s.matchID = matchID
	s.handles = handles
	s.requireAllCameras = requireAll
	s.startedAtWall = now
	s.startedAtMono = now
	s.protectionSeconds = cfgSnap.ProtectionSeconds
	s.outputDir = filepath.Join(cfgSnap.OutputDir, matchID)
	s.persistPath = cfgSnap.PersistedStatePath
	s.cameraFailed = map[int]bool{}
	s.failedCameras = map[int]string{}

	if err := writePersistedState(s.persistPath, newPersistedState(matchID, s.outputDir, cameraIDs, now)); err != nil {
		s.logger.WithError(err).Error("failed to persist recording state")
	}

	s.state = StateActive
	s.startEventQueue()
	s.subscribeFailureHandlers()
	s.startHeartbeat(cfgSnap.HeartbeatInterval())
	s.integrity = startIntegrityMonitor(cfgSnap.OutputDir, matchID, cameraIDs, constants.DefaultIntegrityInterval, now, s.alerts)

	if cfgSnap.RecordingOverloadGuardEnabled {
		protectedUntil := now.Add(cfgSnap.ProtectionWindow())
		cpuPolicy := CPUOverloadPolicy(cfgSnap.RecordingOverloadCPUPercent)
		policy := func(ctx context.Context) (bool, error) {
			if time.Now().Before(protectedUntil) {
				return false, nil
			}
			return cpuPolicy(ctx)
		}
		pollInterval := time.Duration(cfgSnap.RecordingOverloadPollInterval * float64(time.Second))
		s.overload = startOverloadGuard(policy, pollInterval, cfgSnap.RecordingOverloadStreakThreshold, s.onOverloadTriggered)
	}

	s.alerts.Emit("recording_started", "info", map[string]any{
		"match_id": matchID, "duration_seconds": time.Since(startBegin).Seconds(),
	})
	return matchID, nil
}

func (s *Service) startAllCameras(ctx context.Context) (map[int]*runtime.PipelineHandle, error) {
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	handles := make(map[int]*runtime.PipelineHandle, len(cameraIDs))

	for _, camID := range cameraIDs {
		camID := camID
		g.Go(func() error {
			camCfg, err := s.cfgStore.Camera(camID)
			if err != nil {
				return fmt.Errorf("camera %d: %w", camID, err)
			}
			handle, err := s.startCameraWithRetry(gctx, camID, camCfg)
			if err != nil {
				return err
			}
			mu.Lock()
			handles[camID] = handle
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return handles, err
}

// startCameraWithRetry recreates the handle from scratch on every attempt
// so no state leaks from a failed attempt (spec §4.5 "Retry on start").
func (s *Service) startCameraWithRetry(ctx context.Context, camID int, camCfg *config.CameraConfig) (*runtime.PipelineHandle, error) {
	breaker := s.breakerFor(camID)
	var lastErr error
	var handle *runtime.PipelineHandle
	for attempt := 0; attempt < s.retryMaxAttempts; attempt++ {
		err := breaker.Call(func() error {
			desc, err := pipeline.Build(pipeline.RoleRecord, camID, camCfg)
			if err != nil {
				return err
			}
			h, err := s.adapter.Create(desc)
			if err != nil {
				return err
			}
			if err := s.adapter.Start(ctx, h); err != nil {
				_ = s.adapter.Stop(h)
				return err
			}
			handle = h
			return nil
		})
		if err == nil {
			return handle, nil
		}
		lastErr = err

		if attempt < s.retryMaxAttempts-1 {
			s.alerts.Emit("recording_camera_retry", "warn", map[string]any{"camera_id": camID, "attempt": attempt + 1, "cause": lastErr.Error()})
			backoff := s.retryBackoff * time.Duration(attempt+1)
			if backoff > constants.MaxRecoveryBackoff {
				backoff = constants.MaxRecoveryBackoff
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// subscribeFailureHandlers wires each handle's error events into the
// session's event queue. Callbacks run on the adapter's per-handle
// worker, never on the caller's goroutine and never under s.mu directly
// (spec §5 deadlock avoidance) — they only post to eventQueue.
func (s *Service) subscribeFailureHandlers() {
	for camID, handle := range s.handles {
		camID := camID
		s.adapter.Subscribe(handle, func(ev runtime.Event) {
			if ev.Kind != runtime.EventError {
				return
			}
			select {
			case s.eventQueue <- cameraFault{cameraID: camID, err: fmt.Errorf("%s: %s", ev.Code, ev.Message)}:
			default:
			}
		})
	}
}

func (s *Service) startEventQueue() {
	ctx, cancel := context.WithCancel(context.Background())
	s.queueStop = cancel
	s.eventQueue = make(chan cameraFault, 8)
	s.queueDone = make(chan struct{})
	go func() {
		defer close(s.queueDone)
		for {
			select {
			case <-ctx.Done():
				return
			case fault := <-s.eventQueue:
				s.handleCameraFault(fault)
			}
		}
	}()
}

// handleCameraFault implements the partial-failure semantics of spec
// §4.5: require_all_cameras=true fails the whole session; false marks
// only the failed camera and lets the survivor continue.
//
// It runs on the event-queue goroutine started by startEventQueue, which
// is itself joined by Stop (via stopBackgroundLoops). A forced Stop must
// therefore never be called synchronously from here: stopBackgroundLoops
// would block on <-s.queueDone, which only this same goroutine closes,
// and it can't close it while it's blocked waiting for Stop to return.
// Dispatching the forced stop onto a fresh goroutine breaks that cycle.
func (s *Service) handleCameraFault(fault cameraFault) {
	s.mu.Lock()
	if s.state != StateActive || s.cameraFailed[fault.cameraID] {
		s.mu.Unlock()
		return
	}
	s.cameraFailed[fault.cameraID] = true
	requireAll := s.requireAllCameras
	matchID := s.matchID
	handle := s.handles[fault.cameraID]
	s.mu.Unlock()

	s.alerts.Emit("recording_camera_error", "error", map[string]any{
		"camera_id": fault.cameraID, "match_id": matchID, "reason": fault.err.Error(),
	})

	if requireAll {
		go func() {
			if _, err := s.Stop(context.Background(), StopOptions{Force: true}); err != nil {
				s.logger.WithError(err).Error("failed to stop session after camera failure")
			}
		}()
		return
	}

	if handle != nil {
		_ = s.adapter.SendEndOfStream(handle)
		_, _ = s.adapter.AwaitDrain(handle, constants.DefaultEOSTimeout)
		_ = s.adapter.Stop(handle)
	}

	s.mu.Lock()
	delete(s.handles, fault.cameraID)
	if s.failedCameras == nil {
		s.failedCameras = map[int]string{}
	}
	s.failedCameras[fault.cameraID] = fault.err.Error()
	s.mu.Unlock()
}

// onOverloadTriggered runs on the overload guard's own polling goroutine
// (overloadGuard.loop). The same self-join hazard as handleCameraFault
// applies here: stopBackgroundLoops joins the guard via overload.stop(),
// which blocks on <-g.done — closed by this same loop goroutine only
// after trigger() (this function) returns. Forcing the stop from a fresh
// goroutine lets loop() return and close g.done immediately.
func (s *Service) onOverloadTriggered() {
	s.alerts.Emit("recording_overload_guard_triggered", "warn", nil)
	go func() {
		if _, err := s.Stop(context.Background(), StopOptions{Force: true}); err != nil {
			s.logger.WithError(err).Error("overload guard forced stop failed")
		}
	}()
}

func (s *Service) startHeartbeat(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.heartbeatStop = cancel
	s.heartbeatDone = make(chan struct{})
	if interval <= 0 {
		interval = constants.DefaultHeartbeatInterval
	}
	go func() {
		defer close(s.heartbeatDone)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.beatHeartbeat()
			}
		}
	}()
}

func (s *Service) beatHeartbeat() {
	s.mu.Lock()
	path := s.persistPath
	matchID := s.matchID
	outputDir := s.outputDir
	startedAt := s.startedAtWall
	s.mu.Unlock()
	if path == "" {
		return
	}
	st := newPersistedState(matchID, outputDir, cameraIDs, startedAt)
	st.LastHeartbeatUnix = time.Now().Unix()
	if err := writePersistedState(path, st); err != nil {
		s.logger.WithError(err).Warn("heartbeat write failed")
	}
}

func (s *Service) stopBackgroundLoops() {
	if s.heartbeatStop != nil {
		s.heartbeatStop()
		<-s.heartbeatDone
		s.heartbeatStop = nil
	}
	if s.integrity != nil {
		s.integrity.stop()
		s.integrity = nil
	}
	if s.overload != nil {
		s.overload.stop()
		s.overload = nil
	}
	if s.queueStop != nil {
		s.queueStop()
		<-s.queueDone
		s.queueStop = nil
	}
}

// Stop runs the graceful drain sequence (spec §4.5 "Stop").
func (s *Service) Stop(ctx context.Context, opts StopOptions) (*StopReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(ctx, opts.Force)
}

func (s *Service) stopLocked(ctx context.Context, force bool) (*StopReport, error) {
	stopBegin := time.Now()
	if s.state == StateIdle {
		return nil, &NotRecordingError{}
	}

	elapsed := time.Since(s.startedAtMono).Seconds()
	if !force && elapsed < s.protectionSeconds {
		remaining := s.protectionSeconds - elapsed
		s.alerts.Emit("recording_protected_stop_rejected", "info", map[string]any{
			"match_id": s.matchID, "remaining_seconds": remaining,
		})
		return nil, &ProtectedStopError{RemainingSeconds: remaining}
	}

	s.stopBackgroundLoops()
	s.state = StateStopping

	cfgSnap := s.cfgStore.Snapshot()
	eosTimeout := time.Duration(cfgSnap.RecordingStopEOSTimeoutSeconds * float64(time.Second))
	if eosTimeout <= 0 {
		eosTimeout = constants.DefaultEOSTimeout
	}

	var mu sync.Mutex
	results := make([]CameraReport, 0, len(s.handles))
	var g errgroup.Group
	for camID, handle := range s.handles {
		camID, handle := camID, handle
		g.Go(func() error {
			graceful := true
			if err := s.adapter.SendEndOfStream(handle); err != nil {
				graceful = false
			} else if drained, err := s.adapter.AwaitDrain(handle, eosTimeout); err != nil || !drained {
				graceful = false
				s.alerts.Emit("recording_stop_non_graceful", "warn", map[string]any{"camera_id": camID, "match_id": s.matchID})
			}
			if err := s.adapter.Stop(handle); err != nil {
				graceful = false
				var stuck *runtime.RuntimeStuckError
				if errors.As(err, &stuck) {
					s.alerts.Emit("recording_forced_teardown", "error", map[string]any{"camera_id": camID, "match_id": s.matchID})
				}
			}
			mu.Lock()
			results = append(results, CameraReport{CameraID: camID, Graceful: graceful})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for camID, reason := range s.failedCameras {
		results = append(results, CameraReport{CameraID: camID, Graceful: false, Error: reason})
	}

	s.state = StateFinalizing
	sort.Slice(results, func(i, j int) bool { return results[i].CameraID < results[j].CameraID })

	outputDir := cfgSnap.OutputDir
	for i := range results {
		segs := listSegments(outputDir, s.matchID, results[i].CameraID)
		var bytes int64
		for _, seg := range segs {
			bytes += seg.size
		}
		results[i].SegmentCount = len(segs)
		results[i].Bytes = bytes
		results[i].IntegrityOK = len(segs) > 0
		if !results[i].IntegrityOK {
			s.alerts.Emit("recording_integrity_failed", "error", map[string]any{"camera_id": results[i].CameraID, "match_id": s.matchID})
		}
	}

	allOK := true
	for _, r := range results {
		if !r.Graceful || !r.IntegrityOK {
			allOK = false
		}
	}

	matchID := s.matchID
	duration := time.Since(s.startedAtMono).Seconds()

	_ = deletePersistedState(s.persistPath)
	_ = s.exclLock.Release()
	s.alerts.Emit("recording_stopped", "info", map[string]any{
		"match_id": matchID, "duration_seconds": time.Since(stopBegin).Seconds(),
	})

	s.state = StateIdle
	s.matchID = ""
	s.handles = nil
	s.failedCameras = nil

	return &StopReport{MatchID: matchID, DurationS: duration, Cameras: results, AllOK: allOK}, nil
}
