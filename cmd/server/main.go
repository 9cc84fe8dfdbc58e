// Package main implements the match capture appliance's HTTP entry point.
//
// It wires the Config Store, Media Runtime Adapter, Exclusion Lock,
// Recording Service, Preview Service and Health & Alert Channel into a
// Control Surface, exposes that surface as a thin JSON binding over
// go-chi, and supervises the long-running background services
// (exclusion-lock heartbeat, storage monitor, HTTP listener) under a
// suture tree so a panic in one never takes the process down. The config
// hot-reload watcher is started directly, outside the tree.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/matchcam/core/internal/common"
	"github.com/matchcam/core/internal/config"
	"github.com/matchcam/core/internal/control"
	"github.com/matchcam/core/internal/health"
	"github.com/matchcam/core/internal/lock"
	"github.com/matchcam/core/internal/logging"
	"github.com/matchcam/core/internal/preview"
	"github.com/matchcam/core/internal/recording"
	"github.com/matchcam/core/internal/runtime"
	"github.com/thejerf/suture/v4"
)

var (
	configPath = flag.String("config", "/etc/matchcam/config.json", "path to the camera/session configuration document")
	listenAddr = flag.String("listen", ":8080", "HTTP listen address for the control API")
	logLevel   = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	ringSize   = flag.Int("alert-ring-size", 1024, "capacity of the in-memory alert ring")
)

func main() {
	flag.Parse()

	_ = logging.SetupLogging(&logging.LoggingConfig{Level: *logLevel, Format: "text", ConsoleEnabled: true})
	logger := logging.GetLogger("matchcam-server")

	cfgStore, err := config.NewStore(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}
	if err := cfgStore.EnableHotReload(); err != nil {
		logger.WithError(err).Warn("config hot reload not available")
	}

	cfg := cfgStore.Snapshot()

	alerts, err := health.NewChannel(*ringSize, cfg.AlertLogPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to create health channel")
	}
	defer alerts.Close()

	recLock, err := lock.New(cfg.LockDir)
	if err != nil {
		logger.WithError(err).Fatal("failed to open exclusion lock")
	}

	// The native multimedia framework binding (hardware cropper/scaler,
	// encoder, bus events) is platform-specific and deliberately left as
	// an extension point behind runtime.Engine; FakeEngine is the
	// in-process stand-in until a real binding is supplied.
	recAdapter := runtime.NewAdapter(&runtime.FakeEngine{})
	prevAdapter := runtime.NewAdapter(&runtime.FakeEngine{})

	recSvc := recording.NewService(cfgStore, recAdapter, recLock, alerts)
	prevSvc := preview.NewService(cfgStore, prevAdapter, recLock, func() bool {
		return recSvc.State() != recording.StateIdle
	})
	recSvc.SetPreviewStopper(prevSvc.StopForEviction)

	if err := recSvc.RecoverOnBoot(cfg.PersistedStatePath); err != nil {
		logger.WithError(err).Warn("recording recovery-on-boot reported an issue")
	}

	surface := control.NewSurface(recSvc, prevSvc, alerts)

	sup := suture.NewSimple("matchcam-server")
	sup.Add(&lockHeartbeatService{lock: recLock, interval: cfg.HeartbeatInterval(), logger: logger})
	if cfg.StorageLowThresholdPercent > 0 {
		sup.Add(&storageMonitorService{
			alerts:       alerts,
			path:         cfg.OutputDir,
			thresholdPct: cfg.StorageLowThresholdPercent,
			pollInterval: storagePollInterval(cfg),
		})
	}
	sup.Add(&httpService{addr: *listenAddr, surface: surface, logger: logger})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("matchcam server starting")
	if err := sup.Serve(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("supervisor exited with error")
	}

	// The supervisor tree only owns the HTTP listener and the pollers; an
	// in-flight recording or preview session is a collaborator of surface,
	// not a suture.Service, so it gets its own bounded teardown here.
	if err := common.StopWithTimeout(stoppableRecording{recSvc}, 15*time.Second); err != nil {
		logger.WithError(err).Warn("recording session did not stop cleanly")
	}
	if err := common.StopWithTimeout(stoppablePreview{prevSvc}, 5*time.Second); err != nil {
		logger.WithError(err).Warn("preview session did not stop cleanly")
	}

	logger.Info("matchcam server stopped")
}

// stoppableRecording adapts recording.Service to common.Stoppable, stopping
// an active session with Force so shutdown never waits out the protection
// window.
type stoppableRecording struct {
	svc *recording.Service
}

func (s stoppableRecording) Stop(ctx context.Context) error {
	if s.svc.State() == recording.StateIdle {
		return nil
	}
	_, err := s.svc.Stop(ctx, recording.StopOptions{Force: true})
	return err
}

// stoppablePreview adapts preview.Service to common.Stoppable via its
// eviction path, which already tears down every running session.
type stoppablePreview struct {
	svc *preview.Service
}

func (s stoppablePreview) Stop(ctx context.Context) error {
	return s.svc.StopForEviction(ctx)
}

func storagePollInterval(cfg *config.Config) time.Duration {
	if cfg.StoragePollIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.StoragePollIntervalSeconds * float64(time.Second))
}

// lockHeartbeatService refreshes the exclusion lock's last_heartbeat so a
// live, idle holder is never mistaken for stale (spec §4.4).
type lockHeartbeatService struct {
	lock     *lock.Lock
	interval time.Duration
	logger   *logging.Logger
}

func (s *lockHeartbeatService) Serve(ctx context.Context) error {
	interval := s.interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if s.lock.HeldRole() == "" {
				continue
			}
			if err := s.lock.Heartbeat(); err != nil {
				s.logger.WithError(err).Warn("exclusion lock heartbeat failed")
			}
		}
	}
}

// storageMonitorService wraps health.Channel.StartStorageMonitor as a
// suture.Service so its lifetime tracks the supervisor tree's.
type storageMonitorService struct {
	alerts       *health.Channel
	path         string
	thresholdPct float64
	pollInterval time.Duration
}

func (s *storageMonitorService) Serve(ctx context.Context) error {
	stop := s.alerts.StartStorageMonitor(s.path, s.thresholdPct, s.pollInterval)
	<-ctx.Done()
	stop()
	return nil
}

// httpService binds the Control Surface onto the chi router built by
// newHTTPServer and runs it until ctx is cancelled.
type httpService struct {
	addr    string
	surface *control.Surface
	logger  *logging.Logger
}

func (s *httpService) Serve(ctx context.Context) error {
	srv := newHTTPServer(s.addr, s.surface, s.logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
