// Command hot-reload-example demonstrates internal/config's hot-reload
// watcher: it writes a config document, loads it into a Store, registers
// an update callback, then rewrites the file on disk a few times so the
// watcher's effect is visible without wiring the rest of the appliance.
package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/matchcam/core/internal/config"
	"github.com/matchcam/core/internal/logging"
)

func main() {
	logger := logging.GetLogger("hot-reload-example")

	tempDir, err := os.MkdirTemp("", "matchcam-hot-reload-demo")
	if err != nil {
		logger.WithError(err).Fatal("failed to create temp dir")
	}
	defer os.RemoveAll(tempDir)

	configPath := filepath.Join(tempDir, "config.json")
	writeDemoConfig(logger, configPath, 1920, 1080, 0)

	store, err := config.NewStore(configPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load initial configuration")
	}

	store.OnUpdate(func(cfg *config.Config) {
		cam, _ := cfg.Camera(0)
		logger.WithField("sensor", camDims(cam)).Info("configuration reloaded")
	})

	if err := store.EnableHotReload(); err != nil {
		logger.WithError(err).Fatal("failed to start hot reload watcher")
	}
	defer store.DisableHotReload()

	logger.Info("watching for edits to " + configPath + " (writing two demo revisions)")

	time.Sleep(500 * time.Millisecond)
	writeDemoConfig(logger, configPath, 1280, 720, 90)
	time.Sleep(500 * time.Millisecond)
	writeDemoConfig(logger, configPath, 1920, 1080, 180)
	time.Sleep(500 * time.Millisecond)

	logger.Info("hot reload example completed")
}

func writeDemoConfig(logger *logging.Logger, path string, width, height int, rotation float64) {
	cfg := &config.Config{
		Cameras: map[int]*config.CameraConfig{
			0: {CameraID: 0, SensorWidth: width, SensorHeight: height, Rotation: rotation, CorrectionKind: config.CorrectionNone},
		},
		ProtectionSeconds: 10,
		HeartbeatSeconds:  5,
	}
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		logger.WithError(err).Fatal("failed to encode demo configuration")
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		logger.WithError(err).Fatal("failed to write demo configuration")
	}
}

func camDims(cam *config.CameraConfig) string {
	if cam == nil {
		return "unknown"
	}
	return strconv.Itoa(cam.SensorWidth) + "x" + strconv.Itoa(cam.SensorHeight)
}
