package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, dir string, cfg *Config) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func validTestConfig() *Config {
	cfg := defaultConfig()
	cfg.Cameras[0].SensorWidth = 1920
	cfg.Cameras[0].SensorHeight = 1080
	cfg.Cameras[1].SensorWidth = 1920
	cfg.Cameras[1].SensorHeight = 1080
	return cfg
}

func TestNewStoreLoadsValidDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, validTestConfig())

	store, err := NewStore(path)
	require.NoError(t, err)

	cam, err := store.Camera(0)
	require.NoError(t, err)
	require.Equal(t, 1920, cam.SensorWidth)
}

func TestNewStoreRejectsBadCrop(t *testing.T) {
	dir := t.TempDir()
	cfg := validTestConfig()
	cfg.Cameras[0].Crop = CropBox{Left: 1910, Right: 0, Top: 0, Bottom: 0}
	path := writeTestConfig(t, dir, cfg)

	_, err := NewStore(path)
	require.Error(t, err)
	var invalid *ConfigInvalidError
	require.ErrorAs(t, err, &invalid)
}

func TestSetWritesAtomicallyAndNotifies(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, validTestConfig())
	store, err := NewStore(path)
	require.NoError(t, err)

	var notified *Config
	store.OnUpdate(func(c *Config) { notified = c })

	newCam := &CameraConfig{CameraID: 0, SensorWidth: 1920, SensorHeight: 1080, Rotation: 90, CorrectionKind: CorrectionNone}
	require.NoError(t, store.Set(0, newCam))

	cam, err := store.Camera(0)
	require.NoError(t, err)
	require.Equal(t, 90.0, cam.Rotation)
	require.NotNil(t, notified)

	// Verify on-disk document reflects the write (tempfile-then-rename).
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk Config
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	require.Equal(t, 90.0, onDisk.Cameras[0].Rotation)
}

func TestSetRejectsInvalidCameraConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, validTestConfig())
	store, err := NewStore(path)
	require.NoError(t, err)

	bad := &CameraConfig{CameraID: 0, SensorWidth: 100, SensorHeight: 100, Crop: CropBox{Left: 90}}
	err = store.Set(0, bad)
	require.Error(t, err)

	// Unchanged snapshot after rejected write.
	cam, _ := store.Camera(0)
	require.Equal(t, 1920, cam.SensorWidth)
}
