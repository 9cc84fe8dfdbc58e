package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/matchcam/core/internal/logging"
	"github.com/spf13/viper"
)

// Store is the Config Store (§4.1 / C1). It loads a single JSON document,
// validates it, and serves per-camera snapshots to the Pipeline Builder.
// Writes are tempfile-then-rename atomic and publish a change notification;
// readers get the new snapshot on the next Camera() call — pipelines
// already in flight are never mutated mid-run.
type Store struct {
	mu              sync.RWMutex
	config          *Config
	path            string
	logger          *logging.Logger
	updateCallbacks []func(*Config)

	watcher *hotReloadWatcher
}

// NewStore loads and validates the configuration document at path. On
// parse failure, ConfigInvalid/ConfigIoError is returned and no Store is
// created — callers are expected to fall back to an in-process default if
// this is the very first load, or retain their previous Store otherwise.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logging.GetLogger("config-store"),
		config: defaultConfig(),
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) reload() error {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	v.SetEnvPrefix("MATCHCAM")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return &ConfigIoError{Path: s.path, Err: err}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return &ConfigInvalidError{Fields: []*FieldError{{Field: "<root>", Msg: err.Error()}}}
	}
	applyCameraIDs(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		s.logger.WithError(err).Error("configuration failed validation; retaining previous snapshot")
		return err
	}

	s.mu.Lock()
	old := s.config
	s.config = &cfg
	s.mu.Unlock()

	s.notify(old, &cfg)
	return nil
}

// applyCameraIDs fills in CameraID from the map key when the document
// omits the redundant field (viper/JSON may unmarshal integer map keys
// without requiring the nested field to repeat them).
func applyCameraIDs(cfg *Config) {
	for id, cam := range cfg.Cameras {
		if cam.CameraID == 0 {
			cam.CameraID = id
		}
	}
}

// Camera returns the current snapshot for the given camera id.
func (s *Store) Camera(id int) (*CameraConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cam, ok := s.config.Cameras[id]
	if !ok {
		return nil, fmt.Errorf("config: no camera configured for id %d", id)
	}
	cp := *cam
	return &cp, nil
}

// Snapshot returns a copy of the current top-level configuration.
func (s *Store) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := *s.config
	return &cp
}

// OnUpdate registers a callback invoked after every successful reload or
// Set, with the new snapshot.
func (s *Store) OnUpdate(cb func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCallbacks = append(s.updateCallbacks, cb)
}

func (s *Store) notify(_, new *Config) {
	s.mu.RLock()
	cbs := append([]func(*Config){}, s.updateCallbacks...)
	s.mu.RUnlock()
	for _, cb := range cbs {
		cb(new)
	}
}

// Set validates and atomically persists a single camera's configuration,
// then notifies watchers. The write is a tempfile-then-rename, matching
// spec §4.1.
func (s *Store) Set(id int, cam *CameraConfig) error {
	if err := ValidateCameraConfig(cam); err != nil {
		return err
	}

	s.mu.Lock()
	next := *s.config
	cameras := make(map[int]*CameraConfig, len(s.config.Cameras))
	for k, v := range s.config.Cameras {
		cameras[k] = v
	}
	camCopy := *cam
	cameras[id] = &camCopy
	next.Cameras = cameras
	s.mu.Unlock()

	if err := writeAtomic(s.path, &next); err != nil {
		return err
	}

	s.mu.Lock()
	old := s.config
	s.config = &next
	s.mu.Unlock()

	s.notify(old, &next)
	return nil
}

func writeAtomic(path string, cfg *Config) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return &ConfigIoError{Path: path, Err: err}
	}
	defer pending.Cleanup()

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return &ConfigIoError{Path: path, Err: err}
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return &ConfigIoError{Path: path, Err: err}
	}
	return nil
}

// ConfigIoError is ErrConfigIoError from spec §7 (disk-level failure).
type ConfigIoError struct {
	Path string
	Err  error
}

func (e *ConfigIoError) Error() string {
	return fmt.Sprintf("config: io error on %q: %v", e.Path, e.Err)
}

func (e *ConfigIoError) Unwrap() error { return e.Err }
