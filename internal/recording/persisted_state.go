package recording

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"
)

const persistedStateSchemaVersion = 1

// PersistedState is the on-disk crash-survival record (spec §3): written
// on transition into Active, refreshed on heartbeat, deleted on clean
// Stop.
type PersistedState struct {
	SchemaVersion     int    `json:"schema_version"`
	Kind              string `json:"kind"`
	MatchID           string `json:"match_id"`
	StartedAtUnix     int64  `json:"started_at_unix"`
	OutputDir         string `json:"output_dir"`
	CamerasExpected   []int  `json:"cameras_expected"`
	LastHeartbeatUnix int64  `json:"last_heartbeat_unix"`
}

func newPersistedState(matchID, outputDir string, cameras []int, startedAt time.Time) *PersistedState {
	return &PersistedState{
		SchemaVersion:     persistedStateSchemaVersion,
		Kind:              "recording",
		MatchID:           matchID,
		StartedAtUnix:     startedAt.Unix(),
		OutputDir:         outputDir,
		CamerasExpected:   cameras,
		LastHeartbeatUnix: startedAt.Unix(),
	}
}

func writePersistedState(path string, st *PersistedState) error {
	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("recording: persist state: %w", err)
	}
	defer pending.Cleanup()

	enc := json.NewEncoder(pending)
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("recording: encode persisted state: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("recording: commit persisted state: %w", err)
	}
	return nil
}

func readPersistedState(path string) (*PersistedState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var st PersistedState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func deletePersistedState(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
