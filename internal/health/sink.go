package health

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// ndjsonSink is the append-only alert log sink (spec §6.2): one Alert per
// line, never truncated or atomically replaced — it is a log, not a
// snapshot, so google/renameio's tempfile-then-rename pattern (used for
// Config Store writes and PersistedState) does not apply here.
type ndjsonSink struct {
	mu   sync.Mutex
	file *os.File
}

func newNdjsonSink(path string) (*ndjsonSink, error) {
	if path == "" {
		return &ndjsonSink{}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("health: open alert log: %w", err)
	}
	return &ndjsonSink{file: f}, nil
}

func (s *ndjsonSink) append(a Alert) error {
	if s.file == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("health: encode alert: %w", err)
	}
	raw = append(raw, '\n')
	_, err = s.file.Write(raw)
	return err
}

func (s *ndjsonSink) close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
