package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matchcam/core/internal/constants"
	"github.com/matchcam/core/internal/logging"
	"golang.org/x/sys/unix"
)

// Role identifies which service is contending for the cameras. Record
// strictly outranks preview: a forced acquisition by record evicts a
// preview holder, never the reverse (spec §4.4 invariant).
type Role string

const (
	RoleRecord  Role = "record"
	RolePreview Role = "preview"
)

// precedence returns the eviction precedence; higher wins.
func precedence(r Role) int {
	if r == RoleRecord {
		return 1
	}
	return 0
}

// Owner is the owner token written into the lock payload: enough
// information to tell a live holder from a crashed one.
type Owner struct {
	PID           int       `json:"pid"`
	StartTime     time.Time `json:"start_time"`
	Nonce         string    `json:"nonce"`
	Role          Role      `json:"role"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// BusyError is returned when acquire(force=false) finds the lock held by a
// different role.
type BusyError struct{ ExistingRole Role }

func (e *BusyError) Error() string { return fmt.Sprintf("lock: busy, held by role %q", e.ExistingRole) }

// StaleError is returned when the payload names a process that no longer
// exists or whose heartbeat is too old; the caller may retry after the
// lock has been cleaned up.
type StaleError struct{ ExistingRole Role }

func (e *StaleError) Error() string {
	return fmt.Sprintf("lock: stale, previously held by role %q", e.ExistingRole)
}

// EvictFunc is called by Acquire when force=true and the current holder
// must be told to stop before acquisition can proceed. It typically wraps
// the Preview Service's Stop.
type EvictFunc func(ctx context.Context, existingRole Role) error

// Lock is a single named exclusion lock backed by flock(2) on a payload
// file under a well-known directory (spec §4.4 / C4).
type Lock struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	owner  *Owner
	logger *logging.Logger
}

// New returns a Lock bound to "<dir>/exclusion.lock".
func New(dir string) (*Lock, error) {
	if dir == "" {
		dir = constants.DefaultLockDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lock: create directory: %w", err)
	}
	return &Lock{
		path:   filepath.Join(dir, "exclusion.lock"),
		logger: logging.GetLogger("exclusion-lock"),
	}, nil
}

// Acquire attempts to take the lock for role. With force=false, a
// different live role returns BusyError. With force=true, a lower
// precedence live holder is evicted via evict before retrying; a higher
// or equal precedence holder still returns BusyError (preview can never
// evict record, and force never causes same-role eviction of another
// instance of the stronger role).
func (l *Lock) Acquire(ctx context.Context, role Role, force bool, evict EvictFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquireLocked(ctx, role, force, evict, false)
}

// acquireLocked does the actual work; retried is set on the second pass
// (after reclaiming a stale lock or evicting a weaker holder) to bound
// recursion to a single retry.
func (l *Lock) acquireLocked(ctx context.Context, role Role, force bool, evict EvictFunc, retried bool) error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("lock: open: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		existing, _ := readOwner(l.path)
		f.Close()

		if existing == nil {
			return fmt.Errorf("lock: acquire: %w", err)
		}
		if l.isStale(existing) {
			if retried {
				return &StaleError{ExistingRole: existing.Role}
			}
			l.logger.WithField("role", string(existing.Role)).Warn("exclusion lock stale, reclaiming")
			_ = os.Remove(l.path)
			return l.acquireLocked(ctx, role, force, evict, true)
		}
		if !force || precedence(existing.Role) >= precedence(role) {
			return &BusyError{ExistingRole: existing.Role}
		}
		if retried {
			return &BusyError{ExistingRole: existing.Role}
		}
		if evict != nil {
			if err := evict(ctx, existing.Role); err != nil {
				return fmt.Errorf("lock: evict existing holder: %w", err)
			}
		}
		return l.acquireLocked(ctx, role, force, evict, true)
	}

	owner := &Owner{
		PID:           os.Getpid(),
		StartTime:     time.Now(),
		Nonce:         uuid.NewString(),
		Role:          role,
		LastHeartbeat: time.Now(),
	}
	if err := writeOwner(f, owner); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return err
	}

	l.file = f
	l.owner = owner
	return nil
}

// Heartbeat refreshes the payload's last_heartbeat so a live, idle holder
// is never mistaken for stale (spec §4.4: "last heartbeat > 5 min ago").
func (l *Lock) Heartbeat() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == nil || l.file == nil {
		return fmt.Errorf("lock: not held")
	}
	l.owner.LastHeartbeat = time.Now()
	return writeOwner(l.file, l.owner)
}

// Release clears the payload and releases the OS lock.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	l.owner = nil
	if err != nil {
		return err
	}
	return closeErr
}

// HeldRole reports the role currently held by this process's Lock handle,
// or "" if not held.
func (l *Lock) HeldRole() Role {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == nil {
		return ""
	}
	return l.owner.Role
}

func (l *Lock) isStale(o *Owner) bool {
	if !processAlive(o.PID) {
		return true
	}
	return time.Since(o.LastHeartbeat) > constants.DefaultLockStaleAfter
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(unix.Signal(0)) == nil
}

func readOwner(path string) (*Owner, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var o Owner
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, nil // unparsable payload: treated as unowned, not an error.
	}
	return &o, nil
}

// writeOwner overwrites the payload in place on the fd that holds the
// flock. It deliberately does NOT use a tempfile-then-rename: an atomic
// rename would swap in a new inode, silently invalidating the flock held
// on this descriptor (and on any other process's view of the old inode).
// The single in-place write is safe because only the flock holder ever
// writes this file.
func writeOwner(f *os.File, o *Owner) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("lock: encode payload: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("lock: truncate payload: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("lock: seek payload: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		return fmt.Errorf("lock: write payload: %w", err)
	}
	return f.Sync()
}
