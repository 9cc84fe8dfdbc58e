package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, l.Acquire(context.Background(), RoleRecord, false, nil))
	require.Equal(t, RoleRecord, l.HeldRole())
	require.NoError(t, l.Release())
	require.Equal(t, Role(""), l.HeldRole())
}

func TestAcquireBusyWithoutForce(t *testing.T) {
	dir := t.TempDir()
	holder, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, holder.Acquire(context.Background(), RolePreview, false, nil))
	defer holder.Release()

	contender, err := New(dir)
	require.NoError(t, err)
	err = contender.Acquire(context.Background(), RolePreview, false, nil)
	require.Error(t, err)
	var busy *BusyError
	require.ErrorAs(t, err, &busy)
	require.Equal(t, RolePreview, busy.ExistingRole)
}

func TestAcquireForceEvictsPreviewForRecord(t *testing.T) {
	dir := t.TempDir()
	holder, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, holder.Acquire(context.Background(), RolePreview, false, nil))

	evicted := false
	evict := func(ctx context.Context, existing Role) error {
		evicted = true
		require.Equal(t, RolePreview, existing)
		return holder.Release()
	}

	contender, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, contender.Acquire(context.Background(), RoleRecord, true, evict))
	require.True(t, evicted)
	require.Equal(t, RoleRecord, contender.HeldRole())
}

func TestAcquireForceNeverEvictsRecordForPreview(t *testing.T) {
	dir := t.TempDir()
	holder, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, holder.Acquire(context.Background(), RoleRecord, false, nil))
	defer holder.Release()

	contender, err := New(dir)
	require.NoError(t, err)
	err = contender.Acquire(context.Background(), RolePreview, true, func(context.Context, Role) error {
		t.Fatal("preview must never evict record")
		return nil
	})
	require.Error(t, err)
	var busy *BusyError
	require.ErrorAs(t, err, &busy)
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, l.Acquire(context.Background(), RoleRecord, false, nil))

	// Simulate a crash: drop the OS lock and backdate the heartbeat without
	// going through Release (which would also clean up the payload).
	l.owner.LastHeartbeat = time.Now().Add(-10 * time.Minute)
	require.NoError(t, writeOwner(l.file, l.owner))
	l.file.Close()
	l.file = nil
	l.owner = nil

	fresh, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, fresh.Acquire(context.Background(), RolePreview, false, nil))
	require.Equal(t, RolePreview, fresh.HeldRole())
}
