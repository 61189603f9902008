package lockfile

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/ringo-is-a-color/lastcall/util/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "lastcall.lock")
	lock, err := Acquire(path, "lastcall")
	require.Nil(t, err)
	assert.Equal(t, path, lock.Path())

	holder, err := Read(path)
	require.Nil(t, err)
	assert.Equal(t, os.Getpid(), holder.PID)
	assert.Equal(t, "lastcall", holder.Owner)
	assert.Len(t, holder.Token, 64)

	require.Nil(t, lock.Release())
	assert.NoFileExists(t, path)
	assert.ErrorIs(t, lock.Release(), ErrAlreadyFree)
}

func TestAcquireHeldLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lastcall.lock")
	lock, err := Acquire(path, "first")
	require.Nil(t, err)
	defer lock.Release()

	_, err = Acquire(path, "second")
	assert.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "first")
}

func exitedPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	require.Nil(t, cmd.Run())
	return cmd.ProcessState.Pid()
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lastcall.lock")
	pid := exitedPID(t)
	content := strconv.Itoa(pid) + "\ncrashed\n" + token(pid, "crashed") + "\n"
	require.Nil(t, os.WriteFile(path, []byte(content), 0600))

	lock, err := Acquire(path, "lastcall")
	require.Nil(t, err)
	holder, err := Read(path)
	require.Nil(t, err)
	assert.Equal(t, os.Getpid(), holder.PID)
	assert.Equal(t, "lastcall", holder.Owner)
	assert.Nil(t, lock.Release())
}

func TestAcquireKeepsMalformedLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lastcall.lock")
	require.Nil(t, os.WriteFile(path, []byte("garbage"), 0600))

	_, err := Acquire(path, "lastcall")
	assert.ErrorIs(t, err, ErrLocked)
	assert.FileExists(t, path)
}

func TestReleaseLockTakenOverByAnotherOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lastcall.lock")
	lock, err := Acquire(path, "first")
	require.Nil(t, err)

	require.Nil(t, os.Remove(path))
	other, err := Acquire(path, "second")
	require.Nil(t, err)

	assert.ErrorIs(t, lock.Release(), ErrNotOwned)
	assert.FileExists(t, path)
	assert.Nil(t, other.Release())
}

func TestReadMalformedLockFile(t *testing.T) {
	pid := strconv.Itoa(os.Getpid())
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"missing token", pid + "\nlastcall\n"},
		{"invalid pid", "pid\nlastcall\n" + token(1, "lastcall") + "\n"},
		{"wrong token", "2\nlastcall\n" + token(1, "lastcall") + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "lastcall.lock")
			require.Nil(t, os.WriteFile(path, []byte(tt.content), 0600))
			_, err := Read(path)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}
