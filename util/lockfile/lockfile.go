package lockfile

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ringo-is-a-color/lastcall/util/errors"
	"github.com/ringo-is-a-color/lastcall/util/log"
	"lukechampine.com/blake3"
)

var (
	ErrLocked      = errors.New("the lock file is held by another process")
	ErrNotOwned    = errors.New("the lock file is not owned by this lock")
	ErrMalformed   = errors.New("the lock file is malformed")
	ErrAlreadyFree = errors.New("the lock is already released")
)

// Lock is an exclusive lock file holding the owner's pid, name and a token derived from both.
// Release removes the file only when it still carries the token written by Acquire.
type Lock struct {
	path     string
	token    string
	released bool
}

type Holder struct {
	PID   int
	Owner string
	Token string
}

func token(pid int, owner string) string {
	sum := blake3.Sum256([]byte(strconv.Itoa(pid) + "|" + owner))
	return hex.EncodeToString(sum[:])
}

// Acquire creates the lock file. A lock file left behind by a process which no longer runs is
// removed and acquired again.
func Acquire(path, owner string) (*Lock, error) {
	err := os.MkdirAll(filepath.Dir(path), 0700)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	lock, err := create(path, owner)
	if !errors.Is(err, ErrLocked) {
		return lock, err
	}

	holder, readErr := Read(path)
	if readErr != nil || processAlive(holder.PID) {
		return nil, err
	}
	log.Warn("remove the stale lock file", "path", path, "pid", holder.PID, "owner", holder.Owner)
	err = os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.WithStack(err)
	}
	return create(path, owner)
}

func create(path, owner string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			holder, readErr := Read(path)
			if readErr != nil {
				return nil, errors.Wrapf(ErrLocked, "path: %v", path)
			}
			return nil, errors.Wrapf(ErrLocked, "path: %v, pid: %v, owner: %v", path, holder.PID, holder.Owner)
		}
		return nil, errors.WithStack(err)
	}

	pid := os.Getpid()
	t := token(pid, owner)
	_, err = f.WriteString(strconv.Itoa(pid) + "\n" + owner + "\n" + t + "\n")
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, errors.Wrapf(err, "fail to write the lock file %v", path)
	}
	return &Lock{path: path, token: t}, nil
}

func Read(path string) (*Holder, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	lines := strings.Split(strings.TrimRight(string(bs), "\n"), "\n")
	if len(lines) != 3 {
		return nil, errors.Wrapf(ErrMalformed, "path: %v", path)
	}
	pid, err := strconv.Atoi(lines[0])
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "path: %v, pid: %q", path, lines[0])
	}
	holder := &Holder{PID: pid, Owner: lines[1], Token: lines[2]}
	if holder.Token != token(holder.PID, holder.Owner) {
		return nil, errors.Wrapf(ErrMalformed, "path: %v, the token doesn't match", path)
	}
	return holder, nil
}

func (l *Lock) Path() string {
	return l.path
}

func (l *Lock) Release() error {
	if l.released {
		return errors.WithStack(ErrAlreadyFree)
	}
	holder, err := Read(l.path)
	if err != nil {
		return err
	}
	if holder.Token != l.token {
		return errors.Wrapf(ErrNotOwned, "path: %v, pid: %v", l.path, holder.PID)
	}
	err = os.Remove(l.path)
	if err != nil {
		return errors.WithStack(err)
	}
	l.released = true
	return nil
}
