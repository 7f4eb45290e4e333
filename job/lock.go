package job

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ErrNotOwner is returned when a lock is released by someone other than its
// holder.
var ErrNotOwner = errors.New("lock held by another owner")

// Lock gives one owner at a time exclusive rights over a document key.
type Lock interface {
	// Acquire takes the lock for key. It reports false, without error, when
	// the key is already held.
	Acquire(ctx context.Context, key, owner string) (bool, error)

	// Release gives the lock back. Releasing a lock that is not held is not
	// an error.
	Release(ctx context.Context, key, owner string) error
}

// FileLock keeps one lock file per key under Dir. Exclusive creation makes
// it safe between processes sharing the directory.
type FileLock struct {
	Dir string
}

// NewFileLock returns a FileLock rooted at dir.
func NewFileLock(dir string) *FileLock {
	return &FileLock{Dir: dir}
}

func (l *FileLock) path(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return filepath.Join(l.Dir, hex.EncodeToString(sum[:16])+".lock")
}

// Acquire implements Lock.
func (l *FileLock) Acquire(ctx context.Context, key, owner string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(l.path(key), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create lock for %s: %w", key, err)
	}

	_, err = fmt.Fprintf(f, "%s\n%s\n", owner, key)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(f.Name())
		return false, fmt.Errorf("failed to write lock for %s: %w", key, err)
	}
	return true, nil
}

// Release implements Lock.
func (l *FileLock) Release(ctx context.Context, key, owner string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := l.path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lock for %s: %w", key, err)
	}

	holder, _, _ := strings.Cut(string(data), "\n")
	if holder != owner {
		return fmt.Errorf("%w: %s is held by %q", ErrNotOwner, key, holder)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove lock for %s: %w", key, err)
	}
	return nil
}
