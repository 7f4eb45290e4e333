// Package job runs the overlay over documents shared between several
// workers. A document is processed at most once: workers serialise on a
// Lock and consult an AuditLog before patching.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/georgepadayatti/pdflogo/config"
	"github.com/georgepadayatti/pdflogo/overlay"
)

// Status is the outcome of processing one document.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusSkipped   Status = "skipped"
	StatusLocked    Status = "locked"
	StatusFailed    Status = "failed"
)

// ErrInvalidKey is returned for a document path that is empty after
// normalisation.
var ErrInvalidKey = errors.New("invalid document key")

// NormalizeKey trims surrounding whitespace and converts key to Unicode NFC,
// so the same file name typed or listed differently maps to one lock and one
// audit entry.
func NormalizeKey(key string) string {
	return norm.NFC.String(strings.TrimSpace(key))
}

// Runner patches documents under a lock and records them in an audit log.
type Runner struct {
	Lock    Lock
	Audit   AuditLog
	Patcher *overlay.Patcher

	// Image is the overlay image path.
	Image string
	// Host identifies this worker as lock owner and in audit entries.
	Host string
	// BackupDir, when set, receives a copy of each document before it is
	// patched.
	BackupDir string
	// WorkDir, when set, is where documents are patched before being moved
	// back over the original.
	WorkDir string

	Logger *slog.Logger

	now func() time.Time
}

// NewRunner builds a runner with file based locks and audit log from cfg.
func NewRunner(cfg *config.JobConfig, patcher *overlay.Patcher, image string, logger *slog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if patcher == nil {
		return nil, errors.New("job: patcher is required")
	}
	if image == "" {
		return nil, config.NewConfigError("overlay.image", "required field is missing")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		Lock:      NewFileLock(cfg.LockDir),
		Audit:     NewFileAuditLog(cfg.AuditLog),
		Patcher:   patcher,
		Image:     image,
		Host:      cfg.Host,
		BackupDir: cfg.BackupDir,
		WorkDir:   cfg.WorkDir,
		Logger:    logger,
	}, nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now().UTC()
}

// Process patches the document at path unless another worker holds it or it
// has already been processed. The lock is always released. An audit entry is
// written only after the patched document is in place, so a failed document
// stays eligible.
func (r *Runner) Process(ctx context.Context, path string) (status Status, err error) {
	path = strings.TrimSpace(path)
	key := NormalizeKey(path)
	if key == "" {
		return StatusFailed, ErrInvalidKey
	}
	log := r.logger().With("key", key, "host", r.Host)

	acquired, err := r.Lock.Acquire(ctx, key, r.Host)
	if err != nil {
		return StatusFailed, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		log.Info("document locked by another worker")
		return StatusLocked, nil
	}
	log.Debug("lock established")
	defer func() {
		// A context cancelled mid-run must not strand the lock.
		if rerr := r.Lock.Release(context.WithoutCancel(ctx), key, r.Host); rerr != nil {
			log.Error("failed to release lock", "error", rerr)
			if err == nil {
				status, err = StatusFailed, fmt.Errorf("failed to release lock: %w", rerr)
			}
		}
	}()

	done, err := r.Audit.Processed(ctx, key)
	if err != nil {
		return StatusFailed, err
	}
	if done {
		log.Info("already processed, releasing lock")
		return StatusSkipped, nil
	}

	pages, err := r.patch(path)
	if err != nil {
		log.Error("patch failed", "error", err)
		return StatusFailed, err
	}

	digest, err := FileDigest(path)
	if err != nil {
		return StatusFailed, fmt.Errorf("failed to digest %s: %w", path, err)
	}
	entry := Entry{
		Key:    key,
		Host:   r.Host,
		Time:   r.clock(),
		Status: StatusProcessed,
		Pages:  pages,
		Digest: digest,
	}
	if err := r.Audit.Record(ctx, entry); err != nil {
		return StatusFailed, err
	}
	log.Info("document processed", "pages", pages, "digest", digest)
	return StatusProcessed, nil
}

func (r *Runner) patch(path string) (int, error) {
	base := filepath.Base(path)
	if r.BackupDir != "" {
		if err := os.MkdirAll(r.BackupDir, 0o755); err != nil {
			return 0, fmt.Errorf("failed to create backup directory: %w", err)
		}
		if err := copyFile(path, filepath.Join(r.BackupDir, base)); err != nil {
			return 0, fmt.Errorf("failed to back up %s: %w", path, err)
		}
	}

	if r.WorkDir == "" {
		result, err := r.Patcher.PatchFile(path, "", r.Image)
		if err != nil {
			return 0, err
		}
		return result.Pages, nil
	}

	if err := os.MkdirAll(r.WorkDir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create work directory: %w", err)
	}
	original := filepath.Join(r.WorkDir, base+"_ORIGINAL")
	patched := filepath.Join(r.WorkDir, base)
	defer os.Remove(original)
	defer os.Remove(patched)

	if err := copyFile(path, original); err != nil {
		return 0, fmt.Errorf("failed to copy %s to work directory: %w", path, err)
	}
	result, err := r.Patcher.PatchFile(original, patched, r.Image)
	if err != nil {
		return 0, err
	}
	if err := moveFile(patched, path); err != nil {
		return 0, fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return result.Pages, nil
}

// copyFile copies src over dst through a temporary file in dst's directory,
// keeping src's permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	ok := false
	defer func() {
		if !ok {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return err
	}
	ok = true
	return nil
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
