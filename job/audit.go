package job

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ErrAuditLog is returned when the audit log cannot be read or appended to.
var ErrAuditLog = errors.New("audit log error")

// Entry is one audit record.
type Entry struct {
	Key    string    `json:"key"`
	Host   string    `json:"host"`
	Time   time.Time `json:"time"`
	Status Status    `json:"status"`
	Pages  int       `json:"pages"`
	// Digest is the hex BLAKE2b-256 of the patched document.
	Digest string `json:"digest"`
}

// AuditLog records which documents have been processed.
type AuditLog interface {
	Processed(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, entry Entry) error
}

// FileAuditLog stores entries as JSON lines in a single file.
type FileAuditLog struct {
	Path string

	mu sync.Mutex
}

// NewFileAuditLog returns an audit log stored at path.
func NewFileAuditLog(path string) *FileAuditLog {
	return &FileAuditLog{Path: path}
}

// Processed reports whether key has a processed entry. A missing file holds
// no entries.
func (a *FileAuditLog) Processed(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.Open(a.Path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrAuditLog, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return false, fmt.Errorf("%w: line %d: %v", ErrAuditLog, line, err)
		}
		if entry.Key == key && entry.Status == StatusProcessed {
			return true, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrAuditLog, err)
	}
	return false, nil
}

// Record appends entry and syncs the file.
func (a *FileAuditLog) Record(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditLog, err)
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.Path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrAuditLog, err)
	}
	f, err := os.OpenFile(a.Path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuditLog, err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", ErrAuditLog, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", ErrAuditLog, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrAuditLog, err)
	}
	return nil
}

// FileDigest returns the hex BLAKE2b-256 of the file at path.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
