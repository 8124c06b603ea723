package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockTimeout   = 3 * time.Second
	lockRetryWait = 100 * time.Millisecond
)

// File is a Ledger persisted as a single JSON document. Writers from other
// processes are serialized through a sidecar lock file.
type File struct {
	path     string
	fileLock *flock.Flock
	mu       sync.Mutex
}

type fileData struct {
	Entries  map[string]fileEntry `json:"entries"`
	Metadata fileMetadata         `json:"metadata"`
}

type fileEntry struct {
	Value     []byte    `json:"value"`
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

type fileMetadata struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFile returns a file-backed ledger at path. The file is created on first write.
func NewFile(path string) *File {
	return &File{
		path:     path,
		fileLock: flock.New(path + ".lock"),
	}
}

// IsAvailable reports whether the ledger directory exists and is writable.
func (f *File) IsAvailable(_ context.Context) (bool, error) {
	dir := filepath.Dir(f.path)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

// GetData reads key under the file lock. A missing file or key yields
// empty bytes.
func (f *File) GetData(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := f.withLock(ctx, func() error {
		data, err := f.load()
		if err != nil {
			return err
		}
		if entry, ok := data.Entries[key]; ok {
			value = entry.Value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if value == nil {
		return []byte{}, nil
	}
	return value, nil
}

// SetData rewrites the whole document with key updated, via temp file and
// rename, while holding the lock.
func (f *File) SetData(ctx context.Context, key string, value []byte) (Receipt, error) {
	var receipt Receipt
	err := f.withLock(ctx, func() error {
		data, err := f.load()
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		entry := data.Entries[key]
		entry.Value = append([]byte(nil), value...)
		entry.Revision++
		entry.UpdatedAt = now
		data.Entries[key] = entry
		data.Metadata.UpdatedAt = now
		if err := f.save(data); err != nil {
			return err
		}
		receipt = NewReceipt(key, value, entry.Revision)
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

func (f *File) withLock(ctx context.Context, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := f.fileLock.TryLockContext(lockCtx, lockRetryWait)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("could not acquire file lock")
	}
	defer func() { _ = f.fileLock.Unlock() }()

	return fn()
}

// load reads the document; caller holds the lock.
func (f *File) load() (*fileData, error) {
	data := &fileData{
		Entries:  make(map[string]fileEntry),
		Metadata: fileMetadata{Version: "1.0"},
	}

	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if data.Entries == nil {
		data.Entries = make(map[string]fileEntry)
	}
	return data, nil
}

// save writes the document atomically; caller holds the lock.
func (f *File) save(data *fileData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	tmpFile := f.path + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpFile, f.path); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
